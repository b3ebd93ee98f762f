package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gogain/ledger/internal/audit"
	"github.com/gogain/ledger/internal/auth"
	"github.com/gogain/ledger/internal/ledger"
	"github.com/gogain/ledger/internal/rbac"
	"github.com/gogain/ledger/internal/users"
)

// defaultServices is the service catalogue a fresh installation starts with.
var defaultServices = []string{
	"MASSE SALARIALE",
	"FRAIS BANQUE",
	"TPE BANQUE",
	"LOYER CABINET",
	"PERSONAL EXPENSE",
	"MUTUELLE",
	"LEASING VOITURE",
	"PREVOYANCE",
	"LOGICIEL CABINET",
	"ASSURANCE",
	"CHARGES SOCIALES",
	"CREDIT CABINET",
	"INTERNET",
	"URSSAF/CHARGES SOCIALES",
	"MUTUELLE SALARIÉ",
}

type adminParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func (p adminParams) validate() error {
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("admin email is required")
	}
	if n := len(p.Password); n < 4 || n > 72 {
		return errors.New("admin password must be between 4 and 72 bytes")
	}
	return nil
}

type userRepository interface {
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	Create(ctx context.Context, u *users.User) (*users.User, error)
}

// seedAdmin creates the super_admin account unless a user with the same
// email already exists. It reports whether a user was created.
func seedAdmin(ctx context.Context, repo userRepository, auditLog audit.Logger, p adminParams) (bool, error) {
	if err := p.validate(); err != nil {
		return false, err
	}

	existing, err := repo.GetByEmail(ctx, p.Email)
	switch {
	case err == nil:
		slog.Info("admin already exists", "email", existing.Email, "role", existing.Role)
		return false, nil
	case !errors.Is(err, auth.ErrUserNotFound):
		return false, fmt.Errorf("looking up admin: %w", err)
	}

	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return false, err
	}
	created, err := repo.Create(ctx, &users.User{
		Email:        p.Email,
		PasswordHash: hash,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Role:         rbac.RoleSuperAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("creating admin: %w", err)
	}

	auditLog.Log(ctx, audit.Event{
		Action:       audit.ActionUserCreated,
		ResourceType: audit.ResourceUser,
		ResourceID:   created.ID,
		Metadata:     map[string]any{"role": created.Role, "email": created.Email},
		Source:       audit.SourceCLI,
	})
	slog.Info("admin created", "id", created.ID, "email", created.Email)
	return true, nil
}

type serviceCatalog interface {
	Find(ctx context.Context, f ledger.Filter) ([]ledger.Service, error)
	Insert(ctx context.Context, doc *ledger.Service) error
}

// seedServices inserts every name in names that is not already in the
// catalogue, comparing names case-insensitively. It returns the number
// of services inserted.
func seedServices(ctx context.Context, repo serviceCatalog, names []string) (int, error) {
	existing, err := repo.Find(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("listing services: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[strings.ToLower(strings.TrimSpace(s.Name))] = true
	}

	inserted := 0
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		if err := repo.Insert(ctx, &ledger.Service{Name: name}); err != nil {
			return inserted, fmt.Errorf("inserting service %q: %w", name, err)
		}
		seen[key] = true
		inserted++
	}
	return inserted, nil
}
