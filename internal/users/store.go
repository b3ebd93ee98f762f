package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/gogain/ledger/internal/auth"
	"github.com/gogain/ledger/internal/platform/database"
	"github.com/gogain/ledger/internal/rbac"
)

const userColumns = `id, email, password_hash, first_name, last_name, percentage, role,
	permissions, assigned_centers, assigned_services, created_at, updated_at`

const uniqueViolation = "23505"

// Store handles user persistence. Missing users are reported as errors
// wrapping auth.ErrUserNotFound.
type Store struct {
	db database.Querier
}

func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

// Create inserts u and returns the stored row.
func (s *Store) Create(ctx context.Context, u *User) (*User, error) {
	perms, err := marshalOverrides(u.Permissions)
	if err != nil {
		return nil, err
	}
	role := u.Role
	if role == "" {
		role = rbac.RoleViewer
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, percentage, role,
			permissions, assigned_centers, assigned_services)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+userColumns,
		NormalizeEmail(u.Email), u.PasswordHash, strings.TrimSpace(u.FirstName), strings.TrimSpace(u.LastName),
		u.Percentage, string(role), perms, nonNil(u.AssignedCenters), nonNil(u.AssignedServices),
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrEmailDuplicate, u.Email)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return created, nil
}

// GetByID retrieves a user by id. Malformed ids are reported as not found.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", auth.ErrUserNotFound, id)
	}
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", auth.ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by normalised email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", auth.ErrUserNotFound, email)
		}
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// List returns every user ordered by creation time.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Update applies p to the user and returns the updated row.
func (s *Store) Update(ctx context.Context, id string, p UpdateParams) (*User, error) {
	if p.Empty() {
		return s.GetByID(ctx, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", auth.ErrUserNotFound, id)
	}

	query, args, err := buildUpdate(id, p)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("%w: %s", auth.ErrUserNotFound, id)
		case isUniqueViolation(err):
			return nil, fmt.Errorf("%w: %s", ErrEmailDuplicate, *p.Email)
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return u, nil
}

func buildUpdate(id string, p UpdateParams) (string, []any, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Email != nil {
		set("email", NormalizeEmail(*p.Email))
	}
	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}
	if p.FirstName != nil {
		set("first_name", strings.TrimSpace(*p.FirstName))
	}
	if p.LastName != nil {
		set("last_name", strings.TrimSpace(*p.LastName))
	}
	if p.Percentage != nil {
		set("percentage", *p.Percentage)
	}
	if p.Role != nil {
		set("role", string(*p.Role))
	}
	if p.Permissions != nil {
		perms, err := marshalOverrides(p.Permissions)
		if err != nil {
			return "", nil, err
		}
		set("permissions", perms)
	}
	if p.AssignedCenters != nil {
		set("assigned_centers", p.AssignedCenters)
	}
	if p.AssignedServices != nil {
		set("assigned_services", p.AssignedServices)
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)
	return query, args, nil
}

// Delete removes a user.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", auth.ErrUserNotFound, id)
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", auth.ErrUserNotFound, id)
	}
	return nil
}

// LoadPrincipal implements auth.PrincipalLoader.
func (s *Store) LoadPrincipal(ctx context.Context, userID string) (*rbac.Principal, error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Principal(), nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u     User
		role  string
		perms []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Percentage, &role,
		&perms, &u.AssignedCenters, &u.AssignedServices, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = rbac.Role(role)
	u.Permissions = rbac.Overrides{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &u.Permissions); err != nil {
			return nil, fmt.Errorf("decoding permissions: %w", err)
		}
		u.Permissions = u.Permissions.Sanitize()
	}
	u.AssignedCenters = nonNil(u.AssignedCenters)
	u.AssignedServices = nonNil(u.AssignedServices)
	return &u, nil
}

func marshalOverrides(o rbac.Overrides) ([]byte, error) {
	if o == nil {
		o = rbac.Overrides{}
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encoding permissions: %w", err)
	}
	return b, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
