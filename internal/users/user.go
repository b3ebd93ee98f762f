package users

import (
	"errors"
	"strings"
	"time"

	"github.com/gogain/ledger/internal/rbac"
)

var ErrEmailDuplicate = errors.New("email is already in use")

// User is a persisted principal. PasswordHash never leaves the server.
type User struct {
	ID               string         `json:"_id"`
	Email            string         `json:"email"`
	PasswordHash     string         `json:"-"`
	FirstName        string         `json:"firstName"`
	LastName         string         `json:"lastName"`
	Percentage       float64        `json:"percentage"`
	Role             rbac.Role      `json:"role"`
	Permissions      rbac.Overrides `json:"permissions"`
	AssignedCenters  []string       `json:"assignedCenters"`
	AssignedServices []string       `json:"assignedServices"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Principal builds the authorization view of u.
func (u *User) Principal() *rbac.Principal {
	return rbac.NewPrincipal(u.ID, u.Email, u.Role, u.Permissions, u.AssignedCenters, u.AssignedServices)
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UpdateParams carries a partial update. Nil fields are left untouched.
type UpdateParams struct {
	Email            *string
	PasswordHash     *string
	FirstName        *string
	LastName         *string
	Percentage       *float64
	Role             *rbac.Role
	Permissions      rbac.Overrides
	AssignedCenters  []string
	AssignedServices []string
}

// Empty reports whether p changes nothing.
func (p UpdateParams) Empty() bool {
	return p.Email == nil && p.PasswordHash == nil && p.FirstName == nil &&
		p.LastName == nil && p.Percentage == nil && p.Role == nil &&
		p.Permissions == nil && p.AssignedCenters == nil && p.AssignedServices == nil
}
