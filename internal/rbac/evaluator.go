package rbac

import (
	"context"
	"slices"
)

// Principal is the authenticated actor of one request. It is built once
// from the persisted user and reused by every guard and filter in that
// request.
type Principal struct {
	UserID           string
	Email            string
	Role             Role
	Overrides        Overrides
	AssignedCenters  []string
	AssignedServices []string

	effective Matrix
}

// NewPrincipal resolves the effective matrix up front. Nil assignment
// slices are normalised to empty ones.
func NewPrincipal(userID, email string, role Role, overrides Overrides, centers, services []string) *Principal {
	if centers == nil {
		centers = []string{}
	}
	if services == nil {
		services = []string{}
	}
	return &Principal{
		UserID:           userID,
		Email:            email,
		Role:             role,
		Overrides:        overrides,
		AssignedCenters:  centers,
		AssignedServices: services,
		effective:        EffectivePermissions(role, overrides),
	}
}

func (p *Principal) IsSuperAdmin() bool {
	return p.Role == RoleSuperAdmin
}

// IsAdmin is true for admin and super_admin.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// Effective returns the principal's effective matrix. The caller must not
// modify it.
func (p *Principal) Effective() Matrix {
	if p.effective == nil {
		p.effective = EffectivePermissions(p.Role, p.Overrides)
	}
	return p.effective
}

func (p *Principal) HasPermission(module Module, action Action) bool {
	return HasPermission(p.Effective(), module, action)
}

// CanAccessCenter is true for super_admin and otherwise requires ref to be
// one of the assigned centers.
func (p *Principal) CanAccessCenter(ref string) bool {
	return p.IsSuperAdmin() || slices.Contains(p.AssignedCenters, ref)
}

// CanAccessService mirrors CanAccessCenter over assigned services.
func (p *Principal) CanAccessService(ref string) bool {
	return p.IsSuperAdmin() || slices.Contains(p.AssignedServices, ref)
}

type principalContextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// GetPrincipal returns the principal stored by WithPrincipal, or nil.
func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
