package rbac

import (
	"slices"
	"strings"

	"github.com/gogain/ledger/internal/platform/httpx"
)

// RoleChange describes a write to a user record as seen by the mutation
// guard. TargetID is empty when the user is being created; NewRole is nil
// when the role is not part of the write.
type RoleChange struct {
	TargetID   string
	TargetRole Role
	NewRole    *Role
}

// AuthorizeUserWrite applies the role rules to a create or update of a
// user record by actor. Rules are evaluated in order and the first
// violation is returned:
//
//  1. nobody promotes themself to super_admin
//  2. only super_admin grants super_admin
//  3. only super_admin modifies an existing super_admin
func AuthorizeUserWrite(actor *Principal, c RoleChange) error {
	self := c.TargetID != "" && c.TargetID == actor.UserID
	promoting := c.NewRole != nil && *c.NewRole == RoleSuperAdmin

	if promoting && self && !actor.IsSuperAdmin() {
		return httpx.Denied("You cannot promote yourself to super admin.", map[string]any{
			"userRole": actor.Role,
		})
	}
	if promoting && !actor.IsSuperAdmin() {
		return httpx.Denied("Only super admins can assign the super admin role.", map[string]any{
			"requiredRole": RoleSuperAdmin,
			"userRole":     actor.Role,
		})
	}
	if c.TargetID != "" && c.TargetRole == RoleSuperAdmin && !actor.IsSuperAdmin() {
		return httpx.Denied("Only super admins can modify a super admin.", map[string]any{
			"requiredRole": RoleSuperAdmin,
			"userRole":     actor.Role,
		})
	}
	return nil
}

// AuthorizeUserDelete applies the deletion rules: only super_admin deletes
// users, and never their own account.
func AuthorizeUserDelete(actor *Principal, targetID string) error {
	if !actor.IsSuperAdmin() {
		return httpx.Denied("Access denied. Super admin privileges required.", map[string]any{
			"requiredRole": RoleSuperAdmin,
			"userRole":     actor.Role,
		})
	}
	if targetID == actor.UserID {
		return httpx.Denied("You cannot delete your own account.", map[string]any{
			"userRole": actor.Role,
		})
	}
	return nil
}

// SanitizeRefs keeps the non-blank strings of an untyped JSON array,
// trimmed and de-duplicated in first-seen order. Other entries are
// dropped. The result is never nil.
func SanitizeRefs(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}
