package rbac_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/gogain/ledger/internal/platform/httpx"
	"github.com/gogain/ledger/internal/rbac"
)

func rolePtr(r rbac.Role) *rbac.Role { return &r }

func assertDenied(t *testing.T, err error) {
	t.Helper()
	var e *httpx.Error
	require.True(t, errors.As(err, &e), "expected *httpx.Error, got %v", err)
	assert.Equal(t, http.StatusForbidden, e.Status())
}

func TestAuthorizeUserWrite_SelfPromotion(t *testing.T) {
	for _, role := range []rbac.Role{rbac.RoleAdmin, rbac.RoleManager, rbac.RoleWorker, rbac.RoleViewer} {
		actor := rbac.NewPrincipal("me", "me@example.com", role, nil, nil, nil)
		err := rbac.AuthorizeUserWrite(actor, rbac.RoleChange{
			TargetID:   "me",
			TargetRole: role,
			NewRole:    rolePtr(rbac.RoleSuperAdmin),
		})
		assertDenied(t, err)
	}
}

func TestAuthorizeUserWrite_SuperAdminReassertingOwnRole(t *testing.T) {
	actor := rbac.NewPrincipal("me", "me@example.com", rbac.RoleSuperAdmin, nil, nil, nil)
	err := rbac.AuthorizeUserWrite(actor, rbac.RoleChange{
		TargetID:   "me",
		TargetRole: rbac.RoleSuperAdmin,
		NewRole:    rolePtr(rbac.RoleSuperAdmin),
	})
	assert.NoError(t, err)
}

func TestAuthorizeUserWrite_PromotingOthers(t *testing.T) {
	change := rbac.RoleChange{TargetID: "other", TargetRole: rbac.RoleManager, NewRole: rolePtr(rbac.RoleSuperAdmin)}

	admin := rbac.NewPrincipal("me", "me@example.com", rbac.RoleAdmin, nil, nil, nil)
	assertDenied(t, rbac.AuthorizeUserWrite(admin, change))

	super := rbac.NewPrincipal("me", "me@example.com", rbac.RoleSuperAdmin, nil, nil, nil)
	assert.NoError(t, rbac.AuthorizeUserWrite(super, change))
}

func TestAuthorizeUserWrite_CreatingSuperAdmin(t *testing.T) {
	change := rbac.RoleChange{NewRole: rolePtr(rbac.RoleSuperAdmin)}

	assertDenied(t, rbac.AuthorizeUserWrite(rbac.NewPrincipal("me", "", rbac.RoleAdmin, nil, nil, nil), change))
	assert.NoError(t, rbac.AuthorizeUserWrite(rbac.NewPrincipal("me", "", rbac.RoleSuperAdmin, nil, nil, nil), change))
}

func TestAuthorizeUserWrite_ModifyingSuperAdmin(t *testing.T) {
	change := rbac.RoleChange{TargetID: "root", TargetRole: rbac.RoleSuperAdmin}

	assertDenied(t, rbac.AuthorizeUserWrite(rbac.NewPrincipal("me", "", rbac.RoleAdmin, nil, nil, nil), change))

	demote := change
	demote.NewRole = rolePtr(rbac.RoleViewer)
	assertDenied(t, rbac.AuthorizeUserWrite(rbac.NewPrincipal("me", "", rbac.RoleAdmin, nil, nil, nil), demote))
	assert.NoError(t, rbac.AuthorizeUserWrite(rbac.NewPrincipal("me", "", rbac.RoleSuperAdmin, nil, nil, nil), demote))
}

func TestAuthorizeUserWrite_OrdinaryEdit(t *testing.T) {
	admin := rbac.NewPrincipal("me", "", rbac.RoleAdmin, nil, nil, nil)
	assert.NoError(t, rbac.AuthorizeUserWrite(admin, rbac.RoleChange{
		TargetID:   "other",
		TargetRole: rbac.RoleWorker,
		NewRole:    rolePtr(rbac.RoleManager),
	}))
	assert.NoError(t, rbac.AuthorizeUserWrite(admin, rbac.RoleChange{TargetID: "other", TargetRole: rbac.RoleWorker}))
}

func TestAuthorizeUserDelete(t *testing.T) {
	super := rbac.NewPrincipal("root", "", rbac.RoleSuperAdmin, nil, nil, nil)
	assertDenied(t, rbac.AuthorizeUserDelete(super, "root"))
	assert.NoError(t, rbac.AuthorizeUserDelete(super, "other"))

	admin := rbac.NewPrincipal("a", "", rbac.RoleAdmin, nil, nil, nil)
	assertDenied(t, rbac.AuthorizeUserDelete(admin, "other"))
}

func TestSanitizeRefs(t *testing.T) {
	got := rbac.SanitizeRefs([]any{"A", " B ", "", "   ", 42, nil, true, "A", map[string]any{}})
	assert.Equal(t, []string{"A", "B"}, got)

	assert.Equal(t, []string{}, rbac.SanitizeRefs(nil))
}
