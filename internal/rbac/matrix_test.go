package rbac_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/gogain/ledger/internal/rbac"
)

func TestDefaultMatrix_TotalForEveryRole(t *testing.T) {
	for _, role := range append(rbac.Roles, rbac.Role("intern"), rbac.Role("")) {
		m := rbac.DefaultMatrix(role)
		for _, mod := range rbac.Modules() {
			row, ok := m[mod]
			require.True(t, ok, "%s missing module %s", role, mod)
			for _, a := range rbac.Actions(mod) {
				_, ok := row[a]
				assert.True(t, ok, "%s missing %s", role, rbac.Permission(mod, a))
			}
			assert.Len(t, row, len(rbac.Actions(mod)))
		}
	}
}

func TestDefaultMatrix_SuperAdminHasEverything(t *testing.T) {
	m := rbac.DefaultMatrix(rbac.RoleSuperAdmin)
	for _, mod := range rbac.Modules() {
		for _, a := range rbac.Actions(mod) {
			assert.True(t, m.Allows(mod, a), rbac.Permission(mod, a))
		}
	}
}

func TestDefaultMatrix_RoleDefaults(t *testing.T) {
	tests := []struct {
		role   rbac.Role
		module rbac.Module
		action rbac.Action
		want   bool
	}{
		{rbac.RoleAdmin, rbac.ModuleClients, rbac.ActionDelete, true},
		{rbac.RoleAdmin, rbac.ModuleCenters, rbac.ActionDelete, false},
		{rbac.RoleAdmin, rbac.ModuleUsers, rbac.ActionCreate, true},
		{rbac.RoleAdmin, rbac.ModuleReports, rbac.ActionExport, true},
		{rbac.RoleAdmin, rbac.ModuleSettings, rbac.ActionEdit, false},
		{rbac.RoleManager, rbac.ModuleServices, rbac.ActionEdit, true},
		{rbac.RoleManager, rbac.ModuleCenters, rbac.ActionCreate, false},
		{rbac.RoleManager, rbac.ModuleUsers, rbac.ActionView, false},
		{rbac.RoleWorker, rbac.ModuleTransactions, rbac.ActionCreate, true},
		{rbac.RoleWorker, rbac.ModuleTransactions, rbac.ActionEdit, false},
		{rbac.RoleWorker, rbac.ModuleCosts, rbac.ActionView, true},
		{rbac.RoleViewer, rbac.ModuleClients, rbac.ActionCreate, false},
		{rbac.RoleViewer, rbac.ModuleDashboard, rbac.ActionView, true},
		{rbac.RoleViewer, rbac.ModuleReports, rbac.ActionView, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+rbac.Permission(tt.module, tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, rbac.DefaultMatrix(tt.role).Allows(tt.module, tt.action))
		})
	}
}

func TestDefaultMatrix_UnknownRoleIsViewer(t *testing.T) {
	assert.Equal(t, rbac.DefaultMatrix(rbac.RoleViewer), rbac.DefaultMatrix("intern"))
}

func TestDefaultMatrix_ReturnsCopy(t *testing.T) {
	m := rbac.DefaultMatrix(rbac.RoleViewer)
	m[rbac.ModuleUsers][rbac.ActionDelete] = true

	assert.False(t, rbac.DefaultMatrix(rbac.RoleViewer).Allows(rbac.ModuleUsers, rbac.ActionDelete))
}

func TestEffectivePermissions_OverridesApplyExactly(t *testing.T) {
	overrides := rbac.Overrides{
		rbac.ModuleClients:      {rbac.ActionCreate: true},
		rbac.ModuleTransactions: {rbac.ActionView: false},
	}
	eff := rbac.EffectivePermissions(rbac.RoleViewer, overrides)
	def := rbac.DefaultMatrix(rbac.RoleViewer)

	for _, mod := range rbac.Modules() {
		for _, a := range rbac.Actions(mod) {
			want := def.Allows(mod, a)
			if v, ok := overrides[mod][a]; ok {
				want = v
			}
			assert.Equal(t, want, eff.Allows(mod, a), rbac.Permission(mod, a))
		}
	}
}

func TestEffectivePermissions_IgnoresPairsOutsideCatalog(t *testing.T) {
	eff := rbac.EffectivePermissions(rbac.RoleViewer, rbac.Overrides{
		rbac.ModuleDashboard: {rbac.ActionDelete: true},
		"bogus":              {rbac.ActionView: true},
	})

	assert.Equal(t, rbac.DefaultMatrix(rbac.RoleViewer), eff)
}

func TestHasPermission_MissingKeysAreFalse(t *testing.T) {
	m := rbac.DefaultMatrix(rbac.RoleSuperAdmin)
	assert.False(t, rbac.HasPermission(m, "bogus", rbac.ActionView))
	assert.False(t, rbac.HasPermission(m, rbac.ModuleReports, rbac.ActionDelete))
	assert.False(t, rbac.HasPermission(nil, rbac.ModuleReports, rbac.ActionView))
}

func TestParseOverrides_Sanitizes(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"transactions": {"view": true, "exploit": true, "edit": "yes"},
		"bogusModule": {"view": true},
		"clients": true,
		"reports": {"export": false}
	}`), &raw))

	got := rbac.ParseOverrides(raw)

	assert.Equal(t, rbac.Overrides{
		rbac.ModuleTransactions: {rbac.ActionView: true},
		rbac.ModuleReports:      {rbac.ActionExport: false},
	}, got)
}

func TestParseOverrides_OnlyTransactionsViewSurvives(t *testing.T) {
	got := rbac.ParseOverrides(map[string]any{
		"transactions": map[string]any{"view": true, "exploit": true},
		"bogusModule":  map[string]any{"view": true},
	})

	assert.Equal(t, rbac.Overrides{rbac.ModuleTransactions: {rbac.ActionView: true}}, got)
}

func TestParseOverrides_NilIsEmpty(t *testing.T) {
	got := rbac.ParseOverrides(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestOverrides_Sanitize(t *testing.T) {
	got := rbac.Overrides{
		rbac.ModuleUsers: {rbac.ActionView: true, rbac.ActionExport: true},
		"nope":           {rbac.ActionView: true},
	}.Sanitize()

	assert.Equal(t, rbac.Overrides{rbac.ModuleUsers: {rbac.ActionView: true}}, got)
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, rbac.RoleWorker.Valid())
	assert.False(t, rbac.Role("root").Valid())
}
