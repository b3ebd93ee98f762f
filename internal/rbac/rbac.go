// Package rbac is the authorization core: the role/permission model, the
// principal-bound access predicates, the guard chain that admits or
// rejects requests, the post-fetch data filter and the rules that bound
// role and permission changes.
package rbac

import "slices"

// Role is one of the closed set of roles a user can hold.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleWorker     Role = "worker"
	RoleViewer     Role = "viewer"
)

// Roles lists every role, most privileged first.
var Roles = []Role{RoleSuperAdmin, RoleAdmin, RoleManager, RoleWorker, RoleViewer}

// Valid reports whether r is a member of the role enumeration.
func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

// Module is a coarse resource category.
type Module string

const (
	ModuleDashboard    Module = "dashboard"
	ModuleTransactions Module = "transactions"
	ModuleClients      Module = "clients"
	ModuleCenters      Module = "centers"
	ModuleServices     Module = "services"
	ModuleUsers        Module = "users"
	ModuleReports      Module = "reports"
	ModuleSettings     Module = "settings"
	ModuleCosts        Module = "costs"
)

// Action is an operation kind on a module.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
)

var crud = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}

// catalog fixes which actions exist for each module.
var catalog = map[Module][]Action{
	ModuleDashboard:    {ActionView, ActionEdit},
	ModuleTransactions: crud,
	ModuleClients:      crud,
	ModuleCenters:      crud,
	ModuleServices:     crud,
	ModuleUsers:        crud,
	ModuleReports:      {ActionView, ActionExport},
	ModuleSettings:     {ActionView, ActionEdit},
	ModuleCosts:        crud,
}

var modules = []Module{
	ModuleDashboard, ModuleTransactions, ModuleClients, ModuleCenters,
	ModuleServices, ModuleUsers, ModuleReports, ModuleSettings, ModuleCosts,
}

// Modules returns every module in a stable order.
func Modules() []Module {
	return slices.Clone(modules)
}

// Actions returns the actions defined for m, or nil for an unknown module.
func Actions(m Module) []Action {
	return slices.Clone(catalog[m])
}

// Known reports whether (m, a) is a pair in the catalog.
func Known(m Module, a Action) bool {
	return slices.Contains(catalog[m], a)
}

// Permission renders the "module:action" token used in denials and logs.
func Permission(m Module, a Action) string {
	return string(m) + ":" + string(a)
}
