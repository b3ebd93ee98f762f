package rbac

// Matrix maps every catalog (module, action) pair to a decision.
type Matrix map[Module]map[Action]bool

// Overrides is a sparse per-user matrix merged on top of role defaults.
type Overrides map[Module]map[Action]bool

// grants lists the true entries of each role's default matrix. Anything
// not listed is false.
var grants = map[Role]map[Module][]Action{
	RoleAdmin: {
		ModuleDashboard:    {ActionView},
		ModuleTransactions: crud,
		ModuleClients:      crud,
		ModuleCenters:      {ActionView, ActionCreate, ActionEdit},
		ModuleServices:     {ActionView, ActionCreate, ActionEdit},
		ModuleUsers:        {ActionView, ActionCreate, ActionEdit},
		ModuleCosts:        {ActionView, ActionCreate, ActionEdit},
		ModuleReports:      {ActionView, ActionExport},
		ModuleSettings:     {ActionView},
	},
	RoleManager: {
		ModuleDashboard:    {ActionView},
		ModuleTransactions: {ActionView, ActionCreate, ActionEdit},
		ModuleClients:      {ActionView, ActionCreate, ActionEdit},
		ModuleCenters:      {ActionView},
		ModuleServices:     {ActionView, ActionCreate, ActionEdit},
		ModuleCosts:        {ActionView, ActionCreate, ActionEdit},
		ModuleReports:      {ActionView},
	},
	RoleWorker: {
		ModuleDashboard:    {ActionView},
		ModuleTransactions: {ActionView, ActionCreate},
		ModuleClients:      {ActionView, ActionCreate},
		ModuleCenters:      {ActionView},
		ModuleServices:     {ActionView},
		ModuleCosts:        {ActionView},
	},
	RoleViewer: {
		ModuleDashboard:    {ActionView},
		ModuleTransactions: {ActionView},
		ModuleClients:      {ActionView},
		ModuleCenters:      {ActionView},
		ModuleServices:     {ActionView},
		ModuleCosts:        {ActionView},
	},
}

// DefaultMatrix returns a fresh copy of role's complete default matrix.
// Unknown roles get the viewer matrix.
func DefaultMatrix(role Role) Matrix {
	m := make(Matrix, len(catalog))
	for mod, actions := range catalog {
		row := make(map[Action]bool, len(actions))
		for _, a := range actions {
			row[a] = role == RoleSuperAdmin
		}
		m[mod] = row
	}
	if role == RoleSuperAdmin {
		return m
	}

	g, ok := grants[role]
	if !ok {
		g = grants[RoleViewer]
	}
	for mod, actions := range g {
		for _, a := range actions {
			m[mod][a] = true
		}
	}
	return m
}

// EffectivePermissions merges overrides on top of role's defaults. Only
// catalog pairs are considered; anything else in overrides is ignored.
func EffectivePermissions(role Role, overrides Overrides) Matrix {
	m := DefaultMatrix(role)
	for mod, row := range overrides {
		for a, v := range row {
			if Known(mod, a) {
				m[mod][a] = v
			}
		}
	}
	return m
}

// HasPermission is false for any pair missing from m.
func HasPermission(m Matrix, module Module, action Action) bool {
	return m[module][action]
}

// Allows is HasPermission as a method.
func (m Matrix) Allows(module Module, action Action) bool {
	return HasPermission(m, module, action)
}

// ParseOverrides sanitizes an untyped override document, typically decoded
// from JSON. Unknown modules or actions, non-object module entries and
// non-boolean values are dropped silently. The result is never nil.
func ParseOverrides(raw map[string]any) Overrides {
	out := make(Overrides)
	for modKey, rowVal := range raw {
		mod := Module(modKey)
		if _, ok := catalog[mod]; !ok {
			continue
		}
		row, ok := rowVal.(map[string]any)
		if !ok {
			continue
		}
		for actKey, v := range row {
			b, ok := v.(bool)
			if !ok || !Known(mod, Action(actKey)) {
				continue
			}
			if out[mod] == nil {
				out[mod] = make(map[Action]bool)
			}
			out[mod][Action(actKey)] = b
		}
	}
	return out
}

// Sanitize drops every pair outside the catalog.
func (o Overrides) Sanitize() Overrides {
	out := make(Overrides)
	for mod, row := range o {
		for a, v := range row {
			if !Known(mod, a) {
				continue
			}
			if out[mod] == nil {
				out[mod] = make(map[Action]bool)
			}
			out[mod][a] = v
		}
	}
	return out
}
