package rbac

// DataType names a result set for Filter.
type DataType string

const (
	DataTransactions DataType = "transactions"
	DataCenters      DataType = "centers"
	DataServices     DataType = "services"
	DataClients      DataType = "clients"
	DataUsers        DataType = "users"
	DataCosts        DataType = "costs"
)

// ScopedRecord is implemented by records that reference a center and a
// service. An empty ref means the record is not scoped on that axis.
type ScopedRecord interface {
	CenterRef() string
	ServiceRef() string
}

// ScopeEntity is implemented by centers and services: ScopeRef is the id
// matched against the principal's assignments.
type ScopeEntity interface {
	ScopeRef() string
}

// Filter narrows items to the subset p may see. It never mutates items.
// A nil principal sees nothing.
//
// For transactions and scoped entity types, items that do not implement
// the matching interface are dropped.
func Filter[T any](dataType DataType, items []T, p *Principal) []T {
	if p == nil {
		return []T{}
	}
	if p.IsSuperAdmin() {
		return items
	}

	switch dataType {
	case DataTransactions:
		return keep(items, func(item T) bool {
			rec, ok := any(item).(ScopedRecord)
			if !ok {
				return false
			}
			if c := rec.CenterRef(); c != "" && !p.CanAccessCenter(c) {
				return false
			}
			if s := rec.ServiceRef(); s != "" && !p.CanAccessService(s) {
				return false
			}
			return true
		})
	case DataCenters:
		return keep(items, func(item T) bool {
			e, ok := any(item).(ScopeEntity)
			return ok && p.CanAccessCenter(e.ScopeRef())
		})
	case DataServices:
		return keep(items, func(item T) bool {
			e, ok := any(item).(ScopeEntity)
			return ok && p.CanAccessService(e.ScopeRef())
		})
	case DataUsers:
		if !p.HasPermission(ModuleUsers, ActionView) {
			return []T{}
		}
		return items
	default:
		// Clients and costs are cross-center; they and any other type pass through.
		return items
	}
}

func keep[T any](items []T, pred func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}
