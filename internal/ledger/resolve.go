package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/gogain/ledger/internal/platform/httpx"
	"github.com/gogain/ledger/internal/rbac"
)

// checkScope applies the same center and service predicates as the
// transactions filter to a single record.
func checkScope(p *rbac.Principal, t *Transaction) error {
	if t.Center != "" && !p.CanAccessCenter(t.Center) {
		return rbac.CenterDenied(p, t.Center)
	}
	if t.Service != "" && !p.CanAccessService(t.Service) {
		return rbac.ServiceDenied(p, t.Service)
	}
	return nil
}

// validateTransaction normalises t and checks its required fields.
func validateTransaction(t *Transaction) error {
	if err := prepare(t); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return httpx.Invalid("validation failed", map[string]string{"date": "required"})
	}
	if t.Index < 0 {
		return httpx.Invalid("validation failed", map[string]string{"index": "gte=0"})
	}
	return nil
}

// resolver fills in the denormalised names of transactions and creates
// clients referenced by name. The center and service catalogs are loaded
// once per resolver.
type resolver struct {
	books Books
	actor *rbac.Principal

	loaded   bool
	centers  map[string]Center
	services map[string]Service
}

func newResolver(books Books, actor *rbac.Principal) *resolver {
	return &resolver{books: books, actor: actor}
}

func (rv *resolver) load(ctx context.Context) error {
	if rv.loaded {
		return nil
	}
	centers, err := rv.books.Centers().Find(ctx, nil)
	if err != nil {
		return err
	}
	services, err := rv.books.Services().Find(ctx, nil)
	if err != nil {
		return err
	}
	rv.centers = make(map[string]Center, len(centers))
	for _, c := range centers {
		rv.centers[c.ID] = c
	}
	rv.services = make(map[string]Service, len(services))
	for _, s := range services {
		rv.services[s.ID] = s
	}
	rv.loaded = true
	return nil
}

// centerIDByName finds a center by case-insensitive name.
func (rv *resolver) centerIDByName(ctx context.Context, name string) (string, bool, error) {
	if err := rv.load(ctx); err != nil {
		return "", false, err
	}
	for id, c := range rv.centers {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return id, true, nil
		}
	}
	return "", false, nil
}

// serviceIDByName finds a service by case-insensitive name.
func (rv *resolver) serviceIDByName(ctx context.Context, name string) (string, bool, error) {
	if err := rv.load(ctx); err != nil {
		return "", false, err
	}
	for id, s := range rv.services {
		if strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			return id, true, nil
		}
	}
	return "", false, nil
}

// apply resolves the denormalised names of t from the referenced center,
// service and client. Names supplied by the caller are always replaced.
// When createClients is set, a client value that is not an id is treated
// as a name and resolved or created. Field errors are keyed with prefix.
func (rv *resolver) apply(ctx context.Context, t *Transaction, createClients bool, prefix string) error {
	if err := rv.load(ctx); err != nil {
		return err
	}

	c, ok := rv.centers[t.Center]
	if !ok {
		return httpx.Invalid("Unknown center", map[string]string{prefix + "center": "not_found"})
	}
	t.CenterName = c.Name

	t.ServiceName = ""
	if t.Service != "" {
		s, ok := rv.services[t.Service]
		if !ok {
			return httpx.Invalid("Unknown service", map[string]string{prefix + "service": "not_found"})
		}
		t.ServiceName = s.Name
	}

	return rv.applyClient(ctx, t, createClients, prefix)
}

func (rv *resolver) applyClient(ctx context.Context, t *Transaction, create bool, prefix string) error {
	t.ClientName = ""
	if t.Client == "" {
		return nil
	}
	if _, err := uuid.Parse(t.Client); err == nil {
		c, err := rv.books.Clients().Get(ctx, t.Client)
		if errors.Is(err, ErrNotFound) {
			return httpx.Invalid("Unknown client", map[string]string{prefix + "client": "not_found"})
		}
		if err != nil {
			return err
		}
		t.ClientName = c.DisplayName()
		return nil
	}

	if !create {
		return httpx.Invalid("Unknown client", map[string]string{prefix + "client": "not_found"})
	}
	c, err := rv.clientByName(ctx, t.Client)
	if err != nil {
		return err
	}
	t.Client = c.ID
	t.ClientName = c.DisplayName()
	return nil
}

// clientByName returns the client whose last and first names match name,
// creating it when none does. The first word is the last name and the
// rest the first name; a single word is used for both.
func (rv *resolver) clientByName(ctx context.Context, name string) (*Client, error) {
	parts := strings.Fields(name)
	last := parts[0]
	first := strings.Join(parts[1:], " ")
	if first == "" {
		first = last
	}

	existing, err := rv.books.Clients().FindOne(ctx, Filter{"firstName": first, "lastName": last})
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if !rv.actor.HasPermission(rbac.ModuleClients, rbac.ActionCreate) {
		return nil, rbac.PermissionDenied(rv.actor, rbac.ModuleClients, rbac.ActionCreate)
	}
	c := &Client{FirstName: first, LastName: last}
	if err := rv.books.Clients().Insert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
