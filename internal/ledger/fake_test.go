package ledger_test

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/gogain/ledger/internal/ledger"
)

// memRepo is an in-memory ledger.Repository that counts writes.
type memRepo[T any, P ledger.Doc[T]] struct {
	mu     sync.Mutex
	docs   []*T
	writes int
}

func (m *memRepo[T, P]) Find(_ context.Context, f ledger.Filter) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []T{}
	for _, d := range m.docs {
		if matches(d, f) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memRepo[T, P]) FindOne(ctx context.Context, f ledger.Filter) (*T, error) {
	docs, _ := m.Find(ctx, f)
	if len(docs) == 0 {
		return nil, ledger.ErrNotFound
	}
	return &docs[0], nil
}

func (m *memRepo[T, P]) Get(_ context.Context, id string) (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if P(d).DocID() == id {
			c := *d
			return &c, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *memRepo[T, P]) Insert(_ context.Context, doc *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if P(doc).DocID() == "" {
		P(doc).SetDocID(uuid.NewString())
	}
	c := *doc
	m.docs = append(m.docs, &c)
	return nil
}

func (m *memRepo[T, P]) InsertMany(ctx context.Context, docs []*T) error {
	for _, d := range docs {
		if err := m.Insert(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (m *memRepo[T, P]) UpdateOne(_ context.Context, doc *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	for i, d := range m.docs {
		if P(d).DocID() == P(doc).DocID() {
			c := *doc
			m.docs[i] = &c
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (m *memRepo[T, P]) DeleteOne(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	for i, d := range m.docs {
		if P(d).DocID() == id {
			m.docs = append(m.docs[:i], m.docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memRepo[T, P]) DeleteMany(_ context.Context, f ledger.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	var kept []*T
	var n int64
	for _, d := range m.docs {
		if matches(d, f) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	m.docs = kept
	return n, nil
}

func (m *memRepo[T, P]) MaxInt(_ context.Context, field string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var top int64
	for _, d := range m.docs {
		fields := asMap(d)
		if v, ok := fields[field].(float64); ok && int64(v) > top {
			top = int64(v)
		}
	}
	return top, nil
}

func (m *memRepo[T, P]) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *memRepo[T, P]) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func asMap(v any) map[string]any {
	b, _ := json.Marshal(v)
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}

func matches(doc any, f ledger.Filter) bool {
	fields := asMap(doc)
	for k, want := range asMap(f) {
		if !reflect.DeepEqual(fields[k], want) {
			return false
		}
	}
	return true
}

// memBooks implements ledger.Books. Atomic does not roll back; tests that
// need rollback use the Postgres store.
type memBooks struct {
	centers      *memRepo[ledger.Center, *ledger.Center]
	services     *memRepo[ledger.Service, *ledger.Service]
	costs        *memRepo[ledger.Cost, *ledger.Cost]
	clients      *memRepo[ledger.Client, *ledger.Client]
	transactions *memRepo[ledger.Transaction, *ledger.Transaction]
}

func newMemBooks() *memBooks {
	return &memBooks{
		centers:      &memRepo[ledger.Center, *ledger.Center]{},
		services:     &memRepo[ledger.Service, *ledger.Service]{},
		costs:        &memRepo[ledger.Cost, *ledger.Cost]{},
		clients:      &memRepo[ledger.Client, *ledger.Client]{},
		transactions: &memRepo[ledger.Transaction, *ledger.Transaction]{},
	}
}

func (b *memBooks) Centers() ledger.Repository[ledger.Center]           { return b.centers }
func (b *memBooks) Services() ledger.Repository[ledger.Service]         { return b.services }
func (b *memBooks) Costs() ledger.Repository[ledger.Cost]               { return b.costs }
func (b *memBooks) Clients() ledger.Repository[ledger.Client]           { return b.clients }
func (b *memBooks) Transactions() ledger.Repository[ledger.Transaction] { return b.transactions }

func (b *memBooks) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Books) error) error {
	return fn(ctx, b)
}
