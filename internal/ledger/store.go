package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Books groups the ledger collections. Atomic runs fn against a view of
// the same collections bound to one database transaction.
type Books interface {
	Centers() Repository[Center]
	Services() Repository[Service]
	Costs() Repository[Cost]
	Clients() Repository[Client]
	Transactions() Repository[Transaction]
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Books) error) error
}

// Store is the Postgres implementation of Books.
type Store struct {
	db           DB
	centers      *Collection[Center, *Center]
	services     *Collection[Service, *Service]
	costs        *Collection[Cost, *Cost]
	clients      *Collection[Client, *Client]
	transactions *Collection[Transaction, *Transaction]
}

func NewStore(db DB) *Store {
	return &Store{
		db:           db,
		centers:      NewCollection[Center](db, "centers"),
		services:     NewCollection[Service](db, "services"),
		costs:        NewCollection[Cost](db, "costs"),
		clients:      NewCollection[Client](db, "clients"),
		transactions: NewCollection[Transaction](db, "transactions"),
	}
}

func (s *Store) Centers() Repository[Center]           { return s.centers }
func (s *Store) Services() Repository[Service]         { return s.services }
func (s *Store) Costs() Repository[Cost]               { return s.costs }
func (s *Store) Clients() Repository[Client]           { return s.clients }
func (s *Store) Transactions() Repository[Transaction] { return s.transactions }

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx Books) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}
