package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/gogain/ledger/internal/platform/database"
)

var ErrNotFound = errors.New("document not found")

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	database.Querier
	database.TxStarter
}

// Filter matches documents whose body contains every key with an equal
// value. A nil or empty filter matches everything.
type Filter map[string]any

// Repository is the document-store surface used by the handlers.
// *Collection implements it.
type Repository[T any] interface {
	Find(ctx context.Context, f Filter) ([]T, error)
	FindOne(ctx context.Context, f Filter) (*T, error)
	Get(ctx context.Context, id string) (*T, error)
	Insert(ctx context.Context, doc *T) error
	InsertMany(ctx context.Context, docs []*T) error
	UpdateOne(ctx context.Context, doc *T) error
	DeleteOne(ctx context.Context, id string) (int64, error)
	DeleteMany(ctx context.Context, f Filter) (int64, error)
	MaxInt(ctx context.Context, field string) (int64, error)
}

// Collection stores documents of type T as JSONB bodies in a table with
// (id UUID, body JSONB, created_at, updated_at) columns.
type Collection[T any, P Doc[T]] struct {
	db    DB
	table string
}

func NewCollection[T any, P Doc[T]](db DB, table string) *Collection[T, P] {
	return &Collection[T, P]{db: db, table: table}
}

// Find returns matching documents in insertion order.
func (c *Collection[T, P]) Find(ctx context.Context, f Filter) ([]T, error) {
	query := "SELECT id::text, body FROM " + c.table
	var args []any
	if len(f) > 0 {
		b, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("encoding filter: %w", err)
		}
		query += " WHERE body @> $1::jsonb"
		args = append(args, string(b))
	}
	query += " ORDER BY created_at, id"

	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.table, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		doc, err := c.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// FindOne returns the first matching document or ErrNotFound.
func (c *Collection[T, P]) FindOne(ctx context.Context, f Filter) (*T, error) {
	docs, err := c.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[0], nil
}

// Get returns the document with id. Malformed ids are reported as
// ErrNotFound.
func (c *Collection[T, P]) Get(ctx context.Context, id string) (*T, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	doc, err := c.scan(c.db.QueryRow(ctx, "SELECT id::text, body FROM "+c.table+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// Insert stores doc, assigning a new id when it has none.
func (c *Collection[T, P]) Insert(ctx context.Context, doc *T) error {
	return c.insert(ctx, c.db, doc)
}

// InsertMany stores docs in a single transaction: either all are written
// or none is.
func (c *Collection[T, P]) InsertMany(ctx context.Context, docs []*T) error {
	if len(docs) == 0 {
		return nil
	}
	return database.WithTx(ctx, c.db, func(ctx context.Context, q database.Querier) error {
		for _, doc := range docs {
			if err := c.insert(ctx, q, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Collection[T, P]) insert(ctx context.Context, q database.Querier, doc *T) error {
	p := P(doc)
	if p.DocID() == "" {
		p.SetDocID(uuid.NewString())
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s document: %w", c.table, err)
	}
	if _, err := q.Exec(ctx,
		"INSERT INTO "+c.table+" (id, body) VALUES ($1, $2::jsonb)",
		p.DocID(), string(body),
	); err != nil {
		return fmt.Errorf("inserting into %s: %w", c.table, err)
	}
	return nil
}

// UpdateOne replaces the stored body of doc.
func (c *Collection[T, P]) UpdateOne(ctx context.Context, doc *T) error {
	p := P(doc)
	if _, err := uuid.Parse(p.DocID()); err != nil {
		return ErrNotFound
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s document: %w", c.table, err)
	}
	tag, err := c.db.Exec(ctx,
		"UPDATE "+c.table+" SET body = $2::jsonb, updated_at = now() WHERE id = $1",
		p.DocID(), string(body),
	)
	if err != nil {
		return fmt.Errorf("updating %s: %w", c.table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOne removes the document with id and reports how many rows went.
func (c *Collection[T, P]) DeleteOne(ctx context.Context, id string) (int64, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, nil
	}
	tag, err := c.db.Exec(ctx, "DELETE FROM "+c.table+" WHERE id = $1", id)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", c.table, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteMany removes every matching document.
func (c *Collection[T, P]) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	query := "DELETE FROM " + c.table
	var args []any
	if len(f) > 0 {
		b, err := json.Marshal(f)
		if err != nil {
			return 0, fmt.Errorf("encoding filter: %w", err)
		}
		query += " WHERE body @> $1::jsonb"
		args = append(args, string(b))
	}
	tag, err := c.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", c.table, err)
	}
	return tag.RowsAffected(), nil
}

// MaxInt returns the largest integer value of field across the
// collection, or 0 when it is empty.
func (c *Collection[T, P]) MaxInt(ctx context.Context, field string) (int64, error) {
	var n int64
	err := c.db.QueryRow(ctx,
		"SELECT COALESCE(MAX((body->>$1)::numeric), 0)::bigint FROM "+c.table,
		field,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("reading max %s from %s: %w", field, c.table, err)
	}
	return n, nil
}

func (c *Collection[T, P]) scan(row pgx.Row) (*T, error) {
	var (
		id   string
		body []byte
	)
	if err := row.Scan(&id, &body); err != nil {
		return nil, err
	}
	doc := new(T)
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, fmt.Errorf("decoding %s document %s: %w", c.table, id, err)
	}
	P(doc).SetDocID(id)
	return doc, nil
}
