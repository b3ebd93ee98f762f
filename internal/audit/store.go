package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gogain/ledger/internal/platform/database"
)

// Store handles audit event persistence.
type Store struct {
	db database.Querier
}

func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

// InsertBatch writes a batch of events in a single statement.
func (s *Store) InsertBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(user_id, action, resource_type, resource_id, metadata, source)"
	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*6)

	for i, e := range events {
		base := i * 6
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))

		var metaJSON []byte
		if e.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		args = append(args, e.UserID, e.Action, nullable(e.ResourceType), nullable(e.ResourceID), metaJSON, e.Source)
	}

	sql := fmt.Sprintf("INSERT INTO audit_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ListEventsParams defines filters for querying audit events.
type ListEventsParams struct {
	Action       *string
	ResourceType *string
	UserID       *uuid.UUID
	Source       *string
	After        *time.Time
	Before       *time.Time
	Limit        int
}

// StoredEvent is an Event as read back from the store.
type StoredEvent struct {
	ID           uuid.UUID       `json:"id"`
	UserID       *uuid.UUID      `json:"userId"`
	Action       string          `json:"action"`
	ResourceType *string         `json:"resourceType"`
	ResourceID   *string         `json:"resourceId"`
	Metadata     json.RawMessage `json:"metadata"`
	Source       string          `json:"source"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// List returns events matching p, newest first.
func (s *Store) List(ctx context.Context, p ListEventsParams) ([]StoredEvent, error) {
	sql, args := buildListQuery(p)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	events := []StoredEvent{}
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Metadata, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	return events, nil
}

// buildListQuery constructs a parameterized SELECT for audit events.
func buildListQuery(p ListEventsParams) (string, []any) {
	var conditions []string
	var args []any
	argN := 1

	add := func(cond string, v any) {
		conditions = append(conditions, fmt.Sprintf(cond, argN))
		args = append(args, v)
		argN++
	}

	if p.Action != nil {
		add("action = $%d", *p.Action)
	}
	if p.ResourceType != nil {
		add("resource_type = $%d", *p.ResourceType)
	}
	if p.UserID != nil {
		add("user_id = $%d", *p.UserID)
	}
	if p.Source != nil {
		add("source = $%d", *p.Source)
	}
	if p.After != nil {
		add("created_at > $%d", *p.After)
	}
	if p.Before != nil {
		add("created_at < $%d", *p.Before)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	sql := fmt.Sprintf(
		`SELECT id, user_id, action, resource_type, resource_id, metadata, source, created_at
		FROM audit_events
		%s
		ORDER BY created_at DESC
		LIMIT $%d`,
		where, argN,
	)
	args = append(args, p.Limit)

	return sql, args
}
