package audit

import (
	"context"

	"github.com/google/uuid"
)

// Event represents a single auditable action in the system.
type Event struct {
	UserID       *uuid.UUID // nil for system events
	Action       string     // e.g. "access.denied", "user.created"
	ResourceType string     // e.g. "user", "transaction"
	ResourceID   string
	Metadata     map[string]any
	Source       string // "api", "cli", "system"
}

const (
	ActionAccessDenied = "access.denied"

	ActionUserCreated            = "user.created"
	ActionUserUpdated            = "user.updated"
	ActionUserPermissionsUpdated = "user.permissions_updated"
	ActionUserDeleted            = "user.deleted"

	ActionSessionCreated = "session.created"
	ActionSessionRevoked = "session.revoked"
)

const (
	SourceAPI    = "api"
	SourceCLI    = "cli"
	SourceSystem = "system"
)

const ResourceUser = "user"

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }

// ParseActorID converts a user id into the nullable form stored with
// events. Malformed ids yield nil.
func ParseActorID(userID string) *uuid.UUID {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}
	return &uid
}
