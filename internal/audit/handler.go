package audit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gogain/ledger/internal/platform/httpx"
)

// EventLister reads stored events. *Store implements it.
type EventLister interface {
	List(ctx context.Context, p ListEventsParams) ([]StoredEvent, error)
}

// Handler serves audit query endpoints.
type Handler struct {
	events EventLister
	rs     *httpx.Responder
}

func NewHandler(events EventLister, rs *httpx.Responder) *Handler {
	return &Handler{events: events, rs: rs}
}

// HandleListEvents returns audit events, newest first.
// GET /audit/events?limit=50&action=access.denied&userId=<uuid>&after=<RFC3339>
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := ListEventsParams{Limit: 50}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			h.rs.Error(w, r, httpx.Invalid("invalid limit", map[string]string{"limit": "must be between 1 and 200"}))
			return
		}
		p.Limit = n
	}
	if v := q.Get("action"); v != "" {
		p.Action = &v
	}
	if v := q.Get("resourceType"); v != "" {
		p.ResourceType = &v
	}
	if v := q.Get("source"); v != "" {
		p.Source = &v
	}
	if v := q.Get("userId"); v != "" {
		uid, err := uuid.Parse(v)
		if err != nil {
			h.rs.Error(w, r, httpx.Invalid("invalid userId", map[string]string{"userId": "uuid"}))
			return
		}
		p.UserID = &uid
	}
	for key, dst := range map[string]**time.Time{"after": &p.After, "before": &p.Before} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.rs.Error(w, r, httpx.Invalid("invalid "+key, map[string]string{key: "RFC3339"}))
			return
		}
		*dst = &t
	}

	if h.events == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"events": []StoredEvent{}, "count": 0})
		return
	}

	events, err := h.events.List(r.Context(), p)
	if err != nil {
		h.rs.Error(w, r, httpx.Internal(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
