package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Responder renders errors into the JSON envelope.
type Responder struct {
	logger         *slog.Logger
	exposeInternal bool
}

// NewResponder creates a Responder. exposeInternal adds the wrapped cause
// of 500 responses to the body and must be false in production.
func NewResponder(logger *slog.Logger, exposeInternal bool) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{logger: logger, exposeInternal: exposeInternal}
}

// Error writes err. Anything that is not an *Error becomes a 500.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal(err)
	}

	body := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		body[k] = v
	}
	body["message"] = e.Message

	status := e.Status()
	if status >= http.StatusInternalServerError {
		rs.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		if rs.exposeInternal && e.Err != nil {
			body["error"] = e.Err.Error()
		}
	}

	JSON(w, status, body)
}
