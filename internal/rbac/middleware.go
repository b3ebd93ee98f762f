package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gogain/ledger/internal/audit"
	"github.com/gogain/ledger/internal/platform/httpx"
)

// Guard inspects a request on behalf of an already-resolved principal.
// Returning nil lets the request continue to the next stage; any error
// terminates it. Guards return *httpx.Error values.
type Guard func(r *http.Request, p *Principal) error

// AuditLogger receives one event per denied request.
type AuditLogger interface {
	Log(ctx context.Context, event audit.Event)
}

// DecisionRecorder counts guard outcomes.
type DecisionRecorder interface {
	RecordDecision(outcome, reason string)
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithAuditLogger attaches an audit logger to log denials.
func WithAuditLogger(l AuditLogger) Option {
	return func(a *Authorizer) { a.audit = l }
}

func WithDecisionRecorder(rec DecisionRecorder) Option {
	return func(a *Authorizer) { a.recorder = rec }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Authorizer) { a.logger = l }
}

func WithResponder(rs *httpx.Responder) Option {
	return func(a *Authorizer) { a.responder = rs }
}

// Authorizer builds guard chains that share one set of collaborators.
type Authorizer struct {
	audit     AuditLogger
	recorder  DecisionRecorder
	logger    *slog.Logger
	responder *httpx.Responder
}

func NewAuthorizer(opts ...Option) *Authorizer {
	a := &Authorizer{}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.responder == nil {
		a.responder = httpx.NewResponder(a.logger, false)
	}
	return a
}

// Chain returns middleware that runs guards in order against the principal
// stored in the request context. A request without a principal is
// rejected with 401; the first guard error ends the request and the
// wrapped handler never runs.
func (a *Authorizer) Chain(guards ...Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				a.responder.Error(w, r, httpx.Unauthenticated("Authentication required"))
				return
			}

			for _, g := range guards {
				if err := g(r, p); err != nil {
					a.reject(w, r, p, err)
					return
				}
			}

			if len(guards) > 0 && a.recorder != nil {
				a.recorder.RecordDecision("allowed", "")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain builds a chain with default collaborators.
func Chain(guards ...Guard) func(http.Handler) http.Handler {
	return NewAuthorizer().Chain(guards...)
}

func (a *Authorizer) reject(w http.ResponseWriter, r *http.Request, p *Principal, err error) {
	var e *httpx.Error
	if errors.As(err, &e) && e.Kind == httpx.KindAuthorization {
		reason := denialReason(e)
		a.logger.Warn("access denied",
			"user_id", p.UserID,
			"role", p.Role,
			"method", r.Method,
			"path", r.URL.Path,
			"reason", reason,
		)
		if a.recorder != nil {
			a.recorder.RecordDecision("denied", reason)
		}
		if a.audit != nil {
			meta := map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
				"reason": reason,
			}
			for k, v := range e.Fields {
				meta[k] = v
			}
			a.audit.Log(r.Context(), audit.Event{
				UserID:   audit.ParseActorID(p.UserID),
				Action:   audit.ActionAccessDenied,
				Metadata: meta,
				Source:   audit.SourceAPI,
			})
		}
	}
	a.responder.Error(w, r, err)
}

func denialReason(e *httpx.Error) string {
	switch {
	case e.Fields["requiredPermission"] != nil:
		return "permission"
	case e.Fields["centerId"] != nil:
		return "center"
	case e.Fields["serviceId"] != nil:
		return "service"
	case e.Fields["requiredRoles"] != nil, e.Fields["requiredRole"] != nil:
		return "role"
	default:
		return "other"
	}
}

// PermissionDenied is the error RequirePermission returns. Handlers use it
// for checks that depend on the request body.
func PermissionDenied(p *Principal, module Module, action Action) *httpx.Error {
	return httpx.Denied(
		fmt.Sprintf("Access denied. You don't have permission to %s %s.", action, module),
		map[string]any{
			"requiredPermission": Permission(module, action),
			"userRole":           p.Role,
		},
	)
}

// CenterDenied is the error for an inaccessible center.
func CenterDenied(p *Principal, centerID string) *httpx.Error {
	return httpx.Denied("Access denied. You don't have permission to access this center.", map[string]any{
		"centerId":        centerID,
		"userRole":        p.Role,
		"assignedCenters": p.AssignedCenters,
	})
}

// ServiceDenied is the error for an inaccessible service.
func ServiceDenied(p *Principal, serviceID string) *httpx.Error {
	return httpx.Denied("Access denied. You don't have permission to access this service.", map[string]any{
		"serviceId":        serviceID,
		"userRole":         p.Role,
		"assignedServices": p.AssignedServices,
	})
}

// RequirePermission admits principals whose effective matrix grants
// module:action.
func RequirePermission(module Module, action Action) Guard {
	return func(_ *http.Request, p *Principal) error {
		if !p.HasPermission(module, action) {
			return PermissionDenied(p, module, action)
		}
		return nil
	}
}

// RequireCenterAccess resolves a center id from the path value, JSON body
// or query parameter named param (in that order) and checks it against
// the principal's scope.
func RequireCenterAccess(param string) Guard {
	return func(r *http.Request, p *Principal) error {
		id, err := resolveRef(r, param)
		if err != nil {
			return err
		}
		if id == "" {
			return httpx.Invalid("Center ID is required", map[string]string{param: "required"})
		}
		if !p.CanAccessCenter(id) {
			return CenterDenied(p, id)
		}
		return nil
	}
}

// RequireServiceAccess is RequireCenterAccess for services.
func RequireServiceAccess(param string) Guard {
	return func(r *http.Request, p *Principal) error {
		id, err := resolveRef(r, param)
		if err != nil {
			return err
		}
		if id == "" {
			return httpx.Invalid("Service ID is required", map[string]string{param: "required"})
		}
		if !p.CanAccessService(id) {
			return ServiceDenied(p, id)
		}
		return nil
	}
}

// RequireAdmin admits admin and super_admin regardless of the matrix.
func RequireAdmin() Guard {
	return func(_ *http.Request, p *Principal) error {
		if !p.IsAdmin() {
			return httpx.Denied("Access denied. Admin privileges required.", map[string]any{
				"requiredRoles": []Role{RoleAdmin, RoleSuperAdmin},
				"userRole":      p.Role,
			})
		}
		return nil
	}
}

// RequireSuperAdmin admits super_admin only.
func RequireSuperAdmin() Guard {
	return func(_ *http.Request, p *Principal) error {
		if !p.IsSuperAdmin() {
			return httpx.Denied("Access denied. Super admin privileges required.", map[string]any{
				"requiredRole": RoleSuperAdmin,
				"userRole":     p.Role,
			})
		}
		return nil
	}
}

// resolveRef looks param up in the path, then the JSON body, then the query.
func resolveRef(r *http.Request, param string) (string, error) {
	if v := strings.TrimSpace(r.PathValue(param)); v != "" {
		return v, nil
	}
	v, err := bodyValue(r, param)
	if err != nil {
		return "", err
	}
	if v != "" {
		return v, nil
	}
	return strings.TrimSpace(r.URL.Query().Get(param)), nil
}

// bodyValue peeks at a JSON object body and restores it for the handler.
func bodyValue(r *http.Request, key string) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, httpx.MaxBodyBytes))
	if err != nil {
		return "", httpx.Invalid("invalid request body", nil)
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}

	trimmed := bytes.TrimSpace(buf)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		// The handler reports malformed bodies itself.
		return "", nil
	}
	var s string
	if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s), nil
	}
	return "", nil
}
