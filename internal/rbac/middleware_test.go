package rbac_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/gogain/ledger/internal/audit"
	"github.com/gogain/ledger/internal/platform/telemetry"
	"github.com/gogain/ledger/internal/rbac"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAudit) Log(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

type countingRecorder struct {
	outcomes []string
}

func (c *countingRecorder) RecordDecision(outcome, reason string) {
	c.outcomes = append(c.outcomes, outcome+":"+reason)
}

func withPrincipal(r *http.Request, p *rbac.Principal) *http.Request {
	return r.WithContext(rbac.WithPrincipal(r.Context(), p))
}

func okHandler(t *testing.T, reached *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*reached = true
		w.WriteHeader(http.StatusOK)
	})
}

func body(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&m))
	return m
}

func TestChain_NoPrincipal(t *testing.T) {
	reached := false
	handler := rbac.Chain(rbac.RequirePermission(rbac.ModuleClients, rbac.ActionView))(okHandler(t, &reached))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/client", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authentication required", body(t, w)["message"])
	assert.False(t, reached)
}

func TestChain_NoGuardsOnlyRequiresPrincipal(t *testing.T) {
	reached := false
	handler := rbac.Chain()(okHandler(t, &reached))

	w := httptest.NewRecorder()
	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/users/me", nil), principal(rbac.RoleViewer, nil, nil))
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, reached)
}

func TestRequirePermission_Allowed(t *testing.T) {
	rec := &countingRecorder{}
	authz := rbac.NewAuthorizer(rbac.WithDecisionRecorder(rec), rbac.WithLogger(telemetry.Discard()))
	reached := false
	handler := authz.Chain(rbac.RequirePermission(rbac.ModuleClients, rbac.ActionCreate))(okHandler(t, &reached))

	w := httptest.NewRecorder()
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/client", nil), principal(rbac.RoleWorker, nil, nil))
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, reached)
	assert.Equal(t, []string{"allowed:"}, rec.outcomes)
}

func TestRequirePermission_ViewerCannotCreateClient(t *testing.T) {
	auditLog := &recordingAudit{}
	rec := &countingRecorder{}
	authz := rbac.NewAuthorizer(
		rbac.WithAuditLogger(auditLog),
		rbac.WithDecisionRecorder(rec),
		rbac.WithLogger(telemetry.Discard()),
	)
	handler := authz.Chain(rbac.RequirePermission(rbac.ModuleClients, rbac.ActionCreate))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("should not reach handler")
		}),
	)

	viewer := rbac.NewPrincipal("3f1c2d4e-5b6a-4c7d-8e9f-0a1b2c3d4e5f", "v@example.com", rbac.RoleViewer, nil, nil, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodPost, "/client", nil), viewer))

	assert.Equal(t, http.StatusForbidden, w.Code)
	b := body(t, w)
	assert.Equal(t, "Access denied. You don't have permission to create clients.", b["message"])
	assert.Equal(t, "clients:create", b["requiredPermission"])
	assert.Equal(t, "viewer", b["userRole"])

	require.Len(t, auditLog.events, 1)
	evt := auditLog.events[0]
	assert.Equal(t, audit.ActionAccessDenied, evt.Action)
	require.NotNil(t, evt.UserID)
	assert.Equal(t, viewer.UserID, evt.UserID.String())
	assert.Equal(t, "permission", evt.Metadata["reason"])
	assert.Equal(t, []string{"denied:permission"}, rec.outcomes)
}

func TestChain_FirstDenialWins(t *testing.T) {
	var order []string
	g := func(name string, err error) rbac.Guard {
		return func(*http.Request, *rbac.Principal) error {
			order = append(order, name)
			return err
		}
	}
	p := principal(rbac.RoleViewer, nil, nil)
	handler := rbac.Chain(
		g("first", nil),
		g("second", rbac.PermissionDenied(p, rbac.ModuleUsers, rbac.ActionView)),
		g("third", nil),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/users", nil), p))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRequireCenterAccess_FromPath(t *testing.T) {
	mux := http.NewServeMux()
	reached := false
	mux.Handle("GET /center/{id}", rbac.Chain(rbac.RequireCenterAccess("id"))(okHandler(t, &reached)))
	p := principal(rbac.RoleWorker, []string{"A"}, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/center/A", nil), p))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, reached)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/center/B", nil), p))
	assert.Equal(t, http.StatusForbidden, w.Code)
	b := body(t, w)
	assert.Equal(t, "B", b["centerId"])
	assert.Equal(t, "worker", b["userRole"])
	assert.Equal(t, []any{"A"}, b["assignedCenters"])
}

func TestRequireCenterAccess_FromBodyIsRestored(t *testing.T) {
	var seen string
	handler := rbac.Chain(rbac.RequireCenterAccess("centerId"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	p := principal(rbac.RoleWorker, []string{"A"}, nil)

	payload := `{"centerId":"A","name":"x"}`
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodPost, "/report", strings.NewReader(payload)), p))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, seen)
}

func TestRequireCenterAccess_PathBeatsBodyBeatsQuery(t *testing.T) {
	mux := http.NewServeMux()
	reached := false
	mux.Handle("POST /center/{centerId}/report", rbac.Chain(rbac.RequireCenterAccess("centerId"))(okHandler(t, &reached)))
	p := principal(rbac.RoleWorker, []string{"A"}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/center/A/report?centerId=B", strings.NewReader(`{"centerId":"B"}`))
	mux.ServeHTTP(w, withPrincipal(req, p))
	assert.Equal(t, http.StatusOK, w.Code)

	handler := rbac.Chain(rbac.RequireCenterAccess("centerId"))(okHandler(t, &reached))
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/report?centerId=A", strings.NewReader(`{"centerId":"B"}`))
	handler.ServeHTTP(w, withPrincipal(req, p))
	assert.Equal(t, http.StatusForbidden, w.Code, "body wins over query")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/report?centerId=A", nil)
	handler.ServeHTTP(w, withPrincipal(req, p))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireCenterAccess_MissingIDIsClientError(t *testing.T) {
	handler := rbac.Chain(rbac.RequireCenterAccess("centerId"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/report", nil), principal(rbac.RoleWorker, nil, nil)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Center ID is required", body(t, w)["message"])
}

func TestRequireServiceAccess(t *testing.T) {
	handler := rbac.Chain(rbac.RequireServiceAccess("serviceId"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	p := principal(rbac.RoleWorker, nil, []string{"svc-1"})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/x?serviceId=svc-1", nil), p))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/x?serviceId=svc-2", nil), p))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "svc-2", body(t, w)["serviceId"])

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/x", nil), p))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Service ID is required", body(t, w)["message"])
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		role rbac.Role
		want int
	}{
		{rbac.RoleSuperAdmin, http.StatusOK},
		{rbac.RoleAdmin, http.StatusOK},
		{rbac.RoleManager, http.StatusForbidden},
		{rbac.RoleViewer, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			reached := false
			handler := rbac.Chain(rbac.RequireAdmin())(okHandler(t, &reached))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodPost, "/users", nil), principal(tt.role, nil, nil)))
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, []any{"admin", "super_admin"}, body(t, w)["requiredRoles"])
			}
		})
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	reached := false
	handler := rbac.Chain(rbac.RequireSuperAdmin())(okHandler(t, &reached))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodDelete, "/users/x", nil), principal(rbac.RoleAdmin, nil, nil)))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "super_admin", body(t, w)["requiredRole"])
	assert.False(t, reached)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodDelete, "/users/x", nil), principal(rbac.RoleSuperAdmin, nil, nil)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, reached)
}

func TestRequireAdmin_ThenPermission(t *testing.T) {
	// An admin whose users:create was revoked passes the role gate but
	// not the permission gate.
	admin := rbac.NewPrincipal("a", "a@example.com", rbac.RoleAdmin, rbac.Overrides{
		rbac.ModuleUsers: {rbac.ActionCreate: false},
	}, nil, nil)
	reached := false
	handler := rbac.Chain(rbac.RequireAdmin(), rbac.RequirePermission(rbac.ModuleUsers, rbac.ActionCreate))(okHandler(t, &reached))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withPrincipal(httptest.NewRequest(http.MethodPost, "/users", nil), admin))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "users:create", body(t, w)["requiredPermission"])
	assert.False(t, reached)
}
