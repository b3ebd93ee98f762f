package ledger_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/gogain/ledger/internal/platform/httpx"
	"github.com/gogain/ledger/internal/platform/telemetry"
	"github.com/gogain/ledger/internal/rbac"
)

func responder() *httpx.Responder {
	return httpx.NewResponder(telemetry.Discard(), false)
}

func principal(role rbac.Role, centers, services []string) *rbac.Principal {
	return rbac.NewPrincipal("00000000-0000-4000-8000-000000000001", "u@gogain.com", role, nil, centers, services)
}

// do routes one request through a mux that registers h under pattern,
// optionally behind guards.
func do(t *testing.T, p *rbac.Principal, pattern string, h http.HandlerFunc, method, target string, body any, guards ...rbac.Guard) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if p != nil {
		req = req.WithContext(rbac.WithPrincipal(req.Context(), p))
	}

	var handler http.Handler = h
	if len(guards) > 0 {
		handler = rbac.NewAuthorizer(rbac.WithLogger(telemetry.Discard())).Chain(guards...)(h)
	}
	mux := http.NewServeMux()
	mux.Handle(pattern, handler)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func body(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
