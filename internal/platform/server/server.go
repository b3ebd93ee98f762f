package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogain/ledger/internal/audit"
	"github.com/gogain/ledger/internal/auth"
	"github.com/gogain/ledger/internal/ledger"
	"github.com/gogain/ledger/internal/platform/httpx"
	"github.com/gogain/ledger/internal/platform/middleware"
	"github.com/gogain/ledger/internal/platform/telemetry"
	"github.com/gogain/ledger/internal/rbac"
	"github.com/gogain/ledger/internal/users"
)

const shutdownTimeout = 10 * time.Second

// Pinger is a dependency probed by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Postgres Pinger
	Redis    Pinger

	Tokens     *auth.TokenService
	Sessions   auth.SessionChecker
	Principals auth.PrincipalLoader
	Authorizer *rbac.Authorizer

	UserHandler        *users.Handler
	CenterHandler      *ledger.Resource[ledger.Center, *ledger.Center]
	ServiceHandler     *ledger.Resource[ledger.Service, *ledger.Service]
	CostHandler        *ledger.Resource[ledger.Cost, *ledger.Cost]
	ClientHandler      *ledger.Resource[ledger.Client, *ledger.Client]
	TransactionHandler *ledger.TransactionHandler
	AuditHandler       *audit.Handler

	Metrics            *telemetry.Metrics
	Responder          *httpx.Responder
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	Production         bool
	// LoginRateLimit is the number of login attempts per IP per minute.
	// Zero disables the limiter.
	LoginRateLimit int
}

type Server struct {
	httpServer *http.Server
	handler    http.Handler
	postgres   Pinger
	redis      Pinger
	logger     *slog.Logger
}

func New(addr string, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Responder == nil {
		deps.Responder = httpx.NewResponder(deps.Logger, !deps.Production)
	}
	if deps.Authorizer == nil {
		deps.Authorizer = rbac.NewAuthorizer(rbac.WithLogger(deps.Logger), rbac.WithResponder(deps.Responder))
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		postgres: deps.Postgres,
		redis:    deps.Redis,
		logger:   deps.Logger,
	}

	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReadiness)
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	if deps.Tokens != nil {
		registerRoutes(mux, deps)
	}

	var handler http.Handler = mux
	if deps.Metrics != nil {
		handler = deps.Metrics.Middleware(handler)
	}
	handler = middleware.Logging(deps.Logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.SecureHeaders(deps.Production)(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// registerRoutes mounts the authenticated API. Each protected route is
// wrapped individually so the mux pattern stays visible to the metrics
// middleware.
func registerRoutes(mux *http.ServeMux, deps Dependencies) {
	authn := auth.Middleware(deps.Tokens, deps.Sessions, deps.Principals, deps.Responder)
	protect := func(h http.HandlerFunc, guards ...rbac.Guard) http.Handler {
		return authn(deps.Authorizer.Chain(guards...)(h))
	}
	perm := rbac.RequirePermission

	if h := deps.UserHandler; h != nil {
		var login http.Handler = http.HandlerFunc(h.HandleLogin)
		if deps.LoginRateLimit > 0 {
			login = middleware.RateLimitByIP(deps.LoginRateLimit, time.Minute)(login)
		}
		mux.Handle("POST /users/login", login)
		mux.Handle("POST /users/logout", protect(h.HandleLogout))
		mux.Handle("GET /users/me", protect(h.HandleMe))
		mux.Handle("GET /users/me/permissions", protect(h.HandleMyPermissions))
		mux.Handle("POST /users", protect(h.HandleCreate,
			rbac.RequireAdmin(), perm(rbac.ModuleUsers, rbac.ActionCreate)))
		mux.Handle("GET /users", protect(h.HandleList, perm(rbac.ModuleUsers, rbac.ActionView)))
		mux.Handle("PATCH /users/{id}", protect(h.HandleUpdate,
			rbac.RequireAdmin(), perm(rbac.ModuleUsers, rbac.ActionEdit)))
		mux.Handle("PATCH /users/{id}/permissions", protect(h.HandleUpdatePermissions,
			rbac.RequireAdmin(), perm(rbac.ModuleUsers, rbac.ActionEdit)))
		mux.Handle("DELETE /users/{id}", protect(h.HandleDelete, rbac.RequireSuperAdmin()))
	}

	if h := deps.CenterHandler; h != nil {
		scope := rbac.RequireCenterAccess("id")
		mux.Handle("POST /center", protect(h.HandleCreate, perm(rbac.ModuleCenters, rbac.ActionCreate)))
		mux.Handle("GET /center", protect(h.HandleList, perm(rbac.ModuleCenters, rbac.ActionView)))
		mux.Handle("GET /center/{id}", protect(h.HandleGet, perm(rbac.ModuleCenters, rbac.ActionView), scope))
		mux.Handle("PATCH /center/{id}", protect(h.HandleUpdate, perm(rbac.ModuleCenters, rbac.ActionEdit), scope))
		mux.Handle("DELETE /center/{id}", protect(h.HandleDelete, perm(rbac.ModuleCenters, rbac.ActionDelete), scope))
	}

	if h := deps.ServiceHandler; h != nil {
		scope := rbac.RequireServiceAccess("id")
		mux.Handle("POST /service", protect(h.HandleCreate, perm(rbac.ModuleServices, rbac.ActionCreate)))
		mux.Handle("GET /service", protect(h.HandleList, perm(rbac.ModuleServices, rbac.ActionView)))
		mux.Handle("GET /service/{id}", protect(h.HandleGet, perm(rbac.ModuleServices, rbac.ActionView), scope))
		mux.Handle("PATCH /service/{id}", protect(h.HandleUpdate, perm(rbac.ModuleServices, rbac.ActionEdit), scope))
		mux.Handle("DELETE /service/{id}", protect(h.HandleDelete, perm(rbac.ModuleServices, rbac.ActionDelete), scope))
	}

	if h := deps.CostHandler; h != nil {
		mux.Handle("POST /costs", protect(h.HandleCreate, perm(rbac.ModuleCosts, rbac.ActionCreate)))
		mux.Handle("GET /costs", protect(h.HandleList, perm(rbac.ModuleCosts, rbac.ActionView)))
		mux.Handle("GET /costs/{id}", protect(h.HandleGet, perm(rbac.ModuleCosts, rbac.ActionView)))
		mux.Handle("PATCH /costs/{id}", protect(h.HandleUpdate, perm(rbac.ModuleCosts, rbac.ActionEdit)))
		mux.Handle("DELETE /costs/{id}", protect(h.HandleDelete, perm(rbac.ModuleCosts, rbac.ActionDelete)))
	}

	if h := deps.ClientHandler; h != nil {
		mux.Handle("POST /client", protect(h.HandleCreate, perm(rbac.ModuleClients, rbac.ActionCreate)))
		mux.Handle("GET /client", protect(h.HandleList, perm(rbac.ModuleClients, rbac.ActionView)))
		mux.Handle("GET /client/{id}", protect(h.HandleGet, perm(rbac.ModuleClients, rbac.ActionView)))
		mux.Handle("PATCH /client/{id}", protect(h.HandleUpdate, perm(rbac.ModuleClients, rbac.ActionEdit)))
		mux.Handle("DELETE /client/{id}", protect(h.HandleDelete, perm(rbac.ModuleClients, rbac.ActionDelete)))
		mux.Handle("DELETE /client", protect(h.HandleDeleteAll, perm(rbac.ModuleClients, rbac.ActionDelete)))
	}

	if h := deps.TransactionHandler; h != nil {
		mux.Handle("POST /transaction", protect(h.HandleCreate,
			perm(rbac.ModuleTransactions, rbac.ActionCreate), rbac.RequireCenterAccess("center")))
		mux.Handle("GET /transaction", protect(h.HandleList, perm(rbac.ModuleTransactions, rbac.ActionView)))
		mux.Handle("GET /transaction/{id}", protect(h.HandleGet, perm(rbac.ModuleTransactions, rbac.ActionView)))
		mux.Handle("PATCH /transaction/{id}", protect(h.HandleUpdate, perm(rbac.ModuleTransactions, rbac.ActionEdit)))
		mux.Handle("DELETE /transaction/{id}", protect(h.HandleDelete, perm(rbac.ModuleTransactions, rbac.ActionDelete)))
		mux.Handle("POST /transactions/batch", protect(h.HandleBatch, perm(rbac.ModuleTransactions, rbac.ActionCreate)))
		mux.Handle("GET /transactions/last-index", protect(h.HandleLastIndex, perm(rbac.ModuleTransactions, rbac.ActionView)))
	}

	if h := deps.AuditHandler; h != nil {
		mux.Handle("GET /audit/events", protect(h.HandleListEvents, rbac.RequireSuperAdmin()))
	}
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	s.logger.Info("server starting", "addr", listener.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		p    Pinger
	}{
		{"database", s.postgres},
		{"redis", s.redis},
	}
	for _, c := range checks {
		if c.p == nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": c.name + " not connected",
			})
			return
		}
		if err := c.p.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "dependency", c.name, "error", err)
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": c.name + " ping failed",
			})
			return
		}
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
