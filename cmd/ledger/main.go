package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogain/ledger/internal/audit"
	"github.com/gogain/ledger/internal/auth"
	"github.com/gogain/ledger/internal/ledger"
	"github.com/gogain/ledger/internal/platform/cache"
	"github.com/gogain/ledger/internal/platform/config"
	"github.com/gogain/ledger/internal/platform/database"
	"github.com/gogain/ledger/internal/platform/httpx"
	"github.com/gogain/ledger/internal/platform/server"
	"github.com/gogain/ledger/internal/platform/telemetry"
	"github.com/gogain/ledger/internal/rbac"
	"github.com/gogain/ledger/internal/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	// Setup logging
	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("ledger starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Database
	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
	if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("migrations complete")

	// Sessions
	rdb, err := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()
	sessions := auth.NewSessionStore(rdb)

	// Audit
	auditStore := audit.NewStore(pool)
	auditLogger := audit.NewAsyncLogger(auditStore, audit.LoggerConfig{
		BufferSize: cfg.Audit.BufferSize,
		BatchSize:  cfg.Audit.BatchSize,
	}, logger)
	defer auditLogger.Close()

	metrics := telemetry.NewMetrics()
	responder := httpx.NewResponder(logger, !cfg.IsProduction())
	authorizer := rbac.NewAuthorizer(
		rbac.WithAuditLogger(auditLogger),
		rbac.WithDecisionRecorder(metrics),
		rbac.WithLogger(logger),
		rbac.WithResponder(responder),
	)

	tokens := auth.NewTokenService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.ExpiryHours)
	userStore := users.NewStore(pool)
	books := ledger.NewStore(pool)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		Postgres: pool,
		Redis: server.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
		Tokens:     tokens,
		Sessions:   sessions,
		Principals: userStore,
		Authorizer: authorizer,

		UserHandler: users.NewHandler(userStore, sessions, tokens, auditLogger, responder),
		CenterHandler: ledger.NewResource[ledger.Center](
			"center", "Center", rbac.DataCenters, books.Centers(), responder),
		ServiceHandler: ledger.NewResource[ledger.Service](
			"service", "Service", rbac.DataServices, books.Services(), responder),
		CostHandler: ledger.NewResource[ledger.Cost](
			"costs", "Costs", rbac.DataCosts, books.Costs(), responder),
		ClientHandler: ledger.NewResource[ledger.Client](
			"client", "Client", rbac.DataClients, books.Clients(), responder),
		TransactionHandler: ledger.NewTransactionHandler(books, responder),
		AuditHandler:       audit.NewHandler(auditStore, responder),

		Metrics:            metrics,
		Responder:          responder,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORS.Origins,
		Production:         cfg.IsProduction(),
		LoginRateLimit:     cfg.RateLimit.Login,
	})

	return srv.Start(ctx)
}

// validateConfig rejects settings the server cannot run with.
func validateConfig(cfg *config.Config) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if len(cfg.Auth.SigningKey) < 32 {
		return fmt.Errorf("auth.signingkey must be at least 32 bytes")
	}
	if cfg.Auth.ExpiryHours <= 0 {
		return fmt.Errorf("auth.expiryhours must be positive")
	}
	return nil
}
