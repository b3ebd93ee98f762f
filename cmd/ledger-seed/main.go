package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogain/ledger/internal/audit"
	"github.com/gogain/ledger/internal/ledger"
	"github.com/gogain/ledger/internal/platform/config"
	"github.com/gogain/ledger/internal/platform/database"
	"github.com/gogain/ledger/internal/platform/telemetry"
	"github.com/gogain/ledger/internal/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ledger-seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	email := flag.String("email", os.Getenv("LEDGER_SEED_EMAIL"), "super_admin email")
	password := flag.String("password", os.Getenv("LEDGER_SEED_PASSWORD"), "super_admin password")
	firstName := flag.String("first-name", envOr("LEDGER_SEED_FIRST_NAME", "Super"), "super_admin first name")
	lastName := flag.String("last-name", envOr("LEDGER_SEED_LAST_NAME", "Admin"), "super_admin last name")
	withServices := flag.Bool("services", false, "also seed the default service catalogue")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database.URL, 2)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.Database.URL, fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	auditLogger := audit.NewAsyncLogger(audit.NewStore(pool), audit.LoggerConfig{BatchSize: 1}, logger)
	defer auditLogger.Close()

	if _, err := seedAdmin(ctx, users.NewStore(pool), auditLogger, adminParams{
		Email:     *email,
		Password:  *password,
		FirstName: *firstName,
		LastName:  *lastName,
	}); err != nil {
		return err
	}

	if *withServices {
		n, err := seedServices(ctx, ledger.NewStore(pool).Services(), defaultServices)
		if err != nil {
			return err
		}
		slog.Info("services seeded", "inserted", n, "skipped", len(defaultServices)-n)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
