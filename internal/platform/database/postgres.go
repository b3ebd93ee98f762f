package database

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags ledger connections in pg_stat_activity.
const ApplicationName = "ledger"

// Pool is the shared connection pool. Stores take it as a Querier; the
// document collections also use it to begin transactions.
type Pool = pgxpool.Pool

// PoolConfig parses databaseURL and applies the ledger's pool settings.
// maxConns <= 0 keeps the pgx default.
func PoolConfig(databaseURL string, maxConns int) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	if maxConns > 0 && maxConns <= math.MaxInt32 {
		cfg.MaxConns = int32(maxConns) // #nosec G115 -- bounds checked above
	}
	cfg.HealthCheckPeriod = 30 * time.Second
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	return cfg, nil
}

// Connect opens the pool and fails fast when the server is unreachable.
// Callers own the pool and must Close it on shutdown.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*Pool, error) {
	cfg, err := PoolConfig(databaseURL, maxConns)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
