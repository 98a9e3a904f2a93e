package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns          = 16
	defaultHealthCheckPeriod = 30 * time.Second
	pingTimeout              = 5 * time.Second
)

// NewPool constructs a pgx connection pool and verifies the server is
// reachable.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return pool, nil
}

// ParseConfig parses connString and fills in pool defaults. pool_max_conns and
// pool_health_check_period given in the connection string are kept as is;
// otherwise MaxConns is raised to at least 16.
func ParseConfig(connString string) (*pgxpool.Config, error) {
	if connString == "" {
		return nil, fmt.Errorf("db: empty connection string")
	}
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("db: parse config: %w", err)
	}
	if cfg.ConnConfig.RuntimeParams["application_name"] == "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = "agencyflow"
	}
	if !strings.Contains(connString, "pool_max_conns") && cfg.MaxConns < defaultMaxConns {
		cfg.MaxConns = defaultMaxConns
	}
	if !strings.Contains(connString, "pool_health_check_period") {
		cfg.HealthCheckPeriod = defaultHealthCheckPeriod
	}
	return cfg, nil
}
