package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabase means no DSN was given, Docker is unavailable and no local
// server accepted an admin connection.
var ErrNoDatabase = errors.New("infra: no database available")

// Database is a Postgres server the tests may migrate into.
type Database struct {
	DSN string
	// Shared marks a caller-owned database; migrate it into an isolated schema.
	Shared  bool
	release func(context.Context) error
}

// Release stops or drops whatever Acquire provisioned. Shared databases are left alone.
func (d *Database) Release(ctx context.Context) error {
	if d == nil || d.release == nil {
		return nil
	}
	return d.release(ctx)
}

// Acquire picks a database in order: override, DATABASE_URL,
// STRESS_TEST_PG_DSN, a Postgres container, then a private database on a
// local server.
func Acquire(ctx context.Context, override string) (*Database, error) {
	for _, dsn := range []string{override, os.Getenv("DATABASE_URL"), os.Getenv("STRESS_TEST_PG_DSN")} {
		if dsn != "" {
			return &Database{DSN: dsn, Shared: true}, nil
		}
	}
	if DockerAvailable(ctx) {
		return containerDatabase(ctx)
	}
	db, err := localDatabase(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDatabase, err)
	}
	return db, nil
}

// TestPool returns a migrated pool in a throwaway schema and skips the test
// when no database can be acquired.
func TestPool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Acquire(ctx, "")
	if errors.Is(err, ErrNoDatabase) {
		t.Skipf("skipping integration test: %v", err)
	}
	if err != nil {
		t.Fatalf("acquire database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Release(context.Background()); err != nil {
			t.Logf("release warning: %v", err)
		}
	})

	pool, teardown, err := ApplyMigrations(ctx, db.DSN, true)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	})
	return pool
}
