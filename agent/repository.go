package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested agent does not exist.
var ErrNotFound = errors.New("agent: not found")

// Store provides read access to the agent forest.
type Store interface {
	FindByNPN(ctx context.Context, npn string) (Agent, error)
	// DirectReports returns every agent whose upline is one of uplines.
	DirectReports(ctx context.Context, uplines []string) ([]Agent, error)
	// Downline returns every NPN whose upline chain reaches root within maxDepth hops.
	// The root itself is included when it exists.
	Downline(ctx context.Context, root string, maxDepth int) ([]string, error)
}

// PGRepository reads agents from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByNPN fetches a single agent by its producer number.
func (r *PGRepository) FindByNPN(ctx context.Context, npn string) (Agent, error) {
	const query = `
		SELECT npn, upline_npn, name, created_at
		FROM agents
		WHERE npn = $1
	`

	a, err := scanAgent(r.pool.QueryRow(ctx, query, npn))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, fmt.Errorf("agent: query by npn: %w", err)
	}
	return a, nil
}

// DirectReports fetches the agents reporting to any of the given uplines.
func (r *PGRepository) DirectReports(ctx context.Context, uplines []string) ([]Agent, error) {
	if len(uplines) == 0 {
		return nil, nil
	}

	const query = `
		SELECT npn, upline_npn, name, created_at
		FROM agents
		WHERE upline_npn = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, uplines)
	if err != nil {
		return nil, fmt.Errorf("agent: direct reports: %w", err)
	}
	defer rows.Close()

	out := make([]Agent, 0, len(uplines))
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("agent: scan direct report: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agent: iterate direct reports: %w", err)
	}
	return out, nil
}

// Downline walks upline back-references with a recursive CTE bounded by maxDepth.
func (r *PGRepository) Downline(ctx context.Context, root string, maxDepth int) ([]string, error) {
	const query = `
		WITH RECURSIVE downline (npn, depth) AS (
			SELECT npn, 0
			FROM agents
			WHERE npn = $1
			UNION
			SELECT a.npn, d.depth + 1
			FROM agents a
			JOIN downline d ON a.upline_npn = d.npn
			WHERE d.depth < $2
		)
		SELECT DISTINCT npn FROM downline
	`

	rows, err := r.pool.Query(ctx, query, root, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("agent: downline: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, 16)
	for rows.Next() {
		var npn string
		if err := rows.Scan(&npn); err != nil {
			return nil, fmt.Errorf("agent: scan downline: %w", err)
		}
		out = append(out, npn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agent: iterate downline: %w", err)
	}
	return out, nil
}

// Upsert inserts or re-parents an agent. Used by ingestion tooling and tests.
func (r *PGRepository) Upsert(ctx context.Context, a Agent) error {
	const query = `
		INSERT INTO agents (npn, upline_npn, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (npn) DO UPDATE
		SET upline_npn = EXCLUDED.upline_npn,
		    name = EXCLUDED.name
	`
	if _, err := r.pool.Exec(ctx, query, a.NPN, a.UplineNPN, a.Name); err != nil {
		return fmt.Errorf("agent: upsert: %w", err)
	}
	return nil
}

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.NPN, &a.UplineNPN, &a.Name, &a.CreatedAt)
	return a, err
}
