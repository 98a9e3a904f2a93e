package takeaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agencyflow/policy"
)

var (
	ErrNotFound    = errors.New("takeaction: not found")
	ErrInvalidNote = errors.New("takeaction: invalid note")
)

// Store persists action records.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, error)
	// Latest returns the newest record per policy number, by descending id.
	Latest(ctx context.Context, numbers []string, bob *policy.Bob) (map[string]Record, error)
	// FirstActionTimes returns the oldest record timestamp per policy number.
	FirstActionTimes(ctx context.Context, numbers []string, bob *policy.Bob) (map[string]time.Time, error)
	// ListForPolicy returns every record for number, newest first.
	ListForPolicy(ctx context.Context, number string) ([]Record, error)
}

const recordColumns = `id::text, policy_number, status, requirements, sender, bob, created_at`

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return Record{}, fmt.Errorf("takeaction: generate id: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO action_records (id, policy_number, status, requirements, sender, bob, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		RETURNING ` + recordColumns

	row := r.pool.QueryRow(ctx, query,
		rec.ID,
		rec.PolicyNumber,
		rec.Status,
		rec.Requirements,
		rec.Sender,
		rec.Bob,
		rec.CreatedAt,
	)
	out, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("takeaction: insert: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Latest(ctx context.Context, numbers []string, bob *policy.Bob) (map[string]Record, error) {
	out := make(map[string]Record, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}

	query := `SELECT DISTINCT ON (policy_number) ` + recordColumns + `
		FROM action_records
		WHERE policy_number = ANY($1)`
	args := []any{numbers}
	if bob != nil {
		query += ` AND bob = $2`
		args = append(args, string(*bob))
	}
	query += ` ORDER BY policy_number, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("takeaction: query latest: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("takeaction: scan latest: %w", err)
		}
		out[rec.PolicyNumber] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("takeaction: iterate latest: %w", err)
	}
	return out, nil
}

func (r *PGRepository) FirstActionTimes(ctx context.Context, numbers []string, bob *policy.Bob) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}

	query := `SELECT policy_number, MIN(created_at)
		FROM action_records
		WHERE policy_number = ANY($1)`
	args := []any{numbers}
	if bob != nil {
		query += ` AND bob = $2`
		args = append(args, string(*bob))
	}
	query += ` GROUP BY policy_number`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("takeaction: query first actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			number string
			at     time.Time
		)
		if err := rows.Scan(&number, &at); err != nil {
			return nil, fmt.Errorf("takeaction: scan first action: %w", err)
		}
		out[number] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("takeaction: iterate first actions: %w", err)
	}
	return out, nil
}

func (r *PGRepository) ListForPolicy(ctx context.Context, number string) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+`
		FROM action_records
		WHERE policy_number = $1
		ORDER BY id DESC`, number)
	if err != nil {
		return nil, fmt.Errorf("takeaction: list: %w", err)
	}
	defer rows.Close()

	list := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("takeaction: scan list: %w", err)
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("takeaction: iterate list: %w", err)
	}
	return list, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.PolicyNumber,
		&rec.Status,
		&rec.Requirements,
		&rec.Sender,
		&rec.Bob,
		&rec.CreatedAt,
	)
	return rec, err
}
