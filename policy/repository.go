package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Page controls ordering and windowing for Find. Limit 0 returns every row.
type Page struct {
	Offset  int
	Limit   int
	SortKey string
	Desc    bool
}

// ProductPremium is one row of the premium-by-product rollup.
type ProductPremium struct {
	Product      string
	Policies     int
	TotalPremium decimal.Decimal
}

// Store is the policy persistence contract consumed by the analytics engine.
type Store interface {
	Find(ctx context.Context, pred Predicate, page Page) ([]Policy, error)
	Count(ctx context.Context, pred Predicate) (int, error)
	CountByStatus(ctx context.Context, pred Predicate) (map[Status]int, error)
	PremiumByProduct(ctx context.Context, pred Predicate) ([]ProductPremium, error)
	GetByID(ctx context.Context, id string) (Policy, error)
	GetByNumber(ctx context.Context, number string) (Policy, error)
	// Transition loads the policy under a row lock, applies fn and persists the
	// action-status fields. fn errors abort without writing.
	Transition(ctx context.Context, id string, fn func(*Policy) error) (Policy, error)
	// StampFirstTakeAction sets first_take_action_date only when it is unset.
	StampFirstTakeAction(ctx context.Context, number string, at time.Time) error
}

const policyColumns = `id::text, policy_number, owner_npn, agent_name, client_name, carrier, product,
	received_date, status, action_status, bob, annualized_premium::text,
	action_completed_date, first_take_action_date, created_at, updated_at`

// PGRepository stores policies in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Find(ctx context.Context, pred Predicate, page Page) ([]Policy, error) {
	where, args := compile(pred)
	order := "DESC"
	if !page.Desc {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM policies%s ORDER BY %s %s, policy_number ASC`,
		policyColumns, where, mapSortKey(page.SortKey), order)
	if page.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, max(page.Offset, 0))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("policy: query find: %w", err)
	}
	defer rows.Close()

	list := []Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("policy: scan find: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("policy: iterate find: %w", err)
	}
	return list, nil
}

func (r *PGRepository) Count(ctx context.Context, pred Predicate) (int, error) {
	where, args := compile(pred)
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM policies"+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("policy: count: %w", err)
	}
	return total, nil
}

func (r *PGRepository) CountByStatus(ctx context.Context, pred Predicate) (map[Status]int, error) {
	where, args := compile(pred)
	rows, err := r.pool.Query(ctx, "SELECT status, COUNT(*) FROM policies"+where+" GROUP BY status", args...)
	if err != nil {
		return nil, fmt.Errorf("policy: count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var (
			status Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("policy: scan status count: %w", err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("policy: iterate status counts: %w", err)
	}
	return out, nil
}

func (r *PGRepository) PremiumByProduct(ctx context.Context, pred Predicate) ([]ProductPremium, error) {
	where, args := compile(pred)
	query := `SELECT product, COUNT(*), COALESCE(SUM(annualized_premium), 0)::text
		FROM policies` + where + `
		GROUP BY product
		ORDER BY SUM(annualized_premium) DESC NULLS LAST, product ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("policy: premium by product: %w", err)
	}
	defer rows.Close()

	var out []ProductPremium
	for rows.Next() {
		var (
			row   ProductPremium
			total string
		)
		if err := rows.Scan(&row.Product, &row.Policies, &total); err != nil {
			return nil, fmt.Errorf("policy: scan premium: %w", err)
		}
		if row.TotalPremium, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("policy: parse premium: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("policy: iterate premium: %w", err)
	}
	return out, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Policy, error) {
	return r.getOne(ctx, r.pool, "id::text = $1", id, false)
}

func (r *PGRepository) GetByNumber(ctx context.Context, number string) (Policy, error) {
	return r.getOne(ctx, r.pool, "policy_number = $1", number, false)
}

func (r *PGRepository) getOne(ctx context.Context, q pgxQuerier, cond, arg string, lock bool) (Policy, error) {
	query := fmt.Sprintf("SELECT %s FROM policies WHERE %s", policyColumns, cond)
	if lock {
		query += " FOR UPDATE"
	}
	p, err := scanPolicy(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, ErrNotFound
		}
		return Policy{}, fmt.Errorf("policy: get: %w", err)
	}
	return p, nil
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PGRepository) Transition(ctx context.Context, id string, fn func(*Policy) error) (Policy, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := r.getOne(ctx, tx, "id::text = $1", id, true)
	if err != nil {
		return Policy{}, err
	}
	if err := fn(&p); err != nil {
		return Policy{}, err
	}

	const update = `
		UPDATE policies
		SET action_status = $2,
		    action_completed_date = $3,
		    first_take_action_date = $4,
		    updated_at = now()
		WHERE id::text = $1
		RETURNING updated_at
	`
	if err := tx.QueryRow(ctx, update, id, p.ActionStatus, p.ActionCompletedDate, p.FirstTakeActionDate).Scan(&p.UpdatedAt); err != nil {
		return Policy{}, fmt.Errorf("policy: update action status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Policy{}, fmt.Errorf("policy: commit transition: %w", err)
	}
	return p, nil
}

func (r *PGRepository) StampFirstTakeAction(ctx context.Context, number string, at time.Time) error {
	const query = `
		UPDATE policies
		SET first_take_action_date = $2, updated_at = now()
		WHERE policy_number = $1 AND first_take_action_date IS NULL
	`
	if _, err := r.pool.Exec(ctx, query, number, at); err != nil {
		return fmt.Errorf("policy: stamp first take action: %w", err)
	}
	return nil
}

// Upsert writes a policy keyed by policy number. Carrier is normalized on the
// way in so stored values match filter input.
func (r *PGRepository) Upsert(ctx context.Context, p Policy) (Policy, error) {
	if p.ActionStatus == "" {
		p.ActionStatus = ActionPending
	}
	const query = `
		INSERT INTO policies (policy_number, owner_npn, agent_name, client_name, carrier, product,
			received_date, status, action_status, bob, annualized_premium)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::numeric)
		ON CONFLICT (policy_number) DO UPDATE
		SET owner_npn = EXCLUDED.owner_npn,
		    agent_name = EXCLUDED.agent_name,
		    client_name = EXCLUDED.client_name,
		    carrier = EXCLUDED.carrier,
		    product = EXCLUDED.product,
		    received_date = EXCLUDED.received_date,
		    status = EXCLUDED.status,
		    bob = EXCLUDED.bob,
		    annualized_premium = EXCLUDED.annualized_premium,
		    updated_at = now()
		RETURNING ` + policyColumns

	row := r.pool.QueryRow(ctx, query,
		p.PolicyNumber,
		p.OwnerNPN,
		p.AgentName,
		p.ClientName,
		NormalizeCarrier(p.Carrier),
		p.Product,
		p.ReceivedDate,
		p.Status,
		p.ActionStatus,
		p.Bob,
		p.AnnualizedPremium.String(),
	)
	out, err := scanPolicy(row)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: upsert: %w", err)
	}
	return out, nil
}

// compile renders the predicate as a WHERE clause with positional arguments.
func compile(p Predicate) (string, []any) {
	where := []string{"1=1"}
	args := []any{}
	add := func(format string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(format, len(args)))
	}

	if p.Owners != nil {
		add("owner_npn = ANY($%d)", p.Owners)
	}
	if p.Bob != nil {
		add("bob = $%d", string(*p.Bob))
	}
	if p.ReceivedFrom != nil {
		add("received_date >= $%d", *p.ReceivedFrom)
	}
	if p.ReceivedTo != nil {
		add("received_date <= $%d", *p.ReceivedTo)
	}
	if len(p.Carriers) > 0 {
		add("carrier = ANY($%d)", p.Carriers)
	}
	if p.PolicyNumbers != nil {
		add("policy_number = ANY($%d)", p.PolicyNumbers)
	}
	if p.Statuses != nil {
		add("status = ANY($%d)", toStrings(p.Statuses))
	}
	if p.ActionStatuses != nil {
		add("action_status = ANY($%d)", toStrings(p.ActionStatuses))
	}
	if len(p.ExcludeActionStatuses) > 0 {
		add("action_status <> ALL($%d)", toStrings(p.ExcludeActionStatuses))
	}
	if p.Search != "" {
		args = append(args, "%"+escapeLike(p.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(agent_name ILIKE $%[1]d OR client_name ILIKE $%[1]d OR policy_number ILIKE $%[1]d OR owner_npn ILIKE $%[1]d)", n))
	}

	return " WHERE " + strings.Join(where, " AND "), args
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanPolicy(row pgx.Row) (Policy, error) {
	var (
		p       Policy
		premium string
	)
	if err := row.Scan(
		&p.ID,
		&p.PolicyNumber,
		&p.OwnerNPN,
		&p.AgentName,
		&p.ClientName,
		&p.Carrier,
		&p.Product,
		&p.ReceivedDate,
		&p.Status,
		&p.ActionStatus,
		&p.Bob,
		&premium,
		&p.ActionCompletedDate,
		&p.FirstTakeActionDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return Policy{}, err
	}
	d, err := decimal.NewFromString(premium)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: parse premium %q: %w", premium, err)
	}
	p.AnnualizedPremium = d
	return p, nil
}

func mapSortKey(key string) string {
	switch key {
	case "policyNumber":
		return "policy_number"
	case "agentName":
		return "agent_name"
	case "clientName":
		return "client_name"
	case "carrier":
		return "carrier"
	case "status":
		return "status"
	case "premium":
		return "annualized_premium"
	case "updatedAt":
		return "updated_at"
	default:
		return "received_date"
	}
}
