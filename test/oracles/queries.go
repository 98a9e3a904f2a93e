package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that must return no rows while the system is healthy.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_agent_self_upline",
			SQL:  `SELECT npn FROM agents WHERE upline_npn = npn`,
		},
		{
			Name: "O2_completed_without_date",
			SQL: `SELECT policy_number FROM policies
                  WHERE action_status = 'Completed' AND action_completed_date IS NULL`,
		},
		{
			Name: "O3_first_action_without_record",
			SQL: `SELECT p.policy_number FROM policies p
                  WHERE p.first_take_action_date IS NOT NULL
                    AND NOT EXISTS (SELECT 1 FROM action_records r WHERE r.policy_number = p.policy_number)`,
		},
		{
			Name: "O4_record_bob_mismatch",
			SQL: `SELECT r.id FROM action_records r
                  JOIN policies p ON p.policy_number = r.policy_number
                  WHERE r.bob <> p.bob`,
		},
		{
			Name: "O5_orphan_record",
			SQL: `SELECT r.id FROM action_records r
                  WHERE NOT EXISTS (SELECT 1 FROM policies p WHERE p.policy_number = r.policy_number)`,
		},
		{
			Name: "O6_unknown_action_status",
			SQL: `SELECT policy_number, action_status FROM policies
                  WHERE action_status NOT IN ('Pending', 'Completed', 'Rejected')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
