package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_iteration_budget",
			SQL: `SELECT id, used_iterations, total_iterations FROM engagements
                  WHERE used_iterations > total_iterations`,
		},
		{
			Name: "O2_single_verified_payment",
			SQL: `SELECT engagement_id, COUNT(*) FROM escrow_payments
                  WHERE status = 'verified'
                  GROUP BY engagement_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_single_in_flight_payment",
			SQL: `SELECT engagement_id, COUNT(*) FROM escrow_payments
                  WHERE status IN ('initiated','pending_verification')
                  GROUP BY engagement_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_single_pending_submission",
			SQL: `SELECT engagement_id, COUNT(*) FROM submissions
                  WHERE review_outcome = 'pending'
                  GROUP BY engagement_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O5_single_live_engagement",
			SQL: `SELECT gig_id, candidate_id, COUNT(*) FROM engagements
                  WHERE status NOT IN ('completed','rejected','exhausted','disputed')
                  GROUP BY gig_id, candidate_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_channel_lock_on_close",
			SQL: `SELECT c.id, e.status FROM channels c
                  JOIN engagements e ON e.id = c.engagement_id
                  WHERE e.status IN ('completed','rejected','exhausted','disputed')
                    AND c.access_state = 'open'`,
		},
		{
			Name: "O7_iteration_sequence",
			SQL: `SELECT s.id, s.iteration_number, e.used_iterations FROM submissions s
                  JOIN engagements e ON e.id = s.engagement_id
                  WHERE s.iteration_number > e.used_iterations + 1`,
		},
		{
			Name: "O8_activation_requires_payment",
			SQL: `SELECT e.id, e.status FROM engagements e
                  WHERE e.status IN ('active','revision_requested','completed','exhausted')
                    AND (e.escrow_payment_id IS NULL
                         OR NOT EXISTS (SELECT 1 FROM escrow_payments p
                                        WHERE p.id = e.escrow_payment_id AND p.status = 'verified'))`,
		},
		{
			Name: "O9_outbox_drained",
			SQL: `SELECT id::text FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
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
