package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IntentCreator tries to open competing escrow payments for the same engagement
// concurrently. The in-flight partial unique index should admit at most one.
func IntentCreator(ctx context.Context, pool *pgxpool.Pool, engagementID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO escrow_payments (engagement_id, amount, gateway_order_ref)
                                   VALUES ($1, 50000, $2)`,
			engagementID, fmt.Sprintf("order-stress-%d", rand.Int63()))
		if err != nil && !isUniqueViolation(err) { // unique violation expected under contention
			return fmt.Errorf("intent creator insert: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// PaymentVerifier flips one in-flight payment to verified and activates the
// pending engagement in the same transaction, the way the callback path does.
func PaymentVerifier(ctx context.Context, pool *pgxpool.Pool, engagementID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var paymentID string
		err = tx.QueryRow(ctx, `SELECT id FROM escrow_payments
                                 WHERE engagement_id=$1 AND status IN ('initiated','pending_verification')
                                 LIMIT 1 FOR UPDATE SKIP LOCKED`, engagementID).Scan(&paymentID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE escrow_payments SET status='verified', gateway_payment_ref=$2, updated_at=NOW() WHERE id=$1`,
				paymentID, fmt.Sprintf("pay-stress-%d", rand.Int63()))
			if err == nil {
				_, _ = tx.Exec(ctx, `UPDATE engagements SET status='active', escrow_payment_id=$2, updated_at=NOW()
                                      WHERE id=$1 AND status='pending'`, engagementID, paymentID)
				_, _ = tx.Exec(ctx, `INSERT INTO channels (engagement_id) VALUES ($1) ON CONFLICT (engagement_id) DO NOTHING`, engagementID)
				_, _ = tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ('engagement.activated', jsonb_build_object('engagement_id',$1::text))`, engagementID)
			}
		}
		if err == nil {
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Submitter races to file deliverable versions. The guarded INSERT..SELECT only
// lands when the engagement is open and budget remains; the single-pending and
// (engagement, iteration) unique indexes reject the rest.
func Submitter(ctx context.Context, pool *pgxpool.Pool, engagementID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO submissions (engagement_id, iteration_number, description, file_urls)
                                   SELECT e.id, e.used_iterations + 1, 'stress draft', ARRAY['file:///stress.bin']
                                   FROM engagements e
                                   WHERE e.id = $1
                                     AND e.status IN ('active','revision_requested')
                                     AND e.used_iterations < e.total_iterations`, engagementID)
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("submitter insert: %w", err)
		}
		_, err = pool.Exec(ctx, `UPDATE engagements SET status='active', updated_at=NOW()
                                  WHERE id=$1 AND status='revision_requested'
                                    AND EXISTS (SELECT 1 FROM submissions WHERE engagement_id=$1 AND review_outcome='pending')`, engagementID)
		if err != nil {
			return fmt.Errorf("submitter resubmit: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// Reviewer claims a pending submission and stamps a revision request, charging
// one iteration against the engagement and exhausting it on the last one.
func Reviewer(ctx context.Context, pool *pgxpool.Pool, engagementID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var submissionID string
		err = tx.QueryRow(ctx, `SELECT s.id FROM submissions s
                                 JOIN engagements e ON e.id = s.engagement_id
                                 WHERE s.engagement_id=$1 AND s.review_outcome='pending'
                                   AND e.status IN ('active','revision_requested')
                                 LIMIT 1 FOR UPDATE SKIP LOCKED`, engagementID).Scan(&submissionID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE submissions SET review_outcome='revision_requested', feedback='tighten it', reviewed_at=NOW()
                                    WHERE id=$1 AND review_outcome='pending'`, submissionID)
			if err == nil {
				_, _ = tx.Exec(ctx, `UPDATE engagements
                                      SET used_iterations = used_iterations + 1,
                                          status = CASE WHEN used_iterations + 1 >= total_iterations
                                                        THEN 'exhausted'::engagement_status
                                                        ELSE 'revision_requested'::engagement_status END,
                                          updated_at = NOW()
                                      WHERE id=$1 AND status IN ('active','revision_requested')
                                        AND used_iterations < total_iterations`, engagementID)
				_, _ = tx.Exec(ctx, `UPDATE channels c SET access_state='read_only', close_reason='iterations_exhausted', updated_at=NOW()
                                      FROM engagements e
                                      WHERE c.engagement_id=$1 AND e.id=$1 AND e.status='exhausted' AND c.access_state='open'`, engagementID)
				_, _ = tx.Exec(ctx, `INSERT INTO engagement_events (engagement_id, type, payload)
                                      VALUES ($1, 'REVISION_REQUESTED', jsonb_build_object('submission_id',$2::text))`, engagementID, submissionID)
				_, _ = tx.Exec(ctx, `INSERT INTO outbox (topic, payload)
                                      VALUES ('submission.reviewed', jsonb_build_object('engagement_id',$1::text,'submission_id',$2::text))`, engagementID, submissionID)
			}
		}
		if err == nil {
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(25+rand.Intn(40)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks
// processed, with simulated random delivery failures to exercise retries.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed', last_attempt=NOW() WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

// Disputer escalates exhausted engagements that crossed the halfway mark and
// sometimes resolves the resulting dispute.
func Disputer(ctx context.Context, pool *pgxpool.Pool, engagementID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE engagements SET status='disputed', updated_at=NOW()
                                   WHERE id=$1 AND status='exhausted' AND 2*used_iterations >= total_iterations`, engagementID)
		if err == nil && tag.RowsAffected() == 1 {
			var dispID string
			_ = tx.QueryRow(ctx, `INSERT INTO disputes (engagement_id) VALUES ($1) RETURNING id`, engagementID).Scan(&dispID)
			_, _ = tx.Exec(ctx, `UPDATE channels SET access_state='read_only', close_reason='disputed', updated_at=NOW()
                                  WHERE engagement_id=$1`, engagementID)
			if dispID != "" && rand.Intn(2) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE disputes SET status='resolved', resolved_at=NOW(), updated_at=NOW()
                                      WHERE id=$1 AND status='under_review'`, dispID)
			}
		}
		if err == nil {
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// Applicant races duplicate applications for the same gig and candidate; the
// (gig, candidate) unique constraint should let exactly one through.
func Applicant(ctx context.Context, pool *pgxpool.Pool, gigID, candidateID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id string
		err := pool.QueryRow(ctx, `INSERT INTO applications (gig_id, candidate_id, cover_note)
                                    SELECT g.id, $2, 'stress bid' FROM gigs g WHERE g.id=$1 AND g.status='open'
                                    RETURNING id`, gigID, candidateID).Scan(&id)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) && !isUniqueViolation(err) {
			return fmt.Errorf("applicant insert: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}
