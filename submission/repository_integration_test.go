package submission

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gigflow/engagement"
)

// TestSubmitBlocksConcurrentReject_Integration drives Submit's insert and
// the company's reject through two live transactions against PostgreSQL.
// The reject must wait behind the submit's engagement row lock and come
// back with ErrAlreadySubmitted instead of stranding a pending submission
// on a rejected engagement.
func TestSubmitBlocksConcurrentReject_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, tbl := range []string{"companies", "users", "gigs", "engagements", "submissions"} {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, tbl).Scan(&exists); err != nil {
			t.Fatalf("check table %s: %v", tbl, err)
		}
		if !exists {
			t.Skipf("table %s does not exist; apply migrations first", tbl)
		}
	}

	mustInsert := func(query string, args ...any) string {
		var id string
		if err := pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			t.Fatalf("seed statement failed: %v", err)
		}
		return id
	}

	nano := time.Now().UnixNano()
	companyID := mustInsert(`INSERT INTO companies (name, verified) VALUES ($1, TRUE) RETURNING id`,
		fmt.Sprintf("Race Co %d", nano))
	companyUser := mustInsert(`INSERT INTO users (email, full_name, role, company_id) VALUES ($1, 'Race Owner', 'company', $2) RETURNING id`,
		fmt.Sprintf("race-owner+%d@example.com", nano), companyID)
	candidateID := mustInsert(`INSERT INTO users (email, full_name, role) VALUES ($1, 'Race Candidate', 'candidate') RETURNING id`,
		fmt.Sprintf("race-candidate+%d@example.com", nano))
	gigID := mustInsert(`
        INSERT INTO gigs (company_id, created_by_user_id, title, amount, total_iterations)
        VALUES ($1, $2, 'Race gig', 50000, 3)
        RETURNING id
    `, companyID, companyUser)
	engagementID := mustInsert(`
        INSERT INTO engagements (gig_id, company_id, candidate_id, status, total_iterations)
        VALUES ($1, $2, $3, 'active', 3)
        RETURNING id
    `, gigID, companyID, candidateID)

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM engagement_events WHERE engagement_id = $1`, engagementID)
		pool.Exec(ctx2, `DELETE FROM outbox WHERE payload->>'engagement_id' = $1`, engagementID)
		pool.Exec(ctx2, `DELETE FROM submissions WHERE engagement_id = $1`, engagementID)
		pool.Exec(ctx2, `DELETE FROM engagements WHERE id = $1`, engagementID)
		pool.Exec(ctx2, `DELETE FROM gigs WHERE id = $1`, gigID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, companyUser, candidateID)
		pool.Exec(ctx2, `DELETE FROM companies WHERE id = $1`, companyID)
	})

	repo := NewRepository()
	engagementRepo := engagement.NewRepository()

	submitTx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin submit tx: %v", err)
	}
	defer submitTx.Rollback(ctx)

	rec, err := repo.Insert(ctx, submitTx, engagementID, "first draft", []string{"file:///draft.bin"})
	if err != nil {
		t.Fatalf("insert submission: %v", err)
	}

	rejectErr := make(chan error, 1)
	go func() {
		tx, err := pool.Begin(ctx)
		if err != nil {
			rejectErr <- err
			return
		}
		defer tx.Rollback(ctx)
		if _, err := engagementRepo.Reject(ctx, tx, engagementID, companyUser); err != nil {
			rejectErr <- err
			return
		}
		rejectErr <- tx.Commit(ctx)
	}()

	// Give the reject time to reach the blocked row lock before releasing it.
	time.Sleep(250 * time.Millisecond)
	if err := submitTx.Commit(ctx); err != nil {
		t.Fatalf("commit submit: %v", err)
	}

	select {
	case err := <-rejectErr:
		if !errors.Is(err, engagement.ErrAlreadySubmitted) {
			t.Fatalf("reject after submit: got %v, want ErrAlreadySubmitted", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("reject did not return")
	}

	var status string
	if err := pool.QueryRow(ctx, `SELECT status::text FROM engagements WHERE id = $1`, engagementID).Scan(&status); err != nil {
		t.Fatalf("read engagement: %v", err)
	}
	if status != "active" {
		t.Fatalf("engagement status = %s, want active", status)
	}
	var outcome string
	if err := pool.QueryRow(ctx, `SELECT review_outcome::text FROM submissions WHERE id = $1`, rec.ID).Scan(&outcome); err != nil {
		t.Fatalf("read submission: %v", err)
	}
	if outcome != "pending" {
		t.Fatalf("submission outcome = %s, want pending", outcome)
	}
}
