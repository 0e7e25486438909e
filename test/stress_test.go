package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"gigflow/test/actors"
	"gigflow/test/chaos"
	"gigflow/test/infra"
	"gigflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestEngagementConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed minimal data
	seedData := mustSeed(t, ctx, pool)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// intent creators and verifiers battling over the same engagement
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.IntentCreator(ctx2, pool, seedData.engagementID, stop) })
		g.Go(func() error { return actors.PaymentVerifier(ctx2, pool, seedData.engagementID, stop) })
	}

	// submitters and reviewers racing over the iteration ledger
	for i := 0; i < *flConcurrency/2+1; i++ {
		g.Go(func() error { return actors.Submitter(ctx2, pool, seedData.engagementID, stop) })
		g.Go(func() error { return actors.Reviewer(ctx2, pool, seedData.engagementID, stop) })
	}

	// duplicate applications for the same gig
	g.Go(func() error { return actors.Applicant(ctx2, pool, seedData.gigID, seedData.rivalID, stop) })
	// outbox worker
	g.Go(func() error { return actors.OutboxWorker(ctx2, pool, stop) })
	// disputer
	g.Go(func() error { return actors.Disputer(ctx2, pool, seedData.engagementID, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, "", stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	companyID    string
	companyUser  string
	candidateID  string
	rivalID      string
	gigID        string
	engagementID string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	if err := pool.QueryRow(ctx, `INSERT INTO companies (name, verified) VALUES ($1, TRUE) RETURNING id`,
		fmt.Sprintf("Stress Co %d", rand.Int63())).Scan(&s.companyID); err != nil {
		t.Fatalf("seed company: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO company_entitlements (company_id, active, expires_at) VALUES ($1, TRUE, now() + interval '1 day')`, s.companyID); err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role, company_id) VALUES ($1, 'Stress Owner', 'company', $2) RETURNING id`,
		fmt.Sprintf("owner%d@example.com", rand.Int63()), s.companyID).Scan(&s.companyUser); err != nil {
		t.Fatalf("seed company user: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Stress Candidate', 'candidate') RETURNING id`,
		fmt.Sprintf("cand%d@example.com", rand.Int63())).Scan(&s.candidateID); err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Stress Rival', 'candidate') RETURNING id`,
		fmt.Sprintf("rival%d@example.com", rand.Int63())).Scan(&s.rivalID); err != nil {
		t.Fatalf("seed rival: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO gigs (company_id, created_by_user_id, title, amount, total_iterations)
                                   VALUES ($1, $2, 'Stress gig', 50000, 6) RETURNING id`,
		s.companyID, s.companyUser).Scan(&s.gigID); err != nil {
		t.Fatalf("seed gig: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO engagements (gig_id, company_id, candidate_id, total_iterations)
                                   VALUES ($1, $2, $3, 6) RETURNING id`,
		s.gigID, s.companyID, s.candidateID).Scan(&s.engagementID); err != nil {
		t.Fatalf("seed engagement: %v", err)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"engagements", `SELECT id, status, used_iterations, total_iterations, updated_at FROM engagements ORDER BY updated_at DESC LIMIT 50`},
		{"escrow_payments", `SELECT id, engagement_id, status, gateway_order_ref, updated_at FROM escrow_payments ORDER BY updated_at DESC LIMIT 50`},
		{"submissions", `SELECT id, engagement_id, iteration_number, review_outcome, reviewed_at FROM submissions ORDER BY created_at DESC LIMIT 50`},
		{"engagement_events", `SELECT id, engagement_id, type, created_at FROM engagement_events ORDER BY id DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
