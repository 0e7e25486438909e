package escrow

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gigflow/engagement"
)

// Reconciler fails payments stuck in flight after a crash or a callback
// that never settled. It replaces timer-simulated payment progression with
// an explicit polling job.
type Reconciler struct {
	pool     *pgxpool.Pool
	repo     *Repository
	interval time.Duration
	maxAge   time.Duration
	orderAge time.Duration
	logger   *log.Logger
}

func NewReconciler(pool *pgxpool.Pool, repo *Repository, interval, maxAge time.Duration, logger *log.Logger) *Reconciler {
	if repo == nil {
		repo = NewRepository()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 15 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	// Orders in initiated may still receive a late callback, so they get a
	// longer window than pending verifications before being abandoned.
	return &Reconciler{pool: pool, repo: repo, interval: interval, maxAge: maxAge, orderAge: 4 * maxAge, logger: logger}
}

// Run polls until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.Printf("escrow reconciler: %v", err)
			} else if n > 0 {
				r.logger.Printf("escrow reconciler: failed %d stale payments", n)
			}
		}
	}
}

// Sweep fails every payment stuck in pending_verification past maxAge and
// every order stuck in initiated past the longer order window, then returns
// the number swept. Failing a stuck row frees the in-flight slot so a fresh
// intent becomes insertable. Rows are claimed with SKIP LOCKED so concurrent
// sweepers never double-process.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	swept := 0
	passes := []struct {
		status Status
		cutoff time.Duration
		detail string
		reason string
	}{
		{StatusPendingVerification, r.maxAge, "verification timed out", "verification_timeout"},
		{StatusInitiated, r.orderAge, "order abandoned", "order_timeout"},
	}
	for _, pass := range passes {
		stale, err := r.repo.StaleInFlight(ctx, tx, pass.status, int(pass.cutoff.Seconds()), 20)
		if err != nil {
			return 0, err
		}
		for _, p := range stale {
			if _, err := r.repo.Transition(ctx, tx, p.ID, pass.status, StatusFailed, "", "", pass.detail); err != nil {
				return 0, err
			}
			if err := engagement.EnqueueOutbox(ctx, tx, OutboxTopicEscrowFailed, map[string]any{
				"payment_id":    p.ID,
				"engagement_id": p.EngagementID,
				"reason":        pass.reason,
			}); err != nil {
				return 0, err
			}
		}
		swept += len(stale)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return swept, nil
}
