package channel

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Notifier delivers fire-and-forget warnings. A delivery failure never rolls
// back the schedule or close that triggered it.
type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload map[string]any) error
}

// Closer is the scheduled background task that warns ahead of and then
// executes channel closes. Closes are idempotent conditional updates, so a
// cancel racing a close mid-execution resolves last-writer-wins without
// corrupting state.
type Closer struct {
	pool     *pgxpool.Pool
	repo     *Repository
	notifier Notifier
	interval time.Duration
	logger   *log.Logger
}

func NewCloser(pool *pgxpool.Pool, repo *Repository, notifier Notifier, interval time.Duration, logger *log.Logger) *Closer {
	if repo == nil {
		repo = NewRepository()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Closer{pool: pool, repo: repo, notifier: notifier, interval: interval, logger: logger}
}

// Run ticks until the context is cancelled.
func (c *Closer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sweep(ctx); err != nil {
				c.logger.Printf("channel closer: %v", err)
			}
		}
	}
}

// Sweep runs one warning pass and one close pass.
func (c *Closer) Sweep(ctx context.Context) error {
	if err := c.warnDue(ctx); err != nil {
		return err
	}
	return c.closeDue(ctx)
}

func (c *Closer) warnDue(ctx context.Context) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	due, err := c.repo.DueWarnings(ctx, tx, WarningWindow, 20)
	if err != nil {
		return err
	}

	type warning struct {
		engagementID string
		closeAt      time.Time
		targets      []string
	}
	warnings := make([]warning, 0, len(due))
	for _, rec := range due {
		targets, err := c.repo.WarningTargets(ctx, tx, rec.EngagementID)
		if err != nil {
			return err
		}
		var closeAt time.Time
		if rec.ScheduledCloseAt != nil {
			closeAt = *rec.ScheduledCloseAt
		}
		warnings = append(warnings, warning{rec.EngagementID, closeAt, targets})
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	// Deliver after commit: the claimed warning flag must survive even if
	// delivery fails.
	for _, w := range warnings {
		for _, userID := range w.targets {
			if err := c.notifier.Notify(ctx, userID, "channel.close_warning", map[string]any{
				"engagement_id": w.engagementID,
				"close_at":      w.closeAt,
			}); err != nil {
				c.logger.Printf("channel closer: warn %s: %v", userID, err)
			}
		}
	}
	return nil
}

func (c *Closer) closeDue(ctx context.Context) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	closed, err := c.repo.CloseDue(ctx, tx, 20)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for _, rec := range closed {
		c.logger.Printf("channel closer: archived channel %s (engagement %s)", rec.ID, rec.EngagementID)
	}
	return nil
}
