package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gigflow/engagement"
)

var (
	// ErrNotFound is returned when no channel exists for the identifier.
	ErrNotFound = errors.New("channel: not found")
	// ErrNotOpen signals an operation that requires an open channel.
	ErrNotOpen = errors.New("channel: not open")
)

const recordColumns = `id, engagement_id, access_state::text, close_reason, scheduled_close_at, close_warnings_sent, created_at, updated_at`

// Repository owns channel rows. It implements engagement.ChannelSync so
// state-machine transitions keep the channel consistent in-transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Open creates the channel when the engagement activates. Re-activation
// replays hit the unique engagement_id constraint and are treated as
// already-open.
func (r *Repository) Open(ctx context.Context, tx pgx.Tx, engagementID string) error {
	_, err := tx.Exec(ctx, `INSERT INTO channels (engagement_id, access_state) VALUES ($1, 'open')`, engagementID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("channel: open: %w", err)
	}
	return nil
}

// Apply forces the channel into the access state derived from the
// engagement status. Closing is idempotent; a completed engagement also gets
// its archival close scheduled. Implements engagement.ChannelSync.
func (r *Repository) Apply(ctx context.Context, tx pgx.Tx, engagementID string, status engagement.Status) error {
	state, reason := AccessFor(status)
	if state == AccessOpen {
		return nil
	}

	const q = `
UPDATE channels
SET access_state = 'read_only',
    close_reason = COALESCE(close_reason, NULLIF($2, '')),
    scheduled_close_at = CASE WHEN $3 AND scheduled_close_at IS NULL THEN now() + $4::interval ELSE scheduled_close_at END,
    updated_at = now()
WHERE engagement_id = $1
`
	archive := status == engagement.StatusCompleted
	if _, err := tx.Exec(ctx, q, engagementID, reason, archive, ArchiveDelay.String()); err != nil {
		return fmt.Errorf("channel: apply %s: %w", status, err)
	}
	// No row is fine: rejection before activation means no channel exists.
	return nil
}

// Get loads the channel for one engagement.
func (r *Repository) Get(ctx context.Context, pool *pgxpool.Pool, engagementID string) (Record, error) {
	rec, err := scanRecord(pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM channels WHERE engagement_id = $1`, engagementID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("channel: get: %w", err)
	}
	return rec, nil
}

// ScheduleClose sets the close timer on a still-open channel.
func (r *Repository) ScheduleClose(ctx context.Context, tx pgx.Tx, engagementID string, at time.Time) (Record, error) {
	const q = `
UPDATE channels
SET scheduled_close_at = $2, close_warnings_sent = 0, updated_at = now()
WHERE engagement_id = $1 AND access_state = 'open'
RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, q, engagementID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyClosed(ctx, tx, engagementID)
		}
		return Record{}, fmt.Errorf("channel: schedule close: %w", err)
	}
	return rec, nil
}

// CancelScheduledClose clears the timer. Conditional on the channel still
// being open so cancellation can never resurrect a closed channel; a close
// already mid-execution wins.
func (r *Repository) CancelScheduledClose(ctx context.Context, tx pgx.Tx, engagementID string) (Record, error) {
	const q = `
UPDATE channels
SET scheduled_close_at = NULL, close_warnings_sent = 0, updated_at = now()
WHERE engagement_id = $1 AND access_state = 'open'
RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, q, engagementID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyClosed(ctx, tx, engagementID)
		}
		return Record{}, fmt.Errorf("channel: cancel scheduled close: %w", err)
	}
	return rec, nil
}

func (r *Repository) classifyClosed(ctx context.Context, tx pgx.Tx, engagementID string) (Record, error) {
	rec, err := scanRecord(tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM channels WHERE engagement_id = $1`, engagementID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("channel: classify: %w", err)
	}
	return Record{}, fmt.Errorf("%w: channel for engagement %s is %s", ErrNotOpen, engagementID, rec.AccessState)
}

// DueWarnings claims channels whose scheduled close is inside the warning
// window and whose warning was not yet sent. The flag flips in the same
// statement, so at most one warning per schedule ever goes out.
func (r *Repository) DueWarnings(ctx context.Context, tx pgx.Tx, window time.Duration, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
UPDATE channels
SET close_warnings_sent = close_warnings_sent + 1, updated_at = now()
WHERE id IN (
    SELECT id FROM channels
    WHERE scheduled_close_at IS NOT NULL
      AND close_warnings_sent = 0
      AND scheduled_close_at - now() < $1::interval
      AND scheduled_close_at > now()
    ORDER BY scheduled_close_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT $2
)
RETURNING ` + recordColumns

	rows, err := tx.Query(ctx, q, window.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("channel: claim due warnings: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// CloseDue archives channels whose scheduled close has elapsed. Idempotent:
// an already-archived channel never matches again.
func (r *Repository) CloseDue(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
UPDATE channels
SET access_state = 'read_only',
    close_reason = $1,
    updated_at = now()
WHERE id IN (
    SELECT id FROM channels
    WHERE scheduled_close_at IS NOT NULL
      AND scheduled_close_at <= now()
      AND (access_state = 'open' OR close_reason IS DISTINCT FROM $1)
    ORDER BY scheduled_close_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT $2
)
RETURNING ` + recordColumns

	rows, err := tx.Query(ctx, q, CloseReasonArchived, limit)
	if err != nil {
		return nil, fmt.Errorf("channel: close due: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// WarningTargets resolves the users to warn before a scheduled close: the
// candidate and the gig poster.
func (r *Repository) WarningTargets(ctx context.Context, tx pgx.Tx, engagementID string) ([]string, error) {
	const q = `
SELECT e.candidate_id::text, g.created_by_user_id::text
FROM engagements e
JOIN gigs g ON g.id = e.gig_id
WHERE e.id = $1
`
	var candidate, poster string
	if err := tx.QueryRow(ctx, q, engagementID).Scan(&candidate, &poster); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("channel: warning targets: %w", err)
	}
	if candidate == poster {
		return []string{candidate}, nil
	}
	return []string{candidate, poster}, nil
}

func collect(rows pgx.Rows) ([]Record, error) {
	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.EngagementID,
			&rec.AccessState,
			&rec.CloseReason,
			&rec.ScheduledCloseAt,
			&rec.CloseWarningsSent,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("channel: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("channel: iterate: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.EngagementID,
		&rec.AccessState,
		&rec.CloseReason,
		&rec.ScheduledCloseAt,
		&rec.CloseWarningsSent,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
