package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no submission exists for the identifier.
	ErrNotFound = errors.New("submission: not found")
	// ErrPendingExists signals the engagement already has an unreviewed
	// submission; one pending version at a time.
	ErrPendingExists = errors.New("submission: pending submission already exists")
	// ErrAlreadyReviewed signals the outcome was already stamped.
	ErrAlreadyReviewed = errors.New("submission: already reviewed")
)

const recordColumns = `id, engagement_id, iteration_number, review_outcome::text, description, feedback, file_urls, created_at, reviewed_at`

// Repository owns submission rows. Writes are tx-scoped so the caller can
// pair them with the engagement transition they drive.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert creates the pending submission. The engagement row is locked first:
// the reject path re-checks for submissions under that same lock, so neither
// side can commit against a snapshot the other has already invalidated. The
// status and budget guards then run inside the INSERT itself, so no
// read-then-write gap exists.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, engagementID, description string, fileURLs []string) (Record, error) {
	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM engagements WHERE id = $1 FOR UPDATE`, engagementID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, pgx.ErrNoRows
		}
		return Record{}, fmt.Errorf("submission: lock engagement: %w", err)
	}

	const insertSQL = `
INSERT INTO submissions (engagement_id, iteration_number, description, file_urls)
SELECT e.id, e.used_iterations + 1, $2, $3
FROM engagements e
WHERE e.id = $1
  AND e.status IN ('active', 'revision_requested')
  AND e.used_iterations < e.total_iterations
RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, insertSQL, engagementID, description, fileURLs))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, pgx.ErrNoRows
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrPendingExists
		}
		return Record{}, fmt.Errorf("submission: insert: %w", err)
	}
	return rec, nil
}

// Get loads one submission outside any transaction.
func (r *Repository) Get(ctx context.Context, pool *pgxpool.Pool, id string) (Record, error) {
	rec, err := scanRecord(pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("submission: get: %w", err)
	}
	return rec, nil
}

// GetTx loads one submission inside the caller's transaction.
func (r *Repository) GetTx(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	rec, err := scanRecord(tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("submission: get tx: %w", err)
	}
	return rec, nil
}

// StampOutcome sets the review outcome exactly once. A submission that is no
// longer pending yields ErrAlreadyReviewed.
func (r *Repository) StampOutcome(ctx context.Context, tx pgx.Tx, id string, outcome Outcome, feedback *string) (Record, error) {
	const updateSQL = `
UPDATE submissions
SET review_outcome = $2::review_outcome,
    feedback = $3,
    reviewed_at = now()
WHERE id = $1 AND review_outcome = 'pending'
RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, updateSQL, id, outcome, feedback))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("submission: stamp outcome: %w", err)
		}
		if _, err := r.GetTx(ctx, tx, id); err != nil {
			return Record{}, err
		}
		return Record{}, ErrAlreadyReviewed
	}
	return rec, nil
}

// ListByEngagement returns every submitted version, oldest first.
func (r *Repository) ListByEngagement(ctx context.Context, pool *pgxpool.Pool, engagementID string) ([]Record, error) {
	rows, err := pool.Query(ctx, `SELECT `+recordColumns+` FROM submissions WHERE engagement_id = $1 ORDER BY iteration_number ASC`, engagementID)
	if err != nil {
		return nil, fmt.Errorf("submission: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.EngagementID,
			&rec.IterationNumber,
			&rec.ReviewOutcome,
			&rec.Description,
			&rec.Feedback,
			&rec.FileURLs,
			&rec.CreatedAt,
			&rec.ReviewedAt,
		); err != nil {
			return nil, fmt.Errorf("submission: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("submission: iterate: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.EngagementID,
		&rec.IterationNumber,
		&rec.ReviewOutcome,
		&rec.Description,
		&rec.Feedback,
		&rec.FileURLs,
		&rec.CreatedAt,
		&rec.ReviewedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
