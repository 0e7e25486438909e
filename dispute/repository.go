package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("dispute: not found")
	ErrForbidden = errors.New("dispute: forbidden")
	ErrBadStatus = errors.New("dispute: invalid status transition")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, engagement_id, status::text, created_at, updated_at, resolved_at`

// CreateTx inserts the dispute record inside the caller's transaction.
// Implements engagement.DisputeCreator so the record commits together with
// the engagement's flip to disputed.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, engagementID string) (string, error) {
	const query = `
		INSERT INTO disputes (engagement_id, status)
		VALUES ($1, 'under_review')
		RETURNING id
	`
	var id string
	if err := tx.QueryRow(ctx, query, engagementID).Scan(&id); err != nil {
		return "", fmt.Errorf("dispute: create: %w", err)
	}
	return id, nil
}

// List returns the disputes visible to one party, newest first. A party is
// either side of the underlying engagement.
func (r *Repository) List(ctx context.Context, partyID string, engagementID string) ([]Record, error) {
	query := `
		SELECT d.id, d.engagement_id, d.status::text, d.created_at, d.updated_at, d.resolved_at
		FROM disputes d
		JOIN engagements e ON e.id = d.engagement_id
		WHERE (e.candidate_id = $1 OR e.company_id = $1)
	`
	args := []any{partyID}
	if engagementID != "" {
		query += " AND d.engagement_id = $2"
		args = append(args, engagementID)
	}
	query += " ORDER BY d.created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EngagementID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt); err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

// Get returns one dispute without party scoping; resolution is an
// operator-driven path.
func (r *Repository) Get(ctx context.Context, disputeID string) (Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM disputes WHERE id = $1`, disputeID).
		Scan(&rec.ID, &rec.EngagementID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get: %w", err)
	}
	return rec, nil
}

// Resolve marks the dispute resolved exactly once. The engagement stays
// disputed; what happens to the money is decided outside this system.
func (r *Repository) Resolve(ctx context.Context, disputeID string) (Record, error) {
	const query = `
		UPDATE disputes
		SET status = 'resolved', resolved_at = now(), updated_at = now()
		WHERE id = $1 AND status <> 'resolved'
		RETURNING ` + recordColumns

	var rec Record
	err := r.pool.QueryRow(ctx, query, disputeID).
		Scan(&rec.ID, &rec.EngagementID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &rec.ResolvedAt)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("dispute: resolve: %w", err)
	}

	var status Status
	if err := r.pool.QueryRow(ctx, `SELECT status::text FROM disputes WHERE id = $1`, disputeID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: resolve fetch: %w", err)
	}
	if status == StatusResolved {
		return Record{}, ErrBadStatus
	}
	return Record{}, ErrNotFound
}
