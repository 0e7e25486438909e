package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, gig_id, company_id, candidate_id, status::text, total_iterations, used_iterations, escrow_payment_id, current_submission_id, created_at, updated_at`

// Repository owns all reads and conditional writes against the engagements
// table. Mutating methods take a pgx.Tx so callers can compose the
// engagement transition with their own writes in a single transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// ErrDuplicateEngagement signals the partial unique index on live
// (gig, candidate) pairs rejected an insert.
var ErrDuplicateEngagement = errors.New("engagement: live engagement already exists for pair")

// CreateParams enumerates the fields required to materialise a pending
// engagement from an accepted application.
type CreateParams struct {
	GigID           string
	CompanyID       string
	CandidateID     string
	TotalIterations int
	ActorID         string
}

// Create inserts a pending engagement inside the caller's transaction and
// appends the creation event and outbox message.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, params CreateParams) (Record, error) {
	if params.GigID == "" || params.CompanyID == "" || params.CandidateID == "" {
		return Record{}, fmt.Errorf("engagement: create missing identity fields")
	}
	if _, err := NewLedger(params.TotalIterations); err != nil {
		return Record{}, err
	}

	const insertSQL = `
INSERT INTO engagements (gig_id, company_id, candidate_id, status, total_iterations)
VALUES ($1, $2, $3, 'pending', $4)
RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, insertSQL, params.GigID, params.CompanyID, params.CandidateID, params.TotalIterations))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrDuplicateEngagement
		}
		return Record{}, fmt.Errorf("engagement: insert: %w", err)
	}

	payload := map[string]any{
		"gig_id":           rec.GigID,
		"candidate_id":     rec.CandidateID,
		"total_iterations": rec.Ledger.Total,
	}
	if err := AppendEvent(ctx, tx, rec.ID, "ENGAGEMENT_CREATED", params.ActorID, payload); err != nil {
		return Record{}, err
	}
	if err := EnqueueOutbox(ctx, tx, OutboxTopicEngagementCreated, map[string]any{
		"engagement_id": rec.ID,
		"gig_id":        rec.GigID,
		"company_id":    rec.CompanyID,
		"candidate_id":  rec.CandidateID,
	}); err != nil {
		return Record{}, err
	}

	return rec, nil
}

// FindLive returns the non-terminal engagement for a (gig, candidate) pair,
// if one exists. Used to make acceptance retries idempotent.
func (r *Repository) FindLive(ctx context.Context, tx pgx.Tx, gigID, candidateID string) (Record, bool, error) {
	const query = `
SELECT ` + recordColumns + `
FROM engagements
WHERE gig_id = $1 AND candidate_id = $2
  AND status NOT IN ('completed', 'rejected', 'exhausted', 'disputed')
LIMIT 1
`
	rec, err := scanRecord(tx.QueryRow(ctx, query, gigID, candidateID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("engagement: find live: %w", err)
	}
	return rec, true, nil
}

// Get loads one engagement outside of any transaction.
func (r *Repository) Get(ctx context.Context, pool *pgxpool.Pool, id string) (Record, error) {
	rec, err := scanRecord(pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM engagements WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("engagement: get: %w", err)
	}
	return rec, nil
}

// GetTx loads one engagement inside the caller's transaction without locking.
func (r *Repository) GetTx(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	rec, err := scanRecord(tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM engagements WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("engagement: get tx: %w", err)
	}
	return rec, nil
}

// LockTx loads one engagement and holds its row lock for the rest of the
// transaction. Every path that writes both the engagement and its
// submissions takes this lock before touching submissions, so the two
// tables are always claimed in the same order.
func (r *Repository) LockTx(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	rec, err := scanRecord(tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM engagements WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("engagement: lock tx: %w", err)
	}
	return rec, nil
}

// Activate flips a pending engagement to active and binds the verified
// escrow payment. Replays of the same activation (same payment id against an
// already-active engagement) succeed without a second write.
func (r *Repository) Activate(ctx context.Context, tx pgx.Tx, engagementID, paymentID, actorID string) (Record, error) {
	const updateSQL = `
UPDATE engagements
SET status = 'active', escrow_payment_id = $2, updated_at = now()
WHERE id = $1 AND status = 'pending'
RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, updateSQL, engagementID, paymentID))
	if err == nil {
		payload := map[string]any{"escrow_payment_id": paymentID}
		if err := AppendEvent(ctx, tx, rec.ID, "ENGAGEMENT_ACTIVATED", actorID, payload); err != nil {
			return Record{}, err
		}
		if err := EnqueueOutbox(ctx, tx, OutboxTopicEngagementActivated, map[string]any{
			"engagement_id": rec.ID,
			"candidate_id":  rec.CandidateID,
			"company_id":    rec.CompanyID,
		}); err != nil {
			return Record{}, err
		}
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("engagement: activate: %w", err)
	}

	current, err := r.GetTx(ctx, tx, engagementID)
	if err != nil {
		return Record{}, err
	}
	if current.Status == StatusActive && current.EscrowPaymentID != nil && *current.EscrowPaymentID == paymentID {
		return current, nil
	}
	if current.Status == StatusPending {
		return Record{}, ErrConcurrentModification
	}
	return Record{}, ErrInvalidTransition
}

// TransitionParams describes one conditional status update. ExpectedUsed is
// the optimistic-concurrency token; together with ExpectedStatus it keys the
// compare-and-swap.
type TransitionParams struct {
	EngagementID   string
	ExpectedStatus Status
	ExpectedUsed   int
	NextStatus     Status
	ConsumeBudget  bool
	ActorID        string
	EventType      string
	Payload        map[string]any
}

// Transition performs a single atomic conditional update. Zero matched rows
// means the row moved underneath the caller: ErrConcurrentModification
// (or ErrNotFound when the id is unknown).
func (r *Repository) Transition(ctx context.Context, tx pgx.Tx, params TransitionParams) (Record, error) {
	if !ValidTransition(params.ExpectedStatus, params.NextStatus) {
		return Record{}, ErrInvalidTransition
	}

	const updateSQL = `
UPDATE engagements
SET status = $4::engagement_status,
    used_iterations = used_iterations + CASE WHEN $5 THEN 1 ELSE 0 END,
    updated_at = now()
WHERE id = $1 AND status = $2::engagement_status AND used_iterations = $3
RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, updateSQL,
		params.EngagementID,
		params.ExpectedStatus,
		params.ExpectedUsed,
		params.NextStatus,
		params.ConsumeBudget,
	))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("engagement: transition: %w", err)
		}
		if _, err := r.GetTx(ctx, tx, params.EngagementID); err != nil {
			return Record{}, err
		}
		return Record{}, ErrConcurrentModification
	}

	eventType := params.EventType
	if eventType == "" {
		eventType = "ENGAGEMENT_STATUS_CHANGED"
	}
	payload := map[string]any{
		"previous_status": string(params.ExpectedStatus),
		"next_status":     string(params.NextStatus),
		"used_iterations": rec.Ledger.Used,
	}
	for k, v := range params.Payload {
		payload[k] = v
	}
	if err := AppendEvent(ctx, tx, rec.ID, eventType, params.ActorID, payload); err != nil {
		return Record{}, err
	}
	if err := EnqueueOutbox(ctx, tx, OutboxTopicEngagementStatusChanged, map[string]any{
		"engagement_id": rec.ID,
		"previous":      string(params.ExpectedStatus),
		"next":          string(params.NextStatus),
	}); err != nil {
		return Record{}, err
	}

	return rec, nil
}

// Reject marks the engagement rejected by the company. Only allowed before
// the first submission. Both this path and the submit path take the
// engagements row lock before their guarded statement, so whichever side
// commits second re-reads the submissions table after the winner's insert
// or status change is visible.
func (r *Repository) Reject(ctx context.Context, tx pgx.Tx, engagementID, actorID string) (Record, error) {
	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM engagements WHERE id = $1 FOR UPDATE`, engagementID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("engagement: lock for reject: %w", err)
	}

	const updateSQL = `
UPDATE engagements e
SET status = 'rejected', updated_at = now()
WHERE e.id = $1
  AND e.status NOT IN ('completed', 'rejected', 'exhausted', 'disputed')
  AND NOT EXISTS (SELECT 1 FROM submissions s WHERE s.engagement_id = e.id)
RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRow(ctx, updateSQL, engagementID))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("engagement: reject: %w", err)
		}
		current, err := r.GetTx(ctx, tx, engagementID)
		if err != nil {
			return Record{}, err
		}
		if current.Status.Terminal() || current.Status == StatusExhausted {
			return Record{}, ErrInvalidTransition
		}
		return Record{}, ErrAlreadySubmitted
	}

	if err := AppendEvent(ctx, tx, rec.ID, "ENGAGEMENT_REJECTED", actorID, nil); err != nil {
		return Record{}, err
	}
	if err := EnqueueOutbox(ctx, tx, OutboxTopicEngagementStatusChanged, map[string]any{
		"engagement_id": rec.ID,
		"next":          string(StatusRejected),
	}); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// SetCurrentSubmission records the latest submission pointer.
func (r *Repository) SetCurrentSubmission(ctx context.Context, tx pgx.Tx, engagementID, submissionID string) error {
	tag, err := tx.Exec(ctx, `UPDATE engagements SET current_submission_id = $2, updated_at = now() WHERE id = $1`, engagementID, submissionID)
	if err != nil {
		return fmt.Errorf("engagement: set current submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvent writes one append-only engagement event inside tx.
func AppendEvent(ctx context.Context, tx pgx.Tx, engagementID, eventType, actorID string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("engagement: marshal event payload: %w", err)
	}
	var actor any
	if actorID != "" {
		actor = actorID
	}
	const q = `
INSERT INTO engagement_events (engagement_id, type, payload, actor_id)
VALUES ($1, $2, $3::jsonb, $4::uuid)
`
	if _, err := tx.Exec(ctx, q, engagementID, eventType, body, actor); err != nil {
		return fmt.Errorf("engagement: insert event: %w", err)
	}
	return nil
}

// EnqueueOutbox stages one outbox message inside tx for later delivery.
func EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("engagement: marshal outbox payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("engagement: enqueue outbox: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec       Record
		updatedAt time.Time
	)
	err := row.Scan(
		&rec.ID,
		&rec.GigID,
		&rec.CompanyID,
		&rec.CandidateID,
		&rec.Status,
		&rec.Ledger.Total,
		&rec.Ledger.Used,
		&rec.EscrowPaymentID,
		&rec.CurrentSubmissionID,
		&rec.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.UpdatedAt = updatedAt
	return rec, nil
}
