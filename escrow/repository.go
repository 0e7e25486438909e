package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gigflow/engagement"
)

var (
	// ErrNotFound is returned when no payment row exists for the identifier.
	ErrNotFound = errors.New("escrow: payment not found")
	// ErrPaymentInFlight signals the engagement already has a non-terminal
	// payment; the partial unique index is the source of truth.
	ErrPaymentInFlight = errors.New("escrow: payment already in flight for engagement")
	// ErrDuplicateCallback signals the (orderRef, paymentRef) pair was
	// already processed.
	ErrDuplicateCallback = errors.New("escrow: duplicate gateway callback")
	// ErrStatusConflict signals a conditional status update matched no row.
	ErrStatusConflict = errors.New("escrow: payment status conflict")
)

const paymentColumns = `id, engagement_id, status::text, amount, gateway_order_ref, gateway_payment_ref, signature, created_at, updated_at`

// Repository owns every read and write of escrow payments, their append-only
// status history, and the callback deduplication table.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert persists a new initiated payment and its first history row. The
// engagement-status guard runs in the same statement so the intent cannot be
// created against an engagement that left pending concurrently.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, engagementID, orderRef string, amount int64) (Payment, error) {
	const insertSQL = `
INSERT INTO escrow_payments (engagement_id, status, amount, gateway_order_ref)
SELECT $1, 'initiated', $2, $3
WHERE EXISTS (SELECT 1 FROM engagements e WHERE e.id = $1 AND e.status = 'pending')
RETURNING ` + paymentColumns

	p, err := scanPayment(tx.QueryRow(ctx, insertSQL, engagementID, amount, orderRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, engagement.ErrInvalidTransition
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Payment{}, ErrPaymentInFlight
		}
		return Payment{}, fmt.Errorf("escrow: insert payment: %w", err)
	}

	if err := r.appendHistory(ctx, tx, p.ID, StatusInitiated, "intent created"); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// GetByOrderRef loads a payment by the opaque gateway order reference.
func (r *Repository) GetByOrderRef(ctx context.Context, tx pgx.Tx, orderRef string) (Payment, error) {
	p, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM escrow_payments WHERE gateway_order_ref = $1`, orderRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("escrow: get by order ref: %w", err)
	}
	return p, nil
}

// Get loads one payment outside any transaction.
func (r *Repository) Get(ctx context.Context, pool *pgxpool.Pool, id string) (Payment, error) {
	p, err := scanPayment(pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM escrow_payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("escrow: get: %w", err)
	}
	return p, nil
}

// StatusTx reports the payment status inside the caller's transaction.
// Satisfies engagement.PaymentReader.
func (r *Repository) StatusTx(ctx context.Context, tx pgx.Tx, paymentID string) (string, error) {
	var status string
	if err := tx.QueryRow(ctx, `SELECT status::text FROM escrow_payments WHERE id = $1`, paymentID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("escrow: payment status: %w", err)
	}
	return status, nil
}

// ClaimCallback reserves the (orderRef, paymentRef) pair for processing.
// A duplicate insert returns ErrDuplicateCallback together with the outcome
// recorded by the first delivery.
func (r *Repository) ClaimCallback(ctx context.Context, tx pgx.Tx, orderRef, paymentRef string, outcome Status) (Status, error) {
	_, err := tx.Exec(ctx, `INSERT INTO escrow_callbacks (order_ref, payment_ref, outcome) VALUES ($1, $2, $3::escrow_status)`, orderRef, paymentRef, outcome)
	if err == nil {
		return outcome, nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", fmt.Errorf("escrow: claim callback: %w", err)
	}

	var recorded Status
	if err := tx.QueryRow(ctx, `SELECT outcome::text FROM escrow_callbacks WHERE order_ref = $1 AND payment_ref = $2`, orderRef, paymentRef).Scan(&recorded); err != nil {
		return "", fmt.Errorf("escrow: read recorded callback: %w", err)
	}
	return recorded, ErrDuplicateCallback
}

// Transition performs one conditional payment status update and appends the
// history row. Zero matched rows yields ErrStatusConflict.
func (r *Repository) Transition(ctx context.Context, tx pgx.Tx, paymentID string, from, to Status, paymentRef, signature, detail string) (Payment, error) {
	const updateSQL = `
UPDATE escrow_payments
SET status = $3::escrow_status,
    gateway_payment_ref = COALESCE(NULLIF($4, ''), gateway_payment_ref),
    signature = COALESCE(NULLIF($5, ''), signature),
    updated_at = now()
WHERE id = $1 AND status = $2::escrow_status
RETURNING ` + paymentColumns

	p, err := scanPayment(tx.QueryRow(ctx, updateSQL, paymentID, from, to, paymentRef, signature))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrStatusConflict
		}
		return Payment{}, fmt.Errorf("escrow: transition %s -> %s: %w", from, to, err)
	}

	if err := r.appendHistory(ctx, tx, p.ID, to, detail); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// History returns the append-only status trail for one payment.
func (r *Repository) History(ctx context.Context, pool *pgxpool.Pool, paymentID string) ([]HistoryEntry, error) {
	rows, err := pool.Query(ctx, `
SELECT id, payment_id, status::text, detail, created_at
FROM escrow_payment_events
WHERE payment_id = $1
ORDER BY id ASC
`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("escrow: query history: %w", err)
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0, 4)
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.Status, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("escrow: scan history: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate history: %w", err)
	}
	return out, nil
}

// StaleInFlight lists payments stuck in the given in-flight status longer
// than the cutoff, for the reconciliation job.
func (r *Repository) StaleInFlight(ctx context.Context, tx pgx.Tx, status Status, cutoffSeconds int, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := tx.Query(ctx, `
SELECT `+paymentColumns+`
FROM escrow_payments
WHERE status = $1::escrow_status
  AND updated_at < now() - make_interval(secs => $2)
ORDER BY updated_at ASC
FOR UPDATE SKIP LOCKED
LIMIT $3
`, status, cutoffSeconds, limit)
	if err != nil {
		return nil, fmt.Errorf("escrow: query stale payments: %w", err)
	}
	defer rows.Close()

	out := make([]Payment, 0, limit)
	for rows.Next() {
		p, err := scanPaymentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate stale payments: %w", err)
	}
	return out, nil
}

func (r *Repository) appendHistory(ctx context.Context, tx pgx.Tx, paymentID string, status Status, detail string) error {
	const q = `INSERT INTO escrow_payment_events (payment_id, status, detail) VALUES ($1, $2::escrow_status, $3)`
	if _, err := tx.Exec(ctx, q, paymentID, status, detail); err != nil {
		return fmt.Errorf("escrow: append history: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.EngagementID,
		&p.Status,
		&p.Amount,
		&p.GatewayOrderRef,
		&p.GatewayPaymentRef,
		&p.Signature,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func scanPaymentRows(rows pgx.Rows) (Payment, error) {
	var p Payment
	err := rows.Scan(
		&p.ID,
		&p.EngagementID,
		&p.Status,
		&p.Amount,
		&p.GatewayOrderRef,
		&p.GatewayPaymentRef,
		&p.Signature,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Payment{}, fmt.Errorf("escrow: scan payment: %w", err)
	}
	return p, nil
}
