package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gigflow/engagement"
)

// ErrVerificationFailed signals a callback signature mismatch. The payment
// is marked failed, the engagement stays pending, and the company may retry
// with a fresh intent.
var ErrVerificationFailed = errors.New("escrow: payment verification failed")

// EngagementActivator activates the engagement once a payment verifies.
// Implemented by engagement.Service; the call runs inside the coordinator's
// transaction so verification and activation commit atomically.
type EngagementActivator interface {
	AcceptTx(ctx context.Context, tx pgx.Tx, params engagement.AcceptParams) (engagement.Record, error)
}

// EngagementReader loads engagement state inside the coordinator's
// transaction. Implemented by engagement.Repository.
type EngagementReader interface {
	GetTx(ctx context.Context, tx pgx.Tx, id string) (engagement.Record, error)
}

// Service coordinates the two-phase escrow protocol: intent creation against
// the gateway, then callback verification and atomic activation.
type Service struct {
	pool        engagement.TxBeginner
	repo        *Repository
	gateway     Gateway
	signer      *Signer
	engagements EngagementActivator
	records     EngagementReader
}

func NewService(pool engagement.TxBeginner, repo *Repository, gateway Gateway, signer *Signer, activator EngagementActivator, records EngagementReader) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool:        pool,
		repo:        repo,
		gateway:     gateway,
		signer:      signer,
		engagements: activator,
		records:     records,
	}
}

// CreateIntentParams carries the funding request.
type CreateIntentParams struct {
	EngagementID string
	CompanyID    string
	Amount       int64
	ActorID      string
}

// CreateIntent asks the gateway for an order and persists the initiated
// payment. The gateway call happens before anything is written: on timeout
// or refusal nothing is persisted and the engagement stays pending, so the
// company can simply retry.
func (s *Service) CreateIntent(ctx context.Context, params CreateIntentParams) (Payment, error) {
	if params.EngagementID == "" {
		return Payment{}, fmt.Errorf("escrow: intent missing engagement id")
	}
	if params.Amount <= 0 {
		return Payment{}, fmt.Errorf("escrow: intent amount must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("escrow: begin precheck tx: %w", err)
	}
	rec, err := s.records.GetTx(ctx, tx, params.EngagementID)
	_ = tx.Rollback(ctx)
	if err != nil {
		return Payment{}, err
	}
	if params.CompanyID != "" && rec.CompanyID != params.CompanyID {
		return Payment{}, engagement.ErrForbidden
	}
	if rec.Status != engagement.StatusPending {
		return Payment{}, engagement.ErrInvalidTransition
	}

	orderRef, err := s.gateway.CreateOrder(ctx, params.EngagementID, params.Amount)
	if err != nil {
		return Payment{}, err
	}

	tx, err = s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("escrow: begin intent tx: %w", err)
	}
	defer tx.Rollback(ctx)

	payment, err := s.repo.Insert(ctx, tx, params.EngagementID, orderRef, params.Amount)
	if err != nil {
		return Payment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("escrow: commit intent: %w", err)
	}
	return payment, nil
}

// VerifyCallbackParams is the normalized gateway callback.
type VerifyCallbackParams struct {
	OrderRef   string
	PaymentRef string
	Signature  string
}

// VerifyCallback applies the second phase of the protocol. Replays of the
// same (orderRef, paymentRef) pair are deduplicated and return the recorded
// outcome without re-executing any transition. On a signature match the
// payment flips to verified and the engagement activates in the same
// transaction; on mismatch the payment is marked failed and the engagement
// stays pending.
func (s *Service) VerifyCallback(ctx context.Context, params VerifyCallbackParams) (Payment, error) {
	if params.OrderRef == "" || params.PaymentRef == "" {
		return Payment{}, fmt.Errorf("escrow: callback missing references")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("escrow: begin callback tx: %w", err)
	}
	defer tx.Rollback(ctx)

	payment, err := s.repo.GetByOrderRef(ctx, tx, params.OrderRef)
	if err != nil {
		return Payment{}, err
	}

	outcome := StatusVerified
	if !s.signer.Verify(params.OrderRef, params.PaymentRef, params.Signature) {
		outcome = StatusFailed
	}

	recorded, err := s.repo.ClaimCallback(ctx, tx, params.OrderRef, params.PaymentRef, outcome)
	if err != nil {
		if errors.Is(err, ErrDuplicateCallback) {
			if recorded == StatusVerified {
				return payment, nil
			}
			return payment, ErrVerificationFailed
		}
		return Payment{}, err
	}

	// Claim the callback processing state before settling the outcome; a
	// row left in pending_verification is picked up by the reconciler.
	if payment.Status == StatusInitiated {
		payment, err = s.repo.Transition(ctx, tx, payment.ID, StatusInitiated, StatusPendingVerification, params.PaymentRef, "", "callback received")
		if err != nil {
			return Payment{}, err
		}
	}
	if payment.Status != StatusPendingVerification {
		return Payment{}, ErrStatusConflict
	}

	if outcome == StatusFailed {
		payment, err = s.repo.Transition(ctx, tx, payment.ID, StatusPendingVerification, StatusFailed, params.PaymentRef, params.Signature, "signature mismatch")
		if err != nil {
			return Payment{}, err
		}
		if err := engagement.EnqueueOutbox(ctx, tx, OutboxTopicEscrowFailed, map[string]any{
			"payment_id":    payment.ID,
			"engagement_id": payment.EngagementID,
			"order_ref":     params.OrderRef,
		}); err != nil {
			return Payment{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Payment{}, fmt.Errorf("escrow: commit failed callback: %w", err)
		}
		return payment, ErrVerificationFailed
	}

	payment, err = s.repo.Transition(ctx, tx, payment.ID, StatusPendingVerification, StatusVerified, params.PaymentRef, params.Signature, "signature verified")
	if err != nil {
		return Payment{}, err
	}

	if _, err := s.engagements.AcceptTx(ctx, tx, engagement.AcceptParams{
		EngagementID:    payment.EngagementID,
		EscrowPaymentID: payment.ID,
	}); err != nil {
		return Payment{}, err
	}

	if err := engagement.EnqueueOutbox(ctx, tx, OutboxTopicEscrowVerified, map[string]any{
		"payment_id":    payment.ID,
		"engagement_id": payment.EngagementID,
		"order_ref":     params.OrderRef,
	}); err != nil {
		return Payment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("escrow: commit verified callback: %w", err)
	}
	return payment, nil
}
