package engagement

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PaymentReader exposes the escrow payment state the state machine needs to
// guard activation. Implemented by escrow.Repository.
type PaymentReader interface {
	StatusTx(ctx context.Context, tx pgx.Tx, paymentID string) (string, error)
}

// ChannelSync keeps the messaging channel in step with engagement state.
// Implemented by channel.Repository; both calls run inside the caller's
// transaction so a committed transition is never observed with a stale
// channel.
type ChannelSync interface {
	Open(ctx context.Context, tx pgx.Tx, engagementID string) error
	Apply(ctx context.Context, tx pgx.Tx, engagementID string, status Status) error
}

// DisputeCreator materialises the dispute record when an exhausted
// engagement escalates. Implemented by dispute.Repository.
type DisputeCreator interface {
	CreateTx(ctx context.Context, tx pgx.Tx, engagementID string) (string, error)
}

// Service drives the engagement lifecycle. Activation is normally invoked by
// the escrow coordinator inside its own transaction; the methods here wrap
// the repository operations for direct callers.
type Service struct {
	pool     TxBeginner
	repo     *Repository
	payments PaymentReader
	channels ChannelSync
	disputes DisputeCreator
}

func NewService(pool TxBeginner, repo *Repository, payments PaymentReader, channels ChannelSync, disputes DisputeCreator) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool:     pool,
		repo:     repo,
		payments: payments,
		channels: channels,
		disputes: disputes,
	}
}

// Repo exposes the repository for coordinators that compose engagement
// writes into their own transactions.
func (s *Service) Repo() *Repository {
	return s.repo
}

// AcceptParams identifies the engagement and the escrow payment funding it.
type AcceptParams struct {
	EngagementID    string
	EscrowPaymentID string
	ActorID         string
}

// Accept activates a pending engagement against a verified escrow payment
// and opens its messaging channel. Replays against an already-active
// engagement with the same payment succeed without a second transition.
func (s *Service) Accept(ctx context.Context, params AcceptParams) (Record, error) {
	if params.EngagementID == "" {
		return Record{}, fmt.Errorf("engagement: accept missing engagement id")
	}
	if params.EscrowPaymentID == "" {
		return Record{}, fmt.Errorf("engagement: accept missing escrow payment id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("engagement: begin accept tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.AcceptTx(ctx, tx, params)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("engagement: commit accept: %w", err)
	}
	return rec, nil
}

// AcceptTx is Accept running inside the caller's transaction. The escrow
// coordinator uses it so payment verification and activation commit
// atomically.
func (s *Service) AcceptTx(ctx context.Context, tx pgx.Tx, params AcceptParams) (Record, error) {
	status, err := s.payments.StatusTx(ctx, tx, params.EscrowPaymentID)
	if err != nil {
		return Record{}, err
	}
	if status != "verified" {
		return Record{}, ErrPaymentNotVerified
	}

	rec, err := s.repo.Activate(ctx, tx, params.EngagementID, params.EscrowPaymentID, params.ActorID)
	if err != nil {
		return Record{}, err
	}

	if s.channels != nil {
		if err := s.channels.Open(ctx, tx, rec.ID); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// RejectParams identifies the engagement and the company actor rejecting it.
type RejectParams struct {
	EngagementID string
	CompanyID    string
	ActorID      string
}

// Reject terminates the engagement before any work was delivered.
func (s *Service) Reject(ctx context.Context, params RejectParams) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("engagement: begin reject tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetTx(ctx, tx, params.EngagementID)
	if err != nil {
		return Record{}, err
	}
	if current.CompanyID != params.CompanyID {
		return Record{}, ErrForbidden
	}

	rec, err := s.repo.Reject(ctx, tx, params.EngagementID, params.ActorID)
	if err != nil {
		return Record{}, err
	}

	if s.channels != nil {
		if err := s.channels.Apply(ctx, tx, rec.ID, rec.Status); err != nil {
			return Record{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("engagement: commit reject: %w", err)
	}
	return rec, nil
}

// DisputeParams identifies the exhausted engagement and the candidate
// escalating it.
type DisputeParams struct {
	EngagementID string
	CandidateID  string
}

// RaiseDispute escalates an exhausted engagement once the candidate has
// consumed at least half the iteration budget. The status flip and the
// dispute record commit together.
func (s *Service) RaiseDispute(ctx context.Context, params DisputeParams) (Record, string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, "", fmt.Errorf("engagement: begin dispute tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetTx(ctx, tx, params.EngagementID)
	if err != nil {
		return Record{}, "", err
	}
	if current.CandidateID != params.CandidateID {
		return Record{}, "", ErrForbidden
	}
	if current.Status != StatusExhausted {
		return Record{}, "", ErrInvalidTransition
	}
	if !current.Ledger.DisputeEligible() {
		return Record{}, "", ErrDisputeNotEligible
	}

	rec, err := s.repo.Transition(ctx, tx, TransitionParams{
		EngagementID:   params.EngagementID,
		ExpectedStatus: StatusExhausted,
		ExpectedUsed:   current.Ledger.Used,
		NextStatus:     StatusDisputed,
		ActorID:        params.CandidateID,
		EventType:      "DISPUTE_RAISED",
	})
	if err != nil {
		return Record{}, "", err
	}

	var disputeID string
	if s.disputes != nil {
		disputeID, err = s.disputes.CreateTx(ctx, tx, rec.ID)
		if err != nil {
			return Record{}, "", err
		}
	}

	if s.channels != nil {
		if err := s.channels.Apply(ctx, tx, rec.ID, rec.Status); err != nil {
			return Record{}, "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, "", fmt.Errorf("engagement: commit dispute: %w", err)
	}
	return rec, disputeID, nil
}

// Get returns one engagement by id.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("engagement: begin get tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetTx(ctx, tx, id)
	if err != nil {
		return Record{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("engagement: commit get: %w", err)
	}
	return rec, nil
}
