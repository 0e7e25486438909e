package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gigflow/engagement"
)

var (
	// ErrNoFiles rejects a submission with nothing attached.
	ErrNoFiles = errors.New("submission: at least one file required")
	// ErrInvalidOutcome rejects review outcomes outside the enum.
	ErrInvalidOutcome = errors.New("submission: invalid review outcome")
	// ErrFeedbackRequired rejects a revision request without feedback; the
	// candidate cannot act on an empty revision.
	ErrFeedbackRequired = errors.New("submission: feedback required for revision request")
)

// BlobStore persists deliverable files before any database state changes.
// Implemented by storage.DirStore.
type BlobStore interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
}

// Service drives the deliverable review flow. Submit belongs to the
// candidate, Review to the company; every review outcome commits the
// submission stamp and the engagement transition in one transaction.
type Service struct {
	pool        engagement.TxBeginner
	repo        *Repository
	engagements *engagement.Repository
	channels    engagement.ChannelSync
	blobs       BlobStore
}

func NewService(pool engagement.TxBeginner, repo *Repository, engagements *engagement.Repository, channels engagement.ChannelSync, blobs BlobStore) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	if engagements == nil {
		engagements = engagement.NewRepository()
	}
	return &Service{
		pool:        pool,
		repo:        repo,
		engagements: engagements,
		channels:    channels,
		blobs:       blobs,
	}
}

// SubmitParams carries one deliverable version from the candidate.
type SubmitParams struct {
	EngagementID string
	CandidateID  string
	Description  string
	Files        []File
}

// Submit records a new deliverable version. Files go to blob storage before
// the transaction opens, so a storage failure changes nothing; the INSERT
// itself re-checks engagement status and remaining budget, so the precheck
// read can be stale without risk.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Record, error) {
	if len(params.Files) == 0 {
		return Record{}, ErrNoFiles
	}

	current, err := s.readEngagement(ctx, params.EngagementID)
	if err != nil {
		return Record{}, err
	}
	if current.CandidateID != params.CandidateID {
		return Record{}, engagement.ErrForbidden
	}
	if err := submitRejection(current); err != nil {
		return Record{}, err
	}

	urls := make([]string, 0, len(params.Files))
	for _, f := range params.Files {
		url, err := s.blobs.Store(ctx, f.Data, f.ContentType)
		if err != nil {
			return Record{}, fmt.Errorf("submission: store %s: %w", f.Name, err)
		}
		urls = append(urls, url)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("submission: begin submit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.Insert(ctx, tx, params.EngagementID, params.Description, urls)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Record{}, err
		}
		// The guard rejected the insert. Re-read to tell the caller why.
		fresh, err := s.engagements.GetTx(ctx, tx, params.EngagementID)
		if err != nil {
			return Record{}, err
		}
		if cause := submitRejection(fresh); cause != nil {
			return Record{}, cause
		}
		return Record{}, engagement.ErrConcurrentModification
	}

	// A resubmission after a revision request moves the engagement back to
	// active; the CAS runs against the state observed in the precheck so a
	// concurrent reviewer surfaces as ErrConcurrentModification.
	if current.Status == engagement.StatusRevisionRequested {
		if _, err := s.engagements.Transition(ctx, tx, engagement.TransitionParams{
			EngagementID:   params.EngagementID,
			ExpectedStatus: engagement.StatusRevisionRequested,
			ExpectedUsed:   current.Ledger.Used,
			NextStatus:     engagement.StatusActive,
			ActorID:        params.CandidateID,
			EventType:      "SUBMISSION_RECEIVED",
			Payload:        map[string]any{"submission_id": rec.ID, "iteration_number": rec.IterationNumber},
		}); err != nil {
			return Record{}, err
		}
	} else {
		if err := engagement.AppendEvent(ctx, tx, params.EngagementID, "SUBMISSION_RECEIVED", params.CandidateID, map[string]any{
			"submission_id":    rec.ID,
			"iteration_number": rec.IterationNumber,
		}); err != nil {
			return Record{}, err
		}
	}

	if err := s.engagements.SetCurrentSubmission(ctx, tx, params.EngagementID, rec.ID); err != nil {
		return Record{}, err
	}

	if err := engagement.EnqueueOutbox(ctx, tx, OutboxTopicSubmissionReceived, map[string]any{
		"engagement_id":    params.EngagementID,
		"submission_id":    rec.ID,
		"iteration_number": rec.IterationNumber,
	}); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("submission: commit submit: %w", err)
	}
	return rec, nil
}

// ReviewParams carries the company's verdict on one pending submission.
type ReviewParams struct {
	SubmissionID string
	CompanyID    string
	Outcome      Outcome
	Feedback     string
}

// Review stamps the outcome and drives the engagement accordingly, all in
// one transaction: approved completes, rejected terminates, a revision
// request consumes one iteration and either hands the work back or exhausts
// the budget.
func (s *Service) Review(ctx context.Context, params ReviewParams) (Record, engagement.Record, error) {
	if !params.Outcome.Valid() {
		return Record{}, engagement.Record{}, ErrInvalidOutcome
	}
	if params.Outcome == OutcomeRevisionRequested && params.Feedback == "" {
		return Record{}, engagement.Record{}, ErrFeedbackRequired
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, engagement.Record{}, fmt.Errorf("submission: begin review tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.repo.GetTx(ctx, tx, params.SubmissionID)
	if err != nil {
		return Record{}, engagement.Record{}, err
	}
	if sub.ReviewOutcome != OutcomePending {
		return Record{}, engagement.Record{}, ErrAlreadyReviewed
	}

	// Row lock before StampOutcome keeps the engagements-then-submissions
	// lock order shared with the submit path.
	eng, err := s.engagements.LockTx(ctx, tx, sub.EngagementID)
	if err != nil {
		return Record{}, engagement.Record{}, err
	}
	if eng.CompanyID != params.CompanyID {
		return Record{}, engagement.Record{}, engagement.ErrForbidden
	}
	if eng.Status != engagement.StatusActive {
		return Record{}, engagement.Record{}, engagement.ErrInvalidTransition
	}

	consume := params.Outcome != OutcomeRejected
	if consume && eng.Ledger.Remaining() <= 0 {
		return Record{}, engagement.Record{}, &engagement.NoIterationsRemainingError{
			Remaining:       eng.Ledger.Remaining(),
			DisputeEligible: eng.Ledger.DisputeEligible(),
		}
	}

	var feedback *string
	if params.Feedback != "" {
		feedback = &params.Feedback
	}
	sub, err = s.repo.StampOutcome(ctx, tx, params.SubmissionID, params.Outcome, feedback)
	if err != nil {
		return Record{}, engagement.Record{}, err
	}

	next, eventType := reviewTransition(params.Outcome, eng.Ledger)
	eng, err = s.engagements.Transition(ctx, tx, engagement.TransitionParams{
		EngagementID:   eng.ID,
		ExpectedStatus: engagement.StatusActive,
		ExpectedUsed:   eng.Ledger.Used,
		NextStatus:     next,
		ConsumeBudget:  consume,
		ActorID:        params.CompanyID,
		EventType:      eventType,
		Payload:        map[string]any{"submission_id": sub.ID, "outcome": string(params.Outcome)},
	})
	if err != nil {
		return Record{}, engagement.Record{}, err
	}

	if s.channels != nil {
		if err := s.channels.Apply(ctx, tx, eng.ID, eng.Status); err != nil {
			return Record{}, engagement.Record{}, err
		}
	}

	if err := engagement.EnqueueOutbox(ctx, tx, OutboxTopicSubmissionReviewed, map[string]any{
		"engagement_id": eng.ID,
		"submission_id": sub.ID,
		"outcome":       string(params.Outcome),
	}); err != nil {
		return Record{}, engagement.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, engagement.Record{}, fmt.Errorf("submission: commit review: %w", err)
	}
	return sub, eng, nil
}

// Get returns one submission. Both parties to the engagement may read it.
func (s *Service) Get(ctx context.Context, id, actorID string) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("submission: begin get tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sub, err := s.repo.GetTx(ctx, tx, id)
	if err != nil {
		return Record{}, err
	}
	eng, err := s.engagements.GetTx(ctx, tx, sub.EngagementID)
	if err != nil {
		return Record{}, err
	}
	if eng.CandidateID != actorID && eng.CompanyID != actorID {
		return Record{}, engagement.ErrForbidden
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("submission: commit get: %w", err)
	}
	return sub, nil
}

func (s *Service) readEngagement(ctx context.Context, id string) (engagement.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return engagement.Record{}, fmt.Errorf("submission: begin read tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.engagements.GetTx(ctx, tx, id)
	if err != nil {
		return engagement.Record{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return engagement.Record{}, fmt.Errorf("submission: commit read: %w", err)
	}
	return rec, nil
}

// reviewTransition maps a review outcome onto the engagement edge it drives.
// A revision request that lands on the last iteration exhausts the budget
// instead of handing the work back.
func reviewTransition(outcome Outcome, ledger engagement.Ledger) (engagement.Status, string) {
	switch outcome {
	case OutcomeApproved:
		return engagement.StatusCompleted, "SUBMISSION_APPROVED"
	case OutcomeRejected:
		return engagement.StatusRejected, "SUBMISSION_REJECTED"
	default:
		if ledger.Remaining() <= 1 {
			return engagement.StatusExhausted, "ITERATIONS_EXHAUSTED"
		}
		return engagement.StatusRevisionRequested, "REVISION_REQUESTED"
	}
}

// submitRejection classifies why an engagement cannot take a submission,
// or returns nil when it can.
func submitRejection(rec engagement.Record) error {
	switch rec.Status {
	case engagement.StatusActive, engagement.StatusRevisionRequested:
	default:
		return engagement.ErrInvalidTransition
	}
	if rec.Ledger.Remaining() <= 0 {
		return &engagement.NoIterationsRemainingError{
			Remaining:       rec.Ledger.Remaining(),
			DisputeEligible: rec.Ledger.DisputeEligible(),
		}
	}
	return nil
}
