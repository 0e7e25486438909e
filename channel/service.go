package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gigflow/engagement"
)

// EngagementReader loads engagement state for ownership checks.
type EngagementReader interface {
	GetTx(ctx context.Context, tx pgx.Tx, id string) (engagement.Record, error)
}

// Service exposes the company-facing channel operations: scheduling and
// cancelling a close on a still-open channel.
type Service struct {
	pool    *pgxpool.Pool
	repo    *Repository
	records EngagementReader
}

func NewService(pool *pgxpool.Pool, repo *Repository, records EngagementReader) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{pool: pool, repo: repo, records: records}
}

// Get returns the channel bound to an engagement.
func (s *Service) Get(ctx context.Context, engagementID string) (Record, error) {
	return s.repo.Get(ctx, s.pool, engagementID)
}

// ScheduleClose sets a close timer on the engagement's open channel.
// Company-only.
func (s *Service) ScheduleClose(ctx context.Context, engagementID, companyID string, at time.Time) (Record, error) {
	if at.Before(time.Now()) {
		return Record{}, fmt.Errorf("channel: scheduled close must be in the future")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("channel: begin schedule tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.authorize(ctx, tx, engagementID, companyID); err != nil {
		return Record{}, err
	}

	rec, err := s.repo.ScheduleClose(ctx, tx, engagementID, at)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("channel: commit schedule: %w", err)
	}
	return rec, nil
}

// CancelScheduledClose clears the timer on the engagement's open channel.
// Company-only; a close already executed wins.
func (s *Service) CancelScheduledClose(ctx context.Context, engagementID, companyID string) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("channel: begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.authorize(ctx, tx, engagementID, companyID); err != nil {
		return Record{}, err
	}

	rec, err := s.repo.CancelScheduledClose(ctx, tx, engagementID)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("channel: commit cancel: %w", err)
	}
	return rec, nil
}

func (s *Service) authorize(ctx context.Context, tx pgx.Tx, engagementID, companyID string) error {
	rec, err := s.records.GetTx(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if rec.CompanyID != companyID {
		return engagement.ErrForbidden
	}
	return nil
}
