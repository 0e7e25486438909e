package gig

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"gigflow/engagement"
	"gigflow/entitlement"
)

// Service handles gig posting and listing. Posting is gated on the
// company's entitlement.
type Service struct {
	pool         *pgxpool.Pool
	repo         Repository
	entitlements entitlement.Checker
}

type CreateParams struct {
	CompanyID       string
	CreatedByUserID string
	Title           string
	Description     string
	Amount          int64
	TotalIterations int
}

type ListResult struct {
	Items []Gig
	Total int
}

func NewService(pool *pgxpool.Pool, repo Repository, entitlements entitlement.Checker) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	if entitlements == nil {
		entitlements = entitlement.AllowAll{}
	}
	return &Service{
		pool:         pool,
		repo:         repo,
		entitlements: entitlements,
	}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Gig, error) {
	if params.CompanyID == "" {
		return Gig{}, fmt.Errorf("gig: missing company id")
	}
	if params.Title == "" {
		return Gig{}, fmt.Errorf("gig: title required")
	}
	if params.Amount <= 0 {
		return Gig{}, fmt.Errorf("gig: invalid amount")
	}
	if params.TotalIterations < 1 || params.TotalIterations > 20 {
		return Gig{}, fmt.Errorf("gig: iteration budget out of range")
	}
	if err := entitlement.Require(ctx, s.entitlements, params.CompanyID); err != nil {
		return Gig{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Gig{}, fmt.Errorf("gig: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, Gig{
		CompanyID:       params.CompanyID,
		CreatedByUserID: params.CreatedByUserID,
		Title:           params.Title,
		Description:     params.Description,
		Amount:          params.Amount,
		TotalIterations: params.TotalIterations,
		Status:          StatusOpen,
	})
	if err != nil {
		return Gig{}, fmt.Errorf("gig: create: %w", err)
	}

	if err := engagement.EnqueueOutbox(ctx, tx, "gig.created", map[string]any{
		"gig_id":     created.ID,
		"company_id": created.CompanyID,
		"amount":     created.Amount,
	}); err != nil {
		return Gig{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Gig{}, fmt.Errorf("gig: commit tx: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Gig, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}
