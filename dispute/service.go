package dispute

import "context"

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, partyID, engagementID string) ([]Record, error) {
	return s.repo.List(ctx, partyID, engagementID)
}

func (s *Service) Get(ctx context.Context, disputeID string) (Record, error) {
	return s.repo.Get(ctx, disputeID)
}

func (s *Service) Resolve(ctx context.Context, disputeID string) (Record, error) {
	return s.repo.Resolve(ctx, disputeID)
}
