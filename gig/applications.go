package gig

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gigflow/engagement"
	"gigflow/entitlement"
)

var (
	ErrApplicationNotFound  = errors.New("gig: application not found")
	ErrAlreadyApplied       = errors.New("gig: candidate already applied")
	ErrGigNotOpen           = errors.New("gig: not open for applications")
	ErrApplicationForbidden = errors.New("gig: application forbidden")
	ErrApplicationState     = errors.New("gig: invalid application state")
)

type ApplicationRepository interface {
	Apply(ctx context.Context, candidateID, gigID, coverNote string) (Application, error)
	ListForGig(ctx context.Context, gigID, ownerCompanyID string) ([]Application, error)
	ListForCandidate(ctx context.Context, candidateID string) ([]Application, error)
	GetByID(ctx context.Context, id string) (Application, error)
}

type PGApplicationRepository struct {
	pool *pgxpool.Pool
}

func NewApplicationRepository(pool *pgxpool.Pool) *PGApplicationRepository {
	return &PGApplicationRepository{pool: pool}
}

const applicationColumns = `id, gig_id, candidate_id, state::text, cover_note, created_at, updated_at`

// Apply files a candidate's bid. The open-gig guard runs inside the INSERT;
// a second application from the same candidate hits the unique pair
// constraint.
func (r *PGApplicationRepository) Apply(ctx context.Context, candidateID, gigID, coverNote string) (Application, error) {
	const query = `
		INSERT INTO applications (gig_id, candidate_id, cover_note)
		SELECT g.id, $2, $3
		FROM gigs g
		WHERE g.id = $1 AND g.status = 'open'
		RETURNING ` + applicationColumns

	var app Application
	err := r.pool.QueryRow(ctx, query, gigID, candidateID, coverNote).Scan(
		&app.ID, &app.GigID, &app.CandidateID, &app.State, &app.CoverNote, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrGigNotOpen
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Application{}, ErrAlreadyApplied
		}
		return Application{}, fmt.Errorf("gig: apply: %w", err)
	}
	return app, nil
}

func (r *PGApplicationRepository) ListForGig(ctx context.Context, gigID, ownerCompanyID string) ([]Application, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gigs WHERE id=$1 AND company_id=$2)`, gigID, ownerCompanyID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("gig: verify owner: %w", err)
	}
	if !exists {
		return nil, ErrApplicationForbidden
	}

	const query = `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE gig_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, gigID)
	if err != nil {
		return nil, fmt.Errorf("gig: list applications: %w", err)
	}
	defer rows.Close()
	return collectApplications(rows)
}

func (r *PGApplicationRepository) ListForCandidate(ctx context.Context, candidateID string) ([]Application, error) {
	const query = `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE candidate_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, candidateID)
	if err != nil {
		return nil, fmt.Errorf("gig: list candidate applications: %w", err)
	}
	defer rows.Close()
	return collectApplications(rows)
}

func (r *PGApplicationRepository) GetByID(ctx context.Context, id string) (Application, error) {
	const query = `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	var app Application
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&app.ID, &app.GigID, &app.CandidateID, &app.State, &app.CoverNote, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrApplicationNotFound
		}
		return Application{}, fmt.Errorf("gig: get application: %w", err)
	}
	return app, nil
}

func collectApplications(rows pgx.Rows) ([]Application, error) {
	out := make([]Application, 0, 8)
	for rows.Next() {
		var app Application
		if err := rows.Scan(&app.ID, &app.GigID, &app.CandidateID, &app.State, &app.CoverNote, &app.CreatedAt, &app.UpdatedAt); err != nil {
			return nil, fmt.Errorf("gig: scan application: %w", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gig: iterate applications: %w", err)
	}
	return out, nil
}

// ApplicationService handles candidate bids and the company's acceptance
// decision. Acceptance projects the application into the engagements domain
// in one transaction.
type ApplicationService struct {
	pool         *pgxpool.Pool
	repo         ApplicationRepository
	gigs         Repository
	engagements  *engagement.Repository
	entitlements entitlement.Checker
}

func NewApplicationService(pool *pgxpool.Pool, repo ApplicationRepository, gigs Repository, engagements *engagement.Repository, entitlements entitlement.Checker) *ApplicationService {
	if repo == nil {
		repo = NewApplicationRepository(pool)
	}
	if gigs == nil {
		gigs = NewRepository(pool)
	}
	if engagements == nil {
		engagements = engagement.NewRepository()
	}
	if entitlements == nil {
		entitlements = entitlement.AllowAll{}
	}
	return &ApplicationService{
		pool:         pool,
		repo:         repo,
		gigs:         gigs,
		engagements:  engagements,
		entitlements: entitlements,
	}
}

func (s *ApplicationService) Apply(ctx context.Context, candidateID, gigID, coverNote string) (Application, error) {
	if candidateID == "" {
		return Application{}, fmt.Errorf("gig: apply missing candidate id")
	}
	return s.repo.Apply(ctx, candidateID, gigID, coverNote)
}

func (s *ApplicationService) ListForGig(ctx context.Context, gigID, companyID string) ([]Application, error) {
	return s.repo.ListForGig(ctx, gigID, companyID)
}

func (s *ApplicationService) ListForCandidate(ctx context.Context, candidateID string) ([]Application, error) {
	return s.repo.ListForCandidate(ctx, candidateID)
}

// AcceptParams identifies the application and the company actor accepting it.
type AcceptParams struct {
	ApplicationID string
	CompanyID     string
	ActorID       string
}

// AcceptResult carries the accepted application and the pending engagement
// it spawned.
type AcceptResult struct {
	Application Application
	Engagement  engagement.Record
}

// Accept marks the application accepted and creates the pending engagement,
// inheriting the gig's iteration budget. Safe to retry: an application
// already accepted returns its live engagement instead of failing.
func (s *ApplicationService) Accept(ctx context.Context, params AcceptParams) (AcceptResult, error) {
	app, err := s.repo.GetByID(ctx, params.ApplicationID)
	if err != nil {
		return AcceptResult{}, err
	}

	g, err := s.gigs.Get(ctx, app.GigID)
	if err != nil {
		return AcceptResult{}, err
	}
	if g.CompanyID != params.CompanyID {
		return AcceptResult{}, ErrApplicationForbidden
	}
	if err := entitlement.Require(ctx, s.entitlements, params.CompanyID); err != nil {
		return AcceptResult{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return AcceptResult{}, fmt.Errorf("gig: begin acceptance tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const lockSQL = `
SELECT state::text
FROM applications
WHERE id = $1
FOR UPDATE
`
	var currentState string
	if err := tx.QueryRow(ctx, lockSQL, app.ID).Scan(&currentState); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AcceptResult{}, ErrApplicationNotFound
		}
		return AcceptResult{}, fmt.Errorf("gig: lock application: %w", err)
	}

	switch ApplicationState(currentState) {
	case ApplicationAccepted:
		// Already accepted, continue for the idempotent replay.
	case ApplicationApplied:
		if _, err := tx.Exec(ctx, `
UPDATE applications
SET state = 'accepted'::application_state, updated_at = now()
WHERE id = $1
`, app.ID); err != nil {
			return AcceptResult{}, fmt.Errorf("gig: mark accepted: %w", err)
		}
	default:
		return AcceptResult{}, ErrApplicationState
	}

	eng, err := s.engagements.Create(ctx, tx, engagement.CreateParams{
		GigID:           g.ID,
		CompanyID:       g.CompanyID,
		CandidateID:     app.CandidateID,
		TotalIterations: g.TotalIterations,
		ActorID:         params.ActorID,
	})
	if err != nil {
		if errors.Is(err, engagement.ErrDuplicateEngagement) {
			existing, found, ferr := s.engagements.FindLive(ctx, tx, g.ID, app.CandidateID)
			if ferr != nil {
				return AcceptResult{}, ferr
			}
			if !found {
				return AcceptResult{}, err
			}
			eng = existing
		} else {
			return AcceptResult{}, err
		}
	}

	// Tag the gig filled if still open.
	if g.Status == StatusOpen {
		if _, err := tx.Exec(ctx, `
UPDATE gigs
SET status = 'filled', updated_at = now()
WHERE id = $1 AND status = 'open'
`, g.ID); err != nil {
			return AcceptResult{}, fmt.Errorf("gig: tag filled: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return AcceptResult{}, fmt.Errorf("gig: commit acceptance: %w", err)
	}

	accepted, err := s.repo.GetByID(ctx, app.ID)
	if err != nil {
		return AcceptResult{}, err
	}
	return AcceptResult{Application: accepted, Engagement: eng}, nil
}

// Decline turns the application down. Only the gig's company may decline.
func (s *ApplicationService) Decline(ctx context.Context, applicationID, companyID string) (Application, error) {
	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}
	g, err := s.gigs.Get(ctx, app.GigID)
	if err != nil {
		return Application{}, err
	}
	if g.CompanyID != companyID {
		return Application{}, ErrApplicationForbidden
	}
	if app.State != ApplicationApplied {
		return Application{}, ErrApplicationState
	}

	const query = `
		UPDATE applications
		SET state = 'declined'::application_state, updated_at = now()
		WHERE id = $1 AND state = 'applied'
		RETURNING ` + applicationColumns

	var declined Application
	err = s.pool.QueryRow(ctx, query, applicationID).Scan(
		&declined.ID, &declined.GigID, &declined.CandidateID, &declined.State, &declined.CoverNote, &declined.CreatedAt, &declined.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrApplicationState
		}
		return Application{}, fmt.Errorf("gig: decline: %w", err)
	}
	return declined, nil
}
