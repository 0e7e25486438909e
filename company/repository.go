package company

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested company does not exist.
var ErrNotFound = errors.New("company: not found")

// Repository provides read access to company profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileSQL = `
	SELECT c.id, c.name, c.verified,
	       COALESCE(ce.active AND (ce.expires_at IS NULL OR ce.expires_at > now()), FALSE),
	       c.created_at
	FROM companies c
	LEFT JOIN company_entitlements ce ON ce.company_id = c.id
`

// GetByID fetches a company profile by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	var profile Profile
	err := r.pool.QueryRow(ctx, profileSQL+` WHERE c.id = $1`, id).Scan(
		&profile.ID,
		&profile.Name,
		&profile.Verified,
		&profile.Entitled,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("company: query by id: %w", err)
	}

	return profile, nil
}

// List fetches up to limit company profiles ordered by name.
func (r *Repository) List(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, profileSQL+` ORDER BY c.name ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("company: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		var profile Profile
		if err := rows.Scan(&profile.ID, &profile.Name, &profile.Verified, &profile.Entitled, &profile.CreatedAt); err != nil {
			return nil, fmt.Errorf("company: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("company: iterate profiles: %w", err)
	}

	return profiles, nil
}
