package gig

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("gig: not found")
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, g Gig) (Gig, error)
	Get(ctx context.Context, id string) (Gig, error)
	List(ctx context.Context, filters Filters) ([]Gig, int, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Gig, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const gigColumns = `id, company_id, created_by_user_id, title, description, amount, total_iterations, status, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, g Gig) (Gig, error) {
	const query = `
        INSERT INTO gigs (company_id, created_by_user_id, title, description, amount, total_iterations, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING ` + gigColumns

	row := tx.QueryRow(ctx, query,
		g.CompanyID,
		g.CreatedByUserID,
		g.Title,
		g.Description,
		g.Amount,
		g.TotalIterations,
		g.Status,
	)
	return scanGig(row)
}

func (r *PGRepository) Get(ctx context.Context, id string) (Gig, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id = $1`, id)
	g, err := scanGig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Gig{}, ErrNotFound
		}
		return Gig{}, fmt.Errorf("gig: get: %w", err)
	}
	return g, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Gig, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	base := `SELECT ` + gigColumns + ` FROM gigs`
	where := []string{"1=1"}
	args := []any{}

	if filters.CompanyID != "" {
		where = append(where, fmt.Sprintf("company_id=$%d", len(args)+1))
		args = append(args, filters.CompanyID)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")

	sortKey := mapSortKey(filters.SortKey)
	sortOrder := strings.ToUpper(filters.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`%s%s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, sortKey, sortOrder, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("gig: query list: %w", err)
	}
	defer rows.Close()

	list := []Gig{}
	for rows.Next() {
		g, err := scanGig(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("gig: iterate list: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM gigs%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("gig: count list: %w", err)
	}

	return list, total, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Gig, error) {
	const query = `
		UPDATE gigs
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + gigColumns

	g, err := scanGig(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Gig{}, ErrNotFound
		}
		return Gig{}, fmt.Errorf("gig: update status: %w", err)
	}
	return g, nil
}

func scanGig(row pgx.Row) (Gig, error) {
	var g Gig
	return g, row.Scan(
		&g.ID,
		&g.CompanyID,
		&g.CreatedByUserID,
		&g.Title,
		&g.Description,
		&g.Amount,
		&g.TotalIterations,
		&g.Status,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
}

func mapSortKey(key string) string {
	switch key {
	case "amount":
		return "amount"
	case "title":
		return "title"
	case "status":
		return "status"
	case "updatedAt":
		return "updated_at"
	case "createdAt":
		fallthrough
	default:
		return "created_at"
	}
}
