package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEntitlementRequired signals the company's plan does not cover the
// attempted action. Mapped to 402 at the HTTP edge.
var ErrEntitlementRequired = errors.New("entitlement: company not entitled")

// Checker answers whether a company may post gigs and accept applications.
// Billing itself lives elsewhere; only this predicate is consumed here.
type Checker interface {
	CanActOn(ctx context.Context, companyID string) (bool, error)
}

// PGChecker reads the entitlement flag straight from the database.
type PGChecker struct {
	pool *pgxpool.Pool
}

func NewPGChecker(pool *pgxpool.Pool) *PGChecker {
	return &PGChecker{pool: pool}
}

func (c *PGChecker) CanActOn(ctx context.Context, companyID string) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM company_entitlements
    WHERE company_id = $1
      AND active
      AND (expires_at IS NULL OR expires_at > now())
)`
	var ok bool
	if err := c.pool.QueryRow(ctx, q, companyID).Scan(&ok); err != nil {
		return false, fmt.Errorf("entitlement: check %s: %w", companyID, err)
	}
	return ok, nil
}

// Require wraps a Checker call into the sentinel the services consume.
func Require(ctx context.Context, checker Checker, companyID string) error {
	ok, err := checker.CanActOn(ctx, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntitlementRequired
	}
	return nil
}

// AllowAll is a Checker that grants everything. Used in tests and local
// development where billing is absent.
type AllowAll struct{}

func (AllowAll) CanActOn(context.Context, string) (bool, error) { return true, nil }
