package engagement

import "fmt"

const (
	// MinIterations and MaxIterations bound the per-engagement budget.
	MinIterations = 1
	MaxIterations = 20
)

// Ledger tracks the iteration budget of one engagement. Used only ever
// increases; Remaining is derived, never stored.
type Ledger struct {
	Total int
	Used  int
}

// NewLedger validates the budget bounds and returns a fresh ledger.
func NewLedger(total int) (Ledger, error) {
	if total < MinIterations || total > MaxIterations {
		return Ledger{}, fmt.Errorf("engagement: total iterations %d out of range [%d,%d]", total, MinIterations, MaxIterations)
	}
	return Ledger{Total: total}, nil
}

// Remaining returns the unconsumed budget.
func (l Ledger) Remaining() int {
	return l.Total - l.Used
}

// Consume returns the ledger after one iteration is charged. A ledger with
// no remaining budget returns NoIterationsRemainingError.
func (l Ledger) Consume() (Ledger, error) {
	if l.Remaining() <= 0 {
		return l, &NoIterationsRemainingError{Remaining: 0, DisputeEligible: l.DisputeEligible()}
	}
	l.Used++
	return l, nil
}

// DisputeEligible reports whether enough budget was consumed for the
// candidate to raise a dispute: used >= ceil(total/2).
func (l Ledger) DisputeEligible() bool {
	return 2*l.Used >= l.Total
}
