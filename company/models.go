package company

import "time"

// Profile captures the subset of company data exposed via the public API layer.
type Profile struct {
	ID        string
	Name      string
	Verified  bool
	Entitled  bool
	CreatedAt time.Time
}
