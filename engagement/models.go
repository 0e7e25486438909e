package engagement

import "time"

// Status is the single source of truth for an engagement's lifecycle.
type Status string

const (
	StatusPending           Status = "pending"
	StatusActive            Status = "active"
	StatusRevisionRequested Status = "revision_requested"
	StatusCompleted         Status = "completed"
	StatusRejected          Status = "rejected"
	StatusExhausted         Status = "exhausted"
	StatusDisputed          Status = "disputed"
)

// Terminal reports whether no further transitions are possible from s.
// Exhausted engagements may still spawn a dispute, but the dispute engine
// owns that record; the engagement itself only flips to disputed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusDisputed:
		return true
	}
	return false
}

// Closed reports whether the engagement no longer accepts submissions or
// reviews. Unlike Terminal, exhausted counts as closed.
func (s Status) Closed() bool {
	return s.Terminal() || s == StatusExhausted
}

// Record mirrors the engagements table.
type Record struct {
	ID                  string
	GigID               string
	CompanyID           string
	CandidateID         string
	Status              Status
	Ledger              Ledger
	EscrowPaymentID     *string
	CurrentSubmissionID *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Event captures an immutable business event for an engagement.
type Event struct {
	ID           int64
	EngagementID string
	Type         string
	ActorID      *string
	Payload      []byte
	CreatedAt    time.Time
}

const (
	OutboxTopicEngagementCreated       = "engagement.created"
	OutboxTopicEngagementActivated     = "engagement.activated"
	OutboxTopicEngagementStatusChanged = "engagement.status_changed"
)
