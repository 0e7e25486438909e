package submission

import "time"

// Outcome is the review result of one submitted version. Set exactly once;
// a submission is never edited afterward.
type Outcome string

const (
	OutcomePending           Outcome = "pending"
	OutcomeRevisionRequested Outcome = "revision_requested"
	OutcomeApproved          Outcome = "approved"
	OutcomeRejected          Outcome = "rejected"
)

// Valid reports whether o is a reviewable outcome (pending is the initial
// state, not a review decision).
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeRevisionRequested, OutcomeApproved, OutcomeRejected:
		return true
	}
	return false
}

// Record mirrors the submissions table. Immutable once created except for
// the single review stamp.
type Record struct {
	ID              string
	EngagementID    string
	IterationNumber int
	ReviewOutcome   Outcome
	Description     string
	Feedback        *string
	FileURLs        []string
	CreatedAt       time.Time
	ReviewedAt      *time.Time
}

const (
	OutboxTopicSubmissionReceived = "submission.received"
	OutboxTopicSubmissionReviewed = "submission.reviewed"
)

// File is one deliverable attachment handed to blob storage before the
// submission row exists.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}
