package channel

import "time"

// AccessState gates reads and writes on the messaging thread.
type AccessState string

const (
	AccessOpen     AccessState = "open"
	AccessReadOnly AccessState = "read_only"
)

// Close reasons recorded when a channel leaves the open state.
const (
	CloseReasonCompleted = "completed"
	CloseReasonRejected  = "rejected"
	CloseReasonExhausted = "exhausted"
	CloseReasonDisputed  = "disputed"
	CloseReasonArchived  = "approved_and_archived"
	CloseReasonByCompany = "closed_by_company"
)

// Record mirrors the channels table: one messaging thread per engagement.
type Record struct {
	ID                string
	EngagementID      string
	AccessState       AccessState
	CloseReason       *string
	ScheduledCloseAt  *time.Time
	CloseWarningsSent int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ArchiveDelay is how long a completed engagement's channel stays before the
// archival close fires.
const ArchiveDelay = 14 * 24 * time.Hour

// WarningWindow is how close to a scheduled close the single warning
// notification goes out.
const WarningWindow = time.Hour
