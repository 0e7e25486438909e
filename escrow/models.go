package escrow

import "time"

// Status represents the lifecycle of one funding attempt.
type Status string

const (
	StatusInitiated           Status = "initiated"
	StatusPendingVerification Status = "pending_verification"
	StatusVerified            Status = "verified"
	StatusFailed              Status = "failed"
)

// Payment mirrors the escrow_payments table. Owned exclusively by this
// package; the engagement only ever holds a reference.
type Payment struct {
	ID                string
	EngagementID      string
	Status            Status
	Amount            int64
	GatewayOrderRef   string
	GatewayPaymentRef *string
	Signature         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HistoryEntry is one append-only row of a payment's status history.
type HistoryEntry struct {
	ID        int64
	PaymentID string
	Status    Status
	Detail    string
	CreatedAt time.Time
}

const (
	OutboxTopicEscrowVerified = "escrow.verified"
	OutboxTopicEscrowFailed   = "escrow.failed"
)
