package gig

import "time"

type Status string

const (
	StatusOpen   Status = "open"
	StatusFilled Status = "filled"
	StatusClosed Status = "closed"
)

// Gig is one posted piece of work. The iteration budget set here is copied
// onto every engagement spawned from it.
type Gig struct {
	ID              string
	CompanyID       string
	CreatedByUserID string
	Title           string
	Description     string
	Amount          int64
	TotalIterations int
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ApplicationState string

const (
	ApplicationApplied  ApplicationState = "applied"
	ApplicationAccepted ApplicationState = "accepted"
	ApplicationDeclined ApplicationState = "declined"
)

// Application is one candidate's bid on a gig.
type Application struct {
	ID          string
	GigID       string
	CandidateID string
	State       ApplicationState
	CoverNote   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filters narrows and pages the gig listing.
type Filters struct {
	CompanyID string
	Status    Status
	Page      int
	PageSize  int
	SortKey   string
	SortOrder string
}
