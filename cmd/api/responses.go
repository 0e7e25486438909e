package main

import (
	"time"

	"gigflow/channel"
	"gigflow/company"
	"gigflow/dispute"
	"gigflow/engagement"
	"gigflow/escrow"
	"gigflow/gig"
	"gigflow/identity"
	"gigflow/submission"
)

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func toUserResponse(u identity.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
	if u.CompanyID != nil {
		resp.CompanyID = *u.CompanyID
	}
	return resp
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type companyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Verified  bool   `json:"verified"`
	Entitled  bool   `json:"entitled"`
	CreatedAt string `json:"createdAt"`
}

func toCompanyResponse(p company.Profile) companyResponse {
	return companyResponse{
		ID:        p.ID,
		Name:      p.Name,
		Verified:  p.Verified,
		Entitled:  p.Entitled,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

type createGigRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Amount          int64  `json:"amount"`
	TotalIterations int    `json:"totalIterations"`
}

type gigResponse struct {
	ID              string `json:"id"`
	CompanyID       string `json:"companyId"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Amount          int64  `json:"amount"`
	TotalIterations int    `json:"totalIterations"`
	Status          string `json:"status"`
	CreatedAt       string `json:"createdAt"`
}

func toGigResponse(g gig.Gig) gigResponse {
	return gigResponse{
		ID:              g.ID,
		CompanyID:       g.CompanyID,
		Title:           g.Title,
		Description:     g.Description,
		Amount:          g.Amount,
		TotalIterations: g.TotalIterations,
		Status:          string(g.Status),
		CreatedAt:       g.CreatedAt.Format(time.RFC3339),
	}
}

type applyRequest struct {
	CoverNote string `json:"coverNote"`
}

type applicationResponse struct {
	ID          string `json:"id"`
	GigID       string `json:"gigId"`
	CandidateID string `json:"candidateId"`
	State       string `json:"state"`
	CoverNote   string `json:"coverNote"`
	CreatedAt   string `json:"createdAt"`
}

func toApplicationResponse(a gig.Application) applicationResponse {
	return applicationResponse{
		ID:          a.ID,
		GigID:       a.GigID,
		CandidateID: a.CandidateID,
		State:       string(a.State),
		CoverNote:   a.CoverNote,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}

type acceptResponse struct {
	Application applicationResponse `json:"application"`
	Engagement  engagementResponse  `json:"engagement"`
}

type engagementResponse struct {
	ID                  string `json:"id"`
	GigID               string `json:"gigId"`
	CompanyID           string `json:"companyId"`
	CandidateID         string `json:"candidateId"`
	Status              string `json:"status"`
	TotalIterations     int    `json:"totalIterations"`
	UsedIterations      int    `json:"usedIterations"`
	RemainingIterations int    `json:"remainingIterations"`
	EscrowPaymentID     string `json:"escrowPaymentId,omitempty"`
	CurrentSubmissionID string `json:"currentSubmissionId,omitempty"`
	CreatedAt           string `json:"createdAt"`
	UpdatedAt           string `json:"updatedAt"`
}

func toEngagementResponse(rec engagement.Record) engagementResponse {
	resp := engagementResponse{
		ID:                  rec.ID,
		GigID:               rec.GigID,
		CompanyID:           rec.CompanyID,
		CandidateID:         rec.CandidateID,
		Status:              string(rec.Status),
		TotalIterations:     rec.Ledger.Total,
		UsedIterations:      rec.Ledger.Used,
		RemainingIterations: rec.Ledger.Remaining(),
		CreatedAt:           rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           rec.UpdatedAt.Format(time.RFC3339),
	}
	if rec.EscrowPaymentID != nil {
		resp.EscrowPaymentID = *rec.EscrowPaymentID
	}
	if rec.CurrentSubmissionID != nil {
		resp.CurrentSubmissionID = *rec.CurrentSubmissionID
	}
	return resp
}

type escrowIntentRequest struct {
	Amount int64 `json:"amount"`
}

type paymentResponse struct {
	ID           string `json:"id"`
	EngagementID string `json:"engagementId"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	OrderRef     string `json:"orderRef"`
	PaymentRef   string `json:"paymentRef,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

func toPaymentResponse(p escrow.Payment) paymentResponse {
	resp := paymentResponse{
		ID:           p.ID,
		EngagementID: p.EngagementID,
		Status:       string(p.Status),
		Amount:       p.Amount,
		OrderRef:     p.GatewayOrderRef,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
	if p.GatewayPaymentRef != nil {
		resp.PaymentRef = *p.GatewayPaymentRef
	}
	return resp
}

type submitRequest struct {
	Description string `json:"description"`
	Files       []struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
		Data        []byte `json:"data"`
	} `json:"files"`
}

type submissionResponse struct {
	ID              string   `json:"id"`
	EngagementID    string   `json:"engagementId"`
	IterationNumber int      `json:"iterationNumber"`
	ReviewOutcome   string   `json:"reviewOutcome"`
	Description     string   `json:"description"`
	Feedback        string   `json:"feedback,omitempty"`
	FileURLs        []string `json:"fileUrls"`
	CreatedAt       string   `json:"createdAt"`
	ReviewedAt      string   `json:"reviewedAt,omitempty"`
}

func toSubmissionResponse(rec submission.Record) submissionResponse {
	resp := submissionResponse{
		ID:              rec.ID,
		EngagementID:    rec.EngagementID,
		IterationNumber: rec.IterationNumber,
		ReviewOutcome:   string(rec.ReviewOutcome),
		Description:     rec.Description,
		FileURLs:        rec.FileURLs,
		CreatedAt:       rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.Feedback != nil {
		resp.Feedback = *rec.Feedback
	}
	if rec.ReviewedAt != nil {
		resp.ReviewedAt = rec.ReviewedAt.Format(time.RFC3339)
	}
	return resp
}

type reviewRequest struct {
	Outcome  string `json:"outcome"`
	Feedback string `json:"feedback"`
}

type reviewResponse struct {
	Submission submissionResponse `json:"submission"`
	Engagement engagementResponse `json:"engagement"`
}

type scheduleCloseRequest struct {
	At time.Time `json:"at"`
}

type channelResponse struct {
	ID                string `json:"id"`
	EngagementID      string `json:"engagementId"`
	AccessState       string `json:"accessState"`
	CloseReason       string `json:"closeReason,omitempty"`
	ScheduledCloseAt  string `json:"scheduledCloseAt,omitempty"`
	CloseWarningsSent int    `json:"closeWarningsSent"`
	CreatedAt         string `json:"createdAt"`
}

func toChannelResponse(rec channel.Record) channelResponse {
	resp := channelResponse{
		ID:                rec.ID,
		EngagementID:      rec.EngagementID,
		AccessState:       string(rec.AccessState),
		CloseWarningsSent: rec.CloseWarningsSent,
		CreatedAt:         rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.CloseReason != nil {
		resp.CloseReason = *rec.CloseReason
	}
	if rec.ScheduledCloseAt != nil {
		resp.ScheduledCloseAt = rec.ScheduledCloseAt.Format(time.RFC3339)
	}
	return resp
}

type raiseDisputeResponse struct {
	DisputeID  string             `json:"disputeId"`
	Engagement engagementResponse `json:"engagement"`
}

type resolveDisputeRequest struct {
	Status string `json:"status"`
}

type disputeResponse struct {
	ID           string `json:"id"`
	EngagementID string `json:"engagementId"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
	ResolvedAt   string `json:"resolvedAt,omitempty"`
}

func toDisputeResponse(rec dispute.Record) disputeResponse {
	resp := disputeResponse{
		ID:           rec.ID,
		EngagementID: rec.EngagementID,
		Status:       string(rec.Status),
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    rec.UpdatedAt.Format(time.RFC3339),
	}
	if rec.ResolvedAt != nil {
		resp.ResolvedAt = rec.ResolvedAt.Format(time.RFC3339)
	}
	return resp
}
