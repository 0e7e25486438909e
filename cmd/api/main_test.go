package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gigflow/channel"
	"gigflow/company"
	"gigflow/dispute"
	"gigflow/engagement"
	"gigflow/entitlement"
	"gigflow/escrow"
	"gigflow/gig"
	"gigflow/identity"
	"gigflow/submission"
)

type stubProfileReader struct {
	profile  company.Profile
	profiles []company.Profile
	err      error
}

func (s *stubProfileReader) GetByID(_ context.Context, _ string) (company.Profile, error) {
	return s.profile, s.err
}

func (s *stubProfileReader) List(_ context.Context, limit int) ([]company.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit <= 0 || limit > len(s.profiles) {
		limit = len(s.profiles)
	}
	out := make([]company.Profile, limit)
	copy(out, s.profiles[:limit])
	return out, nil
}

type stubGigService struct {
	created   gig.Gig
	createErr error
	got       gig.Gig
	getErr    error
	list      gig.ListResult
	listErr   error
}

func (s *stubGigService) Create(_ context.Context, _ gig.CreateParams) (gig.Gig, error) {
	return s.created, s.createErr
}

func (s *stubGigService) Get(_ context.Context, _ string) (gig.Gig, error) {
	return s.got, s.getErr
}

func (s *stubGigService) List(_ context.Context, _ gig.Filters) (gig.ListResult, error) {
	return s.list, s.listErr
}

type stubApplicationService struct {
	applied      gig.Application
	applyErr     error
	forGig       []gig.Application
	forGigErr    error
	forCandidate []gig.Application
	candidateErr error
	acceptResult gig.AcceptResult
	acceptErr    error
	declined     gig.Application
	declineErr   error
}

func (s *stubApplicationService) Apply(_ context.Context, _, _, _ string) (gig.Application, error) {
	return s.applied, s.applyErr
}

func (s *stubApplicationService) ListForGig(_ context.Context, _, _ string) ([]gig.Application, error) {
	return s.forGig, s.forGigErr
}

func (s *stubApplicationService) ListForCandidate(_ context.Context, _ string) ([]gig.Application, error) {
	return s.forCandidate, s.candidateErr
}

func (s *stubApplicationService) Accept(_ context.Context, _ gig.AcceptParams) (gig.AcceptResult, error) {
	return s.acceptResult, s.acceptErr
}

func (s *stubApplicationService) Decline(_ context.Context, _, _ string) (gig.Application, error) {
	return s.declined, s.declineErr
}

type stubEngagementService struct {
	record     engagement.Record
	getErr     error
	rejected   engagement.Record
	rejectErr  error
	disputed   engagement.Record
	disputeID  string
	disputeErr error
}

func (s *stubEngagementService) Get(_ context.Context, _ string) (engagement.Record, error) {
	return s.record, s.getErr
}

func (s *stubEngagementService) Reject(_ context.Context, _ engagement.RejectParams) (engagement.Record, error) {
	return s.rejected, s.rejectErr
}

func (s *stubEngagementService) RaiseDispute(_ context.Context, _ engagement.DisputeParams) (engagement.Record, string, error) {
	return s.disputed, s.disputeID, s.disputeErr
}

type stubEscrowService struct {
	payment escrow.Payment
	err     error
}

func (s *stubEscrowService) CreateIntent(_ context.Context, _ escrow.CreateIntentParams) (escrow.Payment, error) {
	return s.payment, s.err
}

type stubSubmissionService struct {
	submitted      submission.Record
	submitErr      error
	reviewed       submission.Record
	reviewedEngmnt engagement.Record
	reviewErr      error
	got            submission.Record
	getErr         error
}

func (s *stubSubmissionService) Submit(_ context.Context, _ submission.SubmitParams) (submission.Record, error) {
	return s.submitted, s.submitErr
}

func (s *stubSubmissionService) Review(_ context.Context, _ submission.ReviewParams) (submission.Record, engagement.Record, error) {
	return s.reviewed, s.reviewedEngmnt, s.reviewErr
}

func (s *stubSubmissionService) Get(_ context.Context, _, _ string) (submission.Record, error) {
	return s.got, s.getErr
}

type stubChannelService struct {
	record      channel.Record
	err         error
	scheduledAt time.Time
}

func (s *stubChannelService) Get(_ context.Context, _ string) (channel.Record, error) {
	return s.record, s.err
}

func (s *stubChannelService) ScheduleClose(_ context.Context, _, _ string, at time.Time) (channel.Record, error) {
	s.scheduledAt = at
	return s.record, s.err
}

func (s *stubChannelService) CancelScheduledClose(_ context.Context, _, _ string) (channel.Record, error) {
	return s.record, s.err
}

type stubDisputeService struct {
	listRecords   []dispute.Record
	listErr       error
	got           dispute.Record
	getErr        error
	resolveRecord dispute.Record
	resolveErr    error
}

func (s *stubDisputeService) List(_ context.Context, _, _ string) ([]dispute.Record, error) {
	return s.listRecords, s.listErr
}

func (s *stubDisputeService) Get(_ context.Context, _ string) (dispute.Record, error) {
	return s.got, s.getErr
}

func (s *stubDisputeService) Resolve(_ context.Context, _ string) (dispute.Record, error) {
	return s.resolveRecord, s.resolveErr
}

func asCompany(req *http.Request, userID, companyID string) *http.Request {
	ctx := context.WithValue(req.Context(), ctxKeyUserID, userID)
	ctx = context.WithValue(ctx, ctxKeyRole, identity.RoleCompany)
	ctx = context.WithValue(ctx, ctxKeyCompanyID, companyID)
	return req.WithContext(ctx)
}

func asCandidate(req *http.Request, userID string) *http.Request {
	ctx := context.WithValue(req.Context(), ctxKeyUserID, userID)
	ctx = context.WithValue(ctx, ctxKeyRole, identity.RoleCandidate)
	return req.WithContext(ctx)
}

func TestHandleCompany_Success(t *testing.T) {
	now := time.Date(2026, 5, 11, 9, 30, 0, 0, time.UTC)
	server := &Server{
		companyService: company.NewService(&stubProfileReader{
			profile: company.Profile{
				ID:        "c1",
				Name:      "Northfield Labs",
				Verified:  true,
				Entitled:  true,
				CreatedAt: now,
			},
		}),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/companies/c1", nil)
	rec := httptest.NewRecorder()

	server.handleCompany(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp companyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "c1" || resp.Name != "Northfield Labs" || !resp.Entitled {
		t.Fatalf("unexpected response payload: %+v", resp)
	}
	if resp.CreatedAt != now.Format(time.RFC3339) {
		t.Fatalf("expected createdAt %s, got %s", now.Format(time.RFC3339), resp.CreatedAt)
	}
}

func TestHandleCompany_NotFound(t *testing.T) {
	server := &Server{
		companyService: company.NewService(&stubProfileReader{err: company.ErrNotFound}),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/companies/missing", nil)
	rec := httptest.NewRecorder()

	server.handleCompany(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleCompany_WrongMethod(t *testing.T) {
	server := &Server{
		companyService: company.NewService(&stubProfileReader{}),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/companies/c1", nil)
	rec := httptest.NewRecorder()

	server.handleCompany(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleCompanies_List(t *testing.T) {
	now := time.Now().UTC()
	server := &Server{
		companyService: company.NewService(&stubProfileReader{
			profiles: []company.Profile{
				{ID: "c1", Name: "Alpha Works", Verified: true, CreatedAt: now},
				{ID: "c2", Name: "Beta Works", Verified: false, CreatedAt: now},
			},
		}),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/companies?limit=1", nil)
	rec := httptest.NewRecorder()

	server.handleCompanies(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []companyResponse `json:"items"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Total != 1 || payload.Items[0].ID != "c1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleGigs_CreateForbidsCandidateRole(t *testing.T) {
	server := &Server{gigService: &stubGigService{}}

	body := strings.NewReader(`{"title":"Landing page","amount":50000,"totalIterations":3}`)
	req := asCandidate(httptest.NewRequest(http.MethodPost, "/api/gigs", body), "user-1")
	rec := httptest.NewRecorder()

	server.handleGigs(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleGigs_CreateSuccess(t *testing.T) {
	now := time.Now().UTC()
	server := &Server{
		gigService: &stubGigService{
			created: gig.Gig{
				ID: "g1", CompanyID: "comp-1", Title: "Landing page",
				Amount: 50000, TotalIterations: 3, Status: gig.StatusOpen, CreatedAt: now,
			},
		},
	}

	body := strings.NewReader(`{"title":"Landing page","amount":50000,"totalIterations":3}`)
	req := asCompany(httptest.NewRequest(http.MethodPost, "/api/gigs", body), "user-1", "comp-1")
	rec := httptest.NewRecorder()

	server.handleGigs(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp gigResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "g1" || resp.Status != "open" || resp.TotalIterations != 3 {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleGigDetail_ApplySuccess(t *testing.T) {
	server := &Server{
		applicationService: &stubApplicationService{
			applied: gig.Application{ID: "a1", GigID: "g1", CandidateID: "cand-1", State: gig.ApplicationApplied},
		},
	}

	body := strings.NewReader(`{"coverNote":"happy to help"}`)
	req := asCandidate(httptest.NewRequest(http.MethodPost, "/api/gigs/g1/applications", body), "cand-1")
	rec := httptest.NewRecorder()

	server.handleGigDetail(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp applicationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "a1" || resp.State != "applied" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleGigDetail_ApplyAlreadyApplied(t *testing.T) {
	server := &Server{
		applicationService: &stubApplicationService{applyErr: gig.ErrAlreadyApplied},
	}

	body := strings.NewReader(`{}`)
	req := asCandidate(httptest.NewRequest(http.MethodPost, "/api/gigs/g1/applications", body), "cand-1")
	rec := httptest.NewRecorder()

	server.handleGigDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleApplicationAccept_Success(t *testing.T) {
	ledger, _ := engagement.NewLedger(5)
	server := &Server{
		applicationService: &stubApplicationService{
			acceptResult: gig.AcceptResult{
				Application: gig.Application{ID: "a1", GigID: "g1", CandidateID: "cand-1", State: gig.ApplicationAccepted},
				Engagement: engagement.Record{
					ID: "e1", GigID: "g1", CompanyID: "comp-1", CandidateID: "cand-1",
					Status: engagement.StatusPending, Ledger: ledger,
				},
			},
		},
	}

	req := asCompany(httptest.NewRequest(http.MethodPost, "/api/applications/a1/accept", nil), "user-1", "comp-1")
	rec := httptest.NewRecorder()

	server.handleApplicationDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp acceptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Application.State != "accepted" {
		t.Fatalf("unexpected application payload: %+v", resp.Application)
	}
	if resp.Engagement.Status != "pending" || resp.Engagement.RemainingIterations != 5 {
		t.Fatalf("unexpected engagement payload: %+v", resp.Engagement)
	}
}

func TestHandleApplicationAccept_EntitlementRequired(t *testing.T) {
	server := &Server{
		applicationService: &stubApplicationService{acceptErr: entitlement.ErrEntitlementRequired},
	}

	req := asCompany(httptest.NewRequest(http.MethodPost, "/api/applications/a1/accept", nil), "user-1", "comp-1")
	rec := httptest.NewRecorder()

	server.handleApplicationDetail(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
}

func TestHandleEngagementDetail_GetSuccess(t *testing.T) {
	ledger, _ := engagement.NewLedger(4)
	ledger.Used = 1
	server := &Server{
		engagementService: &stubEngagementService{
			record: engagement.Record{
				ID: "e1", GigID: "g1", CompanyID: "comp-1", CandidateID: "cand-1",
				Status: engagement.StatusActive, Ledger: ledger,
			},
		},
	}

	req := asCandidate(httptest.NewRequest(http.MethodGet, "/api/engagements/e1", nil), "cand-1")
	rec := httptest.NewRecorder()

	server.handleEngagementDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp engagementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "active" || resp.UsedIterations != 1 || resp.RemainingIterations != 3 {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleEngagementDetail_RejectConflict(t *testing.T) {
	server := &Server{
		engagementService: &stubEngagementService{rejectErr: engagement.ErrAlreadySubmitted},
	}

	req := asCompany(httptest.NewRequest(http.MethodPost, "/api/engagements/e1/reject", nil), "user-1", "comp-1")
	rec := httptest.NewRecorder()

	server.handleEngagementDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleEscrowIntent_GatewayUnavailable(t *testing.T) {
	server := &Server{
		escrowService: &stubEscrowService{err: escrow.ErrGatewayUnavailable},
	}

	body := strings.NewReader(`{"amount":50000}`)
	req := asCompany(httptest.NewRequest(http.MethodPost, "/api/engagements/e1/escrow", body), "user-1", "comp-1")
	rec := httptest.NewRecorder()

	server.handleEngagementDetail(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestHandleSubmit_Success(t *testing.T) {
	server := &Server{
		submissionService: &stubSubmissionService{
			submitted: submission.Record{
				ID: "s1", EngagementID: "e1", IterationNumber: 1,
				ReviewOutcome: submission.OutcomePending,
				FileURLs:      []string{"file:///data/blobs/x.pdf"},
			},
		},
	}

	body := strings.NewReader(`{"description":"first draft","files":[{"name":"draft.pdf","contentType":"application/pdf","data":"aGVsbG8="}]}`)
	req := asCandidate(httptest.NewRequest(http.MethodPost, "/api/engagements/e1/submissions", body), "cand-1")
	rec := httptest.NewRecorder()

	server.handleEngagementDetail(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp submissionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "s1" || resp.IterationNumber != 1 || resp.ReviewOutcome != "pending" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleSubmit_CompanyForbidden(t *testing.T) {
	server := &Server{submissionService: &stubSubmissionService{}}

	body := strings.NewReader(`{"description":"draft"}`)
	req := asCompany(httptest.NewRequest(http.MethodPost, "/api/engagements/e1/submissions", body), "user-1", "comp-1")
	rec := httptest.NewRecorder()

	server.handleEngagementDetail(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleReview_NoIterationsRemaining(t *testing.T) {
	server := &Server{
		submissionService: &stubSubmissionService{
			reviewErr: &engagement.NoIterationsRemainingError{Remaining: 0, DisputeEligible: true},
		},
	}

	body := strings.NewReader(`{"outcome":"revision_requested","feedback":"tighten the copy"}`)
	req := asCompany(httptest.NewRequest(http.MethodPost, "/api/submissions/s1/review", body), "user-1", "comp-1")
	rec := httptest.NewRecorder()

	server.handleSubmissionDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	var payload struct {
		Remaining       int  `json:"remaining"`
		DisputeEligible bool `json:"disputeEligible"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Remaining != 0 || !payload.DisputeEligible {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleReview_Success(t *testing.T) {
	ledger, _ := engagement.NewLedger(3)
	ledger.Used = 3
	reviewedAt := time.Now().UTC()
	server := &Server{
		submissionService: &stubSubmissionService{
			reviewed: submission.Record{
				ID: "s1", EngagementID: "e1", IterationNumber: 3,
				ReviewOutcome: submission.OutcomeApproved, ReviewedAt: &reviewedAt,
			},
			reviewedEngmnt: engagement.Record{
				ID: "e1", Status: engagement.StatusCompleted, Ledger: ledger,
			},
		},
	}

	body := strings.NewReader(`{"outcome":"approved"}`)
	req := asCompany(httptest.NewRequest(http.MethodPost, "/api/submissions/s1/review", body), "user-1", "comp-1")
	rec := httptest.NewRecorder()

	server.handleSubmissionDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp reviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Submission.ReviewOutcome != "approved" || resp.Engagement.Status != "completed" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.Engagement.RemainingIterations != 0 {
		t.Fatalf("expected exhausted ledger, got %+v", resp.Engagement)
	}
}

func TestHandleChannelClose_DefaultsToArchiveDelay(t *testing.T) {
	stub := &stubChannelService{
		record: channel.Record{ID: "ch1", EngagementID: "e1", AccessState: channel.AccessOpen},
	}
	server := &Server{channelService: stub}

	before := time.Now()
	req := asCompany(httptest.NewRequest(http.MethodPost, "/api/engagements/e1/channel/close", strings.NewReader(`{}`)), "user-1", "comp-1")
	rec := httptest.NewRecorder()

	server.handleEngagementDetail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := before.Add(channel.ArchiveDelay)
	if stub.scheduledAt.Before(want) || stub.scheduledAt.After(want.Add(time.Minute)) {
		t.Fatalf("expected close scheduled around %s, got %s", want, stub.scheduledAt)
	}
}

func TestHandleChannel_GetNotFound(t *testing.T) {
	server := &Server{channelService: &stubChannelService{err: channel.ErrNotFound}}

	req := asCandidate(httptest.NewRequest(http.MethodGet, "/api/engagements/e1/channel", nil), "cand-1")
	rec := httptest.NewRecorder()

	server.handleEngagementDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleRaiseDispute_NotEligible(t *testing.T) {
	server := &Server{
		engagementService: &stubEngagementService{disputeErr: engagement.ErrDisputeNotEligible},
	}

	req := asCandidate(httptest.NewRequest(http.MethodPost, "/api/engagements/e1/dispute", nil), "cand-1")
	rec := httptest.NewRecorder()

	server.handleEngagementDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleListDisputes_Success(t *testing.T) {
	now := time.Now().UTC()
	server := &Server{
		disputeService: &stubDisputeService{
			listRecords: []dispute.Record{
				{ID: "d1", EngagementID: "e1", Status: dispute.StatusUnderReview, CreatedAt: now, UpdatedAt: now},
			},
		},
	}

	req := asCandidate(httptest.NewRequest(http.MethodGet, "/api/disputes", nil), "cand-1")
	rec := httptest.NewRecorder()

	server.handleDisputes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []disputeResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != "d1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleResolveDispute_AlreadyResolved(t *testing.T) {
	server := &Server{
		disputeService: &stubDisputeService{resolveErr: dispute.ErrBadStatus},
	}

	body := strings.NewReader(`{"status":"resolved"}`)
	req := asCandidate(httptest.NewRequest(http.MethodPatch, "/api/disputes/d1", body), "cand-1")
	rec := httptest.NewRecorder()

	server.handleDisputeDetail(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleResolveDispute_UnsupportedStatus(t *testing.T) {
	server := &Server{disputeService: &stubDisputeService{}}

	body := strings.NewReader(`{"status":"under_review"}`)
	req := asCandidate(httptest.NewRequest(http.MethodPatch, "/api/disputes/d1", body), "cand-1")
	rec := httptest.NewRecorder()

	server.handleDisputeDetail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWriteError_Unexpected(t *testing.T) {
	server := &Server{
		engagementService: &stubEngagementService{getErr: errors.New("boom")},
	}

	req := asCandidate(httptest.NewRequest(http.MethodGet, "/api/engagements/e1", nil), "cand-1")
	rec := httptest.NewRecorder()

	server.handleEngagementDetail(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
