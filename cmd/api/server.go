package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
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

type ctxKey string

const (
	ctxKeyUserID    ctxKey = "user_id"
	ctxKeyRole      ctxKey = "role"
	ctxKeyCompanyID ctxKey = "company_id"
)

type gigService interface {
	Create(ctx context.Context, params gig.CreateParams) (gig.Gig, error)
	Get(ctx context.Context, id string) (gig.Gig, error)
	List(ctx context.Context, filters gig.Filters) (gig.ListResult, error)
}

type applicationService interface {
	Apply(ctx context.Context, candidateID, gigID, coverNote string) (gig.Application, error)
	ListForGig(ctx context.Context, gigID, companyID string) ([]gig.Application, error)
	ListForCandidate(ctx context.Context, candidateID string) ([]gig.Application, error)
	Accept(ctx context.Context, params gig.AcceptParams) (gig.AcceptResult, error)
	Decline(ctx context.Context, applicationID, companyID string) (gig.Application, error)
}

type engagementService interface {
	Get(ctx context.Context, id string) (engagement.Record, error)
	Reject(ctx context.Context, params engagement.RejectParams) (engagement.Record, error)
	RaiseDispute(ctx context.Context, params engagement.DisputeParams) (engagement.Record, string, error)
}

type escrowService interface {
	CreateIntent(ctx context.Context, params escrow.CreateIntentParams) (escrow.Payment, error)
}

type submissionService interface {
	Submit(ctx context.Context, params submission.SubmitParams) (submission.Record, error)
	Review(ctx context.Context, params submission.ReviewParams) (submission.Record, engagement.Record, error)
	Get(ctx context.Context, id, actorID string) (submission.Record, error)
}

type channelService interface {
	Get(ctx context.Context, engagementID string) (channel.Record, error)
	ScheduleClose(ctx context.Context, engagementID, companyID string, at time.Time) (channel.Record, error)
	CancelScheduledClose(ctx context.Context, engagementID, companyID string) (channel.Record, error)
}

type disputeService interface {
	List(ctx context.Context, partyID, engagementID string) ([]dispute.Record, error)
	Get(ctx context.Context, disputeID string) (dispute.Record, error)
	Resolve(ctx context.Context, disputeID string) (dispute.Record, error)
}

// Server wires the domain services into HTTP handlers.
type Server struct {
	identityService    *identity.Service
	companyService     *company.Service
	gigService         gigService
	applicationService applicationService
	engagementService  engagementService
	escrowService      escrowService
	submissionService  submissionService
	channelService     channelService
	disputeService     disputeService
	escrowWebhook      http.Handler
	logger             *log.Logger
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/me", s.withAuth(s.handleMe))

	mux.HandleFunc("/api/companies", s.handleCompanies)
	mux.HandleFunc("/api/companies/", s.handleCompany)

	mux.HandleFunc("/api/gigs", s.withAuth(s.handleGigs))
	mux.HandleFunc("/api/gigs/", s.withAuth(s.handleGigDetail))

	mux.HandleFunc("/api/applications", s.withAuth(s.handleApplications))
	mux.HandleFunc("/api/applications/", s.withAuth(s.handleApplicationDetail))

	mux.HandleFunc("/api/engagements/", s.withAuth(s.handleEngagementDetail))
	mux.HandleFunc("/api/submissions/", s.withAuth(s.handleSubmissionDetail))

	mux.HandleFunc("/api/disputes", s.withAuth(s.handleDisputes))
	mux.HandleFunc("/api/disputes/", s.withAuth(s.handleDisputeDetail))

	if s.escrowWebhook != nil {
		mux.Handle("/webhooks/escrow", s.escrowWebhook)
	}

	return mux
}

// withAuth validates the bearer token and stashes the caller's identity in
// the request context.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeErrorMessage(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.identityService.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeErrorMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxKeyRole, claims.Role)
		if claims.CompanyID != "" {
			ctx = context.WithValue(ctx, ctxKeyCompanyID, claims.CompanyID)
		}
		next(w, r.WithContext(ctx))
	}
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUserID).(string)
	return id
}

func callerRole(r *http.Request) identity.Role {
	role, _ := r.Context().Value(ctxKeyRole).(identity.Role)
	return role
}

func callerCompanyID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyCompanyID).(string)
	return id
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req identity.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid json body")
		return
	}
	user, err := s.identityService.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req identity.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid json body")
		return
	}
	result, err := s.identityService.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user, err := s.identityService.GetUserByID(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	profiles, err := s.companyService.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	items := make([]companyResponse, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, toCompanyResponse(p))
	}
	writeJSON(w, http.StatusOK, listPayload[companyResponse]{Items: items, Total: len(items)})
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/companies/")
	if id == "" || strings.Contains(id, "/") {
		writeErrorMessage(w, http.StatusBadRequest, "invalid company id")
		return
	}
	profile, err := s.companyService.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyResponse(profile))
}

func (s *Server) handleGigs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		pageSize, _ := strconv.Atoi(q.Get("pageSize"))
		result, err := s.gigService.List(r.Context(), gig.Filters{
			CompanyID: q.Get("companyId"),
			Status:    gig.Status(q.Get("status")),
			Page:      page,
			PageSize:  pageSize,
			SortKey:   q.Get("sort"),
			SortOrder: q.Get("order"),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		items := make([]gigResponse, 0, len(result.Items))
		for _, g := range result.Items {
			items = append(items, toGigResponse(g))
		}
		writeJSON(w, http.StatusOK, listPayload[gigResponse]{Items: items, Total: result.Total})
	case http.MethodPost:
		if callerRole(r) != identity.RoleCompany {
			writeErrorMessage(w, http.StatusForbidden, "company role required")
			return
		}
		var req createGigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid json body")
			return
		}
		created, err := s.gigService.Create(r.Context(), gig.CreateParams{
			CompanyID:       callerCompanyID(r),
			CreatedByUserID: callerID(r),
			Title:           req.Title,
			Description:     req.Description,
			Amount:          req.Amount,
			TotalIterations: req.TotalIterations,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toGigResponse(created))
	default:
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGigDetail serves /api/gigs/{id} and /api/gigs/{id}/applications.
func (s *Server) handleGigDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/gigs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeErrorMessage(w, http.StatusBadRequest, "invalid gig id")
		return
	}
	gigID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		g, err := s.gigService.Get(r.Context(), gigID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toGigResponse(g))
	case len(parts) == 2 && parts[1] == "applications" && r.Method == http.MethodGet:
		apps, err := s.applicationService.ListForGig(r.Context(), gigID, callerCompanyID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		items := make([]applicationResponse, 0, len(apps))
		for _, a := range apps {
			items = append(items, toApplicationResponse(a))
		}
		writeJSON(w, http.StatusOK, listPayload[applicationResponse]{Items: items, Total: len(items)})
	case len(parts) == 2 && parts[1] == "applications" && r.Method == http.MethodPost:
		if callerRole(r) != identity.RoleCandidate {
			writeErrorMessage(w, http.StatusForbidden, "candidate role required")
			return
		}
		var req applyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid json body")
			return
		}
		app, err := s.applicationService.Apply(r.Context(), callerID(r), gigID, req.CoverNote)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toApplicationResponse(app))
	default:
		writeErrorMessage(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	apps, err := s.applicationService.ListForCandidate(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	items := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		items = append(items, toApplicationResponse(a))
	}
	writeJSON(w, http.StatusOK, listPayload[applicationResponse]{Items: items, Total: len(items)})
}

// handleApplicationDetail serves POST /api/applications/{id}/accept and
// POST /api/applications/{id}/decline.
func (s *Server) handleApplicationDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/applications/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeErrorMessage(w, http.StatusBadRequest, "invalid application path")
		return
	}
	if r.Method != http.MethodPost {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if callerRole(r) != identity.RoleCompany {
		writeErrorMessage(w, http.StatusForbidden, "company role required")
		return
	}

	switch parts[1] {
	case "accept":
		result, err := s.applicationService.Accept(r.Context(), gig.AcceptParams{
			ApplicationID: parts[0],
			CompanyID:     callerCompanyID(r),
			ActorID:       callerID(r),
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, acceptResponse{
			Application: toApplicationResponse(result.Application),
			Engagement:  toEngagementResponse(result.Engagement),
		})
	case "decline":
		app, err := s.applicationService.Decline(r.Context(), parts[0], callerCompanyID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toApplicationResponse(app))
	default:
		writeErrorMessage(w, http.StatusNotFound, "not found")
	}
}

// handleEngagementDetail serves /api/engagements/{id} and its subresources:
// reject, dispute, escrow, submissions, channel.
func (s *Server) handleEngagementDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/engagements/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeErrorMessage(w, http.StatusBadRequest, "invalid engagement id")
		return
	}
	engagementID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		rec, err := s.engagementService.Get(r.Context(), engagementID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEngagementResponse(rec))
		return
	}

	switch parts[1] {
	case "reject":
		s.handleRejectEngagement(w, r, engagementID)
	case "dispute":
		s.handleRaiseDispute(w, r, engagementID)
	case "escrow":
		s.handleEscrowIntent(w, r, engagementID)
	case "submissions":
		s.handleSubmit(w, r, engagementID)
	case "channel":
		s.handleChannel(w, r, engagementID, parts[1:])
	default:
		writeErrorMessage(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleRejectEngagement(w http.ResponseWriter, r *http.Request, engagementID string) {
	if r.Method != http.MethodPost {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if callerRole(r) != identity.RoleCompany {
		writeErrorMessage(w, http.StatusForbidden, "company role required")
		return
	}
	rec, err := s.engagementService.Reject(r.Context(), engagement.RejectParams{
		EngagementID: engagementID,
		CompanyID:    callerCompanyID(r),
		ActorID:      callerID(r),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEngagementResponse(rec))
}

func (s *Server) handleRaiseDispute(w http.ResponseWriter, r *http.Request, engagementID string) {
	if r.Method != http.MethodPost {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if callerRole(r) != identity.RoleCandidate {
		writeErrorMessage(w, http.StatusForbidden, "candidate role required")
		return
	}
	rec, disputeID, err := s.engagementService.RaiseDispute(r.Context(), engagement.DisputeParams{
		EngagementID: engagementID,
		CandidateID:  callerID(r),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, raiseDisputeResponse{
		DisputeID:  disputeID,
		Engagement: toEngagementResponse(rec),
	})
}

func (s *Server) handleEscrowIntent(w http.ResponseWriter, r *http.Request, engagementID string) {
	if r.Method != http.MethodPost {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if callerRole(r) != identity.RoleCompany {
		writeErrorMessage(w, http.StatusForbidden, "company role required")
		return
	}
	var req escrowIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid json body")
		return
	}
	payment, err := s.escrowService.CreateIntent(r.Context(), escrow.CreateIntentParams{
		EngagementID: engagementID,
		CompanyID:    callerCompanyID(r),
		Amount:       req.Amount,
		ActorID:      callerID(r),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, engagementID string) {
	if r.Method != http.MethodPost {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if callerRole(r) != identity.RoleCandidate {
		writeErrorMessage(w, http.StatusForbidden, "candidate role required")
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid json body")
		return
	}
	files := make([]submission.File, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, submission.File{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	}
	rec, err := s.submissionService.Submit(r.Context(), submission.SubmitParams{
		EngagementID: engagementID,
		CandidateID:  callerID(r),
		Description:  req.Description,
		Files:        files,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmissionResponse(rec))
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request, engagementID string, parts []string) {
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		rec, err := s.channelService.Get(r.Context(), engagementID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toChannelResponse(rec))
	case len(parts) == 2 && parts[1] == "close" && r.Method == http.MethodPost:
		if callerRole(r) != identity.RoleCompany {
			writeErrorMessage(w, http.StatusForbidden, "company role required")
			return
		}
		var req scheduleCloseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid json body")
			return
		}
		at := req.At
		if at.IsZero() {
			at = time.Now().Add(channel.ArchiveDelay)
		}
		rec, err := s.channelService.ScheduleClose(r.Context(), engagementID, callerCompanyID(r), at)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toChannelResponse(rec))
	case len(parts) == 2 && parts[1] == "close" && r.Method == http.MethodDelete:
		if callerRole(r) != identity.RoleCompany {
			writeErrorMessage(w, http.StatusForbidden, "company role required")
			return
		}
		rec, err := s.channelService.CancelScheduledClose(r.Context(), engagementID, callerCompanyID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toChannelResponse(rec))
	default:
		writeErrorMessage(w, http.StatusNotFound, "not found")
	}
}

// handleSubmissionDetail serves GET /api/submissions/{id} and
// POST /api/submissions/{id}/review.
func (s *Server) handleSubmissionDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/submissions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeErrorMessage(w, http.StatusBadRequest, "invalid submission id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		rec, err := s.submissionService.Get(r.Context(), parts[0], callerID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSubmissionResponse(rec))
	case len(parts) == 2 && parts[1] == "review" && r.Method == http.MethodPost:
		if callerRole(r) != identity.RoleCompany {
			writeErrorMessage(w, http.StatusForbidden, "company role required")
			return
		}
		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid json body")
			return
		}
		sub, eng, err := s.submissionService.Review(r.Context(), submission.ReviewParams{
			SubmissionID: parts[0],
			CompanyID:    callerCompanyID(r),
			Outcome:      submission.Outcome(req.Outcome),
			Feedback:     req.Feedback,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reviewResponse{
			Submission: toSubmissionResponse(sub),
			Engagement: toEngagementResponse(eng),
		})
	default:
		writeErrorMessage(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleDisputes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	records, err := s.disputeService.List(r.Context(), callerID(r), r.URL.Query().Get("engagementId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	items := make([]disputeResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toDisputeResponse(rec))
	}
	writeJSON(w, http.StatusOK, listPayload[disputeResponse]{Items: items, Total: len(items)})
}

func (s *Server) handleDisputeDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/disputes/")
	if id == "" || strings.Contains(id, "/") {
		writeErrorMessage(w, http.StatusBadRequest, "invalid dispute id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := s.disputeService.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDisputeResponse(rec))
	case http.MethodPatch:
		var req resolveDisputeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.Status != string(dispute.StatusResolved) {
			writeErrorMessage(w, http.StatusBadRequest, "only status=resolved is supported")
			return
		}
		rec, err := s.disputeService.Resolve(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDisputeResponse(rec))
	default:
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// writeError translates domain errors into HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var noIterations *engagement.NoIterationsRemainingError
	switch {
	case errors.As(err, &noIterations):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":           "no iterations remaining",
			"remaining":       noIterations.Remaining,
			"disputeEligible": noIterations.DisputeEligible,
		})
	case errors.Is(err, entitlement.ErrEntitlementRequired):
		writeErrorMessage(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, engagement.ErrForbidden),
		errors.Is(err, gig.ErrApplicationForbidden),
		errors.Is(err, dispute.ErrForbidden):
		writeErrorMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, engagement.ErrNotFound),
		errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, submission.ErrNotFound),
		errors.Is(err, channel.ErrNotFound),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, gig.ErrNotFound),
		errors.Is(err, gig.ErrApplicationNotFound),
		errors.Is(err, company.ErrNotFound),
		errors.Is(err, identity.ErrUserNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engagement.ErrInvalidTransition),
		errors.Is(err, engagement.ErrConcurrentModification),
		errors.Is(err, engagement.ErrAlreadySubmitted),
		errors.Is(err, engagement.ErrDisputeNotEligible),
		errors.Is(err, engagement.ErrPaymentNotVerified),
		errors.Is(err, engagement.ErrDuplicateEngagement),
		errors.Is(err, escrow.ErrPaymentInFlight),
		errors.Is(err, escrow.ErrStatusConflict),
		errors.Is(err, submission.ErrPendingExists),
		errors.Is(err, submission.ErrAlreadyReviewed),
		errors.Is(err, channel.ErrNotOpen),
		errors.Is(err, gig.ErrAlreadyApplied),
		errors.Is(err, gig.ErrApplicationState),
		errors.Is(err, gig.ErrGigNotOpen),
		errors.Is(err, dispute.ErrBadStatus),
		errors.Is(err, identity.ErrDuplicateEmail):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, submission.ErrNoFiles),
		errors.Is(err, submission.ErrInvalidOutcome),
		errors.Is(err, submission.ErrFeedbackRequired),
		errors.Is(err, identity.ErrWeakPassword):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeErrorMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, escrow.ErrGatewayUnavailable):
		writeErrorMessage(w, http.StatusBadGateway, err.Error())
	default:
		if s.logger != nil {
			s.logger.Printf("internal error: %v", err)
		}
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}

type listPayload[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
