/**
 * @description
 * This file contains the HTTP handlers for the settlement-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 * - pkg/paygate: For mapping gateway error envelopes to 502 responses.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/betatide/settlement-service/internal/app"
	"github.com/betatide/settlement-service/internal/domain"
	"github.com/betatide/settlement-service/internal/store"
	"github.com/betatide/settlement-service/pkg/paygate"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SettlementHandlers holds the application service that handlers will use.
type SettlementHandlers struct {
	service         *app.Service
	jobs            *app.SettlementJobs
	limiter         *app.RedisRateLimiter
	applyRatePerMin int
}

// NewSettlementHandlers creates a new instance of SettlementHandlers. The
// limiter may be nil when Redis is not configured; rate limiting is then
// skipped.
func NewSettlementHandlers(service *app.Service, jobs *app.SettlementJobs, limiter *app.RedisRateLimiter, applyRatePerMin int) *SettlementHandlers {
	return &SettlementHandlers{
		service:         service,
		jobs:            jobs,
		limiter:         limiter,
		applyRatePerMin: applyRatePerMin,
	}
}

// actor is the authenticated caller resolved to an internal user.
type actor struct {
	ID   uuid.UUID
	Role string
}

// resolveActor turns the Clerk subject from the validated JWT into an
// internal user. Returns false after writing the error response.
func (h *SettlementHandlers) resolveActor(w http.ResponseWriter, r *http.Request) (actor, bool) {
	clerkUserID, ok := GetClerkUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return actor{}, false
	}

	userID, err := h.service.ResolveInternalUserID(r.Context(), clerkUserID)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=user_resolution_failed clerk_user_id=%s err=%v", clerkUserID, err)
		h.writeError(w, http.StatusUnauthorized, "User not found")
		return actor{}, false
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=user_load_failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusUnauthorized, "User not found")
		return actor{}, false
	}

	return actor{ID: user.ID, Role: user.Role}, true
}

// urlUUID extracts and parses a UUID path parameter, writing a 400 on
// failure.
func (h *SettlementHandlers) urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", param))
		return uuid.Nil, false
	}
	return id, true
}

// ApplyHandler handles POST /jobs/{jobID}/applications.
func (h *SettlementHandlers) ApplyHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	jobID, ok := h.urlUUID(w, r, "jobID")
	if !ok {
		return
	}

	if !h.allowApply(w, r, caller.ID) {
		return
	}

	result, err := h.service.Apply(r.Context(), domain.ApplyCommand{
		JobID:     jobID,
		TesterID:  caller.ID,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeServiceError(w, "apply", err)
		return
	}

	log.Printf("level=info component=api endpoint=apply outcome=accepted job_id=%s tester_id=%s application_id=%s", jobID, caller.ID, result.Application.ID)
	h.writeJSON(w, http.StatusCreated, result.Application)
}

// allowApply enforces the per-tester apply rate limit. Returns false after
// writing the 429 response.
func (h *SettlementHandlers) allowApply(w http.ResponseWriter, r *http.Request, testerID uuid.UUID) bool {
	if h.limiter == nil || h.applyRatePerMin <= 0 {
		return true
	}
	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), "apply", testerID.String(), h.applyRatePerMin, time.Minute)
	if err != nil {
		// The limiter is best-effort; Redis being down must not take the
		// apply endpoint with it.
		log.Printf("level=warn component=api endpoint=apply msg=\"rate limiter unavailable\" err=%v", err)
		return true
	}
	if count > h.applyRatePerMin {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many applications, slow down")
		return false
	}
	return true
}

// ApproveHandler handles POST /applications/{id}/approve.
func (h *SettlementHandlers) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	applicationID, ok := h.urlUUID(w, r, "id")
	if !ok {
		return
	}

	application, err := h.service.Approve(r.Context(), domain.ApproveCommand{ApplicationID: applicationID, ActorID: caller.ID})
	if err != nil {
		h.writeServiceError(w, "approve", err)
		return
	}
	h.writeJSON(w, http.StatusOK, application)
}

// RejectHandler handles POST /applications/{id}/reject.
func (h *SettlementHandlers) RejectHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	applicationID, ok := h.urlUUID(w, r, "id")
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	// The reason is optional; an empty body is fine.
	_ = json.NewDecoder(r.Body).Decode(&body)

	application, err := h.service.Reject(r.Context(), domain.RejectCommand{
		ApplicationID: applicationID,
		ActorID:       caller.ID,
		ActorRole:     caller.Role,
		Reason:        strings.TrimSpace(body.Reason),
	})
	if err != nil {
		h.writeServiceError(w, "reject", err)
		return
	}
	h.writeJSON(w, http.StatusOK, application)
}

// SubmitVerificationHandler handles POST /applications/{id}/verification.
func (h *SettlementHandlers) SubmitVerificationHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	applicationID, ok := h.urlUUID(w, r, "id")
	if !ok {
		return
	}

	var body struct {
		VerificationImageURL string `json:"verification_image_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(body.VerificationImageURL) == "" {
		h.writeError(w, http.StatusBadRequest, "verification_image_url is required")
		return
	}

	application, err := h.service.SubmitVerification(r.Context(), domain.SubmitVerificationCommand{
		ApplicationID:        applicationID,
		ActorID:              caller.ID,
		VerificationImageURL: strings.TrimSpace(body.VerificationImageURL),
	})
	if err != nil {
		h.writeServiceError(w, "submit_verification", err)
		return
	}
	h.writeJSON(w, http.StatusOK, application)
}

// VerifyHandler handles POST /applications/{id}/verify.
func (h *SettlementHandlers) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	applicationID, ok := h.urlUUID(w, r, "id")
	if !ok {
		return
	}

	application, err := h.service.Verify(r.Context(), domain.VerifyCommand{ApplicationID: applicationID, ActorID: caller.ID})
	if err != nil {
		h.writeServiceError(w, "verify", err)
		return
	}
	h.writeJSON(w, http.StatusOK, application)
}

// GetApplicationHandler handles GET /applications/{id}.
func (h *SettlementHandlers) GetApplicationHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	applicationID, ok := h.urlUUID(w, r, "id")
	if !ok {
		return
	}

	application, err := h.service.GetApplication(r.Context(), applicationID, caller.ID, caller.Role)
	if err != nil {
		h.writeServiceError(w, "get_application", err)
		return
	}
	h.writeJSON(w, http.StatusOK, application)
}

// CancelJobHandler handles POST /jobs/{jobID}/cancel.
func (h *SettlementHandlers) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	jobID, ok := h.urlUUID(w, r, "jobID")
	if !ok {
		return
	}

	result, err := h.service.CancelJob(r.Context(), jobID, caller.ID, caller.Role)
	if err != nil {
		h.writeServiceError(w, "cancel_job", err)
		return
	}

	log.Printf("level=info component=api endpoint=cancel_job outcome=accepted job_id=%s actor_id=%s payout=%d refund=%d",
		jobID, caller.ID, result.Plan.TotalPayout, result.Plan.DeveloperRefund)
	h.writeJSON(w, http.StatusOK, result)
}

// RetryPayoutHandler handles POST /payments/{id}/retry.
func (h *SettlementHandlers) RetryPayoutHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.urlUUID(w, r, "id")
	if !ok {
		return
	}

	payment, err := h.service.RetryPayout(r.Context(), paymentID, caller.ID, caller.Role)
	if err != nil {
		h.writeServiceError(w, "retry_payout", err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// SweepHandler handles POST /internal/settlement/sweep. Authentication is
// the shared-secret middleware, not a user JWT.
func (h *SettlementHandlers) SweepHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.jobs.RunSweep(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=sweep err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Sweep failed")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// writeServiceError maps business-rule and repository errors onto HTTP
// statuses.
func (h *SettlementHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrApplicationNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrFraudLogNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNotAuthorized):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrAlreadyApplied),
		errors.Is(err, app.ErrStatusConflict),
		errors.Is(err, app.ErrJobFull),
		errors.Is(err, app.ErrJobNotAcceptingApplications):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrFraudBlocked):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		var gatewayErr *paygate.ErrorResponse
		if errors.As(err, &gatewayErr) {
			h.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=%s err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// clientIP extracts the caller's address, honoring the first hop of
// X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON is a helper for writing JSON responses.
func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
