/**
 * @description
 * This file sets up the HTTP router for the settlement-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SettlementRoutes creates and returns a new router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, jwksURL, sweepSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Internal endpoints guarded by the sweep shared secret.
	r.Group(func(r chi.Router) {
		r.Use(SweepSecretMiddleware(sweepSecret))
		r.Post("/internal/settlement/sweep", h.SweepHandler)
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		// Apply JWT authentication middleware for production
		r.Use(ClerkAuthMiddleware(jwksURL))

		// Application lifecycle endpoints.
		r.Post("/jobs/{jobID}/applications", h.ApplyHandler)
		r.Post("/jobs/{jobID}/cancel", h.CancelJobHandler)
		r.Get("/applications/{id}", h.GetApplicationHandler)
		r.Post("/applications/{id}/approve", h.ApproveHandler)
		r.Post("/applications/{id}/reject", h.RejectHandler)
		r.Post("/applications/{id}/verification", h.SubmitVerificationHandler)
		r.Post("/applications/{id}/verify", h.VerifyHandler)

		// Escrow ledger recovery.
		r.Post("/payments/{id}/retry", h.RetryPayoutHandler)

		// Admin fraud review endpoints.
		r.Get("/admin/fraud-logs", h.ListFraudLogsHandler)
		r.Post("/admin/fraud-logs/{id}/resolve", h.ResolveFraudLogHandler)
		r.Post("/admin/users/{id}/clear-flags", h.ClearUserFlagsHandler)
		r.Get("/admin/users/{id}/fraud-score", h.FraudScoreAuditHandler)
	})

	return r
}
