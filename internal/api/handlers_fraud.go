/**
 * @description
 * Admin fraud-review endpoints: listing the append-only fraud log, resolving
 * entries, clearing account flags, and auditing the materialized score
 * against the log.
 */

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/betatide/settlement-service/internal/domain"
)

// requireAdmin resolves the actor and refuses non-admin callers.
func (h *SettlementHandlers) requireAdmin(w http.ResponseWriter, r *http.Request) (actor, bool) {
	caller, ok := h.resolveActor(w, r)
	if !ok {
		return actor{}, false
	}
	if caller.Role != domain.RoleAdmin {
		h.writeError(w, http.StatusForbidden, "Admin access required")
		return actor{}, false
	}
	return caller, true
}

// ListFraudLogsHandler handles GET /admin/fraud-logs.
func (h *SettlementHandlers) ListFraudLogsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	filter := domain.FraudLogFilter{}
	if raw := strings.TrimSpace(r.URL.Query().Get("resolved")); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid resolved filter")
			return
		}
		filter.Resolved = &resolved
	}
	filter.Severity = strings.TrimSpace(r.URL.Query().Get("severity"))
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		filter.Offset = offset
	}

	logs, err := h.service.ListFraudLogs(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, "list_fraud_logs", err)
		return
	}
	if logs == nil {
		logs = []domain.FraudLog{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"fraud_logs": logs})
}

// ResolveFraudLogHandler handles POST /admin/fraud-logs/{id}/resolve.
func (h *SettlementHandlers) ResolveFraudLogHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	logID, ok := h.urlUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.ResolveFraudLog(r.Context(), logID, caller.ID); err != nil {
		h.writeServiceError(w, "resolve_fraud_log", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// ClearUserFlagsHandler handles POST /admin/users/{id}/clear-flags.
func (h *SettlementHandlers) ClearUserFlagsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	userID, ok := h.urlUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.ClearUserFlags(r.Context(), userID); err != nil {
		h.writeServiceError(w, "clear_user_flags", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// FraudScoreAuditHandler handles GET /admin/users/{id}/fraud-score. It
// returns both the materialized score and the sum recomputed from the
// append-only log so drift is visible.
func (h *SettlementHandlers) FraudScoreAuditHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	userID, ok := h.urlUUID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "fraud_score_audit", err)
		return
	}
	recomputed, err := h.service.RecomputeFraudScore(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "fraud_score_audit", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":          user.ID,
		"fraud_score":      user.FraudScore,
		"recomputed_score": recomputed,
		"flagged":          user.Flagged,
		"consistent":       user.FraudScore == recomputed,
	})
}
