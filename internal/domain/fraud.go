/**
 * @description
 * Fraud-risk models. FraudLog is the append-only audit trail written by the
 * risk scorer; the cumulative score on the user is a materialized aggregate
 * that can always be recomputed from these rows.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Fraud signal identifiers. Every fired signal is logged so the cumulative
// user score can always be recomputed from the append-only log.
const (
	FraudSignalNewAccount         = "new_account"
	FraudSignalRapidApplications  = "rapid_applications"
	FraudSignalDuplicateIP        = "duplicate_ip"
	FraudSignalCollusionSuspected = "collusion_suspected"
	FraudSignalSameDevice         = "same_device"
)

// Fraud log severities.
const (
	FraudSeverityLow    = "low"
	FraudSeverityMedium = "medium"
	FraudSeverityHigh   = "high"
)

// FraudLog is one audit entry for one fired signal. Rows are never mutated
// except to mark them resolved.
type FraudLog struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	ApplicationID *uuid.UUID `json:"application_id,omitempty"`
	Signal        string     `json:"signal"`
	Severity      string     `json:"severity"`
	Score         int        `json:"score"`
	Detail        string     `json:"detail"`
	Resolved      bool       `json:"resolved"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy    *uuid.UUID `json:"resolved_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// RiskAssessment is the outcome of one risk-scorer evaluation. Reasons list
// every fired signal for the audit trail; all signals are always evaluated
// even when an earlier one already crossed the block threshold.
type RiskAssessment struct {
	Score      int      `json:"score"`
	Reasons    []string `json:"reasons"`
	Blocked    bool     `json:"blocked"`
	Suspicious bool     `json:"suspicious"`
}

// FraudLogFilter narrows the admin fraud-review listing.
type FraudLogFilter struct {
	Resolved *bool
	Severity string
	Limit    int
	Offset   int
}
