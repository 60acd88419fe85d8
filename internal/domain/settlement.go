/**
 * @description
 * Result structures for the settlement sweep and the cancellation flow.
 * Both operations work through per-item legs with isolated failure domains,
 * so their results report every leg individually rather than a single
 * aggregate error.
 */
package domain

import (
	"github.com/google/uuid"
)

// SweepItemResult is the outcome of settling one due application.
type SweepItemResult struct {
	ApplicationID uuid.UUID `json:"application_id"`
	TesterID      uuid.UUID `json:"tester_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	Amount        int64     `json:"amount"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
}

// SweepResult summarizes one settlement sweep run. Re-running the sweep over
// an already-settled window yields Processed == 0.
type SweepResult struct {
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Items     []SweepItemResult `json:"items"`
}

// CompensationEntry is one participant's computed share at cancellation.
type CompensationEntry struct {
	ApplicationID uuid.UUID `json:"application_id"`
	TesterID      uuid.UUID `json:"tester_id"`
	TesterEmail   string    `json:"tester_email"`
	PriorStatus   string    `json:"prior_status"`
	RatePercent   int       `json:"rate_percent"`
	Amount        int64     `json:"amount"` // in cents
}

// CompensationPlan is the pure output of the compensation calculator.
// Invariant: TotalPayout + FeeOnPayouts + DeveloperRefund ==
// job.TotalBudget + job.PlatformFee (integer cents, fee rounded down).
type CompensationPlan struct {
	Entries         []CompensationEntry `json:"entries"`
	TotalPayout     int64               `json:"total_payout"`
	FeeOnPayouts    int64               `json:"fee_on_payouts"`
	DeveloperRefund int64               `json:"developer_refund"`
}

// CancellationLeg reports one executed money-movement leg of a cancellation.
type CancellationLeg struct {
	ApplicationID uuid.UUID `json:"application_id,omitempty"`
	TesterEmail   string    `json:"tester_email,omitempty"`
	Kind          string    `json:"kind"` // "payout" or "refund"
	Amount        int64     `json:"amount"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
}

// CancellationResult is the structured breakdown returned to the developer.
type CancellationResult struct {
	JobID           uuid.UUID         `json:"job_id"`
	Plan            CompensationPlan  `json:"plan"`
	Legs            []CancellationLeg `json:"legs"`
	RejectedPending int               `json:"rejected_pending"`
}
