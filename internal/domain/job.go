/**
 * @description
 * TestingJob is the developer-owned unit of work that testers apply to. The
 * job carries the escrowed budget all payouts are drawn from.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job statuses.
const (
	JobStatusDraft     = "draft"
	JobStatusActive    = "active"
	JobStatusCompleted = "completed"
	JobStatusCancelled = "cancelled"
)

// PlatformFeePercent is the platform's cut, applied to the full budget in
// the normal flow and to actual payouts in the cancellation flow.
const PlatformFeePercent = 15

// TestingJob represents an app-testing job posted by a developer.
// Invariant: TotalBudget = PaymentPerTester * TestersNeeded and the escrowed
// budget always covers a full-rate payout to every admitted participant.
type TestingJob struct {
	ID               uuid.UUID `json:"id"`
	DeveloperID      uuid.UUID `json:"developer_id"`
	Title            string    `json:"title"`
	PaymentPerTester int64     `json:"payment_per_tester"` // in cents
	TestersNeeded    int       `json:"testers_needed"`
	TotalBudget      int64     `json:"total_budget"` // in cents
	PlatformFee      int64     `json:"platform_fee"` // in cents, 15% of TotalBudget
	TestDurationDays int       `json:"test_duration_days"`
	Status           string    `json:"status"`
	EscrowIntentID   *string   `json:"escrow_intent_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FeeFor returns the platform's share of an arbitrary amount using integer
// minor-unit arithmetic.
func FeeFor(amount int64) int64 {
	return amount * PlatformFeePercent / 100
}
