/**
 * @description
 * User and reputation models for the settlement-service. A user is either a
 * developer (owns testing jobs and their escrowed budget) or a tester
 * (progresses through the participation lifecycle and receives payouts).
 *
 * @notes
 * - Monetary amounts are stored as `int64` in the smallest currency unit
 *   (cents) to avoid floating-point drift in financial data.
 * - `FraudScore` is a cumulative 0-100 risk measure; it is only ever raised
 *   by the risk scorer and only cleared by an explicit admin action.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleDeveloper = "developer"
	RoleTester    = "tester"
	RoleAdmin     = "admin"
)

// Cumulative fraud-score thresholds.
const (
	// FraudScoreCap bounds both per-call and cumulative scores.
	FraudScoreCap = 100
	// FraudFlagThreshold marks the account for review once the cumulative
	// score reaches it.
	FraudFlagThreshold = 50
)

// User represents a marketplace participant.
type User struct {
	ID          uuid.UUID `json:"id"`
	ClerkUserID string    `json:"clerk_user_id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	FraudScore  int       `json:"fraud_score"`
	Flagged     bool      `json:"flagged"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TesterProfile is the materialized reputation aggregate for a tester. The
// settlement sweep recomputes it from scratch over all completed
// applications rather than incrementally, so a partially failed earlier run
// can never leave it permanently wrong.
type TesterProfile struct {
	UserID              uuid.UUID `json:"user_id"`
	TotalTestsCompleted int       `json:"total_tests_completed"`
	TotalEarnings       int64     `json:"total_earnings"` // in cents
	AvgEngagementScore  float64   `json:"avg_engagement_score"`
	AvgRating           float64   `json:"avg_rating"`
	UpdatedAt           time.Time `json:"updated_at"`
}
