/**
 * @description
 * Application is the participation record: exactly one per (job, tester)
 * pair, and the primary state-machine entity of the settlement service. Each
 * lifecycle transition has its own typed command and result rather than a
 * single loosely-typed update payload.
 *
 * @notes
 * - The orchestration layer (internal/app.Service) is the only writer of
 *   Application.Status.
 * - IPAddress and DeviceFingerprint are captured at creation time so later
 *   applicants to the same job can be checked against them.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Application statuses, in lifecycle order. The cancellation compensation
// rate is a function of how far along this ladder an application got.
const (
	ApplicationStatusPending   = "pending"
	ApplicationStatusApproved  = "approved"
	ApplicationStatusOptedIn   = "opted_in"
	ApplicationStatusVerified  = "verified"
	ApplicationStatusTesting   = "testing"
	ApplicationStatusCompleted = "completed"
	ApplicationStatusRejected  = "rejected"
)

// Application represents a tester's participation in one testing job.
type Application struct {
	ID                   uuid.UUID  `json:"id"`
	JobID                uuid.UUID  `json:"job_id"`
	TesterID             uuid.UUID  `json:"tester_id"`
	Status               string     `json:"status"`
	IPAddress            string     `json:"ip_address"`
	DeviceFingerprint    string     `json:"device_fingerprint"`
	VerificationImageURL *string    `json:"verification_image_url,omitempty"`
	EngagementScore      *float64   `json:"engagement_score,omitempty"`
	Rating               *int       `json:"rating,omitempty"`
	TestingStartedAt     *time.Time `json:"testing_started_at,omitempty"`
	TestingEndDate       *time.Time `json:"testing_end_date,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsTerminal reports whether no further lifecycle transitions are allowed.
func (a *Application) IsTerminal() bool {
	return a.Status == ApplicationStatusCompleted || a.Status == ApplicationStatusRejected
}

// ApplyCommand is the typed input for creating an application.
type ApplyCommand struct {
	JobID     uuid.UUID `json:"job_id"`
	TesterID  uuid.UUID `json:"tester_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
}

// ApplyResult reports the created application together with the advisory
// risk outcome. Signal details are intentionally absent: they live in the
// fraud log, not in anything returned to the applicant.
type ApplyResult struct {
	Application *Application `json:"application"`
	Suspicious  bool         `json:"-"`
}

// ApproveCommand admits a pending applicant. Developer-only.
type ApproveCommand struct {
	ApplicationID uuid.UUID
	ActorID       uuid.UUID
}

// RejectCommand rejects an application in any pre-testing state.
// Developer-or-admin.
type RejectCommand struct {
	ApplicationID uuid.UUID
	ActorID       uuid.UUID
	ActorRole     string
	Reason        string
}

// SubmitVerificationCommand attaches the tester's verification image and
// opts them in. Tester-only.
type SubmitVerificationCommand struct {
	ApplicationID        uuid.UUID
	ActorID              uuid.UUID
	VerificationImageURL string
}

// VerifyCommand confirms the tester's installation and starts the testing
// window. Developer-only.
type VerifyCommand struct {
	ApplicationID uuid.UUID
	ActorID       uuid.UUID
}
