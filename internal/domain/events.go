/**
 * @description
 * Notification event payloads published to RabbitMQ. Delivery (email, push)
 * is owned by a downstream consumer with its own retry policy; the
 * settlement service only emits, and an emit failure never aborts the
 * transition that produced it.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for notification events.
const (
	EventApplicationApproved = "application.approved"
	EventApplicationRejected = "application.rejected"
	EventApplicationVerified = "application.verified"
	EventTestingCompleted    = "testing.completed"
	EventJobCancelled        = "job.cancelled"
	EventPayoutFailed        = "payout.failed"
)

// ApplicationEvent is the payload for application lifecycle notifications.
type ApplicationEvent struct {
	ApplicationID uuid.UUID `json:"application_id"`
	JobID         uuid.UUID `json:"job_id"`
	TesterID      uuid.UUID `json:"tester_id"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// PayoutFailedEvent alerts admins that a money-moving leg failed and needs
// manual follow-up. Reason is the gateway's reason string.
type PayoutFailedEvent struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	ApplicationID uuid.UUID `json:"application_id"`
	TesterID      uuid.UUID `json:"tester_id"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// JobCancelledEvent is the payload for job cancellation notifications.
type JobCancelledEvent struct {
	JobID       uuid.UUID `json:"job_id"`
	DeveloperID uuid.UUID `json:"developer_id"`
	TotalPayout int64     `json:"total_payout"`
	Refund      int64     `json:"refund"`
	Timestamp   time.Time `json:"timestamp"`
}
