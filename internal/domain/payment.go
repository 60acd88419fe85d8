/**
 * @description
 * Payment is the escrow ledger row: one live row per application, never
 * more. The row only represents intended money state; the external payout
 * and refund legs observe it and write back the outcome with the gateway's
 * reference id.
 *
 * @notes
 * - amount + platform_fee == total_amount is computed once at creation from
 *   the job's per-tester rate and verified on every write, never silently
 *   recomputed on read.
 * - A rejected application's payment is deleted (nothing was ever owed); a
 *   cancelled job's payments are kept as `refunded` rows carrying the actual
 *   compensation paid, preserving the audit distinction.
 */
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payment statuses.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusEscrowed   = "escrowed"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusRefunded   = "refunded"
	PaymentStatusFailed     = "failed"
)

// Payment represents escrowed funds earmarked for one application.
type Payment struct {
	ID            uuid.UUID  `json:"id"`
	ApplicationID uuid.UUID  `json:"application_id"`
	JobID         uuid.UUID  `json:"job_id"`
	TesterID      uuid.UUID  `json:"tester_id"`
	Amount        int64      `json:"amount"`       // tester share, in cents
	PlatformFee   int64      `json:"platform_fee"` // platform share, in cents
	TotalAmount   int64      `json:"total_amount"` // Amount + PlatformFee
	Status        string     `json:"status"`
	TransferID    *string    `json:"transfer_id,omitempty"`
	RefundID      *string    `json:"refund_id,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	EscrowedAt    *time.Time `json:"escrowed_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewPayment sizes an escrow row from the job's per-tester rate. The split
// is fixed here and never recomputed afterwards.
func NewPayment(applicationID, jobID, testerID uuid.UUID, paymentPerTester int64) *Payment {
	fee := FeeFor(paymentPerTester)
	return &Payment{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		JobID:         jobID,
		TesterID:      testerID,
		Amount:        paymentPerTester,
		PlatformFee:   fee,
		TotalAmount:   paymentPerTester + fee,
		Status:        PaymentStatusPending,
	}
}

// Validate enforces the ledger invariant. Called on every write path.
func (p *Payment) Validate() error {
	if p.Amount < 0 || p.PlatformFee < 0 {
		return fmt.Errorf("payment %s has negative component: amount=%d fee=%d", p.ID, p.Amount, p.PlatformFee)
	}
	if p.Amount+p.PlatformFee != p.TotalAmount {
		return fmt.Errorf("payment %s violates amount+fee=total: %d+%d != %d", p.ID, p.Amount, p.PlatformFee, p.TotalAmount)
	}
	return nil
}
