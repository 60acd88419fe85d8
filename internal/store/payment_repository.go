/**
 * @description
 * PostgreSQL queries for the escrow ledger. Every status mutation is a
 * compare-and-swap on the current status so that two concurrent callers
 * cannot both move the same row; the loser of the race observes zero rows
 * affected and treats it as a precondition conflict.
 */

package store

import (
	"context"

	"github.com/betatide/settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const paymentColumns = `
	id, application_id, job_id, tester_id, amount, platform_fee, total_amount,
	status, transfer_id, refund_id, failure_reason,
	escrowed_at, completed_at, created_at, updated_at
`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID, &p.ApplicationID, &p.JobID, &p.TesterID, &p.Amount, &p.PlatformFee, &p.TotalAmount,
		&p.Status, &p.TransferID, &p.RefundID, &p.FailureReason,
		&p.EscrowedAt, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePayment inserts the escrow row for an application. The ledger
// invariant is checked before touching the database, and the unique
// constraint on application_id guarantees at most one live row per
// application even under concurrent creation.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO payments (
			id, application_id, job_id, tester_id, amount, platform_fee, total_amount, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ID, p.ApplicationID, p.JobID, p.TesterID, p.Amount, p.PlatformFee, p.TotalAmount, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			// A concurrent caller already created the row; callers that care
			// re-read it by application id.
			return nil
		}
		return err
	}
	return nil
}

// FindPaymentByID retrieves one payment row.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = $1", paymentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// FindPaymentByApplicationID retrieves the single live payment row for an
// application.
func (r *PostgresRepository) FindPaymentByApplicationID(ctx context.Context, applicationID uuid.UUID) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE application_id = $1", applicationID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// UpdatePaymentStatusIf performs a compare-and-swap on the payment status.
// The escrowed_at timestamp is stamped the first time the row reaches the
// escrowed state.
func (r *PostgresRepository) UpdatePaymentStatusIf(ctx context.Context, paymentID uuid.UUID, expected, next string) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE payments
		SET
			status = $3,
			escrowed_at = CASE WHEN $3 = 'escrowed' AND escrowed_at IS NULL THEN NOW() ELSE escrowed_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, paymentID, expected, next)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkPaymentCompleted records a successful payout with the gateway's
// transfer reference. Only a processing row can complete.
func (r *PostgresRepository) MarkPaymentCompleted(ctx context.Context, paymentID uuid.UUID, transferID string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = $2, transfer_id = $3, failure_reason = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, paymentID, domain.PaymentStatusCompleted, transferID, domain.PaymentStatusProcessing)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkPaymentFailed records a failed payout attempt with the gateway's
// reason. Failed rows are retryable back into processing.
func (r *PostgresRepository) MarkPaymentFailed(ctx context.Context, paymentID uuid.UUID, failureReason string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, paymentID, domain.PaymentStatusFailed, failureReason, domain.PaymentStatusProcessing)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkPaymentRefunded updates the row in place to refunded, carrying the
// actual compensation amount paid. The row is kept, not deleted: it is the
// audit artifact distinguishing "escrowed then partially honored" from
// "never truly escrowed".
func (r *PostgresRepository) MarkPaymentRefunded(ctx context.Context, paymentID uuid.UUID, actualAmount int64, refundID *string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE payments
		SET
			status = $2,
			amount = $3,
			platform_fee = 0,
			total_amount = $3,
			refund_id = $4,
			updated_at = NOW()
		WHERE id = $1
	`, paymentID, domain.PaymentStatusRefunded, actualAmount, refundID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// DeletePaymentByApplicationID removes the payment row on simple rejection:
// nothing was ever paid out, so no refund artifact is needed. Missing row is
// not an error (reject may race the payment's creation path).
func (r *PostgresRepository) DeletePaymentByApplicationID(ctx context.Context, applicationID uuid.UUID) error {
	_, err := r.db.Exec(ctx, "DELETE FROM payments WHERE application_id = $1", applicationID)
	return err
}
