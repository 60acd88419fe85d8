/**
 * @description
 * This file defines the `Repository` interface: the contract for all data
 * access the settlement-service needs. The interface decouples the lifecycle
 * service, risk scorer, and settlement jobs from PostgreSQL so each can be
 * tested against stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/betatide/settlement-service/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User methods
	FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	// AddFraudScore raises the cumulative score (capped at 100) and flags
	// the user when the new total crosses the flag threshold. Returns the
	// new cumulative score.
	AddFraudScore(ctx context.Context, userID uuid.UUID, delta int) (int, error)
	ClearUserFlags(ctx context.Context, userID uuid.UUID) error

	// Job methods
	FindJobByID(ctx context.Context, jobID uuid.UUID) (*domain.TestingJob, error)
	// UpdateJobStatusIf is a compare-and-swap on job status; it reports
	// whether the row was in the expected state and therefore updated.
	UpdateJobStatusIf(ctx context.Context, jobID uuid.UUID, expected, next string) (bool, error)

	// Application methods
	CreateApplication(ctx context.Context, app *domain.Application) error
	ExistsApplicationForTester(ctx context.Context, jobID, testerID uuid.UUID) (bool, error)
	FindApplicationByID(ctx context.Context, applicationID uuid.UUID) (*domain.Application, error)
	FindApplicationsByJobID(ctx context.Context, jobID uuid.UUID) ([]domain.Application, error)
	CountAdmittedApplications(ctx context.Context, jobID uuid.UUID) (int, error)
	// UpdateApplicationStatusIf is the single concurrency guard for
	// lifecycle transitions: the update only lands when the row is still in
	// the expected source state.
	UpdateApplicationStatusIf(ctx context.Context, applicationID uuid.UUID, expected, next string) (bool, error)
	AttachVerificationImage(ctx context.Context, applicationID uuid.UUID, imageURL string) error
	StartTestingWindow(ctx context.Context, applicationID uuid.UUID, startedAt, endDate time.Time) error
	MarkApplicationCompleted(ctx context.Context, applicationID uuid.UUID, completedAt time.Time) (bool, error)
	FindDueTestingApplications(ctx context.Context, now time.Time) ([]domain.Application, error)

	// Risk signal queries
	CountRecentApplicationsByTester(ctx context.Context, testerID uuid.UUID, since time.Time) (int, error)
	ExistsApplicationWithIP(ctx context.Context, jobID uuid.UUID, ipAddress string, excludeTesterID uuid.UUID) (bool, error)
	ExistsApplicationWithDevice(ctx context.Context, jobID uuid.UUID, fingerprint string, excludeTesterID uuid.UUID) (bool, error)
	CountApplicationsToDeveloper(ctx context.Context, testerID, developerID uuid.UUID) (int, error)

	// Payment (escrow ledger) methods
	CreatePayment(ctx context.Context, p *domain.Payment) error
	FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	FindPaymentByApplicationID(ctx context.Context, applicationID uuid.UUID) (*domain.Payment, error)
	UpdatePaymentStatusIf(ctx context.Context, paymentID uuid.UUID, expected, next string) (bool, error)
	MarkPaymentCompleted(ctx context.Context, paymentID uuid.UUID, transferID string) error
	MarkPaymentFailed(ctx context.Context, paymentID uuid.UUID, failureReason string) error
	MarkPaymentRefunded(ctx context.Context, paymentID uuid.UUID, actualAmount int64, refundID *string) error
	DeletePaymentByApplicationID(ctx context.Context, applicationID uuid.UUID) error

	// Fraud log methods
	CreateFraudLog(ctx context.Context, log *domain.FraudLog) error
	ListFraudLogs(ctx context.Context, filter domain.FraudLogFilter) ([]domain.FraudLog, error)
	ResolveFraudLog(ctx context.Context, logID, resolvedBy uuid.UUID) error
	// SumFraudScoreFromLogs recomputes the cumulative score from the
	// append-only log, for auditing the materialized aggregate.
	SumFraudScoreFromLogs(ctx context.Context, userID uuid.UUID) (int, error)

	// Reputation aggregates
	RecomputeTesterProfile(ctx context.Context, testerID uuid.UUID) (*domain.TesterProfile, error)
}
