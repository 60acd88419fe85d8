/**
 * @description
 * This file contains the core business logic for the settlement-service. The
 * `Service` struct orchestrates the application lifecycle state machine,
 * coordinating between the database repository, the payment gateway client,
 * the risk scorer, and the message broker.
 *
 * Key features:
 * - One typed command per lifecycle transition; every status change is a
 *   compare-and-swap in the repository, so a lost race is a clean
 *   ErrStatusConflict instead of a double-applied transition.
 * - Creates the escrow ledger row (payment) alongside the application and
 *   keeps the two state machines in lockstep.
 * - Executes the cancellation compensation plan with per-leg failure
 *   isolation.
 * - Publishes notification events to RabbitMQ; a publish failure is logged
 *   and never aborts the transition that produced it.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/paygate, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/betatide/settlement-service/internal/domain"
	"github.com/betatide/settlement-service/internal/store"
	"github.com/betatide/settlement-service/pkg/rabbitmq"
	"github.com/google/uuid"
)

// Business-rule errors surfaced to the API layer.
var (
	ErrNotAuthorized               = errors.New("actor is not permitted to perform this action")
	ErrFraudBlocked                = errors.New("application blocked by fraud risk score")
	ErrJobNotAcceptingApplications = errors.New("job is not accepting applications")
	ErrJobFull                     = errors.New("job already has the required number of testers")
	ErrStatusConflict              = errors.New("record is not in the required status for this transition")
)

// Gateway is the slice of the payment gateway client the service needs.
// Satisfied by *paygate.Client.
type Gateway interface {
	TransferToTester(ctx context.Context, escrowIntentID, recipientID string, amount int64, reason, idempotencyKey string) (string, error)
	RefundEscrow(ctx context.Context, escrowIntentID string, amount int64, reason, idempotencyKey string) (string, error)
}

// Service provides the core business logic for the settlement lifecycle.
type Service struct {
	repo          store.Repository
	gateway       Gateway
	eventProducer rabbitmq.Publisher
	risk          *RiskScorer
}

// NewService creates a new settlement service instance.
func NewService(repo store.Repository, gateway Gateway, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:          repo,
		gateway:       gateway,
		eventProducer: producer,
		risk:          NewRiskScorer(repo),
	}
}

// ResolveInternalUserID converts a Clerk user id string (e.g., "user_abc123")
// into the internal UUID used by our database. This allows handlers to accept
// Clerk subject ids from validated JWTs while our repositories continue to
// operate on UUIDs.
func (s *Service) ResolveInternalUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error) {
	return s.repo.FindUserIDByClerkUserID(ctx, clerkUserID)
}

// GetUser loads one user by internal id.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.repo.FindUserByID(ctx, userID)
}

// Apply creates a new application for an active job. The risk scorer runs
// before anything is written; a per-call score at or above the block
// threshold refuses the application with ErrFraudBlocked. On success the
// escrow ledger row is created alongside the application.
func (s *Service) Apply(ctx context.Context, cmd domain.ApplyCommand) (*domain.ApplyResult, error) {
	job, err := s.repo.FindJobByID(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusActive {
		return nil, ErrJobNotAcceptingApplications
	}

	tester, err := s.repo.FindUserByID(ctx, cmd.TesterID)
	if err != nil {
		return nil, err
	}
	if tester.ID == job.DeveloperID {
		return nil, ErrNotAuthorized
	}

	// The (job, tester) pair is checked before scoring so a repeated apply
	// does not inflate the tester's cumulative fraud score.
	exists, err := s.repo.ExistsApplicationForTester(ctx, job.ID, tester.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing application: %w", err)
	}
	if exists {
		return nil, store.ErrAlreadyApplied
	}

	admitted, err := s.repo.CountAdmittedApplications(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count admitted applications: %w", err)
	}
	if admitted >= job.TestersNeeded {
		return nil, ErrJobFull
	}

	assessment, err := s.risk.Evaluate(ctx, job, tester, cmd.IPAddress, cmd.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate fraud risk: %w", err)
	}
	if assessment.Blocked {
		log.Printf("Apply: blocked application to job %s by tester %s (score %d)", job.ID, tester.ID, assessment.Score)
		return nil, ErrFraudBlocked
	}
	if assessment.Suspicious {
		log.Printf("Apply: suspicious application to job %s by tester %s (score %d)", job.ID, tester.ID, assessment.Score)
	}

	application := &domain.Application{
		ID:                uuid.New(),
		JobID:             job.ID,
		TesterID:          tester.ID,
		Status:            domain.ApplicationStatusPending,
		IPAddress:         cmd.IPAddress,
		DeviceFingerprint: DeviceFingerprint(cmd.UserAgent),
	}
	if err := s.repo.CreateApplication(ctx, application); err != nil {
		return nil, err
	}

	payment := domain.NewPayment(application.ID, job.ID, tester.ID, job.PaymentPerTester)
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	return &domain.ApplyResult{Application: application, Suspicious: assessment.Suspicious}, nil
}

// Approve admits a pending applicant. Developer-only; moves the application
// to approved and the payment into escrow.
func (s *Service) Approve(ctx context.Context, cmd domain.ApproveCommand) (*domain.Application, error) {
	application, err := s.repo.FindApplicationByID(ctx, cmd.ApplicationID)
	if err != nil {
		return nil, err
	}
	job, err := s.repo.FindJobByID(ctx, application.JobID)
	if err != nil {
		return nil, err
	}
	if job.DeveloperID != cmd.ActorID {
		return nil, ErrNotAuthorized
	}

	admitted, err := s.repo.CountAdmittedApplications(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count admitted applications: %w", err)
	}
	if admitted >= job.TestersNeeded {
		return nil, ErrJobFull
	}

	updated, err := s.repo.UpdateApplicationStatusIf(ctx, application.ID, domain.ApplicationStatusPending, domain.ApplicationStatusApproved)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrStatusConflict
	}
	application.Status = domain.ApplicationStatusApproved

	if err := s.escrowPayment(ctx, application, job); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, domain.EventApplicationApproved, domain.ApplicationEvent{
		ApplicationID: application.ID,
		JobID:         job.ID,
		TesterID:      application.TesterID,
		Status:        application.Status,
		Timestamp:     time.Now().UTC(),
	})

	return application, nil
}

// escrowPayment moves the application's ledger row into escrow, recreating
// it first if the row is missing. A missing row is an integrity breach worth
// a warning, not a reason to strand the application.
func (s *Service) escrowPayment(ctx context.Context, application *domain.Application, job *domain.TestingJob) error {
	payment, err := s.repo.FindPaymentByApplicationID(ctx, application.ID)
	if errors.Is(err, store.ErrPaymentNotFound) {
		log.Printf("escrowPayment: WARNING missing payment for application %s, recreating at job rate", application.ID)
		payment = domain.NewPayment(application.ID, job.ID, application.TesterID, job.PaymentPerTester)
		if err := s.repo.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to recreate payment record: %w", err)
		}
	} else if err != nil {
		return err
	}

	updated, err := s.repo.UpdatePaymentStatusIf(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusEscrowed)
	if err != nil {
		return err
	}
	if !updated && payment.Status != domain.PaymentStatusEscrowed {
		return ErrStatusConflict
	}
	return nil
}

// Reject refuses an application in any pre-testing state and deletes its
// escrow ledger row. Developer-or-admin.
func (s *Service) Reject(ctx context.Context, cmd domain.RejectCommand) (*domain.Application, error) {
	application, err := s.repo.FindApplicationByID(ctx, cmd.ApplicationID)
	if err != nil {
		return nil, err
	}
	job, err := s.repo.FindJobByID(ctx, application.JobID)
	if err != nil {
		return nil, err
	}
	if job.DeveloperID != cmd.ActorID && cmd.ActorRole != domain.RoleAdmin {
		return nil, ErrNotAuthorized
	}

	switch application.Status {
	case domain.ApplicationStatusPending, domain.ApplicationStatusApproved,
		domain.ApplicationStatusOptedIn, domain.ApplicationStatusVerified:
	default:
		return nil, ErrStatusConflict
	}

	updated, err := s.repo.UpdateApplicationStatusIf(ctx, application.ID, application.Status, domain.ApplicationStatusRejected)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrStatusConflict
	}
	application.Status = domain.ApplicationStatusRejected

	// A rejected applicant owes and is owed nothing; the ledger row goes away.
	if err := s.repo.DeletePaymentByApplicationID(ctx, application.ID); err != nil {
		return nil, fmt.Errorf("failed to delete payment for rejected application: %w", err)
	}

	if cmd.Reason != "" {
		log.Printf("Reject: application %s rejected by %s: %s", application.ID, cmd.ActorID, cmd.Reason)
	}

	s.publishEvent(ctx, domain.EventApplicationRejected, domain.ApplicationEvent{
		ApplicationID: application.ID,
		JobID:         job.ID,
		TesterID:      application.TesterID,
		Status:        application.Status,
		Timestamp:     time.Now().UTC(),
	})

	return application, nil
}

// SubmitVerification attaches the tester's verification image and opts them
// into the job. Tester-only.
func (s *Service) SubmitVerification(ctx context.Context, cmd domain.SubmitVerificationCommand) (*domain.Application, error) {
	application, err := s.repo.FindApplicationByID(ctx, cmd.ApplicationID)
	if err != nil {
		return nil, err
	}
	if application.TesterID != cmd.ActorID {
		return nil, ErrNotAuthorized
	}

	updated, err := s.repo.UpdateApplicationStatusIf(ctx, application.ID, domain.ApplicationStatusApproved, domain.ApplicationStatusOptedIn)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrStatusConflict
	}
	application.Status = domain.ApplicationStatusOptedIn

	if err := s.repo.AttachVerificationImage(ctx, application.ID, cmd.VerificationImageURL); err != nil {
		return nil, fmt.Errorf("failed to attach verification image: %w", err)
	}
	application.VerificationImageURL = &cmd.VerificationImageURL

	return application, nil
}

// Verify confirms the tester's installation and starts the testing window.
// Developer-only. The payment moves from escrow into processing for the
// duration of the window.
func (s *Service) Verify(ctx context.Context, cmd domain.VerifyCommand) (*domain.Application, error) {
	application, err := s.repo.FindApplicationByID(ctx, cmd.ApplicationID)
	if err != nil {
		return nil, err
	}
	job, err := s.repo.FindJobByID(ctx, application.JobID)
	if err != nil {
		return nil, err
	}
	if job.DeveloperID != cmd.ActorID {
		return nil, ErrNotAuthorized
	}

	updated, err := s.repo.UpdateApplicationStatusIf(ctx, application.ID, domain.ApplicationStatusOptedIn, domain.ApplicationStatusTesting)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Manually reviewed applications sit in verified before the window
		// starts; they take the same transition.
		updated, err = s.repo.UpdateApplicationStatusIf(ctx, application.ID, domain.ApplicationStatusVerified, domain.ApplicationStatusTesting)
		if err != nil {
			return nil, err
		}
	}
	if !updated {
		return nil, ErrStatusConflict
	}
	application.Status = domain.ApplicationStatusTesting

	startedAt := time.Now().UTC()
	endDate := startedAt.AddDate(0, 0, job.TestDurationDays)
	if err := s.repo.StartTestingWindow(ctx, application.ID, startedAt, endDate); err != nil {
		return nil, fmt.Errorf("failed to start testing window: %w", err)
	}
	application.TestingStartedAt = &startedAt
	application.TestingEndDate = &endDate

	payment, err := s.repo.FindPaymentByApplicationID(ctx, application.ID)
	if err != nil {
		return nil, err
	}
	moved, err := s.repo.UpdatePaymentStatusIf(ctx, payment.ID, domain.PaymentStatusEscrowed, domain.PaymentStatusProcessing)
	if err != nil {
		return nil, err
	}
	if !moved && payment.Status != domain.PaymentStatusProcessing {
		// The sweep walks stray rows forward, but a payment off the expected
		// path at verify time is an integrity problem worth surfacing.
		log.Printf("Verify: WARNING payment %s for application %s is %s, expected escrowed", payment.ID, application.ID, payment.Status)
	}

	s.publishEvent(ctx, domain.EventApplicationVerified, domain.ApplicationEvent{
		ApplicationID: application.ID,
		JobID:         job.ID,
		TesterID:      application.TesterID,
		Status:        application.Status,
		Timestamp:     time.Now().UTC(),
	})

	return application, nil
}

// CancelJob cancels an active job and executes the compensation plan:
// partial payouts to participants by progress, the platform's fee on those
// payouts, and the remainder refunded to the developer. Every money-moving
// leg is isolated; one failed transfer never aborts the others.
func (s *Service) CancelJob(ctx context.Context, jobID, actorID uuid.UUID, actorRole string) (*domain.CancellationResult, error) {
	job, err := s.repo.FindJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.DeveloperID != actorID && actorRole != domain.RoleAdmin {
		return nil, ErrNotAuthorized
	}

	updated, err := s.repo.UpdateJobStatusIf(ctx, job.ID, domain.JobStatusActive, domain.JobStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Unlaunched jobs can be cancelled too; no applications exist yet,
		// so the whole escrow comes back as the refund.
		updated, err = s.repo.UpdateJobStatusIf(ctx, job.ID, domain.JobStatusDraft, domain.JobStatusCancelled)
		if err != nil {
			return nil, err
		}
	}
	if !updated {
		return nil, ErrStatusConflict
	}

	applications, err := s.repo.FindApplicationsByJobID(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load applications for cancellation: %w", err)
	}
	apps := make([]*domain.Application, len(applications))
	for i := range applications {
		apps[i] = &applications[i]
	}

	plan := ComputeCompensation(job, apps)
	result := &domain.CancellationResult{JobID: job.ID, Plan: plan}

	for i := range plan.Entries {
		entry := &plan.Entries[i]
		if tester, err := s.repo.FindUserByID(ctx, entry.TesterID); err == nil {
			entry.TesterEmail = tester.Email
		}
		if entry.Amount > 0 {
			result.Legs = append(result.Legs, s.executeCompensationLeg(ctx, job, entry))
		} else if entry.PriorStatus != domain.ApplicationStatusPending {
			// Pending entries are handled by the mass reject below; their
			// ledger rows are deleted rather than settled.
			s.zeroOutPayment(ctx, entry.ApplicationID)
			s.finalizeCancelledApplication(ctx, entry)
		}
	}

	// Pending applicants were never admitted; they are mass rejected.
	for i := range applications {
		a := &applications[i]
		if a.Status != domain.ApplicationStatusPending {
			continue
		}
		rejected, err := s.repo.UpdateApplicationStatusIf(ctx, a.ID, domain.ApplicationStatusPending, domain.ApplicationStatusRejected)
		if err != nil || !rejected {
			log.Printf("CancelJob: WARNING failed to reject pending application %s: %v", a.ID, err)
			continue
		}
		if err := s.repo.DeletePaymentByApplicationID(ctx, a.ID); err != nil {
			log.Printf("CancelJob: WARNING failed to delete payment for rejected application %s: %v", a.ID, err)
		}
		result.RejectedPending++
	}

	if plan.DeveloperRefund > 0 {
		result.Legs = append(result.Legs, s.executeRefundLeg(ctx, job, plan.DeveloperRefund))
	}

	s.publishEvent(ctx, domain.EventJobCancelled, domain.JobCancelledEvent{
		JobID:       job.ID,
		DeveloperID: job.DeveloperID,
		TotalPayout: plan.TotalPayout,
		Refund:      plan.DeveloperRefund,
		Timestamp:   time.Now().UTC(),
	})

	return result, nil
}

// executeCompensationLeg pays one participant their computed share and
// settles their ledger row in place with the actual amount.
func (s *Service) executeCompensationLeg(ctx context.Context, job *domain.TestingJob, entry *domain.CompensationEntry) domain.CancellationLeg {
	leg := domain.CancellationLeg{
		ApplicationID: entry.ApplicationID,
		TesterEmail:   entry.TesterEmail,
		Kind:          "payout",
		Amount:        entry.Amount,
	}

	payment, err := s.repo.FindPaymentByApplicationID(ctx, entry.ApplicationID)
	if err != nil {
		leg.Error = fmt.Sprintf("failed to load payment: %v", err)
		return leg
	}
	if payment.Status == domain.PaymentStatusCompleted {
		// Already settled by the sweep before the cancellation landed.
		leg.Success = true
		leg.Amount = payment.Amount
		s.finalizeCancelledApplication(ctx, entry)
		return leg
	}

	if job.EscrowIntentID == nil {
		leg.Error = "job has no escrow intent"
		return leg
	}

	idempotencyKey := fmt.Sprintf("cancel-%s", entry.ApplicationID)
	reason := fmt.Sprintf("partial compensation (%d%%) for cancelled job %s", entry.RatePercent, job.ID)
	transferID, err := s.gateway.TransferToTester(ctx, *job.EscrowIntentID, entry.TesterID.String(), entry.Amount, reason, idempotencyKey)
	if err != nil {
		leg.Error = err.Error()
		if markErr := s.repo.MarkPaymentFailed(ctx, payment.ID, err.Error()); markErr != nil {
			log.Printf("CancelJob: WARNING failed to record payout failure for %s: %v", payment.ID, markErr)
		}
		s.publishEvent(ctx, domain.EventPayoutFailed, domain.PayoutFailedEvent{
			PaymentID:     payment.ID,
			ApplicationID: entry.ApplicationID,
			TesterID:      entry.TesterID,
			Amount:        entry.Amount,
			Reason:        err.Error(),
			Timestamp:     time.Now().UTC(),
		})
		s.finalizeCancelledApplication(ctx, entry)
		return leg
	}

	if err := s.repo.MarkPaymentRefunded(ctx, payment.ID, entry.Amount, &transferID); err != nil {
		// Money moved but the ledger write failed; surface loudly.
		log.Printf("CancelJob: WARNING transfer %s succeeded but ledger update failed for payment %s: %v", transferID, payment.ID, err)
		leg.Error = fmt.Sprintf("transfer succeeded, ledger update failed: %v", err)
		return leg
	}

	s.finalizeCancelledApplication(ctx, entry)
	leg.Success = true
	return leg
}

// finalizeCancelledApplication moves a compensated participant's application
// to rejected, its terminal state on a cancelled job. Runs only after the
// leg's ledger write, so the recorded compensation outcome is the source of
// truth if the process dies between the two updates.
func (s *Service) finalizeCancelledApplication(ctx context.Context, entry *domain.CompensationEntry) {
	if entry.PriorStatus == domain.ApplicationStatusCompleted {
		return
	}
	updated, err := s.repo.UpdateApplicationStatusIf(ctx, entry.ApplicationID, entry.PriorStatus, domain.ApplicationStatusRejected)
	if err != nil {
		log.Printf("CancelJob: WARNING failed to reject application %s: %v", entry.ApplicationID, err)
		return
	}
	if updated {
		return
	}
	// A lost race is fine when something else already made the row terminal,
	// such as a sweep completing it mid-cancellation.
	application, err := s.repo.FindApplicationByID(ctx, entry.ApplicationID)
	if err != nil || !application.IsTerminal() {
		log.Printf("CancelJob: WARNING application %s left non-terminal after cancellation", entry.ApplicationID)
	}
}

// zeroOutPayment settles a zero-compensation ledger row in place.
func (s *Service) zeroOutPayment(ctx context.Context, applicationID uuid.UUID) {
	payment, err := s.repo.FindPaymentByApplicationID(ctx, applicationID)
	if err != nil {
		return
	}
	if payment.Status == domain.PaymentStatusCompleted || payment.Status == domain.PaymentStatusRefunded {
		return
	}
	if err := s.repo.MarkPaymentRefunded(ctx, payment.ID, 0, nil); err != nil {
		log.Printf("CancelJob: WARNING failed to zero out payment %s: %v", payment.ID, err)
	}
}

// executeRefundLeg returns the unspent remainder of the escrow to the
// developer.
func (s *Service) executeRefundLeg(ctx context.Context, job *domain.TestingJob, amount int64) domain.CancellationLeg {
	leg := domain.CancellationLeg{Kind: "refund", Amount: amount}

	if job.EscrowIntentID == nil {
		leg.Error = "job has no escrow intent"
		return leg
	}

	idempotencyKey := fmt.Sprintf("cancel-refund-%s", job.ID)
	refundID, err := s.gateway.RefundEscrow(ctx, *job.EscrowIntentID, amount, fmt.Sprintf("unspent budget for cancelled job %s", job.ID), idempotencyKey)
	if err != nil {
		leg.Error = err.Error()
		return leg
	}

	log.Printf("CancelJob: refunded %d to developer %s for job %s (ref %s)", amount, job.DeveloperID, job.ID, refundID)
	leg.Success = true
	return leg
}

// RetryPayout re-attempts a failed payout. Admin-only; the payment moves
// back to processing before the gateway call so a concurrent retry loses the
// compare-and-swap instead of double-paying.
func (s *Service) RetryPayout(ctx context.Context, paymentID, actorID uuid.UUID, actorRole string) (*domain.Payment, error) {
	if actorRole != domain.RoleAdmin {
		return nil, ErrNotAuthorized
	}

	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdatePaymentStatusIf(ctx, payment.ID, domain.PaymentStatusFailed, domain.PaymentStatusProcessing)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrStatusConflict
	}
	payment.Status = domain.PaymentStatusProcessing

	job, err := s.repo.FindJobByID(ctx, payment.JobID)
	if err != nil {
		return nil, err
	}
	if job.EscrowIntentID == nil {
		return nil, fmt.Errorf("job %s has no escrow intent", job.ID)
	}

	idempotencyKey := fmt.Sprintf("retry-%s-%d", payment.ID, time.Now().Unix())
	transferID, err := s.gateway.TransferToTester(ctx, *job.EscrowIntentID, payment.TesterID.String(), payment.Amount, fmt.Sprintf("payout retry for job %s", job.ID), idempotencyKey)
	if err != nil {
		if markErr := s.repo.MarkPaymentFailed(ctx, payment.ID, err.Error()); markErr != nil {
			log.Printf("RetryPayout: WARNING failed to record payout failure for %s: %v", payment.ID, markErr)
		}
		s.publishEvent(ctx, domain.EventPayoutFailed, domain.PayoutFailedEvent{
			PaymentID:     payment.ID,
			ApplicationID: payment.ApplicationID,
			TesterID:      payment.TesterID,
			Amount:        payment.Amount,
			Reason:        err.Error(),
			Timestamp:     time.Now().UTC(),
		})
		return nil, fmt.Errorf("payout retry failed: %w", err)
	}

	if err := s.repo.MarkPaymentCompleted(ctx, payment.ID, transferID); err != nil {
		return nil, fmt.Errorf("transfer %s succeeded but ledger update failed: %w", transferID, err)
	}
	payment.Status = domain.PaymentStatusCompleted
	payment.TransferID = &transferID

	return payment, nil
}

// GetApplication loads one application with an ownership check: the tester,
// the job's developer, and admins may read it.
func (s *Service) GetApplication(ctx context.Context, applicationID, actorID uuid.UUID, actorRole string) (*domain.Application, error) {
	application, err := s.repo.FindApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if application.TesterID == actorID || actorRole == domain.RoleAdmin {
		return application, nil
	}
	job, err := s.repo.FindJobByID(ctx, application.JobID)
	if err != nil {
		return nil, err
	}
	if job.DeveloperID != actorID {
		return nil, ErrNotAuthorized
	}
	return application, nil
}

// ListFraudLogs returns the fraud audit trail for admin review.
func (s *Service) ListFraudLogs(ctx context.Context, filter domain.FraudLogFilter) ([]domain.FraudLog, error) {
	return s.repo.ListFraudLogs(ctx, filter)
}

// ResolveFraudLog marks one fraud log entry as reviewed.
func (s *Service) ResolveFraudLog(ctx context.Context, logID, adminID uuid.UUID) error {
	return s.repo.ResolveFraudLog(ctx, logID, adminID)
}

// ClearUserFlags resets a user's flagged state after manual review.
func (s *Service) ClearUserFlags(ctx context.Context, userID uuid.UUID) error {
	return s.repo.ClearUserFlags(ctx, userID)
}

// RecomputeFraudScore re-derives a user's cumulative score from the
// append-only fraud log, for auditing the materialized aggregate.
func (s *Service) RecomputeFraudScore(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.SumFraudScoreFromLogs(ctx, userID)
}

// publishEvent emits a notification event, logging and swallowing failures.
func (s *Service) publishEvent(ctx context.Context, routingKey string, payload interface{}) {
	if err := s.eventProducer.Publish(ctx, rabbitmq.NotificationExchange, routingKey, payload); err != nil {
		log.Printf("WARN: Failed to publish %s event: %v", routingKey, err)
	}
}
