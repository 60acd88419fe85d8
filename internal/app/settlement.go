/**
 * @description
 * The settlement sweep: finds testing applications whose window has elapsed,
 * completes them, pays the testers out of escrow, and refreshes reputation
 * aggregates. Runs on a cron schedule and behind an authenticated internal
 * endpoint; both entry points share RunSweep.
 *
 * Each application is settled in its own failure domain. A failed payout
 * marks that payment failed and alerts admins, and the sweep moves on. The
 * selection predicate only matches rows still in testing, so a re-run after
 * a partial failure picks up exactly the unfinished work.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/betatide/settlement-service/internal/domain"
	"github.com/betatide/settlement-service/internal/store"
	"github.com/betatide/settlement-service/pkg/rabbitmq"
)

// SettlementJobs contains the scheduled settlement logic.
type SettlementJobs struct {
	repo          store.Repository
	gateway       Gateway
	eventProducer rabbitmq.Publisher
	logger        *slog.Logger
}

// NewSettlementJobs creates a new settlement job runner.
func NewSettlementJobs(repo store.Repository, gateway Gateway, producer rabbitmq.Publisher, logger *slog.Logger) *SettlementJobs {
	return &SettlementJobs{
		repo:          repo,
		gateway:       gateway,
		eventProducer: producer,
		logger:        logger,
	}
}

// SweepDueApplications is the cron entry point.
func (j *SettlementJobs) SweepDueApplications() {
	if _, err := j.RunSweep(context.Background()); err != nil {
		j.logger.Error("settlement sweep failed", "error", err)
	}
}

// RunSweep settles every application whose testing window has elapsed and
// reports a per-item breakdown. Safe to re-run: already-settled rows no
// longer match the selection predicate.
func (j *SettlementJobs) RunSweep(ctx context.Context) (*domain.SweepResult, error) {
	j.logger.Info("starting settlement sweep")
	now := time.Now().UTC()

	due, err := j.repo.FindDueTestingApplications(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find due applications: %w", err)
	}

	result := &domain.SweepResult{}
	if len(due) == 0 {
		j.logger.Info("no due applications to settle")
		return result, nil
	}

	j.logger.Info("found due applications", "count", len(due))

	for i := range due {
		application := &due[i]

		// The completion CAS is the claim on this row. Losing it means a
		// concurrent sweep already owns the application.
		settled, err := j.repo.MarkApplicationCompleted(ctx, application.ID, now)
		if err != nil {
			j.logger.Error("failed to complete application", "application_id", application.ID, "error", err)
			continue
		}
		if !settled {
			j.logger.Info("application already claimed by another sweep", "application_id", application.ID)
			continue
		}

		item := j.settleApplication(ctx, application)
		result.Processed++
		if item.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
		result.Items = append(result.Items, item)
	}

	j.logger.Info("settlement sweep finished",
		"processed", result.Processed, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// settleApplication pays one completed application out of escrow.
func (j *SettlementJobs) settleApplication(ctx context.Context, application *domain.Application) domain.SweepItemResult {
	item := domain.SweepItemResult{
		ApplicationID: application.ID,
		TesterID:      application.TesterID,
	}

	job, err := j.repo.FindJobByID(ctx, application.JobID)
	if err != nil {
		item.Error = fmt.Sprintf("failed to load job: %v", err)
		return item
	}

	payment, err := j.repo.FindPaymentByApplicationID(ctx, application.ID)
	if errors.Is(err, store.ErrPaymentNotFound) {
		// Integrity breach: a testing application always has a ledger row.
		// Recreate it at the job rate so the tester still gets paid.
		j.logger.Warn("missing payment for due application, recreating at job rate",
			"application_id", application.ID, "job_id", job.ID)
		payment = domain.NewPayment(application.ID, job.ID, application.TesterID, job.PaymentPerTester)
		if err := j.repo.CreatePayment(ctx, payment); err != nil {
			item.Error = fmt.Sprintf("failed to recreate payment: %v", err)
			return item
		}
	} else if err != nil {
		item.Error = fmt.Sprintf("failed to load payment: %v", err)
		return item
	}

	item.PaymentID = payment.ID
	item.Amount = payment.Amount

	if payment.Status == domain.PaymentStatusCompleted {
		// An earlier run paid the tester but lost the application CAS race
		// before the crash. Nothing left to move.
		item.Success = true
		return item
	}

	// Pending and escrowed rows are walked forward into processing; a row
	// already in processing passes through untouched.
	for _, from := range []string{domain.PaymentStatusPending, domain.PaymentStatusEscrowed} {
		if payment.Status == from {
			if _, err := j.repo.UpdatePaymentStatusIf(ctx, payment.ID, from, domain.PaymentStatusProcessing); err != nil {
				item.Error = fmt.Sprintf("failed to move payment into processing: %v", err)
				return item
			}
			payment.Status = domain.PaymentStatusProcessing
		}
	}
	if payment.Status != domain.PaymentStatusProcessing {
		item.Error = fmt.Sprintf("payment in unexpected status %q", payment.Status)
		return item
	}

	if job.EscrowIntentID == nil {
		item.Error = "job has no escrow intent"
		return item
	}

	idempotencyKey := fmt.Sprintf("settle-%s", application.ID)
	transferID, err := j.gateway.TransferToTester(ctx, *job.EscrowIntentID, application.TesterID.String(), payment.Amount,
		fmt.Sprintf("testing payout for job %s", job.ID), idempotencyKey)
	if err != nil {
		item.Error = err.Error()
		if markErr := j.repo.MarkPaymentFailed(ctx, payment.ID, err.Error()); markErr != nil {
			j.logger.Error("failed to record payout failure", "payment_id", payment.ID, "error", markErr)
		}
		j.publishEvent(ctx, domain.EventPayoutFailed, domain.PayoutFailedEvent{
			PaymentID:     payment.ID,
			ApplicationID: application.ID,
			TesterID:      application.TesterID,
			Amount:        payment.Amount,
			Reason:        err.Error(),
			Timestamp:     time.Now().UTC(),
		})
		return item
	}

	if err := j.repo.MarkPaymentCompleted(ctx, payment.ID, transferID); err != nil {
		j.logger.Error("transfer succeeded but ledger update failed",
			"payment_id", payment.ID, "transfer_id", transferID, "error", err)
		item.Error = fmt.Sprintf("transfer succeeded, ledger update failed: %v", err)
		return item
	}

	if _, err := j.repo.RecomputeTesterProfile(ctx, application.TesterID); err != nil {
		// Reputation is a derived aggregate; the next sweep rebuilds it.
		j.logger.Warn("failed to recompute tester profile", "tester_id", application.TesterID, "error", err)
	}

	j.publishEvent(ctx, domain.EventTestingCompleted, domain.ApplicationEvent{
		ApplicationID: application.ID,
		JobID:         job.ID,
		TesterID:      application.TesterID,
		Status:        domain.ApplicationStatusCompleted,
		Timestamp:     time.Now().UTC(),
	})

	item.Success = true
	return item
}

func (j *SettlementJobs) publishEvent(ctx context.Context, routingKey string, payload interface{}) {
	if err := j.eventProducer.Publish(ctx, rabbitmq.NotificationExchange, routingKey, payload); err != nil {
		j.logger.Warn("failed to publish event", "routing_key", routingKey, "error", err)
	}
}
