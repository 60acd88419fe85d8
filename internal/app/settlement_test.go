package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/betatide/settlement-service/internal/domain"
	"github.com/google/uuid"
)

func (s *lifecycleRepoStub) FindDueTestingApplications(ctx context.Context, now time.Time) ([]domain.Application, error) {
	var due []domain.Application
	for _, app := range s.apps {
		if app.Status == domain.ApplicationStatusTesting && app.TestingEndDate != nil && !app.TestingEndDate.After(now) {
			due = append(due, *app)
		}
	}
	return due, nil
}

func (s *lifecycleRepoStub) MarkApplicationCompleted(ctx context.Context, applicationID uuid.UUID, completedAt time.Time) (bool, error) {
	app, ok := s.apps[applicationID]
	if !ok || app.Status != domain.ApplicationStatusTesting {
		return false, nil
	}
	app.Status = domain.ApplicationStatusCompleted
	app.CompletedAt = &completedAt
	return true, nil
}

func (s *lifecycleRepoStub) RecomputeTesterProfile(ctx context.Context, testerID uuid.UUID) (*domain.TesterProfile, error) {
	s.recomputedProfiles = append(s.recomputedProfiles, testerID)
	return &domain.TesterProfile{UserID: testerID}, nil
}

func (f *fixture) jobs() *SettlementJobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSettlementJobs(f.repo, f.gateway, f.publisher, logger)
}

// addDueApplication seeds a testing application whose window elapsed an hour
// ago, with its payment in the given status.
func (f *fixture) addDueApplication(paymentStatus string) (*domain.Application, *domain.Payment) {
	app, payment := f.addApplication(domain.ApplicationStatusTesting, paymentStatus)
	started := time.Now().UTC().Add(-14 * 24 * time.Hour)
	ended := time.Now().UTC().Add(-time.Hour)
	app.TestingStartedAt = &started
	app.TestingEndDate = &ended
	return app, payment
}

func TestRunSweep_SettlesDueApplications(t *testing.T) {
	f := newFixture()
	app1, payment1 := f.addDueApplication(domain.PaymentStatusProcessing)
	app2, payment2 := f.addDueApplication(domain.PaymentStatusProcessing)

	result, err := f.jobs().RunSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 2 || result.Succeeded != 2 || result.Failed != 0 {
		t.Fatalf("unexpected tallies: %+v", result)
	}

	for _, app := range []*domain.Application{app1, app2} {
		if app.Status != domain.ApplicationStatusCompleted {
			t.Fatalf("expected completed application, got %s", app.Status)
		}
		if app.CompletedAt == nil {
			t.Fatal("expected completed_at to be set")
		}
	}
	for _, payment := range []*domain.Payment{payment1, payment2} {
		if payment.Status != domain.PaymentStatusCompleted {
			t.Fatalf("expected completed payment, got %s", payment.Status)
		}
		if payment.TransferID == nil {
			t.Fatal("expected a gateway transfer reference")
		}
	}

	if len(f.gateway.transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(f.gateway.transfers))
	}
	wantKey := "settle-" + app1.ID.String()
	found := false
	for _, call := range f.gateway.transfers {
		if call.idempotencyKey == wantKey {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a transfer with idempotency key %q, got %+v", wantKey, f.gateway.transfers)
	}

	if len(f.repo.recomputedProfiles) != 2 {
		t.Fatalf("expected 2 profile recomputes, got %d", len(f.repo.recomputedProfiles))
	}
	if !f.publisher.published(domain.EventTestingCompleted) {
		t.Fatal("expected testing.completed event")
	}
}

func TestRunSweep_SecondRunIsNoOp(t *testing.T) {
	f := newFixture()
	f.addDueApplication(domain.PaymentStatusProcessing)
	jobs := f.jobs()

	if _, err := jobs.RunSweep(context.Background()); err != nil {
		t.Fatalf("unexpected error on first run: %v", err)
	}

	result, err := jobs.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("expected idempotent second run, processed %d", result.Processed)
	}
	if len(f.gateway.transfers) != 1 {
		t.Fatalf("expected no additional transfers, got %d", len(f.gateway.transfers))
	}
}

func TestRunSweep_NotYetDueApplicationsUntouched(t *testing.T) {
	f := newFixture()
	app, _ := f.addApplication(domain.ApplicationStatusTesting, domain.PaymentStatusProcessing)
	future := time.Now().UTC().Add(48 * time.Hour)
	app.TestingEndDate = &future

	result, err := f.jobs().RunSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("expected nothing processed, got %d", result.Processed)
	}
	if app.Status != domain.ApplicationStatusTesting {
		t.Fatalf("expected application untouched, got %s", app.Status)
	}
}

func TestRunSweep_FailedPayoutIsIsolated(t *testing.T) {
	f := newFixture()
	failingApp, failingPayment := f.addDueApplication(domain.PaymentStatusProcessing)
	_, okPayment := f.addDueApplication(domain.PaymentStatusProcessing)
	f.gateway.failRecipients[failingApp.TesterID.String()] = true

	result, err := f.jobs().RunSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 2 || result.Succeeded != 1 || result.Failed != 1 {
		t.Fatalf("unexpected tallies: %+v", result)
	}

	if failingPayment.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected failed payment, got %s", failingPayment.Status)
	}
	if failingPayment.FailureReason == nil {
		t.Fatal("expected the gateway reason to be preserved")
	}
	if okPayment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected the surviving payment completed, got %s", okPayment.Status)
	}
	// The application stays completed; recovery goes through the payout
	// retry, not another sweep.
	if failingApp.Status != domain.ApplicationStatusCompleted {
		t.Fatalf("expected completed application, got %s", failingApp.Status)
	}
	if !f.publisher.published(domain.EventPayoutFailed) {
		t.Fatal("expected payout.failed alert")
	}
}

func TestRunSweep_RecreatesMissingPayment(t *testing.T) {
	f := newFixture()
	app, payment := f.addDueApplication(domain.PaymentStatusEscrowed)
	delete(f.repo.payments, payment.ID)

	result, err := f.jobs().RunSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 1 || result.Succeeded != 1 {
		t.Fatalf("unexpected tallies: %+v", result)
	}

	recreated, err := f.repo.FindPaymentByApplicationID(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("expected a recreated payment: %v", err)
	}
	if recreated.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed payment, got %s", recreated.Status)
	}
	if recreated.Amount != f.job.PaymentPerTester {
		t.Fatalf("expected recreated payment at job rate %d, got %d", f.job.PaymentPerTester, recreated.Amount)
	}
}

func TestRunSweep_WalksEscrowedPaymentForward(t *testing.T) {
	f := newFixture()
	_, payment := f.addDueApplication(domain.PaymentStatusEscrowed)

	result, err := f.jobs().RunSweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("expected one success, got %+v", result)
	}
	if payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed payment, got %s", payment.Status)
	}
}
