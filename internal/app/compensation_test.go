package app

import (
	"testing"

	"github.com/betatide/settlement-service/internal/domain"
	"github.com/google/uuid"
)

func compensationJob(paymentPerTester int64, testersNeeded int) *domain.TestingJob {
	budget := paymentPerTester * int64(testersNeeded)
	return &domain.TestingJob{
		ID:               uuid.New(),
		DeveloperID:      uuid.New(),
		PaymentPerTester: paymentPerTester,
		TestersNeeded:    testersNeeded,
		TotalBudget:      budget,
		PlatformFee:      domain.FeeFor(budget),
	}
}

func applicationIn(status string) *domain.Application {
	return &domain.Application{
		ID:       uuid.New(),
		TesterID: uuid.New(),
		Status:   status,
	}
}

func TestComputeCompensation_MixedProgress(t *testing.T) {
	// $20 budget across two testers at $10 each, $3 platform fee.
	// One tester completed ($10), one only opted in ($2.50).
	job := compensationJob(1000, 2)
	job.PlatformFee = 300
	apps := []*domain.Application{
		applicationIn(domain.ApplicationStatusCompleted),
		applicationIn(domain.ApplicationStatusOptedIn),
	}

	plan := ComputeCompensation(job, apps)

	if plan.TotalPayout != 1250 {
		t.Fatalf("expected total payout 1250, got %d", plan.TotalPayout)
	}
	if plan.FeeOnPayouts != 187 {
		t.Fatalf("expected fee on payouts 187, got %d", plan.FeeOnPayouts)
	}
	if plan.DeveloperRefund != 863 {
		t.Fatalf("expected developer refund 863, got %d", plan.DeveloperRefund)
	}
	total := plan.TotalPayout + plan.FeeOnPayouts + plan.DeveloperRefund
	if total != job.TotalBudget+job.PlatformFee {
		t.Fatalf("plan does not conserve money: %d != %d", total, job.TotalBudget+job.PlatformFee)
	}
}

func TestComputeCompensation_SingleCompletedTester(t *testing.T) {
	job := compensationJob(1000, 2)
	job.PlatformFee = 300
	apps := []*domain.Application{applicationIn(domain.ApplicationStatusCompleted)}

	plan := ComputeCompensation(job, apps)

	if plan.TotalPayout != 1000 {
		t.Fatalf("expected total payout 1000, got %d", plan.TotalPayout)
	}
	if plan.FeeOnPayouts != 150 {
		t.Fatalf("expected fee on payouts 150, got %d", plan.FeeOnPayouts)
	}
	if plan.DeveloperRefund != 1150 {
		t.Fatalf("expected developer refund 1150, got %d", plan.DeveloperRefund)
	}
}

func TestComputeCompensation_SingleTesterInTesting(t *testing.T) {
	job := compensationJob(1000, 2)
	job.PlatformFee = 300
	apps := []*domain.Application{applicationIn(domain.ApplicationStatusTesting)}

	plan := ComputeCompensation(job, apps)

	if plan.TotalPayout != 750 {
		t.Fatalf("expected total payout 750, got %d", plan.TotalPayout)
	}
	if plan.FeeOnPayouts != 112 {
		t.Fatalf("expected fee on payouts 112, got %d", plan.FeeOnPayouts)
	}
	if plan.DeveloperRefund != 1438 {
		t.Fatalf("expected developer refund 1438, got %d", plan.DeveloperRefund)
	}
}

func TestComputeCompensation_NoParticipantsRefundsEverything(t *testing.T) {
	job := compensationJob(1000, 3)
	plan := ComputeCompensation(job, nil)

	if len(plan.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(plan.Entries))
	}
	if plan.TotalPayout != 0 || plan.FeeOnPayouts != 0 {
		t.Fatalf("expected zero payout and fee, got %d and %d", plan.TotalPayout, plan.FeeOnPayouts)
	}
	if plan.DeveloperRefund != job.TotalBudget+job.PlatformFee {
		t.Fatalf("expected full refund %d, got %d", job.TotalBudget+job.PlatformFee, plan.DeveloperRefund)
	}
}

func TestComputeCompensation_RejectedAndPendingApplicants(t *testing.T) {
	job := compensationJob(1000, 3)
	apps := []*domain.Application{
		applicationIn(domain.ApplicationStatusRejected),
		applicationIn(domain.ApplicationStatusPending),
		applicationIn(domain.ApplicationStatusApproved),
	}

	plan := ComputeCompensation(job, apps)

	// Rejected applicants get no entry at all; pending and approved appear
	// with a zero amount.
	if len(plan.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(plan.Entries))
	}
	for _, e := range plan.Entries {
		if e.Amount != 0 || e.RatePercent != 0 {
			t.Fatalf("expected zero compensation for %s, got %d at %d%%", e.PriorStatus, e.Amount, e.RatePercent)
		}
	}
	if plan.TotalPayout != 0 {
		t.Fatalf("expected zero payout, got %d", plan.TotalPayout)
	}
	if plan.DeveloperRefund != job.TotalBudget+job.PlatformFee {
		t.Fatalf("expected full refund, got %d", plan.DeveloperRefund)
	}
}

func TestComputeCompensation_RateLadderIsMonotone(t *testing.T) {
	ladder := []string{
		domain.ApplicationStatusPending,
		domain.ApplicationStatusApproved,
		domain.ApplicationStatusOptedIn,
		domain.ApplicationStatusVerified,
		domain.ApplicationStatusTesting,
		domain.ApplicationStatusCompleted,
	}
	prev := -1
	for _, status := range ladder {
		rate := CompensationRate(status)
		if rate < prev {
			t.Fatalf("rate for %s (%d%%) is below the prior rung (%d%%)", status, rate, prev)
		}
		prev = rate
	}
	if CompensationRate(domain.ApplicationStatusCompleted) != 100 {
		t.Fatal("completed testers must be paid in full")
	}
}
