/**
 * @description
 * The cancellation compensation calculator. A pure function over the job and
 * its applications: no clock, no I/O, no randomness, so the same inputs
 * always price a cancellation the same way.
 *
 * Each non-rejected participant is paid a fixed percentage of the per-tester
 * payment based on how far their application progressed, the platform keeps
 * its fee share on the paid-out portion, and the developer is refunded the
 * remainder of the escrowed total.
 */

package app

import (
	"github.com/betatide/settlement-service/internal/domain"
)

// Compensation rates by application progress, in percent of the per-tester
// payment.
var compensationRates = map[string]int{
	domain.ApplicationStatusCompleted: 100,
	domain.ApplicationStatusTesting:   75,
	domain.ApplicationStatusVerified:  50,
	domain.ApplicationStatusOptedIn:   25,
	domain.ApplicationStatusApproved:  0,
	domain.ApplicationStatusPending:   0,
}

// CompensationRate returns the payout percentage owed to an application in
// the given status when its job is cancelled. Rejected applications are owed
// nothing and get no plan entry at all.
func CompensationRate(status string) int {
	return compensationRates[status]
}

// ComputeCompensation prices a cancellation of the given job. The returned
// plan conserves money exactly: total payout, fee on payouts and developer
// refund sum to the escrowed total (budget plus platform fee), with the fee
// rounded down in integer cents.
//
// Entries carry no tester emails; the caller enriches them when it resolves
// the testers for the payout legs.
func ComputeCompensation(job *domain.TestingJob, applications []*domain.Application) domain.CompensationPlan {
	plan := domain.CompensationPlan{}

	for _, a := range applications {
		if a.Status == domain.ApplicationStatusRejected {
			continue
		}
		rate := CompensationRate(a.Status)
		amount := job.PaymentPerTester * int64(rate) / 100
		plan.Entries = append(plan.Entries, domain.CompensationEntry{
			ApplicationID: a.ID,
			TesterID:      a.TesterID,
			PriorStatus:   a.Status,
			RatePercent:   rate,
			Amount:        amount,
		})
		plan.TotalPayout += amount
	}

	plan.FeeOnPayouts = domain.FeeFor(plan.TotalPayout)
	refund := job.TotalBudget + job.PlatformFee - plan.TotalPayout - plan.FeeOnPayouts
	if refund < 0 {
		refund = 0
	}
	plan.DeveloperRefund = refund

	return plan
}
