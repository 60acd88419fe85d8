/**
 * @description
 * The risk scorer: a weighted, additive heuristic evaluated synchronously at
 * application-creation time. Five independent signals contribute points; all
 * of them are always evaluated, with no short-circuiting, so the audit trail
 * is complete even when an early signal has already crossed the block
 * threshold.
 *
 * Every fired signal appends a fraud_logs row, which keeps the cumulative
 * user score recomputable from the append-only log; the materialized score
 * on the user row is a convenience, not the source of truth.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/betatide/settlement-service/internal/domain"
	"github.com/betatide/settlement-service/internal/store"
	"github.com/google/uuid"
)

// Signal point values. Additive; the per-call score is capped at 100.
const (
	riskPointsNewAccount   = 20
	riskPointsRapidApplies = 30
	riskPointsDuplicateIP  = 40
	riskPointsCollusion    = 25
	riskPointsSameDevice   = 35

	// RiskBlockThreshold refuses the application outright when the per-call
	// score reaches it.
	RiskBlockThreshold = 70
	// RiskSuspicionThreshold marks the assessment suspicious for
	// informational purposes; the application still proceeds.
	RiskSuspicionThreshold = 30

	newAccountWindow    = time.Hour
	rapidApplyWindow    = time.Hour
	rapidApplyLimit     = 5
	collusionJobMinimum = 3
)

// RiskScorer evaluates fraud signals over historical participation records
// and request metadata.
type RiskScorer struct {
	repo store.Repository
}

// NewRiskScorer creates a risk scorer backed by the given repository.
func NewRiskScorer(repo store.Repository) *RiskScorer {
	return &RiskScorer{repo: repo}
}

// Evaluate scores one application attempt. It writes fraud-log rows for
// every fired signal and folds the per-call score into the tester's
// cumulative score. Signal queries are load-bearing for the block decision,
// so a query failure fails the evaluation rather than silently under-scoring.
func (s *RiskScorer) Evaluate(ctx context.Context, job *domain.TestingJob, tester *domain.User, ipAddress, userAgent string) (*domain.RiskAssessment, error) {
	now := time.Now().UTC()
	fingerprint := DeviceFingerprint(userAgent)

	assessment := &domain.RiskAssessment{}
	var logs []*domain.FraudLog

	record := func(points int, signal, severity, detail string) {
		assessment.Score += points
		assessment.Reasons = append(assessment.Reasons, fmt.Sprintf("%s (+%d)", signal, points))
		logs = append(logs, &domain.FraudLog{
			ID:       uuid.New(),
			UserID:   tester.ID,
			Signal:   signal,
			Severity: severity,
			Score:    points,
			Detail:   detail,
		})
	}

	// Signal 1: account created less than an hour before applying.
	if now.Sub(tester.CreatedAt) < newAccountWindow {
		record(riskPointsNewAccount, domain.FraudSignalNewAccount, domain.FraudSeverityLow,
			fmt.Sprintf("account age %s at application time", now.Sub(tester.CreatedAt).Truncate(time.Second)))
	}

	// Signal 2: more than five applications in the trailing hour.
	recent, err := s.repo.CountRecentApplicationsByTester(ctx, tester.ID, now.Add(-rapidApplyWindow))
	if err != nil {
		return nil, fmt.Errorf("risk: counting recent applications: %w", err)
	}
	if recent > rapidApplyLimit {
		record(riskPointsRapidApplies, domain.FraudSignalRapidApplications, domain.FraudSeverityLow,
			fmt.Sprintf("%d applications in the last hour", recent))
	}

	// Signal 3: another applicant to the same job shares this IP address.
	sameIP, err := s.repo.ExistsApplicationWithIP(ctx, job.ID, ipAddress, tester.ID)
	if err != nil {
		return nil, fmt.Errorf("risk: checking duplicate ip: %w", err)
	}
	if sameIP {
		record(riskPointsDuplicateIP, domain.FraudSignalDuplicateIP, domain.FraudSeverityHigh,
			fmt.Sprintf("ip %s already used by another applicant to job %s", ipAddress, job.ID))
	}

	// Signal 4: repeated participation across one developer's jobs.
	developerJobs, err := s.repo.CountApplicationsToDeveloper(ctx, tester.ID, job.DeveloperID)
	if err != nil {
		return nil, fmt.Errorf("risk: counting developer applications: %w", err)
	}
	if developerJobs >= collusionJobMinimum {
		record(riskPointsCollusion, domain.FraudSignalCollusionSuspected, domain.FraudSeverityMedium,
			fmt.Sprintf("tester has applied to %d jobs owned by developer %s", developerJobs, job.DeveloperID))
	}

	// Signal 5: device fingerprint matches another applicant to the same job.
	sameDevice, err := s.repo.ExistsApplicationWithDevice(ctx, job.ID, fingerprint, tester.ID)
	if err != nil {
		return nil, fmt.Errorf("risk: checking same device: %w", err)
	}
	if sameDevice {
		record(riskPointsSameDevice, domain.FraudSignalSameDevice, domain.FraudSeverityHigh,
			fmt.Sprintf("device fingerprint %q already used by another applicant to job %s", fingerprint, job.ID))
	}

	if assessment.Score > domain.FraudScoreCap {
		assessment.Score = domain.FraudScoreCap
	}
	assessment.Blocked = assessment.Score >= RiskBlockThreshold
	assessment.Suspicious = assessment.Score >= RiskSuspicionThreshold

	// The audit trail is written even for blocked attempts.
	for _, entry := range logs {
		if err := s.repo.CreateFraudLog(ctx, entry); err != nil {
			return nil, fmt.Errorf("risk: writing fraud log: %w", err)
		}
	}

	if assessment.Score > 0 {
		total, err := s.repo.AddFraudScore(ctx, tester.ID, assessment.Score)
		if err != nil {
			return nil, fmt.Errorf("risk: updating cumulative score: %w", err)
		}
		if total >= domain.FraudFlagThreshold {
			log.Printf("level=warn component=risk_scorer msg=\"tester flagged\" tester_id=%s cumulative_score=%d", tester.ID, total)
		}
	}

	return assessment, nil
}

// DeviceFingerprint derives a coarse device identity (model + OS version)
// from the request's user-agent string. Most mobile user agents carry a
// parenthesized platform segment; when none exists the whole string is used.
func DeviceFingerprint(userAgent string) string {
	ua := strings.TrimSpace(userAgent)
	if open := strings.Index(ua, "("); open >= 0 {
		if end := strings.Index(ua[open:], ")"); end > 0 {
			ua = ua[open+1 : open+end]
		}
	}
	return strings.ToLower(strings.Join(strings.Fields(ua), " "))
}
