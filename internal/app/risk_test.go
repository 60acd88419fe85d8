package app

import (
	"context"
	"testing"
	"time"

	"github.com/betatide/settlement-service/internal/domain"
	"github.com/betatide/settlement-service/internal/store"
	"github.com/google/uuid"
)

type riskRepoStub struct {
	store.Repository

	recentApplications int
	sameIP             bool
	sameDevice         bool
	developerJobs      int

	loggedSignals []string
	addedDelta    int
	cumulative    int
}

func (s *riskRepoStub) CountRecentApplicationsByTester(ctx context.Context, testerID uuid.UUID, since time.Time) (int, error) {
	return s.recentApplications, nil
}

func (s *riskRepoStub) ExistsApplicationWithIP(ctx context.Context, jobID uuid.UUID, ipAddress string, excludeTesterID uuid.UUID) (bool, error) {
	return s.sameIP, nil
}

func (s *riskRepoStub) ExistsApplicationWithDevice(ctx context.Context, jobID uuid.UUID, fingerprint string, excludeTesterID uuid.UUID) (bool, error) {
	return s.sameDevice, nil
}

func (s *riskRepoStub) CountApplicationsToDeveloper(ctx context.Context, testerID, developerID uuid.UUID) (int, error) {
	return s.developerJobs, nil
}

func (s *riskRepoStub) CreateFraudLog(ctx context.Context, entry *domain.FraudLog) error {
	s.loggedSignals = append(s.loggedSignals, entry.Signal)
	return nil
}

func (s *riskRepoStub) AddFraudScore(ctx context.Context, userID uuid.UUID, delta int) (int, error) {
	s.addedDelta = delta
	s.cumulative += delta
	if s.cumulative > domain.FraudScoreCap {
		s.cumulative = domain.FraudScoreCap
	}
	return s.cumulative, nil
}

func riskFixtures() (*domain.TestingJob, *domain.User) {
	job := &domain.TestingJob{
		ID:          uuid.New(),
		DeveloperID: uuid.New(),
	}
	tester := &domain.User{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	return job, tester
}

func TestEvaluate_CleanApplicationScoresZero(t *testing.T) {
	job, tester := riskFixtures()
	repo := &riskRepoStub{}

	assessment, err := NewRiskScorer(repo).Evaluate(context.Background(), job, tester, "203.0.113.9", "Mozilla/5.0 (Linux; Android 14; Pixel 8)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assessment.Score != 0 {
		t.Fatalf("expected score 0, got %d", assessment.Score)
	}
	if assessment.Blocked || assessment.Suspicious {
		t.Fatal("clean application should be neither blocked nor suspicious")
	}
	if len(repo.loggedSignals) != 0 {
		t.Fatalf("expected no fraud logs, got %v", repo.loggedSignals)
	}
	if repo.addedDelta != 0 {
		t.Fatalf("expected no cumulative update, got delta %d", repo.addedDelta)
	}
}

func TestEvaluate_NewAccountAloneIsNotSuspicious(t *testing.T) {
	job, tester := riskFixtures()
	tester.CreatedAt = time.Now().UTC().Add(-10 * time.Minute)
	repo := &riskRepoStub{}

	assessment, err := NewRiskScorer(repo).Evaluate(context.Background(), job, tester, "203.0.113.9", "agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assessment.Score != riskPointsNewAccount {
		t.Fatalf("expected score %d, got %d", riskPointsNewAccount, assessment.Score)
	}
	if assessment.Suspicious {
		t.Fatal("20 points is below the suspicion threshold")
	}
	if len(repo.loggedSignals) != 1 || repo.loggedSignals[0] != domain.FraudSignalNewAccount {
		t.Fatalf("expected one new_account log, got %v", repo.loggedSignals)
	}
}

func TestEvaluate_DuplicateIPIsSuspiciousButNotBlocked(t *testing.T) {
	job, tester := riskFixtures()
	repo := &riskRepoStub{sameIP: true}

	assessment, err := NewRiskScorer(repo).Evaluate(context.Background(), job, tester, "203.0.113.9", "agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assessment.Score != riskPointsDuplicateIP {
		t.Fatalf("expected score %d, got %d", riskPointsDuplicateIP, assessment.Score)
	}
	if !assessment.Suspicious {
		t.Fatal("40 points should be suspicious")
	}
	if assessment.Blocked {
		t.Fatal("40 points should not block")
	}
}

func TestEvaluate_BlocksAtThresholdAndStillLogsEverySignal(t *testing.T) {
	job, tester := riskFixtures()
	tester.CreatedAt = time.Now().UTC().Add(-5 * time.Minute)
	repo := &riskRepoStub{
		recentApplications: 6,
		sameIP:             true,
		sameDevice:         true,
		developerJobs:      3,
	}

	assessment, err := NewRiskScorer(repo).Evaluate(context.Background(), job, tester, "203.0.113.9", "agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assessment.Score != domain.FraudScoreCap {
		t.Fatalf("expected score capped at %d, got %d", domain.FraudScoreCap, assessment.Score)
	}
	if !assessment.Blocked {
		t.Fatal("expected the application to be blocked")
	}
	if len(repo.loggedSignals) != 5 {
		t.Fatalf("expected all five signals logged, got %v", repo.loggedSignals)
	}
	if repo.addedDelta != domain.FraudScoreCap {
		t.Fatalf("expected cumulative delta %d, got %d", domain.FraudScoreCap, repo.addedDelta)
	}
}

func TestEvaluate_BlockThresholdExactly(t *testing.T) {
	// new account + rapid applications + same device: 20 + 30 + 35 = 85.
	// duplicate IP + collusion alone: 40 + 25 = 65, just under the line.
	job, tester := riskFixtures()
	repo := &riskRepoStub{sameIP: true, developerJobs: 3}

	assessment, err := NewRiskScorer(repo).Evaluate(context.Background(), job, tester, "203.0.113.9", "agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assessment.Score != 65 {
		t.Fatalf("expected score 65, got %d", assessment.Score)
	}
	if assessment.Blocked {
		t.Fatal("65 points should not block")
	}

	repo = &riskRepoStub{sameIP: true, developerJobs: 3, recentApplications: rapidApplyLimit}
	assessment, err = NewRiskScorer(repo).Evaluate(context.Background(), job, tester, "203.0.113.9", "agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assessment.Score != 65 {
		t.Fatalf("exactly %d recent applications should not fire the rapid signal, got score %d", rapidApplyLimit, assessment.Score)
	}
}

func TestDeviceFingerprint(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{
			name:      "extracts parenthesized platform segment",
			userAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36",
			want:      "linux; android 14; pixel 8",
		},
		{
			name:      "falls back to full string",
			userAgent: "BetatideApp/2.1.0",
			want:      "betatideapp/2.1.0",
		},
		{
			name:      "collapses whitespace",
			userAgent: "  Custom   Agent ",
			want:      "custom agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeviceFingerprint(tt.userAgent); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
