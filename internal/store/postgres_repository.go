/**
 * @description
 * PostgreSQL implementation of the `Repository` interface: user, job, and
 * application queries. Payment and fraud-log queries live in their own files
 * alongside this one.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/betatide/settlement-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrJobNotFound         = errors.New("job not found")
	ErrApplicationNotFound = errors.New("application not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrFraudLogNotFound    = errors.New("fraud log not found")
	ErrAlreadyApplied      = errors.New("tester already applied to this job")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserIDByClerkUserID resolves the internal UUID from a Clerk user id.
func (r *PostgresRepository) FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, "SELECT id FROM users WHERE clerk_user_id = $1", clerkUserID).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrUserNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `
		SELECT id, clerk_user_id, email, role, fraud_score, flagged, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.ClerkUserID, &user.Email, &user.Role,
		&user.FraudScore, &user.Flagged, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// AddFraudScore atomically raises the cumulative fraud score, caps it at 100,
// and sets the flagged bit once the total crosses the flag threshold. The
// returned value is the new cumulative score.
func (r *PostgresRepository) AddFraudScore(ctx context.Context, userID uuid.UUID, delta int) (int, error) {
	query := `
		UPDATE users
		SET
			fraud_score = LEAST(fraud_score + $2, $3),
			flagged = flagged OR LEAST(fraud_score + $2, $3) >= $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING fraud_score
	`
	var score int
	err := r.db.QueryRow(ctx, query, userID, delta, domain.FraudScoreCap, domain.FraudFlagThreshold).Scan(&score)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return score, nil
}

// ClearUserFlags resets the cumulative score and flag (admin action).
func (r *PostgresRepository) ClearUserFlags(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		"UPDATE users SET fraud_score = 0, flagged = false, updated_at = NOW() WHERE id = $1", userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// FindJobByID retrieves a testing job by its ID.
func (r *PostgresRepository) FindJobByID(ctx context.Context, jobID uuid.UUID) (*domain.TestingJob, error) {
	var job domain.TestingJob
	query := `
		SELECT id, developer_id, title, payment_per_tester, testers_needed, total_budget,
		       platform_fee, test_duration_days, status, escrow_intent_id, created_at, updated_at
		FROM testing_jobs
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &job.DeveloperID, &job.Title, &job.PaymentPerTester, &job.TestersNeeded,
		&job.TotalBudget, &job.PlatformFee, &job.TestDurationDays, &job.Status,
		&job.EscrowIntentID, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// UpdateJobStatusIf performs a compare-and-swap on the job status.
func (r *PostgresRepository) UpdateJobStatusIf(ctx context.Context, jobID uuid.UUID, expected, next string) (bool, error) {
	result, err := r.db.Exec(ctx,
		"UPDATE testing_jobs SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2",
		jobID, expected, next)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// CreateApplication inserts a new application row. The (job_id, tester_id)
// unique constraint is permanent for the job, so a re-application after
// rejection surfaces as ErrAlreadyApplied.
func (r *PostgresRepository) CreateApplication(ctx context.Context, app *domain.Application) error {
	query := `
		INSERT INTO applications (
			id, job_id, tester_id, status, ip_address, device_fingerprint
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		app.ID, app.JobID, app.TesterID, app.Status, app.IPAddress, app.DeviceFingerprint,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrAlreadyApplied
		}
		return err
	}
	return nil
}

// ExistsApplicationForTester reports whether the (job, tester) pair already
// has an application, in any state. The pair is permanent for the job, so
// this also refuses re-application after rejection.
func (r *PostgresRepository) ExistsApplicationForTester(ctx context.Context, jobID, testerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM applications WHERE job_id = $1 AND tester_id = $2)",
		jobID, testerID).Scan(&exists)
	return exists, err
}

const applicationColumns = `
	id, job_id, tester_id, status, ip_address, device_fingerprint,
	verification_image_url, engagement_score, rating,
	testing_started_at, testing_end_date, completed_at, created_at, updated_at
`

func scanApplication(row pgx.Row) (*domain.Application, error) {
	var app domain.Application
	err := row.Scan(
		&app.ID, &app.JobID, &app.TesterID, &app.Status, &app.IPAddress, &app.DeviceFingerprint,
		&app.VerificationImageURL, &app.EngagementScore, &app.Rating,
		&app.TestingStartedAt, &app.TestingEndDate, &app.CompletedAt, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// FindApplicationByID retrieves one application.
func (r *PostgresRepository) FindApplicationByID(ctx context.Context, applicationID uuid.UUID) (*domain.Application, error) {
	app, err := scanApplication(r.db.QueryRow(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE id = $1", applicationID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return app, nil
}

// FindApplicationsByJobID retrieves all applications for a job.
func (r *PostgresRepository) FindApplicationsByJobID(ctx context.Context, jobID uuid.UUID) ([]domain.Application, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE job_id = $1 ORDER BY created_at ASC", jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

// CountAdmittedApplications counts applications holding one of the job's
// tester spots (everything except rejected rows).
func (r *PostgresRepository) CountAdmittedApplications(ctx context.Context, jobID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM applications WHERE job_id = $1 AND status <> $2",
		jobID, domain.ApplicationStatusRejected).Scan(&count)
	return count, err
}

// UpdateApplicationStatusIf performs a compare-and-swap on application
// status. A false return means the row was not in the expected source state;
// callers treat that as a precondition conflict, not an error.
func (r *PostgresRepository) UpdateApplicationStatusIf(ctx context.Context, applicationID uuid.UUID, expected, next string) (bool, error) {
	result, err := r.db.Exec(ctx,
		"UPDATE applications SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2",
		applicationID, expected, next)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// AttachVerificationImage stores the tester's verification image reference.
func (r *PostgresRepository) AttachVerificationImage(ctx context.Context, applicationID uuid.UUID, imageURL string) error {
	result, err := r.db.Exec(ctx,
		"UPDATE applications SET verification_image_url = $2, updated_at = NOW() WHERE id = $1",
		applicationID, imageURL)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

// StartTestingWindow records the testing start and computed end date.
func (r *PostgresRepository) StartTestingWindow(ctx context.Context, applicationID uuid.UUID, startedAt, endDate time.Time) error {
	result, err := r.db.Exec(ctx,
		"UPDATE applications SET testing_started_at = $2, testing_end_date = $3, updated_at = NOW() WHERE id = $1",
		applicationID, startedAt, endDate)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

// MarkApplicationCompleted transitions testing -> completed. The status
// predicate makes the settlement sweep idempotent: a second run over the
// same row affects nothing.
func (r *PostgresRepository) MarkApplicationCompleted(ctx context.Context, applicationID uuid.UUID, completedAt time.Time) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE applications
		SET status = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, applicationID, domain.ApplicationStatusCompleted, completedAt, domain.ApplicationStatusTesting)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// FindDueTestingApplications selects every application still in testing
// whose window has elapsed.
func (r *PostgresRepository) FindDueTestingApplications(ctx context.Context, now time.Time) ([]domain.Application, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+applicationColumns+` FROM applications
		WHERE status = $1 AND testing_end_date IS NOT NULL AND testing_end_date <= $2
		ORDER BY testing_end_date ASC`,
		domain.ApplicationStatusTesting, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

// CountRecentApplicationsByTester counts this tester's applications across
// all jobs since the given instant (velocity signal).
func (r *PostgresRepository) CountRecentApplicationsByTester(ctx context.Context, testerID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM applications WHERE tester_id = $1 AND created_at >= $2",
		testerID, since).Scan(&count)
	return count, err
}

// ExistsApplicationWithIP reports whether another applicant to the same job
// shares this request's IP address.
func (r *PostgresRepository) ExistsApplicationWithIP(ctx context.Context, jobID uuid.UUID, ipAddress string, excludeTesterID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM applications
			WHERE job_id = $1 AND ip_address = $2 AND tester_id <> $3
		)
	`, jobID, ipAddress, excludeTesterID).Scan(&exists)
	return exists, err
}

// ExistsApplicationWithDevice reports whether another applicant to the same
// job submitted a matching device fingerprint.
func (r *PostgresRepository) ExistsApplicationWithDevice(ctx context.Context, jobID uuid.UUID, fingerprint string, excludeTesterID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM applications
			WHERE job_id = $1 AND device_fingerprint = $2 AND tester_id <> $3
		)
	`, jobID, fingerprint, excludeTesterID).Scan(&exists)
	return exists, err
}

// CountApplicationsToDeveloper counts distinct jobs of one developer this
// tester has applied to (collusion signal).
func (r *PostgresRepository) CountApplicationsToDeveloper(ctx context.Context, testerID, developerID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT a.job_id)
		FROM applications a
		JOIN testing_jobs j ON j.id = a.job_id
		WHERE a.tester_id = $1 AND j.developer_id = $2
	`, testerID, developerID).Scan(&count)
	return count, err
}

// RecomputeTesterProfile rebuilds the reputation aggregate from scratch over
// all of the tester's completed applications and upserts the materialized
// row. Earnings come from completed payouts so a failed leg is never counted
// as earned.
func (r *PostgresRepository) RecomputeTesterProfile(ctx context.Context, testerID uuid.UUID) (*domain.TesterProfile, error) {
	query := `
		WITH agg AS (
			SELECT
				COUNT(*) FILTER (WHERE a.status = 'completed') AS total_completed,
				COALESCE(AVG(a.engagement_score) FILTER (WHERE a.status = 'completed'), 0) AS avg_engagement,
				COALESCE(AVG(a.rating) FILTER (WHERE a.status = 'completed'), 0) AS avg_rating,
				COALESCE((
					SELECT SUM(p.amount)
					FROM payments p
					WHERE p.tester_id = $1 AND p.status = 'completed'
				), 0) AS total_earnings
			FROM applications a
			WHERE a.tester_id = $1
		)
		INSERT INTO tester_profiles (user_id, total_tests_completed, total_earnings, avg_engagement_score, avg_rating, updated_at)
		SELECT $1, agg.total_completed, agg.total_earnings, agg.avg_engagement, agg.avg_rating, NOW()
		FROM agg
		ON CONFLICT (user_id)
		DO UPDATE SET
			total_tests_completed = EXCLUDED.total_tests_completed,
			total_earnings = EXCLUDED.total_earnings,
			avg_engagement_score = EXCLUDED.avg_engagement_score,
			avg_rating = EXCLUDED.avg_rating,
			updated_at = NOW()
		RETURNING user_id, total_tests_completed, total_earnings, avg_engagement_score, avg_rating, updated_at
	`
	var profile domain.TesterProfile
	err := r.db.QueryRow(ctx, query, testerID).Scan(
		&profile.UserID, &profile.TotalTestsCompleted, &profile.TotalEarnings,
		&profile.AvgEngagementScore, &profile.AvgRating, &profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
