/**
 * @description
 * PostgreSQL queries for the append-only fraud audit log. Rows are inserted
 * by the risk scorer and only ever mutated to mark them resolved; the
 * cumulative score on the user can be recomputed from these rows at any
 * time, which is what SumFraudScoreFromLogs exists for.
 */

package store

import (
	"context"
	"fmt"

	"github.com/betatide/settlement-service/internal/domain"
	"github.com/google/uuid"
)

// CreateFraudLog appends one audit entry.
func (r *PostgresRepository) CreateFraudLog(ctx context.Context, log *domain.FraudLog) error {
	query := `
		INSERT INTO fraud_logs (
			id, user_id, application_id, signal, severity, score, detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		log.ID, log.UserID, log.ApplicationID, log.Signal, log.Severity, log.Score, log.Detail,
	).Scan(&log.CreatedAt)
}

// ListFraudLogs returns audit entries for the admin review surface,
// filterable by resolution state and severity.
func (r *PostgresRepository) ListFraudLogs(ctx context.Context, filter domain.FraudLogFilter) ([]domain.FraudLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, user_id, application_id, signal, severity, score, detail,
		       resolved, resolved_at, resolved_by, created_at
		FROM fraud_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1
	if filter.Resolved != nil {
		query += fmt.Sprintf(" AND resolved = $%d", argPos)
		args = append(args, *filter.Resolved)
		argPos++
	}
	if filter.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", argPos)
		args = append(args, filter.Severity)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.FraudLog
	for rows.Next() {
		var l domain.FraudLog
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.ApplicationID, &l.Signal, &l.Severity, &l.Score, &l.Detail,
			&l.Resolved, &l.ResolvedAt, &l.ResolvedBy, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ResolveFraudLog marks one entry resolved. Already-resolved entries are
// left untouched so the original resolution metadata survives retries.
func (r *PostgresRepository) ResolveFraudLog(ctx context.Context, logID, resolvedBy uuid.UUID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE fraud_logs
		SET resolved = true, resolved_at = NOW(), resolved_by = $2
		WHERE id = $1 AND resolved = false
	`, logID, resolvedBy)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFraudLogNotFound
	}
	return nil
}

// SumFraudScoreFromLogs recomputes the cumulative score from the log,
// capped the same way the materialized aggregate is.
func (r *PostgresRepository) SumFraudScoreFromLogs(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int
	err := r.db.QueryRow(ctx,
		"SELECT LEAST(COALESCE(SUM(score), 0), $2) FROM fraud_logs WHERE user_id = $1",
		userID, domain.FraudScoreCap).Scan(&total)
	return total, err
}
