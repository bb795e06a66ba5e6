package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"jobpilot/pkg/models"
)

func (s *PostgresStore) CountApplicationsSince(ctx context.Context, userID, platform string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM applications
WHERE user_id = $1 AND ($2 = '' OR lower(platform) = lower($2)) AND applied_at >= $3`,
		userID, platform, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) LastApplicationAt(ctx context.Context, userID, platform string) (time.Time, bool, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx, `
SELECT MAX(applied_at) FROM applications
WHERE user_id = $1 AND ($2 = '' OR lower(platform) = lower($2))`,
		userID, platform).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last application: %w", err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return *last, true, nil
}

func (s *PostgresStore) ListApplicationsSince(ctx context.Context, userID string, since time.Time) ([]models.Application, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, COALESCE(job_queue_id, ''), company_name, job_title, job_type, location, salary_range,
	status, platform, job_url, applied_at, last_status_update, COALESCE(resume_used_id, '')
FROM applications
WHERE user_id = $1 AND applied_at >= $2
ORDER BY applied_at DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []models.Application
	for rows.Next() {
		var a models.Application
		if err := rows.Scan(&a.ID, &a.UserID, &a.QueueItemID, &a.CompanyName, &a.Title, &a.JobType, &a.Location,
			&a.SalaryRange, &a.Status, &a.Platform, &a.URL, &a.AppliedAt, &a.LastStatusUpdate, &a.ResumeID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompleteApplication(ctx context.Context, c Completion) (models.QueueItem, error) {
	var item models.QueueItem

	err := s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		at := c.At
		empty := ""

		var err error
		item, err = transitionTx(ctx, tx, c.ItemID, models.QueueStatusProcessing, QueueUpdate{
			Status:       models.QueueStatusApplied,
			CompletedAt:  &at,
			ErrorMessage: &empty,
		})
		if err != nil {
			return err
		}

		app := c.Application
		if app.ID == "" {
			app.ID = uuid.NewString()
		}
		_, err = tx.Exec(ctx, `
INSERT INTO applications (id, user_id, job_queue_id, company_name, job_title, job_type, location, salary_range,
	status, platform, job_url, applied_at, last_status_update, resume_used_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12, $13)`,
			app.ID, app.UserID, nullIfEmpty(app.QueueItemID), app.CompanyName, app.Title, app.JobType, app.Location,
			app.SalaryRange, app.Status, app.Platform, app.URL, app.AppliedAt, nullIfEmpty(app.ResumeID))
		if err != nil {
			return fmt.Errorf("insert application: %w", err)
		}

		// users without a subscription row are not metered
		if _, err := tx.Exec(ctx, `UPDATE subscriptions SET applications_used = applications_used + 1 WHERE user_id = $1`, app.UserID); err != nil {
			return fmt.Errorf("increment usage: %w", err)
		}

		if app.ResumeID != "" {
			if _, err := tx.Exec(ctx, `UPDATE resumes SET last_used_at = $2 WHERE id = $1`, app.ResumeID, at); err != nil {
				return fmt.Errorf("touch resume: %w", err)
			}
		}

		if c.Log != nil {
			return appendLog(ctx, tx, c.Log)
		}
		return nil
	})
	return item, err
}
