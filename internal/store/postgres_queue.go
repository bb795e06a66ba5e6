package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"jobpilot/pkg/models"
)

const queueColumns = `id, user_id, COALESCE(job_search_config_id, ''), config_type, platform, COALESCE(job_listing_id, ''),
	company_name, job_title, job_url, status, priority, match_score, scheduled_for, attempted_at, completed_at,
	error_message, retry_count, max_retries, created_at`

func scanQueueItem(row rowScanner) (models.QueueItem, error) {
	var (
		it     models.QueueItem
		status string
	)
	err := row.Scan(&it.ID, &it.UserID, &it.SearchProfileID, &it.ConfigType, &it.Platform, &it.JobListingID,
		&it.CompanyName, &it.Title, &it.URL, &status, &it.Priority, &it.MatchScore, &it.ScheduledFor,
		&it.AttemptedAt, &it.CompletedAt, &it.ErrorMessage, &it.RetryCount, &it.MaxRetries, &it.CreatedAt)
	it.Status = models.QueueStatus(status)
	return it, err
}

func collectQueueItems(rows pgx.Rows) ([]models.QueueItem, error) {
	defer rows.Close()

	var out []models.QueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CreateQueueItemIfAbsent serializes concurrent enqueues of the same
// (user, url) with a transaction-scoped advisory lock before checking.
func (s *PostgresStore) CreateQueueItemIfAbsent(ctx context.Context, item *models.QueueItem) error {
	return s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, item.UserID+"|"+item.URL); err != nil {
			return fmt.Errorf("acquire enqueue lock: %w", err)
		}

		var applied, queued bool
		err := tx.QueryRow(ctx, `
SELECT
	EXISTS (SELECT 1 FROM job_queue WHERE user_id = $1 AND job_url = $2 AND status = 'applied')
	OR EXISTS (SELECT 1 FROM applications WHERE user_id = $1 AND job_url = $2),
	EXISTS (SELECT 1 FROM job_queue WHERE user_id = $1 AND job_url = $2 AND status IN ('pending', 'processing'))`,
			item.UserID, item.URL).Scan(&applied, &queued)
		if err != nil {
			return fmt.Errorf("check existing queue item: %w", err)
		}
		if applied {
			return ErrAlreadyApplied
		}
		if queued {
			return ErrAlreadyQueued
		}

		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = time.Now()
		}

		_, err = tx.Exec(ctx, `
INSERT INTO job_queue (id, user_id, job_search_config_id, config_type, platform, job_listing_id, company_name,
	job_title, job_url, status, priority, match_score, scheduled_for, retry_count, max_retries, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			item.ID, item.UserID, nullIfEmpty(item.SearchProfileID), item.ConfigType, item.Platform,
			nullIfEmpty(item.JobListingID), item.CompanyName, item.Title, item.URL, string(item.Status),
			item.Priority, item.MatchScore, item.ScheduledFor, item.RetryCount, item.MaxRetries, item.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert queue item: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetQueueItem(ctx context.Context, id string) (models.QueueItem, error) {
	it, err := scanQueueItem(s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM job_queue WHERE id = $1`, id))
	if err != nil {
		return models.QueueItem{}, notFound(err)
	}
	return it, nil
}

func (s *PostgresStore) DequeueDue(ctx context.Context, now time.Time, limit int) ([]models.QueueItem, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+queueColumns+`
FROM job_queue
WHERE status = 'pending' AND scheduled_for <= $1
ORDER BY priority DESC, created_at ASC
LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue due items: %w", err)
	}
	return collectQueueItems(rows)
}

func (s *PostgresStore) Transition(ctx context.Context, t Transition) (models.QueueItem, error) {
	var item models.QueueItem

	err := s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		item, err = transitionTx(ctx, tx, t.ItemID, t.From, t.Update)
		if err != nil {
			return err
		}
		if t.Log != nil {
			return appendLog(ctx, tx, t.Log)
		}
		return nil
	})
	return item, err
}

func transitionTx(ctx context.Context, q querier, id string, from models.QueueStatus, u QueueUpdate) (models.QueueItem, error) {
	item, err := scanQueueItem(q.QueryRow(ctx, `
UPDATE job_queue SET
	status = $3,
	scheduled_for = COALESCE($4, scheduled_for),
	attempted_at = COALESCE($5, attempted_at),
	completed_at = COALESCE($6, completed_at),
	retry_count = COALESCE($7, retry_count),
	priority = COALESCE($8, priority),
	error_message = COALESCE($9, error_message)
WHERE id = $1 AND status = $2
RETURNING `+queueColumns,
		id, string(from), string(u.Status), u.ScheduledFor, u.AttemptedAt, u.CompletedAt, u.RetryCount, u.Priority, u.ErrorMessage))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.QueueItem{}, fmt.Errorf("transition queue item: %w", err)
	}

	current, err := scanQueueItem(q.QueryRow(ctx, `SELECT `+queueColumns+` FROM job_queue WHERE id = $1`, id))
	if err != nil {
		return models.QueueItem{}, notFound(err)
	}
	return current, ErrStatusConflict
}

func (s *PostgresStore) DeleteQueueItem(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM job_queue WHERE id = $1 AND status <> 'processing'`, id)
	if err != nil {
		return fmt.Errorf("delete queue item: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetQueueItem(ctx, id); err != nil {
		return err
	}
	return ErrStatusConflict
}

func (s *PostgresStore) ListQueue(ctx context.Context, f QueueFilter) ([]models.QueueItem, int, error) {
	var w whereBuilder
	if f.UserID != "" {
		w.add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_queue`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queue: %w", err)
	}

	q := `SELECT ` + queueColumns + ` FROM job_queue` + w.String() + ` ORDER BY priority DESC, created_at ASC`
	q += w.page(f.Offset, f.Limit)

	rows, err := s.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list queue: %w", err)
	}
	items, err := collectQueueItems(rows)
	return items, total, err
}

func (s *PostgresStore) QueueStats(ctx context.Context, userID string) (models.QueueStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM job_queue WHERE user_id = $1 GROUP BY status`, userID)
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var st models.QueueStats
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return models.QueueStats{}, err
		}
		switch models.QueueStatus(status) {
		case models.QueueStatusPending:
			st.Pending = n
		case models.QueueStatusProcessing:
			st.Processing = n
		case models.QueueStatusApplied:
			st.Applied = n
		case models.QueueStatusFailed:
			st.Failed = n
		case models.QueueStatusSkipped:
			st.Skipped = n
		}
	}
	return st, rows.Err()
}

func (s *PostgresStore) NextScheduled(ctx context.Context, userID string) (models.QueueItem, error) {
	it, err := scanQueueItem(s.pool.QueryRow(ctx, `
SELECT `+queueColumns+`
FROM job_queue
WHERE user_id = $1 AND status = 'pending'
ORDER BY scheduled_for ASC
LIMIT 1`, userID))
	if err != nil {
		return models.QueueItem{}, notFound(err)
	}
	return it, nil
}

func (s *PostgresStore) DeleteQueueItemsCreatedBefore(ctx context.Context, statuses []models.QueueStatus, cutoff time.Time) (int64, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM job_queue WHERE status = ANY($1) AND created_at < $2`, names, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old queue items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]models.QueueItem, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+queueColumns+`
FROM job_queue
WHERE status = 'processing' AND COALESCE(attempted_at, created_at) < $1
ORDER BY COALESCE(attempted_at, created_at) ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale processing items: %w", err)
	}
	return collectQueueItems(rows)
}
