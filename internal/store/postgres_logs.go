package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jobpilot/pkg/models"
)

func appendLog(ctx context.Context, q querier, entry *models.AutomationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	details := entry.Details
	if details == nil {
		details = map[string]interface{}{}
	}

	_, err := q.Exec(ctx, `
INSERT INTO automation_logs (id, user_id, job_queue_id, action_type, status, message, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.UserID, nullIfEmpty(entry.QueueItemID), entry.ActionType, entry.Status, entry.Message,
		details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append automation log: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, entry *models.AutomationLog) error {
	return appendLog(ctx, s.pool, entry)
}

func (s *PostgresStore) ListLogs(ctx context.Context, f LogFilter) ([]models.AutomationLog, int, error) {
	var w whereBuilder
	if f.UserID != "" {
		w.add("user_id = $%d", f.UserID)
	}
	if f.ActionType != "" {
		w.add("action_type = $%d", f.ActionType)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM automation_logs`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	q := `SELECT id, user_id, COALESCE(job_queue_id, ''), action_type, status, message, details, created_at
FROM automation_logs` + w.String() + ` ORDER BY created_at DESC`
	q += w.page(f.Offset, f.Limit)

	rows, err := s.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []models.AutomationLog
	for rows.Next() {
		var l models.AutomationLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.QueueItemID, &l.ActionType, &l.Status, &l.Message, &l.Details, &l.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM automation_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
