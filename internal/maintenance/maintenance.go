// Package maintenance holds the housekeeping sweeps: retention cleanup and
// the daily per-user summary.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobpilot/internal/applicator"
	"jobpilot/internal/logging/types"
	"jobpilot/internal/metrics"
	"jobpilot/internal/notify"
	"jobpilot/internal/store"
	"jobpilot/pkg/models"
)

// summaryApplications caps how many applications a daily summary lists.
const summaryApplications = 5

// Store is the persistence the sweeps need
type Store interface {
	DeleteListingsScrapedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeactivateListingsScrapedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteQueueItemsCreatedBefore(ctx context.Context, statuses []models.QueueStatus, cutoff time.Time) (int64, error)
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]models.QueueItem, error)
	Transition(ctx context.Context, t store.Transition) (models.QueueItem, error)

	ListUserIDs(ctx context.Context) ([]string, error)
	ListApplicationsSince(ctx context.Context, userID string, since time.Time) ([]models.Application, error)
	QueueStats(ctx context.Context, userID string) (models.QueueStats, error)
}

// Retention is how long each kind of record is kept
type Retention struct {
	DeleteListings     time.Duration
	DeactivateListings time.Duration
	// QueueItems applies to failed and skipped items only
	QueueItems time.Duration
	Logs       time.Duration

	// StaleProcessing is how long an item may stay processing before it is
	// reclaimed through the retry path. Zero disables reclaiming.
	StaleProcessing time.Duration
	RetryBackoff    time.Duration
	MaxRetries      int
}

func DefaultRetention() Retention {
	return Retention{
		DeleteListings:     30 * 24 * time.Hour,
		DeactivateListings: 14 * 24 * time.Hour,
		QueueItems:         7 * 24 * time.Hour,
		Logs:               90 * 24 * time.Hour,
		StaleProcessing:    35 * time.Minute,
		RetryBackoff:       time.Hour,
		MaxRetries:         models.DefaultMaxRetries,
	}
}

// CleanupReport counts the rows each step touched
type CleanupReport struct {
	ListingsDeleted     int64 `json:"listings_deleted"`
	ListingsDeactivated int64 `json:"listings_deactivated"`
	QueueItemsDeleted   int64 `json:"queue_items_deleted"`
	LogsDeleted         int64 `json:"logs_deleted"`
	QueueItemsReclaimed int64 `json:"queue_items_reclaimed"`
}

type Service struct {
	store     Store
	sink      notify.Sink
	retention Retention
	now       func() time.Time
	logger    types.Logger
}

func New(s Store, sink notify.Sink, retention Retention, logger types.Logger) *Service {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	if sink == nil {
		sink = notify.NewLogSink(logger)
	}
	return &Service{
		store:     s,
		sink:      sink,
		retention: retention,
		now:       time.Now,
		logger:    logger.WithField("component", "maintenance"),
	}
}

// Cleanup applies the retention policy. Every step runs even when an
// earlier one fails; the failures are joined into the returned error.
func (s *Service) Cleanup(ctx context.Context) (CleanupReport, error) {
	now := s.now()
	var (
		report CleanupReport
		errs   []error
	)

	step := func(table, action string, dst *int64, fn func() (int64, error)) {
		n, err := fn()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", action, table, err))
			return
		}
		*dst = n
		metrics.AddCleanup(table, action, n)
	}

	step("job_listings", "delete", &report.ListingsDeleted, func() (int64, error) {
		return s.store.DeleteListingsScrapedBefore(ctx, now.Add(-s.retention.DeleteListings))
	})
	step("job_listings", "deactivate", &report.ListingsDeactivated, func() (int64, error) {
		return s.store.DeactivateListingsScrapedBefore(ctx, now.Add(-s.retention.DeactivateListings))
	})
	step("job_queue", "delete", &report.QueueItemsDeleted, func() (int64, error) {
		return s.store.DeleteQueueItemsCreatedBefore(ctx,
			[]models.QueueStatus{models.QueueStatusFailed, models.QueueStatusSkipped},
			now.Add(-s.retention.QueueItems))
	})
	step("automation_logs", "delete", &report.LogsDeleted, func() (int64, error) {
		return s.store.DeleteLogsBefore(ctx, now.Add(-s.retention.Logs))
	})
	if s.retention.StaleProcessing > 0 {
		step("job_queue", "reclaim", &report.QueueItemsReclaimed, func() (int64, error) {
			return s.reclaimStale(ctx, now)
		})
	}

	s.logger.Info(fmt.Sprintf("Cleaned up %d listings, %d queue items, %d logs",
		report.ListingsDeleted, report.QueueItemsDeleted, report.LogsDeleted),
		map[string]interface{}{
			"listings_deactivated":  report.ListingsDeactivated,
			"queue_items_reclaimed": report.QueueItemsReclaimed,
		})

	return report, errors.Join(errs...)
}

// reclaimStale returns items abandoned in processing, typically by a worker
// that died mid-attempt, to pending or fails them once retries run out.
// Items finished by a live worker in the meantime lose the compare-and-set
// and are left alone.
func (s *Service) reclaimStale(ctx context.Context, now time.Time) (int64, error) {
	items, err := s.store.ListStaleProcessing(ctx, now.Add(-s.retention.StaleProcessing))
	if err != nil {
		return 0, err
	}

	var (
		n    int64
		errs []error
	)
	for _, item := range items {
		msg := fmt.Sprintf("attempt abandoned after %s in processing", s.retention.StaleProcessing)
		upd := applicator.NextAttempt(item, now, s.retention.RetryBackoff, s.retention.MaxRetries, msg)

		_, err := s.store.Transition(ctx, store.Transition{
			ItemID: item.ID,
			From:   models.QueueStatusProcessing,
			Update: upd,
			Log: &models.AutomationLog{
				UserID:      item.UserID,
				QueueItemID: item.ID,
				ActionType:  models.ActionQueueUpdate,
				Status:      models.LogStatusFailed,
				Message:     "Reclaimed stale queue item: " + msg,
				Details: map[string]interface{}{
					"platform":    item.Platform,
					"job_url":     item.URL,
					"retry_count": *upd.RetryCount,
					"status":      string(upd.Status),
				},
			},
		})
		if errors.Is(err, store.ErrStatusConflict) || errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", item.ID, err))
			continue
		}

		s.logger.Warn("Reclaimed stale queue item", map[string]interface{}{
			"queue_item_id": item.ID,
			"user_id":       item.UserID,
			"status":        string(upd.Status),
		})
		n++
	}
	return n, errors.Join(errs...)
}

// Summary builds the daily summary for one user: applications submitted in
// the last 24 hours and the number of items still pending.
func (s *Service) Summary(ctx context.Context, userID string) (models.ApplicationSummary, error) {
	now := s.now()

	apps, err := s.store.ListApplicationsSince(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		return models.ApplicationSummary{}, fmt.Errorf("list applications: %w", err)
	}
	stats, err := s.store.QueueStats(ctx, userID)
	if err != nil {
		return models.ApplicationSummary{}, fmt.Errorf("queue stats: %w", err)
	}

	summary := models.ApplicationSummary{
		Kind:        notify.KindDailySummary,
		Submitted:   len(apps),
		Pending:     stats.Pending,
		GeneratedAt: now,
	}
	if len(apps) > summaryApplications {
		apps = apps[:summaryApplications]
	}
	summary.Applications = apps
	return summary, nil
}

// SendDailySummaries notifies every user who submitted or still has pending
// applications. It returns how many summaries were delivered.
func (s *Service) SendDailySummaries(ctx context.Context) (int, error) {
	users, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	sent := 0
	var errs []error
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		summary, err := s.Summary(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		if summary.Submitted == 0 && summary.Pending == 0 {
			continue
		}

		if err := s.sink.Notify(ctx, userID, summary); err != nil {
			s.logger.Warn("Failed to send daily summary", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
			errs = append(errs, fmt.Errorf("notify %s: %w", userID, err))
			continue
		}
		sent++
	}

	s.logger.Info("Daily summaries sent", map[string]interface{}{
		"users": len(users),
		"sent":  sent,
	})
	return sent, errors.Join(errs...)
}
