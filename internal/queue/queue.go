// Package queue manages the lifecycle of application queue items.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobpilot/internal/logging/types"
	"jobpilot/internal/metrics"
	"jobpilot/internal/store"
	"jobpilot/pkg/models"
	"jobpilot/pkg/utils"
)

const (
	DefaultBatchSize     = 50
	ManualPriority       = 5
	manualEnqueueMessage = "Manually added job to queue"
)

var (
	ErrAlreadyQueued  = store.ErrAlreadyQueued
	ErrAlreadyApplied = store.ErrAlreadyApplied
	ErrNotFound       = store.ErrNotFound

	ErrNotPending      = errors.New("queue item is not pending")
	ErrProcessing      = errors.New("queue item is being processed")
	ErrInvalidPriority = fmt.Errorf("priority must be between %d and %d", models.MinPriority, models.MaxPriority)
)

// Store is the persistence the manager needs
type Store interface {
	store.QueueStore
	store.ListingStore
	store.LogStore
}

// Manager owns queue item creation and the user-driven transitions
type Manager struct {
	store      Store
	maxRetries int
	now        func() time.Time
	logger     types.Logger
}

func NewManager(s Store, maxRetries int, logger types.Logger) *Manager {
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	if logger == nil {
		logger = types.NewNopLogger()
	}
	return &Manager{store: s, maxRetries: maxRetries, now: time.Now, logger: logger}
}

// PriorityFor maps a match score to a queue priority.
func PriorityFor(score float64) int {
	switch {
	case score >= 90:
		return 10
	case score >= 80:
		return 8
	case score >= 70:
		return 6
	default:
		return 5
	}
}

// EnqueueOption customizes a new queue item
type EnqueueOption func(*models.QueueItem)

// WithProfile records which search profile variant produced the item.
func WithProfile(p models.SearchProfile) EnqueueOption {
	return func(it *models.QueueItem) {
		it.SearchProfileID = p.ID
		it.ConfigType = p.ConfigType
	}
}

func withPriority(p int) EnqueueOption {
	return func(it *models.QueueItem) { it.Priority = p }
}

// Enqueue creates a pending item for listing unless the user already has a
// live item or an application for its URL, in which case ErrAlreadyQueued or
// ErrAlreadyApplied is returned.
func (m *Manager) Enqueue(ctx context.Context, userID string, listing models.JobListing, score float64, opts ...EnqueueOption) (models.QueueItem, error) {
	now := m.now()
	item := models.QueueItem{
		UserID:       userID,
		Platform:     listing.Platform,
		JobListingID: listing.ID,
		CompanyName:  listing.CompanyName,
		Title:        listing.Title,
		URL:          utils.CanonicalJobURL(listing.URL),
		Status:       models.QueueStatusPending,
		Priority:     PriorityFor(score),
		MatchScore:   score,
		ScheduledFor: now,
		MaxRetries:   m.maxRetries,
		CreatedAt:    now,
	}
	for _, opt := range opts {
		opt(&item)
	}

	if err := m.store.CreateQueueItemIfAbsent(ctx, &item); err != nil {
		return models.QueueItem{}, err
	}

	m.logger.Debug("Queued job", map[string]interface{}{
		"user_id":  userID,
		"item_id":  item.ID,
		"platform": item.Platform,
		"priority": item.Priority,
		"score":    score,
	})
	return item, nil
}

// ManualEnqueue queues a known listing at the default priority with no score.
func (m *Manager) ManualEnqueue(ctx context.Context, userID, listingID string) (models.QueueItem, error) {
	listing, err := m.store.GetListing(ctx, listingID)
	if err != nil {
		return models.QueueItem{}, err
	}

	item, err := m.Enqueue(ctx, userID, listing, 0, withPriority(ManualPriority))
	if err != nil {
		return models.QueueItem{}, err
	}
	metrics.IncEnqueued(item.Platform, "manual")

	m.appendLog(ctx, userID, item.ID, manualEnqueueMessage, map[string]interface{}{
		"job_title":    item.Title,
		"company_name": item.CompanyName,
		"platform":     item.Platform,
	})
	return item, nil
}

// DequeueBatch returns due pending items in dispatch order.
func (m *Manager) DequeueBatch(ctx context.Context, limit int) ([]models.QueueItem, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	return m.store.DequeueDue(ctx, m.now(), limit)
}

// Skip marks a pending item skipped. userID, when set, must own the item.
func (m *Manager) Skip(ctx context.Context, userID, itemID string) (models.QueueItem, error) {
	item, err := m.owned(ctx, userID, itemID)
	if err != nil {
		return models.QueueItem{}, err
	}

	now := m.now()
	updated, err := m.store.Transition(ctx, store.Transition{
		ItemID: item.ID,
		From:   models.QueueStatusPending,
		Update: store.QueueUpdate{Status: models.QueueStatusSkipped, CompletedAt: &now},
		Log:    m.logEntry(item.UserID, item.ID, fmt.Sprintf("Skipped %s at %s", item.Title, item.CompanyName), nil),
	})
	if errors.Is(err, store.ErrStatusConflict) {
		return updated, ErrNotPending
	}
	return updated, err
}

// Reprioritize changes the priority of a pending item.
func (m *Manager) Reprioritize(ctx context.Context, userID, itemID string, priority int) (models.QueueItem, error) {
	if priority < models.MinPriority || priority > models.MaxPriority {
		return models.QueueItem{}, ErrInvalidPriority
	}

	item, err := m.owned(ctx, userID, itemID)
	if err != nil {
		return models.QueueItem{}, err
	}

	updated, err := m.store.Transition(ctx, store.Transition{
		ItemID: item.ID,
		From:   models.QueueStatusPending,
		Update: store.QueueUpdate{Status: models.QueueStatusPending, Priority: &priority},
		Log: m.logEntry(item.UserID, item.ID, fmt.Sprintf("Priority changed from %d to %d", item.Priority, priority),
			map[string]interface{}{"old_priority": item.Priority, "new_priority": priority}),
	})
	if errors.Is(err, store.ErrStatusConflict) {
		return updated, ErrNotPending
	}
	return updated, err
}

// Remove deletes an item that is not currently being processed.
func (m *Manager) Remove(ctx context.Context, userID, itemID string) error {
	item, err := m.owned(ctx, userID, itemID)
	if err != nil {
		return err
	}

	if err := m.store.DeleteQueueItem(ctx, item.ID); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return ErrProcessing
		}
		return err
	}

	m.appendLog(ctx, item.UserID, "", fmt.Sprintf("Removed %s at %s from queue", item.Title, item.CompanyName), nil)
	return nil
}

// List returns one page of the user's queue and the total match count.
func (m *Manager) List(ctx context.Context, userID string, status models.QueueStatus, page, limit int) ([]models.QueueItem, int, error) {
	if page < 1 {
		page = 1
	}
	return m.store.ListQueue(ctx, store.QueueFilter{
		UserID: userID,
		Status: status,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
}

func (m *Manager) Stats(ctx context.Context, userID string) (models.QueueStats, error) {
	return m.store.QueueStats(ctx, userID)
}

// NextScheduled returns the user's earliest pending item, or nil when none.
func (m *Manager) NextScheduled(ctx context.Context, userID string) (*models.QueueItem, error) {
	it, err := m.store.NextScheduled(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (m *Manager) owned(ctx context.Context, userID, itemID string) (models.QueueItem, error) {
	item, err := m.store.GetQueueItem(ctx, itemID)
	if err != nil {
		return models.QueueItem{}, err
	}
	if userID != "" && item.UserID != userID {
		return models.QueueItem{}, ErrNotFound
	}
	return item, nil
}

func (m *Manager) logEntry(userID, itemID, message string, details map[string]interface{}) *models.AutomationLog {
	return &models.AutomationLog{
		UserID:      userID,
		QueueItemID: itemID,
		ActionType:  models.ActionQueueUpdate,
		Status:      models.LogStatusInfo,
		Message:     message,
		Details:     details,
		CreatedAt:   m.now(),
	}
}

func (m *Manager) appendLog(ctx context.Context, userID, itemID, message string, details map[string]interface{}) {
	if err := m.store.AppendLog(ctx, m.logEntry(userID, itemID, message, details)); err != nil {
		m.logger.Warn("Failed to write queue log", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}
