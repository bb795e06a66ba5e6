// Package store persists listings, the application queue, submitted
// applications and the automation log, and reads the account data the
// pipeline consumes.
package store

import (
	"context"
	"errors"
	"time"

	"jobpilot/pkg/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyQueued  = errors.New("job already in queue")
	ErrAlreadyApplied = errors.New("already applied to this job")
	// ErrStatusConflict means the item was not in the expected status.
	ErrStatusConflict = errors.New("queue item status conflict")
	ErrNoResume       = errors.New("no resume available")
)

// ListingFilter selects listings for ListListings
type ListingFilter struct {
	Platform   string
	ActiveOnly bool
	// ExcludeQueuedForUser hides listings the user already has a queue item for
	ExcludeQueuedForUser string
	Offset               int
	Limit                int
}

// QueueFilter selects queue items for ListQueue
type QueueFilter struct {
	UserID string
	Status models.QueueStatus
	Offset int
	Limit  int
}

// LogFilter selects automation log entries
type LogFilter struct {
	UserID     string
	ActionType string
	Status     string
	Offset     int
	Limit      int
}

// QueueUpdate lists the fields a transition writes. Nil fields are left as is.
type QueueUpdate struct {
	Status       models.QueueStatus
	ScheduledFor *time.Time
	AttemptedAt  *time.Time
	CompletedAt  *time.Time
	RetryCount   *int
	Priority     *int
	ErrorMessage *string
}

// Transition is a compare-and-set on an item's status. Log, when set, is
// appended in the same transaction.
type Transition struct {
	ItemID string
	From   models.QueueStatus
	Update QueueUpdate
	Log    *models.AutomationLog
}

// Completion commits a successful application: the processing item becomes
// applied, the application is recorded, usage is incremented, the log entry
// is appended and the resume is marked used.
type Completion struct {
	ItemID      string
	Application *models.Application
	Log         *models.AutomationLog
	At          time.Time
}

// CredentialRecord is a stored platform login. Password and Cookies are
// ciphertext until passed through a decrypter.
type CredentialRecord struct {
	UserID   string
	Platform string
	Username string
	Password []byte
	Cookies  []byte
}

type ListingStore interface {
	// UpsertListing inserts or refreshes a listing keyed by (platform, external id) and sets its ID.
	UpsertListing(ctx context.Context, listing *models.JobListing) error
	GetListing(ctx context.Context, id string) (models.JobListing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]models.JobListing, int, error)
	DeleteListingsScrapedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeactivateListingsScrapedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type QueueStore interface {
	// CreateQueueItemIfAbsent inserts item unless the user already has a
	// non-terminal item or an application for the same URL.
	CreateQueueItemIfAbsent(ctx context.Context, item *models.QueueItem) error
	GetQueueItem(ctx context.Context, id string) (models.QueueItem, error)
	// DequeueDue returns pending items due at now, highest priority first, oldest first within a priority.
	DequeueDue(ctx context.Context, now time.Time, limit int) ([]models.QueueItem, error)
	Transition(ctx context.Context, t Transition) (models.QueueItem, error)
	// DeleteQueueItem refuses items that are processing.
	DeleteQueueItem(ctx context.Context, id string) error
	ListQueue(ctx context.Context, filter QueueFilter) ([]models.QueueItem, int, error)
	QueueStats(ctx context.Context, userID string) (models.QueueStats, error)
	// NextScheduled returns the earliest pending item or ErrNotFound.
	NextScheduled(ctx context.Context, userID string) (models.QueueItem, error)
	DeleteQueueItemsCreatedBefore(ctx context.Context, statuses []models.QueueStatus, cutoff time.Time) (int64, error)
	// ListStaleProcessing returns processing items whose attempt started
	// before cutoff, oldest first.
	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]models.QueueItem, error)
}

type ApplicationStore interface {
	CountApplicationsSince(ctx context.Context, userID, platform string, since time.Time) (int, error)
	LastApplicationAt(ctx context.Context, userID, platform string) (time.Time, bool, error)
	ListApplicationsSince(ctx context.Context, userID string, since time.Time) ([]models.Application, error)
	CompleteApplication(ctx context.Context, c Completion) (models.QueueItem, error)
}

type LogStore interface {
	AppendLog(ctx context.Context, entry *models.AutomationLog) error
	ListLogs(ctx context.Context, filter LogFilter) ([]models.AutomationLog, int, error)
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccountStore reads the user-owned data the pipeline never writes, except
// for usage and resume bookkeeping done inside CompleteApplication.
type AccountStore interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	ActiveSearchProfiles(ctx context.Context) ([]models.SearchProfile, error)
	SearchProfilesForUser(ctx context.Context, userID string) ([]models.SearchProfile, error)
	UserProfile(ctx context.Context, userID string) (models.UserProfile, error)
	Usage(ctx context.Context, userID string) (models.Usage, error)
	// ResolveResume picks preferredID when it belongs to the user, then the
	// default resume, then the most recently uploaded one.
	ResolveResume(ctx context.Context, userID, preferredID string) (models.Resume, error)
	Credential(ctx context.Context, userID, platform string) (CredentialRecord, error)
}

// Store is the full persistence surface
type Store interface {
	ListingStore
	QueueStore
	ApplicationStore
	LogStore
	AccountStore

	Ping(ctx context.Context) error
	Close()
}

func pageBounds(offset, limit, total int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return offset, end
}
