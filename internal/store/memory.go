package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobpilot/pkg/models"
)

// MemoryStore is a Store held in process memory. It backs tests and the
// "memory" database driver.
type MemoryStore struct {
	mu sync.RWMutex

	listings     map[string]models.JobListing
	listingKeys  map[string]string // platform|external_id -> id
	queue        map[string]models.QueueItem
	applications []models.Application
	logs         []models.AutomationLog

	users       map[string]models.UserProfile
	profiles    map[string]models.SearchProfile
	usage       map[string]models.Usage
	resumes     map[string]models.Resume
	resumeUsed  map[string]time.Time
	credentials map[string]CredentialRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:    make(map[string]models.JobListing),
		listingKeys: make(map[string]string),
		queue:       make(map[string]models.QueueItem),
		users:       make(map[string]models.UserProfile),
		profiles:    make(map[string]models.SearchProfile),
		usage:       make(map[string]models.Usage),
		resumes:     make(map[string]models.Resume),
		resumeUsed:  make(map[string]time.Time),
		credentials: make(map[string]CredentialRecord),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}

// Seeding helpers for the account side, which the pipeline only reads.

func (s *MemoryStore) PutUser(u models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *MemoryStore) PutSearchProfile(p models.SearchProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.profiles[p.ID] = p
}

func (s *MemoryStore) SetUsage(userID string, u models.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[userID] = u
}

func (s *MemoryStore) PutResume(r models.Resume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.resumes[r.ID] = r
}

func (s *MemoryStore) PutCredential(c CredentialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[c.UserID+"|"+strings.ToLower(c.Platform)] = c
}

// PutApplication records an application outside the queue flow.
func (s *MemoryStore) PutApplication(a models.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.applications = append(s.applications, a)
}

// ResumeLastUsed reports when a resume was last attached to a submitted application.
func (s *MemoryStore) ResumeLastUsed(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.resumeUsed[id]
	return t, ok
}

// Listings

func (s *MemoryStore) UpsertListing(_ context.Context, listing *models.JobListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := listing.Platform + "|" + listing.ExternalID
	if id, ok := s.listingKeys[key]; ok {
		listing.ID = id
	} else {
		listing.ID = uuid.NewString()
		s.listingKeys[key] = listing.ID
	}
	if listing.ScrapedAt.IsZero() {
		listing.ScrapedAt = time.Now()
	}
	listing.IsActive = true
	s.listings[listing.ID] = *listing
	return nil
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (models.JobListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return models.JobListing{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) ListListings(_ context.Context, f ListingFilter) ([]models.JobListing, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var queued map[string]bool
	if f.ExcludeQueuedForUser != "" {
		queued = make(map[string]bool)
		for _, it := range s.queue {
			if it.UserID == f.ExcludeQueuedForUser && it.JobListingID != "" {
				queued[it.JobListingID] = true
			}
		}
	}

	var out []models.JobListing
	for _, l := range s.listings {
		if f.Platform != "" && !strings.EqualFold(l.Platform, f.Platform) {
			continue
		}
		if f.ActiveOnly && !l.IsActive {
			continue
		}
		if queued[l.ID] {
			continue
		}
		out = append(out, l)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScrapedAt.Equal(out[j].ScrapedAt) {
			return out[i].ScrapedAt.After(out[j].ScrapedAt)
		}
		return out[i].ID < out[j].ID
	})

	start, end := pageBounds(f.Offset, f.Limit, len(out))
	return out[start:end], len(out), nil
}

func (s *MemoryStore) DeleteListingsScrapedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.listings {
		if l.ScrapedAt.Before(cutoff) {
			delete(s.listings, id)
			delete(s.listingKeys, l.Platform+"|"+l.ExternalID)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeactivateListingsScrapedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.listings {
		if l.IsActive && l.ScrapedAt.Before(cutoff) {
			l.IsActive = false
			s.listings[id] = l
			n++
		}
	}
	return n, nil
}

// Queue

func (s *MemoryStore) CreateQueueItemIfAbsent(_ context.Context, item *models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.queue {
		if it.UserID != item.UserID || it.URL != item.URL {
			continue
		}
		if it.Status == models.QueueStatusApplied {
			return ErrAlreadyApplied
		}
		if !it.Status.Terminal() {
			return ErrAlreadyQueued
		}
	}
	for _, a := range s.applications {
		if a.UserID == item.UserID && a.URL == item.URL {
			return ErrAlreadyApplied
		}
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	s.queue[item.ID] = *item
	return nil
}

func (s *MemoryStore) GetQueueItem(_ context.Context, id string) (models.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.queue[id]
	if !ok {
		return models.QueueItem{}, ErrNotFound
	}
	return it, nil
}

func (s *MemoryStore) DequeueDue(_ context.Context, now time.Time, limit int) ([]models.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []models.QueueItem
	for _, it := range s.queue {
		if it.Status == models.QueueStatusPending && !it.ScheduledFor.After(now) {
			due = append(due, it)
		}
	}
	sortByPriority(due)

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) Transition(_ context.Context, t Transition) (models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.queue[t.ItemID]
	if !ok {
		return models.QueueItem{}, ErrNotFound
	}
	if it.Status != t.From {
		return it, ErrStatusConflict
	}

	applyUpdate(&it, t.Update)
	s.queue[it.ID] = it

	if t.Log != nil {
		s.appendLogLocked(t.Log)
	}
	return it, nil
}

func (s *MemoryStore) DeleteQueueItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.queue[id]
	if !ok {
		return ErrNotFound
	}
	if it.Status == models.QueueStatusProcessing {
		return ErrStatusConflict
	}
	delete(s.queue, id)
	return nil
}

func (s *MemoryStore) ListQueue(_ context.Context, f QueueFilter) ([]models.QueueItem, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.QueueItem
	for _, it := range s.queue {
		if f.UserID != "" && it.UserID != f.UserID {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		out = append(out, it)
	}
	sortByPriority(out)

	start, end := pageBounds(f.Offset, f.Limit, len(out))
	return out[start:end], len(out), nil
}

func (s *MemoryStore) QueueStats(_ context.Context, userID string) (models.QueueStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st models.QueueStats
	for _, it := range s.queue {
		if it.UserID != userID {
			continue
		}
		switch it.Status {
		case models.QueueStatusPending:
			st.Pending++
		case models.QueueStatusProcessing:
			st.Processing++
		case models.QueueStatusApplied:
			st.Applied++
		case models.QueueStatusFailed:
			st.Failed++
		case models.QueueStatusSkipped:
			st.Skipped++
		}
	}
	return st, nil
}

func (s *MemoryStore) NextScheduled(_ context.Context, userID string) (models.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		next  models.QueueItem
		found bool
	)
	for _, it := range s.queue {
		if it.UserID != userID || it.Status != models.QueueStatusPending {
			continue
		}
		if !found || it.ScheduledFor.Before(next.ScheduledFor) {
			next, found = it, true
		}
	}
	if !found {
		return models.QueueItem{}, ErrNotFound
	}
	return next, nil
}

func (s *MemoryStore) DeleteQueueItemsCreatedBefore(_ context.Context, statuses []models.QueueStatus, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, it := range s.queue {
		if !it.CreatedAt.Before(cutoff) {
			continue
		}
		for _, st := range statuses {
			if it.Status == st {
				delete(s.queue, id)
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *MemoryStore) ListStaleProcessing(_ context.Context, cutoff time.Time) ([]models.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []models.QueueItem
	for _, it := range s.queue {
		if it.Status != models.QueueStatusProcessing {
			continue
		}
		if attemptStart(it).Before(cutoff) {
			stale = append(stale, it)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return attemptStart(stale[i]).Before(attemptStart(stale[j])) })
	return stale, nil
}

func attemptStart(it models.QueueItem) time.Time {
	if it.AttemptedAt != nil {
		return *it.AttemptedAt
	}
	return it.CreatedAt
}

// Applications

func (s *MemoryStore) CountApplicationsSince(_ context.Context, userID, platform string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.applications {
		if a.UserID == userID && (platform == "" || strings.EqualFold(a.Platform, platform)) && !a.AppliedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) LastApplicationAt(_ context.Context, userID, platform string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	for _, a := range s.applications {
		if a.UserID == userID && (platform == "" || strings.EqualFold(a.Platform, platform)) && a.AppliedAt.After(last) {
			last = a.AppliedAt
		}
	}
	return last, !last.IsZero(), nil
}

func (s *MemoryStore) ListApplicationsSince(_ context.Context, userID string, since time.Time) ([]models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Application
	for _, a := range s.applications {
		if a.UserID == userID && !a.AppliedAt.Before(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.After(out[j].AppliedAt) })
	return out, nil
}

func (s *MemoryStore) CompleteApplication(_ context.Context, c Completion) (models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.queue[c.ItemID]
	if !ok {
		return models.QueueItem{}, ErrNotFound
	}
	if it.Status != models.QueueStatusProcessing {
		return it, ErrStatusConflict
	}

	at := c.At
	empty := ""
	applyUpdate(&it, QueueUpdate{Status: models.QueueStatusApplied, CompletedAt: &at, ErrorMessage: &empty})
	s.queue[it.ID] = it

	app := *c.Application
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	c.Application.ID = app.ID
	s.applications = append(s.applications, app)

	if u, ok := s.usage[it.UserID]; ok {
		u.Used++
		s.usage[it.UserID] = u
	}

	if app.ResumeID != "" {
		s.resumeUsed[app.ResumeID] = at
	}
	if c.Log != nil {
		s.appendLogLocked(c.Log)
	}
	return it, nil
}

// Logs

func (s *MemoryStore) AppendLog(_ context.Context, entry *models.AutomationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLogLocked(entry)
	return nil
}

func (s *MemoryStore) appendLogLocked(entry *models.AutomationLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.logs = append(s.logs, *entry)
}

func (s *MemoryStore) ListLogs(_ context.Context, f LogFilter) ([]models.AutomationLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AutomationLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		if f.UserID != "" && l.UserID != f.UserID {
			continue
		}
		if f.ActionType != "" && l.ActionType != f.ActionType {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	start, end := pageBounds(f.Offset, f.Limit, len(out))
	return out[start:end], len(out), nil
}

func (s *MemoryStore) DeleteLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.logs[:0]
	var n int64
	for _, l := range s.logs {
		if l.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	s.logs = kept
	return n, nil
}

// Accounts

func (s *MemoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) ActiveSearchProfiles(_ context.Context) ([]models.SearchProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SearchProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sortProfiles(out)
	return out, nil
}

func (s *MemoryStore) SearchProfilesForUser(_ context.Context, userID string) ([]models.SearchProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.SearchProfile
	for _, p := range s.profiles {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sortProfiles(out)
	return out, nil
}

func (s *MemoryStore) UserProfile(_ context.Context, userID string) (models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return models.UserProfile{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) Usage(_ context.Context, userID string) (models.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usage[userID]
	if !ok {
		return models.Usage{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) ResolveResume(_ context.Context, userID, preferredID string) (models.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.resumes[preferredID]; ok && r.UserID == userID {
		return r, nil
	}

	var (
		latest models.Resume
		found  bool
	)
	for _, r := range s.resumes {
		if r.UserID != userID {
			continue
		}
		if r.IsDefault {
			return r, nil
		}
		if !found || r.UploadedAt.After(latest.UploadedAt) {
			latest, found = r, true
		}
	}
	if !found {
		return models.Resume{}, ErrNoResume
	}
	return latest, nil
}

func (s *MemoryStore) Credential(_ context.Context, userID, platform string) (CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[userID+"|"+strings.ToLower(platform)]
	if !ok {
		return CredentialRecord{}, ErrNotFound
	}
	return c, nil
}

func applyUpdate(it *models.QueueItem, u QueueUpdate) {
	it.Status = u.Status
	if u.ScheduledFor != nil {
		it.ScheduledFor = *u.ScheduledFor
	}
	if u.AttemptedAt != nil {
		t := *u.AttemptedAt
		it.AttemptedAt = &t
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		it.CompletedAt = &t
	}
	if u.RetryCount != nil {
		it.RetryCount = *u.RetryCount
	}
	if u.Priority != nil {
		it.Priority = *u.Priority
	}
	if u.ErrorMessage != nil {
		it.ErrorMessage = *u.ErrorMessage
	}
}

func sortByPriority(items []models.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func sortProfiles(ps []models.SearchProfile) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].UserID != ps[j].UserID {
			return ps[i].UserID < ps[j].UserID
		}
		// primary before secondary
		return ps[i].ConfigType < ps[j].ConfigType
	})
}
