// Package discovery runs a user's saved searches against the job boards,
// stores what it finds and queues the listings that match well enough.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"jobpilot/internal/logging/types"
	"jobpilot/internal/matcher"
	"jobpilot/internal/metrics"
	"jobpilot/internal/queue"
	"jobpilot/internal/scraper"
	"jobpilot/internal/store"
	"jobpilot/pkg/models"
)

// Store is the persistence discovery reads and writes
type Store interface {
	UpsertListing(ctx context.Context, listing *models.JobListing) error
	AppendLog(ctx context.Context, entry *models.AutomationLog) error
	ActiveSearchProfiles(ctx context.Context) ([]models.SearchProfile, error)
	SearchProfilesForUser(ctx context.Context, userID string) ([]models.SearchProfile, error)
	UserProfile(ctx context.Context, userID string) (models.UserProfile, error)
}

// Enqueuer creates queue items
type Enqueuer interface {
	Enqueue(ctx context.Context, userID string, listing models.JobListing, score float64, opts ...queue.EnqueueOption) (models.QueueItem, error)
}

// Sources looks up the board adapter for a platform
type Sources interface {
	Get(platform string) (scraper.Source, bool)
	Platforms() []string
}

// Options tunes a Service
type Options struct {
	// Threshold is the minimum match score for queueing; zero uses the matcher default
	Threshold float64
	// Concurrency caps parallel board searches per user
	Concurrency int
}

// Service scrapes and queues listings for one user at a time
type Service struct {
	store   Store
	queue   Enqueuer
	sources Sources
	opts    Options
	now     func() time.Time
	logger  types.Logger
}

func New(s Store, q Enqueuer, sources Sources, opts Options, logger types.Logger) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if logger == nil {
		logger = types.NewNopLogger()
	}
	return &Service{
		store:   s,
		queue:   q,
		sources: sources,
		opts:    opts,
		now:     time.Now,
		logger:  logger.WithField("component", "discovery"),
	}
}

// ActiveUsers returns every user with at least one active search profile, in
// first-seen order.
func (s *Service) ActiveUsers(ctx context.Context) ([]string, error) {
	profiles, err := s.store.ActiveSearchProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active search profiles: %w", err)
	}

	seen := make(map[string]bool, len(profiles))
	users := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			users = append(users, p.UserID)
		}
	}
	return users, nil
}

type search struct {
	profile  models.SearchProfile
	platform string
	source   scraper.Source
}

// ScrapeUser searches every board named by each of the user's active profiles
// and queues the listings that score at or above the threshold. A failing
// board is logged and counted but does not stop the others. The returned
// error is reserved for failures that prevent the run entirely.
func (s *Service) ScrapeUser(ctx context.Context, userID string) (models.ScrapeSummary, error) {
	summary := models.ScrapeSummary{UserID: userID, PerProfile: map[string]int{}}
	log := s.logger.WithField("user_id", userID)

	profiles, err := s.store.SearchProfilesForUser(ctx, userID)
	if err != nil {
		return summary, fmt.Errorf("load search profiles: %w", err)
	}
	if len(profiles) == 0 {
		log.Debug("No active search profile")
		return summary, nil
	}

	var skills []string
	user, err := s.store.UserProfile(ctx, userID)
	switch {
	case err == nil:
		skills = user.Skills
	case errors.Is(err, store.ErrNotFound):
		log.Warn("User profile not found, scoring without skills")
	default:
		return summary, fmt.Errorf("load user profile: %w", err)
	}

	searches := s.plan(profiles, &summary)

	var (
		mu       sync.Mutex
		g        errgroup.Group
		searched []string
	)
	g.SetLimit(s.opts.Concurrency)

	for _, sr := range searches {
		g.Go(func() error {
			found, queued, err := s.searchOne(ctx, userID, sr, skills)

			mu.Lock()
			defer mu.Unlock()
			summary.Found += found
			summary.Queued += queued
			summary.PerProfile[sr.profile.ConfigType] += queued
			if err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", sr.platform, err))
				return nil
			}
			searched = append(searched, sr.platform)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	status := models.LogStatusSuccess
	if len(searched) == 0 && len(summary.Errors) > 0 {
		status = models.LogStatusFailed
	}
	s.appendLog(ctx, userID, status,
		fmt.Sprintf("Found %d jobs, queued %d for application", summary.Found, summary.Queued),
		map[string]interface{}{
			"platforms":   uniq(searched),
			"per_profile": summary.PerProfile,
			"errors":      summary.Errors,
		})

	log.Info("Scrape finished", map[string]interface{}{
		"found":  summary.Found,
		"queued": summary.Queued,
		"errors": len(summary.Errors),
	})
	return summary, nil
}

// plan expands profiles into board searches. A profile without platforms
// searches every registered board.
func (s *Service) plan(profiles []models.SearchProfile, summary *models.ScrapeSummary) []search {
	var out []search
	for _, p := range profiles {
		platforms := p.Platforms
		if len(platforms) == 0 {
			platforms = s.sources.Platforms()
		}
		for _, name := range platforms {
			name = strings.ToLower(strings.TrimSpace(name))
			src, ok := s.sources.Get(name)
			if !ok {
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s: no scraper for platform", name))
				continue
			}
			out = append(out, search{profile: p, platform: name, source: src})
		}
	}
	return out
}

func (s *Service) searchOne(ctx context.Context, userID string, sr search, skills []string) (found, queued int, err error) {
	log := s.logger.WithFields(map[string]interface{}{
		"user_id":     userID,
		"platform":    sr.platform,
		"config_type": sr.profile.ConfigType,
	})

	listings, err := sr.source.Search(ctx, scraper.QueryFor(sr.profile))
	if err != nil {
		metrics.IncScrapeError(sr.platform)
		log.Warn("Board search failed", map[string]interface{}{"error": err.Error()})
		s.appendLog(ctx, userID, models.LogStatusFailed,
			fmt.Sprintf("Error scraping %s: %v", sr.platform, err),
			map[string]interface{}{"platform": sr.platform, "config_type": sr.profile.ConfigType})
		return 0, 0, err
	}
	metrics.AddScraped(sr.platform, len(listings))

	for i := range listings {
		listing := listings[i]
		if err := s.store.UpsertListing(ctx, &listing); err != nil {
			log.Error("Failed to store listing", map[string]interface{}{
				"external_id": listing.ExternalID,
				"error":       err.Error(),
			})
			continue
		}
		found++

		ok, score, _ := matcher.ShouldEnqueue(listing, sr.profile, skills, s.opts.Threshold)
		if !ok {
			continue
		}

		_, err := s.queue.Enqueue(ctx, userID, listing, score, queue.WithProfile(sr.profile))
		switch {
		case err == nil:
			queued++
			metrics.IncEnqueued(sr.platform, "scrape")
		case errors.Is(err, queue.ErrAlreadyQueued), errors.Is(err, queue.ErrAlreadyApplied):
		default:
			log.Error("Failed to queue listing", map[string]interface{}{
				"job_url": listing.URL,
				"error":   err.Error(),
			})
		}
	}
	return found, queued, nil
}

func (s *Service) appendLog(ctx context.Context, userID, status, message string, details map[string]interface{}) {
	entry := &models.AutomationLog{
		UserID:     userID,
		ActionType: models.ActionJobSearch,
		Status:     status,
		Message:    message,
		Details:    details,
		CreatedAt:  s.now(),
	}
	if err := s.store.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("Failed to append search log", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
