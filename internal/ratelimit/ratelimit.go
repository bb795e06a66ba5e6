// Package ratelimit enforces per-platform application quotas derived from
// the persisted application history.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"jobpilot/internal/config"
	"jobpilot/internal/logging/types"
)

const defaultPlatform = "default"

// History is the application record the limiter counts against.
type History interface {
	// CountApplicationsSince counts applications at or after since; an empty
	// platform counts across all platforms.
	CountApplicationsSince(ctx context.Context, userID, platform string, since time.Time) (int, error)
	LastApplicationAt(ctx context.Context, userID, platform string) (time.Time, bool, error)
}

// Limits is one platform's quota row
type Limits struct {
	PerHour  int
	PerDay   int
	MinDelay time.Duration
}

// Decision is the outcome of a CanApply check
type Decision struct {
	Allowed bool          `json:"allowed"`
	Reason  string        `json:"reason,omitempty"`
	Wait    time.Duration `json:"-"`
}

// WaitSeconds rounds the wait up to whole seconds.
func (d Decision) WaitSeconds() int {
	return int(math.Ceil(d.Wait.Seconds()))
}

// Stats summarizes a user's recent applications across platforms
type Stats struct {
	LastHour int `json:"last_hour"`
	LastDay  int `json:"last_day"`
	Total    int `json:"total"`
}

// Limiter answers whether a user may apply on a platform right now
type Limiter struct {
	history History
	limits  map[string]Limits
	now     func() time.Time
	logger  types.Logger
}

// New builds a limiter from the configured rate table. Platforms missing from
// the table fall back to its "default" row.
func New(history History, table map[string]config.RateLimit, logger types.Logger) *Limiter {
	if logger == nil {
		logger = types.NewNopLogger()
	}

	limits := make(map[string]Limits, len(table)+1)
	for platform, rl := range config.DefaultRateLimits() {
		limits[platform] = Limits(rl)
	}
	for platform, rl := range table {
		limits[strings.ToLower(platform)] = Limits(rl)
	}

	return &Limiter{
		history: history,
		limits:  limits,
		now:     time.Now,
		logger:  logger,
	}
}

// LimitsFor returns the quota row applied to platform
func (l *Limiter) LimitsFor(platform string) Limits {
	if lim, ok := l.limits[strings.ToLower(platform)]; ok {
		return lim
	}
	return l.limits[defaultPlatform]
}

// CanApply checks the hourly cap, then the daily cap, then the minimum delay
// since the last application on the platform.
func (l *Limiter) CanApply(ctx context.Context, userID, platform string) (Decision, error) {
	platform = strings.ToLower(platform)
	lim := l.LimitsFor(platform)
	now := l.now()

	hourCount, err := l.history.CountApplicationsSince(ctx, userID, platform, now.Add(-time.Hour))
	if err != nil {
		return Decision{}, fmt.Errorf("count hourly applications: %w", err)
	}
	if hourCount >= lim.PerHour {
		return l.deny(userID, platform, fmt.Sprintf("Hourly limit reached (%d applications/hour)", lim.PerHour), time.Hour), nil
	}

	dayCount, err := l.history.CountApplicationsSince(ctx, userID, platform, now.Add(-24*time.Hour))
	if err != nil {
		return Decision{}, fmt.Errorf("count daily applications: %w", err)
	}
	if dayCount >= lim.PerDay {
		return l.deny(userID, platform, fmt.Sprintf("Daily limit reached (%d applications/day)", lim.PerDay), 24*time.Hour), nil
	}

	last, ok, err := l.history.LastApplicationAt(ctx, userID, platform)
	if err != nil {
		return Decision{}, fmt.Errorf("last application: %w", err)
	}
	if ok {
		if elapsed := now.Sub(last); elapsed < lim.MinDelay {
			wait := lim.MinDelay - elapsed
			d := Decision{Wait: wait}
			return l.deny(userID, platform, fmt.Sprintf("Please wait %d seconds between applications", d.WaitSeconds()), wait), nil
		}
	}

	return Decision{Allowed: true}, nil
}

// Stats counts the user's applications over the last hour, the last day and all time.
func (l *Limiter) Stats(ctx context.Context, userID string) (Stats, error) {
	now := l.now()

	hour, err := l.history.CountApplicationsSince(ctx, userID, "", now.Add(-time.Hour))
	if err != nil {
		return Stats{}, err
	}
	day, err := l.history.CountApplicationsSince(ctx, userID, "", now.Add(-24*time.Hour))
	if err != nil {
		return Stats{}, err
	}
	total, err := l.history.CountApplicationsSince(ctx, userID, "", time.Time{})
	if err != nil {
		return Stats{}, err
	}

	return Stats{LastHour: hour, LastDay: day, Total: total}, nil
}

func (l *Limiter) deny(userID, platform, reason string, wait time.Duration) Decision {
	l.logger.Debug("rate limit denial", map[string]interface{}{
		"user_id":  userID,
		"platform": platform,
		"reason":   reason,
	})
	return Decision{Allowed: false, Reason: reason, Wait: wait}
}
