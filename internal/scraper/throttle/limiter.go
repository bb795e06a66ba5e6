// Package throttle paces requests per host and stops calling hosts that keep
// failing.
package throttle

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"jobpilot/internal/logging/types"
)

// ErrCircuitOpen is returned while a host's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a HostLimiter. Zero values take the defaults.
type Config struct {
	RequestsPerMinute int
	Burst             int
	// MaxFailures consecutive failures open the breaker
	MaxFailures  int
	ResetTimeout time.Duration
}

type host struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	requests int64
	failures int64

	state        CircuitState
	failureCount int
	lastFailTime time.Time
}

// HostStats is a snapshot of one host's counters
type HostStats struct {
	Requests     int64  `json:"requests"`
	Failures     int64  `json:"failures"`
	CircuitState string `json:"circuit_state"`
	FailureCount int    `json:"failure_count"`
}

// HostLimiter rate-limits per hostname and keeps a circuit breaker per host.
type HostLimiter struct {
	mu    sync.Mutex
	hosts map[string]*host
	cfg   Config
	now   func() time.Time

	logger types.Logger
}

func New(cfg Config, logger types.Logger) *HostLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = types.NewNopLogger()
	}
	return &HostLimiter{
		hosts:  make(map[string]*host),
		cfg:    cfg,
		now:    time.Now,
		logger: logger.WithField("component", "host_limiter"),
	}
}

// HostOf returns the lowercase hostname of rawURL, or "_" when it has none.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "_"
	}
	return strings.ToLower(u.Hostname())
}

func (l *HostLimiter) hostFor(name string) *host {
	if h, ok := l.hosts[name]; ok {
		return h
	}
	h := &host{
		limiter: rate.NewLimiter(rate.Limit(float64(l.cfg.RequestsPerMinute)/60.0), l.cfg.Burst),
		state:   CircuitClosed,
	}
	l.hosts[name] = h
	return h
}

// Wait blocks until a request to rawURL's host may go out. It fails fast
// with ErrCircuitOpen while the host's breaker is open.
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	name := HostOf(rawURL)

	l.mu.Lock()
	h := l.hostFor(name)
	if h.state == CircuitOpen {
		if l.now().Sub(h.lastFailTime) <= l.cfg.ResetTimeout {
			l.mu.Unlock()
			return ErrCircuitOpen
		}
		h.state = CircuitHalfOpen
		l.logger.Info("Circuit breaker half-open", map[string]interface{}{"host": name})
	}
	h.requests++
	h.lastSeen = l.now()
	lim := h.limiter
	l.mu.Unlock()

	return lim.Wait(ctx)
}

// RecordSuccess closes the breaker of rawURL's host.
func (l *HostLimiter) RecordSuccess(rawURL string) {
	name := HostOf(rawURL)

	l.mu.Lock()
	defer l.mu.Unlock()

	h := l.hostFor(name)
	if h.state != CircuitClosed {
		l.logger.Info("Circuit breaker closed after successful request", map[string]interface{}{"host": name})
	}
	h.state = CircuitClosed
	h.failureCount = 0
}

// RecordFailure counts a failure against rawURL's host and opens its breaker
// after MaxFailures in a row. A failure while half-open reopens at once.
func (l *HostLimiter) RecordFailure(rawURL string, err error) {
	name := HostOf(rawURL)

	l.mu.Lock()
	defer l.mu.Unlock()

	h := l.hostFor(name)
	h.failures++
	h.failureCount++
	h.lastFailTime = l.now()

	if h.state == CircuitHalfOpen || (h.state == CircuitClosed && h.failureCount >= l.cfg.MaxFailures) {
		h.state = CircuitOpen
		fields := map[string]interface{}{"host": name, "failures": h.failureCount}
		if err != nil {
			fields["error"] = err.Error()
		}
		l.logger.Warn("Circuit breaker opened due to failures", fields)
	}
}

// State reports the breaker state of a host.
func (l *HostLimiter) State(hostname string) CircuitState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.hosts[strings.ToLower(hostname)]; ok {
		return h.state
	}
	return CircuitClosed
}

// Stats returns counters for every host seen.
func (l *HostLimiter) Stats() map[string]HostStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]HostStats, len(l.hosts))
	for name, h := range l.hosts {
		out[name] = HostStats{
			Requests:     h.requests,
			Failures:     h.failures,
			CircuitState: h.state.String(),
			FailureCount: h.failureCount,
		}
	}
	return out
}

// Prune forgets closed hosts idle for longer than maxIdle.
func (l *HostLimiter) Prune(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for name, h := range l.hosts {
		if h.state == CircuitClosed && h.lastSeen.Before(cutoff) {
			delete(l.hosts, name)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("Pruned idle host limiters", map[string]interface{}{"removed_count": removed})
	}
	return removed
}
