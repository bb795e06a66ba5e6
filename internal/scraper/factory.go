package scraper

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"jobpilot/internal/browser"
	"jobpilot/internal/config"
	"jobpilot/internal/logging/types"
	"jobpilot/internal/scraper/engines/firecrawl"
	"jobpilot/internal/scraper/engines/headed"
	"jobpilot/internal/scraper/engines/static"
	"jobpilot/internal/scraper/throttle"
)

// readySelectors is what the headed engine waits for on each board's results page
var readySelectors = map[string]string{
	PlatformIndeed:   "div.job_seen_beacon",
	PlatformLinkedIn: ".job-search-card, .base-card",
}

// Throttled paces a fetcher through a host limiter and feeds fetch outcomes
// back into the host's circuit breaker.
type Throttled struct {
	Fetcher
	limiter *throttle.HostLimiter
}

func NewThrottled(f Fetcher, limiter *throttle.HostLimiter) *Throttled {
	return &Throttled{Fetcher: f, limiter: limiter}
}

func (t *Throttled) Fetch(ctx context.Context, url string) (string, error) {
	if err := t.limiter.Wait(ctx, url); err != nil {
		return "", err
	}
	html, err := t.Fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() == nil {
			t.limiter.RecordFailure(url, err)
		}
		return "", err
	}
	t.limiter.RecordSuccess(url)
	return html, nil
}

// Registry holds one Source per platform
type Registry struct {
	sources map[string]Source
}

func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Source) {
	r.sources[strings.ToLower(s.Platform())] = s
}

func (r *Registry) Get(platform string) (Source, bool) {
	s, ok := r.sources[strings.ToLower(strings.TrimSpace(platform))]
	return s, ok
}

// Platforms lists the registered platforms in name order
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.sources))
	for name := range r.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Factory builds fetchers and sources from configuration
type Factory struct {
	cfg      *config.Config
	launcher browser.Launcher
	limiter  *throttle.HostLimiter
	logger   types.Logger
}

// NewFactory creates a factory. launcher may be nil when no board uses the
// headed engine.
func NewFactory(cfg *config.Config, launcher browser.Launcher, limiter *throttle.HostLimiter, logger types.Logger) *Factory {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	if limiter == nil {
		limiter = throttle.New(throttle.Config{RequestsPerMinute: cfg.Scraper.RequestsPerMin}, logger)
	}
	return &Factory{cfg: cfg, launcher: launcher, limiter: limiter, logger: logger}
}

// SupportedEngines returns the fetch engines CreateFetcher accepts
func SupportedEngines() []string {
	return []string{"http", "headed", "firecrawl"}
}

// CreateFetcher builds a throttled fetcher for engine on platform's board.
func (f *Factory) CreateFetcher(engine, platform string) (Fetcher, error) {
	var fetcher Fetcher
	switch strings.ToLower(engine) {
	case "", "http":
		fetcher = static.New(f.cfg.Scraper.RequestTimeout, f.cfg.Scraper.UserAgent, f.logger)
	case "headed":
		if f.launcher == nil {
			return nil, fmt.Errorf("headed engine requested for %s but no browser is configured", platform)
		}
		fetcher = headed.New(f.launcher, f.logger, headed.WithReadySelector(readySelectors[platform], f.cfg.Automation.ElementWait))
	case "firecrawl":
		fc, err := firecrawl.New(firecrawl.Config{
			APIKey:     f.cfg.Firecrawl.APIKey,
			APIURL:     f.cfg.Firecrawl.APIURL,
			MaxRetries: f.cfg.Firecrawl.MaxRetries,
			Formats:    f.cfg.Firecrawl.Formats,
		}, f.logger)
		if err != nil {
			return nil, err
		}
		fetcher = fc
	default:
		return nil, fmt.Errorf("unsupported scraping engine: %s", engine)
	}
	return NewThrottled(fetcher, f.limiter), nil
}

// Sources builds a Source for every platform in the engine map that has a
// parser. Platforms without one are logged and left out.
func (f *Factory) Sources() (*Registry, error) {
	reg := NewRegistry()

	platforms := make([]string, 0, len(f.cfg.Scraper.Engines))
	for p := range f.cfg.Scraper.Engines {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	for _, key := range platforms {
		platform := strings.ToLower(key)
		engine := f.cfg.Scraper.Engines[key]

		fetcher, err := f.CreateFetcher(engine, platform)
		if err != nil {
			return nil, fmt.Errorf("%s source: %w", platform, err)
		}

		switch platform {
		case PlatformIndeed:
			reg.Register(NewIndeed(f.cfg.Scraper.IndeedBaseURL, fetcher, f.cfg.Scraper.MaxResults, f.logger))
		case PlatformLinkedIn:
			reg.Register(NewLinkedIn(f.cfg.Scraper.LinkedInURL, fetcher, f.cfg.Scraper.MaxResults, f.logger))
		default:
			f.logger.Warn("No scraper implemented for platform", map[string]interface{}{"platform": platform})
		}
	}
	return reg, nil
}

// Limiter exposes the shared host limiter for pruning and stats.
func (f *Factory) Limiter() *throttle.HostLimiter {
	return f.limiter
}
