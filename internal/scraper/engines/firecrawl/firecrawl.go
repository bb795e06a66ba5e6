// Package firecrawl fetches pages through the Firecrawl scraping API, used for
// boards that block direct requests.
package firecrawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mendableai/firecrawl-go"

	"jobpilot/internal/logging/types"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("firecrawl api key not configured")

// Config holds the Firecrawl connection settings
type Config struct {
	APIKey     string
	APIURL     string
	MaxRetries int
	Formats    []string
}

// scrapeFunc is the SDK call, swappable in tests
type scrapeFunc func(url string, params *firecrawl.ScrapeParams) (*firecrawl.FirecrawlDocument, error)

// Fetcher scrapes pages through Firecrawl and returns their HTML
type Fetcher struct {
	scrape     scrapeFunc
	formats    []string
	maxRetries int
	backoff    time.Duration
	logger     types.Logger
}

func New(cfg Config, logger types.Logger) (*Fetcher, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = types.NewNopLogger()
	}

	app, err := firecrawl.NewFirecrawlApp(cfg.APIKey, cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("init firecrawl: %w", err)
	}

	logger.Info("Firecrawl fetcher initialized", map[string]interface{}{
		"api_url": cfg.APIURL,
	})
	return newFetcher(app.ScrapeURL, cfg, logger), nil
}

func newFetcher(scrape scrapeFunc, cfg Config, logger types.Logger) *Fetcher {
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = []string{"html"}
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Fetcher{
		scrape:     scrape,
		formats:    formats,
		maxRetries: retries,
		backoff:    time.Second,
		logger:     logger,
	}
}

func (f *Fetcher) Engine() string { return "firecrawl" }

// Fetch retries failed scrapes with a linear backoff. The SDK call itself
// does not take a context, so cancellation is checked between attempts.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	params := &firecrawl.ScrapeParams{Formats: f.formats}

	var lastErr error
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		doc, err := f.scrape(url, params)
		switch {
		case err != nil:
			lastErr = err
		case doc == nil:
			lastErr = errors.New("no result returned from firecrawl")
		case doc.HTML != "":
			return doc.HTML, nil
		default:
			lastErr = errors.New("no html in firecrawl response")
		}

		f.logger.Info("Firecrawl scrape attempt failed", map[string]interface{}{
			"url":     url,
			"attempt": attempt,
			"error":   lastErr.Error(),
		})

		if attempt < f.maxRetries {
			select {
			case <-time.After(time.Duration(attempt) * f.backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	return "", fmt.Errorf("firecrawl scraping failed after %d attempts: %w", f.maxRetries, lastErr)
}
