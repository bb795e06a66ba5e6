// Package headed fetches pages through the shared browser so script-rendered
// result lists are present in the returned HTML.
package headed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobpilot/internal/browser"
	"jobpilot/internal/logging/types"
)

// Fetcher renders a page in a fresh tab and returns its HTML
type Fetcher struct {
	launcher browser.Launcher
	// ready is waited for before the HTML is read; empty skips the wait
	ready  string
	wait   time.Duration
	settle time.Duration
	logger types.Logger
}

// Option customizes a Fetcher
type Option func(*Fetcher)

// WithReadySelector waits up to wait for selector before reading the page.
// A selector that never shows up is not an error; the page is read anyway.
func WithReadySelector(selector string, wait time.Duration) Option {
	return func(f *Fetcher) {
		f.ready = selector
		f.wait = wait
	}
}

// WithSettle pauses after navigation for late scripts.
func WithSettle(d time.Duration) Option {
	return func(f *Fetcher) { f.settle = d }
}

func New(launcher browser.Launcher, logger types.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	f := &Fetcher{launcher: launcher, wait: 10 * time.Second, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Engine() string { return "headed" }

func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()

	page, err := f.launcher.NewPage(ctx)
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			f.logger.Debug("Failed to close page", map[string]interface{}{"error": err.Error()})
		}
	}()

	if err := page.Navigate(ctx, url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}

	if f.ready != "" {
		if _, err := page.WaitFor(ctx, f.ready, f.wait); err != nil && !errors.Is(err, browser.ErrElementNotFound) {
			return "", fmt.Errorf("wait for results: %w", err)
		}
	}

	if f.settle > 0 {
		select {
		case <-time.After(f.settle):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}

	f.logger.Debug("Rendered page", map[string]interface{}{
		"url":         url,
		"final_url":   page.URL(),
		"bytes":       len(html),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return html, nil
}
