// Package static fetches pages with a plain HTTP GET.
package static

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"jobpilot/internal/logging/types"
)

const maxBody = 8 << 20

// StatusError is a non-200 response
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// Fetcher issues browser-like GET requests
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    types.Logger
}

func New(timeout time.Duration, userAgent string, logger types.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = types.NewNopLogger()
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

func (f *Fetcher) Engine() string { return "http" }

func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	res, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", &StatusError{URL: url, Code: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}

	f.logger.Debug("Fetched page", map[string]interface{}{
		"url":         url,
		"bytes":       len(body),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return string(body), nil
}
