package scraper

import (
	"context"
	"errors"
	"strings"

	"jobpilot/pkg/models"
)

// ErrChallenge means the board served a captcha or bot check instead of results.
var ErrChallenge = errors.New("challenge page returned")

// Query is one search against a job board
type Query struct {
	JobTitle string
	Location string
	Keywords []string
}

// Terms joins the title and keywords into the board's free-text query.
func (q Query) Terms() string {
	parts := make([]string, 0, len(q.Keywords)+1)
	if t := strings.TrimSpace(q.JobTitle); t != "" {
		parts = append(parts, t)
	}
	for _, k := range q.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, " ")
}

// QueryFor builds the search for a profile variant.
func QueryFor(p models.SearchProfile) Query {
	return Query{JobTitle: p.JobTitle, Location: p.Location, Keywords: p.Keywords}
}

// Source searches one job board and returns normalized listings
type Source interface {
	// Platform is the lowercase board slug the listings are stored under
	Platform() string
	Search(ctx context.Context, q Query) ([]models.JobListing, error)
}

// Fetcher returns the rendered HTML of a page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	// Engine names the fetch strategy: http, headed or firecrawl
	Engine() string
}
