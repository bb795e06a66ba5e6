package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobpilot/internal/captcha"
	"jobpilot/internal/logging/types"
	"jobpilot/pkg/models"
)

const (
	PlatformIndeed = "indeed"

	// descriptions shorter than this are card snippets worth a detail fetch
	enrichBelow = 200
)

// Indeed searches indeed.com result pages and enriches short cards from the
// job's view page.
type Indeed struct {
	baseURL    string
	fetcher    Fetcher
	maxResults int
	now        func() time.Time
	logger     types.Logger
}

func NewIndeed(baseURL string, fetcher Fetcher, maxResults int, logger types.Logger) *Indeed {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	if maxResults <= 0 {
		maxResults = 20
	}
	return &Indeed{
		baseURL:    strings.TrimRight(baseURL, "/"),
		fetcher:    fetcher,
		maxResults: maxResults,
		now:        time.Now,
		logger:     logger.WithFields(map[string]interface{}{"source": PlatformIndeed, "engine": fetcher.Engine()}),
	}
}

func (s *Indeed) Platform() string { return PlatformIndeed }

// SearchURL is the results page for q, newest first, posted in the last week.
func (s *Indeed) SearchURL(q Query) string {
	v := url.Values{}
	v.Set("q", q.Terms())
	v.Set("l", q.Location)
	v.Set("fromage", "7")
	v.Set("sort", "date")
	return s.baseURL + "/jobs?" + v.Encode()
}

func (s *Indeed) Search(ctx context.Context, q Query) ([]models.JobListing, error) {
	searchURL := s.SearchURL(q)
	html, err := s.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("indeed search: %w", err)
	}

	listings, err := ParseIndeedResults(html, s.baseURL, s.now())
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 && captcha.Detect(searchURL, html).Kind != captcha.KindNone {
		return nil, fmt.Errorf("indeed search: %w", ErrChallenge)
	}
	if len(listings) > s.maxResults {
		listings = listings[:s.maxResults]
	}

	for i := range listings {
		if len(listings[i].Description) >= enrichBelow {
			continue
		}
		if err := ctx.Err(); err != nil {
			return listings, nil
		}
		s.enrich(ctx, &listings[i])
	}

	s.logger.Info("Indeed search finished", map[string]interface{}{
		"query":    q.Terms(),
		"location": q.Location,
		"found":    len(listings),
	})
	return listings, nil
}

// enrich replaces the card snippet with the full description; a failed
// detail fetch keeps the card as scraped.
func (s *Indeed) enrich(ctx context.Context, l *models.JobListing) {
	html, err := s.fetcher.Fetch(ctx, l.URL)
	if err != nil {
		s.logger.Debug("Indeed detail fetch failed", map[string]interface{}{
			"job_url": l.URL,
			"error":   err.Error(),
		})
		return
	}

	desc, jobType := ParseIndeedDetails(html)
	if desc != "" {
		l.Description = desc
	}
	if jobType != "" {
		l.JobType = jobType
	}
}

// ParseIndeedResults extracts the job cards from a results page. Cards
// without a job key are dropped.
func ParseIndeedResults(html, baseURL string, now time.Time) ([]models.JobListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse indeed results: %w", err)
	}

	var out []models.JobListing
	seen := map[string]bool{}
	doc.Find("div.job_seen_beacon").Each(func(_ int, card *goquery.Selection) {
		l, ok := parseIndeedCard(card, baseURL, now)
		if !ok || seen[l.ExternalID] {
			return
		}
		seen[l.ExternalID] = true
		out = append(out, l)
	})
	return out, nil
}

func parseIndeedCard(card *goquery.Selection, baseURL string, now time.Time) (models.JobListing, bool) {
	heading := card.Find("h2.jobTitle").First()
	if heading.Length() == 0 {
		return models.JobListing{}, false
	}

	link := heading.Find("a").First()
	title := cleanText(heading.Text())
	jobKey := ""
	if link.Length() > 0 {
		title = cleanText(link.Text())
		jobKey = link.AttrOr("data-jk", "")
		if jobKey == "" {
			jobKey = strings.TrimPrefix(link.AttrOr("id", ""), "job_")
		}
	}
	if jobKey == "" || title == "" {
		return models.JobListing{}, false
	}

	posted := ParsePostedDate(firstText(card, "span.date", `[data-testid="myJobsStateDate"]`), now)

	return models.JobListing{
		Platform:    PlatformIndeed,
		ExternalID:  jobKey,
		CompanyName: orDefault(firstText(card, "span.companyName", `[data-testid="company-name"]`), "Unknown"),
		Title:       title,
		Location:    orDefault(firstText(card, "div.companyLocation", `[data-testid="text-location"]`), "Remote"),
		SalaryRange: firstText(card, "div.salary-snippet", ".salary-snippet-container"),
		JobType:     "Full-time",
		Description: firstText(card, "div.job-snippet"),
		URL:         baseURL + "/viewjob?jk=" + url.QueryEscape(jobKey),
		PostedAt:    &posted,
		ScrapedAt:   now,
		IsActive:    true,
	}, true
}

// ParseIndeedDetails reads the full description and the employment type
// from a job view page.
func ParseIndeedDetails(html string) (description, jobType string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}

	description = cleanText(doc.Find("#jobDescriptionText").First().Text())

	var meta []string
	doc.Find(".jobsearch-JobMetadataHeader-item, #jobDetailsSection li, [data-testid='jobsearch-OtherJobDetailsContainer'] li").Each(func(_ int, s *goquery.Selection) {
		meta = append(meta, cleanText(s.Text()))
	})
	if len(meta) > 0 {
		jobType = inferJobType(strings.Join(meta, " "))
	}
	return description, jobType
}

// firstText returns the text of the first selector that matches in s.
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if found := s.Find(sel).First(); found.Length() > 0 {
			if t := cleanText(found.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
