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
	"jobpilot/pkg/utils"
)

const PlatformLinkedIn = "linkedin"

// LinkedIn searches the public jobs search page. Cards there carry no
// description, so every kept card gets a detail fetch.
type LinkedIn struct {
	baseURL    string
	fetcher    Fetcher
	maxResults int
	now        func() time.Time
	logger     types.Logger
}

func NewLinkedIn(baseURL string, fetcher Fetcher, maxResults int, logger types.Logger) *LinkedIn {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	if maxResults <= 0 {
		maxResults = 20
	}
	return &LinkedIn{
		baseURL:    strings.TrimRight(baseURL, "/"),
		fetcher:    fetcher,
		maxResults: maxResults,
		now:        time.Now,
		logger:     logger.WithFields(map[string]interface{}{"source": PlatformLinkedIn, "engine": fetcher.Engine()}),
	}
}

func (s *LinkedIn) Platform() string { return PlatformLinkedIn }

// SearchURL filters to the last week and entry or mid-senior level.
func (s *LinkedIn) SearchURL(q Query) string {
	v := url.Values{}
	v.Set("keywords", q.Terms())
	v.Set("location", q.Location)
	v.Set("f_TPR", "r604800")
	v.Set("f_E", "2,3")
	return s.baseURL + "/jobs/search/?" + v.Encode()
}

func (s *LinkedIn) Search(ctx context.Context, q Query) ([]models.JobListing, error) {
	searchURL := s.SearchURL(q)
	html, err := s.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("linkedin search: %w", err)
	}

	listings, err := ParseLinkedInResults(html, s.now())
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 && captcha.Detect(searchURL, html).Kind != captcha.KindNone {
		return nil, fmt.Errorf("linkedin search: %w", ErrChallenge)
	}
	if len(listings) > s.maxResults {
		listings = listings[:s.maxResults]
	}

	for i := range listings {
		if len(listings[i].Description) >= enrichBelow {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		detail, err := s.fetcher.Fetch(ctx, listings[i].URL)
		if err != nil {
			s.logger.Debug("LinkedIn detail fetch failed", map[string]interface{}{
				"job_url": listings[i].URL,
				"error":   err.Error(),
			})
			continue
		}
		desc, jobType := ParseLinkedInDetails(detail)
		if desc != "" {
			listings[i].Description = desc
		}
		if jobType != "" {
			listings[i].JobType = jobType
		}
	}

	s.logger.Info("LinkedIn search finished", map[string]interface{}{
		"query":    q.Terms(),
		"location": q.Location,
		"found":    len(listings),
	})
	return listings, nil
}

// ParseLinkedInResults extracts job cards from the public search page.
func ParseLinkedInResults(html string, now time.Time) ([]models.JobListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse linkedin results: %w", err)
	}

	cards := doc.Find(".job-search-card")
	if cards.Length() == 0 {
		cards = doc.Find(".base-card")
	}

	var out []models.JobListing
	seen := map[string]bool{}
	cards.Each(func(_ int, card *goquery.Selection) {
		l, ok := parseLinkedInCard(card, now)
		if !ok || seen[l.ExternalID] {
			return
		}
		seen[l.ExternalID] = true
		out = append(out, l)
	})
	return out, nil
}

func parseLinkedInCard(card *goquery.Selection, now time.Time) (models.JobListing, bool) {
	href := strings.TrimSpace(card.Find("a.base-card__full-link").First().AttrOr("href", ""))
	if href == "" {
		return models.JobListing{}, false
	}

	id := ""
	if info, err := utils.ParseJobURL(href); err == nil {
		id = info.JobID
	}
	if id == "" {
		if urn := card.AttrOr("data-entity-urn", ""); strings.HasPrefix(urn, "urn:li:jobPosting:") {
			id = strings.TrimPrefix(urn, "urn:li:jobPosting:")
		}
	}
	title := firstText(card, ".base-search-card__title")
	if id == "" || title == "" {
		return models.JobListing{}, false
	}

	posted := now
	if dt := card.Find("time.job-search-card__listdate, time.job-search-card__listdate--new").First(); dt.Length() > 0 {
		if t, ok := parseListDate(dt.AttrOr("datetime", "")); ok {
			posted = t
		} else {
			posted = ParsePostedDate(dt.Text(), now)
		}
	}

	return models.JobListing{
		Platform:    PlatformLinkedIn,
		ExternalID:  id,
		CompanyName: orDefault(firstText(card, ".base-search-card__subtitle"), "Unknown"),
		Title:       title,
		Location:    firstText(card, ".job-search-card__location"),
		SalaryRange: firstText(card, ".job-search-card__salary-info"),
		JobType:     "Full-time",
		URL:         utils.CanonicalJobURL(href),
		PostedAt:    &posted,
		ScrapedAt:   now,
		IsActive:    true,
	}, true
}

// ParseLinkedInDetails reads the description and "Employment type"
// criterion from a public job page.
func ParseLinkedInDetails(html string) (description, jobType string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}

	description = cleanText(doc.Find(".show-more-less-html__markup").First().Text())
	doc.Find(".description__job-criteria-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		label := cleanText(item.Find(".description__job-criteria-subheader").Text())
		if !strings.Contains(strings.ToLower(label), "employment type") {
			return true
		}
		jobType = cleanText(item.Find(".description__job-criteria-text").Text())
		return false
	})
	return description, jobType
}
