package scraper

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"jobpilot/internal/config"
	"jobpilot/internal/scraper/engines/firecrawl"
	"jobpilot/internal/scraper/throttle"
)

var now = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Engine() string { return "fake" }

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	html, ok := f.pages[url]
	if !ok {
		return "", errors.New("unexpected url " + url)
	}
	return html, nil
}

const indeedResults = `<html><body>
<div class="job_seen_beacon">
  <h2 class="jobTitle"><a data-jk="abc123" href="/rc/clk?jk=abc123"><span>Senior Python Backend Engineer</span></a></h2>
  <span class="companyName">Acme Corp</span>
  <div class="companyLocation">Remote</div>
  <div class="salary-snippet">$120,000 - $150,000 a year</div>
  <div class="job-snippet"><ul><li>Build APIs with   Python and Django</li></ul></div>
  <span class="date">3 days ago</span>
</div>
<div class="job_seen_beacon">
  <h2 class="jobTitle"><a id="job_def456">Data Engineer</a></h2>
  <span class="date">Just posted</span>
</div>
<div class="job_seen_beacon"><h2 class="jobTitle">Card without a link</h2></div>
<div class="job_seen_beacon"><h2 class="jobTitle"><a data-jk="abc123">Duplicate card</a></h2></div>
</body></html>`

const indeedDetails = `<html><body>
<div class="jobsearch-JobMetadataHeader-item">Contract</div>
<div id="jobDescriptionText"><p>We are hiring a senior backend engineer.</p>
<p>` + "You will design Python services, PostgreSQL schemas and Kubernetes deployments for our payments platform, " +
	"mentor engineers and own reliability for customer-facing APIs across several regions." + `</p></div>
</body></html>`

func TestParseIndeedResults(t *testing.T) {
	got, err := ParseIndeedResults(indeedResults, "https://www.indeed.com", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2: %+v", len(got), got)
	}

	first := got[0]
	if first.ExternalID != "abc123" || first.Title != "Senior Python Backend Engineer" || first.CompanyName != "Acme Corp" {
		t.Errorf("first = %+v", first)
	}
	if first.URL != "https://www.indeed.com/viewjob?jk=abc123" || first.Platform != PlatformIndeed {
		t.Errorf("url/platform = %s %s", first.URL, first.Platform)
	}
	if first.Description != "Build APIs with Python and Django" || first.SalaryRange != "$120,000 - $150,000 a year" {
		t.Errorf("description/salary = %q %q", first.Description, first.SalaryRange)
	}
	if first.PostedAt == nil || !first.PostedAt.Equal(now.AddDate(0, 0, -3)) {
		t.Errorf("posted = %v", first.PostedAt)
	}
	if !first.IsActive || !first.ScrapedAt.Equal(now) {
		t.Errorf("active/scraped = %v %v", first.IsActive, first.ScrapedAt)
	}

	second := got[1]
	if second.ExternalID != "def456" || second.CompanyName != "Unknown" || second.Location != "Remote" {
		t.Errorf("second = %+v", second)
	}
}

func TestParseIndeedDetails(t *testing.T) {
	desc, jobType := ParseIndeedDetails(indeedDetails)
	if !strings.HasPrefix(desc, "We are hiring a senior backend engineer.") || len(desc) < enrichBelow {
		t.Errorf("description = %q", desc)
	}
	if jobType != "Contract" {
		t.Errorf("job type = %q", jobType)
	}

	if desc, jobType := ParseIndeedDetails("<html></html>"); desc != "" || jobType != "" {
		t.Errorf("empty page = %q %q", desc, jobType)
	}
}

func TestIndeedSearchEnrichesShortCards(t *testing.T) {
	ff := &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}}
	src := NewIndeed("https://www.indeed.com/", ff, 20, nil)
	src.now = func() time.Time { return now }

	q := Query{JobTitle: "Backend Engineer", Location: "Remote", Keywords: []string{"python", " "}}
	ff.pages[src.SearchURL(q)] = indeedResults
	ff.pages["https://www.indeed.com/viewjob?jk=abc123"] = indeedDetails
	ff.errs["https://www.indeed.com/viewjob?jk=def456"] = errors.New("status 403")

	got, err := src.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings", len(got))
	}
	if got[0].JobType != "Contract" || !strings.Contains(got[0].Description, "payments platform") {
		t.Errorf("enriched = %+v", got[0])
	}
	if got[1].JobType != "Full-time" || got[1].Description != "" {
		t.Errorf("failed enrichment changed card: %+v", got[1])
	}
	if !strings.Contains(ff.calls[0], "q=Backend+Engineer+python") || !strings.Contains(ff.calls[0], "fromage=7") {
		t.Errorf("search url = %s", ff.calls[0])
	}
}

func TestIndeedSearchMaxResults(t *testing.T) {
	ff := &fakeFetcher{pages: map[string]string{}}
	src := NewIndeed("https://www.indeed.com", ff, 1, nil)
	q := Query{JobTitle: "Engineer"}
	ff.pages[src.SearchURL(q)] = indeedResults
	ff.pages["https://www.indeed.com/viewjob?jk=abc123"] = indeedDetails

	got, err := src.Search(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(ff.calls) != 2 {
		t.Errorf("listings = %d, fetches = %v", len(got), ff.calls)
	}
}

func TestSearchDetectsChallengePage(t *testing.T) {
	ff := &fakeFetcher{pages: map[string]string{}}
	src := NewIndeed("https://www.indeed.com", ff, 20, nil)
	q := Query{JobTitle: "Engineer"}

	ff.pages[src.SearchURL(q)] = `<html><body><div class="g-recaptcha" data-sitekey="6Lc-key"></div></body></html>`
	if _, err := src.Search(context.Background(), q); !errors.Is(err, ErrChallenge) {
		t.Errorf("err = %v, want ErrChallenge", err)
	}

	ff.pages[src.SearchURL(q)] = `<html><body><p>No jobs found</p></body></html>`
	got, err := src.Search(context.Background(), q)
	if err != nil || len(got) != 0 {
		t.Errorf("empty page = %v, %v", got, err)
	}
}

const linkedInResults = `<html><body><ul class="jobs-search__results-list">
<li><div class="base-card job-search-card" data-entity-urn="urn:li:jobPosting:3812345678">
  <a class="base-card__full-link" href="https://www.linkedin.com/jobs/view/senior-backend-engineer-at-acme-3812345678?refId=abc&trackingId=xyz"></a>
  <h3 class="base-search-card__title">
     Senior Backend Engineer
  </h3>
  <h4 class="base-search-card__subtitle"><a>Acme</a></h4>
  <span class="job-search-card__location">New York, NY</span>
  <span class="job-search-card__salary-info">$150K - $180K</span>
  <time class="job-search-card__listdate" datetime="2026-02-27">4 days ago</time>
</div></li>
<li><div class="base-card job-search-card">
  <a class="base-card__full-link" href="https://www.linkedin.com/company/acme"></a>
  <h3 class="base-search-card__title">Company page</h3>
</div></li>
<li><div class="base-card job-search-card" data-entity-urn="urn:li:jobPosting:999">
  <a class="base-card__full-link" href="https://www.linkedin.com/jobs/collections/recommended/"></a>
  <h3 class="base-search-card__title">Platform Engineer</h3>
  <time class="job-search-card__listdate--new">2 hours ago</time>
</div></li>
</ul></body></html>`

const linkedInDetails = `<html><body>
<div class="show-more-less-html__markup">Own our Go services and <b>Postgres</b> data layer.</div>
<ul>
  <li class="description__job-criteria-item"><h3 class="description__job-criteria-subheader">Seniority level</h3><span class="description__job-criteria-text">Mid-Senior level</span></li>
  <li class="description__job-criteria-item"><h3 class="description__job-criteria-subheader">Employment type</h3><span class="description__job-criteria-text"> Contract </span></li>
</ul></body></html>`

func TestParseLinkedInResults(t *testing.T) {
	got, err := ParseLinkedInResults(linkedInResults, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings: %+v", len(got), got)
	}

	first := got[0]
	if first.ExternalID != "3812345678" || first.URL != "https://www.linkedin.com/jobs/view/3812345678" {
		t.Errorf("id/url = %s %s", first.ExternalID, first.URL)
	}
	if first.Title != "Senior Backend Engineer" || first.CompanyName != "Acme" || first.Location != "New York, NY" {
		t.Errorf("first = %+v", first)
	}
	if first.PostedAt == nil || !first.PostedAt.Equal(time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("posted = %v", first.PostedAt)
	}

	second := got[1]
	if second.ExternalID != "999" || !second.PostedAt.Equal(now.Add(-2*time.Hour)) {
		t.Errorf("second = %+v", second)
	}
}

func TestParseLinkedInDetails(t *testing.T) {
	desc, jobType := ParseLinkedInDetails(linkedInDetails)
	if desc != "Own our Go services and Postgres data layer." {
		t.Errorf("description = %q", desc)
	}
	if jobType != "Contract" {
		t.Errorf("job type = %q", jobType)
	}
}

func TestLinkedInSearch(t *testing.T) {
	ff := &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}}
	src := NewLinkedIn("https://www.linkedin.com", ff, 20, nil)
	src.now = func() time.Time { return now }
	q := Query{JobTitle: "Backend Engineer", Location: "New York"}

	ff.pages[src.SearchURL(q)] = linkedInResults
	ff.pages["https://www.linkedin.com/jobs/view/3812345678"] = linkedInDetails
	ff.errs["https://www.linkedin.com/jobs/collections/recommended/"] = errors.New("authwall")

	got, err := src.Search(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].JobType != "Contract" || got[0].Description == "" {
		t.Errorf("listings = %+v", got)
	}
	if !strings.Contains(ff.calls[0], "f_TPR=r604800") || !strings.Contains(ff.calls[0], "keywords=Backend+Engineer") {
		t.Errorf("search url = %s", ff.calls[0])
	}
}

func TestParsePostedDate(t *testing.T) {
	tests := []struct {
		text string
		want time.Time
	}{
		{"Just posted", now},
		{"Today", now},
		{"Posted Yesterday", now.AddDate(0, 0, -1)},
		{"Posted 3 days ago", now.AddDate(0, 0, -3)},
		{"30+ days ago", now.AddDate(0, 0, -30)},
		{"5 hours ago", now.Add(-5 * time.Hour)},
		{"2 weeks ago", now.AddDate(0, 0, -14)},
		{"1 month ago", now.AddDate(0, -1, 0)},
		{"Hiring ongoing", now},
		{"", now},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ParsePostedDate(tt.text, now); !got.Equal(tt.want) {
				t.Errorf("ParsePostedDate(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestQueryTerms(t *testing.T) {
	q := Query{JobTitle: " Go Developer ", Keywords: []string{"kubernetes", "", "grpc"}}
	if got := q.Terms(); got != "Go Developer kubernetes grpc" {
		t.Errorf("Terms() = %q", got)
	}
}

func TestThrottledOpensCircuit(t *testing.T) {
	boom := errors.New("status 503")
	ff := &fakeFetcher{errs: map[string]error{"https://jobs.example.com/a": boom}}
	lim := throttle.New(throttle.Config{RequestsPerMinute: 6000, Burst: 10, MaxFailures: 2}, nil)
	f := NewThrottled(ff, lim)

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), "https://jobs.example.com/a"); !errors.Is(err, boom) {
			t.Fatalf("fetch %d: err = %v", i, err)
		}
	}
	if _, err := f.Fetch(context.Background(), "https://jobs.example.com/a"); !errors.Is(err, throttle.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if len(ff.calls) != 2 {
		t.Errorf("fetcher called %d times", len(ff.calls))
	}
	if f.Engine() != "fake" {
		t.Errorf("engine = %s", f.Engine())
	}
}

func TestFactorySources(t *testing.T) {
	tests := []struct {
		name      string
		engines   map[string]string
		platforms []string
		wantErr   error
		errText   string
	}{
		{"http boards", map[string]string{"Indeed": "http", "linkedin": "http", "glassdoor": "http"}, []string{"indeed", "linkedin"}, nil, ""},
		{"headed without browser", map[string]string{"linkedin": "headed"}, nil, nil, "no browser"},
		{"firecrawl without key", map[string]string{"indeed": "firecrawl"}, nil, firecrawl.ErrNotConfigured, ""},
		{"unknown engine", map[string]string{"indeed": "carrier-pigeon"}, nil, nil, "unsupported scraping engine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Scraper.Engines = tt.engines

			reg, err := NewFactory(cfg, nil, nil, nil).Sources()
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.errText != "":
				if err == nil || !strings.Contains(err.Error(), tt.errText) {
					t.Fatalf("err = %v, want %q", err, tt.errText)
				}
				return
			case err != nil:
				t.Fatal(err)
			}

			if got := reg.Platforms(); strings.Join(got, ",") != strings.Join(tt.platforms, ",") {
				t.Errorf("platforms = %v, want %v", got, tt.platforms)
			}
			if _, ok := reg.Get(" INDEED "); !ok {
				t.Error("lookup is not case-insensitive")
			}
		})
	}
}
