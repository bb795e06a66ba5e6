package firecrawl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mendableai/firecrawl-go"

	"jobpilot/internal/logging/types"
)

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestFetchRetries(t *testing.T) {
	tests := []struct {
		name      string
		responses []func() (*firecrawl.FirecrawlDocument, error)
		wantHTML  string
		wantCalls int
		wantErr   bool
	}{
		{
			name: "first attempt",
			responses: []func() (*firecrawl.FirecrawlDocument, error){
				func() (*firecrawl.FirecrawlDocument, error) {
					return &firecrawl.FirecrawlDocument{HTML: "<p>ok</p>"}, nil
				},
			},
			wantHTML:  "<p>ok</p>",
			wantCalls: 1,
		},
		{
			name: "recovers after errors",
			responses: []func() (*firecrawl.FirecrawlDocument, error){
				func() (*firecrawl.FirecrawlDocument, error) { return nil, errors.New("429") },
				func() (*firecrawl.FirecrawlDocument, error) {
					return &firecrawl.FirecrawlDocument{Markdown: "# only md"}, nil
				},
				func() (*firecrawl.FirecrawlDocument, error) {
					return &firecrawl.FirecrawlDocument{HTML: "<p>late</p>"}, nil
				},
			},
			wantHTML:  "<p>late</p>",
			wantCalls: 3,
		},
		{
			name: "gives up",
			responses: []func() (*firecrawl.FirecrawlDocument, error){
				func() (*firecrawl.FirecrawlDocument, error) { return nil, nil },
			},
			wantCalls: 3,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			scrape := func(url string, params *firecrawl.ScrapeParams) (*firecrawl.FirecrawlDocument, error) {
				if len(params.Formats) != 1 || params.Formats[0] != "html" {
					t.Errorf("formats = %v", params.Formats)
				}
				r := tt.responses[min(calls, len(tt.responses)-1)]
				calls++
				return r()
			}

			f := newFetcher(scrape, Config{}, types.NewNopLogger())
			f.backoff = time.Millisecond

			html, err := f.Fetch(context.Background(), "https://www.indeed.com/jobs?q=go")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if html != tt.wantHTML || calls != tt.wantCalls {
				t.Errorf("html = %q calls = %d", html, calls)
			}
		})
	}
}

func TestFetchStopsOnCancel(t *testing.T) {
	calls := 0
	scrape := func(string, *firecrawl.ScrapeParams) (*firecrawl.FirecrawlDocument, error) {
		calls++
		return nil, errors.New("timeout")
	}
	f := newFetcher(scrape, Config{MaxRetries: 5}, types.NewNopLogger())
	f.backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := f.Fetch(ctx, "https://example.com"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
