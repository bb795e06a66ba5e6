package automation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"jobpilot/internal/browser"
	"jobpilot/internal/captcha"
	"jobpilot/internal/credentials"
	"jobpilot/internal/logging/types"
	"jobpilot/pkg/models"
)

// Platform drives one job board's application flow. Steps run in order on a
// single page and share the Attempt.
type Platform interface {
	Name() string
	Login(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error)
	NavigateToJob(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error)
	FillForm(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error)
	UploadResume(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error)
	Submit(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error)
}

// Attempt carries the inputs of one application and the state the steps
// hand to each other.
type Attempt struct {
	JobURL     string
	Credential credentials.Credential
	Applicant  Applicant
	ResumePath string

	resumeAttached bool
	// form is the document holding the application form; a frame on some boards
	form browser.Page
}

func (a *Attempt) formScope(page browser.Page) browser.Page {
	if a.form != nil {
		return a.form
	}
	return page
}

// Applicant is the data typed into application forms
type Applicant struct {
	FullName        string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Location        string
	YearsExperience int
}

// NewApplicant derives form values from a profile. Zero years falls back to
// defaultYears.
func NewApplicant(p models.UserProfile, defaultYears int) Applicant {
	first, last := SplitName(p.FullName)
	years := p.YearsExperience
	if years <= 0 {
		years = defaultYears
	}
	return Applicant{
		FullName:        p.FullName,
		FirstName:       first,
		LastName:        last,
		Email:           p.Email,
		Phone:           p.Phone,
		Location:        p.Location,
		YearsExperience: years,
	}
}

// SplitName splits on the first space; a single word is the first name.
func SplitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i], strings.TrimSpace(full[i+1:])
	}
	return full, ""
}

// Options are shared by the built-in platforms
type Options struct {
	BaseURL      string
	ElementWait  time.Duration
	MaxFormSteps int
	Solver       captcha.Solver
	Logger       types.Logger
}

func (o Options) withDefaults(baseURL string) Options {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.ElementWait <= 0 {
		o.ElementWait = 20 * time.Second
	}
	if o.MaxFormSteps <= 0 {
		o.MaxFormSteps = 10
	}
	if o.Logger == nil {
		o.Logger = types.NewNopLogger()
	}
	return o
}

// Registry maps platform ids to implementations
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]Platform
}

func NewRegistry(platforms ...Platform) *Registry {
	r := &Registry{platforms: make(map[string]Platform)}
	for _, p := range platforms {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[strings.ToLower(p.Name())] = p
}

func (r *Registry) Get(name string) (Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.platforms[strings.ToLower(name)]
	return p, ok
}

// Names lists registered platform ids in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.platforms))
	for n := range r.platforms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
