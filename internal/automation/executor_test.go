package automation

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"jobpilot/internal/browser"
	"jobpilot/internal/browser/browsertest"
	"jobpilot/internal/captcha"
	"jobpilot/internal/credentials"
)

func TestMain(m *testing.M) {
	pollInterval = time.Millisecond
	os.Exit(m.Run())
}

const linkedInJob = "https://www.linkedin.com/jobs/view/123"

type linkedInScenario struct {
	fileInput    bool
	fileErr      error
	confirmation bool
}

// linkedInPage scripts a two-step Easy Apply flow behind a cookie session.
func linkedInPage(sc linkedInScenario) (*browsertest.Page, map[string]*browsertest.Element) {
	els := map[string]*browsertest.Element{
		"phone":  browsertest.NewElement("", "type", "tel", "name", "phone"),
		"email":  browsertest.NewElement("", "type", "email", "name", "email"),
		"years":  browsertest.NewElement("", "type", "text", "name", "yearsOfExperience"),
		"file":   browsertest.NewElement("", "type", "file"),
		"submit": browsertest.NewElement("Submit application"),
	}
	els["file"].FilesErr = sc.fileErr

	page := browsertest.NewPage()
	page.Routes["https://www.linkedin.com/feed/"] = func(*browsertest.Page) {}
	page.Routes[linkedInJob] = func(p *browsertest.Page) {
		apply := browsertest.NewElement("Easy Apply")
		apply.OnClick = func(p *browsertest.Page) {
			p.Add(`input[type="tel"]`, els["phone"])
			p.Add(`input[type="email"]`, els["email"])
			if sc.fileInput {
				p.Add(`input[type="file"]`, els["file"])
			}
			next := browsertest.NewElement("Next")
			next.OnClick = func(p *browsertest.Page) {
				p.Remove(`input[type="tel"]`)
				p.Remove(`input[type="email"]`)
				p.Remove(linkedInNextButton)
				p.Add(`input[type="text"]`, els["years"])
				p.Add(linkedInSubmitButton, els["submit"])
			}
			p.Add(linkedInNextButton, next)
		}
		p.Add(linkedInApplyButton, apply)
	}
	els["submit"].OnClick = func(p *browsertest.Page) {
		if sc.confirmation {
			p.Add(linkedInModalHeader, browsertest.NewElement("Application sent"))
		}
	}
	return page, els
}

func cookieAttempt() *Attempt {
	return &Attempt{
		JobURL:     linkedInJob,
		Credential: credentials.Credential{Cookies: []browser.Cookie{{Name: "li_at", Value: "x", Domain: ".linkedin.com"}}},
		Applicant:  testApplicant(),
		ResumePath: "/tmp/resume.pdf",
	}
}

func newTestExecutor(page *browsertest.Page, platforms ...Platform) *Executor {
	if len(platforms) == 0 {
		platforms = []Platform{NewLinkedIn(Options{ElementWait: 20 * time.Millisecond})}
	}
	return NewExecutor(NewRegistry(platforms...), &browsertest.Launcher{Page: page}, time.Minute, nil)
}

func TestExecutorLinkedInHappyPath(t *testing.T) {
	page, els := linkedInPage(linkedInScenario{fileInput: true, confirmation: true})
	a := cookieAttempt()

	rep, err := newTestExecutor(page).Apply(context.Background(), "LinkedIn", a)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rep.State != StateSubmitted || !rep.Confirmed {
		t.Errorf("state = %v confirmed = %v", rep.State, rep.Confirmed)
	}
	if len(rep.Degraded) != 0 {
		t.Errorf("degraded = %v", rep.Degraded)
	}
	if els["phone"].Value != "555-0100" || els["email"].Value != "jane@example.com" || els["years"].Value != "5" {
		t.Errorf("fields = %q %q %q", els["phone"].Value, els["email"].Value, els["years"].Value)
	}
	if len(els["file"].Files) != 1 || els["file"].Files[0] != "/tmp/resume.pdf" {
		t.Errorf("resume files = %v", els["file"].Files)
	}
	if len(page.Cookies) != 1 {
		t.Errorf("cookies not replayed")
	}
	if !page.Closed() {
		t.Error("page not released")
	}

	rep.Finish()
	if rep.State != StateDone {
		t.Errorf("Finish: state = %v", rep.State)
	}
}

func TestExecutorMissingUploadControlStillSubmits(t *testing.T) {
	page, _ := linkedInPage(linkedInScenario{fileInput: false, confirmation: false})

	rep, err := newTestExecutor(page).Apply(context.Background(), "linkedin", cookieAttempt())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rep.State != StateSubmitted {
		t.Fatalf("state = %v, want submitted", rep.State)
	}
	if rep.Confirmed {
		t.Error("confirmed without confirmation element")
	}

	var upload *StepRecord
	for i := range rep.Steps {
		if rep.Steps[i].State == StateResumeAttached {
			upload = &rep.Steps[i]
		}
	}
	if upload == nil || upload.Outcome != SkippedOptional.String() {
		t.Errorf("upload step = %+v", upload)
	}

	rep.Finish()
	if rep.State != StateDone {
		t.Errorf("state after Finish = %v", rep.State)
	}
}

func TestExecutorUploadErrorDegrades(t *testing.T) {
	page, _ := linkedInPage(linkedInScenario{fileInput: true, fileErr: errors.New("file too large"), confirmation: true})

	rep, err := newTestExecutor(page).Apply(context.Background(), "linkedin", cookieAttempt())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rep.State != StateSubmitted {
		t.Fatalf("state = %v", rep.State)
	}
	kinds := map[FailureKind]bool{}
	for _, f := range rep.Degraded {
		kinds[f.Kind] = true
	}
	if !kinds[UploadFailure] {
		t.Errorf("degraded kinds = %v, want upload failure", kinds)
	}
}

// funcPlatform lets tests script individual steps
type funcPlatform struct {
	login, nav, fill, upload, submit func(context.Context, browser.Page, *Attempt) (StepResult, error)
}

func call(f func(context.Context, browser.Page, *Attempt) (StepResult, error), ctx context.Context, p browser.Page, a *Attempt) (StepResult, error) {
	if f == nil {
		return done(""), nil
	}
	return f(ctx, p, a)
}

func (f *funcPlatform) Name() string { return "fake" }
func (f *funcPlatform) Login(ctx context.Context, p browser.Page, a *Attempt) (StepResult, error) {
	return call(f.login, ctx, p, a)
}
func (f *funcPlatform) NavigateToJob(ctx context.Context, p browser.Page, a *Attempt) (StepResult, error) {
	return call(f.nav, ctx, p, a)
}
func (f *funcPlatform) FillForm(ctx context.Context, p browser.Page, a *Attempt) (StepResult, error) {
	return call(f.fill, ctx, p, a)
}
func (f *funcPlatform) UploadResume(ctx context.Context, p browser.Page, a *Attempt) (StepResult, error) {
	return call(f.upload, ctx, p, a)
}
func (f *funcPlatform) Submit(ctx context.Context, p browser.Page, a *Attempt) (StepResult, error) {
	return call(f.submit, ctx, p, a)
}

func TestExecutorFailureKinds(t *testing.T) {
	boom := errors.New("boom")
	fail := func(context.Context, browser.Page, *Attempt) (StepResult, error) { return StepResult{}, boom }

	tests := []struct {
		name     string
		platform *funcPlatform
		kind     FailureKind
		state    State
	}{
		{"login", &funcPlatform{login: fail}, LoginFailure, StateLoggedIn},
		{"navigation", &funcPlatform{nav: fail}, NavigationFailure, StateOnJobPage},
		{"submit", &funcPlatform{submit: fail}, SubmissionFailure, StateSubmitted},
		{
			"typed failure keeps its kind",
			&funcPlatform{nav: func(context.Context, browser.Page, *Attempt) (StepResult, error) {
				return StepResult{}, Fail(LoginFailure, "session expired", nil)
			}},
			LoginFailure, StateOnJobPage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := browsertest.NewPage()
			rep, err := newTestExecutor(page, tt.platform).Apply(context.Background(), "fake", &Attempt{})

			var f *Failure
			if !errors.As(err, &f) {
				t.Fatalf("err = %v, want *Failure", err)
			}
			if f.Kind != tt.kind || f.State != tt.state {
				t.Errorf("failure = %s at %v, want %s at %v", f.Kind, f.State, tt.kind, tt.state)
			}
			if rep.State != StateFailed {
				t.Errorf("report state = %v", rep.State)
			}
			if !page.Closed() {
				t.Error("page not released")
			}
		})
	}
}

func TestExecutorFormFillFailureIsDegraded(t *testing.T) {
	p := &funcPlatform{fill: func(context.Context, browser.Page, *Attempt) (StepResult, error) {
		return StepResult{}, errors.New("select not answerable")
	}}

	rep, err := newTestExecutor(browsertest.NewPage(), p).Apply(context.Background(), "fake", &Attempt{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rep.State != StateSubmitted || len(rep.Degraded) != 1 || rep.Degraded[0].Kind != FormFillFailure {
		t.Errorf("report = %+v", rep)
	}
}

func TestExecutorUnsupportedPlatform(t *testing.T) {
	launcher := &browsertest.Launcher{}
	e := NewExecutor(NewRegistry(), launcher, time.Minute, nil)

	_, err := e.Apply(context.Background(), "monster", &Attempt{})
	if KindOf(err) != NavigationFailure {
		t.Errorf("kind = %v", KindOf(err))
	}
	if len(launcher.Opened()) != 0 {
		t.Error("page opened for unsupported platform")
	}
}

func TestExecutorSoftTimeout(t *testing.T) {
	page := browsertest.NewPage()
	p := &funcPlatform{nav: func(ctx context.Context, _ browser.Page, _ *Attempt) (StepResult, error) {
		<-ctx.Done()
		return StepResult{}, ctx.Err()
	}}
	e := NewExecutor(NewRegistry(p), &browsertest.Launcher{Page: page}, 20*time.Millisecond, nil)

	_, err := e.Apply(context.Background(), "fake", &Attempt{})
	if KindOf(err) != AttemptTimeout {
		t.Fatalf("kind = %v, err = %v", KindOf(err), err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err does not wrap deadline: %v", err)
	}
	if !page.Closed() {
		t.Error("page not released")
	}
}

func TestExecutorStuckFieldHitsDeadline(t *testing.T) {
	page, els := linkedInPage(linkedInScenario{fileInput: true, confirmation: true})
	released := make(chan struct{})
	els["phone"].InputFunc = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		close(released)
		return ctx.Err()
	}
	e := NewExecutor(
		NewRegistry(NewLinkedIn(Options{ElementWait: 20 * time.Millisecond})),
		&browsertest.Launcher{Page: page}, 50*time.Millisecond, nil,
	)

	rep, err := e.Apply(context.Background(), "linkedin", cookieAttempt())
	if KindOf(err) != AttemptTimeout {
		t.Fatalf("kind = %v, err = %v", KindOf(err), err)
	}
	if rep.State != StateFailed {
		t.Errorf("state = %v", rep.State)
	}
	select {
	case <-released:
	default:
		t.Error("input was not released by the deadline")
	}
	if els["submit"].Clicks != 0 {
		t.Error("submitted after the deadline")
	}
	if !page.Closed() {
		t.Error("page not released")
	}
}

type fakeSolver struct {
	token string
	calls int
}

func (s *fakeSolver) Solve(context.Context, captcha.Challenge, string) (string, error) {
	s.calls++
	return s.token, nil
}

func TestLinkedInPasswordLogin(t *testing.T) {
	const feed = "https://www.linkedin.com/feed/"

	tests := []struct {
		name      string
		afterForm func(p *browsertest.Page)
		solver    *fakeSolver
		wantErr   bool
	}{
		{
			name:      "redirects to feed",
			afterForm: func(p *browsertest.Page) { p.CurrentURL = feed },
		},
		{
			name: "checkpoint without solver",
			afterForm: func(p *browsertest.Page) {
				p.CurrentURL = "https://www.linkedin.com/checkpoint/challenge/123"
			},
			wantErr: true,
		},
		{
			name: "recaptcha solved",
			afterForm: func(p *browsertest.Page) {
				p.CurrentURL = "https://www.linkedin.com/checkpoint/challenge/123"
				p.Body = `<div class="g-recaptcha" data-sitekey="6Lc-key"></div>`
				p.EvalFunc = func(string) (string, error) {
					p.CurrentURL = feed
					return "ok", nil
				}
			},
			solver: &fakeSolver{token: "tok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := browsertest.NewPage()
			user := browsertest.NewElement("", "id", "username")
			pass := browsertest.NewElement("", "id", "password")
			submit := browsertest.NewElement("Sign in")
			submit.OnClick = tt.afterForm
			page.Routes["https://www.linkedin.com/login"] = func(p *browsertest.Page) {
				p.Add("#username", user)
				p.Add("#password", pass)
				p.Add(`button[type="submit"]`, submit)
			}

			opts := Options{ElementWait: 10 * time.Millisecond}
			if tt.solver != nil {
				opts.Solver = tt.solver
			}
			l := NewLinkedIn(opts)
			a := &Attempt{Credential: credentials.Credential{Username: "jane@example.com", Password: "pw"}}

			_, err := l.Login(context.Background(), page, a)
			if tt.wantErr {
				if KindOf(err) != LoginFailure {
					t.Fatalf("err = %v, want login failure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			if user.Value != "jane@example.com" || pass.Value != "pw" {
				t.Errorf("typed %q / %q", user.Value, pass.Value)
			}
			if tt.solver != nil && tt.solver.calls != 1 {
				t.Errorf("solver calls = %d", tt.solver.calls)
			}
		})
	}
}

func TestLinkedInNoCredentials(t *testing.T) {
	_, err := NewLinkedIn(Options{}).Login(context.Background(), browsertest.NewPage(), &Attempt{})
	if KindOf(err) != LoginFailure {
		t.Errorf("err = %v", err)
	}
}

func TestLinkedInMissingApplyButton(t *testing.T) {
	page := browsertest.NewPage()
	_, err := NewLinkedIn(Options{ElementWait: time.Millisecond}).NavigateToJob(context.Background(), page, &Attempt{JobURL: linkedInJob})
	if KindOf(err) != NavigationFailure {
		t.Errorf("err = %v", err)
	}
}
