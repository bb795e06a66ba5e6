package applicator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"jobpilot/internal/automation"
	"jobpilot/internal/browser"
	"jobpilot/internal/browser/browsertest"
	"jobpilot/internal/credentials"
	"jobpilot/internal/lock"
	"jobpilot/internal/ratelimit"
	"jobpilot/internal/store"
	"jobpilot/pkg/models"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeRates struct {
	decide func(userID, platform string) (ratelimit.Decision, error)
}

func (f *fakeRates) CanApply(_ context.Context, userID, platform string) (ratelimit.Decision, error) {
	if f.decide == nil {
		return ratelimit.Decision{Allowed: true}, nil
	}
	return f.decide(userID, platform)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []*automation.Attempt
	apply func(ctx context.Context, platform string, a *automation.Attempt) (automation.Report, error)
}

func (f *fakeRunner) Apply(ctx context.Context, platform string, a *automation.Attempt) (automation.Report, error) {
	f.mu.Lock()
	f.calls = append(f.calls, a)
	f.mu.Unlock()
	if f.apply == nil {
		return automation.Report{Platform: platform, State: automation.StateSubmitted, Confirmed: true}, nil
	}
	return f.apply(ctx, platform, a)
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type credsFunc func(ctx context.Context, userID, platform string) (credentials.Credential, error)

func (f credsFunc) Credential(ctx context.Context, userID, platform string) (credentials.Credential, error) {
	return f(ctx, userID, platform)
}

var anyCreds = credsFunc(func(context.Context, string, string) (credentials.Credential, error) {
	return credentials.Credential{Username: "jane@example.com", Password: "secret"}, nil
})

type recordingSink struct {
	mu   sync.Mutex
	sent []models.ApplicationSummary
}

func (s *recordingSink) Notify(_ context.Context, _ string, summary models.ApplicationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, summary)
	return nil
}

type fixture struct {
	st     *store.MemoryStore
	rates  *fakeRates
	runner *fakeRunner
	sink   *recordingSink
	locker *lock.LocalLocker
	app    *Applicator
}

func newFixture(t *testing.T, runner Runner, creds credentials.Provider, opts Options) *fixture {
	t.Helper()

	st := store.NewMemoryStore()
	st.PutUser(models.UserProfile{ID: "u1", FullName: "Jane Doe", Email: "jane@example.com", YearsExperience: 5})
	st.SetUsage("u1", models.Usage{Used: 0, Limit: 10})
	st.PutResume(models.Resume{ID: "r1", UserID: "u1", Filename: "jane.pdf", IsDefault: true, Content: []byte("%PDF-1.4")})

	f := &fixture{
		st:     st,
		rates:  &fakeRates{},
		sink:   &recordingSink{},
		locker: lock.NewLocalLocker(),
	}
	if runner == nil {
		f.runner = &fakeRunner{}
		runner = f.runner
	}
	if creds == nil {
		creds = anyCreds
	}
	opts.ResumeDir = t.TempDir()
	f.app = New(st, f.rates, runner, creds, f.locker, f.sink, opts, nil)
	f.app.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) enqueue(t *testing.T, platform, url string) models.QueueItem {
	t.Helper()
	item := models.QueueItem{
		UserID:       "u1",
		Platform:     platform,
		CompanyName:  "Acme",
		Title:        "Backend Engineer",
		URL:          url,
		Status:       models.QueueStatusPending,
		Priority:     6,
		ScheduledFor: testNow,
		MaxRetries:   3,
	}
	if err := f.st.CreateQueueItemIfAbsent(context.Background(), &item); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return item
}

func (f *fixture) reload(t *testing.T, id string) models.QueueItem {
	t.Helper()
	it, err := f.st.GetQueueItem(context.Background(), id)
	if err != nil {
		t.Fatalf("GetQueueItem: %v", err)
	}
	return it
}

func (f *fixture) logsFor(t *testing.T, itemID string) []models.AutomationLog {
	t.Helper()
	all, _, err := f.st.ListLogs(context.Background(), store.LogFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	var out []models.AutomationLog
	for _, l := range all {
		if l.QueueItemID == itemID {
			out = append(out, l)
		}
	}
	return out
}

func TestProcessApplied(t *testing.T) {
	tests := []struct {
		name      string
		confirmed bool
		logStatus string
	}{
		{"confirmed", true, models.LogStatusSuccess},
		{"soft success", false, models.LogStatusWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var staged string
			runner := &fakeRunner{apply: func(_ context.Context, platform string, a *automation.Attempt) (automation.Report, error) {
				b, err := os.ReadFile(a.ResumePath)
				if err != nil || string(b) != "%PDF-1.4" {
					t.Errorf("resume not staged: %v", err)
				}
				staged = a.ResumePath
				if a.Applicant.FirstName != "Jane" {
					t.Errorf("applicant = %+v", a.Applicant)
				}
				return automation.Report{Platform: platform, State: automation.StateSubmitted, Confirmed: tt.confirmed}, nil
			}}
			f := newFixture(t, runner, nil, Options{})
			item := f.enqueue(t, "linkedin", "https://www.linkedin.com/jobs/view/1")

			res := f.app.Process(context.Background(), item, nil)
			if res.Outcome != OutcomeApplied {
				t.Fatalf("outcome = %s (%s)", res.Outcome, res.Message)
			}
			if res.Report.State != automation.StateDone {
				t.Errorf("report state = %s, want done", res.Report.State)
			}

			got := f.reload(t, item.ID)
			if got.Status != models.QueueStatusApplied || got.CompletedAt == nil {
				t.Errorf("item = %+v", got)
			}

			usage, _ := f.st.Usage(context.Background(), "u1")
			if usage.Used != 1 {
				t.Errorf("usage = %d, want 1", usage.Used)
			}
			if _, ok := f.st.ResumeLastUsed("r1"); !ok {
				t.Error("resume last-used not touched")
			}
			if _, err := os.Stat(staged); !os.IsNotExist(err) {
				t.Errorf("staged resume %s left behind", staged)
			}

			apps, _ := f.st.ListApplicationsSince(context.Background(), "u1", time.Time{})
			if len(apps) != 1 || apps[0].QueueItemID != item.ID || apps[0].ResumeID != "r1" {
				t.Errorf("applications = %+v", apps)
			}

			if len(f.sink.sent) != 1 || f.sink.sent[0].Submitted != 1 {
				t.Errorf("notifications = %+v", f.sink.sent)
			}

			logs := f.logsFor(t, item.ID)
			if len(logs) != 1 || logs[0].Status != tt.logStatus || logs[0].ActionType != models.ActionJobApply {
				t.Fatalf("logs = %+v", logs)
			}
			if logs[0].Details["company_name"] != "Acme" {
				t.Errorf("details = %v", logs[0].Details)
			}
		})
	}
}

func TestProcessRetryUntilTerminal(t *testing.T) {
	runner := &fakeRunner{apply: func(_ context.Context, platform string, _ *automation.Attempt) (automation.Report, error) {
		return automation.Report{Platform: platform, State: automation.StateFailed},
			automation.Fail(automation.LoginFailure, "login rejected", nil)
	}}
	f := newFixture(t, runner, nil, Options{RetryBackoff: time.Hour})
	item := f.enqueue(t, "linkedin", "https://www.linkedin.com/jobs/view/2")

	want := []struct {
		outcome Outcome
		status  models.QueueStatus
	}{
		{OutcomeRetry, models.QueueStatusPending},
		{OutcomeRetry, models.QueueStatusPending},
		{OutcomeFailed, models.QueueStatusFailed},
	}

	for i, w := range want {
		res := f.app.Process(context.Background(), f.reload(t, item.ID), nil)
		if res.Outcome != w.outcome || res.Kind != automation.LoginFailure {
			t.Fatalf("attempt %d: outcome = %s kind = %s", i+1, res.Outcome, res.Kind)
		}
		got := f.reload(t, item.ID)
		if got.Status != w.status || got.RetryCount != i+1 {
			t.Fatalf("attempt %d: status = %s retry = %d", i+1, got.Status, got.RetryCount)
		}
		if w.status == models.QueueStatusPending && !got.ScheduledFor.Equal(testNow.Add(time.Hour)) {
			t.Errorf("attempt %d: scheduled_for = %v", i+1, got.ScheduledFor)
		}
		if !strings.Contains(got.ErrorMessage, "login rejected") {
			t.Errorf("attempt %d: error message = %q", i+1, got.ErrorMessage)
		}
	}

	logs := f.logsFor(t, item.ID)
	if len(logs) != 3 || logs[0].Details["error_kind"] != string(automation.LoginFailure) {
		t.Errorf("logs = %+v", logs)
	}
}

func TestProcessRateLimitedKeepsRetryCount(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	f.rates.decide = func(string, string) (ratelimit.Decision, error) {
		return ratelimit.Decision{Reason: "Please wait 90 seconds between applications", Wait: 90 * time.Second}, nil
	}
	item := f.enqueue(t, "indeed", "https://www.indeed.com/viewjob?jk=1")

	res := f.app.Process(context.Background(), item, nil)
	if res.Outcome != OutcomeRateLimited || res.Kind != automation.RateLimitExceeded {
		t.Fatalf("result = %+v", res)
	}
	if f.runner.Calls() != 0 {
		t.Error("runner called despite rate limit")
	}

	got := f.reload(t, item.ID)
	if got.Status != models.QueueStatusPending || got.RetryCount != 0 {
		t.Errorf("item = %s retry %d", got.Status, got.RetryCount)
	}
	if !got.ScheduledFor.Equal(testNow.Add(90 * time.Second)) {
		t.Errorf("scheduled_for = %v", got.ScheduledFor)
	}
	logs := f.logsFor(t, item.ID)
	if len(logs) != 1 || logs[0].ActionType != models.ActionQueueUpdate || logs[0].Details["wait_seconds"] != 90 {
		t.Errorf("logs = %+v", logs)
	}
}

func TestProcessSubscriptionSkipBlocksUser(t *testing.T) {
	tests := []struct {
		name    string
		usage   models.Usage
		message string
	}{
		{"exhausted", models.Usage{Used: 10, Limit: 10}, "Application limit reached for subscription"},
		{"over limit", models.Usage{Used: 12, Limit: 10}, "Application limit reached for subscription"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil, Options{})
			f.st.SetUsage("u1", tt.usage)
			first := f.enqueue(t, "linkedin", "https://www.linkedin.com/jobs/view/10")
			second := f.enqueue(t, "indeed", "https://www.indeed.com/viewjob?jk=10")

			sweep := NewSweep()
			res := f.app.Process(context.Background(), first, sweep)
			if res.Outcome != OutcomeSkipped || res.Kind != automation.SubscriptionLimitReached || res.Message != tt.message {
				t.Fatalf("first = %+v", res)
			}
			if got := f.reload(t, first.ID); got.Status != models.QueueStatusSkipped || got.RetryCount != 0 {
				t.Errorf("first item = %s retry %d", got.Status, got.RetryCount)
			}

			res = f.app.Process(context.Background(), second, sweep)
			if res.Outcome != OutcomeDeferred {
				t.Fatalf("second = %+v, want deferred", res)
			}
			if got := f.reload(t, second.ID); got.Status != models.QueueStatusPending {
				t.Errorf("second item = %s, want pending", got.Status)
			}
			if f.runner.Calls() != 0 {
				t.Error("runner called for a user without quota")
			}
		})
	}
}

func TestProcessWithoutSubscriptionApplies(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	f.st = store.NewMemoryStore()
	f.st.PutUser(models.UserProfile{ID: "u1", FullName: "Jane Doe"})
	f.st.PutResume(models.Resume{ID: "r1", UserID: "u1", Filename: "jane.pdf", IsDefault: true, Content: []byte("%PDF-1.4")})
	f.app.store = f.st
	item := f.enqueue(t, "linkedin", "https://www.linkedin.com/jobs/view/11")

	res := f.app.Process(context.Background(), item, nil)
	if res.Outcome != OutcomeApplied {
		t.Fatalf("result = %+v, want applied", res)
	}
	if got := f.reload(t, item.ID); got.Status != models.QueueStatusApplied {
		t.Errorf("item = %s", got.Status)
	}
	if _, err := f.st.Usage(context.Background(), "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("usage row created for an unmetered user: %v", err)
	}
}

func TestProcessMissingCredentialBlocksPlatform(t *testing.T) {
	creds := credsFunc(func(_ context.Context, _, platform string) (credentials.Credential, error) {
		if platform == "linkedin" {
			return credentials.Credential{}, credentials.ErrMissing
		}
		return credentials.Credential{Username: "jane", Password: "pw"}, nil
	})
	f := newFixture(t, nil, creds, Options{})
	li1 := f.enqueue(t, "linkedin", "https://www.linkedin.com/jobs/view/20")
	li2 := f.enqueue(t, "linkedin", "https://www.linkedin.com/jobs/view/21")
	in1 := f.enqueue(t, "indeed", "https://www.indeed.com/viewjob?jk=20")

	sweep := NewSweep()
	if res := f.app.Process(context.Background(), li1, sweep); res.Outcome != OutcomeSkipped || res.Kind != automation.CredentialMissing {
		t.Fatalf("li1 = %+v", res)
	}
	if res := f.app.Process(context.Background(), li2, sweep); res.Outcome != OutcomeDeferred {
		t.Fatalf("li2 = %+v, want deferred", res)
	}
	if res := f.app.Process(context.Background(), in1, sweep); res.Outcome != OutcomeApplied {
		t.Fatalf("in1 = %+v, want applied", res)
	}

	logs := f.logsFor(t, li1.ID)
	if len(logs) != 1 || logs[0].Details["error_kind"] != string(automation.CredentialMissing) {
		t.Errorf("logs = %+v", logs)
	}
}

func TestProcessUnreadableCredentialSkips(t *testing.T) {
	creds := credsFunc(func(_ context.Context, _, platform string) (credentials.Credential, error) {
		return credentials.Credential{}, fmt.Errorf("%w: decrypt password: %w", credentials.ErrUnreadable, errors.New("cipher: message authentication failed"))
	})
	f := newFixture(t, nil, creds, Options{})
	first := f.enqueue(t, "indeed", "https://www.indeed.com/viewjob?jk=22")
	second := f.enqueue(t, "indeed", "https://www.indeed.com/viewjob?jk=23")

	sweep := NewSweep()
	res := f.app.Process(context.Background(), first, sweep)
	if res.Outcome != OutcomeSkipped || res.Kind != automation.CredentialMissing {
		t.Fatalf("first = %+v, want skipped", res)
	}
	if got := f.reload(t, first.ID); got.Status != models.QueueStatusSkipped || got.RetryCount != 0 {
		t.Errorf("first item = %s retry %d", got.Status, got.RetryCount)
	}
	if res := f.app.Process(context.Background(), second, sweep); res.Outcome != OutcomeDeferred {
		t.Errorf("second = %+v, want deferred", res)
	}
	if f.runner.Calls() != 0 {
		t.Error("runner called without readable credentials")
	}
}

func TestProcessTransientCredentialErrorRetries(t *testing.T) {
	creds := credsFunc(func(context.Context, string, string) (credentials.Credential, error) {
		return credentials.Credential{}, errors.New("connection reset")
	})
	f := newFixture(t, nil, creds, Options{})
	item := f.enqueue(t, "indeed", "https://www.indeed.com/viewjob?jk=24")

	res := f.app.Process(context.Background(), item, nil)
	if res.Outcome != OutcomeRetry {
		t.Fatalf("result = %+v, want retry", res)
	}
	if got := f.reload(t, item.ID); got.Status != models.QueueStatusPending || got.RetryCount != 1 {
		t.Errorf("item = %s retry %d", got.Status, got.RetryCount)
	}
}

func TestProcessNoResumeFails(t *testing.T) {
	f := newFixture(t, nil, nil, Options{})
	f.st = store.NewMemoryStore()
	f.st.PutUser(models.UserProfile{ID: "u1"})
	f.st.SetUsage("u1", models.Usage{Limit: 5})
	f.app.store = f.st
	item := f.enqueue(t, "linkedin", "https://www.linkedin.com/jobs/view/30")

	res := f.app.Process(context.Background(), item, nil)
	if res.Outcome != OutcomeFailed || res.Message != "No resume available" {
		t.Fatalf("result = %+v", res)
	}
	got := f.reload(t, item.ID)
	if got.Status != models.QueueStatusFailed || got.RetryCount != 0 {
		t.Errorf("item = %s retry %d", got.Status, got.RetryCount)
	}
}

func TestProcessDeferred(t *testing.T) {
	t.Run("lock busy", func(t *testing.T) {
		f := newFixture(t, nil, nil, Options{})
		item := f.enqueue(t, "LinkedIn", "https://www.linkedin.com/jobs/view/40")

		if _, err := f.locker.TryLock(context.Background(), "apply:u1:linkedin", time.Minute); err != nil {
			t.Fatal(err)
		}
		res := f.app.Process(context.Background(), item, nil)
		if res.Outcome != OutcomeDeferred {
			t.Fatalf("outcome = %s", res.Outcome)
		}
		if got := f.reload(t, item.ID); got.Status != models.QueueStatusPending {
			t.Errorf("status = %s", got.Status)
		}
	})

	t.Run("already claimed", func(t *testing.T) {
		f := newFixture(t, nil, nil, Options{})
		item := f.enqueue(t, "linkedin", "https://www.linkedin.com/jobs/view/41")
		if _, err := f.st.Transition(context.Background(), store.Transition{
			ItemID: item.ID,
			From:   models.QueueStatusPending,
			Update: store.QueueUpdate{Status: models.QueueStatusProcessing},
		}); err != nil {
			t.Fatal(err)
		}

		if res := f.app.Process(context.Background(), item, nil); res.Outcome != OutcomeDeferred {
			t.Fatalf("outcome = %s", res.Outcome)
		}
		if f.runner.Calls() != 0 {
			t.Error("runner called for a claimed item")
		}
	})
}

// hangingPlatform logs in by waiting for the attempt to be cancelled.
type hangingPlatform struct{}

func (hangingPlatform) Name() string { return "linkedin" }
func (hangingPlatform) Login(ctx context.Context, _ browser.Page, _ *automation.Attempt) (automation.StepResult, error) {
	<-ctx.Done()
	return automation.StepResult{}, ctx.Err()
}
func (hangingPlatform) NavigateToJob(context.Context, browser.Page, *automation.Attempt) (automation.StepResult, error) {
	return automation.StepResult{}, nil
}
func (hangingPlatform) FillForm(context.Context, browser.Page, *automation.Attempt) (automation.StepResult, error) {
	return automation.StepResult{}, nil
}
func (hangingPlatform) UploadResume(context.Context, browser.Page, *automation.Attempt) (automation.StepResult, error) {
	return automation.StepResult{}, nil
}
func (hangingPlatform) Submit(context.Context, browser.Page, *automation.Attempt) (automation.StepResult, error) {
	return automation.StepResult{}, nil
}

func TestProcessHardCeilingReleasesPageAndKeepsItemRetryable(t *testing.T) {
	page := browsertest.NewPage()
	launcher := &browsertest.Launcher{Page: page}
	exec := automation.NewExecutor(automation.NewRegistry(hangingPlatform{}), launcher, time.Hour, nil)

	f := newFixture(t, exec, nil, Options{HardTimeout: 50 * time.Millisecond, ReleaseGrace: 5 * time.Second})
	item := f.enqueue(t, "linkedin", "https://www.linkedin.com/jobs/view/50")

	start := time.Now()
	res := f.app.Process(context.Background(), item, nil)
	if time.Since(start) > 3*time.Second {
		t.Errorf("Process took %v", time.Since(start))
	}

	if res.Outcome != OutcomeRetry || res.Kind != automation.AttemptTimeout {
		t.Fatalf("result = %+v", res)
	}
	if !page.Closed() {
		t.Error("page not released after hard ceiling")
	}
	if len(launcher.Opened()) != 1 {
		t.Errorf("opened %d pages", len(launcher.Opened()))
	}

	got := f.reload(t, item.ID)
	if got.Status != models.QueueStatusPending || got.RetryCount != 1 {
		t.Errorf("item = %s retry %d, want pending retry 1", got.Status, got.RetryCount)
	}
}

func TestProcessRunnerPanicFailsAttempt(t *testing.T) {
	runner := &fakeRunner{apply: func(context.Context, string, *automation.Attempt) (automation.Report, error) {
		var m map[string]int
		m["boom"]++
		return automation.Report{}, nil
	}}
	f := newFixture(t, runner, nil, Options{})
	item := f.enqueue(t, "linkedin", "https://www.linkedin.com/jobs/view/55")

	res := f.app.Process(context.Background(), item, nil)
	if res.Outcome != OutcomeRetry || res.Kind != automation.UnknownFailure {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Message, "panicked") {
		t.Errorf("message = %q", res.Message)
	}
	if got := f.reload(t, item.ID); got.Status != models.QueueStatusPending || got.RetryCount != 1 {
		t.Errorf("item = %s retry %d", got.Status, got.RetryCount)
	}
}

func TestProcessCancelledParentStillRecords(t *testing.T) {
	runner := &fakeRunner{apply: func(ctx context.Context, platform string, _ *automation.Attempt) (automation.Report, error) {
		<-ctx.Done()
		return automation.Report{Platform: platform}, automation.Fail(automation.AttemptTimeout, "attempt deadline", ctx.Err())
	}}
	f := newFixture(t, runner, nil, Options{ReleaseGrace: time.Second})
	item := f.enqueue(t, "indeed", "https://www.indeed.com/viewjob?jk=60")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for runner.Calls() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	res := f.app.Process(ctx, item, nil)
	if res.Outcome != OutcomeRetry {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if got := f.reload(t, item.ID); got.Status != models.QueueStatusPending || got.RetryCount != 1 {
		t.Errorf("item = %s retry %d", got.Status, got.RetryCount)
	}
}

func TestNextAttempt(t *testing.T) {
	now := testNow

	tests := []struct {
		name       string
		item       models.QueueItem
		maxRetries int
		wantStatus models.QueueStatus
		wantCount  int
	}{
		{"first failure", models.QueueItem{RetryCount: 0}, 3, models.QueueStatusPending, 1},
		{"second failure", models.QueueItem{RetryCount: 1}, 3, models.QueueStatusPending, 2},
		{"last failure", models.QueueItem{RetryCount: 2}, 3, models.QueueStatusFailed, 3},
		{"item max overrides", models.QueueItem{RetryCount: 0, MaxRetries: 1}, 3, models.QueueStatusFailed, 1},
		{"item allows more", models.QueueItem{RetryCount: 3, MaxRetries: 5}, 3, models.QueueStatusPending, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upd := NextAttempt(tt.item, now, 2*time.Hour, tt.maxRetries, "boom")

			if upd.Status != tt.wantStatus || *upd.RetryCount != tt.wantCount {
				t.Fatalf("got %s/%d, want %s/%d", upd.Status, *upd.RetryCount, tt.wantStatus, tt.wantCount)
			}
			if *upd.ErrorMessage != "boom" {
				t.Errorf("error message = %q", *upd.ErrorMessage)
			}
			switch tt.wantStatus {
			case models.QueueStatusPending:
				if upd.ScheduledFor == nil || !upd.ScheduledFor.Equal(now.Add(2*time.Hour)) {
					t.Errorf("scheduled_for = %v", upd.ScheduledFor)
				}
			case models.QueueStatusFailed:
				if upd.CompletedAt == nil || upd.ScheduledFor != nil {
					t.Errorf("terminal update = %+v", upd)
				}
			}
		})
	}
}

func TestSweepBlocked(t *testing.T) {
	s := NewSweep()
	s.block(platformKey("u1", "LinkedIn"), automation.CredentialMissing)

	if _, ok := s.Blocked(models.QueueItem{UserID: "u1", Platform: "linkedin"}); !ok {
		t.Error("platform block is case sensitive")
	}
	if _, ok := s.Blocked(models.QueueItem{UserID: "u1", Platform: "indeed"}); ok {
		t.Error("block leaked to another platform")
	}
	if _, ok := s.Blocked(models.QueueItem{UserID: "u2", Platform: "linkedin"}); ok {
		t.Error("block leaked to another user")
	}
}
