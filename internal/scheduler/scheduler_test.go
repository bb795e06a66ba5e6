package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobpilot/internal/applicator"
	"jobpilot/internal/background"
	"jobpilot/internal/lock"
	"jobpilot/internal/maintenance"
	"jobpilot/pkg/models"
)

type fakeDiscovery struct {
	users []string
	err   error

	mu      sync.Mutex
	scraped []string
}

func (f *fakeDiscovery) ActiveUsers(context.Context) ([]string, error) {
	return f.users, f.err
}

func (f *fakeDiscovery) ScrapeUser(_ context.Context, userID string) (models.ScrapeSummary, error) {
	f.mu.Lock()
	f.scraped = append(f.scraped, userID)
	f.mu.Unlock()
	if userID == "broken" {
		return models.ScrapeSummary{}, errors.New("all boards failed")
	}
	return models.ScrapeSummary{UserID: userID, Found: 3, Queued: 1}, nil
}

type fakeQueue struct {
	items []models.QueueItem
	limit int
}

func (f *fakeQueue) DequeueBatch(_ context.Context, limit int) ([]models.QueueItem, error) {
	f.limit = limit
	if len(f.items) > limit {
		return f.items[:limit], nil
	}
	return f.items, nil
}

type fakeApplier struct {
	process func(models.QueueItem, *applicator.Sweep) applicator.Result
	calls   atomic.Int32
}

func (f *fakeApplier) Process(_ context.Context, item models.QueueItem, sweep *applicator.Sweep) applicator.Result {
	f.calls.Add(1)
	return f.process(item, sweep)
}

type fakeHousekeeper struct {
	cleanups  atomic.Int32
	summaries atomic.Int32
	err       error
}

func (f *fakeHousekeeper) Cleanup(context.Context) (maintenance.CleanupReport, error) {
	f.cleanups.Add(1)
	return maintenance.CleanupReport{}, f.err
}

func (f *fakeHousekeeper) SendDailySummaries(context.Context) (int, error) {
	f.summaries.Add(1)
	return 0, f.err
}

func newPool(t *testing.T, workers, queue int) *background.Manager {
	t.Helper()
	m := background.NewManager(background.Config{Workers: workers, QueueSize: queue}, nil, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m
}

func items(n int) []models.QueueItem {
	out := make([]models.QueueItem, n)
	for i := range out {
		out[i] = models.QueueItem{
			ID:       string(rune('a' + i)),
			UserID:   "u1",
			Platform: "indeed",
			Status:   models.QueueStatusPending,
		}
	}
	return out
}

func TestRunScrape(t *testing.T) {
	disc := &fakeDiscovery{users: []string{"u1", "u2", "broken"}}
	s := New(Config{}, Deps{Discovery: disc, Pool: newPool(t, 2, 4)}, nil)

	report, err := s.RunScrape(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := ScrapeReport{Users: 3, Found: 6, Queued: 2, Failed: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}
	if len(disc.scraped) != 3 {
		t.Errorf("scraped %v", disc.scraped)
	}
}

func TestRunScrapeListError(t *testing.T) {
	disc := &fakeDiscovery{err: errors.New("db down")}
	s := New(Config{}, Deps{Discovery: disc, Pool: newPool(t, 1, 1)}, nil)

	if _, err := s.RunScrape(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestRunDrainTalliesOutcomes(t *testing.T) {
	q := &fakeQueue{items: items(4)}
	app := &fakeApplier{process: func(item models.QueueItem, _ *applicator.Sweep) applicator.Result {
		if item.ID == "b" {
			return applicator.Result{ItemID: item.ID, Outcome: applicator.OutcomeFailed}
		}
		return applicator.Result{ItemID: item.ID, Outcome: applicator.OutcomeApplied}
	}}
	s := New(Config{DrainBatch: 10}, Deps{Queue: q, Applicator: app, Pool: newPool(t, 2, 8)}, nil)

	report, err := s.RunDrain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if q.limit != 10 {
		t.Errorf("dequeue limit = %d", q.limit)
	}
	if report.Dequeued != 4 || report.Dispatched != 4 {
		t.Errorf("report = %+v", report)
	}
	if report.Outcomes["applied"] != 3 || report.Outcomes["failed"] != 1 {
		t.Errorf("outcomes = %v", report.Outcomes)
	}
}

func TestRunDrainWaitsWhenPoolIsFull(t *testing.T) {
	q := &fakeQueue{items: items(6)}
	app := &fakeApplier{process: func(item models.QueueItem, _ *applicator.Sweep) applicator.Result {
		time.Sleep(5 * time.Millisecond)
		return applicator.Result{ItemID: item.ID, Outcome: applicator.OutcomeApplied}
	}}
	s := New(Config{}, Deps{Queue: q, Applicator: app, Pool: newPool(t, 1, 1)}, nil)

	report, err := s.RunDrain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Dispatched != 6 || report.Outcomes["applied"] != 6 {
		t.Errorf("report = %+v", report)
	}
	if got := app.calls.Load(); got != 6 {
		t.Errorf("processed %d items", got)
	}
}

func TestRunDrainEmptyQueue(t *testing.T) {
	app := &fakeApplier{}
	s := New(Config{}, Deps{Queue: &fakeQueue{}, Applicator: app, Pool: newPool(t, 1, 1)}, nil)

	report, err := s.RunDrain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Dequeued != 0 || app.calls.Load() != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestSweepSkippedWhenLocked(t *testing.T) {
	locker := lock.NewLocalLocker()
	token, err := locker.TryLock(context.Background(), "sweep:"+SweepCleanup, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	hk := &fakeHousekeeper{}
	s := New(Config{}, Deps{Maintenance: hk, Locker: locker}, nil)

	if err := s.RunCleanup(context.Background()); err != nil {
		t.Fatalf("locked sweep returned %v", err)
	}
	if hk.cleanups.Load() != 0 {
		t.Error("cleanup ran while another holder had the lock")
	}

	_ = locker.Unlock(context.Background(), "sweep:"+SweepCleanup, token)
	if err := s.RunCleanup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hk.cleanups.Load() != 1 {
		t.Error("cleanup did not run after the lock was released")
	}
}

func TestMaintenanceSweepsReportErrors(t *testing.T) {
	hk := &fakeHousekeeper{err: errors.New("summary sink down")}
	s := New(Config{}, Deps{Maintenance: hk}, nil)

	if err := s.RunSummary(context.Background()); err == nil {
		t.Error("expected summary error")
	}
	if err := s.RunCleanup(context.Background()); err == nil {
		t.Error("expected cleanup error")
	}
}

func TestTriggerScrape(t *testing.T) {
	pool := newPool(t, 1, 1)
	disc := &fakeDiscovery{}
	s := New(Config{}, Deps{Discovery: disc, Pool: pool}, nil)

	id, err := s.TriggerScrape(context.Background(), "u9")
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		r, err := pool.GetTaskResult(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if r.Done() {
			if r.Status != background.TaskStatusSuccess || r.Metadata["trigger"] != "api" {
				t.Errorf("result = %+v", r)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scrape task did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(Config{DrainSpec: "every now and then"}, Deps{}, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected invalid spec error")
	}
}

func TestStartScrapeOnStart(t *testing.T) {
	disc := &fakeDiscovery{users: []string{"u1"}}
	s := New(Config{ScrapeSpec: "0 */6 * * *", ScrapeOnStart: true}, Deps{Discovery: disc, Pool: newPool(t, 1, 1)}, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Stop(ctx); err != nil {
			t.Error(err)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		disc.mu.Lock()
		scraped := append([]string(nil), disc.scraped...)
		disc.mu.Unlock()
		if len(scraped) == 1 && scraped[0] == "u1" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("scraped = %v", scraped)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
