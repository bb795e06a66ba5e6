package maintenance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"jobpilot/internal/notify"
	"jobpilot/internal/store"
	"jobpilot/pkg/models"
)

var now = time.Date(2026, 4, 10, 2, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return now.Add(-time.Duration(n) * 24 * time.Hour) }

type recordingSink struct {
	got map[string]models.ApplicationSummary
	err error
}

func (r *recordingSink) Notify(_ context.Context, userID string, s models.ApplicationSummary) error {
	if r.err != nil {
		return r.err
	}
	if r.got == nil {
		r.got = map[string]models.ApplicationSummary{}
	}
	r.got[userID] = s
	return nil
}

func newService(ms *store.MemoryStore, sink notify.Sink) *Service {
	s := New(ms, sink, DefaultRetention(), nil)
	s.now = func() time.Time { return now }
	return s
}

func seedListing(t *testing.T, ms *store.MemoryStore, id string, scraped time.Time) {
	t.Helper()
	l := &models.JobListing{Platform: "indeed", ExternalID: id, Title: id, URL: "https://www.indeed.com/viewjob?jk=" + id, ScrapedAt: scraped}
	if err := ms.UpsertListing(context.Background(), l); err != nil {
		t.Fatal(err)
	}
}

func seedItem(t *testing.T, ms *store.MemoryStore, url string, status models.QueueStatus, created time.Time) {
	t.Helper()
	it := &models.QueueItem{UserID: "u1", Platform: "indeed", URL: url, Status: status, Priority: 5, CreatedAt: created}
	if err := ms.CreateQueueItemIfAbsent(context.Background(), it); err != nil {
		t.Fatal(err)
	}
}

func TestCleanup(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	seedListing(t, ms, "stale", daysAgo(31))
	seedListing(t, ms, "aging", daysAgo(15))
	seedListing(t, ms, "fresh", daysAgo(1))

	seedItem(t, ms, "https://x/1", models.QueueStatusFailed, daysAgo(8))
	seedItem(t, ms, "https://x/2", models.QueueStatusSkipped, daysAgo(8))
	seedItem(t, ms, "https://x/3", models.QueueStatusApplied, daysAgo(8))
	seedItem(t, ms, "https://x/4", models.QueueStatusPending, daysAgo(8))
	seedItem(t, ms, "https://x/5", models.QueueStatusFailed, daysAgo(2))

	for _, d := range []int{91, 89} {
		if err := ms.AppendLog(ctx, &models.AutomationLog{UserID: "u1", ActionType: models.ActionJobApply, Status: models.LogStatusInfo, CreatedAt: daysAgo(d)}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := newService(ms, nil).Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	want := CleanupReport{ListingsDeleted: 1, ListingsDeactivated: 1, QueueItemsDeleted: 2, LogsDeleted: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}

	listings, total, _ := ms.ListListings(ctx, store.ListingFilter{})
	if total != 2 {
		t.Fatalf("listings left = %d", total)
	}
	for _, l := range listings {
		if wantActive := l.ExternalID == "fresh"; l.IsActive != wantActive {
			t.Errorf("%s active = %v", l.ExternalID, l.IsActive)
		}
	}

	stats, _ := ms.QueueStats(ctx, "u1")
	if stats != (models.QueueStats{Pending: 1, Applied: 1, Failed: 1}) {
		t.Errorf("queue after cleanup = %+v", stats)
	}
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) DeactivateListingsScrapedBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestCleanupContinuesAfterFailure(t *testing.T) {
	ms := store.NewMemoryStore()
	if err := ms.AppendLog(context.Background(), &models.AutomationLog{UserID: "u1", CreatedAt: daysAgo(120)}); err != nil {
		t.Fatal(err)
	}

	s := New(failingStore{ms}, nil, DefaultRetention(), nil)
	s.now = func() time.Time { return now }

	report, err := s.Cleanup(context.Background())
	if err == nil || !strings.Contains(err.Error(), "deactivate job_listings") {
		t.Fatalf("err = %v", err)
	}
	if report.LogsDeleted != 1 {
		t.Errorf("later steps skipped: %+v", report)
	}
}

func TestSendDailySummaries(t *testing.T) {
	ms := store.NewMemoryStore()
	for _, id := range []string{"u1", "u2", "u3"} {
		ms.PutUser(models.UserProfile{ID: id})
	}
	for i := 0; i < 7; i++ {
		ms.PutApplication(models.Application{UserID: "u1", Platform: "indeed", CompanyName: "Acme", AppliedAt: now.Add(-time.Duration(i+1) * time.Hour)})
	}
	ms.PutApplication(models.Application{UserID: "u1", Platform: "indeed", AppliedAt: daysAgo(3)})
	seedItem(t, ms, "https://x/1", models.QueueStatusPending, now)
	ms.PutApplication(models.Application{UserID: "u3", Platform: "linkedin", AppliedAt: daysAgo(2)})

	sink := &recordingSink{}
	sent, err := newService(ms, sink).SendDailySummaries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}

	got := sink.got["u1"]
	if got.Kind != notify.KindDailySummary || got.Submitted != 7 || got.Pending != 1 || len(got.Applications) != summaryApplications {
		t.Errorf("summary = %+v", got)
	}
	if !got.GeneratedAt.Equal(now) {
		t.Errorf("generated at = %v", got.GeneratedAt)
	}
	if _, ok := sink.got["u3"]; ok {
		t.Error("u3 had nothing in the last day but was notified")
	}
}

func TestSendDailySummariesReportsSinkErrors(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.PutUser(models.UserProfile{ID: "u1"})
	seedItem(t, ms, "https://x/1", models.QueueStatusPending, now)

	sent, err := newService(ms, &recordingSink{err: errors.New("redis down")}).SendDailySummaries(context.Background())
	if sent != 0 || err == nil {
		t.Errorf("sent = %d err = %v", sent, err)
	}
}

func startAttempt(t *testing.T, ms *store.MemoryStore, url string, retries int, attempted time.Time) string {
	t.Helper()
	ctx := context.Background()
	it := &models.QueueItem{UserID: "u1", Platform: "indeed", URL: url, Status: models.QueueStatusPending, RetryCount: retries, MaxRetries: 3, CreatedAt: attempted}
	if err := ms.CreateQueueItemIfAbsent(ctx, it); err != nil {
		t.Fatal(err)
	}
	if _, err := ms.Transition(ctx, store.Transition{
		ItemID: it.ID,
		From:   models.QueueStatusPending,
		Update: store.QueueUpdate{Status: models.QueueStatusProcessing, AttemptedAt: &attempted},
	}); err != nil {
		t.Fatal(err)
	}
	return it.ID
}

func TestCleanupReclaimsStaleProcessing(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	abandoned := startAttempt(t, ms, "https://x/abandoned", 0, now.Add(-2*time.Hour))
	exhausted := startAttempt(t, ms, "https://x/exhausted", 2, now.Add(-2*time.Hour))
	running := startAttempt(t, ms, "https://x/running", 0, now.Add(-10*time.Minute))

	report, err := newService(ms, nil).Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if report.QueueItemsReclaimed != 2 {
		t.Errorf("reclaimed = %d, want 2", report.QueueItemsReclaimed)
	}

	it, _ := ms.GetQueueItem(ctx, abandoned)
	if it.Status != models.QueueStatusPending || it.RetryCount != 1 || !it.ScheduledFor.Equal(now.Add(time.Hour)) {
		t.Errorf("abandoned = %s retry %d at %v", it.Status, it.RetryCount, it.ScheduledFor)
	}
	if !strings.Contains(it.ErrorMessage, "abandoned") {
		t.Errorf("error message = %q", it.ErrorMessage)
	}

	it, _ = ms.GetQueueItem(ctx, exhausted)
	if it.Status != models.QueueStatusFailed || it.RetryCount != 3 || it.CompletedAt == nil {
		t.Errorf("exhausted = %s retry %d", it.Status, it.RetryCount)
	}

	it, _ = ms.GetQueueItem(ctx, running)
	if it.Status != models.QueueStatusProcessing || it.RetryCount != 0 {
		t.Errorf("running attempt touched: %s retry %d", it.Status, it.RetryCount)
	}

	logs, total, _ := ms.ListLogs(ctx, store.LogFilter{UserID: "u1", ActionType: models.ActionQueueUpdate})
	if total != 2 || len(logs) != 2 {
		t.Errorf("reclaim logs = %d", total)
	}
}

func TestCleanupReclaimDisabled(t *testing.T) {
	ms := store.NewMemoryStore()
	id := startAttempt(t, ms, "https://x/abandoned", 0, now.Add(-48*time.Hour))

	retention := DefaultRetention()
	retention.StaleProcessing = 0
	s := New(ms, nil, retention, nil)
	s.now = func() time.Time { return now }

	if _, err := s.Cleanup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if it, _ := ms.GetQueueItem(context.Background(), id); it.Status != models.QueueStatusProcessing {
		t.Errorf("status = %s", it.Status)
	}
}
