package background

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m := NewManager(cfg, nil, nil)
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

func wait(t *testing.T, h *Handle) *TaskResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return r
}

func TestSubmitOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		fn         TaskFunc
		wantStatus TaskStatus
		wantErr    string
		wantData   interface{}
	}{
		{
			name:       "success",
			fn:         func(context.Context) (interface{}, error) { return 42, nil },
			wantStatus: TaskStatusSuccess,
			wantData:   42,
		},
		{
			name:       "failure",
			fn:         func(context.Context) (interface{}, error) { return nil, errors.New("board unreachable") },
			wantStatus: TaskStatusFailure,
			wantErr:    "board unreachable",
		},
		{
			name:       "panic",
			fn:         func(context.Context) (interface{}, error) { panic("nil listing") },
			wantStatus: TaskStatusFailure,
			wantErr:    "task panicked: nil listing",
		},
	}

	m := startManager(t, Config{Workers: 2, QueueSize: 4})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := m.Submit(context.Background(), TaskTypeScrape, tt.fn,
				WithMetadata(map[string]interface{}{"user_id": "u1"}))
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}

			r := wait(t, h)
			if r.Status != tt.wantStatus || r.Error != tt.wantErr || r.Data != tt.wantData {
				t.Errorf("result = %+v", r)
			}
			if r.CompletedAt == nil || r.ProcessingTime == nil {
				t.Error("completion time not recorded")
			}

			stored, err := m.GetTaskResult(context.Background(), h.ProcessID)
			if err != nil {
				t.Fatal(err)
			}
			if stored.Status != tt.wantStatus || stored.Metadata["user_id"] != "u1" || stored.Type != TaskTypeScrape {
				t.Errorf("stored = %+v", stored)
			}
		})
	}
}

func TestSubmitQueueFull(t *testing.T) {
	m := startManager(t, Config{Workers: 1, QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := func(context.Context) (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	}
	noop := func(context.Context) (interface{}, error) { return nil, nil }

	first, err := m.Submit(context.Background(), TaskTypeApply, blocker)
	if err != nil {
		t.Fatal(err)
	}
	<-started

	if _, err := m.Submit(context.Background(), TaskTypeApply, noop); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if _, err := m.Submit(context.Background(), TaskTypeApply, noop); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}

	tasks, _ := m.ListTasks(context.Background())
	if len(tasks) != 2 {
		t.Errorf("stored %d results, rejected task left behind", len(tasks))
	}

	close(release)
	wait(t, first)
}

func TestTaskTimeout(t *testing.T) {
	m := startManager(t, Config{Workers: 1, QueueSize: 1, TaskTimeout: time.Hour})

	h, err := m.Submit(context.Background(), TaskTypeApply, func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	r := wait(t, h)
	if r.Status != TaskStatusFailure || r.Error != context.DeadlineExceeded.Error() {
		t.Errorf("result = %+v", r)
	}
}

func TestSubmitRequiresRunningManager(t *testing.T) {
	m := NewManager(Config{}, nil, nil)
	_, err := m.Submit(context.Background(), TaskTypeScrape, func(context.Context) (interface{}, error) { return nil, nil })
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v", err)
	}
}

func TestStopCancelsRunningTasks(t *testing.T) {
	m := NewManager(Config{Workers: 1, QueueSize: 2}, nil, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	started := make(chan struct{})
	h, err := m.Submit(context.Background(), TaskTypeScrape, func(ctx context.Context) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if r := wait(t, h); r.Status != TaskStatusFailure {
		t.Errorf("status = %s", r.Status)
	}
	if m.IsHealthy() {
		t.Error("stopped manager reports healthy")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		workers int
		queue   int
		wantErr bool
	}{
		{"defaults", Config{}, DefaultMaxWorkers, DefaultMaxQueueSize, false},
		{"explicit", Config{Workers: 3, QueueSize: 7}, 3, 7, false},
		{"negative workers", Config{Workers: -1}, 0, 0, true},
		{"huge queue", Config{QueueSize: MaxQueueSize + 1}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !tt.wantErr && (got.Workers != tt.workers || got.QueueSize != tt.queue) {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestInMemoryTaskStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryTaskStore()
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_ = s.Store(ctx, &TaskResult{ProcessID: "old", CreatedAt: now.Add(-48 * time.Hour)})
	_ = s.Store(ctx, &TaskResult{ProcessID: "new", CreatedAt: now.Add(-time.Hour)})

	if err := s.Update(ctx, &TaskResult{ProcessID: "missing"}); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("update missing: %v", err)
	}

	got, _ := s.Get(ctx, "new")
	got.Status = TaskStatusSuccess
	if again, _ := s.Get(ctx, "new"); again.Status == TaskStatusSuccess {
		t.Error("Get returned a shared pointer")
	}

	if err := s.Cleanup(ctx, 24*time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "old"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expired task kept: %v", err)
	}
	list, _ := s.List(ctx)
	if len(list) != 1 || list[0].ProcessID != "new" {
		t.Errorf("list = %+v", list)
	}
}
