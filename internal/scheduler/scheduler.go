// Package scheduler owns the periodic sweeps: board scraping, queue draining,
// retention cleanup and the daily summary. Each sweep runs under a named
// lock so only one process executes it at a time, and fans its units of work
// out to the background pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"jobpilot/internal/applicator"
	"jobpilot/internal/background"
	"jobpilot/internal/lock"
	"jobpilot/internal/logging/types"
	"jobpilot/internal/maintenance"
	"jobpilot/internal/metrics"
	"jobpilot/pkg/models"
)

// Sweep names, used for lock keys, metrics labels and logs
const (
	SweepScrape  = "scrape"
	SweepDrain   = "drain"
	SweepCleanup = "cleanup"
	SweepSummary = "summary"
)

// Discoverer scrapes boards for one user
type Discoverer interface {
	ActiveUsers(ctx context.Context) ([]string, error)
	ScrapeUser(ctx context.Context, userID string) (models.ScrapeSummary, error)
}

// Dequeuer hands out due queue items in dispatch order
type Dequeuer interface {
	DequeueBatch(ctx context.Context, limit int) ([]models.QueueItem, error)
}

// Applier makes one apply attempt
type Applier interface {
	Process(ctx context.Context, item models.QueueItem, sweep *applicator.Sweep) applicator.Result
}

// Housekeeper runs the maintenance sweeps
type Housekeeper interface {
	Cleanup(ctx context.Context) (maintenance.CleanupReport, error)
	SendDailySummaries(ctx context.Context) (int, error)
}

// Pool runs units of work in the background
type Pool interface {
	Submit(ctx context.Context, taskType background.TaskType, fn background.TaskFunc, opts ...background.SubmitOption) (*background.Handle, error)
}

// Config holds the cron specs and sweep limits
type Config struct {
	ScrapeSpec  string
	DrainSpec   string
	CleanupSpec string
	SummarySpec string
	// DrainBatch caps items dequeued per drain
	DrainBatch int
	LockTTL    time.Duration
	// ScrapeOnStart runs one scrape sweep right after Start
	ScrapeOnStart bool
}

// Deps are the collaborators a Scheduler drives
type Deps struct {
	Discovery   Discoverer
	Queue       Dequeuer
	Applicator  Applier
	Maintenance Housekeeper
	Pool        Pool
	Locker      lock.Locker
}

// DrainReport summarizes one drain sweep
type DrainReport struct {
	Dequeued   int            `json:"dequeued"`
	Dispatched int            `json:"dispatched"`
	Outcomes   map[string]int `json:"outcomes"`
}

// ScrapeReport summarizes one scrape sweep
type ScrapeReport struct {
	Users  int `json:"users"`
	Found  int `json:"found"`
	Queued int `json:"queued"`
	Failed int `json:"failed"`
}

// Scheduler fires the sweeps on their cron specs
type Scheduler struct {
	cfg    Config
	deps   Deps
	cron   *cron.Cron
	logger types.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config, deps Deps, logger types.Logger) *Scheduler {
	if cfg.DrainBatch <= 0 {
		cfg.DrainBatch = 50
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 25 * time.Minute
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if logger == nil {
		logger = types.NewNopLogger()
	}
	logger = logger.WithField("component", "scheduler")

	return &Scheduler{
		cfg:    cfg,
		deps:   deps,
		cron:   cron.New(cron.WithLogger(cronLogger{logger}), cron.WithChain(cron.Recover(cronLogger{logger}))),
		logger: logger,
	}
}

// Start registers every sweep with a non-empty spec and starts the cron
// loop. Sweeps run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{SweepScrape, s.cfg.ScrapeSpec, func(ctx context.Context) error { _, err := s.RunScrape(ctx); return err }},
		{SweepDrain, s.cfg.DrainSpec, func(ctx context.Context) error { _, err := s.RunDrain(ctx); return err }},
		{SweepCleanup, s.cfg.CleanupSpec, s.RunCleanup},
		{SweepSummary, s.cfg.SummarySpec, s.RunSummary},
	}
	for _, j := range jobs {
		if j.spec == "" {
			s.logger.Info("Sweep disabled", map[string]interface{}{"sweep": j.name})
			continue
		}
		run := j.run
		name := j.name
		if _, err := s.cron.AddFunc(j.spec, func() { s.fire(runCtx, name, run) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %s sweep %q: %w", j.name, j.spec, err)
		}
		s.logger.Info("Sweep scheduled", map[string]interface{}{"sweep": j.name, "spec": j.spec})
	}

	s.cron.Start()
	s.cancel = cancel
	s.started = true

	if s.cfg.ScrapeOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire(runCtx, SweepScrape, func(ctx context.Context) error { _, err := s.RunScrape(ctx); return err })
		}()
	}
	return nil
}

// Stop stops firing new sweeps, cancels the running ones and waits for them
// until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) fire(ctx context.Context, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Sweep failed", map[string]interface{}{
			"sweep": name,
			"error": err.Error(),
		})
	}
}

// guard runs fn under the sweep's lock and records the run. A sweep already
// held elsewhere is skipped without error.
func (s *Scheduler) guard(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := lock.Run(ctx, s.deps.Locker, "sweep:"+name, s.cfg.LockTTL, fn)

	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		metrics.ObserveSweep(name, "locked", 0)
		s.logger.Info("Sweep already running elsewhere, skipping", map[string]interface{}{"sweep": name})
		return nil
	case err != nil:
		metrics.ObserveSweep(name, "error", time.Since(start))
		return err
	default:
		metrics.ObserveSweep(name, "ok", time.Since(start))
		return nil
	}
}

// RunScrape scrapes every user with an active search profile, one
// background task per user.
func (s *Scheduler) RunScrape(ctx context.Context) (ScrapeReport, error) {
	var report ScrapeReport
	err := s.guard(ctx, SweepScrape, func(ctx context.Context) error {
		users, err := s.deps.Discovery.ActiveUsers(ctx)
		if err != nil {
			return err
		}
		report.Users = len(users)
		if len(users) == 0 {
			s.logger.Info("No active search profiles, nothing to scrape")
			return nil
		}

		d := newDispatcher(s.deps.Pool)
		for _, userID := range users {
			err := d.submit(ctx, background.TaskTypeScrape, func(ctx context.Context) (interface{}, error) {
				return s.deps.Discovery.ScrapeUser(ctx, userID)
			}, background.WithMetadata(map[string]interface{}{"user_id": userID, "trigger": "schedule"}))
			if err != nil {
				return err
			}
		}

		for _, r := range d.wait(ctx) {
			if r.Status != background.TaskStatusSuccess {
				report.Failed++
				continue
			}
			if sum, ok := r.Data.(models.ScrapeSummary); ok {
				report.Found += sum.Found
				report.Queued += sum.Queued
			}
		}

		s.logger.Info("Scrape sweep finished", map[string]interface{}{
			"users":  report.Users,
			"found":  report.Found,
			"queued": report.Queued,
			"failed": report.Failed,
		})
		return ctx.Err()
	})
	return report, err
}

// RunDrain dequeues up to DrainBatch due items and makes one apply attempt
// for each on the background pool. Items that cannot be dispatched stay
// pending for the next drain.
func (s *Scheduler) RunDrain(ctx context.Context) (DrainReport, error) {
	report := DrainReport{Outcomes: map[string]int{}}
	err := s.guard(ctx, SweepDrain, func(ctx context.Context) error {
		items, err := s.deps.Queue.DequeueBatch(ctx, s.cfg.DrainBatch)
		if err != nil {
			return err
		}
		report.Dequeued = len(items)
		if len(items) == 0 {
			return nil
		}

		sweep := applicator.NewSweep()
		d := newDispatcher(s.deps.Pool)
		for _, item := range items {
			if _, blocked := sweep.Blocked(item); blocked {
				report.Outcomes[string(applicator.OutcomeDeferred)]++
				continue
			}
			err := d.submit(ctx, background.TaskTypeApply, func(ctx context.Context) (interface{}, error) {
				return s.deps.Applicator.Process(ctx, item, sweep), nil
			}, background.WithMetadata(map[string]interface{}{
				"queue_item_id": item.ID,
				"user_id":       item.UserID,
				"platform":      item.Platform,
			}))
			if err != nil {
				return err
			}
			report.Dispatched++
		}

		for _, r := range d.wait(ctx) {
			if res, ok := r.Data.(applicator.Result); ok {
				report.Outcomes[string(res.Outcome)]++
			} else {
				report.Outcomes["error"]++
			}
		}

		s.logger.Info("Drain sweep finished", map[string]interface{}{
			"dequeued":   report.Dequeued,
			"dispatched": report.Dispatched,
			"outcomes":   report.Outcomes,
		})
		return ctx.Err()
	})
	return report, err
}

func (s *Scheduler) RunCleanup(ctx context.Context) error {
	return s.guard(ctx, SweepCleanup, func(ctx context.Context) error {
		_, err := s.deps.Maintenance.Cleanup(ctx)
		return err
	})
}

func (s *Scheduler) RunSummary(ctx context.Context) error {
	return s.guard(ctx, SweepSummary, func(ctx context.Context) error {
		_, err := s.deps.Maintenance.SendDailySummaries(ctx)
		return err
	})
}

// TriggerScrape queues an immediate scrape for one user outside the
// schedule and returns the task id to poll.
func (s *Scheduler) TriggerScrape(ctx context.Context, userID string) (string, error) {
	h, err := s.deps.Pool.Submit(ctx, background.TaskTypeScrape, func(ctx context.Context) (interface{}, error) {
		return s.deps.Discovery.ScrapeUser(ctx, userID)
	}, background.WithMetadata(map[string]interface{}{"user_id": userID, "trigger": "api"}))
	if err != nil {
		return "", err
	}
	return h.ProcessID, nil
}

// dispatcher submits tasks to the pool, waiting for the oldest outstanding
// task whenever the pool queue is full.
type dispatcher struct {
	pool    Pool
	pending []*background.Handle
	done    []*background.TaskResult
}

func newDispatcher(pool Pool) *dispatcher {
	return &dispatcher{pool: pool}
}

func (d *dispatcher) submit(ctx context.Context, t background.TaskType, fn background.TaskFunc, opts ...background.SubmitOption) error {
	for {
		h, err := d.pool.Submit(ctx, t, fn, opts...)
		if err == nil {
			d.pending = append(d.pending, h)
			return nil
		}
		if !errors.Is(err, background.ErrQueueFull) || len(d.pending) == 0 {
			return err
		}

		r, werr := d.pending[0].Wait(ctx)
		if werr != nil {
			return werr
		}
		d.pending = d.pending[1:]
		d.done = append(d.done, r)
	}
}

// wait collects every outstanding result. Tasks still running when ctx ends
// are left to finish on their own.
func (d *dispatcher) wait(ctx context.Context) []*background.TaskResult {
	for _, h := range d.pending {
		r, err := h.Wait(ctx)
		if err != nil {
			break
		}
		d.done = append(d.done, r)
	}
	d.pending = nil
	return d.done
}

// cronLogger adapts types.Logger to cron.Logger
type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["error"] = err.Error()
	l.logger.Error("cron: "+msg, fields)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
