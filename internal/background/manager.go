// Package background runs units of work on a bounded worker pool and keeps
// their results for status polling.
package background

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobpilot/internal/logging/types"
	"jobpilot/internal/metrics"
)

// Task manager configuration constants
const (
	DefaultMaxWorkers   = 10
	DefaultMaxQueueSize = 100

	MinWorkers   = 1
	MinQueueSize = 1

	MaxWorkers   = 1000
	MaxQueueSize = 10000
)

// Config sizes the pool
type Config struct {
	Workers   int
	QueueSize int
	// TaskTimeout bounds every task unless overridden at submit; zero means none
	TaskTimeout     time.Duration
	CleanupInterval time.Duration
	MaxTaskAge      time.Duration
}

// validateConfig fills defaults and rejects out-of-range sizes
func validateConfig(cfg Config) (Config, error) {
	switch {
	case cfg.Workers == 0:
		cfg.Workers = DefaultMaxWorkers
	case cfg.Workers < MinWorkers:
		return cfg, fmt.Errorf("worker pool size (%d) is below minimum (%d)", cfg.Workers, MinWorkers)
	case cfg.Workers > MaxWorkers:
		return cfg, fmt.Errorf("worker pool size (%d) exceeds maximum (%d)", cfg.Workers, MaxWorkers)
	}

	switch {
	case cfg.QueueSize == 0:
		cfg.QueueSize = DefaultMaxQueueSize
	case cfg.QueueSize < MinQueueSize:
		return cfg, fmt.Errorf("queue size (%d) is below minimum (%d)", cfg.QueueSize, MinQueueSize)
	case cfg.QueueSize > MaxQueueSize:
		return cfg, fmt.Errorf("queue size (%d) exceeds maximum (%d)", cfg.QueueSize, MaxQueueSize)
	}

	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.MaxTaskAge <= 0 {
		cfg.MaxTaskAge = 24 * time.Hour
	}
	return cfg, nil
}

// SubmitOption customizes one submission
type SubmitOption func(*TaskExecution)

// WithTimeout overrides the manager's task timeout for one task.
func WithTimeout(d time.Duration) SubmitOption {
	return func(t *TaskExecution) { t.timeout = d }
}

// WithMetadata attaches fields that are stored with the result and logged.
func WithMetadata(md map[string]interface{}) SubmitOption {
	return func(t *TaskExecution) { t.metadata = md }
}

// TaskExecution represents a task waiting for or held by a worker
type TaskExecution struct {
	ProcessID string
	Type      TaskType
	Execute   TaskFunc

	metadata map[string]interface{}
	timeout  time.Duration
	done     chan *TaskResult
}

// Handle lets a submitter wait for a task it queued.
type Handle struct {
	ProcessID string
	done      <-chan *TaskResult
}

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*TaskResult, error) {
	select {
	case r := <-h.done:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Manager is a fixed-size worker pool fed by a bounded queue
type Manager struct {
	cfg    Config
	store  TaskStore
	tasks  *TaskCompletionLogger
	logger types.Logger
	now    func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	taskChan chan *TaskExecution
}

// NewManager creates a manager. An invalid size is logged and replaced by
// the defaults; a nil store keeps results in memory.
func NewManager(cfg Config, store TaskStore, logger types.Logger) *Manager {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	logger = logger.WithField("component", "background")

	valid, err := validateConfig(cfg)
	if err != nil {
		logger.Warn("Task manager configuration validation failed, using defaults", map[string]interface{}{
			"error": err.Error(),
		})
		valid, _ = validateConfig(Config{TaskTimeout: cfg.TaskTimeout, CleanupInterval: cfg.CleanupInterval, MaxTaskAge: cfg.MaxTaskAge})
	}
	if store == nil {
		store = NewInMemoryTaskStore()
	}

	logger.Info("Task manager configuration initialized", map[string]interface{}{
		"max_workers":    valid.Workers,
		"max_queue_size": valid.QueueSize,
		"using_defaults": err != nil,
	})

	return &Manager{
		cfg:      valid,
		store:    store,
		tasks:    NewTaskCompletionLogger(logger),
		logger:   logger,
		now:      time.Now,
		taskChan: make(chan *TaskExecution, valid.QueueSize),
	}
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("task manager already running")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	m.wg.Add(1)
	go m.cleanupRoutine()

	m.logger.Info("Task manager started", map[string]interface{}{
		"max_workers": m.cfg.Workers,
	})
	return nil
}

// Stop cancels running tasks and waits for the workers until ctx is done.
// Tasks still queued are dropped and marked failed.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.logger.Info("Stopping task manager...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Task manager stopped gracefully")
	case <-ctx.Done():
		m.logger.Warn("Task manager shutdown timed out")
		return ctx.Err()
	}

	for {
		select {
		case task := <-m.taskChan:
			m.finish(task, nil, fmt.Errorf("task manager stopped"), 0)
		default:
			return nil
		}
	}
}

// IsHealthy checks if the task manager is accepting work
func (m *Manager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running && m.ctx.Err() == nil
}

// Submit queues fn and returns at once. The result is stored as ACCEPTED
// before the task is queued; ErrQueueFull means nothing was queued and the
// stored result was removed.
func (m *Manager) Submit(ctx context.Context, taskType TaskType, fn TaskFunc, opts ...SubmitOption) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.running || m.ctx.Err() != nil {
		return nil, ErrNotRunning
	}

	task := &TaskExecution{
		ProcessID: uuid.NewString(),
		Type:      taskType,
		Execute:   fn,
		timeout:   m.cfg.TaskTimeout,
		done:      make(chan *TaskResult, 1),
	}
	for _, opt := range opts {
		opt(task)
	}

	result := &TaskResult{
		ProcessID: task.ProcessID,
		Type:      taskType,
		Status:    TaskStatusAccepted,
		CreatedAt: m.now(),
		Metadata:  task.metadata,
	}
	if err := m.store.Store(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to store task result: %w", err)
	}

	select {
	case m.taskChan <- task:
		m.tasks.LogTaskAccepted(task.ProcessID, taskType)
		metrics.SetTaskQueueDepth(len(m.taskChan))
		return &Handle{ProcessID: task.ProcessID, done: task.done}, nil
	case <-ctx.Done():
		_ = m.store.Delete(context.WithoutCancel(ctx), task.ProcessID)
		return nil, ctx.Err()
	default:
		_ = m.store.Delete(context.WithoutCancel(ctx), task.ProcessID)
		return nil, ErrQueueFull
	}
}

// GetTaskResult retrieves the result of a task by process ID
func (m *Manager) GetTaskResult(ctx context.Context, processID string) (*TaskResult, error) {
	return m.store.Get(ctx, processID)
}

// ListTasks lists stored task results, newest first
func (m *Manager) ListTasks(ctx context.Context) ([]*TaskResult, error) {
	return m.store.List(ctx)
}

// Stats reports pool occupancy
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"running":        m.IsHealthy(),
		"max_workers":    m.cfg.Workers,
		"max_queue_size": m.cfg.QueueSize,
		"queued":         len(m.taskChan),
	}
}

func (m *Manager) worker(workerID int) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case task := <-m.taskChan:
			metrics.SetTaskQueueDepth(len(m.taskChan))
			m.processTask(workerID, task)
		}
	}
}

func (m *Manager) processTask(workerID int, task *TaskExecution) {
	start := m.now()

	if err := m.setStatus(task.ProcessID, TaskStatusProcessing); err != nil {
		m.logger.Error("Failed to update task status to processing", map[string]interface{}{
			"process_id": task.ProcessID,
			"error":      err.Error(),
		})
	}
	m.tasks.LogTaskStart(task.ProcessID, task.Type, workerID)

	ctx, cancel := m.ctx, context.CancelFunc(func() {})
	if task.timeout > 0 {
		ctx, cancel = context.WithTimeout(m.ctx, task.timeout)
	}
	data, err := m.run(ctx, task)
	cancel()

	m.finish(task, data, err, m.now().Sub(start))
}

// run executes the task, turning a panic into an error so one bad task
// cannot take a worker down.
func (m *Manager) run(ctx context.Context, task *TaskExecution) (data interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Background task panicked", map[string]interface{}{
				"process_id": task.ProcessID,
				"panic":      fmt.Sprintf("%v", r),
				"stack":      string(debug.Stack()),
			})
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Execute(ctx)
}

func (m *Manager) finish(task *TaskExecution, data interface{}, err error, took time.Duration) {
	ctx := context.Background()
	completed := m.now()

	result, getErr := m.store.Get(ctx, task.ProcessID)
	if getErr != nil {
		result = &TaskResult{
			ProcessID: task.ProcessID,
			Type:      task.Type,
			CreatedAt: completed,
			Metadata:  task.metadata,
		}
	}

	result.CompletedAt = &completed
	result.ProcessingTime = &took
	if err != nil {
		result.Status = TaskStatusFailure
		result.Error = err.Error()
	} else {
		result.Status = TaskStatusSuccess
		result.Data = data
	}

	if getErr != nil {
		err = m.store.Store(ctx, result)
	} else {
		err = m.store.Update(ctx, result)
	}
	if err != nil {
		m.logger.Error("Failed to store final task result", map[string]interface{}{
			"process_id": task.ProcessID,
			"error":      err.Error(),
		})
	}

	m.tasks.LogTaskCompletion(result)
	task.done <- result
}

func (m *Manager) setStatus(processID string, status TaskStatus) error {
	ctx := context.Background()
	result, err := m.store.Get(ctx, processID)
	if err != nil {
		return err
	}
	result.Status = status
	return m.store.Update(ctx, result)
}

func (m *Manager) cleanupRoutine() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if err := m.store.Cleanup(m.ctx, m.cfg.MaxTaskAge); err != nil {
				m.logger.Error("Failed to cleanup expired tasks", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}
