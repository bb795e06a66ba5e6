package background

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"jobpilot/pkg/models"
	"jobpilot/pkg/utils"
)

// TaskStatus represents the status of a background task
type TaskStatus = models.AsyncStatus

const (
	TaskStatusAccepted   = models.AsyncStatusAccepted
	TaskStatusProcessing = models.AsyncStatusProcessing
	TaskStatusSuccess    = models.AsyncStatusSuccess
	TaskStatusFailure    = models.AsyncStatusFailure
)

// TaskType represents the type of background task
type TaskType string

const (
	// TaskTypeScrape is one user's discovery run
	TaskTypeScrape TaskType = "scrape"
	// TaskTypeApply is one queue item's apply attempt
	TaskTypeApply TaskType = "apply"
)

// TaskFunc is the unit of work a task runs. Its return value becomes the
// task result's Data.
type TaskFunc func(ctx context.Context) (interface{}, error)

// TaskResult represents the result of a background task
type TaskResult struct {
	ProcessID      string                 `json:"processId"`
	Type           TaskType               `json:"type"`
	Status         TaskStatus             `json:"status"`
	Data           interface{}            `json:"data,omitempty"`
	Error          string                 `json:"error,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	CompletedAt    *time.Time             `json:"completedAt,omitempty"`
	ProcessingTime *time.Duration         `json:"processingTime,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Done reports whether the task reached a final status.
func (r *TaskResult) Done() bool {
	return r.Status == TaskStatusSuccess || r.Status == TaskStatusFailure
}

// TaskStore defines the interface for storing and retrieving task results
type TaskStore interface {
	Store(ctx context.Context, result *TaskResult) error
	// Get returns ErrTaskNotFound for unknown or expired ids
	Get(ctx context.Context, processID string) (*TaskResult, error)
	Update(ctx context.Context, result *TaskResult) error
	Delete(ctx context.Context, processID string) error
	// Cleanup removes results created more than maxAge ago
	Cleanup(ctx context.Context, maxAge time.Duration) error
	List(ctx context.Context) ([]*TaskResult, error)
}

// Common errors
var (
	ErrTaskNotFound = NewTaskError("task not found")
	ErrQueueFull    = NewTaskError("task queue is full")
	ErrNotRunning   = NewTaskError("task manager is not running")
)

// TaskError represents a background task error
type TaskError struct {
	Message string
	Code    string
}

func NewTaskError(message string) *TaskError {
	return &TaskError{
		Message: message,
		Code:    "TASK_ERROR",
	}
}

func (e *TaskError) Error() string {
	return e.Message
}

// InMemoryTaskStore implements TaskStore using in-memory storage. Results
// are copied on the way in and out so callers never share a pointer with a
// running worker.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]TaskResult
	now   func() time.Time
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]TaskResult),
		now:   time.Now,
	}
}

func (s *InMemoryTaskStore) Store(_ context.Context, result *TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[result.ProcessID] = *result
	return nil
}

func (s *InMemoryTaskStore) Get(_ context.Context, processID string) (*TaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, exists := s.tasks[processID]
	if !exists {
		return nil, ErrTaskNotFound
	}
	return &result, nil
}

func (s *InMemoryTaskStore) Update(_ context.Context, result *TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[result.ProcessID]; !exists {
		return ErrTaskNotFound
	}
	s.tasks[result.ProcessID] = *result
	return nil
}

func (s *InMemoryTaskStore) Delete(_ context.Context, processID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[processID]; !exists {
		return ErrTaskNotFound
	}
	delete(s.tasks, processID)
	return nil
}

func (s *InMemoryTaskStore) Cleanup(_ context.Context, maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	for processID, result := range s.tasks {
		if result.CreatedAt.Before(cutoff) {
			delete(s.tasks, processID)
		}
	}
	return nil
}

// List returns results newest first.
func (s *InMemoryTaskStore) List(_ context.Context) ([]*TaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*TaskResult, 0, len(s.tasks))
	for _, result := range s.tasks {
		r := result
		results = append(results, &r)
	}
	sortNewestFirst(results)
	return results, nil
}

// RedisTaskStore keeps task results in Redis so any instance behind the load
// balancer can answer a status poll. Keys expire after ttl, which makes
// Cleanup a no-op.
type RedisTaskStore struct {
	rc  *utils.RedisClient
	ttl time.Duration
}

func NewRedisTaskStore(rc *utils.RedisClient, ttl time.Duration) *RedisTaskStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTaskStore{rc: rc, ttl: ttl}
}

func (s *RedisTaskStore) key(processID string) string {
	return s.rc.Key("task", processID)
}

func (s *RedisTaskStore) Store(ctx context.Context, result *TaskResult) error {
	return s.rc.SetJSON(ctx, s.key(result.ProcessID), result, s.ttl)
}

func (s *RedisTaskStore) Get(ctx context.Context, processID string) (*TaskResult, error) {
	var result TaskResult
	if err := s.rc.GetJSON(ctx, s.key(processID), &result); err != nil {
		if errors.Is(err, utils.ErrCacheMiss) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (s *RedisTaskStore) Update(ctx context.Context, result *TaskResult) error {
	n, err := s.rc.Client().Exists(ctx, s.key(result.ProcessID)).Result()
	if err != nil {
		return fmt.Errorf("check task %s: %w", result.ProcessID, err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return s.rc.SetJSON(ctx, s.key(result.ProcessID), result, s.ttl)
}

func (s *RedisTaskStore) Delete(ctx context.Context, processID string) error {
	n, err := s.rc.Client().Del(ctx, s.key(processID)).Result()
	if err != nil {
		return fmt.Errorf("delete task %s: %w", processID, err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *RedisTaskStore) Cleanup(context.Context, time.Duration) error { return nil }

// List scans the task keyspace; meant for monitoring, not hot paths.
func (s *RedisTaskStore) List(ctx context.Context) ([]*TaskResult, error) {
	var results []*TaskResult
	iter := s.rc.Client().Scan(ctx, 0, s.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		var r TaskResult
		if err := s.rc.GetJSON(ctx, iter.Val(), &r); err != nil {
			if errors.Is(err, utils.ErrCacheMiss) || errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		results = append(results, &r)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}
	sortNewestFirst(results)
	return results, nil
}

func sortNewestFirst(rs []*TaskResult) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].CreatedAt.After(rs[j].CreatedAt) })
}
