package background

import (
	"jobpilot/internal/logging/types"
	"jobpilot/internal/metrics"
)

// TaskCompletionLogger handles structured logging for the task lifecycle
type TaskCompletionLogger struct {
	logger types.Logger
}

func NewTaskCompletionLogger(logger types.Logger) *TaskCompletionLogger {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	return &TaskCompletionLogger{logger: logger}
}

// LogTaskAccepted logs when a task is accepted for processing
func (l *TaskCompletionLogger) LogTaskAccepted(processID string, taskType TaskType) {
	l.logger.Debug("Background task accepted", map[string]interface{}{
		"process_id": processID,
		"operation":  taskType,
		"status":     TaskStatusAccepted,
	})
}

// LogTaskStart logs when a task starts processing
func (l *TaskCompletionLogger) LogTaskStart(processID string, taskType TaskType, workerID int) {
	l.logger.Debug("Background task started", map[string]interface{}{
		"process_id": processID,
		"operation":  taskType,
		"worker_id":  workerID,
		"status":     TaskStatusProcessing,
	})
}

// LogTaskCompletion logs the final state of a task and records it in metrics.
func (l *TaskCompletionLogger) LogTaskCompletion(result *TaskResult) {
	fields := map[string]interface{}{
		"process_id": result.ProcessID,
		"status":     result.Status,
		"operation":  result.Type,
	}
	if result.ProcessingTime != nil {
		fields["processing_time"] = result.ProcessingTime.String()
		metrics.ObserveTask(string(result.Type), string(result.Status), *result.ProcessingTime)
	}
	for k, v := range result.Metadata {
		fields[k] = v
	}

	if result.Status == TaskStatusFailure {
		fields["error"] = result.Error
		l.logger.Warn("Background task failed", fields)
		return
	}
	l.logger.Info("Background task completed", fields)
}
