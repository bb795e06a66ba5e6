package models

import "time"

// Log action types
const (
	ActionJobSearch    = "job_search"
	ActionJobApply     = "job_apply"
	ActionStatusUpdate = "status_update"
	ActionQueueUpdate  = "queue_update"
)

// Log statuses
const (
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
	LogStatusWarning = "warning"
	LogStatusInfo    = "info"
)

// AutomationLog is an append-only audit entry for pipeline events.
type AutomationLog struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id"`
	QueueItemID string                 `json:"job_queue_id,omitempty"`
	ActionType  string                 `json:"action_type"`
	Status      string                 `json:"status"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}
