package models

import "time"

// QueueStatus is the lifecycle state of a QueueItem
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusApplied    QueueStatus = "applied"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusSkipped    QueueStatus = "skipped"
)

// Terminal reports whether no further transitions leave this status.
func (s QueueStatus) Terminal() bool {
	switch s {
	case QueueStatusApplied, QueueStatusFailed, QueueStatusSkipped:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusApplied, QueueStatusFailed, QueueStatusSkipped:
		return true
	default:
		return false
	}
}

const (
	DefaultMaxRetries = 3
	MinPriority       = 1
	MaxPriority       = 10
)

// QueueItem is one pending or completed application for a user/job pair.
type QueueItem struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	SearchProfileID string      `json:"job_search_config_id,omitempty"`
	ConfigType      string      `json:"config_type,omitempty"`
	Platform        string      `json:"platform"`
	JobListingID    string      `json:"job_listing_id,omitempty"`
	CompanyName     string      `json:"company_name"`
	Title           string      `json:"job_title"`
	URL             string      `json:"job_url"`
	Status          QueueStatus `json:"status"`
	Priority        int         `json:"priority"`
	MatchScore      float64     `json:"match_score"`
	ScheduledFor    time.Time   `json:"scheduled_for"`
	AttemptedAt     *time.Time  `json:"attempted_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	RetryCount      int         `json:"retry_count"`
	MaxRetries      int         `json:"max_retries"`
	CreatedAt       time.Time   `json:"created_at"`
}

// QueueStats counts a user's items per status.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Applied    int `json:"applied"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Application status values
const (
	ApplicationStatusSent      = "sent"
	ApplicationStatusViewed    = "viewed"
	ApplicationStatusInterview = "interview"
	ApplicationStatusRejected  = "rejected"
)

// Application is a submitted job application.
type Application struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	QueueItemID      string    `json:"job_queue_id,omitempty"`
	CompanyName      string    `json:"company_name"`
	Title            string    `json:"job_title"`
	JobType          string    `json:"job_type,omitempty"`
	Location         string    `json:"location,omitempty"`
	SalaryRange      string    `json:"salary_range,omitempty"`
	Status           string    `json:"status"`
	Platform         string    `json:"platform"`
	URL              string    `json:"job_url"`
	AppliedAt        time.Time `json:"applied_at"`
	LastStatusUpdate time.Time `json:"last_status_update"`
	ResumeID         string    `json:"resume_used_id,omitempty"`
}
