package models

import (
	"time"
)

// AsyncStatus represents the status of an async operation
type AsyncStatus string

const (
	AsyncStatusAccepted   AsyncStatus = "ACCEPTED"
	AsyncStatusProcessing AsyncStatus = "PROCESSING"
	AsyncStatusSuccess    AsyncStatus = "SUCCESS"
	AsyncStatusFailure    AsyncStatus = "FAILURE"
)

// AsyncTaskResponse is returned when work is handed to the background pool
type AsyncTaskResponse struct {
	ProcessID string      `json:"processId"`
	Status    AsyncStatus `json:"status"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// ScrapeSummary is the result of one user's discovery run
type ScrapeSummary struct {
	UserID     string         `json:"user_id"`
	Found      int            `json:"found"`
	Queued     int            `json:"queued"`
	PerProfile map[string]int `json:"per_profile,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// ApplicationSummary is delivered to the notification sink
type ApplicationSummary struct {
	Kind         string        `json:"kind"`
	Applications []Application `json:"applications,omitempty"`
	Submitted    int           `json:"applications_submitted"`
	Pending      int           `json:"pending_applications"`
	GeneratedAt  time.Time     `json:"generated_at"`
}
