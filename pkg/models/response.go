package models

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    time.Duration     `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Pagination describes a page of results
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPagination computes the page count for total results.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// QueueListResponse is a page of queue items
type QueueListResponse struct {
	Items      []QueueItem `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// ListingListResponse is a page of discovered listings
type ListingListResponse struct {
	Listings   []JobListing `json:"listings"`
	Pagination Pagination   `json:"pagination"`
}

// LogListResponse is a page of automation logs
type LogListResponse struct {
	Logs       []AutomationLog `json:"logs"`
	Pagination Pagination      `json:"pagination"`
}

// RateStats summarizes recent application throughput
type RateStats struct {
	LastHour int `json:"last_hour"`
	LastDay  int `json:"last_day"`
	Total    int `json:"total"`
}

// StatusResponse is the automation overview for a user
type StatusResponse struct {
	IsActive      bool       `json:"is_active"`
	Queue         QueueStats `json:"queue_stats"`
	RateLimits    RateStats  `json:"rate_limit_stats"`
	Usage         Usage      `json:"usage"`
	NextScheduled *QueueItem `json:"next_scheduled,omitempty"`
}
