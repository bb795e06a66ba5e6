package models

// ManualEnqueueRequest queues a discovered listing on explicit user action
type ManualEnqueueRequest struct {
	ListingID string `json:"listing_id" validate:"required,entity_id"`
}

// PriorityRequest changes the priority of a pending queue item
type PriorityRequest struct {
	Priority int `json:"priority" validate:"required,min=1,max=10"`
}

// PageQuery is the common pagination query
type PageQuery struct {
	Page  int `query:"page" validate:"omitempty,min=1"`
	Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
}

// Normalize applies defaults to unset pagination values.
func (q *PageQuery) Normalize() {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
}

// QueueQuery filters the queue listing
type QueueQuery struct {
	PageQuery
	Status string `query:"status" validate:"omitempty,oneof=pending processing applied failed skipped"`
}

// LogQuery filters the automation log listing
type LogQuery struct {
	PageQuery
	ActionType string `query:"action_type" validate:"omitempty,oneof=job_search job_apply status_update queue_update"`
	Status     string `query:"status" validate:"omitempty,oneof=success failed warning info"`
}

// ListingQuery filters the discovered listings
type ListingQuery struct {
	PageQuery
	Platform string `query:"platform" validate:"omitempty,platform"`
}
