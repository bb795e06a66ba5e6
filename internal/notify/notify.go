// Package notify delivers application summaries to users.
package notify

import (
	"context"
	"errors"
	"time"

	"jobpilot/internal/logging/types"
	"jobpilot/pkg/models"
)

// Summary kinds
const (
	KindApplicationSubmitted = "application_submitted"
	KindDailySummary         = "daily_summary"
)

// Sink receives notifications. Delivery failures are reported but never
// roll back the work that produced them.
type Sink interface {
	Notify(ctx context.Context, userID string, summary models.ApplicationSummary) error
}

// Message is the envelope published to external consumers
type Message struct {
	UserID  string                    `json:"user_id"`
	Summary models.ApplicationSummary `json:"summary"`
	SentAt  time.Time                 `json:"sent_at"`
}

// LogSink writes notifications to the application log
type LogSink struct {
	logger types.Logger
}

func NewLogSink(logger types.Logger) *LogSink {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	return &LogSink{logger: logger.WithField("component", "notify")}
}

func (s *LogSink) Notify(_ context.Context, userID string, summary models.ApplicationSummary) error {
	fields := map[string]interface{}{
		"user_id":                userID,
		"kind":                   summary.Kind,
		"applications_submitted": summary.Submitted,
		"pending_applications":   summary.Pending,
	}
	if len(summary.Applications) == 1 {
		fields["company_name"] = summary.Applications[0].CompanyName
		fields["job_title"] = summary.Applications[0].Title
	}
	s.logger.Info("Notification", fields)
	return nil
}

// Publisher is the slice of the Redis client RedisSink needs
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, v interface{}) error
}

// RedisSink publishes notifications on a pub/sub channel for the mailer
type RedisSink struct {
	pub     Publisher
	channel string
	now     func() time.Time
}

func NewRedisSink(pub Publisher, channel string) *RedisSink {
	return &RedisSink{pub: pub, channel: channel, now: time.Now}
}

func (s *RedisSink) Notify(ctx context.Context, userID string, summary models.ApplicationSummary) error {
	return s.pub.PublishJSON(ctx, s.channel, Message{
		UserID:  userID,
		Summary: summary,
		SentAt:  s.now().UTC(),
	})
}

// Fanout delivers to every sink and joins their errors
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, userID string, summary models.ApplicationSummary) error {
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, userID, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
