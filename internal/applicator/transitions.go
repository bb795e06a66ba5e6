package applicator

import (
	"context"
	"fmt"
	"time"

	"jobpilot/internal/automation"
	"jobpilot/internal/logging/types"
	"jobpilot/internal/metrics"
	"jobpilot/internal/notify"
	"jobpilot/internal/ratelimit"
	"jobpilot/internal/store"
	"jobpilot/pkg/models"
)

// writeCtx detaches bookkeeping writes from a cancelled attempt.
func writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
}

func logDetails(item models.QueueItem, kind automation.FailureKind, retryCount int) map[string]interface{} {
	d := map[string]interface{}{
		"platform":     item.Platform,
		"config_type":  item.ConfigType,
		"company_name": item.CompanyName,
		"retry_count":  retryCount,
	}
	if kind != "" {
		d["error_kind"] = string(kind)
	}
	return d
}

func (a *Applicator) transition(ctx context.Context, item models.QueueItem, upd store.QueueUpdate, entry *models.AutomationLog, log types.Logger) {
	wctx, cancel := writeCtx(ctx)
	defer cancel()

	if _, err := a.store.Transition(wctx, store.Transition{
		ItemID: item.ID,
		From:   models.QueueStatusProcessing,
		Update: upd,
		Log:    entry,
	}); err != nil {
		log.Error("Failed to record queue transition", map[string]interface{}{
			"to":    string(upd.Status),
			"error": err.Error(),
		})
	}
}

// skip ends the item without an attempt; the retry count is untouched.
func (a *Applicator) skip(ctx context.Context, item models.QueueItem, kind automation.FailureKind, msg string, log types.Logger) Result {
	now := a.now()
	a.transition(ctx, item, store.QueueUpdate{
		Status:       models.QueueStatusSkipped,
		CompletedAt:  &now,
		ErrorMessage: &msg,
	}, &models.AutomationLog{
		UserID:      item.UserID,
		QueueItemID: item.ID,
		ActionType:  models.ActionJobApply,
		Status:      models.LogStatusWarning,
		Message:     fmt.Sprintf("Skipped %s at %s: %s", item.Title, item.CompanyName, msg),
		Details:     logDetails(item, kind, item.RetryCount),
	}, log)

	log.Warn("Queue item skipped", map[string]interface{}{"reason": msg, "error_kind": string(kind)})
	return Result{ItemID: item.ID, Outcome: OutcomeSkipped, Kind: kind, Message: msg}
}

// fail ends the item terminally without consuming retries.
func (a *Applicator) fail(ctx context.Context, item models.QueueItem, kind automation.FailureKind, msg string, log types.Logger) Result {
	now := a.now()
	a.transition(ctx, item, store.QueueUpdate{
		Status:       models.QueueStatusFailed,
		CompletedAt:  &now,
		ErrorMessage: &msg,
	}, &models.AutomationLog{
		UserID:      item.UserID,
		QueueItemID: item.ID,
		ActionType:  models.ActionJobApply,
		Status:      models.LogStatusFailed,
		Message:     fmt.Sprintf("Failed to apply: %s", msg),
		Details:     logDetails(item, kind, item.RetryCount),
	}, log)

	log.Error("Queue item failed", map[string]interface{}{"reason": msg, "error_kind": string(kind)})
	return Result{ItemID: item.ID, Outcome: OutcomeFailed, Kind: kind, Message: msg}
}

// reschedule returns a rate-limited item to pending after the wait.
func (a *Applicator) reschedule(ctx context.Context, item models.QueueItem, d ratelimit.Decision, log types.Logger) Result {
	at := a.now().Add(d.Wait)
	a.transition(ctx, item, store.QueueUpdate{
		Status:       models.QueueStatusPending,
		ScheduledFor: &at,
	}, &models.AutomationLog{
		UserID:      item.UserID,
		QueueItemID: item.ID,
		ActionType:  models.ActionQueueUpdate,
		Status:      models.LogStatusInfo,
		Message:     fmt.Sprintf("Rate limited: %s. Rescheduled for later.", d.Reason),
		Details: func() map[string]interface{} {
			det := logDetails(item, automation.RateLimitExceeded, item.RetryCount)
			det["wait_seconds"] = d.WaitSeconds()
			det["scheduled_for"] = at
			return det
		}(),
	}, log)

	metrics.IncRateLimited(item.Platform)
	log.Info("Queue item rate limited", map[string]interface{}{"reason": d.Reason, "wait_seconds": d.WaitSeconds()})
	return Result{ItemID: item.ID, Outcome: OutcomeRateLimited, Kind: automation.RateLimitExceeded, Message: d.Reason}
}

// NextAttempt is the retry controller: one more failure either returns the
// item to pending after backoff or, at maxRetries, fails it for good.
func NextAttempt(item models.QueueItem, now time.Time, backoff time.Duration, maxRetries int, msg string) store.QueueUpdate {
	if item.MaxRetries > 0 {
		maxRetries = item.MaxRetries
	}
	count := item.RetryCount + 1
	upd := store.QueueUpdate{RetryCount: &count, ErrorMessage: &msg}

	if count < maxRetries {
		at := now.Add(backoff)
		upd.Status = models.QueueStatusPending
		upd.ScheduledFor = &at
		return upd
	}
	upd.Status = models.QueueStatusFailed
	upd.CompletedAt = &now
	return upd
}

func (a *Applicator) retry(ctx context.Context, item models.QueueItem, err error, report automation.Report, log types.Logger) Result {
	kind := automation.KindOf(err)
	msg := err.Error()
	upd := NextAttempt(item, a.now(), a.opts.RetryBackoff, a.opts.MaxRetries, msg)

	details := logDetails(item, kind, *upd.RetryCount)
	if report.Platform != "" {
		details["automation"] = report.Details()
	}
	a.transition(ctx, item, upd, &models.AutomationLog{
		UserID:      item.UserID,
		QueueItemID: item.ID,
		ActionType:  models.ActionJobApply,
		Status:      models.LogStatusFailed,
		Message:     fmt.Sprintf("Failed to apply: %s", msg),
		Details:     details,
	}, log)

	outcome := OutcomeRetry
	if upd.Status == models.QueueStatusFailed {
		outcome = OutcomeFailed
	}
	log.Warn("Apply attempt failed", map[string]interface{}{
		"error_kind":  string(kind),
		"error":       msg,
		"retry_count": *upd.RetryCount,
		"next_status": string(upd.Status),
	})
	return Result{ItemID: item.ID, Outcome: outcome, Kind: kind, Message: msg, Report: report}
}

// commit records the submitted application in one transaction. A failed
// commit marks the item failed instead of retrying, because the board has
// already received the application.
func (a *Applicator) commit(ctx context.Context, item models.QueueItem, resume models.Resume, report automation.Report, log types.Logger) Result {
	wctx, cancel := writeCtx(ctx)
	defer cancel()

	now := a.now()
	listing := a.listingFor(wctx, item)
	app := &models.Application{
		UserID:           item.UserID,
		QueueItemID:      item.ID,
		CompanyName:      item.CompanyName,
		Title:            item.Title,
		JobType:          listing.JobType,
		Location:         listing.Location,
		SalaryRange:      listing.SalaryRange,
		Status:           models.ApplicationStatusSent,
		Platform:         item.Platform,
		URL:              item.URL,
		AppliedAt:        now,
		LastStatusUpdate: now,
		ResumeID:         resume.ID,
	}

	details := logDetails(item, "", item.RetryCount)
	details["automation"] = report.Details()
	details["confirmed"] = report.Confirmed
	status := models.LogStatusSuccess
	if !report.Confirmed {
		status = models.LogStatusWarning
	}

	_, err := a.store.CompleteApplication(wctx, store.Completion{
		ItemID:      item.ID,
		Application: app,
		At:          now,
		Log: &models.AutomationLog{
			UserID:      item.UserID,
			QueueItemID: item.ID,
			ActionType:  models.ActionJobApply,
			Status:      status,
			Message:     fmt.Sprintf("Successfully applied to %s at %s", item.Title, item.CompanyName),
			Details:     details,
		},
	})
	if err != nil {
		log.Error("Failed to commit application", map[string]interface{}{"error": err.Error()})
		return a.fail(ctx, item, automation.UnknownFailure, "Application submitted but not recorded: "+err.Error(), log)
	}

	report.Finish()
	log.Info("Application recorded", map[string]interface{}{
		"application_id": app.ID,
		"confirmed":      report.Confirmed,
	})

	if err := a.sink.Notify(wctx, item.UserID, models.ApplicationSummary{
		Kind:         notify.KindApplicationSubmitted,
		Applications: []models.Application{*app},
		Submitted:    1,
		GeneratedAt:  now,
	}); err != nil {
		log.Warn("Failed to send notification", map[string]interface{}{"error": err.Error()})
	}

	return Result{ItemID: item.ID, Outcome: OutcomeApplied, Report: report}
}

func (a *Applicator) listingFor(ctx context.Context, item models.QueueItem) models.JobListing {
	if item.JobListingID == "" {
		return models.JobListing{}
	}
	l, err := a.store.GetListing(ctx, item.JobListingID)
	if err != nil {
		return models.JobListing{}
	}
	return l
}
