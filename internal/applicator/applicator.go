// Package applicator runs one apply attempt per queue item: subscription and
// rate gates, credential and resume resolution, the browser run and the
// commit or retry that follows.
package applicator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"jobpilot/internal/automation"
	"jobpilot/internal/credentials"
	"jobpilot/internal/lock"
	"jobpilot/internal/logging/types"
	"jobpilot/internal/metrics"
	"jobpilot/internal/notify"
	"jobpilot/internal/ratelimit"
	"jobpilot/internal/store"
	"jobpilot/pkg/models"
)

// Outcome is what Process did with an item
type Outcome string

const (
	OutcomeApplied     Outcome = "applied"
	OutcomeRetry       Outcome = "retry"
	OutcomeFailed      Outcome = "failed"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeRateLimited Outcome = "rate_limited"
	// OutcomeDeferred leaves the item untouched for a later drain
	OutcomeDeferred Outcome = "deferred"
)

// Result reports a processed item
type Result struct {
	ItemID  string
	Outcome Outcome
	Kind    automation.FailureKind
	Message string
	Report  automation.Report
}

// RateGate decides whether a user may apply on a platform now
type RateGate interface {
	CanApply(ctx context.Context, userID, platform string) (ratelimit.Decision, error)
}

// Runner executes the browser flow
type Runner interface {
	Apply(ctx context.Context, platform string, a *automation.Attempt) (automation.Report, error)
}

// Options tunes the retry controller and attempt ceilings
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	HardTimeout  time.Duration
	// ReleaseGrace bounds the wait for a cancelled run to release its page
	ReleaseGrace time.Duration
	DefaultYears int
	ResumeDir    string
}

// Applicator processes queue items
type Applicator struct {
	store  store.Store
	rates  RateGate
	runner Runner
	creds  credentials.Provider
	locker lock.Locker
	sink   notify.Sink
	opts   Options
	now    func() time.Time
	logger types.Logger
}

func New(s store.Store, rates RateGate, runner Runner, creds credentials.Provider, locker lock.Locker, sink notify.Sink, opts Options, logger types.Logger) *Applicator {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if sink == nil {
		sink = notify.NewLogSink(logger)
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = models.DefaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Hour
	}
	if opts.HardTimeout <= 0 {
		opts.HardTimeout = 30 * time.Minute
	}
	if opts.ReleaseGrace <= 0 {
		opts.ReleaseGrace = 30 * time.Second
	}
	if opts.DefaultYears <= 0 {
		opts.DefaultYears = 3
	}
	return &Applicator{
		store:  s,
		rates:  rates,
		runner: runner,
		creds:  creds,
		locker: locker,
		sink:   sink,
		opts:   opts,
		now:    time.Now,
		logger: logger.WithField("component", "applicator"),
	}
}

// Sweep remembers, for one drain, which users and user/platform pairs must
// not be dispatched again. Safe for concurrent use.
type Sweep struct {
	mu      sync.Mutex
	blocked map[string]automation.FailureKind
}

func NewSweep() *Sweep {
	return &Sweep{blocked: make(map[string]automation.FailureKind)}
}

func userKey(userID string) string { return "u|" + userID }
func platformKey(userID, platform string) string {
	return "p|" + userID + "|" + strings.ToLower(platform)
}

func (s *Sweep) block(key string, kind automation.FailureKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[key] = kind
}

// Blocked reports whether item's user or user/platform was blocked earlier in the sweep.
func (s *Sweep) Blocked(item models.QueueItem) (automation.FailureKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.blocked[userKey(item.UserID)]; ok {
		return k, true
	}
	k, ok := s.blocked[platformKey(item.UserID, item.Platform)]
	return k, ok
}

// Process makes one apply attempt for a pending item. sweep may be nil.
func (a *Applicator) Process(ctx context.Context, item models.QueueItem, sweep *Sweep) Result {
	if sweep == nil {
		sweep = NewSweep()
	}
	res := Result{ItemID: item.ID}
	log := a.logger.WithFields(map[string]interface{}{
		"queue_item_id": item.ID,
		"user_id":       item.UserID,
		"platform":      item.Platform,
	})

	if kind, blocked := sweep.Blocked(item); blocked {
		res.Outcome, res.Kind = OutcomeDeferred, kind
		return res
	}

	// one attempt per user and platform at a time, so the min-delay check
	// below cannot pass twice
	lockKey := "apply:" + item.UserID + ":" + strings.ToLower(item.Platform)
	token, err := a.locker.TryLock(ctx, lockKey, a.opts.HardTimeout+time.Minute)
	if err != nil {
		if !errors.Is(err, lock.ErrNotAcquired) {
			log.Warn("Apply lock unavailable", map[string]interface{}{"error": err.Error()})
		}
		res.Outcome = OutcomeDeferred
		return res
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.locker.Unlock(unlockCtx, lockKey, token); err != nil {
			log.Warn("Failed to release apply lock", map[string]interface{}{"error": err.Error()})
		}
	}()

	now := a.now()
	claimed, err := a.store.Transition(ctx, store.Transition{
		ItemID: item.ID,
		From:   models.QueueStatusPending,
		Update: store.QueueUpdate{Status: models.QueueStatusProcessing, AttemptedAt: &now},
	})
	if err != nil {
		if !errors.Is(err, store.ErrStatusConflict) {
			log.Error("Failed to claim queue item", map[string]interface{}{"error": err.Error()})
		}
		res.Outcome = OutcomeDeferred
		return res
	}
	item = claimed

	if r, stop := a.gate(ctx, item, sweep, log); stop {
		metrics.ObserveApply(item.Platform, string(r.Outcome))
		return r
	}

	r := a.attempt(ctx, item, sweep, log)
	metrics.ObserveApply(item.Platform, string(r.Outcome))
	return r
}

// gate runs the subscription and rate checks on a claimed item.
func (a *Applicator) gate(ctx context.Context, item models.QueueItem, sweep *Sweep, log types.Logger) (Result, bool) {
	// users without a subscription row apply without a quota
	usage, err := a.store.Usage(ctx, item.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Debug("No subscription row, applying without quota")
	case err != nil:
		return a.retry(ctx, item, automation.Fail(automation.UnknownFailure, "load subscription", err), automation.Report{}, log), true
	case usage.Exhausted():
		sweep.block(userKey(item.UserID), automation.SubscriptionLimitReached)
		return a.skip(ctx, item, automation.SubscriptionLimitReached, "Application limit reached for subscription", log), true
	}

	decision, err := a.rates.CanApply(ctx, item.UserID, item.Platform)
	if err != nil {
		return a.retry(ctx, item, automation.Fail(automation.UnknownFailure, "rate check", err), automation.Report{}, log), true
	}
	if !decision.Allowed {
		return a.reschedule(ctx, item, decision, log), true
	}
	return Result{}, false
}

func (a *Applicator) attempt(ctx context.Context, item models.QueueItem, sweep *Sweep, log types.Logger) Result {
	cred, err := a.creds.Credential(ctx, item.UserID, item.Platform)
	switch {
	case errors.Is(err, credentials.ErrMissing):
		sweep.block(platformKey(item.UserID, item.Platform), automation.CredentialMissing)
		return a.skip(ctx, item, automation.CredentialMissing, fmt.Sprintf("No %s credentials configured", item.Platform), log)
	case errors.Is(err, credentials.ErrUnreadable):
		log.Error("Stored credentials cannot be read", map[string]interface{}{"error": err.Error()})
		sweep.block(platformKey(item.UserID, item.Platform), automation.CredentialMissing)
		return a.skip(ctx, item, automation.CredentialMissing, fmt.Sprintf("Stored %s credentials are unreadable; re-enter them", item.Platform), log)
	case err != nil:
		return a.retry(ctx, item, automation.Fail(automation.UnknownFailure, "load credentials", err), automation.Report{}, log)
	}

	profile, err := a.store.UserProfile(ctx, item.UserID)
	if err != nil {
		return a.fail(ctx, item, automation.UnknownFailure, "User not found", log)
	}

	resume, err := a.store.ResolveResume(ctx, item.UserID, a.preferredResume(ctx, item))
	if errors.Is(err, store.ErrNoResume) {
		return a.fail(ctx, item, automation.UploadFailure, "No resume available", log)
	}
	if err != nil {
		return a.retry(ctx, item, automation.Fail(automation.UnknownFailure, "resolve resume", err), automation.Report{}, log)
	}

	path, cleanup, err := a.writeResume(resume)
	if err != nil {
		return a.retry(ctx, item, automation.Fail(automation.UploadFailure, "stage resume file", err), automation.Report{}, log)
	}
	defer cleanup()

	att := &automation.Attempt{
		JobURL:     item.URL,
		Credential: cred,
		Applicant:  automation.NewApplicant(profile, a.opts.DefaultYears),
		ResumePath: path,
	}

	start := a.now()
	report, err := a.runWithCeiling(ctx, item.Platform, att)
	metrics.ObserveApplyDuration(item.Platform, time.Since(start), err == nil)
	if err != nil {
		return a.retry(ctx, item, err, report, log)
	}

	return a.commit(ctx, item, resume, report, log)
}

// preferredResume is the resume pinned on the item's search profile, if any.
func (a *Applicator) preferredResume(ctx context.Context, item models.QueueItem) string {
	if item.SearchProfileID == "" {
		return ""
	}
	profiles, err := a.store.SearchProfilesForUser(ctx, item.UserID)
	if err != nil {
		return ""
	}
	for _, p := range profiles {
		if p.ID == item.SearchProfileID {
			return p.ResumeID
		}
	}
	return ""
}

func (a *Applicator) writeResume(r models.Resume) (string, func(), error) {
	dir, err := os.MkdirTemp(a.opts.ResumeDir, "resume-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	name := filepath.Base(r.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "resume.pdf"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, r.Content, 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// runWithCeiling runs the executor and abandons it once the hard ceiling
// passes. An abandoned run is cancelled and given ReleaseGrace to close its
// page before the attempt is reported as timed out.
func (a *Applicator) runWithCeiling(ctx context.Context, platform string, att *automation.Attempt) (automation.Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		report automation.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("Apply run panicked", map[string]interface{}{
					"platform": platform,
					"job_url":  att.JobURL,
					"panic":    fmt.Sprintf("%v", r),
					"stack":    string(debug.Stack()),
				})
				done <- outcome{
					automation.Report{Platform: platform, State: automation.StateFailed},
					&automation.Failure{Kind: automation.UnknownFailure, State: automation.StateFailed, Msg: fmt.Sprintf("apply run panicked: %v", r)},
				}
			}
		}()
		rep, err := a.runner.Apply(runCtx, platform, att)
		done <- outcome{rep, err}
	}()

	ceiling := time.NewTimer(a.opts.HardTimeout)
	defer ceiling.Stop()

	select {
	case o := <-done:
		return o.report, o.err
	case <-ceiling.C:
	case <-ctx.Done():
	}

	cancel()
	rep := automation.Report{Platform: platform, State: automation.StateFailed}
	select {
	case o := <-done:
		rep = o.report
		rep.State = automation.StateFailed
	case <-time.After(a.opts.ReleaseGrace):
		a.logger.Error("Apply run did not stop after cancellation", map[string]interface{}{
			"platform": platform,
			"job_url":  att.JobURL,
		})
	}

	if err := ctx.Err(); err != nil {
		return rep, &automation.Failure{Kind: automation.AttemptTimeout, State: automation.StateFailed, Msg: "attempt cancelled", Err: err}
	}
	return rep, &automation.Failure{
		Kind:  automation.AttemptTimeout,
		State: automation.StateFailed,
		Msg:   fmt.Sprintf("hard ceiling of %s reached", a.opts.HardTimeout),
		Err:   context.DeadlineExceeded,
	}
}
