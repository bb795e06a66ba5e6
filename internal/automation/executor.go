package automation

import (
	"context"
	"fmt"
	"time"

	"jobpilot/internal/browser"
	"jobpilot/internal/logging/types"
)

// StepRecord is one executed transition
type StepRecord struct {
	State    State         `json:"state"`
	Outcome  string        `json:"outcome"`
	Note     string        `json:"note,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes an attempt for logging and the caller's commit
type Report struct {
	Platform  string
	State     State
	Confirmed bool
	Steps     []StepRecord
	// Degraded holds the non-terminal failures the flow continued past
	Degraded []*Failure
	Duration time.Duration
}

// Details renders the report as log details.
func (r Report) Details() map[string]interface{} {
	degraded := make([]string, 0, len(r.Degraded))
	for _, f := range r.Degraded {
		degraded = append(degraded, f.Error())
	}
	return map[string]interface{}{
		"platform":    r.Platform,
		"final_state": r.State.String(),
		"confirmed":   r.Confirmed,
		"steps":       r.Steps,
		"degraded":    degraded,
		"duration_ms": r.Duration.Milliseconds(),
	}
}

// Executor runs a Platform's steps as a state machine on a fresh page
type Executor struct {
	registry    *Registry
	launcher    browser.Launcher
	softTimeout time.Duration
	logger      types.Logger
}

func NewExecutor(registry *Registry, launcher browser.Launcher, softTimeout time.Duration, logger types.Logger) *Executor {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	if softTimeout <= 0 {
		softTimeout = 25 * time.Minute
	}
	return &Executor{
		registry:    registry,
		launcher:    launcher,
		softTimeout: softTimeout,
		logger:      logger.WithField("component", "executor"),
	}
}

// Supports reports whether a platform implementation is registered.
func (e *Executor) Supports(platform string) bool {
	_, ok := e.registry.Get(platform)
	return ok
}

type step struct {
	to   State
	kind FailureKind
	run  func(context.Context, browser.Page, *Attempt) (StepResult, error)
}

// Apply drives one application from Init to Submitted. A returned error is a
// *Failure; the report is valid either way. The page is closed before Apply
// returns.
func (e *Executor) Apply(ctx context.Context, platform string, a *Attempt) (Report, error) {
	start := time.Now()
	rep := Report{Platform: platform, State: StateInit}

	p, ok := e.registry.Get(platform)
	if !ok {
		rep.State = StateFailed
		return rep, &Failure{Kind: NavigationFailure, State: StateInit, Msg: fmt.Sprintf("unsupported platform %q", platform)}
	}

	ctx, cancel := context.WithTimeout(ctx, e.softTimeout)
	defer cancel()

	page, err := e.launcher.NewPage(ctx)
	if err != nil {
		rep.State = StateFailed
		return rep, &Failure{Kind: UnknownFailure, State: StateInit, Msg: "open browser page", Err: err}
	}
	defer func() {
		if err := page.Close(); err != nil {
			e.logger.Warn("Failed to close page", map[string]interface{}{"error": err.Error()})
		}
	}()

	log := e.logger.WithFields(map[string]interface{}{"platform": platform, "job_url": a.JobURL})

	steps := []step{
		{StateLoggedIn, LoginFailure, p.Login},
		{StateOnJobPage, NavigationFailure, p.NavigateToJob},
		{StateFormFilled, FormFillFailure, p.FillForm},
		{StateResumeAttached, UploadFailure, p.UploadResume},
		{StateSubmitted, SubmissionFailure, p.Submit},
	}

	for _, s := range steps {
		stepStart := time.Now()
		res, err := s.run(ctx, page, a)

		if ctxErr := ctx.Err(); ctxErr != nil {
			// a step that outlived the attempt deadline is never degraded
			err = &Failure{Kind: AttemptTimeout, State: s.to, Msg: "attempt deadline", Err: ctxErr}
		}
		if err != nil {
			f := asFailure(err, s.kind, s.to)
			if f.Kind.Degrading() {
				log.Warn("Step degraded", map[string]interface{}{"state": s.to.String(), "error": f.Error()})
				rep.Degraded = append(rep.Degraded, f)
			} else {
				rep.State = StateFailed
				rep.Duration = time.Since(start)
				log.Error("Apply attempt failed", map[string]interface{}{
					"state":      s.to.String(),
					"error_kind": string(f.Kind),
					"error":      f.Error(),
				})
				return rep, f
			}
		}

		rep.State = s.to
		rep.Steps = append(rep.Steps, StepRecord{
			State:    s.to,
			Outcome:  res.Outcome.String(),
			Note:     res.Note,
			Duration: time.Since(stepStart),
		})
		if s.to == StateSubmitted {
			rep.Confirmed = res.Confirmed
		}
		log.Debug("Step finished", map[string]interface{}{"state": s.to.String(), "outcome": res.Outcome.String()})
	}

	rep.Duration = time.Since(start)
	log.Info("Application submitted", map[string]interface{}{
		"confirmed":   rep.Confirmed,
		"degraded":    len(rep.Degraded),
		"duration_ms": rep.Duration.Milliseconds(),
	})
	return rep, nil
}

// Finish marks a submitted report Done once the caller has committed it.
func (r *Report) Finish() {
	if r.State == StateSubmitted {
		r.State = StateDone
	}
}
