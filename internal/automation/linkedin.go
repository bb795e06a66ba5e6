package automation

import (
	"context"
	"fmt"

	"jobpilot/internal/browser"
)

const (
	linkedInApplyButton  = ".jobs-apply-button"
	linkedInNextButton   = `button[aria-label="Continue to next step"]`
	linkedInReviewButton = `button[aria-label="Review your application"]`
	linkedInSubmitButton = `button[aria-label="Submit application"]`
	linkedInModalHeader  = ".artdeco-modal__header"
	linkedInSuccessToast = ".artdeco-inline-feedback--success"
)

// LinkedIn applies through Easy Apply
type LinkedIn struct {
	opts Options
}

func NewLinkedIn(opts Options) *LinkedIn {
	opts = opts.withDefaults("https://www.linkedin.com")
	opts.Logger = opts.Logger.WithField("platform", "linkedin")
	return &LinkedIn{opts: opts}
}

func (l *LinkedIn) Name() string { return "linkedin" }

func (l *LinkedIn) authenticated(page browser.Page) bool {
	return urlContainsAny(page, "/feed", "/mynetwork", "linkedin.com/in/")
}

func (l *LinkedIn) Login(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	if a.Credential.HasCookies() {
		if err := page.SetCookies(a.Credential.Cookies); err != nil {
			return StepResult{}, Fail(LoginFailure, "set session cookies", err)
		}
		if err := page.Navigate(ctx, l.opts.BaseURL+"/feed/"); err != nil {
			return StepResult{}, Fail(LoginFailure, "open feed", err)
		}
		if l.authenticated(page) {
			return done("session cookies"), nil
		}
		l.opts.Logger.Info("Session cookies rejected, falling back to password login", map[string]interface{}{})
	}

	if !a.Credential.HasPassword() {
		return StepResult{}, Fail(LoginFailure, "no usable session or password", nil)
	}

	if err := page.Navigate(ctx, l.opts.BaseURL+"/login"); err != nil {
		return StepResult{}, Fail(LoginFailure, "open login page", err)
	}

	user, err := page.WaitFor(ctx, "#username", l.opts.ElementWait)
	if err != nil {
		return StepResult{}, Fail(LoginFailure, "username field", err)
	}
	if err := user.Input(ctx, a.Credential.Username); err != nil {
		return StepResult{}, Fail(LoginFailure, "type username", err)
	}
	pass, err := page.Find(ctx, "#password")
	if err != nil {
		return StepResult{}, Fail(LoginFailure, "password field", err)
	}
	if err := pass.Input(ctx, a.Credential.Password); err != nil {
		return StepResult{}, Fail(LoginFailure, "type password", err)
	}
	if found, err := clickFirst(ctx, page, `button[type="submit"]`); err != nil || !found {
		return StepResult{}, Fail(LoginFailure, "submit login form", err)
	}

	if waitUntil(ctx, l.opts.ElementWait, func() bool { return l.authenticated(page) }) {
		return done("password"), nil
	}

	challenged, err := clearChallenge(ctx, page, l.opts.Solver, l.opts.Logger)
	if err != nil {
		return StepResult{}, err
	}
	if challenged && waitUntil(ctx, l.opts.ElementWait, func() bool { return l.authenticated(page) }) {
		return done("password after captcha"), nil
	}

	return StepResult{}, Fail(LoginFailure, fmt.Sprintf("login did not complete, landed on %s", page.URL()), nil)
}

func (l *LinkedIn) NavigateToJob(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	if err := page.Navigate(ctx, a.JobURL); err != nil {
		return StepResult{}, Fail(NavigationFailure, "open job page", err)
	}
	if _, err := page.WaitFor(ctx, linkedInApplyButton, l.opts.ElementWait); err != nil {
		return StepResult{}, Fail(NavigationFailure, "Easy Apply button not found", err)
	}
	return done(""), nil
}

// FillForm opens the Easy Apply modal and walks its steps until the submit
// button shows up or the step budget runs out.
func (l *LinkedIn) FillForm(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	if found, err := clickFirst(ctx, page, linkedInApplyButton); err != nil || !found {
		return StepResult{}, Fail(NavigationFailure, "open Easy Apply", err)
	}

	var rep FillReport
	for step := 0; step < l.opts.MaxFormSteps; step++ {
		if err := ctx.Err(); err != nil {
			return StepResult{}, err
		}

		rep.merge(FillAll(ctx, page, DefaultFieldRules, a.Applicant))
		if _, err := attachResume(ctx, page, a); err != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("resume: %w", err))
		}

		if _, err := page.Find(ctx, linkedInSubmitButton); err == nil {
			return l.fillResult(rep, step+1)
		}

		advanced := false
		for _, sel := range []string{linkedInNextButton, linkedInReviewButton} {
			found, err := clickFirst(ctx, page, sel)
			if err != nil {
				return StepResult{}, Fail(FormFillFailure, "advance form", err)
			}
			if found {
				advanced = true
				break
			}
		}
		if !advanced {
			break
		}
	}

	if err := rep.Err(); err != nil {
		return StepResult{}, Fail(FormFillFailure, "form fields", err)
	}
	return StepResult{}, Fail(FormFillFailure, "submit step not reached", nil)
}

func (l *LinkedIn) fillResult(rep FillReport, steps int) (StepResult, error) {
	note := fmt.Sprintf("%d steps, %d fields", steps, rep.Filled+rep.Selected+rep.Checked)
	if err := rep.Err(); err != nil {
		return done(note), Fail(FormFillFailure, "some fields could not be filled", err)
	}
	return done(note), nil
}

func (l *LinkedIn) UploadResume(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	return uploadStep(ctx, page, a)
}

func (l *LinkedIn) Submit(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	btn, err := page.Find(ctx, linkedInSubmitButton)
	if err != nil {
		return StepResult{}, Fail(SubmissionFailure, "submit button not found", err)
	}
	if err := btn.Click(ctx); err != nil {
		return StepResult{}, Fail(SubmissionFailure, "click submit", err)
	}

	confirmed := waitUntil(ctx, l.opts.ElementWait, func() bool { return l.confirmed(ctx, page) })
	if !confirmed {
		l.opts.Logger.Warn("No submission confirmation observed", map[string]interface{}{"url": a.JobURL})
	}
	return StepResult{Outcome: Completed, Confirmed: confirmed}, nil
}

func (l *LinkedIn) confirmed(ctx context.Context, page browser.Page) bool {
	if header, err := page.Find(ctx, linkedInModalHeader); err == nil {
		if text, err := header.Text(); err == nil && textContainsAny(text, "application sent", "submitted") {
			return true
		}
	}
	_, err := page.Find(ctx, linkedInSuccessToast)
	return err == nil
}

// uploadStep finishes resume attachment on the current form page.
func uploadStep(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	if a.resumeAttached {
		return done("attached during form"), nil
	}
	if a.ResumePath == "" {
		return skipped("no resume file"), nil
	}
	ok, err := attachResume(ctx, a.formScope(page), a)
	if err != nil {
		return StepResult{}, Fail(UploadFailure, "attach resume", err)
	}
	if !ok {
		return skipped("no file input"), nil
	}
	return done(""), nil
}
