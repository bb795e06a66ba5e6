package automation

import (
	"context"
	"fmt"
	"strings"

	"jobpilot/internal/browser"
)

const (
	indeedApplyButton    = "#indeedApplyButton, .indeed-apply-button"
	indeedApplyFrame     = `iframe[name="indeed-ia-container"]`
	indeedContinueButton = "button.ia-continueButton"
	indeedSubmitButtons  = `button[type="submit"], button.ia-continueButton, button[id*="apply"], button[class*="submit"]`
)

var indeedSuccessTexts = []string{
	"application sent",
	"application submitted",
	"successfully applied",
	"thanks for applying",
	"your application has been submitted",
}

// Indeed applies through Indeed Apply, which renders its form in an iframe
// on most postings.
type Indeed struct {
	opts     Options
	loginURL string
}

func NewIndeed(opts Options) *Indeed {
	opts = opts.withDefaults("https://www.indeed.com")
	opts.Logger = opts.Logger.WithField("platform", "indeed")
	return &Indeed{opts: opts, loginURL: "https://secure.indeed.com/account/login"}
}

func (i *Indeed) Name() string { return "indeed" }

func (i *Indeed) authenticated(page browser.Page) bool {
	u := strings.ToLower(page.URL())
	if strings.Contains(u, "/account/login") || strings.Contains(u, "/auth") {
		return false
	}
	return strings.Contains(u, "indeed.com/account") || strings.Contains(u, "/jobs") ||
		strings.HasPrefix(u, strings.ToLower(i.opts.BaseURL))
}

func (i *Indeed) Login(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	if a.Credential.HasCookies() {
		if err := page.SetCookies(a.Credential.Cookies); err != nil {
			return StepResult{}, Fail(LoginFailure, "set session cookies", err)
		}
		if err := page.Navigate(ctx, "https://secure.indeed.com/account/view"); err != nil {
			return StepResult{}, Fail(LoginFailure, "open account page", err)
		}
		if i.authenticated(page) {
			return done("session cookies"), nil
		}
		i.opts.Logger.Info("Session cookies rejected, falling back to password login", map[string]interface{}{})
	}

	if !a.Credential.HasPassword() {
		return StepResult{}, Fail(LoginFailure, "no usable session or password", nil)
	}

	if err := page.Navigate(ctx, i.loginURL); err != nil {
		return StepResult{}, Fail(LoginFailure, "open login page", err)
	}

	email, err := page.WaitFor(ctx, "#login-email-input", i.opts.ElementWait)
	if err != nil {
		return StepResult{}, Fail(LoginFailure, "email field", err)
	}
	if err := email.Input(ctx, a.Credential.Username); err != nil {
		return StepResult{}, Fail(LoginFailure, "type email", err)
	}
	pass, err := page.Find(ctx, "#login-password-input")
	if err != nil {
		return StepResult{}, Fail(LoginFailure, "password field", err)
	}
	if err := pass.Input(ctx, a.Credential.Password); err != nil {
		return StepResult{}, Fail(LoginFailure, "type password", err)
	}
	if found, err := clickFirst(ctx, page, `button[type="submit"]`); err != nil || !found {
		return StepResult{}, Fail(LoginFailure, "submit login form", err)
	}

	if waitUntil(ctx, i.opts.ElementWait, func() bool { return i.authenticated(page) }) {
		return done("password"), nil
	}

	challenged, err := clearChallenge(ctx, page, i.opts.Solver, i.opts.Logger)
	if err != nil {
		return StepResult{}, err
	}
	if challenged && waitUntil(ctx, i.opts.ElementWait, func() bool { return i.authenticated(page) }) {
		return done("password after captcha"), nil
	}

	return StepResult{}, Fail(LoginFailure, fmt.Sprintf("login did not complete, landed on %s", page.URL()), nil)
}

func (i *Indeed) NavigateToJob(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	if err := page.Navigate(ctx, a.JobURL); err != nil {
		return StepResult{}, Fail(NavigationFailure, "open job page", err)
	}
	if _, err := page.WaitFor(ctx, indeedApplyButton, i.opts.ElementWait); err != nil {
		return StepResult{}, Fail(NavigationFailure, "Indeed Apply button not found", err)
	}
	return done(""), nil
}

func (i *Indeed) FillForm(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	if found, err := clickFirst(ctx, page, indeedApplyButton); err != nil || !found {
		return StepResult{}, Fail(NavigationFailure, "open Indeed Apply", err)
	}

	// the form lives in an iframe when present, otherwise on the page
	if _, err := page.WaitFor(ctx, indeedApplyFrame, i.opts.ElementWait); err == nil {
		if frame, err := page.Frame(ctx, indeedApplyFrame); err == nil {
			a.form = frame
		}
	}
	scope := a.formScope(page)

	var rep FillReport
	steps := 0
	for steps < i.opts.MaxFormSteps {
		if err := ctx.Err(); err != nil {
			return StepResult{}, err
		}
		steps++

		rep.merge(FillAll(ctx, scope, DefaultFieldRules, a.Applicant))
		if _, err := attachResume(ctx, scope, a); err != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("resume: %w", err))
		}

		cont, err := scope.Find(ctx, indeedContinueButton)
		if err != nil {
			break
		}
		// the last continue button is the submit
		if text, _ := cont.Text(); textContainsAny(text, "submit", "apply") {
			break
		}
		if err := cont.Click(ctx); err != nil {
			return StepResult{}, Fail(FormFillFailure, "advance form", err)
		}
	}

	note := fmt.Sprintf("%d steps, %d fields", steps, rep.Filled+rep.Selected+rep.Checked)
	if err := rep.Err(); err != nil {
		return done(note), Fail(FormFillFailure, "some fields could not be filled", err)
	}
	return done(note), nil
}

func (i *Indeed) UploadResume(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	return uploadStep(ctx, page, a)
}

func (i *Indeed) Submit(ctx context.Context, page browser.Page, a *Attempt) (StepResult, error) {
	scope := a.formScope(page)

	btn, err := scope.Find(ctx, indeedSubmitButtons)
	if err != nil {
		return StepResult{}, Fail(SubmissionFailure, "submit button not found", err)
	}
	if err := btn.Click(ctx); err != nil {
		return StepResult{}, Fail(SubmissionFailure, "click submit", err)
	}

	confirmed := waitUntil(ctx, i.opts.ElementWait, func() bool {
		return i.confirmed(page) || (scope != page && i.confirmed(scope))
	})
	if !confirmed {
		i.opts.Logger.Warn("No submission confirmation observed", map[string]interface{}{"url": a.JobURL})
	}
	return StepResult{Outcome: Completed, Confirmed: confirmed}, nil
}

func (i *Indeed) confirmed(scope browser.Page) bool {
	html, err := scope.HTML()
	if err != nil {
		return false
	}
	return textContainsAny(html, indeedSuccessTexts...)
}
