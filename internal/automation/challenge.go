package automation

import (
	"context"
	"fmt"

	"jobpilot/internal/browser"
	"jobpilot/internal/captcha"
	"jobpilot/internal/logging/types"
)

// clearChallenge looks for a captcha on the current page and, when a solver
// is configured and the widget is solvable, injects a solved token. A
// detected challenge that cannot be solved is a LoginFailure.
func clearChallenge(ctx context.Context, page browser.Page, solver captcha.Solver, logger types.Logger) (bool, error) {
	html, err := page.HTML()
	if err != nil {
		return false, Fail(LoginFailure, "read login page", err)
	}

	ch := captcha.Detect(page.URL(), html)
	if ch.Kind == captcha.KindNone {
		return false, nil
	}

	logger.Warn("Login challenge detected", map[string]interface{}{
		"kind": string(ch.Kind),
		"url":  page.URL(),
	})

	if solver == nil || !ch.Solvable() {
		return true, Fail(LoginFailure, "captcha or security challenge detected", nil)
	}

	token, err := solver.Solve(ctx, ch, page.URL())
	if err != nil {
		return true, Fail(LoginFailure, "captcha solve failed", err)
	}
	if _, err := page.Eval(captcha.InjectionScript(ch.Kind, token)); err != nil {
		return true, Fail(LoginFailure, fmt.Sprintf("inject %s token", ch.Kind), err)
	}
	return true, nil
}
