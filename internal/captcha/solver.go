// Package captcha detects login challenges and solves them through 2Captcha.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"time"

	api2captcha "github.com/2captcha/2captcha-go"

	"jobpilot/internal/logging/types"
)

var ErrSolvingDisabled = errors.New("captcha auto-solve is disabled")

// Solver turns a challenge into a response token
type Solver interface {
	Solve(ctx context.Context, challenge Challenge, pageURL string) (string, error)
}

// Config configures TwoCaptchaSolver
type Config struct {
	APIKey  string
	Timeout time.Duration
	Enabled bool
}

// TwoCaptchaSolver implements Solver with the 2Captcha service
type TwoCaptchaSolver struct {
	cfg    Config
	client *api2captcha.Client
	logger types.Logger
}

func NewTwoCaptchaSolver(cfg Config, logger types.Logger) *TwoCaptchaSolver {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	logger = logger.WithField("component", "2captcha")

	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	client := api2captcha.NewClient(cfg.APIKey)
	client.DefaultTimeout = int(cfg.Timeout.Seconds())
	client.RecaptchaTimeout = int(cfg.Timeout.Seconds())
	client.PollingInterval = 5

	if cfg.APIKey == "" {
		logger.Warn("2Captcha API key not configured, captcha solving disabled", map[string]interface{}{})
	} else {
		logger.Info("2Captcha solver configured", map[string]interface{}{
			"timeout":           client.DefaultTimeout,
			"enable_auto_solve": cfg.Enabled,
		})
	}

	return &TwoCaptchaSolver{cfg: cfg, client: client, logger: logger}
}

// Solve blocks until 2Captcha returns a token, the timeout elapses or ctx is done.
func (s *TwoCaptchaSolver) Solve(ctx context.Context, challenge Challenge, pageURL string) (string, error) {
	if !s.cfg.Enabled || s.cfg.APIKey == "" {
		return "", ErrSolvingDisabled
	}

	var req api2captcha.Request
	switch challenge.Kind {
	case KindRecaptcha:
		req = (&api2captcha.ReCaptcha{SiteKey: challenge.SiteKey, Url: pageURL}).ToRequest()
	case KindTurnstile:
		req = (&api2captcha.CloudflareTurnstile{SiteKey: challenge.SiteKey, Url: pageURL}).ToRequest()
	default:
		return "", fmt.Errorf("unsupported challenge %q", challenge.Kind)
	}

	fields := map[string]interface{}{
		"kind":     string(challenge.Kind),
		"site_key": challenge.SiteKey,
		"page_url": pageURL,
	}
	s.logger.Info("Starting captcha solve", fields)
	start := time.Now()

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, _, err := s.client.Solve(req)
		done <- result{code, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			s.logger.Error("Failed to solve captcha", fields, map[string]interface{}{"error": r.err.Error()})
			return "", fmt.Errorf("failed to solve %s: %w", challenge.Kind, r.err)
		}
		s.logger.Info("Captcha solved", fields, map[string]interface{}{"solving_time": time.Since(start).String()})
		return r.code, nil
	}
}

// Balance reports the account balance; used by the readiness probe.
func (s *TwoCaptchaSolver) Balance() (float64, error) {
	if s.cfg.APIKey == "" {
		return 0, ErrSolvingDisabled
	}
	return s.client.GetBalance()
}
