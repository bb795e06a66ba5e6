package automation

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an attempt, or a step of it, went wrong
type FailureKind string

const (
	LoginFailure             FailureKind = "login_failure"
	NavigationFailure        FailureKind = "navigation_failure"
	FormFillFailure          FailureKind = "form_fill_failure"
	UploadFailure            FailureKind = "upload_failure"
	SubmissionFailure        FailureKind = "submission_failure"
	RateLimitExceeded        FailureKind = "rate_limit_exceeded"
	SubscriptionLimitReached FailureKind = "subscription_limit_reached"
	CredentialMissing        FailureKind = "credential_missing"
	AttemptTimeout           FailureKind = "attempt_timeout"
	UnknownFailure           FailureKind = "unknown"
)

// Degrading reports whether the flow continues after a failure of this kind.
func (k FailureKind) Degrading() bool {
	return k == FormFillFailure || k == UploadFailure
}

// Failure is an attempt error tagged with its kind and the state it hit
type Failure struct {
	Kind  FailureKind
	State State
	Msg   string
	Err   error
}

func (f *Failure) Error() string {
	switch {
	case f.Msg != "" && f.Err != nil:
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Msg, f.Err)
	case f.Msg != "":
		return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	default:
		return string(f.Kind)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// Fail builds a Failure with a message and optional cause.
func Fail(kind FailureKind, msg string, err error) *Failure {
	return &Failure{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the FailureKind carried by err, or UnknownFailure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return UnknownFailure
}

// asFailure tags an untyped step error with the step's default kind.
func asFailure(err error, kind FailureKind, state State) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		if f.State == StateInit {
			f.State = state
		}
		return f
	}
	return &Failure{Kind: kind, State: state, Err: err}
}
