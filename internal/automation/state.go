package automation

// State is a position in the apply flow
type State int

const (
	StateInit State = iota
	StateLoggedIn
	StateOnJobPage
	StateFormFilled
	StateResumeAttached
	StateSubmitted
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLoggedIn:
		return "logged_in"
	case StateOnJobPage:
		return "on_job_page"
	case StateFormFilled:
		return "form_filled"
	case StateResumeAttached:
		return "resume_attached"
	case StateSubmitted:
		return "submitted"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is how a step that returned no error finished
type Outcome int

const (
	Completed Outcome = iota
	SkippedOptional
)

func (o Outcome) String() string {
	if o == SkippedOptional {
		return "skipped_optional"
	}
	return "completed"
}

// StepResult is what a platform step reports back
type StepResult struct {
	Outcome Outcome
	Note    string
	// Confirmed is set by Submit when a confirmation was observed
	Confirmed bool
}

func done(note string) StepResult    { return StepResult{Outcome: Completed, Note: note} }
func skipped(note string) StepResult { return StepResult{Outcome: SkippedOptional, Note: note} }
