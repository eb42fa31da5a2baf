package engine

import "time"

// OutcomeKind names how a loop ended.
type OutcomeKind string

const (
	OutcomeSuccess       OutcomeKind = "success"
	OutcomeMaxIterations OutcomeKind = "max_iterations_reached"
	OutcomeInterrupted   OutcomeKind = "interrupted"
	OutcomeFailed        OutcomeKind = "failed"
)

// Outcome is the final result of a loop run.
type Outcome struct {
	Kind       OutcomeKind       `json:"status"`
	Iterations int               `json:"iterations"`
	Summary    string            `json:"summary,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Error      string            `json:"error,omitempty"`
	Duration   time.Duration     `json:"-"`
	Seconds    float64           `json:"total_duration_secs"`
	History    []IterationRecord `json:"-"`
}

// Success reports whether the critic accepted the work.
func (o *Outcome) Success() bool {
	return o.Kind == OutcomeSuccess
}

// ExitCode maps the outcome to a process exit code: 0 success, 1 iteration
// cap, 130 interrupted, 2 failure.
func (o *Outcome) ExitCode() int {
	switch o.Kind {
	case OutcomeSuccess:
		return 0
	case OutcomeMaxIterations:
		return 1
	case OutcomeInterrupted:
		return 130
	default:
		return 2
	}
}

func newOutcome(kind OutcomeKind, c *Context) *Outcome {
	d := c.TotalDuration()
	return &Outcome{
		Kind:       kind,
		Iterations: c.Iteration,
		Duration:   d,
		Seconds:    d.Seconds(),
		History:    c.History,
	}
}
