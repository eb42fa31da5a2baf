// Package engine orchestrates the actor/critic loop: run the actor, capture
// the git diff, let the critic judge the result, and either finish or feed
// the critique back into the next iteration.
package engine

import (
	"time"

	"codeloops/internal/critic"
)

// IterationRecord captures one completed actor/critic cycle.
type IterationRecord struct {
	IterationNumber int       `json:"iteration_number"`
	ActorOutput     string    `json:"actor_output"`
	ActorStderr     string    `json:"actor_stderr"`
	ActorExitCode   int       `json:"actor_exit_code"`
	ActorDuration   float64   `json:"actor_duration_secs"`
	GitDiff         string    `json:"git_diff"`
	GitFilesChanged int       `json:"git_files_changed"`
	CriticDecision  string    `json:"critic_decision"`
	Timestamp       time.Time `json:"timestamp"`
}

// Context carries the loop state across iterations.
type Context struct {
	Prompt        string
	WorkingDir    string
	Iteration     int // zero-based
	History       []IterationRecord
	MaxIterations int // zero means unlimited
	LastFeedback  string

	startedAt time.Time
}

// NewContext starts a loop context for the given task.
func NewContext(prompt, workingDir string) *Context {
	return &Context{
		Prompt:     prompt,
		WorkingDir: workingDir,
		startedAt:  time.Now(),
	}
}

// WithMaxIterations caps the loop.
func (c *Context) WithMaxIterations(max int) *Context {
	c.MaxIterations = max
	return c
}

// ShouldContinue reports whether another iteration is allowed.
func (c *Context) ShouldContinue() bool {
	return c.MaxIterations == 0 || c.Iteration < c.MaxIterations
}

// TotalDuration is the elapsed wall time since the loop started.
func (c *Context) TotalDuration() time.Duration {
	return time.Since(c.startedAt)
}

// CurrentPrompt is the original task on the first iteration; afterwards it
// folds the critic's latest feedback into a continuation prompt.
func (c *Context) CurrentPrompt() string {
	if c.Iteration == 0 || c.LastFeedback == "" {
		return c.Prompt
	}
	return critic.ContinuationPrompt(c.Prompt, c.LastFeedback)
}
