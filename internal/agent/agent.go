// Package agent abstracts the coding agents the loop drives. Each agent
// takes a prompt, works inside a working directory, and returns captured
// output. CLI agents run as subprocesses; the Gemini agent calls the API
// directly.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Errors returned by agent execution.
var (
	ErrNotAvailable = errors.New("agent binary not available")
	ErrTimeout      = errors.New("agent execution timed out")
)

// Type identifies a supported agent.
type Type string

const (
	TypeClaudeCode Type = "claude-code"
	TypeOpenCode   Type = "opencode"
	TypeCursor     Type = "cursor"
	TypeGemini     Type = "gemini"
)

// ParseType resolves a user-supplied agent name, accepting common aliases.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "claude", "claude-code", "claudecode":
		return TypeClaudeCode, nil
	case "opencode", "open-code":
		return TypeOpenCode, nil
	case "cursor":
		return TypeCursor, nil
	case "gemini", "genai":
		return TypeGemini, nil
	}
	return "", fmt.Errorf("unknown agent type: %q", s)
}

// Config controls one agent execution.
type Config struct {
	WorkingDir string
	Timeout    time.Duration // zero means no limit
	Env        map[string]string
	Model      string
}

// StreamFunc receives output lines as the agent produces them.
type StreamFunc func(line string, stderr bool)

// Agent is the core abstraction for coding agents.
type Agent interface {
	// Name is the human-readable agent name.
	Name() string

	// AgentType identifies the implementation.
	AgentType() Type

	// Available reports whether the agent can run on this system.
	Available(ctx context.Context) bool

	// Execute runs the prompt to completion.
	Execute(ctx context.Context, prompt string, cfg Config) (*Output, error)

	// ExecuteStream runs the prompt, invoking fn for each output line.
	// fn may be nil.
	ExecuteStream(ctx context.Context, prompt string, cfg Config, fn StreamFunc) (*Output, error)
}

// New creates an agent of the given type. The Gemini agent needs an API key
// and is constructed via NewGemini instead.
func New(t Type) (Agent, error) {
	switch t {
	case TypeClaudeCode:
		return NewClaudeCode(), nil
	case TypeOpenCode:
		return NewOpenCode(), nil
	case TypeCursor:
		return NewCursor(), nil
	case TypeGemini:
		return nil, fmt.Errorf("gemini agent requires an API key, use NewGemini")
	}
	return nil, fmt.Errorf("unknown agent type: %q", t)
}

// Output captures the result of one agent execution.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Success reports whether the agent exited cleanly.
func (o *Output) Success() bool {
	return o.ExitCode == 0
}

// StdoutLines counts lines in stdout.
func (o *Output) StdoutLines() int {
	if o.Stdout == "" {
		return 0
	}
	return strings.Count(o.Stdout, "\n") + 1
}

// StderrLines counts lines in stderr.
func (o *Output) StderrLines() int {
	if o.Stderr == "" {
		return 0
	}
	return strings.Count(o.Stderr, "\n") + 1
}

// Combined merges stdout and stderr for display.
func (o *Output) Combined() string {
	switch {
	case o.Stderr == "":
		return o.Stdout
	case o.Stdout == "":
		return o.Stderr
	}
	return o.Stdout + "\n\n--- stderr ---\n" + o.Stderr
}
