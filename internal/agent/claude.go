package agent

import "context"

// ClaudeCode drives the claude CLI in non-interactive print mode.
type ClaudeCode struct {
	binary string
}

// NewClaudeCode creates a Claude Code agent using the claude binary on PATH.
func NewClaudeCode() *ClaudeCode {
	return &ClaudeCode{binary: "claude"}
}

// NewClaudeCodeAt uses an explicit binary path.
func NewClaudeCodeAt(path string) *ClaudeCode {
	return &ClaudeCode{binary: path}
}

func (a *ClaudeCode) Name() string    { return "Claude Code" }
func (a *ClaudeCode) AgentType() Type { return TypeClaudeCode }

func (a *ClaudeCode) Available(ctx context.Context) bool {
	return binaryAvailable(ctx, a.binary)
}

func (a *ClaudeCode) Execute(ctx context.Context, prompt string, cfg Config) (*Output, error) {
	return a.ExecuteStream(ctx, prompt, cfg, nil)
}

func (a *ClaudeCode) ExecuteStream(ctx context.Context, prompt string, cfg Config, fn StreamFunc) (*Output, error) {
	args := []string{"--print", "--dangerously-skip-permissions"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	// "--" keeps prompts that begin with a dash from being read as flags.
	args = append(args, "--", prompt)
	return Spawn(ctx, a.binary, args, cfg, fn)
}
