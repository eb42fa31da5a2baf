package agent

import "context"

// OpenCode drives the opencode CLI.
type OpenCode struct {
	binary string
}

// NewOpenCode creates an OpenCode agent using the opencode binary on PATH.
func NewOpenCode() *OpenCode {
	return &OpenCode{binary: "opencode"}
}

// NewOpenCodeAt uses an explicit binary path.
func NewOpenCodeAt(path string) *OpenCode {
	return &OpenCode{binary: path}
}

func (a *OpenCode) Name() string    { return "OpenCode" }
func (a *OpenCode) AgentType() Type { return TypeOpenCode }

func (a *OpenCode) Available(ctx context.Context) bool {
	return binaryAvailable(ctx, a.binary)
}

func (a *OpenCode) Execute(ctx context.Context, prompt string, cfg Config) (*Output, error) {
	return a.ExecuteStream(ctx, prompt, cfg, nil)
}

func (a *OpenCode) ExecuteStream(ctx context.Context, prompt string, cfg Config, fn StreamFunc) (*Output, error) {
	args := []string{"run"}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	args = append(args, "--prompt", prompt)
	return Spawn(ctx, a.binary, args, cfg, fn)
}
