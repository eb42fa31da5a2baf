package agent

import "context"

// defaultCursorModel is used when no model is configured; the cursor CLI
// requires one in non-interactive mode.
const defaultCursorModel = "opus-4.5-thinking"

// Cursor drives the cursor CLI in agent mode.
type Cursor struct {
	binary string
}

// NewCursor creates a Cursor agent using the cursor binary on PATH.
func NewCursor() *Cursor {
	return &Cursor{binary: "cursor"}
}

// NewCursorAt uses an explicit binary path.
func NewCursorAt(path string) *Cursor {
	return &Cursor{binary: path}
}

func (a *Cursor) Name() string    { return "Cursor" }
func (a *Cursor) AgentType() Type { return TypeCursor }

func (a *Cursor) Available(ctx context.Context) bool {
	return binaryAvailable(ctx, a.binary)
}

func (a *Cursor) Execute(ctx context.Context, prompt string, cfg Config) (*Output, error) {
	return a.ExecuteStream(ctx, prompt, cfg, nil)
}

func (a *Cursor) ExecuteStream(ctx context.Context, prompt string, cfg Config, fn StreamFunc) (*Output, error) {
	model := cfg.Model
	if model == "" {
		model = defaultCursorModel
	}
	args := []string{"agent", "-p", prompt, "--model", model, "--output-format", "text"}
	return Spawn(ctx, a.binary, args, cfg, fn)
}
