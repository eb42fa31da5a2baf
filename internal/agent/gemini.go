package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// defaultGeminiModel is used when no model is configured.
const defaultGeminiModel = "gemini-2.5-flash"

// Gemini calls the Gemini API directly instead of shelling out to a CLI.
// It cannot edit files, so it is only useful for the critic role.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed agent.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini agent requires an API key")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (a *Gemini) Name() string    { return "Gemini" }
func (a *Gemini) AgentType() Type { return TypeGemini }

// Available always reports true; failures surface at execution time.
func (a *Gemini) Available(ctx context.Context) bool {
	return a.client != nil
}

func (a *Gemini) Execute(ctx context.Context, prompt string, cfg Config) (*Output, error) {
	return a.ExecuteStream(ctx, prompt, cfg, nil)
}

func (a *Gemini) ExecuteStream(ctx context.Context, prompt string, cfg Config, fn StreamFunc) (*Output, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	model := a.model
	if cfg.Model != "" {
		model = cfg.Model
	}

	start := time.Now()
	resp, err := a.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, duration.Round(time.Second))
		}
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if fn != nil {
		for _, line := range strings.Split(text, "\n") {
			fn(line, false)
		}
	}
	return &Output{Stdout: text, ExitCode: 0, Duration: duration}, nil
}
