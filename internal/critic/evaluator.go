package critic

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"codeloops/internal/agent"
	"codeloops/internal/graph"
)

// EvaluationInput is everything the critic sees for one iteration.
type EvaluationInput struct {
	Task        string
	ActorStdout string
	ActorStderr string
	GitDiff     string
	Iteration   int
}

// Evaluator runs the critic agent and parses its output.
type Evaluator struct {
	agent  agent.Agent
	logger *zap.Logger
}

// NewEvaluator creates an evaluator backed by the given critic agent.
func NewEvaluator(a agent.Agent, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{agent: a, logger: logger}
}

// Evaluate judges one actor iteration and returns the loop decision.
// fn, when non-nil, receives the critic's output lines as they stream.
func (e *Evaluator) Evaluate(ctx context.Context, in EvaluationInput, cfg agent.Config, fn agent.StreamFunc) (*Decision, error) {
	prompt := EvaluationPrompt(in.Task, in.ActorStdout, in.ActorStderr, in.GitDiff, in.Iteration)

	e.logger.Debug("running critic evaluation",
		zap.Int("iteration", in.Iteration),
		zap.Int("prompt_len", len(prompt)))

	out, err := e.agent.ExecuteStream(ctx, prompt, cfg, fn)
	if err != nil {
		return nil, fmt.Errorf("critic execution: %w", err)
	}

	e.logger.Info("critic completed",
		zap.Int("exit_code", out.ExitCode),
		zap.Duration("duration", out.Duration))

	if out.ExitCode != 0 {
		return nil, fmt.Errorf("critic exited with code %d", out.ExitCode)
	}

	decision, err := ParseDecision(out.Stdout)
	if err != nil {
		return nil, fmt.Errorf("parse critic decision: %w", err)
	}
	return decision, nil
}

// ReviewNode asks the critic to review a single thought node and returns
// the parsed verdict, with the revision policy already applied.
func (e *Evaluator) ReviewNode(ctx context.Context, node *graph.Node, mgr *graph.Manager, rc *graph.RevisionCounter, cfg agent.Config) (*Review, error) {
	chain, err := mgr.ResolveChain(node.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve ancestry: %w", err)
	}

	prompt := NodeReviewPrompt(node, chain, rc.Max())
	out, err := e.agent.Execute(ctx, prompt, cfg)
	if err != nil {
		return nil, fmt.Errorf("critic execution: %w", err)
	}
	if out.ExitCode != 0 {
		return nil, fmt.Errorf("critic exited with code %d", out.ExitCode)
	}

	review, err := ParseReview(out.Stdout)
	if err != nil {
		return nil, err
	}
	review.Verdict = rc.Apply(node.ID, review.Verdict)
	if review.Verdict == graph.VerdictReject && review.VerdictReason == "" {
		review.VerdictReason = fmt.Sprintf("revision attempts exhausted (max %d)", rc.Max())
	}
	return review, nil
}
