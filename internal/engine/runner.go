package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"codeloops/internal/agent"
	"codeloops/internal/critic"
	"codeloops/internal/gitdiff"
	"codeloops/internal/graph"
	"codeloops/internal/logging"
	"codeloops/internal/session"
	"codeloops/internal/store"
)

// Config wires a Runner. Actor, Critic, and Recorder are required; Writer
// and Store are optional persistence sinks.
type Config struct {
	Actor        agent.Agent
	Critic       agent.Agent
	Recorder     *logging.Recorder
	Logger       *zap.Logger
	Revisions    *graph.RevisionCounter
	Writer       *session.Writer
	Store        *store.Store
	Diffs        *gitdiff.Capture
	ActorModel   string
	CriticModel  string
	AgentTimeout time.Duration
}

// Runner drives the actor/critic loop to an Outcome.
type Runner struct {
	actor     agent.Agent
	critic    agent.Agent
	evaluator *critic.Evaluator
	diffs     *gitdiff.Capture
	rec       *logging.Recorder
	logger    *zap.Logger
	revisions *graph.RevisionCounter
	writer    *session.Writer
	db        *store.Store
	graph     *graph.Manager

	actorModel   string
	criticModel  string
	agentTimeout time.Duration
	sessionID    string
}

// NewRunner builds a runner from the config.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	diffs := cfg.Diffs
	if diffs == nil {
		diffs = gitdiff.NewCapture()
	}
	rec := cfg.Recorder
	if rec == nil {
		rec = logging.NewRecorder(logger, logging.FormatCompact)
	}
	return &Runner{
		actor:        cfg.Actor,
		critic:       cfg.Critic,
		evaluator:    critic.NewEvaluator(cfg.Critic, logger),
		diffs:        diffs,
		rec:          rec,
		logger:       logger,
		revisions:    cfg.Revisions,
		writer:       cfg.Writer,
		db:           cfg.Store,
		graph:        graph.NewManager(),
		actorModel:   cfg.ActorModel,
		criticModel:  cfg.CriticModel,
		agentTimeout: cfg.AgentTimeout,
	}
}

// Graph exposes the knowledge graph accumulated so far.
func (r *Runner) Graph() *graph.Manager { return r.graph }

// SessionID returns the database session id, if a store is attached.
func (r *Runner) SessionID() string { return r.sessionID }

// Run executes the loop until the critic is satisfied, the iteration cap is
// hit, the context is cancelled, or an iteration fails.
func (r *Runner) Run(ctx context.Context, loop *Context) (*Outcome, error) {
	r.rec.Record(logging.EvLoopStarted(loop.Prompt, loop.WorkingDir))
	r.openSession(loop)

	for {
		if ctx.Err() != nil {
			r.logger.Info("loop interrupted")
			return r.finish(newOutcome(OutcomeInterrupted, loop)), nil
		}
		if !loop.ShouldContinue() {
			r.rec.Record(logging.EvLoopLimit(loop.Iteration))
			return r.finish(newOutcome(OutcomeMaxIterations, loop)), nil
		}

		outcome, err := r.runIteration(ctx, loop)
		switch {
		case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
			r.logger.Info("loop interrupted mid-iteration")
			return r.finish(newOutcome(OutcomeInterrupted, loop)), nil
		case err != nil:
			r.rec.Record(logging.EvLoopError(loop.Iteration, err.Error()))
			loop.Iteration++
			failed := newOutcome(OutcomeFailed, loop)
			failed.Error = err.Error()
			return r.finish(failed), nil
		case outcome != nil:
			return r.finish(outcome), nil
		}
	}
}

// runIteration performs one actor/critic cycle. A non-nil Outcome ends the
// loop; (nil, nil) means the critique was folded into the next prompt.
func (r *Runner) runIteration(ctx context.Context, loop *Context) (*Outcome, error) {
	iteration := loop.Iteration
	prompt := loop.CurrentPrompt()
	r.rec.Record(logging.EvActorStarted(iteration, preview(prompt, 100)))

	actorOut, err := r.actor.ExecuteStream(ctx, prompt, r.agentConfig(loop, r.actorModel),
		r.streamFunc(iteration, logging.RoleActor))
	if err != nil {
		return nil, fmt.Errorf("actor %s: %w", r.actor.Name(), err)
	}
	r.rec.Record(logging.EvActorCompleted(iteration, actorOut.ExitCode, actorOut.Duration))

	diff, err := r.diffs.Diff(ctx, loop.WorkingDir)
	if err != nil {
		r.logger.Warn("git diff capture failed", zap.Error(err))
		diff = ""
	}
	diffSummary, err := r.diffs.Summary(ctx, loop.WorkingDir)
	if err != nil {
		r.logger.Warn("git diff summary failed", zap.Error(err))
	}
	r.rec.Record(logging.EvDiffCaptured(iteration,
		diffSummary.FilesChanged, diffSummary.Insertions, diffSummary.Deletions))

	r.rec.Record(logging.EvCriticStarted(iteration))
	decision, err := r.evaluator.Evaluate(ctx, critic.EvaluationInput{
		Task:        loop.Prompt,
		ActorStdout: actorOut.Stdout,
		ActorStderr: actorOut.Stderr,
		GitDiff:     diff,
		Iteration:   iteration,
	}, r.agentConfig(loop, r.criticModel), r.streamFunc(iteration, logging.RoleCritic))
	if err != nil {
		return nil, fmt.Errorf("critic %s: %w", r.critic.Name(), err)
	}
	r.rec.Record(logging.EvCriticDone(iteration, decision.Short()))

	record := IterationRecord{
		IterationNumber: iteration,
		ActorOutput:     actorOut.Stdout,
		ActorStderr:     actorOut.Stderr,
		ActorExitCode:   actorOut.ExitCode,
		ActorDuration:   actorOut.Duration.Seconds(),
		GitDiff:         diff,
		GitFilesChanged: diffSummary.FilesChanged,
		CriticDecision:  decision.Short(),
		Timestamp:       time.Now().UTC(),
	}
	loop.History = append(loop.History, record)

	feedback := decisionFeedback(decision)
	verdict := r.recordNodes(loop, actorOut.Stdout, decision, feedback)
	r.persistIteration(record, feedback)

	loop.Iteration++

	switch {
	case decision.IsDone():
		out := newOutcome(OutcomeSuccess, loop)
		out.Summary = decision.Summary
		out.Confidence = decision.Confidence
		r.rec.Record(logging.EvLoopCompleted(out.Iterations, out.Summary, out.Duration))
		return out, nil
	case verdict == graph.VerdictReject:
		out := newOutcome(OutcomeFailed, loop)
		out.Error = fmt.Sprintf("revision limit reached after %d attempts: %s",
			r.revisions.Max(), preview(feedback, 200))
		r.rec.Record(logging.EvLoopError(iteration, out.Error))
		return out, nil
	default:
		loop.LastFeedback = feedback
		return nil, nil
	}
}

// recordNodes appends the iteration's actor and critic nodes to the
// knowledge graph and returns the critic verdict after revision policy.
func (r *Runner) recordNodes(loop *Context, actorOutput string, decision *critic.Decision, feedback string) graph.Verdict {
	actorNode := &graph.Node{
		Thought: preview(actorOutput, 2000),
		Role:    graph.RoleActor,
		Tags:    []string{"task"},
	}
	if prev := r.graph.Heads(); len(prev) > 0 {
		actorNode.Parents = []string{prev[len(prev)-1].ID}
	}
	if actorNode.Thought == "" {
		actorNode.Thought = preview(loop.CurrentPrompt(), 2000)
	}
	if err := r.graph.Append(actorNode); err != nil {
		r.logger.Warn("graph append failed", zap.Error(err))
		return verdictFor(decision)
	}
	r.rec.Record(logging.EvNodeAppended(actorNode.ID, logging.RoleActor, ""))

	verdict := verdictFor(decision)
	if r.revisions != nil {
		verdict = r.revisions.Apply(r.revisionKey(), verdict)
	}
	reason := feedback
	if verdict == graph.VerdictNeedsRevision && reason == "" {
		reason = "critic requested another iteration"
	}
	criticNode := &graph.Node{
		Thought:       preview(feedback, 2000),
		Role:          graph.RoleCritic,
		Verdict:       verdict,
		VerdictReason: reason,
		Target:        actorNode.ID,
		Parents:       []string{actorNode.ID},
		NeedsMore:     decision.IsContinue(),
	}
	if criticNode.Thought == "" {
		criticNode.Thought = decision.Short()
	}
	if err := r.graph.Append(criticNode); err != nil {
		r.logger.Warn("graph append failed", zap.Error(err))
		return verdict
	}
	r.rec.Record(logging.EvNodeAppended(criticNode.ID, logging.RoleCritic, string(verdict)))

	if r.db != nil && r.sessionID != "" {
		if err := r.db.SaveGraph(r.sessionID, r.graph); err != nil {
			r.logger.Warn("graph persistence failed", zap.Error(err))
		}
	}
	return verdict
}

func (r *Runner) openSession(loop *Context) {
	start := session.Start{
		Prompt:        loop.Prompt,
		WorkingDir:    loop.WorkingDir,
		ActorAgent:    r.actor.Name(),
		CriticAgent:   r.critic.Name(),
		ActorModel:    r.actorModel,
		CriticModel:   r.criticModel,
		MaxIterations: loop.MaxIterations,
	}
	if r.writer != nil {
		if err := r.writer.WriteStart(start); err != nil {
			r.logger.Warn("session start write failed", zap.Error(err))
		}
	}
	if r.db != nil {
		id, err := r.db.CreateSession(start)
		if err != nil {
			r.logger.Warn("session row create failed", zap.Error(err))
			return
		}
		r.sessionID = id
	}
}

func (r *Runner) persistIteration(record IterationRecord, feedback string) {
	it := session.Iteration{
		IterationNumber: record.IterationNumber + 1,
		ActorOutput:     record.ActorOutput,
		ActorStderr:     record.ActorStderr,
		ActorExitCode:   record.ActorExitCode,
		ActorDuration:   record.ActorDuration,
		GitDiff:         record.GitDiff,
		GitFilesChanged: record.GitFilesChanged,
		CriticDecision:  record.CriticDecision,
		Feedback:        feedback,
		Timestamp:       record.Timestamp,
	}
	if r.writer != nil {
		if err := r.writer.WriteIteration(it); err != nil {
			r.logger.Warn("session iteration write failed", zap.Error(err))
		}
	}
	if r.db != nil && r.sessionID != "" {
		if err := r.db.AddIteration(r.sessionID, it); err != nil {
			r.logger.Warn("iteration row write failed", zap.Error(err))
		}
	}
}

func (r *Runner) finish(o *Outcome) *Outcome {
	end := session.End{
		Outcome:    string(o.Kind),
		Iterations: o.Iterations,
		Summary:    o.Summary,
		Confidence: o.Confidence,
		Duration:   o.Seconds,
	}
	if o.Kind == OutcomeFailed {
		end.Summary = o.Error
	}
	if r.writer != nil {
		if err := r.writer.WriteEnd(end); err != nil {
			r.logger.Warn("session end write failed", zap.Error(err))
		}
	}
	if r.db != nil && r.sessionID != "" {
		if err := r.db.EndSession(r.sessionID, end); err != nil {
			r.logger.Warn("session row end failed", zap.Error(err))
		}
	}
	return o
}

func (r *Runner) agentConfig(loop *Context, model string) agent.Config {
	return agent.Config{
		WorkingDir: loop.WorkingDir,
		Model:      model,
		Timeout:    r.agentTimeout,
	}
}

func (r *Runner) streamFunc(iteration int, role logging.Role) agent.StreamFunc {
	return func(line string, stderr bool) {
		r.rec.Record(logging.EvStreamLine(iteration, role, stderr, line))
	}
}

// revisionKey scopes revision counting to the whole task: every continue
// verdict is one more attempt at the same prompt.
func (r *Runner) revisionKey() string {
	if r.sessionID != "" {
		return r.sessionID
	}
	return "task"
}

func verdictFor(d *critic.Decision) graph.Verdict {
	if d.IsDone() {
		return graph.VerdictApproved
	}
	return graph.VerdictNeedsRevision
}

func decisionFeedback(d *critic.Decision) string {
	switch {
	case d.IsContinue():
		return d.Feedback
	case d.IsError():
		return fmt.Sprintf("Error encountered: %s\n\nRecovery suggestion: %s",
			d.ErrorDescription, d.RecoverySuggestion)
	default:
		return d.Summary
	}
}

// preview cuts s to at most n bytes without splitting a rune.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
