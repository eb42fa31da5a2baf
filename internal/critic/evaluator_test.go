package critic

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeloops/internal/agent"
	"codeloops/internal/graph"
)

// scriptedAgent returns canned output and records the prompts it saw.
type scriptedAgent struct {
	outputs []agent.Output
	calls   int
	prompts []string
}

func (s *scriptedAgent) Name() string                       { return "scripted" }
func (s *scriptedAgent) AgentType() agent.Type              { return agent.TypeClaudeCode }
func (s *scriptedAgent) Available(ctx context.Context) bool { return true }

func (s *scriptedAgent) Execute(ctx context.Context, prompt string, cfg agent.Config) (*agent.Output, error) {
	return s.ExecuteStream(ctx, prompt, cfg, nil)
}

func (s *scriptedAgent) ExecuteStream(ctx context.Context, prompt string, cfg agent.Config, fn agent.StreamFunc) (*agent.Output, error) {
	s.prompts = append(s.prompts, prompt)
	out := s.outputs[s.calls%len(s.outputs)]
	s.calls++
	if fn != nil {
		for _, line := range strings.Split(out.Stdout, "\n") {
			fn(line, false)
		}
	}
	return &out, nil
}

func TestEvaluateParsesDecision(t *testing.T) {
	a := &scriptedAgent{outputs: []agent.Output{{
		Stdout: `<decision>{"type": "done", "summary": "all good", "confidence": 0.9}</decision>`,
	}}}
	ev := NewEvaluator(a, nil)

	d, err := ev.Evaluate(context.Background(), EvaluationInput{
		Task:        "fix the bug",
		ActorStdout: "fixed it",
		GitDiff:     "diff --git a/x b/x",
		Iteration:   0,
	}, agent.Config{}, nil)
	require.NoError(t, err)
	assert.True(t, d.IsDone())

	// The evaluation prompt embeds the task and diff.
	require.Len(t, a.prompts, 1)
	assert.Contains(t, a.prompts[0], "fix the bug")
	assert.Contains(t, a.prompts[0], "diff --git a/x b/x")
	assert.Contains(t, a.prompts[0], "This is iteration 1")
}

func TestEvaluateCriticFailure(t *testing.T) {
	a := &scriptedAgent{outputs: []agent.Output{{Stdout: "crashed", ExitCode: 1}}}
	ev := NewEvaluator(a, nil)

	_, err := ev.Evaluate(context.Background(), EvaluationInput{Task: "x"}, agent.Config{}, nil)
	assert.ErrorContains(t, err, "exited with code 1")
}

func TestReviewNodeAppliesRevisionPolicy(t *testing.T) {
	mgr := graph.NewManager()
	node := &graph.Node{ID: "n1", Thought: "wire up the store", Role: graph.RoleActor, Tags: []string{"task"}}
	require.NoError(t, mgr.Append(node))

	a := &scriptedAgent{outputs: []agent.Output{{
		Stdout: `{"verdict": "needs_revision", "verdictReason": "missing tests"}`,
	}}}
	ev := NewEvaluator(a, nil)
	rc := graph.NewRevisionCounter(1)

	review, err := ev.ReviewNode(context.Background(), node, mgr, rc, agent.Config{})
	require.NoError(t, err)
	assert.Equal(t, graph.VerdictNeedsRevision, review.Verdict)

	// Attempts exhausted: the same verdict now escalates.
	review, err = ev.ReviewNode(context.Background(), node, mgr, rc, agent.Config{})
	require.NoError(t, err)
	assert.Equal(t, graph.VerdictReject, review.Verdict)

	// The review prompt carries the node and the schema checks.
	assert.Contains(t, a.prompts[0], "wire up the store")
	assert.Contains(t, a.prompts[0], "single line of JSON")
}
