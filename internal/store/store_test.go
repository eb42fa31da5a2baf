package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeloops/internal/graph"
	"codeloops/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func startFixture(prompt, dir string) session.Start {
	return session.Start{
		Timestamp:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Prompt:        prompt,
		WorkingDir:    dir,
		ActorAgent:    "claude",
		CriticAgent:   "claude",
		ActorModel:    "sonnet",
		MaxIterations: 5,
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "codeloops.db"))
	require.NoError(t, err)
	defer s.Close()

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))

	var timeout int
	require.NoError(t, s.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateSession(startFixture("add retry logic", "/home/u/projA"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, s.AddIteration(id, session.Iteration{
		IterationNumber: 1,
		ActorOutput:     "added retries",
		ActorDuration:   12.5,
		GitDiff:         "diff --git a/retry.go",
		GitFilesChanged: 1,
		CriticDecision:  "continue",
		Feedback:        "cover the timeout path",
	}))
	require.NoError(t, s.AddIteration(id, session.Iteration{
		IterationNumber: 2,
		ActorOutput:     "covered timeouts",
		ActorDuration:   8.0,
		GitDiff:         "diff --git a/retry.go",
		GitFilesChanged: 1,
		CriticDecision:  "done",
	}))
	require.NoError(t, s.EndSession(id, session.End{
		Outcome:    "success",
		Iterations: 2,
		Summary:    "retry logic with timeout coverage",
		Confidence: 0.9,
		Duration:   60,
	}))

	got, err := s.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, "add retry logic", got.Start.Prompt)
	assert.Equal(t, "sonnet", got.Start.ActorModel)
	assert.Equal(t, 5, got.Start.MaxIterations)
	require.Len(t, got.Iterations, 2)
	assert.Equal(t, "cover the timeout path", got.Iterations[0].Feedback)
	assert.Empty(t, got.Iterations[1].Feedback)
	require.NotNil(t, got.End)
	assert.Equal(t, "success", got.End.Outcome)
	assert.InDelta(t, 0.9, got.End.Confidence, 1e-9)
	assert.False(t, got.Active())
}

func TestGetSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetSession("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEndSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.EndSession("nope", session.End{Outcome: "success"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsFilters(t *testing.T) {
	s := openTestStore(t)

	a, err := s.CreateSession(startFixture("implement auth flow", "/home/u/projA"))
	require.NoError(t, err)
	require.NoError(t, s.EndSession(a, session.End{Outcome: "success", Iterations: 1, Duration: 30}))

	b := startFixture("fix flaky pipeline", "/home/u/projB")
	b.Timestamp = b.Timestamp.Add(time.Hour)
	bid, err := s.CreateSession(b)
	require.NoError(t, err)
	require.NoError(t, s.EndSession(bid, session.End{Outcome: "failed", Iterations: 3, Duration: 90}))

	all, err := s.ListSessions(session.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, bid, all[0].ID)
	assert.Equal(t, "projB", all[0].Project)

	succ, err := s.ListSessions(session.Filter{Outcome: "success"})
	require.NoError(t, err)
	require.Len(t, succ, 1)
	assert.Equal(t, a, succ[0].ID)

	search, err := s.ListSessions(session.Filter{Search: "auth"})
	require.NoError(t, err)
	require.Len(t, search, 1)

	proj, err := s.ListSessions(session.Filter{Project: "projB"})
	require.NoError(t, err)
	require.Len(t, proj, 1)

	after, err := s.ListSessions(session.Filter{After: b.Timestamp.Add(-time.Minute)})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, bid, after[0].ID)
}

func TestActiveAndDelete(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateSession(startFixture("long task", "/home/u/projA"))
	require.NoError(t, err)
	require.NoError(t, s.AddIteration(id, session.Iteration{IterationNumber: 1, CriticDecision: "continue"}))

	active, err := s.ActiveSessions()
	require.NoError(t, err)
	assert.Equal(t, []string{id}, active)

	ok, err := s.DeleteSession(id)
	require.NoError(t, err)
	assert.True(t, ok)

	// Cascade removed the iterations.
	_, err = s.GetSession(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	ok, err = s.DeleteSession(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStats(t *testing.T) {
	s := openTestStore(t)

	a, err := s.CreateSession(startFixture("task one", "/home/u/projA"))
	require.NoError(t, err)
	require.NoError(t, s.EndSession(a, session.End{Outcome: "success", Iterations: 1, Duration: 30}))

	b, err := s.CreateSession(startFixture("task two", "/home/u/projA"))
	require.NoError(t, err)
	require.NoError(t, s.EndSession(b, session.End{Outcome: "failed", Iterations: 3, Duration: 90}))

	stats, err := s.SessionStats(session.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 2.0, stats.AvgIterations, 1e-9)
	require.Len(t, stats.ByProject, 1)
	assert.Equal(t, "projA", stats.ByProject[0].Project)
}

func TestSaveAndLoadGraph(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateSession(startFixture("graph task", "/home/u/projA"))
	require.NoError(t, err)

	mgr := graph.NewManager()
	actor := &graph.Node{
		Thought: "implement the parser",
		Role:    graph.RoleActor,
		Tags:    []string{"task"},
		Artifacts: []graph.ArtifactRef{
			{Path: "parser.go", Description: "initial parser"},
		},
	}
	require.NoError(t, mgr.Append(actor))
	require.NoError(t, mgr.Append(&graph.Node{
		Thought:       "missing error handling in parse loop",
		Role:          graph.RoleCritic,
		Verdict:       graph.VerdictNeedsRevision,
		VerdictReason: "parse errors are swallowed",
		Target:        actor.ID,
		Parents:       []string{actor.ID},
	}))

	require.NoError(t, s.SaveGraph(id, mgr))

	loaded, err := s.LoadGraph(id)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	got, err := loaded.Get(actor.ID)
	require.NoError(t, err)
	assert.Equal(t, "implement the parser", got.Thought)
	assert.Equal(t, []string{"task"}, got.Tags)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, "parser.go", got.Artifacts[0].Path)
	require.Len(t, got.Children, 1)

	critique, err := loaded.Get(got.Children[0])
	require.NoError(t, err)
	assert.Equal(t, graph.VerdictNeedsRevision, critique.Verdict)
	assert.Equal(t, "parse errors are swallowed", critique.VerdictReason)

	// A loaded graph still passes integrity checks.
	assert.Empty(t, loaded.Check())
}

func TestSaveGraphReplaces(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateSession(startFixture("replace", "/home/u/projA"))
	require.NoError(t, err)

	mgr := graph.NewManager()
	require.NoError(t, mgr.Append(&graph.Node{Thought: "first", Role: graph.RoleActor}))
	require.NoError(t, s.SaveGraph(id, mgr))

	require.NoError(t, mgr.Append(&graph.Node{Thought: "second", Role: graph.RoleActor}))
	require.NoError(t, s.SaveGraph(id, mgr))

	loaded, err := s.LoadGraph(id)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
}
