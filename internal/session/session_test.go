package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// writeSession drops a synthetic JSONL file into dir.
func writeSession(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".jsonl"), []byte(content), 0o644))
}

const completedSession = `{"type":"session_start","timestamp":"2026-01-21T14:00:00Z","prompt":"refactor authentication","working_dir":"/home/user/project-alpha","actor_agent":"claude","critic_agent":"claude","actor_model":"sonnet","critic_model":"sonnet","max_iterations":5}
{"type":"iteration","iteration_number":1,"actor_output":"started refactor","actor_stderr":"","actor_exit_code":0,"actor_duration_secs":15.0,"git_diff":"diff --git a/auth.go","git_files_changed":2,"critic_decision":"continue","feedback":"needs error handling","timestamp":"2026-01-21T14:01:00Z"}
{"type":"iteration","iteration_number":2,"actor_output":"added error handling","actor_stderr":"","actor_exit_code":0,"actor_duration_secs":10.0,"git_diff":"diff --git a/auth.go","git_files_changed":1,"critic_decision":"done","timestamp":"2026-01-21T14:02:00Z"}
{"type":"session_end","outcome":"success","iterations":2,"summary":"Refactored auth","confidence":0.9,"duration_secs":120.0,"timestamp":"2026-01-21T14:02:30Z"}`

const activeSession = `{"type":"session_start","timestamp":"2026-01-22T09:00:00Z","prompt":"add search endpoint","working_dir":"/home/user/project-beta","actor_agent":"opencode","critic_agent":"claude","max_iterations":3}
{"type":"iteration","iteration_number":1,"actor_output":"working","actor_stderr":"","actor_exit_code":0,"actor_duration_secs":20.0,"git_diff":"diff --git a/search.go","git_files_changed":1,"critic_decision":"continue","feedback":"missing tests","timestamp":"2026-01-22T09:01:00Z"}`

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	require.NoError(t, w.WriteStart(Start{
		Prompt:      "fix flaky test",
		WorkingDir:  "/tmp/proj",
		ActorAgent:  "claude",
		CriticAgent: "claude",
	}))
	require.NoError(t, w.WriteIteration(Iteration{
		IterationNumber: 1,
		ActorOutput:     "patched the test",
		ActorExitCode:   0,
		ActorDuration:   4.2,
		GitFilesChanged: 1,
		CriticDecision:  "done",
	}))
	require.NoError(t, w.WriteEnd(End{
		Outcome:    "success",
		Iterations: 1,
		Summary:    "fixed",
		Confidence: 0.95,
		Duration:   9.1,
	}))
	require.NoError(t, w.Close())

	s, err := ParseSession(w.Path())
	require.NoError(t, err)
	assert.Equal(t, w.ID(), s.ID)
	assert.Equal(t, "fix flaky test", s.Start.Prompt)
	require.Len(t, s.Iterations, 1)
	assert.Equal(t, "patched the test", s.Iterations[0].ActorOutput)
	require.NotNil(t, s.End)
	assert.Equal(t, "success", s.End.Outcome)
	assert.InDelta(t, 0.95, s.End.Confidence, 1e-9)
	assert.False(t, s.Active())
}

func TestParseSummaryCompleted(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "done", completedSession)

	sum, err := ParseSummary(filepath.Join(dir, "done.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "done", sum.ID)
	assert.Equal(t, "refactor authentication", sum.PromptPreview)
	assert.Equal(t, "project-alpha", sum.Project)
	assert.Equal(t, "success", sum.Outcome)
	assert.Equal(t, 2, sum.Iterations)
	assert.InDelta(t, 120.0, sum.Duration, 1e-9)
	assert.False(t, sum.Active())
}

func TestParseSummaryActive(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "running", activeSession)

	sum, err := ParseSummary(filepath.Join(dir, "running.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, sum.Outcome)
	assert.True(t, sum.Active())
	// One line past session_start.
	assert.Equal(t, 1, sum.Iterations)
}

func TestParseSummaryTruncatesPrompt(t *testing.T) {
	long := ""
	for range 30 {
		long += "refactor "
	}
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w.WriteStart(Start{Prompt: long, WorkingDir: "/p", ActorAgent: "a", CriticAgent: "c"}))
	require.NoError(t, w.Close())

	sum, err := ParseSummary(w.Path())
	require.NoError(t, err)
	assert.Len(t, sum.PromptPreview, 103)
	assert.True(t, len(sum.PromptPreview) < len(long))
}

func TestPreviewKeepsRuneBoundaries(t *testing.T) {
	// 40 three-byte runes is 120 bytes; the 100-byte cut lands mid-rune
	// and must back off to the previous boundary.
	long := strings.Repeat("日", 40)
	got := preview(long, 100)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("日", 33)+"...", got)
}

func TestDirListFilterAndSort(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "a", completedSession)
	writeSession(t, dir, "b", activeSession)

	d := NewDir(dir, nil)

	all, err := d.List(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, "b", all[0].ID)

	succ, err := d.List(Filter{Outcome: "success"})
	require.NoError(t, err)
	require.Len(t, succ, 1)
	assert.Equal(t, "a", succ[0].ID)

	search, err := d.List(Filter{Search: "SEARCH endpoint"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "b", search[0].ID)

	proj, err := d.List(Filter{Project: "project-alpha"})
	require.NoError(t, err)
	require.Len(t, proj, 1)

	after, err := d.List(Filter{After: time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "b", after[0].ID)
}

func TestDirListMissingDirIsEmpty(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "nope"), nil)
	list, err := d.List(Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDirActiveAndDiff(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "a", completedSession)
	writeSession(t, dir, "b", activeSession)

	d := NewDir(dir, nil)
	active, err := d.Active()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, active)

	diff, err := d.Diff("a")
	require.NoError(t, err)
	assert.Contains(t, diff, "diff --git a/auth.go")
}

func TestDirStats(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "a", completedSession)
	writeSession(t, dir, "b", activeSession)

	d := NewDir(dir, nil)
	stats, err := d.Stats(Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 1.5, stats.AvgIterations, 1e-9)
	assert.Len(t, stats.SessionsOverTime, 2)
	assert.Len(t, stats.ByProject, 2)
}

func TestMetrics(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "a", completedSession)
	writeSession(t, dir, "b", activeSession)

	d := NewDir(dir, nil)
	m, err := d.Metrics(Filter{})
	require.NoError(t, err)

	assert.Equal(t, 2, m.TotalSessions)
	assert.Equal(t, 1, m.SuccessfulSessions)
	assert.Equal(t, 3, m.TotalIterations)
	// One approval out of three iterations.
	assert.InDelta(t, 1.0/3.0, m.CriticApprovalRate, 1e-9)
	// Two rejections; one was followed by an approval.
	assert.InDelta(t, 0.5, m.ImprovementRate, 1e-9)
	// "needs error handling" (20) + "missing tests" (13).
	assert.InDelta(t, 16.5, m.AvgFeedbackLength, 1e-9)
	// Two-iteration success is not a first-try success.
	assert.InDelta(t, 0.0, m.FirstTrySuccessRate, 1e-9)
	assert.InDelta(t, 2.0, m.AvgIterationsToSucces, 1e-9)
}

func TestMetricsEmpty(t *testing.T) {
	d := NewDir(t.TempDir(), nil)
	m, err := d.Metrics(Filter{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalSessions)
	assert.Zero(t, m.CriticApprovalRate)
	assert.Zero(t, m.ImprovementRate)
}

func TestWatcherLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := NewWatcher(dir, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	writer, err := NewWriter(dir)
	require.NoError(t, err)
	require.NoError(t, writer.WriteStart(Start{Prompt: "p", WorkingDir: "/p", ActorAgent: "a", CriticAgent: "c"}))

	var created bool
	deadline := time.After(5 * time.Second)
	for !created {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "event stream closed early")
			if ev.Kind == EventCreated {
				assert.Equal(t, writer.ID(), ev.ID)
				created = true
			}
		case <-deadline:
			t.Fatal("no create event within deadline")
		}
	}

	require.NoError(t, writer.WriteEnd(End{Outcome: "success", Iterations: 1, Duration: 1}))
	require.NoError(t, writer.Close())

	var completed bool
	deadline = time.After(5 * time.Second)
	for !completed {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "event stream closed early")
			if ev.Kind == EventCompleted {
				assert.Equal(t, "success", ev.Outcome)
				completed = true
			}
		case <-deadline:
			t.Fatal("no completed event within deadline")
		}
	}

	w.Stop()
}
