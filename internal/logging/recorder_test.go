package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderJSONLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "session.jsonl")
	rec, err := NewRecorder(nil, FormatJSON).WithFile(path)
	require.NoError(t, err)
	rec.WithConsole(&bytes.Buffer{})

	rec.Record(EvLoopStarted("fix the bug", "/tmp/work"))
	rec.Record(EvActorCompleted(0, 0, 3*time.Second))
	rec.Record(EvLoopCompleted(1, "done", 5*time.Second))
	require.NoError(t, rec.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var kinds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		assert.False(t, ev.Timestamp.IsZero())
		kinds = append(kinds, ev.Kind)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"loop_started", "actor_completed", "loop_completed"}, kinds)
}

func TestRecorderCompactConsole(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(nil, FormatCompact).WithConsole(&buf)

	rec.Record(EvActorStarted(0, "fix the bug"))
	rec.Record(EvActorCompleted(0, 2, 1500*time.Millisecond))
	rec.Record(EvCriticDone(0, "CONTINUE (2 issues)"))

	out := buf.String()
	// Iterations are zero-based internally, one-based on screen.
	assert.Contains(t, out, "actor:start:1")
	assert.Contains(t, out, "actor:done:1 exit=2 1.5s")
	assert.Contains(t, out, "critic:done:1 CONTINUE (2 issues)")
}

func TestRecorderJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(nil, FormatJSON).WithConsole(&buf)

	rec.Record(EvDiffCaptured(0, 3, 10, 7))

	var ev Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	assert.Equal(t, "diff_captured", ev.Kind)
	require.NotNil(t, ev.DiffCaptured)
	assert.Equal(t, 3, ev.DiffCaptured.FilesChanged)
	assert.Equal(t, 10, ev.DiffCaptured.Insertions)
	assert.Equal(t, 7, ev.DiffCaptured.Deletions)
}

func TestRenderPrettyCoversLifecycle(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want string
	}{
		{"loop start", EvLoopStarted("refactor parser", "/tmp/p"), "codeloops"},
		{"actor start", EvActorStarted(0, "refactor parser"), "Iteration 1"},
		{"actor ok", EvActorCompleted(0, 0, time.Second), "✓ Done"},
		{"actor fail", EvActorCompleted(0, 1, time.Second), "✗ Exit 1"},
		{"diff", EvDiffCaptured(0, 2, 5, 1), "+5"},
		{"no diff", EvDiffCaptured(0, 0, 0, 0), "no changes"},
		{"critic start", EvCriticStarted(0), "CRITIC"},
		{"decision done", EvCriticDone(0, "DONE (confidence: 95%)"), "✓ Decision"},
		{"decision continue", EvCriticDone(0, "CONTINUE (1 issues)"), "→ Decision"},
		{"decision error", EvCriticDone(0, "ERROR"), "✗ Decision"},
		{"loop limit", EvLoopLimit(10), "Maximum iterations reached (10)"},
		{"loop error", EvLoopError(2, "agent not found"), "iteration 3"},
		{"loop done", EvLoopCompleted(4, "all good", 12*time.Second), "4 iterations"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, renderPretty(tc.ev), tc.want)
		})
	}

	// Node bookkeeping stays off the pretty console.
	assert.Empty(t, renderPretty(EvNodeAppended("n1", RoleActor, "")))
}

func TestRenderPrettyStreamLines(t *testing.T) {
	out := renderPretty(EvStreamLine(0, RoleActor, false, "compiling"))
	assert.Contains(t, out, "compiling")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"pretty", "compact", "json"} {
		f, err := ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, Format(s), f)
	}
	_, err := ParseFormat("yaml")
	assert.Error(t, err)
}
