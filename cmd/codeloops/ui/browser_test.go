package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"codeloops/internal/session"
)

func writeSessionFile(t *testing.T, dir, id, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".jsonl"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const browseFixture = `{"type":"session_start","timestamp":"2026-08-01T10:00:00Z","prompt":"add retry logic to the fetcher","working_dir":"/home/dev/fetcher","actor_agent":"claude","critic_agent":"claude"}
{"type":"iteration","iteration_number":1,"actor_output":"done","actor_stderr":"","actor_exit_code":0,"actor_duration_secs":4.2,"git_diff":"","git_files_changed":2,"critic_decision":"done","timestamp":"2026-08-01T10:01:00Z"}
{"type":"session_end","outcome":"success","iterations":1,"summary":"retry added","confidence":0.9,"duration_secs":60,"timestamp":"2026-08-01T10:01:00Z"}
`

func newTestModel(t *testing.T) *Model {
	t.Helper()
	dir := t.TempDir()
	writeSessionFile(t, dir, "20260801T100000Z_abc123", browseFixture)
	m, err := NewModel(session.NewDir(dir, nil))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestItemFormatting(t *testing.T) {
	s := &session.Summary{
		ID:            "20260801T100000Z_abc123",
		Timestamp:     time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		PromptPreview: "add retry logic",
		Project:       "fetcher",
		Outcome:       "success",
		Iterations:    3,
	}
	if got := itemTitle(s); !strings.Contains(got, "add retry logic") {
		t.Errorf("title missing prompt: %q", got)
	}
	desc := itemDescription(s)
	if !strings.Contains(desc, "fetcher") || !strings.Contains(desc, "3 iterations") {
		t.Errorf("unexpected description: %q", desc)
	}
}

func TestOutcomeBadge(t *testing.T) {
	active := &session.Summary{}
	success := &session.Summary{Outcome: "success"}
	failed := &session.Summary{Outcome: "failed"}
	if outcomeBadge(active) == outcomeBadge(success) {
		t.Error("active and success badges should differ")
	}
	if outcomeBadge(failed) == outcomeBadge(success) {
		t.Error("failed and success badges should differ")
	}
}

func TestBrowserDetailNavigation(t *testing.T) {
	m := newTestModel(t)

	if m.state != stateList {
		t.Fatalf("expected list state, got %d", m.state)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should start loading the selected session")
	}
	msg, ok := cmd().(detailLoadedMsg)
	if !ok {
		t.Fatalf("expected detailLoadedMsg, got %T", cmd())
	}
	if msg.err != nil {
		t.Fatalf("load failed: %v", msg.err)
	}

	m.Update(msg)
	if m.state != stateDetail {
		t.Fatalf("expected detail state, got %d", m.state)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateList {
		t.Fatalf("esc should return to the list, got %d", m.state)
	}
}

func TestBrowserQuit(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should quit from the list")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected QuitMsg, got %T", cmd())
	}
}

func TestDetailMarkdown(t *testing.T) {
	end := &session.End{Outcome: "success", Iterations: 2, Summary: "all tests pass", Duration: 90}
	s := &session.Session{
		ID:    "s1",
		Start: session.Start{Prompt: "fix the parser", WorkingDir: "/tmp/p", ActorAgent: "claude", CriticAgent: "gemini"},
		Iterations: []session.Iteration{
			{IterationNumber: 1, CriticDecision: "continue", Feedback: "handle EOF"},
			{IterationNumber: 2, CriticDecision: "done"},
		},
		End: end,
	}
	md := detailMarkdown(s)
	for _, want := range []string{"fix the parser", "handle EOF", "## Iteration 2", "all tests pass", "success"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	s.End = nil
	if md := detailMarkdown(s); !strings.Contains(md, "running") {
		t.Error("active sessions should show as running")
	}
}
