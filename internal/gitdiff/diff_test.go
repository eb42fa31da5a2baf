package gitdiff

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseNumstat(t *testing.T) {
	out := "10\t2\tmain.go\n0\t5\tREADME.md\n-\t-\tlogo.png\n"
	got := parseNumstat(out)
	want := Summary{FilesChanged: 3, Insertions: 10, Deletions: 7}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseNumstat mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNumstatEmpty(t *testing.T) {
	got := parseNumstat("")
	if got.FilesChanged != 0 || got.Insertions != 0 || got.Deletions != 0 {
		t.Errorf("parseNumstat(\"\") = %+v, want zero", got)
	}
}

func TestParsePorcelain(t *testing.T) {
	out := " M internal/engine/runner.go\nA  internal/graph/node.go\n D old.go\n?? notes.txt\n"
	got := parsePorcelain(out)

	want := &Status{
		Modified:  []string{"internal/engine/runner.go"},
		Added:     []string{"internal/graph/node.go"},
		Deleted:   []string{"old.go"},
		Untracked: []string{"notes.txt"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parsePorcelain mismatch (-want +got):\n%s", diff)
	}
	if got.Clean() {
		t.Error("Clean() = true for a dirty tree")
	}
	if got.TotalChanges() != 4 {
		t.Errorf("TotalChanges = %d, want 4", got.TotalChanges())
	}
}

func TestParsePorcelainClean(t *testing.T) {
	got := parsePorcelain("")
	if !got.Clean() {
		t.Error("Clean() = false for an empty tree")
	}
}
