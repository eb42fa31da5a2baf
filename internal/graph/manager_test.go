package graph

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func actorNode(id, thought string, parents ...string) *Node {
	return &Node{ID: id, Thought: thought, Role: RoleActor, Parents: parents, Tags: []string{"task"}}
}

func TestAppendLinksParents(t *testing.T) {
	m := NewManager()
	if err := m.Append(actorNode("a", "set up the project")); err != nil {
		t.Fatalf("Append a: %v", err)
	}
	if err := m.Append(actorNode("b", "add the parser", "a")); err != nil {
		t.Fatalf("Append b: %v", err)
	}

	a, err := m.Get("a")
	if err != nil {
		t.Fatalf("Get a: %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, a.Children); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendRejectsInvalidNodes(t *testing.T) {
	m := NewManager()
	if err := m.Append(actorNode("a", "first")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cases := []struct {
		name string
		node *Node
		want error
	}{
		{"duplicate id", actorNode("a", "again"), ErrDuplicateID},
		{"empty thought", actorNode("b", "   "), ErrEmptyThought},
		{"bad role", &Node{ID: "c", Thought: "x", Role: "referee"}, ErrInvalidRole},
		{"unknown parent", actorNode("d", "x", "ghost"), ErrUnknownParent},
		{"critic without target", &Node{ID: "e", Thought: "x", Role: RoleCritic}, ErrUnknownTarget},
		{"needs_revision without reason", &Node{ID: "f", Thought: "x", Role: RoleCritic, Target: "a", Verdict: VerdictNeedsRevision}, ErrMissingReason},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := m.Append(tc.node)
			if !errors.Is(err, tc.want) {
				t.Errorf("Append = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCriticTargetMustBeActor(t *testing.T) {
	m := NewManager()
	if err := m.Append(actorNode("a", "work")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	c1 := &Node{ID: "c1", Thought: "looks fine", Role: RoleCritic, Target: "a", Verdict: VerdictApproved}
	if err := m.Append(c1); err != nil {
		t.Fatalf("Append critic: %v", err)
	}

	c2 := &Node{ID: "c2", Thought: "meta review", Role: RoleCritic, Target: "c1", Verdict: VerdictApproved}
	if err := m.Append(c2); !errors.Is(err, ErrTargetNotActor) {
		t.Errorf("Append = %v, want ErrTargetNotActor", err)
	}
}

func TestBranchLabelUniqueness(t *testing.T) {
	m := NewManager()
	n1 := actorNode("a", "try caching")
	n1.BranchLabel = "caching"
	if err := m.Append(n1); err != nil {
		t.Fatalf("Append: %v", err)
	}

	n2 := actorNode("b", "another attempt")
	n2.BranchLabel = "caching"
	if err := m.Append(n2); !errors.Is(err, ErrDuplicateBranch) {
		t.Errorf("Append = %v, want ErrDuplicateBranch", err)
	}

	head, err := m.BranchHead("caching")
	if err != nil {
		t.Fatalf("BranchHead: %v", err)
	}
	if head.ID != "a" {
		t.Errorf("BranchHead = %s, want a", head.ID)
	}
}

func TestResolveChainDiamond(t *testing.T) {
	// A -> B, A -> C, then D with parents B and C.
	m := NewManager()
	for _, n := range []*Node{
		actorNode("a", "root"),
		actorNode("b", "left", "a"),
		actorNode("c", "right", "a"),
		actorNode("d", "merge", "b", "c"),
	} {
		if err := m.Append(n); err != nil {
			t.Fatalf("Append %s: %v", n.ID, err)
		}
	}

	chain, err := m.ResolveChain("d")
	if err != nil {
		t.Fatalf("ResolveChain: %v", err)
	}
	ids := make([]string, len(chain))
	for i, n := range chain {
		ids[i] = n.ID
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, ids); diff != "" {
		t.Errorf("chain mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenRevisions(t *testing.T) {
	m := NewManager()
	if err := m.Append(actorNode("a", "implement search")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Append(&Node{
		ID: "c1", Thought: "missing artifacts", Role: RoleCritic,
		Target: "a", Verdict: VerdictNeedsRevision, VerdictReason: "attach the changed files",
	}); err != nil {
		t.Fatalf("Append critic: %v", err)
	}

	open := m.OpenRevisions()
	if len(open) != 1 || open[0].ID != "a" {
		t.Fatalf("OpenRevisions = %v, want [a]", open)
	}

	// A later approval closes the revision.
	if err := m.Append(&Node{
		ID: "c2", Thought: "fixed", Role: RoleCritic, Target: "a", Verdict: VerdictApproved,
	}); err != nil {
		t.Fatalf("Append critic: %v", err)
	}
	if open := m.OpenRevisions(); len(open) != 0 {
		t.Errorf("OpenRevisions = %v, want empty", open)
	}
}

func TestHeadsAndFindSimilar(t *testing.T) {
	m := NewManager()
	m.Append(actorNode("a", "design the session store"))
	m.Append(actorNode("b", "implement the session store", "a"))

	heads := m.Heads()
	if len(heads) != 1 || heads[0].ID != "b" {
		t.Fatalf("Heads = %v, want [b]", heads)
	}

	similar := m.FindSimilar("Session Store")
	if len(similar) != 2 {
		t.Errorf("FindSimilar = %d nodes, want 2", len(similar))
	}
}

func TestCheckOnLoadedGraph(t *testing.T) {
	m := NewManager()
	m.Load([]*Node{
		{ID: "a", Thought: "work", Role: RoleActor, Children: []string{"b"}},
		{ID: "b", Thought: "", Role: RoleActor, Parents: []string{"a"}},
		{ID: "c", Thought: "review", Role: RoleCritic, Target: "missing"},
	})

	violations := m.Check()
	if len(violations) != 2 {
		t.Fatalf("Check = %v, want 2 violations", violations)
	}
}

func TestCheckDetectsCycle(t *testing.T) {
	m := NewManager()
	m.Load([]*Node{
		{ID: "a", Thought: "x", Role: RoleActor, Parents: []string{"b"}, Children: []string{"b"}},
		{ID: "b", Thought: "y", Role: RoleActor, Parents: []string{"a"}, Children: []string{"a"}},
	})
	found := false
	for _, v := range m.Check() {
		if v.Problem == "graph contains a cycle" {
			found = true
		}
	}
	if !found {
		t.Error("Check did not report the cycle")
	}
}

func TestRevisionCounterEscalates(t *testing.T) {
	rc := NewRevisionCounter(2)

	if got := rc.Apply("a", VerdictNeedsRevision); got != VerdictNeedsRevision {
		t.Fatalf("first Apply = %s", got)
	}
	if got := rc.Apply("a", VerdictNeedsRevision); got != VerdictNeedsRevision {
		t.Fatalf("second Apply = %s", got)
	}
	// Attempts exhausted: the next revision request becomes a reject.
	if got := rc.Apply("a", VerdictNeedsRevision); got != VerdictReject {
		t.Fatalf("third Apply = %s, want reject", got)
	}
	// Approvals pass through untouched.
	if got := rc.Apply("a", VerdictApproved); got != VerdictApproved {
		t.Fatalf("Apply approved = %s", got)
	}
}

func TestDOTExport(t *testing.T) {
	m := NewManager()
	m.Append(actorNode("a", "build it"))
	m.Append(&Node{ID: "c", Thought: "ship it", Role: RoleCritic, Target: "a", Verdict: VerdictApproved})

	dot := m.DOT()
	for _, want := range []string{"digraph thoughts", `"a" [label="build it" shape=box]`, "color=green", "style=dashed"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}

func TestDOTExportClipsLabelsAtRuneBoundaries(t *testing.T) {
	m := NewManager()
	// 13 four-byte runes is 52 bytes; the label cut lands mid-rune and
	// must back off to the previous boundary.
	m.Append(actorNode("a", strings.Repeat("\U0001F600", 13)))

	dot := m.DOT()
	if !utf8.ValidString(dot) {
		t.Fatalf("DOT output is not valid UTF-8:\n%s", dot)
	}
	if !strings.Contains(dot, strings.Repeat("\U0001F600", 9)+"...") {
		t.Errorf("label not clipped at a rune boundary:\n%s", dot)
	}
}
