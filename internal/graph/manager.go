package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Append validation errors. Callers branch on these to distinguish schema
// problems from structural ones.
var (
	ErrDuplicateID      = errors.New("node id already exists")
	ErrEmptyThought     = errors.New("thought must not be empty")
	ErrInvalidRole      = errors.New("role must be actor or critic")
	ErrUnknownParent    = errors.New("parent node does not exist")
	ErrUnknownTarget    = errors.New("critic target does not exist")
	ErrTargetNotActor   = errors.New("critic target must be an actor node")
	ErrMissingReason    = errors.New("needs_revision verdict requires a reason")
	ErrDuplicateBranch  = errors.New("branch label already in use")
	ErrUnknownReference = errors.New("verdict reference does not exist")
	ErrNodeNotFound     = errors.New("node not found")
	ErrCycle            = errors.New("edge would create a cycle")
)

// Manager owns the knowledge graph for one loop run. All mutation goes
// through Append so the invariants hold at every point in time.
type Manager struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string // insertion order, for deterministic iteration
}

// NewManager creates an empty knowledge graph.
func NewManager() *Manager {
	return &Manager{nodes: make(map[string]*Node)}
}

// NewNodeID returns a fresh unique node id.
func NewNodeID() string {
	return uuid.NewString()
}

// Append validates the node and links it into the graph.
// The node's Children list is ignored on input; child links are derived
// from the parents of later nodes.
func (m *Manager) Append(n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.ID == "" {
		n.ID = NewNodeID()
	}
	if _, ok := m.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
	}
	if strings.TrimSpace(n.Thought) == "" {
		return ErrEmptyThought
	}
	if !n.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, n.Role)
	}
	if n.Verdict != "" && !n.Verdict.Valid() {
		return fmt.Errorf("unknown verdict: %q", n.Verdict)
	}
	if n.Verdict == VerdictNeedsRevision && strings.TrimSpace(n.VerdictReason) == "" {
		return ErrMissingReason
	}
	for _, p := range n.Parents {
		if _, ok := m.nodes[p]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownParent, p)
		}
	}
	if n.Role == RoleCritic {
		if n.Target == "" {
			return fmt.Errorf("%w: critic node has no target", ErrUnknownTarget)
		}
		target, ok := m.nodes[n.Target]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTarget, n.Target)
		}
		if target.Role != RoleActor {
			return fmt.Errorf("%w: %s", ErrTargetNotActor, n.Target)
		}
	}
	for _, ref := range n.VerdictReferences {
		if _, ok := m.nodes[ref]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownReference, ref)
		}
	}
	if n.BranchLabel != "" {
		for _, id := range m.order {
			if m.nodes[id].BranchLabel == n.BranchLabel {
				return fmt.Errorf("%w: %q", ErrDuplicateBranch, n.BranchLabel)
			}
		}
	}

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.Children = nil

	m.nodes[n.ID] = n
	m.order = append(m.order, n.ID)
	for _, p := range n.Parents {
		m.nodes[p].Children = append(m.nodes[p].Children, n.ID)
	}
	return nil
}

// Get returns the node with the given id.
func (m *Manager) Get(id string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// Len returns the number of nodes.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// All returns every node in insertion order.
func (m *Manager) All() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Node, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.nodes[id])
	}
	return out
}

// ByTag returns nodes carrying the given tag, in insertion order.
func (m *Manager) ByTag(tag string) []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Node
	for _, id := range m.order {
		if m.nodes[id].HasTag(tag) {
			out = append(out, m.nodes[id])
		}
	}
	return out
}

// Heads returns nodes with no children, in insertion order. These are the
// open tips of the graph where new work attaches.
func (m *Manager) Heads() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Node
	for _, id := range m.order {
		if len(m.nodes[id].Children) == 0 {
			out = append(out, m.nodes[id])
		}
	}
	return out
}

// Branches returns the branch labels in use, sorted.
func (m *Manager) Branches() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, id := range m.order {
		if l := m.nodes[id].BranchLabel; l != "" {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// BranchHead returns the first node of the branch with the given label.
func (m *Manager) BranchHead(label string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if m.nodes[id].BranchLabel == label {
			return m.nodes[id], nil
		}
	}
	return nil, fmt.Errorf("%w: branch %q", ErrNodeNotFound, label)
}

// ResolveChain returns the ancestry of a node root-first, each ancestor
// exactly once even when parents converge (diamond shapes), ending with the
// node itself.
func (m *Manager) ResolveChain(id string) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	seen := make(map[string]bool)
	var chain []*Node
	var visit func(string)
	visit = func(cur string) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		for _, p := range m.nodes[cur].Parents {
			visit(p)
		}
		chain = append(chain, m.nodes[cur])
	}
	visit(id)
	return chain, nil
}

// Critiques returns the critic nodes targeting the given actor node, in
// insertion order.
func (m *Manager) Critiques(targetID string) []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Node
	for _, id := range m.order {
		n := m.nodes[id]
		if n.Role == RoleCritic && n.Target == targetID {
			out = append(out, n)
		}
	}
	return out
}

// OpenRevisions returns actor nodes whose most recent critique asked for a
// revision that has not since been approved or rejected.
func (m *Manager) OpenRevisions() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Node
	for _, id := range m.order {
		n := m.nodes[id]
		if n.Role != RoleActor {
			continue
		}
		var last *Node
		for _, cid := range m.order {
			c := m.nodes[cid]
			if c.Role == RoleCritic && c.Target == n.ID {
				last = c
			}
		}
		if last != nil && last.Verdict == VerdictNeedsRevision {
			out = append(out, n)
		}
	}
	return out
}

// FindSimilar returns nodes whose thought contains the given phrase,
// case-insensitive. The critic uses this for duplicate detection.
func (m *Manager) FindSimilar(phrase string) []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(phrase))
	if needle == "" {
		return nil
	}
	var out []*Node
	for _, id := range m.order {
		if strings.Contains(strings.ToLower(m.nodes[id].Thought), needle) {
			out = append(out, m.nodes[id])
		}
	}
	return out
}

// Violation describes one invariant broken somewhere in the graph.
type Violation struct {
	NodeID  string
	Problem string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.NodeID, v.Problem)
}

// Check re-validates the whole graph. A graph built solely through Append
// always passes; graphs loaded from storage may not.
func (m *Manager) Check() []Violation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Violation
	branches := make(map[string]string)
	for _, id := range m.order {
		n := m.nodes[id]
		if strings.TrimSpace(n.Thought) == "" {
			out = append(out, Violation{n.ID, "empty thought"})
		}
		if !n.Role.Valid() {
			out = append(out, Violation{n.ID, fmt.Sprintf("invalid role %q", n.Role)})
		}
		if n.Verdict == VerdictNeedsRevision && strings.TrimSpace(n.VerdictReason) == "" {
			out = append(out, Violation{n.ID, "needs_revision without verdictReason"})
		}
		if n.Role == RoleCritic {
			target, ok := m.nodes[n.Target]
			switch {
			case n.Target == "" || !ok:
				out = append(out, Violation{n.ID, "critic target missing"})
			case target.Role != RoleActor:
				out = append(out, Violation{n.ID, "critic target is not an actor node"})
			}
		}
		for _, p := range n.Parents {
			parent, ok := m.nodes[p]
			if !ok {
				out = append(out, Violation{n.ID, fmt.Sprintf("unknown parent %s", p)})
				continue
			}
			if !contains(parent.Children, n.ID) {
				out = append(out, Violation{n.ID, fmt.Sprintf("parent %s does not list node as child", p)})
			}
		}
		for _, c := range n.Children {
			child, ok := m.nodes[c]
			if !ok {
				out = append(out, Violation{n.ID, fmt.Sprintf("unknown child %s", c)})
				continue
			}
			if !contains(child.Parents, n.ID) {
				out = append(out, Violation{n.ID, fmt.Sprintf("child %s does not list node as parent", c)})
			}
		}
		if n.BranchLabel != "" {
			if prev, ok := branches[n.BranchLabel]; ok {
				out = append(out, Violation{n.ID, fmt.Sprintf("branch label %q already used by %s", n.BranchLabel, prev)})
			} else {
				branches[n.BranchLabel] = n.ID
			}
		}
	}
	if m.hasCycle() {
		out = append(out, Violation{"", "graph contains a cycle"})
	}
	return out
}

// hasCycle runs a colored DFS over parent links. Caller holds the lock.
func (m *Manager) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(m.nodes))
	var visit func(string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, p := range m.nodes[id].Parents {
			if _, ok := m.nodes[p]; !ok {
				continue
			}
			switch color[p] {
			case gray:
				return true
			case white:
				if visit(p) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for _, id := range m.order {
		if color[id] == white && visit(id) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
