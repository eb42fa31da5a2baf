package graph

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Load installs nodes exactly as given, bypassing Append validation. It is
// used when restoring a graph from storage; run Check afterwards to surface
// anything the stored data broke.
func (m *Manager) Load(nodes []*Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		if _, ok := m.nodes[n.ID]; ok {
			continue
		}
		m.nodes[n.ID] = n
		m.order = append(m.order, n.ID)
	}
}

// MarshalJSON serializes the graph as an ordered node array.
func (m *Manager) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.All())
}

// DOT renders the graph in Graphviz dot format. Actor nodes are boxes,
// critic nodes are ellipses colored by verdict.
func (m *Manager) DOT() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("digraph thoughts {\n")
	b.WriteString("  rankdir=TB;\n")
	for _, id := range m.order {
		n := m.nodes[id]
		label := n.Thought
		if len(label) > 40 {
			cut := 37
			for cut > 0 && !utf8.RuneStart(label[cut]) {
				cut--
			}
			label = label[:cut] + "..."
		}
		label = strings.ReplaceAll(label, `"`, `\"`)
		if n.BranchLabel != "" {
			label = fmt.Sprintf("[%s] %s", n.BranchLabel, label)
		}
		switch n.Role {
		case RoleCritic:
			fmt.Fprintf(&b, "  %q [label=%q shape=ellipse color=%s];\n", n.ID, label, verdictColor(n.Verdict))
		default:
			fmt.Fprintf(&b, "  %q [label=%q shape=box];\n", n.ID, label)
		}
	}
	for _, id := range m.order {
		n := m.nodes[id]
		for _, p := range n.Parents {
			fmt.Fprintf(&b, "  %q -> %q;\n", p, n.ID)
		}
		if n.Role == RoleCritic && n.Target != "" {
			fmt.Fprintf(&b, "  %q -> %q [style=dashed];\n", n.ID, n.Target)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func verdictColor(v Verdict) string {
	switch v {
	case VerdictApproved:
		return "green"
	case VerdictNeedsRevision:
		return "orange"
	case VerdictReject:
		return "red"
	}
	return "gray"
}
