// Package graph implements the knowledge graph of thought nodes that backs
// the actor/critic loop. Every piece of work the actor does and every review
// the critic issues becomes a node in a directed acyclic graph.
package graph

import (
	"fmt"
	"time"
)

// Role identifies which side of the loop produced a node.
type Role string

const (
	RoleActor  Role = "actor"
	RoleCritic Role = "critic"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleActor || r == RoleCritic
}

// Verdict is the critic's judgement of an actor node.
type Verdict string

const (
	VerdictApproved      Verdict = "approved"
	VerdictNeedsRevision Verdict = "needs_revision"
	VerdictReject        Verdict = "reject"
)

// Valid reports whether the verdict is one of the known values.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApproved, VerdictNeedsRevision, VerdictReject:
		return true
	}
	return false
}

// ParseVerdict converts a string into a Verdict, accepting common aliases.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "approved", "approve", "done":
		return VerdictApproved, nil
	case "needs_revision", "revise":
		return VerdictNeedsRevision, nil
	case "reject", "rejected":
		return VerdictReject, nil
	}
	return "", fmt.Errorf("unknown verdict: %q", s)
}

// ArtifactRef points at a file the thought produced or touched.
type ArtifactRef struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
	Hash        string `json:"hash,omitempty"`
}

// Node is a single thought in the knowledge graph.
//
// Actor nodes carry the work; critic nodes carry a verdict and point at the
// actor node they critique via Target. Parents and Children are ordered and
// kept mutually consistent by the Manager.
type Node struct {
	ID                string        `json:"id"`
	Thought           string        `json:"thought"`
	Role              Role          `json:"role"`
	Verdict           Verdict       `json:"verdict,omitempty"`
	VerdictReason     string        `json:"verdictReason,omitempty"`
	VerdictReferences []string      `json:"verdictReferences,omitempty"`
	Target            string        `json:"target,omitempty"`
	Parents           []string      `json:"parents"`
	Children          []string      `json:"children"`
	NeedsMore         bool          `json:"needsMore,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	BranchLabel       string        `json:"branchLabel,omitempty"`
	Tags              []string      `json:"tags,omitempty"`
	Artifacts         []ArtifactRef `json:"artifacts,omitempty"`
}

// SemanticTags are the tag values the critic expects actor nodes to carry.
var SemanticTags = []string{"requirement", "task", "risk", "design", "definition"}

// HasTag reports whether the node carries the given tag.
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasSemanticTag reports whether the node carries at least one of the
// well-known semantic tags.
func (n *Node) HasSemanticTag() bool {
	for _, t := range SemanticTags {
		if n.HasTag(t) {
			return true
		}
	}
	return false
}

// IsBranchHead reports whether this node starts an alternative branch.
func (n *Node) IsBranchHead() bool {
	return n.BranchLabel != ""
}
