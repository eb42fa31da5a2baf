package graph

import "sync"

// DefaultMaxRevisions is how many revision attempts a node gets before the
// critic escalates to reject.
const DefaultMaxRevisions = 2

// RevisionCounter tracks revision attempts per actor node.
type RevisionCounter struct {
	mu     sync.Mutex
	counts map[string]int
	max    int
}

// NewRevisionCounter creates a counter with the given cap. A cap of zero or
// less falls back to DefaultMaxRevisions.
func NewRevisionCounter(max int) *RevisionCounter {
	if max <= 0 {
		max = DefaultMaxRevisions
	}
	return &RevisionCounter{counts: make(map[string]int), max: max}
}

// Record notes one revision request against the node and returns the count.
func (r *RevisionCounter) Record(nodeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[nodeID]++
	return r.counts[nodeID]
}

// Count returns how many revisions the node has accumulated.
func (r *RevisionCounter) Count(nodeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[nodeID]
}

// Exhausted reports whether the node has used up its revision attempts.
func (r *RevisionCounter) Exhausted(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[nodeID] >= r.max
}

// Max returns the configured cap.
func (r *RevisionCounter) Max() int {
	return r.max
}

// Apply folds the revision policy into a verdict: a needs_revision verdict
// against a node that already exhausted its attempts becomes a reject.
func (r *RevisionCounter) Apply(nodeID string, v Verdict) Verdict {
	if v != VerdictNeedsRevision {
		return v
	}
	if r.Exhausted(nodeID) {
		return VerdictReject
	}
	r.Record(nodeID)
	return v
}
