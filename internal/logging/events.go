// Package logging records the lifecycle of an actor/critic loop. Events fan
// out to zap for structured logs, an optional JSONL file for later parsing,
// and a styled console renderer for humans.
package logging

import (
	"time"
)

// Role identifies which agent produced a stream line.
type Role string

const (
	RoleActor  Role = "actor"
	RoleCritic Role = "critic"
)

// Event is one step in the loop lifecycle. Exactly one pointer field is set;
// Kind names it.
type Event struct {
	Kind      string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`

	LoopStarted    *LoopStarted    `json:"loop_started,omitempty"`
	ActorStarted   *ActorStarted   `json:"actor_started,omitempty"`
	ActorCompleted *ActorCompleted `json:"actor_completed,omitempty"`
	StreamLine     *StreamLine     `json:"stream_line,omitempty"`
	DiffCaptured   *DiffCaptured   `json:"diff_captured,omitempty"`
	CriticStarted  *CriticStarted  `json:"critic_started,omitempty"`
	CriticDone     *CriticDone     `json:"critic_done,omitempty"`
	NodeAppended   *NodeAppended   `json:"node_appended,omitempty"`
	LoopCompleted  *LoopCompleted  `json:"loop_completed,omitempty"`
	LoopLimit      *LoopLimit      `json:"loop_limit,omitempty"`
	LoopError      *LoopError      `json:"loop_error,omitempty"`
}

type LoopStarted struct {
	Prompt     string `json:"prompt"`
	WorkingDir string `json:"working_dir"`
}

type ActorStarted struct {
	Iteration     int    `json:"iteration"`
	PromptPreview string `json:"prompt_preview"`
}

type ActorCompleted struct {
	Iteration int     `json:"iteration"`
	ExitCode  int     `json:"exit_code"`
	Seconds   float64 `json:"duration_secs"`
}

type StreamLine struct {
	Iteration int    `json:"iteration"`
	Role      Role   `json:"role"`
	Stderr    bool   `json:"stderr,omitempty"`
	Line      string `json:"line"`
}

type DiffCaptured struct {
	Iteration    int `json:"iteration"`
	FilesChanged int `json:"files_changed"`
	Insertions   int `json:"insertions"`
	Deletions    int `json:"deletions"`
}

type CriticStarted struct {
	Iteration int `json:"iteration"`
}

type CriticDone struct {
	Iteration int    `json:"iteration"`
	Decision  string `json:"decision"`
}

type NodeAppended struct {
	NodeID  string `json:"node_id"`
	Role    Role   `json:"role"`
	Verdict string `json:"verdict,omitempty"`
}

type LoopCompleted struct {
	Iterations int     `json:"iterations"`
	Summary    string  `json:"summary"`
	Seconds    float64 `json:"duration_secs"`
}

type LoopLimit struct {
	Iterations int `json:"iterations"`
}

type LoopError struct {
	Iteration int    `json:"iteration"`
	Error     string `json:"error"`
}

// Constructors keep call sites short.

func EvLoopStarted(prompt, dir string) Event {
	return Event{Kind: "loop_started", LoopStarted: &LoopStarted{Prompt: prompt, WorkingDir: dir}}
}

func EvActorStarted(iteration int, preview string) Event {
	return Event{Kind: "actor_started", ActorStarted: &ActorStarted{Iteration: iteration, PromptPreview: preview}}
}

func EvActorCompleted(iteration, exitCode int, d time.Duration) Event {
	return Event{Kind: "actor_completed", ActorCompleted: &ActorCompleted{Iteration: iteration, ExitCode: exitCode, Seconds: d.Seconds()}}
}

func EvStreamLine(iteration int, role Role, stderr bool, line string) Event {
	return Event{Kind: "stream_line", StreamLine: &StreamLine{Iteration: iteration, Role: role, Stderr: stderr, Line: line}}
}

func EvDiffCaptured(iteration, files, ins, del int) Event {
	return Event{Kind: "diff_captured", DiffCaptured: &DiffCaptured{Iteration: iteration, FilesChanged: files, Insertions: ins, Deletions: del}}
}

func EvCriticStarted(iteration int) Event {
	return Event{Kind: "critic_started", CriticStarted: &CriticStarted{Iteration: iteration}}
}

func EvCriticDone(iteration int, decision string) Event {
	return Event{Kind: "critic_done", CriticDone: &CriticDone{Iteration: iteration, Decision: decision}}
}

func EvNodeAppended(nodeID string, role Role, verdict string) Event {
	return Event{Kind: "node_appended", NodeAppended: &NodeAppended{NodeID: nodeID, Role: role, Verdict: verdict}}
}

func EvLoopCompleted(iterations int, summary string, d time.Duration) Event {
	return Event{Kind: "loop_completed", LoopCompleted: &LoopCompleted{Iterations: iterations, Summary: summary, Seconds: d.Seconds()}}
}

func EvLoopLimit(iterations int) Event {
	return Event{Kind: "loop_limit", LoopLimit: &LoopLimit{Iterations: iterations}}
}

func EvLoopError(iteration int, err string) Event {
	return Event{Kind: "loop_error", LoopError: &LoopError{Iteration: iteration, Error: err}}
}
