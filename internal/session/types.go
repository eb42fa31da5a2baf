// Package session reads and writes the JSONL session logs produced by the
// actor/critic loop. Each session is one file with three line types, tagged
// by "type": session_start, iteration, and session_end. Listing is fast
// because summaries only need the first and last line of a file.
package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Line type tags.
const (
	LineSessionStart = "session_start"
	LineIteration    = "iteration"
	LineSessionEnd   = "session_end"
)

// Start is the first line of every session file.
type Start struct {
	Timestamp     time.Time `json:"timestamp"`
	Prompt        string    `json:"prompt"`
	WorkingDir    string    `json:"working_dir"`
	ActorAgent    string    `json:"actor_agent"`
	CriticAgent   string    `json:"critic_agent"`
	ActorModel    string    `json:"actor_model,omitempty"`
	CriticModel   string    `json:"critic_model,omitempty"`
	MaxIterations int       `json:"max_iterations,omitempty"`
}

// Iteration records one actor/critic cycle.
type Iteration struct {
	IterationNumber int       `json:"iteration_number"`
	ActorOutput     string    `json:"actor_output"`
	ActorStderr     string    `json:"actor_stderr"`
	ActorExitCode   int       `json:"actor_exit_code"`
	ActorDuration   float64   `json:"actor_duration_secs"`
	GitDiff         string    `json:"git_diff"`
	GitFilesChanged int       `json:"git_files_changed"`
	CriticDecision  string    `json:"critic_decision"`
	Feedback        string    `json:"feedback,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// End is the last line of a completed session. Active sessions have none.
type End struct {
	Outcome    string    `json:"outcome"`
	Iterations int       `json:"iterations"`
	Summary    string    `json:"summary,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Duration   float64   `json:"duration_secs"`
	Timestamp  time.Time `json:"timestamp"`
}

// marshalLine tags a payload struct with its "type" discriminator.
func marshalLine(typ string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["type"], err = json.Marshal(typ)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// lineType reads just the discriminator of one JSONL line.
func lineType(data []byte) (string, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return "", err
	}
	if tag.Type == "" {
		return "", fmt.Errorf("session line has no type tag")
	}
	return tag.Type, nil
}

// Session is a fully parsed session file.
type Session struct {
	ID         string      `json:"id"`
	Start      Start       `json:"start"`
	Iterations []Iteration `json:"iterations"`
	End        *End        `json:"end,omitempty"`
}

// Active reports whether the session has no end line yet.
func (s *Session) Active() bool { return s.End == nil }

// Summary is the lightweight view used for listings. Outcome is empty while
// the session is still running.
type Summary struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	PromptPreview string    `json:"prompt_preview"`
	WorkingDir    string    `json:"working_dir"`
	Project       string    `json:"project"`
	Outcome       string    `json:"outcome,omitempty"`
	Iterations    int       `json:"iterations"`
	Duration      float64   `json:"duration_secs,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
	ActorAgent    string    `json:"actor_agent"`
	CriticAgent   string    `json:"critic_agent"`
}

// Active reports whether the session has not recorded an outcome.
func (s *Summary) Active() bool { return s.Outcome == "" }

// Filter narrows session listings. Zero values mean "no constraint".
type Filter struct {
	Outcome string
	After   time.Time
	Before  time.Time
	Search  string
	Project string
}

// DayCount is the number of sessions started on one calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// ProjectStats aggregates outcomes for one project.
type ProjectStats struct {
	Project     string  `json:"project"`
	Total       int     `json:"total"`
	SuccessRate float64 `json:"success_rate"`
}

// Stats aggregates the sessions matching a filter.
type Stats struct {
	TotalSessions    int            `json:"total_sessions"`
	SuccessRate      float64        `json:"success_rate"`
	AvgIterations    float64        `json:"avg_iterations"`
	AvgDuration      float64        `json:"avg_duration_secs"`
	SessionsOverTime []DayCount     `json:"sessions_over_time"`
	ByProject        []ProjectStats `json:"by_project"`
}

// Metrics extends Stats with critic-quality figures.
type Metrics struct {
	TotalSessions         int            `json:"total_sessions"`
	SuccessfulSessions    int            `json:"successful_sessions"`
	SuccessRate           float64        `json:"success_rate"`
	FirstTrySuccessRate   float64        `json:"first_try_success_rate"`
	AvgIterationsToSucces float64        `json:"avg_iterations_to_success"`
	AvgCycleTime          float64        `json:"avg_cycle_time_secs"`
	WasteRate             float64        `json:"waste_rate"`
	TotalIterations       int            `json:"total_iterations"`
	CriticApprovalRate    float64        `json:"critic_approval_rate"`
	AvgFeedbackLength     float64        `json:"avg_feedback_length"`
	ImprovementRate       float64        `json:"improvement_rate"`
	SessionsOverTime      []DayCount     `json:"sessions_over_time"`
	ByProject             []ProjectStats `json:"by_project"`
}
