package critic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Decision parsing errors.
var (
	ErrNoDecision        = errors.New("no decision marker found in critic output")
	ErrAmbiguousDecision = errors.New("ambiguous decision: both done and continue markers found")
	ErrMalformedDecision = errors.New("malformed decision block")
)

// DecisionType classifies the critic's loop-level decision.
type DecisionType string

const (
	DecisionDone     DecisionType = "done"
	DecisionContinue DecisionType = "continue"
	DecisionError    DecisionType = "error"
)

// Decision is the critic's call on whether the loop should stop.
//
// The critic ends its evaluation with a block of the form:
//
//	<decision>
//	{"type": "done", "summary": "...", "confidence": 0.95}
//	</decision>
//
// or type "continue" (feedback, remaining_issues) or type "error"
// (error_description, recovery_suggestion).
type Decision struct {
	Type               DecisionType `json:"type"`
	Summary            string       `json:"summary,omitempty"`
	Confidence         float64      `json:"confidence,omitempty"`
	Feedback           string       `json:"feedback,omitempty"`
	RemainingIssues    []string     `json:"remaining_issues,omitempty"`
	ErrorDescription   string       `json:"error_description,omitempty"`
	RecoverySuggestion string       `json:"recovery_suggestion,omitempty"`
}

func (d *Decision) IsDone() bool     { return d.Type == DecisionDone }
func (d *Decision) IsContinue() bool { return d.Type == DecisionContinue }
func (d *Decision) IsError() bool    { return d.Type == DecisionError }

// Short returns a compact description for logs.
func (d *Decision) Short() string {
	switch d.Type {
	case DecisionDone:
		return fmt.Sprintf("DONE (confidence: %.0f%%)", d.Confidence*100)
	case DecisionContinue:
		if len(d.RemainingIssues) == 0 {
			return "CONTINUE"
		}
		return fmt.Sprintf("CONTINUE (%d issues)", len(d.RemainingIssues))
	case DecisionError:
		return "ERROR"
	}
	return string(d.Type)
}

// ParseDecision extracts the decision from critic output. A well-formed
// <decision> block wins; otherwise plain-text completion markers are tried.
func ParseDecision(output string) (*Decision, error) {
	if d, err := parseDecisionBlock(output); err != nil || d != nil {
		return d, err
	}
	return parseSimpleMarkers(output)
}

func parseDecisionBlock(output string) (*Decision, error) {
	start := strings.Index(output, "<decision>")
	end := strings.Index(output, "</decision>")
	switch {
	case start == -1 || end == -1:
		// A lone marker usually means truncated output; let the plain-text
		// markers have a go instead of failing the loop.
		return nil, nil
	case start > end:
		return nil, ErrMalformedDecision
	}

	raw := strings.TrimSpace(output[start+len("<decision>") : end])
	// Confidence defaults to 1.0 only when the field is absent; an explicit
	// 0.0 is kept. The pointer distinguishes the two.
	var aux struct {
		Decision
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &aux); err != nil {
		return nil, fmt.Errorf("parse decision JSON: %w", err)
	}
	d := aux.Decision
	switch {
	case aux.Confidence != nil:
		d.Confidence = *aux.Confidence
	case d.Type == DecisionDone:
		d.Confidence = 1.0
	}
	return &d, nil
}

var doneMarkers = []string{
	"TASK COMPLETE",
	"TASK IS COMPLETE",
	"[DONE]",
	"SUCCESSFULLY COMPLETED",
	"ALL REQUIREMENTS MET",
}

var continueMarkers = []string{
	"NEEDS MORE WORK",
	"NOT YET COMPLETE",
	"[CONTINUE]",
	"ADDITIONAL WORK REQUIRED",
	"ISSUES REMAIN",
}

func parseSimpleMarkers(output string) (*Decision, error) {
	upper := strings.ToUpper(output)
	hasDone := containsAny(upper, doneMarkers)
	hasContinue := containsAny(upper, continueMarkers)

	switch {
	case hasDone && hasContinue:
		return nil, ErrAmbiguousDecision
	case hasDone:
		return &Decision{
			Type:       DecisionDone,
			Summary:    "Task marked as complete by critic",
			Confidence: 0.8,
		}, nil
	case hasContinue:
		return &Decision{
			Type:     DecisionContinue,
			Feedback: extractFeedback(output),
		}, nil
	}
	return nil, ErrNoDecision
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// extractFeedback pulls the feedback section out of unstructured critic
// output, falling back to a truncated copy of the whole thing.
func extractFeedback(output string) string {
	for _, marker := range []string{"Feedback:", "Issues:", "Problems:", "Suggestions:"} {
		pos := strings.Index(output, marker)
		if pos == -1 {
			continue
		}
		rest := output[pos+len(marker):]
		if cut := strings.Index(rest, "\n\n"); cut != -1 {
			rest = rest[:cut]
		} else if len(rest) > 500 {
			rest = clipRunes(rest, 500)
		}
		return strings.TrimSpace(rest)
	}
	if len(output) > 500 {
		return clipRunes(output, 500) + "..."
	}
	return output
}

// clipRunes cuts s to at most n bytes without splitting a rune.
func clipRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
