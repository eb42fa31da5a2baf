// Package critic implements the review side of the loop: parsing the
// critic's verdicts and decisions out of free-form agent output, building
// the prompts that elicit them, and running the evaluation.
package critic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"codeloops/internal/graph"
)

// Review parsing errors.
var (
	ErrNoReview       = errors.New("no review found in critic output")
	ErrUnknownVerdict = errors.New("unknown verdict in review")
	ErrReasonRequired = errors.New("needs_revision review requires a verdictReason")
)

// Review is the single-line JSON object the critic emits when reviewing a
// thought node:
//
//	{"verdict": "approved|needs_revision|reject", "verdictReason": "...", "verdictReferences": ["id", ...]}
type Review struct {
	Verdict           graph.Verdict `json:"verdict"`
	VerdictReason     string        `json:"verdictReason,omitempty"`
	VerdictReferences []string      `json:"verdictReferences,omitempty"`
}

// rawReview tolerates verdict aliases before validation.
type rawReview struct {
	Verdict           string   `json:"verdict"`
	VerdictReason     string   `json:"verdictReason"`
	VerdictReferences []string `json:"verdictReferences"`
}

// ParseReview scans critic output for the review object. The critic is
// asked for a single line, but models pad their answers, so the last line
// that parses as a review wins. Lines inside code fences are considered
// too.
func ParseReview(output string) (*Review, error) {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		line = strings.TrimPrefix(line, "```json")
		line = strings.TrimSuffix(line, "```")
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") || !strings.Contains(line, `"verdict"`) {
			continue
		}

		var raw rawReview
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		verdict, err := graph.ParseVerdict(raw.Verdict)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVerdict, raw.Verdict)
		}
		if verdict == graph.VerdictNeedsRevision && strings.TrimSpace(raw.VerdictReason) == "" {
			return nil, ErrReasonRequired
		}
		return &Review{
			Verdict:           verdict,
			VerdictReason:     raw.VerdictReason,
			VerdictReferences: raw.VerdictReferences,
		}, nil
	}
	return nil, ErrNoReview
}

// String renders the review back to its wire form.
func (r *Review) String() string {
	b, _ := json.Marshal(r)
	return string(b)
}
