package critic

import (
	"fmt"
	"strings"

	"codeloops/internal/graph"
)

// Truncation limits for evaluation prompt sections, in bytes.
const (
	maxStdout = 10000
	maxStderr = 2000
	maxDiff   = 20000
)

// EvaluationPrompt builds the prompt the critic uses to judge one actor
// iteration. Long sections are truncated at line boundaries.
func EvaluationPrompt(task, actorStdout, actorStderr, gitDiff string, iteration int) string {
	return fmt.Sprintf(`You are a code review critic. Your job is to evaluate whether a coding task has been completed successfully.

## Original Task
%s

## Actor Output (stdout)
`+"```"+`
%s
`+"```"+`

## Actor Errors (stderr)
`+"```"+`
%s
`+"```"+`

## Git Diff (changes made)
`+"```diff"+`
%s
`+"```"+`

## Context
This is iteration %d of the actor-critic loop.

## Your Evaluation Criteria
1. **Completeness**: Has the task been fully addressed? Are all requirements met?
2. **Correctness**: Do the changes appear correct? Are there obvious bugs or errors?
3. **Quality**: Is the implementation reasonable? No obvious anti-patterns?
4. **Errors**: Were there any errors in the actor's execution that need addressing?

## Required Response Format

After your analysis, you MUST end your response with a decision block in exactly this format:

If the task is COMPLETE:
<decision>
{"type": "done", "summary": "Brief summary of what was accomplished", "confidence": 0.95}
</decision>

If MORE WORK is needed:
<decision>
{"type": "continue", "feedback": "Specific, actionable feedback for the next iteration", "remaining_issues": ["issue1", "issue2"]}
</decision>

If an ERROR was encountered:
<decision>
{"type": "error", "error_description": "What went wrong", "recovery_suggestion": "How to fix it"}
</decision>

Be thorough but fair. Only mark as "done" if the task is genuinely complete.
Do not be overly pedantic about style issues unless they affect functionality.
Focus on whether the core task requirements have been met.`,
		task,
		truncate(actorStdout, maxStdout),
		truncate(actorStderr, maxStderr),
		truncate(gitDiff, maxDiff),
		iteration+1,
	)
}

// ContinuationPrompt builds the actor prompt for iterations after the
// first, folding in the critic's feedback.
func ContinuationPrompt(task, feedback string) string {
	return fmt.Sprintf(`Continue working on this task:

## Original Task
%s

## Previous Attempt Feedback
%s

Please address the feedback and complete the remaining work. Focus specifically on the issues mentioned in the feedback.`,
		task, feedback)
}

// NodeReviewPrompt asks the critic to review one thought node against the
// graph's schema requirements and answer with the single-line review JSON.
func NodeReviewPrompt(node *graph.Node, chain []*graph.Node, maxRevisions int) string {
	var history strings.Builder
	for _, n := range chain {
		if n.ID == node.ID {
			continue
		}
		fmt.Fprintf(&history, "- [%s] %s: %s\n", n.ID, n.Role, firstLine(n.Thought))
	}
	if history.Len() == 0 {
		history.WriteString("(none)\n")
	}

	var artifacts string
	if len(node.Artifacts) == 0 {
		artifacts = "(none attached)"
	} else {
		var b strings.Builder
		for _, a := range node.Artifacts {
			fmt.Fprintf(&b, "- %s", a.Path)
			if a.Description != "" {
				fmt.Fprintf(&b, " (%s)", a.Description)
			}
			b.WriteString("\n")
		}
		artifacts = b.String()
	}

	return fmt.Sprintf(`You are the quality critic in an actor-critic loop, reviewing a thought node from the knowledge graph.

## Node Under Review
ID: %s
Tags: %s
Branch label: %s

Thought:
%s

Attached artifacts:
%s

## Ancestor Nodes
%s

## Checks to Perform
- File References: if the thought mentions file paths, matching artifacts must be attached
- Tag Validation: the node must carry at least one semantic tag (%s) that is meaningful for future searches
- Duplicate Detection: flag thoughts that restate work already present in the ancestors
- Branch Consistency: a branch label may only appear on the first node of an alternative approach
- Code Quality: flag suppressed type errors, stray debug output, or poor practices described in the thought

## Verdicts
- "approved": the node meets all requirements and can proceed
- "needs_revision": the node needs specific improvements (always include verdictReason)
- "reject": the node is fundamentally flawed or has used up its %d revision attempts

Respond with a single line of JSON and nothing after it:
{"verdict": "approved|needs_revision|reject", "verdictReason": "reason for revision if needed", "verdictReferences": ["related node ids"]}`,
		node.ID,
		tagList(node),
		orNone(node.BranchLabel),
		node.Thought,
		artifacts,
		history.String(),
		strings.Join(graph.SemanticTags, ", "),
		maxRevisions,
	)
}

// truncate shortens s to at most n bytes, preferring a line boundary and
// never splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := clipRunes(s, n)
	if pos := strings.LastIndexByte(cut, '\n'); pos > 0 {
		return cut[:pos]
	}
	return cut
}

func firstLine(s string) string {
	if pos := strings.IndexByte(s, '\n'); pos != -1 {
		s = s[:pos]
	}
	if len(s) > 120 {
		s = clipRunes(s, 117) + "..."
	}
	return s
}

func tagList(n *graph.Node) string {
	if len(n.Tags) == 0 {
		return "(none)"
	}
	return strings.Join(n.Tags, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
