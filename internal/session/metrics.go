package session

import "strings"

// approved reports whether a recorded critic decision counts as an approval.
func approved(decision string) bool {
	switch strings.ToLower(strings.TrimSpace(decision)) {
	case "approve", "approved", "done", "success":
		return true
	}
	return false
}

// wasted outcomes burned iterations without producing an accepted result.
func wasted(outcome string) bool {
	switch outcome {
	case "failed", "interrupted", "max_iterations_reached":
		return true
	}
	return false
}

// computeMetrics derives critic-quality figures from full sessions.
//
//   - First-try success rate: successful sessions that needed exactly one
//     iteration, over all successful sessions.
//   - Waste rate: failed, interrupted, or iteration-capped sessions over all
//     completed sessions.
//   - Approval rate: approved iterations over all iterations.
//   - Improvement rate: rejections whose next iteration was approved, over
//     all rejections.
//   - Average feedback length: mean feedback size across rejections.
func computeMetrics(sessions []*Session) *Metrics {
	m := &Metrics{TotalSessions: len(sessions)}
	if len(sessions) == 0 {
		return m
	}

	var (
		firstTry      int
		successIters  float64
		cycleSum      float64
		cycleCount    int
		wastedCount   int
		approvals     int
		rejections    int
		improvements  int
		feedbackChars int
	)

	summaries := make([]*Summary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, summarize(s))

		if s.End != nil {
			if s.End.Outcome == "success" {
				m.SuccessfulSessions++
				successIters += float64(s.End.Iterations)
				if s.End.Iterations == 1 {
					firstTry++
				}
			}
			if wasted(s.End.Outcome) {
				wastedCount++
			}
		}

		for i, it := range s.Iterations {
			m.TotalIterations++
			cycleSum += it.ActorDuration
			cycleCount++
			if approved(it.CriticDecision) {
				approvals++
				continue
			}
			rejections++
			feedbackChars += len(it.Feedback)
			if i+1 < len(s.Iterations) && approved(s.Iterations[i+1].CriticDecision) {
				improvements++
			}
		}
	}

	m.SuccessRate = float64(m.SuccessfulSessions) / float64(len(sessions))
	if m.SuccessfulSessions > 0 {
		m.FirstTrySuccessRate = float64(firstTry) / float64(m.SuccessfulSessions)
		m.AvgIterationsToSucces = successIters / float64(m.SuccessfulSessions)
	}
	if cycleCount > 0 {
		m.AvgCycleTime = cycleSum / float64(cycleCount)
	}
	m.WasteRate = float64(wastedCount) / float64(len(sessions))
	if m.TotalIterations > 0 {
		m.CriticApprovalRate = float64(approvals) / float64(m.TotalIterations)
	}
	if rejections > 0 {
		m.AvgFeedbackLength = float64(feedbackChars) / float64(rejections)
		m.ImprovementRate = float64(improvements) / float64(rejections)
	}

	base := ComputeStats(summaries)
	m.SessionsOverTime = base.SessionsOverTime
	m.ByProject = base.ByProject
	return m
}

// summarize builds a Summary from an already-loaded session.
func summarize(s *Session) *Summary {
	sum := &Summary{
		ID:            s.ID,
		Timestamp:     s.Start.Timestamp,
		PromptPreview: preview(s.Start.Prompt, 100),
		WorkingDir:    s.Start.WorkingDir,
		Project:       projectName(s.Start.WorkingDir),
		Iterations:    len(s.Iterations),
		ActorAgent:    s.Start.ActorAgent,
		CriticAgent:   s.Start.CriticAgent,
	}
	if s.End != nil {
		sum.Outcome = s.End.Outcome
		sum.Iterations = s.End.Iterations
		sum.Duration = s.End.Duration
		sum.Confidence = s.End.Confidence
	}
	return sum
}
