package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Dir provides query access to a directory of session JSONL files.
type Dir struct {
	path   string
	logger *zap.Logger
}

// NewDir wraps a sessions directory. A nil logger is replaced with a no-op.
func NewDir(path string, logger *zap.Logger) *Dir {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dir{path: path, logger: logger}
}

// Path returns the watched directory.
func (d *Dir) Path() string { return d.path }

// List returns summaries matching the filter, newest first. Unparsable files
// are logged and skipped rather than failing the whole listing.
func (d *Dir) List(filter Filter) ([]*Summary, error) {
	entries, err := os.ReadDir(d.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var summaries []*Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(d.path, entry.Name())
		sum, err := ParseSummary(path)
		if err != nil {
			d.logger.Warn("skipping unparsable session file",
				zap.String("path", path), zap.Error(err))
			continue
		}
		if matchesFilter(sum, filter) {
			summaries = append(summaries, sum)
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Timestamp.After(summaries[j].Timestamp)
	})
	return summaries, nil
}

// Get loads a full session by id.
func (d *Dir) Get(id string) (*Session, error) {
	return ParseSession(filepath.Join(d.path, id+".jsonl"))
}

// Diff concatenates the non-empty git diffs of every iteration.
func (d *Dir) Diff(id string) (string, error) {
	s, err := d.Get(id)
	if err != nil {
		return "", err
	}
	var diffs []string
	for _, it := range s.Iterations {
		if it.GitDiff != "" {
			diffs = append(diffs, it.GitDiff)
		}
	}
	return strings.Join(diffs, "\n"), nil
}

// Active returns ids of sessions without an outcome yet.
func (d *Dir) Active() ([]string, error) {
	summaries, err := d.List(Filter{})
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, s := range summaries {
		if s.Active() {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

// Stats aggregates the sessions matching the filter.
func (d *Dir) Stats(filter Filter) (*Stats, error) {
	summaries, err := d.List(filter)
	if err != nil {
		return nil, err
	}
	return ComputeStats(summaries), nil
}

// Metrics computes critic-quality metrics. It loads the full sessions
// because per-iteration decisions are needed.
func (d *Dir) Metrics(filter Filter) (*Metrics, error) {
	summaries, err := d.List(filter)
	if err != nil {
		return nil, err
	}
	sessions := make([]*Session, 0, len(summaries))
	for _, sum := range summaries {
		s, err := d.Get(sum.ID)
		if err != nil {
			d.logger.Warn("skipping session for metrics",
				zap.String("id", sum.ID), zap.Error(err))
			continue
		}
		sessions = append(sessions, s)
	}
	return computeMetrics(sessions), nil
}

func matchesFilter(s *Summary, f Filter) bool {
	if f.Outcome != "" && s.Outcome != f.Outcome {
		return false
	}
	if !f.After.IsZero() && s.Timestamp.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && s.Timestamp.After(f.Before) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(s.PromptPreview), strings.ToLower(f.Search)) {
		return false
	}
	if f.Project != "" && s.Project != f.Project {
		return false
	}
	return true
}

// ComputeStats aggregates summaries. It is shared with the SQLite store so
// file-backed and database-backed listings report identical figures.
func ComputeStats(summaries []*Summary) *Stats {
	stats := &Stats{TotalSessions: len(summaries)}
	if len(summaries) == 0 {
		return stats
	}

	successes := 0
	var iterSum, durSum float64
	durCount := 0
	dayCounts := map[string]int{}
	type projAgg struct{ total, successes int }
	projects := map[string]*projAgg{}

	for _, s := range summaries {
		if s.Outcome == "success" {
			successes++
		}
		iterSum += float64(s.Iterations)
		if s.Duration > 0 {
			durSum += s.Duration
			durCount++
		}
		dayCounts[s.Timestamp.Format("2006-01-02")]++
		agg := projects[s.Project]
		if agg == nil {
			agg = &projAgg{}
			projects[s.Project] = agg
		}
		agg.total++
		if s.Outcome == "success" {
			agg.successes++
		}
	}

	stats.SuccessRate = float64(successes) / float64(len(summaries))
	stats.AvgIterations = iterSum / float64(len(summaries))
	if durCount > 0 {
		stats.AvgDuration = durSum / float64(durCount)
	}
	for date, count := range dayCounts {
		stats.SessionsOverTime = append(stats.SessionsOverTime, DayCount{Date: date, Count: count})
	}
	sort.Slice(stats.SessionsOverTime, func(i, j int) bool {
		return stats.SessionsOverTime[i].Date < stats.SessionsOverTime[j].Date
	})
	for project, agg := range projects {
		stats.ByProject = append(stats.ByProject, ProjectStats{
			Project:     project,
			Total:       agg.total,
			SuccessRate: float64(agg.successes) / float64(agg.total),
		})
	}
	sort.Slice(stats.ByProject, func(i, j int) bool {
		if stats.ByProject[i].Total != stats.ByProject[j].Total {
			return stats.ByProject[i].Total > stats.ByProject[j].Total
		}
		return stats.ByProject[i].Project < stats.ByProject[j].Project
	})
	return stats
}
