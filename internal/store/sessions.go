package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"codeloops/internal/session"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// CreateSession inserts a new session row and returns its generated id.
func (s *Store) CreateSession(start session.Start) (string, error) {
	id := uuid.NewString()
	ts := start.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (
			id, prompt, working_dir, actor_agent, critic_agent,
			actor_model, critic_model, max_iterations, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, start.Prompt, start.WorkingDir, start.ActorAgent, start.CriticAgent,
		nullStr(start.ActorModel), nullStr(start.CriticModel),
		nullInt(start.MaxIterations), ts.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// AddIteration appends one actor/critic cycle to a session.
func (s *Store) AddIteration(sessionID string, it session.Iteration) error {
	ts := it.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO iterations (
			session_id, iteration_number, actor_output, actor_stderr,
			actor_exit_code, actor_duration_secs, git_diff, git_files_changed,
			critic_decision, feedback, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, it.IterationNumber, it.ActorOutput, it.ActorStderr,
		it.ActorExitCode, it.ActorDuration, it.GitDiff, it.GitFilesChanged,
		it.CriticDecision, nullStr(it.Feedback), ts.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add iteration: %w", err)
	}
	return nil
}

// EndSession records the final outcome of a session.
func (s *Store) EndSession(sessionID string, end session.End) error {
	ts := end.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		UPDATE sessions SET
			outcome = ?, iteration_count = ?, summary = ?,
			confidence = ?, duration_secs = ?, ended_at = ?
		WHERE id = ?`,
		end.Outcome, end.Iterations, nullStr(end.Summary),
		nullFloat(end.Confidence), end.Duration, ts.Format(time.RFC3339Nano),
		sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("end session %s: %w", sessionID, ErrSessionNotFound)
	}
	return nil
}

// GetSession loads a session with all its iterations.
func (s *Store) GetSession(id string) (*session.Session, error) {
	row := s.db.QueryRow(`
		SELECT prompt, working_dir, actor_agent, critic_agent,
		       actor_model, critic_model, max_iterations, outcome,
		       iteration_count, summary, confidence, duration_secs, started_at
		FROM sessions WHERE id = ?`, id)

	var (
		sess                  session.Session
		actorModel, critModel sql.NullString
		maxIter, iterCount    sql.NullInt64
		outcome, summary      sql.NullString
		confidence, duration  sql.NullFloat64
		startedAt             string
	)
	err := row.Scan(&sess.Start.Prompt, &sess.Start.WorkingDir,
		&sess.Start.ActorAgent, &sess.Start.CriticAgent,
		&actorModel, &critModel, &maxIter, &outcome,
		&iterCount, &summary, &confidence, &duration, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess.ID = id
	sess.Start.ActorModel = actorModel.String
	sess.Start.CriticModel = critModel.String
	sess.Start.MaxIterations = int(maxIter.Int64)
	sess.Start.Timestamp = parseTime(startedAt)
	if outcome.Valid {
		sess.End = &session.End{
			Outcome:    outcome.String,
			Iterations: int(iterCount.Int64),
			Summary:    summary.String,
			Confidence: confidence.Float64,
			Duration:   duration.Float64,
		}
	}

	sess.Iterations, err = s.iterations(id)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns summaries matching the filter, newest first.
func (s *Store) ListSessions(filter session.Filter) ([]*session.Summary, error) {
	query := `
		SELECT id, prompt, working_dir, actor_agent, critic_agent,
		       outcome, iteration_count, duration_secs, confidence, started_at
		FROM sessions WHERE 1=1`
	var args []any

	if filter.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, filter.Outcome)
	}
	if !filter.After.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.After.Format(time.RFC3339Nano))
	}
	if !filter.Before.IsZero() {
		query += " AND started_at <= ?"
		args = append(args, filter.Before.Format(time.RFC3339Nano))
	}
	if filter.Search != "" {
		query += " AND prompt LIKE ?"
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Project != "" {
		query += " AND working_dir LIKE ?"
		args = append(args, "%/"+filter.Project)
	}
	query += " ORDER BY started_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []*session.Summary
	for rows.Next() {
		var (
			sum                  session.Summary
			outcome              sql.NullString
			iterCount            sql.NullInt64
			duration, confidence sql.NullFloat64
			startedAt            string
			prompt               string
		)
		if err := rows.Scan(&sum.ID, &prompt, &sum.WorkingDir,
			&sum.ActorAgent, &sum.CriticAgent, &outcome, &iterCount,
			&duration, &confidence, &startedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sum.PromptPreview = previewPrompt(prompt)
		sum.Project = filepath.Base(sum.WorkingDir)
		sum.Outcome = outcome.String
		sum.Iterations = int(iterCount.Int64)
		sum.Duration = duration.Float64
		sum.Confidence = confidence.Float64
		sum.Timestamp = parseTime(startedAt)
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

// DeleteSession removes a session and, via cascade, its iterations and graph
// nodes. Returns false when no such session exists.
func (s *Store) DeleteSession(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActiveSessions returns ids of sessions without an outcome.
func (s *Store) ActiveSessions() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions WHERE outcome IS NULL ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListProjects returns the distinct project names seen across sessions.
func (s *Store) ListProjects() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT working_dir FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var projects []string
	for rows.Next() {
		var dir string
		if err := rows.Scan(&dir); err != nil {
			return nil, err
		}
		p := filepath.Base(dir)
		if !seen[p] {
			seen[p] = true
			projects = append(projects, p)
		}
	}
	sort.Strings(projects)
	return projects, rows.Err()
}

// SessionStats aggregates the sessions matching the filter, reusing the same
// math as the file-backed listings.
func (s *Store) SessionStats(filter session.Filter) (*session.Stats, error) {
	summaries, err := s.ListSessions(filter)
	if err != nil {
		return nil, err
	}
	return session.ComputeStats(summaries), nil
}

func (s *Store) iterations(sessionID string) ([]session.Iteration, error) {
	rows, err := s.db.Query(`
		SELECT iteration_number, actor_output, actor_stderr, actor_exit_code,
		       actor_duration_secs, git_diff, git_files_changed,
		       critic_decision, feedback, timestamp
		FROM iterations WHERE session_id = ? ORDER BY iteration_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load iterations: %w", err)
	}
	defer rows.Close()

	var iters []session.Iteration
	for rows.Next() {
		var (
			it       session.Iteration
			feedback sql.NullString
			ts       string
		)
		if err := rows.Scan(&it.IterationNumber, &it.ActorOutput, &it.ActorStderr,
			&it.ActorExitCode, &it.ActorDuration, &it.GitDiff,
			&it.GitFilesChanged, &it.CriticDecision, &feedback, &ts); err != nil {
			return nil, fmt.Errorf("scan iteration row: %w", err)
		}
		it.Feedback = feedback.String
		it.Timestamp = parseTime(ts)
		iters = append(iters, it)
	}
	return iters, rows.Err()
}

func previewPrompt(prompt string) string {
	if len(prompt) <= 100 {
		return prompt
	}
	n := 100
	for n > 0 && !utf8.RuneStart(prompt[n]) {
		n--
	}
	return prompt[:n] + "..."
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}
