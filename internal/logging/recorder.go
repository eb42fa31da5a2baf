package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Format selects the console rendering.
type Format string

const (
	FormatPretty  Format = "pretty"
	FormatCompact Format = "compact"
	FormatJSON    Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPretty, FormatCompact, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown log format: %q", s)
}

// Recorder fans loop events out to zap, the console, and an optional
// JSONL file.
type Recorder struct {
	mu      sync.Mutex
	logger  *zap.Logger
	format  Format
	console io.Writer
	file    *os.File
}

// NewRecorder creates a recorder writing console output to stderr.
func NewRecorder(logger *zap.Logger, format Format) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger, format: format, console: os.Stderr}
}

// WithConsole redirects console output, mainly for tests.
func (r *Recorder) WithConsole(w io.Writer) *Recorder {
	r.console = w
	return r
}

// WithFile additionally appends every event as JSON to path.
func (r *Recorder) WithFile(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	r.file = f
	return r, nil
}

// Close releases the log file, if any.
func (r *Recorder) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Record logs one event everywhere it belongs.
func (r *Recorder) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		if data, err := json.Marshal(ev); err == nil {
			fmt.Fprintln(r.file, string(data))
		}
	}

	r.logZap(ev)

	switch r.format {
	case FormatJSON:
		if data, err := json.Marshal(ev); err == nil {
			fmt.Fprintln(r.console, string(data))
		}
	case FormatCompact:
		if line := renderCompact(ev); line != "" {
			fmt.Fprintln(r.console, line)
		}
	default:
		if block := renderPretty(ev); block != "" {
			fmt.Fprint(r.console, block)
		}
	}
}

func (r *Recorder) logZap(ev Event) {
	switch {
	case ev.LoopStarted != nil:
		r.logger.Info("loop started",
			zap.String("working_dir", ev.LoopStarted.WorkingDir),
			zap.Int("prompt_len", len(ev.LoopStarted.Prompt)))
	case ev.ActorCompleted != nil:
		r.logger.Info("actor completed",
			zap.Int("iteration", ev.ActorCompleted.Iteration),
			zap.Int("exit_code", ev.ActorCompleted.ExitCode),
			zap.Float64("duration_secs", ev.ActorCompleted.Seconds))
	case ev.DiffCaptured != nil:
		r.logger.Debug("diff captured",
			zap.Int("iteration", ev.DiffCaptured.Iteration),
			zap.Int("files_changed", ev.DiffCaptured.FilesChanged))
	case ev.CriticDone != nil:
		r.logger.Info("critic done",
			zap.Int("iteration", ev.CriticDone.Iteration),
			zap.String("decision", ev.CriticDone.Decision))
	case ev.NodeAppended != nil:
		r.logger.Debug("node appended",
			zap.String("node_id", ev.NodeAppended.NodeID),
			zap.String("role", string(ev.NodeAppended.Role)),
			zap.String("verdict", ev.NodeAppended.Verdict))
	case ev.LoopCompleted != nil:
		r.logger.Info("loop completed",
			zap.Int("iterations", ev.LoopCompleted.Iterations),
			zap.Float64("duration_secs", ev.LoopCompleted.Seconds))
	case ev.LoopError != nil:
		r.logger.Warn("loop error",
			zap.Int("iteration", ev.LoopError.Iteration),
			zap.String("error", ev.LoopError.Error))
	}
}

func renderCompact(ev Event) string {
	ts := ev.Timestamp.Format("15:04:05")
	switch {
	case ev.LoopStarted != nil:
		return fmt.Sprintf("[%s] loop:start", ts)
	case ev.ActorStarted != nil:
		return fmt.Sprintf("[%s] actor:start:%d", ts, ev.ActorStarted.Iteration+1)
	case ev.ActorCompleted != nil:
		return fmt.Sprintf("[%s] actor:done:%d exit=%d %.1fs", ts, ev.ActorCompleted.Iteration+1, ev.ActorCompleted.ExitCode, ev.ActorCompleted.Seconds)
	case ev.StreamLine != nil:
		tag := "A"
		if ev.StreamLine.Role == RoleCritic {
			tag = "C"
		}
		return fmt.Sprintf("[%s] %s:%s", ts, tag, ev.StreamLine.Line)
	case ev.DiffCaptured != nil:
		d := ev.DiffCaptured
		return fmt.Sprintf("[%s] git:%d %df +%d -%d", ts, d.Iteration+1, d.FilesChanged, d.Insertions, d.Deletions)
	case ev.CriticStarted != nil:
		return fmt.Sprintf("[%s] critic:start:%d", ts, ev.CriticStarted.Iteration+1)
	case ev.CriticDone != nil:
		return fmt.Sprintf("[%s] critic:done:%d %s", ts, ev.CriticDone.Iteration+1, ev.CriticDone.Decision)
	case ev.NodeAppended != nil:
		return fmt.Sprintf("[%s] node:%s %s", ts, ev.NodeAppended.Role, ev.NodeAppended.NodeID)
	case ev.LoopCompleted != nil:
		return fmt.Sprintf("[%s] loop:done:%d %.1fs", ts, ev.LoopCompleted.Iterations, ev.LoopCompleted.Seconds)
	case ev.LoopLimit != nil:
		return fmt.Sprintf("[%s] loop:limit:%d", ts, ev.LoopLimit.Iterations)
	case ev.LoopError != nil:
		return fmt.Sprintf("[%s] error:%d:%s", ts, ev.LoopError.Iteration+1, ev.LoopError.Error)
	}
	return ""
}
