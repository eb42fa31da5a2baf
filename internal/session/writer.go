package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Writer appends session lines to <id>.jsonl under the sessions directory.
// It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	id   string
	path string
}

// NewWriter creates the sessions directory if needed and opens a fresh
// session file. The id combines the start time with a short random suffix so
// files sort chronologically and never collide.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	id := fmt.Sprintf("%s_%s",
		time.Now().UTC().Format("20060102T150405Z"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	path := filepath.Join(dir, id+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create session file: %w", err)
	}
	return &Writer{file: f, id: id, path: path}, nil
}

// ID returns the session id.
func (w *Writer) ID() string { return w.id }

// Path returns the session file path.
func (w *Writer) Path() string { return w.path }

// WriteStart records the session metadata line.
func (w *Writer) WriteStart(s Start) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	return w.append(LineSessionStart, &s)
}

// WriteIteration records one actor/critic cycle.
func (w *Writer) WriteIteration(it Iteration) error {
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now().UTC()
	}
	return w.append(LineIteration, &it)
}

// WriteEnd records the outcome line.
func (w *Writer) WriteEnd(e End) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return w.append(LineSessionEnd, &e)
}

// Close flushes and closes the session file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *Writer) append(typ string, v any) error {
	data, err := marshalLine(typ, v)
	if err != nil {
		return fmt.Errorf("encode %s line: %w", typ, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s line: %w", typ, err)
	}
	// Each line is synced so watchers and crash recovery see whole lines.
	return w.file.Sync()
}
