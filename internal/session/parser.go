package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// lastLineWindow bounds how far ParseSummary reads back from the end of a
// file to find its final line.
const lastLineWindow = 64 * 1024

// ParseSession loads a complete session from a JSONL file. The session id is
// the file name without extension.
func ParseSession(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	s := &Session{ID: sessionID(path)}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		typ, err := lineType(data)
		if err != nil {
			return nil, fmt.Errorf("parse session %s: %w", s.ID, err)
		}
		switch typ {
		case LineSessionStart:
			if err := json.Unmarshal(data, &s.Start); err != nil {
				return nil, fmt.Errorf("parse session_start: %w", err)
			}
		case LineIteration:
			var it Iteration
			if err := json.Unmarshal(data, &it); err != nil {
				return nil, fmt.Errorf("parse iteration: %w", err)
			}
			s.Iterations = append(s.Iterations, it)
		case LineSessionEnd:
			var e End
			if err := json.Unmarshal(data, &e); err != nil {
				return nil, fmt.Errorf("parse session_end: %w", err)
			}
			s.End = &e
		default:
			return nil, fmt.Errorf("parse session %s: unknown line type %q", s.ID, typ)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if s.Start.Timestamp.IsZero() && s.Start.Prompt == "" {
		return nil, fmt.Errorf("session %s has no session_start line", s.ID)
	}
	return s, nil
}

// ParseSummary builds a Summary from just the first and last lines of a
// session file, so listing a large directory stays cheap. Sessions without a
// session_end line are reported as active with an empty outcome.
func ParseSummary(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	first, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read first line: %w", err)
	}
	first = strings.TrimSpace(first)
	if first == "" {
		return nil, fmt.Errorf("session file %s is empty", path)
	}
	typ, err := lineType([]byte(first))
	if err != nil {
		return nil, err
	}
	if typ != LineSessionStart {
		return nil, fmt.Errorf("first line of %s is %q, want session_start", path, typ)
	}
	var start Start
	if err := json.Unmarshal([]byte(first), &start); err != nil {
		return nil, fmt.Errorf("parse session_start: %w", err)
	}

	sum := &Summary{
		ID:            sessionID(path),
		Timestamp:     start.Timestamp,
		PromptPreview: preview(start.Prompt, 100),
		WorkingDir:    start.WorkingDir,
		Project:       projectName(start.WorkingDir),
		ActorAgent:    start.ActorAgent,
		CriticAgent:   start.CriticAgent,
	}

	last, err := lastLine(f)
	if err != nil {
		return nil, err
	}
	if last == "" || last == first {
		return sum, nil
	}
	switch typ, _ := lineType([]byte(last)); typ {
	case LineSessionEnd:
		var e End
		if err := json.Unmarshal([]byte(last), &e); err != nil {
			return nil, fmt.Errorf("parse session_end: %w", err)
		}
		sum.Outcome = e.Outcome
		sum.Iterations = e.Iterations
		sum.Duration = e.Duration
		sum.Confidence = e.Confidence
	case LineIteration:
		// Still running. Iterations so far is every line after the start.
		n, err := countLines(path)
		if err != nil {
			return nil, err
		}
		sum.Iterations = n - 1
	}
	return sum, nil
}

// lastLine reads the final non-empty line by seeking back from the end.
func lastLine(f *os.File) (string, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}
	window := size
	if window > lastLineWindow {
		window = lastLineWindow
	}
	buf := make([]byte, window)
	if _, err := f.ReadAt(buf, size-window); err != nil && err != io.EOF {
		return "", fmt.Errorf("read session tail: %w", err)
	}
	lines := strings.Split(string(buf), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l, nil
		}
	}
	return "", nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n, sc.Err()
}

func sessionID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func projectName(workingDir string) string {
	if workingDir == "" {
		return "unknown"
	}
	return filepath.Base(workingDir)
}

// preview cuts s to at most n bytes without splitting a rune.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
