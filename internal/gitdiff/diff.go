// Package gitdiff captures working-tree changes between loop iterations so
// the critic can see what the actor actually did. It shells out to the git
// CLI rather than linking a git library.
package gitdiff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNotARepo is returned when the working directory is not inside a git
// repository.
var ErrNotARepo = errors.New("not a git repository")

// commandTimeout bounds each git invocation.
const commandTimeout = 30 * time.Second

// Summary aggregates diff statistics.
type Summary struct {
	FilesChanged int
	Insertions   int
	Deletions    int
}

// Status lists changed paths by category.
type Status struct {
	Modified  []string
	Added     []string
	Deleted   []string
	Untracked []string
}

// Clean reports whether the working tree has no changes.
func (s *Status) Clean() bool {
	return len(s.Modified) == 0 && len(s.Added) == 0 && len(s.Deleted) == 0 && len(s.Untracked) == 0
}

// TotalChanges counts all changed paths.
func (s *Status) TotalChanges() int {
	return len(s.Modified) + len(s.Added) + len(s.Deleted) + len(s.Untracked)
}

// Capture runs git against a working directory.
type Capture struct {
	includeUntracked bool
}

// NewCapture creates a Capture that includes untracked files.
func NewCapture() *Capture {
	return &Capture{includeUntracked: true}
}

// WithUntracked controls whether untracked files appear in diffs.
func (c *Capture) WithUntracked(include bool) *Capture {
	c.includeUntracked = include
	return c
}

// Diff returns the unified diff of HEAD against the working tree. In a
// repository with no commits yet, every tracked file shows as new. When
// untracked files are included they are diffed against /dev/null via
// intent-to-add semantics.
func (c *Capture) Diff(ctx context.Context, dir string) (string, error) {
	if c.includeUntracked {
		// Stage intent-to-add markers so untracked files show in the diff,
		// then undo them. A failure here only narrows the diff.
		_, _ = c.git(ctx, dir, "add", "--intent-to-add", "--all")
		defer func() { _, _ = c.git(ctx, dir, "reset", "--quiet") }()
	}

	out, err := c.git(ctx, dir, "diff", "HEAD")
	if err == nil {
		return out, nil
	}
	// HEAD does not exist in an empty repository; fall back to the index.
	out, ferr := c.git(ctx, dir, "diff", "--cached")
	if ferr != nil {
		return "", err
	}
	return out, nil
}

// Summary returns files changed / insertions / deletions from numstat
// output. Binary files report "-" counters and contribute zero lines.
func (c *Capture) Summary(ctx context.Context, dir string) (Summary, error) {
	out, err := c.git(ctx, dir, "diff", "HEAD", "--numstat")
	if err != nil {
		// Empty repository: nothing committed to diff against.
		return Summary{}, nil
	}
	return parseNumstat(out), nil
}

// Status parses porcelain status output.
func (c *Capture) Status(ctx context.Context, dir string) (*Status, error) {
	out, err := c.git(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

// git runs one git subcommand in dir.
func (c *Capture) git(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "not a git repository") {
			return "", fmt.Errorf("%w: %s", ErrNotARepo, dir)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return stdout.String(), nil
}

func parseNumstat(out string) Summary {
	var s Summary
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		s.FilesChanged++
		if n, err := strconv.Atoi(fields[0]); err == nil {
			s.Insertions += n
		}
		if n, err := strconv.Atoi(fields[1]); err == nil {
			s.Deletions += n
		}
	}
	return s
}

func parsePorcelain(out string) *Status {
	s := &Status{}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := strings.TrimSpace(line[3:])
		switch {
		case code == "??":
			s.Untracked = append(s.Untracked, path)
		case strings.ContainsAny(code, "A"):
			s.Added = append(s.Added, path)
		case strings.ContainsAny(code, "D"):
			s.Deleted = append(s.Deleted, path)
		case strings.ContainsAny(code, "MRC"):
			s.Modified = append(s.Modified, path)
		}
	}
	return s
}
