package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Spawn runs a binary with the given arguments and captures its output.
// Stdout and stderr are read concurrently line by line; each line is passed
// to fn as it arrives. Stdin is closed so agents run non-interactively.
func Spawn(ctx context.Context, binary string, args []string, cfg Config, fn StreamFunc) (*Output, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = cfg.WorkingDir
	cmd.Stdin = nil
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotAvailable, binary)
		}
		return nil, fmt.Errorf("spawn %s: %w", binary, err)
	}

	var outBuf, errBuf strings.Builder
	var mu sync.Mutex
	collect := func(r *bufio.Scanner, buf *strings.Builder, isStderr bool) error {
		for r.Scan() {
			line := r.Text()
			mu.Lock()
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(line)
			mu.Unlock()
			if fn != nil {
				fn(line, isStderr)
			}
		}
		return r.Err()
	}

	g := new(errgroup.Group)
	g.Go(func() error { return collect(newScanner(stdout), &outBuf, false) })
	g.Go(func() error { return collect(newScanner(stderr), &errBuf, true) })

	readErr := g.Wait()
	waitErr := cmd.Wait()
	duration := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, duration.Round(time.Second))
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if readErr != nil {
		return nil, fmt.Errorf("read agent output: %w", readErr)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		} else {
			return nil, fmt.Errorf("wait for %s: %w", binary, waitErr)
		}
	}

	return &Output{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// newScanner builds a line scanner with a generous buffer; agent output
// lines can be long.
func newScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return s
}

// binaryAvailable checks that a binary responds to --version.
func binaryAvailable(ctx context.Context, binary string) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, binary, "--version").Run() == nil
}
