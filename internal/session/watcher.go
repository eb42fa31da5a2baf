package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// EventKind classifies a watcher notification.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventCompleted EventKind = "completed"
)

// Event describes a change to one session file.
type Event struct {
	Kind      EventKind
	ID        string
	Iteration int    // set for EventUpdated
	Outcome   string // set for EventCompleted
}

// Watcher emits Events as session files appear and grow in a directory.
type Watcher struct {
	dir     string
	fs      *fsnotify.Watcher
	logger  *zap.Logger
	events  chan Event
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the given sessions directory, creating the
// directory if it does not exist yet.
func NewWatcher(dir string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start fs watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch sessions dir: %w", err)
	}
	return &Watcher{
		dir:    dir,
		fs:     fs,
		logger: logger,
		events: make(chan Event, 64),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Events is the notification stream. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start begins watching. Non-blocking; events arrive on Events().
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.events)
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("session watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".jsonl") {
		return
	}
	id := sessionID(ev.Name)

	var out Event
	switch {
	case ev.Op.Has(fsnotify.Create):
		out = Event{Kind: EventCreated, ID: id}
	case ev.Op.Has(fsnotify.Write):
		// Re-read the summary to decide between update and completion.
		sum, err := ParseSummary(ev.Name)
		if err != nil {
			out = Event{Kind: EventUpdated, ID: id}
			break
		}
		if sum.Outcome != "" {
			out = Event{Kind: EventCompleted, ID: id, Outcome: sum.Outcome}
		} else {
			out = Event{Kind: EventUpdated, ID: id, Iteration: sum.Iterations}
		}
	default:
		return
	}

	select {
	case w.events <- out:
	default:
		w.logger.Debug("dropping session event, subscriber too slow",
			zap.String("id", id))
	}
}
