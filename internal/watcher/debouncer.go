package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events on a per-path basis so a burst of
// edits to the same file produces exactly one downstream event. Each new
// event for a path cancels and re-arms that path's own timer; unrelated
// paths debounce independently. Delete events bypass debouncing entirely —
// deletes are idempotent, so there is nothing to coalesce and no reason to
// delay acting on one.
type Debouncer struct {
	window  time.Duration
	logger  *slog.Logger
	pending map[string]*pendingEvent
	mu      sync.Mutex
	output  chan FileEvent
	stopped bool
}

type pendingEvent struct {
	event FileEvent
	timer *time.Timer
}

// NewDebouncer creates a new debouncer with the given per-path window.
func NewDebouncer(window time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		window:  window,
		logger:  logger,
		pending: make(map[string]*pendingEvent),
		output:  make(chan FileEvent, 1000),
	}
}

// Add adds an event to be debounced. Deletes are emitted immediately and
// directory events are dropped; everything else (re)arms that path's own
// timer.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if event.IsDir {
		// Directory events carry no content of their own; the file events
		// for whatever changed underneath already cover it.
		return
	}

	if event.Operation == OpDelete {
		if existing, ok := d.pending[event.Path]; ok {
			existing.timer.Stop()
			delete(d.pending, event.Path)
		}
		d.emit(event)
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		existing.timer.Stop()
		existing.event = event
		existing.timer = time.AfterFunc(d.window, func() { d.fire(event.Path) })
		return
	}

	path := event.Path
	pe := &pendingEvent{event: event}
	pe.timer = time.AfterFunc(d.window, func() { d.fire(path) })
	d.pending[path] = pe
}

// fire flushes the pending event for path once its debounce window elapses.
func (d *Debouncer) fire(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pe, ok := d.pending[path]
	if !ok || d.stopped {
		return
	}
	delete(d.pending, path)
	d.emit(pe.event)
}

// emit sends an event downstream without blocking. Must be called with mu held.
func (d *Debouncer) emit(event FileEvent) {
	select {
	case d.output <- event:
	default:
		d.logger.Warn("debouncer output full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()),
		)
	}
}

// Output returns the channel of debounced events.
func (d *Debouncer) Output() <-chan FileEvent {
	return d.output
}

// Stop stops the debouncer, cancels all pending timers, and closes the
// output channel. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	for _, pe := range d.pending {
		pe.timer.Stop()
	}
	d.pending = make(map[string]*pendingEvent)
	close(d.output)
}
