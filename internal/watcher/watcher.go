// Package watcher implements FileWatcher: a recursive, debounced
// observer over a project root that schedules incremental re-indexing
// as files change and reacts to deletes immediately.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lgrepd/lgrepd/internal/discovery"
)

// DefaultDebounceWindow is the per-path coalescing window applied to
// create/modify events before a re-index is scheduled.
const DefaultDebounceWindow = 500 * time.Millisecond

// Indexer is the subset of *index.Indexer the watcher drives. Declared
// here (rather than imported) to avoid a dependency cycle, since
// internal/index does not need to know about the watcher.
type Indexer interface {
	IndexFile(ctx context.Context, absPath string) (int, int, error)
	DeleteByFile(ctx context.Context, relPath string) error
}

// Watcher observes one project root and drives an Indexer from the
// file-system events it sees: created/modified files matching a
// recognized language and not ignored are debounced and re-indexed;
// deletes bypass debouncing; directory events are dropped since the
// file events under them already cover the change.
type Watcher struct {
	rootDir   string
	discovery *discovery.Discovery
	indexer   Indexer
	logger    *slog.Logger
	window    time.Duration

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
}

// New builds a Watcher for rootDir. disc supplies ignore-matching so the
// watcher respects the same .gitignore/.lgrepignore rules as discovery.
func New(rootDir string, disc *discovery.Discovery, indexer Indexer, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		rootDir:   rootDir,
		discovery: disc,
		indexer:   indexer,
		logger:    logger,
		window:    DefaultDebounceWindow,
	}
}

// Running reports whether the watcher currently holds a live observer.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start begins watching rootDir recursively. Calling Start while already
// running is a no-op; calling it after Stop creates a fresh observer.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := addRecursive(fsw, w.rootDir, w.discovery); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch project tree: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	debouncer := NewDebouncer(w.window, w.logger)

	w.fsw = fsw
	w.debouncer = debouncer
	w.cancel = cancel
	w.running = true

	w.wg.Add(2)
	go w.pumpFsnotify(runCtx, fsw, debouncer)
	go w.drainDebounced(runCtx, debouncer)

	return nil
}

// Stop halts the observer and joins its workers, so that no late event
// races with a caller tearing down the surrounding ProjectState. Safe to
// call multiple times and when never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	fsw := w.fsw
	cancel := w.cancel
	debouncer := w.debouncer
	w.fsw = nil
	w.cancel = nil
	w.debouncer = nil
	w.mu.Unlock()

	cancel()
	debouncer.Stop()
	err := fsw.Close()
	w.wg.Wait()
	return err
}

// pumpFsnotify converts raw fsnotify events into FileEvents and feeds
// them to the debouncer, adding newly created directories to the watch
// set as they appear.
func (w *Watcher) pumpFsnotify(ctx context.Context, fsw *fsnotify.Watcher, debouncer *Debouncer) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, event, debouncer)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher_fsnotify_error", "root_dir", w.rootDir, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event, debouncer *Debouncer) {
	relPath, err := filepath.Rel(w.rootDir, event.Name)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	isDir := fileInfoIsDir(event.Name)

	switch {
	case event.Op&fsnotify.Create != 0:
		if isDir {
			_ = addRecursive(fsw, event.Name, w.discovery)
			return
		}
		if !w.shouldTrack(relPath, isDir) {
			return
		}
		debouncer.Add(FileEvent{Path: relPath, Operation: OpCreate, IsDir: false, Timestamp: time.Now()})
	case event.Op&fsnotify.Write != 0:
		if isDir || !w.shouldTrack(relPath, isDir) {
			return
		}
		debouncer.Add(FileEvent{Path: relPath, Operation: OpModify, IsDir: false, Timestamp: time.Now()})
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// The removed path no longer exists to stat, so deletes are never
		// filtered by language or ignore rules: delete_by_file on a path
		// that was never indexed is a harmless no-op.
		debouncer.Add(FileEvent{Path: relPath, Operation: OpDelete, IsDir: false, Timestamp: time.Now()})
	}
}

// shouldTrack reports whether relPath is a recognized-language file that
// is not excluded by ignore rules.
func (w *Watcher) shouldTrack(relPath string, isDir bool) bool {
	if discovery.DetectLanguage(relPath) == "" {
		return false
	}
	if w.discovery != nil && w.discovery.IsIgnored(w.rootDir, relPath, isDir) {
		return false
	}
	return true
}

// drainDebounced runs each debounced event against the indexer on its own
// worker goroutine so a slow index_file call never blocks the dispatcher
// from processing further fsnotify events.
func (w *Watcher) drainDebounced(ctx context.Context, debouncer *Debouncer) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-debouncer.Output():
			if !ok {
				return
			}
			w.wg.Add(1)
			go func(ev FileEvent) {
				defer w.wg.Done()
				w.apply(ctx, ev)
			}(ev)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, ev FileEvent) {
	switch ev.Operation {
	case OpDelete:
		if err := w.indexer.DeleteByFile(ctx, ev.Path); err != nil {
			w.logger.Warn("watcher_delete_failed", "path", ev.Path, "error", err)
		}
	default:
		absPath := filepath.Join(w.rootDir, filepath.FromSlash(ev.Path))
		if _, _, err := w.indexer.IndexFile(ctx, absPath); err != nil {
			w.logger.Warn("watcher_index_failed", "path", ev.Path, "error", err)
		}
	}
}

// addRecursive adds root and every non-ignored subdirectory under it to
// fsw's watch set, pruning ignored directories before descending.
func addRecursive(fsw *fsnotify.Watcher, root string, disc *discovery.Discovery) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			relPath = "."
		}
		relPath = filepath.ToSlash(relPath)

		if relPath != "." && disc != nil && disc.IsIgnored(root, relPath, true) {
			return filepath.SkipDir
		}

		return fsw.Add(path)
	})
}

func fileInfoIsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
