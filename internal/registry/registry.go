package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/lgrepd/lgrepd/internal/chunk"
	"github.com/lgrepd/lgrepd/internal/config"
	"github.com/lgrepd/lgrepd/internal/discovery"
	"github.com/lgrepd/lgrepd/internal/embed"
	"github.com/lgrepd/lgrepd/internal/index"
	"github.com/lgrepd/lgrepd/internal/mcperr"
	"github.com/lgrepd/lgrepd/internal/store"
)

// capacityWarnThreshold is the fraction of MAX_PROJECTS at which ensure
// logs a warning that the registry is approaching its limit.
const capacityWarnThreshold = 0.8

// autoIndexAttempts and autoIndexBaseDelay configure the bounded retry
// the leader of an auto-index single-flight group runs index_all under.
const (
	autoIndexAttempts  = 2
	autoIndexBaseDelay = 100 * time.Millisecond
)

// Registry is the in-memory map of live projects plus the concurrency
// disciplines (double-checked lock, single-flight auto-index) that keep
// it safe under overlapping tool calls.
type Registry struct {
	cfg    config.Config
	logger *slog.Logger

	mu       sync.Mutex
	projects map[string]*ProjectState
	autoIdx  singleflight.Group

	embedderOnce sync.Once
	embedder     embed.Embedder
	embedderErr  error
}

// New builds an empty Registry bound to cfg.
func New(cfg config.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		projects: make(map[string]*ProjectState),
	}
}

// Len reports the current number of live projects.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.projects)
}

// resolve normalizes a caller-supplied path into its canonical absolute
// form, so the same project is always keyed identically regardless of
// how a caller spelled it.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", mcperr.ErrNotADirectory
	}
	return abs, nil
}

// Ensure implements ensure(path): double-checked locking registration
// of a ProjectState for the resolved absolute path. Returns the existing
// state if one is already registered.
func (r *Registry) Ensure(ctx context.Context, path string) (*ProjectState, error) {
	abs, err := resolve(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if st, ok := r.projects[abs]; ok {
		r.mu.Unlock()
		return st, nil
	}
	r.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.projects[abs]; ok {
		return st, nil
	}

	if len(r.projects) >= r.cfg.MaxProjects {
		return nil, mcperr.ErrCapacityExceeded
	}
	if float64(len(r.projects)+1) >= float64(r.cfg.MaxProjects)*capacityWarnThreshold {
		r.logger.Warn("registry_near_capacity", "count", len(r.projects)+1, "max", r.cfg.MaxProjects)
	}

	embedder, err := r.sharedEmbedder()
	if err != nil {
		return nil, err
	}

	cacheDir := r.cfg.ProjectCacheDir(abs)
	st, err := r.open(abs, cacheDir, embedder)
	if err != nil {
		return nil, err
	}

	r.projects[abs] = st
	return st, nil
}

// sharedEmbedder lazily creates the one Embedder shared by every
// project, refusing if no API key is configured. Created on the first
// Ensure call that gets this far.
func (r *Registry) sharedEmbedder() (embed.Embedder, error) {
	r.embedderOnce.Do(func() {
		if r.cfg.VoyageAPIKey == "" {
			r.embedderErr = mcperr.ErrMissingAPIKey
			return
		}
		r.embedder = embed.NewVoyageEmbedder(r.cfg.VoyageAPIKey, r.logger)
	})
	return r.embedder, r.embedderErr
}

// open constructs the ChunkStore/Indexer pair for an already-resolved
// project path. Caller must hold r.mu.
func (r *Registry) open(abs, cacheDir string, embedder embed.Embedder) (*ProjectState, error) {
	st, err := store.NewChunkStore(cacheDir, embed.Dimensions, r.logger)
	if err != nil {
		return nil, fmt.Errorf("open chunk store for %s: %w", abs, err)
	}

	disc, err := discovery.New()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build discovery for %s: %w", abs, err)
	}

	var dispatcher *chunk.Dispatcher
	if r.cfg.ChunkSize > 0 {
		dispatcher = chunk.NewDispatcher(chunk.NewLanguageRegistry(), r.cfg.ChunkSize)
	} else {
		dispatcher = chunk.NewDispatcher(chunk.NewLanguageRegistry())
	}
	ix := index.New(abs, disc, dispatcher, embedder, st, r.logger)

	return &ProjectState{
		Path:      abs,
		Store:     st,
		Indexer:   ix,
		Discovery: disc,
	}, nil
}

// AutoIndex transparently indexes a cold project exactly once despite
// concurrent callers: a single-flight leader calls Ensure then IndexAll
// with bounded retry; followers that arrive while the leader is running
// share its exact return value and error. A call arriving after the
// leader finished starts a new flight of its own.
func (r *Registry) AutoIndex(ctx context.Context, path string) (*ProjectState, error) {
	abs, err := resolve(path)
	if err != nil {
		return nil, err
	}

	v, err, _ := r.autoIdx.Do(abs, func() (interface{}, error) {
		return r.runAutoIndexLeader(ctx, abs)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProjectState), nil
}

func (r *Registry) runAutoIndexLeader(ctx context.Context, abs string) (*ProjectState, error) {
	st, err := r.Ensure(ctx, abs)
	if err != nil {
		return nil, err
	}

	delay := autoIndexBaseDelay
	var lastErr error
	for attempt := 0; attempt < autoIndexAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				lastErr = ctx.Err()
				attempt = autoIndexAttempts
				continue
			}
			delay *= 2
		}
		if _, err := st.Indexer.IndexAll(ctx); err != nil {
			lastErr = err
			continue
		}
		return st, nil
	}

	r.logger.Warn("auto_index_failed", "path", abs, "error", lastErr)
	r.mu.Lock()
	r.removeLocked(abs)
	r.mu.Unlock()
	return nil, mcperr.ErrAutoIndexFailed
}

// Warm eagerly loads projects named by LGREP_WARM_PATHS: de-duplicate,
// reject entries without an existing on-disk cache, cap at the
// remaining capacity, and Ensure every surviving path concurrently.
// Never calls IndexAll — warm-up only reopens existing caches.
func (r *Registry) Warm(ctx context.Context) {
	paths := r.cfg.WarmPathList()
	if len(paths) == 0 {
		return
	}

	seen := make(map[string]struct{})
	var candidates []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}

		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			r.logger.Warn("warm_skip_not_a_directory", "path", abs)
			continue
		}
		if !r.cfg.HasDiskCache(abs) {
			r.logger.Warn("warm_skip_no_disk_cache", "path", abs)
			continue
		}
		candidates = append(candidates, abs)
	}

	r.mu.Lock()
	remaining := r.cfg.MaxProjects - len(r.projects)
	r.mu.Unlock()
	if remaining <= 0 {
		return
	}
	if len(candidates) > remaining {
		r.logger.Warn("warm_capacity_truncated", "candidates", len(candidates), "capacity", remaining)
		candidates = candidates[:remaining]
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, abs := range candidates {
		abs := abs
		g.Go(func() error {
			if _, err := r.Ensure(gctx, abs); err != nil {
				r.logger.Warn("warm_ensure_failed", "path", abs, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Close implements close(): stop every watcher, clear the map, release
// the embedder. Individual watcher stop errors are logged, never
// raised.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for path, st := range r.projects {
		if err := st.stopWatcher(); err != nil {
			r.logger.Warn("watcher_stop_failed_on_shutdown", "path", path, "error", err)
		}
		if err := st.Store.Close(); err != nil {
			r.logger.Warn("store_close_failed_on_shutdown", "path", path, "error", err)
		}
	}
	r.projects = make(map[string]*ProjectState)
	r.embedder = nil
}

// Remove implements remove(path): stop the watcher and drop the
// ProjectState from the map. The on-disk cache is preserved. CLI/admin
// only, never exposed as a tool.
func (r *Registry) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(abs)
	return nil
}

// removeLocked must be called with r.mu held.
func (r *Registry) removeLocked(abs string) {
	st, ok := r.projects[abs]
	if !ok {
		return
	}
	if err := st.stopWatcher(); err != nil {
		r.logger.Warn("watcher_stop_failed_on_remove", "path", abs, "error", err)
	}
	if err := st.Store.Close(); err != nil {
		r.logger.Warn("store_close_failed_on_remove", "path", abs, "error", err)
	}
	delete(r.projects, abs)
}

// Get returns the ProjectState for an already-registered path, without
// creating one.
func (r *Registry) Get(path string) (*ProjectState, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.projects[abs]
	return st, ok
}

// All returns a snapshot of every currently registered ProjectState.
func (r *Registry) All() []*ProjectState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ProjectState, 0, len(r.projects))
	for _, st := range r.projects {
		out = append(out, st)
	}
	return out
}

// SharedEmbedder returns the one Embedder shared by every project,
// creating it on first call if needed. Used by the dispatcher's search
// path, which needs to embed a query even when admission resolves to an
// already-open ProjectState.
func (r *Registry) SharedEmbedder() (embed.Embedder, error) {
	return r.sharedEmbedder()
}

// HasDiskCache reports whether path has an on-disk chunk store, without
// requiring it to currently be a directory or hold an API key.
func (r *Registry) HasDiskCache(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return r.cfg.HasDiskCache(abs)
}

// IsDirectory reports whether path resolves to an existing directory.
func (r *Registry) IsDirectory(path string) bool {
	_, err := resolve(path)
	return err == nil
}

// ReadDiskCacheCount opens path's on-disk cache just long enough to read
// its chunk count, without registering a ProjectState or requiring an
// embedding API key. Used by status for projects not currently loaded.
func (r *Registry) ReadDiskCacheCount(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	st, err := store.NewChunkStore(r.cfg.ProjectCacheDir(abs), embed.Dimensions, r.logger)
	if err != nil {
		return 0, err
	}
	defer func() { _ = st.Close() }()
	return st.Count(ctx)
}

// StartWatch implements watch_start(path): ensure the project, then
// start its watcher if one is not already running. Starting twice is a
// no-op, and a fresh observer replaces any previously stopped one.
func (r *Registry) StartWatch(ctx context.Context, path string) (*ProjectState, error) {
	st, err := r.Ensure(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := st.startWatcher(ctx, r.logger); err != nil {
		return nil, err
	}
	return st, nil
}

// StopWatch implements watch_stop(path): stop the named project's
// watcher if it has one.
func (r *Registry) StopWatch(path string) (*ProjectState, bool) {
	st, ok := r.Get(path)
	if !ok {
		return nil, false
	}
	_ = st.stopWatcher()
	return st, true
}

// StopAllWatches implements watch_stop() with no path: stop every
// currently watching project and return their paths.
func (r *Registry) StopAllWatches() []string {
	var stopped []string
	for _, st := range r.All() {
		if !st.Watching() {
			continue
		}
		if err := st.stopWatcher(); err != nil {
			r.logger.Warn("watcher_stop_failed", "path", st.Path, "error", err)
		}
		stopped = append(stopped, st.Path)
	}
	return stopped
}
