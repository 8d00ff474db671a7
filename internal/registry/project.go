// Package registry implements the ProjectRegistry: the in-memory kernel
// binding project paths to their ChunkStore, Indexer, and optional
// Watcher, with the concurrency disciplines (double-checked lock,
// single-flight auto-index, capacity-bounded admission) the server's
// tool handlers rely on.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lgrepd/lgrepd/internal/discovery"
	"github.com/lgrepd/lgrepd/internal/index"
	"github.com/lgrepd/lgrepd/internal/store"
	"github.com/lgrepd/lgrepd/internal/watcher"
)

// ProjectState is the live binding for one resolved absolute project
// path: a ChunkStore handle on disk, an Indexer configured over it, and
// an optional Watcher with its own watching flag.
type ProjectState struct {
	Path      string
	Store     *store.ChunkStore
	Indexer   *index.Indexer
	Discovery *discovery.Discovery

	mu       sync.Mutex
	watcher  *watcher.Watcher
	watching bool
}

// Watching reports whether this project currently has a live watcher.
func (p *ProjectState) Watching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watching
}

// startWatcher starts this project's watcher, creating a fresh one if
// none exists or the previous one was stopped. Starting while already
// watching is a no-op.
func (p *ProjectState) startWatcher(ctx context.Context, logger *slog.Logger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watching {
		return nil
	}
	if p.watcher == nil {
		p.watcher = watcher.New(p.Path, p.Discovery, p.Indexer, logger)
	}
	if err := p.watcher.Start(ctx); err != nil {
		return err
	}
	p.watching = true
	return nil
}

// stopWatcher stops this project's watcher if one is running, clearing
// both the reference and the watching flag.
func (p *ProjectState) stopWatcher() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopWatcherLocked()
}

// stopWatcherLocked must be called with p.mu held.
func (p *ProjectState) stopWatcherLocked() error {
	if p.watcher == nil || !p.watching {
		return nil
	}
	err := p.watcher.Stop()
	p.watcher = nil
	p.watching = false
	return err
}
