// Package discovery implements FileDiscovery: a lazy walk of a project
// root that yields non-ignored files and prunes ignored directories
// before descending into them.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lgrepd/lgrepd/internal/ignore"
)

// ignoreCacheSize bounds the number of per-directory ignore matchers kept
// alive, so a long walk over a huge tree doesn't grow memory unbounded.
const ignoreCacheSize = 1000

// maxSymlinkDepth caps how many symlink hops a single traversal path may
// take before it is abandoned, guarding against cycles that device/inode
// tracking alone would need extra bookkeeping to catch portably.
const maxSymlinkDepth = 64

// DefaultMaxFileSize is the default ceiling on a single file's size.
const DefaultMaxFileSize = 10 * 1024 * 1024

// File describes one discovered, indexable file.
type File struct {
	Path     string // project-relative, slash-separated
	AbsPath  string
	Size     int64
	Language string // "" if unrecognized
}

// Result is one item streamed from Walk.
type Result struct {
	File  *File
	Error error
}

// Options configures a single walk.
type Options struct {
	RootDir        string
	MaxFileSize    int64 // 0 = DefaultMaxFileSize
	FollowSymlinks bool
}

// Discovery walks project trees, caching per-directory ignore matchers
// across calls so repeated indexing of the same project is cheap.
type Discovery struct {
	ignoreCache *lru.Cache[string, *ignore.Matcher]
	cacheMu     sync.RWMutex
}

// New creates a Discovery instance.
func New() (*Discovery, error) {
	cache, err := lru.New[string, *ignore.Matcher](ignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create ignore matcher cache: %w", err)
	}
	return &Discovery{ignoreCache: cache}, nil
}

// Walk streams every indexable file under opts.RootDir. The channel is
// closed when the walk completes or ctx is canceled.
func (d *Discovery) Walk(ctx context.Context, opts Options) (<-chan Result, error) {
	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	results := make(chan Result, runtime.NumCPU()*10)
	go func() {
		defer close(results)
		d.walk(ctx, absRoot, opts.FollowSymlinks, maxFileSize, results)
	}()
	return results, nil
}

func (d *Discovery) walk(ctx context.Context, absRoot string, followSymlinks bool, maxFileSize int64, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, entry fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if entry.IsDir() {
			if d.isIgnored(absRoot, relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.Type()&fs.ModeSymlink != 0 {
			if !followSymlinks {
				return nil
			}
			resolved, ok := d.resolveSymlink(absRoot, path)
			if !ok {
				return nil
			}
			path = resolved
		}

		if d.isIgnored(absRoot, relPath, false) {
			return nil
		}

		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() {
			return nil
		}
		if fi.Size() > maxFileSize {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		select {
		case results <- Result{File: &File{
			Path:     relPath,
			AbsPath:  path,
			Size:     fi.Size(),
			Language: DetectLanguage(relPath),
		}}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Error: err}:
		default:
		}
	}
}

// resolveSymlink follows a chain of symlinks up to maxSymlinkDepth,
// refusing to resolve outside absRoot or past the depth cap.
func (d *Discovery) resolveSymlink(absRoot, path string) (string, bool) {
	current := path
	for i := 0; i < maxSymlinkDepth; i++ {
		info, err := os.Lstat(current)
		if err != nil {
			return "", false
		}
		if info.Mode()&os.ModeSymlink == 0 {
			if info.IsDir() {
				return "", false
			}
			if !strings.HasPrefix(current, absRoot) {
				return "", false
			}
			return current, true
		}
		target, err := os.Readlink(current)
		if err != nil {
			return "", false
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		current = target
	}
	return "", false
}

// IsIgnored reports whether relPath (project-relative, slash-separated)
// under absRoot is excluded by any .gitignore/.lgrepignore between the
// root and the path's containing directory. Exported for callers outside
// a Walk, such as the file watcher deciding whether to react to an event.
func (d *Discovery) IsIgnored(absRoot, relPath string, isDir bool) bool {
	return d.isIgnored(absRoot, relPath, isDir)
}

// isIgnored reports whether relPath is excluded: a `.git` path segment
// is always excluded, then every ignore file between absRoot and the
// path's containing directory is consulted.
func (d *Discovery) isIgnored(absRoot, relPath string, isDir bool) bool {
	for _, part := range strings.Split(relPath, "/") {
		if part == ".git" {
			return true
		}
	}

	dirRel := filepath.Dir(relPath)
	if dirRel == "." {
		dirRel = ""
	}

	if m := d.matcherFor(absRoot, ""); m != nil && m.Match(relPath, isDir) {
		return true
	}

	if dirRel == "" {
		return false
	}

	parts := strings.Split(dirRel, "/")
	accum := ""
	for _, part := range parts {
		if accum == "" {
			accum = part
		} else {
			accum = accum + "/" + part
		}
		if m := d.matcherFor(filepath.Join(absRoot, accum), accum); m != nil && m.Match(relPath, isDir) {
			return true
		}
	}
	return false
}

func (d *Discovery) matcherFor(dir, base string) *ignore.Matcher {
	d.cacheMu.RLock()
	m, ok := d.ignoreCache.Get(dir)
	d.cacheMu.RUnlock()
	if ok {
		return m
	}

	found := false
	matcher := ignore.New()
	for _, name := range []string{".gitignore", ".lgrepignore"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			if err := matcher.AddFromFile(p, base); err == nil {
				found = true
			}
		}
	}
	if !found {
		matcher = nil
	}

	d.cacheMu.Lock()
	d.ignoreCache.Add(dir, matcher)
	d.cacheMu.Unlock()
	return matcher
}

// InvalidateCache drops every cached ignore matcher. Call after any
// .gitignore/.lgrepignore file changes.
func (d *Discovery) InvalidateCache() {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	d.ignoreCache.Purge()
}

func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	return bytes.Contains(buf[:n], []byte{0})
}
