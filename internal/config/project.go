package config

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// chunksDBFile mirrors internal/store's on-disk database filename. It is
// duplicated here (rather than imported) so this package never depends
// on internal/store — config stays a leaf package.
const chunksDBFile = "chunks.db"

// ProjectCacheDir returns the deterministic, disposable cache directory
// for a project rooted at absPath: <cache_root>/<hash>, where hash is
// the first 12 hex characters of sha256(absPath). absPath must already
// be resolved (absolute, symlink-evaluated) so the same project always
// maps to the same directory regardless of how it was referenced.
func (c Config) ProjectCacheDir(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	hash := hex.EncodeToString(sum[:])[:12]
	return filepath.Join(c.CacheDir, hash)
}

// HasDiskCache reports whether a project rooted at absPath has an
// on-disk chunk store already, without opening the database — used by
// status (cold-path stats) and warm-up's cache-existence check so
// neither requires an API key or a live connection.
func (c Config) HasDiskCache(absPath string) bool {
	dbPath := filepath.Join(c.ProjectCacheDir(absPath), chunksDBFile)
	info, err := os.Stat(dbPath)
	return err == nil && !info.IsDir()
}

// FindProjectRoot walks upward from startDir looking for a `.git`
// directory or an existing on-disk cache, returning the first directory
// that qualifies. If neither is found by the filesystem root, startDir
// itself (resolved to an absolute path) is returned.
func (c Config) FindProjectRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir, nil
		}
		if c.HasDiskCache(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}
