// Package cache implements the content-addressed on-disk cache layout (C3):
// atomic install, a mutable last-known-good pin file, and tolerance of a
// read-only or corrupted cache root.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/toolconfig"
)

const readyMarker = ".ready"

// Entry is an installed tool+version pair.
type Entry struct {
	Name         toolconfig.ToolName
	ExactVersion string
	AbsolutePath string
	LastUsed     time.Time
}

// Cache is the cache root rooted at home (COREPACK_HOME).
type Cache struct {
	home string
}

// New returns a Cache rooted at home.
func New(home string) *Cache {
	return &Cache{home: home}
}

// Home returns the cache root directory.
func (c *Cache) Home() string {
	return c.home
}

// Dir returns the on-disk directory for a given tool+version, whether or not
// it has been installed yet.
func (c *Cache) Dir(name toolconfig.ToolName, version string) string {
	return filepath.Join(c.home, string(name), version)
}

// Lookup returns the installed Entry for name+version if a .ready marker is
// present, and whether it was found.
func (c *Cache) Lookup(name toolconfig.ToolName, version string) (*Entry, bool) {
	dir := c.Dir(name, version)
	info, err := os.Stat(filepath.Join(dir, readyMarker))
	if err != nil {
		return nil, false
	}
	return &Entry{Name: name, ExactVersion: version, AbsolutePath: dir, LastUsed: info.ModTime()}, true
}

// BeginInstall creates a sibling temporary directory to extract an archive
// into, ahead of the atomic rename into place. The caller is responsible for
// removing the temp directory on any failure path prior to calling
// CommitInstall.
func (c *Cache) BeginInstall(name toolconfig.ToolName) (tempDir string, err error) {
	toolDir := filepath.Join(c.home, string(name))
	if err := os.MkdirAll(toolDir, 0o755); err != nil {
		if os.IsPermission(err) {
			return "", fmt.Errorf("cache root is read-only: %w", err)
		}
		return "", err
	}
	return os.MkdirTemp(toolDir, ".install-*")
}

// CommitInstall renames tempDir into its final content-addressed location
// and writes the .ready marker. If another process has already completed
// the same install (a concurrent rename won the race), tempDir is discarded
// and this call waits briefly for that installer's .ready marker before
// returning its Entry - any number of concurrent installers succeed, and
// exactly one of them performs the filesystem work.
func (c *Cache) CommitInstall(tempDir string, name toolconfig.ToolName, version string) (*Entry, error) {
	target := c.Dir(name, version)

	if entry, ok := c.Lookup(name, version); ok {
		os.RemoveAll(tempDir)
		return entry, nil
	}

	if err := os.Rename(tempDir, target); err != nil {
		// Another installer's rename won the race, or the parent directory
		// doesn't exist yet on some platforms - either way, our copy is
		// redundant.
		os.RemoveAll(tempDir)
		return c.awaitReady(name, version)
	}

	if err := os.WriteFile(filepath.Join(target, readyMarker), []byte{}, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write ready marker for %s@%s: %w", name, version, err)
	}

	corepacklog.Verbose("installed %s@%s into %s", name, version, target)
	return &Entry{Name: name, ExactVersion: version, AbsolutePath: target, LastUsed: time.Now()}, nil
}

// awaitReady polls briefly for a concurrently-installing entry to finish.
// The winner of the rename race is expected to write .ready within
// milliseconds; this is not a long-running wait.
func (c *Cache) awaitReady(name toolconfig.ToolName, version string) (*Entry, error) {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if entry, ok := c.Lookup(name, version); ok {
			return entry, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil, fmt.Errorf("timed out waiting for concurrent install of %s@%s to complete", name, version)
}
