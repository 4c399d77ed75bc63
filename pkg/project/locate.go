// Package project ascends the directory tree from the invocation directory
// to find the controlling project manifest: the Project Locator component.
package project

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/corepack-go/corepack/pkg/toolspec"
)

// manifestFileName is the only manifest file name consulted, matching the
// host ecosystem's package.json convention.
const manifestFileName = "package.json"

// Locate walks upward from startDir looking for the closest package.json
// that declares packageManager or devEngines.packageManager. It returns nil,
// nil when no such manifest is found before reaching the filesystem root.
// A path that has crossed into a node_modules/* segment below startDir is
// never considered, since vendored dependency trees are opaque to
// resolution.
func Locate(startDir string) (*toolspec.Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if !containsVendorSegment(dir) {
			candidate := filepath.Join(dir, manifestFileName)
			if data, err := os.ReadFile(candidate); err == nil {
				manifest, err := toolspec.ParseManifest(candidate, data)
				if err != nil {
					return nil, err
				}
				if !manifest.IsEmpty() {
					return manifest, nil
				}
				// Empty manifests are transparent: the walk continues past
				// them rather than stopping here.
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// containsVendorSegment reports whether dir lies inside a node_modules
// directory anywhere along its path. A manifest found there belongs to a
// vendored dependency, not the controlling project, and is always opaque to
// resolution - even if the invocation itself originated inside one.
func containsVendorSegment(dir string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(dir), "/") {
		if segment == "node_modules" {
			return true
		}
	}
	return false
}
