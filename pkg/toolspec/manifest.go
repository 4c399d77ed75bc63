package toolspec

import (
	"encoding/json"
	"fmt"
)

// Manifest is the subset of a project manifest (package.json) this shim
// consumes. All other manifest contents are ignored.
type Manifest struct {
	Path           string
	PackageManager string      // raw "packageManager" field, empty if absent
	DevEngines     interface{} // raw "devEngines.packageManager" value, nil if absent
}

type rawManifest struct {
	PackageManager string `json:"packageManager"`
	DevEngines     struct {
		PackageManager interface{} `json:"packageManager"`
	} `json:"devEngines"`
}

// ParseManifest decodes a package.json document. Empty manifests (no
// packageManager and no devEngines.packageManager) are valid - the caller
// treats them as transparent while walking up the directory tree.
func ParseManifest(path string, data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &Manifest{
		Path:           path,
		PackageManager: raw.PackageManager,
		DevEngines:     raw.DevEngines.PackageManager,
	}, nil
}

// IsEmpty reports whether neither relevant field is present.
func (m *Manifest) IsEmpty() bool {
	return m.PackageManager == "" && m.DevEngines == nil
}
