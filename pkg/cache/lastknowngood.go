package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/semver"
	"github.com/corepack-go/corepack/pkg/toolconfig"
)

const lastKnownGoodFile = "lastKnownGood.json"

// ReadLastKnownGood loads the {tool -> exactVersion} pin map. A missing or
// unparsable file degrades to an empty map rather than an error - the
// resolver treats an absent pin as "fall through to the next source".
func (c *Cache) ReadLastKnownGood() map[string]string {
	path := filepath.Join(c.home, lastKnownGoodFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]string{}
	}

	var pins map[string]string
	if err := json.Unmarshal(data, &pins); err != nil {
		corepacklog.Verbose("lastKnownGood.json is malformed, treating as empty: %v", err)
		return map[string]string{}
	}
	if pins == nil {
		pins = map[string]string{}
	}
	return pins
}

// writeLastKnownGood persists the pin map via atomic replace. A failure
// here (e.g. a read-only cache root) is logged but never fatal - dispatch
// has already succeeded by the time this runs.
func (c *Cache) writeLastKnownGood(pins map[string]string) {
	data, err := json.MarshalIndent(pins, "", "  ")
	if err != nil {
		corepacklog.Verbose("failed to encode lastKnownGood.json: %v", err)
		return
	}

	if err := os.MkdirAll(c.home, 0o755); err != nil {
		corepacklog.Verbose("failed to create cache home for lastKnownGood.json: %v", err)
		return
	}

	tmp, err := os.CreateTemp(c.home, ".lastKnownGood-*.json")
	if err != nil {
		corepacklog.Verbose("failed to write lastKnownGood.json: %v", err)
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		corepacklog.Verbose("failed to write lastKnownGood.json: %v", err)
		return
	}
	tmp.Close()

	if err := os.Rename(tmpPath, filepath.Join(c.home, lastKnownGoodFile)); err != nil {
		os.Remove(tmpPath)
		corepacklog.Verbose("failed to replace lastKnownGood.json: %v", err)
	}
}

// UpdatePin records name's resolved version as the new last-known-good pin,
// but only if no prior pin exists or the new version shares the prior pin's
// major component - a pin never crosses a major-version boundary silently.
func (c *Cache) UpdatePin(name toolconfig.ToolName, version string) {
	pins := c.ReadLastKnownGood()

	newVersion, err := semver.ParseExact(version)
	if err != nil {
		return
	}

	if prior, ok := pins[string(name)]; ok {
		priorVersion, err := semver.ParseExact(prior)
		if err == nil && !semver.SameMajor(priorVersion, newVersion) {
			return
		}
	}

	pins[string(name)] = version
	c.writeLastKnownGood(pins)
}

// LookupPin returns the last-known-good version for name, if one exists.
func (c *Cache) LookupPin(name toolconfig.ToolName) (string, bool) {
	pins := c.ReadLastKnownGood()
	v, ok := pins[string(name)]
	return v, ok
}
