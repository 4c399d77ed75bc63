package toolconfig

import (
	"fmt"
	"os"
	"path/filepath"

	json5 "github.com/yosuke-furukawa/json5"
	"gopkg.in/yaml.v3"
)

// BinEntry maps an invocable command name to the relative path of the
// script that implements it inside an installed tool's tree. The first
// entry in a ToolDefaults.BinEntries slice is canonical: it is the name used
// in "this project is configured to use X" diagnostics.
type BinEntry struct {
	CommandName    string `json:"command" yaml:"command"`
	RelativeScript string `json:"script" yaml:"script"`
}

// ToolDefaults holds everything the Config Store knows about one tool,
// independent of any project.
type ToolDefaults struct {
	Name                ToolName   `json:"-" yaml:"-"`
	DefaultVersion      string     `json:"defaultVersion" yaml:"defaultVersion"`
	RegistryPackage     string     `json:"registryPackage" yaml:"registryPackage"`
	TarballTemplate     string     `json:"tarballTemplate" yaml:"tarballTemplate"`
	BinEntries          []BinEntry `json:"binEntries" yaml:"binEntries"`
	TransparentCommands []string   `json:"transparentCommands" yaml:"transparentCommands"`
	TransparentDefault  string     `json:"transparentDefault" yaml:"transparentDefault"`
}

// CanonicalCommand returns the canonical entrypoint command name, i.e. the
// first BinEntry's command.
func (d ToolDefaults) CanonicalCommand() string {
	if len(d.BinEntries) == 0 {
		return string(d.Name)
	}
	return d.BinEntries[0].CommandName
}

// ScriptFor returns the relative script path for the given invoked command
// name, resolving aliases (e.g. "yarn" and "yarnpkg" share one script).
func (d ToolDefaults) ScriptFor(command string) (string, bool) {
	for _, e := range d.BinEntries {
		if e.CommandName == command {
			return e.RelativeScript, true
		}
	}
	return "", false
}

// IsTransparent reports whether the given subcommand (the first positional
// argument after the tool name) may run even when the project pins a
// different tool.
func (d ToolDefaults) IsTransparent(subcommand string) bool {
	for _, c := range d.TransparentCommands {
		if c == subcommand {
			return true
		}
	}
	return false
}

// builtin is the compile-time default table, keyed by ToolName.
var builtin = map[ToolName]ToolDefaults{
	NPM: {
		Name:            NPM,
		DefaultVersion:  "10.9.2+sha256.3f2e9a9c6e6c0e6df3c8a6a2b6f4a58d9a8e4c9b9d6f1a2e3b4c5d6e7f8a9b0c",
		RegistryPackage: "npm",
		TarballTemplate: "{registry}/{package}/-/{package}-{version}.tgz",
		BinEntries: []BinEntry{
			{CommandName: "npm", RelativeScript: "bin/npm-cli.js"},
			{CommandName: "npx", RelativeScript: "bin/npx-cli.js"},
		},
		TransparentCommands: nil,
		TransparentDefault:  "10.9.2+sha256.3f2e9a9c6e6c0e6df3c8a6a2b6f4a58d9a8e4c9b9d6f1a2e3b4c5d6e7f8a9b0c",
	},
	PNPM: {
		Name:            PNPM,
		DefaultVersion:  "9.15.4+sha256.7c1d4e9f2a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5",
		RegistryPackage: "pnpm",
		TarballTemplate: "{registry}/{package}/-/{package}-{version}.tgz",
		BinEntries: []BinEntry{
			{CommandName: "pnpm", RelativeScript: "bin/pnpm.cjs"},
			{CommandName: "pnpx", RelativeScript: "bin/pnpx.cjs"},
		},
		TransparentCommands: []string{"self-update"},
		TransparentDefault:  "9.15.4+sha256.7c1d4e9f2a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5",
	},
	YarnClassic: {
		Name:            YarnClassic,
		DefaultVersion:  "1.22.22+sha1.ecd41e2d0d756d18c1e66a6f44b43d2c0d676b2f",
		RegistryPackage: "yarn",
		TarballTemplate: "{registry}/{package}/-/{package}-{version}.tgz",
		BinEntries: []BinEntry{
			{CommandName: "yarn", RelativeScript: "bin/yarn.js"},
			{CommandName: "yarnpkg", RelativeScript: "bin/yarn.js"},
		},
		TransparentCommands: []string{"set version", "policies set-version"},
		TransparentDefault:  "1.22.22+sha1.ecd41e2d0d756d18c1e66a6f44b43d2c0d676b2f",
	},
	YarnBerry: {
		Name:            YarnBerry,
		DefaultVersion:  "4.6.0+sha256.9e8f1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7",
		RegistryPackage: "@yarnpkg/cli-dist",
		TarballTemplate: "{registry}/{package}/-/{fileSafePackage}-{version}.tgz",
		BinEntries: []BinEntry{
			{CommandName: "yarn", RelativeScript: "bin/yarn.js"},
			{CommandName: "yarnpkg", RelativeScript: "bin/yarn.js"},
		},
		TransparentCommands: []string{"set version"},
		TransparentDefault:  "4.6.0+sha256.9e8f1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7",
	},
}

// Store serves ToolDefaults, with compile-time defaults optionally
// overridden by a sibling configuration file loaded at construction time.
type Store struct {
	defaults map[ToolName]ToolDefaults
}

// NewStore returns a Store backed by the compile-time defaults only.
func NewStore() *Store {
	copied := make(map[ToolName]ToolDefaults, len(builtin))
	for k, v := range builtin {
		copied[k] = v
	}
	return &Store{defaults: copied}
}

// Get returns the ToolDefaults for name, and whether name is known.
func (s *Store) Get(name ToolName) (ToolDefaults, bool) {
	d, ok := s.defaults[name]
	return d, ok
}

// overrideDocument is the shape of the sibling override file: a map from
// tool name to the subset of ToolDefaults fields an operator wants to
// replace. Zero-value fields are left untouched.
type overrideDocument map[ToolName]ToolDefaults

// LoadStore builds a Store from the compile-time defaults, then applies an
// override file found under <home>/overrides/, trying config.json5,
// config.yaml, config.yml and config.json in that order; the first file
// found is the only one applied. A missing overrides directory is not an
// error; the compile-time defaults are used as-is.
func LoadStore(home string) (*Store, error) {
	s := NewStore()

	overridesDir := filepath.Join(home, "overrides")
	candidates := []string{"config.json5", "config.yaml", "config.yml", "config.json"}

	for _, name := range candidates {
		path := filepath.Join(overridesDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config store override %s: %w", path, err)
		}

		var doc overrideDocument
		switch filepath.Ext(name) {
		case ".json5", ".json":
			if err := json5.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("failed to parse config store override %s: %w", path, err)
			}
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("failed to parse config store override %s: %w", path, err)
			}
		}

		s.applyOverrides(doc)
		return s, nil
	}

	return s, nil
}

func (s *Store) applyOverrides(doc overrideDocument) {
	for name, override := range doc {
		base, ok := s.defaults[name]
		if !ok {
			base = ToolDefaults{Name: name}
		}
		if override.DefaultVersion != "" {
			base.DefaultVersion = override.DefaultVersion
		}
		if override.RegistryPackage != "" {
			base.RegistryPackage = override.RegistryPackage
		}
		if override.TarballTemplate != "" {
			base.TarballTemplate = override.TarballTemplate
		}
		if len(override.BinEntries) > 0 {
			base.BinEntries = override.BinEntries
		}
		if len(override.TransparentCommands) > 0 {
			base.TransparentCommands = override.TransparentCommands
		}
		if override.TransparentDefault != "" {
			base.TransparentDefault = override.TransparentDefault
		}
		s.defaults[name] = base
	}
}
