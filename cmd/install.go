package cmd

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/resolve"
	"github.com/corepack-go/corepack/pkg/toolconfig"
	"github.com/corepack-go/corepack/pkg/toolspec"
)

var globalInstall bool

var installCmd = &cobra.Command{
	Use:   "install [<name>[@<version>]...]",
	Short: "Fetch and cache one or more package manager versions",
	Long: `With no arguments, ensures the current project's pinned package manager
is present in the cache without dispatching to it. With one or more
"<name>[@<version>]" arguments, resolves and caches each of them instead,
ignoring the project's own pin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		comps, err := build()
		if err != nil {
			return err
		}
		ctx := context.Background()

		if len(args) == 0 {
			res, err := comps.resolver.Resolve(ctx, resolve.Input{Manifest: comps.manifest})
			if err != nil {
				return err
			}
			entry, err := comps.ensureInstalled(ctx, res)
			if err != nil {
				return err
			}
			if globalInstall {
				comps.cache.UpdatePin(res.Name, res.ExactVersion)
			}
			corepacklog.Notice("%s@%s is installed at %s", res.Name, res.ExactVersion, entry.AbsolutePath)
			return nil
		}

		for _, arg := range args {
			if info, statErr := os.Stat(arg); statErr == nil && !info.IsDir() {
				if err := installArchive(comps, arg, globalInstall); err != nil {
					return fmt.Errorf("failed to install archive %s: %w", arg, err)
				}
				continue
			}

			name, version, err := toolspec.ParseInlineSpec(arg)
			if err != nil {
				return err
			}
			res, err := comps.resolver.Resolve(ctx, resolve.Input{InlineName: name, InlineVersion: version})
			if err != nil {
				return err
			}
			entry, err := comps.ensureInstalled(ctx, res)
			if err != nil {
				return fmt.Errorf("failed to install %s: %w", arg, err)
			}
			if globalInstall {
				comps.cache.UpdatePin(res.Name, res.ExactVersion)
			}
			corepacklog.Notice("%s@%s is installed at %s", res.Name, res.ExactVersion, entry.AbsolutePath)
		}
		return nil
	},
}

func init() {
	installCmd.Flags().BoolVarP(&globalInstall, "global", "g", false, "install for global use (the cache is shared regardless)")
}

// archiveInstall tracks the extraction of one tool+version tree found
// inside a pack archive, from first entry to the final atomic commit.
type archiveInstall struct {
	name    toolconfig.ToolName
	version string
	tempDir string
}

// installArchive extracts a "corepack pack"-produced tarball directly into
// the cache layout, bypassing the registry entirely: each top-level
// "<name>/<version>/..." tree becomes its own atomic cache install, so the
// result is byte-identical to a direct "install" of the same versions. The
// bundled corepack binary entry (not rooted under a recognized tool name)
// is skipped.
func installArchive(comps *components, path string, global bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	installs := map[string]*archiveInstall{}
	skipped := map[string]bool{}
	cleanup := func() {
		for _, inst := range installs {
			os.RemoveAll(inst.tempDir)
		}
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			cleanup()
			return err
		}

		parts := strings.SplitN(filepath.ToSlash(hdr.Name), "/", 3)
		if len(parts) < 2 || !toolconfig.Known(toolconfig.ToolName(parts[0])) {
			continue // not a tool tree entry - e.g. the bundled corepack binary
		}
		name, version := toolconfig.ToolName(parts[0]), parts[1]
		key := string(name) + "@" + version
		if skipped[key] {
			continue
		}

		inst, ok := installs[key]
		if !ok {
			if existing, ready := comps.cache.Lookup(name, version); ready {
				skipped[key] = true
				if global {
					comps.cache.UpdatePin(name, version)
				}
				corepacklog.Notice("%s@%s is already installed at %s", name, version, existing.AbsolutePath)
				continue
			}
			tempDir, err := comps.cache.BeginInstall(name)
			if err != nil {
				cleanup()
				return err
			}
			inst = &archiveInstall{name: name, version: version, tempDir: tempDir}
			installs[key] = inst
		}

		if len(parts) < 3 || parts[2] == "" {
			continue // the version root directory entry itself
		}
		if err := extractArchiveEntry(tr, hdr, inst.tempDir, parts[2]); err != nil {
			cleanup()
			return err
		}
	}

	for _, inst := range installs {
		entry, err := comps.cache.CommitInstall(inst.tempDir, inst.name, inst.version)
		if err != nil {
			return err
		}
		if global {
			comps.cache.UpdatePin(inst.name, inst.version)
		}
		corepacklog.Notice("%s@%s is installed at %s", inst.name, inst.version, entry.AbsolutePath)
	}
	return nil
}

// extractArchiveEntry writes one tar entry, rooted at rel within destDir.
func extractArchiveEntry(tr *tar.Reader, hdr *tar.Header, destDir, rel string) error {
	target := filepath.Join(destDir, rel)
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o755)
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		os.Remove(target)
		return os.Symlink(hdr.Linkname, target)
	default:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777))
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, tr)
		return err
	}
}
