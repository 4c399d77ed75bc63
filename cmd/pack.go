package cmd

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/resolve"
	"github.com/corepack-go/corepack/pkg/toolspec"
)

var packOutput string

var packCmd = &cobra.Command{
	Use:   "pack <name>[@<version>]...",
	Short: "Bundle resolved package manager versions into an archive for offline installs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comps, err := build()
		if err != nil {
			return err
		}
		ctx := context.Background()

		out, err := os.Create(packOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", packOutput, err)
		}
		defer out.Close()
		gz := gzip.NewWriter(out)
		defer gz.Close()
		tw := tar.NewWriter(gz)
		defer tw.Close()

		for _, arg := range args {
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
				return fmt.Errorf("failed to fetch %s: %w", arg, err)
			}
			if err := addTreeToArchive(tw, entry.AbsolutePath, filepath.Join(string(res.Name), res.ExactVersion)); err != nil {
				return fmt.Errorf("failed to pack %s@%s: %w", res.Name, res.ExactVersion, err)
			}
			corepacklog.Notice("packed %s@%s", res.Name, res.ExactVersion)
		}

		if err := addBinaryToArchive(tw); err != nil {
			return fmt.Errorf("failed to bundle the corepack binary: %w", err)
		}

		corepacklog.Notice("wrote %s", packOutput)
		return nil
	},
}

func init() {
	packCmd.Flags().StringVarP(&packOutput, "output", "o", "corepack.tgz", "output archive path")
}

// addBinaryToArchive bundles this running corepack binary into the archive
// at its own top-level entry (named after its basename, not a recognized
// tool name), so an offline install target can also restore the shim
// itself, per the pack interface's "bundles ... the shim itself" contract.
func addBinaryToArchive(tw *tar.Writer) error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return err
	}
	info, err := os.Stat(self)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(self)
	hdr.Mode = 0o755

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(self)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// addTreeToArchive walks srcDir and writes every regular file and symlink
// under it into tw, rooted at archivePrefix.
func addTreeToArchive(tw *tar.Writer, srcDir, archivePrefix string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(filepath.Join(archivePrefix, rel))

		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, link)
			if err != nil {
				return err
			}
			hdr.Name = name
			return tw.WriteHeader(hdr)
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
			return tw.WriteHeader(hdr)
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}
