package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/resolve"
	"github.com/corepack-go/corepack/pkg/toolspec"
)

var useCmd = &cobra.Command{
	Use:   "use <name>[@<version>]",
	Short: "Pin the current project to a resolved package manager version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comps, err := build()
		if err != nil {
			return err
		}
		ctx := context.Background()

		name, version, err := toolspec.ParseInlineSpec(args[0])
		if err != nil {
			return err
		}
		res, err := comps.resolver.Resolve(ctx, resolve.Input{InlineName: name, InlineVersion: version})
		if err != nil {
			return err
		}
		if _, err := comps.ensureInstalled(ctx, res); err != nil {
			return fmt.Errorf("failed to fetch %s before pinning: %w", args[0], err)
		}

		manifestPath, err := manifestPathForUse(comps)
		if err != nil {
			return err
		}

		field := string(res.Name) + "@" + res.ExactVersion
		if res.Integrity != nil {
			field += "+" + res.Integrity.Algo + "." + res.Integrity.Hex
		}
		if err := setPackageManagerField(manifestPath, field); err != nil {
			return err
		}

		corepacklog.Notice("pinned %s to %s", filepath.Base(filepath.Dir(manifestPath)), field)
		return nil
	},
}

func manifestPathForUse(comps *components) (string, error) {
	if comps.manifest != nil {
		return comps.manifest.Path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, "package.json"), nil
}

var packageManagerFieldRe = regexp.MustCompile(`"packageManager"\s*:\s*"[^"]*"`)

// setPackageManagerField rewrites (or inserts) the "packageManager" field in
// the manifest at path using a targeted text substitution, rather than a
// decode/re-encode round trip that would reformat or reorder every other
// field in the file.
func setPackageManagerField(path, value string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			data = []byte("{}\n")
		} else {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	replacement := fmt.Sprintf(`"packageManager": %q`, value)
	content := string(data)

	if packageManagerFieldRe.MatchString(content) {
		content = packageManagerFieldRe.ReplaceAllString(content, replacement)
	} else {
		brace := strings.IndexByte(content, '{')
		if brace == -1 {
			return fmt.Errorf("%s does not look like a JSON object", path)
		}
		content = content[:brace+1] + "\n  " + replacement + "," + content[brace+1:]
	}

	return os.WriteFile(path, []byte(content), 0o644)
}
