// Package cmd implements the CLI Surface component (C11): argv[0]-based
// shim dispatch for npm/pnpm/yarn invocations, plus the corepack management
// command tree.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/toolconfig"
	"github.com/corepack-go/corepack/pkg/toolspec"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "corepack",
	Short: "Manages the package managers your projects pin",
	Long: `corepack is a shim and resolver for npm, pnpm and yarn.

Invoked as npm, npx, pnpm, pnpx, yarn or yarnpkg, it resolves the exact
version a project requires, installs it into a local cache on first use,
and dispatches to it with arguments and exit status preserved.

Invoked under its own name, it manages that cache directly:

  corepack install <name>@<version>   # fetch and cache a specific version
  corepack use <name>@<version>       # pin the current project to it
  corepack pack <name>@<version>      # bundle versions for offline use
  corepack enable [tool...]           # install npm/pnpm/yarn shims on PATH
  corepack disable [tool...]          # remove those shims`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet output (errors only)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		corepacklog.SetVerbose(verbose)
		corepacklog.SetQuiet(quiet)
	}

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(versionCmd)
}

// SetVersionInfo sets the version information reported by "corepack --version".
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", v, c, d)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("corepack %s (commit %s, built %s)\n", version, commit, date)
		return nil
	},
}

// Execute is the sole entrypoint called from main(). It detects shim mode
// from argv[0]'s basename before cobra ever sees the arguments, since a
// shim invocation ("npm install") is not spelled as a corepack subcommand.
// A basename of the form "<toolName>@<spec>" (a custom-installed alias, or a
// symlink the operator named that way) is a one-shot version override for
// this invocation only; it is resolved and dispatched exactly like a plain
// shim invocation.
func Execute() error {
	base := exeBasename(os.Args[0])
	command, versionSpec, hasOverride := strings.Cut(base, "@")

	if _, ok := toolconfig.ToolNameForCommand(command); ok {
		var inline *toolspec.VersionExpression
		if hasOverride {
			expr, err := toolspec.ParseVersionExpression(versionSpec, true, true)
			if err != nil {
				fail(err)
				return nil
			}
			inline = &expr
		}
		runShim(command, inline, os.Args[1:])
		return nil // runShim always terminates the process itself
	}
	return rootCmd.Execute()
}

func exeBasename(arg0 string) string {
	base := filepath.Base(arg0)
	return strings.TrimSuffix(base, ".exe")
}
