package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/toolconfig"
)

var enableInstallDirectory string

var enableCmd = &cobra.Command{
	Use:   "enable [<tool>...]",
	Short: "Install npm/pnpm/yarn shims on PATH that dispatch back to corepack",
	Long: `Creates one symlink per managed command (npm, npx, pnpm, pnpx, yarn,
yarnpkg) pointing at this binary, so that invoking any of them resolves and
dispatches through corepack. With no arguments, all three tool families
(npm, pnpm, yarn) are enabled; otherwise only the named ones are.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := shimDirectory(enableInstallDirectory)
		if err != nil {
			return err
		}
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to determine corepack's own binary path: %w", err)
		}

		for _, command := range commandsFor(args) {
			target := filepath.Join(dir, command)
			if runtime.GOOS == "windows" {
				target += ".exe"
			}
			os.Remove(target)
			if err := os.Symlink(self, target); err != nil {
				return fmt.Errorf("failed to create shim for %s: %w", command, err)
			}
			corepacklog.Notice("enabled %s -> %s", target, self)
		}
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable [<tool>...]",
	Short: "Remove shims previously created by \"corepack enable\"",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := shimDirectory(enableInstallDirectory)
		if err != nil {
			return err
		}
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to determine corepack's own binary path: %w", err)
		}

		for _, command := range commandsFor(args) {
			target := filepath.Join(dir, command)
			if runtime.GOOS == "windows" {
				target += ".exe"
			}
			link, err := os.Readlink(target)
			if err != nil {
				continue // not present, or not a symlink we created
			}
			if link != self {
				corepacklog.Warn("%s does not point at this corepack binary, leaving it alone", target)
				continue
			}
			if err := os.Remove(target); err != nil {
				return fmt.Errorf("failed to remove shim %s: %w", target, err)
			}
			corepacklog.Notice("disabled %s", target)
		}
		return nil
	},
}

func init() {
	enableCmd.Flags().StringVar(&enableInstallDirectory, "install-directory", "", "directory to install shims into (default: alongside this binary)")
	disableCmd.Flags().StringVar(&enableInstallDirectory, "install-directory", "", "directory the shims were installed into")
}

// shimDirectory returns override if set, else the directory containing this
// binary - matching how a tool installed via a package manager's global bin
// directory is typically already on PATH.
func shimDirectory(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to determine corepack's own binary path: %w", err)
	}
	return filepath.Dir(self), nil
}

// commandsFor expands a list of tool family names (npm, pnpm, yarn) into
// their concrete invocable command names. With no names given, every
// managed tool is expanded.
func commandsFor(names []string) []string {
	families := names
	if len(families) == 0 {
		families = []string{"npm", "pnpm", "yarn"}
	}

	seen := map[string]bool{}
	var commands []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			commands = append(commands, c)
		}
	}

	for _, family := range families {
		name, ok := toolconfig.ToolNameForCommand(family)
		if !ok {
			continue
		}
		defaults := builtinCommandNames(name)
		for _, c := range defaults {
			add(c)
		}
	}
	return commands
}

// builtinCommandNames lists the invocable command names for a tool family,
// without needing a Store (enable/disable run before any project is
// located, so there is no override file to consult).
func builtinCommandNames(name toolconfig.ToolName) []string {
	switch name {
	case toolconfig.NPM:
		return []string{"npm", "npx"}
	case toolconfig.PNPM:
		return []string{"pnpm", "pnpx"}
	case toolconfig.YarnClassic, toolconfig.YarnBerry:
		return []string{"yarn", "yarnpkg"}
	default:
		return nil
	}
}
