// Package dispatch implements the Dispatcher component (C10): invoking the
// materialized tool under its correct entrypoint and propagating its exit
// status faithfully.
package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/corepack-go/corepack/pkg/cache"
	"github.com/corepack-go/corepack/pkg/corepackerr"
	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/toolconfig"
)

// Dispatcher runs an installed tool's entrypoint.
type Dispatcher struct{}

// New returns a Dispatcher. It holds no state; it exists so the dispatch
// step can be mocked in tests exercising the CLI surface.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Dispatch runs the entrypoint registered for command inside entry,
// forwarding args, stdio and COREPACK_ROOT. The returned exit code is the
// child's verbatim exit status on a successful launch; err is non-nil only
// when the tool itself could not be launched at all (missing entrypoint,
// exec failure), which the caller should surface as a structured error and
// exit 1 for, never silently.
func (d *Dispatcher) Dispatch(ctx context.Context, entry *cache.Entry, defaults toolconfig.ToolDefaults, command string, args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	script, ok := defaults.ScriptFor(command)
	if !ok {
		return 1, corepackerr.Newf(corepackerr.SpecSyntax, "no entrypoint is registered for %s", command)
	}

	scriptPath := filepath.Join(entry.AbsolutePath, script)
	if _, err := os.Stat(scriptPath); err != nil {
		return 1, fmt.Errorf("entrypoint %s is missing from %s@%s: %w", script, entry.Name, entry.ExactVersion, err)
	}

	cmd := buildCommand(ctx, scriptPath, args)
	cmd.Env = append(os.Environ(), "COREPACK_ROOT="+entry.AbsolutePath)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	corepacklog.Verbose("dispatching %s@%s via %s", entry.Name, entry.ExactVersion, scriptPath)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 1, fmt.Errorf("failed to launch %s: %w", command, err)
	}
	return 0, nil
}

// buildCommand decides whether scriptPath is a JavaScript module needing a
// node interpreter, or a native executable to run directly.
func buildCommand(ctx context.Context, scriptPath string, args []string) *exec.Cmd {
	if isModuleScript(scriptPath) {
		return exec.CommandContext(ctx, "node", append([]string{scriptPath}, args...)...)
	}
	return exec.CommandContext(ctx, scriptPath, args...)
}

// isModuleScript reports whether scriptPath should be launched via node,
// either because of its extension or because its shebang line names node.
func isModuleScript(scriptPath string) bool {
	switch filepath.Ext(scriptPath) {
	case ".js", ".cjs", ".mjs":
		return true
	}

	f, err := os.Open(scriptPath)
	if err != nil {
		return false
	}
	defer f.Close()

	line, _ := bufio.NewReader(f).ReadString('\n')
	return strings.HasPrefix(line, "#!") && strings.Contains(line, "node")
}
