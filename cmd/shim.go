package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/resolve"
	"github.com/corepack-go/corepack/pkg/toolspec"
)

// runShim resolves and dispatches a direct tool invocation (e.g. "npm
// install lodash"), terminating the process with the child's exit status,
// or with 1 and a diagnostic on a structured resolution/fetch failure.
// inlineVersion is non-nil for a "<toolName>@<spec>" one-shot override
// (argv[0] itself carries the version), and takes precedence over the
// project's own pin for this invocation only.
func runShim(invokedCommand string, inlineVersion *toolspec.VersionExpression, args []string) {
	subcommand := ""
	if len(args) > 0 {
		subcommand = args[0]
	}

	comps, err := build()
	if err != nil {
		fail(err)
	}

	ctx := context.Background()
	input := resolve.Input{
		Manifest:       comps.manifest,
		InvokedCommand: invokedCommand,
		Subcommand:     subcommand,
	}
	if inlineVersion != nil {
		input.InlineName = invokedCommand
		input.InlineVersion = inlineVersion
	}
	res, err := comps.resolver.Resolve(ctx, input)
	if err != nil {
		fail(err)
	}

	entry, err := comps.ensureInstalled(ctx, res)
	if err != nil {
		fail(err)
	}

	defaults, _ := comps.store.Get(res.Name)
	code, err := comps.dispatcher.Dispatch(ctx, entry, defaults, invokedCommand, args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fail(err)
	}

	if code == 0 {
		comps.cache.UpdatePin(res.Name, res.ExactVersion)

		noExistingPin := res.Locator.Kind != toolspec.LocatorProjectManifest && res.Locator.Kind != toolspec.LocatorProjectDevEngines
		if comps.env.EnableAutoPin() && comps.manifest != nil && noExistingPin {
			field := string(res.Name) + "@" + res.ExactVersion
			if res.Integrity != nil {
				field += "+" + res.Integrity.Algo + "." + res.Integrity.Hex
			}
			if err := setPackageManagerField(comps.manifest.Path, field); err != nil {
				corepacklog.Warn("failed to pin %s to %s: %v", comps.manifest.Path, field, err)
			} else {
				corepacklog.Notice("pinned %s to %s", comps.manifest.Path, field)
			}
		}
	}

	os.Exit(code)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
