// Package resolve implements the Resolver component (C6): it turns the
// union of an inline CLI spec, a project manifest, a last-known-good pin and
// the built-in defaults into one authoritative Resolution, or a structured
// error.
package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/corepack-go/corepack/pkg/cache"
	"github.com/corepack-go/corepack/pkg/corepackenv"
	"github.com/corepack-go/corepack/pkg/corepackerr"
	"github.com/corepack-go/corepack/pkg/corepacklog"
	"github.com/corepack-go/corepack/pkg/registry"
	"github.com/corepack-go/corepack/pkg/semver"
	"github.com/corepack-go/corepack/pkg/toolconfig"
	"github.com/corepack-go/corepack/pkg/toolspec"
)

// Resolution is the immutable result of resolution: everything C9 needs to
// make the tool present locally, and C10 needs to dispatch to it.
type Resolution struct {
	Name         toolconfig.ToolName
	PackageName  string
	ExactVersion string
	Integrity    *toolspec.IntegritySuffix // project-asserted; authoritative when non-nil
	RegistrySRI  string                    // registry dist.integrity; used when Integrity is nil
	Signatures   []registry.Signature
	Source       string // tarball URL
	Locator      toolspec.SpecLocator
}

// Input gathers everything a caller has already collected about one
// invocation: the located manifest (if any), and the shim/CLI arguments.
type Input struct {
	Manifest *toolspec.Manifest

	// InvokedCommand is argv[0]'s basename in shim mode ("npm", "yarn", ...),
	// empty when invoked as the tool's own management CLI.
	InvokedCommand string
	// Subcommand is the first positional argument, used to check transparent
	// commands that may run regardless of a project's pin.
	Subcommand string

	// InlineName/InlineVersion come from a "<name>[@<spec>]" CLI argument, as
	// accepted by install/use/pack. InlineVersion may be nil even when
	// InlineName is set (bare name, version comes from lower precedence).
	InlineName    string
	InlineVersion *toolspec.VersionExpression
}

// Resolver ties the Config Store, Environment Layer, Cache Layout and
// Registry Client together to produce Resolutions.
type Resolver struct {
	env      *corepackenv.Env
	store    *toolconfig.Store
	cache    *cache.Cache
	registry *registry.Client
}

// New builds a Resolver from its collaborator components.
func New(env *corepackenv.Env, store *toolconfig.Store, c *cache.Cache, reg *registry.Client) *Resolver {
	return &Resolver{env: env, store: store, cache: c, registry: reg}
}

// Resolve produces the single authoritative Resolution for in, or a
// structured corepackerr.Error.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Resolution, error) {
	spec, err := r.pickSpecRequest(in)
	if err != nil {
		return nil, err
	}

	if spec.Version.Exact == nil && spec.Version.Range == nil && spec.Version.Tag == "" && spec.Version.URL == "" {
		spec, err = r.fallThroughToPinOrDefault(spec)
		if err != nil {
			return nil, err
		}
	}

	return r.materialize(ctx, spec)
}

// pickSpecRequest applies the precedence chain: inline spec, then project
// manifest (packageManager reconciled against devEngines.packageManager),
// subject to name-mismatch enforcement against the invoked command.
func (r *Resolver) pickSpecRequest(in Input) (*toolspec.SpecRequest, error) {
	if in.InlineName != "" {
		var version toolspec.VersionExpression
		if in.InlineVersion != nil {
			version = *in.InlineVersion
		}
		return r.enforceNameMatch(in, &toolspec.SpecRequest{
			Name:    toolNameFor(toolconfig.ToolName(in.InlineName), version),
			Version: version,
			Locator: toolspec.SpecLocator{Kind: toolspec.LocatorEnv},
		})
	}

	if in.Manifest == nil || !r.env.EnableProjectSpec() {
		return r.defaultSpecRequest(in)
	}

	var primary *toolspec.SpecRequest
	if in.Manifest.PackageManager != "" {
		parsed, err := toolspec.ParsePackageManagerField(in.Manifest.PackageManager, in.Manifest.Path)
		if err != nil {
			return nil, err
		}
		primary = parsed
	}

	if in.Manifest.DevEngines != nil {
		dev, ok := toolspec.ParseDevEngines(in.Manifest.DevEngines)
		if !ok {
			corepacklog.Warn("devEngines.packageManager has an unsupported shape and was ignored")
		} else if err := r.reconcileDevEngines(&primary, dev, in.Manifest.Path); err != nil {
			return nil, err
		}
	}

	if primary == nil {
		return r.defaultSpecRequest(in)
	}
	primary.Name = toolNameFor(primary.Name, primary.Version)
	return r.enforceNameMatch(in, primary)
}

// toolNameFor maps a name as spelled in a manifest, a CLI spec or argv[0]
// ("yarn", "npx", ...) onto its ToolName. The yarn family is split by the
// requested exact version's major: 2 and above is YarnBerry.
func toolNameFor(name toolconfig.ToolName, version toolspec.VersionExpression) toolconfig.ToolName {
	family, ok := toolconfig.ToolNameForCommand(string(name))
	if toolconfig.Known(name) || !ok {
		return name
	}
	if family == toolconfig.YarnClassic && version.Exact != nil && version.Exact.Major() >= 2 {
		return toolconfig.YarnBerry
	}
	return family
}

// reconcileDevEngines checks a devEngines.packageManager assertion against
// the packageManager field (if any), applying its onFail policy on
// disagreement. If no packageManager field exists, devEngines becomes the
// primary source - but a range-only devEngines version is insufficient to
// pin an install, since nothing here narrows it to an exact version.
func (r *Resolver) reconcileDevEngines(primary **toolspec.SpecRequest, dev toolspec.DevEnginesPackageManager, manifestPath string) error {
	if dev.Name == "" {
		return nil
	}

	if *primary != nil {
		mismatch := string((*primary).Name) != dev.Name || !versionsAgree((*primary).Version, dev.Version)
		if !mismatch {
			return nil
		}
		switch dev.OnFail {
		case toolspec.OnFailIgnore:
			return nil
		case toolspec.OnFailWarn:
			corepacklog.Warn("packageManager (%s@%s) does not match the value defined in \"devEngines.packageManager\" (%s)", (*primary).Name, (*primary).Version.Raw, dev.Name)
			return nil
		default:
			return corepackerr.Newf(corepackerr.DevEnginesMismatch, "packageManager (%s@%s) does not match the value defined in \"devEngines.packageManager\" (%s)", (*primary).Name, (*primary).Version.Raw, dev.Name)
		}
	}

	if dev.Version == "" {
		*primary = &toolspec.SpecRequest{
			Name:    toolconfig.ToolName(dev.Name),
			Locator: toolspec.SpecLocator{Kind: toolspec.LocatorProjectDevEngines, Path: manifestPath},
		}
		return nil
	}

	expr, err := toolspec.ParseVersionExpression(dev.Version, true, false)
	if err != nil {
		return err
	}
	if !expr.IsExact() {
		return corepackerr.New(corepackerr.SpecRange, "devEngines.packageManager.version must be an exact version when packageManager is absent")
	}
	*primary = &toolspec.SpecRequest{
		Name:    toolconfig.ToolName(dev.Name),
		Version: expr,
		Locator: toolspec.SpecLocator{Kind: toolspec.LocatorProjectDevEngines, Path: manifestPath},
	}
	return nil
}

// versionsAgree reports whether a packageManager field's version expression
// is compatible with a devEngines range/exact string, used only for
// agreement checking, not for resolving an exact version.
func versionsAgree(expr toolspec.VersionExpression, devVersion string) bool {
	if devVersion == "" {
		return true
	}
	if expr.Exact == nil {
		return true // nothing concrete to disagree with yet
	}
	if rng, err := semver.ParseRange(devVersion); err == nil {
		return rng.Satisfies(expr.Exact)
	}
	if exact, err := semver.ParseExact(devVersion); err == nil {
		return semver.Compare(exact, expr.Exact) == 0
	}
	return true
}

// enforceNameMatch checks the resolved tool name against the invoked shim
// command's family, per §4.6. A mismatch is fatal unless the invoked tool's
// defaults list the subcommand as transparent, or strict mode is off.
func (r *Resolver) enforceNameMatch(in Input, spec *toolspec.SpecRequest) (*toolspec.SpecRequest, error) {
	if in.InvokedCommand == "" {
		return spec, nil
	}
	invokedFamily, ok := toolconfig.ToolNameForCommand(in.InvokedCommand)
	if !ok || familyMatches(invokedFamily, spec.Name) {
		return spec, nil
	}

	defaults, _ := r.store.Get(invokedFamily)
	if defaults.IsTransparent(in.Subcommand) {
		return spec, nil
	}
	configured := string(spec.Name)
	if d, ok := r.store.Get(spec.Name); ok {
		configured = d.CanonicalCommand()
	}
	if !r.env.EnableStrict() {
		corepacklog.Warn("this project is configured to use %s, but %s was invoked", configured, in.InvokedCommand)
		return spec, nil
	}
	return nil, corepackerr.Newf(corepackerr.NameMismatch, "This project is configured to use %s", configured)
}

// familyMatches reports whether invokedFamily (as returned by
// ToolNameForCommand, which always names the classic half of the yarn pair)
// is consistent with resolvedName.
func familyMatches(invokedFamily, resolvedName toolconfig.ToolName) bool {
	if invokedFamily == toolconfig.YarnClassic {
		return toolconfig.IsYarn(resolvedName)
	}
	return invokedFamily == resolvedName
}

// defaultSpecRequest handles the case where neither an inline spec nor a
// usable manifest exists: the tool name must come from the invocation
// itself, with no version pinned yet.
func (r *Resolver) defaultSpecRequest(in Input) (*toolspec.SpecRequest, error) {
	if in.InvokedCommand == "" {
		return nil, corepackerr.New(corepackerr.SpecSyntax, "no package manager could be determined for this invocation")
	}
	name, ok := toolconfig.ToolNameForCommand(in.InvokedCommand)
	if !ok {
		return nil, corepackerr.Newf(corepackerr.SpecSyntax, "unrecognized command %s", in.InvokedCommand)
	}
	return &toolspec.SpecRequest{Name: name, Locator: toolspec.SpecLocator{Kind: toolspec.LocatorBuiltinDefault}}, nil
}

// fallThroughToPinOrDefault fills in a version for a SpecRequest whose name
// is known but whose version wasn't supplied by a higher-precedence source:
// the global last-known-good pin, or the compiled-in default.
func (r *Resolver) fallThroughToPinOrDefault(spec *toolspec.SpecRequest) (*toolspec.SpecRequest, error) {
	if !r.env.DefaultToLatest() {
		if pinned, ok := r.cache.LookupPin(spec.Name); ok {
			expr, err := toolspec.ParseVersionExpression(pinned, false, false)
			if err == nil {
				spec.Version = expr
				spec.Locator = toolspec.SpecLocator{Kind: toolspec.LocatorGlobalPin}
				return spec, nil
			}
		}
	}

	defaults, ok := r.store.Get(spec.Name)
	if !ok {
		return nil, corepackerr.Newf(corepackerr.SpecSyntax, "no default version is known for %s", spec.Name)
	}
	version := defaults.DefaultVersion
	if r.env.DefaultToLatest() {
		version = "latest"
		spec.Version = toolspec.VersionExpression{Kind: toolspec.ExprTag, Raw: version, Tag: "latest"}
		spec.Locator = toolspec.SpecLocator{Kind: toolspec.LocatorBuiltinDefault}
		return spec, nil
	}
	expr, err := toolspec.ParseVersionExpression(version, false, false)
	if err != nil {
		return nil, err
	}
	spec.Version = expr
	spec.Locator = toolspec.SpecLocator{Kind: toolspec.LocatorBuiltinDefault}
	return spec, nil
}

// materialize turns a SpecRequest with a (possibly non-exact) version into
// a concrete Resolution. The registry is skipped only for an exact version
// that carries its own integrity suffix; every other version, exact ones
// included, is looked up in the registry document.
func (r *Resolver) materialize(ctx context.Context, spec *toolspec.SpecRequest) (*Resolution, error) {
	if spec.Version.Kind == toolspec.ExprURL {
		return r.materializeURL(spec)
	}

	defaults, known := r.store.Get(spec.Name)

	if spec.Version.IsExact() {
		exact := spec.Version.Exact.String()
		if spec.Version.Integrity != nil {
			// A project-asserted hash is authoritative and needs no registry
			// round-trip: build the tarball URL straight from the template.
			source := ""
			if known {
				source = registry.TarballURL(defaults.TarballTemplate, r.env.NpmRegistry(), defaults.RegistryPackage, fileSafeName(defaults.RegistryPackage), exact, registry.VersionInfo{})
			}
			return &Resolution{
				Name:         spec.Name,
				PackageName:  defaults.RegistryPackage,
				ExactVersion: exact,
				Integrity:    &toolspec.IntegritySuffix{Algo: spec.Version.Integrity.Algo, Hex: spec.Version.Integrity.Hex},
				Source:       source,
				Locator:      spec.Locator,
			}, nil
		}
	}

	if !known {
		return nil, corepackerr.Newf(corepackerr.SpecSyntax, "%s is not a recognized package manager", spec.Name)
	}

	doc, err := r.registry.FetchDocument(ctx, defaults.RegistryPackage)
	if err != nil {
		return nil, err
	}
	exact, info, err := registry.Select(doc, spec.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s@%s: %w", spec.Name, spec.Version.Raw, err)
	}

	sigs := make([]registry.Signature, len(info.Dist.Signatures))
	copy(sigs, info.Dist.Signatures)

	return &Resolution{
		Name:         spec.Name,
		PackageName:  defaults.RegistryPackage,
		ExactVersion: exact,
		RegistrySRI:  info.Dist.Integrity,
		Signatures:   sigs,
		Source:       registry.TarballURL(defaults.TarballTemplate, r.env.NpmRegistry(), defaults.RegistryPackage, fileSafeName(defaults.RegistryPackage), exact, info),
		Locator:      spec.Locator,
	}, nil
}

// materializeURL handles a tarball-URL version expression: legal for
// Unknown tool names unconditionally, and for known tool names only with
// the unsafe-custom-URLs escape hatch enabled.
func (r *Resolver) materializeURL(spec *toolspec.SpecRequest) (*Resolution, error) {
	if toolconfig.Known(spec.Name) && !r.env.EnableUnsafeCustomURLs() {
		return nil, corepackerr.Newf(corepackerr.URLForKnownTool, "Illegal use of URL for known package manager (%s)", spec.Name)
	}

	sum := sha256.Sum256([]byte(spec.Version.URL))
	exact := "url-" + hex.EncodeToString(sum[:])[:16]

	res := &Resolution{
		Name:         spec.Name,
		ExactVersion: exact,
		Source:       spec.Version.URL,
		Locator:      spec.Locator,
	}
	if spec.Version.Integrity != nil {
		res.Integrity = &toolspec.IntegritySuffix{Algo: spec.Version.Integrity.Algo, Hex: spec.Version.Integrity.Hex}
	}
	return res, nil
}

func fileSafeName(packageName string) string {
	out := make([]byte, 0, len(packageName))
	for _, c := range packageName {
		if c == '/' || c == '@' {
			out = append(out, '-')
			continue
		}
		out = append(out, byte(c))
	}
	safe := string(out)
	if len(safe) > 0 && safe[0] == '-' {
		safe = safe[1:]
	}
	return safe
}
