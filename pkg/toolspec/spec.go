// Package toolspec parses the union of manifest and command-line sources
// into a structured SpecRequest: the Spec Parser component.
package toolspec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/corepack-go/corepack/pkg/corepackerr"
	"github.com/corepack-go/corepack/pkg/semver"
	"github.com/corepack-go/corepack/pkg/toolconfig"
)

// LocatorKind identifies where a version request originated.
type LocatorKind string

const (
	LocatorEnv               LocatorKind = "env"
	LocatorProjectManifest   LocatorKind = "projectManifest"
	LocatorProjectDevEngines LocatorKind = "projectDevEngines"
	LocatorGlobalPin         LocatorKind = "globalPin"
	LocatorBuiltinDefault    LocatorKind = "builtinDefault"
)

// SpecLocator describes where a version request came from, for precedence
// and diagnostics only.
type SpecLocator struct {
	Kind LocatorKind
	Path string
}

func (l SpecLocator) String() string {
	if l.Path == "" {
		return string(l.Kind)
	}
	return fmt.Sprintf("%s (%s)", l.Kind, l.Path)
}

// ExprKind tags the variant of a VersionExpression.
type ExprKind int

const (
	ExprExact ExprKind = iota
	ExprRange
	ExprTag
	ExprURL
)

// IntegritySuffix is the "+<algo>.<hex>" (or "#<algo>.<hex>") suffix that
// pins an exact version's expected digest.
type IntegritySuffix struct {
	Algo string
	Hex  string
}

// VersionExpression is the tagged sum described in the specification's
// design notes: each variant has distinct legality depending on where it
// was parsed from.
type VersionExpression struct {
	Kind      ExprKind
	Raw       string
	Exact     *semver.Version
	Range     *semver.Range
	Tag       string
	URL       string
	Integrity *IntegritySuffix
}

// IsExact reports whether this expression names one concrete version.
func (v VersionExpression) IsExact() bool { return v.Kind == ExprExact }

var integritySuffixRe = regexp.MustCompile(`^(.*?)[+#]([a-zA-Z0-9]+)\.([0-9a-fA-F]+)$`)

// splitIntegritySuffix separates a trailing "+algo.hex" or "#algo.hex" from
// the rest of the expression, if present.
func splitIntegritySuffix(s string) (rest string, suffix *IntegritySuffix) {
	m := integritySuffixRe.FindStringSubmatch(s)
	if m == nil {
		return s, nil
	}
	return m[1], &IntegritySuffix{Algo: strings.ToLower(m[2]), Hex: strings.ToLower(m[3])}
}

// tagPattern matches dist-tag-shaped strings: bare identifiers with no dots
// that aren't also valid semver (e.g. "latest", "next", "canary").
var tagPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9\-]*$`)

// ParseVersionExpression classifies a raw version string into one of the
// VersionExpression variants. allowRange and allowTag gate whether a range
// or dist-tag is legal in the calling context; when false, encountering one
// is a SpecRange error. A URL expression is always structurally legal here;
// its legality for a *known* tool is enforced by the resolver (§4.6), since
// that depends on the unsafe-custom-URLs escape hatch.
func ParseVersionExpression(raw string, allowRange, allowTag bool) (VersionExpression, error) {
	if strings.Contains(raw, "://") {
		url, suffix := splitURLFragmentIntegrity(raw)
		return VersionExpression{Kind: ExprURL, Raw: raw, URL: url, Integrity: suffix}, nil
	}

	body, suffix := splitIntegritySuffix(raw)

	if v, err := semver.ParseExact(body); err == nil {
		return VersionExpression{Kind: ExprExact, Raw: raw, Exact: v, Integrity: suffix}, nil
	}

	if suffix != nil {
		// An integrity suffix was present but the remainder isn't an exact
		// version - that's never legal for a range or tag.
		return VersionExpression{}, corepackerr.New(corepackerr.SpecSyntax, "expected a semver version")
	}

	if allowRange {
		if r, err := semver.ParseRange(body); err == nil {
			return VersionExpression{Kind: ExprRange, Raw: raw, Range: r}, nil
		}
	}

	if allowTag && tagPattern.MatchString(body) {
		return VersionExpression{Kind: ExprTag, Raw: raw, Tag: body}, nil
	}

	if semver.LooksLikeRange(body) || tagPattern.MatchString(body) {
		// A range or tag that the calling context does not allow.
		return VersionExpression{}, corepackerr.New(corepackerr.SpecRange, "expected a semver version")
	}
	return VersionExpression{}, corepackerr.New(corepackerr.SpecSyntax, "expected a semver version")
}

func splitURLFragmentIntegrity(raw string) (url string, suffix *IntegritySuffix) {
	if i := strings.LastIndexByte(raw, '#'); i != -1 {
		if m := integritySuffixRe.FindStringSubmatch(raw[i:]); m != nil {
			return raw[:i], &IntegritySuffix{Algo: strings.ToLower(m[2]), Hex: strings.ToLower(m[3])}
		}
	}
	return raw, nil
}

// OnFail is the policy applied when a devEngines assertion disagrees with
// the packageManager field.
type OnFail string

const (
	OnFailError  OnFail = "error"
	OnFailWarn   OnFail = "warn"
	OnFailIgnore OnFail = "ignore"
)

// ParseOnFail parses the devEngines.packageManager.onFail field, defaulting
// to "error" when absent or unrecognized.
func ParseOnFail(raw string) OnFail {
	switch OnFail(raw) {
	case OnFailWarn:
		return OnFailWarn
	case OnFailIgnore:
		return OnFailIgnore
	default:
		return OnFailError
	}
}

// SpecRequest is one parsed request for a specific tool and version,
// tagged with where it came from.
type SpecRequest struct {
	Name    toolconfig.ToolName
	Version VersionExpression
	Locator SpecLocator
	OnFail  OnFail
}

// ParseInlineSpec parses a CLI "name[@versionOrRange]" argument. Ranges and
// tags are permitted here; a bare name with no "@" returns a nil version,
// leaving the caller to fall through the resolver's precedence chain for
// the version.
func ParseInlineSpec(arg string) (name string, version *VersionExpression, err error) {
	n, v, hasVersion := strings.Cut(arg, "@")
	if !hasVersion {
		return n, nil, nil
	}
	expr, perr := ParseVersionExpression(v, true, true)
	if perr != nil {
		return "", nil, perr
	}
	return n, &expr, nil
}

// ParsePackageManagerField parses the manifest's "packageManager" string:
// "<name>@<exact-version>[+<algo>.<hex>]" or "<name>@<URL>[#<algo>.<hex>]".
// A range, a tag, or a missing version is a SpecSyntax/SpecRange error.
func ParsePackageManagerField(raw string, manifestPath string) (*SpecRequest, error) {
	name, rest, ok := strings.Cut(raw, "@")
	if !ok || rest == "" {
		return nil, corepackerr.New(corepackerr.SpecSyntax, "expected a semver version")
	}

	expr, err := ParseVersionExpression(rest, false, false)
	if err != nil {
		return nil, err
	}

	return &SpecRequest{
		Name:    toolconfig.ToolName(name),
		Version: expr,
		Locator: SpecLocator{Kind: LocatorProjectManifest, Path: manifestPath},
	}, nil
}

// DevEnginesPackageManager is the parsed shape of a well-formed
// devEngines.packageManager object. Array/string/number shapes are reported
// via the returned bool (ok=false) so the caller can emit the
// DevEnginesShape warning and continue.
type DevEnginesPackageManager struct {
	Name    string
	Version string // may be empty; may be a range
	OnFail  OnFail
}

// ParseDevEngines interprets the raw decoded JSON value of
// devEngines.packageManager. ok is false for the array/string/number shapes,
// which are warned-and-ignored rather than erroring.
func ParseDevEngines(raw interface{}) (parsed DevEnginesPackageManager, ok bool) {
	obj, isObject := raw.(map[string]interface{})
	if !isObject {
		return DevEnginesPackageManager{}, false
	}

	name, _ := obj["name"].(string)
	version, _ := obj["version"].(string)
	onFailRaw, _ := obj["onFail"].(string)

	return DevEnginesPackageManager{
		Name:    name,
		Version: version,
		OnFail:  ParseOnFail(onFailRaw),
	}, true
}
