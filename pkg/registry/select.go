package registry

import (
	"fmt"
	"strings"

	"github.com/corepack-go/corepack/pkg/semver"
	"github.com/corepack-go/corepack/pkg/toolspec"
)

// Select picks the version within doc that satisfies expr (an Exact version,
// a Range, or a dist-tag), and returns its exact version string and
// metadata. URL expressions never reach the registry and are rejected here.
func Select(doc *Document, expr toolspec.VersionExpression) (string, VersionInfo, error) {
	switch expr.Kind {
	case toolspec.ExprExact:
		v := expr.Exact.String()
		info, ok := doc.Versions[v]
		if !ok {
			return "", VersionInfo{}, fmt.Errorf("version %s not found for package %s", v, doc.Name)
		}
		return v, info, nil

	case toolspec.ExprTag:
		v, ok := doc.DistTags[expr.Tag]
		if !ok {
			return "", VersionInfo{}, fmt.Errorf("dist-tag %q not found for package %s", expr.Tag, doc.Name)
		}
		info, ok := doc.Versions[v]
		if !ok {
			return "", VersionInfo{}, fmt.Errorf("dist-tag %q points at missing version %s", expr.Tag, v)
		}
		return v, info, nil

	case toolspec.ExprRange:
		candidates := make([]*semver.Version, 0, len(doc.Versions))
		byString := map[string]string{}
		for raw := range doc.Versions {
			v, err := semver.ParseExact(raw)
			if err != nil {
				continue
			}
			candidates = append(candidates, v)
			byString[v.String()] = raw
		}
		best := expr.Range.HighestSatisfying(candidates)
		if best == nil {
			return "", VersionInfo{}, fmt.Errorf("no version of %s satisfies range %s", doc.Name, expr.Range.String())
		}
		key := byString[best.String()]
		return key, doc.Versions[key], nil

	default:
		return "", VersionInfo{}, fmt.Errorf("version expression %q cannot be resolved against a registry", expr.Raw)
	}
}

// TarballURL returns the tarball URL to download for a selected version,
// preferring the registry-provided dist.tarball and falling back to the
// tool's own template (substituting {registry}, {package}, {fileSafePackage}
// and {version}) when the registry omits it - the yarn-berry path in
// particular is expected to rely on the template.
func TarballURL(template, registryBase, packageName, fileSafePackage, version string, info VersionInfo) string {
	if info.Dist.Tarball != "" {
		return info.Dist.Tarball
	}
	return expandTemplate(template, registryBase, packageName, fileSafePackage, version)
}

func expandTemplate(template, registryBase, packageName, fileSafePackage, version string) string {
	replacer := map[string]string{
		"{registry}":        registryBase,
		"{package}":         packageName,
		"{fileSafePackage}": fileSafePackage,
		"{version}":         version,
	}
	out := template
	for k, v := range replacer {
		out = strings.ReplaceAll(out, k, v)
	}
	return out
}
