// Package semver wraps github.com/Masterminds/semver/v3 to give the rest of
// the module one narrow surface for parsing, comparing, range-satisfying and
// sorting versions, rather than scattering semver-library calls everywhere.
package semver

import (
	"fmt"
	"sort"
	"strings"

	mastersemver "github.com/Masterminds/semver/v3"
)

// Version is an exact, parsed semantic version.
type Version struct {
	raw string
	v   *mastersemver.Version
}

// String returns the original, unnormalized version string.
func (v *Version) String() string {
	return v.raw
}

// Major returns the version's major component.
func (v *Version) Major() uint64 {
	return v.v.Major()
}

// ParseExact parses a string as an exact semantic version: a concrete
// MAJOR.MINOR.PATCH[-pre][+build] value, or one with its minor or patch
// component omitted (e.g. "1.2"). Ranges like "10.x" and dist-tags are
// rejected.
func ParseExact(s string) (*Version, error) {
	parsed, err := mastersemver.StrictNewVersion(normalize(s))
	if err != nil {
		// Fall back to the lenient parser: some registries publish versions
		// like "1.2" without a patch component.
		parsed, err = mastersemver.NewVersion(normalize(s))
		if err != nil {
			return nil, fmt.Errorf("expected a semver version: %w", err)
		}
	}
	return &Version{raw: s, v: parsed}, nil
}

// LooksLikeExact reports whether s could be parsed by ParseExact, without
// otherwise affecting state. Used to distinguish an exact version from a
// range/tag while parsing a VersionExpression.
func LooksLikeExact(s string) bool {
	_, err := ParseExact(s)
	return err == nil
}

// SameMajor reports whether two exact versions share a major component.
func SameMajor(a, b *Version) bool {
	return a.Major() == b.Major()
}

// Compare returns -1, 0 or 1 as a is less than, equal to, or greater than b.
func Compare(a, b *Version) int {
	return a.v.Compare(b.v)
}

// Sort sorts versions ascending in place.
func Sort(versions []*Version) {
	sort.Slice(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) < 0
	})
}

// Range is a semver range or constraint expression (e.g. "^1.2.3", "10.x",
// ">=1.0.0 <2.0.0").
type Range struct {
	raw string
	c   *mastersemver.Constraints
}

// ParseRange parses a range/constraint expression.
func ParseRange(s string) (*Range, error) {
	c, err := mastersemver.NewConstraint(normalize(s))
	if err != nil {
		return nil, fmt.Errorf("expected a semver range: %w", err)
	}
	return &Range{raw: s, c: c}, nil
}

// String returns the original range expression.
func (r *Range) String() string {
	return r.raw
}

// Satisfies reports whether the exact version satisfies the range.
func (r *Range) Satisfies(v *Version) bool {
	return r.c.Check(v.v)
}

// HighestSatisfying returns the highest of the candidate versions satisfying
// the range, or nil if none match.
func (r *Range) HighestSatisfying(candidates []*Version) *Version {
	var best *Version
	for _, c := range candidates {
		if !r.Satisfies(c) {
			continue
		}
		if best == nil || Compare(c, best) > 0 {
			best = c
		}
	}
	return best
}

// LooksLikeRange reports whether s parses as a range expression. Exact
// versions also parse as single-version ranges, so callers should check
// LooksLikeExact first when the two need to be distinguished.
func LooksLikeRange(s string) bool {
	_, err := ParseRange(s)
	return err == nil
}

func normalize(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "v")
}
