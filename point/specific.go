package point

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Specific is the provider/vendor/product/variant/version tuple that
// narrows a Kind. Version is validated and ordered using
// golang.org/x/mod/semver the way a real Go toolchain-adjacent module would,
// rather than hand-rolling semver comparison.
type Specific struct {
	Provider string
	Vendor   string
	Product  string
	Variant  string
	Version  string // "v"-prefixed semver accepted by semver.IsValid, e.g. "v1.2.3-pre"
}

// ParseSpecific parses "provider:vendor:product:variant:(version)" as used
// in Kind<Sub<Specific>> selector brackets.
func ParseSpecific(s string) (Specific, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return Specific{}, fmt.Errorf("point: specific %q must have 5 colon-separated fields", s)
	}
	v := parts[4]
	if v != "" {
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if !semver.IsValid(v) {
			return Specific{}, fmt.Errorf("point: invalid semver %q", parts[4])
		}
	}
	return Specific{Provider: parts[0], Vendor: parts[1], Product: parts[2], Variant: parts[3], Version: v}, nil
}

func (s Specific) String() string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", s.Provider, s.Vendor, s.Product, s.Variant, s.Version)
}

// CompareVersion orders two Specifics by semver, ignoring the other fields.
func (s Specific) CompareVersion(o Specific) int {
	return semver.Compare(s.Version, o.Version)
}

// MatchesVersionRange reports whether s.Version satisfies a simple
// "^vX.Y.Z" / "~vX.Y.Z" / exact range expression subset of the version-req
// grammar: "^vX.Y.Z" accepts versions at or above vX.Y.Z with the same
// major, "~vX.Y.Z" those at or above it with the same major.minor.
func (s Specific) MatchesVersionRange(req string) bool {
	if req == "" || req == "*" {
		return true
	}
	switch {
	case strings.HasPrefix(req, "^"):
		base := normalizeV(req[1:])
		return semver.Major(s.Version) == semver.Major(base) && semver.Compare(s.Version, base) >= 0
	case strings.HasPrefix(req, "~"):
		base := normalizeV(req[1:])
		return semver.MajorMinor(s.Version) == semver.MajorMinor(base) && semver.Compare(s.Version, base) >= 0
	default:
		return s.Version == normalizeV(req)
	}
}

func normalizeV(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}
