package drift

import (
	"strings"

	"golang.org/x/mod/semver"
)

// versionsCompatible reports whether the current dependency version
// satisfies the specified requirement.
//
// Requirement syntax, matching what spec manifests declare:
//
//	v1.2.3    exact version
//	^v1.2.3   same major, at or above
//	~v1.2.3   same major.minor, at or above
//	>=v1.2.3  at or above, any major
//
// Versions that do not parse as semver fall back to string equality.
func versionsCompatible(required, current string) bool {
	op, want := splitRequirement(required)
	want = canonical(want)
	got := canonical(current)
	if !semver.IsValid(want) || !semver.IsValid(got) {
		return strings.TrimPrefix(required, "v") == strings.TrimPrefix(current, "v")
	}

	switch op {
	case "^":
		return semver.Major(got) == semver.Major(want) && semver.Compare(got, want) >= 0
	case "~":
		return semver.MajorMinor(got) == semver.MajorMinor(want) && semver.Compare(got, want) >= 0
	case ">=":
		return semver.Compare(got, want) >= 0
	default:
		return semver.Compare(got, want) == 0
	}
}

func splitRequirement(req string) (op, version string) {
	req = strings.TrimSpace(req)
	for _, prefix := range []string{">=", "^", "~"} {
		if strings.HasPrefix(req, prefix) {
			return prefix, strings.TrimSpace(req[len(prefix):])
		}
	}
	return "", req
}

// canonical ensures the "v" prefix semver.Compare requires
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
