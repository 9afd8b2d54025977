package types

import (
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a plain major.minor.patch firmware version.
type Version struct {
	Major uint16 `cbor:"1,keyasint"`
	Minor uint16 `cbor:"2,keyasint"`
	Patch uint16 `cbor:"3,keyasint"`
}

func (v Version) String() string {
	return strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor)) + "." + strconv.Itoa(int(v.Patch))
}

// Less orders versions numerically.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

// VersionSyntaxError is returned for anything that is not exactly "X.Y.Z".
type VersionSyntaxError struct{ Input string }

func (e *VersionSyntaxError) Error() string { return "invalid version " + strconv.Quote(e.Input) }

// ParseVersion parses "X.Y.Z" (no prefix, no pre-release, no build suffix).
func ParseVersion(s string) (Version, error) {
	tagged := "v" + s
	if !semver.IsValid(tagged) || semver.Canonical(tagged) != tagged {
		return Version{}, &VersionSyntaxError{Input: s}
	}
	parts := strings.Split(s, ".")
	var nums [3]uint16
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Version{}, &VersionSyntaxError{Input: s}
		}
		nums[i] = uint16(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
