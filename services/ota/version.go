package ota

import (
	"strings"

	"pixelweather-go/errcode"
	"pixelweather-go/types"
)

// ParseSlotVersion extracts the semantic version from a slot version token.
//
// Tokens come from `git describe` and look like "v2.0.0-rc3-8-g1a1ba69": a
// leading 'v', the version, then '-' and a build suffix. Only the text
// between the 'v' and the first '-' is parsed. Any other shape is an
// IllegalFirmwareVersion error.
func ParseSlotVersion(token string) (types.Version, error) {
	rest, ok := strings.CutPrefix(token, "v")
	if !ok {
		return types.Version{}, errcode.New(errcode.IllegalFirmwareVersion, "parse_version", token)
	}
	core, _, ok := strings.Cut(rest, "-")
	if !ok {
		return types.Version{}, errcode.New(errcode.IllegalFirmwareVersion, "parse_version", token)
	}
	v, err := types.ParseVersion(core)
	if err != nil {
		return types.Version{}, &errcode.E{C: errcode.IllegalFirmwareVersion, Op: "parse_version", Msg: token, Err: err}
	}
	return v, nil
}
