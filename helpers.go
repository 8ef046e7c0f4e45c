// Package cakeshaper holds the string-parsing glue shared by cmd/cake-shaper
// and cmd/cake-dump: turning a tc-style handle string or a named Diffserv
// code point from a config file into the numeric form internal/cake and
// internal/nl actually operate on. Adapted from the teacher's own
// regex-driven StrHandle.
package cakeshaper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/florianl/go-tc"
	"github.com/florianl/go-tc/core"
)

var (
	fullHandleRE = regexp.MustCompile(`^[0-9a-fA-F]+:[0-9a-fA-F]+$`)
	majHandleRE  = regexp.MustCompile(`^[0-9a-fA-F]+:$`)
	minHandleRE  = regexp.MustCompile(`^:[0-9a-fA-F]+$`)
)

// StrHandle parses a human-readable tc handle ("1:", "1:10", ":10", "root")
// into its packed uint32 form.
func StrHandle(handle string) (uint32, error) {
	if handle == "root" {
		return tc.HandleRoot, nil
	}

	var handleMaj, handleMin int64
	var err error
	parts := strings.Split(handle, ":")

	switch {
	case fullHandleRE.MatchString(handle):
		if handleMaj, err = strconv.ParseInt(parts[0], 16, 32); err != nil {
			return 0, fmt.Errorf("cakeshaper: parse major handle %q: %w", handle, err)
		}
		if handleMin, err = strconv.ParseInt(parts[1], 16, 32); err != nil {
			return 0, fmt.Errorf("cakeshaper: parse minor handle %q: %w", handle, err)
		}
	case majHandleRE.MatchString(handle):
		if handleMaj, err = strconv.ParseInt(parts[0], 16, 32); err != nil {
			return 0, fmt.Errorf("cakeshaper: parse major handle %q: %w", handle, err)
		}
	case minHandleRE.MatchString(handle):
		if handleMin, err = strconv.ParseInt(parts[1], 16, 32); err != nil {
			return 0, fmt.Errorf("cakeshaper: parse minor handle %q: %w", handle, err)
		}
	default:
		return 0, fmt.Errorf("cakeshaper: %q is not a recognizable tc handle", handle)
	}
	return core.BuildHandle(uint32(handleMaj), uint32(handleMin)), nil
}

// dscpNames maps the well-known Diffserv code point names a config file may
// use onto their 6-bit numeric value, the same set internal/cake's preset
// configurators classify by.
var dscpNames = map[string]uint8{
	"default": 0x00, "be": 0x00, "cs0": 0x00,
	"cs1": 0x08, "af11": 0x0a, "af12": 0x0c, "af13": 0x0e,
	"cs2": 0x10, "af21": 0x12, "af22": 0x14, "af23": 0x16,
	"cs3": 0x18, "af31": 0x1a, "af32": 0x1c, "af33": 0x1e,
	"cs4": 0x20, "af41": 0x22, "af42": 0x24, "af43": 0x26,
	"cs5": 0x28, "va": 0x2c, "ef": 0x2e,
	"cs6": 0x30, "cs7": 0x38,
}

// ParseDSCP accepts a named code point ("ef", "cs6"), a decimal number, or a
// "0x"-prefixed hex number and returns the 6-bit Diffserv value.
func ParseDSCP(s string) (uint8, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if dscp, ok := dscpNames[s]; ok {
		return dscp, nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 8)
	if err != nil {
		return 0, fmt.Errorf("cakeshaper: %q is not a known Diffserv code point or number", s)
	}
	if v > 0x3f {
		return 0, fmt.Errorf("cakeshaper: code point %d exceeds the 6-bit DSCP range", v)
	}
	return uint8(v), nil
}
