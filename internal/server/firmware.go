package server

import (
	"fmt"
	"strconv"
	"strings"
)

// FirmwareVersion is the maj.min.rev triple the server compares against
// the persisted version on every start, refusing a downgrade.
type FirmwareVersion struct {
	Major, Minor, Rev uint32
}

// ParseFirmwareVersion parses "maj.min.rev", rejecting malformed input
// and components that don't fit a uint32.
func ParseFirmwareVersion(s string) (FirmwareVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return FirmwareVersion{}, fmt.Errorf("server: firmware version %q must have 3 dot-separated components", s)
	}
	var v FirmwareVersion
	fields := []*uint32{&v.Major, &v.Minor, &v.Rev}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return FirmwareVersion{}, fmt.Errorf("server: firmware version %q: %w", s, err)
		}
		*fields[i] = uint32(n)
	}
	return v, nil
}

// String renders v back to "maj.min.rev".
func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Rev)
}

// Compare returns -1, 0, or 1 as v is lexicographically less than,
// equal to, or greater than other, comparing Major then Minor then Rev.
func (v FirmwareVersion) Compare(other FirmwareVersion) int {
	for _, pair := range [][2]uint32{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Rev, other.Rev}} {
		if pair[0] < pair[1] {
			return -1
		}
		if pair[0] > pair[1] {
			return 1
		}
	}
	return 0
}
