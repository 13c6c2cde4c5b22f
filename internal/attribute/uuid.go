package attribute

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// UUID is a 128-bit HAP UUID, stored in the big-endian byte order
// HomeKit's wire format and textual representation both use.
type UUID [16]byte

// appleBaseUUIDSuffix is the fixed remainder of every Apple-defined
// short-form UUID: "0000-1000-8000-0026BB765291", grounded on
// original_source/HAP/HAPCharacteristicTypes.c's HAPUUIDCreateAppleDefined.
var appleBaseUUIDSuffix = [12]byte{0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0x26, 0xBB, 0x76, 0x52, 0x91}

// AppleDefined constructs the UUID for an Apple-defined (short-form)
// HAP service or characteristic type, e.g. AppleDefined(0x25) for "On".
func AppleDefined(shortID uint32) UUID {
	var u UUID
	u[0] = byte(shortID >> 24)
	u[1] = byte(shortID >> 16)
	u[2] = byte(shortID >> 8)
	u[3] = byte(shortID)
	copy(u[4:], appleBaseUUIDSuffix[:])
	return u
}

// Equal reports whether two UUIDs are the same type.
func (u UUID) Equal(other UUID) bool {
	return u == other
}

// String renders the UUID in canonical 8-4-4-4-12 hyphenated hex form.
func (u UUID) String() string {
	h := hex.EncodeToString(u[:])
	return strings.ToUpper(fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32]))
}

// ParseUUID parses a canonical hyphenated or bare 32-hex-digit UUID
// string back into a UUID.
func ParseUUID(s string) (UUID, error) {
	s = strings.ReplaceAll(s, "-", "")
	var u UUID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 16 {
		return u, fmt.Errorf("attribute: invalid UUID %q", s)
	}
	copy(u[:], b)
	return u, nil
}
