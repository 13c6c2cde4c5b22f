package setupinfo

import (
	"crypto/subtle"
	"fmt"
)

// setupPayloadPrefix is the fixed "X-HM://" QR-code scheme prefix
// (HAPSetupPayloadPrefix).
const setupPayloadPrefix = "X-HM://"

// Flags are the three single-bit fields packed into a setup payload
// alongside the category and (optionally) the setup code.
type Flags struct {
	BLESupported bool
	IPSupported  bool
	IsPaired     bool
}

// EncodePayload builds the 20-character "X-HM://..." setup payload
// string HomeKit QR codes encode. setupCode may be empty when flags.IsPaired
// is true (an already-paired accessory's payload omits the code); setupID
// must always be the four-character setup ID. Grounded on
// HAPAccessorySetupGetSetupPayload.
func EncodePayload(setupCode string, setupID string, flags Flags, category uint8) (string, error) {
	if flags.IsPaired && setupCode != "" {
		return "", fmt.Errorf("setupinfo: a paired accessory's payload must not carry a setup code")
	}
	if setupCode != "" && !ValidateSetupCode(setupCode) {
		return "", fmt.Errorf("setupinfo: %w", ErrInvalidSetupCode)
	}
	if !ValidateSetupID(setupID) {
		return "", fmt.Errorf("setupinfo: invalid setup ID %q", setupID)
	}
	if !flags.BLESupported && !flags.IPSupported {
		return "", fmt.Errorf("setupinfo: payload must advertise at least one transport")
	}

	var code uint64
	code |= uint64(category) << 31
	if flags.BLESupported {
		code |= 1 << 29
	}
	if flags.IPSupported {
		code |= 1 << 28
	}
	if flags.IsPaired {
		code |= 1 << 27
	}
	if setupCode != "" {
		code |= setupCodeDigits(setupCode)
	}

	digits := encodeBase36(code)

	out := make([]byte, 0, len(setupPayloadPrefix)+len(digits)+setupIDLength)
	out = append(out, setupPayloadPrefix...)
	out = append(out, digits[:]...)
	out = append(out, setupID...)
	return string(out), nil
}

// setupCodeDigits packs a validated "XXX-XX-XXX" code into its 27-bit
// decimal value, skipping the dashes at offsets 3 and 6.
func setupCodeDigits(code string) uint64 {
	digit := func(i int) uint64 { return uint64(code[i] - '0') }
	return digit(0)*10_000_000 + digit(1)*1_000_000 + digit(2)*100_000 +
		digit(4)*10_000 + digit(5)*1_000 +
		digit(7)*100 + digit(8)*10 + digit(9)
}

// encodeBase36 base-36 encodes code into nine characters, most
// significant digit first, using a branch-free digit-to-ASCII
// transform so the setup code's digits are not leaked through timing.
func encodeBase36(code uint64) [9]byte {
	var out [9]byte
	x := code
	for i := 0; i < 9; i++ {
		r := byte(x % 36)
		x /= 36
		out[8-i] = digitToASCII(r)
	}
	return out
}

// digitToASCII maps a base-36 digit value in [0,35] to its ASCII
// character ('0'-'9' then 'A'-'Z'), branch-free.
func digitToASCII(r byte) byte {
	isLetter := subtle.ConstantTimeLessOrEq(10, int(r))
	offset := subtle.ConstantTimeSelect(isLetter, int('A'-'9'-1), 0)
	return byte(int('0') + int(r) + offset)
}
