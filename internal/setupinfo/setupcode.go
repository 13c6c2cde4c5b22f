// Package setupinfo derives the three values a controller needs to pair
// with an accessory out of band: the setup code a user types in, the
// setup payload a QR code encodes, and the setup hash advertised over
// mDNS/BLE so a scanning controller can recognize this specific
// accessory among several awaiting pairing.
package setupinfo

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// setupCodeLength is len("XXX-XX-XXX").
const setupCodeLength = 10

// ErrInvalidSetupCode is the error EncodePayload wraps when
// ValidateSetupCode rejects its setup code: a string that isn't a
// ten-character XXX-XX-XXX code, or that fails the trivial-pattern check.
var ErrInvalidSetupCode = errors.New("setupinfo: invalid setup code")

// ValidateSetupCode reports whether code has the form "XXX-XX-XXX" and
// rejects the trivial patterns HomeKit disallows: every digit equal,
// strictly ascending from 1 (e.g. "123-45-678"), or strictly descending
// from 8 (e.g. "876-54-321"). Grounded on
// HAPAccessorySetupIsValidSetupCode.
func ValidateSetupCode(code string) bool {
	if len(code) != setupCodeLength {
		return false
	}

	var numEqual, numAscending, numDescending int
	previous := byte(0)
	for i := 0; i < setupCodeLength; i++ {
		c := code[i]
		if i == 3 || i == 6 {
			if c != '-' {
				return false
			}
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
		if c == previous {
			numEqual++
		}
		if c == previous+1 {
			numAscending++
		}
		if c == previous-1 {
			numDescending++
		}
		previous = c
	}

	if numEqual == 7 {
		return false
	}
	if code[0] == '1' && numAscending == 7 {
		return false
	}
	if code[0] == '8' && numDescending == 7 {
		return false
	}
	return true
}

// GenerateRandomSetupCode produces a random "XXX-XX-XXX" code, retrying
// until ValidateSetupCode accepts it.
func GenerateRandomSetupCode() (string, error) {
	buf := make([]byte, setupCodeLength)
	for {
		for i := 0; i < setupCodeLength; i++ {
			if i == 3 || i == 6 {
				buf[i] = '-'
				continue
			}
			d, err := randomDigit()
			if err != nil {
				return "", fmt.Errorf("setupinfo: generating setup code: %w", err)
			}
			buf[i] = '0' + d
		}
		code := string(buf)
		if ValidateSetupCode(code) {
			return code, nil
		}
	}
}

func randomDigit() (byte, error) {
	for {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		d := b[0] & 0x0F
		if d <= 9 {
			return d, nil
		}
	}
}
