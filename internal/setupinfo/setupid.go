package setupinfo

import (
	"crypto/rand"
	"fmt"
)

// setupIDLength is len(HAPSetupID.stringValue) - 1: four base-36
// (digit or uppercase letter) characters.
const setupIDLength = 4

// ValidateSetupID reports whether id is four characters, each a digit
// or an uppercase ASCII letter. Grounded on HAPAccessorySetupIsValidSetupID.
func ValidateSetupID(id string) bool {
	if len(id) != setupIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// GenerateRandomSetupID produces a random four-character setup ID.
// Grounded on HAPAccessorySetupGenerateRandomSetupID.
func GenerateRandomSetupID() (string, error) {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	buf := make([]byte, setupIDLength)
	for i := range buf {
		idx, err := randomAlphabetIndex(len(alphabet))
		if err != nil {
			return "", fmt.Errorf("setupinfo: generating setup ID: %w", err)
		}
		buf[i] = alphabet[idx]
	}
	return string(buf), nil
}

func randomAlphabetIndex(n int) (int, error) {
	for {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		// Reject-and-retry to avoid modulo bias, same discipline
		// randomDigit uses for setup codes.
		if int(b[0]) < (256/n)*n {
			return int(b[0]) % n, nil
		}
	}
}
