package setupinfo

import "github.com/hapcore/hap/internal/cryptoprim"

// HashSize is the advertised setup hash width (4 bytes, carried in the
// mDNS "sh" TXT record and BLE manufacturer data).
const HashSize = 4

// ComputeHash returns truncate(SHA-512(setupID || deviceID), HashSize),
// the value a controller compares against its own computation to tell
// which nearby accessory a scanned setup payload refers to. Grounded on
// HAPAccessorySetupGetSetupHash.
func ComputeHash(setupID, deviceID string) [HashSize]byte {
	digest := cryptoprim.SHA512(append([]byte(setupID), deviceID...))
	var out [HashSize]byte
	copy(out[:], digest[:HashSize])
	return out
}
