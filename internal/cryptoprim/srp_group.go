package cryptoprim

import "math/big"

// srpGroupNHex is the RFC 5054 3072-bit MODP group's prime, the only
// SRP-6a group HAP supports (spec.md §4.1: "group N and g = 5 are fixed
// constants"). Grounded on original_source/HAP/HAPMbedTLS.c's SRP group
// setup, which selects this exact group with no alternative.
const srpGroupNHex = "" +
	"FFFFFFFFFFFFFFFFADF85458A2BB4A9AAFDC5620273D3CF1D8B9C583CE2D3695A9E13641146433FBCC939DCE2" +
	"49B3EF97D2FE363630C75D8F681B202AEC4617AD3DF1ED5D5FD65612433F51F5F066ED0856365553DED1AF3B5" +
	"57135E7F57C935984F0C70E0E68B77E2A689DAF3EFE8721DF158A136ADE73530ACCA4F483A797ABC0AB182B32" +
	"4FB61D108A94BB2C8E3FBB96ADAB760D7F4681D4F42A3DE394DF4AE56EDE76372BB190B07A7C8EE0A6D709E02" +
	"FCE1CDF7E2ECC03404CD28342F619172FE9CE98583FF8E4F1232EEF28183C3FE3B1B4C6FAD733BB5FCBC2EC22" +
	"05C58EF1837D1683B2C6F34A26C1B2EFFA886B423861285C97FFFFFFFFFFFFFFFF"

// srpGeneratorG is the SRP-6a generator, always 5 for HAP.
const srpGeneratorG = 5

// srpByteLen is the fixed byte length of N (3072 bits = 384 bytes),
// used to left-zero-pad every value the protocol hashes together.
const srpByteLen = 384

var (
	srpN *big.Int
	srpG *big.Int
	srpK *big.Int
)

func init() {
	n, ok := new(big.Int).SetString(srpGroupNHex, 16)
	if !ok {
		panic("cryptoprim: invalid SRP group constant")
	}
	srpN = n
	srpG = big.NewInt(srpGeneratorG)

	h := SHA512(append(padSRP(srpN.Bytes()), padSRP(srpG.Bytes())...))
	srpK = new(big.Int).Mod(new(big.Int).SetBytes(h[:]), srpN)
}

// padSRP left-zero-pads (or truncates from the left, which never
// happens for in-group values) b to srpByteLen.
func padSRP(b []byte) []byte {
	if len(b) >= srpByteLen {
		return b[len(b)-srpByteLen:]
	}
	out := make([]byte, srpByteLen)
	copy(out[srpByteLen-len(b):], b)
	return out
}
