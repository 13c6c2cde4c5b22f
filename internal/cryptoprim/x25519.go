package cryptoprim

import "golang.org/x/crypto/curve25519"

// X25519ScalarBaseMult computes scalar * basepoint, producing a public
// key from a private scalar.
func X25519ScalarBaseMult(scalar [32]byte) ([32]byte, error) {
	var out [32]byte
	dst, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return out, err
	}
	copy(out[:], dst)
	return out, nil
}

// X25519ScalarMult computes scalar * point, producing the ECDH shared
// secret between a private scalar and a peer's public point.
func X25519ScalarMult(scalar, point [32]byte) ([32]byte, error) {
	var out [32]byte
	dst, err := curve25519.X25519(scalar[:], point[:])
	if err != nil {
		return out, err
	}
	copy(out[:], dst)
	return out, nil
}
