package cryptoprim

import "crypto/subtle"

// ConstantTimeEqual reports whether a and b are equal, in time
// independent of their contents (but not their lengths). All compares
// over secrets (session keys, verifiers, tags, proofs) must go through
// this helper, never ==.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ConstantTimeZero reports whether every byte of b is zero, without
// branching on the result.
func ConstantTimeZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return subtle.ConstantTimeByteEq(acc, 0) == 1
}

// Zero overwrites b with zeros. Used to scrub ephemeral key material
// once a session has consumed it.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
