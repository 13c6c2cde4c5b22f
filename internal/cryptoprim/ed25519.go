package cryptoprim

import (
	"crypto/sha512"
	"errors"

	"filippo.io/edwards25519"
)

// Ed25519PrivateKeySize and Ed25519PublicKeySize are the fixed sizes
// the HAP core passes across its Ed25519 boundary (spec.md §4.1: 32-byte
// sk, 32-byte pk, 64-byte signature).
const (
	Ed25519PrivateKeySize = 32
	Ed25519PublicKeySize  = 32
	Ed25519SignatureSize  = 64
)

// blindedScalarBaseMult computes scalar*B by additively splitting scalar
// into two random shares derived from blind and combining the two
// partial base-point multiplications. This is the blinding the HAP PAL
// applies on every Ed25519 scalar-base-point multiplication (sign and
// keygen) to avoid leaking the secret scalar's bit pattern through a
// single multiplication's timing profile.
func blindedScalarBaseMult(scalar *edwards25519.Scalar, blind [64]byte) (*edwards25519.Point, error) {
	share1, err := edwards25519.NewScalar().SetUniformBytes(blind[:])
	if err != nil {
		return nil, err
	}
	share2 := edwards25519.NewScalar().Subtract(scalar, share1)

	p1 := edwards25519.NewIdentityPoint().ScalarBaseMult(share1)
	p2 := edwards25519.NewIdentityPoint().ScalarBaseMult(share2)
	return edwards25519.NewIdentityPoint().Add(p1, p2), nil
}

// clampedScalar applies the standard Ed25519 clamping to a 32-byte seed
// digest half, returning the resulting scalar.
func clampedScalar(b []byte) *edwards25519.Scalar {
	buf := make([]byte, 32)
	copy(buf, b[:32])
	return edwards25519.NewScalar().SetBytesWithClamping(buf)
}

// Ed25519KeyPair derives an Ed25519 key pair from a 32-byte seed, with
// the base-point multiplication blinded by a random 64-byte value. The
// caller MUST supply a fresh random blind for every call.
func Ed25519KeyPair(seed [32]byte, blind [64]byte) (priv [Ed25519PrivateKeySize]byte, pub [Ed25519PublicKeySize]byte, err error) {
	h := sha512.Sum512(seed[:])
	a := clampedScalar(h[:32])

	A, err := blindedScalarBaseMult(a, blind)
	if err != nil {
		return priv, pub, err
	}

	priv = seed
	copy(pub[:], A.Bytes())
	return priv, pub, nil
}

// Ed25519Sign signs msg with the private seed sk (whose public key is
// pk), blinding both base-point multiplications (the nonce commitment R
// and the identity check A) with independent portions of blind. blind
// MUST be 128 bytes: a fresh random value for R's blinding and a fresh
// random value for A's blinding, concatenated.
func Ed25519Sign(sk [Ed25519PrivateKeySize]byte, pk [Ed25519PublicKeySize]byte, msg []byte, blind [128]byte) ([Ed25519SignatureSize]byte, error) {
	var sig [Ed25519SignatureSize]byte

	h := sha512.Sum512(sk[:])
	a := clampedScalar(h[:32])
	prefix := h[32:]

	rh := sha512.New()
	rh.Write(prefix)
	rh.Write(msg)
	rDigest := rh.Sum(nil)
	r, err := edwards25519.NewScalar().SetUniformBytes(rDigest)
	if err != nil {
		return sig, err
	}

	var blindR, blindA [64]byte
	copy(blindR[:], blind[:64])
	copy(blindA[:], blind[64:])

	R, err := blindedScalarBaseMult(r, blindR)
	if err != nil {
		return sig, err
	}
	A, err := blindedScalarBaseMult(a, blindA)
	if err != nil {
		return sig, err
	}
	if !ConstantTimeEqual(A.Bytes(), pk[:]) {
		return sig, errors.New("cryptoprim: sk/pk mismatch")
	}

	kh := sha512.New()
	kh.Write(R.Bytes())
	kh.Write(pk[:])
	kh.Write(msg)
	kDigest := kh.Sum(nil)
	k, err := edwards25519.NewScalar().SetUniformBytes(kDigest)
	if err != nil {
		return sig, err
	}

	s := edwards25519.NewScalar().MultiplyAdd(k, a, r)

	copy(sig[:32], R.Bytes())
	copy(sig[32:], s.Bytes())
	return sig, nil
}

// Ed25519Verify reports whether sig is a valid signature over msg by
// the holder of pk.
func Ed25519Verify(pk [Ed25519PublicKeySize]byte, msg []byte, sig [Ed25519SignatureSize]byte) bool {
	A, err := edwards25519.NewIdentityPoint().SetBytes(pk[:])
	if err != nil {
		return false
	}
	R, err := edwards25519.NewIdentityPoint().SetBytes(sig[:32])
	if err != nil {
		return false
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(sig[32:])
	if err != nil {
		return false
	}

	kh := sha512.New()
	kh.Write(sig[:32])
	kh.Write(pk[:])
	kh.Write(msg)
	kDigest := kh.Sum(nil)
	k, err := edwards25519.NewScalar().SetUniformBytes(kDigest)
	if err != nil {
		return false
	}

	sB := edwards25519.NewIdentityPoint().ScalarBaseMult(s)
	kA := edwards25519.NewIdentityPoint().ScalarMult(k, A)
	rhs := edwards25519.NewIdentityPoint().Add(R, kA)

	return ConstantTimeEqual(sB.Bytes(), rhs.Bytes())
}
