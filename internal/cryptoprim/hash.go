// Package cryptoprim implements the fixed-contract crypto primitives the
// HAP core relies on: hashing, HKDF, PBKDF2, Ed25519 with blinding,
// X25519, ChaCha20-Poly1305 (one-shot and streaming), SRP-6a, and
// constant-time helpers. Every function here is deterministic and
// side-effect-free except where it must read crypto/rand.
package cryptoprim

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
)

// SHA1 returns the 20-byte SHA-1 digest of data.
func SHA1(data []byte) [20]byte {
	return sha1.Sum(data)
}

// SHA256 returns the 32-byte SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// SHA512 returns the 64-byte SHA-512 digest of data.
func SHA512(data []byte) [64]byte {
	return sha512.Sum512(data)
}

// HMACSHA1WithAAD computes HMAC-SHA1(key, msg || aad). HAP's SRP proof
// construction appends additional authenticated data after the message
// before MAC-ing; when aad is empty this is plain HMAC-SHA1(key, msg).
func HMACSHA1WithAAD(key, msg, aad []byte) [20]byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(msg)
	mac.Write(aad)
	var out [20]byte
	copy(out[:], mac.Sum(nil))
	return out
}
