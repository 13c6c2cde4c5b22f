package cryptoprim

import (
	"errors"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/poly1305"
)

// nonceFromCounter builds a ChaCha20-Poly1305 nonce from a counter,
// zero-padding the high-order bytes as spec.md §4.1 requires ("1..12
// byte nonce, zero-padded high-order").
func nonceFromCounter(counter uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	// 4 zero bytes followed by the 8-byte little-endian counter, per
	// HAP's session-counter nonce convention (spec.md §4.10/§4.6).
	for i := 0; i < 8; i++ {
		nonce[4+i] = byte(counter >> (8 * i))
	}
	return nonce
}

// Seal encrypts plaintext with key under the nonce derived from counter,
// authenticating aad, and returns ciphertext||tag.
func Seal(key [32]byte, counter uint64, plaintext, aad []byte) ([]byte, error) {
	return SealWithNonce(key, nonceFromCounter(counter), plaintext, aad)
}

// Open decrypts ciphertextAndTag with key under the nonce derived from
// counter, verifying aad in constant time. It never succeeds without a
// matching tag.
func Open(key [32]byte, counter uint64, ciphertextAndTag, aad []byte) ([]byte, error) {
	return OpenWithNonce(key, nonceFromCounter(counter), ciphertextAndTag, aad)
}

// NonceSize is the fixed ChaCha20-Poly1305 nonce width.
const NonceSize = chacha20poly1305.NonceSize

// FixedNonce builds a 12-byte nonce from an 8-byte ASCII constant, the
// convention Pair Setup and Pair Verify use instead of a monotonic
// counter (e.g. "PS-Msg05", "PV-Msg03"): 4 zero bytes followed by the
// literal ASCII bytes, matching nonceFromCounter's little-endian
// counter placement for an 8-byte tag.
func FixedNonce(tag string) [NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[4:], []byte(tag))
	return nonce
}

// SealWithNonce encrypts plaintext with key under an explicit 12-byte
// nonce, authenticating aad, and returns ciphertext||tag.
func SealWithNonce(key [32]byte, nonce [NonceSize]byte, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// OpenWithNonce decrypts ciphertextAndTag with key under an explicit
// 12-byte nonce, verifying aad in constant time.
func OpenWithNonce(key [32]byte, nonce [NonceSize]byte, ciphertextAndTag, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce[:], ciphertextAndTag, aad)
}

// StreamingAEAD implements the Init/UpdateAAD/Update/Finalize contract
// spec.md §4.1 requires for BLE's fragmented encrypted procedures, where
// a request or response body arrives across multiple PDU continuation
// frames before the tag can be known. It mirrors the construction
// golang.org/x/crypto/chacha20poly1305 itself uses: the first ChaCha20
// block's keystream becomes the Poly1305 one-time key, encryption
// continues from block 1, and AAD/ciphertext are each padded to a
// 16-byte boundary before the trailing length fields are MAC'd.
//
// The Poly1305 MAC itself is computed once, at Finalize, over a
// buffered transcript built incrementally by UpdateAAD/Update — HAP's
// per-procedure bodies are bounded by a single GATT MTU's worth of
// fragments, so this is a small buffer in practice, not an unbounded one.
type StreamingAEAD struct {
	polyKey    [32]byte
	encrypt    bool
	cipher     *chacha20.Cipher
	transcript []byte
	aadLen     uint64
	cipherLen  uint64
	aadClosed  bool
	started    bool
}

// Init begins a new streaming AEAD operation. encrypt selects whether
// Update encrypts (true) or decrypts (false).
func (s *StreamingAEAD) Init(key [32]byte, counter uint64, encrypt bool) error {
	nonce := nonceFromCounter(counter)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return err
	}
	var polyKey [32]byte
	c.XORKeyStream(polyKey[:], polyKey[:])
	c.SetCounter(1) // skip the remaining 32 bytes of ChaCha20 block 0

	s.polyKey = polyKey
	s.encrypt = encrypt
	s.cipher = c
	s.transcript = s.transcript[:0]
	s.aadLen = 0
	s.cipherLen = 0
	s.aadClosed = false
	s.started = true
	return nil
}

// UpdateAAD feeds additional authenticated data into the MAC transcript.
// All calls to UpdateAAD MUST precede any call to Update.
func (s *StreamingAEAD) UpdateAAD(aad []byte) error {
	if !s.started {
		return errors.New("cryptoprim: StreamingAEAD not initialized")
	}
	if s.aadClosed {
		return errors.New("cryptoprim: UpdateAAD called after Update")
	}
	s.transcript = append(s.transcript, aad...)
	s.aadLen += uint64(len(aad))
	return nil
}

func (s *StreamingAEAD) closeAAD() {
	if s.aadClosed {
		return
	}
	if rem := s.aadLen % 16; rem != 0 {
		var pad [16]byte
		s.transcript = append(s.transcript, pad[:16-rem]...)
	}
	s.aadClosed = true
}

// Update consumes len(in) bytes, writing the same number of output
// bytes (ciphertext when encrypting, plaintext when decrypting) to out,
// and returns out[:len(in)]. out may alias in.
func (s *StreamingAEAD) Update(out, in []byte) ([]byte, error) {
	if !s.started {
		return nil, errors.New("cryptoprim: StreamingAEAD not initialized")
	}
	if len(out) < len(in) {
		return nil, errors.New("cryptoprim: output buffer too small")
	}
	s.closeAAD()
	if s.encrypt {
		s.cipher.XORKeyStream(out[:len(in)], in)
		s.transcript = append(s.transcript, out[:len(in)]...)
	} else {
		s.transcript = append(s.transcript, in...)
		s.cipher.XORKeyStream(out[:len(in)], in)
	}
	s.cipherLen += uint64(len(in))
	return out[:len(in)], nil
}

// Finalize completes the AEAD operation. When encrypting, pass nil for
// wantTag; the returned tag is appended to the ciphertext. When
// decrypting, pass the received tag in wantTag; ok reports whether it
// matched, via a constant-time compare.
func (s *StreamingAEAD) Finalize(wantTag []byte) (tag [16]byte, ok bool) {
	s.closeAAD()
	if rem := s.cipherLen % 16; rem != 0 {
		var pad [16]byte
		s.transcript = append(s.transcript, pad[:16-rem]...)
	}

	var lengths [16]byte
	putUint64LE(lengths[0:8], s.aadLen)
	putUint64LE(lengths[8:16], s.cipherLen)
	s.transcript = append(s.transcript, lengths[:]...)

	poly1305.Sum(&tag, s.transcript, &s.polyKey)
	s.started = false

	if wantTag == nil {
		return tag, true
	}
	return tag, ConstantTimeEqual(tag[:], wantTag)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
