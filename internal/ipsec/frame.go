// Package ipsec implements the length-prefixed AEAD framing the IP
// transport layers under its HTTP request/response stream once a
// controller has completed Pair Verify. It is the IP transport's
// counterpart to internal/ble's per-PDU encryption: both sit on top of
// the same session.SecurityContext, but where BLE seals one PDU per
// procedure, ipsec seals a byte stream in fixed-size frames so an
// HTTP/1.1 request or response of arbitrary length can be carried over
// a connection-oriented transport.
package ipsec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// MaxFrameBytes is the largest plaintext chunk sealed into a single
// frame (kHAPIPSecurityProtocol_MaxFrameBytes upstream).
const MaxFrameBytes = 1024

// aadBytes is the width of the little-endian frame-length prefix, which
// doubles as the AEAD's associated data for that frame
// (kHAPIPSecurityProtocol_NumAADBytes upstream).
const aadBytes = 2

// tagBytes is the ChaCha20-Poly1305 authentication tag width appended
// to every frame's ciphertext.
const tagBytes = chacha20poly1305.Overhead

// ErrFrameTooLarge is returned when a received frame's declared length
// exceeds MaxFrameBytes.
var ErrFrameTooLarge = errors.New("ipsec: frame length exceeds MaxFrameBytes")

// sealer and opener are the two SecurityContext methods this package
// depends on, narrowed so tests can exercise the framing logic against
// a fake without reaching into internal/session.
type sealer interface {
	EncryptOutbound(plaintext, aad []byte) ([]byte, error)
}

type opener interface {
	DecryptInbound(ciphertextAndTag, aad []byte) ([]byte, error)
}

// EncryptFrames splits plaintext into MaxFrameBytes chunks and seals
// each one under ctx, returning the concatenated wire bytes: every
// frame is a 2-byte little-endian length prefix followed by that many
// ciphertext bytes plus a trailing tag. Mirrors
// HAPIPSecurityProtocolEncryptData's chunking loop, but builds the
// output rather than encrypting a buffer in place.
func EncryptFrames(ctx sealer, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}

	out := make([]byte, 0, len(plaintext)+((len(plaintext)/MaxFrameBytes)+1)*(aadBytes+tagBytes))
	for len(plaintext) > 0 {
		n := MaxFrameBytes
		if n > len(plaintext) {
			n = len(plaintext)
		}
		frame, err := encryptOneFrame(ctx, plaintext[:n])
		if err != nil {
			return nil, err
		}
		out = append(out, frame...)
		plaintext = plaintext[n:]
	}
	return out, nil
}

func encryptOneFrame(ctx sealer, chunk []byte) ([]byte, error) {
	var aad [aadBytes]byte
	binary.LittleEndian.PutUint16(aad[:], uint16(len(chunk)))

	ciphertext, err := ctx.EncryptOutbound(chunk, aad[:])
	if err != nil {
		return nil, fmt.Errorf("ipsec: encrypting frame: %w", err)
	}
	frame := make([]byte, 0, aadBytes+len(ciphertext))
	frame = append(frame, aad[:]...)
	frame = append(frame, ciphertext...)
	return frame, nil
}

// DecryptFrames decrypts every complete frame found at the front of
// raw, returning the concatenated plaintext, the number of raw bytes
// consumed, and any error. A trailing partial frame (not enough bytes
// yet to know its length, or not enough ciphertext yet for a declared
// length) is left unconsumed for the caller to top up and retry, the
// same accumulate-then-drain shape HAPIPSecurityProtocolDecryptData
// uses over its single in-place buffer.
func DecryptFrames(ctx opener, raw []byte) (plaintext []byte, consumed int, err error) {
	for {
		if len(raw)-consumed < aadBytes {
			return plaintext, consumed, nil
		}
		aad := raw[consumed : consumed+aadBytes]
		frameLen := int(binary.LittleEndian.Uint16(aad))
		if frameLen > MaxFrameBytes {
			return plaintext, consumed, ErrFrameTooLarge
		}
		frameTotal := aadBytes + frameLen + tagBytes
		if len(raw)-consumed < frameTotal {
			return plaintext, consumed, nil
		}

		ciphertext := raw[consumed+aadBytes : consumed+frameTotal]
		chunk, derr := ctx.DecryptInbound(ciphertext, aad)
		if derr != nil {
			return plaintext, consumed, fmt.Errorf("ipsec: decrypting frame: %w", derr)
		}
		plaintext = append(plaintext, chunk...)
		consumed += frameTotal
	}
}
