package ipsec

import (
	"bytes"
	"errors"
	"testing"
)

// loopbackContext is a fake sealer/opener pair that XORs with a fixed
// byte and appends a fixed tag, so tests can exercise frame.go's
// chunking/parsing logic without pulling in the real AEAD construction.
type loopbackContext struct {
	sealErr error
	openErr error
}

func (c *loopbackContext) EncryptOutbound(plaintext, aad []byte) ([]byte, error) {
	if c.sealErr != nil {
		return nil, c.sealErr
	}
	out := make([]byte, len(plaintext)+tagBytes)
	for i, b := range plaintext {
		out[i] = b ^ 0xA5
	}
	copy(out[len(plaintext):], bytes.Repeat([]byte{0xFF}, tagBytes))
	return out, nil
}

func (c *loopbackContext) DecryptInbound(ciphertextAndTag, aad []byte) ([]byte, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	if len(ciphertextAndTag) < tagBytes {
		return nil, errors.New("ipsec: frame shorter than tag")
	}
	ciphertext := ciphertextAndTag[:len(ciphertextAndTag)-tagBytes]
	out := make([]byte, len(ciphertext))
	for i, b := range ciphertext {
		out[i] = b ^ 0xA5
	}
	return out, nil
}

func TestEncryptFramesEmptyPlaintextProducesNoFrames(t *testing.T) {
	ctx := &loopbackContext{}
	frames, err := EncryptFrames(ctx, nil)
	if err != nil {
		t.Fatalf("EncryptFrames: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("frames = %x, want empty", frames)
	}
}

func TestEncryptDecryptFramesRoundTrip(t *testing.T) {
	ctx := &loopbackContext{}
	plaintext := []byte("GET /accessories HTTP/1.1\r\n\r\n")

	frames, err := EncryptFrames(ctx, plaintext)
	if err != nil {
		t.Fatalf("EncryptFrames: %v", err)
	}

	decoded, consumed, err := DecryptFrames(ctx, frames)
	if err != nil {
		t.Fatalf("DecryptFrames: %v", err)
	}
	if consumed != len(frames) {
		t.Errorf("consumed = %d, want %d (every frame)", consumed, len(frames))
	}
	if !bytes.Equal(decoded, plaintext) {
		t.Errorf("decoded = %q, want %q", decoded, plaintext)
	}
}

func TestEncryptFramesSplitsAtMaxFrameBytes(t *testing.T) {
	ctx := &loopbackContext{}
	plaintext := bytes.Repeat([]byte{0x42}, MaxFrameBytes+100)

	frames, err := EncryptFrames(ctx, plaintext)
	if err != nil {
		t.Fatalf("EncryptFrames: %v", err)
	}

	decoded, consumed, err := DecryptFrames(ctx, frames)
	if err != nil {
		t.Fatalf("DecryptFrames: %v", err)
	}
	if consumed != len(frames) {
		t.Errorf("consumed = %d, want %d", consumed, len(frames))
	}
	if !bytes.Equal(decoded, plaintext) {
		t.Error("decoded plaintext does not match original across a frame split")
	}

	wantFrames := 2 // 1024 + 100 bytes needs two frames
	gotFrames := 0
	offset := 0
	for offset < len(frames) {
		frameLen := int(frames[offset]) | int(frames[offset+1])<<8
		offset += aadBytes + frameLen + tagBytes
		gotFrames++
	}
	if gotFrames != wantFrames {
		t.Errorf("frame count = %d, want %d", gotFrames, wantFrames)
	}
}

func TestDecryptFramesWaitsForPartialFrame(t *testing.T) {
	ctx := &loopbackContext{}
	plaintext := []byte("hello, HAP")
	frames, err := EncryptFrames(ctx, plaintext)
	if err != nil {
		t.Fatalf("EncryptFrames: %v", err)
	}

	partial := frames[:len(frames)-1]
	decoded, consumed, err := DecryptFrames(ctx, partial)
	if err != nil {
		t.Fatalf("DecryptFrames(partial): %v", err)
	}
	if consumed != 0 || len(decoded) != 0 {
		t.Fatalf("DecryptFrames(partial) = %q, %d, want nothing consumed yet", decoded, consumed)
	}

	decoded, consumed, err = DecryptFrames(ctx, frames)
	if err != nil {
		t.Fatalf("DecryptFrames(full): %v", err)
	}
	if consumed != len(frames) || !bytes.Equal(decoded, plaintext) {
		t.Errorf("DecryptFrames(full) = %q, %d, want %q, %d", decoded, consumed, plaintext, len(frames))
	}
}

func TestDecryptFramesRejectsOversizedFrame(t *testing.T) {
	ctx := &loopbackContext{}
	raw := make([]byte, aadBytes+tagBytes)
	raw[0] = 0xFF
	raw[1] = 0xFF // declares a 65535-byte frame, far past MaxFrameBytes

	_, _, err := DecryptFrames(ctx, raw)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("DecryptFrames = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecryptFramesPropagatesAuthenticationFailure(t *testing.T) {
	ctx := &loopbackContext{}
	plaintext := []byte("tampered")
	frames, err := EncryptFrames(ctx, plaintext)
	if err != nil {
		t.Fatalf("EncryptFrames: %v", err)
	}

	ctx.openErr = errors.New("authentication failed")
	if _, _, err := DecryptFrames(ctx, frames); err == nil {
		t.Fatal("expected DecryptFrames to surface the authentication error")
	}
}
