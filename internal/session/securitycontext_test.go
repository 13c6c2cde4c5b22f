package session

import "testing"

func TestSecurityContextRoundTrip(t *testing.T) {
	var c2a, a2c [32]byte
	c2a[0] = 1
	a2c[0] = 2
	accessory := NewSecurityContext(c2a, a2c)
	controller := NewSecurityContext(a2c, c2a)

	aad := []byte{0x05, 0x00}
	ct, err := accessory.EncryptOutbound([]byte("hello"), aad)
	if err != nil {
		t.Fatalf("EncryptOutbound: %v", err)
	}
	pt, err := controller.DecryptInbound(ct, aad)
	if err != nil {
		t.Fatalf("DecryptInbound: %v", err)
	}
	if string(pt) != "hello" {
		t.Errorf("round-trip = %q, want %q", pt, "hello")
	}
}

func TestSecurityContextCounterAdvancesOnSuccessOnly(t *testing.T) {
	var c2a, a2c [32]byte
	c2a[0] = 9
	a2c[0] = 3
	accessory := NewSecurityContext(c2a, a2c)
	controller := NewSecurityContext(a2c, c2a)

	ct, err := accessory.EncryptOutbound([]byte("one"), nil)
	if err != nil {
		t.Fatalf("EncryptOutbound: %v", err)
	}
	// Corrupt the tag so decryption fails; the read counter must not
	// advance, so a correctly-sent retransmission at the same counter
	// still decrypts.
	corrupted := append([]byte(nil), ct...)
	corrupted[len(corrupted)-1] ^= 0xFF
	if _, err := controller.DecryptInbound(corrupted, nil); err == nil {
		t.Fatal("expected a tag mismatch on the corrupted frame")
	}
	if _, err := controller.DecryptInbound(ct, nil); err != nil {
		t.Fatalf("DecryptInbound after a failed attempt: %v", err)
	}
}
