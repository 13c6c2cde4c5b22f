package setupinfo

import (
	"strings"
	"testing"
)

// decodeBase36 reverses encodeBase36's digit placement: the encoded
// string is already most-significant-digit-first, so ordinary
// positional base-36 decoding recovers the packed value.
func decodeBase36(t *testing.T, s string) uint64 {
	t.Helper()
	var x uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'A' && c <= 'Z':
			d = uint64(c-'A') + 10
		default:
			t.Fatalf("unexpected base36 character %q", c)
		}
		x = x*36 + d
	}
	return x
}

func TestEncodePayloadShapeAndPrefix(t *testing.T) {
	payload, err := EncodePayload("111-22-333", "ABCD", Flags{IPSupported: true}, 5)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	if !strings.HasPrefix(payload, setupPayloadPrefix) {
		t.Fatalf("payload = %q, missing prefix %q", payload, setupPayloadPrefix)
	}
	if len(payload) != len(setupPayloadPrefix)+9+setupIDLength {
		t.Fatalf("payload length = %d, want %d", len(payload), len(setupPayloadPrefix)+9+setupIDLength)
	}
	if !strings.HasSuffix(payload, "ABCD") {
		t.Errorf("payload = %q, want suffix ABCD", payload)
	}
}

func TestEncodePayloadPacksCategoryFlagsAndCode(t *testing.T) {
	payload, err := EncodePayload("111-22-333", "WXYZ", Flags{BLESupported: true, IPSupported: true}, 5)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	digits := payload[len(setupPayloadPrefix) : len(setupPayloadPrefix)+9]
	x := decodeBase36(t, digits)

	category := (x >> 31) & 0xFF
	ble := (x >> 29) & 1
	ip := (x >> 28) & 1
	paired := (x >> 27) & 1
	code := x & 0x7FFFFFF

	if category != 5 {
		t.Errorf("category = %d, want 5", category)
	}
	if ble != 1 || ip != 1 || paired != 0 {
		t.Errorf("flags = ble=%d ip=%d paired=%d, want 1,1,0", ble, ip, paired)
	}
	if code != setupCodeDigits("111-22-333") {
		t.Errorf("code = %d, want %d", code, setupCodeDigits("111-22-333"))
	}
}

func TestEncodePayloadPairedOmitsSetupCode(t *testing.T) {
	payload, err := EncodePayload("", "ABCD", Flags{IPSupported: true, IsPaired: true}, 5)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	digits := payload[len(setupPayloadPrefix) : len(setupPayloadPrefix)+9]
	x := decodeBase36(t, digits)
	if (x>>27)&1 != 1 {
		t.Error("expected the paired bit to be set")
	}
	if x&0x7FFFFFF != 0 {
		t.Error("expected a zero setup code in a paired payload")
	}
}

func TestEncodePayloadRejectsPairedWithSetupCode(t *testing.T) {
	_, err := EncodePayload("111-22-333", "ABCD", Flags{IPSupported: true, IsPaired: true}, 5)
	if err == nil {
		t.Fatal("expected an error combining a setup code with IsPaired")
	}
}

func TestEncodePayloadRejectsInvalidSetupID(t *testing.T) {
	_, err := EncodePayload("111-22-333", "ab", Flags{IPSupported: true}, 5)
	if err == nil {
		t.Fatal("expected an error for a malformed setup ID")
	}
}

func TestEncodePayloadRejectsNoTransport(t *testing.T) {
	_, err := EncodePayload("111-22-333", "ABCD", Flags{}, 5)
	if err == nil {
		t.Fatal("expected an error when neither BLE nor IP is supported")
	}
}
