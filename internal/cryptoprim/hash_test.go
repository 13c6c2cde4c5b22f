package cryptoprim

import (
	"bytes"
	"testing"
)

func TestSHA1(t *testing.T) {
	got := SHA1([]byte("abc"))
	want := [20]byte{0xa9, 0x99, 0x3e, 0x36, 0x47, 0x06, 0x81, 0x6a, 0xba, 0x3e,
		0x25, 0x71, 0x78, 0x50, 0xc2, 0x6c, 0x9c, 0xd0, 0xd8, 0x9d}
	if got != want {
		t.Errorf("SHA1(abc) = %x, want %x", got, want)
	}
}

func TestSHA256(t *testing.T) {
	got := SHA256([]byte("abc"))
	want := [32]byte{
		0xba, 0x78, 0x16, 0xbf, 0x8f, 0x01, 0xcf, 0xea,
		0x41, 0x41, 0x40, 0xde, 0x5d, 0xae, 0x22, 0x23,
		0xb0, 0x03, 0x61, 0xa3, 0x96, 0x17, 0x7a, 0x9c,
		0xb4, 0x10, 0xff, 0x61, 0xf2, 0x00, 0x15, 0xad,
	}
	if got != want {
		t.Errorf("SHA256(abc) = %x, want %x", got, want)
	}
}

func TestSHA512Deterministic(t *testing.T) {
	a := SHA512([]byte("pair-setup"))
	b := SHA512([]byte("pair-setup"))
	if a != b {
		t.Error("SHA512 not deterministic")
	}
	c := SHA512([]byte("pair-verify"))
	if a == c {
		t.Error("SHA512 collided on different inputs")
	}
}

func TestHMACSHA1WithAAD(t *testing.T) {
	key := []byte("key")
	msg := []byte("message")

	plain := HMACSHA1WithAAD(key, msg, nil)
	withAAD := HMACSHA1WithAAD(key, msg, []byte("extra"))

	if bytes.Equal(plain[:], withAAD[:]) {
		t.Error("AAD did not change the MAC")
	}

	again := HMACSHA1WithAAD(key, msg, []byte("extra"))
	if withAAD != again {
		t.Error("HMACSHA1WithAAD not deterministic for identical inputs")
	}
}
