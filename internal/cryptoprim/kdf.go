package cryptoprim

import (
	"crypto/sha1"
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// HKDFSHA512 derives length bytes from key/salt/info using HKDF-SHA512.
func HKDFSHA512(key, salt, info []byte, length int) ([]byte, error) {
	r := hkdf.New(sha512.New, key, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PBKDF2HMACSHA1 derives length bytes from password/salt using
// PBKDF2-HMAC-SHA1 with the given iteration count.
func PBKDF2HMACSHA1(password, salt []byte, iterations, length int) []byte {
	return pbkdf2.Key(password, salt, iterations, length, sha1.New)
}
