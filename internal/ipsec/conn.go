package ipsec

import (
	"io"

	"github.com/hapcore/hap/internal/session"
)

// Conn wraps an underlying byte stream (a TCP connection, typically)
// with the frame encryption from frame.go, presenting the decrypted
// HTTP bytes to platform.IPServerEngine as a plain io.ReadWriter. One
// Conn is created per accessory-server IP session once Pair Verify
// establishes a session.SecurityContext.
type Conn struct {
	rw  io.ReadWriter
	ctx *session.SecurityContext

	raw     []byte // ciphertext bytes read but not yet decrypted
	plain   []byte // decrypted bytes not yet returned by Read
	readBuf [4096]byte
}

// NewConn returns a Conn that encrypts writes and decrypts reads over
// rw using ctx.
func NewConn(rw io.ReadWriter, ctx *session.SecurityContext) *Conn {
	return &Conn{rw: rw, ctx: ctx}
}

// Read returns decrypted HTTP bytes, pulling and decrypting more
// frames from the underlying stream as needed.
func (c *Conn) Read(p []byte) (int, error) {
	for len(c.plain) == 0 {
		n, err := c.rw.Read(c.readBuf[:])
		if n > 0 {
			c.raw = append(c.raw, c.readBuf[:n]...)
			decoded, consumed, derr := DecryptFrames(c.ctx, c.raw)
			if derr != nil {
				return 0, derr
			}
			c.raw = c.raw[consumed:]
			c.plain = append(c.plain, decoded...)
		}
		if err != nil {
			if len(c.plain) > 0 {
				break
			}
			return 0, err
		}
	}
	n := copy(p, c.plain)
	c.plain = c.plain[n:]
	return n, nil
}

// Write seals p into one or more frames and writes them to the
// underlying stream.
func (c *Conn) Write(p []byte) (int, error) {
	frames, err := EncryptFrames(c.ctx, p)
	if err != nil {
		return 0, err
	}
	if _, err := c.rw.Write(frames); err != nil {
		return 0, err
	}
	return len(p), nil
}
