package session

import "github.com/hapcore/hap/internal/cryptoprim"

// SecurityContext is the pair of ChaCha20-Poly1305 keys and per-direction
// monotonic counters a verified session uses to encrypt/decrypt traffic
// (spec.md §3: "a security context once established: two
// ChaCha20-Poly1305 keys with 64-bit monotonic counters ... and the
// nonce derived from the counter"). Both internal/ble (per-PDU framing)
// and internal/ipsec (length-prefixed HTTP framing) encrypt over the
// same construction; this type holds the part common to both.
type SecurityContext struct {
	controllerToAccessoryKey [32]byte
	accessoryToControllerKey [32]byte
	readCounter              uint64
	writeCounter             uint64
}

// NewSecurityContext wraps the two directional keys a verified Session
// produced, starting both counters at 0.
func NewSecurityContext(controllerToAccessoryKey, accessoryToControllerKey [32]byte) *SecurityContext {
	return &SecurityContext{
		controllerToAccessoryKey: controllerToAccessoryKey,
		accessoryToControllerKey: accessoryToControllerKey,
	}
}

// EncryptOutbound seals plaintext under the accessory-to-controller key
// and the next write counter, advancing it afterward.
func (c *SecurityContext) EncryptOutbound(plaintext, aad []byte) ([]byte, error) {
	ct, err := cryptoprim.Seal(c.accessoryToControllerKey, c.writeCounter, plaintext, aad)
	if err != nil {
		return nil, err
	}
	c.writeCounter++
	return ct, nil
}

// DecryptInbound opens ciphertextAndTag under the controller-to-accessory
// key and the next read counter, advancing it only on success (a failed
// decryption must not desynchronize the counter from a retried frame).
func (c *SecurityContext) DecryptInbound(ciphertextAndTag, aad []byte) ([]byte, error) {
	pt, err := cryptoprim.Open(c.controllerToAccessoryKey, c.readCounter, ciphertextAndTag, aad)
	if err != nil {
		return nil, err
	}
	c.readCounter++
	return pt, nil
}
