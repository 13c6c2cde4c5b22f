package session

import (
	"container/list"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/hapcore/hap/internal/cryptoprim"
	"github.com/hapcore/hap/internal/pairing"
	"github.com/hapcore/hap/internal/tlv"
)

// Pair Verify's HKDF salt/info constants. "Pair-Verify-Encrypt-*" secure
// M2/M3's LTPK+signature exchange; "Control-*" derive the pair of
// session keys that secure everything after M4 (spec.md §4.6
// EXPANSION, "Control-Salt"/"Control-Write-Encryption-Key"/
// "Control-Read-Encryption-Key" taken from HAPPairing.c).
const (
	pairVerifyEncryptSalt = "Pair-Verify-Encrypt-Salt"
	pairVerifyEncryptInfo = "Pair-Verify-Encrypt-Info"

	controlSalt             = "Control-Salt"
	controlWriteEncryptInfo = "Control-Write-Encryption-Key"
	controlReadEncryptInfo  = "Control-Read-Encryption-Key"
)

// pairResumeCacheLimit bounds the embedded LRU (spec.md §4.6: "a small
// fixed-size LRU embedded in BLE storage").
const pairResumeCacheLimit = 8

// PairResumeCache remembers recently completed Pair Verify exchanges
// by session ID so a BLE controller can short-circuit a later Pair
// Verify without repeating the X25519/Ed25519 exchange. Entries for a
// removed pairing MUST be invalidated by the caller (internal/pairing's
// Remove/CleanupInvariant paths do not reach into this cache directly,
// to avoid a dependency from internal/pairing on internal/session).
type PairResumeCache struct {
	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

type pairResumeEntry struct {
	sessionID    string
	sharedSecret [32]byte
	pairingKey   int
	pairingID    []byte
}

// NewPairResumeCache returns an empty Pair Resume cache.
func NewPairResumeCache() *PairResumeCache {
	return &PairResumeCache{order: list.New(), entries: make(map[string]*list.Element)}
}

// Store records a completed Pair Verify under sessionID, evicting the
// least-recently-used entry once the cache is full.
func (c *PairResumeCache) Store(sessionID string, sharedSecret [32]byte, pairingKey int, pairingID []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[sessionID]; ok {
		c.order.Remove(el)
	}
	entry := &pairResumeEntry{sessionID: sessionID, sharedSecret: sharedSecret, pairingKey: pairingKey, pairingID: append([]byte(nil), pairingID...)}
	el := c.order.PushFront(entry)
	c.entries[sessionID] = el
	for c.order.Len() > pairResumeCacheLimit {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*pairResumeEntry).sessionID)
	}
}

// Fetch retrieves and invalidates a cached entry by session ID: per
// HAPPairingBLESessionCacheFetch, a resumed session ID is single-use
// and is removed from the cache the moment it is consumed.
func (c *PairResumeCache) Fetch(sessionID string) (sharedSecret [32]byte, pairingKey int, pairingID []byte, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[sessionID]
	if !ok {
		return sharedSecret, 0, nil, false
	}
	c.order.Remove(el)
	delete(c.entries, sessionID)
	entry := el.Value.(*pairResumeEntry)
	return entry.sharedSecret, entry.pairingKey, append([]byte(nil), entry.pairingID...), true
}

// InvalidatePairing removes every cached session established under the
// given pairing key, used when that pairing is removed or the
// admin-cleanup invariant purges the store.
func (c *PairResumeCache) InvalidatePairing(pairingKey int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sessionID, el := range c.entries {
		if el.Value.(*pairResumeEntry).pairingKey == pairingKey {
			c.order.Remove(el)
			delete(c.entries, sessionID)
		}
	}
}

// InvalidateAll empties the cache, used by the admin-cleanup invariant
// when the entire pairing domain is purged.
func (c *PairResumeCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = list.New()
	c.entries = make(map[string]*list.Element)
}

// PairVerify drives one session's Pair Verify exchange (spec.md §4.6):
// ephemeral X25519 key agreement, an Ed25519 signature proving
// possession of each side's long-term key, and the derivation of the
// two ChaCha20-Poly1305 keys that secure the session from M4 onward.
type PairVerify struct {
	identity AccessoryIdentity
	pairings *pairing.Store
	resume   *PairResumeCache

	state uint8
	done  bool

	accessoryPriv [32]byte
	accessoryPub  [32]byte
	controllerPub [32]byte
	sharedSecret  [32]byte
	encryptKey    [32]byte
	sessionID     [8]byte

	// ControllerToAccessoryKey and AccessoryToControllerKey are
	// populated once the exchange completes successfully; the caller
	// promotes them into the transport's AEAD context.
	ControllerToAccessoryKey [32]byte
	AccessoryToControllerKey [32]byte
	// PairingKey and PairingID identify the admin or regular pairing
	// this session authenticated as, populated on success.
	PairingKey int
	PairingID  []byte
	Verified   bool
}

// NewPairVerify creates a fresh Pair Verify state machine for one
// session attempt.
func NewPairVerify(identity AccessoryIdentity, pairings *pairing.Store, resume *PairResumeCache) *PairVerify {
	return &PairVerify{identity: identity, pairings: pairings, resume: resume}
}

// Done reports whether this exchange has reached a terminal state.
func (pv *PairVerify) Done() bool { return pv.done }

// Exchange processes one incoming TLV8 request and returns the TLV8
// response, following the same error-reporting convention as
// PairSetup.Exchange.
func (pv *PairVerify) Exchange(request []byte) ([]byte, error) {
	idx, err := tlv.NewIndexedReader(request)
	if err != nil {
		pv.done = true
		return nil, fmt.Errorf("session: malformed Pair Verify request: %w", err)
	}
	stateItem, ok := idx.Find(TLVState)
	if !ok {
		pv.done = true
		return nil, fmt.Errorf("session: Pair Verify request missing state")
	}
	state, err := tlv.DecodeUint8(stateItem, 1, 4)
	if err != nil {
		pv.done = true
		return nil, fmt.Errorf("session: Pair Verify request has invalid state: %w", err)
	}

	var resp *tlv.Writer
	switch state {
	case 1:
		resp, err = pv.handleM1(idx)
	case 3:
		resp, err = pv.handleM3(idx)
	default:
		pv.done = true
		return nil, fmt.Errorf("session: unexpected Pair Verify state M%d", state)
	}
	if err != nil {
		pv.done = true
		return nil, err
	}
	return resp.Bytes(), nil
}

func (pv *PairVerify) writeError(code ErrorCode) (*tlv.Writer, error) {
	pv.done = true
	w := tlv.NewWriter()
	if err := writeErrorTLV(w, 2, code); err != nil {
		return nil, err
	}
	return w, nil
}

func (pv *PairVerify) handleM1(idx *tlv.IndexedReader) (*tlv.Writer, error) {
	if sessionIDItem, ok := idx.Find(TLVSessionID); ok {
		return pv.handleResume(sessionIDItem.Value)
	}

	pkItem, ok := idx.Find(TLVPublicKey)
	if !ok {
		return nil, fmt.Errorf("session: Pair Verify M1 missing public key")
	}
	controllerPubBytes, err := tlv.DecodeData(pkItem, 32, 32)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Verify M1 invalid public key: %w", err)
	}
	copy(pv.controllerPub[:], controllerPubBytes)

	if _, err := rand.Read(pv.accessoryPriv[:]); err != nil {
		return nil, err
	}
	accessoryPub, err := cryptoprim.X25519ScalarBaseMult(pv.accessoryPriv)
	if err != nil {
		return nil, err
	}
	pv.accessoryPub = accessoryPub

	shared, err := cryptoprim.X25519ScalarMult(pv.accessoryPriv, pv.controllerPub)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Verify M1 degenerate controller public key: %w", err)
	}
	pv.sharedSecret = shared

	encKeyBytes, err := cryptoprim.HKDFSHA512(pv.sharedSecret[:], []byte(pairVerifyEncryptSalt), []byte(pairVerifyEncryptInfo), 32)
	if err != nil {
		return nil, err
	}
	copy(pv.encryptKey[:], encKeyBytes)

	if pv.resume != nil {
		if _, err := rand.Read(pv.sessionID[:]); err != nil {
			return nil, err
		}
	}

	accessoryInfo := append(append(append([]byte{}, pv.accessoryPub[:]...), []byte(pv.identity.ID)...), pv.controllerPub[:]...)
	var blind [128]byte
	if _, err := rand.Read(blind[:]); err != nil {
		return nil, err
	}
	sig, err := cryptoprim.Ed25519Sign(pv.identity.PrivateKey, pv.identity.PublicKey, accessoryInfo, blind)
	if err != nil {
		return nil, err
	}

	innerW := tlv.NewWriter()
	if err := tlv.EncodeString(innerW, TLVIdentifier, pv.identity.ID); err != nil {
		return nil, err
	}
	if err := tlv.EncodeData(innerW, TLVSignature, sig[:]); err != nil {
		return nil, err
	}
	encrypted, err := cryptoprim.SealWithNonce(pv.encryptKey, cryptoprim.FixedNonce("PV-Msg02"), innerW.Bytes(), nil)
	if err != nil {
		return nil, err
	}

	pv.state = 2
	w := tlv.NewWriter()
	if err := tlv.EncodeUint8(w, TLVState, 2); err != nil {
		return nil, err
	}
	if err := tlv.EncodeData(w, TLVPublicKey, pv.accessoryPub[:]); err != nil {
		return nil, err
	}
	if err := tlv.EncodeData(w, TLVEncryptedData, encrypted); err != nil {
		return nil, err
	}
	if pv.resume != nil {
		if err := tlv.EncodeData(w, TLVSessionID, pv.sessionID[:]); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (pv *PairVerify) handleM3(idx *tlv.IndexedReader) (*tlv.Writer, error) {
	if pv.state != 2 {
		return nil, fmt.Errorf("session: unexpected Pair Verify M3 in state M%d", pv.state)
	}
	encItem, ok := idx.Find(TLVEncryptedData)
	if !ok {
		return nil, fmt.Errorf("session: Pair Verify M3 missing encrypted data")
	}
	plaintext, err := cryptoprim.OpenWithNonce(pv.encryptKey, cryptoprim.FixedNonce("PV-Msg03"), encItem.Value, nil)
	if err != nil {
		return pv.writeError(ErrorAuthentication)
	}

	innerIdx, err := tlv.NewIndexedReader(plaintext)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Verify M3 malformed inner TLV: %w", err)
	}
	idItem, ok := innerIdx.Find(TLVIdentifier)
	if !ok {
		return nil, fmt.Errorf("session: Pair Verify M3 missing identifier")
	}
	identifier, err := tlv.DecodeData(idItem, 1, 36)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Verify M3 invalid identifier: %w", err)
	}
	sigItem, ok := innerIdx.Find(TLVSignature)
	if !ok {
		return nil, fmt.Errorf("session: Pair Verify M3 missing signature")
	}
	sigBytes, err := tlv.DecodeData(sigItem, 64, 64)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Verify M3 invalid signature: %w", err)
	}
	var signature [64]byte
	copy(signature[:], sigBytes)

	record, key, found, err := pv.pairings.Find(identifier)
	if err != nil {
		return nil, err
	}
	if !found {
		return pv.writeError(ErrorAuthentication)
	}

	controllerInfo := append(append(append([]byte{}, pv.controllerPub[:]...), identifier...), pv.accessoryPub[:]...)
	if !cryptoprim.Ed25519Verify(record.PublicKey, controllerInfo, signature) {
		return pv.writeError(ErrorAuthentication)
	}

	if err := pv.deriveSessionKeys(); err != nil {
		return nil, err
	}
	pv.PairingKey = key
	pv.PairingID = append([]byte(nil), identifier...)
	pv.Verified = true
	pv.done = true

	if pv.resume != nil {
		pv.resume.Store(string(pv.sessionID[:]), pv.sharedSecret, key, identifier)
	}

	w := tlv.NewWriter()
	if err := tlv.EncodeUint8(w, TLVState, 4); err != nil {
		return nil, err
	}
	return w, nil
}

func (pv *PairVerify) handleResume(sessionID []byte) (*tlv.Writer, error) {
	if pv.resume == nil {
		return pv.writeError(ErrorAuthentication)
	}
	shared, key, identifier, found := pv.resume.Fetch(string(sessionID))
	if !found {
		return pv.writeError(ErrorAuthentication)
	}
	pv.sharedSecret = shared
	if err := pv.deriveSessionKeys(); err != nil {
		return nil, err
	}
	pv.PairingKey = key
	pv.PairingID = identifier
	pv.Verified = true
	pv.done = true

	w := tlv.NewWriter()
	if err := tlv.EncodeUint8(w, TLVState, 2); err != nil {
		return nil, err
	}
	if err := tlv.EncodeData(w, TLVSessionID, sessionID); err != nil {
		return nil, err
	}
	return w, nil
}

func (pv *PairVerify) deriveSessionKeys() error {
	writeKey, err := cryptoprim.HKDFSHA512(pv.sharedSecret[:], []byte(controlSalt), []byte(controlWriteEncryptInfo), 32)
	if err != nil {
		return err
	}
	readKey, err := cryptoprim.HKDFSHA512(pv.sharedSecret[:], []byte(controlSalt), []byte(controlReadEncryptInfo), 32)
	if err != nil {
		return err
	}
	copy(pv.ControllerToAccessoryKey[:], writeKey)
	copy(pv.AccessoryToControllerKey[:], readKey)
	return nil
}
