package session

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/hapcore/hap/internal/cryptoprim"
	"github.com/hapcore/hap/internal/pairing"
	"github.com/hapcore/hap/internal/platform"
	"github.com/hapcore/hap/internal/tlv"
)

// Pair Setup's HKDF salt/info constants (spec.md §4.5). Not present in
// the trimmed original_source pack (HAPPairing.c/.h only carry TLV/
// method/error numbering); these are the literal constants the public
// HomeKit Accessory Protocol Specification defines for this exchange.
const (
	pairSetupEncryptSalt = "Pair-Setup-Encrypt-Salt"
	pairSetupEncryptInfo = "Pair-Setup-Encrypt-Info"

	pairSetupControllerSignSalt = "Pair-Setup-Controller-Sign-Salt"
	pairSetupControllerSignInfo = "Pair-Setup-Controller-Sign-Info"

	pairSetupAccessorySignSalt = "Pair-Setup-Accessory-Sign-Salt"
	pairSetupAccessorySignInfo = "Pair-Setup-Accessory-Sign-Info"
)

// maxSetupCodeAttempts is HAP's MaxTries: after this many bad proofs in
// a row, the accessory refuses further Pair Setup until restart
// (spec.md §4.5).
const maxSetupCodeAttempts = 3

// AccessoryIdentity is the accessory's own long-term Ed25519 identity,
// exchanged in M6 and in Pair Verify.
type AccessoryIdentity struct {
	ID         string
	PrivateKey [32]byte // Ed25519 seed
	PublicKey  [32]byte
}

// SetupCodeProvider supplies the setup code currently displayed/active
// on the accessory. It may rotate the code between Pair Setup attempts.
type SetupCodeProvider interface {
	CurrentSetupCode() (string, error)
}

// PairSetupCoordinator serializes Pair Setup attempts across every
// session on an accessory server: only one may be in progress at a
// time (spec.md §4.5: "a concurrent Pair Setup in a different session
// yields Busy"), and MaxTries is a server-wide counter reset only by a
// restart.
type PairSetupCoordinator struct {
	active      bool
	badAttempts int
	locked      bool
}

// TryAcquire reserves the shared Pair Setup slot for one session,
// reporting false if another session already holds it or the server
// has exceeded MaxTries.
func (c *PairSetupCoordinator) TryAcquire() bool {
	if c.locked || c.active {
		return false
	}
	c.active = true
	return true
}

// Release frees the shared Pair Setup slot.
func (c *PairSetupCoordinator) Release() { c.active = false }

// RecordFailure increments the bad-attempt counter, locking out all
// further Pair Setup attempts once maxSetupCodeAttempts is reached.
func (c *PairSetupCoordinator) RecordFailure() {
	c.badAttempts++
	if c.badAttempts >= maxSetupCodeAttempts {
		c.locked = true
	}
}

// RecordSuccess clears the bad-attempt counter on a successful pairing.
func (c *PairSetupCoordinator) RecordSuccess() { c.badAttempts = 0 }

// Locked reports whether MaxTries has been exceeded.
func (c *PairSetupCoordinator) Locked() bool { return c.locked }

// PairSetup drives one session's Pair Setup exchange (spec.md §4.5):
// M1..M6 if a long-term pairing is being established, or M1..M4 for
// the transient variant. One PairSetup is created per session attempt
// and discarded once it reaches a terminal state.
type PairSetup struct {
	identity   AccessoryIdentity
	setupCodes SetupCodeProvider
	pairings   *pairing.Store
	coord      *PairSetupCoordinator

	state        uint8
	method       Method
	transient    bool
	acquiredSlot bool
	pendingError ErrorCode

	salt     [16]byte
	verifier [cryptoprim.SRPVerifierSize]byte
	b        *big.Int
	bPub     [cryptoprim.SRPVerifierSize]byte
	clientA  [cryptoprim.SRPVerifierSize]byte
	sessionK [64]byte

	done bool

	// SessionKey is populated once the exchange reaches M4: the
	// Pair-Setup-Encrypt-derived key securing M5/M6, and also (for the
	// transient variant, which never reaches M5/M6) the final session
	// key the caller promotes into the transport's AEAD context.
	SessionKey [32]byte
	// Paired reports whether this exchange produced a new admin
	// pairing (set once Exchange returns after M6).
	Paired bool
	// TransientVerified reports whether this exchange completed the
	// transient variant successfully (M4 with FlagTransient set),
	// meaning SessionKey is now a verified session key the caller
	// should adopt directly, bypassing Pair Verify.
	TransientVerified bool
	// ControllerIdentifier and ControllerPublicKey are populated once
	// Paired is true.
	ControllerIdentifier []byte
	ControllerPublicKey  [32]byte
}

// NewPairSetup creates a fresh Pair Setup state machine for one
// session attempt. It does not reserve the shared coordinator slot
// until M1 is processed.
func NewPairSetup(identity AccessoryIdentity, setupCodes SetupCodeProvider, pairings *pairing.Store, coord *PairSetupCoordinator) *PairSetup {
	return &PairSetup{identity: identity, setupCodes: setupCodes, pairings: pairings, coord: coord}
}

// Done reports whether this exchange has reached a terminal state
// (success or unrecoverable error) and should be discarded.
func (ps *PairSetup) Done() bool { return ps.done }

// Release returns the shared coordinator slot this exchange may be
// holding. Safe to call multiple times.
func (ps *PairSetup) Release() {
	if ps.acquiredSlot {
		ps.coord.Release()
		ps.acquiredSlot = false
	}
}

// Exchange processes one incoming TLV8 request and returns the TLV8
// response. A non-nil error is only returned for conditions the caller
// must treat as fatal to the underlying connection (malformed wire
// data, persistent-store I/O failure); protocol-level failures (bad
// proof, busy, max peers) are reported as a TLVError entry in the
// returned response, per spec.md §4.5/§9.
func (ps *PairSetup) Exchange(request []byte) ([]byte, error) {
	idx, err := tlv.NewIndexedReader(request)
	if err != nil {
		ps.done = true
		return nil, fmt.Errorf("session: malformed Pair Setup request: %w", err)
	}

	stateItem, ok := idx.Find(TLVState)
	if !ok {
		ps.done = true
		return nil, fmt.Errorf("session: Pair Setup request missing state")
	}
	state, err := tlv.DecodeUint8(stateItem, 1, 6)
	if err != nil {
		ps.done = true
		return nil, fmt.Errorf("session: Pair Setup request has invalid state: %w", err)
	}

	var resp *tlv.Writer
	switch state {
	case 1:
		resp, err = ps.handleM1(idx)
	case 3:
		resp, err = ps.handleM3(idx)
	case 5:
		resp, err = ps.handleM5(idx)
	default:
		ps.done = true
		return nil, fmt.Errorf("session: unexpected Pair Setup state M%d", state)
	}
	if err != nil {
		ps.done = true
		ps.Release()
		return nil, err
	}
	return resp.Bytes(), nil
}

func (ps *PairSetup) writeErrorAndRelease(respState uint8, code ErrorCode) (*tlv.Writer, error) {
	ps.pendingError = code
	ps.done = true
	ps.Release()
	w := tlv.NewWriter()
	if err := writeErrorTLV(w, respState, code); err != nil {
		return nil, err
	}
	return w, nil
}

func (ps *PairSetup) handleM1(idx *tlv.IndexedReader) (*tlv.Writer, error) {
	methodItem, ok := idx.Find(TLVMethod)
	if !ok {
		return nil, fmt.Errorf("session: Pair Setup M1 missing method")
	}
	methodByte, err := tlv.DecodeUint8(methodItem, 0, 255)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Setup M1 invalid method: %w", err)
	}
	if !isValidMethod(methodByte) {
		return nil, fmt.Errorf("session: Pair Setup M1 unknown method %d", methodByte)
	}
	method := Method(methodByte)
	if method != MethodPairSetup && method != MethodPairSetupWithAuth {
		return nil, fmt.Errorf("session: Pair Setup M1 unexpected method %d", methodByte)
	}
	ps.method = method

	var flags uint32
	if flagsItem, ok := idx.Find(TLVFlags); ok {
		f, err := tlv.DecodeUint32(flagsItem, 0, 0xFFFFFFFF)
		if err != nil {
			return nil, fmt.Errorf("session: Pair Setup M1 invalid flags: %w", err)
		}
		flags = f
	}
	ps.transient = flags&FlagTransient != 0

	if !ps.coord.TryAcquire() {
		if ps.coord.Locked() {
			return ps.writeErrorAndRelease(2, ErrorMaxTries)
		}
		return ps.writeErrorAndRelease(2, ErrorBusy)
	}
	ps.acquiredSlot = true

	if !ps.transient {
		hasAdmin, err := ps.pairings.HasAdmin()
		if err != nil {
			ps.Release()
			return nil, err
		}
		if hasAdmin {
			return ps.writeErrorAndRelease(2, ErrorUnavailable)
		}
	}

	code, err := ps.setupCodes.CurrentSetupCode()
	if err != nil {
		ps.Release()
		return nil, fmt.Errorf("session: could not read current setup code: %w", err)
	}

	if _, err := rand.Read(ps.salt[:]); err != nil {
		ps.Release()
		return nil, err
	}
	ps.verifier = cryptoprim.SRPGenerateVerifier(ps.salt[:], []byte(code))

	b, B, err := cryptoprim.SRPServerKeyPair(ps.verifier)
	if err != nil {
		ps.Release()
		return nil, err
	}
	ps.b = b
	ps.bPub = B
	ps.state = 2

	w := tlv.NewWriter()
	if err := tlv.EncodeUint8(w, TLVState, 2); err != nil {
		return nil, err
	}
	if err := tlv.EncodeData(w, TLVPublicKey, ps.bPub[:]); err != nil {
		return nil, err
	}
	if err := tlv.EncodeData(w, TLVSalt, ps.salt[:]); err != nil {
		return nil, err
	}
	return w, nil
}

func (ps *PairSetup) handleM3(idx *tlv.IndexedReader) (*tlv.Writer, error) {
	if ps.state != 2 {
		return nil, fmt.Errorf("session: unexpected Pair Setup M3 in state M%d", ps.state)
	}

	pkItem, ok := idx.Find(TLVPublicKey)
	if !ok {
		return nil, fmt.Errorf("session: Pair Setup M3 missing public key")
	}
	A, err := tlv.DecodeData(pkItem, cryptoprim.SRPVerifierSize, cryptoprim.SRPVerifierSize)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Setup M3 invalid public key: %w", err)
	}
	copy(ps.clientA[:], A)

	proofItem, ok := idx.Find(TLVProof)
	if !ok {
		return nil, fmt.Errorf("session: Pair Setup M3 missing proof")
	}
	clientProof, err := tlv.DecodeData(proofItem, 64, 64)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Setup M3 invalid proof: %w", err)
	}

	u := cryptoprim.SRPScramblingParameter(ps.clientA, ps.bPub)
	premaster, err := cryptoprim.SRPServerPremasterSecret(ps.clientA, ps.verifier, ps.b, u)
	if err != nil {
		// Degenerate client public key: treat as an authentication
		// failure rather than a fatal error, same class of bad-proof
		// outcome as a mismatched M1.
		ps.coord.RecordFailure()
		return ps.writeErrorAndRelease(4, ErrorAuthentication)
	}
	ps.sessionK = cryptoprim.SRPSessionKey(premaster)

	expectedM1 := cryptoprim.SRPClientProof(ps.clientA, ps.bPub, ps.salt[:], ps.sessionK)
	if !cryptoprim.ConstantTimeEqual(expectedM1[:], clientProof) {
		ps.coord.RecordFailure()
		return ps.writeErrorAndRelease(4, ErrorAuthentication)
	}

	var expectedM1Arr [64]byte
	copy(expectedM1Arr[:], expectedM1[:])
	serverProof := cryptoprim.SRPServerProof(ps.clientA, expectedM1Arr, ps.sessionK)

	encKey, err := cryptoprim.HKDFSHA512(ps.sessionK[:], []byte(pairSetupEncryptSalt), []byte(pairSetupEncryptInfo), 32)
	if err != nil {
		ps.Release()
		return nil, err
	}
	copy(ps.SessionKey[:], encKey)

	ps.state = 4
	w := tlv.NewWriter()
	if err := tlv.EncodeUint8(w, TLVState, 4); err != nil {
		return nil, err
	}
	if err := tlv.EncodeData(w, TLVProof, serverProof[:]); err != nil {
		return nil, err
	}

	if ps.transient {
		// Transient Pair Setup terminates here: no LTPK exchange, the
		// derived SessionKey becomes the caller's transport key
		// directly (spec.md §4.5: "Transient variant terminates after
		// M4 without LTPK exchange").
		ps.done = true
		ps.TransientVerified = true
		ps.coord.RecordSuccess()
		ps.Release()
	}
	return w, nil
}

func (ps *PairSetup) handleM5(idx *tlv.IndexedReader) (*tlv.Writer, error) {
	if ps.state != 4 || ps.transient {
		return nil, fmt.Errorf("session: unexpected Pair Setup M5 in state M%d", ps.state)
	}

	encItem, ok := idx.Find(TLVEncryptedData)
	if !ok {
		return nil, fmt.Errorf("session: Pair Setup M5 missing encrypted data")
	}
	if len(encItem.Value) < 16 {
		return nil, fmt.Errorf("session: Pair Setup M5 encrypted data too short")
	}
	ciphertext := encItem.Value

	plaintext, err := cryptoprim.OpenWithNonce(ps.SessionKey, cryptoprim.FixedNonce("PS-Msg05"), ciphertext, nil)
	if err != nil {
		ps.coord.RecordFailure()
		return ps.writeErrorAndRelease(6, ErrorAuthentication)
	}

	innerIdx, err := tlv.NewIndexedReader(plaintext)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Setup M5 malformed inner TLV: %w", err)
	}
	idItem, ok := innerIdx.Find(TLVIdentifier)
	if !ok {
		return nil, fmt.Errorf("session: Pair Setup M5 missing identifier")
	}
	identifier, err := tlv.DecodeData(idItem, 1, 36)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Setup M5 invalid identifier: %w", err)
	}
	ltpkItem, ok := innerIdx.Find(TLVPublicKey)
	if !ok {
		return nil, fmt.Errorf("session: Pair Setup M5 missing public key")
	}
	ltpkBytes, err := tlv.DecodeData(ltpkItem, 32, 32)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Setup M5 invalid public key: %w", err)
	}
	var controllerLTPK [32]byte
	copy(controllerLTPK[:], ltpkBytes)

	sigItem, ok := innerIdx.Find(TLVSignature)
	if !ok {
		return nil, fmt.Errorf("session: Pair Setup M5 missing signature")
	}
	sigBytes, err := tlv.DecodeData(sigItem, 64, 64)
	if err != nil {
		return nil, fmt.Errorf("session: Pair Setup M5 invalid signature: %w", err)
	}
	var signature [64]byte
	copy(signature[:], sigBytes)

	iOSDeviceX, err := cryptoprim.HKDFSHA512(ps.sessionK[:], []byte(pairSetupControllerSignSalt), []byte(pairSetupControllerSignInfo), 32)
	if err != nil {
		return nil, err
	}
	info := append(append(append([]byte{}, iOSDeviceX...), identifier...), controllerLTPK[:]...)
	if !cryptoprim.Ed25519Verify(controllerLTPK, info, signature) {
		ps.coord.RecordFailure()
		return ps.writeErrorAndRelease(6, ErrorAuthentication)
	}

	_, err = ps.pairings.Insert(pairing.Pairing{
		Identifier:  append([]byte(nil), identifier...),
		PublicKey:   controllerLTPK,
		Permissions: pairing.PermissionAdmin,
	})
	if err != nil {
		if platform.KindOf(err) == platform.ErrOutOfResources {
			return ps.writeErrorAndRelease(6, ErrorMaxPeers)
		}
		return nil, err
	}

	accessoryX, err := cryptoprim.HKDFSHA512(ps.sessionK[:], []byte(pairSetupAccessorySignSalt), []byte(pairSetupAccessorySignInfo), 32)
	if err != nil {
		return nil, err
	}
	accessoryInfo := append(append(append([]byte{}, accessoryX...), []byte(ps.identity.ID)...), ps.identity.PublicKey[:]...)

	var blind [128]byte
	if _, err := rand.Read(blind[:]); err != nil {
		return nil, err
	}
	accessorySig, err := cryptoprim.Ed25519Sign(ps.identity.PrivateKey, ps.identity.PublicKey, accessoryInfo, blind)
	if err != nil {
		return nil, err
	}

	innerW := tlv.NewWriter()
	if err := tlv.EncodeString(innerW, TLVIdentifier, ps.identity.ID); err != nil {
		return nil, err
	}
	if err := tlv.EncodeData(innerW, TLVPublicKey, ps.identity.PublicKey[:]); err != nil {
		return nil, err
	}
	if err := tlv.EncodeData(innerW, TLVSignature, accessorySig[:]); err != nil {
		return nil, err
	}

	encrypted, err := cryptoprim.SealWithNonce(ps.SessionKey, cryptoprim.FixedNonce("PS-Msg06"), innerW.Bytes(), nil)
	if err != nil {
		return nil, err
	}

	w := tlv.NewWriter()
	if err := tlv.EncodeUint8(w, TLVState, 6); err != nil {
		return nil, err
	}
	if err := tlv.EncodeData(w, TLVEncryptedData, encrypted); err != nil {
		return nil, err
	}

	ps.done = true
	ps.Paired = true
	ps.ControllerIdentifier = append([]byte(nil), identifier...)
	ps.ControllerPublicKey = controllerLTPK
	ps.coord.RecordSuccess()
	ps.Release()
	return w, nil
}
