package session

import (
	"fmt"

	"github.com/hapcore/hap/internal/pairing"
	"github.com/hapcore/hap/internal/platform"
	"github.com/hapcore/hap/internal/tlv"
)

// PairingsState tracks the one outstanding Add/Remove/List Pairings
// sub-procedure on a secured session: HAPPairingPairings.c keeps a
// separate kTLVType_State step counter for these three operations than
// the one Pair Setup/Pair Verify use, since they run after a session is
// already verified and reuse its security but not its state machine.
type PairingsState struct {
	Method     Method
	Step       uint8
	PendingErr error
	RemovedID  []byte
}

// PairingsManager drives the Add/Remove/List Pairings sub-procedures
// (spec.md §4.7) over an already-verified session. Every operation is
// admin-only and, on success, re-runs the admin-cleanup invariant and
// invalidates any Pair Resume cache entries the mutation affects.
type PairingsManager struct {
	pairings *pairing.Store
	resume   *PairResumeCache
}

// NewPairingsManager returns a manager bound to the accessory's pairing
// store and (on BLE) its Pair Resume cache. resume may be nil on IP,
// where Pair Resume does not apply.
func NewPairingsManager(pairings *pairing.Store, resume *PairResumeCache) *PairingsManager {
	return &PairingsManager{pairings: pairings, resume: resume}
}

// Handle processes one complete Add/Remove/List Pairings request and
// returns its TLV8 response. requesterIsAdmin reflects the calling
// session's pairing permissions; every sub-procedure here is
// admin-only and returns ErrorAuthentication otherwise (spec.md §4.7).
func (m *PairingsManager) Handle(requesterIsAdmin bool, request []byte) ([]byte, error) {
	idx, err := tlv.NewIndexedReader(request)
	if err != nil {
		return nil, fmt.Errorf("session: malformed pairings-management request: %w", err)
	}
	methodItem, ok := idx.Find(TLVMethod)
	if !ok {
		return nil, fmt.Errorf("session: pairings-management request missing method")
	}
	methodByte, err := tlv.DecodeUint8(methodItem, 0, 255)
	if err != nil {
		return nil, fmt.Errorf("session: pairings-management request invalid method: %w", err)
	}

	if !requesterIsAdmin {
		return writePairingsError(ErrorAuthentication)
	}

	switch Method(methodByte) {
	case MethodAddPairing:
		return m.handleAdd(idx)
	case MethodRemovePairing:
		return m.handleRemove(idx)
	case MethodListPairings:
		return m.handleList()
	default:
		return nil, fmt.Errorf("session: pairings-management request unexpected method %d", methodByte)
	}
}

func writePairingsError(code ErrorCode) ([]byte, error) {
	w := tlv.NewWriter()
	if err := writeErrorTLV(w, 2, code); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (m *PairingsManager) runCleanupAndInvalidate(affectedKey int) error {
	purged, err := m.pairings.CleanupInvariant()
	if err != nil {
		return err
	}
	if purged {
		if err := m.pairings.KV().Remove(platform.DomainConfiguration, platform.KeyBLEBroadcastParams); err != nil {
			return err
		}
	}
	if m.resume == nil {
		return nil
	}
	if purged {
		m.resume.InvalidateAll()
	} else {
		m.resume.InvalidatePairing(affectedKey)
	}
	return nil
}

func (m *PairingsManager) handleAdd(idx *tlv.IndexedReader) ([]byte, error) {
	idItem, ok := idx.Find(TLVIdentifier)
	if !ok {
		return nil, fmt.Errorf("session: Add Pairing request missing identifier")
	}
	identifier, err := tlv.DecodeData(idItem, 1, 36)
	if err != nil {
		return nil, fmt.Errorf("session: Add Pairing request invalid identifier: %w", err)
	}
	pkItem, ok := idx.Find(TLVPublicKey)
	if !ok {
		return nil, fmt.Errorf("session: Add Pairing request missing public key")
	}
	pkBytes, err := tlv.DecodeData(pkItem, 32, 32)
	if err != nil {
		return nil, fmt.Errorf("session: Add Pairing request invalid public key: %w", err)
	}
	var publicKey [32]byte
	copy(publicKey[:], pkBytes)

	permItem, ok := idx.Find(TLVPermissions)
	if !ok {
		return nil, fmt.Errorf("session: Add Pairing request missing permissions")
	}
	permissions, err := tlv.DecodeUint8(permItem, 0, 255)
	if err != nil {
		return nil, fmt.Errorf("session: Add Pairing request invalid permissions: %w", err)
	}

	existing, key, found, err := m.pairings.Find(identifier)
	if err != nil {
		return nil, err
	}
	if found {
		if existing.PublicKey != publicKey {
			return writePairingsError(ErrorUnknown)
		}
		if err := m.pairings.Update(key, permissions); err != nil {
			return nil, err
		}
	} else {
		newKey, err := m.pairings.Insert(pairing.Pairing{
			Identifier:  append([]byte(nil), identifier...),
			PublicKey:   publicKey,
			Permissions: permissions,
		})
		if err != nil {
			if platform.KindOf(err) == platform.ErrOutOfResources {
				return writePairingsError(ErrorMaxPeers)
			}
			return nil, err
		}
		key = newKey
	}

	if err := m.runCleanupAndInvalidate(key); err != nil {
		return nil, err
	}

	w := tlv.NewWriter()
	if err := tlv.EncodeUint8(w, TLVState, 2); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (m *PairingsManager) handleRemove(idx *tlv.IndexedReader) ([]byte, error) {
	idItem, ok := idx.Find(TLVIdentifier)
	if !ok {
		return nil, fmt.Errorf("session: Remove Pairing request missing identifier")
	}
	identifier, err := tlv.DecodeData(idItem, 1, 36)
	if err != nil {
		return nil, fmt.Errorf("session: Remove Pairing request invalid identifier: %w", err)
	}

	_, key, found, err := m.pairings.Find(identifier)
	if err != nil {
		return nil, err
	}
	if found {
		if err := m.pairings.Remove(key); err != nil {
			return nil, err
		}
		if err := m.runCleanupAndInvalidate(key); err != nil {
			return nil, err
		}
	}

	w := tlv.NewWriter()
	if err := tlv.EncodeUint8(w, TLVState, 2); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (m *PairingsManager) handleList() ([]byte, error) {
	w := tlv.NewWriter()
	if err := tlv.EncodeUint8(w, TLVState, 2); err != nil {
		return nil, err
	}
	first := true
	var enumErr error
	err := m.pairings.Enumerate(func(key int, p pairing.Pairing) bool {
		if !first {
			if err := w.WriteItem(TLVSeparator, nil); err != nil {
				enumErr = err
				return false
			}
		}
		first = false
		if err := tlv.EncodeData(w, TLVIdentifier, p.Identifier); err != nil {
			enumErr = err
			return false
		}
		if err := tlv.EncodeData(w, TLVPublicKey, p.PublicKey[:]); err != nil {
			enumErr = err
			return false
		}
		if err := tlv.EncodeUint8(w, TLVPermissions, p.Permissions); err != nil {
			enumErr = err
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if enumErr != nil {
		return nil, enumErr
	}
	return w.Bytes(), nil
}
