package session

import (
	"errors"
	"fmt"

	"github.com/hapcore/hap/internal/pairing"
)

// SecurityState is the lifecycle of one connection's pairing security,
// driven entirely by writes to the Pairing / Pair Verify
// characteristics (spec.md §4.5/§4.6). The BLE transport (internal/ble)
// creates one Session per connection and routes every write on those
// characteristics through HandlePairSetupWrite, HandlePairVerifyWrite or
// HandlePairingsManagementWrite.
type SecurityState int

const (
	// StateUnsecured is the initial state: no session keys exist, and
	// only Pair Setup or Pair Verify requests are accepted.
	StateUnsecured SecurityState = iota
	// StatePairSetupInProgress is set between a Session's M1 and its
	// terminal Pair Setup message.
	StatePairSetupInProgress
	// StatePairVerifyInProgress is set between a Session's M1 and its
	// terminal Pair Verify message.
	StatePairVerifyInProgress
	// StateVerified is set once Pair Verify (or Pair Resume) completes:
	// ControllerToAccessoryKey/AccessoryToControllerKey are populated and
	// the transport should switch to AEAD framing.
	StateVerified
)

// ErrNotVerified is returned by operations that require a verified
// session (e.g. Add/Remove/List Pairings) when called too early.
var ErrNotVerified = errors.New("session: operation requires a verified session")

// Session is the per-connection pairing security state machine. It
// owns at most one in-progress Pair Setup or Pair Verify exchange at a
// time and, once verified, the pair of transport keys and the
// identity of the pairing that authenticated it.
type Session struct {
	identity   AccessoryIdentity
	pairings   *pairing.Store
	setupCodes SetupCodeProvider
	coord      *PairSetupCoordinator
	resume     *PairResumeCache

	state SecurityState

	pairSetup  *PairSetup
	pairVerify *PairVerify

	// PairingKey / PairingID / IsAdmin identify the pairing this
	// session authenticated as, populated once State == StateVerified.
	PairingKey int
	PairingID  []byte
	IsAdmin    bool

	// ControllerToAccessoryKey / AccessoryToControllerKey are the
	// session's AEAD keys, populated once State == StateVerified.
	ControllerToAccessoryKey [32]byte
	AccessoryToControllerKey [32]byte
}

// NewSession creates a fresh, unsecured per-connection session.
func NewSession(identity AccessoryIdentity, pairings *pairing.Store, setupCodes SetupCodeProvider, coord *PairSetupCoordinator, resume *PairResumeCache) *Session {
	return &Session{identity: identity, pairings: pairings, setupCodes: setupCodes, coord: coord, resume: resume, state: StateUnsecured}
}

// State reports the session's current security state.
func (s *Session) State() SecurityState { return s.state }

// HandlePairSetupWrite processes one Pair Setup TLV8 request, creating
// a new exchange on M1 and routing subsequent writes to the same one.
func (s *Session) HandlePairSetupWrite(request []byte) ([]byte, error) {
	if s.state == StateVerified {
		return nil, fmt.Errorf("session: Pair Setup is not permitted on an already-verified session")
	}
	if s.pairSetup == nil || s.pairSetup.Done() {
		s.pairSetup = NewPairSetup(s.identity, s.setupCodes, s.pairings, s.coord)
	}
	s.state = StatePairSetupInProgress
	resp, err := s.pairSetup.Exchange(request)
	if s.pairSetup.Done() {
		// A full (non-transient) Pair Setup leaves the connection
		// unverified even on success: the controller must still run
		// Pair Verify against the pairing it just created (spec.md
		// §4.5/§4.6). Only the transient variant verifies the
		// connection directly, since it never exchanges an LTPK to
		// verify against.
		if s.pairSetup.TransientVerified {
			s.ControllerToAccessoryKey = s.pairSetup.SessionKey
			s.AccessoryToControllerKey = s.pairSetup.SessionKey
			s.IsAdmin = false
			s.state = StateVerified
		} else {
			s.state = StateUnsecured
		}
	}
	return resp, err
}

// HandlePairVerifyWrite processes one Pair Verify TLV8 request.
func (s *Session) HandlePairVerifyWrite(request []byte) ([]byte, error) {
	if s.state == StateVerified {
		return nil, fmt.Errorf("session: Pair Verify is not permitted on an already-verified session")
	}
	if s.pairVerify == nil || s.pairVerify.Done() {
		s.pairVerify = NewPairVerify(s.identity, s.pairings, s.resume)
	}
	s.state = StatePairVerifyInProgress
	resp, err := s.pairVerify.Exchange(request)
	if s.pairVerify.Done() {
		if s.pairVerify.Verified {
			s.ControllerToAccessoryKey = s.pairVerify.ControllerToAccessoryKey
			s.AccessoryToControllerKey = s.pairVerify.AccessoryToControllerKey
			s.PairingKey = s.pairVerify.PairingKey
			s.PairingID = s.pairVerify.PairingID
			admin, err2 := s.lookupIsAdmin(s.PairingID)
			if err2 == nil {
				s.IsAdmin = admin
			}
			s.state = StateVerified
		} else {
			s.state = StateUnsecured
		}
	}
	return resp, err
}

func (s *Session) lookupIsAdmin(identifier []byte) (bool, error) {
	p, _, found, err := s.pairings.Find(identifier)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return p.IsAdmin(), nil
}

// HandlePairingsManagementWrite processes one Add/Remove/List Pairings
// request, admin-gated by the session's own pairing permissions. It is
// only valid on a verified session.
func (s *Session) HandlePairingsManagementWrite(mgr *PairingsManager, request []byte) ([]byte, error) {
	if s.state != StateVerified {
		return nil, ErrNotVerified
	}
	return mgr.Handle(s.IsAdmin, request)
}
