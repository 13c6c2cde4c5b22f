package ble

import (
	"testing"
	"time"

	"github.com/hapcore/hap/internal/platform"
)

// fakeTimer is a manually-advanced platform.Timer: Fire invokes every
// timer whose deadline is <= the current fake clock, in registration
// order, without a real background goroutine.
type fakeTimer struct {
	now     time.Time
	nextID  platform.TimerID
	pending map[platform.TimerID]fakeTimerEntry
}

type fakeTimerEntry struct {
	deadline time.Time
	fn       func()
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{now: time.Unix(0, 0), pending: make(map[platform.TimerID]fakeTimerEntry)}
}

func (f *fakeTimer) Register(deadline time.Time, fn func()) (platform.TimerID, error) {
	f.nextID++
	f.pending[f.nextID] = fakeTimerEntry{deadline: deadline, fn: fn}
	return f.nextID, nil
}

func (f *fakeTimer) Deregister(id platform.TimerID) {
	delete(f.pending, id)
}

func (f *fakeTimer) Now() time.Time { return f.now }

// Advance moves the fake clock forward and fires every timer whose
// deadline has now passed.
func (f *fakeTimer) Advance(d time.Duration) {
	f.now = f.now.Add(d)
	for id, entry := range f.pending {
		if !entry.deadline.After(f.now) {
			delete(f.pending, id)
			entry.fn()
		}
	}
}

func TestNewSessionArmsInitialLinkTimer(t *testing.T) {
	ft := newFakeTimer()
	s := NewSession(ft)
	disconnected := false
	s.Disconnect = func() { disconnected = true }

	ft.Advance(9 * time.Second)
	if disconnected {
		t.Fatal("session disconnected before the 10s link timeout elapsed")
	}
	ft.Advance(2 * time.Second)
	if !disconnected {
		t.Fatal("expected the session to disconnect once the 10s link timeout elapsed")
	}
	if !s.IsTerminal() {
		t.Error("expected the session to be terminal after the link timer fires")
	}
}

func TestDidStartBLEProcedureUnsecuredDropsLinkTimer(t *testing.T) {
	ft := newFakeTimer()
	s := NewSession(ft)
	disconnected := false
	s.Disconnect = func() { disconnected = true }

	s.DidStartBLEProcedure(false)
	ft.Advance(time.Hour)
	if disconnected {
		t.Error("an unsecured in-progress procedure must deregister the link timer, not reset it")
	}
}

func TestDidStartBLEProcedureSecuredResetsToThirtySeconds(t *testing.T) {
	ft := newFakeTimer()
	s := NewSession(ft)
	disconnected := false
	s.Disconnect = func() { disconnected = true }

	s.DidStartBLEProcedure(true)
	ft.Advance(29 * time.Second)
	if disconnected {
		t.Fatal("disconnected before the 30s secured inactivity timeout elapsed")
	}
	ft.Advance(2 * time.Second)
	if !disconnected {
		t.Fatal("expected disconnect once the 30s secured inactivity timeout elapsed")
	}
}

func TestDidSendGATTResponseArmsSafeToDisconnectGrace(t *testing.T) {
	ft := newFakeTimer()
	s := NewSession(ft)
	s.DidSendGATTResponse()
	if s.IsSafeToDisconnect() {
		t.Fatal("expected IsSafeToDisconnect() to be false immediately after sending a response")
	}
	ft.Advance(200 * time.Millisecond)
	if !s.IsSafeToDisconnect() {
		t.Fatal("expected IsSafeToDisconnect() once the 200ms grace elapses")
	}
}

func TestInvalidateDefersDisconnectUntilSafe(t *testing.T) {
	ft := newFakeTimer()
	s := NewSession(ft)
	s.DidSendGATTResponse() // not yet safe to disconnect

	disconnected := false
	s.Disconnect = func() { disconnected = true }
	s.Invalidate(true)
	if disconnected {
		t.Fatal("Invalidate must not disconnect immediately while a response is still settling")
	}

	ft.Advance(200 * time.Millisecond)
	if !disconnected {
		t.Fatal("expected disconnect once the safe-to-disconnect grace elapses after Invalidate")
	}
}

func TestPairingProcedureTimeout(t *testing.T) {
	ft := newFakeTimer()
	s := NewSession(ft)
	disconnected := false
	s.Disconnect = func() { disconnected = true }

	s.DidStartPairingProcedure()
	ft.Advance(11 * time.Second)
	if !disconnected {
		t.Fatal("expected disconnect once the 10s pairing-procedure timeout elapsed")
	}
}

func TestDidCompletePairingProcedureArmsSecuredLinkTimer(t *testing.T) {
	ft := newFakeTimer()
	s := NewSession(ft)
	disconnected := false
	s.Disconnect = func() { disconnected = true }

	s.DidStartPairingProcedure()
	s.DidCompletePairingProcedure(true, true)

	ft.Advance(29 * time.Second)
	if disconnected {
		t.Fatal("expected the 30s secured timer, not the 10s pairing timer, to govern inactivity now")
	}
	ft.Advance(2 * time.Second)
	if !disconnected {
		t.Fatal("expected disconnect once the 30s secured inactivity timeout elapsed")
	}
}
