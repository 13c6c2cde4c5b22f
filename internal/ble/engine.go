package ble

import (
	"errors"
	"fmt"

	"github.com/hapcore/hap/internal/attribute"
	"github.com/hapcore/hap/internal/pairing"
	"github.com/hapcore/hap/internal/platform"
	"github.com/hapcore/hap/internal/session"
)

// PairingKind names the four pairing-related characteristics whose
// writes/reads this engine routes to internal/session instead of to a
// ValueDelegate. The concrete UUID catalog is out of scope for this
// core (spec.md §1 Non-goals); callers populate PairingCharacteristics
// by IID once they have published the Pairing service.
type PairingKind int

const (
	PairingKindNone PairingKind = iota
	PairingKindPairSetup
	PairingKindPairVerify
	PairingKindPairingPairings
	PairingKindPairingFeatures
)

// dropsSecuritySession reports whether a write to a characteristic of
// this kind must abort any fallback procedures first (spec.md §4.8
// attachment rule 1: "Pair Setup / Pair Verify / PairingFeatures").
func (k PairingKind) dropsSecuritySession() bool {
	switch k {
	case PairingKindPairSetup, PairingKindPairVerify, PairingKindPairingFeatures:
		return true
	default:
		return false
	}
}

// ValueDelegate is the accessory-application collaborator that owns
// non-pairing characteristic values. Reading and writing application
// values is explicitly out of scope for this core (spec.md §1
// Non-goals: "accessory application callbacks for characteristic
// read/write"); this interface is the seam such an application plugs
// into.
type ValueDelegate interface {
	ReadValue(iid uint64) ([]byte, error)
	WriteValue(iid uint64, value []byte) error
}

// ErrInvalidInstanceID is returned by lookupCharacteristic when a
// request names an IID absent from the attribute tree.
var ErrInvalidInstanceID = errors.New("ble: invalid instance ID")

// Config wires an Engine to the rest of the accessory: the attribute
// tree it serves, the platform collaborators it drives, and the
// already-constructed pairing primitives (identity, pairing store,
// setup-code provider, Pair Setup coordinator, Pair Resume cache) that
// must be shared across every connection rather than created per-link.
type Config struct {
	Accessory              *attribute.Accessory
	Store                  *attribute.Store
	Values                 ValueDelegate
	Peripheral             platform.BLEPeripheralManager
	Timer                  platform.Timer
	HandleToIID            map[platform.AttributeHandle]uint64
	PairingCharacteristics map[uint64]PairingKind

	Identity        session.AccessoryIdentity
	Pairings        *pairing.Store
	SetupCodes      session.SetupCodeProvider
	Coordinator     *session.PairSetupCoordinator
	ResumeCache     *session.PairResumeCache
	PairingsManager *session.PairingsManager
}

// connState is the per-GATT-connection state the engine tracks: the
// link/timer lifecycle, the per-connection pairing-procedure state
// machine, the negotiated security context once Pair Verify succeeds,
// the one full procedure, and any fallback procedures.
type connState struct {
	connID      string
	ble         *Session
	pairSession *session.Session
	security    *session.SecurityContext

	full      *Procedure
	fallbacks map[uint64]*Procedure

	// pairingResponses buffers the TLV8 response produced by the last
	// write to a pairing characteristic, staged for the read that
	// follows it — pairing characteristics are ordinary HAP
	// characteristics from the GATT procedure engine's point of view;
	// only the value source differs.
	pairingResponses map[uint64][]byte
}

// Engine dispatches GATT connect/disconnect/read/write callbacks into
// HAP-PDU transactions per characteristic, enforcing the procedure
// attachment rules and timeouts of spec.md §4.8 and the session
// lifecycle of §4.9. It implements platform.BLEDelegate.
type Engine struct {
	cfg   Config
	conns map[platform.AttributeHandle]*connState
}

// NewEngine creates an Engine and registers it as the peripheral
// manager's delegate.
func NewEngine(cfg Config) *Engine {
	e := &Engine{cfg: cfg, conns: make(map[platform.AttributeHandle]*connState)}
	if cfg.Peripheral != nil {
		cfg.Peripheral.SetDelegate(e)
	}
	return e
}

func (e *Engine) lookupCharacteristic(iid uint64) (*attribute.Characteristic, *attribute.Service, bool) {
	if e.cfg.Accessory == nil {
		return nil, nil, false
	}
	return e.cfg.Accessory.CharacteristicByIID(iid)
}

func (e *Engine) lookupService(iid uint64) (*attribute.Service, bool) {
	if e.cfg.Accessory == nil {
		return nil, false
	}
	for _, svc := range e.cfg.Accessory.Services {
		if svc.IID == iid {
			return svc, true
		}
	}
	return nil, false
}

// OnConnect implements platform.BLEDelegate.
func (e *Engine) OnConnect(conn platform.AttributeHandle) {
	bs := NewSession(e.cfg.Timer)
	cs := &connState{
		connID:           connKey(conn),
		ble:              bs,
		fallbacks:        make(map[uint64]*Procedure),
		pairingResponses: make(map[uint64][]byte),
	}
	bs.Disconnect = func() {
		if e.cfg.Peripheral != nil {
			_ = e.cfg.Peripheral.CancelConnection(conn)
		}
	}
	cs.pairSession = session.NewSession(e.cfg.Identity, e.cfg.Pairings, e.cfg.SetupCodes, e.cfg.Coordinator, e.cfg.ResumeCache)
	e.conns[conn] = cs
}

// OnDisconnect implements platform.BLEDelegate.
func (e *Engine) OnDisconnect(conn platform.AttributeHandle) {
	cs, ok := e.conns[conn]
	if !ok {
		return
	}
	cs.ble.Release()
	if e.cfg.Store != nil {
		e.cfg.Store.UnsubscribeAll(connKey(conn))
	}
	delete(e.conns, conn)
}

func connKey(conn platform.AttributeHandle) string {
	return fmt.Sprintf("ble:%d", conn)
}

// OnWrite implements platform.BLEDelegate: one GATT write fragment
// targeting one HAP characteristic value handle.
func (e *Engine) OnWrite(conn platform.AttributeHandle, handle platform.AttributeHandle, data []byte) error {
	cs, ok := e.conns[conn]
	if !ok {
		return errors.New("ble: write on unknown connection")
	}
	iid, ok := e.cfg.HandleToIID[handle]
	if !ok {
		return ErrInvalidInstanceID
	}

	proc, attachErr := e.attach(cs, iid)
	if attachErr != nil {
		return attachErr
	}

	if proc.Type == ProcedureFallback {
		// Fallback procedures never assemble a real request; the
		// response is fixed at attachment time (rule 4).
		proc.SetResponse(e.fallbackResponse(proc).Encode())
		return nil
	}

	done, err := proc.FeedRequest(data)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	kind := e.cfg.PairingCharacteristics[iid]
	if kind != PairingKindNone {
		cs.ble.DidStartPairingProcedure()
	}
	cs.ble.DidStartBLEProcedure(cs.security != nil)

	resp := e.handleRequest(cs, iid, kind, proc.Request())
	proc.SetResponse(resp.Encode())
	return nil
}

// OnRead implements platform.BLEDelegate: one GATT read fragment of a
// HAP response, or (if no procedure has ever written a response to
// this handle) an unsolicited read that must terminate the link
// (spec.md §4.8 "Response-gating invariants").
func (e *Engine) OnRead(conn platform.AttributeHandle, handle platform.AttributeHandle, buf []byte) (int, error) {
	cs, ok := e.conns[conn]
	if !ok {
		return 0, errors.New("ble: read on unknown connection")
	}
	iid, ok := e.cfg.HandleToIID[handle]
	if !ok {
		return 0, ErrInvalidInstanceID
	}

	proc := e.procedureFor(cs, iid)
	if proc == nil || proc.responseReader == nil {
		cs.ble.Invalidate(true)
		return 0, errors.New("ble: unsolicited read, no prior write on this handle")
	}

	n, more := proc.NextResponseFragment(buf)
	if !more {
		cs.ble.DidSendGATTResponse()
	}
	return n, nil
}

// OnReadyToIndicate implements platform.BLEDelegate. The engine keeps
// no queue of pending indications, so there is nothing to do here
// beyond satisfying the interface.
func (e *Engine) OnReadyToIndicate(conn platform.AttributeHandle, handle platform.AttributeHandle) {}

// procedureFor returns the full or fallback procedure currently
// attached to iid on this connection, if any.
func (e *Engine) procedureFor(cs *connState, iid uint64) *Procedure {
	if cs.full != nil && cs.full.IID == iid {
		return cs.full
	}
	return cs.fallbacks[iid]
}

// attach implements spec.md §4.8's procedure attachment rules.
func (e *Engine) attach(cs *connState, iid uint64) (*Procedure, error) {
	if kind := e.cfg.PairingCharacteristics[iid]; kind.dropsSecuritySession() {
		// Rule 1: abort all fallback procedures first.
		cs.fallbacks = make(map[uint64]*Procedure)
	}

	// Rule 2: reuse the full procedure if it is already attached here.
	if cs.full != nil && cs.full.IID == iid {
		if !cs.full.IsInProgress() {
			cs.full.BeginRequest()
		}
		return cs.full, nil
	}

	// Rule 3: attach a new full procedure if the slot is free.
	if cs.full == nil || !cs.full.IsInProgress() {
		cs.full = NewFullProcedure(iid, cs.security != nil)
		cs.full.BeginRequest()
		return cs.full, nil
	}

	// Rule 4: the full slot is busy elsewhere; attach (or reuse) a
	// fallback procedure on this characteristic.
	if existing, ok := cs.fallbacks[iid]; ok {
		return existing, nil
	}
	status := FallbackMaxProcedures
	if _, _, ok := e.lookupCharacteristic(iid); !ok {
		if _, ok := e.lookupService(iid); !ok {
			status = FallbackInvalidInstanceID
		}
	}
	fb := NewFallbackProcedure(iid, status)
	cs.fallbacks[iid] = fb
	id, err := e.cfg.Timer.Register(e.cfg.Timer.Now().Add(pairingProcedureTimeout), func() {
		delete(cs.fallbacks, iid)
	})
	if err == nil {
		fb.ProcedureTimer = id
	}
	return fb, nil
}

func (e *Engine) fallbackResponse(proc *Procedure) Response {
	switch proc.FallbackStatus {
	case FallbackInvalidInstanceID:
		return Response{Status: StatusInvalidInstanceID}
	case FallbackZeroInstanceIDServiceSignatureRead:
		body, _ := encodeServiceSignature(nil)
		return Response{Status: StatusSuccess, Body: body}
	default:
		return Response{Status: StatusMaxProcedures}
	}
}

// handleRequest dispatches one fully reassembled request to the
// matching opcode handler.
func (e *Engine) handleRequest(cs *connState, iid uint64, kind PairingKind, req Request) Response {
	if kind != PairingKindNone {
		return e.handlePairingRequest(cs, iid, kind, req)
	}

	switch req.Opcode {
	case OpcodeCharacteristicRead:
		return e.handleCharacteristicRead(iid, req)
	case OpcodeCharacteristicWrite:
		return e.handleCharacteristicWrite(iid, req)
	case OpcodeCharacteristicTimedWrite:
		return e.handleTimedWrite(cs, iid, req)
	case OpcodeCharacteristicExecuteWrite:
		return e.handleExecuteWrite(cs, iid, req)
	case OpcodeCharacteristicSignatureRead:
		return e.handleCharacteristicSignatureRead(iid, req)
	case OpcodeServiceSignatureRead:
		return e.handleServiceSignatureRead(iid, req)
	case OpcodeCharacteristicConfiguration:
		return e.handleCharacteristicConfiguration(cs, iid, req)
	case OpcodeProtocolConfiguration, OpcodeToken, OpcodeTokenUpdate, OpcodeInfo:
		// No ADK protocol-configuration / MFi software-authentication
		// collaborator is wired into this core yet; see DESIGN.md.
		return Response{TID: req.TID, Status: StatusUnsupportedPDU}
	default:
		return Response{TID: req.TID, Status: StatusUnsupportedPDU}
	}
}

func (e *Engine) handleCharacteristicRead(iid uint64, req Request) Response {
	ch, _, ok := e.lookupCharacteristic(iid)
	if !ok {
		return Response{TID: req.TID, Status: StatusInvalidInstanceID}
	}
	if !ch.Permissions.Has(attribute.PermPairedRead) {
		return Response{TID: req.TID, Status: StatusInsufficientAuthorization}
	}
	if e.cfg.Values == nil {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	value, err := e.cfg.Values.ReadValue(iid)
	if err != nil {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	return Response{TID: req.TID, Status: StatusSuccess, Body: encodePDUValue(value)}
}

func (e *Engine) handleCharacteristicWrite(iid uint64, req Request) Response {
	ch, _, ok := e.lookupCharacteristic(iid)
	if !ok {
		return Response{TID: req.TID, Status: StatusInvalidInstanceID}
	}
	if !ch.Permissions.Has(attribute.PermPairedWrite) {
		return Response{TID: req.TID, Status: StatusInsufficientAuthorization}
	}
	value, ok := decodePDUValue(req.Body)
	if !ok {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	if e.cfg.Values == nil {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	if err := e.cfg.Values.WriteValue(iid, value); err != nil {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	return Response{TID: req.TID, Status: StatusSuccess}
}

func (e *Engine) handleTimedWrite(cs *connState, iid uint64, req Request) Response {
	proc := e.procedureFor(cs, iid)
	value, ok := decodePDUValue(req.Body)
	if !ok {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	if proc != nil {
		proc.MultiTransaction = MultiTransactionTimedWrite
		proc.TimedWriteBody = value
		proc.TimedWriteStartTime = e.cfg.Timer.Now()
	}
	return Response{TID: req.TID, Status: StatusSuccess}
}

func (e *Engine) handleExecuteWrite(cs *connState, iid uint64, req Request) Response {
	proc := e.procedureFor(cs, iid)
	if proc == nil || proc.MultiTransaction != MultiTransactionTimedWrite {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	if e.cfg.Values == nil {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	if err := e.cfg.Values.WriteValue(iid, proc.TimedWriteBody); err != nil {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	proc.MultiTransaction = MultiTransactionNone
	proc.TimedWriteBody = nil
	return Response{TID: req.TID, Status: StatusSuccess}
}

func (e *Engine) handleCharacteristicSignatureRead(iid uint64, req Request) Response {
	ch, _, ok := e.lookupCharacteristic(iid)
	if !ok {
		return Response{TID: req.TID, Status: StatusInvalidInstanceID}
	}
	body, err := encodeCharacteristicSignature(ch)
	if err != nil {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	return Response{TID: req.TID, Status: StatusSuccess, Body: body}
}

func (e *Engine) handleServiceSignatureRead(iid uint64, req Request) Response {
	svc, ok := e.lookupService(iid)
	if !ok {
		// A zero IID Service-Signature-Read is explicitly answerable
		// even without a valid instance (HAPBLEPeripheralManager.c's
		// ZeroInstanceIDServiceSignatureRead fallback status); any
		// other invalid IID is rejected outright.
		if iid != 0 {
			return Response{TID: req.TID, Status: StatusInvalidInstanceID}
		}
		body, _ := encodeServiceSignature(nil)
		return Response{TID: req.TID, Status: StatusSuccess, Body: body}
	}
	body, err := encodeServiceSignature(svc)
	if err != nil {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	return Response{TID: req.TID, Status: StatusSuccess, Body: body}
}

// handleCharacteristicConfiguration implements CCCD-style event
// subscription toggling: a two-byte little-endian value of 0x0002
// enables indications, 0x0000 disables them, and any other bit pattern
// is rejected (spec.md §4.8 "Response-gating invariants"). The gating
// invariant calls this an InvalidData rejection; the BLE PDU status
// set has no such code, so both the malformed-length and the bad-bits
// case map to StatusInvalidRequest, the closest member of that set.
func (e *Engine) handleCharacteristicConfiguration(cs *connState, iid uint64, req Request) Response {
	value, ok := decodePDUValue(req.Body)
	if !ok || len(value) != 2 {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	cccd := uint16(value[0]) | uint16(value[1])<<8
	switch cccd {
	case 0x0000:
		if e.cfg.Store != nil {
			e.cfg.Store.Unsubscribe(storeKeyFor(e.cfg.Accessory, iid), connKeyFromState(cs))
		}
	case 0x0002:
		if e.cfg.Store != nil {
			e.cfg.Store.Subscribe(storeKeyFor(e.cfg.Accessory, iid), connKeyFromState(cs))
		}
	default:
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	return Response{TID: req.TID, Status: StatusSuccess}
}

func storeKeyFor(acc *attribute.Accessory, iid uint64) attribute.Key {
	var aid uint64
	if acc != nil {
		aid = acc.AID
	}
	return attribute.Key{AID: aid, IID: iid}
}

// connKeyFromState recovers the connection identity a connState was
// created under. Subscriptions are keyed by a string connection ID
// elsewhere in attribute.Store; the engine derives it once at
// OnConnect time and stores it on the connState itself.
func connKeyFromState(cs *connState) string { return cs.connID }

func (e *Engine) handlePairingRequest(cs *connState, iid uint64, kind PairingKind, req Request) Response {
	var resp []byte
	var err error
	switch kind {
	case PairingKindPairSetup:
		resp, err = cs.pairSession.HandlePairSetupWrite(req.Body)
	case PairingKindPairVerify:
		resp, err = cs.pairSession.HandlePairVerifyWrite(req.Body)
		if err == nil && cs.pairSession.State() == session.StateVerified {
			cs.security = session.NewSecurityContext(cs.pairSession.ControllerToAccessoryKey, cs.pairSession.AccessoryToControllerKey)
		}
	case PairingKindPairingPairings:
		if e.cfg.PairingsManager == nil {
			return Response{TID: req.TID, Status: StatusUnsupportedPDU}
		}
		resp, err = cs.pairSession.HandlePairingsManagementWrite(e.cfg.PairingsManager, req.Body)
	default:
		return Response{TID: req.TID, Status: StatusUnsupportedPDU}
	}
	if err != nil {
		return Response{TID: req.TID, Status: StatusInvalidRequest}
	}
	cs.ble.DidCompletePairingProcedure(kind == PairingKindPairVerify, cs.security != nil)
	cs.pairingResponses[iid] = resp

	return Response{TID: req.TID, Status: StatusSuccess, Body: encodePDUValue(resp)}
}
