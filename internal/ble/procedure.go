package ble

import (
	"time"

	"github.com/hapcore/hap/internal/platform"
)

// ProcedureType distinguishes the one full-featured procedure a
// connection may run from the fallback procedures created when the
// full slot is busy (spec.md §3/§4.8, HAPBLEProcedure.h).
type ProcedureType int

const (
	ProcedureFull ProcedureType = iota
	ProcedureFallback
)

// MultiTransactionType names the only multi-request procedure HAP
// defines: a Characteristic Timed Write followed later by a
// Characteristic Execute Write (HAPBLEProcedureMultiTransactionType).
type MultiTransactionType int

const (
	MultiTransactionNone MultiTransactionType = iota
	MultiTransactionTimedWrite
)

// FallbackStatus is the only response a fallback procedure is
// permitted to give, per spec.md §4.8's attachment rule 4.
type FallbackStatus int

const (
	FallbackMaxProcedures FallbackStatus = iota
	FallbackInvalidInstanceID
	FallbackZeroInstanceIDServiceSignatureRead
)

// Procedure is attached to exactly one characteristic (or, for
// ServiceSignatureRead, one service) for the lifetime of one HAP-PDU
// transaction. Full procedures carry a request assembler and response
// reader; fallback procedures carry only enough state to answer with a
// fixed status.
type Procedure struct {
	Type                 ProcedureType
	IID                  uint64
	TransactionID         uint8
	Opcode                Opcode
	MultiTransaction      MultiTransactionType
	TimedWriteStartTime   time.Time
	TimedWriteBody        []byte // buffered value from the Timed Write, applied on Execute Write
	StartedSecured        bool
	ProcedureTimer        platform.TimerID

	assembler      *RequestAssembler
	responseReader *ResponseReader

	// FallbackStatus / fallback-only.
	FallbackStatus FallbackStatus
}

// NewFullProcedure attaches a new full procedure to a characteristic.
func NewFullProcedure(iid uint64, startedSecured bool) *Procedure {
	return &Procedure{Type: ProcedureFull, IID: iid, StartedSecured: startedSecured}
}

// NewFallbackProcedure attaches a fallback procedure, grounded on
// HAPBLEPeripheralManager.c's fallback status table (MaxProcedures,
// InvalidInstanceID, or an empty ServiceSignatureRead response for a
// zero IID).
func NewFallbackProcedure(iid uint64, status FallbackStatus) *Procedure {
	return &Procedure{Type: ProcedureFallback, IID: iid, FallbackStatus: status}
}

// IsInProgress reports whether a transaction is mid-flight: a request
// is still being assembled, or a response is still being streamed out.
// While true, the procedure must not be reattached to a different
// characteristic (HAPBLEProcedureIsInProgress).
func (p *Procedure) IsInProgress() bool {
	if p.assembler != nil && !p.assembler.complete {
		return true
	}
	if p.responseReader != nil && !p.responseReader.Done() {
		return true
	}
	return false
}

// BeginRequest starts assembling a new request on this procedure.
func (p *Procedure) BeginRequest() {
	p.assembler = &RequestAssembler{}
	p.responseReader = nil
}

// FeedRequest feeds one GATT-write fragment into the in-progress
// request assembler.
func (p *Procedure) FeedRequest(frame []byte) (done bool, err error) {
	if p.assembler == nil {
		p.BeginRequest()
	}
	done, err = p.assembler.Feed(frame)
	if done && err == nil {
		req := p.assembler.Result()
		p.TransactionID = req.TID
		p.Opcode = req.Opcode
	}
	return done, err
}

// Request returns the fully reassembled request. Valid only once
// FeedRequest has returned done == true.
func (p *Procedure) Request() Request { return p.assembler.Result() }

// SetResponse stages an encoded response for GATT reads to stream out.
func (p *Procedure) SetResponse(encoded []byte) {
	p.responseReader = NewResponseReader(encoded)
}

// NextResponseFragment writes the next GATT-read fragment into buf.
func (p *Procedure) NextResponseFragment(buf []byte) (n int, more bool) {
	if p.responseReader == nil {
		return 0, false
	}
	return p.responseReader.Next(buf)
}
