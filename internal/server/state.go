// Package server implements the accessory server lifecycle: the
// top-level state machine that brings an attribute.Database up over
// the BLE and/or IP transports, owns the long-term signing key and the
// pairing store's invariants, and tears everything back down again.
package server

// State is the accessory server's top-level lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}
