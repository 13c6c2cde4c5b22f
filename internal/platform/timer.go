package platform

import "time"

// TimerID identifies a registered timer. The zero value means "not
// registered" and deregistering it is a no-op, matching spec.md's
// "timer_id = 0 ⇒ not registered" cancellation discipline.
type TimerID uint64

// Timer is the single-shot platform timer collaborator. The HAP core
// composes repetition itself; Timer never fires more than once per
// Register call.
type Timer interface {
	// Register schedules fn to run at deadline. It returns
	// ErrOutOfResources if the platform's timer table is full.
	Register(deadline time.Time, fn func()) (TimerID, error)
	// Deregister cancels a previously registered timer. Idempotent:
	// deregistering an already-fired or zero TimerID is a no-op.
	Deregister(id TimerID)
	// Now returns the platform's current time.
	Now() time.Time
}
