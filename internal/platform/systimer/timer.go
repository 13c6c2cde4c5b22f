// Package systimer implements platform.Timer on the real wall clock
// using time.AfterFunc, for cmd/hapd's production server construction.
package systimer

import (
	"sync"
	"time"

	"github.com/hapcore/hap/internal/platform"
)

// Timer is a platform.Timer backed by time.AfterFunc.
type Timer struct {
	mu     sync.Mutex
	nextID platform.TimerID
	active map[platform.TimerID]*time.Timer
}

// New returns a ready-to-use Timer.
func New() *Timer {
	return &Timer{active: make(map[platform.TimerID]*time.Timer)}
}

// Register implements platform.Timer.
func (t *Timer) Register(deadline time.Time, fn func()) (platform.TimerID, error) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.mu.Unlock()

	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}

	timer := time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.active, id)
		t.mu.Unlock()
		fn()
	})

	t.mu.Lock()
	t.active[id] = timer
	t.mu.Unlock()

	return id, nil
}

// Deregister implements platform.Timer.
func (t *Timer) Deregister(id platform.TimerID) {
	if id == 0 {
		return
	}
	t.mu.Lock()
	timer, ok := t.active[id]
	if ok {
		delete(t.active, id)
	}
	t.mu.Unlock()
	if ok {
		timer.Stop()
	}
}

// Now implements platform.Timer.
func (t *Timer) Now() time.Time {
	return time.Now()
}
