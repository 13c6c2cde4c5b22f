package main

import (
	"fmt"
	"sync"
)

// memoryValues is a minimal ble.ValueDelegate backing the demo
// accessory's application characteristics (the Accessory Information
// strings and the Lightbulb's On characteristic). A real accessory
// would wire this to actual hardware state instead of a map.
type memoryValues struct {
	mu     sync.Mutex
	values map[uint64][]byte
}

func newMemoryValues(initial map[uint64][]byte) *memoryValues {
	v := &memoryValues{values: make(map[uint64][]byte, len(initial))}
	for iid, val := range initial {
		v.values[iid] = val
	}
	return v
}

func (v *memoryValues) ReadValue(iid uint64) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.values[iid]
	if !ok {
		return nil, fmt.Errorf("hapd: no value registered for IID %d", iid)
	}
	return val, nil
}

func (v *memoryValues) WriteValue(iid uint64, value []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.values[iid]; !ok {
		return fmt.Errorf("hapd: no value registered for IID %d", iid)
	}
	v.values[iid] = append([]byte(nil), value...)
	return nil
}

// fixedSetupCode hands out a single setup code for the accessory's
// lifetime. A production accessory with a display would rotate this
// periodically; this binary's demo scope does not.
type fixedSetupCode struct {
	code string
}

func (f fixedSetupCode) CurrentSetupCode() (string, error) {
	return f.code, nil
}
