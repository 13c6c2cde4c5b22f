package platform

// MFiCoprocessor is the optional Apple Authentication Coprocessor
// collaborator: a register-addressed companion chip that signs Pair
// Setup challenges with a factory-provisioned certificate, grounded on
// original_source/HAP/HAPMFiHWAuth.c's HAPPlatformMFiHWAuth* functions.
// An accessory with no coprocessor simply never constructs one of
// these; the HAP core never requires it.
type MFiCoprocessor interface {
	// PowerOn enables the coprocessor. Idempotent: calling it while
	// already powered on is not an error.
	PowerOn() error
	// PowerOff disables the coprocessor.
	PowerOff()
	// IsPoweredOn reports the coprocessor's current power state.
	IsPoweredOn() bool
	// ReadRegister reads len(buf) bytes starting at register address
	// addr into buf.
	ReadRegister(addr uint8, buf []byte) error
	// WriteRegister writes bytes, whose first byte is the target
	// register address and whose remainder is the register payload, in
	// the single transaction the hardware protocol requires.
	WriteRegister(bytes []byte) error
}
