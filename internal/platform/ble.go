package platform

// AttributeHandle is a platform-assigned GATT attribute handle. Its
// concrete representation (e.g. a BLE stack's 16-bit ATT handle) is
// opaque to the core; the core only ever stores and compares it.
type AttributeHandle uint64

// CharacteristicProperties are the GATT properties requested when
// publishing a characteristic, derived from the HAP permission flags
// on attribute.Characteristic.
type CharacteristicProperties struct {
	Read     bool
	Write    bool
	Indicate bool // HAP uses indications, not notifications, for events
}

// BLEDelegate receives GATT server events. All methods are invoked from
// the BLE stack's callback context and must re-enter the accessory
// server's single callback-serial goroutine rather than blocking.
type BLEDelegate interface {
	OnConnect(conn AttributeHandle)
	OnDisconnect(conn AttributeHandle)
	// OnRead is invoked on a GATT Read of handle. The delegate writes up
	// to len(buf) bytes into buf and returns the number written.
	OnRead(conn AttributeHandle, handle AttributeHandle, buf []byte) (n int, err error)
	OnWrite(conn AttributeHandle, handle AttributeHandle, data []byte) error
	// OnReadyToIndicate is invoked once an indication queued via
	// SendIndication may be retried after a prior ATT-busy response.
	OnReadyToIndicate(conn AttributeHandle, handle AttributeHandle)
}

// BLEPeripheralManager is the BLE peripheral stack collaborator. Its
// method shape follows the real Go GATT peripheral server retrieved
// alongside this spec (a Server with AddService/Service/Characteristic
// and connect/disconnect/read/write/indicate-ready callbacks) — see
// DESIGN.md.
type BLEPeripheralManager interface {
	AddService(uuid string, primary bool) error
	// AddCharacteristic registers a characteristic under the most
	// recently added service. If props.Indicate is set, a CCCD
	// descriptor is implicitly created and its handle returned.
	AddCharacteristic(uuid string, props CharacteristicProperties, initial []byte) (value AttributeHandle, cccd AttributeHandle, err error)
	AddDescriptor(uuid string, initial []byte) (AttributeHandle, error)
	PublishServices() error
	RemoveAllServices() error
	SetDelegate(BLEDelegate)
	SendIndication(conn AttributeHandle, handle AttributeHandle, payload []byte) error
	CancelConnection(conn AttributeHandle) error
}
