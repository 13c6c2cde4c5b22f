// Package bletinygo implements platform.BLEPeripheralManager on top of
// tinygo.org/x/bluetooth's peripheral-mode (GATT server) API, the same
// module the teacher's CoreBluetoothAdapter drives in central mode for
// its own ESP32 link.
package bletinygo

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/hapcore/hap/internal/platform"
)

// pendingCharacteristic buffers one AddCharacteristic call until
// PublishServices actually registers the service with the adapter:
// tinygo's bluetooth.Adapter.AddService takes a service's full
// characteristic set in one call, where platform.BLEPeripheralManager's
// contract adds them one at a time after AddService.
type pendingCharacteristic struct {
	uuid    bluetooth.UUID
	props   platform.CharacteristicProperties
	initial []byte
	handle  platform.AttributeHandle
	cccd    platform.AttributeHandle
}

type pendingService struct {
	uuid    bluetooth.UUID
	primary bool
	chars   []*pendingCharacteristic
}

// Peripheral adapts tinygo.org/x/bluetooth's *bluetooth.Adapter to
// platform.BLEPeripheralManager.
type Peripheral struct {
	adapter *bluetooth.Adapter
	name    string

	mu        sync.Mutex
	pending   []*pendingService
	nextID    platform.AttributeHandle
	byHandle  map[platform.AttributeHandle]*registeredChar
	nextConn  platform.AttributeHandle
	connsByID map[string]platform.AttributeHandle

	delegate platform.BLEDelegate
}

type registeredChar struct {
	handle bluetooth.Characteristic
}

// New returns a Peripheral driving tinygo's default Bluetooth adapter,
// advertising under localName once PublishServices is called.
func New(localName string) *Peripheral {
	return &Peripheral{
		adapter:   bluetooth.DefaultAdapter,
		name:      localName,
		byHandle:  make(map[platform.AttributeHandle]*registeredChar),
		connsByID: make(map[string]platform.AttributeHandle),
	}
}

// connHandle returns the platform.AttributeHandle this Peripheral has
// assigned to a device address, allocating one on first sight. tinygo's
// bluetooth.Address does not expose a stable numeric connection handle
// across every supported OS backend, so the adapter keeps its own
// string-keyed table instead of trying to repurpose the address itself.
func (p *Peripheral) connHandle(addr string) platform.AttributeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.connsByID[addr]; ok {
		return h
	}
	p.nextConn++
	p.connsByID[addr] = p.nextConn
	return p.nextConn
}

// AddService implements platform.BLEPeripheralManager. It stages the
// service; the real adapter call happens in PublishServices once every
// characteristic has been added.
func (p *Peripheral) AddService(uuid string, primary bool) error {
	u, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return fmt.Errorf("bletinygo: parse service UUID %q: %w", uuid, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, &pendingService{uuid: u, primary: primary})
	return nil
}

// AddCharacteristic implements platform.BLEPeripheralManager, attaching
// to the most recently added service.
func (p *Peripheral) AddCharacteristic(uuid string, props platform.CharacteristicProperties, initial []byte) (platform.AttributeHandle, platform.AttributeHandle, error) {
	u, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return 0, 0, fmt.Errorf("bletinygo: parse characteristic UUID %q: %w", uuid, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return 0, 0, fmt.Errorf("bletinygo: AddCharacteristic called before any AddService")
	}
	svc := p.pending[len(p.pending)-1]

	p.nextID++
	valueHandle := p.nextID
	var cccdHandle platform.AttributeHandle
	if props.Indicate {
		p.nextID++
		cccdHandle = p.nextID
	}

	svc.chars = append(svc.chars, &pendingCharacteristic{
		uuid:    u,
		props:   props,
		initial: initial,
		handle:  valueHandle,
		cccd:    cccdHandle,
	})
	return valueHandle, cccdHandle, nil
}

// AddDescriptor implements platform.BLEPeripheralManager. tinygo's
// bluetooth package has no standalone descriptor primitive outside the
// CCCD it creates implicitly for a notify/indicate characteristic, so
// this only hands out a bookkeeping handle; the accessory server never
// calls it for anything but the CCCD, which AddCharacteristic already
// covers.
func (p *Peripheral) AddDescriptor(uuid string, initial []byte) (platform.AttributeHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	return p.nextID, nil
}

// PublishServices registers every staged service with the adapter and
// starts advertising.
func (p *Peripheral) PublishServices() error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("bletinygo: enabling adapter: %w", err)
	}

	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if p.delegate == nil {
			return
		}
		conn := p.connHandle(device.Address.String())
		if connected {
			p.delegate.OnConnect(conn)
		} else {
			p.delegate.OnDisconnect(conn)
		}
	})

	for _, svc := range pending {
		cfgs := make([]bluetooth.CharacteristicConfig, 0, len(svc.chars))
		for _, pc := range svc.chars {
			pc := pc
			var handleRef bluetooth.Characteristic
			flags := characteristicFlags(pc.props)
			cfg := bluetooth.CharacteristicConfig{
				Handle: &handleRef,
				UUID:   pc.uuid,
				Value:  pc.initial,
				Flags:  flags,
			}
			if pc.props.Write {
				cfg.WriteEvent = func(client bluetooth.Connection, offset int, value []byte) {
					if p.delegate == nil {
						return
					}
					conn := platform.AttributeHandle(client)
					if err := p.delegate.OnWrite(conn, pc.handle, value); err != nil {
						return
					}
				}
			}
			cfgs = append(cfgs, cfg)
			p.mu.Lock()
			p.byHandle[pc.handle] = &registeredChar{handle: handleRef}
			p.mu.Unlock()
		}

		if err := p.adapter.AddService(&bluetooth.Service{
			UUID:            svc.uuid,
			Characteristics: cfgs,
		}); err != nil {
			return fmt.Errorf("bletinygo: adding service %s: %w", svc.uuid.String(), err)
		}
	}

	adv := p.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{LocalName: p.name}); err != nil {
		return fmt.Errorf("bletinygo: configuring advertisement: %w", err)
	}
	return adv.Start()
}

func characteristicFlags(props platform.CharacteristicProperties) bluetooth.CharacteristicPermissions {
	var flags bluetooth.CharacteristicPermissions
	if props.Read {
		flags |= bluetooth.CharacteristicReadPermission
	}
	if props.Write {
		flags |= bluetooth.CharacteristicWritePermission
	}
	if props.Indicate {
		flags |= bluetooth.CharacteristicIndicatePermission
	}
	return flags
}

// RemoveAllServices implements platform.BLEPeripheralManager. tinygo's
// bluetooth package has no API to tear down a published GATT table
// short of disabling the adapter, so Stop-time cleanup just clears the
// staged state and lets the next Start republish from scratch.
func (p *Peripheral) RemoveAllServices() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	p.byHandle = make(map[platform.AttributeHandle]*registeredChar)
	return nil
}

// SetDelegate implements platform.BLEPeripheralManager.
func (p *Peripheral) SetDelegate(d platform.BLEDelegate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate = d
}

// SendIndication implements platform.BLEPeripheralManager by writing
// the new value to the characteristic, which tinygo's peripheral
// implementation turns into a notification/indication to subscribed
// centrals.
func (p *Peripheral) SendIndication(conn platform.AttributeHandle, handle platform.AttributeHandle, payload []byte) error {
	p.mu.Lock()
	rc, ok := p.byHandle[handle]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("bletinygo: unknown characteristic handle %d", handle)
	}
	_, err := rc.handle.Write(payload)
	return err
}

// CancelConnection implements platform.BLEPeripheralManager. tinygo's
// peripheral-mode adapter does not expose a server-initiated
// disconnect; the underlying link is torn down by the central or by
// disabling the adapter.
func (p *Peripheral) CancelConnection(conn platform.AttributeHandle) error {
	return nil
}
