package server

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hapcore/hap/internal/attribute"
	"github.com/hapcore/hap/internal/ble"
	"github.com/hapcore/hap/internal/cryptoprim"
	"github.com/hapcore/hap/internal/pairing"
	"github.com/hapcore/hap/internal/platform"
	"github.com/hapcore/hap/internal/session"
)

// Delegate receives the accessory server's lifecycle callbacks. All
// methods are invoked from the server's single callback-serial
// goroutine and must not block.
type Delegate interface {
	// HandleFirmwareUpdate is called once Start has detected oldVersion
	// < newVersion, before the new triple is persisted. A non-nil
	// return is treated as fatal, matching the "persistence errors are
	// fatal" policy this core applies to every other KVStore write
	// failure on the startup path.
	HandleFirmwareUpdate(oldVersion, newVersion FirmwareVersion) error
	// HandleUpdatedState reports the server's new top-level State,
	// delivered through the coalescing dirty-timer rather than inline
	// from Start/Stop.
	HandleUpdatedState(state State)
}

// Config wires a Server to its platform collaborators and to the
// already-constructed pairing primitives that must be shared across
// both transports rather than built per-connection.
type Config struct {
	KV       platform.KVStore
	Timer    platform.Timer
	Delegate Delegate
	Logger   *slog.Logger

	// FirmwareVersion is this build's "maj.min.rev" triple.
	FirmwareVersion string

	// MaxPairings bounds the pairing store (spec.md §3 "a small fixed
	// number of admin/non-admin controller pairings").
	MaxPairings int

	AccessoryName string // used as device_id input to the setup hash

	// SetupCodes supplies the setup code displayed on the accessory to
	// every Pair Setup attempt on either transport.
	SetupCodes session.SetupCodeProvider

	BLE BLEConfig // zero value: BLE transport disabled
	IP  IPConfig  // zero value: IP transport disabled
}

// BLEConfig configures the BLE transport. Peripheral and
// PairingCharacteristics are both required to enable BLE; the
// Pairing-service characteristic UUID catalog is out of scope for this
// core (spec.md §1), so the caller must have already published the
// Pairing service and supply the IID-to-PairingKind map itself.
type BLEConfig struct {
	Peripheral             platform.BLEPeripheralManager
	PairingCharacteristics map[uint64]ble.PairingKind
	Values                 ble.ValueDelegate
}

// IPConfig configures the IP transport.
type IPConfig struct {
	Engine platform.IPServerEngine
}

// Server is the top-level accessory server: it owns the LTSK, the
// pairing store, the attribute database, and the BLE/IP transport
// sub-servers built on top of them, and drives the
// {Idle,Running,Stopping} lifecycle of spec.md §4.11.
type Server struct {
	cfg Config

	mu    sync.Mutex
	state State

	db       *attribute.Database
	pairings *pairing.Store
	identity session.AccessoryIdentity

	bleEngine *ble.Engine
	attrStore *attribute.Store

	dirty      bool
	dirtyTimer platform.TimerID
}

// New constructs a Server in state Idle. It does not touch the key-value
// store or any transport until Start is called.
func New(cfg Config) (*Server, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("server: Config.KV is required")
	}
	if cfg.Timer == nil {
		return nil, fmt.Errorf("server: Config.Timer is required")
	}
	if cfg.MaxPairings <= 0 {
		return nil, fmt.Errorf("server: Config.MaxPairings must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, state: StateIdle}, nil
}

// GetState returns the server's current top-level lifecycle state.
func (s *Server) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start brings the server up over its configured transports, following
// the 5-step sequence of spec.md §4.11. It requires the server be Idle
// and the attribute tree valid; primary must have AID 1.
func (s *Server) Start(primary *attribute.Accessory, bridged ...*attribute.Accessory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return platform.NewError("server.Start", platform.ErrInvalidState, fmt.Errorf("server is not Idle"))
	}

	bleEnabled := s.cfg.BLE.Peripheral != nil
	db, err := attribute.NewDatabase(primary, bridged, bleEnabled)
	if err != nil {
		return platform.NewError("server.Start", platform.ErrInvalidData, err)
	}

	// Step 1: firmware version guard.
	newVersion, err := ParseFirmwareVersion(s.cfg.FirmwareVersion)
	if err != nil {
		return platform.NewError("server.Start", platform.ErrInvalidData, err)
	}
	if err := s.checkFirmwareVersion(newVersion); err != nil {
		return err
	}

	// Step 2: load-or-create LTSK.
	identity, err := s.loadOrCreateIdentity()
	if err != nil {
		Fatal(s.cfg.Logger, "loading long-term identity failed", "error", err)
		return err
	}
	s.identity = identity

	// Step 3: admin-cleanup invariant on the pairing store.
	pairings := pairing.NewStore(s.cfg.KV, s.cfg.MaxPairings)
	purged, err := pairings.CleanupInvariant()
	if err != nil {
		Fatal(s.cfg.Logger, "pairing admin-cleanup invariant check failed", "error", err)
		return err
	}
	if purged {
		s.cfg.Logger.Warn("purged pairing set with no admin controller")
		if err := s.cfg.KV.Remove(platform.DomainConfiguration, platform.KeyBLEBroadcastParams); err != nil {
			Fatal(s.cfg.Logger, "removing BLE broadcast parameters after pairing purge failed", "error", err)
			return err
		}
	}
	s.pairings = pairings

	// Step 4: bring up BLE, then IP.
	s.db = db
	s.attrStore = attribute.NewStore()
	if bleEnabled {
		if err := s.startBLE(); err != nil {
			return err
		}
	}
	if s.cfg.IP.Engine != nil {
		if err := s.startIP(); err != nil {
			return err
		}
	}

	s.state = StateRunning
	s.scheduleHandleUpdatedState()
	return nil
}

// checkFirmwareVersion compares newVersion against the persisted
// triple, rejecting a downgrade and running the post-update hook (and
// persisting the new triple) on an upgrade. A first start with no
// persisted version persists newVersion without calling the hook.
func (s *Server) checkFirmwareVersion(newVersion FirmwareVersion) error {
	raw, found, err := s.cfg.KV.Get(platform.DomainConfiguration, platform.KeyFirmwareVersion)
	if err != nil {
		return platform.NewError("server.Start", platform.ErrUnknown, err)
	}
	if !found {
		return s.persistFirmwareVersion(newVersion)
	}

	oldVersion, err := ParseFirmwareVersion(string(raw))
	if err != nil {
		return platform.NewError("server.Start", platform.ErrInvalidData, err)
	}
	switch oldVersion.Compare(newVersion) {
	case 0:
		return nil
	case 1:
		return platform.NewError("server.Start", platform.ErrInvalidState, fmt.Errorf("firmware downgrade rejected: persisted %s, got %s", oldVersion, newVersion))
	}

	if s.cfg.Delegate != nil {
		if err := s.cfg.Delegate.HandleFirmwareUpdate(oldVersion, newVersion); err != nil {
			Fatal(s.cfg.Logger, "firmware update hook failed", "error", err)
			return err
		}
	}
	return s.persistFirmwareVersion(newVersion)
}

func (s *Server) persistFirmwareVersion(v FirmwareVersion) error {
	if err := s.cfg.KV.Set(platform.DomainConfiguration, platform.KeyFirmwareVersion, []byte(v.String())); err != nil {
		return platform.NewError("server.Start", platform.ErrUnknown, err)
	}
	return nil
}

// loadOrCreateIdentity loads the persisted LTSK/derives LTPK, or
// generates and persists a fresh LTSK if none exists yet. Per spec.md
// §3, if no LTSK existed the pairing domain MUST be purged first, since
// any stored pairing was signed against an identity that no longer
// exists.
func (s *Server) loadOrCreateIdentity() (session.AccessoryIdentity, error) {
	raw, found, err := s.cfg.KV.Get(platform.DomainConfiguration, platform.KeyLTSK)
	if err != nil {
		return session.AccessoryIdentity{}, platform.NewError("server.loadOrCreateIdentity", platform.ErrUnknown, err)
	}

	var seed [32]byte
	if found {
		if len(raw) != 32 {
			return session.AccessoryIdentity{}, platform.NewError("server.loadOrCreateIdentity", platform.ErrUnknown, fmt.Errorf("persisted LTSK has wrong length %d", len(raw)))
		}
		copy(seed[:], raw)
	} else {
		if err := s.cfg.KV.PurgeDomain(platform.DomainPairings); err != nil {
			return session.AccessoryIdentity{}, platform.NewError("server.loadOrCreateIdentity", platform.ErrUnknown, err)
		}
		if _, err := rand.Read(seed[:]); err != nil {
			return session.AccessoryIdentity{}, platform.NewError("server.loadOrCreateIdentity", platform.ErrUnknown, err)
		}
		if err := s.cfg.KV.Set(platform.DomainConfiguration, platform.KeyLTSK, seed[:]); err != nil {
			return session.AccessoryIdentity{}, platform.NewError("server.loadOrCreateIdentity", platform.ErrUnknown, err)
		}
	}

	var blind [64]byte
	if _, err := rand.Read(blind[:]); err != nil {
		return session.AccessoryIdentity{}, platform.NewError("server.loadOrCreateIdentity", platform.ErrUnknown, err)
	}
	priv, pub, err := cryptoprim.Ed25519KeyPair(seed, blind)
	if err != nil {
		return session.AccessoryIdentity{}, platform.NewError("server.loadOrCreateIdentity", platform.ErrUnknown, err)
	}

	return session.AccessoryIdentity{ID: s.cfg.AccessoryName, PrivateKey: priv, PublicKey: pub}, nil
}

// startBLE publishes s.db's service tree over s.cfg.BLE.Peripheral and
// constructs the ble.Engine driving it.
func (s *Server) startBLE() error {
	handleToIID := make(map[platform.AttributeHandle]uint64)

	for _, acc := range s.db.All() {
		for _, svc := range acc.Services {
			if err := s.cfg.BLE.Peripheral.AddService(svc.Type.String(), svc.Primary); err != nil {
				return platform.NewError("server.startBLE", platform.ErrOutOfResources, err)
			}
			for _, ch := range svc.Characteristics {
				props := platform.CharacteristicProperties{
					Read:     ch.Permissions.Has(attribute.PermPairedRead),
					Write:    ch.Permissions.Has(attribute.PermPairedWrite),
					Indicate: ch.Permissions.Has(attribute.PermNotify),
				}
				valueHandle, _, err := s.cfg.BLE.Peripheral.AddCharacteristic(ch.Type.String(), props, nil)
				if err != nil {
					return platform.NewError("server.startBLE", platform.ErrOutOfResources, err)
				}
				handleToIID[valueHandle] = ch.IID
			}
		}
	}

	if err := s.cfg.BLE.Peripheral.PublishServices(); err != nil {
		return platform.NewError("server.startBLE", platform.ErrOutOfResources, err)
	}

	coordinator := &session.PairSetupCoordinator{}
	resumeCache := session.NewPairResumeCache()
	pairingsManager := session.NewPairingsManager(s.pairings, resumeCache)

	s.bleEngine = ble.NewEngine(ble.Config{
		Accessory:              s.db.Primary,
		Store:                  s.attrStore,
		Values:                 s.cfg.BLE.Values,
		Peripheral:             s.cfg.BLE.Peripheral,
		Timer:                  s.cfg.Timer,
		HandleToIID:            handleToIID,
		PairingCharacteristics: s.cfg.BLE.PairingCharacteristics,
		Identity:               s.identity,
		Pairings:               s.pairings,
		SetupCodes:             s.cfg.SetupCodes,
		Coordinator:            coordinator,
		ResumeCache:            resumeCache,
		PairingsManager:        pairingsManager,
	})
	return nil
}

func (s *Server) startIP() error {
	if err := s.cfg.IP.Engine.Init(); err != nil {
		return platform.NewError("server.startIP", platform.ErrUnknown, err)
	}
	if err := s.cfg.IP.Engine.Start(); err != nil {
		return platform.NewError("server.startIP", platform.ErrUnknown, err)
	}
	return nil
}

// Stop transitions Running -> Stopping, asks each transport to stop,
// and finally completes shutdown by emitting Idle. Calling Stop when
// not Running is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return nil
	}
	s.state = StateStopping
	s.scheduleHandleUpdatedState()

	if s.cfg.BLE.Peripheral != nil {
		if err := s.cfg.BLE.Peripheral.RemoveAllServices(); err != nil {
			s.cfg.Logger.Error("removing BLE services on stop failed", "error", err)
		}
	}
	if s.cfg.IP.Engine != nil {
		if err := s.cfg.IP.Engine.Stop(); err != nil {
			s.cfg.Logger.Error("stopping IP engine failed", "error", err)
		}
		if err := s.cfg.IP.Engine.Deinit(); err != nil {
			s.cfg.Logger.Error("deiniting IP engine failed", "error", err)
		}
	}

	s.bleEngine = nil
	s.state = StateIdle
	s.scheduleHandleUpdatedState()
	return nil
}

// scheduleHandleUpdatedState is the coalescing zero-delay "dirty" timer
// of spec.md §4.11/§5: repeated state transitions within one
// callback-serial turn collapse into a single delegate callback
// reporting whatever state is current when the timer fires.
func (s *Server) scheduleHandleUpdatedState() {
	if s.cfg.Delegate == nil || s.cfg.Timer == nil {
		return
	}
	if s.dirty {
		return
	}
	s.dirty = true
	id, err := s.cfg.Timer.Register(s.cfg.Timer.Now(), func() {
		s.mu.Lock()
		s.dirty = false
		state := s.state
		delegate := s.cfg.Delegate
		s.mu.Unlock()
		if delegate != nil {
			delegate.HandleUpdatedState(state)
		}
	})
	if err != nil {
		s.cfg.Logger.Error("scheduling state-update callback failed", "error", err)
		s.dirty = false
		return
	}
	s.dirtyTimer = id
}
