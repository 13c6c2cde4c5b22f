package attribute

import "fmt"

// PairingServiceType is the Apple-defined Pairing service UUID. It is
// only ever exposed on the BLE transport: HAPAccessoryServerSupportsService
// in original_source/HAP/HAPAccessoryServer.c excludes it specifically
// when asked about the IP transport, so IP-side enumeration of this
// database must do the same.
var PairingServiceType = AppleDefined(0x55)

// Database is the built, validated attribute tree for one accessory
// server: a primary accessory plus, for a bridge, zero or more bridged
// accessories. It is immutable after NewDatabase returns; all mutable
// per-characteristic state lives in a separate Store.
type Database struct {
	Primary  *Accessory
	Bridged  []*Accessory
	bleIID   bool // true if IIDs must additionally fit uint16 (BLE enabled)
	byAID    map[uint64]*Accessory
	svcIndex *ServiceIndex
}

// NewDatabase validates and indexes an accessory tree. bleEnabled
// additionally requires every IID fit in 16 bits, since BLE downcasts
// IIDs onto GATT attribute handles (spec.md §4.3).
func NewDatabase(primary *Accessory, bridged []*Accessory, bleEnabled bool) (*Database, error) {
	if primary == nil {
		return nil, fmt.Errorf("attribute: primary accessory is required")
	}
	if primary.AID != 1 {
		return nil, fmt.Errorf("attribute: primary accessory must have AID 1, got %d", primary.AID)
	}

	all := append([]*Accessory{primary}, bridged...)
	seenAID := make(map[uint64]bool)
	for _, a := range all {
		if seenAID[a.AID] {
			return nil, fmt.Errorf("attribute: duplicate accessory AID %d", a.AID)
		}
		seenAID[a.AID] = true
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if bleEnabled {
			for _, svc := range a.Services {
				if svc.IID > 65535 {
					return nil, fmt.Errorf("attribute: accessory %d service IID %d exceeds BLE's 16-bit attribute handle range", a.AID, svc.IID)
				}
				for _, ch := range svc.Characteristics {
					if ch.IID > 65535 {
						return nil, fmt.Errorf("attribute: accessory %d characteristic IID %d exceeds BLE's 16-bit attribute handle range", a.AID, ch.IID)
					}
				}
			}
		}
	}

	byAID := make(map[uint64]*Accessory, len(all))
	for _, a := range all {
		byAID[a.AID] = a
	}

	db := &Database{
		Primary: primary,
		Bridged: bridged,
		bleIID:  bleEnabled,
		byAID:   byAID,
	}
	db.svcIndex = buildServiceIndex(all)
	return db, nil
}

// Accessory looks up an accessory by AID.
func (d *Database) Accessory(aid uint64) (*Accessory, bool) {
	a, ok := d.byAID[aid]
	return a, ok
}

// All returns every accessory in the database, primary first, bridged
// accessories in declaration order — the same order NewDatabase used
// to build the service-type index.
func (d *Database) All() []*Accessory {
	out := make([]*Accessory, 0, 1+len(d.Bridged))
	out = append(out, d.Primary)
	out = append(out, d.Bridged...)
	return out
}

// SupportsServiceOnIP reports whether a service type may be exposed to
// IP transport controllers. Only the Pairing service is excluded,
// mirroring HAPAccessoryServerSupportsService's IP-transport special
// case in original_source/HAP/HAPAccessoryServer.c.
func (d *Database) SupportsServiceOnIP(serviceType UUID) bool {
	return !serviceType.Equal(PairingServiceType)
}

// ServiceIndex returns the 0-based (UUID, ordinal) <-> (service,
// accessory) index built from this database.
func (d *Database) ServiceIndex() *ServiceIndex {
	return d.svcIndex
}

// serviceLocation names one service's position in its accessory.
type serviceLocation struct {
	Accessory *Accessory
	Service   *Service
}

// ServiceIndex implements spec.md §4.3's "(type, ordinal) -> service"
// lookup: a 0-based ordinal counted per UUID type, in the order the
// primary accessory's services are scanned first, then each bridged
// accessory's services in declaration order. Grounded directly on
// HAPAccessoryServerGetServiceTypeIndex /
// HAPAccessoryServerGetServiceFromServiceTypeIndex in
// original_source/HAP/HAPAccessoryServer.c.
type ServiceIndex struct {
	byOrdinal map[UUID][]serviceLocation
	ordinalOf map[*Service]int
}

func buildServiceIndex(accessories []*Accessory) *ServiceIndex {
	idx := &ServiceIndex{
		byOrdinal: make(map[UUID][]serviceLocation),
		ordinalOf: make(map[*Service]int),
	}
	for _, a := range accessories {
		for _, svc := range a.Services {
			ordinal := len(idx.byOrdinal[svc.Type])
			idx.byOrdinal[svc.Type] = append(idx.byOrdinal[svc.Type], serviceLocation{Accessory: a, Service: svc})
			idx.ordinalOf[svc] = ordinal
		}
	}
	return idx
}

// Lookup returns the service and owning accessory at the given 0-based
// ordinal for a service type.
func (si *ServiceIndex) Lookup(serviceType UUID, ordinal int) (*Service, *Accessory, bool) {
	locs, ok := si.byOrdinal[serviceType]
	if !ok || ordinal < 0 || ordinal >= len(locs) {
		return nil, nil, false
	}
	return locs[ordinal].Service, locs[ordinal].Accessory, true
}

// Ordinal returns a service's 0-based ordinal among services sharing
// its UUID type.
func (si *ServiceIndex) Ordinal(svc *Service) (int, bool) {
	o, ok := si.ordinalOf[svc]
	return o, ok
}

// Count returns how many services of a given type exist across the
// whole database.
func (si *ServiceIndex) Count(serviceType UUID) int {
	return len(si.byOrdinal[serviceType])
}
