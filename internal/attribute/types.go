// Package attribute models the HAP accessory/service/characteristic
// tree: a primary accessory plus, for a bridge, zero or more bridged
// accessories, each owning an ordered list of services that each own
// an ordered list of characteristics (spec.md §3). Every service and
// characteristic carries a 64-bit Instance ID (IID), unique within its
// accessory, downcast to 16 bits on the BLE wire.
//
// The C original links these structs to each other and to mutable
// per-connection state via pointers that form cycles (service → owning
// accessory, characteristic → owning service, etc). Following
// spec.md §9's design note, this package keeps the descriptor tree
// (Accessory/Service/Characteristic) immutable and read-only once built,
// and pushes everything that changes at runtime — cached values, event
// subscriptions — into a separately keyed Store (see runtime.go).
package attribute

import "fmt"

// Format identifies a characteristic's wire value type.
type Format int

const (
	FormatData Format = iota
	FormatBool
	FormatUInt8
	FormatUInt16
	FormatUInt32
	FormatUInt64
	FormatInt
	FormatFloat
	FormatString
	FormatTLV8
)

func (f Format) String() string {
	switch f {
	case FormatData:
		return "data"
	case FormatBool:
		return "bool"
	case FormatUInt8:
		return "uint8"
	case FormatUInt16:
		return "uint16"
	case FormatUInt32:
		return "uint32"
	case FormatUInt64:
		return "uint64"
	case FormatInt:
		return "int"
	case FormatFloat:
		return "float"
	case FormatString:
		return "string"
	case FormatTLV8:
		return "tlv8"
	default:
		return "unknown"
	}
}

// NumericConstraints carries the unit/range/step metadata a numeric
// characteristic format may declare; nil fields mean "unconstrained".
type NumericConstraints struct {
	Min       *float64
	Max       *float64
	StepValue *float64
	Unit      string
}

// Permission is a bitmask of what operations a characteristic allows
// and what authorization they require.
type Permission uint16

const (
	PermPairedRead Permission = 1 << iota
	PermPairedWrite
	PermNotify
	PermAdditionalAuthorization
	PermTimedWrite
	PermHidden
	PermWriteResponse
)

func (p Permission) Has(flag Permission) bool { return p&flag != 0 }

// Characteristic is an immutable descriptor for one characteristic.
// Its current value and subscription state live in a Store, keyed by
// (accessory AID, IID) — never here.
type Characteristic struct {
	IID         uint64
	Type        UUID
	Format      Format
	Permissions Permission
	Constraints *NumericConstraints // only meaningful for numeric Formats
	MaxLen      int                 // only meaningful for FormatString/FormatData; 0 means format default
}

// Service is an immutable descriptor for one service.
type Service struct {
	IID             uint64
	Type            UUID
	Primary         bool
	Hidden          bool
	LinkedServices  []uint64 // IIDs of linked services within the same accessory
	Characteristics []*Characteristic
}

// Accessory is an immutable descriptor for one accessory (the primary
// accessory, or one member of a bridge's bridged-accessory list).
type Accessory struct {
	AID      uint64
	Services []*Service
}

// CharacteristicByIID returns the characteristic with the given IID
// within this accessory, if any.
func (a *Accessory) CharacteristicByIID(iid uint64) (*Characteristic, *Service, bool) {
	for _, svc := range a.Services {
		for _, ch := range svc.Characteristics {
			if ch.IID == iid {
				return ch, svc, true
			}
		}
	}
	return nil, nil, false
}

// Validate checks an accessory's internal consistency: non-empty IIDs,
// and IID uniqueness within the accessory (spec.md §3: "globally unique
// within its accessory").
func (a *Accessory) Validate() error {
	seen := make(map[uint64]bool)
	for _, svc := range a.Services {
		if svc.IID == 0 {
			return fmt.Errorf("attribute: accessory %d has a service with IID 0", a.AID)
		}
		if seen[svc.IID] {
			return fmt.Errorf("attribute: accessory %d has duplicate IID %d", a.AID, svc.IID)
		}
		seen[svc.IID] = true
		for _, ch := range svc.Characteristics {
			if ch.IID == 0 {
				return fmt.Errorf("attribute: accessory %d has a characteristic with IID 0", a.AID)
			}
			if seen[ch.IID] {
				return fmt.Errorf("attribute: accessory %d has duplicate IID %d", a.AID, ch.IID)
			}
			seen[ch.IID] = true
		}
	}
	return nil
}
