package main

import (
	"github.com/hapcore/hap/internal/attribute"
	"github.com/hapcore/hap/internal/ble"
)

// HAP short-form service and characteristic type codes, grounded on
// original_source/HAP/HAPCharacteristicTypes.c and HAPServiceTypes.c.
const (
	serviceAccessoryInformation = 0x3E
	serviceLightbulb            = 0x43
	servicePairing              = 0x55

	charIdentify         = 0x14
	charManufacturer     = 0x20
	charModel            = 0x21
	charName             = 0x23
	charOn               = 0x25
	charSerialNumber     = 0x30
	charFirmwareRevision = 0x52
	charPairSetup        = 0x4C
	charPairVerify       = 0x4E
	charPairingFeatures  = 0x4F
	charPairingPairings  = 0x50
)

// buildPrimaryAccessory assembles the fixed descriptor tree this
// accessory server publishes: Accessory Information and Pairing are
// mandatory on every HAP accessory, Lightbulb is the one application
// service this demo binary exposes.
func buildPrimaryAccessory(manufacturer, model, name, serial, firmware string) *attribute.Accessory {
	nextIID := uint64(1)
	iid := func() uint64 {
		v := nextIID
		nextIID++
		return v
	}

	infoSvc := &attribute.Service{
		IID:     iid(),
		Type:    attribute.AppleDefined(serviceAccessoryInformation),
		Primary: false,
		Characteristics: []*attribute.Characteristic{
			{IID: iid(), Type: attribute.AppleDefined(charIdentify), Format: attribute.FormatBool, Permissions: attribute.PermPairedWrite},
			{IID: iid(), Type: attribute.AppleDefined(charManufacturer), Format: attribute.FormatString, Permissions: attribute.PermPairedRead, MaxLen: len(manufacturer)},
			{IID: iid(), Type: attribute.AppleDefined(charModel), Format: attribute.FormatString, Permissions: attribute.PermPairedRead, MaxLen: len(model)},
			{IID: iid(), Type: attribute.AppleDefined(charName), Format: attribute.FormatString, Permissions: attribute.PermPairedRead, MaxLen: len(name)},
			{IID: iid(), Type: attribute.AppleDefined(charSerialNumber), Format: attribute.FormatString, Permissions: attribute.PermPairedRead, MaxLen: len(serial)},
			{IID: iid(), Type: attribute.AppleDefined(charFirmwareRevision), Format: attribute.FormatString, Permissions: attribute.PermPairedRead, MaxLen: len(firmware)},
		},
	}

	pairingSvc := &attribute.Service{
		IID:  iid(),
		Type: attribute.AppleDefined(servicePairing),
		Characteristics: []*attribute.Characteristic{
			{IID: iid(), Type: attribute.AppleDefined(charPairSetup), Format: attribute.FormatTLV8, Permissions: attribute.PermPairedRead | attribute.PermPairedWrite},
			{IID: iid(), Type: attribute.AppleDefined(charPairVerify), Format: attribute.FormatTLV8, Permissions: attribute.PermPairedRead | attribute.PermPairedWrite},
			{IID: iid(), Type: attribute.AppleDefined(charPairingFeatures), Format: attribute.FormatUInt8, Permissions: attribute.PermPairedRead},
			{IID: iid(), Type: attribute.AppleDefined(charPairingPairings), Format: attribute.FormatTLV8, Permissions: attribute.PermPairedRead | attribute.PermPairedWrite},
		},
	}

	lightSvc := &attribute.Service{
		IID:     iid(),
		Type:    attribute.AppleDefined(serviceLightbulb),
		Primary: true,
		Characteristics: []*attribute.Characteristic{
			{IID: iid(), Type: attribute.AppleDefined(charOn), Format: attribute.FormatBool, Permissions: attribute.PermPairedRead | attribute.PermPairedWrite | attribute.PermNotify},
		},
	}

	return &attribute.Accessory{
		AID:      1,
		Services: []*attribute.Service{infoSvc, pairingSvc, lightSvc},
	}
}

// pairingCharacteristicsByIID maps the Pairing service's four
// characteristic IIDs to the ble.Engine's PairingKind so it knows to
// route writes through the pairing state machines instead of a
// ValueDelegate.
func pairingCharacteristicsByIID(acc *attribute.Accessory) map[uint64]ble.PairingKind {
	out := make(map[uint64]ble.PairingKind)
	for _, svc := range acc.Services {
		if !svc.Type.Equal(attribute.AppleDefined(servicePairing)) {
			continue
		}
		for _, ch := range svc.Characteristics {
			switch {
			case ch.Type.Equal(attribute.AppleDefined(charPairSetup)):
				out[ch.IID] = ble.PairingKindPairSetup
			case ch.Type.Equal(attribute.AppleDefined(charPairVerify)):
				out[ch.IID] = ble.PairingKindPairVerify
			case ch.Type.Equal(attribute.AppleDefined(charPairingFeatures)):
				out[ch.IID] = ble.PairingKindPairingFeatures
			case ch.Type.Equal(attribute.AppleDefined(charPairingPairings)):
				out[ch.IID] = ble.PairingKindPairingPairings
			}
		}
	}
	return out
}
