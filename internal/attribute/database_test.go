package attribute

import "testing"

func accessoryInfoService(iid uint64) *Service {
	return &Service{
		IID:     iid,
		Type:    AppleDefined(0x3E),
		Primary: true,
		Characteristics: []*Characteristic{
			{IID: iid + 1, Type: AppleDefined(0x23), Format: FormatString, Permissions: PermPairedRead},
		},
	}
}

func lightbulbService(iid uint64) *Service {
	return &Service{
		IID:  iid,
		Type: AppleDefined(0x43),
		Characteristics: []*Characteristic{
			{IID: iid + 1, Type: AppleDefined(0x25), Format: FormatBool, Permissions: PermPairedRead | PermPairedWrite | PermNotify},
		},
	}
}

func TestNewDatabaseRequiresPrimaryAIDOne(t *testing.T) {
	primary := &Accessory{AID: 2, Services: []*Service{accessoryInfoService(1)}}
	if _, err := NewDatabase(primary, nil, false); err == nil {
		t.Error("expected an error when the primary accessory's AID is not 1")
	}
}

func TestNewDatabaseRejectsDuplicateAID(t *testing.T) {
	primary := &Accessory{AID: 1, Services: []*Service{accessoryInfoService(1)}}
	bridged := &Accessory{AID: 1, Services: []*Service{lightbulbService(1)}}
	if _, err := NewDatabase(primary, []*Accessory{bridged}, false); err == nil {
		t.Error("expected an error for a duplicate accessory AID")
	}
}

func TestNewDatabaseRejectsOversizedIIDOnBLE(t *testing.T) {
	primary := &Accessory{AID: 1, Services: []*Service{accessoryInfoService(1)}}
	primary.Services = append(primary.Services, &Service{IID: 70000, Type: AppleDefined(0x43)})
	if _, err := NewDatabase(primary, nil, true); err == nil {
		t.Error("expected an error when an IID exceeds the BLE 16-bit attribute handle range")
	}
}

func TestNewDatabaseAcceptsOversizedIIDWithoutBLE(t *testing.T) {
	primary := &Accessory{AID: 1, Services: []*Service{accessoryInfoService(1)}}
	primary.Services = append(primary.Services, &Service{IID: 70000, Type: AppleDefined(0x43)})
	if _, err := NewDatabase(primary, nil, false); err != nil {
		t.Errorf("NewDatabase() = %v, want nil when BLE is disabled", err)
	}
}

func TestDatabaseAccessoryLookup(t *testing.T) {
	primary := &Accessory{AID: 1, Services: []*Service{accessoryInfoService(1)}}
	bridged := &Accessory{AID: 2, Services: []*Service{lightbulbService(1)}}
	db, err := NewDatabase(primary, []*Accessory{bridged}, false)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}

	if a, ok := db.Accessory(2); !ok || a != bridged {
		t.Errorf("Accessory(2) = %v, %v", a, ok)
	}
	if _, ok := db.Accessory(99); ok {
		t.Error("Accessory(99) reported found=true for a missing AID")
	}
	if all := db.All(); len(all) != 2 || all[0] != primary || all[1] != bridged {
		t.Errorf("All() = %v, want [primary, bridged]", all)
	}
}

func TestServiceIndexOrdinalsAcrossAccessories(t *testing.T) {
	lightType := AppleDefined(0x43)
	primary := &Accessory{AID: 1, Services: []*Service{accessoryInfoService(1), lightbulbService(10)}}
	bridgeA := &Accessory{AID: 2, Services: []*Service{lightbulbService(1)}}
	bridgeB := &Accessory{AID: 3, Services: []*Service{lightbulbService(1)}}

	db, err := NewDatabase(primary, []*Accessory{bridgeA, bridgeB}, false)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	si := db.ServiceIndex()

	if got := si.Count(lightType); got != 3 {
		t.Fatalf("Count(lightbulb) = %d, want 3", got)
	}

	svc, acc, ok := si.Lookup(lightType, 0)
	if !ok || acc.AID != 1 {
		t.Errorf("Lookup(lightbulb, 0) = %v, %v, %v, want primary accessory", svc, acc, ok)
	}
	svc, acc, ok = si.Lookup(lightType, 1)
	if !ok || acc.AID != 2 {
		t.Errorf("Lookup(lightbulb, 1) = %v, %v, %v, want bridged accessory 2", svc, acc, ok)
	}
	svc, acc, ok = si.Lookup(lightType, 2)
	if !ok || acc.AID != 3 {
		t.Errorf("Lookup(lightbulb, 2) = %v, %v, %v, want bridged accessory 3", svc, acc, ok)
	}

	if _, _, ok := si.Lookup(lightType, 3); ok {
		t.Error("Lookup(lightbulb, 3) reported found=true for an out-of-range ordinal")
	}

	ordinal, ok := si.Ordinal(svc)
	if !ok || ordinal != 2 {
		t.Errorf("Ordinal(bridgeB's lightbulb) = %d, %v, want 2", ordinal, ok)
	}
}

func TestDatabaseSupportsServiceOnIPExcludesPairing(t *testing.T) {
	primary := &Accessory{AID: 1, Services: []*Service{accessoryInfoService(1)}}
	db, err := NewDatabase(primary, nil, false)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	if db.SupportsServiceOnIP(PairingServiceType) {
		t.Error("expected the Pairing service to be excluded from IP transport")
	}
	if !db.SupportsServiceOnIP(AppleDefined(0x43)) {
		t.Error("expected a regular service type to be supported on IP transport")
	}
}
