package attribute

import "testing"

func TestPermissionHas(t *testing.T) {
	p := PermPairedRead | PermNotify
	if !p.Has(PermPairedRead) {
		t.Error("expected PermPairedRead to be set")
	}
	if !p.Has(PermNotify) {
		t.Error("expected PermNotify to be set")
	}
	if p.Has(PermPairedWrite) {
		t.Error("did not expect PermPairedWrite to be set")
	}
}

func TestAccessoryValidateRejectsZeroIID(t *testing.T) {
	a := &Accessory{
		AID: 1,
		Services: []*Service{
			{IID: 0, Type: AppleDefined(0x3E)},
		},
	}
	if err := a.Validate(); err == nil {
		t.Error("expected an error for a service with IID 0")
	}
}

func TestAccessoryValidateRejectsDuplicateIID(t *testing.T) {
	a := &Accessory{
		AID: 1,
		Services: []*Service{
			{IID: 1, Type: AppleDefined(0x3E), Characteristics: []*Characteristic{
				{IID: 2, Type: AppleDefined(0x23)},
			}},
			{IID: 2, Type: AppleDefined(0x43)},
		},
	}
	if err := a.Validate(); err == nil {
		t.Error("expected an error for a duplicate IID across service and characteristic")
	}
}

func TestAccessoryValidateAcceptsWellFormedTree(t *testing.T) {
	a := &Accessory{
		AID: 1,
		Services: []*Service{
			{IID: 1, Type: AppleDefined(0x3E), Characteristics: []*Characteristic{
				{IID: 2, Type: AppleDefined(0x23), Format: FormatString, Permissions: PermPairedRead},
			}},
			{IID: 3, Type: AppleDefined(0x43), Characteristics: []*Characteristic{
				{IID: 4, Type: AppleDefined(0x25), Format: FormatBool, Permissions: PermPairedRead | PermPairedWrite | PermNotify},
			}},
		},
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestAccessoryCharacteristicByIID(t *testing.T) {
	target := &Characteristic{IID: 4, Type: AppleDefined(0x25)}
	svc := &Service{IID: 3, Type: AppleDefined(0x43), Characteristics: []*Characteristic{target}}
	a := &Accessory{AID: 1, Services: []*Service{svc}}

	got, gotSvc, ok := a.CharacteristicByIID(4)
	if !ok || got != target || gotSvc != svc {
		t.Errorf("CharacteristicByIID(4) = %v, %v, %v", got, gotSvc, ok)
	}

	if _, _, ok := a.CharacteristicByIID(99); ok {
		t.Error("CharacteristicByIID(99) reported found=true for a missing IID")
	}
}

func TestFormatString(t *testing.T) {
	cases := map[Format]string{
		FormatData:   "data",
		FormatBool:   "bool",
		FormatUInt8:  "uint8",
		FormatString: "string",
		FormatTLV8:   "tlv8",
		Format(99):   "unknown",
	}
	for f, want := range cases {
		if got := f.String(); got != want {
			t.Errorf("Format(%d).String() = %q, want %q", f, got, want)
		}
	}
}
