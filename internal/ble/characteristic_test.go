package ble

import (
	"testing"

	"github.com/hapcore/hap/internal/attribute"
	"github.com/hapcore/hap/internal/tlv"
)

func TestEncodeCharacteristicSignatureBasic(t *testing.T) {
	ch := &attribute.Characteristic{
		IID:         5,
		Type:        attribute.AppleDefined(0x25), // On
		Format:      attribute.FormatBool,
		Permissions: attribute.PermPairedRead | attribute.PermPairedWrite | attribute.PermNotify,
	}

	body, err := encodeCharacteristicSignature(ch)
	if err != nil {
		t.Fatalf("encodeCharacteristicSignature: %v", err)
	}

	items, err := tlv.NewReader(body).GetAll(PDUTLVCharacteristicType, PDUTLVHAPCharacteristicPropertiesDescriptor)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	typeItem, ok := items[PDUTLVCharacteristicType]
	if !ok {
		t.Fatal("missing CharacteristicType item")
	}
	if !bytesEqual(typeItem.Value, ch.Type[:]) {
		t.Errorf("CharacteristicType = %x, want %x", typeItem.Value, ch.Type[:])
	}

	propsItem, ok := items[PDUTLVHAPCharacteristicPropertiesDescriptor]
	if !ok {
		t.Fatal("missing HAPCharacteristicPropertiesDescriptor item")
	}
	props, err := tlv.DecodeUint16(propsItem, 0, 0xFFFF)
	if err != nil {
		t.Fatalf("DecodeUint16: %v", err)
	}
	if attribute.Permission(props) != ch.Permissions {
		t.Errorf("properties = %#x, want %#x", props, ch.Permissions)
	}
}

func TestEncodeCharacteristicSignatureWithConstraints(t *testing.T) {
	min, max, step := 0.0, 100.0, 1.0
	ch := &attribute.Characteristic{
		IID:    6,
		Type:   attribute.AppleDefined(0x08), // Brightness
		Format: attribute.FormatUInt8,
		Constraints: &attribute.NumericConstraints{
			Min: &min, Max: &max, StepValue: &step,
		},
	}

	body, err := encodeCharacteristicSignature(ch)
	if err != nil {
		t.Fatalf("encodeCharacteristicSignature: %v", err)
	}

	items, err := tlv.NewReader(body).GetAll(PDUTLVGATTValidRange, PDUTLVHAPStepValueDescriptor)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if _, ok := items[PDUTLVGATTValidRange]; !ok {
		t.Error("expected a GATTValidRange item when Min/Max are set")
	}
	if _, ok := items[PDUTLVHAPStepValueDescriptor]; !ok {
		t.Error("expected a HAPStepValueDescriptor item when StepValue is set")
	}
}

func TestEncodeServiceSignature(t *testing.T) {
	svc := &attribute.Service{
		IID:            2,
		Type:           attribute.AppleDefined(0x43), // Lightbulb
		Primary:        true,
		LinkedServices: []uint64{9, 10},
	}

	body, err := encodeServiceSignature(svc)
	if err != nil {
		t.Fatalf("encodeServiceSignature: %v", err)
	}

	items, err := tlv.NewReader(body).GetAll(PDUTLVHAPServiceProperties, PDUTLVHAPLinkedServices)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	propsItem, ok := items[PDUTLVHAPServiceProperties]
	if !ok {
		t.Fatal("missing HAPServiceProperties item")
	}
	props, err := tlv.DecodeUint16(propsItem, 0, 0xFFFF)
	if err != nil {
		t.Fatalf("DecodeUint16: %v", err)
	}
	if props&0x01 == 0 {
		t.Error("expected the primary-service bit to be set")
	}
}

func TestEncodeServiceSignatureNil(t *testing.T) {
	body, err := encodeServiceSignature(nil)
	if err != nil {
		t.Fatalf("encodeServiceSignature(nil): %v", err)
	}
	if len(body) == 0 {
		t.Error("expected a non-empty zero-properties signature for a nil service")
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
