package ble

import (
	"encoding/binary"
	"math"

	"github.com/hapcore/hap/internal/attribute"
	"github.com/hapcore/hap/internal/tlv"
)

// encodeCharacteristicSignature serializes a
// HAP-Characteristic-Signature-Read-Response body: the characteristic
// type, its GATT-properties descriptor derived from its HAP
// permissions, and, for numeric formats, its valid range and step
// value (HAPBLEPDU+TLV.h's HAPBLEPDUTLVSerializeCharacteristicType /
// HAPBLEPDUTLVSerializeHAPCharacteristicPropertiesDescriptor /
// HAPBLEPDUTLVSerializeGATTValidRange /
// HAPBLEPDUTLVSerializeHAPStepValueDescriptor).
func encodeCharacteristicSignature(ch *attribute.Characteristic) ([]byte, error) {
	w := tlv.NewWriter()
	if err := tlv.EncodeData(w, PDUTLVCharacteristicType, ch.Type[:]); err != nil {
		return nil, err
	}
	if err := tlv.EncodeUint16(w, PDUTLVHAPCharacteristicPropertiesDescriptor, uint16(ch.Permissions)); err != nil {
		return nil, err
	}
	if ch.Constraints != nil {
		if ch.Constraints.Min != nil && ch.Constraints.Max != nil {
			var rng [16]byte
			n := encodeFloatRange(rng[:], *ch.Constraints.Min, *ch.Constraints.Max)
			if err := tlv.EncodeData(w, PDUTLVGATTValidRange, rng[:n]); err != nil {
				return nil, err
			}
		}
		if ch.Constraints.StepValue != nil {
			var step [8]byte
			n := encodeFloatValue(step[:], *ch.Constraints.StepValue)
			if err := tlv.EncodeData(w, PDUTLVHAPStepValueDescriptor, step[:n]); err != nil {
				return nil, err
			}
		}
	}
	return w.Bytes(), nil
}

// encodeServiceSignature serializes a
// HAP-Service-Signature-Read-Response body: service properties
// (primary/hidden bits) and linked-service IIDs.
func encodeServiceSignature(svc *attribute.Service) ([]byte, error) {
	w := tlv.NewWriter()
	var props uint16
	var linkedServices []uint64
	if svc != nil {
		if svc.Primary {
			props |= 1 << 0
		}
		if svc.Hidden {
			props |= 1 << 1
		}
		linkedServices = svc.LinkedServices
	}
	if err := tlv.EncodeUint16(w, PDUTLVHAPServiceProperties, props); err != nil {
		return nil, err
	}
	if len(linkedServices) > 0 {
		linked := make([]byte, 2*len(linkedServices))
		for i, iid := range linkedServices {
			binary.LittleEndian.PutUint16(linked[2*i:], uint16(iid))
		}
		if err := tlv.EncodeData(w, PDUTLVHAPLinkedServices, linked); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// encodeFloatRange packs a [min,max] pair as two little-endian IEEE-754
// binary32 values, the GATT Valid Range wire format for HAP's Float
// characteristics; the minimal-width encoding HAP uses for the other
// numeric formats degrades to the integer formats' own widths, which
// this core does not need to distinguish at the signature-read layer.
func encodeFloatRange(buf []byte, min, max float64) int {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(float32(min)))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(float32(max)))
	return 8
}

func encodeFloatValue(buf []byte, v float64) int {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(float32(v)))
	return 4
}
