// Package ble implements the BLE HAP-PDU procedure engine: the
// transactional request/response protocol HomeKit controllers speak
// over GATT once (or, for the pairing characteristics, before) a
// session is secured. Opcodes, PDU framing, and procedure-attachment
// rules are grounded on original_source/HAP/HAPBLEPeripheralManager.c,
// HAPBLEProcedure.h, HAPPDU.h, and HAPBLEPDU+TLV.h.
package ble

import "github.com/hapcore/hap/internal/tlv"

// Opcode is a HAP-PDU request opcode (HAPPDU.h's HAPPDUOpcode, Table
// 7-8 of the HomeKit Accessory Protocol Specification).
type Opcode uint8

const (
	OpcodeCharacteristicSignatureRead Opcode = 0x01
	OpcodeCharacteristicWrite         Opcode = 0x02
	OpcodeCharacteristicRead          Opcode = 0x03
	OpcodeCharacteristicTimedWrite    Opcode = 0x04
	OpcodeCharacteristicExecuteWrite  Opcode = 0x05
	OpcodeServiceSignatureRead        Opcode = 0x06
	OpcodeCharacteristicConfiguration Opcode = 0x07
	OpcodeProtocolConfiguration       Opcode = 0x08
	OpcodeToken                       Opcode = 0x10
	OpcodeTokenUpdate                Opcode = 0x11
	OpcodeInfo                        Opcode = 0x12
)

// IsValid reports whether the opcode is one of the defined HAP-PDU
// opcodes (HAPPDUIsValidOpcode).
func (op Opcode) IsValid() bool {
	switch op {
	case OpcodeCharacteristicSignatureRead, OpcodeCharacteristicWrite, OpcodeCharacteristicRead,
		OpcodeCharacteristicTimedWrite, OpcodeCharacteristicExecuteWrite, OpcodeServiceSignatureRead,
		OpcodeCharacteristicConfiguration, OpcodeProtocolConfiguration,
		OpcodeToken, OpcodeTokenUpdate, OpcodeInfo:
		return true
	default:
		return false
	}
}

// ExpectsBody reports whether a request with this opcode carries a
// body_len/body field at all (some, like CharacteristicRead, never do;
// others always do; CharacteristicWrite always does since the new
// value is the point of the request).
func (op Opcode) ExpectsBody() bool {
	switch op {
	case OpcodeCharacteristicSignatureRead, OpcodeCharacteristicRead,
		OpcodeCharacteristicExecuteWrite, OpcodeServiceSignatureRead:
		return false
	default:
		return true
	}
}

// IsServiceOperation reports whether the opcode targets a service IID
// rather than a characteristic IID (HAPBLEPDUOpcodeIsServiceOperation
// in HAPBLEPeripheralManager.c).
func (op Opcode) IsServiceOperation() bool {
	return op == OpcodeServiceSignatureRead
}

func (op Opcode) String() string {
	switch op {
	case OpcodeCharacteristicSignatureRead:
		return "CharacteristicSignatureRead"
	case OpcodeCharacteristicWrite:
		return "CharacteristicWrite"
	case OpcodeCharacteristicRead:
		return "CharacteristicRead"
	case OpcodeCharacteristicTimedWrite:
		return "CharacteristicTimedWrite"
	case OpcodeCharacteristicExecuteWrite:
		return "CharacteristicExecuteWrite"
	case OpcodeServiceSignatureRead:
		return "ServiceSignatureRead"
	case OpcodeCharacteristicConfiguration:
		return "CharacteristicConfiguration"
	case OpcodeProtocolConfiguration:
		return "ProtocolConfiguration"
	case OpcodeToken:
		return "Token"
	case OpcodeTokenUpdate:
		return "TokenUpdate"
	case OpcodeInfo:
		return "Info"
	default:
		return "Unknown"
	}
}

// Status is the HAP-PDU response status byte.
type Status uint8

const (
	StatusSuccess                   Status = 0x00
	StatusUnsupportedPDU            Status = 0x01
	StatusMaxProcedures             Status = 0x02
	StatusInsufficientAuthorization Status = 0x03
	StatusInvalidInstanceID         Status = 0x04
	StatusInsufficientAuthentication Status = 0x05
	StatusInvalidRequest            Status = 0x06
)

// PDUTLVType is a HAP-PDU body item type (HAPBLEPDU+TLV.h's
// HAPBLEPDUTLVType, Table 7-10 of the HomeKit Accessory Protocol
// Specification).
const (
	PDUTLVValue                              tlv.Type = 0x01
	PDUTLVAdditionalAuthorizationData        tlv.Type = 0x02
	PDUTLVOrigin                             tlv.Type = 0x03
	PDUTLVCharacteristicType                  tlv.Type = 0x04
	PDUTLVCharacteristicInstanceID            tlv.Type = 0x05
	PDUTLVServiceType                         tlv.Type = 0x06
	PDUTLVServiceInstanceID                   tlv.Type = 0x07
	PDUTLVTTL                                 tlv.Type = 0x08
	PDUTLVReturnResponse                      tlv.Type = 0x09
	PDUTLVHAPCharacteristicPropertiesDescriptor tlv.Type = 0x0A
	PDUTLVGATTUserDescriptionDescriptor       tlv.Type = 0x0B
	PDUTLVGATTPresentationFormatDescriptor    tlv.Type = 0x0C
	PDUTLVGATTValidRange                      tlv.Type = 0x0D
	PDUTLVHAPStepValueDescriptor              tlv.Type = 0x0E
	PDUTLVHAPServiceProperties                tlv.Type = 0x0F
	PDUTLVHAPLinkedServices                   tlv.Type = 0x10
	PDUTLVHAPValidValuesDescriptor            tlv.Type = 0x11
	PDUTLVHAPValidValuesRangeDescriptor       tlv.Type = 0x12
)
