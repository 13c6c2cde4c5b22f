// Package session implements the Pairing protocol's three procedures
// that run over a characteristic write/read pair rather than the
// attribute database proper: Pair Setup (SRP-6a mutual authentication,
// spec.md §4.5), Pair Verify + Pair Resume (X25519/Ed25519 session
// establishment, spec.md §4.6), and Add/Remove/List Pairings
// (spec.md §4.7). State machines are TLV8-in, TLV8-out and hold no
// transport-specific logic; internal/ble feeds them request bytes and
// writes back whatever they return.
//
// TLV type/method/error numbering is taken directly from
// original_source/HAP/HAPPairing.h's HAPPairingTLVType, HAPPairingMethod,
// and HAPPairingError enums (the HomeKit Accessory Protocol
// Specification's Pairing TLV tables).
package session

import "github.com/hapcore/hap/internal/tlv"

// Pairing TLV item types, shared by Pair Setup, Pair Verify, and
// Add/Remove/List Pairings.
const (
	TLVMethod        tlv.Type = 0x00
	TLVIdentifier    tlv.Type = 0x01
	TLVSalt          tlv.Type = 0x02
	TLVPublicKey     tlv.Type = 0x03
	TLVProof         tlv.Type = 0x04
	TLVEncryptedData tlv.Type = 0x05
	TLVState         tlv.Type = 0x06
	TLVError         tlv.Type = 0x07
	TLVRetryDelay    tlv.Type = 0x08
	TLVCertificate   tlv.Type = 0x09
	TLVSignature     tlv.Type = 0x0A
	TLVPermissions   tlv.Type = 0x0B
	TLVFragmentData  tlv.Type = 0x0C
	TLVFragmentLast  tlv.Type = 0x0D
	TLVSessionID     tlv.Type = 0x0E
	TLVFlags         tlv.Type = 0x13
	TLVSeparator     tlv.Type = 0xFF
)

// Method is the kTLVType_Method value for a pairing-protocol exchange.
type Method uint8

const (
	MethodPairSetup         Method = 0x00
	MethodPairSetupWithAuth Method = 0x01
	MethodPairVerify        Method = 0x02
	MethodAddPairing        Method = 0x03
	MethodRemovePairing     Method = 0x04
	MethodListPairings      Method = 0x05
	MethodPairResume        Method = 0x06
)

// ErrorCode is the kTLVType_Error value returned on a failed exchange.
type ErrorCode uint8

const (
	ErrorUnknown        ErrorCode = 0x01
	ErrorAuthentication ErrorCode = 0x02
	ErrorBackoff        ErrorCode = 0x03
	ErrorMaxPeers       ErrorCode = 0x04
	ErrorMaxTries       ErrorCode = 0x05
	ErrorUnavailable    ErrorCode = 0x06
	ErrorBusy           ErrorCode = 0x07
)

// Flag bits carried in TLVFlags (kTLVType_Flags), Table 5-18 of the HAP
// specification.
const (
	FlagTransient uint32 = 1 << 4
	FlagSplit     uint32 = 1 << 24
)

func isValidMethod(m uint8) bool {
	switch Method(m) {
	case MethodPairSetup, MethodPairSetupWithAuth, MethodPairVerify,
		MethodAddPairing, MethodRemovePairing, MethodListPairings, MethodPairResume:
		return true
	default:
		return false
	}
}

func writeErrorTLV(w *tlv.Writer, state uint8, code ErrorCode) error {
	if err := tlv.EncodeUint8(w, TLVState, state); err != nil {
		return err
	}
	return tlv.EncodeUint8(w, TLVError, uint8(code))
}
