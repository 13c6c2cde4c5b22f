// Package mfi drives the optional Apple Authentication Coprocessor:
// powering it on and off with a single auto-off timer that each use extends,
// running its self-test, and exchanging the certificate and
// challenge/signature pair Pair Setup's MFi variant needs. Grounded on
// original_source/HAP/HAPMFiHWAuth.c, the coprocessor register map
// documented in HAPMFiHWAuth+Types.h, and the HAP core's platform
// collaborator pattern (internal/platform).
package mfi

// register is a coprocessor register address (Accessory Interface
// Specification R30 §64.5.7 / R29 §69.8.1).
type register uint8

const (
	regDeviceVersion                  register = 0x00
	regAuthenticationRevision         register = 0x01
	regAuthProtocolMajorVersion       register = 0x02
	regAuthProtocolMinorVersion       register = 0x03
	regErrorCode                      register = 0x05
	regAuthControlAndStatus           register = 0x10
	regChallengeResponseDataLength    register = 0x11
	regChallengeResponseData          register = 0x12
	regChallengeDataLength            register = 0x20
	regChallengeData                  register = 0x21
	regAccessoryCertificateDataLength register = 0x30
	regAccessoryCertificateDataPart1  register = 0x31
	regSelfTestStatus                 register = 0x40
	regSystemEventCounter             register = 0x4D
)

// deviceVersion2_0C is the legacy coprocessor's Device Version
// power-up value; present only behind Config.EnableV2_0C.
const deviceVersion2_0C = 0x05

// errorCode is the coprocessor's one-byte Error Code register value.
type errorCode uint8

const errorCodeNone errorCode = 0x00
