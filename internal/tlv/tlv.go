// Package tlv implements the TLV8 wire codec HAP uses for every
// pairing, configuration, and BLE procedure payload: a flat sequence of
// <type:1><length:1><value:length> items, with values longer than 255
// bytes split across consecutive same-type fragments (spec.md §4.2).
//
// Reader/Writer handle the wire-level framing and fragment reassembly.
// The codec helpers in codec.go layer typed field semantics (integer
// range constraints, UTF-8 string validation, tagged unions, sequences)
// on top, mirroring how HAPTLVReader.c / HAPTLVWriter.c drive a typed
// tree without pulling in a generic reflective schema engine — callers
// decode/encode one message type at a time with explicit field calls,
// the way the teacher's own internal/ble/protocol/proto.go hand-rolls
// its message marshaling.
package tlv

import "errors"

// Type identifies a single TLV item within a message. HAP reserves
// 0xFF for the zero-length separator used between sequence items.
type Type = byte

// Separator is the zero-length TLV type used to delimit repeated
// items in a sequence (e.g. the List Pairings response).
const Separator Type = 0xFF

// maxFragmentLen is the largest value length a single TLV fragment can
// carry; longer values are split into consecutive same-type fragments.
const maxFragmentLen = 255

// Item is one decoded logical TLV item: a type and its (possibly
// reassembled) value.
type Item struct {
	Type  Type
	Value []byte
}

var (
	// ErrMalformed is returned when a buffer does not parse as a
	// well-formed sequence of TLV items (truncated header, truncated
	// body, or a non-255-length fragment followed by another fragment
	// of the same type).
	ErrMalformed = errors.New("tlv: malformed item")

	// ErrDuplicateType is returned when an index or schema decode
	// observes the same TLV type more than once where at most one was
	// expected.
	ErrDuplicateType = errors.New("tlv: duplicate TLV type")

	// ErrOutOfResources is returned by a bounded Writer when a value
	// cannot fit in the remaining buffer space.
	ErrOutOfResources = errors.New("tlv: out of resources")

	// ErrConstraint is returned by a codec helper when a decoded value
	// violates its field's range, length, or validity constraint.
	ErrConstraint = errors.New("tlv: value violates field constraint")

	// ErrMissingField is returned when a required (non-optional)
	// struct member or tagged-union variant is absent.
	ErrMissingField = errors.New("tlv: required field missing")
)
