package tlv

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// DecodeUint8 / DecodeUint16 / DecodeUint32 / DecodeUint64 decode an
// item's value as an unsigned little-endian integer no wider than the
// named size, using HAP's minimum-length-on-read convention (a shorter
// encoding than the field's natural width is accepted and zero-extended),
// and enforce [min, max].
func DecodeUint8(item Item, min, max uint8) (uint8, error) {
	v, err := decodeUint(item.Value, 1, uint64(min), uint64(max))
	return uint8(v), err
}

func DecodeUint16(item Item, min, max uint16) (uint16, error) {
	v, err := decodeUint(item.Value, 2, uint64(min), uint64(max))
	return uint16(v), err
}

func DecodeUint32(item Item, min, max uint32) (uint32, error) {
	v, err := decodeUint(item.Value, 4, uint64(min), uint64(max))
	return uint32(v), err
}

func DecodeUint64(item Item, min, max uint64) (uint64, error) {
	return decodeUint(item.Value, 8, min, max)
}

func decodeUint(value []byte, width int, min, max uint64) (uint64, error) {
	if len(value) > width {
		return 0, fmt.Errorf("%w: integer value is %d bytes, expected at most %d", ErrConstraint, len(value), width)
	}
	var v uint64
	for i, b := range value {
		v |= uint64(b) << (8 * uint(i))
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%w: integer value %d outside [%d, %d]", ErrConstraint, v, min, max)
	}
	return v, nil
}

// EncodeUint8 / EncodeUint16 / EncodeUint32 / EncodeUint64 append a
// fixed-width little-endian integer item.
func EncodeUint8(w *Writer, typ Type, v uint8) error {
	return w.WriteItem(typ, []byte{v})
}

func EncodeUint16(w *Writer, typ Type, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return w.WriteItem(typ, b[:])
}

func EncodeUint32(w *Writer, typ Type, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return w.WriteItem(typ, b[:])
}

func EncodeUint64(w *Writer, typ Type, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return w.WriteItem(typ, b[:])
}

// DecodeEnum decodes a single-byte enumeration value and checks it
// against isValid.
func DecodeEnum(item Item, isValid func(uint8) bool) (uint8, error) {
	if len(item.Value) != 1 {
		return 0, fmt.Errorf("%w: enum value is %d bytes, expected 1", ErrConstraint, len(item.Value))
	}
	v := item.Value[0]
	if isValid != nil && !isValid(v) {
		return 0, fmt.Errorf("%w: invalid enumeration value %d", ErrConstraint, v)
	}
	return v, nil
}

// EncodeEnum appends a single-byte enumeration item.
func EncodeEnum(w *Writer, typ Type, v uint8) error {
	return w.WriteItem(typ, []byte{v})
}

// DecodeData validates an opaque byte-string item's length and returns
// its value (a view into the reassembled buffer; callers that retain it
// beyond the decode call should copy).
func DecodeData(item Item, minLen, maxLen int) ([]byte, error) {
	if len(item.Value) < minLen || (maxLen > 0 && len(item.Value) > maxLen) {
		return nil, fmt.Errorf("%w: data length %d outside [%d, %d]", ErrConstraint, len(item.Value), minLen, maxLen)
	}
	return item.Value, nil
}

// EncodeData appends a raw byte-string item.
func EncodeData(w *Writer, typ Type, v []byte) error {
	return w.WriteItem(typ, v)
}

// DecodeString validates a UTF-8 string item's length and content, and
// runs isValid (if non-nil) for message-specific constraints beyond
// encoding and length.
func DecodeString(item Item, minLen, maxLen int, isValid func(string) bool) (string, error) {
	if len(item.Value) < minLen || (maxLen > 0 && len(item.Value) > maxLen) {
		return "", fmt.Errorf("%w: string length %d outside [%d, %d]", ErrConstraint, len(item.Value), minLen, maxLen)
	}
	if !utf8.Valid(item.Value) {
		return "", fmt.Errorf("%w: string is not valid UTF-8", ErrConstraint)
	}
	s := string(item.Value)
	if isValid != nil && !isValid(s) {
		return "", fmt.Errorf("%w: string failed validation", ErrConstraint)
	}
	return s, nil
}

// EncodeString appends a UTF-8 string item.
func EncodeString(w *Writer, typ Type, v string) error {
	return w.WriteItem(typ, []byte(v))
}

// UnionVariant describes one candidate type of a tagged union: the
// wire type that identifies it and a decode function invoked with the
// matching item's raw value.
type UnionVariant struct {
	Type   Type
	Decode func(Item) error
}

// DecodeUnion finds exactly one of variants present in idx, invokes its
// Decode callback, and returns its Type. More than one distinct variant
// type present, or none, is an error — HAP's "first present variant
// wins, duplicates rejected" rule collapses to "exactly one present"
// once IndexedReader has already rejected literal duplicate types.
func DecodeUnion(idx *IndexedReader, variants []UnionVariant) (Type, error) {
	var selected *UnionVariant
	for i := range variants {
		item, ok := idx.Find(variants[i].Type)
		if !ok {
			continue
		}
		if selected != nil {
			return 0, fmt.Errorf("%w: tagged union has both type %02x and %02x present", ErrConstraint, selected.Type, variants[i].Type)
		}
		v := variants[i]
		if err := v.Decode(item); err != nil {
			return 0, err
		}
		selected = &v
	}
	if selected == nil {
		return 0, fmt.Errorf("%w: no tagged union variant present", ErrMissingField)
	}
	return selected.Type, nil
}

// DecodeSequence walks buf as a repeated sequence of itemType items,
// optionally separated by Separator TLVs, invoking each for every
// logical item of itemType in order. Other interleaved types (e.g. a
// structured item's own fields when sequence members are aggregates
// flattened into the same buffer) are left to the caller by re-reading
// the same buffer with a narrower type set; DecodeSequence itself only
// dispatches on itemType and Separator.
func DecodeSequence(buf []byte, itemType Type, each func(Item) error) error {
	r := NewReader(buf)
	for r.Remaining() {
		item, found, err := r.Next()
		if err != nil {
			return err
		}
		if !found {
			break
		}
		switch item.Type {
		case itemType:
			if err := each(item); err != nil {
				return err
			}
		case Separator:
			continue
		default:
			continue
		}
	}
	return nil
}

// EncodeSequence appends each element of items as an itemType TLV,
// separated by a Separator TLV between (not after) elements — the
// shape HAP's List Pairings response uses.
func EncodeSequence(w *Writer, itemType Type, items [][]byte) error {
	for i, v := range items {
		if i > 0 {
			if err := w.WriteItem(Separator, nil); err != nil {
				return err
			}
		}
		if err := w.WriteItem(itemType, v); err != nil {
			return err
		}
	}
	return nil
}
