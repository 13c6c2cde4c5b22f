package tlv

// Reader walks a TLV8-encoded buffer sequentially, reassembling
// fragmented long values as it goes. Unlike HAPTLVReader.c it never
// mutates its input buffer: Go slices make a copy-on-reassemble
// approach simpler than the original's in-place compaction trick, with
// identical externally observable behavior.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential reading. buf is read-only; Next
// never modifies it.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports whether any unread bytes remain.
func (r *Reader) Remaining() bool {
	return r.pos < len(r.buf)
}

// Next parses the next logical TLV item, merging any consecutive
// fragments of the same type. It reports found=false once the buffer
// is exhausted.
func (r *Reader) Next() (item Item, found bool, err error) {
	if r.pos >= len(r.buf) {
		return Item{}, false, nil
	}

	start := r.pos
	typ, value, consumed, err := parseLogicalItem(r.buf[start:])
	if err != nil {
		return Item{}, false, err
	}
	r.pos += consumed
	return Item{Type: typ, Value: value}, true, nil
}

// GetAll reads every remaining item and returns those whose type is in
// expected, keyed by type. It is the sequential analogue of
// HAPTLVReaderGetAll: any of the expected types appearing more than
// once is an error (ErrDuplicateType); items of other types are read
// past and left out of the result.
func (r *Reader) GetAll(expected ...Type) (map[Type]Item, error) {
	want := make(map[Type]bool, len(expected))
	for _, t := range expected {
		want[t] = true
	}
	out := make(map[Type]Item, len(expected))
	for r.Remaining() {
		item, found, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		if !want[item.Type] {
			continue
		}
		if _, dup := out[item.Type]; dup {
			return nil, ErrDuplicateType
		}
		out[item.Type] = item
	}
	return out, nil
}

// parseLogicalItem parses one logical item (merging consecutive
// same-type 255-byte fragments) from the start of buf, returning the
// item's type, its reassembled value, and the number of bytes consumed.
func parseLogicalItem(buf []byte) (typ Type, value []byte, consumed int, err error) {
	if len(buf) < 2 {
		return 0, nil, 0, ErrMalformed
	}
	typ = buf[0]
	o := 0
	merged := []byte{}

	for {
		if len(buf)-o < 2 {
			return 0, nil, 0, ErrMalformed
		}
		if buf[o] != typ {
			return 0, nil, 0, ErrMalformed
		}
		fragLen := int(buf[o+1])
		o += 2
		if len(buf)-o < fragLen {
			return 0, nil, 0, ErrMalformed
		}
		merged = append(merged, buf[o:o+fragLen]...)
		o += fragLen

		if fragLen != maxFragmentLen {
			// Only the last fragment of a run may be shorter than 255
			// bytes; a same-type fragment after a short one is malformed.
			if o < len(buf) && buf[o] == typ {
				return 0, nil, 0, ErrMalformed
			}
			break
		}
		// A 255-byte fragment must be followed by another fragment of
		// the same type to continue the logical item; anything else
		// ends this logical item here.
		if o >= len(buf) || buf[o] != typ {
			break
		}
	}
	return typ, merged, o, nil
}
