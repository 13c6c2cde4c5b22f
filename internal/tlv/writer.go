package tlv

// Writer appends TLV8 items to an internal buffer, splitting values
// longer than 255 bytes into consecutive same-type fragments per
// spec.md §4.2. When MaxBytes is non-zero (the common case on BLE,
// where a characteristic value is bounded by the negotiated ATT MTU)
// WriteItem refuses to grow past it, returning ErrOutOfResources —
// mirroring HAPTLVWriter.c's fixed backing buffer.
type Writer struct {
	buf      []byte
	maxBytes int // 0 means unbounded
}

// NewWriter returns a Writer with no size bound. Use NewBoundedWriter
// for transports with a fixed frame budget.
func NewWriter() *Writer {
	return &Writer{}
}

// NewBoundedWriter returns a Writer that refuses to grow past maxBytes.
func NewBoundedWriter(maxBytes int) *Writer {
	return &Writer{maxBytes: maxBytes}
}

// WriteItem appends one logical TLV item, fragmenting value if it
// exceeds 255 bytes. An empty value is written as a single
// zero-length item (used for Separator and present-but-empty fields).
func (w *Writer) WriteItem(typ Type, value []byte) error {
	if len(value) == 0 {
		return w.appendFragment(typ, nil)
	}
	for off := 0; off < len(value); off += maxFragmentLen {
		end := off + maxFragmentLen
		if end > len(value) {
			end = len(value)
		}
		if err := w.appendFragment(typ, value[off:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) appendFragment(typ Type, frag []byte) error {
	need := 2 + len(frag)
	if w.maxBytes != 0 && len(w.buf)+need > w.maxBytes {
		return ErrOutOfResources
	}
	w.buf = append(w.buf, typ, byte(len(frag)))
	w.buf = append(w.buf, frag...)
	return nil
}

// Bytes returns the accumulated wire-format buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len reports the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}
