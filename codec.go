package tlsengine

import (
	"golang.org/x/crypto/cryptobyte"
)

// Reader is the bounds-checked positional reader described in §4.1 (C1). It
// wraps cryptobyte.String, which already refuses to read past its end; we
// add the (min,max) vector-length validation and DecodeError translation the
// spec requires, since a bare cryptobyte failure doesn't know those bounds.
type Reader struct {
	s cryptobyte.String
}

func NewReader(data []byte) *Reader {
	return &Reader{s: cryptobyte.String(data)}
}

// ReadUint reads a big-endian unsigned integer of width 1, 2, 3, or 4 bytes.
func (r *Reader) ReadUint(width int) (uint32, error) {
	switch width {
	case 1:
		var v uint8
		if !r.s.ReadUint8(&v) {
			return 0, newDecodeError("tlsengine.codec: truncated 1-byte integer")
		}
		return uint32(v), nil
	case 2:
		var v uint16
		if !r.s.ReadUint16(&v) {
			return 0, newDecodeError("tlsengine.codec: truncated 2-byte integer")
		}
		return uint32(v), nil
	case 3:
		var v uint32
		if !r.s.ReadUint24(&v) {
			return 0, newDecodeError("tlsengine.codec: truncated 3-byte integer")
		}
		return v, nil
	case 4:
		var v uint32
		if !r.s.ReadUint32(&v) {
			return 0, newDecodeError("tlsengine.codec: truncated 4-byte integer")
		}
		return v, nil
	default:
		return 0, InternalError("tlsengine.codec: unsupported integer width")
	}
}

// ReadVector reads a length-prefixed byte vector whose prefix is
// prefixWidth bytes (1, 2, or 3), and requires the inner length to fall in
// [min,max] inclusive.
func (r *Reader) ReadVector(prefixWidth, min, max int) ([]byte, error) {
	var inner cryptobyte.String
	var ok bool
	switch prefixWidth {
	case 1:
		ok = r.s.ReadUint8LengthPrefixed(&inner)
	case 2:
		ok = r.s.ReadUint16LengthPrefixed(&inner)
	case 3:
		ok = r.s.ReadUint24LengthPrefixed(&inner)
	default:
		return nil, InternalError("tlsengine.codec: unsupported prefix width")
	}
	if !ok {
		return nil, newDecodeError("tlsengine.codec: truncated length-prefixed vector")
	}
	if len(inner) < min || len(inner) > max {
		return nil, newDecodeError("tlsengine.codec: vector length %d outside [%d,%d]", len(inner), min, max)
	}
	return []byte(inner), nil
}

// ReadVectorElements reads a vector of fixed-width elements bounded by a
// total-byte-length prefix, and returns the raw element bytes for the
// caller to split (elementWidth need not divide evenly is an error).
func (r *Reader) ReadVectorElements(prefixWidth, elementWidth int) ([][]byte, error) {
	raw, err := r.ReadVector(prefixWidth, 0, 1<<(8*prefixWidth)-1)
	if err != nil {
		return nil, err
	}
	if len(raw)%elementWidth != 0 {
		return nil, newDecodeError("tlsengine.codec: vector length %d not a multiple of element width %d", len(raw), elementWidth)
	}
	out := make([][]byte, 0, len(raw)/elementWidth)
	for i := 0; i < len(raw); i += elementWidth {
		out = append(out, raw[i:i+elementWidth])
	}
	return out, nil
}

// Remaining returns the bytes not yet consumed.
func (r *Reader) Remaining() []byte {
	return []byte(r.s)
}

// Empty reports whether every byte has been consumed.
func (r *Reader) Empty() bool {
	return len(r.s) == 0
}

// ExpectEmpty fails with DecodeError if trailing bytes remain, per §4.1's
// "completeness" assertion.
func (r *Reader) ExpectEmpty() error {
	if !r.Empty() {
		return newDecodeError("tlsengine.codec: %d trailing bytes after expected end", len(r.s))
	}
	return nil
}

// Writer appends length-prefixed regions with deferred length patching, via
// cryptobyte.Builder's callback-based length-prefix API.
type Writer struct {
	b *cryptobyte.Builder
}

func NewWriter() *Writer {
	return &Writer{b: cryptobyte.NewBuilder(nil)}
}

func (w *Writer) WriteUint(v uint64, width int) {
	switch width {
	case 1:
		w.b.AddUint8(uint8(v))
	case 2:
		w.b.AddUint16(uint16(v))
	case 3:
		w.b.AddUint24(uint32(v))
	case 4:
		w.b.AddUint32(uint32(v))
	default:
		panic("tlsengine.codec: unsupported integer width")
	}
}

func (w *Writer) WriteBytes(data []byte) {
	w.b.AddBytes(data)
}

// WriteVector appends data inside a prefixWidth-byte length-prefixed region.
func (w *Writer) WriteVector(prefixWidth int, data []byte) {
	switch prefixWidth {
	case 1:
		w.b.AddUint8LengthPrefixed(func(c *cryptobyte.Builder) { c.AddBytes(data) })
	case 2:
		w.b.AddUint16LengthPrefixed(func(c *cryptobyte.Builder) { c.AddBytes(data) })
	case 3:
		w.b.AddUint24LengthPrefixed(func(c *cryptobyte.Builder) { c.AddBytes(data) })
	default:
		panic("tlsengine.codec: unsupported prefix width")
	}
}

// Bytes finalizes the builder. An error here reflects an internal
// programming mistake (e.g. a length that overflowed its prefix), never
// peer input, so it is reported as InternalError.
func (w *Writer) Bytes() ([]byte, error) {
	b, err := w.b.Bytes()
	if err != nil {
		return nil, InternalError(err.Error())
	}
	return b, nil
}
