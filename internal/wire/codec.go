package wire

import "errors"

// Format bytes for the MessagePack subset this protocol uses. Decoding
// supports exactly this set; anything else is a malformed-format error.
const (
	fmtPosFixintMin = 0x00
	fmtPosFixintMax = 0x7f
	fmtFixArrayMin  = 0x90
	fmtFixArrayMax  = 0x9f
	fmtFixStrMin    = 0xa0
	fmtFixStrMax    = 0xbf
	fmtNil          = 0xc0
	fmtBin8         = 0xc4
	fmtBin16        = 0xc5
	fmtBin32        = 0xc6
	fmtUint8        = 0xcc
	fmtUint16       = 0xcd
	fmtUint32       = 0xce
	fmtUint64       = 0xcf
	fmtStr8         = 0xd9
	fmtStr16        = 0xda
	fmtStr32        = 0xdb
	fmtArray16      = 0xdc
)

// ErrIncomplete signals that a decode needs more bytes than the cursor
// currently holds. It is not an error in the protocol sense (§7 class 1):
// callers rewind and wait for more input.
var ErrIncomplete = errors.New("wire: incomplete")

// ErrMalformed signals an unsupported or structurally invalid encoding —
// a fatal protocol error (§7 class 3).
var ErrMalformed = errors.New("wire: malformed encoding")

// EncodeUint writes n using the smallest of fixint/uint8/16/32/64 that
// fits, per §4.B.
func EncodeUint(buf *Buffer, n uint64) {
	switch {
	case n <= fmtPosFixintMax:
		buf.Push(byte(n))
	case n <= 0xff:
		buf.Push(fmtUint8)
		buf.Push(byte(n))
	case n <= 0xffff:
		buf.Push(fmtUint16)
		putUintBE(buf, n, 2)
	case n <= 0xffffffff:
		buf.Push(fmtUint32)
		putUintBE(buf, n, 4)
	default:
		buf.Push(fmtUint64)
		putUintBE(buf, n, 8)
	}
}

// EncodeArrayHeader writes a fixarray header for n<=15, else array16, per
// §4.B (array32 is never emitted).
func EncodeArrayHeader(buf *Buffer, n int) {
	if n < 0 || n > 0xffff {
		panic("wire: array length out of range")
	}
	if n <= 15 {
		buf.Push(byte(fmtFixArrayMin + n))
		return
	}
	buf.Push(fmtArray16)
	putUintBE(buf, uint64(n), 2)
}

// EncodeNil writes the single-byte nil marker.
func EncodeNil(buf *Buffer) {
	buf.Push(fmtNil)
}

// EncodeStrHeader writes a str header (fixstr/str8/16/32) for a payload of
// length n, choosing the smallest form per §4.B.
func EncodeStrHeader(buf *Buffer, n int) {
	switch {
	case n <= 31:
		buf.Push(byte(fmtFixStrMin + n))
	case n <= 0xff:
		buf.Push(fmtStr8)
		putUintBE(buf, uint64(n), 1)
	case n <= 0xffff:
		buf.Push(fmtStr16)
		putUintBE(buf, uint64(n), 2)
	default:
		buf.Push(fmtStr32)
		putUintBE(buf, uint64(n), 4)
	}
}

// EncodeStr writes a complete string object: header followed by bytes.
func EncodeStr(buf *Buffer, s string) {
	EncodeStrHeader(buf, len(s))
	buf.Append([]byte(s))
}

// EncodeBinHeader writes a bin header (bin8/16/32 — there is no fix form)
// for a payload of length n, per §4.B.
func EncodeBinHeader(buf *Buffer, n int) {
	switch {
	case n <= 0xff:
		buf.Push(fmtBin8)
		putUintBE(buf, uint64(n), 1)
	case n <= 0xffff:
		buf.Push(fmtBin16)
		putUintBE(buf, uint64(n), 2)
	default:
		buf.Push(fmtBin32)
		putUintBE(buf, uint64(n), 4)
	}
}

// EncodeBin writes a complete bin object: header followed by bytes.
func EncodeBin(buf *Buffer, data []byte) {
	EncodeBinHeader(buf, len(data))
	buf.Append(data)
}

func putUintBE(buf *Buffer, n uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		buf.Push(byte(n >> (8 * uint(i))))
	}
}

// takeUintBE reads a big-endian unsigned integer of the given width from
// the cursor. Returns ErrIncomplete if fewer bytes remain.
func takeUintBE(cur *Cursor, width int) (uint64, error) {
	b, ok := cur.Take(width)
	if !ok {
		return 0, ErrIncomplete
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

// DecodeUint decodes a number object (fixint or uint8/16/32/64).
func DecodeUint(cur *Cursor) (uint64, error) {
	fb, ok := cur.Shift()
	if !ok {
		return 0, ErrIncomplete
	}
	switch {
	case fb <= fmtPosFixintMax:
		return uint64(fb), nil
	case fb == fmtUint8:
		return takeUintBE(cur, 1)
	case fb == fmtUint16:
		return takeUintBE(cur, 2)
	case fb == fmtUint32:
		return takeUintBE(cur, 4)
	case fb == fmtUint64:
		return takeUintBE(cur, 8)
	default:
		return 0, ErrMalformed
	}
}

// DecodeNilOrUint decodes either the nil marker or a number object,
// reporting which via isNil. Used for env's slot-or-nil field.
func DecodeNilOrUint(cur *Cursor) (value uint64, isNil bool, err error) {
	fb, ok := cur.Shift()
	if !ok {
		return 0, false, ErrIncomplete
	}
	if fb == fmtNil {
		return 0, true, nil
	}
	switch {
	case fb <= fmtPosFixintMax:
		return uint64(fb), false, nil
	case fb == fmtUint8:
		v, err := takeUintBE(cur, 1)
		return v, false, err
	case fb == fmtUint16:
		v, err := takeUintBE(cur, 2)
		return v, false, err
	case fb == fmtUint32:
		v, err := takeUintBE(cur, 4)
		return v, false, err
	case fb == fmtUint64:
		v, err := takeUintBE(cur, 8)
		return v, false, err
	default:
		return 0, false, ErrMalformed
	}
}

// DecodeArrayHeader decodes a fixarray or array16 header and returns its
// declared element count.
func DecodeArrayHeader(cur *Cursor) (int, error) {
	fb, ok := cur.Shift()
	if !ok {
		return 0, ErrIncomplete
	}
	switch {
	case fb >= fmtFixArrayMin && fb <= fmtFixArrayMax:
		return int(fb - fmtFixArrayMin), nil
	case fb == fmtArray16:
		v, err := takeUintBE(cur, 2)
		return int(v), err
	default:
		return 0, ErrMalformed
	}
}

// DecodeBinHeader decodes a bin header and returns its declared length
// without consuming or requiring the payload bytes. Used by set_file (§4.C),
// whose payload is streamed separately by the transfer layer and may be far
// larger than anything buffered in the cursor.
func DecodeBinHeader(cur *Cursor) (length int, err error) {
	start := cur.Consumed()
	fb, ok := cur.Shift()
	if !ok {
		return 0, ErrIncomplete
	}

	var v uint64
	switch fb {
	case fmtBin8:
		v, err = takeUintBE(cur, 1)
	case fmtBin16:
		v, err = takeUintBE(cur, 2)
	case fmtBin32:
		v, err = takeUintBE(cur, 4)
	default:
		return 0, ErrMalformed
	}
	if err != nil {
		cur.Rewind(start)
		return 0, err
	}
	return int(v), nil
}

// DecodeStrOrBin decodes a str or bin header and its payload, returning
// the payload slice (a view into the cursor's underlying bytes — copy it
// before the backing buffer is compacted). ErrIncomplete is reported, and
// nothing is consumed, if the declared payload exceeds the cursor's
// remainder, per §4.B.
func DecodeStrOrBin(cur *Cursor) (payload []byte, err error) {
	start := cur.Consumed()
	fb, ok := cur.Shift()
	if !ok {
		return nil, ErrIncomplete
	}

	var length int
	switch {
	case fb >= fmtFixStrMin && fb <= fmtFixStrMax:
		length = int(fb - fmtFixStrMin)
	case fb == fmtStr8:
		v, err := takeUintBE(cur, 1)
		if err != nil {
			cur.Rewind(start)
			return nil, err
		}
		length = int(v)
	case fb == fmtStr16:
		v, err := takeUintBE(cur, 2)
		if err != nil {
			cur.Rewind(start)
			return nil, err
		}
		length = int(v)
	case fb == fmtStr32:
		v, err := takeUintBE(cur, 4)
		if err != nil {
			cur.Rewind(start)
			return nil, err
		}
		length = int(v)
	case fb == fmtBin8:
		v, err := takeUintBE(cur, 1)
		if err != nil {
			cur.Rewind(start)
			return nil, err
		}
		length = int(v)
	case fb == fmtBin16:
		v, err := takeUintBE(cur, 2)
		if err != nil {
			cur.Rewind(start)
			return nil, err
		}
		length = int(v)
	case fb == fmtBin32:
		v, err := takeUintBE(cur, 4)
		if err != nil {
			cur.Rewind(start)
			return nil, err
		}
		length = int(v)
	default:
		return nil, ErrMalformed
	}

	data, ok := cur.Take(length)
	if !ok {
		cur.Rewind(start)
		return nil, ErrIncomplete
	}
	return data, nil
}
