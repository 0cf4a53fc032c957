package wire

// Kind tags an Object's payload type.
type Kind int

const (
	KindNumber Kind = iota
	KindStr
	KindBin
	KindNil
)

// Object is a tagged sum over {number u64, str, bin, nil}, used to build
// outbound messages generically. A Str/Bin object with Data == nil writes
// only its length header; the caller streams the payload separately (used
// by get_file/set_file replies, which hand the payload to sendfile
// directly instead of copying it through out_buf).
type Object struct {
	Kind   Kind
	Number uint64
	Len    int
	Data   []byte // nil => header-only
}

// Num constructs a number object.
func Num(n uint64) Object { return Object{Kind: KindNumber, Number: n} }

// Nil constructs a nil object.
func Nil() Object { return Object{Kind: KindNil} }

// Str constructs a complete string object carrying its payload.
func Str(s string) Object { return Object{Kind: KindStr, Len: len(s), Data: []byte(s)} }

// Bin constructs a complete binary object carrying its payload.
func Bin(b []byte) Object { return Object{Kind: KindBin, Len: len(b), Data: b} }

// BinHeader constructs a header-only binary object of the given length,
// whose payload is streamed separately (§4.C).
func BinHeader(length int) Object { return Object{Kind: KindBin, Len: length, Data: nil} }

// WriteObject encodes a single Object into buf.
func WriteObject(buf *Buffer, obj Object) {
	switch obj.Kind {
	case KindNumber:
		EncodeUint(buf, obj.Number)
	case KindStr:
		EncodeStrHeader(buf, obj.Len)
		if obj.Data != nil {
			buf.Append(obj.Data)
		}
	case KindBin:
		EncodeBinHeader(buf, obj.Len)
		if obj.Data != nil {
			buf.Append(obj.Data)
		}
	case KindNil:
		EncodeNil(buf)
	}
}
