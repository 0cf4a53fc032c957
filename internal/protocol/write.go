package protocol

import "github.com/ossexec/ltxd/internal/wire"

// WriteMessage encodes a [type, obj...] array (fixarray, or array16 past
// 15 elements) into buf. Every reply the
// agent sends is one call to this with the right object list (§4.C, §6).
func WriteMessage(buf *wire.Buffer, msgType MsgType, objs ...wire.Object) {
	wire.EncodeArrayHeader(buf, 1+len(objs))
	wire.EncodeUint(buf, uint64(msgType))
	for _, obj := range objs {
		wire.WriteObject(buf, obj)
	}
}

// WritePong encodes a [pong, now_ns] reply.
func WritePong(buf *wire.Buffer, nowNS uint64) {
	WriteMessage(buf, Pong, wire.Num(nowNS))
}

// WriteLog encodes a [log, slot_or_nil, ts, text] diagnostic frame. Pass
// slotIsNil true for agent-wide log lines (e.g. the version reply); false
// with a slot id for output attributed to a specific child.
func WriteLog(buf *wire.Buffer, slotIsNil bool, slot uint8, ts uint64, text string) {
	slotObj := wire.Nil()
	if !slotIsNil {
		slotObj = wire.Num(uint64(slot))
	}
	WriteMessage(buf, Log, slotObj, wire.Num(ts), wire.Str(text))
}

// WriteResult encodes a [result, slot, ts, si_code, si_status] frame
// reporting a reaped child's termination (§4.G, §6).
func WriteResult(buf *wire.Buffer, slot uint8, ts uint64, siCode, siStatus int32) {
	WriteMessage(buf, Result, wire.Num(uint64(slot)), wire.Num(ts), wire.Num(uint64(siCode)), wire.Num(uint64(siStatus)))
}

// WriteDataHeader encodes a [data, bin_header] frame announcing a payload
// of the given length that the transfer layer streams immediately
// afterward via sendfile, without copying it through this buffer.
func WriteDataHeader(buf *wire.Buffer, length int) {
	WriteMessage(buf, Data, wire.BinHeader(length))
}

