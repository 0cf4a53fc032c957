package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ossexec/ltxd/internal/wire"
)

func encodeFrame(t *testing.T, msgType MsgType, objs ...wire.Object) []byte {
	t.Helper()
	buf := wire.NewBuffer(4096)
	WriteMessage(buf, msgType, objs...)
	return append([]byte(nil), buf.Start()...)
}

func TestParsePing(t *testing.T) {
	raw := encodeFrame(t, Ping)
	cur := wire.NewCursor(raw)
	frame, err := Parse(cur)
	require.NoError(t, err)
	require.Equal(t, Ping, frame.Type)
	require.Nil(t, frame.Args)
	require.Equal(t, raw, frame.Raw)
}

func TestParseEnv(t *testing.T) {
	raw := encodeFrame(t, Env, wire.Num(3), wire.Str("PATH"), wire.Str("/usr/bin"))
	cur := wire.NewCursor(raw)
	frame, err := Parse(cur)
	require.NoError(t, err)
	args, ok := frame.Args.(*EnvMsg)
	require.True(t, ok)
	require.False(t, args.SlotIsNil)
	require.Equal(t, uint8(3), args.Slot)
	require.Equal(t, "PATH", args.Key)
	require.Equal(t, "/usr/bin", args.Value)
}

func TestParseEnvSlotNilIsGlobal(t *testing.T) {
	raw := encodeFrame(t, Env, wire.Nil(), wire.Str("LTP_TIMEOUT"), wire.Str("30"))
	cur := wire.NewCursor(raw)
	frame, err := Parse(cur)
	require.NoError(t, err)
	args := frame.Args.(*EnvMsg)
	require.True(t, args.SlotIsNil)
}

func TestParseExecWithManyArgv(t *testing.T) {
	// Exercises the arity floor fix: exec's arity grows with argc and must
	// not be rejected once argc exceeds the old (incorrect) 15-element cap.
	objs := []wire.Object{wire.Num(1)}
	argv := make([]string, 20)
	for i := range argv {
		argv[i] = "arg"
		objs = append(objs, wire.Str("arg"))
	}
	raw := encodeFrame(t, Exec, objs...)
	cur := wire.NewCursor(raw)
	frame, err := Parse(cur)
	require.NoError(t, err)
	args := frame.Args.(*ExecMsg)
	require.Equal(t, uint8(1), args.Slot)
	require.Len(t, args.Argv, 20)
}

func TestParseGetFile(t *testing.T) {
	raw := encodeFrame(t, GetFile, wire.Str("/tmp/out.log"))
	cur := wire.NewCursor(raw)
	frame, err := Parse(cur)
	require.NoError(t, err)
	args := frame.Args.(*GetFileMsg)
	require.Equal(t, "/tmp/out.log", args.Path)
}

func TestParseSetFileHeaderOnly(t *testing.T) {
	raw := encodeFrame(t, SetFile, wire.Str("/tmp/in.bin"), wire.BinHeader(1024))
	cur := wire.NewCursor(raw)
	frame, err := Parse(cur)
	require.NoError(t, err)
	args := frame.Args.(*SetFileMsg)
	require.Equal(t, "/tmp/in.bin", args.Path)
	require.Equal(t, 1024, args.BinLen)
	// The payload was never appended, so Raw covers exactly the header.
	require.Equal(t, raw, frame.Raw)
}

func TestParseKill(t *testing.T) {
	raw := encodeFrame(t, Kill, wire.Num(5))
	cur := wire.NewCursor(raw)
	frame, err := Parse(cur)
	require.NoError(t, err)
	args := frame.Args.(*KillMsg)
	require.Equal(t, uint8(5), args.Slot)
}

func TestParseRejectsControllerForbiddenTypes(t *testing.T) {
	for _, mt := range []MsgType{Pong, Log, Result, Data} {
		raw := encodeFrame(t, mt, wire.Num(0))
		cur := wire.NewCursor(raw)
		_, err := Parse(cur)
		require.ErrorIs(t, err, ErrProtocol, "type %s must be rejected", mt)
	}
}

func TestParseRejectsArityMismatch(t *testing.T) {
	// kill wants arity 2 ([kill, slot]); give it three elements instead.
	buf := wire.NewBuffer(64)
	wire.EncodeArrayHeader(buf, 3)
	wire.EncodeUint(buf, uint64(Kill))
	wire.EncodeUint(buf, 1)
	wire.EncodeUint(buf, 2)
	cur := wire.NewCursor(buf.Start())
	_, err := Parse(cur)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestParseRejectsOutOfRangeSlot(t *testing.T) {
	raw := encodeFrame(t, Kill, wire.Num(200)) // > constants.MaxSlots (0x7f)
	cur := wire.NewCursor(raw)
	_, err := Parse(cur)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestParseRejectsUnknownType(t *testing.T) {
	buf := wire.NewBuffer(64)
	wire.EncodeArrayHeader(buf, 1)
	wire.EncodeUint(buf, uint64(MaxType)+1)
	cur := wire.NewCursor(buf.Start())
	_, err := Parse(cur)
	require.ErrorIs(t, err, ErrProtocol)
}

// TestParseResumesAtArbitrarySplitPoints feeds a complete message one byte
// at a time, as the dispatcher does across successive reads from stdin: at
// every prefix short of the full frame, Parse must report wire.ErrIncomplete
// and leave the cursor exactly where it started, never partially consumed
// (§4.C point 4, §8).
func TestParseResumesAtArbitrarySplitPoints(t *testing.T) {
	raw := encodeFrame(t, Exec, wire.Num(7), wire.Str("/bin/true"), wire.Str("-x"), wire.Str("arg2"))

	for split := 0; split < len(raw); split++ {
		cur := wire.NewCursor(raw[:split])
		_, err := Parse(cur)
		require.ErrorIs(t, err, wire.ErrIncomplete, "split at %d of %d bytes", split, len(raw))
		require.Equal(t, 0, cur.Consumed(), "incomplete parse must not consume any bytes, split=%d", split)
	}

	cur := wire.NewCursor(raw)
	frame, err := Parse(cur)
	require.NoError(t, err)
	require.Equal(t, Exec, frame.Type)
	require.Equal(t, len(raw), cur.Consumed())
}

// TestParseResumesAcrossTwoFrames exercises the dispatcher's real usage
// pattern: two complete frames back to back, parsed one at a time from a
// cursor that advances between calls.
func TestParseResumesAcrossTwoFrames(t *testing.T) {
	a := encodeFrame(t, Ping)
	b := encodeFrame(t, Kill, wire.Num(1))
	raw := append(append([]byte(nil), a...), b...)

	cur := wire.NewCursor(raw)
	f1, err := Parse(cur)
	require.NoError(t, err)
	require.Equal(t, Ping, f1.Type)

	f2, err := Parse(cur)
	require.NoError(t, err)
	require.Equal(t, Kill, f2.Type)
	require.Equal(t, len(raw), cur.Consumed())
}
