package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPushAndConsume(t *testing.T) {
	buf := NewBuffer(4)
	buf.Push(1)
	buf.Push(2)
	require.Equal(t, 2, buf.Len())
	require.Equal(t, []byte{1, 2}, buf.Start())

	buf.Consume(1)
	require.Equal(t, 1, buf.Len())
	require.Equal(t, []byte{2}, buf.Start())
}

func TestBufferPushPanicsWhenFull(t *testing.T) {
	buf := NewBuffer(1)
	buf.Push(1)
	require.Panics(t, func() { buf.Push(2) })
}

func TestBufferAppendPanicsWhenOverCapacity(t *testing.T) {
	buf := NewBuffer(2)
	require.Panics(t, func() { buf.Append([]byte{1, 2, 3}) })
}

func TestBufferCompactMovesUnreadToFront(t *testing.T) {
	buf := NewBuffer(8)
	buf.Append([]byte{1, 2, 3, 4})
	buf.Consume(2)
	require.Equal(t, []byte{3, 4}, buf.Start())

	buf.Compact()
	require.Equal(t, []byte{3, 4}, buf.Start())
	// After compacting, the full capacity is available again past the
	// unread bytes.
	require.Equal(t, 6, buf.Available())
}

func TestBufferGrowPanicsPastAvailable(t *testing.T) {
	buf := NewBuffer(4)
	require.Panics(t, func() { buf.Grow(5) })
}

func TestBufferReset(t *testing.T) {
	buf := NewBuffer(4)
	buf.Append([]byte{1, 2})
	buf.Consume(1)
	buf.Reset()
	require.Equal(t, 0, buf.Len())
	require.Equal(t, 4, buf.Available())
}

func TestCursorShiftAndTake(t *testing.T) {
	cur := NewCursor([]byte{1, 2, 3, 4, 5})
	b, ok := cur.Shift()
	require.True(t, ok)
	require.Equal(t, byte(1), b)

	s, ok := cur.Take(2)
	require.True(t, ok)
	require.Equal(t, []byte{2, 3}, s)
	require.Equal(t, 3, cur.Consumed())
	require.Equal(t, 2, cur.Remaining)
}

func TestCursorTakeBeyondRemainingLeavesCursorUnchanged(t *testing.T) {
	cur := NewCursor([]byte{1, 2, 3})
	_, ok := cur.Take(10)
	require.False(t, ok)
	require.Equal(t, 0, cur.Consumed())
	require.Equal(t, 3, cur.Remaining)
}

func TestCursorShiftAtEndReportsNotOK(t *testing.T) {
	cur := NewCursor(nil)
	_, ok := cur.Shift()
	require.False(t, ok)
}

func TestCursorRewind(t *testing.T) {
	cur := NewCursor([]byte{1, 2, 3, 4})
	mark := cur.Consumed()
	cur.Shift()
	cur.Take(2)
	require.Equal(t, 3, cur.Consumed())

	cur.Rewind(mark)
	require.Equal(t, mark, cur.Consumed())
	require.Equal(t, 4, cur.Remaining)
}
