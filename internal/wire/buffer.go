// Package wire implements the constrained MessagePack dialect and the
// bounded byte buffers the LTX protocol frames messages on.
package wire

import "fmt"

// Buffer is a fixed-size byte arena with an unread region [offset, offset+used).
// Callers append past the unread region with End/Push and consume from the
// front with Consume; Compact moves the unread bytes back to offset 0. The invariant offset+used <= cap(data) always holds.
type Buffer struct {
	data   []byte
	offset int
	used   int
}

// NewBuffer allocates a buffer with the given fixed capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int { return b.used }

// Cap returns the buffer's total capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Start returns the slice of currently unread bytes.
func (b *Buffer) Start() []byte { return b.data[b.offset : b.offset+b.used] }

// End returns the writable region past the unread bytes, sized to the
// buffer's remaining capacity. Callers write into it and then call Grow.
func (b *Buffer) End() []byte { return b.data[b.offset+b.used:] }

// Available returns how many bytes remain free past the unread region.
func (b *Buffer) Available() int { return len(b.data) - b.offset - b.used }

// Grow marks n additional bytes (already written into End()) as unread.
func (b *Buffer) Grow(n int) {
	if n > b.Available() {
		panic(fmt.Sprintf("wire: grow %d exceeds available %d", n, b.Available()))
	}
	b.used += n
}

// Push appends a single byte. Panics if the buffer is full; callers must
// check Available() first, matching the original's contract-by-assertion
// style rather than returning an error on every push.
func (b *Buffer) Push(v byte) {
	if b.Available() < 1 {
		panic("wire: buffer full")
	}
	b.data[b.offset+b.used] = v
	b.used++
}

// Append copies p into the buffer's writable region, growing by len(p).
// Panics if there isn't room; callers check Available() first.
func (b *Buffer) Append(p []byte) {
	if len(p) > b.Available() {
		panic(fmt.Sprintf("wire: append %d exceeds available %d", len(p), b.Available()))
	}
	copy(b.End(), p)
	b.used += len(p)
}

// Consume drops the first n unread bytes, advancing offset.
func (b *Buffer) Consume(n int) {
	if n > b.used {
		panic(fmt.Sprintf("wire: consume %d exceeds used %d", n, b.used))
	}
	b.offset += n
	b.used -= n
}

// Compact moves the unread region to offset 0, reclaiming space at the end.
func (b *Buffer) Compact() {
	if b.offset == 0 {
		return
	}
	copy(b.data[:b.used], b.Start())
	b.offset = 0
}

// Reset empties the buffer without reallocating.
func (b *Buffer) Reset() {
	b.offset = 0
	b.used = 0
}

// Cursor is a read view over a buffer slice. Consuming N bytes decreases
// Remaining by N and increases Consumed by N. A cursor that attempts to
// read past its remainder reports incomplete without consuming, so callers
// must check Remaining before Take/Shift or inspect the bool return of the
// higher-level decode helpers.
type Cursor struct {
	base     []byte
	consumed int
	Remaining int
}

// NewCursor creates a cursor over buf, starting fully unconsumed.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{base: buf, Remaining: len(buf)}
}

// Consumed returns how many bytes have been read from the cursor so far.
func (c *Cursor) Consumed() int { return c.consumed }

// Bytes returns the full slice this cursor is reading from.
func (c *Cursor) Bytes() []byte { return c.base }

// Shift returns one byte and advances the cursor. ok is false, and the
// cursor is left unchanged, if Remaining is 0.
func (c *Cursor) Shift() (b byte, ok bool) {
	if c.Remaining < 1 {
		return 0, false
	}
	b = c.base[c.consumed]
	c.consumed++
	c.Remaining--
	return b, true
}

// Take returns an n-byte slice and advances the cursor. ok is false, and
// the cursor is left unchanged, if fewer than n bytes remain.
func (c *Cursor) Take(n int) (s []byte, ok bool) {
	if n < 0 || c.Remaining < n {
		return nil, false
	}
	s = c.base[c.consumed : c.consumed+n]
	c.consumed += n
	c.Remaining -= n
	return s, true
}

// Rewind resets the cursor back to a previously observed consumed count,
// used by the message parser when a nested read reports incomplete.
func (c *Cursor) Rewind(toConsumed int) {
	delta := c.consumed - toConsumed
	c.consumed = toConsumed
	c.Remaining += delta
}
