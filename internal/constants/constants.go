// Package constants holds the fixed limits of the LTX wire protocol and
// the executor's in-process tables. They are protocol constants, not
// tuning knobs: a slot id is a single byte with the high bit reserved, so
// MaxSlots cannot change without changing the wire format.
package constants

import "time"

const (
	// ProtocolVersion is reported in the version handler's log line.
	ProtocolVersion = "0.0.1-dev"

	// MaxSlots is the number of child-process slots. Slot ids are single
	// bytes with the high bit reserved, so this is part of the wire
	// protocol and must not change.
	MaxSlots = 0x7f

	// BufferCapacity is the size of in_buf and out_buf. Must be large
	// enough to hold at least one max-size message plus the 32-byte log
	// header reserve.
	BufferCapacity = 8192

	// MaxEnvEntries bounds the number of distinct env keys tracked per slot.
	MaxEnvEntries = 256

	// EnvKeyStoreCap and EnvValStoreCap mirror the original's ARG_MAX/16
	// and ARG_MAX/2 sizing (ARG_MAX is taken as 128KiB, matching glibc's
	// typical Linux value).
	argMax         = 128 * 1024
	EnvKeyStoreCap = argMax / 16
	EnvValStoreCap = argMax / 2
	ArgsStoreCap   = argMax / 2

	// MaxArgv bounds the number of argv entries exec() will accept.
	MaxArgv = 256

	// LogReserveBytes is the upper bound on the largest
	// [array, type, slot, ts, str-header] prefix for chunks up to
	// ChildReadChunk bytes. Widen this if ChildReadChunk grows past 32KiB.
	LogReserveBytes = 32

	// ChildReadChunk is the max bytes read from a child's output pipe per
	// readiness event.
	ChildReadChunk = 1024

	// EpollTimeout bounds how long the dispatcher blocks in epoll_wait
	// between housekeeping passes (draining out_buf, parsing in_buf).
	EpollTimeout = 100 * time.Millisecond

	// DrainThresholdDivisor: out_buf is opportunistically drained mid-parse
	// once its used length exceeds capacity/DrainThresholdDivisor.
	DrainThresholdDivisor = 4

	// SendfileChunkMax is the largest single sendfile() transfer size,
	// matching Linux's practical per-call limit (0x7ffff000 bytes).
	SendfileChunkMax = 0x7ffff000

	// MaxEventsPerWait bounds the epoll_wait batch size.
	MaxEventsPerWait = 128

	// MaxSignalBatch bounds how many signalfd_siginfo records are read in
	// one signalfd readiness event — one per possible live child.
	MaxSignalBatch = MaxSlots
)
