package dispatcher

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ossexec/ltxd/internal/constants"
	"github.com/ossexec/ltxd/internal/protocol"
	"github.com/ossexec/ltxd/internal/wire"
)

// handleChildReadable implements §4.F's child output handler: bytes are
// read directly into out_buf past a fixed LogReserveBytes gap, the
// [log, slot, ts, str-header] prefix is built in a scratch buffer sized
// to fit the gap, and then the whole prefix+payload run is shifted left
// into place with one copy — avoiding a second copy of the child's
// output through an intermediate buffer.
func (l *Loop) handleChildReadable(slot uint8, fd int) error {
	reserve := constants.LogReserveBytes
	avail := l.outBuf.Available()
	if avail <= reserve {
		// out_buf has no room even for an empty log line right now;
		// retry once draining frees space. The fd stays registered.
		return nil
	}

	chunk := avail - reserve
	if chunk > constants.ChildReadChunk {
		chunk = constants.ChildReadChunk
	}

	region := l.outBuf.End()
	n, err := unix.Read(fd, region[reserve:reserve+chunk])
	if err != nil {
		if err == unix.EAGAIN {
			l.observer.ObserveTolerated()
			return nil
		}
		return fmt.Errorf("dispatcher: read child slot %d: %w", slot, err)
	}
	if n == 0 {
		return l.closeChild(slot, fd)
	}

	header := wire.NewBuffer(reserve)
	wire.EncodeArrayHeader(header, 4)
	wire.EncodeUint(header, uint64(protocol.Log))
	wire.EncodeUint(header, uint64(slot))
	wire.EncodeUint(header, l.clock.NowNS())
	wire.EncodeStrHeader(header, n)
	hdr := header.Start()

	if len(hdr) > reserve {
		return fmt.Errorf("dispatcher: log header %d bytes exceeds reserve %d", len(hdr), reserve)
	}

	start := reserve - len(hdr)
	copy(region[start:reserve], hdr)
	copy(region, region[start:start+len(hdr)+n])
	l.outBuf.Grow(len(hdr) + n)
	l.observer.ObserveMessage("out", uint64(len(hdr)+n))
	return nil
}

// closeChild retires a child's output pipe once it reports EOF: the fd is
// dropped from epoll and closed through its owning *os.File (not a raw
// unix.Close, so the runtime's file finalizer doesn't also try to close
// it), and the slot is freed for reuse (§3 Lifecycle, §4.F).
func (l *Loop) closeChild(slot uint8, fd int) error {
	if err := l.epollRemove(fd); err != nil {
		return err
	}
	delete(l.childFds, fd)

	s, err := l.table.Slot(slot)
	if err != nil {
		return err
	}
	if s.OutFD != nil {
		if err := s.OutFD.Close(); err != nil {
			return err
		}
	}
	return l.table.Release(slot)
}
