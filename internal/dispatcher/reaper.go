package dispatcher

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ossexec/ltxd/internal/constants"
	"github.com/ossexec/ltxd/internal/protocol"
)

const siginfoSize = int(unsafe.Sizeof(unix.SignalfdSiginfo{}))

// handleSignalReadable drains the signalfd of however many SIGCHLD
// notifications have queued, reaps each pid's zombie, and queues a
// result message for the owning slot (§4.G). A pid the table doesn't
// recognize is a bug in reaping order or a stray fork, and is fatal.
func (l *Loop) handleSignalReadable() error {
	buf := make([]byte, siginfoSize*constants.MaxSignalBatch)
	n, err := unix.Read(l.sigFd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil
		}
		return fmt.Errorf("dispatcher: read signalfd: %w", err)
	}

	for off := 0; off+siginfoSize <= n; off += siginfoSize {
		info := (*unix.SignalfdSiginfo)(unsafe.Pointer(&buf[off]))
		if err := l.reapOne(info); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) reapOne(info *unix.SignalfdSiginfo) error {
	pid := int(info.Pid)

	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil); err != nil && err != unix.ECHILD {
		return fmt.Errorf("dispatcher: wait4 pid %d: %w", pid, err)
	}

	slotID, _, ok := l.table.Reap(pid)
	if !ok {
		return fmt.Errorf("dispatcher: signalfd reported unknown pid %d", pid)
	}

	// The slot's output pipe may still hold buffered bytes after the child
	// exits; handleChildReadable releases the slot once it observes EOF.
	protocol.WriteResult(l.outBuf, slotID, l.clock.NowNS(), int32(info.Code), int32(info.Status))
	l.observer.ObserveReap()
	return nil
}
