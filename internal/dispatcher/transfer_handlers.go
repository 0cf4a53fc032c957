package dispatcher

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ossexec/ltxd/internal/protocol"
	"github.com/ossexec/ltxd/internal/transfer"
)

// handleExec implements §4.D's exec handler: start the child with its
// stdout/stderr on one pipe, register the read end level-triggered (like
// ltx.c's own pipe registration), and record the pid. Level-triggered
// readiness keeps re-firing as long as unread bytes (or the terminal EOF)
// remain, so handleChildReadable's one-read-per-event shape never strands
// data the way edge-triggered would without an EAGAIN-drain loop.
func (l *Loop) handleExec(args *protocol.ExecMsg) error {
	_, readEnd, err := l.table.Exec(args.Slot, args.Argv)
	if err != nil {
		return fmt.Errorf("exec slot %d: %w", args.Slot, err)
	}

	fd := int(readEnd.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	if err := l.epollAdd(fd, unix.EPOLLIN, tagChild); err != nil {
		return err
	}
	l.childFds[fd] = args.Slot
	l.observer.ObserveSpawn()
	return nil
}

// handleGetFile implements §4.D's get_file handler: announce the payload
// length, flush pending writes, switch stdout to blocking, sendfile the
// whole file, then restore non-blocking mode.
func (l *Loop) handleGetFile(args *protocol.GetFileMsg) error {
	f, err := os.OpenFile(args.Path, os.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("get_file %s: %w", args.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("get_file %s: stat: %w", args.Path, err)
	}

	protocol.WriteDataHeader(l.outBuf, int(info.Size()))

	if err := l.drain(); err != nil {
		return err
	}
	if err := l.flushBlocking(); err != nil {
		return err
	}

	if err := unix.SetNonblock(l.outFd, false); err != nil {
		return err
	}
	sendErr := transfer.SendFile(l.outFd, f, info.Size())
	if err := unix.SetNonblock(l.outFd, true); err != nil {
		return err
	}
	if sendErr != nil {
		return fmt.Errorf("get_file %s: %w", args.Path, sendErr)
	}

	l.observer.ObserveMessage("out", uint64(info.Size()))
	l.observer.ObserveFileSent(uint64(info.Size()))
	return nil
}

// handleSetFile implements §4.D's set_file handler. args.BinLen bytes of
// payload follow the already-parsed header in the wire stream; whatever
// portion is already sitting in in_buf is absorbed with a plain write,
// and the remainder is spliced directly from stdin to the destination
// file. The reply echoes the path and length, then reads the file back.
//
// Returns the total number of in_buf bytes to consume: the header plus
// whatever payload prefix was absorbed from in_buf.
func (l *Loop) handleSetFile(args *protocol.SetFileMsg, headerLen int) (int, error) {
	available := l.inBuf.Len() - headerLen
	if available < 0 {
		available = 0
	}
	absorbed := available
	if absorbed > args.BinLen {
		absorbed = args.BinLen
	}

	prefix := append([]byte(nil), l.inBuf.Start()[headerLen:headerLen+absorbed]...)
	remaining := int64(args.BinLen - absorbed)

	dst, err := os.OpenFile(args.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC|unix.O_CLOEXEC, 0600)
	if err != nil {
		return 0, fmt.Errorf("set_file %s: %w", args.Path, err)
	}
	defer dst.Close()

	// splice blocks for the rest of the payload, so stdin briefly leaves
	// non-blocking mode for the duration of the receive, the same trade-off
	// applied to stdout around sendfile below (§4.D, §9).
	if err := unix.SetNonblock(l.inFd, false); err != nil {
		return 0, err
	}
	recvErr := transfer.ReceiveFile(dst, l.inFd, prefix, remaining)
	if err := unix.SetNonblock(l.inFd, true); err != nil {
		return 0, err
	}
	if recvErr != nil {
		return 0, fmt.Errorf("set_file %s: %w", args.Path, recvErr)
	}

	// No separate ack is written here: handleFrame already echoed the
	// inbound [set_file, path, bin-header] bytes verbatim, and since
	// set_file's bin argument is header-only on the wire (the payload
	// streams separately), that echo already is the exact
	// [set_file, path, bin-header-only] reply the protocol calls for
	// (§4.D, §6). Only the readback payload remains to be sent.
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("set_file %s: seek for readback: %w", args.Path, err)
	}

	if err := l.drain(); err != nil {
		return 0, err
	}
	if err := l.flushBlocking(); err != nil {
		return 0, err
	}
	if err := unix.SetNonblock(l.outFd, false); err != nil {
		return 0, err
	}
	sendErr := transfer.SendFile(l.outFd, dst, int64(args.BinLen))
	if err := unix.SetNonblock(l.outFd, true); err != nil {
		return 0, err
	}
	if sendErr != nil {
		return 0, fmt.Errorf("set_file %s: readback: %w", args.Path, sendErr)
	}

	l.observer.ObserveMessage("out", uint64(args.BinLen))
	l.observer.ObserveFileReceived(uint64(args.BinLen))
	return headerLen + absorbed, nil
}

// flushBlocking repeatedly drains out_buf until empty, tolerating the
// EAGAIN-driven `blocked` state by waiting for stdout writability. This is
// the "flush pending writes" step before sendfile puts stdout into
// blocking mode (§4.D, §9).
func (l *Loop) flushBlocking() error {
	for l.outBuf.Len() > 0 {
		if err := l.drain(); err != nil {
			return err
		}
		if l.outBuf.Len() == 0 {
			return nil
		}
		events := make([]unix.EpollEvent, 1)
		if _, err := unix.EpollWait(l.epfd, events, -1); err != nil && err != unix.EINTR {
			return err
		}
		l.blocked = false
	}
	return nil
}
