// Package dispatcher implements the single-threaded epoll event loop that
// multiplexes controller I/O, child-process output, and SIGCHLD delivery
// while preserving message ordering and backpressure (§4.F, §4.G, §5).
package dispatcher

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/ossexec/ltxd/internal/childtable"
	"github.com/ossexec/ltxd/internal/constants"
	"github.com/ossexec/ltxd/internal/interfaces"
	"github.com/ossexec/ltxd/internal/protocol"
	"github.com/ossexec/ltxd/internal/wire"
)

// event tags distinguish epoll sources when an event fires. Each
// registration sets EpollEvent.Fd to the real fd and Pad to one of these
// tags, since epoll_event.data is one 8-byte union and x/sys/unix exposes
// it as two int32 halves.
const (
	tagStdin = iota
	tagStdout
	tagSignal
	tagChild
)

// Options configures a Loop.
type Options struct {
	In, Out, Diag *os.File
	Table         *childtable.Table
	Clock         interfaces.Clock
	Logger        interfaces.Logger
	Observer      interfaces.Observer
	Verbose       bool
}

// Loop owns in_buf, out_buf, the child table, and the single epoll set.
// All of its state is touched exclusively from the goroutine running Run —
// no locks, per §5's single-thread ownership model.
type Loop struct {
	inFd, outFd, diagFd int
	sigFd               int
	epfd                int

	inBuf  *wire.Buffer
	outBuf *wire.Buffer

	table    *childtable.Table
	clock    interfaces.Clock
	logger   interfaces.Logger
	observer interfaces.Observer
	verbose  bool

	blocked    bool // stdout write would block; waiting for EPOLLOUT
	childFds   map[int]uint8
	shutdown   bool
}

// New builds a Loop and performs all one-time setup: non-blocking stdout,
// the signalfd mask, and epoll registration of stdin/stdout/signalfd
// (§4.F).
func New(opts Options) (*Loop, error) {
	if opts.Observer == nil {
		opts.Observer = interfaces.NoOpObserver{}
	}

	l := &Loop{
		inFd:     int(opts.In.Fd()),
		outFd:    int(opts.Out.Fd()),
		diagFd:   int(opts.Diag.Fd()),
		inBuf:    wire.NewBuffer(constants.BufferCapacity),
		outBuf:   wire.NewBuffer(constants.BufferCapacity),
		table:    opts.Table,
		clock:    opts.Clock,
		logger:   opts.Logger,
		observer: opts.Observer,
		verbose:  opts.Verbose,
		childFds: make(map[int]uint8, constants.MaxSlots),
	}

	if err := unix.SetNonblock(l.outFd, true); err != nil {
		return nil, fmt.Errorf("dispatcher: set stdout nonblocking: %w", err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: epoll_create1: %w", err)
	}
	l.epfd = epfd

	sigFd, err := l.setupSignalfd()
	if err != nil {
		return nil, err
	}
	l.sigFd = sigFd

	if err := l.epollAdd(l.inFd, unix.EPOLLIN, tagStdin); err != nil {
		return nil, err
	}
	if err := l.epollAdd(l.outFd, unix.EPOLLOUT|unix.EPOLLET, tagStdout); err != nil {
		return nil, err
	}
	if err := l.epollAdd(l.sigFd, unix.EPOLLIN, tagSignal); err != nil {
		return nil, err
	}

	return l, nil
}

// setupSignalfd blocks SIGCHLD and creates a signalfd for it. Go's
// goroutine-multiplexed runtime means a process-wide sigprocmask set from
// one goroutine only reliably covers the OS thread it runs on, so Run
// pins itself with runtime.LockOSThread before calling this — the same
// pinned-thread pattern go-ublk's queue.Runner uses for its io loop.
func (l *Loop) setupSignalfd() (int, error) {
	var mask unix.Sigset_t
	sigsetAdd(&mask, int(unix.SIGCHLD))

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return 0, fmt.Errorf("dispatcher: sigprocmask: %w", err)
	}
	fd, err := unix.Signalfd(-1, &mask, unix.SFD_CLOEXEC)
	if err != nil {
		return 0, fmt.Errorf("dispatcher: signalfd: %w", err)
	}
	return fd, nil
}

func sigsetAdd(set *unix.Sigset_t, sig int) {
	set.Val[(sig-1)/64] |= 1 << uint((sig-1)%64)
}

func (l *Loop) epollAdd(fd int, events uint32, tag int32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd), Pad: tag}
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (l *Loop) epollRemove(fd int) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Run executes the main loop described in §4.F until stdin reports
// EPOLLHUP (clean shutdown, exit 0) or a fatal error occurs (exit 1).
func (l *Loop) Run() (exitCode int, err error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	events := make([]unix.EpollEvent, constants.MaxEventsPerWait)

	for !l.shutdown {
		n, werr := unix.EpollWait(l.epfd, events, int(constants.EpollTimeout.Milliseconds()))
		if werr != nil {
			if werr == unix.EINTR {
				continue
			}
			return 1, fmt.Errorf("dispatcher: epoll_wait: %w", werr)
		}

		for i := 0; i < n; i++ {
			if done, ferr := l.dispatchEvent(events[i]); ferr != nil {
				return 1, ferr
			} else if done {
				return 0, nil
			}
		}

		if l.outBuf.Len() > 0 && !l.blocked {
			if ferr := l.drain(); ferr != nil {
				return 1, ferr
			}
		}
		if l.inBuf.Len() >= 2 {
			if ferr := l.parseAvailable(); ferr != nil {
				return 1, ferr
			}
		}
		if l.outBuf.Len() > 0 && !l.blocked {
			if ferr := l.drain(); ferr != nil {
				return 1, ferr
			}
		}
	}
	return 0, nil
}

// dispatchEvent routes one ready epoll event to its handler. done reports
// clean shutdown (EPOLLHUP on stdin).
func (l *Loop) dispatchEvent(ev unix.EpollEvent) (done bool, err error) {
	fd := int(ev.Fd)

	switch ev.Pad {
	case tagStdin:
		if ev.Events&unix.EPOLLHUP != 0 && ev.Events&unix.EPOLLIN == 0 {
			return true, nil
		}
		return false, l.handleStdinReadable()
	case tagStdout:
		l.blocked = false
		return false, l.drain()
	case tagSignal:
		return false, l.handleSignalReadable()
	case tagChild:
		if slot, ok := l.childFds[fd]; ok {
			return false, l.handleChildReadable(slot, fd)
		}
		return false, nil
	default:
		return false, nil
	}
}

// handleStdinReadable fills in_buf with one read call, per §4.F.
func (l *Loop) handleStdinReadable() error {
	if l.inBuf.Available() == 0 {
		return fmt.Errorf("dispatcher: in_buf overflow: controller sent an oversized message")
	}
	n, err := unix.Read(l.inFd, l.inBuf.End())
	if err != nil {
		if err == unix.EAGAIN {
			return nil
		}
		return fmt.Errorf("dispatcher: read stdin: %w", err)
	}
	if n == 0 {
		l.shutdown = true
		return nil
	}
	l.inBuf.Grow(n)
	return l.parseAvailable()
}

// parseAvailable pulls as many complete messages as the parser can find
// from in_buf, per §4.C's resumable-parse contract, handling each before
// moving to the next so echo-then-reply stays atomic per message.
func (l *Loop) parseAvailable() error {
	for {
		cur := wire.NewCursor(l.inBuf.Start())
		frame, err := protocol.Parse(cur)
		if err != nil {
			if err == wire.ErrIncomplete {
				return nil
			}
			return fmt.Errorf("dispatcher: %w", err)
		}

		headerLen := cur.Consumed()
		l.observer.ObserveMessage("in", uint64(headerLen))

		totalConsumed, err := l.handleFrame(frame, headerLen)
		if err != nil {
			return err
		}
		l.inBuf.Consume(totalConsumed)
		l.inBuf.Compact()

		if l.outBuf.Len() > l.outBuf.Cap()/constants.DrainThresholdDivisor && !l.blocked {
			if err := l.drain(); err != nil {
				return err
			}
		}
		if l.inBuf.Len() < 2 {
			return nil
		}
	}
}

// drain flushes out_buf to stdout, setting blocked on EAGAIN (§4.F, §4.H).
func (l *Loop) drain() error {
	for l.outBuf.Len() > 0 {
		n, err := unix.Write(l.outFd, l.outBuf.Start())
		if err != nil {
			if err == unix.EAGAIN {
				l.blocked = true
				l.observer.ObserveTolerated()
				return nil
			}
			return fmt.Errorf("dispatcher: write stdout: %w", err)
		}
		l.outBuf.Consume(n)
	}
	l.outBuf.Compact()
	return nil
}

// Close releases the loop's own fds (epoll set and signalfd). It does not
// close In/Out/Diag, which the caller owns.
func (l *Loop) Close() error {
	unix.Close(l.sigFd)
	return unix.Close(l.epfd)
}
