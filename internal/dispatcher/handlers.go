package dispatcher

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/ossexec/ltxd/internal/constants"
	"github.com/ossexec/ltxd/internal/protocol"
)

// handleFrame echoes frame's raw bytes then dispatches to the per-type
// handler, returning the total number of in_buf bytes the caller should
// consume (headerLen for every type except set_file, which also consumes
// whatever payload prefix was already buffered — §4.D, §4.C).
func (l *Loop) handleFrame(frame *protocol.Frame, headerLen int) (int, error) {
	if l.outBuf.Available() < len(frame.Raw) {
		return 0, fmt.Errorf("dispatcher: out_buf overflow echoing %s", frame.Type)
	}
	l.outBuf.Append(frame.Raw)
	l.observer.ObserveMessage("out", uint64(len(frame.Raw)))

	switch frame.Type {
	case protocol.Ping:
		protocol.WritePong(l.outBuf, l.clock.NowNS())
		return headerLen, nil

	case protocol.Version:
		protocol.WriteLog(l.outBuf, true, 0, l.clock.NowNS(), "LTX Version="+constants.ProtocolVersion)
		return headerLen, nil

	case protocol.Env:
		return headerLen, l.handleEnv(frame.Args.(*protocol.EnvMsg))

	case protocol.Kill:
		return headerLen, l.handleKill(frame.Args.(*protocol.KillMsg))

	case protocol.Exec:
		return headerLen, l.handleExec(frame.Args.(*protocol.ExecMsg))

	case protocol.GetFile:
		return headerLen, l.handleGetFile(frame.Args.(*protocol.GetFileMsg))

	case protocol.SetFile:
		return l.handleSetFile(frame.Args.(*protocol.SetFileMsg), headerLen)

	default:
		return 0, fmt.Errorf("dispatcher: unhandled message type %s", frame.Type)
	}
}

// handleEnv implements §4.D's env handler: a nil slot mutates the
// process-wide environment (inherited by every future child); otherwise
// the value is appended into the target slot's own env store.
func (l *Loop) handleEnv(args *protocol.EnvMsg) error {
	if args.SlotIsNil {
		return os.Setenv(args.Key, args.Value)
	}
	slot, err := l.table.Slot(args.Slot)
	if err != nil {
		return err
	}
	return slot.Env.Set(args.Key, args.Value)
}

// handleKill implements §4.D's kill handler. An already-exited child
// (ESRCH, which os.Process.Kill reports as os.ErrProcessDone) is tolerated
// here and counted as a tolerated error; a slot with no live pid is a no-op.
func (l *Loop) handleKill(args *protocol.KillMsg) error {
	slot, err := l.table.Slot(args.Slot)
	if err != nil {
		return err
	}
	live := slot.Pid != 0
	err = l.table.Kill(args.Slot)
	if err == nil {
		if live {
			l.observer.ObserveKill()
		}
		return nil
	}
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		l.logger.Debugf("kill: slot %d already exited", args.Slot)
		l.observer.ObserveTolerated()
		return nil
	}
	return err
}
