package protocol

import (
	"fmt"

	"github.com/ossexec/ltxd/internal/constants"
	"github.com/ossexec/ltxd/internal/wire"
)

// Parse decodes one message from cur, per §4.C:
//  1. consume an array header (fixarray or array16 — exec's arity grows
//     with argc, every other message type has a fixed arity <= 4)
//  2. consume the type byte and validate type <= version; pong/log/result/
//     data are never accepted from the controller
//  3. dispatch by type with arity as a sanity check
//  4. on any nested incomplete read, rewind to before the header and
//     report wire.ErrIncomplete so the caller can wait for more bytes
//
// A non-nil, non-ErrIncomplete error is fatal (§7 class 3).
func Parse(cur *wire.Cursor) (*Frame, error) {
	start := cur.Consumed()

	frame, err := parseFrame(cur)
	if err != nil {
		if err == wire.ErrIncomplete {
			cur.Rewind(start)
		}
		return nil, err
	}

	frame.Raw = append([]byte(nil), cur.Bytes()[start:cur.Consumed()]...)
	return frame, nil
}

func parseFrame(cur *wire.Cursor) (*Frame, error) {
	arity, err := wire.DecodeArrayHeader(cur)
	if err != nil {
		return nil, err
	}
	// exec's arity grows with argc (up to constants.MaxArgv+2), so only a
	// floor is checked here; each message type validates its own ceiling
	// below.
	if arity < 1 {
		return nil, fmt.Errorf("%w: array arity %d out of range", ErrProtocol, arity)
	}

	typeByte, ok := cur.Shift()
	if !ok {
		return nil, wire.ErrIncomplete
	}
	if typeByte > byte(MaxType) {
		return nil, fmt.Errorf("%w: unknown message type %d", ErrProtocol, typeByte)
	}
	msgType := MsgType(typeByte)

	if controllerForbidden[msgType] {
		return nil, fmt.Errorf("%w: type %s is never sent by the controller", ErrProtocol, msgType)
	}

	switch msgType {
	case Ping:
		if arity != 1 {
			return nil, arityErr(msgType, arity, 1)
		}
		return &Frame{Type: msgType}, nil

	case Version:
		if arity != 1 {
			return nil, arityErr(msgType, arity, 1)
		}
		return &Frame{Type: msgType}, nil

	case Env:
		if arity != 4 {
			return nil, arityErr(msgType, arity, 4)
		}
		args, err := parseEnv(cur)
		if err != nil {
			return nil, err
		}
		return &Frame{Type: msgType, Args: args}, nil

	case Exec:
		if arity < 3 {
			return nil, fmt.Errorf("%w: exec arity %d < 3", ErrProtocol, arity)
		}
		args, err := parseExec(cur, arity-2)
		if err != nil {
			return nil, err
		}
		return &Frame{Type: msgType, Args: args}, nil

	case GetFile:
		if arity != 2 {
			return nil, arityErr(msgType, arity, 2)
		}
		args, err := parseGetFile(cur)
		if err != nil {
			return nil, err
		}
		return &Frame{Type: msgType, Args: args}, nil

	case SetFile:
		if arity != 3 {
			return nil, arityErr(msgType, arity, 3)
		}
		args, err := parseSetFile(cur)
		if err != nil {
			return nil, err
		}
		return &Frame{Type: msgType, Args: args}, nil

	case Kill:
		if arity != 2 {
			return nil, arityErr(msgType, arity, 2)
		}
		args, err := parseKill(cur)
		if err != nil {
			return nil, err
		}
		return &Frame{Type: msgType, Args: args}, nil

	default:
		return nil, fmt.Errorf("%w: unhandled message type %s", ErrProtocol, msgType)
	}
}

func arityErr(t MsgType, got, want int) error {
	return fmt.Errorf("%w: %s arity %d != %d", ErrProtocol, t, got, want)
}

func parseEnv(cur *wire.Cursor) (*EnvMsg, error) {
	slot, isNil, err := wire.DecodeNilOrUint(cur)
	if err != nil {
		return nil, err
	}
	if !isNil && slot >= constants.MaxSlots {
		return nil, fmt.Errorf("%w: env slot %d out of range", ErrProtocol, slot)
	}

	keyBytes, err := wire.DecodeStrOrBin(cur)
	if err != nil {
		return nil, err
	}
	valBytes, err := wire.DecodeStrOrBin(cur)
	if err != nil {
		return nil, err
	}

	return &EnvMsg{
		SlotIsNil: isNil,
		Slot:      uint8(slot),
		Key:       string(keyBytes),
		Value:     string(valBytes),
	}, nil
}

func parseExec(cur *wire.Cursor, argc int) (*ExecMsg, error) {
	slot, err := wire.DecodeUint(cur)
	if err != nil {
		return nil, err
	}
	if slot >= constants.MaxSlots {
		return nil, fmt.Errorf("%w: exec slot %d out of range", ErrProtocol, slot)
	}
	if argc > constants.MaxArgv {
		return nil, fmt.Errorf("%w: exec argv count %d too large", ErrProtocol, argc)
	}

	argv := make([]string, argc)
	for i := 0; i < argc; i++ {
		b, err := wire.DecodeStrOrBin(cur)
		if err != nil {
			return nil, err
		}
		argv[i] = string(b)
	}

	return &ExecMsg{Slot: uint8(slot), Argv: argv}, nil
}

func parseGetFile(cur *wire.Cursor) (*GetFileMsg, error) {
	b, err := wire.DecodeStrOrBin(cur)
	if err != nil {
		return nil, err
	}
	return &GetFileMsg{Path: string(b)}, nil
}

func parseSetFile(cur *wire.Cursor) (*SetFileMsg, error) {
	path, err := wire.DecodeStrOrBin(cur)
	if err != nil {
		return nil, err
	}
	// Only the bin header is read here — the payload itself is streamed
	// separately by the transfer layer (§4.D), since it may be far larger
	// than the message buffer and may not yet be fully buffered.
	length, err := wire.DecodeBinHeader(cur)
	if err != nil {
		return nil, err
	}
	return &SetFileMsg{Path: string(path), BinLen: length}, nil
}

func parseKill(cur *wire.Cursor) (*KillMsg, error) {
	slot, err := wire.DecodeUint(cur)
	if err != nil {
		return nil, err
	}
	if slot >= constants.MaxSlots {
		return nil, fmt.Errorf("%w: kill slot %d out of range", ErrProtocol, slot)
	}
	return &KillMsg{Slot: uint8(slot)}, nil
}
