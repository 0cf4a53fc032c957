// Package protocol implements the LTX message layer: serializing typed
// outbound messages and parsing inbound ones from a resumable cursor over
// the wire codec (internal/wire).
package protocol

import "errors"

// MsgType is the one-byte message type tag, always the first element of
// the top-level array (a fixarray, or array16 for an exec with more than
// 15 elements) (§3, §6).
type MsgType uint8

const (
	Ping MsgType = iota
	Pong
	Env
	Exec
	Log
	Result
	GetFile
	SetFile
	Data
	Kill
	Version
)

// MaxType is the highest recognized type code; inbound types greater than
// this are rejected.
const MaxType = Version

func (t MsgType) String() string {
	switch t {
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	case Env:
		return "env"
	case Exec:
		return "exec"
	case Log:
		return "log"
	case Result:
		return "result"
	case GetFile:
		return "get_file"
	case SetFile:
		return "set_file"
	case Data:
		return "data"
	case Kill:
		return "kill"
	case Version:
		return "version"
	default:
		return "unknown"
	}
}

// ErrProtocol marks a fatal, non-resumable parse failure: an unsupported
// message type, an arity mismatch, an out-of-range slot id, or a type the
// controller is never allowed to send. Distinct from wire.ErrIncomplete,
// which just means "wait for more bytes".
var ErrProtocol = errors.New("protocol: invalid message")

// controllerForbidden holds the types that are agent-to-controller only;
// the agent aborts if the controller sends one (§4.C point 2).
var controllerForbidden = map[MsgType]bool{
	Pong:   true,
	Log:    true,
	Result: true,
	Data:   true,
}

// EnvMsg is the decoded payload of an env message: [env, slot_or_nil, key, value].
type EnvMsg struct {
	SlotIsNil bool
	Slot      uint8
	Key       string
	Value     string
}

// ExecMsg is the decoded payload of an exec message: [exec, slot, argv...].
type ExecMsg struct {
	Slot uint8
	Argv []string
}

// GetFileMsg is the decoded payload of a get_file message: [get_file, path].
type GetFileMsg struct {
	Path string
}

// SetFileMsg is the decoded payload of a set_file message: [set_file, path, bin].
// BinLen is the declared payload length from the bin header; the payload
// bytes themselves are not part of Frame.Raw — they are handled by the
// transfer layer directly against in_buf/stdin (§4.D).
type SetFileMsg struct {
	Path   string
	BinLen int
}

// KillMsg is the decoded payload of a kill message: [kill, slot].
type KillMsg struct {
	Slot uint8
}

// Frame is one fully-parsed inbound message.
type Frame struct {
	Type MsgType
	// Raw is the exact bytes consumed for this frame (array header through
	// the last decoded argument), suitable for echoing verbatim (§4.C).
	Raw []byte
	// Args holds one of *EnvMsg, *ExecMsg, *GetFileMsg, *SetFileMsg,
	// *KillMsg, or nil for ping/version (which carry no arguments).
	Args interface{}
}
