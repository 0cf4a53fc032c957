package ltx

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ossexec/ltxd/internal/protocol"
	"github.com/ossexec/ltxd/internal/wire"
)

// TestAgentRunPingPong exercises the full Agent wiring (defaults, metrics,
// dispatcher construction) against in-memory pipes rather than the real
// process stdin/stdout, the way Options.In/Out/Diag's doc comment
// describes tests using them.
func TestAgentRunPingPong(t *testing.T) {
	agentIn, controllerOut, err := os.Pipe()
	require.NoError(t, err)
	controllerIn, agentOut, err := os.Pipe()
	require.NoError(t, err)
	defer controllerOut.Close()
	defer controllerIn.Close()

	agent, err := New(Options{In: agentIn, Out: agentOut, Diag: os.Stderr})
	require.NoError(t, err)

	done := make(chan int, 1)
	go func() { done <- agent.Run() }()

	buf := wire.NewBuffer(64)
	protocol.WriteMessage(buf, protocol.Ping)
	_, err = controllerOut.Write(buf.Start())
	require.NoError(t, err)

	var pending []byte
	deadline := time.Now().Add(5 * time.Second)
	var pongSeen bool
	for !pongSeen {
		require.False(t, time.Now().After(deadline), "timed out waiting for pong")
		cur := wire.NewCursor(pending)
		frame, perr := protocol.Parse(cur)
		if perr == nil {
			pending = pending[cur.Consumed():]
			if frame.Type == protocol.Pong {
				pongSeen = true
			}
			continue
		}
		chunk := make([]byte, 256)
		controllerIn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _ := controllerIn.Read(chunk)
		pending = append(pending, chunk[:n]...)
	}

	snap := agent.Metrics()
	require.GreaterOrEqual(t, snap.MessagesIn, uint64(1))
	require.GreaterOrEqual(t, snap.MessagesOut, uint64(1))

	controllerOut.Close()
	require.Equal(t, 0, <-done)
}

// TestAgentFatalEmitsFramedLogToStdout exercises §7's "still in the
// original process" rule: fatal must write a framed [log, nil, ts, msg]
// to Out in addition to the diagnostic text on Diag. protocol.Parse itself
// rejects log frames (they're never valid inbound from a controller), so
// the frame is decoded directly with the wire layer instead.
func TestAgentFatalEmitsFramedLogToStdout(t *testing.T) {
	outRead, outWrite, err := os.Pipe()
	require.NoError(t, err)
	defer outRead.Close()

	agentIn, _, err := os.Pipe()
	require.NoError(t, err)
	defer agentIn.Close()

	agent, err := New(Options{In: agentIn, Out: outWrite, Diag: os.Stderr})
	require.NoError(t, err)
	defer agent.loop.Close()

	agent.fatal(errors.New("boom"))
	outWrite.Close()

	buf := make([]byte, 4096)
	n, err := outRead.Read(buf)
	require.NoError(t, err)

	cur := wire.NewCursor(buf[:n])
	arity, err := wire.DecodeArrayHeader(cur)
	require.NoError(t, err)
	require.Equal(t, 4, arity)

	typ, err := wire.DecodeUint(cur)
	require.NoError(t, err)
	require.Equal(t, uint64(protocol.Log), typ)

	_, isNil, err := wire.DecodeNilOrUint(cur)
	require.NoError(t, err)
	require.True(t, isNil)

	_, err = wire.DecodeUint(cur) // timestamp
	require.NoError(t, err)

	text, err := wire.DecodeStrOrBin(cur)
	require.NoError(t, err)
	require.Contains(t, string(text), "boom")
}

func TestAgentDefaultsWhenOptionsEmpty(t *testing.T) {
	// New must fill in fd 0/1/2, a monotonic clock, a stderr logger, and a
	// metrics-backed observer when Options is entirely zero-valued.
	agent, err := New(Options{})
	require.NoError(t, err)
	require.NotNil(t, agent)
	require.NotNil(t, agent.logger)
	require.NotNil(t, agent.metrics)
	defer agent.loop.Close()
}
