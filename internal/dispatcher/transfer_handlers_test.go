package dispatcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ossexec/ltxd/internal/protocol"
	"github.com/ossexec/ltxd/internal/wire"
)

// TestGetFileSendsDataThenPayload covers §8's get_file scenario: the agent
// replies with a [data, bin-header] frame announcing the length, then
// streams the raw file bytes immediately after via sendfile.
func TestGetFileSendsDataThenPayload(t *testing.T) {
	h := newTestHarness(t)

	path := filepath.Join(t.TempDir(), "report.txt")
	content := []byte("pass: 42\nfail: 0\n")
	require.NoError(t, os.WriteFile(path, content, 0644))

	h.send(protocol.GetFile, wire.Str(path))

	echo := h.recvFrame()
	require.Equal(t, protocol.GetFile, echo.Type)

	data := h.recvFrame()
	require.Equal(t, protocol.Data, data.Type)

	payload := h.readRawBytes(len(content))
	require.Equal(t, content, payload)

	h.closeController()
	code, err := h.waitExit()
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

// TestSetFileEchoIsTheAckAndReadbackFollows covers §4.D/§6's echo-as-ack
// rule for set_file: the generic header echo already satisfies the
// required [set_file, path, bin-header] reply, and the readback payload
// that follows is the file's full content as written to disk.
func TestSetFileEchoIsTheAckAndReadbackFollows(t *testing.T) {
	h := newTestHarness(t)

	path := filepath.Join(t.TempDir(), "upload.bin")
	payload := []byte("binary-ish payload content")

	buf := wire.NewBuffer(4096)
	protocol.WriteMessage(buf, protocol.SetFile, wire.Str(path), wire.BinHeader(len(payload)))
	header := append([]byte(nil), buf.Start()...)

	_, err := h.controllerWrite.Write(header)
	require.NoError(t, err)
	_, err = h.controllerWrite.Write(payload)
	require.NoError(t, err)

	ack := h.recvFrame()
	require.Equal(t, protocol.SetFile, ack.Type)
	require.Equal(t, header, ack.Raw, "the header echo is the entire ack, byte for byte")

	readback := h.readRawBytes(len(payload))
	require.Equal(t, payload, readback)

	h.closeController()
	h.waitExit()

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
}
