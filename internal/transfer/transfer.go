// Package transfer implements the LTX bulk file fast paths: sending a file
// to the controller via sendfile and receiving one via splice, both
// avoiding a userspace copy of the payload bytes (§1, §4.D, §4.E).
package transfer

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ossexec/ltxd/internal/constants"
)

// SendFile copies all of src's remaining bytes to dstFd using sendfile,
// chunked to stay under the kernel's single-call maximum. The caller is
// responsible for putting dstFd into blocking mode first (§4.D, §9: the
// agent trades I/O isolation for simplicity during bulk transfers).
func SendFile(dstFd int, src *os.File, size int64) error {
	srcFd := int(src.Fd())
	var sent int64
	for sent < size {
		remaining := size - sent
		chunk := remaining
		if chunk > constants.SendfileChunkMax {
			chunk = constants.SendfileChunkMax
		}
		n, err := unix.Sendfile(dstFd, srcFd, nil, int(chunk))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("transfer: sendfile: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("transfer: sendfile returned 0 before EOF (%d/%d sent)", sent, size)
		}
		sent += int64(n)
	}
	return nil
}

// ReceiveFile absorbs any payload bytes already buffered in prefix with a
// plain write, then splices the remainder directly from srcFd (stdin) to
// dst without copying through userspace, per §4.D's set_file handler.
func ReceiveFile(dst *os.File, srcFd int, prefix []byte, remaining int64) error {
	if len(prefix) > 0 {
		if _, err := dst.Write(prefix); err != nil {
			return fmt.Errorf("transfer: write prefix: %w", err)
		}
	}

	dstFd := int(dst.Fd())
	for remaining > 0 {
		chunk := remaining
		if chunk > constants.SendfileChunkMax {
			chunk = constants.SendfileChunkMax
		}
		n, err := unix.Splice(srcFd, nil, dstFd, nil, int(chunk), 0)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("transfer: splice: %w", err)
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		remaining -= n
	}
	return nil
}
