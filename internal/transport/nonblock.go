package transport

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/2lambda123/linux-msm-cdba/internal/protocol"
)

// NonblockFile adapts a raw, already-non-blocking file descriptor to
// io.Reader/io.Writer by calling unix.Read/unix.Write directly rather
// than going through *os.File, whose Read/Write hand the fd to the Go
// runtime's own poller and block the calling goroutine instead of
// returning EAGAIN. The event loop needs the latter: it already knows
// the fd is ready via select(2) and wants a single non-blocking
// attempt, translating EAGAIN/EWOULDBLOCK into protocol.ErrWouldBlock
// (grounded on internal/socketcan/device.go's direct unix.Read/Write
// style).
type NonblockFile struct {
	Fd int
}

func (f NonblockFile) Read(p []byte) (int, error) {
	n, err := unix.Read(f.Fd, p)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, protocol.ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f NonblockFile) Write(p []byte) (int, error) {
	n, err := unix.Write(f.Fd, p)
	if err != nil {
		if err == unix.EAGAIN {
			return n, protocol.ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}
