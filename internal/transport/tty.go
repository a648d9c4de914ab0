package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RawTerminal puts fd into raw mode (spec.md §4.3: "optionally a
// raw-mode terminal on standard input") and remembers the previous
// termios so it can be restored on exit. Grounded on the same direct
// TCGETS/TCSETS ioctl pattern used by terminal relays that need
// character-at-a-time, unechoed input.
type RawTerminal struct {
	fd   int
	orig *unix.Termios
}

// MakeRaw switches fd to raw mode, returning a handle that can Restore it.
func MakeRaw(fd int) (*RawTerminal, error) {
	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("transport: get termios: %w", err)
	}
	raw := *orig
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, fmt.Errorf("transport: set termios: %w", err)
	}
	return &RawTerminal{fd: fd, orig: orig}, nil
}

// Restore reverts fd to the termios state captured by MakeRaw.
func (t *RawTerminal) Restore() error {
	if t.orig == nil {
		return nil
	}
	return unix.IoctlSetTermios(t.fd, unix.TCSETS, t.orig)
}
