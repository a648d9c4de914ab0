// Package serial is the board console driver: a UART opened via
// github.com/tarm/serial for ordinary read/write, plus a second,
// break-capable handle opened via github.com/daedaluz/goserial for the
// one ioctl tarm/serial doesn't expose (TIOCSBRK/TIOCCBRK).
package serial

import (
	"fmt"
	"time"

	goserial "github.com/daedaluz/goserial"
	"github.com/tarm/serial"
)

// Port is the board console: bidirectional byte stream plus a break
// condition generator. Reads are non-blocking once ReadTimeout elapses,
// matching the event loop's "anything that could block is scoped to a
// short burst" rule (spec.md §5).
type Port struct {
	name string
	rw   *serial.Port
	brk  *goserial.Port
}

// Open opens device at baud for both ordinary I/O and break control.
func Open(device string, baud int) (*Port, error) {
	rw, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", device, err)
	}
	brk, err := goserial.Open(device, goserial.NewOptions())
	if err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("serial: open %s for break control: %w", device, err)
	}
	return &Port{name: device, rw: rw, brk: brk}, nil
}

// Read fills p with whatever bytes are currently buffered, returning
// (0, nil) on a read timeout rather than blocking indefinitely.
func (p *Port) Read(buf []byte) (int, error) {
	n, err := p.rw.Read(buf)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

// Write sends data out the console UART.
func (p *Port) Write(data []byte) (int, error) {
	return p.rw.Write(data)
}

// SendBreak asserts a break condition for d, matching the hardware
// reset path many bootloaders trigger on.
func (p *Port) SendBreak(d time.Duration) error {
	if err := p.brk.SetBreak(); err != nil {
		return fmt.Errorf("serial: set break: %w", err)
	}
	time.Sleep(d)
	if err := p.brk.ClearBreak(); err != nil {
		return fmt.Errorf("serial: clear break: %w", err)
	}
	return nil
}

// Close releases both underlying file descriptors.
func (p *Port) Close() error {
	err1 := p.rw.Close()
	err2 := p.brk.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
