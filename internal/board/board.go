// Package board models the static board inventory: the set of boards a
// cdba server knows how to drive, read once at startup from a TOML
// inventory file (spec.md §3, §6). The inventory itself never mutates
// after load; only the single active session references a descriptor
// by name.
package board

import "fmt"

// PowerDriver names the power-control backend bound to a board.
type PowerDriver string

const (
	PowerDriverNone    PowerDriver = "none"
	PowerDriverGPIO    PowerDriver = "gpio"
	PowerDriverRelay   PowerDriver = "relay"
	PowerDriverLogging PowerDriver = "log"
)

// Descriptor is a board descriptor (spec.md §3): a unique name, the
// driver bindings needed to reach it, and the set of usernames allowed
// to select it. Instantiated at server start and never mutated.
type Descriptor struct {
	Name string

	Console     string // serial device path, e.g. /dev/ttyUSB0
	ConsoleBaud int

	PowerDriver PowerDriver
	PowerParams map[string]string

	USBAlwaysOn   bool
	USBPortID     string // identifier passed to the usb-control driver
	FastbootVID   uint16
	FastbootPID   uint16
	FastbootKey   string // key combination, e.g. "power" or "vol-down+power"
	VoltageMillis int

	ACL map[string]bool
}

// Allows reports whether user may select this board.
func (d *Descriptor) Allows(user string) bool {
	if len(d.ACL) == 0 {
		return true
	}
	return d.ACL[user]
}

// Info renders a human-readable one-line description, used for the
// BOARD_INFO reply.
func (d *Descriptor) Info() string {
	s := fmt.Sprintf("%s: console=%s", d.Name, d.Console)
	if d.ConsoleBaud > 0 {
		s += fmt.Sprintf(" baud=%d", d.ConsoleBaud)
	}
	if d.PowerDriver != "" {
		s += " power=" + string(d.PowerDriver)
	}
	if d.FastbootVID != 0 || d.FastbootPID != 0 {
		s += fmt.Sprintf(" fastboot=%04x:%04x", d.FastbootVID, d.FastbootPID)
	}
	return s
}
