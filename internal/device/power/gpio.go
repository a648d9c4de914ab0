package power

import (
	"fmt"
	"os"
	"path/filepath"
)

// sysfsGPIORoot is overridable in tests.
var sysfsGPIORoot = "/sys/class/gpio"

// GPIO drives a board's power and VBUS rails, and optionally its
// fastboot key, through the Linux sysfs GPIO interface (one
// already-exported GPIO line per function). No GPIO
// library appears anywhere in the example corpus, so this talks to the
// kernel directly the way the teacher's internal/socketcan package
// talks to AF_CAN directly: a thin, explicit wrapper with no
// abstraction layer in between.
type GPIO struct {
	PowerLine int
	VBUSLine  int // 0 disables VBUS control
	KeyLine   int // 0 disables fastboot-key assertion
}

func (g GPIO) SetPower(on bool) error {
	return writeGPIOValue(g.PowerLine, on)
}

func (g GPIO) SetVBUS(on bool) error {
	if g.VBUSLine == 0 {
		return nil
	}
	return writeGPIOValue(g.VBUSLine, on)
}

// SetFastbootKey asserts (or releases) the GPIO line wired to the
// board's fastboot-entry button, when one is configured. Satisfies the
// optional interface device.Local.FastbootKey probes for.
func (g GPIO) SetFastbootKey(hold bool) error {
	if g.KeyLine == 0 {
		return nil
	}
	return writeGPIOValue(g.KeyLine, hold)
}

func writeGPIOValue(line int, on bool) error {
	val := []byte("0\n")
	if on {
		val = []byte("1\n")
	}
	path := filepath.Join(sysfsGPIORoot, fmt.Sprintf("gpio%d", line), "value")
	if err := os.WriteFile(path, val, 0o644); err != nil {
		return fmt.Errorf("power: gpio%d: %w", line, err)
	}
	return nil
}
