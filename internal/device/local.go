package device

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/2lambda123/linux-msm-cdba/internal/board"
	"github.com/2lambda123/linux-msm-cdba/internal/device/fastboot"
	"github.com/2lambda123/linux-msm-cdba/internal/device/power"
	"github.com/2lambda123/linux-msm-cdba/internal/device/serial"
	"github.com/2lambda123/linux-msm-cdba/internal/eventloop"
)

// StatusInterval is how often an open handle with status enabled emits
// a status tick.
const StatusInterval = 5 * time.Second

// breakDuration is how long SendBreak asserts the line (spec.md leaves
// the exact duration unspecified; 250ms is comfortably within what
// every bootloader break-detection window the original targets uses).
const breakDuration = 250 * time.Millisecond

// PowerFactory builds the power controller bound to a board descriptor.
// Swappable in tests.
type PowerFactory func(desc *board.Descriptor, log *slog.Logger) power.Controller

// Local is the concrete, single-session Backend: one board, driven
// through a real serial console and a power/fastboot driver pair,
// registered with the event loop that owns the server process. Its
// Inventory is consulted for board lookup, ACL checks on ListForUser
// and InfoForUser, and nothing else — at most one handle is ever open
// at a time (spec.md §3: "at most one session per server process").
type Local struct {
	Inv         *board.Inventory
	Loop        *eventloop.Loop
	Log         *slog.Logger
	NewPower    PowerFactory
	FastbootBin string
}

// DefaultPowerFactory selects a Controller from a board's configured
// PowerDriver.
func DefaultPowerFactory(desc *board.Descriptor, log *slog.Logger) power.Controller {
	switch desc.PowerDriver {
	case board.PowerDriverGPIO, board.PowerDriverRelay:
		return power.Logging{Board: desc.Name, Log: log, Next: gpioFromParams(desc)}
	case board.PowerDriverLogging:
		return power.Logging{Board: desc.Name, Log: log}
	default:
		return power.Noop{}
	}
}

func gpioFromParams(desc *board.Descriptor) power.Controller {
	g := power.GPIO{}
	fmt.Sscanf(desc.PowerParams["line"], "%d", &g.PowerLine)
	fmt.Sscanf(desc.PowerParams["vbus_line"], "%d", &g.VBUSLine)
	fmt.Sscanf(desc.PowerParams["key_line"], "%d", &g.KeyLine)
	return g
}

type localHandle struct {
	desc *board.Descriptor
	port *serial.Port
	pwr  power.Controller
	fb   *fastboot.Transport
	sink EventSink

	statusTimer *eventloop.Timer
}

func (h *localHandle) Board() *board.Descriptor { return h.desc }

// Open acquires desc's console for user. ACL checks are the caller's
// responsibility (spec.md §4.4 dispatches SELECT_BOARD through the
// session's own ACL check before ever reaching the backend).
func (l *Local) Open(desc *board.Descriptor, user string, sink EventSink) (Handle, error) {
	p, err := serial.Open(desc.Console, desc.ConsoleBaud)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", desc.Name, err)
	}
	h := &localHandle{
		desc: desc,
		port: p,
		pwr:  l.newPower()(desc, l.Log),
		fb: &fastboot.Transport{
			Binary: l.FastbootBin,
			Serial: desc.USBPortID,
			Info:   sink.Info,
		},
		sink: sink,
	}
	l.Loop.AddReadFd(int(p.Fd()), func(fd int) error {
		buf := make([]byte, 4096)
		n, err := p.Read(buf)
		if err != nil {
			return fmt.Errorf("device: console read %s: %w", desc.Name, err)
		}
		if n > 0 && h.sink.Console != nil {
			h.sink.Console(buf[:n])
		}
		return nil
	})
	return h, nil
}

func (l *Local) newPower() PowerFactory {
	if l.NewPower != nil {
		return l.NewPower
	}
	return DefaultPowerFactory
}

func (l *Local) Close(hi Handle) error {
	h := hi.(*localHandle)
	if h.statusTimer != nil {
		h.statusTimer.Cancel()
	}
	l.Loop.RemoveReadFd(int(h.port.Fd()))
	return h.port.Close()
}

func (l *Local) Power(hi Handle, on bool) error {
	return hi.(*localHandle).pwr.SetPower(on)
}

func (l *Local) USB(hi Handle, on bool) error {
	return hi.(*localHandle).pwr.SetVBUS(on)
}

func (l *Local) ConsoleWrite(hi Handle, data []byte) error {
	_, err := hi.(*localHandle).port.Write(data)
	return err
}

func (l *Local) SendBreak(hi Handle) error {
	return hi.(*localHandle).port.SendBreak(breakDuration)
}

func (l *Local) FastbootKey(hi Handle, hold bool) error {
	if fa, ok := hi.(*localHandle).pwr.(interface{ SetFastbootKey(bool) error }); ok {
		return fa.SetFastbootKey(hold)
	}
	return nil
}

// FastbootContinue runs the bootloader's continue-boot command on a
// background goroutine, since shelling out to fastboot blocks for the
// duration of the USB exchange; the result is handed back to the event
// loop goroutine via Loop.Post so done never runs concurrently with it.
func (l *Local) FastbootContinue(hi Handle, done func(error)) error {
	h := hi.(*localHandle)
	go func() {
		err := h.fb.Boot()
		l.Loop.Post(func() { done(err) })
	}()
	return nil
}

// Boot runs the image download and continue-boot command on a
// background goroutine for the same reason as FastbootContinue: a
// multi-second USB transfer must not stall the event loop's console
// relay and timers.
func (l *Local) Boot(hi Handle, image []byte, done func(error)) error {
	h := hi.(*localHandle)
	go func() {
		err := h.fb.Download(image)
		if err == nil {
			err = h.fb.Boot()
		}
		l.Loop.Post(func() { done(err) })
	}()
	return nil
}

func (l *Local) StatusEnable(hi Handle) error {
	h := hi.(*localHandle)
	var tick func()
	tick = func() {
		if h.sink.Status != nil {
			h.sink.Status("running")
		}
		h.statusTimer = l.Loop.AddTimer(StatusInterval, tick)
	}
	h.statusTimer = l.Loop.AddTimer(StatusInterval, tick)
	return nil
}

func (l *Local) ListForUser(user string, emit func(name string)) error {
	names := make([]string, 0, len(l.Inv.Boards))
	for name, d := range l.Inv.Boards {
		if d.Allows(user) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		emit(n)
	}
	return nil
}

func (l *Local) InfoForUser(user, name string, emit func(text string)) error {
	d := l.Inv.Lookup(name)
	if d == nil || !d.Allows(user) {
		return fmt.Errorf("device: board %q not accessible to %s", name, user)
	}
	emit(d.Info())
	return nil
}
