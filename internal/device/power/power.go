// Package power abstracts the board power-relay hardware behind a
// narrow interface, per spec.md §1 ("concrete drivers... abstracted
// behind an interface; only the logical operations power/usb/boot are
// normative"). This package ships a no-op and a logging reference
// implementation plus one concrete driver, GPIO, which drives sysfs
// GPIO lines; USB-controlled PDUs and lab-specific relay boards have no
// driver here.
package power

import "log/slog"

// Controller drives a board's power and USB-VBUS rails.
type Controller interface {
	// SetPower toggles the board's main power rail.
	SetPower(on bool) error
	// SetVBUS toggles the USB peripheral-port power rail.
	SetVBUS(on bool) error
}

// Noop implements Controller with no hardware access, for boards with
// no configured power driver (board.PowerDriverNone).
type Noop struct{}

func (Noop) SetPower(bool) error { return nil }
func (Noop) SetVBUS(bool) error  { return nil }

// Logging wraps another Controller (or none) and logs every transition,
// the reference driver named in board.PowerDriverLogging.
type Logging struct {
	Board string
	Next  Controller
	Log   *slog.Logger
}

func (l Logging) SetPower(on bool) error {
	l.Log.Info("power", "board", l.Board, "on", on)
	if l.Next == nil {
		return nil
	}
	return l.Next.SetPower(on)
}

func (l Logging) SetVBUS(on bool) error {
	l.Log.Info("vbus", "board", l.Board, "on", on)
	if l.Next == nil {
		return nil
	}
	return l.Next.SetVBUS(on)
}

// SetFastbootKey delegates to Next when it supports key assertion,
// satisfying the same optional interface GPIO implements.
func (l Logging) SetFastbootKey(hold bool) error {
	l.Log.Info("fastboot_key", "board", l.Board, "hold", hold)
	fa, ok := l.Next.(interface{ SetFastbootKey(bool) error })
	if !ok {
		return nil
	}
	return fa.SetFastbootKey(hold)
}
