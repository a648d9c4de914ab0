// Package device defines the narrow back-end contract the server
// session drives a physical board through (spec.md §4.5). Every
// method must return without blocking beyond the short burst the
// underlying hardware genuinely requires — anything slower is expected
// to be split across non-blocking file descriptors registered with the
// event loop by the concrete driver.
package device

import "github.com/2lambda123/linux-msm-cdba/internal/board"

// EventSink receives asynchronous notifications from an open handle.
// Console, Fastboot and Status fire from the event loop goroutine; Info
// fires from the goroutine running the bootloader transport. None of
// them may block or call back into the Backend synchronously from
// inside the callback that raised them.
type EventSink struct {
	// Console is invoked with raw bytes read from the board's serial line.
	Console func(data []byte)
	// Fastboot is invoked when the bootloader download-mode presence of
	// the board changes.
	Fastboot func(present bool)
	// Status is invoked on each periodic status tick once StatusEnable
	// has been called, with a short human-readable state string.
	Status func(state string)
	// Info is invoked with each diagnostic line surfaced by the
	// bootloader transport (spec.md §4.7), as the transport produced it.
	Info func(line string)
}

// Handle identifies one opened board session with a driver.
type Handle interface {
	// Board returns the descriptor this handle was opened against.
	Board() *board.Descriptor
}

// Backend is the device back-end interface of spec.md §4.5.
type Backend interface {
	// Open acquires the board for user, registering sink for
	// asynchronous events for the lifetime of the returned handle.
	Open(desc *board.Descriptor, user string, sink EventSink) (Handle, error)
	// Close releases the handle and any file descriptors it registered.
	Close(h Handle) error

	// Power toggles the board's main power rail (and any configured
	// power-relay).
	Power(h Handle, on bool) error
	// USB toggles the VBUS rail to the board's peripheral port.
	USB(h Handle, on bool) error
	// ConsoleWrite writes bytes to the board's serial line.
	ConsoleWrite(h Handle, data []byte) error
	// SendBreak generates a serial break condition.
	SendBreak(h Handle) error
	// FastbootKey asserts or releases the hardware key combination used
	// to force the board into bootloader download mode.
	FastbootKey(h Handle, hold bool) error
	// FastbootContinue sends the bootloader's continue-boot command. The
	// command may take a noticeable amount of time against real
	// hardware, so implementations must return immediately and invoke
	// done from the event loop goroutine once it completes, rather than
	// blocking the caller (spec.md §5).
	FastbootContinue(h Handle, done func(error)) error
	// Boot transfers image via the bootloader transport and triggers
	// boot. Like FastbootContinue, the transfer runs without blocking
	// the caller; done is invoked from the event loop goroutine on
	// completion.
	Boot(h Handle, image []byte, done func(error)) error
	// StatusEnable arms periodic status ticks on sink.Status.
	StatusEnable(h Handle) error

	// ListForUser invokes emit(name) for every board user may access.
	ListForUser(user string, emit func(name string)) error
	// InfoForUser invokes emit(text) with name's description, after an
	// ACL check against user.
	InfoForUser(user, name string, emit func(text string)) error
}
