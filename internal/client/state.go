// Package client implements the operator-side session of spec.md §4.3:
// console relay, the escape-key protocol, boot-image streaming, the
// power-off sentinel detector, and the timeout/retry engine. It is the
// single-threaded consumer wired into an *eventloop.Loop alongside the
// ssh-spawned server's three stdio streams.
package client

import "time"

// Config carries the flag-derived, immutable parameters of a session.
type Config struct {
	Board             string
	TotalTimeout      time.Duration
	InactivityTimeout time.Duration // zero disables the inactivity deadline
	PowerCycles       int
	CycleOnTimeout    bool // false corresponds to -C (disable cycling on timeout)
	RepeatBoot        bool
	ImagePath         string // empty for list/info verbs
	InfoVerb          bool
	ListVerb          bool
}

// ExitCode values, spec.md §6.
const (
	ExitOK             = 0
	ExitTransportError = 1
	ExitTimeoutNoBoot  = 2
	ExitTimeoutAfterBoot = 110
)

// State is the operator state of spec.md §3: flags and deadlines
// owned by a single session and mutated only from the event loop
// goroutine.
type State struct {
	Quit              bool
	ReceivedPowerOff  bool
	ReachedTimeout    bool
	FastbootDone      bool
	AutoPowerOn       bool
	PowerCyclesLeft   int
	TotalDeadline     time.Time
	InactivityDeadline time.Time // zero value means "not armed"

	ExitCode int
}

func newState(cfg Config) *State {
	return &State{PowerCyclesLeft: cfg.PowerCycles, ExitCode: ExitOK}
}

// hasInactivityDeadline reports whether an inactivity deadline is armed.
func (s *State) hasInactivityDeadline() bool { return !s.InactivityDeadline.IsZero() }
