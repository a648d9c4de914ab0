package client

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/2lambda123/linux-msm-cdba/internal/client/workqueue"
	"github.com/2lambda123/linux-msm-cdba/internal/eventloop"
	"github.com/2lambda123/linux-msm-cdba/internal/metrics"
	"github.com/2lambda123/linux-msm-cdba/internal/protocol"
)

// retryCooldown is how long the client waits between a retry POWER_OFF
// acknowledgement and the follow-up POWER_ON (spec.md §4.3 step 3).
const retryCooldown = 2 * time.Second

// Streams bundles the three ssh-spawned-server file descriptors plus
// the operator's own standard streams, so Session doesn't depend on
// any one transport implementation.
type Streams struct {
	ServerIn  io.Writer // server's stdin; client writes protocol frames here
	ServerOut io.Reader // server's stdout; client reads protocol frames here
	ServerErr io.Reader // server's stderr; relayed verbatim to Err
	ServerInFd, ServerOutFd, ServerErrFd int

	// In is the operator's keyboard; its Fd is registered with the loop.
	// May be nil (e.g. info/list verbs never read a byte from it).
	In   io.Reader
	InFd int
	HasIn bool

	Out io.Writer
	Err io.Writer
}

// Session runs the client-side operator state machine of spec.md §4.3.
type Session struct {
	cfg     Config
	state   *State
	streams Streams
	loop    *eventloop.Loop
	log     *slog.Logger

	q        *workqueue.Queue
	ring     *protocol.RingBuffer
	esc      escapeMachine
	sentinel sentinelDetector

	totalTimer      *eventloop.Timer
	inactivityTimer *eventloop.Timer

	awaitingRetryPowerOff bool

	listPrinted bool
}

// NewSession builds a Session ready to Run.
func NewSession(cfg Config, streams Streams, loop *eventloop.Loop, log *slog.Logger) *Session {
	return &Session{
		cfg:     cfg,
		state:   newState(cfg),
		streams: streams,
		loop:    loop,
		log:     log,
		q:       workqueue.New(),
		ring:    protocol.NewRingBuffer(0),
	}
}

// Run wires the session into the event loop and blocks until the
// session sets Quit or a fatal transport error occurs. It returns the
// process exit code (spec.md §6).
func (s *Session) Run() int {
	s.loop.AddReadFd(s.streams.ServerOutFd, s.onServerReadable)
	s.loop.AddReadFd(s.streams.ServerErrFd, s.onServerErrReadable)
	if s.streams.HasIn {
		s.loop.AddReadFd(s.streams.InFd, s.onTerminalReadable)
	}
	s.loop.SetWriteFd(s.streams.ServerInFd, s.onServerWritable)

	s.armTotalDeadline()
	if s.cfg.InactivityTimeout > 0 {
		s.armInactivityDeadline()
	}

	switch {
	case s.cfg.ListVerb:
		s.enqueue(protocol.MsgListDevices, nil)
	case s.cfg.InfoVerb:
		s.enqueue(protocol.MsgBoardInfo, []byte(s.cfg.Board))
	default:
		s.enqueue(protocol.MsgSelectBoard, []byte(s.cfg.Board))
	}

	if err := s.loop.Run(); err != nil {
		s.log.Error("session_error", "error", err)
		if s.state.ExitCode == ExitOK {
			s.state.ExitCode = ExitTransportError
		}
	}
	return s.state.ExitCode
}

func (s *Session) enqueue(typ protocol.MessageType, payload []byte) {
	s.q.Push(typ, payload)
	s.loop.ArmWrite(true)
	metrics.IncFrameTx(typ.String())
	if typ == protocol.MsgFastbootDownload {
		metrics.AddFastbootBytes(len(payload))
	}
}

func (s *Session) quit(code int) {
	s.state.Quit = true
	s.state.ExitCode = code
	s.loop.Quit()
}

func (s *Session) armTotalDeadline() {
	s.state.TotalDeadline = time.Now().Add(s.cfg.TotalTimeout)
	s.totalTimer = s.loop.AddTimer(s.cfg.TotalTimeout, s.onTimeout)
}

func (s *Session) armInactivityDeadline() {
	if s.inactivityTimer != nil {
		s.inactivityTimer.Cancel()
	}
	s.state.InactivityDeadline = time.Now().Add(s.cfg.InactivityTimeout)
	s.inactivityTimer = s.loop.AddTimer(s.cfg.InactivityTimeout, s.onTimeout)
}

func (s *Session) onTimeout() {
	s.state.ReachedTimeout = true
	s.handleTrigger()
}

// handleTrigger implements spec.md §4.3's timeout/retry engine: called
// whenever ReceivedPowerOff or ReachedTimeout transitions true.
func (s *Session) handleTrigger() {
	if !s.state.ReceivedPowerOff && !s.state.ReachedTimeout {
		return
	}
	timeoutTrigger := s.state.ReachedTimeout

	if s.state.PowerCyclesLeft > 0 {
		if timeoutTrigger && !s.cfg.CycleOnTimeout {
			s.exitAfterTimeout()
			return
		}
		metrics.IncPowerCycle()
		s.state.PowerCyclesLeft--
		s.state.AutoPowerOn = true
		s.state.ReceivedPowerOff = false
		s.state.ReachedTimeout = false
		s.awaitingRetryPowerOff = true
		s.enqueue(protocol.MsgPowerOff, nil)
		if s.cfg.InactivityTimeout > 0 {
			s.armInactivityDeadline()
		}
		return
	}

	// No cycles left: a clean power-off still exits 0, but a timeout
	// exits according to whether fastboot was ever reached.
	if !timeoutTrigger {
		s.quit(ExitOK)
		return
	}
	s.exitAfterTimeout()
}

func (s *Session) exitAfterTimeout() {
	if s.state.FastbootDone {
		s.quit(ExitTimeoutAfterBoot)
		return
	}
	s.quit(ExitTimeoutNoBoot)
}

func (s *Session) onServerWritable(fd int) error {
	err := s.q.Drain(s.streams.ServerIn)
	if s.q.Empty() {
		s.loop.ArmWrite(false)
	}
	return err
}

func (s *Session) onServerReadable(fd int) error {
	n, err := s.ring.Fill(s.streams.ServerOut)
	if n > 0 {
		if s.cfg.InactivityTimeout > 0 {
			s.armInactivityDeadline()
		}
	}
	for {
		msg, ok := s.ring.TryDecode()
		if !ok {
			break
		}
		metrics.IncFrameRx(msg.Type.String())
		if serr := s.dispatch(msg); serr != nil {
			return serr
		}
	}
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("client: server closed the connection")
		}
		if err != protocol.ErrWouldBlock {
			return err
		}
	}
	return nil
}

func (s *Session) onServerErrReadable(fd int) error {
	buf := make([]byte, 4096)
	n, err := s.streams.ServerErr.Read(buf)
	if n > 0 {
		_, _ = s.streams.Err.Write(buf[:n])
	}
	if err != nil && err != io.EOF && err != protocol.ErrWouldBlock {
		return err
	}
	return nil
}

func (s *Session) onTerminalReadable(fd int) error {
	buf := make([]byte, 256)
	n, err := s.streams.In.Read(buf)
	if n > 0 {
		s.feedTerminal(buf[:n])
	}
	if err != nil && err != io.EOF && err != protocol.ErrWouldBlock {
		return err
	}
	if err == io.EOF {
		s.quit(ExitOK)
	}
	return nil
}

// feedTerminal runs each byte through the escape-key state machine
// (spec.md §4.3, invariant 4), batching consecutive plain bytes into a
// single CONSOLE frame.
func (s *Session) feedTerminal(data []byte) {
	var plain bytes.Buffer
	flush := func() {
		if plain.Len() > 0 {
			s.enqueue(protocol.MsgConsole, append([]byte(nil), plain.Bytes()...))
			plain.Reset()
		}
	}
	for _, b := range data {
		act, out := s.esc.Feed(b)
		switch act {
		case actionConsole:
			plain.WriteByte(out)
		case actionQuit:
			flush()
			s.quit(ExitOK)
			return
		case actionPowerOn:
			flush()
			s.enqueue(protocol.MsgPowerOn, nil)
		case actionPowerOff:
			flush()
			s.enqueue(protocol.MsgPowerOff, nil)
		case actionStatusUpdate:
			flush()
			s.enqueue(protocol.MsgStatusUpdate, nil)
		case actionVBUSOn:
			flush()
			s.enqueue(protocol.MsgVBUSOn, nil)
		case actionVBUSOff:
			flush()
			s.enqueue(protocol.MsgVBUSOff, nil)
		case actionSendBreak:
			flush()
			s.enqueue(protocol.MsgSendBreak, nil)
		case actionNone:
			// unrecognized escape byte: silently consumed.
		}
	}
	flush()
}

func (s *Session) dispatch(msg protocol.Message) error {
	switch msg.Type {
	case protocol.MsgSelectBoard:
		return s.onSelectBoardAck(msg.Payload)
	case protocol.MsgConsole:
		s.onConsole(msg.Payload)
	case protocol.MsgFastbootPresent:
		return s.onFastbootPresent(msg.Payload)
	case protocol.MsgPowerOff:
		s.onPowerOffAck()
	case protocol.MsgPowerOn:
		// acked; nothing further to do.
	case protocol.MsgListDevices:
		return s.onListDevices(msg.Payload)
	case protocol.MsgBoardInfo:
		return s.onBoardInfo(msg.Payload)
	case protocol.MsgStatusUpdate:
		// status ticks have no client-visible representation beyond
		// resetting the inactivity deadline, already done in onServerReadable.
	case protocol.MsgHardReset, protocol.MsgFastbootBoot:
		// reserved; spec.md Open Questions: no peer acts on these.
	default:
		s.log.Warn("unknown_frame", "type", msg.Type)
	}
	return nil
}

func (s *Session) onSelectBoardAck(payload []byte) error {
	if s.cfg.ListVerb || s.cfg.InfoVerb {
		return nil
	}
	if len(payload) > 0 {
		// spec.md §7: a non-empty SELECT_BOARD ACK is an ACL/open denial;
		// the server is already quitting on its side.
		s.quit(ExitTransportError)
		return nil
	}
	s.state.AutoPowerOn = true
	s.enqueue(protocol.MsgPowerOn, nil)
	return nil
}

func (s *Session) onConsole(data []byte) {
	metrics.AddConsoleBytes(len(data))
	_, _ = s.streams.Out.Write(data)
	if s.sentinel.Feed(data) {
		s.state.ReceivedPowerOff = true
		s.handleTrigger()
	}
}

func (s *Session) onFastbootPresent(payload []byte) error {
	present := len(payload) == 1 && payload[0] == 1
	if present {
		if !s.state.FastbootDone || s.cfg.RepeatBoot {
			if s.cfg.ImagePath != "" {
				image, err := os.ReadFile(s.cfg.ImagePath)
				if err != nil {
					return fmt.Errorf("client: read boot image: %w", err)
				}
				enqueueBootImage(s.q, image)
				s.loop.ArmWrite(true)
			}
		}
		return nil
	}
	wasDone := s.state.FastbootDone
	s.state.FastbootDone = true
	if wasDone && !s.cfg.RepeatBoot {
		s.quit(ExitOK)
	}
	return nil
}

func (s *Session) onPowerOffAck() {
	if !s.awaitingRetryPowerOff {
		return
	}
	s.awaitingRetryPowerOff = false
	s.loop.AddTimer(retryCooldown, func() {
		s.enqueue(protocol.MsgPowerOn, nil)
	})
}

func (s *Session) onListDevices(payload []byte) error {
	if len(payload) == 0 {
		s.quit(ExitOK)
		return nil
	}
	fmt.Fprintf(s.streams.Out, "%s\n", payload)
	return nil
}

func (s *Session) onBoardInfo(payload []byte) error {
	if len(payload) == 0 {
		s.quit(ExitTransportError)
		return nil
	}
	fmt.Fprintf(s.streams.Out, "%s\n", payload)
	s.quit(ExitOK)
	return nil
}
