// Package server implements the board side of a cdba session (spec.md
// §4.4): a single-threaded dispatcher reading protocol frames from its
// standard input, driving one open device.Backend handle, and writing
// replies and asynchronous events back on its standard output. Unlike
// the teacher's multi-client TCP hub, this process serves exactly one
// operator for its entire lifetime — it is spawned fresh per session by
// the client's ssh invocation and exits when the session ends.
package server

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/2lambda123/linux-msm-cdba/internal/board"
	"github.com/2lambda123/linux-msm-cdba/internal/client/workqueue"
	"github.com/2lambda123/linux-msm-cdba/internal/device"
	"github.com/2lambda123/linux-msm-cdba/internal/eventloop"
	"github.com/2lambda123/linux-msm-cdba/internal/metrics"
	"github.com/2lambda123/linux-msm-cdba/internal/protocol"
)

// Streams bundles the session's standard file descriptors. Err is
// where bootloader-transport INFO lines are surfaced (spec.md §4.7);
// in production it is the process's own stderr.
type Streams struct {
	In    io.Reader
	InFd  int
	Out   io.Writer
	OutFd int
	Err   io.Writer
}

// Config carries the fixed parameters of a server session.
type Config struct {
	User      string
	Inventory *board.Inventory
	Backend   device.Backend
}

// download is the server's pending-download reassembly buffer
// (spec.md §3): created on the first non-empty FASTBOOT_DOWNLOAD,
// destroyed on the zero-length terminator.
type download struct {
	buf   []byte
	total int
}

// Session is the server-side dispatcher of spec.md §4.4.
type Session struct {
	cfg     Config
	streams Streams
	loop    *eventloop.Loop
	log     *slog.Logger

	q    *workqueue.Queue
	ring *protocol.RingBuffer

	handle device.Handle
	dl     *download

	exitCode int
}

// NewSession builds a Session ready to Run.
func NewSession(cfg Config, streams Streams, loop *eventloop.Loop, log *slog.Logger) *Session {
	return &Session{
		cfg:     cfg,
		streams: streams,
		loop:    loop,
		log:     log,
		q:       workqueue.New(),
		ring:    protocol.NewRingBuffer(0),
	}
}

// Run registers the session with the event loop and blocks until the
// loop exits, returning a process exit code.
func (s *Session) Run() int {
	metrics.SessionsTotal.Inc()
	s.loop.AddReadFd(s.streams.InFd, s.onReadable)
	s.loop.SetWriteFd(s.streams.OutFd, s.onWritable)

	if err := s.loop.Run(); err != nil {
		s.log.Error("session_error", "error", err)
		if s.exitCode == 0 {
			s.exitCode = 1
		}
	}
	s.shutdown()
	return s.exitCode
}

// shutdown closes the active device handle, if any (spec.md §4.4
// "Shutdown"). Redirecting the standard streams to a null sink is the
// caller's (cmd/cdba-server's) responsibility once Run returns, since
// only it owns the real *os.File descriptors.
func (s *Session) shutdown() {
	if s.handle != nil {
		_ = s.cfg.Backend.Close(s.handle)
		s.handle = nil
	}
}

func (s *Session) enqueue(typ protocol.MessageType, payload []byte) {
	s.q.Push(typ, payload)
	s.loop.ArmWrite(true)
	metrics.IncFrameTx(typ.String())
}

func (s *Session) quit(code int) {
	s.exitCode = code
	s.loop.Quit()
}

func (s *Session) onWritable(fd int) error {
	err := s.q.Drain(s.streams.Out)
	if s.q.Empty() {
		s.loop.ArmWrite(false)
	}
	return err
}

func (s *Session) onReadable(fd int) error {
	_, err := s.ring.Fill(s.streams.In)
	for {
		msg, ok := s.ring.TryDecode()
		if !ok {
			break
		}
		metrics.IncFrameRx(msg.Type.String())
		if derr := s.dispatch(msg); derr != nil {
			return derr
		}
	}
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("server: client closed the connection")
		}
		if err != protocol.ErrWouldBlock {
			return err
		}
	}
	return nil
}

func (s *Session) dispatch(msg protocol.Message) error {
	switch msg.Type {
	case protocol.MsgSelectBoard:
		return s.onSelectBoard(string(msg.Payload))
	case protocol.MsgConsole:
		metrics.AddConsoleBytes(len(msg.Payload))
		return s.withHandle(func(h device.Handle) error {
			return s.cfg.Backend.ConsoleWrite(h, msg.Payload)
		})
	case protocol.MsgPowerOn:
		return s.onPower(true)
	case protocol.MsgPowerOff:
		return s.onPower(false)
	case protocol.MsgVBUSOn:
		return s.withHandle(func(h device.Handle) error { return s.cfg.Backend.USB(h, true) })
	case protocol.MsgVBUSOff:
		return s.withHandle(func(h device.Handle) error { return s.cfg.Backend.USB(h, false) })
	case protocol.MsgSendBreak:
		return s.withHandle(func(h device.Handle) error { return s.cfg.Backend.SendBreak(h) })
	case protocol.MsgStatusUpdate:
		return s.withHandle(func(h device.Handle) error { return s.cfg.Backend.StatusEnable(h) })
	case protocol.MsgFastbootDownload:
		return s.onFastbootDownload(msg.Payload)
	case protocol.MsgFastbootContinue:
		return s.onFastbootContinue()
	case protocol.MsgListDevices:
		return s.onListDevices()
	case protocol.MsgBoardInfo:
		return s.onBoardInfo(string(msg.Payload))
	case protocol.MsgHardReset, protocol.MsgFastbootBoot:
		// reserved; no peer acts on these (spec.md Open Questions).
		return nil
	default:
		s.log.Error("unknown_frame", "type", uint8(msg.Type), "len", len(msg.Payload))
		return fmt.Errorf("server: unknown frame type %d len %d", uint8(msg.Type), len(msg.Payload))
	}
}

// withHandle runs fn against the open handle, logging and swallowing
// driver errors rather than tearing down the session — a single failed
// console write or VBUS toggle is not a transport error.
func (s *Session) withHandle(fn func(device.Handle) error) error {
	if s.handle == nil {
		return nil
	}
	if err := fn(s.handle); err != nil {
		metrics.IncError("device")
		s.log.Warn("device_error", "error", err)
	}
	return nil
}

// onDeviceDone logs a device error, if any, from an async Backend
// completion callback — the same swallow-and-log treatment withHandle
// gives synchronous calls, since a failed boot attempt is not a
// transport error.
func (s *Session) onDeviceDone(err error) {
	if err != nil {
		metrics.IncError("device")
		s.log.Warn("device_error", "error", err)
	}
}

func (s *Session) onFastbootContinue() error {
	if s.handle == nil {
		return nil
	}
	if err := s.cfg.Backend.FastbootContinue(s.handle, func(err error) {
		s.onDeviceDone(err)
		s.enqueue(protocol.MsgFastbootContinue, nil)
	}); err != nil {
		// Start itself failed; done will never be invoked, so ack here —
		// the ack is always sent regardless of device error.
		s.onDeviceDone(err)
		s.enqueue(protocol.MsgFastbootContinue, nil)
	}
	return nil
}

func (s *Session) onSelectBoard(name string) error {
	desc := s.cfg.Inventory.Lookup(name)
	if desc == nil || !desc.Allows(s.cfg.User) {
		s.log.Warn("select_board_denied", "board", name, "user", s.cfg.User)
		s.denySelectBoard()
		return nil
	}
	h, err := s.cfg.Backend.Open(desc, s.cfg.User, device.EventSink{
		Console:  s.onConsoleEvent,
		Fastboot: s.onFastbootEvent,
		Status:   s.onStatusEvent,
		Info:     s.onInfoEvent,
	})
	if err != nil {
		s.log.Warn("open_failed", "board", name, "error", err)
		s.denySelectBoard()
		return nil
	}
	s.handle = h
	s.enqueue(protocol.MsgSelectBoard, nil)
	return nil
}

// denySelectBoard implements spec.md §7's ACL-denial contract: a
// failure SELECT_BOARD ACK carries a non-empty payload, distinguishing
// it from the empty-payload success ACK, and the session then quits.
func (s *Session) denySelectBoard() {
	s.enqueue(protocol.MsgSelectBoard, []byte{0})
	s.quit(1)
}

func (s *Session) onPower(on bool) error {
	typ := protocol.MsgPowerOff
	if on {
		typ = protocol.MsgPowerOn
	}
	return s.withHandle(func(h device.Handle) error {
		if err := s.cfg.Backend.Power(h, on); err != nil {
			return err
		}
		s.enqueue(typ, nil)
		return nil
	})
}

func (s *Session) onFastbootDownload(payload []byte) error {
	metrics.AddFastbootBytes(len(payload))
	if len(payload) == 0 {
		if s.dl == nil {
			return nil
		}
		image := s.dl.buf
		s.dl = nil
		if s.handle == nil {
			return nil
		}
		if err := s.cfg.Backend.Boot(s.handle, image, func(err error) {
			s.onDeviceDone(err)
			s.enqueue(protocol.MsgFastbootDownload, nil)
		}); err != nil {
			s.onDeviceDone(err)
			s.enqueue(protocol.MsgFastbootDownload, nil)
		}
		return nil
	}
	if s.dl == nil {
		s.dl = &download{}
	}
	s.dl.buf = append(s.dl.buf, payload...)
	s.dl.total += len(payload)
	return nil
}

func (s *Session) onListDevices() error {
	if err := s.cfg.Backend.ListForUser(s.cfg.User, func(name string) {
		s.enqueue(protocol.MsgListDevices, []byte(name))
	}); err != nil {
		s.log.Warn("list_failed", "error", err)
	}
	s.enqueue(protocol.MsgListDevices, nil)
	return nil
}

func (s *Session) onBoardInfo(name string) error {
	found := false
	// A non-nil error here means "unknown board or not accessible to
	// user" (device.Local.InfoForUser), which is routine and reported
	// to the operator as an empty BOARD_INFO reply, not logged.
	_ = s.cfg.Backend.InfoForUser(s.cfg.User, name, func(text string) {
		found = true
		s.enqueue(protocol.MsgBoardInfo, []byte(text))
	})
	if !found {
		s.enqueue(protocol.MsgBoardInfo, nil)
	}
	return nil
}

func (s *Session) onConsoleEvent(data []byte) {
	s.enqueue(protocol.MsgConsole, append([]byte(nil), data...))
}

func (s *Session) onFastbootEvent(present bool) {
	var v byte
	if present {
		v = 1
		_ = s.withHandle(func(h device.Handle) error { return s.cfg.Backend.FastbootKey(h, false) })
	}
	s.enqueue(protocol.MsgFastbootPresent, []byte{v})
}

func (s *Session) onStatusEvent(state string) {
	s.enqueue(protocol.MsgStatusUpdate, []byte(state))
}

func (s *Session) onInfoEvent(line string) {
	w := s.streams.Err
	if w == nil {
		w = io.Discard
	}
	fmt.Fprintf(w, "\033[94m%s\033[0m\n", line)
}
