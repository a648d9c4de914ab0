package workqueue

import (
	"bytes"
	"testing"

	"github.com/2lambda123/linux-msm-cdba/internal/protocol"
)

// limitedWriter accepts at most max bytes per Write call and reports
// ErrWouldBlock once exhausted for the current "readiness window" —
// simulating a non-blocking fd that only has so much send-buffer space.
type limitedWriter struct {
	buf     bytes.Buffer
	max     int
	blocked bool
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.blocked {
		return 0, protocol.ErrWouldBlock
	}
	n := len(p)
	if n > w.max {
		n = w.max
		w.blocked = true
	}
	w.buf.Write(p[:n])
	return n, nil
}

func (w *limitedWriter) unblock() { w.blocked = false }

func TestQueue_FIFOOrder(t *testing.T) {
	q := New()
	q.Push(protocol.MsgPowerOn, nil)
	q.Push(protocol.MsgPowerOff, nil)
	q.Push(protocol.MsgSendBreak, nil)

	var buf bytes.Buffer
	for !q.Empty() {
		if err := q.Drain(&buf); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}

	ring := protocol.NewRingBuffer(64)
	if _, err := ring.Fill(&wouldBlockOnceDrained{buf.Bytes()}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	var got []protocol.MessageType
	for {
		msg, ok := ring.TryDecode()
		if !ok {
			break
		}
		got = append(got, msg.Type)
	}
	want := []protocol.MessageType{protocol.MsgPowerOn, protocol.MsgPowerOff, protocol.MsgSendBreak}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// wouldBlockOnceDrained adapts a fixed byte slice to io.Reader, reporting
// ErrWouldBlock once exhausted (see internal/protocol tests for the
// same pattern under a different name; kept local to avoid a
// test-only cross-package dependency).
type wouldBlockOnceDrained struct{ data []byte }

func (r *wouldBlockOnceDrained) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, protocol.ErrWouldBlock
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestQueue_PartialWriteStaysAtHead(t *testing.T) {
	q := New()
	q.Push(protocol.MsgSelectBoard, []byte("board-a"))
	q.Push(protocol.MsgPowerOn, nil)

	w := &limitedWriter{max: 5} // smaller than the first frame (3+7=10 bytes)
	if err := q.Drain(w); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if q.Empty() {
		t.Fatalf("first item should still be pending after a partial write")
	}
	if w.buf.Len() != 5 {
		t.Fatalf("expected exactly 5 bytes written, got %d", w.buf.Len())
	}

	// Next drain call would also report ErrWouldBlock until the fd frees up.
	if err := q.Drain(w); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if w.buf.Len() != 5 {
		t.Fatalf("drain while blocked should not advance: %d", w.buf.Len())
	}

	w.unblock()
	w.max = 1024
	for !q.Empty() {
		if err := q.Drain(w); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}

	ring := protocol.NewRingBuffer(64)
	if _, err := ring.Fill(&wouldBlockOnceDrained{w.buf.Bytes()}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	msg1, ok := ring.TryDecode()
	if !ok || msg1.Type != protocol.MsgSelectBoard || string(msg1.Payload) != "board-a" {
		t.Fatalf("unexpected first message: %+v ok=%v", msg1, ok)
	}
	msg2, ok := ring.TryDecode()
	if !ok || msg2.Type != protocol.MsgPowerOn {
		t.Fatalf("unexpected second message: %+v ok=%v", msg2, ok)
	}
}

func TestQueue_FastbootChunksReassembleImage(t *testing.T) {
	image := make([]byte, 5000)
	for i := range image {
		image[i] = byte(i)
	}

	q := New()
	const chunkSize = 2048
	for off := 0; off < len(image); off += chunkSize {
		end := off + chunkSize
		if end > len(image) {
			end = len(image)
		}
		q.Push(protocol.MsgFastbootDownload, image[off:end]) // no copy at push time
	}
	q.Push(protocol.MsgFastbootDownload, nil) // zero-length terminator

	var buf bytes.Buffer
	for !q.Empty() {
		if err := q.Drain(&buf); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}

	ring := protocol.NewRingBuffer(8192)
	if _, err := ring.Fill(&wouldBlockOnceDrained{buf.Bytes()}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	var reassembled []byte
	chunks := 0
	for {
		msg, ok := ring.TryDecode()
		if !ok {
			break
		}
		if msg.Type != protocol.MsgFastbootDownload {
			t.Fatalf("unexpected message type %v", msg.Type)
		}
		chunks++
		reassembled = append(reassembled, msg.Payload...)
	}
	if chunks != 4 { // 2048, 2048, 904, then the empty terminator
		t.Fatalf("chunks = %d, want 4", chunks)
	}
	if !bytes.Equal(reassembled, image) {
		t.Fatalf("reassembled image mismatch")
	}
}
