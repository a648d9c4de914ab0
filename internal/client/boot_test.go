package client

import (
	"bytes"
	"testing"

	"github.com/2lambda123/linux-msm-cdba/internal/client/workqueue"
	"github.com/2lambda123/linux-msm-cdba/internal/protocol"
)

// wouldBlockOnceDrained adapts a fixed byte slice to io.Reader, reporting
// ErrWouldBlock once exhausted (same pattern as internal/client/workqueue's
// tests; kept local to avoid a test-only cross-package dependency).
type wouldBlockOnceDrained struct{ data []byte }

func (r *wouldBlockOnceDrained) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, protocol.ErrWouldBlock
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestEnqueueBootImage_ChunksAndTerminates(t *testing.T) {
	image := make([]byte, 5000)
	for i := range image {
		image[i] = byte(i)
	}

	q := workqueue.New()
	enqueueBootImage(q, image)

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
	var sizes []int
	for {
		msg, ok := ring.TryDecode()
		if !ok {
			break
		}
		if msg.Type != protocol.MsgFastbootDownload {
			t.Fatalf("unexpected message type %v", msg.Type)
		}
		sizes = append(sizes, len(msg.Payload))
		reassembled = append(reassembled, msg.Payload...)
	}

	want := []int{2048, 2048, 904, 0}
	if len(sizes) != len(want) {
		t.Fatalf("chunk count = %d, want %d (sizes=%v)", len(sizes), len(want), sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("chunk %d size = %d, want %d", i, sizes[i], want[i])
		}
	}
	if !bytes.Equal(reassembled, image) {
		t.Fatalf("reassembled image does not match original")
	}
}

func TestEnqueueBootImage_EmptyImageIsJustTheTerminator(t *testing.T) {
	q := workqueue.New()
	enqueueBootImage(q, nil)

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
	msg, ok := ring.TryDecode()
	if !ok || msg.Type != protocol.MsgFastbootDownload || len(msg.Payload) != 0 {
		t.Fatalf("expected a single zero-length terminator, got %+v ok=%v", msg, ok)
	}
	if _, ok := ring.TryDecode(); ok {
		t.Fatalf("expected exactly one frame for an empty image")
	}
}

func TestEnqueueBootImage_ExactMultipleOfChunkSize(t *testing.T) {
	image := bytes.Repeat([]byte{0xAB}, protocol.FastbootChunkSize*2)

	q := workqueue.New()
	enqueueBootImage(q, image)

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
	var sizes []int
	for {
		msg, ok := ring.TryDecode()
		if !ok {
			break
		}
		sizes = append(sizes, len(msg.Payload))
	}
	want := []int{protocol.FastbootChunkSize, protocol.FastbootChunkSize, 0}
	if len(sizes) != len(want) {
		t.Fatalf("chunk count = %d, want %d (sizes=%v)", len(sizes), len(want), sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("chunk %d size = %d, want %d", i, sizes[i], want[i])
		}
	}
}
