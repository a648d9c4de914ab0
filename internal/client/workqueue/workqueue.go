// Package workqueue implements the client's outbound work queue
// (spec.md §3, §4.6): a FIFO of work items, each carrying its own
// parameters, drained one frame at a time only when the write stream
// is ready. A partially written item stays at the head of the queue so
// frame bytes are never duplicated or reordered.
package workqueue

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/2lambda123/linux-msm-cdba/internal/protocol"
)

// item is a single queued frame with its own write cursor, so a short
// write (or EWOULDBLOCK) can resume exactly where it left off.
type item struct {
	frame []byte
	off   int
}

func newItem(typ protocol.MessageType, payload []byte) *item {
	var hdr [protocol.HeaderSize]byte
	hdr[0] = byte(typ)
	binary.LittleEndian.PutUint16(hdr[1:3], uint16(len(payload)))
	frame := make([]byte, 0, protocol.HeaderSize+len(payload))
	frame = append(frame, hdr[:]...)
	frame = append(frame, payload...) // the payload is copied into the
	// frame buffer here; the item keeps no reference to the caller's slice.
	return &item{frame: frame}
}

// drain writes as much of the item's remaining frame bytes as w
// accepts. done is true once the entire frame has been written.
func (it *item) drain(w io.Writer) (done bool, err error) {
	for it.off < len(it.frame) {
		n, werr := w.Write(it.frame[it.off:])
		it.off += n
		if werr != nil {
			if errors.Is(werr, protocol.ErrWouldBlock) {
				return false, nil
			}
			return false, werr
		}
	}
	return true, nil
}

// Queue is the client's FIFO of outbound work items.
type Queue struct {
	items []*item
}

// New returns an empty Queue.
func New() *Queue { return &Queue{} }

// Push enqueues a frame built from typ/payload at the tail.
func (q *Queue) Push(typ protocol.MessageType, payload []byte) {
	q.items = append(q.items, newItem(typ, payload))
}

// Empty reports whether the queue has no pending work.
func (q *Queue) Empty() bool { return len(q.items) == 0 }

// Drain attempts to fully write the item at the head of the queue to
// w. It writes at most one item's frame per call. If the write blocks
// partway, the item remains at the head (with its cursor advanced) so
// the next Drain resumes exactly where it left off — spec.md's "a
// partially-written item is re-queued at the head" invariant falls out
// naturally from never popping until a full frame is written.
func (q *Queue) Drain(w io.Writer) error {
	if len(q.items) == 0 {
		return nil
	}
	done, err := q.items[0].drain(w)
	if err != nil {
		return err
	}
	if done {
		q.items[0] = nil // drop the reference before advancing
		q.items = q.items[1:]
		if len(q.items) == 0 && cap(q.items) > reclaimThreshold {
			q.items = nil
		}
	}
	return nil
}

// reclaimThreshold bounds how large the backing array of a long-idle
// queue is allowed to stay once fully drained.
const reclaimThreshold = 256
