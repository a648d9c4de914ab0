package protocol

import (
	"errors"
	"io"
)

// DefaultRingCapacity is the recommended minimum ring buffer size (spec.md §3).
const DefaultRingCapacity = 16 * 1024

// RingBuffer is a fixed-capacity circular byte buffer owned by a peer per
// input stream. It never overwrites unread bytes: Fill reads at most the
// current free capacity, and TryDecode only advances the read position on
// a successful full-frame decode.
type RingBuffer struct {
	buf      []byte
	readPos  int
	writePos int
	full     bool // writePos == readPos with data present (vs. empty)
}

// NewRingBuffer allocates a ring of the given capacity. capacity <= 0 uses
// DefaultRingCapacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Len returns the number of unread bytes currently buffered.
func (r *RingBuffer) Len() int {
	if r.full {
		return len(r.buf)
	}
	if r.writePos >= r.readPos {
		return r.writePos - r.readPos
	}
	return len(r.buf) - r.readPos + r.writePos
}

// Free returns the number of bytes that can still be written without
// overwriting unread data.
func (r *RingBuffer) Free() int { return len(r.buf) - r.Len() }

// Fill reads from src into the ring's free space, up to the current free
// capacity. It never blocks beyond what src.Read itself does: if src
// returns protocol.ErrWouldBlock (or an error satisfying net.Error's
// Timeout()) with zero bytes read, Fill propagates ErrWouldBlock. io.EOF
// is propagated unchanged. It is invariant 3 of spec.md §8: given N unread
// bytes and free capacity F, Fill never reads more than F bytes from src.
func (r *RingBuffer) Fill(src io.Reader) (int, error) {
	free := r.Free()
	if free == 0 {
		return 0, nil
	}
	total := 0
	for total < free {
		// Read into the largest contiguous run available from writePos,
		// which may be shorter than the remaining free space if it wraps.
		end := len(r.buf)
		if r.writePos < r.readPos {
			end = r.readPos
		}
		if end == r.writePos {
			// Wrapped fully to capacity with writePos == readPos handled by `full`.
			break
		}
		chunk := end - r.writePos
		if chunk > free-total {
			chunk = free - total
		}
		n, err := src.Read(r.buf[r.writePos : r.writePos+chunk])
		if n > 0 {
			r.writePos = (r.writePos + n) % len(r.buf)
			total += n
			if r.writePos == r.readPos {
				r.full = true
			}
		}
		if err != nil {
			if isWouldBlock(err) {
				if total > 0 {
					return total, nil
				}
				return 0, ErrWouldBlock
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

func isWouldBlock(err error) bool {
	if errors.Is(err, ErrWouldBlock) {
		return true
	}
	type timeouter interface{ Timeout() bool }
	var te timeouter
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

// peek copies up to len(dst) unread bytes into dst without advancing
// readPos, returning the number of bytes copied.
func (r *RingBuffer) peek(dst []byte) int {
	avail := r.Len()
	n := len(dst)
	if n > avail {
		n = avail
	}
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(r.readPos+i)%len(r.buf)]
	}
	return n
}

// advance consumes n unread bytes (n must be <= Len()).
func (r *RingBuffer) advance(n int) {
	if n == 0 {
		return
	}
	r.readPos = (r.readPos + n) % len(r.buf)
	if n > 0 {
		r.full = false
	}
}

// TryDecode attempts to decode one full Message from the ring. It returns
// (Message{}, false) if the header or the full payload is not yet
// available, leaving the ring completely untouched (spec.md §4.1: framing
// errors are impossible by construction). On success it advances the read
// position past the decoded frame.
func (r *RingBuffer) TryDecode() (Message, bool) {
	var hb [HeaderSize]byte
	if r.peek(hb[:]) != HeaderSize {
		return Message{}, false
	}
	hdr := decodeHeader(hb[:])
	need := HeaderSize + int(hdr.Length)
	if r.Len() < need {
		return Message{}, false
	}
	payload := make([]byte, hdr.Length)
	if hdr.Length > 0 {
		tmp := make([]byte, need)
		r.peek(tmp)
		copy(payload, tmp[HeaderSize:])
	}
	r.advance(need)
	return Message{Type: hdr.Type, Payload: payload}, true
}
