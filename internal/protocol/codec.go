package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidLength is returned by Encode when a payload exceeds MaxPayload.
var ErrInvalidLength = errors.New("protocol: invalid frame length")

// ErrWouldBlock signals that a non-blocking read source has no data
// available right now. Callers should retry once the underlying fd is
// reported readable by the event loop.
var ErrWouldBlock = errors.New("protocol: would block")

// Encode writes typ/payload to w as a single frame: 1-byte type, 2-byte
// little-endian length, then len(payload) bytes. len(payload) must be
// <= MaxPayload.
func Encode(w io.Writer, typ MessageType, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("protocol: encode %s: %w (%d)", typ, ErrInvalidLength, len(payload))
	}
	var hdr [HeaderSize]byte
	hdr[0] = byte(typ)
	binary.LittleEndian.PutUint16(hdr[1:3], uint16(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("protocol: write header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: write payload: %w", err)
	}
	return nil
}

// header is the decoded wire header, used internally while peeking the ring.
type header struct {
	Type   MessageType
	Length uint16
}

func decodeHeader(b []byte) header {
	return header{Type: MessageType(b[0]), Length: binary.LittleEndian.Uint16(b[1:3])}
}
