// Package wire implements the length-prefixed framing used on every
// rotascope connection.
//
// Each frame is a 4 byte big-endian unsigned payload length followed by the
// payload bytes, without padding:
//
//	[length uint32 BE][payload ...]
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 4
	// DefaultMaxFrameSize bounds a single payload. Encoded screen frames can
	// be large, the declared length on the wire is never trusted above this.
	DefaultMaxFrameSize uint32 = 128 << 20
)

// ErrFrameTooLarge is returned when a declared or supplied payload length
// exceeds the configured bound.
var ErrFrameTooLarge = errors.New("frame too large")

// ProtocolError is a framing violation. It is scoped to the connection it
// happened on and always ends that connection.
type ProtocolError struct {
	Length uint32
	Max    uint32
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (length %d, max %d)", e.Err, e.Length, e.Max)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err is a framing violation.
func IsProtocolError(err error) bool {
	var perr *ProtocolError
	return errors.As(err, &perr)
}

// Encode returns payload as a single frame.
func Encode(payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[:HeaderSize], uint32(len(payload)))
	copy(frame[HeaderSize:], payload)
	return frame
}

// WriteFrame writes payload as one frame to w without copying the payload.
// Payloads larger than max are refused before anything is written.
func WriteFrame(w io.Writer, payload []byte, max uint32) error {
	if uint64(len(payload)) > uint64(max) {
		return &ProtocolError{Length: uint32(min(uint64(len(payload)), uint64(^uint32(0)))), Max: max, Err: ErrFrameTooLarge}
	}
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	buffers := net.Buffers{header[:], payload}
	if _, err := buffers.WriteTo(w); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Reader yields successive payloads from a byte stream.
type Reader struct {
	r      io.Reader
	max    uint32
	header [HeaderSize]byte
	err    error
}

// NewReader returns a Reader that rejects frames above max. A zero max
// selects DefaultMaxFrameSize.
func NewReader(r io.Reader, max uint32) *Reader {
	if max == 0 {
		max = DefaultMaxFrameSize
	}
	return &Reader{r: r, max: max}
}


// ReadFrame reads the next frame and returns its payload.
//
// A stream that ends cleanly on a frame boundary returns io.EOF. A stream that
// ends inside a frame returns io.ErrUnexpectedEOF. Once a frame has been
// rejected the stream position is unknown, so every later call returns the
// same error.
func (r *Reader) ReadFrame() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	payload, err := r.readFrame()
	if err != nil {
		r.err = err
	}
	return payload, err
}

func (r *Reader) readFrame() ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(r.header[:])
	if length > r.max {
		return nil, &ProtocolError{Length: length, Max: r.max, Err: ErrFrameTooLarge}
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}
