// Package transport adapts the connection types rotascope accepts to a
// common frame oriented interface: the length-prefixed TCP stream and the
// upgraded websocket.
package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Kind tells the transport how a frame payload is typed. Transports without
// message typing ignore it.
type Kind int

const (
	// Text is a UTF-8 message payload.
	Text Kind = iota
	// Binary is an opaque payload, e.g. an encoded video frame.
	Binary
)

// Options configures a Conn.
type Options struct {
	// MaxFrameSize bounds inbound and outbound payloads.
	MaxFrameSize uint32
	// WriteTimeout bounds a single frame write. Zero disables it.
	WriteTimeout time.Duration
}

// Conn is one client connection. ReadFrame is called from a single reader
// goroutine and WriteFrame from a single writer goroutine; Ping and Close may
// be called from anywhere.
type Conn interface {
	// Name identifies the transport in logs and metrics.
	Name() string
	ReadFrame() ([]byte, error)
	WriteFrame(kind Kind, payload []byte) error
	// Ping sends a transport level keepalive if the transport has one.
	Ping() error
	// OnAlive registers fn to be called whenever the peer answers or sends
	// a transport level keepalive. It must be called before reading starts.
	OnAlive(fn func())
	RemoteAddr() net.Addr
	Close() error
}

// IsDisconnect reports whether err is an ordinary end of a connection: the
// peer went away, reset the connection, or the connection was closed locally.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
