package transport

import (
	"bufio"
	"net"
	"time"

	"github.com/AsterZephyr/rotascope/wire"
)

// TCP carries frames over a raw byte stream with the wire length prefix.
type TCP struct {
	conn         net.Conn
	reader       *wire.Reader
	maxFrameSize uint32
	writeTimeout time.Duration
}

// NewTCP wraps conn.
func NewTCP(conn net.Conn, opts Options) *TCP {
	max := opts.MaxFrameSize
	if max == 0 {
		max = wire.DefaultMaxFrameSize
	}
	return &TCP{
		conn:         conn,
		reader:       wire.NewReader(bufio.NewReader(conn), max),
		maxFrameSize: max,
		writeTimeout: opts.WriteTimeout,
	}
}

func (t *TCP) Name() string { return "tcp" }

func (t *TCP) ReadFrame() ([]byte, error) {
	return t.reader.ReadFrame()
}

func (t *TCP) WriteFrame(_ Kind, payload []byte) error {
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return wire.WriteFrame(t.conn, payload, t.maxFrameSize)
}

// Ping is a no-op, keepalives on TCP are heartbeat messages.
func (t *TCP) Ping() error { return nil }

func (t *TCP) OnAlive(func()) {}

func (t *TCP) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *TCP) Close() error {
	return t.conn.Close()
}
