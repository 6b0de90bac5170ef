// Package client is a viewer side connection to a rotascope server.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/AsterZephyr/rotascope/message"
	"github.com/AsterZephyr/rotascope/transport"
)

// Received is either a status message or a raw video frame payload.
type Received struct {
	Status message.StatusMessage
	Frame  []byte
}

// Client sends control messages and receives status messages and frames.
// Send may be called concurrently, Receive from one goroutine.
type Client struct {
	conn   transport.Conn
	format message.Format
	mu     sync.Mutex
}

// Options configures a client connection.
type Options struct {
	Format       message.Format
	MaxFrameSize uint32
}

// Dial connects to the length-framed TCP transport at address.
func Dial(ctx context.Context, address string, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return New(transport.NewTCP(conn, transport.Options{MaxFrameSize: opts.MaxFrameSize}), opts.Format), nil
}

// DialWebSocket connects to the websocket endpoint at url, e.g.
// ws://localhost:5050/stream.
func DialWebSocket(ctx context.Context, url string, opts Options) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(transport.NewWebSocket(conn, transport.Options{MaxFrameSize: opts.MaxFrameSize}), opts.Format), nil
}

// New wraps an established connection.
func New(conn transport.Conn, format message.Format) *Client {
	if format == nil {
		format = message.JSON
	}
	return &Client{conn: conn, format: format}
}

// Send writes a control message.
func (c *Client) Send(msg message.ControlMessage) error {
	data, err := c.format.MarshalControl(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type(), err)
	}
	kind := transport.Text
	if c.format.Binary() {
		kind = transport.Binary
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteFrame(kind, data)
}

// Receive blocks until the next frame arrives.
func (c *Client) Receive() (Received, error) {
	data, err := c.conn.ReadFrame()
	if err != nil {
		return Received{}, err
	}
	if !c.format.Detect(data) {
		return Received{Frame: data}, nil
	}
	msg, err := c.format.UnmarshalStatus(data)
	if err != nil {
		return Received{}, fmt.Errorf("unmarshal status: %w", err)
	}
	return Received{Status: msg}, nil
}

// Close ends the connection.
func (c *Client) Close() error {
	err := c.conn.Close()
	if transport.IsDisconnect(err) {
		return nil
	}
	return err
}

// IsClosed reports whether err from Receive means the connection ended.
func IsClosed(err error) bool {
	return transport.IsDisconnect(err) || errors.Is(err, context.Canceled)
}
