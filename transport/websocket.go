package transport

import (
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AsterZephyr/rotascope/wire"
)

// controlWait bounds writes of websocket control frames.
const controlWait = 2 * time.Second

// WebSocket carries one frame per websocket message. Text frames carry text
// payloads, binary frames carry binary ones.
type WebSocket struct {
	conn         *websocket.Conn
	maxFrameSize uint32
	writeTimeout time.Duration
	alive        func()
}

// NewWebSocket wraps an upgraded connection.
func NewWebSocket(conn *websocket.Conn, opts Options) *WebSocket {
	max := opts.MaxFrameSize
	if max == 0 {
		max = wire.DefaultMaxFrameSize
	}
	w := &WebSocket{
		conn:         conn,
		maxFrameSize: max,
		writeTimeout: opts.WriteTimeout,
	}
	conn.SetReadLimit(int64(max))
	conn.SetPongHandler(func(string) error {
		w.touch()
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		w.touch()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})
	return w
}

func (w *WebSocket) touch() {
	if w.alive != nil {
		w.alive()
	}
}

func (w *WebSocket) Name() string { return "websocket" }

func (w *WebSocket) ReadFrame() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	if errors.Is(err, websocket.ErrReadLimit) {
		return nil, &wire.ProtocolError{Length: w.maxFrameSize + 1, Max: w.maxFrameSize, Err: wire.ErrFrameTooLarge}
	}
	return data, err
}

func (w *WebSocket) WriteFrame(kind Kind, payload []byte) error {
	if uint64(len(payload)) > uint64(w.maxFrameSize) {
		return &wire.ProtocolError{Length: uint32(len(payload)), Max: w.maxFrameSize, Err: wire.ErrFrameTooLarge}
	}
	messageType := websocket.TextMessage
	if kind == Binary {
		messageType = websocket.BinaryMessage
	}
	if w.writeTimeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	return w.conn.WriteMessage(messageType, payload)
}

func (w *WebSocket) Ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWait))
}

func (w *WebSocket) OnAlive(fn func()) {
	w.alive = fn
}

func (w *WebSocket) RemoteAddr() net.Addr {
	return w.conn.RemoteAddr()
}

// Close sends a normal closure and closes the connection.
func (w *WebSocket) Close() error {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(controlWait))
	return w.conn.Close()
}
