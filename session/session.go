package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AsterZephyr/rotascope/hub"
	"github.com/AsterZephyr/rotascope/message"
	"github.com/AsterZephyr/rotascope/transport"
	"github.com/AsterZephyr/rotascope/wire"
)

// replyWait bounds how long the reader waits for the writer to accept a reply.
const replyWait = 2 * time.Second

// closeWriter asks the writer to flush what it has and end the session.
type closeWriter struct {
	reason string
}

func (closeWriter) Type() string { return "close" }

// Session is one connected viewer. The reader, the writer and the heartbeat
// watchdog run concurrently; whichever finishes first ends all of them.
type Session struct {
	server *Server
	conn   transport.Conn
	ip     string

	id      xid.ID
	sender  *hub.Sender
	replies chan message.StatusMessage

	lastSeen atomic.Int64
	done     chan struct{}
	once     sync.Once
}

func newSession(server *Server, conn transport.Conn, ip string) *Session {
	return &Session{
		server:  server,
		conn:    conn,
		ip:      ip,
		sender:  hub.NewSender(server.opts.SessionBuffer),
		replies: make(chan message.StatusMessage, 4),
		done:    make(chan struct{}),
	}
}

// run registers the session and blocks until it ends.
func (s *Session) run(ctx context.Context) {
	s.touch()
	s.conn.OnAlive(s.touch)
	s.id = s.server.hub.Register(s.sender, s.server.state.ConfigMessage)
	defer s.server.hub.Unregister(s.id)

	transportName := s.conn.Name()
	sessionsTotal.WithLabelValues(transportName).Inc()
	sessionsActive.WithLabelValues(transportName).Inc()
	defer sessionsActive.WithLabelValues(transportName).Dec()

	s.debug().Str("transport", transportName).Msg("Session started")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.readLoop()
	}()
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()
	go func() {
		defer wg.Done()
		s.watchdog()
	}()

	select {
	case <-ctx.Done():
		s.close("server shutdown")
	case <-s.sender.Done():
		s.close("dropped by hub")
	case <-s.done:
	}
	wg.Wait()
	s.debug().Msg("Session done")
}

// close ends the session. Only the first call has an effect.
func (s *Session) close(reason string) {
	s.once.Do(func() {
		s.debug().Str("reason", reason).Msg("Session closing")
		close(s.done)
		s.sender.Close()
		_ = s.conn.Close()
	})
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *Session) readLoop() {
	defer s.close("reader finished")

	for {
		data, err := s.conn.ReadFrame()
		if err != nil {
			if wire.IsProtocolError(err) {
				protocolErrorsTotal.WithLabelValues(s.conn.Name()).Inc()
				log.Info().Str("id", s.id.String()).Str("ip", s.ip).Err(err).Msg("Disconnecting client after protocol error")
				s.reply(&message.Error{Message: err.Error()})
				s.reply(closeWriter{reason: "protocol error"})
				s.awaitWriter()
				return
			}
			s.printError("read", err)
			return
		}

		msg, err := s.server.opts.Format.UnmarshalControl(data)
		if err != nil {
			malformedTotal.Inc()
			s.debug().Err(err).Msg("Malformed control message")
			s.reply(&message.Error{Message: err.Error()})
			continue
		}
		if s.sender.Closed() {
			return
		}
		s.debug().Str("type", msg.Type()).Interface("payload", msg).Msg("Receive")
		msg.Apply(s)
	}
}

// awaitWriter gives the writer a chance to flush before the connection closes.
func (s *Session) awaitWriter() {
	select {
	case <-s.done:
	case <-time.After(replyWait):
	}
}

// reply queues a session scoped message for the writer.
func (s *Session) reply(msg message.StatusMessage) {
	writeTimeout[message.StatusMessage](s.replies, msg, s.done)
}

func writeTimeout[T any](ch chan<- T, msg T, done <-chan struct{}) {
	select {
	case ch <- msg:
	case <-done:
	case <-time.After(replyWait):
		log.Warn().Str("event", fmt.Sprintf("%T", msg)).Msg("Session writer didn't accept the message")
	}
}

func (s *Session) writeLoop() {
	defer s.close("writer finished")

	var tick <-chan time.Time
	if interval := s.server.opts.HeartbeatInterval; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.replies:
			if cw, ok := msg.(closeWriter); ok {
				s.debug().Str("reason", cw.reason).Msg("Writer closing")
				return
			}
			if err := s.write(msg); err != nil {
				s.printError("write", err)
				return
			}
		case msg := <-s.sender.C():
			if err := s.write(msg); err != nil {
				s.printError("write", err)
				return
			}
		case <-s.sender.Done():
			return
		case <-tick:
			if err := s.write(&message.ServerHeartbeat{}); err != nil {
				s.printError("heartbeat", err)
				return
			}
			if err := s.conn.Ping(); err != nil {
				s.printError("ping", err)
				return
			}
		}
	}
}

func (s *Session) write(msg message.StatusMessage) error {
	if frame, ok := msg.(*message.VideoFrame); ok {
		return s.conn.WriteFrame(transport.Binary, frame.Payload)
	}
	format := s.server.opts.Format
	data, err := format.MarshalStatus(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type(), err)
	}
	kind := transport.Text
	if format.Binary() {
		kind = transport.Binary
	}
	return s.conn.WriteFrame(kind, data)
}

func (s *Session) watchdog() {
	timeout := s.server.opts.HeartbeatTimeout
	if timeout <= 0 {
		<-s.done
		return
	}
	defer s.close("heartbeat timeout")

	ticker := time.NewTicker(max(timeout/4, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastSeen.Load())
			if time.Since(last) > timeout {
				heartbeatTimeoutsTotal.Inc()
				log.Info().Str("id", s.id.String()).Str("ip", s.ip).Str("silent", time.Since(last).Round(time.Millisecond).String()).Msg("Client heartbeat timed out")
				return
			}
		}
	}
}

// SwitchDisplay implements message.Target.
func (s *Session) SwitchDisplay(direction message.Direction) {
	s.server.state.Switch(direction)
}

// Alive implements message.Target. The heartbeat is answered on the reply
// channel so a queue full of frames doesn't drop the session.
func (s *Session) Alive() {
	s.touch()
	s.reply(&message.ServerHeartbeat{})
}

// RotationThreshold implements message.Target.
func (s *Session) RotationThreshold() float32 {
	return s.server.opts.RotationThreshold
}

func (s *Session) debug() *zerolog.Event {
	return log.Debug().Str("id", s.id.String()).Str("ip", s.ip)
}

func (s *Session) printError(op string, err error) {
	if transport.IsDisconnect(err) {
		s.debug().Str("op", op).Err(err).Msg("Client disconnected")
		return
	}
	log.Warn().Str("id", s.id.String()).Str("ip", s.ip).Str("op", op).Err(err).Msg("Session error")
}
