// Package session runs the per-connection protocol: it decodes control
// messages from a viewer, applies them to the shared display state and writes
// status messages and video frames back.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/AsterZephyr/rotascope/display"
	"github.com/AsterZephyr/rotascope/hub"
	"github.com/AsterZephyr/rotascope/message"
	"github.com/AsterZephyr/rotascope/transport"
)

var (
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rotascope_connections_total",
		Help: "The total number of client connections by transport",
	}, []string{"transport"})
	sessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rotascope_connections",
		Help: "The number of open client connections by transport",
	}, []string{"transport"})
	protocolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rotascope_protocol_errors_total",
		Help: "The total number of connections ended by a framing violation",
	}, []string{"transport"})
	malformedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rotascope_malformed_messages_total",
		Help: "The total number of control messages that could not be decoded",
	})
	heartbeatTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rotascope_heartbeat_timeouts_total",
		Help: "The total number of sessions ended because the client went silent",
	})
)

// Options configures the sessions of a Server.
type Options struct {
	Format            message.Format
	MaxFrameSize      uint32
	SessionBuffer     int
	HeartbeatInterval time.Duration
	// HeartbeatTimeout ends a session that sent no heartbeat for this long.
	// Zero disables the watchdog.
	HeartbeatTimeout  time.Duration
	WriteTimeout      time.Duration
	RotationThreshold float32
	// TrustProxy takes the client address from X-Real-IP on websocket
	// upgrades.
	TrustProxy bool
	// CheckOrigin allows cross origin websocket upgrades. Same host upgrades
	// are always allowed.
	CheckOrigin func(origin string) bool
}

// Server accepts connections and runs a Session for each of them.
type Server struct {
	hub      *hub.Hub
	state    *display.State
	opts     Options
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server whose sessions register with h and act on state.
func NewServer(h *hub.Hub, state *display.State, opts Options) *Server {
	if opts.Format == nil {
		opts.Format = message.JSON
	}
	if opts.SessionBuffer < 1 {
		opts.SessionBuffer = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		hub:    h,
		state:  state,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if u.Host == r.Host {
				return true
			}
			return opts.CheckOrigin != nil && opts.CheckOrigin(origin)
		},
	}
	return s
}

func (s *Server) transportOptions() transport.Options {
	return transport.Options{MaxFrameSize: s.opts.MaxFrameSize, WriteTimeout: s.opts.WriteTimeout}
}

// Upgrade turns an HTTP request into a websocket session.
func (s *Server) Upgrade(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade")
		return
	}

	ip := remoteIP(conn.RemoteAddr())
	if realIP := req.Header.Get("X-Real-IP"); s.opts.TrustProxy && realIP != "" {
		ip = realIP
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Serve(s.ctx, transport.NewWebSocket(conn, s.transportOptions()), ip)
	}()
}

// ServeTCP accepts length-framed connections on ln until ln is closed or the
// server shuts down.
func (s *Server) ServeTCP(ln net.Listener) error {
	stop := context.AfterFunc(s.ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	log.Info().Str("address", ln.Addr().String()).Msg("Accepting framed connections")

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, time.Second)
			}
			log.Warn().Err(err).Str("retry", delay.String()).Msg("Accept failed")
			select {
			case <-time.After(delay):
				continue
			case <-s.ctx.Done():
				return nil
			}
		}
		delay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Serve(s.ctx, transport.NewTCP(conn, s.transportOptions()), remoteIP(conn.RemoteAddr()))
		}()
	}
}

// Serve runs a session on conn and blocks until it ends.
func (s *Server) Serve(ctx context.Context, conn transport.Conn, ip string) {
	newSession(s, conn, ip).run(ctx)
}

// Shutdown ends every session and waits for them, or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sessions still running: %w", ctx.Err())
	}
}

func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}
