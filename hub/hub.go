// Package hub tracks the outbound channels of all live sessions and fans
// messages out to them.
//
// Delivery is best effort: every broadcast makes exactly one non-blocking
// attempt per session. A session whose channel is full or closed is pruned and
// its sender closed, a slow viewer is dropped rather than slowing the stream
// down for everyone else.
package hub

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/AsterZephyr/rotascope/message"
)

var (
	registeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rotascope_sessions_registered_total",
		Help: "The total number of sessions registered with the hub",
	})
	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rotascope_sessions",
		Help: "The number of sessions currently registered",
	})
	prunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rotascope_sessions_pruned_total",
		Help: "The total number of sessions dropped because a send failed",
	})
	broadcastTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rotascope_broadcast_messages_total",
		Help: "The total number of broadcast messages by type",
	}, []string{"type"})
)

// Hub is the session registry.
type Hub struct {
	mu      sync.RWMutex
	senders map[xid.ID]*Sender
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{senders: map[xid.ID]*Sender{}}
}

type entry struct {
	id     xid.ID
	sender *Sender
}

// Register assigns an id to sender and stores it. If initial is not nil its
// message is queued on sender before the hub lock is released, so it is the
// first message the session sees, ahead of any broadcast.
func (h *Hub) Register(sender *Sender, initial func() message.StatusMessage) xid.ID {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := xid.New()
	for {
		if _, exists := h.senders[id]; !exists {
			break
		}
		id = xid.New()
	}
	h.senders[id] = sender
	if initial != nil {
		sender.TrySend(initial())
	}

	registeredTotal.Inc()
	sessionsGauge.Set(float64(len(h.senders)))
	log.Debug().Str("id", id.String()).Int("sessions", len(h.senders)).Msg("Session registered")
	return id
}

// Unregister removes the session. It returns false if the session was not
// registered, which is not an error.
func (h *Hub) Unregister(id xid.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.senders[id]; !ok {
		return false
	}
	delete(h.senders, id)
	sessionsGauge.Set(float64(len(h.senders)))
	log.Debug().Str("id", id.String()).Int("sessions", len(h.senders)).Msg("Session unregistered")
	return true
}

// contains reports whether id is registered.
func (h *Hub) contains(id xid.ID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.senders[id]
	return ok
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.senders)
}

// Broadcast attempts to queue msg on every registered session and returns the
// number of sessions it was queued for. The registry lock is not held while
// sending.
func (h *Hub) Broadcast(msg message.StatusMessage) int {
	h.mu.RLock()
	snapshot := make([]entry, 0, len(h.senders))
	for id, sender := range h.senders {
		snapshot = append(snapshot, entry{id: id, sender: sender})
	}
	h.mu.RUnlock()

	broadcastTotal.WithLabelValues(msg.Type()).Inc()

	delivered := 0
	var failed []entry
	for _, e := range snapshot {
		if e.sender.TrySend(msg) {
			delivered++
		} else {
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 {
		h.prune(failed)
	}
	return delivered
}

func (h *Hub) prune(failed []entry) {
	h.mu.Lock()
	for _, e := range failed {
		// the session may have unregistered since the snapshot
		if current, ok := h.senders[e.id]; ok && current == e.sender {
			delete(h.senders, e.id)
			prunedTotal.Inc()
			log.Info().Str("id", e.id.String()).Bool("closed", e.sender.Closed()).Msg("Dropping session that cannot keep up")
		}
	}
	sessionsGauge.Set(float64(len(h.senders)))
	h.mu.Unlock()

	for _, e := range failed {
		e.sender.Close()
	}
}
