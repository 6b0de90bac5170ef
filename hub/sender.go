package hub

import (
	"sync"

	"github.com/AsterZephyr/rotascope/message"
)

// Sender is the outbound end of a session's bounded message channel. The
// channel is never closed, Close signals through Done instead so a send racing
// with teardown can't panic.
type Sender struct {
	ch   chan message.StatusMessage
	done chan struct{}
	once sync.Once
}

// NewSender creates a sender with room for capacity messages.
func NewSender(capacity int) *Sender {
	if capacity < 1 {
		capacity = 1
	}
	return &Sender{
		ch:   make(chan message.StatusMessage, capacity),
		done: make(chan struct{}),
	}
}

// C is drained by the session writer.
func (s *Sender) C() <-chan message.StatusMessage {
	return s.ch
}

// Done is closed once the sender is closed.
func (s *Sender) Done() <-chan struct{} {
	return s.done
}

// Len returns the number of queued messages.
func (s *Sender) Len() int {
	return len(s.ch)
}

// Cap returns the capacity of the channel.
func (s *Sender) Cap() int {
	return cap(s.ch)
}

// TrySend queues msg without blocking. It fails if the sender is closed or
// the channel is full.
func (s *Sender) TrySend(msg message.StatusMessage) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

// Close marks the sender as closed. It is safe to call more than once.
func (s *Sender) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Closed reports whether Close was called.
func (s *Sender) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
