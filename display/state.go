// Package display holds the shared display selection and the providers that
// set up the displays being streamed.
package display

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/AsterZephyr/rotascope/message"
)

var switchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rotascope_display_switches_total",
	Help: "The total number of display transitions",
}, []string{"direction"})

// Publisher receives the display configuration after every transition.
type Publisher interface {
	Broadcast(msg message.StatusMessage) int
}

// State is the currently selected display. It is shared by every session and
// the streaming loop, reads copy out and writes go through transitions.
type State struct {
	// publish orders the configuration broadcasts of concurrent transitions.
	publish sync.Mutex

	mu          sync.RWMutex
	current     uint8
	total       uint8
	resolutions []message.Resolution

	publisher Publisher
}

// NewState creates the state for total displays starting at display 0. A
// single resolution applies to every display, otherwise there must be one per
// display. publisher may be nil.
func NewState(total uint8, resolutions []message.Resolution, publisher Publisher) (*State, error) {
	if total == 0 {
		return nil, errors.New("at least one display is required")
	}
	switch len(resolutions) {
	case 0:
		return nil, errors.New("at least one resolution is required")
	case 1:
		all := make([]message.Resolution, total)
		for i := range all {
			all[i] = resolutions[0]
		}
		resolutions = all
	case int(total):
		resolutions = append([]message.Resolution(nil), resolutions...)
	default:
		return nil, fmt.Errorf("got %d resolutions for %d displays", len(resolutions), total)
	}
	return &State{total: total, resolutions: resolutions, publisher: publisher}, nil
}

// Current returns the selected display index.
func (s *State) Current() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Total returns the number of displays.
func (s *State) Total() uint8 {
	return s.total
}

// Config returns a snapshot of the state as a DisplayConfig message.
func (s *State) Config() *message.DisplayConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config()
}

// ConfigMessage is Config as a status message.
func (s *State) ConfigMessage() message.StatusMessage {
	return s.Config()
}

func (s *State) config() *message.DisplayConfig {
	return &message.DisplayConfig{
		TotalDisplays:  s.total,
		CurrentDisplay: s.current,
		Resolutions:    append([]message.Resolution(nil), s.resolutions...),
	}
}

// Next selects the following display, wrapping to 0 after the last one.
func (s *State) Next() uint8 {
	return s.Switch(message.Next)
}

// Previous selects the preceding display, wrapping to the last one from 0.
func (s *State) Previous() uint8 {
	return s.Switch(message.Previous)
}

// Switch performs a transition, publishes the new configuration and returns
// the new index. Unknown directions leave the selection unchanged.
func (s *State) Switch(direction message.Direction) uint8 {
	s.publish.Lock()
	defer s.publish.Unlock()

	s.mu.Lock()
	switch direction {
	case message.Next:
		s.current = uint8((int(s.current) + 1) % int(s.total))
	case message.Previous:
		if s.current == 0 {
			s.current = s.total - 1
		} else {
			s.current--
		}
	default:
		s.mu.Unlock()
		log.Warn().Str("direction", string(direction)).Msg("Ignoring unknown display direction")
		return s.Current()
	}
	config := s.config()
	s.mu.Unlock()

	switchesTotal.WithLabelValues(string(direction)).Inc()
	log.Info().Uint8("display", config.CurrentDisplay).Str("direction", string(direction)).Msg("Switched display")

	if s.publisher != nil {
		s.publisher.Broadcast(config)
	}
	return config.CurrentDisplay
}
