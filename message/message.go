// Package message defines the two closed message sets exchanged with viewers:
// control messages sent by clients and status messages sent by the server.
package message

import (
	"fmt"
	"sort"
)

// ControlMessage is a message received from a client.
type ControlMessage interface {
	Type() string
	// Apply performs the message against the receiving session.
	Apply(target Target)
}

// Target is what a control message acts on.
type Target interface {
	// SwitchDisplay moves the display selection one step.
	SwitchDisplay(direction Direction)
	// Alive marks the session as live for the heartbeat watchdog.
	Alive()
	// RotationThreshold is the rotation_y magnitude in degrees that triggers
	// a display switch.
	RotationThreshold() float32
}

// StatusMessage is a message sent to clients.
type StatusMessage interface {
	Type() string
}

// validator is implemented by messages that need checks beyond decoding.
type validator interface {
	validate() error
}

var (
	controls = map[string]func() ControlMessage{}
	statuses = map[string]func() StatusMessage{}
)

func registerControl(t string, create func() ControlMessage) {
	controls[t] = create
}

func registerStatus(t string, create func() StatusMessage) {
	statuses[t] = create
}

func newControl(t string) (ControlMessage, error) {
	create, ok := controls[t]
	if !ok {
		return nil, fmt.Errorf("cannot handle control message %q", t)
	}
	return create(), nil
}

func newStatus(t string) (StatusMessage, error) {
	create, ok := statuses[t]
	if !ok {
		return nil, fmt.Errorf("cannot handle status message %q", t)
	}
	return create(), nil
}

// ControlTypes lists the registered control message types.
func ControlTypes() []string {
	return keys(controls)
}

// StatusTypes lists the registered status message types.
func StatusTypes() []string {
	return keys(statuses)
}

func keys[T any](m map[string]T) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func validate(v any) error {
	if val, ok := v.(validator); ok {
		return val.validate()
	}
	return nil
}
