package message

import (
	"fmt"
)

func init() {
	registerControl(TypeSensorData, func() ControlMessage {
		return &SensorData{}
	})
	registerControl(TypeSwitchDisplay, func() ControlMessage {
		return &SwitchDisplay{}
	})
	registerControl(TypeHeartbeat, func() ControlMessage {
		return &Heartbeat{}
	})
}

const (
	TypeSensorData    = "sensor_data"
	TypeSwitchDisplay = "switch_display"
	TypeHeartbeat     = "heartbeat"
)

// Direction is a display transition.
type Direction string

const (
	Next     Direction = "Next"
	Previous Direction = "Previous"
)

func (d Direction) valid() bool {
	return d == Next || d == Previous
}

// SensorData carries the orientation of the client device in degrees.
// Only RotationY drives display selection, the other axes are accepted and
// ignored.
type SensorData struct {
	RotationX float32 `json:"rotation_x"`
	RotationY float32 `json:"rotation_y"`
	RotationZ float32 `json:"rotation_z"`
}

func (*SensorData) Type() string { return TypeSensorData }

// Direction returns the transition the rotation asks for, if any.
func (e *SensorData) Direction(threshold float32) (Direction, bool) {
	switch {
	case e.RotationY > threshold:
		return Next, true
	case e.RotationY < -threshold:
		return Previous, true
	default:
		return "", false
	}
}

func (e *SensorData) Apply(target Target) {
	if direction, ok := e.Direction(target.RotationThreshold()); ok {
		target.SwitchDisplay(direction)
	}
}

// SwitchDisplay explicitly selects the next or previous display.
type SwitchDisplay struct {
	Direction Direction `json:"direction"`
}

func (*SwitchDisplay) Type() string { return TypeSwitchDisplay }

func (e *SwitchDisplay) validate() error {
	if !e.Direction.valid() {
		return fmt.Errorf("invalid direction %q", e.Direction)
	}
	return nil
}

func (e *SwitchDisplay) Apply(target Target) {
	target.SwitchDisplay(e.Direction)
}

// Heartbeat is the client liveness signal.
type Heartbeat struct{}

func (*Heartbeat) Type() string { return TypeHeartbeat }

func (*Heartbeat) Apply(target Target) {
	target.Alive()
}
