package message

func init() {
	registerStatus(TypeVideoFrame, func() StatusMessage {
		return &VideoFrame{}
	})
	registerStatus(TypeDisplayConfig, func() StatusMessage {
		return &DisplayConfig{}
	})
	registerStatus(TypeHeartbeat, func() StatusMessage {
		return &ServerHeartbeat{}
	})
	registerStatus(TypeError, func() StatusMessage {
		return &Error{}
	})
}

const (
	TypeVideoFrame    = "video_frame"
	TypeDisplayConfig = "display_config"
	TypeError         = "error"
)

// Resolution is a display size as [width, height].
type Resolution [2]uint32

func (r Resolution) Width() uint32  { return r[0] }
func (r Resolution) Height() uint32 { return r[1] }

// VideoFrame is one encoded capture of a display. On the wire only Payload is
// sent, as its own frame.
type VideoFrame struct {
	DisplayIndex uint8  `json:"display_index"`
	Width        uint32 `json:"width"`
	Height       uint32 `json:"height"`
	Payload      []byte `json:"data"`
	// Timestamp is milliseconds since the unix epoch.
	Timestamp uint64 `json:"timestamp"`
}

func (*VideoFrame) Type() string { return TypeVideoFrame }

// DisplayConfig describes the displays and the current selection.
type DisplayConfig struct {
	TotalDisplays  uint8        `json:"total_displays"`
	CurrentDisplay uint8        `json:"current_display"`
	Resolutions    []Resolution `json:"resolutions"`
}

func (*DisplayConfig) Type() string { return TypeDisplayConfig }

// ServerHeartbeat is the heartbeat sent by the server.
type ServerHeartbeat struct{}

func (*ServerHeartbeat) Type() string { return TypeHeartbeat }

// Error reports a problem with a message the client sent.
type Error struct {
	Message string `json:"message"`
}

func (*Error) Type() string { return TypeError }
