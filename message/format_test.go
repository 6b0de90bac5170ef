package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	switches []Direction
	alive    int
}

func (f *fakeTarget) SwitchDisplay(direction Direction) { f.switches = append(f.switches, direction) }
func (f *fakeTarget) Alive()                            { f.alive++ }
func (f *fakeTarget) RotationThreshold() float32        { return 30 }

func TestJSON_UnmarshalControl(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ControlMessage
	}{
		{
			name: "sensor data",
			in:   `{"type":"sensor_data","payload":{"rotation_x":1.5,"rotation_y":31,"rotation_z":-2}}`,
			want: &SensorData{RotationX: 1.5, RotationY: 31, RotationZ: -2},
		},
		{
			name: "switch display",
			in:   `{"type":"switch_display","payload":{"direction":"Previous"}}`,
			want: &SwitchDisplay{Direction: Previous},
		},
		{
			name: "heartbeat without payload",
			in:   `{"type":"heartbeat"}`,
			want: &Heartbeat{},
		},
		{
			name: "legacy tagged variant",
			in:   `{"SwitchDisplay":{"direction":"Next"}}`,
			want: &SwitchDisplay{Direction: Next},
		},
		{
			name: "legacy unit variant",
			in:   `"Heartbeat"`,
			want: &Heartbeat{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := JSON.UnmarshalControl([]byte(test.in))
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestJSON_UnmarshalControl_malformed(t *testing.T) {
	inputs := []string{
		``,
		`not json`,
		`{"type":"unknown","payload":{}}`,
		`{"type":"switch_display","payload":{"direction":"Sideways"}}`,
		`{"type":"sensor_data","payload":{"rotation_y":"high"}}`,
		`{"a":1,"b":2}`,
		`"Teleport"`,
	}
	for _, in := range inputs {
		_, err := JSON.UnmarshalControl([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestJSON_MarshalStatus(t *testing.T) {
	data, err := JSON.MarshalStatus(&DisplayConfig{
		TotalDisplays:  2,
		CurrentDisplay: 1,
		Resolutions:    []Resolution{{1920, 1080}, {1280, 720}},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"display_config","payload":{"total_displays":2,"current_display":1,"resolutions":[[1920,1080],[1280,720]]}}`,
		string(data))
	assert.True(t, JSON.Detect(data))

	data, err = JSON.MarshalStatus(&Error{Message: "bad"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","payload":{"message":"bad"}}`, string(data))
}

func TestFormats_roundTrip(t *testing.T) {
	statuses := []StatusMessage{
		&DisplayConfig{TotalDisplays: 3, CurrentDisplay: 2, Resolutions: []Resolution{{1, 2}, {3, 4}, {5, 6}}},
		&ServerHeartbeat{},
		&Error{Message: "invalid message format"},
		&VideoFrame{DisplayIndex: 1, Width: 4, Height: 2, Payload: []byte{0xff, 0xd8, 0}, Timestamp: 1700000000000},
	}
	controls := []ControlMessage{
		&SensorData{RotationX: 0.5, RotationY: -31, RotationZ: 3},
		&SwitchDisplay{Direction: Next},
		&Heartbeat{},
	}

	for _, format := range []Format{JSON, CBOR} {
		t.Run(format.Name(), func(t *testing.T) {
			for _, msg := range statuses {
				data, err := format.MarshalStatus(msg)
				require.NoError(t, err)
				assert.True(t, format.Detect(data))
				got, err := format.UnmarshalStatus(data)
				require.NoError(t, err)
				assert.Equal(t, msg, got)
			}
			for _, msg := range controls {
				data, err := format.MarshalControl(msg)
				require.NoError(t, err)
				got, err := format.UnmarshalControl(data)
				require.NoError(t, err)
				assert.Equal(t, msg, got)
			}
		})
	}
}

func TestCBOR_malformed(t *testing.T) {
	_, err := CBOR.UnmarshalControl([]byte{0xff, 0x00})
	assert.Error(t, err)
	_, err = CBOR.UnmarshalControl(nil)
	assert.Error(t, err)

	data, err := CBOR.MarshalControl(&SwitchDisplay{Direction: "Up"})
	require.NoError(t, err)
	_, err = CBOR.UnmarshalControl(data)
	assert.Error(t, err)
}

func TestDetect_rawPayloads(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0}
	zstd := []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4 := []byte{0x04, 0x22, 0x4d, 0x18}
	for _, format := range []Format{JSON, CBOR} {
		assert.False(t, format.Detect(jpeg))
		assert.False(t, format.Detect(zstd))
		assert.False(t, format.Detect(lz4))
		assert.False(t, format.Detect(nil))
	}
}

func TestFormatByName(t *testing.T) {
	f, err := FormatByName("")
	require.NoError(t, err)
	assert.Equal(t, JSON, f)
	f, err = FormatByName("cbor")
	require.NoError(t, err)
	assert.Equal(t, CBOR, f)
	_, err = FormatByName("xml")
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	target := &fakeTarget{}

	(&SensorData{RotationY: 31}).Apply(target)
	(&SensorData{RotationY: -31}).Apply(target)
	(&SensorData{RotationY: 10}).Apply(target)
	(&SensorData{RotationY: 30}).Apply(target)
	(&SwitchDisplay{Direction: Previous}).Apply(target)
	(&Heartbeat{}).Apply(target)

	assert.Equal(t, []Direction{Next, Previous, Previous}, target.switches)
	assert.Equal(t, 1, target.alive)
}

func TestTypes(t *testing.T) {
	assert.Equal(t, []string{TypeHeartbeat, TypeSensorData, TypeSwitchDisplay}, ControlTypes())
	assert.Equal(t, []string{TypeDisplayConfig, TypeError, TypeHeartbeat, TypeVideoFrame}, StatusTypes())
}
