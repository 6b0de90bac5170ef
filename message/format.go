package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Format serializes messages into frame payloads. Every message is wrapped in
// a typed envelope {"type": ..., "payload": ...}.
type Format interface {
	Name() string
	// Binary reports whether serialized payloads are binary rather than text.
	Binary() bool
	MarshalStatus(msg StatusMessage) ([]byte, error)
	UnmarshalStatus(data []byte) (StatusMessage, error)
	MarshalControl(msg ControlMessage) ([]byte, error)
	UnmarshalControl(data []byte) (ControlMessage, error)
	// Detect reports whether a frame payload is a message envelope of this
	// format rather than a raw video frame payload.
	Detect(payload []byte) bool
}

var (
	// JSON is the default, text based format.
	JSON Format = jsonFormat{}
	// CBOR is a compact binary format.
	CBOR Format = cborFormat{}
)

// FormatByName returns the format called name.
func FormatByName(name string) (Format, error) {
	switch name {
	case "", JSON.Name():
		return JSON, nil
	case CBOR.Name():
		return CBOR, nil
	default:
		return nil, fmt.Errorf("unknown message format %q", name)
	}
}

var errEmpty = errors.New("empty message")

// Typed is the JSON envelope.
type Typed struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// legacyNames maps the externally tagged variant names accepted from older
// clients, e.g. {"SwitchDisplay":{"direction":"Next"}} or "Heartbeat".
var legacyNames = map[string]string{
	"SensorData":    TypeSensorData,
	"SwitchDisplay": TypeSwitchDisplay,
	"Heartbeat":     TypeHeartbeat,
	"VideoFrame":    TypeVideoFrame,
	"DisplayConfig": TypeDisplayConfig,
	"Error":         TypeError,
}

type jsonFormat struct{}

func (jsonFormat) Name() string { return "json" }
func (jsonFormat) Binary() bool { return false }

func (jsonFormat) Detect(payload []byte) bool {
	return len(payload) > 0 && payload[0] == '{'
}

func (jsonFormat) MarshalStatus(msg StatusMessage) ([]byte, error) {
	return marshalJSON(msg.Type(), msg)
}

func (jsonFormat) MarshalControl(msg ControlMessage) ([]byte, error) {
	return marshalJSON(msg.Type(), msg)
}

func (jsonFormat) UnmarshalStatus(data []byte) (StatusMessage, error) {
	typed, err := readTypedJSON(data)
	if err != nil {
		return nil, err
	}
	msg, err := newStatus(typed.Type)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONPayload(typed.Payload, msg); err != nil {
		return nil, err
	}
	return msg, validate(msg)
}

func (jsonFormat) UnmarshalControl(data []byte) (ControlMessage, error) {
	typed, err := readTypedJSON(data)
	if err != nil {
		return nil, err
	}
	msg, err := newControl(typed.Type)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONPayload(typed.Payload, msg); err != nil {
		return nil, err
	}
	return msg, validate(msg)
}

func marshalJSON(t string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Typed{Type: t, Payload: payload})
}

func readTypedJSON(data []byte) (Typed, error) {
	if len(data) == 0 {
		return Typed{}, errEmpty
	}
	typed := Typed{}
	if err := json.Unmarshal(data, &typed); err == nil && typed.Type != "" {
		return typed, nil
	}
	return readLegacyJSON(data)
}

func readLegacyJSON(data []byte) (Typed, error) {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		t, ok := legacyNames[unit]
		if !ok {
			return Typed{}, fmt.Errorf("unknown variant %q", unit)
		}
		return Typed{Type: t}, nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return Typed{}, fmt.Errorf("malformed message: %w", err)
	}
	if len(tagged) != 1 {
		return Typed{}, fmt.Errorf("malformed message: missing type")
	}
	for name, payload := range tagged {
		t, ok := legacyNames[name]
		if !ok {
			return Typed{}, fmt.Errorf("unknown variant %q", name)
		}
		return Typed{Type: t, Payload: payload}, nil
	}
	return Typed{}, errEmpty
}

func unmarshalJSONPayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("incoming payload: %w", err)
	}
	return nil
}

// typedCBOR is the CBOR envelope. Message fields reuse their json tags.
type typedCBOR struct {
	Type    string          `cbor:"type"`
	Payload cbor.RawMessage `cbor:"payload"`
}

// cborHead is the initial byte of a two entry CBOR map, which every
// envelope encodes to.
const cborHead = 0xa2

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("message: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("message: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborFormat struct{}

func (cborFormat) Name() string { return "cbor" }
func (cborFormat) Binary() bool { return true }

func (cborFormat) Detect(payload []byte) bool {
	return len(payload) > 0 && payload[0] == cborHead
}

func (cborFormat) MarshalStatus(msg StatusMessage) ([]byte, error) {
	return marshalCBOR(msg.Type(), msg)
}

func (cborFormat) MarshalControl(msg ControlMessage) ([]byte, error) {
	return marshalCBOR(msg.Type(), msg)
}

func (cborFormat) UnmarshalStatus(data []byte) (StatusMessage, error) {
	typed, err := readTypedCBOR(data)
	if err != nil {
		return nil, err
	}
	msg, err := newStatus(typed.Type)
	if err != nil {
		return nil, err
	}
	if err := unmarshalCBORPayload(typed.Payload, msg); err != nil {
		return nil, err
	}
	return msg, validate(msg)
}

func (cborFormat) UnmarshalControl(data []byte) (ControlMessage, error) {
	typed, err := readTypedCBOR(data)
	if err != nil {
		return nil, err
	}
	msg, err := newControl(typed.Type)
	if err != nil {
		return nil, err
	}
	if err := unmarshalCBORPayload(typed.Payload, msg); err != nil {
		return nil, err
	}
	return msg, validate(msg)
}

func marshalCBOR(t string, v any) ([]byte, error) {
	payload, err := cborEnc.Marshal(v)
	if err != nil {
		return nil, err
	}
	return cborEnc.Marshal(typedCBOR{Type: t, Payload: payload})
}

func readTypedCBOR(data []byte) (typedCBOR, error) {
	if len(data) == 0 {
		return typedCBOR{}, errEmpty
	}
	typed := typedCBOR{}
	if err := cborDec.Unmarshal(data, &typed); err != nil {
		return typedCBOR{}, fmt.Errorf("malformed message: %w", err)
	}
	if typed.Type == "" {
		return typedCBOR{}, fmt.Errorf("malformed message: missing type")
	}
	return typed, nil
}

func unmarshalCBORPayload(payload cbor.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := cborDec.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("incoming payload: %w", err)
	}
	return nil
}
