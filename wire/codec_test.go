package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_layout(t *testing.T) {
	frame := Encode([]byte("abc"))
	assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c'}, frame)
	assert.Equal(t, []byte{0, 0, 0, 0}, Encode(nil))
}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte(`{"type":"heartbeat","payload":{}}`),
		bytes.Repeat([]byte{0xff, 0xd8}, 70000),
	}

	var stream bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, WriteFrame(&stream, p, 1<<20))
	}

	r := NewReader(&stream, 1<<20)
	for _, want := range payloads {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, len(want), len(got))
		assert.True(t, bytes.Equal(want, got))
	}
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRoundTrip_atBound(t *testing.T) {
	payload := bytes.Repeat([]byte{7}, 64)
	r := NewReader(bytes.NewReader(Encode(payload)), 64)
	got, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrame_tooLarge(t *testing.T) {
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], 65)
	// only the header is present, so any attempt to read the payload would fail
	// with an EOF instead of the size error
	r := NewReader(bytes.NewReader(header[:]), 64)

	_, err := r.ReadFrame()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.True(t, IsProtocolError(err))

	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, uint32(65), perr.Length)
	assert.Equal(t, uint32(64), perr.Max)

	// the stream is desynchronized, the reader keeps rejecting
	_, again := r.ReadFrame()
	assert.Equal(t, err, again)
}

func TestReadFrame_hugeDeclaredLength(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}), 0)
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Equal(t, DefaultMaxFrameSize, r.max)
}

func TestReadFrame_truncated(t *testing.T) {
	frame := Encode([]byte("hello"))

	_, err := NewReader(bytes.NewReader(frame[:2]), 0).ReadFrame()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = NewReader(bytes.NewReader(frame[:6]), 0).ReadFrame()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.False(t, IsProtocolError(err))
}

func TestWriteFrame_tooLarge(t *testing.T) {
	var out bytes.Buffer
	err := WriteFrame(&out, make([]byte, 10), 9)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, out.Len())
}
