package capture

import (
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsterZephyr/rotascope/message"
)

func TestPattern(t *testing.T) {
	p, err := NewPattern([]message.Resolution{{64, 48}, {96, 32}})
	require.NoError(t, err)

	img, err := p.Capture(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, img.RGBAAt(63, 47))
	assert.Equal(t, palette[0], img.RGBAAt(40, 20))

	img, err = p.Capture(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 96, img.Bounds().Dx())
	assert.Equal(t, palette[1], img.RGBAAt(60, 20))
	assert.Equal(t, color.RGBA{A: 0xff}, img.RGBAAt(10, 20))
}

func TestPattern_framesDiffer(t *testing.T) {
	p, err := NewPattern([]message.Resolution{{128, 16}})
	require.NoError(t, err)

	first, err := p.Capture(context.Background(), 0)
	require.NoError(t, err)
	firstPix := append([]byte(nil), first.Pix...)

	second, err := p.Capture(context.Background(), 0)
	require.NoError(t, err)
	assert.NotEqual(t, firstPix, second.Pix)
}

func TestPattern_errors(t *testing.T) {
	_, err := NewPattern(nil)
	assert.Error(t, err)
	_, err = NewPattern([]message.Resolution{{0, 10}})
	assert.Error(t, err)

	p, err := NewPattern([]message.Resolution{{8, 8}})
	require.NoError(t, err)
	_, err = p.Capture(context.Background(), 3)
	assert.ErrorIs(t, err, ErrCapture)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Capture(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	c, err := New("", []message.Resolution{{8, 8}})
	require.NoError(t, err)
	assert.Equal(t, BackendPattern, c.Name())

	c, err = New(BackendScreen, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendScreen, c.Name())

	_, err = New("webcam", nil)
	assert.Error(t, err)
}
