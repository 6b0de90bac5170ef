// Package capture grabs the pixels of a display.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/kbinani/screenshot"

	"github.com/AsterZephyr/rotascope/message"
)

const (
	// BackendPattern renders a synthetic test pattern per display.
	BackendPattern = "pattern"
	// BackendScreen captures the physical monitors.
	BackendScreen = "screen"
)

// ErrCapture wraps every capture failure.
var ErrCapture = errors.New("capture failed")

// Capturer grabs one frame of a display. Capture is called from a single
// goroutine; the returned image is only valid until the next call.
type Capturer interface {
	Name() string
	Capture(ctx context.Context, display uint8) (*image.RGBA, error)
}

// New returns the capturer for backend. resolutions size the pattern of each
// display.
func New(backend string, resolutions []message.Resolution) (Capturer, error) {
	switch backend {
	case BackendPattern, "":
		return NewPattern(resolutions)
	case BackendScreen:
		return &Screen{}, nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", backend)
	}
}

// Screen captures the active physical monitors. Display indexes beyond the
// number of monitors wrap around.
type Screen struct{}

func (*Screen) Name() string { return BackendScreen }

func (*Screen) Capture(ctx context.Context, display uint8) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, fmt.Errorf("%w: no active display", ErrCapture)
	}
	img, err := screenshot.CaptureDisplay(int(display) % n)
	if err != nil {
		return nil, fmt.Errorf("%w: display %d: %v", ErrCapture, display, err)
	}
	return img, nil
}

var palette = []color.RGBA{
	{R: 0x1f, G: 0x4e, B: 0x79, A: 0xff},
	{R: 0x7a, G: 0x1f, B: 0x3d, A: 0xff},
	{R: 0x2e, G: 0x6b, B: 0x30, A: 0xff},
	{R: 0x8a, G: 0x5a, B: 0x00, A: 0xff},
	{R: 0x4b, G: 0x2c, B: 0x7a, A: 0xff},
}

const (
	borderWidth = 10
	barWidth    = 32
)

// Pattern renders a coloured background with a border for every display, and
// a bar that moves on each capture so consecutive frames differ.
type Pattern struct {
	bases  []*image.RGBA
	frames []*image.RGBA
	ticks  []int
}

// NewPattern prepares a pattern per resolution.
func NewPattern(resolutions []message.Resolution) (*Pattern, error) {
	if len(resolutions) == 0 {
		return nil, errors.New("pattern capture: no displays")
	}
	p := &Pattern{
		bases:  make([]*image.RGBA, len(resolutions)),
		frames: make([]*image.RGBA, len(resolutions)),
		ticks:  make([]int, len(resolutions)),
	}
	for i, r := range resolutions {
		if r.Width() == 0 || r.Height() == 0 {
			return nil, fmt.Errorf("pattern capture: display %d has empty resolution", i)
		}
		bounds := image.Rect(0, 0, int(r.Width()), int(r.Height()))
		base := image.NewRGBA(bounds)
		draw.Draw(base, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
		inner := bounds.Inset(min(borderWidth, bounds.Dx()/2, bounds.Dy()/2))
		draw.Draw(base, inner, &image.Uniform{C: palette[i%len(palette)]}, image.Point{}, draw.Src)
		p.bases[i] = base
		p.frames[i] = image.NewRGBA(bounds)
	}
	return p, nil
}

func (*Pattern) Name() string { return BackendPattern }

func (p *Pattern) Capture(ctx context.Context, display uint8) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if int(display) >= len(p.bases) {
		return nil, fmt.Errorf("%w: display %d out of range", ErrCapture, display)
	}
	base, frame := p.bases[display], p.frames[display]
	copy(frame.Pix, base.Pix)

	bounds := frame.Bounds()
	x := (p.ticks[display] * barWidth / 2) % bounds.Dx()
	p.ticks[display]++
	bar := image.Rect(x, 0, x+barWidth, bounds.Dy()).Intersect(bounds)
	draw.Draw(frame, bar, &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	return frame, nil
}
