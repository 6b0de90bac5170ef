package display

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kbinani/screenshot"
	"github.com/rs/zerolog/log"

	"github.com/AsterZephyr/rotascope/message"
)

const (
	// BackendEmulated provides software emulated virtual displays.
	BackendEmulated = "emulated"
	// BackendScreen provides the physical monitors of this machine.
	BackendScreen = "screen"
)

// Provider sets up the displays being streamed. Initialize is called once at
// startup, before the streaming loop starts.
type Provider interface {
	Name() string
	Initialize(ctx context.Context) error
	Count() uint8
	Resolutions() []message.Resolution
}

// ProviderOptions configures NewProvider.
type ProviderOptions struct {
	Backend     string
	Count       uint8
	Resolutions []message.Resolution
	LayoutFile  string
}

// NewProvider returns the provider for opts.Backend.
func NewProvider(opts ProviderOptions) (Provider, error) {
	switch opts.Backend {
	case BackendEmulated, "":
		if opts.LayoutFile != "" {
			layout, err := LoadLayout(opts.LayoutFile)
			if err != nil {
				return nil, err
			}
			return NewEmulated(uint8(len(layout.Displays)), layout.Resolutions())
		}
		return NewEmulated(opts.Count, opts.Resolutions)
	case BackendScreen:
		return &Screens{}, nil
	default:
		return nil, fmt.Errorf("unknown display backend %q", opts.Backend)
	}
}

// Emulated is a fixed set of software emulated displays.
type Emulated struct {
	count       uint8
	resolutions []message.Resolution
}

// NewEmulated creates count emulated displays. A single resolution applies to
// all of them.
func NewEmulated(count uint8, resolutions []message.Resolution) (*Emulated, error) {
	if count == 0 {
		return nil, errors.New("emulated displays: count must be at least 1")
	}
	switch len(resolutions) {
	case 1:
		all := make([]message.Resolution, count)
		for i := range all {
			all[i] = resolutions[0]
		}
		resolutions = all
	case int(count):
	default:
		return nil, fmt.Errorf("emulated displays: got %d resolutions for %d displays", len(resolutions), count)
	}
	for i, r := range resolutions {
		if r.Width() == 0 || r.Height() == 0 {
			return nil, fmt.Errorf("emulated displays: display %d has empty resolution %dx%d", i, r.Width(), r.Height())
		}
	}
	return &Emulated{count: count, resolutions: resolutions}, nil
}

func (e *Emulated) Name() string { return BackendEmulated }

func (e *Emulated) Initialize(ctx context.Context) error {
	log.Info().Uint8("count", e.count).Msg("Initializing virtual displays using software emulation")
	return ctx.Err()
}

func (e *Emulated) Count() uint8 {
	return e.count
}

func (e *Emulated) Resolutions() []message.Resolution {
	return append([]message.Resolution(nil), e.resolutions...)
}

// Screens exposes the active physical monitors.
type Screens struct {
	resolutions []message.Resolution
}

func (s *Screens) Name() string { return BackendScreen }

func (s *Screens) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return errors.New("screen displays: no active display found")
	}
	if n > math.MaxUint8 {
		log.Warn().Int("count", n).Msg("Too many active displays, using the first 255")
		n = math.MaxUint8
	}
	s.resolutions = make([]message.Resolution, n)
	for i := range s.resolutions {
		bounds := screenshot.GetDisplayBounds(i)
		s.resolutions[i] = message.Resolution{uint32(bounds.Dx()), uint32(bounds.Dy())}
		log.Debug().Int("display", i).Str("bounds", bounds.String()).Msg("Found display")
	}
	log.Info().Int("count", n).Msg("Initializing physical displays")
	return nil
}

func (s *Screens) Count() uint8 {
	return uint8(len(s.resolutions))
}

func (s *Screens) Resolutions() []message.Resolution {
	return append([]message.Resolution(nil), s.resolutions...)
}
