// Package stream runs the loop that captures the selected display, encodes it
// and broadcasts the result to every session.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/AsterZephyr/rotascope/capture"
	"github.com/AsterZephyr/rotascope/encode"
	"github.com/AsterZephyr/rotascope/message"
)

var (
	framesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rotascope_frames_total",
		Help: "The total number of frames broadcast",
	})
	frameBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rotascope_frame_bytes",
		Help:    "The size of encoded frame payloads",
		Buckets: prometheus.ExponentialBuckets(16<<10, 2, 10),
	})
	captureSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rotascope_capture_duration_seconds",
		Help:    "The time spent capturing and encoding a frame",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})
	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rotascope_frame_failures_total",
		Help: "The total number of skipped frames by stage",
	}, []string{"stage"})
)

// DefaultStatsInterval is how often streaming statistics are logged.
const DefaultStatsInterval = 5 * time.Second

// retryDelay paces an uncapped loop after a skipped frame.
const retryDelay = 20 * time.Millisecond

// Selection reports the display to stream.
type Selection interface {
	Current() uint8
}

// Broadcaster delivers frames to sessions.
type Broadcaster interface {
	Broadcast(msg message.StatusMessage) int
}

// Options configures a Streamer.
type Options struct {
	// FrameRate caps the frames per second. Zero streams as fast as capture
	// and encoding allow.
	FrameRate     int
	StatsInterval time.Duration
}

// Streamer is the capture, encode and broadcast loop.
type Streamer struct {
	selection   Selection
	capturer    capture.Capturer
	encoder     encode.Encoder
	broadcaster Broadcaster
	opts        Options
	now         func() time.Time

	stats stats
}

type stats struct {
	since    time.Time
	frames   int
	bytes    int
	capture  time.Duration
	failures int
}

// New creates a streamer.
func New(selection Selection, capturer capture.Capturer, encoder encode.Encoder, broadcaster Broadcaster, opts Options) *Streamer {
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = DefaultStatsInterval
	}
	return &Streamer{
		selection:   selection,
		capturer:    capturer,
		encoder:     encoder,
		broadcaster: broadcaster,
		opts:        opts,
		now:         time.Now,
	}
}

// Run streams until ctx is done.
func (s *Streamer) Run(ctx context.Context) error {
	log.Info().
		Str("capture", s.capturer.Name()).
		Str("encoder", s.encoder.Name()).
		Int("fps", s.opts.FrameRate).
		Msg("Streaming started")
	defer log.Info().Msg("Streaming stopped")

	s.stats = stats{since: s.now()}

	var tick <-chan time.Time
	if s.opts.FrameRate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(s.opts.FrameRate))
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		if _, err := s.Step(ctx); err != nil && ctx.Err() == nil {
			s.failed(err)
			if tick == nil {
				select {
				case <-ctx.Done():
				case <-time.After(retryDelay):
				}
			}
		}
		s.maybeLogStats()
	}
}

// Step streams a single frame of the current display and returns the number
// of sessions it was delivered to.
func (s *Streamer) Step(ctx context.Context) (int, error) {
	index := s.selection.Current()

	start := s.now()
	img, err := s.capturer.Capture(ctx, index)
	if err != nil {
		failuresTotal.WithLabelValues("capture").Inc()
		return 0, err
	}
	payload, err := s.encoder.Encode(img)
	if err != nil {
		failuresTotal.WithLabelValues("encode").Inc()
		return 0, err
	}
	elapsed := s.now().Sub(start)

	bounds := img.Bounds()
	frame := &message.VideoFrame{
		DisplayIndex: index,
		Width:        uint32(bounds.Dx()),
		Height:       uint32(bounds.Dy()),
		Payload:      payload,
		Timestamp:    uint64(s.now().UnixMilli()),
	}
	delivered := s.broadcaster.Broadcast(frame)

	framesTotal.Inc()
	frameBytes.Observe(float64(len(payload)))
	captureSeconds.Observe(elapsed.Seconds())
	s.stats.frames++
	s.stats.bytes += len(payload)
	s.stats.capture += elapsed
	return delivered, nil
}

func (s *Streamer) failed(err error) {
	s.stats.failures++
	if s.stats.failures > 1 {
		return
	}
	stage := "stream"
	switch {
	case errors.Is(err, capture.ErrCapture):
		stage = "capture"
	case errors.Is(err, encode.ErrEncode):
		stage = "encode"
	}
	log.Warn().Err(err).Str("stage", stage).Msg("Skipping frame")
}

func (s *Streamer) maybeLogStats() {
	now := s.now()
	if now.Sub(s.stats.since) < s.opts.StatsInterval {
		return
	}
	event := log.Info().Int("frames", s.stats.frames).Int("skipped", s.stats.failures)
	if s.stats.frames > 0 {
		event = event.
			Int("avg_bytes", s.stats.bytes/s.stats.frames).
			Str("avg_capture", (s.stats.capture / time.Duration(s.stats.frames)).String())
	}
	event.Str("window", now.Sub(s.stats.since).Round(time.Millisecond).String()).Msg("Streaming stats")
	s.stats = stats{since: now}
}
