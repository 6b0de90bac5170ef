package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsterZephyr/rotascope/capture"
	"github.com/AsterZephyr/rotascope/display"
	"github.com/AsterZephyr/rotascope/encode"
	"github.com/AsterZephyr/rotascope/hub"
	"github.com/AsterZephyr/rotascope/message"
)

type fakeCapturer struct {
	mu       sync.Mutex
	failNext int
	calls    []uint8
}

func (*fakeCapturer) Name() string { return "fake" }

func (c *fakeCapturer) Capture(_ context.Context, display uint8) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, display)
	if c.failNext > 0 {
		c.failNext--
		return nil, fmt.Errorf("%w: display %d gone", capture.ErrCapture, display)
	}
	return image.NewRGBA(image.Rect(0, 0, 4+int(display), 2)), nil
}

type fakeEncoder struct {
	fail bool
}

func (*fakeEncoder) Name() string { return "fake" }

func (e *fakeEncoder) Encode(img *image.RGBA) ([]byte, error) {
	if e.fail {
		return nil, fmt.Errorf("%w: broken", encode.ErrEncode)
	}
	return []byte{0xff, byte(img.Bounds().Dx())}, nil
}

type recorder struct {
	mu       sync.Mutex
	messages []message.StatusMessage
}

func (r *recorder) Broadcast(msg message.StatusMessage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return 1
}

func (r *recorder) frames() []*message.VideoFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*message.VideoFrame
	for _, msg := range r.messages {
		if frame, ok := msg.(*message.VideoFrame); ok {
			result = append(result, frame)
		}
	}
	return result
}

type fixedSelection uint8

func (s fixedSelection) Current() uint8 { return uint8(s) }

func TestStep(t *testing.T) {
	rec := &recorder{}
	s := New(fixedSelection(2), &fakeCapturer{}, &fakeEncoder{}, rec, Options{})
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }

	delivered, err := s.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	frames := rec.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, &message.VideoFrame{
		DisplayIndex: 2,
		Width:        6,
		Height:       2,
		Payload:      []byte{0xff, 6},
		Timestamp:    1700000000123,
	}, frames[0])
}

func TestStep_captureErrorSkipsFrame(t *testing.T) {
	rec := &recorder{}
	s := New(fixedSelection(0), &fakeCapturer{failNext: 1}, &fakeEncoder{}, rec, Options{})

	_, err := s.Step(context.Background())
	assert.ErrorIs(t, err, capture.ErrCapture)
	assert.Empty(t, rec.frames())

	_, err = s.Step(context.Background())
	require.NoError(t, err)
	assert.Len(t, rec.frames(), 1)
}

func TestStep_encodeErrorSkipsFrame(t *testing.T) {
	rec := &recorder{}
	s := New(fixedSelection(0), &fakeCapturer{}, &fakeEncoder{fail: true}, rec, Options{})

	_, err := s.Step(context.Background())
	assert.ErrorIs(t, err, encode.ErrEncode)
	assert.Empty(t, rec.frames())
}

func TestRun_followsDisplaySwitch(t *testing.T) {
	rec := &recorder{}
	state, err := display.NewState(3, []message.Resolution{{8, 8}}, rec)
	require.NoError(t, err)
	capturer := &fakeCapturer{failNext: 2}
	s := New(state, capturer, &fakeEncoder{}, rec, Options{FrameRate: 200, StatsInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	require.Eventually(t, func() bool { return len(rec.frames()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	state.Next()
	require.Eventually(t, func() bool {
		frames := rec.frames()
		return frames[len(frames)-1].DisplayIndex == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("streamer did not stop")
	}

	frames := rec.frames()
	for i := 1; i < len(frames); i++ {
		assert.GreaterOrEqual(t, frames[i].Timestamp, frames[i-1].Timestamp)
		assert.GreaterOrEqual(t, frames[i].DisplayIndex, frames[i-1].DisplayIndex)
	}
}

func TestRun_uncapped(t *testing.T) {
	h := hub.New()
	sender := hub.NewSender(1024)
	h.Register(sender, nil)
	s := New(fixedSelection(0), &fakeCapturer{}, &fakeEncoder{}, h, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()
	require.Eventually(t, func() bool { return sender.Len() > 0 || sender.Closed() }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRun_uncappedPausesAfterFailure(t *testing.T) {
	capturer := &fakeCapturer{failNext: 1 << 30}
	s := New(fixedSelection(0), capturer, &fakeEncoder{}, &recorder{}, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	capturer.mu.Lock()
	defer capturer.mu.Unlock()
	assert.NotEmpty(t, capturer.calls)
	assert.LessOrEqual(t, len(capturer.calls), int(100*time.Millisecond/retryDelay)+1)
}

func TestStats_resetAfterInterval(t *testing.T) {
	start := time.Now()
	s := New(fixedSelection(0), &fakeCapturer{}, &fakeEncoder{}, &recorder{}, Options{StatsInterval: time.Minute})
	s.now = func() time.Time { return start }
	s.stats = stats{since: start}

	_, err := s.Step(context.Background())
	require.NoError(t, err)
	s.failed(errors.New("first"))
	s.failed(fmt.Errorf("%w: second", capture.ErrCapture))
	s.maybeLogStats()
	assert.Equal(t, 1, s.stats.frames)
	assert.Equal(t, 2, s.stats.failures)

	s.now = func() time.Time { return start.Add(time.Minute) }
	s.maybeLogStats()
	assert.Equal(t, stats{since: start.Add(time.Minute)}, s.stats)
}
