// Package encode turns captured frames into the payload bytes sent to viewers.
//
// JPEG payloads are self describing. The lossless encoders compress the raw
// RGBA pixels; viewers take the size from the display configuration.
package encode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	NameJPEG = "jpeg"
	NameZstd = "zstd"
	NameLZ4  = "lz4"

	// DefaultQuality matches a reasonable size/fidelity tradeoff for screen
	// content.
	DefaultQuality = 70
	// DefaultMaxJPEGBytes is the size above which a JPEG is re-encoded at a
	// lower quality.
	DefaultMaxJPEGBytes = 500_000

	minQuality = 10
)

// ErrEncode wraps every encoding failure.
var ErrEncode = errors.New("encode failed")

// Encoder compresses a frame. Implementations are safe for use from a single
// goroutine at a time.
type Encoder interface {
	Name() string
	Encode(img *image.RGBA) ([]byte, error)
}

// New returns the encoder called name. quality is 1-100 and maps to the
// compression level of the lossless encoders.
func New(name string, quality int) (Encoder, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}
	switch name {
	case NameJPEG, "":
		return &JPEG{Quality: quality, MaxBytes: DefaultMaxJPEGBytes}, nil
	case NameZstd:
		return NewZstd(quality)
	case NameLZ4:
		return NewLZ4(quality), nil
	default:
		return nil, fmt.Errorf("unknown encoder %q", name)
	}
}

// JPEG is a lossy encoder for photographic and screen content. Frames larger
// than MaxBytes are re-encoded at halved quality until they fit or the quality
// floor is reached. Zero MaxBytes disables the limit.
type JPEG struct {
	Quality  int
	MaxBytes int
	buf      bytes.Buffer
}

func (*JPEG) Name() string { return NameJPEG }

func (e *JPEG) Encode(img *image.RGBA) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrEncode)
	}
	quality := e.Quality
	for {
		e.buf.Reset()
		if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", ErrEncode, err)
		}
		if e.MaxBytes <= 0 || e.buf.Len() <= e.MaxBytes || quality <= minQuality {
			return bytes.Clone(e.buf.Bytes()), nil
		}
		quality = max(quality/2, minQuality)
	}
}

// Zstd compresses the raw pixels into a single zstd frame.
type Zstd struct {
	enc *zstd.Encoder
}

// NewZstd creates a zstd encoder with a level derived from quality.
func NewZstd(quality int) (*Zstd, error) {
	level := zstd.SpeedFastest
	switch {
	case quality > 90:
		level = zstd.SpeedBestCompression
	case quality > 60:
		level = zstd.SpeedBetterCompression
	case quality > 30:
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return &Zstd{enc: enc}, nil
}

func (*Zstd) Name() string { return NameZstd }

func (e *Zstd) Encode(img *image.RGBA) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrEncode)
	}
	return e.enc.EncodeAll(pixels(img), nil), nil
}

// LZ4 compresses the raw pixels into a single lz4 frame.
type LZ4 struct {
	level lz4.CompressionLevel
	buf   bytes.Buffer
}

// NewLZ4 creates an lz4 encoder with a level derived from quality.
func NewLZ4(quality int) *LZ4 {
	levels := []lz4.CompressionLevel{lz4.Fast, lz4.Level1, lz4.Level3, lz4.Level5, lz4.Level7, lz4.Level9}
	return &LZ4{level: levels[(quality-1)*len(levels)/100]}
}

func (*LZ4) Name() string { return NameLZ4 }

func (e *LZ4) Encode(img *image.RGBA) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrEncode)
	}
	e.buf.Reset()
	w := lz4.NewWriter(&e.buf)
	if err := w.Apply(lz4.CompressionLevelOption(e.level)); err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrEncode, err)
	}
	if _, err := w.Write(pixels(img)); err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrEncode, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrEncode, err)
	}
	return bytes.Clone(e.buf.Bytes()), nil
}

// pixels returns the tightly packed RGBA bytes of img.
func pixels(img *image.RGBA) []byte {
	bounds := img.Bounds()
	rowLen := bounds.Dx() * 4
	if img.Stride == rowLen && bounds.Min == (image.Point{}) {
		return img.Pix[:rowLen*bounds.Dy()]
	}
	out := make([]byte, 0, rowLen*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		start := img.PixOffset(bounds.Min.X, y)
		out = append(out, img.Pix[start:start+rowLen]...)
	}
	return out
}
