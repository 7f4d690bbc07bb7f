// Package transcode normalizes uploaded images: it bounds their longest edge
// and re-encodes them as WebP. Aspect ratio is preserved and images are never
// enlarged.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	// Registers the WebP decoder with image.Decode so WebP uploads can be re-normalized.
	_ "golang.org/x/image/webp"
)

// Defaults used when Options fields are zero.
const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 80
	// DefaultMaxPixels caps width*height of an input before it is decoded.
	DefaultMaxPixels = 64 << 20
)

// OutputMimeType is the content type of every normalized image.
const OutputMimeType = "image/webp"

// ErrUndecodable is returned when the input is not an image any registered decoder understands.
var ErrUndecodable = errors.New("input is not a decodable image")

// ErrTooManyPixels is returned when an input's header declares more pixels
// than Options.MaxPixels.
var ErrTooManyPixels = errors.New("image dimensions exceed the pixel limit")

// Options bounds the output.
type Options struct {
	MaxDimension int
	Quality      int
	MaxPixels    int64
}

// Result is a normalized image.
type Result struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Transcoder normalizes images with fixed Options. It is safe for concurrent use.
type Transcoder struct {
	opts Options
}

// New returns a Transcoder, filling zero Options with the defaults.
func New(opts Options) *Transcoder {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	return &Transcoder{opts: opts}
}

// NormalizeImage decodes data, scales it down so its longer edge is at most
// MaxDimension and encodes it as WebP at Quality.
func (t *Transcoder) NormalizeImage(data []byte) (*Result, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > t.opts.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	b := img.Bounds()
	w, h := FitDimensions(b.Dx(), b.Dy(), t.opts.MaxDimension)
	var out image.Image = img
	if w != b.Dx() || h != b.Dy() {
		out = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, out, &webp.Options{Quality: float32(t.opts.Quality)}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		MimeType: OutputMimeType,
		Width:    w,
		Height:   h,
	}, nil
}

// FitDimensions scales w×h down so the longer edge equals maxDim. Images that
// already fit are returned unchanged. The shorter edge is rounded to the
// nearest pixel and never drops below one.
func FitDimensions(w, h, maxDim int) (int, int) {
	if w <= 0 || h <= 0 || maxDim <= 0 {
		return w, h
	}
	long, short := w, h
	if h > w {
		long, short = h, w
	}
	if long <= maxDim {
		return w, h
	}
	scaled := int(math.Round(float64(short) * float64(maxDim) / float64(long)))
	if scaled < 1 {
		scaled = 1
	}
	if w >= h {
		return maxDim, scaled
	}
	return scaled, maxDim
}
