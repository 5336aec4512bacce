// Package decode turns page bytes into displayable images. Animated GIF and
// WebP pages are expanded into fully composited frames with per-frame delays;
// everything else decodes to a single static image.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/dustin/go-humanize"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned when page bytes cannot be decoded.
var ErrDecode = errors.New("decode failed")

// ErrTooLarge is wrapped with ErrDecode when a page would need more memory
// than the decoder allows.
var ErrTooLarge = errors.New("image too large")

// DefaultMaxBytes bounds the RGBA memory of one decoded page, counting every
// composited animation frame.
const DefaultMaxBytes int64 = 512 << 20

// MinFrameDelay is the shortest delay given to an animated WebP frame.
const MinFrameDelay = 20 * time.Millisecond

// PageImage is a decoded page: *Static, *AnimatedGIF or *AnimatedWebP.
type PageImage interface {
	// Bounds reports the page size.
	Bounds() image.Rectangle

	// First returns the image to show before playback starts.
	First() image.Image
}

// Static is a single-frame page.
type Static struct {
	Image image.Image
}

// Bounds implements PageImage.
func (s *Static) Bounds() image.Rectangle { return s.Image.Bounds() }

// First implements PageImage.
func (s *Static) First() image.Image { return s.Image }

// Animation holds composited frames. len(Frames) == len(Delays) >= 2.
type Animation struct {
	Frames    []*image.RGBA
	Delays    []time.Duration
	StartTime time.Time
}

// Bounds implements PageImage.
func (a *Animation) Bounds() image.Rectangle { return a.Frames[0].Bounds() }

// First implements PageImage.
func (a *Animation) First() image.Image { return a.Frames[0] }

// Duration is the length of one loop.
func (a *Animation) Duration() time.Duration {
	var total time.Duration
	for _, d := range a.Delays {
		total += d
	}
	return total
}

// FrameAt returns the frame to show at now, looping from StartTime.
func (a *Animation) FrameAt(now time.Time) *image.RGBA {
	return a.Frames[FrameIndex(a.Delays, now.Sub(a.StartTime))]
}

// AnimatedGIF is an animation decoded from a GIF.
type AnimatedGIF struct{ Animation }

// AnimatedWebP is an animation decoded from a WebP.
type AnimatedWebP struct{ Animation }

// FrameIndex returns the index of the frame whose interval contains elapsed,
// taken modulo the total duration. Frame i covers [sum(delays[:i]),
// sum(delays[:i+1])). A non-positive total always yields frame 0.
func FrameIndex(delays []time.Duration, elapsed time.Duration) int {
	var total time.Duration
	for _, d := range delays {
		total += d
	}
	if total <= 0 {
		return 0
	}

	t := elapsed % total
	if t < 0 {
		t += total
	}

	var acc time.Duration
	for i, d := range delays {
		acc += d
		if t < acc {
			return i
		}
	}
	return len(delays) - 1
}

// Decoder decodes pages within a memory budget. The zero value uses
// DefaultMaxBytes.
type Decoder struct {
	// MaxBytes caps width*height*4 summed over all frames plus the
	// compositing canvas.
	MaxBytes int64
}

func (d Decoder) limit() int64 {
	if d.MaxBytes > 0 {
		return d.MaxBytes
	}
	return DefaultMaxBytes
}

// Decode decodes page bytes. Animated GIF and WebP data with at least two
// frames yield an animation starting now. Anything else, including an
// animation whose frames exceed the budget, is decoded statically.
func (d Decoder) Decode(data []byte) (PageImage, error) {
	now := time.Now()

	switch {
	case isGIF(data):
		if anim, err := decodeGIF(data, d.limit()); err == nil {
			anim.StartTime = now
			return &AnimatedGIF{Animation: *anim}, nil
		}
	case isWebP(data):
		if anim, err := decodeAnimatedWebP(data, decodeWebPFrame, d.limit()); err == nil {
			anim.StartTime = now
			return &AnimatedWebP{Animation: *anim}, nil
		}
	}

	return d.DecodeStatic(data)
}

// DecodeStatic decodes the first image in data. The header is checked against
// the budget before any pixels are allocated.
func (d Decoder) DecodeStatic(data []byte) (*Static, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := checkBudget(cfg.Width, cfg.Height, 1, d.limit()); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &Static{Image: img}, nil
}

// Decode decodes page bytes with the default budget.
func Decode(data []byte) (PageImage, error) { return Decoder{}.Decode(data) }

// DecodeStatic decodes the first image in data with the default budget.
func DecodeStatic(data []byte) (*Static, error) { return Decoder{}.DecodeStatic(data) }

// checkBudget fails when copies RGBA images of w×h exceed limit bytes.
func checkBudget(w, h, copies int, limit int64) error {
	if w < 0 || h < 0 || copies < 1 {
		return fmt.Errorf("%w: invalid size %dx%d", ErrDecode, w, h)
	}
	per := int64(w) * int64(h) * 4
	if per > limit/int64(copies) {
		return fmt.Errorf("%w: %w: %dx%d with %d buffers exceeds %s",
			ErrDecode, ErrTooLarge, w, h, copies, humanize.IBytes(uint64(limit)))
	}
	return nil
}

var errTooFewFrames = errors.New("fewer than two frames")

func isGIF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a"))
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := &image.RGBA{
		Pix:    make([]uint8, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	return dst
}
