// Package thumb renders JPEG thumbnails of comic pages.
package thumb

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/jamesainslie/comicarc/pkg/comic/archive"
	"github.com/jamesainslie/comicarc/pkg/comic/decode"
)

// Defaults for Options.
const (
	DefaultSize    = 200
	DefaultQuality = 80
)

// Options controls thumbnail output.
type Options struct {
	// Size is the bounding square in pixels.
	Size int
	// Quality is the JPEG quality, 1 to 100.
	Quality int
	// MaxDecodeBytes bounds the decoded page. Zero uses decode.DefaultMaxBytes.
	MaxDecodeBytes int64
}

// DefaultOptions returns the standard thumbnail size and quality.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Quality: DefaultQuality}
}

func (o Options) normalized() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Source is what FromHandle needs from an archive handle.
type Source interface {
	ListImages(ctx context.Context) ([]string, error)
	ReadImageByName(ctx context.Context, name string) ([]byte, error)
}

// FromHandle renders a thumbnail of the page called name, or of the first
// page when name is empty.
func FromHandle(ctx context.Context, src Source, name string, opts Options) ([]byte, error) {
	names, err := src.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: container has no pages", archive.ErrNotFound)
		}
		name = names[0]
	} else if !contains(names, name) {
		return nil, fmt.Errorf("%w: page %s", archive.ErrNotFound, name)
	}

	data, err := src.ReadImageByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return FromBytes(data, opts)
}

// FromBytes decodes page bytes and renders a thumbnail. Animated pages are
// decoded statically, so only their first frame is read.
func FromBytes(data []byte, opts Options) ([]byte, error) {
	page, err := decode.Decoder{MaxBytes: opts.MaxDecodeBytes}.DecodeStatic(data)
	if err != nil {
		return nil, err
	}
	return Render(page.First(), opts)
}

// Render fits img into an opts.Size square, keeping its aspect ratio, and
// encodes it as JPEG over a white background.
func Render(img image.Image, opts Options) ([]byte, error) {
	opts = opts.normalized()

	src := img.Bounds()
	if src.Empty() {
		return nil, fmt.Errorf("%w: empty image", decode.ErrDecode)
	}
	w, h := Fit(src.Dx(), src.Dy(), opts.Size)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Fit scales w×h up or down so its longer side is size, keeping the aspect
// ratio. Each side is at least one pixel.
func Fit(w, h, size int) (int, int) {
	if w >= h {
		return size, max(1, h*size/w)
	}
	return max(1, w*size/h), size
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
