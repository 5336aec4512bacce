package decode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"time"

	"golang.org/x/image/draw"
)

// decodeGIF composites every frame of an animated GIF onto a persistent
// canvas the size of the logical screen. The screen is checked against limit
// before frames are decoded, and the composited frames after.
func decodeGIF(data []byte, limit int64) (*Animation, error) {
	cfg, err := gif.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := checkBudget(cfg.Width, cfg.Height, 1, limit); err != nil {
		return nil, err
	}

	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(g.Image) < 2 {
		return nil, errTooFewFrames
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		for _, frame := range g.Image {
			bounds = bounds.Union(frame.Bounds())
		}
	}
	if err := checkBudget(bounds.Dx(), bounds.Dy(), len(g.Image)+1, limit); err != nil {
		return nil, err
	}

	bg := gifBackground(g)
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.NewUniform(bg), image.Point{}, draw.Src)

	anim := &Animation{
		Frames: make([]*image.RGBA, 0, len(g.Image)),
		Delays: make([]time.Duration, 0, len(g.Image)),
	}

	for i, frame := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var previous *image.RGBA
		if disposal == gif.DisposalPrevious {
			previous = cloneRGBA(canvas)
		}

		// Transparent palette entries have zero alpha, so Over leaves the
		// canvas untouched under them.
		rect := frame.Bounds().Intersect(bounds)
		draw.Draw(canvas, rect, frame, rect.Min, draw.Over)

		var delay time.Duration
		if i < len(g.Delay) {
			delay = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		anim.Frames = append(anim.Frames, cloneRGBA(canvas))
		anim.Delays = append(anim.Delays, delay)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, rect, image.NewUniform(bg), image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			copy(canvas.Pix, previous.Pix)
		}
	}

	return anim, nil
}

// gifBackground is the global palette's background colour made opaque, or
// opaque black when there is no global palette.
func gifBackground(g *gif.GIF) color.RGBA {
	black := color.RGBA{A: 0xff}

	palette, ok := g.Config.ColorModel.(color.Palette)
	if !ok || int(g.BackgroundIndex) >= len(palette) {
		return black
	}

	r, gg, b, _ := palette[g.BackgroundIndex].RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(gg >> 8), B: uint8(b >> 8), A: 0xff}
}
