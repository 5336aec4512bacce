package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// VP8X feature flags.
const (
	vp8xAnimation = 0x02
	vp8xAlpha     = 0x10
)

// ANMF flags.
const (
	anmfDispose = 0x01
	anmfNoBlend = 0x02
)

var errNotAnimated = errors.New("webp is not animated")

type riffChunk struct {
	fourCC  string
	payload []byte
}

type webpFrame struct {
	x, y     int
	width    int
	height   int
	duration time.Duration
	dispose  bool
	blend    bool
	// bitstream is a standalone WebP file holding just this frame.
	bitstream []byte
}

// frameDecoder decodes a standalone single-frame WebP file.
type frameDecoder func(data []byte) (image.Image, error)

func decodeWebPFrame(data []byte) (image.Image, error) {
	return webp.Decode(bytes.NewReader(data))
}

// decodeAnimatedWebP demuxes an animated WebP, decodes each frame with
// decodeFrame and composites the result onto a transparent canvas.
func decodeAnimatedWebP(data []byte, decodeFrame frameDecoder, limit int64) (*Animation, error) {
	width, height, frames, err := demuxWebP(data)
	if err != nil {
		return nil, err
	}
	if len(frames) < 2 {
		return nil, errTooFewFrames
	}
	if err := checkBudget(width, height, len(frames)+1, limit); err != nil {
		return nil, err
	}
	for _, f := range frames {
		if err := checkBudget(f.width, f.height, 1, limit); err != nil {
			return nil, err
		}
	}

	bounds := image.Rect(0, 0, width, height)
	canvas := image.NewRGBA(bounds)
	anim := &Animation{
		Frames: make([]*image.RGBA, 0, len(frames)),
		Delays: make([]time.Duration, 0, len(frames)),
	}

	var (
		end     time.Duration
		prevEnd time.Duration
		dispose image.Rectangle
	)
	for i, f := range frames {
		if !dispose.Empty() {
			draw.Draw(canvas, dispose, image.Transparent, image.Point{}, draw.Src)
			dispose = image.Rectangle{}
		}

		img, err := decodeFrame(f.bitstream)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %w", ErrDecode, i, err)
		}

		rect := image.Rect(f.x, f.y, f.x+f.width, f.y+f.height).Intersect(bounds)
		op := draw.Src
		if f.blend {
			op = draw.Over
		}
		draw.Draw(canvas, rect, img, img.Bounds().Min, op)

		end += f.duration
		delay := end - prevEnd
		prevEnd = end
		if delay < MinFrameDelay {
			delay = MinFrameDelay
		}

		anim.Frames = append(anim.Frames, cloneRGBA(canvas))
		anim.Delays = append(anim.Delays, delay)

		if f.dispose {
			dispose = rect
		}
	}

	return anim, nil
}

// demuxWebP returns the canvas size and frames of an animated WebP.
func demuxWebP(data []byte) (int, int, []webpFrame, error) {
	chunks, err := readRIFF(data)
	if err != nil {
		return 0, 0, nil, err
	}
	if len(chunks) == 0 || chunks[0].fourCC != "VP8X" || len(chunks[0].payload) < 10 {
		return 0, 0, nil, errNotAnimated
	}

	header := chunks[0].payload
	if header[0]&vp8xAnimation == 0 {
		return 0, 0, nil, errNotAnimated
	}
	width := int(uint24(header[4:7])) + 1
	height := int(uint24(header[7:10])) + 1

	var frames []webpFrame
	for _, c := range chunks[1:] {
		if c.fourCC != "ANMF" {
			continue
		}
		f, err := parseANMF(c.payload)
		if err != nil {
			return 0, 0, nil, err
		}
		frames = append(frames, f)
	}
	return width, height, frames, nil
}

func parseANMF(p []byte) (webpFrame, error) {
	if len(p) < 16 {
		return webpFrame{}, fmt.Errorf("%w: short ANMF chunk", ErrDecode)
	}

	f := webpFrame{
		x:        int(uint24(p[0:3])) * 2,
		y:        int(uint24(p[3:6])) * 2,
		width:    int(uint24(p[6:9])) + 1,
		height:   int(uint24(p[9:12])) + 1,
		duration: time.Duration(uint24(p[12:15])) * time.Millisecond,
		dispose:  p[15]&anmfDispose != 0,
		blend:    p[15]&anmfNoBlend == 0,
	}

	sub, err := readChunks(p[16:])
	if err != nil {
		return webpFrame{}, err
	}

	var alpha, bits *riffChunk
	for i := range sub {
		switch sub[i].fourCC {
		case "ALPH":
			alpha = &sub[i]
		case "VP8 ", "VP8L":
			bits = &sub[i]
		}
	}
	if bits == nil {
		return webpFrame{}, fmt.Errorf("%w: ANMF without image data", ErrDecode)
	}

	f.bitstream = wrapFrame(f.width, f.height, alpha, bits)
	return f, nil
}

// wrapFrame builds a standalone WebP file for one frame. Lossy frames with a
// separate alpha chunk need an extended header to carry it.
func wrapFrame(width, height int, alpha, img *riffChunk) []byte {
	var body bytes.Buffer
	body.WriteString("WEBP")

	if alpha != nil && img.fourCC == "VP8 " {
		header := make([]byte, 10)
		header[0] = vp8xAlpha
		putUint24(header[4:7], uint32(width-1))
		putUint24(header[7:10], uint32(height-1))
		writeChunk(&body, "VP8X", header)
		writeChunk(&body, alpha.fourCC, alpha.payload)
	}
	writeChunk(&body, img.fourCC, img.payload)

	out := make([]byte, 0, 8+body.Len())
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(body.Len()))
	return append(out, body.Bytes()...)
}

func readRIFF(data []byte) ([]riffChunk, error) {
	if !isWebP(data) {
		return nil, fmt.Errorf("%w: not a RIFF WebP file", ErrDecode)
	}
	size := int(binary.LittleEndian.Uint32(data[4:8]))
	end := 8 + size
	if end > len(data) || end < 12 {
		end = len(data)
	}
	return readChunks(data[12:end])
}

func readChunks(data []byte) ([]riffChunk, error) {
	var chunks []riffChunk
	for len(data) >= 8 {
		fourCC := string(data[0:4])
		size := int(binary.LittleEndian.Uint32(data[4:8]))
		if size < 0 || 8+size > len(data) {
			return nil, fmt.Errorf("%w: truncated %q chunk", ErrDecode, fourCC)
		}
		chunks = append(chunks, riffChunk{fourCC: fourCC, payload: data[8 : 8+size]})

		next := 8 + size + size&1
		if next > len(data) {
			next = len(data)
		}
		data = data[next:]
	}
	return chunks, nil
}

func writeChunk(buf *bytes.Buffer, fourCC string, payload []byte) {
	buf.WriteString(fourCC)
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	if len(payload)&1 == 1 {
		buf.WriteByte(0)
	}
}

func uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
