// Package imaging produces privacy-safe derivatives of uploaded photos.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned when the source bytes cannot be decoded.
var ErrUnsupportedImage = errors.New("unsupported image encoding")

// Box is a region expressed as fractions of the image: x, y, width, height.
type Box [4]float64

// Pixelator blurs regions by downsampling them into coarse blocks.
type Pixelator struct {
	// BlockSize is the edge of one output block in pixels.
	BlockSize int
}

// NewPixelator returns a pixelator with the given block size (minimum 2).
func NewPixelator(blockSize int) *Pixelator {
	if blockSize < 2 {
		blockSize = 16
	}
	return &Pixelator{BlockSize: blockSize}
}

// Pixelate decodes src, pixelates every box (the whole frame when boxes is empty)
// and returns the result PNG-encoded.
func (p *Pixelator) Pixelate(src []byte, boxes []Box) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	regions := make([]image.Rectangle, 0, len(boxes))
	if len(boxes) == 0 {
		regions = append(regions, bounds)
	}
	for _, b := range boxes {
		if r := toRect(bounds, b); !r.Empty() {
			regions = append(regions, r)
		}
	}

	for _, r := range regions {
		p.pixelateRegion(out, r)
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, out); err != nil {
		return nil, fmt.Errorf("encode masked image: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *Pixelator) pixelateRegion(dst *image.RGBA, r image.Rectangle) {
	w, h := r.Dx(), r.Dy()
	cols := uint(max(1, w/p.BlockSize))
	rows := uint(max(1, h/p.BlockSize))

	small := resize.Resize(cols, rows, dst.SubImage(r), resize.Bilinear)
	coarse := resize.Resize(uint(w), uint(h), small, resize.NearestNeighbor)
	draw.Draw(dst, r, coarse, coarse.Bounds().Min, draw.Src)
}

func toRect(bounds image.Rectangle, b Box) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	x0 := bounds.Min.X + int(math.Floor(clamp(b[0])*w))
	y0 := bounds.Min.Y + int(math.Floor(clamp(b[1])*h))
	x1 := bounds.Min.X + int(math.Ceil(clamp(b[0]+b[2])*w))
	y1 := bounds.Min.Y + int(math.Ceil(clamp(b[1]+b[3])*h))
	return image.Rect(x0, y0, x1, y1).Intersect(bounds)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Thumbnail decodes src and returns a JPEG no larger than maxEdge on either side.
func Thumbnail(src []byte, maxEdge uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	thumb := resize.Thumbnail(maxEdge, maxEdge, img, resize.Lanczos3)

	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Placeholder returns a flat grey PNG of the given size, used when the source
// cannot be decoded.
func Placeholder(width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Gray{Y: 0x9e}}, image.Point{}, draw.Src)

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}
