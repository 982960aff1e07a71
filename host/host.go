package host

import (
	"fmt"
	"image"
)

// Format names a pixel layout negotiated between the host and an operation.
type Format string

// RGBA8 is 8 bits per channel, non-premultiplied, R G B A byte order.
const RGBA8 Format = "RGBA u8"

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

// Rect is an integer rectangle in host coordinates.
type Rect struct {
	X, Y          int
	Width, Height int
}

// R is shorthand for Rect{x, y, w, h}.
func R(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// FromImage converts an image.Rectangle.
func FromImage(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Image converts to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether o lies entirely inside r. Negative sizes are never contained.
func (r Rect) Contains(o Rect) bool {
	if o.Width < 0 || o.Height < 0 {
		return false
	}
	// Subtract instead of adding so huge sizes cannot wrap around.
	return o.X >= r.X && o.X <= r.X+r.Width && o.Width <= r.X+r.Width-o.X &&
		o.Y >= r.Y && o.Y <= r.Y+r.Height && o.Height <= r.Y+r.Height-o.Y
}

// Size returns the byte size of an RGBA8 buffer covering r.
func (r Rect) Size() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height * BytesPerPixel
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Source is the upstream image an operation reads from.
type Source interface {
	// BoundingBox is the full extent of the source for this pass.
	BoundingBox() Rect
	// Format is the pixel format the source delivers.
	Format() Format
	// ReadRegion returns tightly packed RGBA8 rows for r.
	ReadRegion(r Rect) ([]byte, error)
}

// Sink receives the pixels an operation produces.
type Sink interface {
	// WriteRegion stores tightly packed RGBA8 rows for r.
	WriteRegion(r Rect, pixels []byte) error
}

// Tiles splits bound into row-major tiles of at most size×size, the way a
// host scheduler issues region requests. The tiles cover bound exactly once.
func Tiles(bound Rect, size int) []Rect {
	if bound.Empty() {
		return nil
	}
	if size <= 0 {
		return []Rect{bound}
	}
	var tiles []Rect
	for y := bound.Y; y < bound.Y+bound.Height; y += size {
		h := min(size, bound.Y+bound.Height-y)
		for x := bound.X; x < bound.X+bound.Width; x += size {
			w := min(size, bound.X+bound.Width-x)
			tiles = append(tiles, Rect{X: x, Y: y, Width: w, Height: h})
		}
	}
	return tiles
}
