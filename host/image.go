package host

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ImageSource serves regions of an in-memory image.
type ImageSource struct {
	rgba *image.RGBA
}

// NewImageSource converts img to RGBA8 once; its bounds become the bounding box.
func NewImageSource(img image.Image) *ImageSource {
	if rgba, ok := img.(*image.RGBA); ok {
		return &ImageSource{rgba: rgba}
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return &ImageSource{rgba: rgba}
}

func (s *ImageSource) BoundingBox() Rect { return FromImage(s.rgba.Rect) }
func (s *ImageSource) Format() Format    { return RGBA8 }

// ReadRegion copies r row by row. r must lie inside the bounding box.
func (s *ImageSource) ReadRegion(r Rect) ([]byte, error) {
	if !s.BoundingBox().Contains(r) {
		return nil, fmt.Errorf("read %v outside source %v", r, s.BoundingBox())
	}
	return copyRows(s.rgba, r), nil
}

// ImageSink collects written regions into an RGBA image.
type ImageSink struct {
	RGBA *image.RGBA
}

// NewImageSink allocates an output covering bound.
func NewImageSink(bound Rect) *ImageSink {
	return &ImageSink{RGBA: image.NewRGBA(bound.Image())}
}

// WriteRegion stores pixels for r. r must lie inside the sink.
func (s *ImageSink) WriteRegion(r Rect, pixels []byte) error {
	if !FromImage(s.RGBA.Rect).Contains(r) {
		return fmt.Errorf("write %v outside sink %v", r, FromImage(s.RGBA.Rect))
	}
	if len(pixels) != r.Size() {
		return fmt.Errorf("write %v: got %d bytes, want %d", r, len(pixels), r.Size())
	}
	row := r.Width * BytesPerPixel
	for y := 0; y < r.Height; y++ {
		off := s.RGBA.PixOffset(r.X, r.Y+y)
		copy(s.RGBA.Pix[off:off+row], pixels[y*row:(y+1)*row])
	}
	return nil
}

func copyRows(img *image.RGBA, r Rect) []byte {
	out := make([]byte, r.Size())
	row := r.Width * BytesPerPixel
	for y := 0; y < r.Height; y++ {
		off := img.PixOffset(r.X, r.Y+y)
		copy(out[y*row:(y+1)*row], img.Pix[off:off+row])
	}
	return out
}
