package renderer

import (
	"fmt"
	"math"

	"github.com/fogleman/fauxgl"
	"github.com/richinsley/ggt/host"
	"github.com/richinsley/ggt/options"
	"github.com/sirupsen/logrus"
)

// RemapKind selects the CPU remap kernel.
type RemapKind int

const (
	// Sphere projects the image, read as an equirectangular map, onto a
	// rotated sphere seen head on.
	Sphere RemapKind = iota
	// Lens applies radial distortion 1 + k1 r^2 + k2 r^4.
	Lens
)

func (k RemapKind) String() string {
	switch k {
	case Sphere:
		return "sphere"
	case Lens:
		return "lens"
	default:
		return fmt.Sprintf("RemapKind(%d)", int(k))
	}
}

// CPURemap resamples the source with nearest-neighbour lookups. Output pixels
// that map outside the source are transparent black.
type CPURemap struct {
	kind   RemapKind
	log    logrus.FieldLogger
	source []byte
	bound  host.Rect
}

var _ Backend = (*CPURemap)(nil)

func NewCPURemap(kind RemapKind, logger logrus.FieldLogger) *CPURemap {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CPURemap{kind: kind, log: logger.WithField("backend", kind.String())}
}

func (c *CPURemap) Name() string { return c.kind.String() }

// Rebuild caches the whole source bounding box.
func (c *CPURemap) Rebuild(src host.Source, bound host.Rect, _ *options.Properties) error {
	c.Release()
	pixels, err := src.ReadRegion(bound)
	if err != nil {
		return fmt.Errorf("failed to read source %s: %w", bound, err)
	}
	c.source = pixels
	c.bound = bound
	c.log.WithField("bound", bound.String()).Info("remap source loaded")
	return nil
}

func (c *CPURemap) Draw(params options.Params, staging []byte) error {
	if c.source == nil {
		return ErrNotBuilt
	}
	w, h := c.bound.Width, c.bound.Height
	if len(staging) < w*h*host.BytesPerPixel {
		return fmt.Errorf("staging buffer holds %d bytes, need %d", len(staging), w*h*host.BytesPerPixel)
	}
	var lookup func(x, y float64) (float64, float64, bool)
	switch c.kind {
	case Sphere:
		lookup = sphereLookup(params)
	case Lens:
		lookup = lensLookup(params)
	default:
		return fmt.Errorf("unknown remap kind %v", c.kind)
	}

	for py := 0; py < h; py++ {
		y := 2*(float64(py)+0.5)/float64(h) - 1
		for px := 0; px < w; px++ {
			x := 2*(float64(px)+0.5)/float64(w) - 1
			dst := staging[(py*w+px)*host.BytesPerPixel:][:host.BytesPerPixel]
			sx, sy, ok := lookup(x, y)
			if !ok {
				clear(dst)
				continue
			}
			// Normalized [-1, 1] back to texel indices.
			tx := int(math.Floor((sx + 1) / 2 * float64(w)))
			ty := int(math.Floor((sy + 1) / 2 * float64(h)))
			if tx < 0 || tx >= w || ty < 0 || ty >= h {
				clear(dst)
				continue
			}
			copy(dst, c.source[(ty*w+tx)*host.BytesPerPixel:])
		}
	}
	return nil
}

func (c *CPURemap) Release() {
	c.source = nil
	c.bound = host.Rect{}
}

func param(params options.Params, name string, def float64) float64 {
	if v, ok := params[name]; ok {
		return float64(v)
	}
	return def
}

// sphereLookup maps a point of the output disc to the equirectangular source.
func sphereLookup(params options.Params) func(x, y float64) (float64, float64, bool) {
	scale := param(params, "scale", 1)
	ox, oy := param(params, "offset_x", 0), param(params, "offset_y", 0)
	rotation := fauxgl.Rotate(fauxgl.Vector{X: 1}, param(params, "rotate_x", 0)).
		Mul(fauxgl.Rotate(fauxgl.Vector{Y: 1}, param(params, "rotate_y", 0))).
		Mul(fauxgl.Rotate(fauxgl.Vector{Z: 1}, param(params, "rotate_z", 0)))
	return func(x, y float64) (float64, float64, bool) {
		u, v := (x-ox)/scale, (y-oy)/scale
		r2 := u*u + v*v
		if r2 > 1 {
			return 0, 0, false
		}
		d := rotation.MulDirection(fauxgl.Vector{X: u, Y: v, Z: math.Sqrt(1 - r2)})
		lon := math.Atan2(d.X, d.Z)
		lat := math.Asin(math.Max(-1, math.Min(1, d.Y)))
		return lon / math.Pi, lat / (math.Pi / 2), true
	}
}

// lensLookup applies radial distortion about the offset centre.
func lensLookup(params options.Params) func(x, y float64) (float64, float64, bool) {
	scale := param(params, "scale", 1)
	ox, oy := param(params, "offset_x", 0), param(params, "offset_y", 0)
	k1, k2 := param(params, "k1", 0), param(params, "k2", 0)
	return func(x, y float64) (float64, float64, bool) {
		dx, dy := x-ox, y-oy
		r2 := dx*dx + dy*dy
		f := (1 + k1*r2 + k2*r2*r2) / scale
		return ox + dx*f, oy + dy*f, true
	}
}
