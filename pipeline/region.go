package pipeline

import "github.com/richinsley/ggt/host"

// ExtractRegion copies request out of staging, which holds bound as tightly
// packed RGBA8 rows. request is in host coordinates and must lie inside bound.
// staging is only read.
func ExtractRegion(staging []byte, bound, request host.Rect) ([]byte, error) {
	if staging == nil {
		return nil, ErrNotReady
	}
	if !bound.Contains(request) || len(staging) < bound.Size() {
		return nil, &OutOfBoundsError{Requested: request, Available: bound}
	}
	out := make([]byte, request.Size())
	if len(out) == 0 {
		return out, nil
	}
	stride := bound.Width * host.BytesPerPixel
	row := request.Width * host.BytesPerPixel
	x := request.X - bound.X
	for y := 0; y < request.Height; y++ {
		off := (request.Y-bound.Y+y)*stride + x*host.BytesPerPixel
		copy(out[y*row:(y+1)*row], staging[off:off+row])
	}
	return out, nil
}
