package pipeline

import (
	"errors"
	"fmt"

	"github.com/richinsley/ggt/host"
)

var (
	// ErrBusy is returned when Process is entered while another call holds the operation.
	ErrBusy = errors.New("pipeline: operation busy")
	// ErrNotReady is returned when a region is requested before anything was rendered.
	ErrNotReady = errors.New("pipeline: nothing rendered")
)

// OutOfBoundsError reports a region request that is not contained in the
// bounding box of the last build.
type OutOfBoundsError struct {
	Requested host.Rect
	Available host.Rect
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("region %v is outside the rendered bounding box %v", e.Requested, e.Available)
}

// UnsupportedFormatError reports a pad whose pixel format is not RGBA8.
type UnsupportedFormatError struct {
	Pad    string
	Format host.Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s pad delivers %q, only %q is supported", e.Pad, e.Format, host.RGBA8)
}
