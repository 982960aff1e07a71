// Package pipeline implements the filter node: it keeps a renderer back end
// built for the current source, re-renders only when needed, and serves
// region requests from the rendered staging buffer.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/richinsley/ggt/host"
	"github.com/richinsley/ggt/options"
	"github.com/richinsley/ggt/renderer"
	"github.com/sirupsen/logrus"
	trylock "github.com/subchen/go-trylock/v2"
)

// busyWait is how long Process waits for a concurrent call before giving up.
const busyWait = 10 * time.Millisecond

// Phase is the build state of an operation.
type Phase int

const (
	Uninitialized Phase = iota
	Rebuilding
	Ready
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Rebuilding:
		return "rebuilding"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is the resource state of one operation instance. The back end owns
// the GPU handles; State owns the staging buffer and the flags that decide
// when the back end is rebuilt or redrawn.
type State struct {
	Phase Phase
	// PurgeAcknowledged is the purge toggle as seen by the previous call.
	PurgeAcknowledged bool
	// Bound is the bounding box of the last successful build.
	Bound   host.Rect
	Staging []byte
	// Drawn holds the parameters of the draw that produced Staging, nil when
	// Staging is stale.
	Drawn options.Params

	Rebuilds int
	Draws    int
}

// reset returns to Uninitialized without touching the purge history or counters.
func (s *State) reset() {
	s.Phase = Uninitialized
	s.Bound = host.Rect{}
	s.Staging = nil
	s.Drawn = nil
}

// needsRebuild applies the transition rules and records the purge toggle.
// Only a false to true flip of purge fires.
func (s *State) needsRebuild(purge bool, bound host.Rect, invalidated bool) (bool, string) {
	edge := purge && !s.PurgeAcknowledged
	s.PurgeAcknowledged = purge
	switch {
	case s.Phase != Ready:
		return true, "first use"
	case edge:
		return true, "purge"
	case bound != s.Bound:
		return true, "bounding box changed"
	case invalidated:
		return true, "invalidated"
	default:
		return false, ""
	}
}

// Operation is a filter node instance.
type Operation struct {
	// Prewarm makes Prepare build and draw the pipeline.
	Prewarm bool

	backend renderer.Backend
	log     logrus.FieldLogger
	lock    trylock.TryLocker

	mu          sync.Mutex
	props       *options.Properties
	invalidated bool

	state State
}

// New creates an operation rendering with backend. props may be nil for the
// defaults; it is copied.
func New(backend renderer.Backend, props *options.Properties, logger logrus.FieldLogger) *Operation {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if props == nil {
		props = options.Defaults()
	}
	log := logger.WithField("operation", backend.Name())
	p := props.Snapshot()
	if err := p.Clamp(); err != nil {
		log.WithError(err).Warn("invalid properties, using defaults")
		p = options.Defaults()
	}
	return &Operation{
		backend: backend,
		log:     log,
		lock:    trylock.New(),
		props:   p,
	}
}

// SetProperties replaces the user properties. Values are clamped to their
// declared ranges; the caller's struct is not retained.
func (o *Operation) SetProperties(props *options.Properties) error {
	p := props.Snapshot()
	if err := p.Clamp(); err != nil {
		return err
	}
	o.mu.Lock()
	o.props = p
	o.mu.Unlock()
	return nil
}

// Properties returns a copy of the current properties.
func (o *Operation) Properties() *options.Properties {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.props.Snapshot()
}

// Invalidate forces a rebuild on the next call, for hosts whose upstream
// content changed within the same bounding box.
func (o *Operation) Invalidate() {
	o.mu.Lock()
	o.invalidated = true
	o.mu.Unlock()
}

// Stats returns a copy of the resource state counters and flags.
func (o *Operation) Stats() State {
	o.lock.Lock()
	defer o.lock.Unlock()
	s := o.state
	s.Staging = nil
	s.Drawn = s.Drawn.Clone()
	return s
}

func (o *Operation) acquire(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, busyWait)
	defer cancel()
	return o.lock.TryLock(ctx)
}

// Prepare negotiates formats: the source must deliver RGBA8 and the output
// is RGBA8. With Prewarm set it also builds and draws.
func (o *Operation) Prepare(ctx context.Context, src host.Source) (host.Format, error) {
	if f := src.Format(); f != host.RGBA8 {
		return "", &UnsupportedFormatError{Pad: "input", Format: f}
	}
	if !o.Prewarm {
		return host.RGBA8, nil
	}
	if !o.acquire(ctx) {
		return "", ErrBusy
	}
	defer o.lock.Unlock()
	if err := o.ensure(src); err != nil {
		return "", err
	}
	return host.RGBA8, nil
}

// Process fills request of dst with the rendered source. The pipeline is
// rebuilt on first use, on a purge edge, when the bounding box changes or
// after Invalidate; it is redrawn only when the parameters changed since the
// last draw. Rebuild failures leave the operation uninitialized.
func (o *Operation) Process(ctx context.Context, src host.Source, dst host.Sink, request host.Rect) error {
	if !o.acquire(ctx) {
		return ErrBusy
	}
	defer o.lock.Unlock()

	if f := src.Format(); f != host.RGBA8 {
		return &UnsupportedFormatError{Pad: "input", Format: f}
	}
	if err := o.ensure(src); err != nil {
		return err
	}
	pixels, err := ExtractRegion(o.state.Staging, o.state.Bound, request)
	if err != nil {
		return err
	}
	if err := dst.WriteRegion(request, pixels); err != nil {
		return fmt.Errorf("failed to write region %v: %w", request, err)
	}
	o.log.WithField("region", request.String()).Debug("region served")
	return nil
}

// ensure brings the state to Ready with a current staging buffer.
func (o *Operation) ensure(src host.Source) error {
	o.mu.Lock()
	props := o.props.Snapshot()
	invalidated := o.invalidated
	o.invalidated = false
	o.mu.Unlock()

	bound := src.BoundingBox()
	if rebuild, reason := o.state.needsRebuild(props.Purge, bound, invalidated); rebuild {
		if err := o.rebuild(src, bound, props, reason); err != nil {
			return err
		}
	}

	params := props.Params()
	if o.state.Drawn != nil && o.state.Drawn.Equal(params) {
		o.log.Debug("parameters unchanged, draw skipped")
		return nil
	}
	if err := o.backend.Draw(params, o.state.Staging); err != nil {
		o.backend.Release()
		o.state.reset()
		return fmt.Errorf("draw failed: %w", err)
	}
	o.state.Draws++
	o.state.Drawn = params.Clone()
	o.log.WithField("draws", o.state.Draws).Debug("staging buffer rendered")
	return nil
}

func (o *Operation) rebuild(src host.Source, bound host.Rect, props *options.Properties, reason string) error {
	if bound.Empty() {
		o.backend.Release()
		o.state.reset()
		return fmt.Errorf("cannot render empty bounding box %v", bound)
	}
	o.state.Phase = Rebuilding
	o.log.WithFields(logrus.Fields{"reason": reason, "bound": bound.String()}).Info("rebuilding pipeline")
	if err := o.backend.Rebuild(src, bound, props); err != nil {
		o.backend.Release()
		o.state.reset()
		return fmt.Errorf("pipeline rebuild failed: %w", err)
	}
	o.state.Phase = Ready
	o.state.Bound = bound
	o.state.Staging = make([]byte, bound.Size())
	o.state.Drawn = nil
	o.state.Rebuilds++
	return nil
}

// Close releases every back end resource. The operation rebuilds on next use.
func (o *Operation) Close() {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.backend.Release()
	o.state.reset()
}
