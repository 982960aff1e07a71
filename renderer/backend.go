package renderer

import (
	"fmt"
	"slices"
	"sync"

	"github.com/richinsley/ggt/gpu"
	"github.com/richinsley/ggt/host"
	"github.com/richinsley/ggt/options"
	"github.com/richinsley/ggt/shader"
	"github.com/sirupsen/logrus"
)

// Backend renders a whole bounding box into a staging buffer.
//
// Rebuild (re)creates every resource the back end needs for bound, releasing
// the previous ones first. On error nothing is retained. Draw renders with
// the given parameters into staging, which holds bound.Width*bound.Height*4
// bytes. Release is idempotent.
type Backend interface {
	Name() string
	Rebuild(src host.Source, bound host.Rect, props *options.Properties) error
	Draw(params options.Params, staging []byte) error
	Release()
}

// Translator rewrites portable shader source for the current context and
// reports the names declared variables have in the result.
type Translator interface {
	Translate(stage gpu.Stage, source string, gles bool) (string, map[string]string, error)
}

// Config carries what a back end factory may need.
type Config struct {
	// Device is required by the gpu back end.
	Device gpu.Device
	// Translator is optional; without it sources go to the driver unchanged.
	Translator Translator
	// Shaders is used for any stage the properties leave empty.
	Shaders shader.Pair
	Logger  logrus.FieldLogger
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

// Factory creates a back end.
type Factory func(cfg Config) (Backend, error)

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
)

func init() {
	Register("gpu", func(cfg Config) (Backend, error) {
		if cfg.Device == nil {
			return nil, fmt.Errorf("gpu backend needs a device")
		}
		return NewGPUShader(cfg.Device, cfg.Translator, cfg.Shaders, cfg.logger()), nil
	})
	Register("sphere", func(cfg Config) (Backend, error) {
		return NewCPURemap(Sphere, cfg.logger()), nil
	})
	Register("lens", func(cfg Config) (Backend, error) {
		return NewCPURemap(Lens, cfg.logger()), nil
	})
}

// Register registers a back end factory under name, replacing any previous one.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a back end from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered back end names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New creates the back end registered under name.
func New(name string, cfg Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownBackend, name, Available())
	}
	b, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", name, err)
	}
	cfg.logger().WithField("backend", name).Info("renderer backend selected")
	return b, nil
}
