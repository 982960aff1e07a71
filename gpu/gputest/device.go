// Package gputest provides an in-memory gpu.Device for tests.
//
// Rasterisation is a pass-through: DrawStrip copies the bound texture into
// the render target when their sizes match, so an identity pipeline returns
// its input unchanged.
package gputest

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/richinsley/ggt/gpu"
)

// ErrContext is returned by CreateContext when FailContext is set.
var ErrContext = errors.New("gputest: context creation failed")

type texture struct {
	width, height int
	pixels        []byte
}

type program struct {
	source    string
	locations map[string]int32
}

// Device records every call it receives. The zero value is not usable; call New.
type Device struct {
	// FailContext makes the next CreateContext calls fail.
	FailContext bool
	// FailLink makes LinkProgram fail with LinkLog.
	FailLink bool
	LinkLog  string
	// GLES is reported by IsGLES.
	GLES bool

	Contexts     int
	Compiles     int
	Links        int
	Draws        int
	Readbacks    int
	DrawnCount   int
	DepthTest    bool
	ClearColor   [4]float32
	Uniforms     map[string]float32
	SamplerUnits map[string]int32

	contextLive bool
	width       int
	height      int
	framebuffer []byte

	next     uint32
	shaders  map[uint32]string
	programs map[uint32]*program
	buffers  map[uint32]int
	textures map[uint32]*texture
	pbos     map[uint32]int
	current  uint32
	names    map[int32]string
}

var _ gpu.Device = (*Device)(nil)

func New() *Device {
	return &Device{
		Uniforms:     make(map[string]float32),
		SamplerUnits: make(map[string]int32),
		shaders:      make(map[uint32]string),
		programs:     make(map[uint32]*program),
		buffers:      make(map[uint32]int),
		textures:     make(map[uint32]*texture),
		pbos:         make(map[uint32]int),
		names:        make(map[int32]string),
	}
}

func (d *Device) handle() uint32 {
	d.next++
	return d.next
}

// Live reports how many objects are currently allocated, the context included.
func (d *Device) Live() int {
	n := len(d.shaders) + len(d.programs) + len(d.buffers) + len(d.textures) + len(d.pbos)
	if d.contextLive {
		n++
	}
	return n
}

// ContextLive reports whether a context currently exists.
func (d *Device) ContextLive() bool { return d.contextLive }

// Framebuffer returns the render target contents.
func (d *Device) Framebuffer() []byte { return d.framebuffer }

func (d *Device) CreateContext(width, height int) error {
	d.DestroyContext()
	if d.FailContext {
		return ErrContext
	}
	d.Contexts++
	d.contextLive = true
	d.width, d.height = width, height
	d.framebuffer = make([]byte, width*height*4)
	return nil
}

// DestroyContext drops the context and every object created in it.
func (d *Device) DestroyContext() {
	if !d.contextLive {
		return
	}
	d.contextLive = false
	clear(d.shaders)
	clear(d.programs)
	clear(d.buffers)
	clear(d.textures)
	clear(d.pbos)
	d.framebuffer = nil
	d.current = 0
}

func (d *Device) IsGLES() bool { return d.GLES }

func (d *Device) CompileShader(stage gpu.Stage, source string) (uint32, string, error) {
	if !d.contextLive {
		return 0, "", errors.New("gputest: no current context")
	}
	d.Compiles++
	if i := strings.Index(source, "#error"); i >= 0 {
		line := source[i:]
		if j := strings.IndexByte(line, '\n'); j >= 0 {
			line = line[:j]
		}
		return 0, fmt.Sprintf("ERROR: 0:1: '%s'", line), fmt.Errorf("failed to compile %s shader", stage)
	}
	if !strings.Contains(source, "void main") {
		return 0, "ERROR: 0:1: 'main' : function not defined", fmt.Errorf("failed to compile %s shader", stage)
	}
	h := d.handle()
	d.shaders[h] = source
	return h, "", nil
}

func (d *Device) DeleteShader(shader uint32) {
	delete(d.shaders, shader)
}

func (d *Device) LinkProgram(vs, fs uint32) (uint32, string, error) {
	d.Links++
	vsrc, okv := d.shaders[vs]
	fsrc, okf := d.shaders[fs]
	if !okv || !okf {
		return 0, "", errors.New("gputest: link of unknown shader")
	}
	if d.FailLink {
		return 0, d.LinkLog, errors.New("failed to link program")
	}
	h := d.handle()
	d.programs[h] = &program{source: vsrc + "\n" + fsrc, locations: make(map[string]int32)}
	return h, "", nil
}

func (d *Device) DeleteProgram(p uint32) {
	delete(d.programs, p)
	if d.current == p {
		d.current = 0
	}
}

func (d *Device) UseProgram(p uint32) { d.current = p }

// UniformLocation returns a location for any name that appears in the program text.
func (d *Device) UniformLocation(p uint32, name string) int32 {
	prog, ok := d.programs[p]
	if !ok || !strings.Contains(prog.source, name) {
		return -1
	}
	if loc, ok := prog.locations[name]; ok {
		return loc
	}
	loc := int32(len(d.names))
	d.names[loc] = name
	prog.locations[name] = loc
	return loc
}

func (d *Device) Uniform1f(location int32, v float32) {
	if name, ok := d.names[location]; ok {
		d.Uniforms[name] = v
	}
}

func (d *Device) Uniform1i(location int32, v int32) {
	if name, ok := d.names[location]; ok {
		d.SamplerUnits[name] = v
	}
}

func (d *Device) CreateVertexBuffer(vertices []float32) (uint32, error) {
	if len(vertices) == 0 || len(vertices)%2 != 0 {
		return 0, fmt.Errorf("gputest: %d floats is not a list of pairs", len(vertices))
	}
	h := d.handle()
	d.buffers[h] = len(vertices) / 2
	return h, nil
}

func (d *Device) DeleteVertexBuffer(buffer uint32) { delete(d.buffers, buffer) }

func (d *Device) CreateTexture(width, height int, pixels []byte) (uint32, error) {
	if len(pixels) != width*height*4 {
		return 0, fmt.Errorf("gputest: texture %dx%d given %d bytes", width, height, len(pixels))
	}
	h := d.handle()
	d.textures[h] = &texture{width: width, height: height, pixels: append([]byte(nil), pixels...)}
	return h, nil
}

func (d *Device) DeleteTexture(t uint32) { delete(d.textures, t) }

func (d *Device) CreatePixelBuffer(size int) (uint32, error) {
	h := d.handle()
	d.pbos[h] = size
	return h, nil
}

func (d *Device) DeletePixelBuffer(buffer uint32) { delete(d.pbos, buffer) }

func (d *Device) SetDepthTest(enabled bool) { d.DepthTest = enabled }

func (d *Device) Clear(r, g, b, a float32) {
	d.ClearColor = [4]float32{r, g, b, a}
	px := [4]byte{unorm(r), unorm(g), unorm(b), unorm(a)}
	for i := 0; i+4 <= len(d.framebuffer); i += 4 {
		copy(d.framebuffer[i:i+4], px[:])
	}
}

func (d *Device) DrawStrip(buffer uint32, tex uint32, count int) {
	d.Draws++
	d.DrawnCount = count
	if _, ok := d.buffers[buffer]; !ok {
		return
	}
	t, ok := d.textures[tex]
	if !ok || t.width != d.width || t.height != d.height {
		return
	}
	copy(d.framebuffer, t.pixels)
}

func (d *Device) ReadPixels(pixelBuffer uint32, width, height int, dst []byte) error {
	d.Readbacks++
	size, ok := d.pbos[pixelBuffer]
	if !ok {
		return errors.New("gputest: readback through unknown pixel buffer")
	}
	n := width * height * 4
	if n > size || n > len(dst) || n > len(d.framebuffer) {
		return fmt.Errorf("gputest: readback of %d bytes overflows", n)
	}
	copy(dst[:n], d.framebuffer[:n])
	return nil
}

func unorm(v float32) byte {
	return byte(math.Round(float64(min(max(v, 0), 1)) * 255))
}
