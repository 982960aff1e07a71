// Package gpu describes the part of a 3D graphics API the filter pipeline
// drives, and provides an OpenGL implementation of it.
//
// Handles are plain uint32 names; zero never names a live object, and every
// Delete* method accepts zero as a no-op.
package gpu

// Stage identifies a programmable pipeline stage.
type Stage int

const (
	VertexStage Stage = iota
	FragmentStage
)

func (s Stage) String() string {
	switch s {
	case VertexStage:
		return "vertex"
	case FragmentStage:
		return "fragment"
	default:
		return "unknown"
	}
}

// Device is a rendering API bound to at most one context at a time.
// All methods must be called from the thread that created the context.
type Device interface {
	// CreateContext creates an off-screen render target of width×height and
	// makes it current. Any previous context is destroyed first.
	CreateContext(width, height int) error
	DestroyContext()
	// IsGLES reports whether the current context speaks GLSL ES.
	IsGLES() bool

	// CompileShader returns the shader name, or the driver's info log and a
	// non-nil error when compilation fails. A failed shader is not retained.
	CompileShader(stage Stage, source string) (uint32, string, error)
	DeleteShader(shader uint32)
	// LinkProgram links vs and fs. On failure the program is not retained and
	// the info log is returned alongside the error.
	LinkProgram(vs, fs uint32) (uint32, string, error)
	DeleteProgram(program uint32)
	UseProgram(program uint32)
	// UniformLocation returns -1 for names the program does not use.
	UniformLocation(program uint32, name string) int32
	Uniform1f(location int32, v float32)
	Uniform1i(location int32, v int32)

	// CreateVertexBuffer uploads interleaved (x, y) float pairs bound to attribute 0.
	CreateVertexBuffer(vertices []float32) (uint32, error)
	DeleteVertexBuffer(buffer uint32)
	// CreateTexture uploads tightly packed RGBA8 rows with nearest filtering.
	CreateTexture(width, height int, pixels []byte) (uint32, error)
	DeleteTexture(texture uint32)
	// CreatePixelBuffer allocates a readback buffer of size bytes.
	CreatePixelBuffer(size int) (uint32, error)
	DeletePixelBuffer(buffer uint32)

	SetDepthTest(enabled bool)
	// Clear clears color to (r, g, b, a) and depth to 1.
	Clear(r, g, b, a float32)
	// DrawStrip binds texture to unit 0 and draws count vertices of buffer as a triangle strip.
	DrawStrip(buffer uint32, texture uint32, count int)
	// ReadPixels reads the whole render target through pixelBuffer into dst.
	// It returns only once the pixels of every previously issued draw are in dst.
	ReadPixels(pixelBuffer uint32, width, height int, dst []byte) error
}
