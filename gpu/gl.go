package gpu

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/ggt/graphics"
	"github.com/sirupsen/logrus"
)

var (
	glInitOnce sync.Once
	// glInitErr is the result of the one gl.Init call, seen by every context.
	glInitErr error
)

func initGL() error {
	glInitOnce.Do(func() {
		glInitErr = gl.Init()
	})
	return glInitErr
}

// readbackTimeout bounds the fence wait before a readback is declared failed.
const readbackTimeout = 5 * time.Second

// target is the off-screen framebuffer every draw lands in.
type target struct {
	fbo               uint32
	textureID         uint32
	depthRenderbuffer uint32
	width             int
	height            int
}

// GLDevice implements Device on desktop GL 4.1 core or GLES 3.
type GLDevice struct {
	newContext graphics.Factory
	log        logrus.FieldLogger

	context graphics.Context
	target  target
	vaos    map[uint32]uint32 // vertex buffer -> vertex array
}

// NewGLDevice creates a device whose contexts come from factory.
func NewGLDevice(factory graphics.Factory, logger logrus.FieldLogger) *GLDevice {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GLDevice{
		newContext: factory,
		log:        logger.WithField("component", "gl"),
		vaos:       make(map[uint32]uint32),
	}
}

func (d *GLDevice) CreateContext(width, height int) error {
	d.DestroyContext()

	ctx, err := d.newContext(width, height)
	if err != nil {
		return err
	}
	ctx.MakeCurrent()

	if err := initGL(); err != nil {
		ctx.Shutdown()
		return fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	d.context = ctx

	if err := d.createTarget(width, height); err != nil {
		d.DestroyContext()
		return err
	}
	d.log.WithFields(logrus.Fields{
		"width":    width,
		"height":   height,
		"gles":     ctx.IsGLES(),
		"renderer": gl.GoStr(gl.GetString(gl.RENDERER)),
	}).Info("GL context created")
	return nil
}

func (d *GLDevice) createTarget(width, height int) error {
	t := target{width: width, height: height}
	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.GenTextures(1, &t.textureID)
	gl.BindTexture(gl.TEXTURE_2D, t.textureID)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.textureID, 0)
	gl.GenRenderbuffers(1, &t.depthRenderbuffer)
	gl.BindRenderbuffer(gl.RENDERBUFFER, t.depthRenderbuffer)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, int32(width), int32(height))
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, t.depthRenderbuffer)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	d.target = t
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("offscreen framebuffer is not complete: 0x%x", status)
	}
	gl.Viewport(0, 0, int32(width), int32(height))
	return nil
}

func (d *GLDevice) DestroyContext() {
	if d.context == nil {
		return
	}
	d.context.MakeCurrent()
	for vbo, vao := range d.vaos {
		gl.DeleteVertexArrays(1, &vao)
		gl.DeleteBuffers(1, &vbo)
	}
	clear(d.vaos)
	if d.target.fbo != 0 {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		gl.DeleteFramebuffers(1, &d.target.fbo)
		gl.DeleteTextures(1, &d.target.textureID)
		gl.DeleteRenderbuffers(1, &d.target.depthRenderbuffer)
	}
	d.target = target{}
	d.context.Shutdown()
	d.context = nil
}

func (d *GLDevice) IsGLES() bool {
	return d.context != nil && d.context.IsGLES()
}

func (d *GLDevice) CompileShader(stage Stage, source string) (uint32, string, error) {
	var shaderType uint32 = gl.VERTEX_SHADER
	if stage == FragmentStage {
		shaderType = gl.FRAGMENT_SHADER
	}
	shader := gl.CreateShader(shaderType)
	if shader == 0 {
		return 0, "", fmt.Errorf("glCreateShader(%s) returned 0", stage)
	}
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(logText))
		gl.DeleteShader(shader)
		return 0, strings.TrimRight(logText, "\x00"), fmt.Errorf("failed to compile %s shader", stage)
	}
	return shader, "", nil
}

func (d *GLDevice) DeleteShader(shader uint32) {
	if shader != 0 {
		gl.DeleteShader(shader)
	}
}

func (d *GLDevice) LinkProgram(vs, fs uint32) (uint32, string, error) {
	program := gl.CreateProgram()
	if program == 0 {
		return 0, "", fmt.Errorf("glCreateProgram returned 0")
	}
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.BindAttribLocation(program, 0, gl.Str("icv\x00"))
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(logText))
		gl.DeleteProgram(program)
		return 0, strings.TrimRight(logText, "\x00"), fmt.Errorf("failed to link program")
	}
	gl.DetachShader(program, vs)
	gl.DetachShader(program, fs)
	return program, "", nil
}

func (d *GLDevice) DeleteProgram(program uint32) {
	if program != 0 {
		gl.DeleteProgram(program)
	}
}

func (d *GLDevice) UseProgram(program uint32) {
	gl.UseProgram(program)
}

func (d *GLDevice) UniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func (d *GLDevice) Uniform1f(location int32, v float32) {
	if location >= 0 {
		gl.Uniform1f(location, v)
	}
}

func (d *GLDevice) Uniform1i(location int32, v int32) {
	if location >= 0 {
		gl.Uniform1i(location, v)
	}
}

func (d *GLDevice) CreateVertexBuffer(vertices []float32) (uint32, error) {
	if len(vertices) == 0 || len(vertices)%2 != 0 {
		return 0, fmt.Errorf("vertex data must be non-empty (x, y) pairs, got %d floats", len(vertices))
	}
	var vao, vbo uint32
	gl.GenVertexArrays(1, &vao)
	gl.GenBuffers(1, &vbo)
	gl.BindVertexArray(vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
	if e := gl.GetError(); e != gl.NO_ERROR {
		gl.DeleteVertexArrays(1, &vao)
		gl.DeleteBuffers(1, &vbo)
		return 0, fmt.Errorf("vertex upload failed: GL error 0x%x", e)
	}
	d.vaos[vbo] = vao
	return vbo, nil
}

func (d *GLDevice) DeleteVertexBuffer(buffer uint32) {
	vao, ok := d.vaos[buffer]
	if !ok {
		return
	}
	gl.DeleteVertexArrays(1, &vao)
	gl.DeleteBuffers(1, &buffer)
	delete(d.vaos, buffer)
}

func (d *GLDevice) CreateTexture(width, height int, pixels []byte) (uint32, error) {
	if len(pixels) != width*height*4 {
		return 0, fmt.Errorf("texture %dx%d needs %d bytes, got %d", width, height, width*height*4, len(pixels))
	}
	var texture uint32
	gl.GenTextures(1, &texture)
	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if e := gl.GetError(); e != gl.NO_ERROR {
		gl.DeleteTextures(1, &texture)
		return 0, fmt.Errorf("texture upload failed: GL error 0x%x", e)
	}
	return texture, nil
}

func (d *GLDevice) DeleteTexture(texture uint32) {
	if texture != 0 {
		gl.DeleteTextures(1, &texture)
	}
}

func (d *GLDevice) CreatePixelBuffer(size int) (uint32, error) {
	var pbo uint32
	gl.GenBuffers(1, &pbo)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, pbo)
	gl.BufferData(gl.PIXEL_PACK_BUFFER, size, nil, gl.STREAM_READ)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	if e := gl.GetError(); e != gl.NO_ERROR {
		gl.DeleteBuffers(1, &pbo)
		return 0, fmt.Errorf("pixel buffer allocation failed: GL error 0x%x", e)
	}
	return pbo, nil
}

func (d *GLDevice) DeletePixelBuffer(buffer uint32) {
	if buffer != 0 {
		gl.DeleteBuffers(1, &buffer)
	}
}

func (d *GLDevice) SetDepthTest(enabled bool) {
	if enabled {
		gl.Enable(gl.DEPTH_TEST)
		gl.DepthFunc(gl.LESS)
		return
	}
	gl.Disable(gl.DEPTH_TEST)
}

func (d *GLDevice) Clear(r, g, b, a float32) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, d.target.fbo)
	gl.ClearColor(r, g, b, a)
	gl.ClearDepthf(1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

func (d *GLDevice) DrawStrip(buffer uint32, texture uint32, count int) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, d.target.fbo)
	gl.Viewport(0, 0, int32(d.target.width), int32(d.target.height))
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, texture)
	gl.BindVertexArray(d.vaos[buffer])
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, int32(count))
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

// ReadPixels packs the target into pixelBuffer, fences, waits for the fence,
// and only then maps the buffer and copies it out.
func (d *GLDevice) ReadPixels(pixelBuffer uint32, width, height int, dst []byte) error {
	size := width * height * 4
	if len(dst) < size {
		return fmt.Errorf("readback destination holds %d bytes, need %d", len(dst), size)
	}
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, d.target.fbo)
	gl.ReadBuffer(gl.COLOR_ATTACHMENT0)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, pixelBuffer)
	defer gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, nil)

	fence := gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	defer gl.DeleteSync(fence)
	switch gl.ClientWaitSync(fence, gl.SYNC_FLUSH_COMMANDS_BIT, uint64(readbackTimeout.Nanoseconds())) {
	case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
	case gl.TIMEOUT_EXPIRED:
		return fmt.Errorf("readback fence not signaled after %v", readbackTimeout)
	default:
		return fmt.Errorf("readback fence wait failed: GL error 0x%x", gl.GetError())
	}

	ptr := gl.MapBufferRange(gl.PIXEL_PACK_BUFFER, 0, size, gl.MAP_READ_BIT)
	if ptr == nil {
		return fmt.Errorf("failed to map pixel buffer: GL error 0x%x", gl.GetError())
	}
	copy(dst[:size], unsafe.Slice((*byte)(ptr), size))
	gl.UnmapBuffer(gl.PIXEL_PACK_BUFFER)
	return nil
}
