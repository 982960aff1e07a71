package renderer

import (
	"fmt"
	"time"

	"github.com/richinsley/ggt/gpu"
	"github.com/richinsley/ggt/host"
	"github.com/richinsley/ggt/options"
	"github.com/richinsley/ggt/shader"
	"github.com/sirupsen/logrus"
)

// samplerName is the source image sampler every fragment stage reads.
const samplerName = "sam"

// resources are the GPU objects of one build. Zero handles are not live.
type resources struct {
	context      bool
	program      uint32
	vertexBuffer uint32
	vertexCount  int
	texture      uint32
	pixelBuffer  uint32
	uniforms     map[string]int32
	sampler      int32
	bound        host.Rect
}

// GPUShader renders the source through a vertex and fragment shader pair
// drawn over a tessellated full-image strip.
type GPUShader struct {
	device     gpu.Device
	translator Translator
	shaders    shader.Pair
	log        logrus.FieldLogger

	res   resources
	built bool
}

var _ Backend = (*GPUShader)(nil)

// NewGPUShader creates a GPU back end. translator may be nil, in which case
// shader sources reach the driver unchanged.
func NewGPUShader(device gpu.Device, translator Translator, shaders shader.Pair, logger logrus.FieldLogger) *GPUShader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GPUShader{
		device:     device,
		translator: translator,
		shaders:    shaders,
		log:        logger.WithField("backend", "gpu"),
	}
}

func (g *GPUShader) Name() string { return "gpu" }

// Rebuild creates, in order, the context, program, geometry, texture and
// readback buffer for bound. Any failure releases everything built so far.
func (g *GPUShader) Rebuild(src host.Source, bound host.Rect, props *options.Properties) error {
	g.Release()
	start := time.Now()
	if err := g.rebuild(src, bound, props); err != nil {
		g.Release()
		return err
	}
	g.built = true
	g.log.WithFields(logrus.Fields{
		"bound":    bound.String(),
		"vertices": g.res.vertexCount,
		"elapsed":  time.Since(start),
	}).Info("GPU pipeline rebuilt")
	return nil
}

func (g *GPUShader) rebuild(src host.Source, bound host.Rect, props *options.Properties) error {
	g.res.bound = bound
	if err := g.ensureContext(bound.Width, bound.Height); err != nil {
		return err
	}

	vs, fs := g.shaders.Vertex, g.shaders.Fragment
	if props.VertexShader != "" {
		vs = props.VertexShader
	}
	if props.FragmentShader != "" {
		fs = props.FragmentShader
	}
	names, err := g.compileProgram(vs, fs)
	if err != nil {
		return err
	}
	g.lookupUniforms(names, props.Params())

	cols, rows := bound.Width, bound.Height
	if props.XVert > 0 {
		cols = props.XVert
	}
	if props.YVert > 0 {
		rows = props.YVert
	}
	if err := g.buildFullImageStrip(max(2, cols), max(2, rows)); err != nil {
		return err
	}
	if err := g.loadSourceTexture(src, bound); err != nil {
		return err
	}
	if g.res.pixelBuffer, err = g.device.CreatePixelBuffer(bound.Width * bound.Height * host.BytesPerPixel); err != nil {
		return err
	}
	g.device.SetDepthTest(props.DepthTest)
	return nil
}

func (g *GPUShader) ensureContext(width, height int) error {
	if err := g.device.CreateContext(width, height); err != nil {
		return &ContextCreationError{Width: width, Height: height, Err: err}
	}
	g.res.context = true
	return nil
}

// compileProgram compiles and links the pair and returns the mapping from
// declared to translated variable names.
func (g *GPUShader) compileProgram(vertexSrc, fragmentSrc string) (map[string]string, error) {
	names := make(map[string]string)
	vs, err := g.compileStage(gpu.VertexStage, vertexSrc, names)
	if err != nil {
		return nil, err
	}
	defer g.device.DeleteShader(vs)
	fs, err := g.compileStage(gpu.FragmentStage, fragmentSrc, names)
	if err != nil {
		return nil, err
	}
	defer g.device.DeleteShader(fs)

	program, linkLog, err := g.device.LinkProgram(vs, fs)
	if err != nil {
		if linkLog == "" {
			linkLog = err.Error()
		}
		return nil, &ShaderLinkError{Log: linkLog}
	}
	g.res.program = program
	return names, nil
}

func (g *GPUShader) compileStage(stage gpu.Stage, source string, names map[string]string) (uint32, error) {
	code := source
	if g.translator != nil {
		translated, mapped, err := g.translator.Translate(stage, source, g.device.IsGLES())
		if err != nil {
			return 0, &ShaderCompileError{Stage: stage, Log: err.Error(), Source: source}
		}
		code = translated
		for k, v := range mapped {
			names[k] = v
		}
	}
	id, compileLog, err := g.device.CompileShader(stage, code)
	if err != nil {
		if compileLog == "" {
			compileLog = err.Error()
		}
		ce := &ShaderCompileError{Stage: stage, Log: compileLog, Source: source}
		if code != source {
			ce.Translated = code
		}
		return 0, ce
	}
	return id, nil
}

func (g *GPUShader) uniformLocation(names map[string]string, name string) int32 {
	if mapped, ok := names[name]; ok {
		name = mapped
	}
	return g.device.UniformLocation(g.res.program, name)
}

func (g *GPUShader) lookupUniforms(names map[string]string, params options.Params) {
	g.res.uniforms = make(map[string]int32, len(params))
	for name := range params {
		if loc := g.uniformLocation(names, name); loc >= 0 {
			g.res.uniforms[name] = loc
		}
	}
	g.res.sampler = g.uniformLocation(names, samplerName)
	if g.res.sampler < 0 {
		g.log.Warn("program does not use the source sampler")
	}
	g.log.WithField("uniforms", len(g.res.uniforms)).Debug("uniform locations resolved")
}

func (g *GPUShader) buildFullImageStrip(cols, rows int) error {
	vertices := BuildFullImageStrip(cols, rows)
	buffer, err := g.device.CreateVertexBuffer(vertices)
	if err != nil {
		return fmt.Errorf("failed to upload %dx%d vertex strip: %w", cols, rows, err)
	}
	g.res.vertexBuffer = buffer
	g.res.vertexCount = StripVertexCount(cols, rows)
	return nil
}

func (g *GPUShader) loadSourceTexture(src host.Source, bound host.Rect) error {
	pixels, err := src.ReadRegion(bound)
	if err != nil {
		return fmt.Errorf("failed to read source %s: %w", bound, err)
	}
	texture, err := g.device.CreateTexture(bound.Width, bound.Height, pixels)
	if err != nil {
		return fmt.Errorf("failed to upload source texture: %w", err)
	}
	g.res.texture = texture
	return nil
}

// Draw sets the uniforms, draws the strip and reads the target into staging.
func (g *GPUShader) Draw(params options.Params, staging []byte) error {
	if !g.built {
		return ErrNotBuilt
	}
	g.device.UseProgram(g.res.program)
	g.device.Uniform1i(g.res.sampler, 0)
	for name, v := range params {
		if loc, ok := g.res.uniforms[name]; ok {
			g.device.Uniform1f(loc, v)
		}
	}
	g.device.Clear(0, 0, 0, 0)
	g.device.DrawStrip(g.res.vertexBuffer, g.res.texture, g.res.vertexCount)
	if err := g.device.ReadPixels(g.res.pixelBuffer, g.res.bound.Width, g.res.bound.Height, staging); err != nil {
		return fmt.Errorf("readback failed: %w", err)
	}
	return nil
}

// Release deletes every live handle in reverse creation order.
func (g *GPUShader) Release() {
	g.built = false
	r := &g.res
	if !r.context {
		*r = resources{}
		return
	}
	g.device.DeletePixelBuffer(r.pixelBuffer)
	g.device.DeleteTexture(r.texture)
	g.device.DeleteVertexBuffer(r.vertexBuffer)
	g.device.DeleteProgram(r.program)
	g.device.DestroyContext()
	*r = resources{}
}
