package renderer

import (
	"bytes"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/richinsley/ggt/gpu"
	"github.com/richinsley/ggt/gpu/gputest"
	"github.com/richinsley/ggt/host"
	"github.com/richinsley/ggt/options"
	"github.com/richinsley/ggt/shader"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = byte(i*7 + 3)
	}
	return img
}

func TestBuildFullImageStrip(t *testing.T) {
	for _, size := range [][2]int{{2, 2}, {3, 2}, {2, 5}, {4, 4}, {17, 9}, {64, 64}} {
		w, h := size[0], size[1]
		v := BuildFullImageStrip(w, h)
		if got, want := len(v)/2, 2*(w+1)*h; got != want {
			t.Errorf("BuildFullImageStrip(%d, %d) vertices = %d, want %d", w, h, got, want)
		}
		if got := StripVertexCount(w, h); got != len(v)/2 {
			t.Errorf("StripVertexCount(%d, %d) = %d, want %d", w, h, got, len(v)/2)
		}
	}
}

func TestBuildFullImageStripLayout(t *testing.T) {
	v := BuildFullImageStrip(2, 2)
	want := []float32{
		-1, -1, -1, 1, 1, -1, 1, 1, 1, 1, -1, 1,
		-1, 1, -1, 3, 1, 1, 1, 3, 1, 3, -1, 3,
	}
	if len(v) != len(want) {
		t.Fatalf("BuildFullImageStrip(2, 2) len = %d, want %d", len(v), len(want))
	}
	for i := range want {
		if v[i] != want[i] {
			t.Errorf("BuildFullImageStrip(2, 2)[%d] = %v, want %v", i, v[i], want[i])
		}
	}
}

func TestRegistry(t *testing.T) {
	names := Available()
	for _, want := range []string{"gpu", "lens", "sphere"} {
		found := false
		for _, n := range names {
			found = found || n == want
		}
		if !found {
			t.Errorf("Available() = %v, missing %q", names, want)
		}
	}
	if _, err := New("nope", Config{}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("New(nope) error = %v, want ErrUnknownBackend", err)
	}
	if _, err := New("gpu", Config{}); err == nil {
		t.Error("New(gpu) without device error = nil, want error")
	}
	b, err := New("lens", Config{})
	if err != nil || b.Name() != "lens" {
		t.Errorf("New(lens) = %v, %v", b, err)
	}
}

func TestLensIdentity(t *testing.T) {
	img := testImage(5, 3)
	src := host.NewImageSource(img)
	bound := src.BoundingBox()

	r := NewCPURemap(Lens, nil)
	if err := r.Draw(nil, nil); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("Draw() before Rebuild error = %v, want ErrNotBuilt", err)
	}
	if err := r.Rebuild(src, bound, options.Defaults()); err != nil {
		t.Fatal(err)
	}
	staging := make([]byte, bound.Size())
	if err := r.Draw(options.Defaults().Params(), staging); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(staging, img.Pix) {
		t.Error("lens remap with zero coefficients is not the identity")
	}
}

func TestLensShrinkLeavesTransparentBorder(t *testing.T) {
	img := testImage(8, 8)
	src := host.NewImageSource(img)
	r := NewCPURemap(Lens, nil)
	if err := r.Rebuild(src, src.BoundingBox(), nil); err != nil {
		t.Fatal(err)
	}
	props := options.Defaults()
	props.Scale = 0.5
	staging := make([]byte, src.BoundingBox().Size())
	if err := r.Draw(props.Params(), staging); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(staging[:4], []byte{0, 0, 0, 0}) {
		t.Errorf("corner pixel = %v, want transparent", staging[:4])
	}
}

func TestSphereCentre(t *testing.T) {
	// With no rotation the disc centre looks down +z, which is the centre of
	// the equirectangular map.
	img := testImage(9, 9)
	src := host.NewImageSource(img)
	r := NewCPURemap(Sphere, nil)
	if err := r.Rebuild(src, src.BoundingBox(), nil); err != nil {
		t.Fatal(err)
	}
	staging := make([]byte, src.BoundingBox().Size())
	if err := r.Draw(options.Defaults().Params(), staging); err != nil {
		t.Fatal(err)
	}
	centre := img.PixOffset(4, 4)
	if !bytes.Equal(staging[centre:centre+4], img.Pix[centre:centre+4]) {
		t.Errorf("centre = %v, want %v", staging[centre:centre+4], img.Pix[centre:centre+4])
	}
	if !bytes.Equal(staging[:4], []byte{0, 0, 0, 0}) {
		t.Errorf("corner outside the disc = %v, want transparent", staging[:4])
	}
}

func newGPU(dev *gputest.Device) *GPUShader {
	return NewGPUShader(dev, nil, shader.Identity(), nil)
}

func TestGPUIdentityRoundTrip(t *testing.T) {
	img := testImage(4, 3)
	src := host.NewImageSource(img)
	bound := src.BoundingBox()
	dev := gputest.New()
	g := newGPU(dev)

	if err := g.Rebuild(src, bound, options.Defaults()); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	staging := make([]byte, bound.Size())
	if err := g.Draw(options.Defaults().Params(), staging); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if !bytes.Equal(staging, img.Pix) {
		t.Error("identity pipeline did not reproduce the source")
	}
	if dev.DrawnCount != StripVertexCount(4, 3) {
		t.Errorf("draw count = %d, want %d", dev.DrawnCount, StripVertexCount(4, 3))
	}
	if unit, ok := dev.SamplerUnits["sam"]; !ok || unit != 0 {
		t.Errorf("sampler unit = %d, %v, want 0, true", unit, ok)
	}
	if dev.DepthTest {
		t.Error("depth test enabled by default")
	}
}

func TestGPUTessellationOverride(t *testing.T) {
	src := host.NewImageSource(testImage(4, 4))
	dev := gputest.New()
	g := newGPU(dev)
	props := options.Defaults()
	props.XVert, props.YVert, props.DepthTest = 1, 7, true
	if err := g.Rebuild(src, src.BoundingBox(), props); err != nil {
		t.Fatal(err)
	}
	// XVert raises to the minimum of two columns.
	props.XVert = 100
	if err := g.Draw(props.Params(), make([]byte, src.BoundingBox().Size())); err != nil {
		t.Fatal(err)
	}
	if want := StripVertexCount(2, 7); dev.DrawnCount != want {
		t.Errorf("draw count = %d, want %d", dev.DrawnCount, want)
	}
	if !dev.DepthTest {
		t.Error("depth test not enabled")
	}
}

func TestGPUUniforms(t *testing.T) {
	src := host.NewImageSource(testImage(2, 2))
	dev := gputest.New()
	g := NewGPUShader(dev, nil, shader.Default(), nil)
	if err := g.Rebuild(src, src.BoundingBox(), options.Defaults()); err != nil {
		t.Fatal(err)
	}
	props := options.Defaults()
	props.A, props.C = 0.25, -0.5
	if err := g.Draw(props.Params(), make([]byte, 16)); err != nil {
		t.Fatal(err)
	}
	if dev.Uniforms["a"] != 0.25 || dev.Uniforms["c"] != -0.5 {
		t.Errorf("uniforms = %v, want a=0.25 c=-0.5", dev.Uniforms)
	}
	if _, ok := dev.Uniforms["rotate_x"]; ok {
		t.Error("uniform set for a name the program does not declare")
	}
	if dev.Compiles != 2 || dev.Links != 1 {
		t.Errorf("compiles, links = %d, %d, want 2, 1", dev.Compiles, dev.Links)
	}
}

func TestGPUCompileError(t *testing.T) {
	src := host.NewImageSource(testImage(2, 2))
	dev := gputest.New()
	g := newGPU(dev)
	props := options.Defaults()
	props.FragmentShader = "#version 300 es\n#error broken on purpose\nvoid main() {}\n"

	err := g.Rebuild(src, src.BoundingBox(), props)
	var ce *ShaderCompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Rebuild() error = %v, want *ShaderCompileError", err)
	}
	if ce.Stage != gpu.FragmentStage {
		t.Errorf("Stage = %v, want fragment", ce.Stage)
	}
	if !strings.Contains(ce.Log, "broken on purpose") || !strings.Contains(err.Error(), "broken on purpose") {
		t.Errorf("error does not carry the compiler log: %v", err)
	}
	if ce.Source != props.FragmentShader {
		t.Error("error does not carry the failing source")
	}
	if dev.Live() != 0 || dev.ContextLive() {
		t.Errorf("live handles after failure = %d, want 0", dev.Live())
	}
	if err := g.Draw(nil, make([]byte, 16)); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("Draw() after failed Rebuild error = %v, want ErrNotBuilt", err)
	}
}

func TestGPULinkError(t *testing.T) {
	src := host.NewImageSource(testImage(2, 2))
	dev := gputest.New()
	dev.FailLink, dev.LinkLog = true, "varying icf not written"
	g := newGPU(dev)

	err := g.Rebuild(src, src.BoundingBox(), options.Defaults())
	var le *ShaderLinkError
	if !errors.As(err, &le) || le.Log != "varying icf not written" {
		t.Fatalf("Rebuild() error = %v, want *ShaderLinkError with log", err)
	}
	if dev.Live() != 0 {
		t.Errorf("live handles after link failure = %d, want 0", dev.Live())
	}
}

func TestGPUContextError(t *testing.T) {
	src := host.NewImageSource(testImage(3, 2))
	dev := gputest.New()
	dev.FailContext = true
	g := newGPU(dev)

	err := g.Rebuild(src, src.BoundingBox(), options.Defaults())
	var ce *ContextCreationError
	if !errors.As(err, &ce) {
		t.Fatalf("Rebuild() error = %v, want *ContextCreationError", err)
	}
	if ce.Width != 3 || ce.Height != 2 || !errors.Is(err, gputest.ErrContext) {
		t.Errorf("ContextCreationError = %+v", ce)
	}
}

func TestGPURebuildReleasesPrevious(t *testing.T) {
	src := host.NewImageSource(testImage(3, 3))
	dev := gputest.New()
	g := newGPU(dev)
	for i := 0; i < 3; i++ {
		if err := g.Rebuild(src, src.BoundingBox(), options.Defaults()); err != nil {
			t.Fatal(err)
		}
	}
	// context, program, vertex buffer, texture, pixel buffer
	if dev.Live() != 5 {
		t.Errorf("live handles = %d, want 5", dev.Live())
	}
	g.Release()
	g.Release()
	if dev.Live() != 0 {
		t.Errorf("live handles after Release() = %d, want 0", dev.Live())
	}
}

// breakingTranslator emits code the driver rejects, renaming uniforms on the way.
type breakingTranslator struct{}

func (breakingTranslator) Translate(stage gpu.Stage, source string, _ bool) (string, map[string]string, error) {
	return "#version 410\n#error driver rejects translated code\n" + source, map[string]string{"sam": "_usam"}, nil
}

func TestGPUCompileErrorKeepsUserSource(t *testing.T) {
	src := host.NewImageSource(testImage(2, 2))
	dev := gputest.New()
	pair := shader.Identity()
	g := NewGPUShader(dev, breakingTranslator{}, pair, nil)

	err := g.Rebuild(src, src.BoundingBox(), options.Defaults())
	var ce *ShaderCompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Rebuild() error = %v, want *ShaderCompileError", err)
	}
	if ce.Source != pair.Vertex {
		t.Errorf("Source = %q, want the vertex shader as written", ce.Source)
	}
	if !strings.HasPrefix(ce.Translated, "#version 410\n") {
		t.Errorf("Translated = %q, want the translated code", ce.Translated)
	}
	msg := err.Error()
	if !strings.Contains(msg, "--- source ---") || !strings.Contains(msg, "--- translated ---") {
		t.Errorf("Error() lacks source and translated listings:\n%s", msg)
	}
	if strings.Index(msg, "--- source ---") > strings.Index(msg, "--- translated ---") {
		t.Error("Error() lists the translated code before the user's source")
	}
}
