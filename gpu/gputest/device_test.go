package gputest

import (
	"bytes"
	"testing"

	"github.com/richinsley/ggt/gpu"
)

func TestHandleAccounting(t *testing.T) {
	d := New()
	if err := d.CreateContext(2, 1); err != nil {
		t.Fatal(err)
	}
	vs, _, err := d.CompileShader(gpu.VertexStage, "void main() {}")
	if err != nil {
		t.Fatal(err)
	}
	fs, _, err := d.CompileShader(gpu.FragmentStage, "void main() {}")
	if err != nil {
		t.Fatal(err)
	}
	p, _, err := d.LinkProgram(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	d.DeleteShader(vs)
	d.DeleteShader(fs)
	if got := d.Live(); got != 2 {
		t.Errorf("Live() = %d, want 2", got)
	}
	d.DeleteProgram(p)
	d.DeleteProgram(0)
	d.DestroyContext()
	d.DestroyContext()
	if got := d.Live(); got != 0 {
		t.Errorf("Live() = %d, want 0", got)
	}
}

func TestCompileFailure(t *testing.T) {
	d := New()
	if err := d.CreateContext(1, 1); err != nil {
		t.Fatal(err)
	}
	_, log, err := d.CompileShader(gpu.FragmentStage, "#error nope\nvoid main() {}")
	if err == nil || log != "ERROR: 0:1: '#error nope'" {
		t.Errorf("CompileShader(#error) = %q, %v", log, err)
	}
	if _, _, err := d.CompileShader(gpu.VertexStage, "int x;"); err == nil {
		t.Error("CompileShader(no main) error = nil, want error")
	}
	if d.Live() != 1 {
		t.Errorf("Live() = %d, want 1", d.Live())
	}
}

func TestPassThroughDraw(t *testing.T) {
	d := New()
	if err := d.CreateContext(2, 1); err != nil {
		t.Fatal(err)
	}
	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	tex, err := d.CreateTexture(2, 1, pixels)
	if err != nil {
		t.Fatal(err)
	}
	vb, err := d.CreateVertexBuffer([]float32{-1, -1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	pbo, _ := d.CreatePixelBuffer(8)

	d.Clear(1, 0, 0, 1)
	out := make([]byte, 8)
	if err := d.ReadPixels(pbo, 2, 1, out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, []byte{255, 0, 0, 255, 255, 0, 0, 255}) {
		t.Errorf("ReadPixels() after Clear = %v", out)
	}

	d.DrawStrip(vb, tex, 4)
	if err := d.ReadPixels(pbo, 2, 1, out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, pixels) {
		t.Errorf("ReadPixels() after DrawStrip = %v, want %v", out, pixels)
	}
}
