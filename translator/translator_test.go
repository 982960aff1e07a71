package translator

import (
	"strings"
	"testing"

	"github.com/richinsley/ggt/gpu"
	"github.com/richinsley/ggt/shader"
)

func TestTranslateMapsUniforms(t *testing.T) {
	pair := shader.Default()
	tests := []struct {
		stage  gpu.Stage
		source string
		names  []string
	}{
		{gpu.VertexStage, pair.Vertex, []string{"a", "b"}},
		{gpu.FragmentStage, pair.Fragment, []string{"sam", "c"}},
	}
	for _, gles := range []bool{false, true} {
		for _, tt := range tests {
			code, names, err := GLSL{}.Translate(tt.stage, tt.source, gles)
			if err != nil {
				t.Fatalf("Translate(%v, gles=%v) error = %v", tt.stage, gles, err)
			}
			if !strings.Contains(code, "void main") {
				t.Errorf("Translate(%v, gles=%v) code has no main:\n%s", tt.stage, gles, code)
			}
			for _, name := range tt.names {
				mapped, ok := names[name]
				if !ok || mapped == "" {
					t.Errorf("Translate(%v, gles=%v) names[%q] = %q, %v, want a mapped name", tt.stage, gles, name, mapped, ok)
					continue
				}
				if !strings.Contains(code, mapped) {
					t.Errorf("Translate(%v, gles=%v) code does not declare %q", tt.stage, gles, mapped)
				}
			}
		}
	}
}

func TestTranslateRejectsInvalidSource(t *testing.T) {
	src := "#version 300 es\nprecision highp float;\nvoid main() { undefined_call(); }\n"
	if _, _, err := (GLSL{}).Translate(gpu.FragmentStage, src, false); err == nil {
		t.Error("Translate(invalid) error = nil, want error")
	}
}

func TestGetTranslatorIsShared(t *testing.T) {
	a, err := GetTranslator()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GetTranslator()
	if a != b {
		t.Error("GetTranslator() returned two instances")
	}
}
