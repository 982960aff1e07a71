package main

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/richinsley/ggt/host"
	"github.com/richinsley/ggt/pipeline"
	"github.com/richinsley/ggt/renderer"
)

func TestParseSweep(t *testing.T) {
	tests := []struct {
		in      string
		want    sweep
		wantErr bool
	}{
		{"a=-1:1", sweep{prop: "a", from: -1, to: 1}, false},
		{"rotate_z=0:3.14", sweep{prop: "rotate_z", from: 0, to: 3.14}, false},
		{"a", sweep{}, true},
		{"a=1", sweep{}, true},
		{"a=x:1", sweep{}, true},
		{"a=0:y", sweep{}, true},
	}
	for _, tt := range tests {
		got, err := parseSweep(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSweep(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSweep(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestRenderTilesWithCPUBackend(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 7, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 40), B: 9, A: 255})
		}
	}
	src := host.NewImageSource(img)
	op := pipeline.New(renderer.NewCPURemap(renderer.Lens, nil), nil, nil)

	sink, err := render(context.Background(), op, src, 3)
	if err != nil {
		t.Fatalf("render() error = %v", err)
	}
	want, _ := src.ReadRegion(src.BoundingBox())
	for i := range want {
		if sink.RGBA.Pix[i] != want[i] {
			t.Fatalf("render() byte %d = %d, want %d", i, sink.RGBA.Pix[i], want[i])
		}
	}
	if stats := op.Stats(); stats.Rebuilds != 1 || stats.Draws != 1 {
		t.Errorf("Rebuilds, Draws = %d, %d, want 1, 1", stats.Rebuilds, stats.Draws)
	}

	out := filepath.Join(t.TempDir(), "out.png")
	if err := writePNG(out, sink.RGBA); err != nil {
		t.Fatal(err)
	}
	back, err := loadImage(out)
	if err != nil {
		t.Fatal(err)
	}
	if back.Bounds() != img.Bounds() {
		t.Errorf("loadImage() bounds = %v, want %v", back.Bounds(), img.Bounds())
	}
}
