package encoder

import (
	"fmt"
	"testing"
)

func TestGetArgs(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		codec string
		tag   string
		pad   bool
	}{
		{"h264", Config{Width: 64, Height: 32, FPS: 30, Codec: "h264", OutputFile: "out.mp4"}, "libx264", "", false},
		{"hevc mp4", Config{Width: 64, Height: 32, FPS: 30, Codec: "hevc", OutputFile: "out.MP4"}, "libx265", "hvc1", false},
		{"hevc mkv", Config{Width: 64, Height: 32, FPS: 30, Codec: "hevc", OutputFile: "out.mkv"}, "libx265", "", false},
		{"odd size", Config{Width: 5, Height: 3, FPS: 24, OutputFile: "out.mp4"}, "libx264", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := getArgs(tt.cfg)
			if in["format"] != "rawvideo" || in["pix_fmt"] != "rgba" {
				t.Errorf("input args = %v, want raw rgba", in)
			}
			if got := in["s"]; got != sizeString(tt.cfg) {
				t.Errorf("input size = %v, want %v", got, sizeString(tt.cfg))
			}
			if out["c:v"] != tt.codec {
				t.Errorf("codec = %v, want %v", out["c:v"], tt.codec)
			}
			tag, _ := out["tag:v"].(string)
			if tag != tt.tag {
				t.Errorf("tag = %q, want %q", tag, tt.tag)
			}
			if _, ok := out["vf"]; ok != tt.pad {
				t.Errorf("pad filter present = %v, want %v", ok, tt.pad)
			}
		})
	}
}

func sizeString(cfg Config) string {
	return fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
}

func TestStartValidates(t *testing.T) {
	if _, err := Start(Config{Width: 0, Height: 2, FPS: 1, OutputFile: "x.mp4"}); err == nil {
		t.Error("Start(zero width) error = nil, want error")
	}
	if _, err := Start(Config{Width: 2, Height: 2, FPS: 1}); err == nil {
		t.Error("Start(no output) error = nil, want error")
	}
}
