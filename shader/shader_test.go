package shader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuiltins(t *testing.T) {
	names := Builtins()
	if len(names) != 2 || names[0] != "ggt" || names[1] != "identity" {
		t.Fatalf("Builtins() = %v, want [ggt identity]", names)
	}
	for _, name := range names {
		p, err := Builtin(name)
		if err != nil {
			t.Fatalf("Builtin(%q) error = %v", name, err)
		}
		for _, src := range []string{p.Vertex, p.Fragment} {
			if !strings.HasPrefix(src, "#version 300 es") {
				t.Errorf("Builtin(%q) source does not start with #version 300 es", name)
			}
			if !strings.Contains(src, "void main") {
				t.Errorf("Builtin(%q) source has no main", name)
			}
		}
		if !strings.Contains(p.Vertex, "location = 0) in vec2 icv") {
			t.Errorf("Builtin(%q) vertex stage does not take icv at location 0", name)
		}
		if !strings.Contains(p.Fragment, "uniform sampler2D sam") {
			t.Errorf("Builtin(%q) fragment stage does not sample sam", name)
		}
	}
	if _, err := Builtin("nope"); err == nil {
		t.Error("Builtin(nope) error = nil, want error")
	}
}

func TestLoadPair(t *testing.T) {
	dir := t.TempDir()
	fs := filepath.Join(dir, "f.glsl")
	if err := os.WriteFile(fs, []byte("fragment text"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPair("", fs, Identity())
	if err != nil {
		t.Fatalf("LoadPair() error = %v", err)
	}
	if p.Vertex != Identity().Vertex {
		t.Error("LoadPair() vertex stage did not fall back")
	}
	if p.Fragment != "fragment text" {
		t.Errorf("LoadPair() fragment = %q, want %q", p.Fragment, "fragment text")
	}

	if _, err := LoadPair(filepath.Join(dir, "missing.glsl"), "", Identity()); err == nil {
		t.Error("LoadPair(missing) error = nil, want error")
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.glsl")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	changed := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, []string{path}, func(p string) { changed <- p })
	}()

	// The watcher registers asynchronously; keep writing until it reports.
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case p := <-changed:
			if filepath.Base(p) != "f.glsl" {
				t.Errorf("Watch() reported %q, want f.glsl", p)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch() error = %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-ctx.Done():
			t.Fatal("Watch() reported no change before timeout")
		}
	}
}
