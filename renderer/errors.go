package renderer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/richinsley/ggt/gpu"
)

var (
	// ErrNotBuilt is returned by Draw before a successful Rebuild.
	ErrNotBuilt = errors.New("renderer: draw before rebuild")
	// ErrUnknownBackend is returned by New for unregistered names.
	ErrUnknownBackend = errors.New("renderer: unknown backend")
)

// ContextCreationError reports that no rendering context could be created
// for the bounding box.
type ContextCreationError struct {
	Width, Height int
	Err           error
}

func (e *ContextCreationError) Error() string {
	return fmt.Sprintf("failed to create %dx%d rendering context: %v", e.Width, e.Height, e.Err)
}

func (e *ContextCreationError) Unwrap() error { return e.Err }

// ShaderCompileError carries the compiler log and the source that failed.
type ShaderCompileError struct {
	Stage gpu.Stage
	Log   string
	// Source is the shader as the user wrote it.
	Source string
	// Translated is the code handed to the driver when it differs from
	// Source. Driver log line numbers refer to it.
	Translated string
}

func (e *ShaderCompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s shader compilation failed: %s", e.Stage, strings.TrimSpace(e.Log))
	writeListing(&b, "source", e.Source)
	writeListing(&b, "translated", e.Translated)
	return b.String()
}

func writeListing(b *strings.Builder, title, code string) {
	if code == "" {
		return
	}
	fmt.Fprintf(b, "\n--- %s ---\n", title)
	for i, line := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		fmt.Fprintf(b, "%4d: %s\n", i+1, line)
	}
}

// ShaderLinkError carries the linker log.
type ShaderLinkError struct {
	Log string
}

func (e *ShaderLinkError) Error() string {
	return "shader program link failed: " + strings.TrimSpace(e.Log)
}
