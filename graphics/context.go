package graphics

// Context is an off-screen capable OpenGL context.
type Context interface {
	// MakeCurrent binds the context to the calling OS thread.
	MakeCurrent()
	// DetachCurrent leaves no context current on the calling thread.
	DetachCurrent()
	Shutdown()
	// Size is the drawable size the context was created with.
	Size() (int, int)
	IsGLES() bool
}

// Factory creates a context of the given drawable size.
type Factory func(width, height int) (Context, error)
