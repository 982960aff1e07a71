package glfwcontext

import (
	"fmt"
	"runtime"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
	"github.com/richinsley/ggt/graphics"
	log "github.com/sirupsen/logrus"
)

// Context is a GLFW window used only for its GL context. It is never shown.
type Context struct {
	window *glfw.Window
	width  int
	height int
}

var _ graphics.Context = (*Context)(nil)

// New creates a hidden width×height window with a 4.1 core context and makes it current.
// InitGraphics must have been called on the main thread.
func New(width, height int) (graphics.Context, error) {
	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.False)

	win, err := glfw.CreateWindow(width, height, "ggt", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %dx%d glfw window: %w", width, height, err)
	}
	c := &Context{window: win, width: width, height: height}
	c.MakeCurrent()
	return c, nil
}

// MakeCurrent makes the context current for the calling goroutine.
func (c *Context) MakeCurrent() {
	c.window.MakeContextCurrent()
}

// DetachCurrent makes no context current on the calling thread.
func (c *Context) DetachCurrent() {
	glfw.DetachCurrentContext()
}

// Size reports the requested size, not the framebuffer size: rendering goes to an FBO.
func (c *Context) Size() (int, int) { return c.width, c.height }

func (c *Context) IsGLES() bool {
	// GLFW does not provide a direct way to check if the context is GLES.
	return false
}

func (c *Context) Shutdown() {
	if c.window == nil {
		return
	}
	c.window.Destroy()
	c.window = nil
}

// InitGraphics initializes GLFW. Must be called from the main thread.
func InitGraphics() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return err
	}
	log.Debug("GLFW initialized")
	return nil
}

// TerminateGraphics shuts down GLFW. Must be called from the main thread.
func TerminateGraphics() {
	glfw.Terminate()
	log.Debug("GLFW terminated")
}
