package options

// ShaderOptions are the command line options. Fields are pointers so they can
// be bound directly to the flag package.
type ShaderOptions struct {
	Help           *bool
	Debug          *bool
	Input          *string // source image (png, jpeg, bmp, tiff)
	Output         *string // output png, or video file in sweep mode
	Backend        *string // renderer back end: gpu, sphere, lens
	Context        *string // gpu context kind: egl or glfw
	Shader         *string // built-in shader pair for the gpu back end
	VertexShader   *string // optional vertex shader path, overrides the built-in stage
	FragmentShader *string // optional fragment shader path, overrides the built-in stage
	Preset         *string // optional TOML file with property values
	TileSize       *int    // region request size; 0 requests the whole image at once
	Prewarm        *bool   // build and draw in Prepare instead of on the first region request
	Watch          *bool   // re-render whenever a shader file changes
	Sweep          *string // "prop=from:to", renders a video sweeping one property
	Frames         *int
	FPS            *int
	Codec          *string
	FFmpegPath     *string
}
