package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"

	"github.com/richinsley/ggt/encoder"
	"github.com/richinsley/ggt/glfwcontext"
	"github.com/richinsley/ggt/gpu"
	"github.com/richinsley/ggt/graphics"
	"github.com/richinsley/ggt/headless"
	"github.com/richinsley/ggt/host"
	"github.com/richinsley/ggt/options"
	"github.com/richinsley/ggt/pipeline"
	"github.com/richinsley/ggt/renderer"
	"github.com/richinsley/ggt/shader"
	"github.com/richinsley/ggt/translator"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

func init() {
	runtime.LockOSThread()
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	logrus.SetLevel(logger.GetLevel())
	logrus.SetFormatter(logger.Formatter)
	return logger
}

func parseFlags() *options.ShaderOptions {
	opts := &options.ShaderOptions{
		Help:           flag.Bool("help", false, "Show help message and the declared properties"),
		Debug:          flag.Bool("debug", false, "Debug logging"),
		Input:          flag.String("input", "", "Source image (png, jpeg, bmp, tiff)"),
		Output:         flag.String("output", "output.png", "Output png, or video file with -sweep"),
		Backend:        flag.String("backend", "gpu", "Renderer backend: "+strings.Join(renderer.Available(), ", ")),
		Context:        flag.String("context", defaultContext(), "GPU context: egl or glfw"),
		Shader:         flag.String("shader", "ggt", "Built-in shader pair: "+strings.Join(shader.Builtins(), ", ")),
		VertexShader:   flag.String("vs", "", "Vertex shader file, GLSL ES 3.00"),
		FragmentShader: flag.String("fs", "", "Fragment shader file, GLSL ES 3.00"),
		Preset:         flag.String("preset", "", "TOML file with property values"),
		TileSize:       flag.Int("tile", 256, "Region request size, 0 for the whole image"),
		Prewarm:        flag.Bool("prewarm", false, "Build the pipeline during prepare"),
		Watch:          flag.Bool("watch", false, "Re-render whenever a shader file changes"),
		Sweep:          flag.String("sweep", "", "Sweep one property into a video, e.g. a=-1:1"),
		Frames:         flag.Int("frames", 60, "Frames in a sweep"),
		FPS:            flag.Int("fps", 30, "Frames per second of a sweep video"),
		Codec:          flag.String("codec", "h264", "Sweep video codec: h264 or hevc"),
		FFmpegPath:     flag.String("ffmpeg", "", "Path to ffmpeg executable"),
	}
	flag.Parse()
	return opts
}

func defaultContext() string {
	if runtime.GOOS == "linux" {
		return "egl"
	}
	return "glfw"
}

func printHelp() {
	fmt.Println("ggt: general geometric transformation of an image through GPU shaders")
	flag.PrintDefaults()
	fmt.Println("\nProperties (preset keys):")
	for _, d := range options.Declarations() {
		rng := ""
		if d.Min != "" || d.Max != "" {
			rng = fmt.Sprintf(" [%s, %s]", d.Min, d.Max)
		}
		fmt.Printf("  %-10s %-6s default %s%s\n        %s\n", d.Name, d.Kind, d.Default, rng, d.Description)
	}
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	logrus.WithFields(logrus.Fields{"path": path, "format": format, "bounds": img.Bounds()}).Debug("image loaded")
	return img, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newBackend(opts *options.ShaderOptions, logger logrus.FieldLogger) (renderer.Backend, func(), error) {
	cfg := renderer.Config{Logger: logger}
	cleanup := func() {}
	if *opts.Backend == "gpu" {
		var factory graphics.Factory
		switch *opts.Context {
		case "egl":
			factory = headless.NewHeadless
		case "glfw":
			if err := glfwcontext.InitGraphics(); err != nil {
				return nil, cleanup, fmt.Errorf("failed to initialize GLFW: %w", err)
			}
			cleanup = glfwcontext.TerminateGraphics
			factory = glfwcontext.New
		default:
			return nil, cleanup, fmt.Errorf("unknown context kind %q", *opts.Context)
		}
		builtin, err := shader.Builtin(*opts.Shader)
		if err != nil {
			return nil, cleanup, err
		}
		pair, err := shader.LoadPair(*opts.VertexShader, *opts.FragmentShader, builtin)
		if err != nil {
			return nil, cleanup, err
		}
		cfg.Device = gpu.NewGLDevice(factory, logger)
		cfg.Translator = translator.GLSL{}
		cfg.Shaders = pair
	}
	b, err := renderer.New(*opts.Backend, cfg)
	return b, cleanup, err
}

// render fills a fresh sink the way a host does: one region request per tile.
func render(ctx context.Context, op *pipeline.Operation, src host.Source, tileSize int) (*host.ImageSink, error) {
	bound := src.BoundingBox()
	sink := host.NewImageSink(bound)
	for _, tile := range host.Tiles(bound, tileSize) {
		if err := op.Process(ctx, src, sink, tile); err != nil {
			return nil, err
		}
	}
	return sink, nil
}

type sweep struct {
	prop     string
	from, to float64
}

func parseSweep(s string) (sweep, error) {
	name, span, ok := strings.Cut(s, "=")
	if !ok {
		return sweep{}, fmt.Errorf("sweep %q is not prop=from:to", s)
	}
	lo, hi, ok := strings.Cut(span, ":")
	if !ok {
		return sweep{}, fmt.Errorf("sweep %q is not prop=from:to", s)
	}
	from, err := strconv.ParseFloat(lo, 64)
	if err != nil {
		return sweep{}, fmt.Errorf("sweep start: %w", err)
	}
	to, err := strconv.ParseFloat(hi, 64)
	if err != nil {
		return sweep{}, fmt.Errorf("sweep end: %w", err)
	}
	return sweep{prop: name, from: from, to: to}, nil
}

func runSweep(ctx context.Context, opts *options.ShaderOptions, op *pipeline.Operation, src host.Source, sw sweep) error {
	bound := src.BoundingBox()
	enc, err := encoder.Start(encoder.Config{
		Width:      bound.Width,
		Height:     bound.Height,
		FPS:        *opts.FPS,
		Codec:      *opts.Codec,
		OutputFile: *opts.Output,
		FFmpegPath: *opts.FFmpegPath,
	})
	if err != nil {
		return err
	}
	frames := max(1, *opts.Frames)
	for i := 0; i < frames; i++ {
		t := 0.0
		if frames > 1 {
			t = float64(i) / float64(frames-1)
		}
		props := op.Properties()
		if err := props.Set(sw.prop, sw.from+(sw.to-sw.from)*t); err != nil {
			enc.Close()
			return err
		}
		if err := op.SetProperties(props); err != nil {
			enc.Close()
			return err
		}
		sink, err := render(ctx, op, src, *opts.TileSize)
		if err != nil {
			enc.Close()
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := enc.WriteFrame(&encoder.Frame{Pixels: sink.RGBA.Pix, PTS: int64(i)}); err != nil {
			enc.Close()
			return err
		}
	}
	return enc.Close()
}

// watchLoop re-renders on shader changes. GL calls stay on this thread; the
// watcher only signals.
func watchLoop(ctx context.Context, opts *options.ShaderOptions, op *pipeline.Operation, src host.Source, logger logrus.FieldLogger) error {
	changed := make(chan string, 1)
	go func() {
		err := shader.Watch(ctx, []string{*opts.VertexShader, *opts.FragmentShader}, func(path string) {
			select {
			case changed <- path:
			default:
			}
		})
		if err != nil {
			logger.WithError(err).Error("shader watcher stopped")
		}
	}()
	logger.Info("watching shaders, interrupt to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-changed:
			props := op.Properties()
			pair, err := shader.LoadPair(*opts.VertexShader, *opts.FragmentShader, shader.Pair{
				Vertex:   props.VertexShader,
				Fragment: props.FragmentShader,
			})
			if err != nil {
				logger.WithError(err).Warn("shader reload failed")
				continue
			}
			props.VertexShader, props.FragmentShader = pair.Vertex, pair.Fragment
			if err := op.SetProperties(props); err != nil {
				return err
			}
			op.Invalidate()
			sink, err := render(ctx, op, src, *opts.TileSize)
			if err != nil {
				// Keep watching: the next save may fix it.
				logger.WithError(err).WithField("path", path).Error("render failed")
				continue
			}
			if err := writePNG(*opts.Output, sink.RGBA); err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{"path": path, "output": *opts.Output}).Info("re-rendered")
		}
	}
}

func run(opts *options.ShaderOptions, logger *logrus.Logger) error {
	if *opts.Input == "" {
		return errors.New("-input is required")
	}
	props := options.Defaults()
	if *opts.Preset != "" {
		var err error
		if props, err = options.LoadPreset(*opts.Preset, props); err != nil {
			return err
		}
	}

	img, err := loadImage(*opts.Input)
	if err != nil {
		return err
	}
	src := host.NewImageSource(img)

	backend, cleanup, err := newBackend(opts, logger)
	defer cleanup()
	if err != nil {
		return err
	}
	op := pipeline.New(backend, props, logger)
	defer op.Close()
	op.Prewarm = *opts.Prewarm

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := op.Prepare(ctx, src); err != nil {
		return err
	}

	if *opts.Sweep != "" {
		sw, err := parseSweep(*opts.Sweep)
		if err != nil {
			return err
		}
		return runSweep(ctx, opts, op, src, sw)
	}

	sink, err := render(ctx, op, src, *opts.TileSize)
	if err != nil {
		return err
	}
	if err := writePNG(*opts.Output, sink.RGBA); err != nil {
		return err
	}
	stats := op.Stats()
	logger.WithFields(logrus.Fields{
		"output":   *opts.Output,
		"rebuilds": stats.Rebuilds,
		"draws":    stats.Draws,
	}).Info("image written")

	if *opts.Watch {
		if *opts.VertexShader == "" && *opts.FragmentShader == "" {
			return errors.New("-watch needs -vs or -fs")
		}
		return watchLoop(ctx, opts, op, src, logger)
	}
	return nil
}

func main() {
	opts := parseFlags()
	if *opts.Help {
		printHelp()
		return
	}
	logger := initLogger(*opts.Debug)
	if err := run(opts, logger); err != nil {
		logger.WithError(err).Error("ggt failed")
		os.Exit(1)
	}
}
