// Package encoder pipes raw RGBA frames into an ffmpeg process.
package encoder

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Frame is one rendered image, tightly packed RGBA8 rows.
type Frame struct {
	Pixels []byte
	PTS    int64
}

// Config describes the encoded stream.
type Config struct {
	Width, Height int
	FPS           int
	Codec         string // h264 or hevc
	OutputFile    string
	FFmpegPath    string
}

// Encoder feeds frames to ffmpeg over its stdin.
type Encoder struct {
	cfg    Config
	writer *io.PipeWriter
	errc   chan error
	frames int64
}

func getArgs(cfg Config) (inputArgs ffmpeg.KwArgs, outputArgs ffmpeg.KwArgs) {
	inputArgs = ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"framerate": fmt.Sprint(cfg.FPS),
	}

	outputArgs = ffmpeg.KwArgs{"pix_fmt": "yuv420p"}
	if cfg.Codec == "hevc" {
		outputArgs["c:v"] = "libx265"
		if strings.EqualFold(filepath.Ext(cfg.OutputFile), ".mp4") {
			outputArgs["tag:v"] = "hvc1"
		}
	} else {
		outputArgs["c:v"] = "libx264"
	}
	// yuv420p needs even dimensions.
	if cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		outputArgs["vf"] = "pad=ceil(iw/2)*2:ceil(ih/2)*2"
	}
	return
}

// Start launches ffmpeg. Frames must then be written in presentation order.
func Start(cfg Config) (*Encoder, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FPS <= 0 {
		return nil, fmt.Errorf("invalid encoder configuration %dx%d@%d", cfg.Width, cfg.Height, cfg.FPS)
	}
	if cfg.OutputFile == "" {
		return nil, fmt.Errorf("no output file for encoder")
	}
	pipeReader, pipeWriter := io.Pipe()
	inputArgs, outputArgs := getArgs(cfg)

	ffmpegCmd := ffmpeg.Input("pipe:", inputArgs).
		Output(cfg.OutputFile, outputArgs).
		OverWriteOutput().WithInput(pipeReader).ErrorToStdOut()
	if cfg.FFmpegPath != "" {
		ffmpegCmd = ffmpegCmd.SetFfmpegPath(cfg.FFmpegPath)
	}

	e := &Encoder{cfg: cfg, writer: pipeWriter, errc: make(chan error, 1)}
	go func() {
		err := ffmpegCmd.Run()
		// Unblock a writer stuck on a dead ffmpeg.
		pipeReader.CloseWithError(io.ErrClosedPipe)
		e.errc <- err
	}()
	log.WithFields(log.Fields{
		"output": cfg.OutputFile,
		"size":   fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps":    cfg.FPS,
		"codec":  outputArgs["c:v"],
	}).Info("encoder started")
	return e, nil
}

// WriteFrame sends one frame to ffmpeg.
func (e *Encoder) WriteFrame(f *Frame) error {
	if want := e.cfg.Width * e.cfg.Height * 4; len(f.Pixels) != want {
		return fmt.Errorf("frame %d has %d bytes, want %d", f.PTS, len(f.Pixels), want)
	}
	if _, err := e.writer.Write(f.Pixels); err != nil {
		return fmt.Errorf("failed to write frame %d to ffmpeg: %w", f.PTS, err)
	}
	e.frames++
	return nil
}

// Close ends the stream and waits for ffmpeg to exit.
func (e *Encoder) Close() error {
	e.writer.Close()
	if err := <-e.errc; err != nil {
		return fmt.Errorf("ffmpeg failed after %d frames: %w", e.frames, err)
	}
	log.WithField("frames", e.frames).Info("encoder finished")
	return nil
}
