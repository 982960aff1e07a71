// Package translator validates GLSL ES 3.00 sources and rewrites them for the
// GL flavour of the current context.
package translator

import (
	"context"
	"fmt"
	"sync"

	"github.com/richinsley/ggt/gpu"
	gst "github.com/richinsley/goshadertranslator"
)

var (
	translator    *gst.ShaderTranslator
	translatorErr error
	translatorMu  sync.Mutex
)

// GetTranslator returns the process-wide translator, creating it on first use.
func GetTranslator() (*gst.ShaderTranslator, error) {
	translatorMu.Lock()
	defer translatorMu.Unlock()
	if translator == nil && translatorErr == nil {
		translator, translatorErr = gst.NewShaderTranslator(context.Background())
	}
	return translator, translatorErr
}

// GLSL translates WebGL2 shaders with goshadertranslator.
type GLSL struct{}

// Translate returns the translated code for stage and a map from each
// declared variable name to the name it has in the translated code.
// Desktop contexts get GLSL 4.10, GLES contexts get ESSL.
func (GLSL) Translate(stage gpu.Stage, source string, gles bool) (string, map[string]string, error) {
	t, err := GetTranslator()
	if err != nil {
		return "", nil, fmt.Errorf("failed to start shader translator: %w", err)
	}
	outputFormat := gst.OutputFormatGLSL410
	if gles {
		outputFormat = gst.OutputFormatESSL
	}
	out, err := t.TranslateShader(source, stage.String(), gst.ShaderSpecWebGL2, outputFormat)
	if err != nil {
		return "", nil, err
	}
	names := make(map[string]string, len(out.Variables))
	for name, v := range out.Variables {
		names[name] = v.MappedName
	}
	return out.Code, names, nil
}
