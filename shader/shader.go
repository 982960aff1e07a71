// Package shader holds the built-in shader pairs and loads user shaders from disk.
//
// All sources are GLSL ES 3.00. The vertex stage receives the strip vertex in
// attribute 0 named icv, in clip space, and forwards it as icf. The fragment
// stage samples the source image through sampler sam on unit 0.
package shader

import (
	"fmt"
	"slices"
)

// Pair is a vertex and fragment source that are compiled and linked together.
type Pair struct {
	Vertex   string
	Fragment string
}

// Identity maps every source texel to itself.
const identityVertex = `#version 300 es
precision highp float;
layout (location = 0) in vec2 icv;
out vec2 icf;
void main() {
    icf = icv;
    gl_Position = vec4(icv, 0.0, 1.0);
}
`

const identityFragment = `#version 300 es
precision highp float;
in vec2 icf;
out vec4 color;
uniform sampler2D sam;
void main() {
    color = texture(sam, icf * 0.5 + 0.5);
}
`

// The default transform: a shears x by y, b bends y along x, c scrolls the
// texture horizontally. All zero is the identity.
const ggtVertex = `#version 300 es
precision highp float;
layout (location = 0) in vec2 icv;
out vec2 icf;
uniform float a;
uniform float b;
void main() {
    icf = icv;
    gl_Position = vec4(icv.x + a * icv.y, icv.y + b * sin(10.0 * icv.x), 0.0, 1.0);
}
`

const ggtFragment = `#version 300 es
precision highp float;
in vec2 icf;
out vec4 color;
uniform sampler2D sam;
uniform float c;
void main() {
    vec2 uv = icf * 0.5 + 0.5;
    uv.x = mod(uv.x + c, 1.0);
    color = texture(sam, uv);
}
`

var builtins = map[string]Pair{
	"identity": {Vertex: identityVertex, Fragment: identityFragment},
	"ggt":      {Vertex: ggtVertex, Fragment: ggtFragment},
}

// Builtin returns the named built-in pair.
func Builtin(name string) (Pair, error) {
	p, ok := builtins[name]
	if !ok {
		return Pair{}, fmt.Errorf("unknown built-in shader %q (have %v)", name, Builtins())
	}
	return p, nil
}

// Builtins lists the built-in pair names in sorted order.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Default returns the pair used when no shader is configured.
func Default() Pair {
	return builtins["ggt"]
}

// Identity returns the pass-through pair.
func Identity() Pair {
	return builtins["identity"]
}
