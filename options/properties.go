package options

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"strconv"

	"github.com/BurntSushi/toml"
	deepcopy "github.com/barkimedes/go-deepcopy"
	"github.com/mitchellh/reflectwalk"
)

// Properties are the user-tunable parameters the operation declares.
//
// Tags: prop is the public name (and the uniform name for float fields),
// min and max bound numeric fields, desc is the help text.
type Properties struct {
	A float64 `prop:"a" min:"-1" max:"1" desc:"Shear of x along y" toml:"a"`
	B float64 `prop:"b" min:"-1" max:"1" desc:"Wave amplitude of y along x" toml:"b"`
	C float64 `prop:"c" min:"-1" max:"1" desc:"Horizontal texture scroll" toml:"c"`

	Purge bool `prop:"purge" desc:"Rebuild every GPU resource when switched on" toml:"purge"`

	VertexShader   string `prop:"vst" desc:"Vertex shader source, GLSL ES 3.00" toml:"vst"`
	FragmentShader string `prop:"fst" desc:"Fragment shader source, GLSL ES 3.00" toml:"fst"`

	XVert     int  `prop:"x_vert" min:"0" max:"1024" desc:"Columns of the vertex strip, 0 follows the image width" toml:"x_vert"`
	YVert     int  `prop:"y_vert" min:"0" max:"1024" desc:"Rows of the vertex strip, 0 follows the image height" toml:"y_vert"`
	DepthTest bool `prop:"depth_test" desc:"Enable depth testing with LESS compare" toml:"depth_test"`

	RotateX float64 `prop:"rotate_x" min:"-3.141592653589793" max:"3.141592653589793" desc:"Sphere rotation about x, radians" toml:"rotate_x"`
	RotateY float64 `prop:"rotate_y" min:"-3.141592653589793" max:"3.141592653589793" desc:"Sphere rotation about y, radians" toml:"rotate_y"`
	RotateZ float64 `prop:"rotate_z" min:"-3.141592653589793" max:"3.141592653589793" desc:"Sphere rotation about z, radians" toml:"rotate_z"`
	OffsetX float64 `prop:"offset_x" min:"-1" max:"1" desc:"Horizontal offset of the remap centre" toml:"offset_x"`
	OffsetY float64 `prop:"offset_y" min:"-1" max:"1" desc:"Vertical offset of the remap centre" toml:"offset_y"`
	Scale   float64 `prop:"scale" min:"0.05" max:"20" desc:"Zoom of the remap" toml:"scale"`
	K1      float64 `prop:"k1" min:"-1" max:"1" desc:"Radial lens coefficient of r^2" toml:"k1"`
	K2      float64 `prop:"k2" min:"-1" max:"1" desc:"Radial lens coefficient of r^4" toml:"k2"`
}

// Defaults returns the initial property values.
func Defaults() *Properties {
	return &Properties{Scale: 1}
}

// Snapshot returns an independent copy of p.
func (p *Properties) Snapshot() *Properties {
	return deepcopy.MustAnything(p).(*Properties)
}

// Params returns the float properties keyed by uniform name. It is rebuilt on
// every pass and never requires a rebuild of GPU resources.
func (p *Properties) Params() Params {
	params := make(Params)
	v := reflect.ValueOf(p).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("prop")
		if name == "" || f.Type.Kind() != reflect.Float64 {
			continue
		}
		params[name] = float32(v.Field(i).Float())
	}
	return params
}

// Clamp limits every numeric field to its declared range. NaN becomes the
// lower bound.
func (p *Properties) Clamp() error {
	return reflectwalk.Walk(p, &clampWalker{})
}

type clampWalker struct{}

func (*clampWalker) Struct(reflect.Value) error { return nil }

func (*clampWalker) StructField(f reflect.StructField, v reflect.Value) error {
	lo, hasMin := f.Tag.Lookup("min")
	hi, hasMax := f.Tag.Lookup("max")
	if !hasMin && !hasMax {
		return nil
	}
	if !v.CanSet() {
		return fmt.Errorf("property %s is not settable", f.Name)
	}
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		x := v.Float()
		if hasMin {
			m, err := strconv.ParseFloat(lo, 64)
			if err != nil {
				return fmt.Errorf("property %s: bad min %q: %w", f.Name, lo, err)
			}
			if x < m || math.IsNaN(x) {
				x = m
			}
		}
		if hasMax {
			m, err := strconv.ParseFloat(hi, 64)
			if err != nil {
				return fmt.Errorf("property %s: bad max %q: %w", f.Name, hi, err)
			}
			x = math.Min(x, m)
		}
		v.SetFloat(x)
	case reflect.Int, reflect.Int32, reflect.Int64:
		x := v.Int()
		if hasMin {
			m, err := strconv.ParseInt(lo, 10, 64)
			if err != nil {
				return fmt.Errorf("property %s: bad min %q: %w", f.Name, lo, err)
			}
			x = max(x, m)
		}
		if hasMax {
			m, err := strconv.ParseInt(hi, 10, 64)
			if err != nil {
				return fmt.Errorf("property %s: bad max %q: %w", f.Name, hi, err)
			}
			x = min(x, m)
		}
		v.SetInt(x)
	}
	return nil
}

// Declaration describes one property for help output and hosts.
type Declaration struct {
	Name        string
	Kind        string
	Min         string
	Max         string
	Default     string
	Description string
}

// Declarations lists every property in declaration order.
func Declarations() []Declaration {
	w := &declarationWalker{}
	if err := reflectwalk.Walk(Defaults(), w); err != nil {
		panic(err)
	}
	return w.decls
}

type declarationWalker struct {
	decls []Declaration
}

func (*declarationWalker) Struct(reflect.Value) error { return nil }

func (w *declarationWalker) StructField(f reflect.StructField, v reflect.Value) error {
	name := f.Tag.Get("prop")
	if name == "" {
		return nil
	}
	kind := v.Kind().String()
	if kind == "float64" {
		kind = "double"
	}
	def := fmt.Sprint(v.Interface())
	if v.Kind() == reflect.String {
		def = strconv.Quote(v.String())
	}
	w.decls = append(w.decls, Declaration{
		Name:        name,
		Kind:        kind,
		Min:         f.Tag.Get("min"),
		Max:         f.Tag.Get("max"),
		Default:     def,
		Description: f.Tag.Get("desc"),
	})
	return nil
}

// Set assigns a numeric property by its public name and clamps the result.
func (p *Properties) Set(name string, value float64) error {
	v := reflect.ValueOf(p).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("prop") != name {
			continue
		}
		switch fv := v.Field(i); fv.Kind() {
		case reflect.Float64:
			fv.SetFloat(value)
		case reflect.Int:
			fv.SetInt(int64(math.Round(value)))
		default:
			return fmt.Errorf("property %q is not numeric", name)
		}
		return p.Clamp()
	}
	return fmt.Errorf("unknown property %q", name)
}

// LoadPreset decodes a TOML file over a copy of base and clamps the result.
// Keys are the public property names.
func LoadPreset(path string, base *Properties) (*Properties, error) {
	if base == nil {
		base = Defaults()
	}
	p := base.Snapshot()
	md, err := toml.DecodeFile(path, p)
	if err != nil {
		return nil, fmt.Errorf("failed to load preset %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("preset %s: unknown properties %v", path, undecoded)
	}
	if err := p.Clamp(); err != nil {
		return nil, err
	}
	return p, nil
}

// Params maps uniform names to values.
type Params map[string]float32

// Equal reports whether both maps hold the same values.
func (p Params) Equal(other Params) bool {
	return maps.Equal(p, other)
}

// Clone returns a copy of p.
func (p Params) Clone() Params {
	return maps.Clone(p)
}
