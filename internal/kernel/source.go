package kernel

import (
	"fmt"
	"sort"
	"strings"
)

// Target selects the execution target a unit is generated for.
type Target int

const (
	CPU Target = iota
	GPU
)

func (t Target) String() string {
	switch t {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// ParseTarget accepts "cpu" or "gpu".
func ParseTarget(s string) (Target, error) {
	switch strings.ToLower(s) {
	case "cpu":
		return CPU, nil
	case "gpu":
		return GPU, nil
	}
	return CPU, fmt.Errorf("unknown target: %s", s)
}

// Fixed symbols of every generated unit.
const (
	EntryPoint       = "eval"
	SymbolParam      = "paramArray"
	SymbolUnionParam = "unionParamArray"

	// UnionEval switches device units to walking constituent trees.
	UnionEval = "UNION_EVAL"
)

// CompileOptions are the native compiler settings resolved for one unit.
type CompileOptions struct {
	Compiler       string
	IncludePaths   []string
	Flags          []string
	DeviceArch     int
	RuntimeLibPath string
}

// Unit is one compilation request handed to the compiler service.
type Unit struct {
	Name    string
	Target  Target
	Source  string
	Options CompileOptions
}

type options struct {
	defines  []string
	includes []string
}

type Option func(*options)

// WithDefine emits #define name ahead of the prelude.
func WithDefine(name string) Option {
	return func(o *options) { o.defines = append(o.defines, name) }
}

// WithInclude appends #include "path" after the kernel function, for engine
// sources that call eval.
func WithInclude(path string) Option {
	return func(o *options) { o.includes = append(o.includes, path) }
}

// Build wraps body into a self-contained unit for target. The body is not
// inspected; errors in it surface when the unit is compiled.
func Build(body string, target Target, opts ...Option) string {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	defines := append([]string(nil), o.defines...)
	sort.Strings(defines)

	var b strings.Builder
	fmt.Fprintf(&b, "// generated by hpmcpatch (target %s)\n", target)

	switch target {
	case GPU:
		b.WriteString("#define HOSTDEVICE __host__ __device__\n")
	default:
		b.WriteString("#define HOSTDEVICE\n")
	}
	for i, d := range defines {
		if i > 0 && defines[i-1] == d {
			continue
		}
		fmt.Fprintf(&b, "#define %s\n", d)
	}
	if target == GPU {
		b.WriteString("#include <cuda_runtime.h>\n")
	}
	b.WriteString("#include <math.h>\n")
	b.WriteString(prelude)
	b.WriteString("\n// bound by the host before the first call\n")

	switch target {
	case GPU:
		fmt.Fprintf(&b, "__device__ float *%s;\n", SymbolParam)
		fmt.Fprintf(&b, "__device__ float *%s;\n\n", SymbolUnionParam)
		fmt.Fprintf(&b, "extern \"C\" __device__ %s\n    {\n", signature)
		b.WriteString(body)
		b.WriteString("\n    }\n")
	default:
		b.WriteString("extern \"C\"\n{\n")
		fmt.Fprintf(&b, "float *%s;\n", SymbolParam)
		fmt.Fprintf(&b, "float *%s;\n\n", SymbolUnionParam)
		fmt.Fprintf(&b, "%s\n    {\n", signature)
		b.WriteString(body)
		b.WriteString("\n    }\n}\n")
	}

	for _, inc := range o.includes {
		fmt.Fprintf(&b, "#include %q\n", inc)
	}
	return b.String()
}

// NewUnit builds the source for body and labels it.
func NewUnit(name, body string, target Target, opts ...Option) Unit {
	return Unit{Name: name, Target: target, Source: Build(body, target, opts...)}
}

// Body recovers the user body from a source produced by Build.
func Body(source string) (string, bool) {
	i := strings.Index(source, signature)
	if i < 0 {
		return "", false
	}
	rest := source[i+len(signature):]
	const open, end = "\n    {\n", "\n    }\n"
	if !strings.HasPrefix(rest, open) {
		return "", false
	}
	rest = rest[len(open):]
	j := strings.LastIndex(rest, end)
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}
