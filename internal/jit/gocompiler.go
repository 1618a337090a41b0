package jit

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/san-kum/hpmcpatch/internal/core"
	"github.com/san-kum/hpmcpatch/internal/kernel"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

// Params gives a Go kernel the arrays a native unit would read through
// paramArray and unionParamArray. Out-of-range reads return zero.
type Params interface {
	Param(i int) float32
	Union(i int) float32
}

// Kernel is the Go rendition of a kernel body.
type Kernel func(p Params, rij vecmath.Vec3, typeI uint32, qi vecmath.Quat, di, chargeI float32,
	typeJ uint32, qj vecmath.Quat, dj, chargeJ float32) float32

// ZeroBody is the body generated for empty user code.
const ZeroBody = "return 0.0f;"

// GoCompiler compiles units by looking their body up in a table of Go
// kernels. It needs no native toolchain. GPU units produce device-style
// artifacts whose buffers live in ordinary host memory.
type GoCompiler struct {
	mu       sync.RWMutex
	kernels  map[string]Kernel
	compiled []kernel.Unit
}

func NewGoCompiler() *GoCompiler {
	c := &GoCompiler{kernels: make(map[string]Kernel)}
	c.Register(ZeroBody, func(Params, vecmath.Vec3, uint32, vecmath.Quat, float32, float32,
		uint32, vecmath.Quat, float32, float32) float32 {
		return 0
	})
	return c
}

// Register makes body compile to k. Surrounding whitespace is ignored.
func (c *GoCompiler) Register(body string, k Kernel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kernels[strings.TrimSpace(body)] = k
}

// Compiled returns every unit compiled successfully so far, in order.
func (c *GoCompiler) Compiled() []kernel.Unit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]kernel.Unit(nil), c.compiled...)
}

func (c *GoCompiler) Compile(u kernel.Unit) (Artifact, error) {
	body, ok := kernel.Body(u.Source)
	if !ok {
		return nil, &core.CompileError{
			Unit:       u.Name,
			Target:     u.Target.String(),
			Diagnostic: "error: no eval function in translation unit",
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.kernels[strings.TrimSpace(body)]
	if !ok {
		return nil, &core.CompileError{
			Unit:       u.Name,
			Target:     u.Target.String(),
			Diagnostic: fmt.Sprintf("error: cannot compile body:\n%s", body),
		}
	}
	c.compiled = append(c.compiled, u)
	return &goArtifact{
		id:     uuid.New(),
		unit:   u.Name,
		target: u.Target,
		kernel: k,
		bound:  make(map[string]Buffer, 2),
	}, nil
}

func (c *GoCompiler) Allocate(target kernel.Target, n int) (Buffer, error) {
	return NewHostBuffer(n), nil
}

type goArtifact struct {
	id     uuid.UUID
	unit   string
	target kernel.Target
	kernel Kernel

	mu    sync.RWMutex
	bound map[string]Buffer
}

func (a *goArtifact) ID() uuid.UUID         { return a.id }
func (a *goArtifact) Unit() string          { return a.unit }
func (a *goArtifact) Target() kernel.Target { return a.target }

func (a *goArtifact) Bind(symbol string, buf Buffer) error {
	if symbol != kernel.SymbolParam && symbol != kernel.SymbolUnionParam {
		return fmt.Errorf("unit %s has no symbol %s", a.unit, symbol)
	}
	a.mu.Lock()
	a.bound[symbol] = buf
	a.mu.Unlock()
	return nil
}

func (a *goArtifact) Func() EvalFunc {
	if a.target == kernel.GPU {
		return nil
	}
	return func(rij vecmath.Vec3, typeI uint32, qi vecmath.Quat, di, chargeI float32,
		typeJ uint32, qj vecmath.Quat, dj, chargeJ float32) float32 {
		return a.kernel(a, rij, typeI, qi, di, chargeI, typeJ, qj, dj, chargeJ)
	}
}

func (a *goArtifact) Close() error {
	a.mu.Lock()
	a.bound = map[string]Buffer{}
	a.mu.Unlock()
	return nil
}

func (a *goArtifact) Param(i int) float32 { return a.read(kernel.SymbolParam, i) }
func (a *goArtifact) Union(i int) float32 { return a.read(kernel.SymbolUnionParam, i) }

func (a *goArtifact) read(symbol string, i int) float32 {
	a.mu.RLock()
	buf := a.bound[symbol]
	a.mu.RUnlock()
	if buf == nil || i < 0 || i >= buf.Len() {
		return 0
	}
	return buf.At(i)
}
