package jit

import (
	"errors"

	"github.com/google/uuid"
	"github.com/san-kum/hpmcpatch/internal/kernel"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

// ErrNoDevice is returned for GPU work when no CUDA device can be used.
var ErrNoDevice = errors.New("jit: no cuda device available")

// EvalFunc is the host-callable form of a compiled eval function.
type EvalFunc func(rij vecmath.Vec3, typeI uint32, qi vecmath.Quat, di, chargeI float32,
	typeJ uint32, qj vecmath.Quat, dj, chargeJ float32) float32

// Compiler is the compiler service: it turns generated units into artifacts
// and owns the memory that compiled code reads parameters from.
type Compiler interface {
	Compile(u kernel.Unit) (Artifact, error)
	Allocate(target kernel.Target, n int) (Buffer, error)
}

// Artifact is one compiled unit.
type Artifact interface {
	ID() uuid.UUID
	Unit() string
	Target() kernel.Target
	// Bind points the unit's array symbol at buf.
	Bind(symbol string, buf Buffer) error
	// Func returns the host callable, or nil for device artifacts.
	Func() EvalFunc
	Close() error
}

// Buffer is parameter memory owned by a compiled target. It satisfies
// param.Storage.
type Buffer interface {
	Len() int
	At(i int) float32
	Set(i int, v float32)
	Release() error
}

// TargetOptions are the per-target settings: compiler options carried by
// each unit plus the engine sources included into it.
type TargetOptions struct {
	kernel.CompileOptions
	// EngineIncludes are appended after eval in generated units.
	EngineIncludes []string
}

type Settings struct {
	CPU TargetOptions
	GPU TargetOptions
}

// For returns the options of target.
func (s Settings) For(target kernel.Target) TargetOptions {
	if target == kernel.GPU {
		return s.GPU
	}
	return s.CPU
}

// DefaultSettings uses c++ and nvcc from PATH. The GPU architecture is left
// zero so it follows the active device.
func DefaultSettings() Settings {
	return Settings{
		CPU: TargetOptions{CompileOptions: kernel.CompileOptions{Compiler: "c++", Flags: []string{"-O2"}}},
		GPU: TargetOptions{CompileOptions: kernel.CompileOptions{Compiler: "nvcc"}},
	}
}
