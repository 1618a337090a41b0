package patch

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/san-kum/hpmcpatch/internal/core"
	"github.com/san-kum/hpmcpatch/internal/hpmc"
	"github.com/san-kum/hpmcpatch/internal/jit"
	"github.com/san-kum/hpmcpatch/internal/kernel"
	"github.com/san-kum/hpmcpatch/internal/param"
)

// function is one user function compiled for every target.
type function struct {
	role string
	code string
}

// binding aliases arr to the named symbol of every compiled unit.
type binding struct {
	symbol string
	arr    *param.Array
}

type request struct {
	op        string
	name      string
	functions []function
	bindings  []binding
	// gpuDefines are added to device units only.
	gpuDefines []string
	// evaluator builds the engine-side evaluator from the host callables,
	// one per function in order.
	evaluator func(host []jit.EvalFunc) hpmc.Evaluator
}

// attachment is what a successful attach holds until detach.
type attachment struct {
	engine    Engine
	artifacts []jit.Artifact
	buffers   []jit.Buffer
	arrays    []*param.Array
	ev        hpmc.Evaluator
}

func (a *attachment) ids() []uuid.UUID {
	ids := make([]uuid.UUID, len(a.artifacts))
	for i, art := range a.artifacts {
		ids[i] = art.ID()
	}
	return ids
}

// body is the code compiled for user code, with empty code meaning zero.
func body(code string) string {
	if strings.TrimSpace(code) == "" {
		return jit.ZeroBody
	}
	return code
}

func checkSimulation(op string, sim *Simulation) error {
	switch {
	case sim == nil:
		return core.Precondition(op, "no simulation")
	case sim.Engine == nil:
		return core.Precondition(op, "simulation has no integrator")
	case sim.Engine.Kind() != EngineKind:
		return core.Precondition(op, "integrator kind %q, need %q", sim.Engine.Kind(), EngineKind)
	case !sim.Engine.IsAttached():
		return core.Precondition(op, "integrator is not attached")
	case sim.Compiler == nil:
		return core.Precondition(op, "simulation has no compiler")
	}
	return nil
}

func targets(sim *Simulation) []kernel.Target {
	if sim.Device != nil && sim.Device.GPU() {
		return []kernel.Target{kernel.CPU, kernel.GPU}
	}
	return []kernel.Target{kernel.CPU}
}

// attach compiles, binds and installs req. On any failure every step taken
// so far is undone and nothing stays installed.
func attach(sim *Simulation, req request) (*attachment, error) {
	if err := checkSimulation(req.op, sim); err != nil {
		return nil, err
	}

	a := &attachment{engine: sim.Engine}
	fail := func(err error) (*attachment, error) {
		a.rollback()
		return nil, err
	}

	tgts := targets(sim)
	host := make([]jit.EvalFunc, len(req.functions))
	for _, target := range tgts {
		resolved := compileOptions(sim, target)
		opts := unitOptions(resolved, target, req.gpuDefines)
		for i, fn := range req.functions {
			unit := kernel.NewUnit(req.name+"_"+fn.role, body(fn.code), target, opts...)
			unit.Options = resolved.CompileOptions
			art, err := sim.Compiler.Compile(unit)
			if err != nil {
				return fail(compileError(unit, err))
			}
			a.artifacts = append(a.artifacts, art)
			if target == kernel.CPU {
				host[i] = art.Func()
				if host[i] == nil {
					return fail(&core.CompileError{Unit: unit.Name, Target: target.String(),
						Err: errors.New("host artifact has no callable")})
				}
			}
		}
	}

	// Buffers come from the widest target so host and device units share
	// one copy of every array.
	primary := tgts[len(tgts)-1]
	for _, b := range req.bindings {
		buf, err := sim.Compiler.Allocate(primary, b.arr.Len())
		if err != nil {
			return fail(core.Errorf(core.ErrCompilationFailed, req.op, b.arr.Name(), "allocate: %v", err))
		}
		a.buffers = append(a.buffers, buf)
		for _, art := range a.artifacts {
			if err := art.Bind(b.symbol, buf); err != nil {
				return fail(core.Errorf(core.ErrCompilationFailed, req.op, b.arr.Name(), "bind %s: %v", b.symbol, err))
			}
		}
		if err := b.arr.Alias(buf); err != nil {
			return fail(err)
		}
		a.arrays = append(a.arrays, b.arr)
	}

	a.ev = req.evaluator(host)
	if err := sim.Engine.InstallEvaluator(a.ev, a.arrays...); err != nil {
		return fail(core.Precondition(req.op, "install: %v", err))
	}
	return a, nil
}

// compileOptions resolves the settings of target for the active device. An
// unset GPU architecture follows the device.
func compileOptions(sim *Simulation, target kernel.Target) jit.TargetOptions {
	opts := sim.Settings.For(target)
	if target == kernel.GPU && opts.DeviceArch == 0 && sim.Device != nil && sim.Device.GPU() {
		opts.DeviceArch = sim.Device.Arch()
	}
	return opts
}

func unitOptions(opts jit.TargetOptions, target kernel.Target, gpuDefines []string) []kernel.Option {
	var out []kernel.Option
	if target == kernel.GPU {
		for _, d := range gpuDefines {
			out = append(out, kernel.WithDefine(d))
		}
	}
	for _, inc := range opts.EngineIncludes {
		out = append(out, kernel.WithInclude(inc))
	}
	return out
}

func compileError(u kernel.Unit, err error) error {
	var ce *core.CompileError
	if errors.As(err, &ce) {
		return err
	}
	return &core.CompileError{Unit: u.Name, Target: u.Target.String(), Err: err}
}

// rollback undoes a partial attach. Arrays are released before their
// buffers so the live values are copied back first.
func (a *attachment) rollback() {
	for _, arr := range a.arrays {
		arr.Release()
	}
	for _, buf := range a.buffers {
		_ = buf.Release()
	}
	for _, art := range a.artifacts {
		_ = art.Close()
	}
	a.arrays, a.buffers, a.artifacts = nil, nil, nil
}

// detach uninstalls the evaluator and releases everything attach acquired.
// Parameter values survive on the host.
func (a *attachment) detach() error {
	var errs []error
	if a.engine.IsAttached() {
		if err := a.engine.InstallEvaluator(nil); err != nil {
			errs = append(errs, err)
		}
	}
	for _, arr := range a.arrays {
		arr.Release()
	}
	for _, buf := range a.buffers {
		if err := buf.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, art := range a.artifacts {
		if err := art.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.arrays, a.buffers, a.artifacts = nil, nil, nil
	return errors.Join(errs...)
}
