package patch

import (
	"github.com/san-kum/hpmcpatch/internal/compute"
	"github.com/san-kum/hpmcpatch/internal/hpmc"
	"github.com/san-kum/hpmcpatch/internal/jit"
	"github.com/san-kum/hpmcpatch/internal/param"
)

// EngineKind is the only engine kind potentials attach to.
const EngineKind = "hpmc"

// Engine is the move engine a potential is installed into.
type Engine interface {
	Kind() string
	IsAttached() bool
	// InstallEvaluator replaces the patch evaluator; nil removes it.
	InstallEvaluator(ev hpmc.Evaluator, params ...*param.Array) error
	ComputePatchEnergy(timestep uint64) float64
}

// Simulation is everything attach needs: the engine, the device it runs on
// and the compiler service.
type Simulation struct {
	Engine   Engine
	Device   compute.Device
	Compiler jit.Compiler
	Settings jit.Settings
}
