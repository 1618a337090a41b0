package patch

import (
	"math"

	"github.com/google/uuid"
	"github.com/san-kum/hpmcpatch/internal/core"
	"github.com/san-kum/hpmcpatch/internal/hpmc"
	"github.com/san-kum/hpmcpatch/internal/jit"
	"github.com/san-kum/hpmcpatch/internal/kernel"
	"github.com/san-kum/hpmcpatch/internal/param"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

// ParamArrayName names the array user code reads as paramArray.
const ParamArrayName = "param_array"

// Potential is a user-defined isotropic or anisotropic pair energy with a
// single cutoff.
type Potential struct {
	cutoff float64
	code   string
	params *param.Array

	state State
	att   *attachment
}

// NewPotential validates its arguments; it does not compile anything.
func NewPotential(cutoff float64, code string, initial []float32) (*Potential, error) {
	if err := checkCutoff("new", "r_cut", cutoff); err != nil {
		return nil, err
	}
	arr, err := param.New(ParamArrayName, initial)
	if err != nil {
		return nil, err
	}
	return &Potential{cutoff: cutoff, code: code, params: arr}, nil
}

func (p *Potential) State() State             { return p.state }
func (p *Potential) Cutoff() float64          { return p.cutoff }
func (p *Potential) Code() string             { return p.code }
func (p *Potential) Parameters() *param.Array { return p.params }
func (p *Potential) IsAttached() bool         { return p.state == Attached }

// ArtifactIDs identifies the compiled units while attached.
func (p *Potential) ArtifactIDs() []uuid.UUID {
	if p.att == nil {
		return nil
	}
	return p.att.ids()
}

func (p *Potential) SetCutoff(cutoff float64) error {
	if p.state != Unattached {
		return core.Immutable("set", "r_cut")
	}
	if err := checkCutoff("set", "r_cut", cutoff); err != nil {
		return err
	}
	p.cutoff = cutoff
	return nil
}

func (p *Potential) SetCode(code string) error {
	if p.state != Unattached {
		return core.Immutable("set", "code")
	}
	p.code = code
	return nil
}

// Attach compiles the code for every target of the simulation's device and
// installs the result into its integrator.
func (p *Potential) Attach(sim *Simulation) error {
	const op = "attach"
	if p.state != Unattached {
		return core.Precondition(op, "potential is %s", p.state)
	}
	if err := checkSimulation(op, sim); err != nil {
		return err
	}
	if p.cutoff <= 0 {
		return core.Invalid(op, "r_cut", "cutoff %v must be positive", p.cutoff)
	}

	p.state = Attaching
	rcut := float32(p.cutoff)
	att, err := attach(sim, request{
		op:        op,
		name:      "patch",
		functions: []function{{role: "energy", code: p.code}},
		bindings:  []binding{{symbol: kernel.SymbolParam, arr: p.params}},
		evaluator: func(host []jit.EvalFunc) hpmc.Evaluator {
			return &scalarEvaluator{eval: host[0], rcut: rcut}
		},
	})
	if err != nil {
		p.state = Unattached
		return err
	}
	p.att = att
	p.state = Attached
	return nil
}

// Detach uninstalls the potential. Parameter values are kept.
func (p *Potential) Detach() error {
	if p.state != Attached {
		return nil
	}
	p.state = Detaching
	err := p.att.detach()
	p.att = nil
	p.state = Unattached
	return err
}

// TotalEnergy is the integrator's patch energy at timestep. ok is false
// when the potential or its integrator is not attached.
func (p *Potential) TotalEnergy(timestep uint64) (float64, bool) {
	if p.state != Attached || !p.att.engine.IsAttached() {
		return 0, false
	}
	return p.att.engine.ComputePatchEnergy(timestep), true
}

// PairEnergy evaluates the compiled function for one pair, applying the
// cutoff as the integrator does.
func (p *Potential) PairEnergy(rij vecmath.Vec3, typeI uint32, qi vecmath.Quat, di, chargeI float32,
	typeJ uint32, qj vecmath.Quat, dj, chargeJ float32) (float32, error) {
	if p.state != Attached {
		return 0, core.Precondition("energy", "potential is %s", p.state)
	}
	return p.att.ev.Energy(rij, typeI, qi, di, chargeI, typeJ, qj, dj, chargeJ), nil
}

type scalarEvaluator struct {
	eval jit.EvalFunc
	rcut float32
}

func (e *scalarEvaluator) Energy(rij vecmath.Vec3, typeI uint32, qi vecmath.Quat, di, chargeI float32,
	typeJ uint32, qj vecmath.Quat, dj, chargeJ float32) float32 {
	if vecmath.Dot(rij, rij) > e.rcut*e.rcut {
		return 0
	}
	return e.eval(rij, typeI, qi, di, chargeI, typeJ, qj, dj, chargeJ)
}

func (e *scalarEvaluator) Range(_, _ uint32) float32 { return e.rcut }

func checkCutoff(op, field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return core.Invalid(op, field, "cutoff %v must be finite and non-negative", v)
	}
	return nil
}
