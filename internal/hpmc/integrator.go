package hpmc

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/hpmcpatch/internal/compute"
	"github.com/san-kum/hpmcpatch/internal/param"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

// Integrator is a hard-sphere Monte Carlo engine with an optional patch
// energy. Each step makes one translation trial per particle.
type Integrator struct {
	particles []Particle
	box       Box
	kT        float64
	moveSize  float32
	rng       *rand.Rand
	device    compute.Device

	attached bool
	ev       Evaluator
	params   []*param.Array

	timestep uint64
	accepted uint64
	rejected uint64
}

func New(particles []Particle, cfg Config) *Integrator {
	var dev compute.Device = compute.NewCPU()
	if cfg.Workers > 0 {
		dev = compute.NewCPUWorkers(cfg.Workers)
	}
	ps := make([]Particle, len(particles))
	copy(ps, particles)
	return &Integrator{
		particles: ps,
		box:       Box{L: cfg.Box},
		kT:        cfg.KT,
		moveSize:  cfg.MoveSize,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		device:    dev,
	}
}

// SetDevice selects where pair sums run.
func (in *Integrator) SetDevice(d compute.Device) { in.device = d }

func (in *Integrator) Kind() string     { return "hpmc" }
func (in *Integrator) IsAttached() bool { return in.attached }
func (in *Integrator) Timestep() uint64 { return in.timestep }
func (in *Integrator) Box() Box         { return in.box }

// Attach validates the configuration and readies the integrator for runs.
func (in *Integrator) Attach() error {
	for i, p := range in.particles {
		if !p.IsValid() {
			return fmt.Errorf("particle %d: %w", i, ErrInvalidState)
		}
	}
	for i := range in.particles {
		for j := i + 1; j < len(in.particles); j++ {
			if in.overlaps(i, j, in.particles[i].Position) {
				return fmt.Errorf("particles %d and %d: %w", i, j, ErrOverlap)
			}
		}
	}
	in.attached = true
	return nil
}

// Detach drops any installed evaluator.
func (in *Integrator) Detach() {
	in.ev, in.params = nil, nil
	in.attached = false
}

// InstallEvaluator makes ev part of the acceptance criterion. params are the
// arrays ev reads; the integrator only keeps references to them. A nil ev
// removes the current one.
func (in *Integrator) InstallEvaluator(ev Evaluator, params ...*param.Array) error {
	if !in.attached {
		return ErrNotAttached
	}
	if ev == nil {
		in.ev, in.params = nil, nil
		return nil
	}
	in.ev = ev
	in.params = append([]*param.Array(nil), params...)
	return nil
}

func (in *Integrator) Evaluator() Evaluator       { return in.ev }
func (in *Integrator) Parameters() []*param.Array { return in.params }

func (in *Integrator) Particles() []Particle {
	out := make([]Particle, len(in.particles))
	copy(out, in.particles)
	return out
}

// Counters returns the accepted and rejected trial moves so far.
func (in *Integrator) Counters() (accepted, rejected uint64) {
	return in.accepted, in.rejected
}

// ComputePatchEnergy sums the installed pair energy over all pairs. It is
// zero when nothing is installed.
func (in *Integrator) ComputePatchEnergy(timestep uint64) float64 {
	if in.ev == nil {
		return 0
	}
	if p, ok := in.ev.(Preparer); ok {
		p.Prepare()
	}
	n := len(in.particles)
	return in.device.ParallelSum(n, func(i int) float64 {
		sum := 0.0
		pi := in.particles[i].Position
		for j := i + 1; j < n; j++ {
			sum += float64(in.pairEnergy(i, pi, j))
		}
		return sum
	})
}

// pairEnergy evaluates i at position pi against j.
func (in *Integrator) pairEnergy(i int, pi vecmath.Vec3, j int) float32 {
	a, b := &in.particles[i], &in.particles[j]
	rij := in.box.MinImage(b.Position.Sub(pi))
	rc := in.ev.Range(a.Type, b.Type)
	if vecmath.Dot(rij, rij) > rc*rc {
		return 0
	}
	return in.ev.Energy(rij, a.Type, a.Orientation, a.Diameter, a.Charge,
		b.Type, b.Orientation, b.Diameter, b.Charge)
}

func (in *Integrator) overlaps(i, j int, pi vecmath.Vec3) bool {
	a, b := &in.particles[i], &in.particles[j]
	sigma := (a.Diameter + b.Diameter) / 2
	if sigma <= 0 {
		return false
	}
	r := in.box.MinImage(b.Position.Sub(pi))
	return vecmath.Dot(r, r) < sigma*sigma
}

// Run performs steps Monte Carlo sweeps and records the patch energy after
// each one.
func (in *Integrator) Run(ctx context.Context, steps int) (*Result, error) {
	if !in.attached {
		return nil, ErrNotAttached
	}
	res := &Result{Energies: make([]float64, 0, steps)}

	for s := 0; s < steps; s++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		if err := in.sweep(res); err != nil {
			return res, &StepError{Step: in.timestep, Wrapped: err}
		}
		in.timestep++
		res.StepsTaken++

		e := in.ComputePatchEnergy(in.timestep)
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return res, &StepError{Step: in.timestep, Wrapped: ErrInvalidEnergy}
		}
		res.Energies = append(res.Energies, e)
	}
	return res, nil
}

func (in *Integrator) sweep(res *Result) error {
	n := len(in.particles)
	if n == 0 {
		return nil
	}
	if p, ok := in.ev.(Preparer); ok {
		p.Prepare()
	}

	for t := 0; t < n; t++ {
		i := in.rng.Intn(n)
		d := in.moveSize
		trial := in.particles[i].Position.Add(vecmath.V(
			d*(2*in.rng.Float32()-1),
			d*(2*in.rng.Float32()-1),
			d*(2*in.rng.Float32()-1),
		))
		trial = in.box.Wrap(trial)
		if !trial.IsFinite() {
			return ErrInvalidState
		}

		if in.accept(i, trial) {
			in.particles[i].Position = trial
			in.accepted++
			res.Accepted++
		} else {
			in.rejected++
			res.Rejected++
		}
	}
	return nil
}

func (in *Integrator) accept(i int, trial vecmath.Vec3) bool {
	n := len(in.particles)
	for j := 0; j < n; j++ {
		if j != i && in.overlaps(i, j, trial) {
			return false
		}
	}
	if in.ev == nil {
		return true
	}

	old := in.particles[i].Position
	dU := in.device.ParallelSum(n, func(j int) float64 {
		if j == i {
			return 0
		}
		return float64(in.pairEnergy(i, trial, j)) - float64(in.pairEnergy(i, old, j))
	})
	if math.IsNaN(dU) {
		return false
	}
	if dU <= 0 {
		return true
	}
	if in.kT <= 0 {
		return false
	}
	return in.rng.Float64() < math.Exp(-dU/in.kT)
}
