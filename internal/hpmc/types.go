package hpmc

import (
	"math"

	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

// Evaluator is a pair energy installed into the integrator. Energy receives
// r_ij = r_j - r_i and must be safe for concurrent use.
type Evaluator interface {
	Energy(rij vecmath.Vec3, typeI uint32, qi vecmath.Quat, di, chargeI float32,
		typeJ uint32, qj vecmath.Quat, dj, chargeJ float32) float32
	// Range is the centre distance beyond which Energy is zero.
	Range(typeI, typeJ uint32) float32
}

// Preparer is implemented by evaluators that need serial work before a
// parallel evaluation phase.
type Preparer interface {
	Prepare()
}

type Particle struct {
	Position    vecmath.Vec3
	Orientation vecmath.Quat
	Type        uint32
	Diameter    float32
	Charge      float32
}

func (p Particle) IsValid() bool {
	return p.Position.IsFinite() && p.Orientation.IsFinite() &&
		!math.IsNaN(float64(p.Diameter)) && !math.IsInf(float64(p.Diameter), 0) &&
		!math.IsNaN(float64(p.Charge)) && !math.IsInf(float64(p.Charge), 0)
}

// Box is a cubic periodic box of side L centred on the origin. L <= 0 means
// no periodicity.
type Box struct {
	L float32
}

// MinImage returns the periodic image of d closest to the origin.
func (b Box) MinImage(d vecmath.Vec3) vecmath.Vec3 {
	if b.L <= 0 {
		return d
	}
	return vecmath.V(b.image(d.X), b.image(d.Y), b.image(d.Z))
}

func (b Box) image(x float32) float32 {
	return x - b.L*float32(math.Round(float64(x/b.L)))
}

// Wrap maps p back into [-L/2, L/2).
func (b Box) Wrap(p vecmath.Vec3) vecmath.Vec3 {
	return b.MinImage(p)
}

type Config struct {
	Box      float32
	KT       float64
	MoveSize float32
	Seed     int64
	// Workers bounds pair-sum parallelism; 0 uses every CPU.
	Workers int
}

type Result struct {
	StepsTaken uint64
	Accepted   uint64
	Rejected   uint64
	Energies   []float64
}

func (r *Result) AcceptanceRatio() float64 {
	total := r.Accepted + r.Rejected
	if total == 0 {
		return 0
	}
	return float64(r.Accepted) / float64(total)
}
