package config

import (
	"math"
	"sort"

	"github.com/san-kum/hpmcpatch/internal/jit"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

// Preset is a ready-made potential with the Go renditions of its bodies, so
// it runs without a native toolchain.
type Preset struct {
	Description string
	Potential   PotentialConfig
	Kernels     map[string]jit.Kernel
}

const (
	squareWellBody = `float rsq = dot(r_ij, r_ij);
if (rsq < paramArray[0] * paramArray[0])
    return -paramArray[1];
return 0.0f;`

	softRepulsionBody = `float r = fast::sqrt(dot(r_ij, r_ij));
if (r >= paramArray[0])
    return 0.0f;
float x = 1.0f - r / paramArray[0];
return paramArray[1] * x * x;`

	lennardJonesBody = `float rsq = dot(r_ij, r_ij);
float sr2 = paramArray[1] * paramArray[1] / rsq;
float sr6 = sr2 * sr2 * sr2;
return 4.0f * paramArray[0] * (sr6 * sr6 - sr6);`

	dipoleBody = `vec3<float> ni = rotate(q_i, vec3<float>(0.0f, 0.0f, 1.0f));
vec3<float> nj = rotate(q_j, vec3<float>(0.0f, 0.0f, 1.0f));
float rsq = dot(r_ij, r_ij);
float r = fast::sqrt(rsq);
vec3<float> rhat = r_ij / r;
return paramArray[0] * (dot(ni, nj) - 3.0f * dot(ni, rhat) * dot(nj, rhat)) / (rsq * r);`

	constituentWellBody = `float rsq = dot(r_ij, r_ij);
if (rsq < unionParamArray[0] * unionParamArray[0])
    return -unionParamArray[1] * charge_i * charge_j;
return 0.0f;`
)

var Presets = map[string]*Preset{
	"square_well": {
		Description: "attractive well of depth eps out to lambda",
		Potential: PotentialConfig{
			Kind: "patch", RCut: 1.5, Code: squareWellBody,
			Params: []float32{1.5, 1.0},
		},
		Kernels: map[string]jit.Kernel{squareWellBody: squareWell},
	},
	"soft_repulsion": {
		Description: "harmonic overlap penalty inside sigma",
		Potential: PotentialConfig{
			Kind: "patch", RCut: 1.2, Code: softRepulsionBody,
			Params: []float32{1.2, 5.0},
		},
		Kernels: map[string]jit.Kernel{softRepulsionBody: softRepulsion},
	},
	"lennard_jones": {
		Description: "12-6 Lennard-Jones with eps and sigma",
		Potential: PotentialConfig{
			Kind: "patch", RCut: 2.5, Code: lennardJonesBody,
			Params: []float32{1.0, 1.0},
		},
		Kernels: map[string]jit.Kernel{lennardJonesBody: lennardJones},
	},
	"dipole": {
		Description: "point dipoles along each particle's body z axis",
		Potential: PotentialConfig{
			Kind: "patch", RCut: 3.0, Code: dipoleBody,
			Params: []float32{1.0},
		},
		Kernels: map[string]jit.Kernel{dipoleBody: dipole},
	},
	"dumbbell": {
		Description: "two charged constituents per particle with a short-ranged well",
		Potential: PotentialConfig{
			Kind:              "union",
			RCutConstituent:   0.5,
			CodeConstituent:   constituentWellBody,
			ConstituentParams: []float32{0.5, 1.0},
			LeafCapacity:      4,
			Constituents: []ConstituentConfig{
				{Position: [3]float32{0, 0, -0.5}, Diameter: 0.5, Charge: 1},
				{Position: [3]float32{0, 0, 0.5}, Diameter: 0.5, Charge: -1},
			},
		},
		Kernels: map[string]jit.Kernel{constituentWellBody: constituentWell},
	},
}

func GetPreset(name string) *Preset {
	return Presets[name]
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterKernels makes every preset body compile on c.
func RegisterKernels(c *jit.GoCompiler) {
	for _, p := range Presets {
		for body, k := range p.Kernels {
			c.Register(body, k)
		}
	}
}

func squareWell(p jit.Params, rij vecmath.Vec3, _ uint32, _ vecmath.Quat, _, _ float32,
	_ uint32, _ vecmath.Quat, _, _ float32) float32 {
	lambda := p.Param(0)
	if vecmath.Dot(rij, rij) < lambda*lambda {
		return -p.Param(1)
	}
	return 0
}

func softRepulsion(p jit.Params, rij vecmath.Vec3, _ uint32, _ vecmath.Quat, _, _ float32,
	_ uint32, _ vecmath.Quat, _, _ float32) float32 {
	r := rij.Norm()
	sigma := p.Param(0)
	if r >= sigma {
		return 0
	}
	x := 1 - r/sigma
	return p.Param(1) * x * x
}

func lennardJones(p jit.Params, rij vecmath.Vec3, _ uint32, _ vecmath.Quat, _, _ float32,
	_ uint32, _ vecmath.Quat, _, _ float32) float32 {
	sigma := p.Param(1)
	sr2 := sigma * sigma / vecmath.Dot(rij, rij)
	sr6 := sr2 * sr2 * sr2
	return 4 * p.Param(0) * (sr6*sr6 - sr6)
}

func dipole(p jit.Params, rij vecmath.Vec3, _ uint32, qi vecmath.Quat, _, _ float32,
	_ uint32, qj vecmath.Quat, _, _ float32) float32 {
	z := vecmath.V(0, 0, 1)
	ni, nj := vecmath.Rotate(qi, z), vecmath.Rotate(qj, z)
	rsq := vecmath.Dot(rij, rij)
	r := float32(math.Sqrt(float64(rsq)))
	rhat := rij.Scale(1 / r)
	return p.Param(0) * (vecmath.Dot(ni, nj) - 3*vecmath.Dot(ni, rhat)*vecmath.Dot(nj, rhat)) / (rsq * r)
}

func constituentWell(p jit.Params, rij vecmath.Vec3, _ uint32, _ vecmath.Quat, _, chargeI float32,
	_ uint32, _ vecmath.Quat, _, chargeJ float32) float32 {
	rc := p.Union(0)
	if vecmath.Dot(rij, rij) < rc*rc {
		return -p.Union(1) * chargeI * chargeJ
	}
	return 0
}
