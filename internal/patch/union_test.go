package patch

import (
	"math"
	"math/rand"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hpmcpatch/internal/compute"
	"github.com/san-kum/hpmcpatch/internal/core"
	"github.com/san-kum/hpmcpatch/internal/kernel"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

func dumbbell() Geometry {
	return Geometry{Positions: []vecmath.Vec3{vecmath.V(0, 0, -0.5), vecmath.V(0, 0, 0.5)}}
}

func randomGeometry(rng *rand.Rand, n int) Geometry {
	g := Geometry{
		Positions: make([]vecmath.Vec3, n),
		Diameters: make([]float32, n),
	}
	for i := range g.Positions {
		g.Positions[i] = vecmath.V(rng.Float32()*2-1, rng.Float32()*2-1, rng.Float32()*2-1)
		g.Diameters[i] = rng.Float32() * 0.3
	}
	return g
}

// countPairs is the number of constituent pairs within range for unrotated
// particles separated by rij.
func countPairs(a, b Geometry, rij vecmath.Vec3, rcut float32) float32 {
	var n float32
	for ka, pa := range a.Positions {
		for kb, pb := range b.Positions {
			rab := pb.Add(rij).Sub(pa)
			rc := rcut + (a.Diameters[ka]+b.Diameters[kb])/2
			if vecmath.Dot(rab, rab) <= rc*rc {
				n++
			}
		}
	}
	return n
}

var _ = Describe("UnionPotential", func() {
	var (
		compiler *countingCompiler
		id       = vecmath.Identity()
	)

	BeforeEach(func() {
		compiler = newCompiler()
	})

	Describe("construction", func() {
		It("defaults the leaf capacity to 4", func() {
			u, err := NewUnionPotential(1, 0, constituentCount, "", nil, []float32{1})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.LeafCapacity()).To(Equal(DefaultLeafCapacity))
			Expect(u.State()).To(Equal(Unattached))
		})

		It("validates cutoffs and parameters", func() {
			_, err := NewUnionPotential(-1, 0, "", "", nil, nil)
			Expect(err).To(MatchError(core.ErrInvalidParameter))
			_, err = NewUnionPotential(1, math.Inf(1), "", "", nil, nil)
			Expect(err).To(MatchError(core.ErrInvalidParameter))
			_, err = NewUnionPotential(1, 1, "", "", nil, []float32{float32(math.NaN())})
			Expect(err).To(MatchError(core.ErrInvalidParameter))
		})

		It("rejects a leaf capacity below 1", func() {
			u, _ := NewUnionPotential(1, 0, "", "", nil, nil)
			Expect(u.SetLeafCapacity(0)).To(MatchError(core.ErrInvalidParameter))
			Expect(u.LeafCapacity()).To(Equal(DefaultLeafCapacity))
		})
	})

	Describe("geometry", func() {
		var u *UnionPotential

		BeforeEach(func() {
			u, _ = NewUnionPotential(0.5, 0, constituentCount, "", nil, []float32{1})
		})

		It("defaults missing fields", func() {
			Expect(u.SetPositions(1, dumbbell().Positions)).To(Succeed())
			g := u.Geometry(1)
			Expect(g.Len()).To(Equal(2))
			Expect(g.Orientations).To(BeNil())
			Expect(g.orientation(1)).To(Equal(vecmath.Identity()))
			Expect(g.diameter(0)).To(BeZero())
			Expect(u.NumTypes()).To(Equal(2))
			Expect(u.Geometry(0).Len()).To(BeZero())
		})

		It("requires matching lengths", func() {
			Expect(u.SetGeometry(0, dumbbell())).To(Succeed())
			Expect(u.SetDiameters(0, []float32{1, 1})).To(Succeed())

			Expect(u.SetCharges(0, []float32{1})).To(MatchError(core.ErrInvalidParameter))
			Expect(u.SetPositions(0, []vecmath.Vec3{{}})).To(MatchError(core.ErrInvalidParameter))
			Expect(u.Geometry(0).Len()).To(Equal(2))
			Expect(u.Geometry(0).Charges).To(BeNil())
		})

		It("applies a full geometry atomically", func() {
			Expect(u.SetGeometry(0, dumbbell())).To(Succeed())
			bad := Geometry{
				Positions: []vecmath.Vec3{{}, {}, {}},
				Diameters: []float32{1, -1, 1},
			}
			Expect(u.SetGeometry(0, bad)).To(MatchError(core.ErrInvalidParameter))
			Expect(u.Geometry(0)).To(Equal(dumbbell()))
		})

		It("rejects non-finite values and negative types", func() {
			nan := float32(math.NaN())
			Expect(u.SetPositions(0, []vecmath.Vec3{vecmath.V(nan, 0, 0)})).To(MatchError(core.ErrInvalidParameter))
			Expect(u.SetPositions(-1, nil)).To(MatchError(core.ErrInvalidParameter))
		})

		It("computes extents and ranges", func() {
			g := dumbbell()
			g.Diameters = []float32{0.2, 0.4}
			Expect(u.SetGeometry(0, g)).To(Succeed())
			// 2 * (0.5 + 0.2)
			Expect(u.Extent(0)).To(BeNumerically("~", 1.4, 1e-6))
			Expect(u.Range(0, 0)).To(BeNumerically("~", 0.5+1.4, 1e-6))
			Expect(u.Range(0, 7)).To(BeZero())
			Expect(u.Extent(7)).To(BeZero())
		})
	})

	Describe("evaluation", func() {
		It("equals the isotropic term without constituents for any leaf capacity", func() {
			for _, capacity := range []int{1, 2, 4, 16} {
				u, err := NewUnionPotential(2, 1.1, constituentCount, squareWell, nil, []float32{1})
				Expect(err).NotTo(HaveOccurred())
				Expect(u.SetLeafCapacity(capacity)).To(Succeed())
				sim, _ := pairSim(1.0, compiler)
				Expect(u.Attach(sim)).To(Succeed())

				for _, r := range []float32{0.5, 1.0, 1.09, 1.2, 3} {
					want := float32(0)
					if r*r < 1.21 {
						want = -1
					}
					Expect(energyAt(u, vecmath.V(r, 0, 0), id, id)).To(Equal(want), "r=%v capacity=%d", r, capacity)
				}
				Expect(u.Detach()).To(Succeed())
			}
		})

		It("disables the isotropic term with a zero cutoff", func() {
			u, _ := NewUnionPotential(2, 0, constituentCount, squareWell, nil, []float32{1})
			sim, _ := pairSim(1.0, compiler)
			Expect(u.Attach(sim)).To(Succeed())
			DeferCleanup(u.Detach)
			Expect(energyAt(u, vecmath.V(1, 0, 0), id, id)).To(BeZero())
		})

		It("sums constituent pairs within range", func() {
			u, _ := NewUnionPotential(0.6, 0, constituentCount, "", nil, []float32{1})
			Expect(u.SetGeometry(0, dumbbell())).To(Succeed())
			sim, in := pairSim(0.5, compiler)
			Expect(u.Attach(sim)).To(Succeed())
			DeferCleanup(u.Detach)

			Expect(energyAt(u, vecmath.V(0.5, 0, 0), id, id)).To(Equal(float32(-2)))
			Expect(energyAt(u, vecmath.V(1.0, 0, 0), id, id)).To(BeZero())
			Expect(in.ComputePatchEnergy(0)).To(Equal(-2.0))
		})

		It("places constituents with the particle orientation", func() {
			u, _ := NewUnionPotential(0.6, 0, constituentCount, "", nil, []float32{1})
			Expect(u.SetGeometry(0, dumbbell())).To(Succeed())
			sim, _ := pairSim(0.5, compiler)
			Expect(u.Attach(sim)).To(Succeed())
			DeferCleanup(u.Detach)

			// j turned 90 degrees about x: every pair is sqrt(0.75) apart
			h := float32(math.Sqrt(0.5))
			qx := vecmath.Q(h, h, 0, 0)
			Expect(energyAt(u, vecmath.V(0.5, 0, 0), id, qx)).To(BeZero())

			Expect(u.Detach()).To(Succeed())
			Expect(u.SetCutoffConstituent(0.9)).To(Succeed())
			Expect(u.Attach(sim)).To(Succeed())
			Expect(energyAt(u, vecmath.V(0.5, 0, 0), id, qx)).To(Equal(float32(-4)))
		})

		It("scales with the constituent parameters", func() {
			u, _ := NewUnionPotential(0.6, 0, constituentCount, "", nil, []float32{1})
			Expect(u.SetGeometry(0, dumbbell())).To(Succeed())
			sim, _ := pairSim(0.5, compiler)
			Expect(u.Attach(sim)).To(Succeed())
			DeferCleanup(u.Detach)

			Expect(u.ConstituentParameters().Set(0, 2.5)).To(Succeed())
			Expect(energyAt(u, vecmath.V(0.5, 0, 0), id, id)).To(Equal(float32(-5)))
		})

		It("culls exactly for any leaf capacity", func() {
			rng := rand.New(rand.NewSource(5))
			ga, gb := randomGeometry(rng, 23), randomGeometry(rng, 17)
			const rcut = 0.25

			u, _ := NewUnionPotential(rcut, 0, constituentCount, "", nil, []float32{1})
			Expect(u.SetGeometry(0, ga)).To(Succeed())
			Expect(u.SetGeometry(1, gb)).To(Succeed())
			sim, _ := pairSim(1.0, compiler)
			Expect(u.Attach(sim)).To(Succeed())
			DeferCleanup(u.Detach)

			seps := []vecmath.Vec3{vecmath.V(0.3, 0, 0), vecmath.V(1, 0.5, -0.2), vecmath.V(0, 0, 1.7), vecmath.V(2, 2, 2)}
			for _, capacity := range []int{1, 3, 4, 100} {
				Expect(u.SetLeafCapacity(capacity)).To(Succeed())
				u.Prepare()
				for _, rij := range seps {
					want := -countPairs(ga, gb, rij, rcut)
					got := u.att.ev.Energy(rij, 0, id, 0, 0, 1, id, 0, 0)
					Expect(got).To(Equal(want), "rij=%v capacity=%d", rij, capacity)

					// swapping the roles walks the other tree
					back := u.att.ev.Energy(rij.Neg(), 1, id, 0, 0, 0, id, 0, 0)
					Expect(back).To(Equal(want))
				}
			}
		})
	})

	Describe("while attached", func() {
		var (
			u   *UnionPotential
			sim *Simulation
		)

		BeforeEach(func() {
			u, _ = NewUnionPotential(0.6, 1.1, constituentCount, squareWell, []float32{1}, []float32{1})
			Expect(u.SetGeometry(0, dumbbell())).To(Succeed())
			sim, _ = pairSim(0.5, compiler)
			Expect(u.Attach(sim)).To(Succeed())
			DeferCleanup(u.Detach)
		})

		It("reflects geometry changes in the next evaluation", func() {
			Expect(energyAt(u, vecmath.V(0.5, 0, 0), id, id)).To(Equal(float32(-3)))

			three := dumbbell()
			three.Positions = append(three.Positions, vecmath.V(0, 0, 0))
			Expect(u.SetGeometry(0, three)).To(Succeed())
			Expect(energyAt(u, vecmath.V(0.5, 0, 0), id, id)).To(Equal(float32(-4)))

			Expect(u.SetPositions(0, nil)).To(Succeed())
			Expect(energyAt(u, vecmath.V(0.5, 0, 0), id, id)).To(Equal(float32(-1)))
		})

		It("gives the same energy after a leaf capacity change", func() {
			before := energyAt(u, vecmath.V(0.5, 0, 0), id, id)
			Expect(u.SetLeafCapacity(1)).To(Succeed())
			Expect(energyAt(u, vecmath.V(0.5, 0, 0), id, id)).To(Equal(before))
		})

		It("rejects code and cutoff changes", func() {
			Expect(u.SetCodeConstituent(squareWell)).To(MatchError(core.ErrAttachedImmutable))
			Expect(u.SetCodeIsotropic("")).To(MatchError(core.ErrAttachedImmutable))
			Expect(u.SetCutoffConstituent(1)).To(MatchError(core.ErrAttachedImmutable))
			Expect(u.SetCutoffIsotropic(1)).To(MatchError(core.ErrAttachedImmutable))
			Expect(u.CodeConstituent()).To(Equal(constituentCount))
		})

		It("freezes both array lengths", func() {
			Expect(u.Parameters().Resize(4)).To(MatchError(core.ErrAttachedImmutable))
			Expect(u.ConstituentParameters().Resize(4)).To(MatchError(core.ErrAttachedImmutable))
		})

		It("reports the total energy through the integrator", func() {
			e, ok := u.TotalEnergy(0)
			Expect(ok).To(BeTrue())
			Expect(e).To(Equal(-3.0))
			Expect(u.ArtifactIDs()).To(HaveLen(2))
		})
	})

	It("preserves both arrays across detach", func() {
		u, _ := NewUnionPotential(0.6, 0, constituentCount, "", []float32{0}, []float32{0, 0})
		sim, _ := pairSim(1, compiler)
		Expect(u.Attach(sim)).To(Succeed())
		Expect(u.Parameters().Set(0, 7)).To(Succeed())
		Expect(u.ConstituentParameters().Assign([]float32{2.5, 1.3})).To(Succeed())
		Expect(u.Detach()).To(Succeed())

		Expect(u.Parameters().Values()).To(Equal([]float32{7}))
		Expect(u.ConstituentParameters().Values()).To(Equal([]float32{2.5, 1.3}))
		Expect(compiler.buffers).To(BeZero())
		Expect(compiler.artifacts).To(BeZero())
	})

	It("reports no energy once the integrator detaches", func() {
		u, _ := NewUnionPotential(0.6, 1.1, constituentCount, squareWell, []float32{1}, []float32{1})
		sim, in := pairSim(0.5, compiler)
		Expect(u.Attach(sim)).To(Succeed())
		_, ok := u.TotalEnergy(0)
		Expect(ok).To(BeTrue())

		in.Detach()
		_, ok = u.TotalEnergy(0)
		Expect(ok).To(BeFalse())
		Expect(u.Detach()).To(Succeed())
		Expect(compiler.artifacts).To(BeZero())
	})

	It("rolls back when the constituent code does not compile", func() {
		u, _ := NewUnionPotential(0.6, 1, "return broken(;", squareWell, []float32{1}, []float32{1})
		sim, in := pairSim(1, compiler)
		Expect(u.Attach(sim)).To(MatchError(core.ErrCompilationFailed))
		Expect(u.State()).To(Equal(Unattached))
		Expect(compiler.artifacts).To(BeZero())
		Expect(u.Parameters().Attached()).To(BeFalse())
		Expect(in.Evaluator()).To(BeNil())
	})

	It("adds UNION_EVAL to device units only", func() {
		u, _ := NewUnionPotential(0.6, 1.1, constituentCount, squareWell, nil, []float32{1})
		sim, _ := pairSim(1, compiler)
		sim.Device = gpuDevice{CPU: compute.NewCPU(), arch: 70}
		Expect(u.Attach(sim)).To(Succeed())
		DeferCleanup(u.Detach)

		units := compiler.Compiled()
		Expect(units).To(HaveLen(4))
		for _, unit := range units {
			hasDefine := strings.Contains(unit.Source, "#define "+kernel.UnionEval+"\n")
			Expect(hasDefine).To(Equal(unit.Target == kernel.GPU), unit.Name)
		}
		Expect(units[0].Name).To(Equal("union_isotropic"))
		Expect(units[1].Name).To(Equal("union_constituent"))
		Expect(compiler.buffers).To(Equal(2))
	})
})
