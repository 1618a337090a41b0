package patch

import (
	"errors"
	"math"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hpmcpatch/internal/compute"
	"github.com/san-kum/hpmcpatch/internal/core"
	"github.com/san-kum/hpmcpatch/internal/jit"
	"github.com/san-kum/hpmcpatch/internal/kernel"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

var _ = Describe("Potential", func() {
	var compiler *countingCompiler

	BeforeEach(func() {
		compiler = newCompiler()
	})

	Describe("construction", func() {
		It("rejects non-finite parameters", func() {
			_, err := NewPotential(1, squareWell, []float32{1, float32(math.NaN())})
			Expect(err).To(MatchError(core.ErrInvalidParameter))
		})

		It("rejects a negative cutoff", func() {
			_, err := NewPotential(-1, squareWell, nil)
			Expect(err).To(MatchError(core.ErrInvalidParameter))
		})

		It("starts unattached", func() {
			p, err := NewPotential(1.1, squareWell, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.State()).To(Equal(Unattached))
			Expect(p.ArtifactIDs()).To(BeEmpty())
			_, ok := p.TotalEnergy(0)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("attach preconditions", func() {
		DescribeTable("fail before compiling anything",
			func(build func() *Simulation) {
				p, err := NewPotential(1.1, squareWell, []float32{1})
				Expect(err).NotTo(HaveOccurred())

				Expect(p.Attach(build())).To(MatchError(core.ErrPrecondition))
				Expect(p.State()).To(Equal(Unattached))
				Expect(p.Parameters().Attached()).To(BeFalse())
				Expect(compiler.Compiled()).To(BeEmpty())
			},
			Entry("no simulation", func() *Simulation { return nil }),
			Entry("no integrator", func() *Simulation {
				return &Simulation{Compiler: compiler}
			}),
			Entry("wrong integrator kind", func() *Simulation {
				return &Simulation{Engine: &fakeEngine{kind: "md", attached: true}, Compiler: compiler}
			}),
			Entry("integrator not attached", func() *Simulation {
				return &Simulation{Engine: &fakeEngine{kind: EngineKind}, Compiler: compiler}
			}),
			Entry("no compiler", func() *Simulation {
				return &Simulation{Engine: &fakeEngine{kind: EngineKind, attached: true}}
			}),
		)

		It("leaves nothing installed", func() {
			engine := &fakeEngine{kind: "md", attached: true}
			p, _ := NewPotential(1.1, squareWell, nil)
			Expect(p.Attach(&Simulation{Engine: engine, Compiler: compiler})).NotTo(Succeed())
			Expect(engine.ev).To(BeNil())
		})

		It("requires a positive cutoff", func() {
			p, err := NewPotential(0, squareWell, nil)
			Expect(err).NotTo(HaveOccurred())
			sim, in := pairSim(1, compiler)
			Expect(p.Attach(sim)).To(MatchError(core.ErrInvalidParameter))
			Expect(in.Evaluator()).To(BeNil())
		})
	})

	Describe("square well", func() {
		It("is -1 inside the well and 0 outside", func() {
			p, err := NewPotential(1.1, squareWell, nil)
			Expect(err).NotTo(HaveOccurred())
			sim, _ := pairSim(1.0, compiler)
			Expect(p.Attach(sim)).To(Succeed())
			DeferCleanup(p.Detach)

			id := vecmath.Identity()
			Expect(energyAt(p, vecmath.V(1.0, 0, 0), id, id)).To(Equal(float32(-1)))
			Expect(energyAt(p, vecmath.V(1.2, 0, 0), id, id)).To(Equal(float32(0)))

			e, ok := p.TotalEnergy(0)
			Expect(ok).To(BeTrue())
			Expect(e).To(Equal(-1.0))
		})

		It("is 0 for a pair beyond the well", func() {
			p, _ := NewPotential(1.1, squareWell, nil)
			sim, _ := pairSim(1.2, compiler)
			Expect(p.Attach(sim)).To(Succeed())
			DeferCleanup(p.Detach)

			e, ok := p.TotalEnergy(0)
			Expect(ok).To(BeTrue())
			Expect(e).To(BeZero())
		})
	})

	Describe("while attached", func() {
		var (
			p   *Potential
			sim *Simulation
		)

		BeforeEach(func() {
			var err error
			p, err = NewPotential(2, scaledWell, []float32{1.1, 1})
			Expect(err).NotTo(HaveOccurred())
			sim, _ = pairSim(1.0, compiler)
			Expect(p.Attach(sim)).To(Succeed())
			DeferCleanup(p.Detach)
		})

		It("reads back written parameters", func() {
			arr := p.Parameters()
			for i := 0; i < arr.Len(); i++ {
				v := float32(i) + 0.75
				Expect(arr.Set(i, v)).To(Succeed())
				Expect(arr.At(i)).To(Equal(v))
			}
		})

		It("sees parameter writes without recompiling", func() {
			compiled := len(compiler.Compiled())
			e, _ := p.TotalEnergy(0)
			Expect(e).To(Equal(-1.0))

			Expect(p.Parameters().Set(1, 3)).To(Succeed())
			e, _ = p.TotalEnergy(1)
			Expect(e).To(Equal(-3.0))

			Expect(p.Parameters().Set(0, 0.5)).To(Succeed())
			e, _ = p.TotalEnergy(2)
			Expect(e).To(BeZero())
			Expect(compiler.Compiled()).To(HaveLen(compiled))
		})

		It("rejects resizing", func() {
			for _, n := range []int{0, 1, 2, 3, 100} {
				Expect(p.Parameters().Resize(n)).To(MatchError(core.ErrAttachedImmutable))
			}
			Expect(p.Parameters().Len()).To(Equal(2))
		})

		It("rejects code and cutoff changes", func() {
			Expect(p.SetCode(squareWell)).To(MatchError(core.ErrAttachedImmutable))
			Expect(p.SetCutoff(3)).To(MatchError(core.ErrAttachedImmutable))
			Expect(p.Code()).To(Equal(scaledWell))
			Expect(p.Cutoff()).To(Equal(2.0))
		})

		It("rejects a second attach", func() {
			Expect(p.Attach(sim)).To(MatchError(core.ErrPrecondition))
			Expect(p.State()).To(Equal(Attached))
		})

		It("identifies its artifacts", func() {
			ids := p.ArtifactIDs()
			Expect(ids).To(HaveLen(1))
		})
	})

	Describe("detach", func() {
		It("preserves parameter values across reattach", func() {
			p, err := NewPotential(1.1, scaledWell, []float32{0, 0})
			Expect(err).NotTo(HaveOccurred())
			sim, in := pairSim(1.0, compiler)

			Expect(p.Attach(sim)).To(Succeed())
			Expect(p.Parameters().Assign([]float32{2.5, 1.3})).To(Succeed())
			Expect(p.Detach()).To(Succeed())

			Expect(p.State()).To(Equal(Unattached))
			Expect(in.Evaluator()).To(BeNil())
			Expect(p.Parameters().Values()).To(Equal([]float32{2.5, 1.3}))
			Expect(compiler.artifacts).To(BeZero())
			Expect(compiler.buffers).To(BeZero())

			Expect(p.Attach(sim)).To(Succeed())
			Expect(p.Parameters().Values()).To(Equal([]float32{2.5, 1.3}))
			e, _ := p.TotalEnergy(0)
			Expect(e).To(BeNumerically("~", -1.3, 1e-6))
			Expect(p.Detach()).To(Succeed())
		})

		It("allows resizing and code changes again", func() {
			p, _ := NewPotential(1.1, squareWell, []float32{1})
			sim, _ := pairSim(1.0, compiler)
			Expect(p.Attach(sim)).To(Succeed())
			Expect(p.Detach()).To(Succeed())

			Expect(p.Parameters().Resize(3)).To(Succeed())
			Expect(p.SetCode(scaledWell)).To(Succeed())
			Expect(p.SetCutoff(2)).To(Succeed())
			_, ok := p.TotalEnergy(0)
			Expect(ok).To(BeFalse())
		})

		It("is a no-op when unattached", func() {
			p, _ := NewPotential(1.1, squareWell, nil)
			Expect(p.Detach()).To(Succeed())
		})

		It("reports no energy once the integrator detaches", func() {
			p, _ := NewPotential(1.1, squareWell, nil)
			sim, in := pairSim(1.0, compiler)
			Expect(p.Attach(sim)).To(Succeed())
			e, ok := p.TotalEnergy(0)
			Expect(ok).To(BeTrue())
			Expect(e).To(Equal(-1.0))

			in.Detach()
			_, ok = p.TotalEnergy(0)
			Expect(ok).To(BeFalse())

			Expect(p.Detach()).To(Succeed())
			Expect(compiler.artifacts).To(BeZero())
			Expect(compiler.buffers).To(BeZero())
		})
	})

	Describe("failures roll back", func() {
		It("reports compiler diagnostics", func() {
			p, _ := NewPotential(1.1, "return nonsense(;", []float32{1})
			sim, in := pairSim(1.0, compiler)

			err := p.Attach(sim)
			Expect(err).To(MatchError(core.ErrCompilationFailed))
			var ce *core.CompileError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Diagnostic).To(ContainSubstring("nonsense(;"))

			Expect(p.State()).To(Equal(Unattached))
			Expect(p.Parameters().Attached()).To(BeFalse())
			Expect(in.Evaluator()).To(BeNil())
		})

		It("releases everything when allocation fails", func() {
			compiler.failAllocate = true
			p, _ := NewPotential(1.1, squareWell, []float32{1})
			sim, in := pairSim(1.0, compiler)

			Expect(p.Attach(sim)).To(MatchError(core.ErrCompilationFailed))
			Expect(compiler.artifacts).To(BeZero())
			Expect(in.Evaluator()).To(BeNil())
		})

		It("releases everything when the integrator refuses the evaluator", func() {
			engine := &fakeEngine{kind: EngineKind, attached: true, installErr: errors.New("busy")}
			p, _ := NewPotential(1.1, squareWell, []float32{4, 5})
			Expect(p.Parameters().Set(0, 6)).To(Succeed())

			err := p.Attach(&Simulation{Engine: engine, Compiler: compiler, Device: compute.NewCPU()})
			Expect(err).To(MatchError(core.ErrPrecondition))
			Expect(compiler.artifacts).To(BeZero())
			Expect(compiler.buffers).To(BeZero())
			Expect(p.Parameters().Attached()).To(BeFalse())
			Expect(p.Parameters().Values()).To(Equal([]float32{6, 5}))
			Expect(engine.ev).To(BeNil())
		})
	})

	Describe("on a GPU device", func() {
		It("compiles host and device units sharing one buffer", func() {
			p, _ := NewPotential(1.1, scaledWell, []float32{1.1, 1})
			sim, _ := pairSim(1.0, compiler)
			sim.Device = gpuDevice{CPU: compute.NewCPU(), arch: 70}

			Expect(p.Attach(sim)).To(Succeed())
			DeferCleanup(p.Detach)

			units := compiler.Compiled()
			Expect(units).To(HaveLen(2))
			Expect(units[0].Target).To(Equal(kernel.CPU))
			Expect(units[1].Target).To(Equal(kernel.GPU))
			Expect(units[1].Source).To(ContainSubstring("__device__"))
			Expect(strings.Contains(units[1].Source, "#define "+kernel.UnionEval)).To(BeFalse())
			Expect(compiler.buffers).To(Equal(1))

			Expect(p.Parameters().Set(1, 2)).To(Succeed())
			e, _ := p.TotalEnergy(0)
			Expect(e).To(Equal(-2.0))
		})

		It("builds device units for the device architecture", func() {
			p, _ := NewPotential(1.1, squareWell, nil)
			sim, _ := pairSim(1.0, compiler)
			sim.Device = gpuDevice{CPU: compute.NewCPU(), arch: 61}

			Expect(p.Attach(sim)).To(Succeed())
			DeferCleanup(p.Detach)

			units := compiler.Compiled()
			Expect(units).To(HaveLen(2))
			Expect(units[0].Options.Compiler).To(Equal("c++"))
			Expect(units[0].Options.DeviceArch).To(BeZero())
			Expect(units[1].Options.Compiler).To(Equal("nvcc"))
			Expect(units[1].Options.DeviceArch).To(Equal(61))
		})

		It("keeps an architecture named in the settings", func() {
			p, _ := NewPotential(1.1, squareWell, nil)
			sim, _ := pairSim(1.0, compiler)
			sim.Device = gpuDevice{CPU: compute.NewCPU(), arch: 61}
			sim.Settings.GPU.DeviceArch = 80

			Expect(p.Attach(sim)).To(Succeed())
			DeferCleanup(p.Detach)

			Expect(compiler.Compiled()[1].Options.DeviceArch).To(Equal(80))
		})
	})

	It("includes engine headers from the settings", func() {
		p, _ := NewPotential(1.1, squareWell, nil)
		sim, _ := pairSim(1.0, compiler)
		sim.Settings = jit.Settings{CPU: jit.TargetOptions{EngineIncludes: []string{"hpmc/eval.h"}}}
		Expect(p.Attach(sim)).To(Succeed())
		DeferCleanup(p.Detach)

		Expect(compiler.Compiled()[0].Source).To(HaveSuffix("#include \"hpmc/eval.h\"\n"))
	})
})
