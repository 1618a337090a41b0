package patch

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hpmcpatch/internal/storage"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

var _ = Describe("Records", func() {
	It("round-trips a potential", func() {
		p, err := NewPotential(1.1, squareWell, []float32{2.5, 1.3})
		Expect(err).NotTo(HaveOccurred())

		rec := p.Record()
		Expect(rec.Kind).To(Equal(KindPotential))
		Expect(rec.ID).NotTo(BeEmpty())

		back, err := RestorePotential(rec)
		Expect(err).NotTo(HaveOccurred())
		Expect(back.Cutoff()).To(Equal(1.1))
		Expect(back.Code()).To(Equal(squareWell))
		Expect(back.Parameters().Values()).To(Equal([]float32{2.5, 1.3}))
	})

	It("records live values while attached", func() {
		compiler := newCompiler()
		p, _ := NewPotential(1.1, scaledWell, []float32{0, 0})
		sim, _ := pairSim(1, compiler)
		Expect(p.Attach(sim)).To(Succeed())
		DeferCleanup(p.Detach)
		Expect(p.Parameters().Set(1, 4)).To(Succeed())

		Expect(p.Record().Fields[ParamArrayName]).To(Equal("0 4"))
	})

	It("round-trips a union potential with partial geometry", func() {
		u, err := NewUnionPotential(0.6, 1.1, constituentCount, squareWell, []float32{1}, []float32{0.5, 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(u.SetLeafCapacity(2)).To(Succeed())

		g := dumbbell()
		g.Orientations = []vecmath.Quat{vecmath.Identity(), vecmath.Q(0, 0, 0, 1)}
		g.TypeIDs = []uint32{3, 4}
		Expect(u.SetGeometry(0, g)).To(Succeed())
		Expect(u.SetGeometry(2, Geometry{
			Positions: []vecmath.Vec3{vecmath.V(0.25, 0, 0)},
			Diameters: []float32{0.5},
			Charges:   []float32{-1},
		})).To(Succeed())

		back, err := RestoreUnion(u.Record())
		Expect(err).NotTo(HaveOccurred())
		Expect(back.CutoffConstituent()).To(Equal(0.6))
		Expect(back.CutoffIsotropic()).To(Equal(1.1))
		Expect(back.CodeConstituent()).To(Equal(constituentCount))
		Expect(back.CodeIsotropic()).To(Equal(squareWell))
		Expect(back.LeafCapacity()).To(Equal(2))
		Expect(back.ConstituentParameters().Values()).To(Equal([]float32{0.5, 2}))
		Expect(back.NumTypes()).To(Equal(3))
		Expect(back.Geometry(0)).To(Equal(g))
		Expect(back.Geometry(1).Len()).To(BeZero())
		Expect(back.Geometry(2)).To(Equal(u.Geometry(2)))
	})

	It("refuses records of another kind", func() {
		_, err := RestoreUnion(storage.NewRecord(KindPotential))
		Expect(err).To(HaveOccurred())
		_, err = RestorePotential(storage.NewRecord(KindUnion))
		Expect(err).To(HaveOccurred())
	})

	It("reports malformed fields", func() {
		rec := storage.NewRecord(KindPotential)
		rec.Fields["r_cut"] = "1"
		rec.Fields[ParamArrayName] = "1 x"
		_, err := RestorePotential(rec)
		Expect(err).To(MatchError(ContainSubstring(ParamArrayName)))
	})

	Describe("union geometry count", func() {
		var rec storage.Record

		BeforeEach(func() {
			u, _ := NewUnionPotential(0.6, 1.1, constituentCount, squareWell, nil, []float32{1})
			Expect(u.SetGeometry(0, dumbbell())).To(Succeed())
			rec = u.Record()
			Expect(rec.Fields).To(HaveKeyWithValue("types", "1"))
		})

		It("reports a malformed count", func() {
			rec.Fields["types"] = "one"
			_, err := RestoreUnion(rec)
			Expect(err).To(MatchError(ContainSubstring("types")))
		})

		It("reports a negative count", func() {
			rec.Fields["types"] = "-1"
			_, err := RestoreUnion(rec)
			Expect(err).To(MatchError(ContainSubstring("types")))
		})

		It("reports a missing count when geometry is stored", func() {
			delete(rec.Fields, "types")
			_, err := RestoreUnion(rec)
			Expect(err).To(MatchError(ContainSubstring("types")))
		})

		It("accepts a missing count without geometry", func() {
			for key := range rec.Fields {
				if strings.HasPrefix(key, "type") {
					delete(rec.Fields, key)
				}
			}
			back, err := RestoreUnion(rec)
			Expect(err).NotTo(HaveOccurred())
			Expect(back.NumTypes()).To(BeZero())
		})
	})
})
