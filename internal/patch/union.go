package patch

import (
	"math"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/san-kum/hpmcpatch/internal/bvh"
	"github.com/san-kum/hpmcpatch/internal/core"
	"github.com/san-kum/hpmcpatch/internal/hpmc"
	"github.com/san-kum/hpmcpatch/internal/jit"
	"github.com/san-kum/hpmcpatch/internal/kernel"
	"github.com/san-kum/hpmcpatch/internal/param"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

const (
	// UnionArrayName names the array user code reads as unionParamArray.
	UnionArrayName = "param_array_constituent"

	DefaultLeafCapacity = 4
)

// Geometry lists the constituents of one particle type in the particle
// frame. Nil fields take their defaults: identity orientations and zero
// diameters, charges and type ids.
type Geometry struct {
	Positions    []vecmath.Vec3
	Orientations []vecmath.Quat
	Diameters    []float32
	Charges      []float32
	TypeIDs      []uint32
}

func (g Geometry) Len() int { return len(g.Positions) }

func (g Geometry) clone() Geometry {
	return Geometry{
		Positions:    cloneSlice(g.Positions),
		Orientations: cloneSlice(g.Orientations),
		Diameters:    cloneSlice(g.Diameters),
		Charges:      cloneSlice(g.Charges),
		TypeIDs:      cloneSlice(g.TypeIDs),
	}
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s...)
}

func (g Geometry) orientation(i int) vecmath.Quat {
	if g.Orientations == nil {
		return vecmath.Identity()
	}
	return g.Orientations[i]
}

func (g Geometry) diameter(i int) float32 {
	if g.Diameters == nil {
		return 0
	}
	return g.Diameters[i]
}

func (g Geometry) charge(i int) float32 {
	if g.Charges == nil {
		return 0
	}
	return g.Charges[i]
}

func (g Geometry) typeID(i int) uint32 {
	if g.TypeIDs == nil {
		return 0
	}
	return g.TypeIDs[i]
}

// validate checks that every non-nil field has one entry per position and
// that all values are finite.
func (g Geometry) validate(op string, typeID int) error {
	field := func(name string) string { return "type[" + strconv.Itoa(typeID) + "]." + name }
	n := len(g.Positions)
	lengths := []struct {
		name string
		set  bool
		len  int
	}{
		{"orientations", g.Orientations != nil, len(g.Orientations)},
		{"diameters", g.Diameters != nil, len(g.Diameters)},
		{"charges", g.Charges != nil, len(g.Charges)},
		{"typeids", g.TypeIDs != nil, len(g.TypeIDs)},
	}
	for _, l := range lengths {
		if l.set && l.len != n {
			return core.Invalid(op, field(l.name), "%d entries for %d positions", l.len, n)
		}
	}
	for i, p := range g.Positions {
		if !p.IsFinite() {
			return core.Invalid(op, field("positions"), "entry %d is not finite", i)
		}
	}
	for i, q := range g.Orientations {
		if !q.IsFinite() {
			return core.Invalid(op, field("orientations"), "entry %d is not finite", i)
		}
	}
	for i, d := range g.Diameters {
		if !finite32(d) || d < 0 {
			return core.Invalid(op, field("diameters"), "entry %d (%v) must be finite and non-negative", i, d)
		}
	}
	for i, c := range g.Charges {
		if !finite32(c) {
			return core.Invalid(op, field("charges"), "entry %d is not finite", i)
		}
	}
	return nil
}

func finite32(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// extent is the diameter of the smallest origin-centred sphere enclosing
// every constituent sphere.
func (g Geometry) extent() float32 {
	var r float32
	for i, p := range g.Positions {
		if d := p.Norm() + g.diameter(i)/2; d > r {
			r = d
		}
	}
	return 2 * r
}

type typeGeometry struct {
	geom   Geometry
	extent float32
	tree   *bvh.Tree
	dirty  bool
}

// UnionPotential treats each particle as a rigid set of point constituents.
// The energy of a pair is an isotropic term between the particle centres plus
// a constituent term summed over constituent pairs within range.
type UnionPotential struct {
	cutoffConstituent float64
	cutoffIsotropic   float64
	codeConstituent   string
	codeIsotropic     string
	params            *param.Array
	unionParams       *param.Array

	mu           sync.RWMutex
	leafCapacity int
	types        []*typeGeometry

	state State
	att   *attachment
}

func NewUnionPotential(cutoffConstituent, cutoffIsotropic float64, codeConstituent, codeIsotropic string,
	params, unionParams []float32) (*UnionPotential, error) {
	if err := checkCutoff("new", "r_cut_constituent", cutoffConstituent); err != nil {
		return nil, err
	}
	if err := checkCutoff("new", "r_cut_isotropic", cutoffIsotropic); err != nil {
		return nil, err
	}
	iso, err := param.New(ParamArrayName, params)
	if err != nil {
		return nil, err
	}
	cons, err := param.New(UnionArrayName, unionParams)
	if err != nil {
		return nil, err
	}
	return &UnionPotential{
		cutoffConstituent: cutoffConstituent,
		cutoffIsotropic:   cutoffIsotropic,
		codeConstituent:   codeConstituent,
		codeIsotropic:     codeIsotropic,
		params:            iso,
		unionParams:       cons,
		leafCapacity:      DefaultLeafCapacity,
	}, nil
}

func (u *UnionPotential) State() State                        { return u.state }
func (u *UnionPotential) IsAttached() bool                    { return u.state == Attached }
func (u *UnionPotential) CutoffConstituent() float64          { return u.cutoffConstituent }
func (u *UnionPotential) CutoffIsotropic() float64            { return u.cutoffIsotropic }
func (u *UnionPotential) CodeConstituent() string             { return u.codeConstituent }
func (u *UnionPotential) CodeIsotropic() string               { return u.codeIsotropic }
func (u *UnionPotential) Parameters() *param.Array            { return u.params }
func (u *UnionPotential) ConstituentParameters() *param.Array { return u.unionParams }

func (u *UnionPotential) ArtifactIDs() []uuid.UUID {
	if u.att == nil {
		return nil
	}
	return u.att.ids()
}

func (u *UnionPotential) SetCutoffConstituent(v float64) error {
	if u.state != Unattached {
		return core.Immutable("set", "r_cut_constituent")
	}
	if err := checkCutoff("set", "r_cut_constituent", v); err != nil {
		return err
	}
	u.cutoffConstituent = v
	return nil
}

func (u *UnionPotential) SetCutoffIsotropic(v float64) error {
	if u.state != Unattached {
		return core.Immutable("set", "r_cut_isotropic")
	}
	if err := checkCutoff("set", "r_cut_isotropic", v); err != nil {
		return err
	}
	u.cutoffIsotropic = v
	return nil
}

func (u *UnionPotential) SetCodeConstituent(code string) error {
	if u.state != Unattached {
		return core.Immutable("set", "code_constituent")
	}
	u.codeConstituent = code
	return nil
}

func (u *UnionPotential) SetCodeIsotropic(code string) error {
	if u.state != Unattached {
		return core.Immutable("set", "code_isotropic")
	}
	u.codeIsotropic = code
	return nil
}

func (u *UnionPotential) LeafCapacity() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.leafCapacity
}

// SetLeafCapacity may be called at any time; every tree is rebuilt before
// its next use.
func (u *UnionPotential) SetLeafCapacity(n int) error {
	if n < 1 {
		return core.Invalid("set", "leaf_capacity", "%d must be at least 1", n)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.leafCapacity = n
	u.markAllDirty()
	return nil
}

func (u *UnionPotential) markAllDirty() {
	for _, t := range u.types {
		if t != nil {
			t.dirty = true
		}
	}
}

// NumTypes is one more than the highest type id with geometry.
func (u *UnionPotential) NumTypes() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.types)
}

// Geometry returns a copy of the constituents of typeID.
func (u *UnionPotential) Geometry(typeID int) Geometry {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if t := u.typeAt(typeID); t != nil {
		return t.geom.clone()
	}
	return Geometry{}
}

func (u *UnionPotential) typeAt(typeID int) *typeGeometry {
	if typeID < 0 || typeID >= len(u.types) {
		return nil
	}
	return u.types[typeID]
}

// SetGeometry replaces the constituents of typeID. Either all of g is
// applied or none of it.
func (u *UnionPotential) SetGeometry(typeID int, g Geometry) error {
	return u.update("set", typeID, func(Geometry) Geometry { return g.clone() })
}

// SetPositions replaces the positions. The count may only change when no
// other field is set.
func (u *UnionPotential) SetPositions(typeID int, positions []vecmath.Vec3) error {
	return u.update("set", typeID, func(g Geometry) Geometry {
		g.Positions = cloneSlice(positions)
		return g
	})
}

func (u *UnionPotential) SetOrientations(typeID int, orientations []vecmath.Quat) error {
	return u.update("set", typeID, func(g Geometry) Geometry {
		g.Orientations = cloneSlice(orientations)
		return g
	})
}

func (u *UnionPotential) SetDiameters(typeID int, diameters []float32) error {
	return u.update("set", typeID, func(g Geometry) Geometry {
		g.Diameters = cloneSlice(diameters)
		return g
	})
}

func (u *UnionPotential) SetCharges(typeID int, charges []float32) error {
	return u.update("set", typeID, func(g Geometry) Geometry {
		g.Charges = cloneSlice(charges)
		return g
	})
}

func (u *UnionPotential) SetTypeIDs(typeID int, ids []uint32) error {
	return u.update("set", typeID, func(g Geometry) Geometry {
		g.TypeIDs = cloneSlice(ids)
		return g
	})
}

func (u *UnionPotential) update(op string, typeID int, apply func(Geometry) Geometry) error {
	if typeID < 0 {
		return core.Invalid(op, "type", "negative type id %d", typeID)
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	var cur Geometry
	if t := u.typeAt(typeID); t != nil {
		cur = t.geom
	}
	next := apply(cur)
	if err := next.validate(op, typeID); err != nil {
		return err
	}

	for len(u.types) <= typeID {
		u.types = append(u.types, nil)
	}
	u.types[typeID] = &typeGeometry{geom: next, extent: next.extent(), dirty: true}
	return nil
}

// Extent is the diameter of the sphere around the particle centre that
// encloses every constituent of typeID.
func (u *UnionPotential) Extent(typeID int) float32 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if t := u.typeAt(typeID); t != nil {
		return t.extent
	}
	return 0
}

// Range is the centre distance beyond which a pair of types cannot
// interact.
func (u *UnionPotential) Range(typeI, typeJ uint32) float32 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.rangeLocked(typeI, typeJ)
}

func (u *UnionPotential) rangeLocked(typeI, typeJ uint32) float32 {
	r := float32(u.cutoffIsotropic)
	a, b := u.typeAt(int(typeI)), u.typeAt(int(typeJ))
	if a == nil || b == nil || a.geom.Len() == 0 || b.geom.Len() == 0 {
		return r
	}
	if c := float32(u.cutoffConstituent) + (a.extent+b.extent)/2; c > r {
		r = c
	}
	return r
}

// Prepare rebuilds every dirty tree.
func (u *UnionPotential) Prepare() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, t := range u.types {
		if t == nil || !t.dirty {
			continue
		}
		spheres := make([]bvh.Sphere, t.geom.Len())
		for i, p := range t.geom.Positions {
			spheres[i] = bvh.Sphere{Center: p, Radius: t.geom.diameter(i) / 2}
		}
		t.tree = bvh.Build(spheres, u.leafCapacity)
		t.dirty = false
	}
}

// Attach compiles the isotropic and constituent code for every target and
// installs the union evaluator.
func (u *UnionPotential) Attach(sim *Simulation) error {
	const op = "attach"
	if u.state != Unattached {
		return core.Precondition(op, "potential is %s", u.state)
	}
	if err := checkSimulation(op, sim); err != nil {
		return err
	}

	u.state = Attaching
	att, err := attach(sim, request{
		op:   op,
		name: "union",
		functions: []function{
			{role: "isotropic", code: u.codeIsotropic},
			{role: "constituent", code: u.codeConstituent},
		},
		bindings: []binding{
			{symbol: kernel.SymbolParam, arr: u.params},
			{symbol: kernel.SymbolUnionParam, arr: u.unionParams},
		},
		gpuDefines: []string{kernel.UnionEval},
		evaluator: func(host []jit.EvalFunc) hpmc.Evaluator {
			return &unionEvaluator{
				u:           u,
				isotropic:   host[0],
				constituent: host[1],
				rcutIso:     float32(u.cutoffIsotropic),
				rcut:        float32(u.cutoffConstituent),
			}
		},
	})
	if err != nil {
		u.state = Unattached
		return err
	}

	u.mu.Lock()
	u.markAllDirty()
	u.mu.Unlock()

	u.att = att
	u.state = Attached
	return nil
}

func (u *UnionPotential) Detach() error {
	if u.state != Attached {
		return nil
	}
	u.state = Detaching
	err := u.att.detach()
	u.att = nil
	u.state = Unattached
	return err
}

func (u *UnionPotential) TotalEnergy(timestep uint64) (float64, bool) {
	if u.state != Attached || !u.att.engine.IsAttached() {
		return 0, false
	}
	return u.att.engine.ComputePatchEnergy(timestep), true
}

// PairEnergy evaluates one pair of particles, rebuilding stale trees first.
func (u *UnionPotential) PairEnergy(rij vecmath.Vec3, typeI uint32, qi vecmath.Quat, di, chargeI float32,
	typeJ uint32, qj vecmath.Quat, dj, chargeJ float32) (float32, error) {
	if u.state != Attached {
		return 0, core.Precondition("energy", "potential is %s", u.state)
	}
	u.Prepare()
	return u.att.ev.Energy(rij, typeI, qi, di, chargeI, typeJ, qj, dj, chargeJ), nil
}

type unionEvaluator struct {
	u           *UnionPotential
	isotropic   jit.EvalFunc
	constituent jit.EvalFunc
	rcutIso     float32
	rcut        float32
}

func (e *unionEvaluator) Range(typeI, typeJ uint32) float32 { return e.u.Range(typeI, typeJ) }
func (e *unionEvaluator) Prepare()                          { e.u.Prepare() }

// side is one particle of a pair as seen by the constituent sum: its
// geometry and its frame relative to particle i.
type side struct {
	t   *typeGeometry
	pos vecmath.Vec3
	q   vecmath.Quat
}

func (s *side) world(k int) vecmath.Vec3 {
	return vecmath.Rotate(s.q, s.t.geom.Positions[k]).Add(s.pos)
}

// toLocal maps a world point into this particle's frame. q is a unit
// quaternion so its conjugate is its inverse.
func (s *side) toLocal(p vecmath.Vec3) vecmath.Vec3 {
	return vecmath.Rotate(s.q.Conj(), p.Sub(s.pos))
}

func (e *unionEvaluator) Energy(rij vecmath.Vec3, typeI uint32, qi vecmath.Quat, di, chargeI float32,
	typeJ uint32, qj vecmath.Quat, dj, chargeJ float32) float32 {
	var energy float32
	if e.rcutIso > 0 && vecmath.Dot(rij, rij) <= e.rcutIso*e.rcutIso {
		energy += e.isotropic(rij, typeI, qi, di, chargeI, typeJ, qj, dj, chargeJ)
	}

	e.u.mu.RLock()
	defer e.u.mu.RUnlock()

	a, b := e.u.typeAt(int(typeI)), e.u.typeAt(int(typeJ))
	if a == nil || b == nil || a.geom.Len() == 0 || b.geom.Len() == 0 {
		return energy
	}
	si := side{t: a, pos: vecmath.Vec3{}, q: qi.Normalized()}
	sj := side{t: b, pos: rij, q: qj.Normalized()}

	if a.dirty || b.dirty || a.tree == nil || b.tree == nil {
		for ka := 0; ka < a.geom.Len(); ka++ {
			for kb := 0; kb < b.geom.Len(); kb++ {
				energy += e.pair(&si, ka, &sj, kb)
			}
		}
		return energy
	}

	// Walk the leaves of the tree with fewer leaves and query the other.
	walk, query := &si, &sj
	if b.tree.NumLeaves() < a.tree.NumLeaves() {
		walk, query = &sj, &si
	}
	for _, leaf := range walk.t.tree.Leaves() {
		c := query.toLocal(vecmath.Rotate(walk.q, leaf.Center).Add(walk.pos))
		r := leaf.Radius + e.rcut
		r += 1e-5 * (r + 1)
		query.t.tree.Query(c, r, func(kq int) {
			for _, kw := range leaf.Items {
				if walk == &si {
					energy += e.pair(&si, kw, &sj, kq)
				} else {
					energy += e.pair(&si, kq, &sj, kw)
				}
			}
		})
	}
	return energy
}

// pair is the constituent term for constituent ka of i and kb of j.
func (e *unionEvaluator) pair(si *side, ka int, sj *side, kb int) float32 {
	ga, gb := &si.t.geom, &sj.t.geom
	da, db := ga.diameter(ka), gb.diameter(kb)
	rab := sj.world(kb).Sub(si.world(ka))
	rc := e.rcut + (da+db)/2
	if vecmath.Dot(rab, rab) > rc*rc {
		return 0
	}
	return e.constituent(rab,
		ga.typeID(ka), si.q.Mul(ga.orientation(ka)), da, ga.charge(ka),
		gb.typeID(kb), sj.q.Mul(gb.orientation(kb)), db, gb.charge(kb))
}
