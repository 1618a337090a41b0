package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/hpmcpatch/internal/config"
	"github.com/san-kum/hpmcpatch/internal/jit"
	"github.com/san-kum/hpmcpatch/internal/patch"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

// Registry maps compiler names to constructors. The returned cleanup
// releases whatever the compiler left on disk.
type Registry struct {
	compilers map[string]func() (jit.Compiler, func() error)
}

func NewRegistry() *Registry {
	r := &Registry{
		compilers: make(map[string]func() (jit.Compiler, func() error)),
	}

	r.compilers["go"] = func() (jit.Compiler, func() error) {
		c := jit.NewGoCompiler()
		config.RegisterKernels(c)
		return c, func() error { return nil }
	}
	r.compilers["toolchain"] = func() (jit.Compiler, func() error) {
		t := jit.NewToolchain()
		return t, t.Cleanup
	}

	return r
}

func (r *Registry) GetCompiler(name string) (jit.Compiler, func() error, error) {
	factory, ok := r.compilers[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown compiler: %s", name)
	}
	c, cleanup := factory()
	return c, cleanup, nil
}

func (r *Registry) ListCompilers() []string {
	names := make([]string, 0, len(r.compilers))
	for name := range r.compilers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildPotential constructs an unattached potential from pc.
func BuildPotential(pc config.PotentialConfig) (Potential, error) {
	switch pc.Kind {
	case patch.KindPotential:
		return patch.NewPotential(pc.RCut, pc.Code, pc.Params)
	case patch.KindUnion:
		u, err := patch.NewUnionPotential(pc.RCutConstituent, pc.RCutIsotropic,
			pc.CodeConstituent, pc.CodeIsotropic, pc.Params, pc.ConstituentParams)
		if err != nil {
			return nil, err
		}
		if pc.LeafCapacity > 0 {
			if err := u.SetLeafCapacity(pc.LeafCapacity); err != nil {
				return nil, err
			}
		}
		if len(pc.Constituents) > 0 {
			if err := u.SetGeometry(0, geometry(pc.Constituents)); err != nil {
				return nil, err
			}
		}
		return u, nil
	}
	return nil, fmt.Errorf("unknown potential kind: %q", pc.Kind)
}

func geometry(cs []config.ConstituentConfig) patch.Geometry {
	g := patch.Geometry{
		Positions:    make([]vecmath.Vec3, len(cs)),
		Orientations: make([]vecmath.Quat, len(cs)),
		Diameters:    make([]float32, len(cs)),
		Charges:      make([]float32, len(cs)),
		TypeIDs:      make([]uint32, len(cs)),
	}
	for i, c := range cs {
		g.Positions[i] = vecmath.V(c.Position[0], c.Position[1], c.Position[2])
		g.Orientations[i] = vecmath.Identity()
		if len(c.Orientation) == 4 {
			g.Orientations[i] = vecmath.Q(c.Orientation[0], c.Orientation[1], c.Orientation[2], c.Orientation[3])
		}
		g.Diameters[i] = c.Diameter
		g.Charges[i] = c.Charge
		g.TypeIDs[i] = c.Type
	}
	return g
}
