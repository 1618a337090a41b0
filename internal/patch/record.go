package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/san-kum/hpmcpatch/internal/storage"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

const (
	KindPotential = "patch"
	KindUnion     = "union"
)

// Record snapshots the potential's configuration. Parameter values are
// read through the live storage when attached.
func (p *Potential) Record() storage.Record {
	rec := storage.NewRecord(KindPotential)
	rec.Fields["r_cut"] = formatFloat(p.cutoff)
	rec.Fields["code"] = p.code
	rec.Fields[ParamArrayName] = formatFloats(p.params.Values())
	return rec
}

// RestorePotential rebuilds an unattached potential from rec.
func RestorePotential(rec storage.Record) (*Potential, error) {
	if rec.Kind != KindPotential {
		return nil, fmt.Errorf("record %s is a %q, not a %q", rec.ID, rec.Kind, KindPotential)
	}
	cutoff, err := strconv.ParseFloat(rec.Fields["r_cut"], 64)
	if err != nil {
		return nil, fmt.Errorf("record %s: r_cut: %w", rec.ID, err)
	}
	params, err := parseFloats(rec.Fields[ParamArrayName])
	if err != nil {
		return nil, fmt.Errorf("record %s: %s: %w", rec.ID, ParamArrayName, err)
	}
	return NewPotential(cutoff, rec.Fields["code"], params)
}

func (u *UnionPotential) Record() storage.Record {
	rec := storage.NewRecord(KindUnion)
	f := rec.Fields
	f["r_cut_constituent"] = formatFloat(u.cutoffConstituent)
	f["r_cut_isotropic"] = formatFloat(u.cutoffIsotropic)
	f["code_constituent"] = u.codeConstituent
	f["code_isotropic"] = u.codeIsotropic
	f[ParamArrayName] = formatFloats(u.params.Values())
	f[UnionArrayName] = formatFloats(u.unionParams.Values())

	u.mu.RLock()
	defer u.mu.RUnlock()
	f["leaf_capacity"] = strconv.Itoa(u.leafCapacity)
	f["types"] = strconv.Itoa(len(u.types))
	for i, t := range u.types {
		if t == nil {
			continue
		}
		prefix := "type." + strconv.Itoa(i) + "."
		g := t.geom
		f[prefix+"positions"] = formatVecs(g.Positions)
		if g.Orientations != nil {
			f[prefix+"orientations"] = formatQuats(g.Orientations)
		}
		if g.Diameters != nil {
			f[prefix+"diameters"] = formatFloats(g.Diameters)
		}
		if g.Charges != nil {
			f[prefix+"charges"] = formatFloats(g.Charges)
		}
		if g.TypeIDs != nil {
			f[prefix+"typeids"] = formatUints(g.TypeIDs)
		}
	}
	return rec
}

// RestoreUnion rebuilds an unattached union potential from rec.
func RestoreUnion(rec storage.Record) (*UnionPotential, error) {
	if rec.Kind != KindUnion {
		return nil, fmt.Errorf("record %s is a %q, not a %q", rec.ID, rec.Kind, KindUnion)
	}
	f := rec.Fields
	wrap := func(key string, err error) error { return fmt.Errorf("record %s: %s: %w", rec.ID, key, err) }

	rcutC, err := strconv.ParseFloat(f["r_cut_constituent"], 64)
	if err != nil {
		return nil, wrap("r_cut_constituent", err)
	}
	rcutI, err := strconv.ParseFloat(f["r_cut_isotropic"], 64)
	if err != nil {
		return nil, wrap("r_cut_isotropic", err)
	}
	iso, err := parseFloats(f[ParamArrayName])
	if err != nil {
		return nil, wrap(ParamArrayName, err)
	}
	cons, err := parseFloats(f[UnionArrayName])
	if err != nil {
		return nil, wrap(UnionArrayName, err)
	}

	u, err := NewUnionPotential(rcutC, rcutI, f["code_constituent"], f["code_isotropic"], iso, cons)
	if err != nil {
		return nil, err
	}
	if s, ok := f["leaf_capacity"]; ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, wrap("leaf_capacity", err)
		}
		if err := u.SetLeafCapacity(n); err != nil {
			return nil, err
		}
	}

	ntypes, err := typeCount(f)
	if err != nil {
		return nil, wrap("types", err)
	}
	for i := 0; i < ntypes; i++ {
		prefix := "type." + strconv.Itoa(i) + "."
		s, ok := f[prefix+"positions"]
		if !ok {
			continue
		}
		var g Geometry
		if g.Positions, err = parseVecs(s); err != nil {
			return nil, wrap(prefix+"positions", err)
		}
		if s, ok := f[prefix+"orientations"]; ok {
			if g.Orientations, err = parseQuats(s); err != nil {
				return nil, wrap(prefix+"orientations", err)
			}
		}
		if s, ok := f[prefix+"diameters"]; ok {
			if g.Diameters, err = parseFloats(s); err != nil {
				return nil, wrap(prefix+"diameters", err)
			}
		}
		if s, ok := f[prefix+"charges"]; ok {
			if g.Charges, err = parseFloats(s); err != nil {
				return nil, wrap(prefix+"charges", err)
			}
		}
		if s, ok := f[prefix+"typeids"]; ok {
			if g.TypeIDs, err = parseUints(s); err != nil {
				return nil, wrap(prefix+"typeids", err)
			}
		}
		if err := u.SetGeometry(i, g); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func formatFloat32(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }

func formatFloats(vs []float32) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloat32(v)
	}
	return strings.Join(parts, " ")
}

func formatUints(vs []uint32) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, " ")
}

func formatVecs(vs []vecmath.Vec3) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloats([]float32{v.X, v.Y, v.Z})
	}
	return strings.Join(parts, ";")
}

func formatQuats(qs []vecmath.Quat) string {
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = formatFloats([]float32{q.S, q.V.X, q.V.Y, q.V.Z})
	}
	return strings.Join(parts, ";")
}

// parseFloats reads space-separated values; the empty string is an empty
// slice.
func parseFloats(s string) ([]float32, error) {
	fields := strings.Fields(s)
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(v)
	}
	return out, nil
}

func parseUints(s string) ([]uint32, error) {
	fields := strings.Fields(s)
	out := make([]uint32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, err
		}
		out[i] = uint32(v)
	}
	return out, nil
}

func parseTuples(s string, width int) ([][]float32, error) {
	if strings.TrimSpace(s) == "" {
		return [][]float32{}, nil
	}
	var out [][]float32
	for _, part := range strings.Split(s, ";") {
		vs, err := parseFloats(part)
		if err != nil {
			return nil, err
		}
		if len(vs) != width {
			return nil, fmt.Errorf("%q has %d components, want %d", part, len(vs), width)
		}
		out = append(out, vs)
	}
	return out, nil
}

func parseVecs(s string) ([]vecmath.Vec3, error) {
	tuples, err := parseTuples(s, 3)
	if err != nil {
		return nil, err
	}
	out := make([]vecmath.Vec3, len(tuples))
	for i, t := range tuples {
		out[i] = vecmath.V(t[0], t[1], t[2])
	}
	return out, nil
}

func parseQuats(s string) ([]vecmath.Quat, error) {
	tuples, err := parseTuples(s, 4)
	if err != nil {
		return nil, err
	}
	out := make([]vecmath.Quat, len(tuples))
	for i, t := range tuples {
		out[i] = vecmath.Q(t[0], t[1], t[2], t[3])
	}
	return out, nil
}

// typeCount reads the number of stored geometries. It may only be absent
// when no type fields were stored.
func typeCount(f map[string]string) (int, error) {
	s, ok := f["types"]
	if !ok {
		for key := range f {
			if strings.HasPrefix(key, "type.") {
				return 0, fmt.Errorf("missing with %s present", key)
			}
		}
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}
