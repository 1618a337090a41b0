// Package patch attaches user-defined pair energies to the HPMC engine.
//
// A [Potential] holds the body of a C++ function
//
//	float eval(const vec3<float>& r_ij, unsigned int type_i, const quat<float>& q_i,
//	    float d_i, float charge_i, unsigned int type_j, const quat<float>& q_j,
//	    float d_j, float charge_j)
//
// and a parameter array the body reads as paramArray. Attach compiles the body
// for the CPU, and for the GPU when the simulation runs on one, then installs
// the compiled function into the integrator:
//
//	p, _ := patch.NewPotential(1.1, `float rsq = dot(r_ij, r_ij);
//	    return rsq < 1.21f ? -paramArray[0] : 0.0f;`, []float32{1})
//	if err := p.Attach(sim); err != nil { ... }
//	p.Parameters().Set(0, 2) // seen by the next step, no recompile
//
// # Union potentials
//
// A [UnionPotential] places rigid sets of constituents on each particle type.
// The pair energy is an isotropic term between particle centres plus a
// constituent term summed over constituent pairs within range. Per type
// bounding volume hierarchies cull distant constituent pairs; they are
// rebuilt lazily after any geometry or leaf capacity change.
//
// # Lifecycle
//
// Cutoffs and code are fixed while attached. Parameter arrays keep their
// length while attached but their elements may be written at any time.
// Detach keeps every parameter value, so a later attach starts where the
// previous one stopped.
package patch
