// Package kernel turns the body of a user pair-energy function into a
// complete translation unit for the compiler service.
//
// Every unit declares the two parameter symbols [SymbolParam] and
// [SymbolUnionParam] and one function [EntryPoint] with the fixed calling
// convention:
//
//	float eval(const vec3<float>& r_ij,
//	    unsigned int type_i, const quat<float>& q_i, float d_i, float charge_i,
//	    unsigned int type_j, const quat<float>& q_j, float d_j, float charge_j)
//
// CPU units give the function C linkage so it can be looked up by name.
// GPU units mark it __device__ and pull in the CUDA runtime headers. Both
// share one vector/quaternion prelude, so a body behaves the same on either
// target.
//
// # Example
//
//	src := kernel.Build(`float rsq = dot(r_ij, r_ij);
//	    return rsq < 1.21f ? -1.0f : 0.0f;`, kernel.CPU)
//
// Build never looks at the body; it is a pure function of its inputs.
package kernel
