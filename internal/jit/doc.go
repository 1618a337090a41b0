// Package jit is the compiler service: it turns generated units into
// callable artifacts and owns the parameter memory those artifacts read.
//
// Two implementations of [Compiler] are provided:
//
//   - [Toolchain]: runs the system C++ compiler for CPU units and loads the
//     shared object with purego; runs nvcc for GPU units and loads the fat
//     binary through the CUDA driver (build with -tags cuda).
//   - [GoCompiler]: looks each unit's body up in a table of Go kernels.
//     Useful for tests and for machines without a compiler.
//
// # Buffers
//
// [Compiler.Allocate] returns memory whose address stays fixed for the
// lifetime of the buffer. CPU buffers are pinned Go slices, GPU buffers are
// CUDA managed memory. Binding a buffer writes its address into the unit's
// paramArray or unionParamArray symbol, so host writes made after binding
// are seen by the next call without recompiling.
//
// Build with CUDA support:
//
//	go build -tags cuda ./...
package jit
