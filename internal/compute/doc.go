// Package compute describes the hardware potentials are attached for and
// runs host-side pair sums across CPU workers.
//
// Select("auto") picks the best available device; nothing is selected
// until a caller asks:
//
//   - CUDA: device units are compiled in addition to host units
//   - CPU: host units only
//
// # Parallel sums
//
// The reference engine evaluates pair energies with ParallelSum, which
// splits the index range into one chunk per worker:
//
//	dev, err := compute.Select("auto")
//	if err != nil { ... }
//	defer dev.Cleanup()
//	e := dev.ParallelSum(len(pairs), func(i int) float64 { ... })
//
// Build with CUDA support:
//
//	go build -tags cuda ./...
package compute
