// Package hpmc is a small hard-particle Monte Carlo engine that patch
// energies are installed into.
//
// Particles are hard spheres in a cubic periodic box. Each step makes one
// random translation trial per particle; a trial that creates an overlap is
// rejected, otherwise it is accepted with the Metropolis probability of the
// change in patch energy:
//
//	in := hpmc.New(particles, hpmc.Config{Box: 10, KT: 1, MoveSize: 0.1})
//	if err := in.Attach(); err != nil { ... }
//	in.InstallEvaluator(ev, params)
//	res, err := in.Run(ctx, 1000)
//
// Pair sums run on the integrator's compute device. An evaluator that also
// implements Preparer has Prepare called serially before every evaluation
// phase.
package hpmc
