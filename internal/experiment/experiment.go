package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/san-kum/hpmcpatch/internal/compute"
	"github.com/san-kum/hpmcpatch/internal/config"
	"github.com/san-kum/hpmcpatch/internal/hpmc"
	"github.com/san-kum/hpmcpatch/internal/jit"
	"github.com/san-kum/hpmcpatch/internal/metrics"
	"github.com/san-kum/hpmcpatch/internal/patch"
	"github.com/san-kum/hpmcpatch/internal/storage"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

// Potential is what both patch.Potential and patch.UnionPotential offer a run.
type Potential interface {
	Attach(sim *patch.Simulation) error
	Detach() error
	IsAttached() bool
	TotalEnergy(timestep uint64) (float64, bool)
	PairEnergy(rij vecmath.Vec3, typeI uint32, qi vecmath.Quat, di, chargeI float32,
		typeJ uint32, qj vecmath.Quat, dj, chargeJ float32) (float32, error)
	Record() storage.Record
}

// Experiment is one configured run: a lattice of particles in the move
// engine with a compiled potential attached.
type Experiment struct {
	cfg        *config.Config
	potential  Potential
	integrator *hpmc.Integrator
	sim        *patch.Simulation
	cleanup    func() error
}

func New(cfg *config.Config) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pc, err := cfg.ResolvePotential()
	if err != nil {
		return nil, err
	}
	pot, err := BuildPotential(pc)
	if err != nil {
		return nil, err
	}
	return &Experiment{cfg: cfg, potential: pot}, nil
}

// Lattice places PerSide^3 identical particles on a simple cubic lattice
// and returns them with the box side.
func Lattice(l config.LatticeConfig) ([]hpmc.Particle, float32) {
	n := l.PerSide
	box := float32(float64(n) * l.Spacing)
	half := box / 2
	at := func(idx int) float32 { return (float32(idx)+0.5)*float32(l.Spacing) - half }
	particles := make([]hpmc.Particle, 0, n*n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				particles = append(particles, hpmc.Particle{
					Position:    vecmath.V(at(i), at(j), at(k)),
					Orientation: vecmath.Identity(),
					Diameter:    float32(l.Diameter),
				})
			}
		}
	}
	return particles, box
}

// Setup builds the engine, compiles the potential for dev and attaches it.
func (e *Experiment) Setup(dev compute.Device, compiler jit.Compiler, settings jit.Settings) error {
	if e.integrator != nil {
		return fmt.Errorf("experiment already setup")
	}
	particles, box := Lattice(e.cfg.Lattice)
	in := hpmc.New(particles, hpmc.Config{
		Box:      box,
		KT:       e.cfg.KT,
		MoveSize: float32(e.cfg.MoveSize),
		Seed:     e.cfg.Seed,
	})
	if dev != nil {
		in.SetDevice(dev)
	}
	if err := in.Attach(); err != nil {
		return err
	}

	sim := &patch.Simulation{Engine: in, Device: dev, Compiler: compiler, Settings: settings}
	if err := e.potential.Attach(sim); err != nil {
		in.Detach()
		return err
	}
	e.integrator, e.sim = in, sim
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*hpmc.Result, error) {
	if e.integrator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.integrator.Run(ctx, e.cfg.Steps)
}

// Close detaches the potential and the engine. It is safe to call twice.
func (e *Experiment) Close() error {
	if e.integrator == nil {
		return nil
	}
	err := e.potential.Detach()
	e.integrator.Detach()
	e.integrator, e.sim = nil, nil
	return err
}

func (e *Experiment) Potential() Potential         { return e.potential }
func (e *Experiment) Integrator() *hpmc.Integrator { return e.integrator }
func (e *Experiment) Config() *config.Config       { return e.cfg }

// Metadata summarizes res for the run archive.
func (e *Experiment) Metadata(res *hpmc.Result, device string) storage.RunMetadata {
	meta := storage.RunMetadata{
		Preset:    e.cfg.Preset,
		Timestamp: time.Now(),
		Seed:      e.cfg.Seed,
		Steps:     e.cfg.Steps,
		KT:        e.cfg.KT,
		Device:    device,
	}
	if e.integrator != nil {
		meta.Box = float64(e.integrator.Box().L)
	}
	if res != nil {
		meta.Accepted, meta.Rejected = res.Accepted, res.Rejected
		if n := len(res.Energies); n > 0 {
			meta.FinalEnergy = res.Energies[n-1]
			meta.Metrics = metrics.Collect(res.Energies, metrics.Default()...)
		}
	}
	return meta
}

// Execute runs cfg start to finish: select the device, build the compiler,
// run, detach. The potential record is saved to store when store is non-nil.
func Execute(ctx context.Context, cfg *config.Config, store storage.Store) (*hpmc.Result, storage.RunMetadata, error) {
	exp, err := New(cfg)
	if err != nil {
		return nil, storage.RunMetadata{}, err
	}
	dev, err := compute.Select(cfg.Device)
	if err != nil {
		return nil, storage.RunMetadata{}, err
	}
	defer dev.Cleanup()

	settings, err := LoadSettings(cfg.Settings)
	if err != nil {
		return nil, storage.RunMetadata{}, err
	}
	compiler, cleanup, err := NewRegistry().GetCompiler(cfg.Compiler)
	if err != nil {
		return nil, storage.RunMetadata{}, err
	}

	if err := exp.Setup(dev, compiler, settings); err != nil {
		return nil, storage.RunMetadata{}, errors.Join(err, cleanup())
	}
	res, runErr := exp.Run(ctx)
	meta := exp.Metadata(res, dev.Name())
	closeErr := exp.Close()
	if err := errors.Join(runErr, closeErr, cleanup()); err != nil {
		return res, meta, err
	}

	if store != nil {
		rec := exp.Potential().Record()
		if err := store.SaveRecord(ctx, rec); err != nil {
			return res, meta, fmt.Errorf("save record: %w", err)
		}
		meta.RecordID = rec.ID
	}
	return res, meta, nil
}

// LoadSettings reads compilation settings from path, or returns the defaults
// when path is empty.
func LoadSettings(path string) (jit.Settings, error) {
	if path == "" {
		return jit.DefaultSettings(), nil
	}
	s, err := config.LoadSettings(path)
	if err != nil {
		return jit.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

// Scan attaches pc to a two-particle engine and samples the pair energy of
// unit-diameter, identically oriented particles separated along x at n
// evenly spaced points in [lo, hi].
func Scan(pc config.PotentialConfig, compiler jit.Compiler, settings jit.Settings, lo, hi float64, n int) ([]float64, error) {
	if n < 2 || hi <= lo {
		return nil, fmt.Errorf("scan needs n >= 2 and lo < hi, got n=%d [%g, %g]", n, lo, hi)
	}
	pot, err := BuildPotential(pc)
	if err != nil {
		return nil, err
	}

	in := hpmc.New([]hpmc.Particle{
		{Position: vecmath.V(0, 0, 0), Orientation: vecmath.Identity()},
		{Position: vecmath.V(float32(hi), 0, 0), Orientation: vecmath.Identity()},
	}, hpmc.Config{})
	if err := in.Attach(); err != nil {
		return nil, err
	}
	defer in.Detach()

	sim := &patch.Simulation{Engine: in, Device: compute.NewCPU(), Compiler: compiler, Settings: settings}
	if err := pot.Attach(sim); err != nil {
		return nil, err
	}
	defer pot.Detach()

	id := vecmath.Identity()
	out := make([]float64, n)
	for i := range out {
		r := lo + (hi-lo)*float64(i)/float64(n-1)
		e, err := pot.PairEnergy(vecmath.V(float32(r), 0, 0), 0, id, 1, 1, 0, id, 1, 1)
		if err != nil {
			return nil, err
		}
		out[i] = float64(e)
	}
	return out, nil
}
