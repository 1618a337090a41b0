package experiment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/san-kum/hpmcpatch/internal/compute"
	"github.com/san-kum/hpmcpatch/internal/config"
	"github.com/san-kum/hpmcpatch/internal/jit"
	"github.com/san-kum/hpmcpatch/internal/patch"
	"github.com/san-kum/hpmcpatch/internal/storage"
)

func smallConfig(preset string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Preset = preset
	cfg.Device = "cpu"
	cfg.Steps = 3
	cfg.Seed = 42
	cfg.Lattice.PerSide = 2
	return cfg
}

func TestLattice(t *testing.T) {
	ps, box := Lattice(config.LatticeConfig{PerSide: 3, Spacing: 2, Diameter: 1})
	if len(ps) != 27 {
		t.Fatalf("expected 27 particles, got %d", len(ps))
	}
	if box != 6 {
		t.Errorf("expected box 6, got %f", box)
	}
	for _, p := range ps {
		if p.Position.X < -3 || p.Position.X >= 3 {
			t.Errorf("particle outside box: %v", p.Position)
		}
		if p.Diameter != 1 {
			t.Errorf("expected diameter 1, got %f", p.Diameter)
		}
	}
}

func TestBuildPotential(t *testing.T) {
	for _, name := range config.ListPresets() {
		pot, err := BuildPotential(config.GetPreset(name).Potential)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if pot.IsAttached() {
			t.Errorf("%s: new potential should not be attached", name)
		}
	}

	u, err := BuildPotential(config.GetPreset("dumbbell").Potential)
	if err != nil {
		t.Fatal(err)
	}
	if n := u.(*patch.UnionPotential).Geometry(0).Len(); n != 2 {
		t.Errorf("expected 2 constituents, got %d", n)
	}

	if _, err := BuildPotential(config.PotentialConfig{Kind: "pair"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	names := r.ListCompilers()
	if len(names) != 2 || names[0] != "go" || names[1] != "toolchain" {
		t.Errorf("unexpected compilers: %v", names)
	}
	if _, _, err := r.GetCompiler("tcc"); err == nil {
		t.Error("expected error for unknown compiler")
	}
	c, cleanup, err := r.GetCompiler("go")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*jit.GoCompiler); !ok {
		t.Errorf("expected a go compiler, got %T", c)
	}
	if err := cleanup(); err != nil {
		t.Error(err)
	}
}

func TestExperimentLifecycle(t *testing.T) {
	exp, err := New(smallConfig("square_well"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := exp.Run(context.Background()); err == nil {
		t.Error("expected error before setup")
	}

	c, _, _ := NewRegistry().GetCompiler("go")
	if err := exp.Setup(compute.NewCPU(), c, jit.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	if !exp.Potential().IsAttached() {
		t.Fatal("potential should be attached after setup")
	}
	if err := exp.Setup(compute.NewCPU(), c, jit.DefaultSettings()); err == nil {
		t.Error("expected error on second setup")
	}

	res, err := exp.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Energies) != 3 {
		t.Errorf("expected 3 energies, got %d", len(res.Energies))
	}
	for _, e := range res.Energies {
		if e > 0 {
			t.Errorf("square well energy should not be positive, got %f", e)
		}
	}

	meta := exp.Metadata(res, "cpu")
	if meta.Box != 3 || meta.Steps != 3 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if _, ok := meta.Metrics["mean_energy"]; !ok {
		t.Errorf("metadata missing metrics: %v", meta.Metrics)
	}

	if err := exp.Close(); err != nil {
		t.Fatal(err)
	}
	if exp.Potential().IsAttached() {
		t.Error("potential should be detached after close")
	}
	if exp.Integrator() != nil {
		t.Error("integrator should be gone after close")
	}
	if err := exp.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestSetupFailureDetachesEngine(t *testing.T) {
	cfg := smallConfig("square_well")
	cfg.Potential = config.PotentialConfig{Kind: "patch", RCut: 1, Code: "return 42.0f;"}
	exp, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	err = exp.Setup(compute.NewCPU(), jit.NewGoCompiler(), jit.DefaultSettings())
	if err == nil {
		t.Fatal("expected compile failure for unregistered body")
	}
	if exp.Integrator() != nil {
		t.Error("failed setup should leave no integrator")
	}
}

func TestExecute(t *testing.T) {
	for _, preset := range []string{"square_well", "soft_repulsion", "lennard_jones", "dipole", "dumbbell"} {
		store := storage.NewMemoryStore()
		if err := store.Init(context.Background()); err != nil {
			t.Fatal(err)
		}

		res, meta, err := Execute(context.Background(), smallConfig(preset), store)
		if err != nil {
			t.Errorf("%s: %v", preset, err)
			continue
		}
		if res.StepsTaken != 3 {
			t.Errorf("%s: expected 3 steps, got %d", preset, res.StepsTaken)
		}
		if meta.Device != "cpu" || meta.Preset != preset {
			t.Errorf("%s: unexpected metadata %+v", preset, meta)
		}

		rec, ok, err := store.GetRecord(context.Background(), meta.RecordID)
		if err != nil || !ok {
			t.Errorf("%s: record not saved: %v", preset, err)
			continue
		}
		want := patch.KindPotential
		if preset == "dumbbell" {
			want = patch.KindUnion
		}
		if rec.Kind != want {
			t.Errorf("%s: expected record kind %s, got %s", preset, want, rec.Kind)
		}
	}
}

func TestExecuteWithoutGPU(t *testing.T) {
	if compute.NewCUDA().Available() {
		t.Skip("cuda device present")
	}
	cfg := smallConfig("square_well")
	cfg.Device = "gpu"
	_, _, err := Execute(context.Background(), cfg, nil)
	if !errors.Is(err, compute.ErrNoGPU) {
		t.Errorf("expected ErrNoGPU, got %v", err)
	}
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Execute(ctx, smallConfig("square_well"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestScan(t *testing.T) {
	c, _, _ := NewRegistry().GetCompiler("go")
	es, err := Scan(config.GetPreset("square_well").Potential, c, jit.DefaultSettings(), 1, 2, 11)
	if err != nil {
		t.Fatal(err)
	}
	if len(es) != 11 {
		t.Fatalf("expected 11 samples, got %d", len(es))
	}
	if es[0] != -1 {
		t.Errorf("inside the well: expected -1, got %f", es[0])
	}
	if es[10] != 0 {
		t.Errorf("beyond the cutoff: expected 0, got %f", es[10])
	}

	if _, err := Scan(config.GetPreset("square_well").Potential, c, jit.DefaultSettings(), 2, 1, 11); err == nil {
		t.Error("expected error for an empty range")
	}
}

func TestScanUsesSettings(t *testing.T) {
	c, _, _ := NewRegistry().GetCompiler("go")
	gc := c.(*jit.GoCompiler)
	s, err := config.ParseSettings("[cpu]\nengine-include = hpmc/eval.h\n")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Scan(config.GetPreset("square_well").Potential, gc, s, 1, 2, 3); err != nil {
		t.Fatal(err)
	}
	units := gc.Compiled()
	if len(units) == 0 {
		t.Fatal("expected compiled units")
	}
	for _, u := range units {
		if !strings.Contains(u.Source, `#include "hpmc/eval.h"`) {
			t.Errorf("unit %s is missing the engine include", u.Name)
		}
	}
}

func TestLoadSettingsDefault(t *testing.T) {
	s, err := LoadSettings("")
	if err != nil {
		t.Fatal(err)
	}
	if s.CPU.Compiler != jit.DefaultSettings().CPU.Compiler {
		t.Errorf("expected default settings, got %+v", s)
	}
	if _, err := LoadSettings("does-not-exist.ini"); err == nil {
		t.Error("expected error for a missing settings file")
	}
}
