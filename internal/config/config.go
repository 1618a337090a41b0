package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSteps    = 100
	DefaultKT       = 1.0
	DefaultMoveSize = 0.1
	DefaultPerSide  = 4
	DefaultSpacing  = 1.5
	DefaultDiameter = 1.0
)

// Config describes one run of the reference engine with a patch potential.
type Config struct {
	Preset    string          `yaml:"preset"`
	Device    string          `yaml:"device"`
	Compiler  string          `yaml:"compiler"`
	Settings  string          `yaml:"settings,omitempty"`
	Steps     int             `yaml:"steps"`
	Seed      int64           `yaml:"seed"`
	KT        float64         `yaml:"kt"`
	MoveSize  float64         `yaml:"move_size"`
	Lattice   LatticeConfig   `yaml:"lattice"`
	Potential PotentialConfig `yaml:"potential"`
	Store     StoreConfig     `yaml:"store"`
}

// LatticeConfig places PerSide^3 particles on a simple cubic lattice in a
// periodic box of side PerSide*Spacing.
type LatticeConfig struct {
	PerSide  int     `yaml:"per_side"`
	Spacing  float64 `yaml:"spacing"`
	Diameter float64 `yaml:"diameter"`
}

// PotentialConfig holds either a scalar potential (Kind "patch") or a union
// potential (Kind "union").
type PotentialConfig struct {
	Kind   string    `yaml:"kind"`
	RCut   float64   `yaml:"r_cut,omitempty"`
	Code   string    `yaml:"code,omitempty"`
	Params []float32 `yaml:"params,omitempty"`

	RCutConstituent   float64             `yaml:"r_cut_constituent,omitempty"`
	RCutIsotropic     float64             `yaml:"r_cut_isotropic,omitempty"`
	CodeConstituent   string              `yaml:"code_constituent,omitempty"`
	CodeIsotropic     string              `yaml:"code_isotropic,omitempty"`
	ConstituentParams []float32           `yaml:"constituent_params,omitempty"`
	LeafCapacity      int                 `yaml:"leaf_capacity,omitempty"`
	Constituents      []ConstituentConfig `yaml:"constituents,omitempty"`
}

type ConstituentConfig struct {
	Position    [3]float32 `yaml:"position"`
	Orientation []float32  `yaml:"orientation,omitempty"`
	Diameter    float32    `yaml:"diameter,omitempty"`
	Charge      float32    `yaml:"charge,omitempty"`
	Type        uint32     `yaml:"type,omitempty"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
	RunDir  string `yaml:"run_dir,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Preset:   "square_well",
		Device:   "auto",
		Compiler: "go",
		Steps:    DefaultSteps,
		KT:       DefaultKT,
		MoveSize: DefaultMoveSize,
		Lattice: LatticeConfig{
			PerSide:  DefaultPerSide,
			Spacing:  DefaultSpacing,
			Diameter: DefaultDiameter,
		},
		Store: StoreConfig{Backend: "memory"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolvePotential returns the potential to run: the inline one when its
// kind is set, otherwise the named preset's.
func (c *Config) ResolvePotential() (PotentialConfig, error) {
	if c.Potential.Kind != "" {
		return c.Potential, nil
	}
	p := GetPreset(c.Preset)
	if p == nil {
		return PotentialConfig{}, fmt.Errorf("unknown preset: %s", c.Preset)
	}
	return p.Potential, nil
}

func (c *Config) Validate() error {
	if c.Steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", c.Steps)
	}
	if c.Lattice.PerSide <= 0 {
		return fmt.Errorf("lattice per_side must be positive, got %d", c.Lattice.PerSide)
	}
	if c.Lattice.Spacing < c.Lattice.Diameter {
		return fmt.Errorf("lattice spacing %g is smaller than the diameter %g", c.Lattice.Spacing, c.Lattice.Diameter)
	}
	if c.MoveSize < 0 {
		return fmt.Errorf("move_size must be non-negative, got %g", c.MoveSize)
	}
	switch c.Compiler {
	case "go", "toolchain":
	default:
		return fmt.Errorf("unknown compiler %q (want go or toolchain)", c.Compiler)
	}
	return nil
}
