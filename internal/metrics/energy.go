package metrics

import (
	"math"
	"sort"
)

// Metric accumulates one statistic over the per-step patch energy.
type Metric interface {
	Name() string
	Observe(step uint64, energy float64)
	Value() float64
	Reset()
}

// Energy is the mean patch energy.
type Energy struct {
	samples     int
	totalEnergy float64
}

func NewEnergy() *Energy { return &Energy{} }

func (e *Energy) Name() string { return "mean_energy" }

func (e *Energy) Observe(_ uint64, energy float64) {
	e.totalEnergy += energy
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}

// EnergyDrift is the largest change from the first observed energy,
// relative to it when it is non-zero.
type EnergyDrift struct {
	initialEnergy float64
	maxDrift      float64
	samples       int
}

func NewEnergyDrift() *EnergyDrift { return &EnergyDrift{} }

func (e *EnergyDrift) Name() string { return "energy_drift" }

func (e *EnergyDrift) Observe(_ uint64, energy float64) {
	if e.samples == 0 {
		e.initialEnergy = energy
	}
	e.samples++

	drift := math.Abs(energy - e.initialEnergy)
	if e.initialEnergy != 0 {
		drift /= math.Abs(e.initialEnergy)
	}
	e.maxDrift = math.Max(e.maxDrift, drift)
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}

// Fluctuation is the standard deviation of the energy, accumulated with
// Welford's update.
type Fluctuation struct {
	samples int
	mean    float64
	m2      float64
}

func NewFluctuation() *Fluctuation { return &Fluctuation{} }

func (f *Fluctuation) Name() string { return "energy_stddev" }

func (f *Fluctuation) Observe(_ uint64, energy float64) {
	f.samples++
	d := energy - f.mean
	f.mean += d / float64(f.samples)
	f.m2 += d * (energy - f.mean)
}

func (f *Fluctuation) Value() float64 {
	if f.samples < 2 {
		return 0
	}
	return math.Sqrt(f.m2 / float64(f.samples-1))
}

func (f *Fluctuation) Reset() {
	f.samples = 0
	f.mean = 0
	f.m2 = 0
}

// Default returns the metrics recorded for every run.
func Default() []Metric {
	return []Metric{NewEnergy(), NewEnergyDrift(), NewFluctuation()}
}

// Collect feeds energies to ms in step order and returns their values by
// name.
func Collect(energies []float64, ms ...Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for i, e := range energies {
			m.Observe(uint64(i+1), e)
		}
		out[m.Name()] = m.Value()
	}
	return out
}

// Names returns the keys of values in order.
func Names(values map[string]float64) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
