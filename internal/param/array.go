// Package param implements the parameter arrays read by compiled kernels.
//
// An Array owns its values on the host until it is aliased to a Storage
// provided by the compiler service. From then on every read and write goes
// straight to that storage, which is the memory the compiled kernel reads,
// and the length is frozen. Release copies the live values back so they
// survive into the next attach.
package param

import (
	"math"
	"strconv"

	"github.com/san-kum/hpmcpatch/internal/core"
)

// Storage is memory owned by a compiled target.
type Storage interface {
	Len() int
	At(i int) float32
	Set(i int, v float32)
}

type Array struct {
	name string
	host []float32
	live Storage
}

// New validates values and returns a detached array holding a copy of them.
func New(name string, values []float32) (*Array, error) {
	if err := checkFinite("new", name, values); err != nil {
		return nil, err
	}
	host := make([]float32, len(values))
	copy(host, values)
	return &Array{name: name, host: host}, nil
}

func (a *Array) Name() string { return a.name }

func (a *Array) Len() int {
	if a.live != nil {
		return a.live.Len()
	}
	return len(a.host)
}

// Attached reports whether the array currently aliases target storage.
func (a *Array) Attached() bool { return a.live != nil }

func (a *Array) At(i int) (float32, error) {
	if err := a.checkIndex("get", i); err != nil {
		return 0, err
	}
	if a.live != nil {
		return a.live.At(i), nil
	}
	return a.host[i], nil
}

func (a *Array) Set(i int, v float32) error {
	if err := a.checkIndex("set", i); err != nil {
		return err
	}
	if !finite(v) {
		return core.Invalid("set", a.field(i), "value %v is not finite", v)
	}
	if a.live != nil {
		a.live.Set(i, v)
		return nil
	}
	a.host[i] = v
	return nil
}

// Values returns a copy of the current values.
func (a *Array) Values() []float32 {
	out := make([]float32, a.Len())
	if a.live == nil {
		copy(out, a.host)
		return out
	}
	for i := range out {
		out[i] = a.live.At(i)
	}
	return out
}

// Assign replaces every value. While attached the length must not change.
func (a *Array) Assign(values []float32) error {
	if err := checkFinite("assign", a.name, values); err != nil {
		return err
	}
	if a.live != nil {
		if len(values) != a.live.Len() {
			return core.Immutable("assign", a.name+" length")
		}
		for i, v := range values {
			a.live.Set(i, v)
		}
		return nil
	}
	a.host = append(a.host[:0:0], values...)
	return nil
}

// Resize changes the length, zero-filling new elements. Only legal while
// detached.
func (a *Array) Resize(n int) error {
	if a.live != nil {
		return core.Immutable("resize", a.name)
	}
	if n < 0 {
		return core.Invalid("resize", a.name, "negative length %d", n)
	}
	if n <= cap(a.host) {
		old := len(a.host)
		a.host = a.host[:n]
		for i := old; i < n; i++ {
			a.host[i] = 0
		}
		return nil
	}
	grown := make([]float32, n)
	copy(grown, a.host)
	a.host = grown
	return nil
}

// Alias copies the host values into s and redirects all accessors to it.
func (a *Array) Alias(s Storage) error {
	if a.live != nil {
		return core.Immutable("alias", a.name)
	}
	if s.Len() != len(a.host) {
		return core.Invalid("alias", a.name, "storage holds %d values, array has %d", s.Len(), len(a.host))
	}
	for i, v := range a.host {
		s.Set(i, v)
	}
	a.live = s
	return nil
}

// Release copies the live values back to the host and returns the storage
// that was aliased, or nil if the array was detached.
func (a *Array) Release() Storage {
	s := a.live
	if s == nil {
		return nil
	}
	a.host = a.Values()
	a.live = nil
	return s
}

func (a *Array) checkIndex(op string, i int) error {
	if i < 0 || i >= a.Len() {
		return core.Invalid(op, a.field(i), "index out of range [0,%d)", a.Len())
	}
	return nil
}

func (a *Array) field(i int) string {
	return a.name + "[" + strconv.Itoa(i) + "]"
}

func checkFinite(op, name string, values []float32) error {
	for i, v := range values {
		if !finite(v) {
			return core.Invalid(op, name+"["+strconv.Itoa(i)+"]", "value %v is not finite", v)
		}
	}
	return nil
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}
