package jit

import (
	"runtime"
	"unsafe"
)

// addressable buffers can be handed to native code by address.
type addressable interface {
	data() unsafe.Pointer
}

// HostBuffer is pinned Go memory shared with compiled CPU code.
type HostBuffer struct {
	vals   []float32
	pinner runtime.Pinner
}

func NewHostBuffer(n int) *HostBuffer {
	b := &HostBuffer{vals: make([]float32, n)}
	if n > 0 {
		b.pinner.Pin(&b.vals[0])
	}
	return b
}

func (b *HostBuffer) Len() int             { return len(b.vals) }
func (b *HostBuffer) At(i int) float32     { return b.vals[i] }
func (b *HostBuffer) Set(i int, v float32) { b.vals[i] = v }

func (b *HostBuffer) Release() error {
	b.pinner.Unpin()
	return nil
}

func (b *HostBuffer) data() unsafe.Pointer {
	if len(b.vals) == 0 {
		return nil
	}
	return unsafe.Pointer(&b.vals[0])
}
