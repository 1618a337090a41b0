//go:build !cuda

package jit

import "unsafe"

type deviceModule struct{}

func loadDeviceModule(image []byte) (deviceModule, error) {
	return deviceModule{}, ErrNoDevice
}

func (deviceModule) setPointer(symbol string, ptr unsafe.Pointer) error { return ErrNoDevice }
func (deviceModule) unload() error                                      { return nil }

func allocManaged(n int) (Buffer, error) {
	return nil, ErrNoDevice
}
