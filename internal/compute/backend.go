package compute

// Device is the hardware a potential is attached for. Every device can run
// host-side evaluation; GPU devices additionally get device units compiled.
type Device interface {
	Name() string
	Available() bool
	GPU() bool
	// Arch is the compute capability as major*10+minor, or 0 for CPUs.
	Arch() int
	// ParallelSum returns the sum of term(i) for i in [0, n).
	ParallelSum(n int, term func(i int) float64) float64
	Cleanup()
}

// AutoSelect returns the CUDA device when one is usable, else the CPU.
func AutoSelect() Device {
	cuda := NewCUDA()
	if cuda.Available() {
		return cuda
	}
	return NewCPU()
}

// Select returns the device named "cpu", "gpu" or "auto". Asking for a GPU
// that is not present is an error.
func Select(name string) (Device, error) {
	switch name {
	case "", "auto":
		return AutoSelect(), nil
	case "cpu":
		return NewCPU(), nil
	case "gpu", "cuda":
		cuda := NewCUDA()
		if !cuda.Available() {
			return nil, ErrNoGPU
		}
		return cuda, nil
	}
	return nil, &UnknownDeviceError{Name: name}
}
