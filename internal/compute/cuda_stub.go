//go:build !cuda

package compute

type CUDA struct{}

func NewCUDA() *CUDA {
	return &CUDA{}
}

func (c *CUDA) Name() string    { return "cuda (not available)" }
func (c *CUDA) Available() bool { return false }
func (c *CUDA) GPU() bool       { return false }
func (c *CUDA) Arch() int       { return 0 }
func (c *CUDA) Cleanup()        {}

func (c *CUDA) ParallelSum(n int, term func(i int) float64) float64 {
	return NewCPU().ParallelSum(n, term)
}
