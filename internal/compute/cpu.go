package compute

import (
	"runtime"
	"sync"
)

type CPU struct {
	workers int
}

func NewCPU() *CPU {
	return &CPU{
		workers: runtime.NumCPU(),
	}
}

// NewCPUWorkers is NewCPU with a fixed worker count.
func NewCPUWorkers(workers int) *CPU {
	if workers < 1 {
		workers = 1
	}
	return &CPU{workers: workers}
}

func (c *CPU) Name() string    { return "cpu" }
func (c *CPU) Available() bool { return true }
func (c *CPU) GPU() bool       { return false }
func (c *CPU) Arch() int       { return 0 }
func (c *CPU) Cleanup()        {}
func (c *CPU) Workers() int    { return c.workers }

// ParallelSum splits [0, n) into one contiguous chunk per worker. Partial
// sums are combined in chunk order, so the result does not depend on
// scheduling.
func (c *CPU) ParallelSum(n int, term func(i int) float64) float64 {
	if n <= 0 {
		return 0
	}
	if n < 16 || c.workers == 1 {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += term(i)
		}
		return sum
	}

	partial := make([]float64, c.workers)
	var wg sync.WaitGroup
	chunkSize := (n + c.workers - 1) / c.workers

	for w := 0; w < c.workers; w++ {
		start := w * chunkSize
		if start >= n {
			break
		}
		end := start + chunkSize
		if end > n {
			end = n
		}

		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			sum := 0.0
			for i := start; i < end; i++ {
				sum += term(i)
			}
			partial[worker] = sum
		}(w, start, end)
	}

	wg.Wait()

	total := 0.0
	for _, s := range partial {
		total += s
	}
	return total
}
