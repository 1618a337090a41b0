//go:build cuda

package compute

/*
#cgo CFLAGS: -I/opt/cuda/include
#cgo LDFLAGS: -L/opt/cuda/lib64 -lcuda
#include <cuda.h>

static int cuda_device_count() {
	int n = 0;
	if (cuInit(0) != CUDA_SUCCESS) return 0;
	if (cuDeviceGetCount(&n) != CUDA_SUCCESS) return 0;
	return n;
}

static int cuda_device_name(char *buf, int len) {
	CUdevice dev;
	if (cuDeviceGet(&dev, 0) != CUDA_SUCCESS) return 0;
	return cuDeviceGetName(buf, len, dev) == CUDA_SUCCESS;
}

static int cuda_device_arch() {
	CUdevice dev;
	int major = 0, minor = 0;
	if (cuDeviceGet(&dev, 0) != CUDA_SUCCESS) return 0;
	cuDeviceGetAttribute(&major, CU_DEVICE_ATTRIBUTE_COMPUTE_CAPABILITY_MAJOR, dev);
	cuDeviceGetAttribute(&minor, CU_DEVICE_ATTRIBUTE_COMPUTE_CAPABILITY_MINOR, dev);
	return major * 10 + minor;
}
*/
import "C"
import "unsafe"

type CUDA struct {
	available  bool
	deviceName string
	arch       int
	host       *CPU
}

func NewCUDA() *CUDA {
	count := int(C.cuda_device_count())
	d := &CUDA{available: count > 0, host: NewCPU()}
	if d.available {
		buf := make([]byte, 256)
		if C.cuda_device_name((*C.char)(unsafe.Pointer(&buf[0])), C.int(len(buf))) != 0 {
			d.deviceName = C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
		}
		d.arch = int(C.cuda_device_arch())
	}
	return d
}

func (c *CUDA) Name() string {
	if c.available {
		return "cuda (" + c.deviceName + ")"
	}
	return "cuda (not available)"
}

func (c *CUDA) Available() bool { return c.available }
func (c *CUDA) GPU() bool       { return c.available }
func (c *CUDA) Arch() int       { return c.arch }
func (c *CUDA) Cleanup()        {}

// ParallelSum runs on the host; device units are launched by the move
// engine itself.
func (c *CUDA) ParallelSum(n int, term func(i int) float64) float64 {
	return c.host.ParallelSum(n, term)
}
