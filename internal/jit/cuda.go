//go:build cuda

package jit

/*
#cgo CFLAGS: -I/opt/cuda/include
#cgo LDFLAGS: -L/opt/cuda/lib64 -lcuda
#include <cuda.h>
#include <stdlib.h>

static CUresult jit_context_init() {
	CUresult rc = cuInit(0);
	if (rc != CUDA_SUCCESS) return rc;
	CUdevice dev;
	rc = cuDeviceGet(&dev, 0);
	if (rc != CUDA_SUCCESS) return rc;
	CUcontext ctx;
	rc = cuDevicePrimaryCtxRetain(&ctx, dev);
	if (rc != CUDA_SUCCESS) return rc;
	return cuCtxSetCurrent(ctx);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

var (
	ctxOnce sync.Once
	ctxErr  error
)

func ensureContext() error {
	ctxOnce.Do(func() {
		if rc := C.jit_context_init(); rc != C.CUDA_SUCCESS {
			ctxErr = fmt.Errorf("%w: cuda init failed (%d)", ErrNoDevice, int(rc))
		}
	})
	return ctxErr
}

type deviceModule struct {
	mod C.CUmodule
}

func loadDeviceModule(image []byte) (deviceModule, error) {
	if err := ensureContext(); err != nil {
		return deviceModule{}, err
	}
	if len(image) == 0 {
		return deviceModule{}, fmt.Errorf("empty device image")
	}
	cimg := C.CBytes(image)
	defer C.free(cimg)

	var m C.CUmodule
	if rc := C.cuModuleLoadData(&m, cimg); rc != C.CUDA_SUCCESS {
		return deviceModule{}, fmt.Errorf("cuModuleLoadData failed (%d)", int(rc))
	}
	return deviceModule{mod: m}, nil
}

// setPointer stores ptr into the __device__ pointer variable symbol.
func (d deviceModule) setPointer(symbol string, ptr unsafe.Pointer) error {
	name := C.CString(symbol)
	defer C.free(unsafe.Pointer(name))

	var global C.CUdeviceptr
	var size C.size_t
	if rc := C.cuModuleGetGlobal(&global, &size, d.mod, name); rc != C.CUDA_SUCCESS {
		return fmt.Errorf("cuModuleGetGlobal(%s) failed (%d)", symbol, int(rc))
	}
	val := C.CUdeviceptr(uintptr(ptr))
	if uintptr(size) != unsafe.Sizeof(val) {
		return fmt.Errorf("symbol %s is %d bytes, want a pointer", symbol, int(size))
	}
	if rc := C.cuMemcpyHtoD(global, unsafe.Pointer(&val), size); rc != C.CUDA_SUCCESS {
		return fmt.Errorf("cuMemcpyHtoD(%s) failed (%d)", symbol, int(rc))
	}
	return nil
}

func (d deviceModule) unload() error {
	if rc := C.cuModuleUnload(d.mod); rc != C.CUDA_SUCCESS {
		return fmt.Errorf("cuModuleUnload failed (%d)", int(rc))
	}
	return nil
}

// ManagedBuffer is unified memory visible to the host and the device.
type ManagedBuffer struct {
	ptr  C.CUdeviceptr
	vals []float32
}

func allocManaged(n int) (Buffer, error) {
	if err := ensureContext(); err != nil {
		return nil, err
	}
	if n == 0 {
		return &ManagedBuffer{}, nil
	}
	var p C.CUdeviceptr
	size := C.size_t(n * 4)
	if rc := C.cuMemAllocManaged(&p, size, C.CU_MEM_ATTACH_GLOBAL); rc != C.CUDA_SUCCESS {
		return nil, fmt.Errorf("cuMemAllocManaged(%d) failed (%d)", n, int(rc))
	}
	host := unsafe.Pointer(uintptr(p))
	return &ManagedBuffer{ptr: p, vals: unsafe.Slice((*float32)(host), n)}, nil
}

func (b *ManagedBuffer) Len() int { return len(b.vals) }

func (b *ManagedBuffer) At(i int) float32 {
	C.cuCtxSynchronize()
	return b.vals[i]
}

func (b *ManagedBuffer) Set(i int, v float32) {
	C.cuCtxSynchronize()
	b.vals[i] = v
}

func (b *ManagedBuffer) Release() error {
	if b.ptr == 0 {
		return nil
	}
	rc := C.cuMemFree(b.ptr)
	b.ptr, b.vals = 0, nil
	if rc != C.CUDA_SUCCESS {
		return fmt.Errorf("cuMemFree failed (%d)", int(rc))
	}
	return nil
}

func (b *ManagedBuffer) data() unsafe.Pointer {
	if b.ptr == 0 {
		return nil
	}
	return unsafe.Pointer(uintptr(b.ptr))
}
