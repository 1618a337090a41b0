package jit

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/google/uuid"
	"github.com/san-kum/hpmcpatch/internal/core"
	"github.com/san-kum/hpmcpatch/internal/kernel"
	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

// Toolchain compiles units with the native compilers named in their
// options: CPU units become shared objects loaded with dlopen, GPU units
// become fat binaries loaded through the CUDA driver.
type Toolchain struct {
	mu      sync.Mutex
	workDir string
}

func NewToolchain() *Toolchain {
	return &Toolchain{}
}

// Cleanup removes generated sources and libraries.
func (t *Toolchain) Cleanup() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.workDir == "" {
		return nil
	}
	err := os.RemoveAll(t.workDir)
	t.workDir = ""
	return err
}

func (t *Toolchain) dir() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.workDir != "" {
		return t.workDir, nil
	}
	dir, err := os.MkdirTemp("", "hpmcpatch-")
	if err != nil {
		return "", err
	}
	t.workDir = dir
	return dir, nil
}

func (t *Toolchain) Compile(u kernel.Unit) (Artifact, error) {
	dir, err := t.dir()
	if err != nil {
		return nil, &core.CompileError{Unit: u.Name, Target: u.Target.String(), Err: err}
	}
	id := uuid.New()
	base := filepath.Join(dir, u.Name+"-"+id.String())

	switch u.Target {
	case kernel.GPU:
		return t.compileGPU(u, id, base)
	default:
		return t.compileCPU(u, id, base)
	}
}

func (t *Toolchain) Allocate(target kernel.Target, n int) (Buffer, error) {
	if target == kernel.GPU {
		return allocManaged(n)
	}
	return NewHostBuffer(n), nil
}

func (t *Toolchain) compileCPU(u kernel.Unit, id uuid.UUID, base string) (Artifact, error) {
	opts := u.Options
	src, lib := base+".cc", base+".so"
	if err := os.WriteFile(src, []byte(u.Source), 0644); err != nil {
		return nil, &core.CompileError{Unit: u.Name, Target: u.Target.String(), Err: err}
	}

	args := []string{"-std=c++14", "-shared", "-fPIC"}
	for _, inc := range opts.IncludePaths {
		args = append(args, "-I"+inc)
	}
	args = append(args, opts.Flags...)
	args = append(args, "-o", lib, src)

	if diag, err := run(compilerOr(opts.Compiler, "c++"), args); err != nil {
		return nil, &core.CompileError{Unit: u.Name, Target: u.Target.String(), Diagnostic: diag, Err: err}
	}

	a, err := loadShared(lib)
	if err != nil {
		return nil, &core.CompileError{Unit: u.Name, Target: u.Target.String(), Err: err}
	}
	a.id, a.unit = id, u.Name
	return a, nil
}

func (t *Toolchain) compileGPU(u kernel.Unit, id uuid.UUID, base string) (Artifact, error) {
	opts := u.Options
	src, image := base+".cu", base+".fatbin"
	if err := os.WriteFile(src, []byte(u.Source), 0644); err != nil {
		return nil, &core.CompileError{Unit: u.Name, Target: u.Target.String(), Err: err}
	}

	args := append([]string{"-fatbin", "-rdc=true", "-std=c++14"}, archFlags(opts)...)
	for _, inc := range opts.IncludePaths {
		args = append(args, "-I"+inc)
	}
	if opts.RuntimeLibPath != "" {
		args = append(args, "-L"+opts.RuntimeLibPath, "-lcudadevrt")
	}
	args = append(args, opts.Flags...)
	args = append(args, "-o", image, src)

	if diag, err := run(compilerOr(opts.Compiler, "nvcc"), args); err != nil {
		return nil, &core.CompileError{Unit: u.Name, Target: u.Target.String(), Diagnostic: diag, Err: err}
	}

	data, err := os.ReadFile(image)
	if err != nil {
		return nil, &core.CompileError{Unit: u.Name, Target: u.Target.String(), Err: err}
	}
	mod, err := loadDeviceModule(data)
	if err != nil {
		return nil, &core.CompileError{Unit: u.Name, Target: u.Target.String(), Err: err}
	}
	return &deviceArtifact{id: id, unit: u.Name, mod: mod}, nil
}

// archFlags selects the device architecture; nvcc picks its own default
// when none was resolved.
func archFlags(opts kernel.CompileOptions) []string {
	if opts.DeviceArch <= 0 {
		return nil
	}
	return []string{"-arch=sm_" + strconv.Itoa(opts.DeviceArch)}
}

func compilerOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// run executes a compiler and returns its combined output as the diagnostic.
func run(name string, args []string) (string, error) {
	var out bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

type nativeEval func(rij *vecmath.Vec3, typeI uint32, qi *vecmath.Quat, di, chargeI float32,
	typeJ uint32, qj *vecmath.Quat, dj, chargeJ float32) float32

// sharedArtifact is a compiled CPU unit loaded into this process.
type sharedArtifact struct {
	id     uuid.UUID
	unit   string
	path   string
	handle uintptr
	eval   nativeEval
	syms   map[string]uintptr
	bound  map[string]Buffer
}

func loadShared(path string) (*sharedArtifact, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("dlopen(%q) failed: %w", path, err), os.Remove(path))
	}

	a := &sharedArtifact{
		path:   path,
		handle: handle,
		syms:   make(map[string]uintptr, 2),
		bound:  make(map[string]Buffer, 2),
	}

	fn, err := purego.Dlsym(handle, kernel.EntryPoint)
	if err != nil {
		return nil, unload(handle, path, fmt.Errorf("dlsym(%q) failed: %w", kernel.EntryPoint, err))
	}
	purego.RegisterFunc(&a.eval, fn)

	for _, name := range []string{kernel.SymbolParam, kernel.SymbolUnionParam} {
		addr, err := purego.Dlsym(handle, name)
		if err != nil {
			return nil, unload(handle, path, fmt.Errorf("dlsym(%q) failed: %w", name, err))
		}
		a.syms[name] = addr
	}
	return a, nil
}

// unload drops a library that failed to load and removes it from disk.
func unload(handle uintptr, path string, cause error) error {
	_ = purego.Dlclose(handle)
	return errors.Join(cause, os.Remove(path))
}

func (a *sharedArtifact) ID() uuid.UUID         { return a.id }
func (a *sharedArtifact) Unit() string          { return a.unit }
func (a *sharedArtifact) Target() kernel.Target { return kernel.CPU }

func (a *sharedArtifact) Bind(symbol string, buf Buffer) error {
	addr, ok := a.syms[symbol]
	if !ok {
		return fmt.Errorf("unit %s has no symbol %s", a.unit, symbol)
	}
	mem, ok := buf.(addressable)
	if !ok {
		return fmt.Errorf("buffer for %s is not host addressable", symbol)
	}
	// addr is the address of a float* global inside the loaded library.
	slot := *(*unsafe.Pointer)(unsafe.Pointer(&addr))
	*(*unsafe.Pointer)(slot) = mem.data()
	a.bound[symbol] = buf
	return nil
}

func (a *sharedArtifact) Func() EvalFunc {
	return func(rij vecmath.Vec3, typeI uint32, qi vecmath.Quat, di, chargeI float32,
		typeJ uint32, qj vecmath.Quat, dj, chargeJ float32) float32 {
		return a.eval(&rij, typeI, &qi, di, chargeI, typeJ, &qj, dj, chargeJ)
	}
}

func (a *sharedArtifact) Close() error {
	for name, addr := range a.syms {
		if _, ok := a.bound[name]; ok {
			slot := *(*unsafe.Pointer)(unsafe.Pointer(&addr))
			*(*unsafe.Pointer)(slot) = nil
		}
	}
	a.bound = nil
	if a.handle == 0 {
		return nil
	}
	err := purego.Dlclose(a.handle)
	a.handle = 0
	return errors.Join(err, os.Remove(a.path))
}

// deviceArtifact is a compiled GPU unit resident on the device. The move
// engine launches it; the host never calls it directly.
type deviceArtifact struct {
	id   uuid.UUID
	unit string
	mod  deviceModule
}

func (a *deviceArtifact) ID() uuid.UUID         { return a.id }
func (a *deviceArtifact) Unit() string          { return a.unit }
func (a *deviceArtifact) Target() kernel.Target { return kernel.GPU }
func (a *deviceArtifact) Func() EvalFunc        { return nil }

func (a *deviceArtifact) Bind(symbol string, buf Buffer) error {
	mem, ok := buf.(addressable)
	if !ok {
		return fmt.Errorf("buffer for %s is not device addressable", symbol)
	}
	return a.mod.setPointer(symbol, mem.data())
}

func (a *deviceArtifact) Close() error {
	return a.mod.unload()
}
