package config

import (
	"gopkg.in/gcfg.v1"

	"github.com/san-kum/hpmcpatch/internal/jit"
)

// ExampleSettingsFile documents every variable LoadSettings understands.
// Multi-valued variables are repeated once per value.
const ExampleSettingsFile = `[cpu]
# Host compiler used for shared objects.
Compiler = c++
Flag = -O2
Flag = -march=native
Include-Path = /usr/local/include/hoomd
Engine-Include = hoomd/HOOMDMath.h

[gpu]
Compiler = nvcc
# Compute capability; the active device's when unset.
# Arch = 70
Include-Path = /opt/cuda/include
Runtime-Lib-Path = /opt/cuda/lib64
`

type targetSection struct {
	Compiler       string
	Flag           []string
	IncludePath    []string `gcfg:"include-path"`
	EngineInclude  []string `gcfg:"engine-include"`
	Arch           int
	RuntimeLibPath string `gcfg:"runtime-lib-path"`
}

type settingsFile struct {
	CPU targetSection `gcfg:"cpu"`
	GPU targetSection `gcfg:"gpu"`
}

// LoadSettings reads compiler settings from an ini-style file. Variables the
// file omits keep the values of jit.DefaultSettings.
func LoadSettings(path string) (jit.Settings, error) {
	var f settingsFile
	if err := gcfg.ReadFileInto(&f, path); err != nil {
		return jit.Settings{}, err
	}
	return f.apply(jit.DefaultSettings()), nil
}

// ParseSettings is LoadSettings for settings held in memory.
func ParseSettings(text string) (jit.Settings, error) {
	var f settingsFile
	if err := gcfg.ReadStringInto(&f, text); err != nil {
		return jit.Settings{}, err
	}
	return f.apply(jit.DefaultSettings()), nil
}

func (f *settingsFile) apply(s jit.Settings) jit.Settings {
	s.CPU = f.CPU.apply(s.CPU)
	s.GPU = f.GPU.apply(s.GPU)
	return s
}

func (t *targetSection) apply(o jit.TargetOptions) jit.TargetOptions {
	if t.Compiler != "" {
		o.Compiler = t.Compiler
	}
	if len(t.Flag) > 0 {
		o.Flags = t.Flag
	}
	if len(t.IncludePath) > 0 {
		o.IncludePaths = t.IncludePath
	}
	if len(t.EngineInclude) > 0 {
		o.EngineIncludes = t.EngineInclude
	}
	if t.Arch > 0 {
		o.DeviceArch = t.Arch
	}
	if t.RuntimeLibPath != "" {
		o.RuntimeLibPath = t.RuntimeLibPath
	}
	return o
}
