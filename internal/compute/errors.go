package compute

import (
	"errors"
	"fmt"
)

var ErrNoGPU = errors.New("compute: no cuda device available")

type UnknownDeviceError struct {
	Name string
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("compute: unknown device %q (want cpu, gpu or auto)", e.Name)
}
