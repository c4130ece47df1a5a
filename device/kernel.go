package device

import "github.com/notargets/gocca"

// Kernel is a compiled, launchable kernel bound to the device it was built for
type Kernel struct {
	Name          string
	WorkGroupSize int

	dev  *Device
	occa *gocca.OCCAKernel
}

func (k *Kernel) Device() *Device { return k.dev }

func (k *Kernel) Free() {
	if k.occa != nil {
		k.occa.Free()
		k.occa = nil
	}
}
