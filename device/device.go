package device

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/notargets/gocca"
	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
	"k8s.io/klog/v2"
)

// Class identifies the execution model of a device and selects the sparse
// storage layout used on it
type Class int

const (
	ClassAuto Class = iota // derive from the OCCA mode
	Scalar                 // CPU-like devices, one row per thread, CSR storage
	Wide                   // lock-step SIMT devices, hybrid ELL storage
)

func (c Class) String() string {
	switch c {
	case Scalar:
		return "scalar"
	case Wide:
		return "wide"
	default:
		return "auto"
	}
}

// ParseClass accepts "auto", "scalar", "cpu", "wide" and "gpu"
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ClassAuto, nil
	case "scalar", "cpu":
		return Scalar, nil
	case "wide", "gpu":
		return Wide, nil
	}
	return ClassAuto, errors.Errorf("unknown device class %q", s)
}

// Config describes one compute device
type Config struct {
	Props  string  // OCCA device properties, e.g. {"mode": "Serial"}
	Class  Class   // ClassAuto derives the class from the OCCA mode
	Weight float64 // relative throughput used for partitioning, 0 means 1
}

// Device is a compute device together with the properties the sparse
// matrix needs: its class, its partition weight and a context identity used
// to key compiled kernels.
type Device struct {
	occa  *gocca.OCCADevice
	id    uint64
	mode  string
	class Class

	mu     sync.Mutex
	weight float64

	// held across every kernel run and copy; OCCA kernel arguments and
	// the device stream are shared by all queues on the device
	runMu sync.Mutex
}

var nextID atomic.Uint64

// OCCA serializes compilation: the on-disk kernel cache is shared by every
// device in the process.
var buildMu sync.Mutex

// New creates a device from its configuration
func New(cfg Config) (*Device, error) {
	props := cfg.Props
	if props == "" {
		props = `{"mode": "Serial"}`
	}
	occa, err := gocca.NewDevice(props)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create device from %s", props)
	}
	return Wrap(occa, cfg), nil
}

// Wrap adopts an existing OCCA device; Free releases it
func Wrap(occa *gocca.OCCADevice, cfg Config) *Device {
	if occa == nil {
		panic("device: nil OCCA device")
	}
	d := &Device{
		occa:   occa,
		id:     nextID.Add(1),
		mode:   occa.Mode(),
		class:  cfg.Class,
		weight: cfg.Weight,
	}
	if d.class == ClassAuto {
		d.class = classOfMode(d.mode)
	}
	if d.weight == 0 {
		d.weight = 1
	}
	klog.V(1).Infof("device %d: mode %s, class %s, weight %g", d.id, d.mode, d.class, d.weight)
	return d
}

func classOfMode(mode string) Class {
	switch mode {
	case "Serial", "OpenMP":
		return Scalar
	default:
		return Wide
	}
}

// ID identifies the device context. Kernels compiled for one ID are only
// valid on that device.
func (d *Device) ID() uint64 { return d.id }

func (d *Device) Mode() string { return d.mode }

func (d *Device) Class() Class { return d.class }

// Weight is the relative throughput of the device
func (d *Device) Weight() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.weight
}

// SetWeight overrides the partition weight. Zero or negative weights give
// the device an empty share of every partition. Matrices built before the
// call keep the partition they were built with.
func (d *Device) SetWeight(w float64) {
	d.mu.Lock()
	d.weight = w
	d.mu.Unlock()
}

// exclusive runs f while no other queue uses the device
func (d *Device) exclusive(f func() error) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return f()
}

func (d *Device) OCCA() *gocca.OCCADevice { return d.occa }

func (d *Device) String() string {
	return fmt.Sprintf("device %d (%s, %s)", d.id, d.mode, d.class)
}

// WorkGroupSize is the inner loop width kernels are generated with
func (d *Device) WorkGroupSize() int {
	if d.class == Wide {
		return 256
	}
	return 8 * hostLanes()
}

// PitchAlignment is the row padding used for column-major ELL storage
func (d *Device) PitchAlignment() int {
	if d.class == Wide {
		return 32
	}
	return hostLanes()
}

// hostLanes is the number of float64 lanes in the widest vector unit of the host
func hostLanes() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 8
	case cpu.X86.HasAVX2, cpu.X86.HasAVX:
		return 4
	case cpu.X86.HasSSE2, cpu.ARM64.HasASIMD:
		return 2
	default:
		return 1
	}
}

// BuildKernel compiles kernelName out of source for this device
func (d *Device) BuildKernel(source, kernelName string, workGroupSize int) (*Kernel, error) {
	buildMu.Lock()
	defer buildMu.Unlock()

	var (
		kernel *gocca.OCCAKernel
		err    error
	)
	if d.mode == "OpenMP" {
		// OCCA does not pass its default -O3 to OpenMP builds
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = d.occa.BuildKernelFromString(source, kernelName, props)
	} else {
		kernel, err = d.occa.BuildKernelFromString(source, kernelName, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build kernel %s on %s", kernelName, d)
	}
	if kernel == nil {
		return nil, errors.Errorf("kernel build returned nil for %s on %s", kernelName, d)
	}
	klog.V(2).Infof("%s: compiled kernel %s", d, kernelName)
	return &Kernel{
		Name:          kernelName,
		WorkGroupSize: workGroupSize,
		dev:           d,
		occa:          kernel,
	}, nil
}

// Finish blocks until all work submitted to the OCCA device has completed
func (d *Device) Finish() { d.occa.Finish() }

func (d *Device) Free() {
	if d.occa != nil {
		d.occa.Free()
		d.occa = nil
	}
}
