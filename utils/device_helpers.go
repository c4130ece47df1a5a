package utils

import (
	"fmt"

	"github.com/notargets/gospmv/device"
	"k8s.io/klog/v2"
)

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *device.Device {
	// Try OpenMP, then CUDA, then fall back to Serial
	backends := []string{
		`{"mode": "OpenMP"}`,
		`{"mode": "CUDA", "device_id": 0}`,
		`{"mode": "Serial"}`,
	}

	for _, props := range backends {
		dev, err := device.New(device.Config{Props: props})
		if err == nil {
			klog.V(1).Infof("Created %s Device", dev.Mode())
			return dev
		}
	}

	// Should not reach here
	panic("Failed to create any Device")
}

// CreateTestQueues opens n independent Serial devices with one queue each.
// Device d gets classes[d % len(classes)], Scalar when none are given. The
// returned function releases the queues and frees the devices.
func CreateTestQueues(n int, classes ...device.Class) ([]*device.Queue, func()) {
	if len(classes) == 0 {
		classes = []device.Class{device.Scalar}
	}
	queues := make([]*device.Queue, n)
	for d := range queues {
		dev, err := device.New(device.Config{
			Props: `{"mode": "Serial"}`,
			Class: classes[d%len(classes)],
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create test device %d: %v", d, err))
		}
		queues[d] = device.NewQueue(dev)
	}
	cleanup := func() {
		for _, q := range queues {
			q.Release()
			q.Device().Free()
		}
	}
	return queues, cleanup
}

// CreateSharedQueues opens one Serial device of the given class and n
// queues on it. The returned function releases the queues and frees the
// device.
func CreateSharedQueues(n int, class device.Class) ([]*device.Queue, func()) {
	dev, err := device.New(device.Config{Props: `{"mode": "Serial"}`, Class: class})
	if err != nil {
		panic(fmt.Sprintf("Failed to create shared test device: %v", err))
	}
	queues := make([]*device.Queue, n)
	for d := range queues {
		queues[d] = device.NewQueue(dev)
	}
	cleanup := func() {
		for _, q := range queues {
			q.Release()
		}
		dev.Free()
	}
	return queues, cleanup
}
