package kernels

import (
	"sync"

	"github.com/notargets/gospmv/device"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type cacheKey struct {
	dev  uint64
	name Name
	dt   DataType
}

// Cache memoizes compiled kernels per device context. A cache lives as long
// as the application session that owns it; Free releases every kernel it
// compiled. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*device.Kernel
	hits    int
	misses  int
}

func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*device.Kernel)}
}

// Get returns kernel name for real type dt compiled on dev, compiling it on
// first use
func (c *Cache) Get(dev *device.Device, name Name, dt DataType) (*device.Kernel, error) {
	key := cacheKey{dev: dev.ID(), name: name, dt: dt}

	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.entries[key]; ok {
		c.hits++
		return k, nil
	}
	c.misses++

	wgs := dev.WorkGroupSize()
	src, err := Source(name, dt, wgs)
	if err != nil {
		return nil, err
	}
	k, err := dev.BuildKernel(src, string(name), wgs)
	if err != nil {
		return nil, errors.Wrapf(err, "kernel cache miss for %s/%s", name, dt)
	}
	klog.V(2).Infof("kernel cache: stored %s/%s for %s", name, dt, dev)
	c.entries[key] = k
	return k, nil
}

// Len returns the number of compiled kernels held
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the number of lookups served from the cache and the number
// that required compilation
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Forget drops and frees every kernel compiled for dev
func (c *Cache) Forget(dev *device.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, k := range c.entries {
		if key.dev == dev.ID() {
			k.Free()
			delete(c.entries, key)
		}
	}
}

func (c *Cache) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, k := range c.entries {
		k.Free()
		delete(c.entries, key)
	}
}
