package device

import (
	"unsafe"

	"github.com/notargets/gocca"
	"github.com/pkg/errors"
)

// Element is a value type that can live in device memory
type Element interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// Buffer is typed device memory of fixed length. A zero-length buffer owns
// no device memory.
type Buffer[T Element] struct {
	dev *Device
	mem *gocca.OCCAMemory
	n   int
}

type memoryArg interface {
	occaMemory() *gocca.OCCAMemory
}

func (b *Buffer[T]) occaMemory() *gocca.OCCAMemory {
	if b == nil {
		return nil
	}
	return b.mem
}

// SizeOf returns the size in bytes of one element of T
func SizeOf[T Element]() int64 {
	var sample T
	return int64(unsafe.Sizeof(sample))
}

// Alloc allocates an uninitialized buffer of n elements on dev
func Alloc[T Element](dev *Device, n int) (*Buffer[T], error) {
	return alloc[T](dev, n, nil)
}

// AllocFrom allocates a buffer on dev holding a copy of host. The copy has
// completed when AllocFrom returns.
func AllocFrom[T Element](dev *Device, host []T) (*Buffer[T], error) {
	if len(host) == 0 {
		return alloc[T](dev, 0, nil)
	}
	return alloc[T](dev, len(host), unsafe.Pointer(&host[0]))
}

func alloc[T Element](dev *Device, n int, src unsafe.Pointer) (b *Buffer[T], err error) {
	if n < 0 {
		return nil, errors.Errorf("negative buffer length %d", n)
	}
	b = &Buffer[T]{dev: dev, n: n}
	if n == 0 {
		return b, nil
	}
	bytes := int64(n) * SizeOf[T]()
	err = dev.exclusive(func() error {
		return runGuarded(func() error {
			b.mem = dev.occa.Malloc(bytes, src, nil)
			if b.mem == nil {
				return errors.Errorf("allocation of %d bytes failed on %s", bytes, dev)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Buffer[T]) Len() int { return b.n }

func (b *Buffer[T]) Device() *Device { return b.dev }

func (b *Buffer[T]) Free() {
	if b != nil && b.mem != nil {
		_ = b.dev.exclusive(func() error {
			b.mem.Free()
			return nil
		})
		b.mem = nil
	}
}

func checkRange[T Element](b *Buffer[T], q *Queue, offset, count int) error {
	if b.dev != q.dev {
		return errors.Errorf("buffer on %s used by queue on %s", b.dev, q.dev)
	}
	if offset < 0 || offset+count > b.n {
		return errors.Errorf("range [%d,%d) outside buffer of length %d", offset, offset+count, b.n)
	}
	return nil
}

// EnqueueWrite copies src into b starting at element offset. src must not
// be modified until the returned event completes.
func EnqueueWrite[T Element](q *Queue, b *Buffer[T], offset int, src []T, wait ...*Event) *Event {
	if err := checkRange(b, q, offset, len(src)); err != nil {
		return Completed(err)
	}
	if len(src) == 0 {
		return q.Marker(wait...)
	}
	return q.Enqueue("write", func() error {
		size := SizeOf[T]()
		bytes := int64(len(src)) * size
		return b.dev.exclusive(func() error {
			if offset == 0 {
				b.mem.CopyFrom(unsafe.Pointer(&src[0]), bytes)
			} else {
				b.mem.CopyFromWithOffset(unsafe.Pointer(&src[0]), bytes, int64(offset)*size)
			}
			return nil
		})
	}, wait...)
}

// EnqueueRead copies len(dst) elements of b starting at element offset into
// dst. dst is valid once the returned event completes.
func EnqueueRead[T Element](q *Queue, b *Buffer[T], offset int, dst []T, wait ...*Event) *Event {
	if err := checkRange(b, q, offset, len(dst)); err != nil {
		return Completed(err)
	}
	if len(dst) == 0 {
		return q.Marker(wait...)
	}
	return q.Enqueue("read", func() error {
		size := SizeOf[T]()
		bytes := int64(len(dst)) * size
		return b.dev.exclusive(func() error {
			if offset == 0 {
				b.mem.CopyTo(unsafe.Pointer(&dst[0]), bytes)
			} else {
				b.mem.CopyToWithOffset(unsafe.Pointer(&dst[0]), bytes, int64(offset)*size)
			}
			return nil
		})
	}, wait...)
}

// Write is the blocking form of EnqueueWrite
func Write[T Element](q *Queue, b *Buffer[T], offset int, src []T) error {
	return EnqueueWrite(q, b, offset, src).Await()
}

// Read is the blocking form of EnqueueRead
func Read[T Element](q *Queue, b *Buffer[T], offset int, dst []T) error {
	return EnqueueRead(q, b, offset, dst).Await()
}
