package spmat

import (
	"github.com/notargets/gospmv/device"
	"github.com/notargets/gospmv/partitions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Vector is a dense vector split over the devices of a set of queues with
// the same weights a Matrix uses, so a vector of length Cols() can be the
// input and one of length Rows() the output of Mul.
type Vector[T Real] struct {
	queues []*device.Queue
	part   *partitions.Partition
	parts  []*device.Buffer[T]
}

// NewVector allocates an uninitialized vector of length n
func NewVector[T Real](queues []*device.Queue, n int) (*Vector[T], error) {
	if len(queues) == 0 {
		return nil, errors.New("spmat: at least one queue is required")
	}
	v := &Vector[T]{
		queues: queues,
		part:   PartitionFor(n, queues),
		parts:  make([]*device.Buffer[T], len(queues)),
	}
	for d, q := range queues {
		b, err := device.Alloc[T](q.Device(), v.part.Len(d))
		if err != nil {
			v.Free()
			return nil, errors.Wrapf(err, "spmat: vector part %d", d)
		}
		v.parts[d] = b
	}
	return v, nil
}

// NewVectorFrom allocates a vector holding a copy of host
func NewVectorFrom[T Real](queues []*device.Queue, host []T) (*Vector[T], error) {
	v, err := NewVector[T](queues, len(host))
	if err != nil {
		return nil, err
	}
	if err = v.Write(host); err != nil {
		v.Free()
		return nil, err
	}
	return v, nil
}

func (v *Vector[T]) Len() int { return v.part.Size() }

func (v *Vector[T]) Partition() *partitions.Partition { return v.part }

// Part returns the slice of the vector stored on device d
func (v *Vector[T]) Part(d int) *device.Buffer[T] { return v.parts[d] }

// Write copies host into the vector. It is ordered after earlier work on
// the vector queues and returns once the copies completed.
func (v *Vector[T]) Write(host []T) error {
	if len(host) != v.Len() {
		return errors.Errorf("spmat: writing %d values into a vector of length %d", len(host), v.Len())
	}
	events := make([]*device.Event, len(v.queues))
	for d, q := range v.queues {
		beg, end := v.part.Range(d)
		events[d] = device.EnqueueWrite(q, v.parts[d], 0, host[beg:end])
	}
	return device.AwaitAll(events...)
}

// Read returns a host copy of the vector
func (v *Vector[T]) Read() ([]T, error) {
	host := make([]T, v.Len())
	if err := v.ReadInto(host); err != nil {
		return nil, err
	}
	return host, nil
}

// ReadInto copies the vector into dst once earlier work on the vector
// queues completed
func (v *Vector[T]) ReadInto(dst []T) error {
	if len(dst) != v.Len() {
		return errors.Errorf("spmat: reading a vector of length %d into %d values", v.Len(), len(dst))
	}
	events := make([]*device.Event, len(v.queues))
	for d, q := range v.queues {
		beg, end := v.part.Range(d)
		events[d] = device.EnqueueRead(q, v.parts[d], 0, dst[beg:end])
	}
	return device.AwaitAll(events...)
}

// Fill sets every entry to value
func (v *Vector[T]) Fill(value T) error {
	host := make([]T, v.Len())
	for i := range host {
		host[i] = value
	}
	return v.Write(host)
}

// Free waits for pending work on the vector queues and releases its memory
func (v *Vector[T]) Free() {
	for d, b := range v.parts {
		if b == nil {
			continue
		}
		if err := v.queues[d].Marker().Await(); err != nil {
			klog.Errorf("spmat: freeing vector after failure on %s: %v", v.queues[d].Device(), err)
		}
		b.Free()
		v.parts[d] = nil
	}
}
