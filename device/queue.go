package device

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const queueDepth = 256

// Queue is an ordered instruction stream on one device. Operations run
// asynchronously with respect to the caller, one at a time and in the order
// they were enqueued. Several queues may share a device.
//
// Errors are sticky: once an operation fails, every later operation on the
// queue is skipped and completes with that error.
type Queue struct {
	dev *Device
	ops chan operation

	mu  sync.Mutex
	err error

	closeMu sync.RWMutex
	closed  bool
	exited  chan struct{}
}

type operation struct {
	name string
	run  func() error
	wait []*Event
	done *Event
}

// NewQueue starts a queue on dev; Release stops it
func NewQueue(dev *Device) *Queue {
	if dev == nil {
		panic("device: NewQueue with nil device")
	}
	q := &Queue{
		dev:    dev,
		ops:    make(chan operation, queueDepth),
		exited: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) Device() *Device { return q.dev }

func (q *Queue) loop() {
	defer close(q.exited)
	for op := range q.ops {
		err := q.Err()
		if err == nil {
			for _, ev := range op.wait {
				if werr := ev.Await(); werr != nil {
					err = errors.Wrapf(werr, "%s: dependency failed", op.name)
					break
				}
			}
		}
		if err == nil {
			if err = runGuarded(op.run); err != nil {
				err = errors.Wrapf(err, "%s on %s", op.name, q.dev)
			}
		}
		if err != nil {
			q.setErr(err)
		}
		op.done.complete(err)
	}
}

// runGuarded turns a panic inside the device runtime into an error
func runGuarded(run func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device runtime panic: %v", r)
		}
	}()
	return run()
}

func (q *Queue) setErr(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err == nil {
		q.err = err
		klog.V(1).Infof("queue on %s failed: %v", q.dev, err)
	}
}

// Err returns the sticky error of the queue, if any
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Enqueue submits run to the queue. It starts after every operation
// enqueued before it and after every event in wait has completed.
func (q *Queue) Enqueue(name string, run func() error, wait ...*Event) *Event {
	done := newEvent()
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		done.complete(errors.Errorf("%s: queue on %s is released", name, q.dev))
		return done
	}
	q.ops <- operation{name: name, run: run, wait: wait, done: done}
	return done
}

// Marker returns an event that completes once everything enqueued so far
// has completed
func (q *Queue) Marker(wait ...*Event) *Event {
	return q.Enqueue("marker", func() error { return nil }, wait...)
}

// Finish blocks until the queue drains and returns the sticky error
func (q *Queue) Finish() error {
	if err := q.Marker().Await(); err != nil {
		return err
	}
	return q.Err()
}

// Launch enqueues a kernel run. Buffer arguments are passed as device
// memory, everything else is passed by value.
func (q *Queue) Launch(k *Kernel, args []interface{}, wait ...*Event) *Event {
	if k.dev != q.dev {
		return Completed(errors.Errorf("kernel %s compiled for %s launched on %s", k.Name, k.dev, q.dev))
	}
	return q.Enqueue("kernel "+k.Name, func() error {
		occaArgs := make([]interface{}, len(args))
		for i, a := range args {
			if m, ok := a.(memoryArg); ok {
				mem := m.occaMemory()
				if mem == nil {
					return errors.Errorf("argument %d of %s is an unallocated buffer", i, k.Name)
				}
				occaArgs[i] = mem
				continue
			}
			occaArgs[i] = a
		}
		return k.dev.exclusive(func() error {
			return k.occa.RunWithArgs(occaArgs...)
		})
	}, wait...)
}

// Release drains the queue and stops its worker. Later operations fail.
func (q *Queue) Release() {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return
	}
	q.closed = true
	close(q.ops)
	q.closeMu.Unlock()
	<-q.exited
}
