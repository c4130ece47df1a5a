package spmat

import (
	"github.com/notargets/gospmv/device"
	"github.com/notargets/gospmv/kernels"
	"github.com/pkg/errors"
)

// Mul computes y = alpha*A*x, or y += alpha*A*x when appendY is set.
//
// x must be partitioned like ColPartition and y like RowPartition, on the
// same devices as the matrix. The call returns once every kernel has been
// issued; results are visible to later operations on the matrix queues,
// including Vector.Read. The only wait inside Mul is for the ghost values
// gathered on the transfer queues.
func (mtx *Matrix[T]) Mul(x, y *Vector[T], alpha T, appendY bool) error {
	if err := mtx.conforms(x, y); err != nil {
		return err
	}
	mtx.mu.Lock()
	defer mtx.mu.Unlock()
	if mtx.stores == nil {
		return errors.New("spmat: Mul on a freed matrix")
	}

	exchanging := mtx.rx != nil
	if exchanging {
		if err := mtx.startGather(x); err != nil {
			return err
		}
	}

	for d, s := range mtx.stores {
		if s != nil {
			s.mulLocal(mtx.queues[d], mtx.cache, x.parts[d], y.parts[d], alpha, appendY)
		}
	}

	if exchanging {
		if err := mtx.finishExchange(y, alpha); err != nil {
			return err
		}
	}
	return mtx.queueErr()
}

func (mtx *Matrix[T]) conforms(x, y *Vector[T]) error {
	if x == nil || y == nil {
		return errors.New("spmat: nil vector")
	}
	if !x.part.Equals(mtx.colPart) {
		return errors.Errorf("spmat: input %s does not match column partition %s", x.part, mtx.colPart)
	}
	if !y.part.Equals(mtx.rowPart) {
		return errors.Errorf("spmat: output %s does not match row partition %s", y.part, mtx.rowPart)
	}
	for d, q := range mtx.queues {
		if x.parts[d] == nil || y.parts[d] == nil {
			return errors.New("spmat: vector has been freed")
		}
		if x.parts[d].Device() != q.Device() || y.parts[d].Device() != q.Device() {
			return errors.Errorf("spmat: vector part %d is not on %s", d, q.Device())
		}
	}
	return nil
}

// startGather packs the values every device supplies and starts copying
// them into the host staging area at the device's offset
func (mtx *Matrix[T]) startGather(x *Vector[T]) error {
	dt := kernels.DataTypeOf[T]()
	for d, q := range mtx.queues {
		e := &mtx.exc[d]
		if e.nsend == 0 {
			e.gather = nil
			continue
		}
		k, err := mtx.cache.Get(q.Device(), kernels.Gather, dt)
		if err != nil {
			return err
		}
		packed := q.Launch(k, []interface{}{int64(e.nsend), x.parts[d], e.colsToSend, e.valsToSend})
		e.gather = device.EnqueueRead(mtx.squeues[d], e.valsToSend, 0,
			mtx.rx[mtx.cidx[d]:mtx.cidx[d+1]], packed)
	}
	return nil
}

// finishExchange waits for the gathered values, hands every device its
// ghosts and enqueues the remote contributions
func (mtx *Matrix[T]) finishExchange(y *Vector[T], alpha T) error {
	gathers := make([]*device.Event, len(mtx.exc))
	for d := range mtx.exc {
		gathers[d] = mtx.exc[d].gather
	}
	if err := device.AwaitAll(gathers...); err != nil {
		return errors.Wrap(err, "spmat: gathering ghost values")
	}

	for d, q := range mtx.queues {
		e := &mtx.exc[d]
		if len(e.recvPos) == 0 {
			continue
		}
		// the previous upload may still be reading valsToRecv
		if err := e.upload.Await(); err != nil {
			return errors.Wrapf(err, "spmat: ghost upload to device %d", d)
		}
		for i, p := range e.recvPos {
			e.valsToRecv[i] = mtx.rx[p]
		}
		// rx is rewritten only after the previous remote kernel read it
		e.upload = device.EnqueueWrite(mtx.squeues[d], e.rx, 0, e.valsToRecv, e.remote)
		e.remote = mtx.stores[d].mulRemote(q, mtx.cache, e.rx, y.parts[d], alpha, e.upload)
	}
	return nil
}

func (mtx *Matrix[T]) queueErr() error {
	for _, q := range mtx.queues {
		if err := q.Err(); err != nil {
			return err
		}
	}
	for _, q := range mtx.squeues {
		if err := q.Err(); err != nil {
			return err
		}
	}
	return nil
}
