package spmat

import (
	"sync"

	"github.com/james-bowman/sparse"
	"github.com/notargets/gospmv/device"
	"github.com/notargets/gospmv/kernels"
	"github.com/notargets/gospmv/partitions"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Matrix is a sparse matrix distributed by rows over the devices of a set
// of queues. Device d owns the rows of RowPartition().Range(d) and the
// entries of the input vector in ColPartition().Range(d); entries it needs
// from other devices are exchanged on every multiply.
//
// The queues are borrowed and must outlive the matrix. A Matrix is
// immutable after construction; Mul calls are serialized.
type Matrix[T Real] struct {
	queues  []*device.Queue
	squeues []*device.Queue // transfer queues, nil without exchange

	rowPart *partitions.Partition
	colPart *partitions.Partition

	stores []*localStore[T] // nil for devices without rows
	exc    []exchange[T]
	cidx   []int
	rx     []T // host staging of the whole send list

	cache    *kernels.Cache
	ownCache bool

	nrows, ncols, nnz int

	mu sync.Mutex
}

// PartitionFor splits [0, n) over the devices of queues in proportion to
// their weights
func PartitionFor(n int, queues []*device.Queue) *partitions.Partition {
	weights := make([]float64, len(queues))
	positive := false
	for d, q := range queues {
		weights[d] = q.Device().Weight()
		positive = positive || weights[d] > 0
	}
	if !positive && len(queues) > 1 {
		klog.Warningf("spmat: no device has a positive weight, splitting %d entries equally", n)
	}
	return partitions.New(n, weights)
}

// New distributes the n x m matrix given in 0-based CSR form over queues.
// Malformed CSR input panics; device failures are returned.
func New[T Real](queues []*device.Queue, n, m int, row, col []int, val []T, opts ...Option) (*Matrix[T], error) {
	if len(queues) == 0 {
		return nil, errors.New("spmat: at least one queue is required")
	}
	checkCSR(n, m, row, col, val)
	o := buildOptions(opts)

	mtx := &Matrix[T]{
		queues:  queues,
		rowPart: PartitionFor(n, queues),
		colPart: PartitionFor(m, queues),
		nrows:   n,
		ncols:   m,
		nnz:     row[n],
		cache:   o.cache,
	}
	if mtx.cache == nil {
		mtx.cache = kernels.NewCache()
		mtx.ownCache = true
	}

	plan := planExchange(mtx.rowPart, mtx.colPart, row, col)
	err := mtx.setupExchange(plan)
	if err == nil {
		err = mtx.buildStores(plan, row, col, val, o)
	}
	if err == nil {
		err = mtx.compileKernels()
	}
	if err != nil {
		mtx.Free()
		return nil, err
	}
	return mtx, nil
}

// FromCSR distributes a gonum-compatible CSR matrix
func FromCSR(queues []*device.Queue, a *sparse.CSR, opts ...Option) (*Matrix[float64], error) {
	n, m := a.Dims()
	raw := a.RawMatrix()
	return New(queues, n, m, raw.Indptr, raw.Ind, raw.Data, opts...)
}

func (mtx *Matrix[T]) buildStores(plan *exchangePlan, row, col []int, val []T, o options) error {
	nd := len(mtx.queues)
	mtx.stores = make([]*localStore[T], nd)
	locals := make([]*hostCSR[T], nd)
	remotes := make([]*hostCSR[T], nd)

	var g errgroup.Group
	for d := 0; d < nd; d++ {
		beg, end := mtx.rowPart.Range(d)
		if beg == end {
			continue
		}
		g.Go(func() error {
			xbeg, xend := mtx.colPart.Range(d)
			locals[d], remotes[d] = splitRows(beg, end, xbeg, xend, row, col, val, plan.ghosts[d])
			return nil
		})
	}
	_ = g.Wait()

	for d, q := range mtx.queues {
		if locals[d] == nil {
			continue
		}
		dev := q.Device()
		layout := o.layout.resolve(dev)
		s, err := newLocalStore(dev, layout, o.ellWidthLimit, locals[d], remotes[d])
		if err != nil {
			return errors.Wrapf(err, "building rows of device %d on %s", d, dev)
		}
		mtx.stores[d] = s
		klog.V(1).Infof("spmat: device %d (%s) rows %d, nonzeros %d, layout %s",
			d, dev, mtx.rowPart.Len(d), s.nonZeros(), layout)
	}
	return nil
}

// compileKernels fills the cache with every kernel Mul will launch
func (mtx *Matrix[T]) compileKernels() error {
	dt := kernels.DataTypeOf[T]()
	for d, q := range mtx.queues {
		var names []kernels.Name
		if s := mtx.stores[d]; s != nil {
			names = s.kernelNames()
		}
		if mtx.exc[d].nsend > 0 {
			names = append(names, kernels.Gather)
		}
		for _, name := range names {
			if _, err := mtx.cache.Get(q.Device(), name, dt); err != nil {
				return errors.Wrapf(err, "compiling for device %d", d)
			}
		}
	}
	return nil
}

// Rows returns the number of rows
func (mtx *Matrix[T]) Rows() int { return mtx.nrows }

// Cols returns the number of columns
func (mtx *Matrix[T]) Cols() int { return mtx.ncols }

// NonZeros returns the number of stored entries
func (mtx *Matrix[T]) NonZeros() int { return mtx.nnz }

// RowPartition is the partition of output vectors
func (mtx *Matrix[T]) RowPartition() *partitions.Partition { return mtx.rowPart }

// ColPartition is the partition of input vectors
func (mtx *Matrix[T]) ColPartition() *partitions.Partition { return mtx.colPart }

// Layout returns the storage layout used on device d, LayoutAuto when the
// device holds no rows
func (mtx *Matrix[T]) Layout(d int) Layout {
	if s := mtx.stores[d]; s != nil {
		return s.layout
	}
	return LayoutAuto
}

// Ghosts returns how many input entries device d receives from other
// devices on every multiply
func (mtx *Matrix[T]) Ghosts(d int) int { return len(mtx.exc[d].recvPos) }

// Free waits for outstanding work and releases all device memory held by
// the matrix. The queues passed to New are not released.
func (mtx *Matrix[T]) Free() {
	mtx.mu.Lock()
	defer mtx.mu.Unlock()

	for _, q := range mtx.queues {
		if err := q.Marker().Await(); err != nil {
			klog.Errorf("spmat: freeing matrix after failure on %s: %v", q.Device(), err)
		}
	}
	for _, q := range mtx.squeues {
		if q != nil {
			q.Release()
		}
	}
	mtx.squeues = nil
	for _, s := range mtx.stores {
		s.free()
	}
	mtx.stores = nil
	for d := range mtx.exc {
		mtx.exc[d].free()
	}
	mtx.exc = nil
	if mtx.ownCache && mtx.cache != nil {
		mtx.cache.Free()
	}
	mtx.cache = nil
}
