package spmat

import (
	"fmt"

	"github.com/notargets/gospmv/device"
	"github.com/notargets/gospmv/kernels"
	"github.com/pkg/errors"
)

// splitRows divides rows [beg, end) into a local block, whose columns are
// renumbered relative to xbeg, and a remote block, whose columns are
// renumbered densely in the order of the sorted ghost set. remote is nil
// when ghosts is empty.
func splitRows[T Real](beg, end, xbeg, xend int, row, col []int, val []T, ghosts []int) (local, remote *hostCSR[T]) {
	n := end - beg
	if len(ghosts) == 0 && beg == 0 && xbeg == 0 {
		return prefixCSR(end, row, col, val), nil
	}

	r2l := make(map[int]int64, len(ghosts))
	for i, c := range ghosts {
		r2l[c] = int64(i)
	}

	nnz := row[end] - row[beg]
	local = newHostCSR[T](n, nnz)
	if len(ghosts) > 0 {
		remote = newHostCSR[T](n, 0)
	}
	for i := beg; i < end; i++ {
		for j := row[i]; j < row[i+1]; j++ {
			c := col[j]
			if c >= xbeg && c < xend {
				local.push(int64(c-xbeg), val[j])
				continue
			}
			g, ok := r2l[c]
			if !ok {
				panic(fmt.Sprintf("spmat: column %d of row %d is neither local nor a ghost", c, i))
			}
			remote.push(g, val[j])
		}
		local.endRow()
		if remote != nil {
			remote.endRow()
		}
	}
	return local, remote
}

// prefixCSR copies rows [0, end) unchanged
func prefixCSR[T Real](end int, row, col []int, val []T) *hostCSR[T] {
	nnz := row[end]
	h := &hostCSR[T]{
		row: make([]int64, end+1),
		col: make([]int64, nnz),
		val: val[:nnz:nnz],
	}
	for i := range h.row {
		h.row[i] = int64(row[i])
	}
	for j := range h.col {
		h.col[j] = int64(col[j])
	}
	return h
}

type csrBlock[T Real] struct {
	row, col *device.Buffer[int64]
	val      *device.Buffer[T]
}

type hellBlock[T Real] struct {
	width, pitch int
	col          *device.Buffer[int64]
	val          *device.Buffer[T]
	tail         *csrBlock[T]
}

// block is one device-resident sparse block. layout selects which of csr
// and hell holds the data; both are nil for an empty block.
type block[T Real] struct {
	layout Layout
	n, nnz int
	csr    *csrBlock[T]
	hell   *hellBlock[T]
}

func uploadCSR[T Real](dev *device.Device, h *hostCSR[T]) (*csrBlock[T], error) {
	c := &csrBlock[T]{}
	var err error
	if c.row, err = device.AllocFrom(dev, h.row); err == nil {
		if c.col, err = device.AllocFrom(dev, h.col); err == nil {
			c.val, err = device.AllocFrom(dev, h.val)
		}
	}
	if err != nil {
		c.free()
		return nil, err
	}
	return c, nil
}

func (c *csrBlock[T]) free() {
	if c == nil {
		return
	}
	c.row.Free()
	c.col.Free()
	c.val.Free()
}

func uploadHELL[T Real](dev *device.Device, e *hostELL[T]) (*hellBlock[T], error) {
	hb := &hellBlock[T]{width: e.width, pitch: e.pitch}
	var err error
	if hb.col, err = device.AllocFrom(dev, e.col); err == nil {
		if hb.val, err = device.AllocFrom(dev, e.val); err == nil && e.tail != nil {
			hb.tail, err = uploadCSR(dev, e.tail)
		}
	}
	if err != nil {
		hb.free()
		return nil, err
	}
	return hb, nil
}

func (hb *hellBlock[T]) free() {
	if hb == nil {
		return
	}
	hb.col.Free()
	hb.val.Free()
	hb.tail.free()
}

func uploadBlock[T Real](dev *device.Device, layout Layout, h *hostCSR[T], widthLimit int) (*block[T], error) {
	b := &block[T]{layout: layout, n: h.rows(), nnz: h.nnz()}
	if b.nnz == 0 {
		return b, nil
	}
	var err error
	switch layout {
	case LayoutCSR:
		b.csr, err = uploadCSR(dev, h)
	case LayoutHybridELL:
		b.hell, err = uploadHELL(dev, toHybridELL(h, widthLimit, dev.PitchAlignment()))
	default:
		err = errors.Errorf("no storage for layout %s", layout)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "uploading %d rows with %d nonzeros", b.n, b.nnz)
	}
	return b, nil
}

func (b *block[T]) free() {
	if b == nil {
		return
	}
	b.csr.free()
	b.hell.free()
}

// kernelNames lists the kernels launch may use for b
func (b *block[T]) kernelNames() []kernels.Name {
	switch {
	case b.nnz == 0:
		return []kernels.Name{kernels.Fill}
	case b.layout == LayoutCSR:
		return []kernels.Name{kernels.CSRSet, kernels.CSRAdd}
	case b.hell.tail == nil:
		return []kernels.Name{kernels.ELLSet, kernels.ELLAdd}
	}
	return []kernels.Name{kernels.HELLSet, kernels.HELLAdd}
}

func pick(add bool, set, accumulate kernels.Name) kernels.Name {
	if add {
		return accumulate
	}
	return set
}

// launch enqueues y = alpha*B*x, or y += alpha*B*x when add is set. An empty
// block zeroes y, or does nothing when add is set.
func (b *block[T]) launch(q *device.Queue, cache *kernels.Cache, x, y *device.Buffer[T], alpha T, add bool, wait ...*device.Event) *device.Event {
	if b.n == 0 || (b.nnz == 0 && add) {
		return q.Marker(wait...)
	}
	var (
		name kernels.Name
		args []interface{}
		n    = int64(b.n)
		a    = realArg(alpha)
	)
	switch {
	case b.nnz == 0:
		name = kernels.Fill
		args = []interface{}{n, y}
	case b.layout == LayoutCSR:
		name = pick(add, kernels.CSRSet, kernels.CSRAdd)
		args = []interface{}{n, b.csr.row, b.csr.col, b.csr.val, x, y, a}
	case b.hell.tail == nil:
		name = pick(add, kernels.ELLSet, kernels.ELLAdd)
		args = []interface{}{n, int64(b.hell.pitch), int64(b.hell.width),
			b.hell.col, b.hell.val, x, y, a}
	default:
		name = pick(add, kernels.HELLSet, kernels.HELLAdd)
		t := b.hell.tail
		args = []interface{}{n, int64(b.hell.pitch), int64(b.hell.width),
			b.hell.col, b.hell.val, t.row, t.col, t.val, x, y, a}
	}
	k, err := cache.Get(q.Device(), name, kernels.DataTypeOf[T]())
	if err != nil {
		return device.Completed(err)
	}
	return q.Launch(k, args, wait...)
}

func realArg[T Real](v T) interface{} {
	if kernels.DataTypeOf[T]() == kernels.Float32 {
		return float32(v)
	}
	return float64(v)
}

// localStore holds the rows of one device: a local block over the device's
// own columns and, when it has ghosts, a remote block over them
type localStore[T Real] struct {
	dev    *device.Device
	layout Layout
	loc    *block[T]
	rem    *block[T]
}

func newLocalStore[T Real](dev *device.Device, layout Layout, widthLimit int, local, remote *hostCSR[T]) (s *localStore[T], err error) {
	s = &localStore[T]{dev: dev, layout: layout}
	if s.loc, err = uploadBlock(dev, layout, local, widthLimit); err != nil {
		return nil, errors.Wrap(err, "local block")
	}
	if remote != nil {
		if s.rem, err = uploadBlock(dev, layout, remote, widthLimit); err != nil {
			s.loc.free()
			return nil, errors.Wrap(err, "remote block")
		}
	}
	return s, nil
}

func (s *localStore[T]) kernelNames() []kernels.Name {
	names := s.loc.kernelNames()
	if s.rem != nil {
		names = append(names, s.rem.kernelNames()...)
	}
	return names
}

// mulLocal computes y = alpha*A_loc*x, adding to y when appendY is set
func (s *localStore[T]) mulLocal(q *device.Queue, cache *kernels.Cache, x, y *device.Buffer[T], alpha T, appendY bool) *device.Event {
	return s.loc.launch(q, cache, x, y, alpha, appendY)
}

// mulRemote adds alpha*A_rem*ghosts to y once every event in wait completed
func (s *localStore[T]) mulRemote(q *device.Queue, cache *kernels.Cache, ghosts, y *device.Buffer[T], alpha T, wait ...*device.Event) *device.Event {
	if s.rem == nil {
		return q.Marker(wait...)
	}
	return s.rem.launch(q, cache, ghosts, y, alpha, true, wait...)
}

func (s *localStore[T]) nonZeros() int {
	nnz := s.loc.nnz
	if s.rem != nil {
		nnz += s.rem.nnz
	}
	return nnz
}

func (s *localStore[T]) free() {
	if s == nil {
		return
	}
	s.loc.free()
	s.rem.free()
}
