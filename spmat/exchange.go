package spmat

import (
	"slices"
	"sort"

	"github.com/notargets/gospmv/device"
	"github.com/notargets/gospmv/partitions"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// exchangePlan is the static ghost topology of a matrix
type exchangePlan struct {
	// ghosts[d] holds, sorted and unique, the columns referenced by rows of
	// device d that lie outside its own column range
	ghosts [][]int
	// sendList is the sorted union of all ghost sets
	sendList []int
	// device d supplies sendList[cidx[d]:cidx[d+1]]
	cidx []int
	// recvPos[d][i] is the position of ghosts[d][i] within sendList
	recvPos [][]int
}

func (p *exchangePlan) sendCount(d int) int {
	if p.cidx == nil {
		return 0
	}
	return p.cidx[d+1] - p.cidx[d]
}

// planExchange computes which columns every device needs from the others.
// With a single device there is nothing to exchange.
func planExchange(rowPart, colPart *partitions.Partition, row, col []int) *exchangePlan {
	nd := rowPart.NumParts()
	plan := &exchangePlan{
		ghosts:  make([][]int, nd),
		recvPos: make([][]int, nd),
	}
	if nd <= 1 {
		return plan
	}

	var g errgroup.Group
	for d := 0; d < nd; d++ {
		g.Go(func() error {
			beg, end := rowPart.Range(d)
			xbeg, xend := colPart.Range(d)
			plan.ghosts[d] = collectGhosts(beg, end, xbeg, xend, row, col)
			return nil
		})
	}
	_ = g.Wait()

	var all []int
	for _, gs := range plan.ghosts {
		all = append(all, gs...)
	}
	plan.sendList = sortUnique(all)
	if len(plan.sendList) == 0 {
		return plan
	}

	plan.cidx = make([]int, nd+1)
	for d := 0; d <= nd; d++ {
		plan.cidx[d] = sort.SearchInts(plan.sendList, colPart.Offsets[d])
	}

	for d, gs := range plan.ghosts {
		if len(gs) == 0 {
			continue
		}
		pos := make([]int, len(gs))
		// both lists are sorted, so a single merge pass finds every position
		for i, j := 0, 0; i < len(gs); j++ {
			if plan.sendList[j] == gs[i] {
				pos[i] = j
				i++
			}
		}
		plan.recvPos[d] = pos
	}
	return plan
}

// collectGhosts returns the sorted unique columns outside [xbeg, xend)
// referenced by rows [beg, end)
func collectGhosts(beg, end, xbeg, xend int, row, col []int) []int {
	var ghosts []int
	for i := beg; i < end; i++ {
		for j := row[i]; j < row[i+1]; j++ {
			if c := col[j]; c < xbeg || c >= xend {
				ghosts = append(ghosts, c)
			}
		}
	}
	return sortUnique(ghosts)
}

func sortUnique(s []int) []int {
	slices.Sort(s)
	return slices.Compact(s)
}

// exchange holds the per-device buffers used to move ghost values. All of
// them are sized once from the static plan and reused by every multiply.
type exchange[T Real] struct {
	// send side: local indices of the values this device supplies
	nsend      int
	colsToSend *device.Buffer[int64]
	valsToSend *device.Buffer[T]

	// receive side: positions in the host staging area, host reorder buffer
	// and the device copy the remote kernel reads
	recvPos    []int
	valsToRecv []T
	rx         *device.Buffer[T]

	gather *device.Event // read of valsToSend into host staging
	upload *device.Event // write of valsToRecv into rx
	remote *device.Event // remote kernel reading rx
}

func (e *exchange[T]) free() {
	e.colsToSend.Free()
	e.valsToSend.Free()
	e.rx.Free()
}

// setupExchange allocates the exchange buffers described by plan
func (mtx *Matrix[T]) setupExchange(plan *exchangePlan) error {
	nd := len(mtx.queues)
	mtx.exc = make([]exchange[T], nd)
	if len(plan.sendList) == 0 {
		return nil
	}
	mtx.cidx = plan.cidx
	mtx.rx = make([]T, len(plan.sendList))

	for d := 0; d < nd; d++ {
		dev := mtx.queues[d].Device()
		e := &mtx.exc[d]

		if nrecv := len(plan.ghosts[d]); nrecv > 0 {
			e.recvPos = plan.recvPos[d]
			e.valsToRecv = make([]T, nrecv)
			rx, err := device.Alloc[T](dev, nrecv)
			if err != nil {
				return errors.Wrapf(err, "receive buffer for device %d", d)
			}
			e.rx = rx
		}

		if nsend := plan.sendCount(d); nsend > 0 {
			xbeg := mtx.colPart.Offsets[d]
			local := make([]int64, nsend)
			for i, c := range plan.sendList[plan.cidx[d]:plan.cidx[d+1]] {
				local[i] = int64(c - xbeg)
			}
			cols, err := device.AllocFrom(dev, local)
			if err != nil {
				return errors.Wrapf(err, "send index buffer for device %d", d)
			}
			e.colsToSend = cols
			vals, err := device.Alloc[T](dev, nsend)
			if err != nil {
				return errors.Wrapf(err, "send value buffer for device %d", d)
			}
			e.valsToSend = vals
			e.nsend = nsend
		}
		klog.V(1).Infof("spmat: device %d receives %d ghost values, sends %d",
			d, len(plan.ghosts[d]), plan.sendCount(d))
	}

	mtx.squeues = make([]*device.Queue, nd)
	for d, q := range mtx.queues {
		mtx.squeues[d] = device.NewQueue(q.Device())
	}
	return nil
}
