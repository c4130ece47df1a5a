package spmat

import "slices"

// DefaultEllWidthLimit caps the packed width of hybrid ELL blocks
const DefaultEllWidthLimit = 64

// hostELL is a hybrid ELL block staged on the host. Slot j of row i lives at
// j*pitch + i; unused slots have column -1. Entries that do not fit in width
// slots go to tail, which is nil when every row fits.
type hostELL[T Real] struct {
	n, width, pitch int
	col             []int64
	val             []T
	tail            *hostCSR[T]
}

// ellWidth returns the smallest width that holds at least three quarters of
// the rows completely, capped by limit. A block with entries gets width >= 1.
func ellWidth(row []int64, limit int) int {
	n := len(row) - 1
	if n <= 0 || row[n] == 0 {
		return 0
	}
	lens := make([]int, n)
	for i := range lens {
		lens[i] = int(row[i+1] - row[i])
	}
	slices.Sort(lens)
	w := lens[(3*n+3)/4-1]
	return max(1, min(w, limit))
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// toHybridELL repacks a CSR block into column-major ELL plus a CSR tail
func toHybridELL[T Real](h *hostCSR[T], limit, align int) *hostELL[T] {
	n := h.rows()
	width := ellWidth(h.row, max(limit, 1))
	e := &hostELL[T]{
		n:     n,
		width: width,
		pitch: alignUp(n, align),
	}
	e.col = make([]int64, e.width*e.pitch)
	e.val = make([]T, e.width*e.pitch)
	for k := range e.col {
		e.col[k] = -1
	}

	overflow := 0
	for i := 0; i < n; i++ {
		if l := int(h.row[i+1]-h.row[i]) - width; l > 0 {
			overflow += l
		}
	}
	if overflow > 0 {
		e.tail = newHostCSR[T](n, overflow)
	}

	for i := 0; i < n; i++ {
		slot := 0
		for j := h.row[i]; j < h.row[i+1]; j++ {
			if slot < width {
				e.col[slot*e.pitch+i] = h.col[j]
				e.val[slot*e.pitch+i] = h.val[j]
				slot++
				continue
			}
			e.tail.push(h.col[j], h.val[j])
		}
		if e.tail != nil {
			e.tail.endRow()
		}
	}
	return e
}
