package spmat

import "fmt"

// Real is the element type of matrices and vectors
type Real interface {
	~float32 | ~float64
}

// hostCSR is a sparse block staged on the host before it is uploaded.
// Indices are int64 to match int_t on the device.
type hostCSR[T Real] struct {
	row []int64
	col []int64
	val []T
}

func newHostCSR[T Real](rows, nnzHint int) *hostCSR[T] {
	h := &hostCSR[T]{
		row: make([]int64, 1, rows+1),
		col: make([]int64, 0, nnzHint),
		val: make([]T, 0, nnzHint),
	}
	return h
}

func (h *hostCSR[T]) rows() int { return len(h.row) - 1 }

func (h *hostCSR[T]) nnz() int { return int(h.row[len(h.row)-1]) }

func (h *hostCSR[T]) push(c int64, v T) {
	h.col = append(h.col, c)
	h.val = append(h.val, v)
}

func (h *hostCSR[T]) endRow() {
	h.row = append(h.row, int64(len(h.col)))
}

// checkCSR panics when the arrays do not describe a valid n x m matrix in
// 0-based compressed row form. A malformed matrix has no meaningful partial
// interpretation, so this is a precondition failure rather than an error.
func checkCSR[T Real](n, m int, row, col []int, val []T) {
	if n < 0 || m < 0 {
		panic(fmt.Sprintf("spmat: negative dimensions %dx%d", n, m))
	}
	if len(row) != n+1 {
		panic(fmt.Sprintf("spmat: row offsets have length %d, want %d", len(row), n+1))
	}
	if row[0] != 0 {
		panic(fmt.Sprintf("spmat: row offsets start at %d, want 0", row[0]))
	}
	for i := 0; i < n; i++ {
		if row[i+1] < row[i] {
			panic(fmt.Sprintf("spmat: row offsets decrease at row %d (%d > %d)", i, row[i], row[i+1]))
		}
	}
	nnz := row[n]
	if len(col) < nnz || len(val) < nnz {
		panic(fmt.Sprintf("spmat: %d nonzeros but %d columns and %d values", nnz, len(col), len(val)))
	}
	for j := 0; j < nnz; j++ {
		if col[j] < 0 || col[j] >= m {
			panic(fmt.Sprintf("spmat: column index %d at position %d outside [0,%d)", col[j], j, m))
		}
	}
}
