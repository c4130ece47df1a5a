package spmat

import (
	"slices"
	"testing"

	"github.com/notargets/gospmv/matgen"
	"github.com/notargets/gospmv/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toHost(c *matgen.CSR) *hostCSR[float64] {
	h := newHostCSR[float64](c.Rows, c.NonZeros())
	for i := 0; i < c.Rows; i++ {
		for j := c.Row[i]; j < c.Row[i+1]; j++ {
			h.push(int64(c.Col[j]), c.Val[j])
		}
		h.endRow()
	}
	return h
}

func (h *hostCSR[T]) mulHost(x []T, alpha T) []T {
	y := make([]T, h.rows())
	for i := range y {
		var sum T
		for j := h.row[i]; j < h.row[i+1]; j++ {
			sum += h.val[j] * x[h.col[j]]
		}
		y[i] = alpha * sum
	}
	return y
}

func (e *hostELL[T]) mulHost(x []T, alpha T) []T {
	y := make([]T, e.n)
	for i := 0; i < e.n; i++ {
		var sum T
		for j := 0; j < e.width; j++ {
			if c := e.col[j*e.pitch+i]; c >= 0 {
				sum += e.val[j*e.pitch+i] * x[c]
			}
		}
		if e.tail != nil {
			for j := e.tail.row[i]; j < e.tail.row[i+1]; j++ {
				sum += e.tail.val[j] * x[e.tail.col[j]]
			}
		}
		y[i] = alpha * sum
	}
	return y
}

func TestSplitRows_Renumbering(t *testing.T) {
	c := matgen.Random(83, 71, 0.1, 11)
	for _, nd := range []int{1, 2, 3, 4} {
		rp, cp := partitions.Equal(c.Rows, nd), partitions.Equal(c.Cols, nd)
		plan := planExchange(rp, cp, c.Row, c.Col)
		for d := 0; d < nd; d++ {
			beg, end := rp.Range(d)
			xbeg, xend := cp.Range(d)
			local, remote := splitRows(beg, end, xbeg, xend, c.Row, c.Col, c.Val, plan.ghosts[d])
			require.Equal(t, end-beg, local.rows())
			if len(plan.ghosts[d]) == 0 {
				assert.Nil(t, remote)
			}

			for i := beg; i < end; i++ {
				var got []int
				li := i - beg
				for j := local.row[li]; j < local.row[li+1]; j++ {
					lc := int(local.col[j])
					require.True(t, lc >= 0 && lc < xend-xbeg)
					got = append(got, lc+xbeg)
				}
				if remote != nil {
					for j := remote.row[li]; j < remote.row[li+1]; j++ {
						got = append(got, plan.ghosts[d][remote.col[j]])
					}
				}
				want := append([]int(nil), c.Col[c.Row[i]:c.Row[i+1]]...)
				slices.Sort(want)
				slices.Sort(got)
				assert.Equal(t, want, got, "row %d with %d devices", i, nd)
			}
		}
	}
}

func TestSplitRows_Values(t *testing.T) {
	c := smallCSR()
	p := partitions.Equal(8, 2)
	plan := planExchange(p, p, c.Row, c.Col)

	local, remote := splitRows(0, 4, 0, 4, c.Row, c.Col, c.Val, plan.ghosts[0])
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, local.row)
	assert.Equal(t, []int64{0, 1, 2, 3}, local.col)
	assert.Equal(t, []float64{0, 11, 22, 33}, local.val)
	// ghosts of part 0 are {5, 7}
	assert.Equal(t, []int64{0, 1, 1, 3, 3}, remote.row)
	assert.Equal(t, []int64{0, 0, 1}, remote.col)
	assert.Equal(t, []float64{5, 25, 27}, remote.val)

	local, remote = splitRows(4, 8, 4, 8, c.Row, c.Col, c.Val, plan.ghosts[1])
	assert.Equal(t, []int64{0, 1, 2, 3}, local.col)
	assert.Equal(t, []float64{44, 55, 66, 77}, local.val)
	assert.Equal(t, []int64{0, 1, 1, 2, 2}, remote.row)
	assert.Equal(t, []int64{0, 1}, remote.col)
	assert.Equal(t, []float64{40, 62}, remote.val)
}

func TestSplitRows_Prefix(t *testing.T) {
	c := matgen.Banded(20, 2)
	local, remote := splitRows(0, 20, 0, 20, c.Row, c.Col, c.Val, nil)
	assert.Nil(t, remote)
	assert.Equal(t, c.NonZeros(), local.nnz())
	for i, col := range c.Col {
		assert.Equal(t, int64(col), local.col[i])
	}
}

func TestEllWidth(t *testing.T) {
	testCases := []struct {
		name  string
		row   []int64
		limit int
		want  int
	}{
		{"Empty", []int64{0}, 8, 0},
		{"NoEntries", []int64{0, 0, 0}, 8, 0},
		{"OneLongRow", []int64{0, 1, 2, 3, 13}, 8, 1},
		{"Capped", []int64{0, 10, 20, 30, 40}, 4, 4},
		{"AtLeastOne", []int64{0, 0, 0, 0, 3}, 8, 1},
		{"Uniform", []int64{0, 3, 6, 9}, 8, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ellWidth(tc.row, tc.limit))
		})
	}
}

func TestToHybridELL(t *testing.T) {
	c := &matgen.CSR{Rows: 4, Cols: 6,
		Row: []int{0, 1, 3, 8, 10},
		Col: []int{2, 0, 5, 0, 1, 2, 3, 4, 1, 3},
		Val: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}
	h := toHost(c)
	x := []float64{1, -2, 3, -4, 5, -6}

	e := toHybridELL(h, 64, 4)
	assert.Equal(t, 2, e.width)
	assert.Equal(t, 4, e.pitch)
	require.NotNil(t, e.tail)
	assert.Equal(t, 3, e.tail.nnz())
	assert.Equal(t, int64(-1), e.col[1*e.pitch+0], "row 0 slot 1 is padding")
	assert.Equal(t, h.mulHost(x, 0.5), e.mulHost(x, 0.5))

	t.Run("NoOverflow", func(t *testing.T) {
		full := toHybridELL(toHost(matgen.Banded(9, 1)), 64, 8)
		assert.Nil(t, full.tail)
		assert.Equal(t, 3, full.width)
		assert.Equal(t, 16, full.pitch)
		b := toHost(matgen.Banded(9, 1))
		xb := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
		assert.Equal(t, b.mulHost(xb, 1), full.mulHost(xb, 1))
	})

	t.Run("WidthLimit", func(t *testing.T) {
		b := toHost(matgen.Banded(16, 3))
		e := toHybridELL(b, 2, 32)
		assert.Equal(t, 2, e.width)
		require.NotNil(t, e.tail)
		assert.Equal(t, b.nnz(), e.tail.nnz()+countSlots(e))
		xb := make([]float64, 16)
		for i := range xb {
			xb[i] = float64(i) - 7.5
		}
		assert.InDeltaSlice(t, b.mulHost(xb, 2), e.mulHost(xb, 2), 1e-12)
	})
}

func countSlots[T Real](e *hostELL[T]) int {
	n := 0
	for _, c := range e.col {
		if c >= 0 {
			n++
		}
	}
	return n
}

func TestCheckCSR(t *testing.T) {
	val := []float64{1, 2, 3}
	assert.NotPanics(t, func() { checkCSR(2, 3, []int{0, 1, 3}, []int{0, 1, 2}, val) })
	assert.NotPanics(t, func() { checkCSR(0, 0, []int{0}, nil, []float64(nil)) })

	assert.Panics(t, func() { checkCSR(2, 3, []int{0, 1}, []int{0, 1, 2}, val) }, "short offsets")
	assert.Panics(t, func() { checkCSR(2, 3, []int{1, 1, 3}, []int{0, 1, 2}, val) }, "nonzero start")
	assert.Panics(t, func() { checkCSR(2, 3, []int{0, 2, 1}, []int{0, 1, 2}, val) }, "decreasing")
	assert.Panics(t, func() { checkCSR(2, 3, []int{0, 1, 3}, []int{0, 3, 2}, val) }, "column too large")
	assert.Panics(t, func() { checkCSR(2, 3, []int{0, 1, 3}, []int{0, -1, 2}, val) }, "negative column")
	assert.Panics(t, func() { checkCSR(2, 3, []int{0, 1, 4}, []int{0, 1, 2}, val) }, "short columns")
}
