package spmat

import (
	"testing"

	"github.com/notargets/gospmv/matgen"
	"github.com/notargets/gospmv/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 8x8, two parts of four: rows 0 and 2 reach into part 1, rows 4 and 6 into
// part 0
func smallCSR() *matgen.CSR {
	cols := [][]int{{0, 5}, {1}, {2, 5, 7}, {3}, {0, 4}, {5}, {2, 6}, {7}}
	c := &matgen.CSR{Rows: 8, Cols: 8, Row: []int{0}}
	for i, cs := range cols {
		for _, col := range cs {
			c.Col = append(c.Col, col)
			c.Val = append(c.Val, float64(10*i+col))
		}
		c.Row = append(c.Row, len(c.Col))
	}
	return c
}

func TestPlanExchange(t *testing.T) {
	c := smallCSR()
	p := partitions.Equal(8, 2)
	plan := planExchange(p, p, c.Row, c.Col)

	assert.Equal(t, []int{5, 7}, plan.ghosts[0])
	assert.Equal(t, []int{0, 2}, plan.ghosts[1])
	assert.Equal(t, []int{0, 2, 5, 7}, plan.sendList)
	assert.Equal(t, []int{0, 2, 4}, plan.cidx)
	assert.Equal(t, []int{2, 3}, plan.recvPos[0])
	assert.Equal(t, []int{0, 1}, plan.recvPos[1])
	assert.Equal(t, 2, plan.sendCount(0))
	assert.Equal(t, 2, plan.sendCount(1))
}

func TestPlanExchange_SingleDevice(t *testing.T) {
	c := smallCSR()
	p := partitions.Equal(8, 1)
	plan := planExchange(p, p, c.Row, c.Col)
	assert.Nil(t, plan.ghosts[0])
	assert.Empty(t, plan.sendList)
	assert.Nil(t, plan.cidx)
	assert.Equal(t, 0, plan.sendCount(0))
}

func TestPlanExchange_NoGhosts(t *testing.T) {
	c := matgen.Banded(12, 0)
	p := partitions.Equal(12, 3)
	plan := planExchange(p, p, c.Row, c.Col)
	assert.Empty(t, plan.sendList)
	for d := 0; d < 3; d++ {
		assert.Empty(t, plan.ghosts[d])
		assert.Equal(t, 0, plan.sendCount(d))
	}
}

func TestPlanExchange_UnevenSupply(t *testing.T) {
	// every row needs column 0, owned by part 0
	c := &matgen.CSR{Rows: 6, Cols: 6, Row: []int{0, 1, 2, 3, 4, 5, 6}, Col: []int{0, 0, 0, 0, 0, 0}}
	c.Val = make([]float64, 6)
	p := partitions.Equal(6, 3)
	plan := planExchange(p, p, c.Row, c.Col)
	assert.Equal(t, []int{0}, plan.sendList)
	assert.Equal(t, []int{0, 1, 1, 1}, plan.cidx)
	assert.Empty(t, plan.ghosts[0])
	assert.Equal(t, []int{0}, plan.recvPos[1])
	assert.Equal(t, []int{0}, plan.recvPos[2])
}

func TestPlanExchange_PositionsMatchSendList(t *testing.T) {
	c := matgen.Random(97, 61, 0.08, 3)
	for _, nd := range []int{2, 3, 5} {
		rp, cp := partitions.Equal(97, nd), partitions.Equal(61, nd)
		plan := planExchange(rp, cp, c.Row, c.Col)
		for d := 0; d < nd; d++ {
			require.Len(t, plan.recvPos[d], len(plan.ghosts[d]))
			for i, g := range plan.ghosts[d] {
				assert.Equal(t, g, plan.sendList[plan.recvPos[d][i]])
			}
			// the supplied slice is exactly the part of the send list d owns
			xbeg, xend := cp.Range(d)
			if plan.cidx == nil {
				continue
			}
			for _, col := range plan.sendList[plan.cidx[d]:plan.cidx[d+1]] {
				assert.True(t, col >= xbeg && col < xend)
			}
		}
	}
}
