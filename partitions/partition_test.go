package partitions

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariants verifies contiguity, coverage and disjointness
func checkInvariants(t *testing.T, p *Partition, n, d int) {
	t.Helper()
	require.NoError(t, p.Validate())
	require.Equal(t, d, p.NumParts())
	assert.Equal(t, 0, p.Offsets[0])
	assert.Equal(t, n, p.Size())

	covered := make([]int, n)
	for part := 0; part < d; part++ {
		beg, end := p.Range(part)
		for i := beg; i < end; i++ {
			covered[i]++
			assert.Equal(t, part, p.Owner(i))
		}
	}
	for i, c := range covered {
		assert.Equal(t, 1, c, "index %d covered %d times", i, c)
	}
}

func TestPartition_Equal(t *testing.T) {
	testCases := []struct {
		n, d int
	}{
		{0, 1}, {0, 4}, {1, 1}, {1, 3}, {10, 3}, {1024, 4}, {7, 7}, {5, 8},
	}
	for _, tc := range testCases {
		p := Equal(tc.n, tc.d)
		checkInvariants(t, p, tc.n, tc.d)
		for part := 0; part < tc.d; part++ {
			assert.LessOrEqual(t, p.Len(part), tc.n/tc.d+1)
		}
	}
}

func TestPartition_Weighted(t *testing.T) {
	p := New(100, []float64{1, 3})
	checkInvariants(t, p, 100, 2)
	assert.Equal(t, []int{0, 25, 100}, p.Offsets)

	p = New(1000, []float64{2, 1, 1})
	checkInvariants(t, p, 1000, 3)
	assert.Equal(t, 500, p.Len(0))
}

func TestPartition_ZeroWeight(t *testing.T) {
	p := New(90, []float64{1, 0, 2})
	checkInvariants(t, p, 90, 3)
	assert.Equal(t, 0, p.Len(1))
	assert.Equal(t, []int{0, 30, 30, 90}, p.Offsets)

	t.Run("NegativeAndNaN", func(t *testing.T) {
		p := New(10, []float64{-1, math.NaN(), 1})
		checkInvariants(t, p, 10, 3)
		assert.Equal(t, 10, p.Len(2))
	})

	t.Run("AllZeroFallsBackToEqual", func(t *testing.T) {
		p := New(9, []float64{0, 0, 0})
		checkInvariants(t, p, 9, 3)
		assert.Equal(t, []int{0, 3, 6, 9}, p.Offsets)
	})
}

func TestPartition_Deterministic(t *testing.T) {
	w := []float64{0.3, 1.7, 2.2, 0.9}
	assert.True(t, New(12345, w).Equals(New(12345, w)))
	assert.False(t, New(12345, w).Equals(Equal(12345, 4)))
}

func TestPartition_Owner(t *testing.T) {
	p := &Partition{Offsets: []int{0, 3, 3, 5}}
	assert.Equal(t, 0, p.Owner(0))
	assert.Equal(t, 0, p.Owner(2))
	assert.Equal(t, 2, p.Owner(3))
	assert.Equal(t, 2, p.Owner(4))
	assert.Equal(t, -1, p.Owner(5))
	assert.Equal(t, -1, p.Owner(-1))
}

func TestPartition_Validate(t *testing.T) {
	assert.Error(t, (&Partition{Offsets: []int{0}}).Validate())
	assert.Error(t, (&Partition{Offsets: []int{1, 2}}).Validate())
	assert.Error(t, (&Partition{Offsets: []int{0, 4, 2}}).Validate())
	assert.NoError(t, (&Partition{Offsets: []int{0, 0, 2}}).Validate())
}

func TestPartition_Panics(t *testing.T) {
	assert.Panics(t, func() { New(10, nil) })
	assert.Panics(t, func() { New(-1, []float64{1}) })
}
