package partitions

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Partition splits the index range [0, N) into D contiguous parts, one per
// device. Part d owns [Offsets[d], Offsets[d+1]).
//
// The same type is used for row partitions (output vectors) and column
// partitions (input vectors).
type Partition struct {
	Offsets []int // Length D+1, Offsets[0] = 0, Offsets[D] = N, non-decreasing
}

// New splits [0, n) into len(weights) parts with sizes proportional to the
// weights. Non-positive and NaN weights count as zero and yield empty parts;
// when no weight is positive the split is equal.
func New(n int, weights []float64) *Partition {
	if len(weights) == 0 {
		panic("partitions: at least one part is required")
	}
	if n < 0 {
		panic(fmt.Sprintf("partitions: negative size %d", n))
	}

	w := make([]float64, len(weights))
	for i, v := range weights {
		if v > 0 && !math.IsInf(v, 1) {
			w[i] = v
		}
	}
	total := floats.Sum(w)
	if total == 0 {
		for i := range w {
			w[i] = 1
		}
		total = float64(len(w))
	}

	cum := make([]float64, len(w))
	floats.CumSum(cum, w)

	d := len(w)
	offsets := make([]int, d+1)
	for i := 1; i < d; i++ {
		o := int(math.Floor(float64(n) * cum[i-1] / total))
		o = min(max(o, offsets[i-1]), n)
		offsets[i] = o
	}
	offsets[d] = n
	return &Partition{Offsets: offsets}
}

// Equal splits [0, n) into parts ranges of (nearly) equal size
func Equal(n, parts int) *Partition {
	w := make([]float64, parts)
	for i := range w {
		w[i] = 1
	}
	return New(n, w)
}

// NumParts returns D
func (p *Partition) NumParts() int { return len(p.Offsets) - 1 }

// Size returns N
func (p *Partition) Size() int { return p.Offsets[len(p.Offsets)-1] }

// Range returns the half-open range owned by part d
func (p *Partition) Range(d int) (beg, end int) {
	return p.Offsets[d], p.Offsets[d+1]
}

// Len returns the number of indices owned by part d
func (p *Partition) Len(d int) int { return p.Offsets[d+1] - p.Offsets[d] }

// Owner returns the part owning idx, or -1 when idx is outside [0, N).
// Empty parts never own anything.
func (p *Partition) Owner(idx int) int {
	if idx < 0 || idx >= p.Size() {
		return -1
	}
	// first boundary strictly greater than idx closes the owning range
	return sort.SearchInts(p.Offsets, idx+1) - 1
}

// Equals reports whether two partitions have identical boundaries
func (p *Partition) Equals(o *Partition) bool {
	if p == o {
		return true
	}
	if p == nil || o == nil || len(p.Offsets) != len(o.Offsets) {
		return false
	}
	for i := range p.Offsets {
		if p.Offsets[i] != o.Offsets[i] {
			return false
		}
	}
	return true
}

// Validate checks the partition invariants
func (p *Partition) Validate() error {
	if len(p.Offsets) < 2 {
		return fmt.Errorf("partition needs at least 2 offsets, got %d", len(p.Offsets))
	}
	if p.Offsets[0] != 0 {
		return fmt.Errorf("partition starts at %d, not 0", p.Offsets[0])
	}
	for i := 1; i < len(p.Offsets); i++ {
		if p.Offsets[i] < p.Offsets[i-1] {
			return fmt.Errorf("offset[%d]=%d is below offset[%d]=%d",
				i, p.Offsets[i], i-1, p.Offsets[i-1])
		}
	}
	return nil
}

func (p *Partition) String() string {
	return fmt.Sprintf("Partition%v", p.Offsets)
}
