package matgen

import (
	"fmt"
	"math/rand"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// CSR is a host sparse matrix in 0-based compressed row form
type CSR struct {
	Rows, Cols int
	Row        []int // Length Rows+1
	Col        []int
	Val        []float64
}

func (c *CSR) NonZeros() int { return c.Row[c.Rows] }

func (c *CSR) String() string {
	return fmt.Sprintf("CSR %dx%d, %d nonzeros", c.Rows, c.Cols, c.NonZeros())
}

// ToSparse returns the matrix as a *sparse.CSR sharing c's arrays
func (c *CSR) ToSparse() *sparse.CSR {
	return sparse.NewCSR(c.Rows, c.Cols, c.Row, c.Col, c.Val)
}

// FromSparse copies a *sparse.CSR
func FromSparse(a *sparse.CSR) *CSR {
	r, cols := a.Dims()
	raw := a.RawMatrix()
	c := &CSR{
		Rows: r,
		Cols: cols,
		Row:  append([]int(nil), raw.Indptr[:r+1]...),
	}
	nnz := c.Row[r]
	c.Col = append([]int(nil), raw.Ind[:nnz]...)
	c.Val = append([]float64(nil), raw.Data[:nnz]...)
	return c
}

// Dense expands the matrix. Both dimensions must be positive.
func (c *CSR) Dense() *mat.Dense {
	d := mat.NewDense(c.Rows, c.Cols, nil)
	for i := 0; i < c.Rows; i++ {
		for j := c.Row[i]; j < c.Row[i+1]; j++ {
			d.Set(i, c.Col[j], d.At(i, c.Col[j])+c.Val[j])
		}
	}
	return d
}

// MulVec returns alpha*A*x
func (c *CSR) MulVec(x []float64, alpha float64) []float64 {
	y := make([]float64, c.Rows)
	if c.Rows == 0 || c.Cols == 0 {
		return y
	}
	c.ToSparse().MulVecTo(y, false, x)
	for i := range y {
		y[i] *= alpha
	}
	return y
}

type builder struct {
	c *CSR
}

func newBuilder(rows, cols, nnzHint int) *builder {
	return &builder{c: &CSR{
		Rows: rows,
		Cols: cols,
		Row:  make([]int, 1, rows+1),
		Col:  make([]int, 0, nnzHint),
		Val:  make([]float64, 0, nnzHint),
	}}
}

func (b *builder) add(col int, v float64) {
	b.c.Col = append(b.c.Col, col)
	b.c.Val = append(b.c.Val, v)
}

func (b *builder) endRow() { b.c.Row = append(b.c.Row, len(b.c.Col)) }

// Banded returns an n x n matrix with entries on the diagonals within
// halfWidth of the main diagonal, diagonally dominant
func Banded(n, halfWidth int) *CSR {
	b := newBuilder(n, n, n*(2*halfWidth+1))
	for i := 0; i < n; i++ {
		for j := max(0, i-halfWidth); j <= min(n-1, i+halfWidth); j++ {
			if j == i {
				b.add(j, float64(2*halfWidth+1))
				continue
			}
			b.add(j, -1/float64(1+abs(i-j)))
		}
		b.endRow()
	}
	return b.c
}

// Poisson3D returns the 7-point finite difference Laplacian on an
// nx x ny x nz grid with Dirichlet boundaries
func Poisson3D(nx, ny, nz int) *CSR {
	n := nx * ny * nz
	b := newBuilder(n, n, 7*n)
	idx := func(i, j, k int) int { return (k*ny+j)*nx + i }
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				if k > 0 {
					b.add(idx(i, j, k-1), -1)
				}
				if j > 0 {
					b.add(idx(i, j-1, k), -1)
				}
				if i > 0 {
					b.add(idx(i-1, j, k), -1)
				}
				b.add(idx(i, j, k), 6)
				if i+1 < nx {
					b.add(idx(i+1, j, k), -1)
				}
				if j+1 < ny {
					b.add(idx(i, j+1, k), -1)
				}
				if k+1 < nz {
					b.add(idx(i, j, k+1), -1)
				}
				b.endRow()
			}
		}
	}
	return b.c
}

// GhostDense returns an n x n matrix whose row i references column n-1-i
// and column (i+n/2) mod n. For any split of [0, n) into equal contiguous
// parts every row references a column owned by another part.
func GhostDense(n int) *CSR {
	b := newBuilder(n, n, 2*n)
	for i := 0; i < n; i++ {
		mirror, shifted := n-1-i, (i+n/2)%n
		lo, hi := min(mirror, shifted), max(mirror, shifted)
		b.add(lo, 1+float64(i%7)/8)
		if hi != lo {
			b.add(hi, 1-float64(i%5)/16)
		}
		b.endRow()
	}
	return b.c
}

// Random returns an n x m matrix in which every entry is present with the
// given density, values uniform in [-1, 1). The same seed gives the same
// matrix.
func Random(n, m int, density float64, seed int64) *CSR {
	if n == 0 || m == 0 {
		return Empty(n, m)
	}
	rng := rand.New(rand.NewSource(seed))
	dok := sparse.NewDOK(n, m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if rng.Float64() < density {
				dok.Set(i, j, 2*rng.Float64()-1)
			}
		}
	}
	return FromSparse(dok.ToCSR())
}

// Empty returns an n x m matrix without entries
func Empty(n, m int) *CSR {
	return &CSR{Rows: n, Cols: m, Row: make([]int, n+1)}
}

// Identity returns the n x n identity
func Identity(n int) *CSR {
	b := newBuilder(n, n, n)
	for i := 0; i < n; i++ {
		b.add(i, 1)
		b.endRow()
	}
	return b.c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
