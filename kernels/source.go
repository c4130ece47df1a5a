package kernels

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Name identifies one of the parameterized kernel templates
type Name string

const (
	// Fill sets y[i] = 0.
	// Args: n, y
	Fill Name = "fill_zero"

	// Gather packs the values other devices need: out[i] = x[cols[i]].
	// Args: n, x, cols, out
	Gather Name = "gather_vals_to_send"

	// CSRSet and CSRAdd compute y = alpha*A*x and y += alpha*A*x.
	// Args: n, row, col, val, x, y, alpha
	CSRSet Name = "csr_spmv_set"
	CSRAdd Name = "csr_spmv_add"

	// ELLSet and ELLAdd use column-major ELL storage, padding marked by col -1.
	// Args: n, pitch, width, ell_col, ell_val, x, y, alpha
	ELLSet Name = "ell_spmv_set"
	ELLAdd Name = "ell_spmv_add"

	// HELLSet and HELLAdd add a CSR tail holding the entries that overflow
	// the ELL width.
	// Args: n, pitch, width, ell_col, ell_val, tail_row, tail_col, tail_val, x, y, alpha
	HELLSet Name = "hell_spmv_set"
	HELLAdd Name = "hell_spmv_add"
)

// Names lists every template
var Names = []Name{Fill, Gather, CSRSet, CSRAdd, ELLSet, ELLAdd, HELLSet, HELLAdd}

// Preamble generates type definitions and constants shared by all kernels
func Preamble(dt DataType, block int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", TypeName(dt)))
	sb.WriteString("typedef long int_t;\n")
	sb.WriteString(fmt.Sprintf("#define BLOCK %d\n", block))
	sb.WriteString(fmt.Sprintf("#define REAL_ZERO 0.0%s\n\n", TypeSuffix(dt)))
	return sb.String()
}

// Source returns the complete source of kernel name for real type dt and
// work group size block
func Source(name Name, dt DataType, block int) (string, error) {
	if block <= 0 {
		return "", errors.Errorf("invalid work group size %d", block)
	}
	var body string
	switch name {
	case Fill:
		body = fillSource
	case Gather:
		body = gatherSource
	case CSRSet, CSRAdd:
		body = fmt.Sprintf(csrSource, name, assign(name))
	case ELLSet, ELLAdd:
		body = fmt.Sprintf(ellSource, name, "", ellLoop, "", assign(name))
	case HELLSet, HELLAdd:
		body = fmt.Sprintf(ellSource, name, hellTailArgs, ellLoop, hellTailLoop, assign(name))
	default:
		return "", errors.Errorf("unknown kernel %q", name)
	}
	return Preamble(dt, block) + body, nil
}

func assign(name Name) string {
	if strings.HasSuffix(string(name), "_add") {
		return "y[i] += alpha * sum;"
	}
	return "y[i] = alpha * sum;"
}

const fillSource = `
@kernel void fill_zero(const int_t n, real_t *y) {
  for (int_t b = 0; b < (n + BLOCK - 1) / BLOCK; ++b; @outer) {
    for (int_t t = 0; t < BLOCK; ++t; @inner) {
      const int_t i = b * BLOCK + t;
      if (i < n) {
        y[i] = REAL_ZERO;
      }
    }
  }
}
`

const gatherSource = `
@kernel void gather_vals_to_send(const int_t n,
                                 const real_t *x,
                                 const int_t *cols,
                                 real_t *out) {
  for (int_t b = 0; b < (n + BLOCK - 1) / BLOCK; ++b; @outer) {
    for (int_t t = 0; t < BLOCK; ++t; @inner) {
      const int_t i = b * BLOCK + t;
      if (i < n) {
        out[i] = x[cols[i]];
      }
    }
  }
}
`

const csrSource = `
@kernel void %s(const int_t n,
                const int_t *row,
                const int_t *col,
                const real_t *val,
                const real_t *x,
                real_t *y,
                const real_t alpha) {
  for (int_t b = 0; b < (n + BLOCK - 1) / BLOCK; ++b; @outer) {
    for (int_t t = 0; t < BLOCK; ++t; @inner) {
      const int_t i = b * BLOCK + t;
      if (i < n) {
        real_t sum = REAL_ZERO;
        for (int_t j = row[i]; j < row[i + 1]; ++j) {
          sum += val[j] * x[col[j]];
        }
        %s
      }
    }
  }
}
`

const ellSource = `
@kernel void %s(const int_t n,
                const int_t pitch,
                const int_t width,
                const int_t *ell_col,
                const real_t *ell_val,%s
                const real_t *x,
                real_t *y,
                const real_t alpha) {
  for (int_t b = 0; b < (n + BLOCK - 1) / BLOCK; ++b; @outer) {
    for (int_t t = 0; t < BLOCK; ++t; @inner) {
      const int_t i = b * BLOCK + t;
      if (i < n) {
        real_t sum = REAL_ZERO;%s%s
        %s
      }
    }
  }
}
`

const hellTailArgs = `
                const int_t *tail_row,
                const int_t *tail_col,
                const real_t *tail_val,`

const ellLoop = `
        for (int_t j = 0; j < width; ++j) {
          const int_t c = ell_col[j * pitch + i];
          if (c >= 0) {
            sum += ell_val[j * pitch + i] * x[c];
          }
        }`

const hellTailLoop = `
        for (int_t j = tail_row[i]; j < tail_row[i + 1]; ++j) {
          sum += tail_val[j] * x[tail_col[j]];
        }`
