package spmat

import (
	"strings"

	"github.com/notargets/gospmv/device"
	"github.com/notargets/gospmv/kernels"
	"github.com/pkg/errors"
)

// Layout selects the device storage of a sparse block
type Layout int

const (
	// LayoutAuto picks CSR for scalar devices and hybrid ELL for wide ones
	LayoutAuto Layout = iota
	LayoutCSR
	LayoutHybridELL
)

func (l Layout) String() string {
	switch l {
	case LayoutAuto:
		return "auto"
	case LayoutCSR:
		return "csr"
	case LayoutHybridELL:
		return "hell"
	}
	return "unknown"
}

// ParseLayout accepts auto, csr, hell and ell
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return LayoutAuto, nil
	case "csr":
		return LayoutCSR, nil
	case "hell", "ell", "hybrid":
		return LayoutHybridELL, nil
	}
	return LayoutAuto, errors.Errorf("unknown layout %q", s)
}

// resolve returns the concrete layout used on dev
func (l Layout) resolve(dev *device.Device) Layout {
	if l != LayoutAuto {
		return l
	}
	if dev.Class() == device.Wide {
		return LayoutHybridELL
	}
	return LayoutCSR
}

type options struct {
	cache         *kernels.Cache
	layout        Layout
	ellWidthLimit int
}

// Option configures matrix construction
type Option func(*options)

// WithKernelCache shares cache between matrices. Without it the matrix owns
// a private cache released by Free.
func WithKernelCache(cache *kernels.Cache) Option {
	return func(o *options) { o.cache = cache }
}

// WithLayout forces the storage layout on every device
func WithLayout(l Layout) Option {
	return func(o *options) { o.layout = l }
}

// WithEllWidthLimit caps the packed width of hybrid ELL blocks
func WithEllWidthLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.ellWidthLimit = limit
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		layout:        LayoutAuto,
		ellWidthLimit: DefaultEllWidthLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
