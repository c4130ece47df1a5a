package kernels

import (
	"fmt"
	"unsafe"
)

// DataType represents the precision of real data on the device
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
)

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DataType(%d)", int(dt))
	}
}

// TypeName returns the C type name used for real_t
func TypeName(dt DataType) string {
	if dt == Float32 {
		return "float"
	}
	return "double"
}

// TypeSuffix returns the suffix for floating point literals
func TypeSuffix(dt DataType) string {
	if dt == Float32 {
		return "f"
	}
	return ""
}

// DataTypeOf returns the DataType matching T
func DataTypeOf[T ~float32 | ~float64]() DataType {
	var sample T
	if unsafe.Sizeof(sample) == 4 {
		return Float32
	}
	return Float64
}
