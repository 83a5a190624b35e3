package interp

import (
	"fmt"

	"github.com/pkg/errors"

	"vecsplit/internal/ir"
)

// Buffer is the backing store of one allocation.
type Buffer struct {
	Data []any
}

// MemRef is a strided view into a Buffer. A view produced by
// vector.type_cast has no Shape and holds a single vector of VectorShape.
type MemRef struct {
	Buf         *Buffer
	Offset      int64
	Shape       []int64
	Strides     []int64
	VectorShape []int64
}

// Vector is a dense row-major vector value.
type Vector struct {
	Shape []int64
	Data  []any
}

// NewMemRef wraps data in a row-major memref of the given shape.
func NewMemRef(shape []int64, data []any) *MemRef {
	if int64(len(data)) != product(shape) {
		panic(fmt.Sprintf("interp: %d elements for shape %v", len(data), shape))
	}
	return &MemRef{Buf: &Buffer{Data: data}, Shape: append([]int64(nil), shape...), Strides: rowMajor(shape)}
}

// NewFloatMemRef builds a row-major memref of floats.
func NewFloatMemRef(shape []int64, data []float64) *MemRef {
	return NewMemRef(shape, Floats(data...))
}

// Floats converts float64 values to runtime elements.
func Floats(vals ...float64) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// Iota returns n floats 0, 1, ..., n-1 offset by base.
func Iota(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + float64(i)
	}
	return out
}

// Floats returns the elements of m in logical row-major order.
func (m *MemRef) Floats() []float64 {
	var out []float64
	forEachIndex(m.Shape, func(idx []int64) {
		f, _ := m.Buf.Data[m.linear(idx)].(float64)
		out = append(out, f)
	})
	return out
}

// Floats returns the vector elements as float64.
func (v *Vector) Floats() []float64 {
	out := make([]float64, len(v.Data))
	for i, e := range v.Data {
		out[i], _ = e.(float64)
	}
	return out
}

func (m *MemRef) linear(idx []int64) int64 {
	pos := m.Offset
	for i, x := range idx {
		pos += x * m.Strides[i]
	}
	return pos
}

func (m *MemRef) inBounds(idx []int64) bool {
	for i, x := range idx {
		if x < 0 || x >= m.Shape[i] {
			return false
		}
	}
	return true
}

func rowMajor(shape []int64) []int64 {
	strides := make([]int64, len(shape))
	running := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = running
		running *= shape[i]
	}
	return strides
}

func product(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// forEachIndex visits every multi-index of shape in row-major order.
func forEachIndex(shape []int64, fn func(idx []int64)) {
	for _, d := range shape {
		if d <= 0 {
			return
		}
	}
	idx := make([]int64, len(shape))
	for {
		fn(idx)
		i := len(shape) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

func zeroValue(t ir.Type) any {
	switch tt := t.(type) {
	case *ir.FloatType:
		return 0.0
	case *ir.IntType:
		if tt.Bits == 1 {
			return false
		}
		return int64(0)
	}
	return int64(0)
}

// conforms checks that a runtime memref matches every static entry of t.
func conforms(t *ir.MemRefType, m *MemRef) error {
	if len(m.Shape) != t.Rank() {
		return errors.Errorf("rank %d memref does not match %s", len(m.Shape), t)
	}
	for i, d := range t.Shape {
		if !ir.IsDynamic(d) && d != m.Shape[i] {
			return errors.Errorf("dimension %d is %d, %s requires %d", i, m.Shape[i], t, d)
		}
	}
	strides, offset, ok := t.StridesAndOffset()
	if !ok {
		return errors.Errorf("%s has no strided layout", t)
	}
	for i, s := range strides {
		if !ir.IsDynamic(s) && s != m.Strides[i] && m.Shape[i] > 1 {
			return errors.Errorf("stride %d is %d, %s requires %d", i, m.Strides[i], t, s)
		}
	}
	if !ir.IsDynamic(offset) && offset != m.Offset {
		return errors.Errorf("offset is %d, %s requires %d", m.Offset, t, offset)
	}
	return nil
}
