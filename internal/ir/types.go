package ir

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Dynamic marks a shape, stride or offset entry that is only known at runtime.
const Dynamic int64 = math.MinInt64

// IsDynamic reports whether v is the Dynamic placeholder.
func IsDynamic(v int64) bool { return v == Dynamic }

// Type is any IR type. Two types are equal iff their printed forms are.
type Type interface {
	String() string
}

type IndexType struct{}

// IntType is a signless integer; Bits == 1 is the boolean type.
type IntType struct {
	Bits int
}

type FloatType struct {
	Bits int
}

// VectorType is a fixed-shape register value.
type VectorType struct {
	Shape []int64
	Elem  Type
}

// StridedLayout describes how a memref's logical indices map to linear
// element positions: offset + sum(index[i] * Strides[i]).
type StridedLayout struct {
	Offset  int64
	Strides []int64
}

// MemRefType is a memory region descriptor. A nil Layout means the
// row-major identity layout with offset 0.
type MemRefType struct {
	Shape  []int64
	Elem   Type
	Layout *StridedLayout
}

func Index() Type { return &IndexType{} }
func I1() Type { return &IntType{Bits: 1} }
func I32() Type { return &IntType{Bits: 32} }
func F32() Type { return &FloatType{Bits: 32} }
func F64() Type { return &FloatType{Bits: 64} }
func Vector(elem Type, shape ...int64) *VectorType {
	return &VectorType{Shape: shape, Elem: elem}
}
func MemRef(elem Type, shape ...int64) *MemRefType {
	return &MemRefType{Shape: shape, Elem: elem}
}

func (i *IndexType) String() string { return "index" }
func (i *IntType) String() string   { return fmt.Sprintf("i%d", i.Bits) }
func (f *FloatType) String() string { return fmt.Sprintf("f%d", f.Bits) }

func (v *VectorType) String() string {
	return fmt.Sprintf("vector<%s%s>", shapePrefix(v.Shape), v.Elem)
}

func (m *MemRefType) String() string {
	s := fmt.Sprintf("memref<%s%s", shapePrefix(m.Shape), m.Elem)
	if m.Layout != nil {
		s += ", " + m.Layout.String()
	}
	return s + ">"
}

func (l *StridedLayout) String() string {
	strides := make([]string, len(l.Strides))
	for i, st := range l.Strides {
		strides[i] = dimString(st)
	}
	s := fmt.Sprintf("strided<[%s]", strings.Join(strides, ", "))
	if l.Offset != 0 {
		s += ", offset: " + dimString(l.Offset)
	}
	return s + ">"
}

func shapePrefix(shape []int64) string {
	var sb strings.Builder
	for _, d := range shape {
		sb.WriteString(dimString(d))
		sb.WriteString("x")
	}
	return sb.String()
}

func dimString(d int64) string {
	if IsDynamic(d) {
		return "?"
	}
	return fmt.Sprintf("%d", d)
}

// TypesEqual compares two types structurally.
func TypesEqual(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// IsIndex reports whether t is the index type.
func IsIndex(t Type) bool {
	_, ok := t.(*IndexType)
	return ok
}

// IsBool reports whether t is i1.
func IsBool(t Type) bool {
	it, ok := t.(*IntType)
	return ok && it.Bits == 1
}

// IsIntegerLike reports whether t is index or a signless integer.
func IsIntegerLike(t Type) bool {
	switch t.(type) {
	case *IndexType, *IntType:
		return true
	}
	return false
}

// ElementType returns the element type of a shaped type, or t itself.
func ElementType(t Type) Type {
	switch s := t.(type) {
	case *VectorType:
		return s.Elem
	case *MemRefType:
		return s.Elem
	}
	return t
}

func (v *VectorType) Rank() int { return len(v.Shape) }

// NumElements returns the element count of the vector.
func (v *VectorType) NumElements() int64 {
	n := int64(1)
	for _, d := range v.Shape {
		n *= d
	}
	return n
}

func (m *MemRefType) Rank() int { return len(m.Shape) }

// HasStaticShape reports whether no shape entry is dynamic.
func (m *MemRefType) HasStaticShape() bool {
	for _, d := range m.Shape {
		if IsDynamic(d) {
			return false
		}
	}
	return true
}

// StridesAndOffset returns the strides and offset of m. For the identity
// layout strides are derived from the shape; a stride is dynamic as soon as
// any inner dimension is.
func (m *MemRefType) StridesAndOffset() ([]int64, int64, bool) {
	if m.Layout != nil {
		if len(m.Layout.Strides) != len(m.Shape) {
			return nil, 0, false
		}
		strides := make([]int64, len(m.Layout.Strides))
		copy(strides, m.Layout.Strides)
		return strides, m.Layout.Offset, true
	}
	strides := make([]int64, len(m.Shape))
	running := int64(1)
	for i := len(m.Shape) - 1; i >= 0; i-- {
		strides[i] = running
		if IsDynamic(running) || IsDynamic(m.Shape[i]) {
			running = Dynamic
		} else {
			running *= m.Shape[i]
		}
	}
	return strides, 0, true
}

// CastCompatible reports whether a value of type a can be memref.cast to b:
// same element type and rank, and every static shape, stride and offset
// entry either agrees or is dynamic on one side.
func CastCompatible(a, b *MemRefType) bool {
	if !TypesEqual(a.Elem, b.Elem) || a.Rank() != b.Rank() {
		return false
	}
	for i := range a.Shape {
		if !compatibleEntry(a.Shape[i], b.Shape[i]) {
			return false
		}
	}
	aStrides, aOffset, aOk := a.StridesAndOffset()
	bStrides, bOffset, bOk := b.StridesAndOffset()
	if !aOk || !bOk {
		return false
	}
	for i := range aStrides {
		if !compatibleEntry(aStrides[i], bStrides[i]) {
			return false
		}
	}
	return compatibleEntry(aOffset, bOffset)
}

func compatibleEntry(a, b int64) bool {
	return a == b || IsDynamic(a) || IsDynamic(b)
}

// InferSubViewType computes the result type of a memref.subview of source
// with the given static offsets, sizes and strides (Dynamic entries are
// supplied at runtime).
func InferSubViewType(source *MemRefType, offsets, sizes, strides []int64) (*MemRefType, error) {
	rank := source.Rank()
	if len(offsets) != rank || len(sizes) != rank || len(strides) != rank {
		return nil, errors.Errorf("subview of rank-%d memref needs %d offsets, sizes and strides", rank, rank)
	}
	srcStrides, srcOffset, ok := source.StridesAndOffset()
	if !ok {
		return nil, errors.Errorf("subview source %s has no strided layout", source)
	}

	offset := srcOffset
	resStrides := make([]int64, rank)
	for i := 0; i < rank; i++ {
		if IsDynamic(offset) || IsDynamic(offsets[i]) || IsDynamic(srcStrides[i]) {
			offset = Dynamic
		} else {
			offset += offsets[i] * srcStrides[i]
		}
		if IsDynamic(srcStrides[i]) || IsDynamic(strides[i]) {
			resStrides[i] = Dynamic
		} else {
			resStrides[i] = srcStrides[i] * strides[i]
		}
	}
	shape := make([]int64, rank)
	copy(shape, sizes)
	return &MemRefType{
		Shape:  shape,
		Elem:   source.Elem,
		Layout: &StridedLayout{Offset: offset, Strides: resStrides},
	}, nil
}
