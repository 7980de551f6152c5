package stp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Coefficients is a dense float64 tensor holding one path's coefficient
// values. Its rank and per-axis extents must match the coefficient
// subscripts of the owning contraction.
//
// Coefficients are value objects: every transform returns a new instance.
type Coefficients struct {
	shape Shape
	data  []float64
}

// NewCoefficients creates a coefficient tensor from a shape and row-major data.
func NewCoefficients(shape Shape, data []float64) (Coefficients, error) {
	if err := shape.Validate(); err != nil {
		return Coefficients{}, err
	}
	if shape.Size() != len(data) {
		return Coefficients{}, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.Size(), len(data))
	}
	d := make([]float64, len(data))
	copy(d, data)
	return Coefficients{shape: shape.Clone(), data: d}, nil
}

// Scalar creates a rank-0 coefficient tensor holding a single value.
func Scalar(v float64) Coefficients {
	return Coefficients{shape: Shape{}, data: []float64{v}}
}

// Zeros creates an all-zero coefficient tensor of the given shape.
func Zeros(shape Shape) Coefficients {
	return Coefficients{shape: shape.Clone(), data: make([]float64, shape.Size())}
}

// Shape returns a copy of the tensor's shape.
func (c Coefficients) Shape() Shape { return c.shape.Clone() }

// Rank returns the number of axes.
func (c Coefficients) Rank() int { return len(c.shape) }

// Size returns the total number of elements.
func (c Coefficients) Size() int { return len(c.data) }

// Data returns a copy of the row-major element data.
func (c Coefficients) Data() []float64 {
	d := make([]float64, len(c.data))
	copy(d, c.data)
	return d
}

// At returns the element at the given multi-index.
func (c Coefficients) At(indices ...int) float64 {
	return c.data[c.offset(indices)]
}

// Item returns the value of a rank-0 tensor.
func (c Coefficients) Item() float64 {
	if len(c.data) != 1 {
		panic(fmt.Sprintf("Item() only works for scalar coefficients, got shape %v", c.shape))
	}
	return c.data[0]
}

func (c Coefficients) offset(indices []int) int {
	if len(indices) != len(c.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(c.shape), len(indices)))
	}
	offset := 0
	strides := c.shape.Strides()
	for i, idx := range indices {
		if idx < 0 || idx >= c.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for axis %d (extent %d)", idx, i, c.shape[i]))
		}
		offset += idx * strides[i]
	}
	return offset
}

// Clone returns a deep copy.
func (c Coefficients) Clone() Coefficients {
	return Coefficients{shape: c.shape.Clone(), data: c.Data()}
}

// Scale returns the tensor multiplied by a scalar.
func (c Coefficients) Scale(f float64) Coefficients {
	out := c.Clone()
	floats.Scale(f, out.data)
	return out
}

// Add returns the elementwise sum of two tensors of identical shape.
func (c Coefficients) Add(other Coefficients) (Coefficients, error) {
	if !c.shape.Equal(other.shape) {
		return Coefficients{}, &ShapeError{Operand: -1, Expected: c.shape, Actual: other.shape, Details: "coefficient addition"}
	}
	out := c.Clone()
	floats.Add(out.data, other.data)
	return out, nil
}

// Equal reports exact structural equality.
func (c Coefficients) Equal(other Coefficients) bool {
	if !c.shape.Equal(other.shape) {
		return false
	}
	for i := range c.data {
		if c.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// AllClose reports equality within an absolute-plus-relative tolerance.
func (c Coefficients) AllClose(other Coefficients, tol float64) bool {
	if !c.shape.Equal(other.shape) {
		return false
	}
	for i := range c.data {
		a, b := c.data[i], other.data[i]
		if math.Abs(a-b) > tol*(1+math.Max(math.Abs(a), math.Abs(b))) {
			return false
		}
	}
	return true
}

// IsZero reports whether every element is exactly zero.
func (c Coefficients) IsZero() bool {
	for _, v := range c.data {
		if v != 0 {
			return false
		}
	}
	return true
}

// NonZeroCount returns the number of non-zero elements.
func (c Coefficients) NonZeroCount() int {
	n := 0
	for _, v := range c.data {
		if v != 0 {
			n++
		}
	}
	return n
}

// Norm2 returns the sum of squared elements.
func (c Coefficients) Norm2() float64 {
	return floats.Dot(c.data, c.data)
}

// Transpose returns the tensor with axes permuted: axis i of the result is
// axis perm[i] of the receiver.
func (c Coefficients) Transpose(perm []int) (Coefficients, error) {
	if len(perm) != len(c.shape) {
		return Coefficients{}, &ArityError{Expected: len(c.shape), Actual: len(perm), Details: "axis permutation"}
	}
	if !isPermutation(perm) {
		return Coefficients{}, fmt.Errorf("invalid axis permutation %v", perm)
	}
	newShape := make(Shape, len(perm))
	for i, p := range perm {
		newShape[i] = c.shape[p]
	}
	out := Zeros(newShape)
	oldStrides := c.shape.Strides()
	newStrides := newShape.Strides()
	for flat := range out.data {
		// Decode the multi-index of the result and gather from the source.
		rem := flat
		src := 0
		for i, s := range newStrides {
			src += (rem / s) * oldStrides[perm[i]]
			rem %= s
		}
		out.data[flat] = c.data[src]
	}
	return out, nil
}

// SliceAxis returns the tensor with the given axis fixed at index, dropping
// that axis from the shape.
func (c Coefficients) SliceAxis(axis, index int) (Coefficients, error) {
	if axis < 0 || axis >= len(c.shape) {
		return Coefficients{}, fmt.Errorf("axis %d out of range for rank %d", axis, len(c.shape))
	}
	if index < 0 || index >= c.shape[axis] {
		return Coefficients{}, fmt.Errorf("index %d out of bounds for axis %d (extent %d)", index, axis, c.shape[axis])
	}
	newShape := make(Shape, 0, len(c.shape)-1)
	newShape = append(newShape, c.shape[:axis]...)
	newShape = append(newShape, c.shape[axis+1:]...)
	out := Zeros(newShape)
	strides := c.shape.Strides()
	newStrides := newShape.Strides()
	for flat := range out.data {
		rem := flat
		src := index * strides[axis]
		k := 0
		for i := range c.shape {
			if i == axis {
				continue
			}
			src += (rem / newStrides[k]) * strides[i]
			rem %= newStrides[k]
			k++
		}
		out.data[flat] = c.data[src]
	}
	return out, nil
}

// Reshape returns the tensor reinterpreted with a new shape of equal size.
func (c Coefficients) Reshape(shape Shape) (Coefficients, error) {
	if shape.Size() != len(c.data) {
		return Coefficients{}, &ShapeError{Operand: -1, Expected: c.shape, Actual: shape, Details: "reshape size mismatch"}
	}
	out := c.Clone()
	out.shape = shape.Clone()
	return out, nil
}

// String returns a compact human-readable form.
func (c Coefficients) String() string {
	if len(c.shape) == 0 {
		return fmt.Sprintf("%g", c.data[0])
	}
	return fmt.Sprintf("%v%v", c.shape, c.data)
}

func isPermutation(perm []int) bool {
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}
