package stp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildOuterProduct builds "uv,u,v" with one 2x3 output segment and
// matching input segments.
func buildOuterProduct(t *testing.T) *SegmentedTensorProduct {
	t.Helper()
	d := MustFromSubscripts("uv,u,v")
	_, err := d.AddSegment(0, Shape{2, 3})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{2})
	require.NoError(t, err)
	_, err = d.AddSegment(2, Shape{3})
	require.NoError(t, err)
	require.NoError(t, d.AddPath([]int{0, 0, 0}, Scalar(1.0)))
	return d
}

func TestProduct_FromSubscripts(t *testing.T) {
	d, err := FromSubscripts("uvw,iu,jv,kw+ijk")
	require.NoError(t, err)
	assert.Equal(t, 4, d.NumOperands())
	assert.Equal(t, 0, d.NumPaths())
	assert.Equal(t, 3, d.Operand(0).NDim())
	assert.Equal(t, 2, d.Operand(1).NDim())

	_, err = FromSubscripts("uu,v")
	assert.Error(t, err)
}

func TestProduct_AddPath(t *testing.T) {
	d := buildOuterProduct(t)
	assert.Equal(t, 1, d.NumPaths())
	assert.Equal(t, []int{0, 0, 0}, d.Path(0).Indices())
}

func TestProduct_AddPathArityAndRange(t *testing.T) {
	d := buildOuterProduct(t)

	err := d.AddPath([]int{0, 0}, Scalar(1.0))
	assert.ErrorIs(t, err, ErrArityMismatch)

	err = d.AddPath([]int{0, 0, 5}, Scalar(1.0))
	assert.Error(t, err)
}

func TestProduct_AddPathCoefficientShape(t *testing.T) {
	d := MustFromSubscripts("iu,u+i")
	_, err := d.AddSegment(0, Shape{4, 2})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{2})
	require.NoError(t, err)

	wrong := Zeros(Shape{3})
	err = d.AddPath([]int{0, 0}, wrong)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	right, err := NewCoefficients(Shape{4}, []float64{1, 0, 0, 2})
	require.NoError(t, err)
	require.NoError(t, d.AddPath([]int{0, 0}, right))
}

func TestProduct_AddPathConflictingExtents(t *testing.T) {
	d := MustFromSubscripts("u,u")
	_, err := d.AddSegment(0, Shape{2})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{3})
	require.NoError(t, err)
	err = d.AddPath([]int{0, 0}, Scalar(1.0))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestProduct_AddPathNewSegment(t *testing.T) {
	d := MustFromSubscripts("uv,u,v")
	_, err := d.AddSegment(1, Shape{2})
	require.NoError(t, err)
	_, err = d.AddSegment(2, Shape{3})
	require.NoError(t, err)

	// The output segment is created on demand from the resolved extents.
	require.NoError(t, d.AddPath([]int{NewSegment, 0, 0}, Scalar(1.0)))
	require.Equal(t, 1, d.Operand(0).NumSegments())
	assert.True(t, d.Operand(0).Segment(0).Equal(Shape{2, 3}))
	assert.Equal(t, []int{0, 0, 0}, d.Path(0).Indices())
}

func TestProduct_AddPathDims(t *testing.T) {
	// Mode u appears only in operands whose segments are still being
	// created, so its extent must come from dims.
	d := MustFromSubscripts("u,u")
	err := d.AddPathDims([]int{NewSegment, NewSegment}, Scalar(1.0), map[byte]int{'u': 5})
	require.NoError(t, err)
	assert.True(t, d.Operand(0).Segment(0).Equal(Shape{5}))
	assert.True(t, d.Operand(1).Segment(0).Equal(Shape{5}))

	d2 := MustFromSubscripts("u,u")
	err = d2.AddPath([]int{NewSegment, NewSegment}, Scalar(1.0))
	assert.Error(t, err)
}

func TestProduct_NegativeOperandIndex(t *testing.T) {
	d := buildOuterProduct(t)
	assert.True(t, d.Operand(-1).Equal(d.Operand(2)))
	assert.True(t, d.Operand(-3).Equal(d.Operand(0)))
}

func TestProduct_ModeExtents(t *testing.T) {
	d := buildOuterProduct(t)
	extents, err := d.ModeExtents(d.Path(0))
	require.NoError(t, err)
	assert.Equal(t, map[byte]int{'u': 2, 'v': 3}, extents)
}

func TestProduct_Flop(t *testing.T) {
	// One path, scalar coefficient, 2x3 elementwise lanes.
	d := buildOuterProduct(t)
	flop, err := d.Flop(1)
	require.NoError(t, err)
	assert.Equal(t, 2*1*6, flop)

	flop, err = d.Flop(10)
	require.NoError(t, err)
	assert.Equal(t, 120, flop)
}

func TestProduct_Memory(t *testing.T) {
	d := buildOuterProduct(t)
	mem, err := d.Memory([]int{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 6+2+3, mem)

	mem, err = d.Memory([]int{10, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 65, mem)

	_, err = d.Memory([]int{1, 1})
	assert.ErrorIs(t, err, ErrArityMismatch)
}

func TestProduct_FlopCountsNonZeros(t *testing.T) {
	d := MustFromSubscripts("iu,u+i")
	_, err := d.AddSegment(0, Shape{4, 2})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{2})
	require.NoError(t, err)
	coeff, err := NewCoefficients(Shape{4}, []float64{1, 0, 0, 2})
	require.NoError(t, err)
	require.NoError(t, d.AddPath([]int{0, 0}, coeff))

	flop, err := d.Flop(1)
	require.NoError(t, err)
	assert.Equal(t, 2*2*2, flop, "2 non-zeros times lane u=2")
}

func TestProduct_Scale(t *testing.T) {
	d := buildOuterProduct(t)
	s := d.Scale(-2)
	assert.Equal(t, -2.0, s.Path(0).Coefficients().Item())
	assert.Equal(t, 1.0, d.Path(0).Coefficients().Item(), "receiver must stay untouched")
}

func TestProduct_EqualAndHash(t *testing.T) {
	a := buildOuterProduct(t)
	b := buildOuterProduct(t)
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())

	c := b.Scale(2)
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.True(t, a.StructureEqual(c))
}

func TestProduct_CloneIsIndependent(t *testing.T) {
	a := buildOuterProduct(t)
	b := a.Clone()
	_, err := b.AddSegment(1, Shape{2})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Operand(1).NumSegments())
	assert.Equal(t, 2, b.Operand(1).NumSegments())
}

func TestProduct_EmptySegments(t *testing.T) {
	d := EmptySegments([]int{2, 3})
	assert.Equal(t, 2, d.NumOperands())
	assert.Equal(t, 2, d.Operand(0).NumSegments())
	assert.Equal(t, 3, d.Operand(1).NumSegments())
	assert.Equal(t, 0, d.Operand(0).NDim())
	require.NoError(t, d.AddPath([]int{1, 2}, Scalar(1.0)))
}
