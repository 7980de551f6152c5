package poly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// weightedSum builds "u," summing one length-n segment into a scalar.
func weightedSum(t *testing.T, n int) *stp.SegmentedTensorProduct {
	t.Helper()
	d := stp.MustFromSubscripts("u,")
	_, err := d.AddSegment(0, stp.Shape{n})
	require.NoError(t, err)
	_, err = d.AddSegment(1, stp.Shape{})
	require.NoError(t, err)
	require.NoError(t, d.AddPath([]int{0, 0}, stp.Scalar(1.0)))
	return d
}

func TestStack_ConcatenatesFlaggedBuffers(t *testing.T) {
	p1, err := EvalLastOperand(weightedSum(t, 2))
	require.NoError(t, err)
	p2, err := EvalLastOperand(weightedSum(t, 3))
	require.NoError(t, err)

	s, err := Stack([]*SegmentedPolynomial{p1, p2}, []bool{true, true})
	require.NoError(t, err)
	assert.True(t, s.Inputs()[0].Equal(mustOperand(t, 1, []stp.Shape{{2}, {3}})))
	assert.Equal(t, 2, s.Outputs()[0].NumSegments())
	require.Equal(t, 2, s.NumOperations())

	// The second polynomial's selectors land past the first one's segments.
	second := s.Operations()[1].STP
	assert.Equal(t, []int{1, 1}, second.Path(0).Indices())
}

func TestStack_SharedBufferMustMatch(t *testing.T) {
	p1, err := EvalLastOperand(weightedSum(t, 2))
	require.NoError(t, err)
	p2, err := EvalLastOperand(weightedSum(t, 3))
	require.NoError(t, err)

	// Sharing the inputs while they differ in size is rejected.
	_, err = Stack([]*SegmentedPolynomial{p1, p2}, []bool{false, true})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// Sharing the identical scalar outputs accumulates both sums into one.
	s, err := Stack([]*SegmentedPolynomial{p1, p2}, []bool{true, false})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Outputs()[0].NumSegments())
}

func TestStack_ArityChecks(t *testing.T) {
	p1, err := EvalLastOperand(weightedSum(t, 2))
	require.NoError(t, err)
	_, err = Stack(nil, nil)
	assert.Error(t, err)
	_, err = Stack([]*SegmentedPolynomial{p1}, []bool{true})
	assert.ErrorIs(t, err, ErrArityMismatch)
	_, err = Stack([]*SegmentedPolynomial{p1, dotPoly(t)}, []bool{true, true})
	assert.ErrorIs(t, err, ErrArityMismatch)
}

func TestConcatenate(t *testing.T) {
	p := dotPoly(t)
	unused, err := stp.OperandFromSegments(1, []stp.Shape{{7}})
	require.NoError(t, err)
	q, err := New(append(p.Inputs(), unused), p.Outputs(), []TensorProduct{
		{Operation: NewOperation(0, 1, 3), STP: dotProduct(t)},
	})
	require.NoError(t, err)

	inputs := p.Inputs()
	outputs := []*stp.Operand{p.Outputs()[0], p.Outputs()[0].Clone()}
	merged, err := Concatenate(inputs, outputs, []ConcatItem{
		{Poly: p, BufferMap: []int{0, 1, 2}},
		{Poly: q, BufferMap: []int{1, 0, Drop, 3}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, merged.NumOperations())
	assert.Equal(t, NewOperation(1, 0, 3), merged.Operations()[1].Operation)
}

func TestConcatenate_Validations(t *testing.T) {
	p := dotPoly(t)
	inputs := p.Inputs()
	outputs := p.Outputs()

	t.Run("map arity", func(t *testing.T) {
		_, err := Concatenate(inputs, outputs, []ConcatItem{{Poly: p, BufferMap: []int{0, 1}}})
		assert.ErrorIs(t, err, ErrArityMismatch)
	})
	t.Run("dropping a used buffer", func(t *testing.T) {
		_, err := Concatenate(inputs, outputs, []ConcatItem{{Poly: p, BufferMap: []int{0, Drop, 2}}})
		assert.Error(t, err)
	})
	t.Run("role violation", func(t *testing.T) {
		_, err := Concatenate(inputs, outputs, []ConcatItem{{Poly: p, BufferMap: []int{0, 2, 1}}})
		assert.Error(t, err)
	})
	t.Run("size mismatch", func(t *testing.T) {
		small, err := stp.OperandFromSegments(1, []stp.Shape{{2}})
		require.NoError(t, err)
		_, err = Concatenate([]*stp.Operand{inputs[0], small}, outputs,
			[]ConcatItem{{Poly: p, BufferMap: []int{0, 1, 2}}})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})
}

func TestStackTensorProducts_InfersOutputs(t *testing.T) {
	a := weightedSum(t, 2)
	b := weightedSum(t, 2)
	inputs := []*stp.Operand{a.Operand(0)}

	p, err := StackTensorProducts(inputs, []*stp.Operand{nil}, []TensorProductItem{
		{Buffers: NewOperation(0, 1), STP: a},
		{Buffers: NewOperation(0, 1), STP: b},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Outputs()[0].NumSegments(), "inferred by concatenation")
	// Identical layouts fuse into one operation with shifted selectors.
	require.Equal(t, 1, p.NumOperations())
	d := p.Operations()[0].STP
	require.Equal(t, 2, d.NumPaths())
	assert.Equal(t, []int{0, 0}, d.Path(0).Indices())
	assert.Equal(t, []int{0, 1}, d.Path(1).Indices())
}

func TestStackTensorProducts_ExplicitOutput(t *testing.T) {
	a := weightedSum(t, 2)
	out := a.Operand(1)
	p, err := StackTensorProducts([]*stp.Operand{a.Operand(0)}, []*stp.Operand{out}, []TensorProductItem{
		{Buffers: NewOperation(0, 1), STP: a},
	})
	require.NoError(t, err)
	assert.True(t, p.Outputs()[0].Equal(out))
}

func TestStackTensorProducts_UnwrittenNilOutput(t *testing.T) {
	a := weightedSum(t, 2)
	_, err := StackTensorProducts([]*stp.Operand{a.Operand(0)}, []*stp.Operand{nil, nil}, []TensorProductItem{
		{Buffers: NewOperation(0, 1), STP: a},
	})
	assert.Error(t, err)
}

func mustOperand(t *testing.T, ndim int, segments []stp.Shape) *stp.Operand {
	t.Helper()
	op, err := stp.OperandFromSegments(ndim, segments)
	require.NoError(t, err)
	return op
}
