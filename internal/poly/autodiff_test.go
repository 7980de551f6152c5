package poly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJVP_LinearOperation(t *testing.T) {
	p := dotPoly(t)
	jvp, remap, err := p.JVP([]bool{true, true})
	require.NoError(t, err)

	assert.Equal(t, 4, jvp.NumInputs(), "primals then tangents")
	assert.Equal(t, 1, jvp.NumOutputs())
	require.Equal(t, 2, jvp.NumOperations())
	assert.Equal(t, NewOperation(2, 1, 4), jvp.Operations()[0].Operation)
	assert.Equal(t, NewOperation(0, 3, 4), jvp.Operations()[1].Operation)

	ins, outs := remap([]int{0, 1}, []int{2})
	assert.Equal(t, []int{0, 1, 0, 1}, ins, "tangents reuse the primal handles")
	assert.Equal(t, []int{2}, outs)
}

func TestJVP_PartialTangents(t *testing.T) {
	p := dotPoly(t)
	jvp, remap, err := p.JVP([]bool{false, true})
	require.NoError(t, err)

	assert.Equal(t, 3, jvp.NumInputs())
	require.Equal(t, 1, jvp.NumOperations())
	assert.Equal(t, NewOperation(0, 2, 3), jvp.Operations()[0].Operation)

	ins, _ := remap([]int{4, 5}, []int{6})
	assert.Equal(t, []int{4, 5, 5}, ins)
}

func TestJVP_ProductRuleOnRepeatedInput(t *testing.T) {
	p := squarePoly(t)
	jvp, _, err := p.JVP([]bool{true})
	require.NoError(t, err)

	// d(x.x) = t.x + x.t: one term per occurrence.
	require.Equal(t, 2, jvp.NumOperations())
	assert.Equal(t, NewOperation(1, 0, 2), jvp.Operations()[0].Operation)
	assert.Equal(t, NewOperation(0, 1, 2), jvp.Operations()[1].Operation)
}

func TestJVP_NoTangents(t *testing.T) {
	p := dotPoly(t)
	jvp, _, err := p.JVP([]bool{false, false})
	require.NoError(t, err)
	assert.Equal(t, 0, jvp.NumOperations())

	_, _, err = p.JVP([]bool{true})
	assert.ErrorIs(t, err, ErrArityMismatch)
}

func TestTranspose_Linear(t *testing.T) {
	p := dotPoly(t)
	tr, remap, err := p.Transpose([]bool{true, false}, []bool{true})
	require.NoError(t, err)

	// Inputs: kept primal x1, then the cotangent; output: grad x0.
	assert.Equal(t, 2, tr.NumInputs())
	assert.Equal(t, 1, tr.NumOutputs())
	require.Equal(t, 1, tr.NumOperations())
	assert.Equal(t, NewOperation(2, 0, 1), tr.Operations()[0].Operation)
	// The contraction itself is untouched.
	assert.True(t, tr.Operations()[0].STP.Equal(p.Operations()[0].STP))

	ins, outs := remap([]int{10, 11}, []int{12})
	assert.Equal(t, []int{11, 12}, ins)
	assert.Equal(t, []int{10}, outs)
}

func TestTranspose_DropsIndependentOperations(t *testing.T) {
	p := twoOutputPoly(t)
	// Output 1 is x0.x0; transposing with respect to x1 keeps only the
	// operation that reads x1.
	tr, _, err := p.Transpose([]bool{false, true}, []bool{true, true})
	require.NoError(t, err)
	require.Equal(t, 1, tr.NumOperations())

	// Without a cotangent for output 0 nothing depends on x1.
	tr, _, err = p.Transpose([]bool{false, true}, []bool{false, true})
	require.NoError(t, err)
	assert.Equal(t, 0, tr.NumOperations())
}

func TestTranspose_NonLinear(t *testing.T) {
	p := squarePoly(t)
	_, _, err := p.Transpose([]bool{true}, []bool{true})
	assert.ErrorIs(t, err, ErrLinearityViolation)
}

func TestBackward_Linear(t *testing.T) {
	p := dotPoly(t)
	bwd, remap, err := p.Backward([]bool{true, true}, []bool{true})
	require.NoError(t, err)

	// Inputs: both primals plus the cotangent; outputs: both gradients.
	assert.Equal(t, 3, bwd.NumInputs())
	assert.Equal(t, 2, bwd.NumOutputs())
	require.Equal(t, 2, bwd.NumOperations())
	assert.Equal(t, NewOperation(3, 1, 2), bwd.Operations()[0].Operation)
	assert.Equal(t, NewOperation(0, 4, 2), bwd.Operations()[1].Operation)

	ins, outs := remap([]int{0, 1}, []int{2})
	assert.Equal(t, []int{0, 1, 2}, ins)
	assert.Equal(t, []int{0, 1}, outs)
}

func TestBackward_RepeatedInput(t *testing.T) {
	p := squarePoly(t)
	bwd, _, err := p.Backward([]bool{true}, []bool{true})
	require.NoError(t, err)

	// grad(x.x) = 2x via two accumulated occurrence terms.
	require.Equal(t, 2, bwd.NumOperations())
	assert.Equal(t, NewOperation(2, 0, 1), bwd.Operations()[0].Operation)
	assert.Equal(t, NewOperation(0, 2, 1), bwd.Operations()[1].Operation)
}

func TestBackward_NoCotangent(t *testing.T) {
	p := dotPoly(t)
	bwd, _, err := p.Backward([]bool{true, true}, []bool{false})
	require.NoError(t, err)
	assert.Equal(t, 0, bwd.NumOperations())
	assert.Equal(t, 2, bwd.NumOutputs(), "gradient outputs stay allocated")
}
