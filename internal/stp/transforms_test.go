package stp

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidatePaths_MergesDuplicates(t *testing.T) {
	d := MustFromSubscripts(",,")
	for i := 0; i < 3; i++ {
		_, err := d.AddSegment(i, Shape{})
		require.NoError(t, err)
	}
	require.NoError(t, d.AddPath([]int{0, 0, 0}, Scalar(1.0)))
	require.NoError(t, d.AddPath([]int{0, 0, 0}, Scalar(1.0)))
	require.NoError(t, d.AddPath([]int{0, 0, 0}, Scalar(-2.0)))
	require.NoError(t, d.AddPath([]int{0, 0, 0}, Scalar(-2.0)))

	c := d.ConsolidatePaths()
	require.Equal(t, 1, c.NumPaths())
	assert.Equal(t, -2.0, c.Path(0).Coefficients().Item())
	assert.Equal(t, 4, d.NumPaths(), "receiver must stay untouched")
}

func TestConsolidatePaths_MergesAllDuplicates(t *testing.T) {
	// A third duplicate arriving after another selector still merges into
	// the first occurrence.
	d := EmptySegments([]int{2, 1})
	require.NoError(t, d.AddPath([]int{0, 0}, Scalar(1.0)))
	require.NoError(t, d.AddPath([]int{1, 0}, Scalar(10.0)))
	require.NoError(t, d.AddPath([]int{0, 0}, Scalar(2.0)))
	require.NoError(t, d.AddPath([]int{0, 0}, Scalar(4.0)))

	c := d.ConsolidatePaths()
	require.Equal(t, 2, c.NumPaths())
	assert.Equal(t, 7.0, c.Path(0).Coefficients().Item())
	assert.Equal(t, 10.0, c.Path(1).Coefficients().Item())
}

func TestConsolidatePaths_KeepsDistinctSelectors(t *testing.T) {
	d := EmptySegments([]int{2, 1})
	require.NoError(t, d.AddPath([]int{0, 0}, Scalar(1.0)))
	require.NoError(t, d.AddPath([]int{1, 0}, Scalar(2.0)))
	require.NoError(t, d.AddPath([]int{0, 0}, Scalar(3.0)))

	c := d.ConsolidatePaths()
	require.Equal(t, 2, c.NumPaths())
	assert.Equal(t, 4.0, c.Path(0).Coefficients().Item())
	assert.Equal(t, 2.0, c.Path(1).Coefficients().Item())
}

func TestFuse(t *testing.T) {
	a := EmptySegments([]int{2, 1})
	require.NoError(t, a.AddPath([]int{0, 0}, Scalar(1.0)))
	b := EmptySegments([]int{2, 1})
	require.NoError(t, b.AddPath([]int{0, 0}, Scalar(2.0)))
	require.NoError(t, b.AddPath([]int{1, 0}, Scalar(5.0)))

	fused, err := a.Fuse(b)
	require.NoError(t, err)
	require.Equal(t, 2, fused.NumPaths())
	assert.Equal(t, 3.0, fused.Path(0).Coefficients().Item())

	other := EmptySegments([]int{3, 1})
	_, err = a.Fuse(other)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestRemoveZeroPaths(t *testing.T) {
	d := EmptySegments([]int{2, 1})
	require.NoError(t, d.AddPath([]int{0, 0}, Scalar(0.0)))
	require.NoError(t, d.AddPath([]int{1, 0}, Scalar(3.0)))

	c := d.RemoveZeroPaths()
	require.Equal(t, 1, c.NumPaths())
	assert.Equal(t, []int{1, 0}, c.Path(0).Indices())
}

func TestRemoveEmptySegments(t *testing.T) {
	d := MustFromSubscripts("u,u")
	_, err := d.AddSegment(0, Shape{2})
	require.NoError(t, err)
	_, err = d.AddSegment(0, Shape{0})
	require.NoError(t, err)
	_, err = d.AddSegment(0, Shape{3})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{0})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{3})
	require.NoError(t, err)
	require.NoError(t, d.AddPath([]int{2, 1}, Scalar(1.0)))
	require.NoError(t, d.AddPath([]int{1, 0}, Scalar(1.0))) // Selects empty segments.

	c := d.RemoveEmptySegments()
	assert.Equal(t, 2, c.Operand(0).NumSegments())
	assert.Equal(t, 1, c.Operand(1).NumSegments())
	require.Equal(t, 1, c.NumPaths())
	assert.Equal(t, []int{1, 0}, c.Path(0).Indices(), "surviving path is remapped")
}

func TestNormalizePathsForOperand(t *testing.T) {
	d := EmptySegments([]int{1, 2})
	require.NoError(t, d.AddPath([]int{0, 1}, Scalar(3.0)))
	require.NoError(t, d.AddPath([]int{0, 0}, Scalar(4.0)))

	n := d.NormalizePathsForOperand(-1)
	require.Equal(t, 2, n.NumPaths())
	// Sorted by the last operand's segment index, each segment carrying
	// unit squared mass.
	assert.Equal(t, []int{0, 0}, n.Path(0).Indices())
	assert.InDelta(t, 1.0, n.Path(0).Coefficients().Item(), 1e-12)
	assert.InDelta(t, 1.0, n.Path(1).Coefficients().Item(), 1e-12)

	// Scaling a segment's paths does not change the normalized form.
	s := EmptySegments([]int{1, 2})
	require.NoError(t, s.AddPath([]int{0, 1}, Scalar(-1.5)))
	require.NoError(t, s.AddPath([]int{0, 0}, Scalar(2.0)))
	sn := s.NormalizePathsForOperand(-1)
	assert.True(t, n.Path(0).Coefficients().AllClose(sn.Path(0).Coefficients(), 1e-12))
}

func TestNormalizePathsForOperand_SharedSegmentMass(t *testing.T) {
	d := EmptySegments([]int{2, 1})
	require.NoError(t, d.AddPath([]int{0, 0}, Scalar(1.0)))
	require.NoError(t, d.AddPath([]int{1, 0}, Scalar(1.0)))

	n := d.NormalizePathsForOperand(-1)
	// Both paths feed segment 0 of the last operand, so the joint mass is
	// normalized: each coefficient becomes 1/sqrt(2).
	assert.InDelta(t, 1/math.Sqrt2, n.Path(0).Coefficients().Item(), 1e-12)
	assert.InDelta(t, 1/math.Sqrt2, n.Path(1).Coefficients().Item(), 1e-12)
}

func TestPermuteSegments(t *testing.T) {
	d := MustFromSubscripts("u,u")
	_, err := d.AddSegment(0, Shape{2})
	require.NoError(t, err)
	_, err = d.AddSegment(0, Shape{3})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{3})
	require.NoError(t, err)
	require.NoError(t, d.AddPath([]int{1, 0}, Scalar(1.0)))

	p, err := d.PermuteSegments(0, []int{1, 0})
	require.NoError(t, err)
	assert.True(t, p.Operand(0).Segment(0).Equal(Shape{3}))
	assert.Equal(t, []int{0, 0}, p.Path(0).Indices())

	_, err = d.PermuteSegments(0, []int{0, 0})
	assert.Error(t, err)
	_, err = d.PermuteSegments(0, []int{0})
	assert.ErrorIs(t, err, ErrArityMismatch)
}

func TestPadOperand(t *testing.T) {
	d := MustFromSubscripts("u,u")
	_, err := d.AddSegment(0, Shape{2})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{2})
	require.NoError(t, err)
	require.NoError(t, d.AddPath([]int{0, 0}, Scalar(1.0)))

	p, err := d.PadOperand(0, []Shape{{4}, {4}}, []Shape{{5}})
	require.NoError(t, err)
	assert.Equal(t, 4, p.Operand(0).NumSegments())
	assert.Equal(t, []int{2, 0}, p.Path(0).Indices())
	assert.True(t, p.Operand(0).Segment(3).Equal(Shape{5}))
}

func TestSymmetrizeOperands_ScalarPaths(t *testing.T) {
	// Two interchangeable inputs: one asymmetric path splits into the two
	// orderings at half weight.
	d := EmptySegments([]int{2, 2, 1})
	require.NoError(t, d.AddPath([]int{0, 1, 0}, Scalar(1.0)))

	s, err := d.SymmetrizeOperands([]int{0, 1})
	require.NoError(t, err)
	sorted := s.SortPaths()
	require.Equal(t, 2, sorted.NumPaths())
	assert.Equal(t, []int{0, 1, 0}, sorted.Path(0).Indices())
	assert.Equal(t, 0.5, sorted.Path(0).Coefficients().Item())
	assert.Equal(t, []int{1, 0, 0}, sorted.Path(1).Indices())
	assert.Equal(t, 0.5, sorted.Path(1).Coefficients().Item())
}

func TestSymmetrizeOperands_FixedPointMergesBack(t *testing.T) {
	d := EmptySegments([]int{2, 2, 1})
	require.NoError(t, d.AddPath([]int{1, 1, 0}, Scalar(3.0)))

	s, err := d.SymmetrizeOperands([]int{0, 1})
	require.NoError(t, err)
	require.Equal(t, 1, s.NumPaths())
	assert.Equal(t, 3.0, s.Path(0).Coefficients().Item())
}

func TestSymmetrizeOperands_CoefficientAxes(t *testing.T) {
	// "iu,ju,u+ij": exchanging the first two operands also swaps the i and
	// j axes of the coefficients.
	d := MustFromSubscripts("iu,ju,u+ij")
	_, err := d.AddSegment(0, Shape{2, 1})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{2, 1})
	require.NoError(t, err)
	_, err = d.AddSegment(2, Shape{1})
	require.NoError(t, err)
	coeff, err := NewCoefficients(Shape{2, 2}, []float64{0, 1, 0, 0})
	require.NoError(t, err)
	require.NoError(t, d.AddPath([]int{0, 0, 0}, coeff))

	s, err := d.SymmetrizeOperands([]int{0, 1})
	require.NoError(t, err)
	require.Equal(t, 1, s.NumPaths())
	want, err := NewCoefficients(Shape{2, 2}, []float64{0, 0.5, 0.5, 0})
	require.NoError(t, err)
	assert.True(t, s.Path(0).Coefficients().Equal(want))
}

func TestSymmetrizeOperands_RejectsMismatchedSegments(t *testing.T) {
	d := MustFromSubscripts("u,u,u")
	_, err := d.AddSegment(0, Shape{2})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{3})
	require.NoError(t, err)
	_, err = d.AddSegment(2, Shape{2})
	require.NoError(t, err)

	_, err = d.SymmetrizeOperands([]int{0, 1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestUnsymmetrizeOperands_RoundTrip(t *testing.T) {
	d := EmptySegments([]int{3, 3, 1})
	require.NoError(t, d.AddPath([]int{0, 1, 0}, Scalar(1.0)))
	require.NoError(t, d.AddPath([]int{2, 2, 0}, Scalar(-4.0)))

	s, err := d.SymmetrizeOperands([]int{0, 1})
	require.NoError(t, err)

	u, err := s.UnsymmetrizeOperands([]int{0, 1}, 1e-12)
	require.NoError(t, err)
	sorted := u.SortPaths()
	require.Equal(t, 2, sorted.NumPaths())
	// The orbit representative carries the full weight again.
	assert.Equal(t, []int{0, 1, 0}, sorted.Path(0).Indices())
	assert.Equal(t, 1.0, sorted.Path(0).Coefficients().Item())
	assert.Equal(t, []int{2, 2, 0}, sorted.Path(1).Indices())
	assert.Equal(t, -4.0, sorted.Path(1).Coefficients().Item())
}

func TestUnsymmetrizeOperands_RejectsAsymmetric(t *testing.T) {
	d := EmptySegments([]int{2, 2, 1})
	require.NoError(t, d.AddPath([]int{0, 1, 0}, Scalar(1.0)))
	require.NoError(t, d.AddPath([]int{1, 0, 0}, Scalar(2.0)))

	_, err := d.UnsymmetrizeOperands([]int{0, 1}, 1e-12)
	assert.ErrorIs(t, err, ErrNotSymmetrizable)
}

func TestAppendModesToAllOperands(t *testing.T) {
	d := EmptySegments([]int{1, 1})
	require.NoError(t, d.AddPath([]int{0, 0}, Scalar(1.0)))

	g, err := d.AppendModesToAllOperands('u', 4)
	require.NoError(t, err)
	assert.Equal(t, "u,u", g.Subscripts().String())
	assert.True(t, g.Operand(0).Segment(0).Equal(Shape{4}))
	assert.Equal(t, 1, g.NumPaths())

	_, err = g.AppendModesToAllOperands('u', 2)
	assert.Error(t, err, "mode already in use")
	_, err = g.AppendModesToAllOperands('v', 0)
	assert.Error(t, err)
}

func TestSqueezeModes(t *testing.T) {
	d := MustFromSubscripts("uv,u,v")
	_, err := d.AddSegment(0, Shape{2, 1})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{2})
	require.NoError(t, err)
	_, err = d.AddSegment(2, Shape{1})
	require.NoError(t, err)
	require.NoError(t, d.AddPath([]int{0, 0, 0}, Scalar(1.0)))

	s := d.SqueezeModes()
	assert.Equal(t, "u,u,", s.Subscripts().String())
	assert.True(t, s.Operand(0).Segment(0).Equal(Shape{2}))
	assert.Equal(t, 0, s.Operand(2).NDim())
}

func TestFlattenCoefficientModes(t *testing.T) {
	// "iu,u+i": flattening i splits the 3x2 segment into three 2-segments
	// and slices the coefficient vector into scalars.
	d := MustFromSubscripts("iu,u+i")
	_, err := d.AddSegment(0, Shape{3, 2})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{2})
	require.NoError(t, err)
	coeff, err := NewCoefficients(Shape{3}, []float64{1, 0, -2})
	require.NoError(t, err)
	require.NoError(t, d.AddPath([]int{0, 0}, coeff))

	f, err := d.FlattenCoefficientModes()
	require.NoError(t, err)
	assert.Equal(t, "u,u", f.Subscripts().String())
	assert.Equal(t, 3, f.Operand(0).NumSegments())
	require.Equal(t, 3, f.NumPaths())
	assert.Equal(t, []int{0, 0}, f.Path(0).Indices())
	assert.Equal(t, 1.0, f.Path(0).Coefficients().Item())
	assert.Equal(t, []int{2, 0}, f.Path(2).Indices())
	assert.Equal(t, -2.0, f.Path(2).Coefficients().Item())
}

func TestFlattenCoefficientModes_RequiresLeadingModes(t *testing.T) {
	d := MustFromSubscripts("ui,u+i")
	_, err := d.AddSegment(0, Shape{2, 3})
	require.NoError(t, err)
	_, err = d.AddSegment(1, Shape{2})
	require.NoError(t, err)
	coeff := Zeros(Shape{3})
	require.NoError(t, d.AddPath([]int{0, 0}, coeff))

	_, err = d.FlattenCoefficientModes()
	assert.Error(t, err)
}

func TestFlattenCoefficientModes_NoSharedModes(t *testing.T) {
	d := buildOuterProduct(t)
	f, err := d.FlattenCoefficientModes()
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(d.String(), f.String()))
}
