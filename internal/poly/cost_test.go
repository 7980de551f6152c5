package poly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// elementwisePoly computes out_u = x_u * y_u over length-2 vectors.
func elementwisePoly(t *testing.T) *SegmentedPolynomial {
	t.Helper()
	d := stp.MustFromSubscripts("u,u,u")
	for i := 0; i < 3; i++ {
		_, err := d.AddSegment(i, stp.Shape{2})
		require.NoError(t, err)
	}
	require.NoError(t, d.AddPath([]int{0, 0, 0}, stp.Scalar(1.0)))
	p, err := EvalLastOperand(d)
	require.NoError(t, err)
	return p
}

func TestFlop(t *testing.T) {
	p := elementwisePoly(t)
	flop, err := p.Flop(1)
	require.NoError(t, err)
	assert.Equal(t, 4, flop, "2 ops per lane, 2 lanes")

	flop, err = p.Flop(50)
	require.NoError(t, err)
	assert.Equal(t, 200, flop)
}

func TestMemory(t *testing.T) {
	p := elementwisePoly(t)
	mem, err := p.Memory([]int{100, 100, 100})
	require.NoError(t, err)
	assert.Equal(t, 100*(2+2+2), mem)

	_, err = p.Memory([]int{100})
	assert.ErrorIs(t, err, ErrArityMismatch)
}
