package poly

import (
	"errors"

	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// Error classes surfaced by polynomial passes. Shape and arity failures
// reuse the contraction-level sentinels so callers can branch uniformly.
var (
	// ErrShapeMismatch reports a buffer whose size disagrees with the
	// contraction operand it is wired to.
	ErrShapeMismatch = stp.ErrShapeMismatch

	// ErrArityMismatch reports a mask, index tuple or buffer list whose
	// length disagrees with the declared operand count.
	ErrArityMismatch = stp.ErrArityMismatch

	// ErrNotSymmetrizable reports path coefficients that admit no symmetric
	// decomposition over repeated operands.
	ErrNotSymmetrizable = stp.ErrNotSymmetrizable

	// ErrLinearityViolation reports a transpose request on an operation that
	// is not linear in an undefined-primal input. This is an algebraic
	// precondition failure, not a data error.
	ErrLinearityViolation = errors.New("non-linear operand requires no transpose rule")
)
