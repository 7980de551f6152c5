package stp

import (
	"errors"
	"fmt"
)

// Error classes of the descriptor algebra. Every validation failure wraps
// exactly one of these sentinels so callers can branch with errors.Is.
var (
	// ErrShapeMismatch reports a coefficient tensor or segment whose shape
	// disagrees with the subscript-implied shape.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrArityMismatch reports an index tuple or buffer list whose length
	// disagrees with the declared operand count.
	ErrArityMismatch = errors.New("arity mismatch")

	// ErrNotSymmetrizable reports path coefficients that admit no symmetric
	// decomposition over a group of interchangeable operands.
	ErrNotSymmetrizable = errors.New("not reducible to a symmetric form")
)

// ShapeError carries the context of a shape validation failure.
type ShapeError struct {
	Operand  int    // Operand index, or -1 for the coefficient tensor.
	Expected Shape  // Shape implied by the subscripts.
	Actual   Shape  // Shape that was supplied.
	Details  string // Additional details.
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	where := fmt.Sprintf("operand %d", e.Operand)
	if e.Operand < 0 {
		where = "coefficients"
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: expected %v, got %v (%s)", ErrShapeMismatch, where, e.Expected, e.Actual, e.Details)
	}
	return fmt.Sprintf("%s: %s: expected %v, got %v", ErrShapeMismatch, where, e.Expected, e.Actual)
}

// Unwrap makes the error match ErrShapeMismatch under errors.Is.
func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// ArityError carries the context of an arity validation failure.
type ArityError struct {
	Expected int
	Actual   int
	Details  string
}

// Error implements the error interface.
func (e *ArityError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: expected %d, got %d (%s)", ErrArityMismatch, e.Expected, e.Actual, e.Details)
	}
	return fmt.Sprintf("%s: expected %d, got %d", ErrArityMismatch, e.Expected, e.Actual)
}

// Unwrap makes the error match ErrArityMismatch under errors.Is.
func (e *ArityError) Unwrap() error { return ErrArityMismatch }
