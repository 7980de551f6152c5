// Copyright 2026 cuEquivariance-Go Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package stp provides the public API for segmented tensor products.
//
// A segmented tensor product is a symbolic description of a multilinear
// contraction over block-partitioned operands. Each operand is a flat
// buffer split into segments (small dense blocks with per-segment shapes),
// and each path selects one segment per operand together with a dense
// coefficient tensor. Subscripts in einsum style bind segment axes and
// coefficient axes to shared modes:
//
//	d := stp.MustFromSubscripts("uv,u,v")
//	d.AddSegment(0, stp.Shape{2, 3})
//	d.AddSegment(1, stp.Shape{2})
//	d.AddSegment(2, stp.Shape{3})
//	err := d.AddPath([]int{0, 0, 0}, stp.Scalar(1.0))
//
// Descriptors are immutable once built into polynomials; every transform
// returns a new descriptor.
package stp

import (
	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// Sentinel errors returned (possibly wrapped) by descriptor operations.
var (
	ErrShapeMismatch    = stp.ErrShapeMismatch
	ErrArityMismatch    = stp.ErrArityMismatch
	ErrNotSymmetrizable = stp.ErrNotSymmetrizable
)

// NewSegment, passed as a path index, appends a fresh segment to that
// operand sized from the path's resolved mode extents.
const NewSegment = stp.NewSegment

// Shape is the per-segment block shape, one extent per subscript mode.
type Shape = stp.Shape

// Subscripts binds operand axes and coefficient axes to named modes, e.g.
// "uvw,iu,jv,kw+ijk".
type Subscripts = stp.Subscripts

// Operand is an ordered list of segment shapes sharing one rank.
type Operand = stp.Operand

// Path selects one segment per operand and carries a dense coefficient
// tensor over the coefficient modes.
type Path = stp.Path

// Coefficients is a small dense float64 tensor.
type Coefficients = stp.Coefficients

// SegmentedTensorProduct is the descriptor: subscripts, operands, paths.
type SegmentedTensorProduct = stp.SegmentedTensorProduct

// ShapeError reports a block or coefficient shape conflict.
type ShapeError = stp.ShapeError

// ArityError reports a wrong number of operands, indices, or flags.
type ArityError = stp.ArityError

// FromSubscripts creates an empty descriptor from a subscripts string.
func FromSubscripts(s string) (*SegmentedTensorProduct, error) {
	return stp.FromSubscripts(s)
}

// MustFromSubscripts is FromSubscripts panicking on error, for statically
// known subscripts.
func MustFromSubscripts(s string) *SegmentedTensorProduct {
	return stp.MustFromSubscripts(s)
}

// EmptySegments creates a scalar-mode descriptor with the given number of
// rank-0 segments per operand.
func EmptySegments(numSegments []int) *SegmentedTensorProduct {
	return stp.EmptySegments(numSegments)
}

// ParseSubscripts parses a subscripts string such as "uv,iu,jv+ij".
func ParseSubscripts(s string) (Subscripts, error) {
	return stp.ParseSubscripts(s)
}

// NewOperand creates an empty operand of the given rank.
func NewOperand(ndim int) *Operand {
	return stp.NewOperand(ndim)
}

// EmptySegmentsOperand creates a scalar-mode operand with n rank-0
// segments.
func EmptySegmentsOperand(n int) *Operand {
	return stp.EmptySegmentsOperand(n)
}

// OperandFromSegments creates an operand of the given rank from segment
// shapes.
func OperandFromSegments(ndim int, segments []Shape) (*Operand, error) {
	return stp.OperandFromSegments(ndim, segments)
}

// NewPath creates a path from segment indices and coefficients.
func NewPath(indices []int, coefficients Coefficients) Path {
	return stp.NewPath(indices, coefficients)
}

// NewCoefficients creates a coefficient tensor from a shape and row-major
// data.
func NewCoefficients(shape Shape, data []float64) (Coefficients, error) {
	return stp.NewCoefficients(shape, data)
}

// Scalar creates a rank-0 coefficient tensor holding v.
func Scalar(v float64) Coefficients {
	return stp.Scalar(v)
}

// Zeros creates a zero-filled coefficient tensor of the given shape.
func Zeros(shape Shape) Coefficients {
	return stp.Zeros(shape)
}
