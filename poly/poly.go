// Copyright 2026 cuEquivariance-Go Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package poly provides the public API for segmented polynomials.
//
// A segmented polynomial couples a pool of named input and output buffers
// with a list of tensor-product operations. Each operation routes buffers
// into the slots of a segmented tensor product descriptor; exactly one slot
// per operation writes an output buffer, and results accumulate when
// several operations target the same output.
//
// Polynomials are values: every transform (Consolidate, JVP, Transpose,
// Backward, Stack, ...) returns a new polynomial and leaves its receiver
// untouched.
package poly

import (
	ipoly "github.com/LiamZhang100/cuEquivariance/internal/poly"
	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// Sentinel errors returned (possibly wrapped) by polynomial operations.
var (
	ErrShapeMismatch      = ipoly.ErrShapeMismatch
	ErrArityMismatch      = ipoly.ErrArityMismatch
	ErrNotSymmetrizable   = ipoly.ErrNotSymmetrizable
	ErrLinearityViolation = ipoly.ErrLinearityViolation
)

// Drop, used in a Concatenate buffer map, discards that buffer of the
// source polynomial. Only unused buffers may be dropped.
const Drop = ipoly.Drop

// Operation maps the slots of a descriptor to global buffer indices.
type Operation = ipoly.Operation

// TensorProduct pairs an operation with its descriptor.
type TensorProduct = ipoly.TensorProduct

// SegmentedPolynomial is a buffer pool plus tensor-product operations.
type SegmentedPolynomial = ipoly.SegmentedPolynomial

// RemapFunc translates caller-level buffer handles into a derived
// polynomial's buffer order.
type RemapFunc = ipoly.RemapFunc

// ConcatItem is one source polynomial of a Concatenate with its buffer
// map.
type ConcatItem = ipoly.ConcatItem

// TensorProductItem is one descriptor of a StackTensorProducts with its
// buffer routing.
type TensorProductItem = ipoly.TensorProductItem

// New creates a polynomial, validating every operation against the buffer
// pool.
func New(inputs, outputs []*stp.Operand, operations []TensorProduct) (*SegmentedPolynomial, error) {
	return ipoly.New(inputs, outputs, operations)
}

// NewOperation creates an operation from slot buffer indices.
func NewOperation(buffers ...int) Operation {
	return ipoly.NewOperation(buffers...)
}

// EvalLastOperand wraps one descriptor as a polynomial whose last operand
// is the single output.
func EvalLastOperand(d *stp.SegmentedTensorProduct) (*SegmentedPolynomial, error) {
	return ipoly.EvalLastOperand(d)
}

// Stack concatenates several polynomials sharing a buffer layout. Buffers
// at positions flagged true are concatenated segment-wise; the rest must
// be identical across all polynomials and are shared.
func Stack(polys []*SegmentedPolynomial, stacked []bool) (*SegmentedPolynomial, error) {
	return ipoly.Stack(polys, stacked)
}

// Concatenate merges polynomials into an explicit target buffer pool, with
// per-item maps from source buffers to target buffers (or Drop).
func Concatenate(inputs, outputs []*stp.Operand, items []ConcatItem) (*SegmentedPolynomial, error) {
	return ipoly.Concatenate(inputs, outputs, items)
}

// StackTensorProducts builds a polynomial directly from descriptors routed
// into a shared buffer pool. Nil outputs are inferred by concatenating the
// destination operands of the items that write them.
func StackTensorProducts(inputs, outputs []*stp.Operand, items []TensorProductItem) (*SegmentedPolynomial, error) {
	return ipoly.StackTensorProducts(inputs, outputs, items)
}
