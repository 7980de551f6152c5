// Copyright 2026 cuEquivariance-Go Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package eval provides the public API for executing segmented polynomials
// on flat float64 buffers.
//
//	out, err := eval.EvaluateBatch(p, inputs, 32, eval.Options{
//		Parallel: eval.DefaultConfig(),
//	})
package eval

import (
	ieval "github.com/LiamZhang100/cuEquivariance/internal/eval"
	"github.com/LiamZhang100/cuEquivariance/internal/parallel"
	"github.com/LiamZhang100/cuEquivariance/internal/poly"
)

// ErrImplUnavailable reports that the requested implementation is not
// built into this binary.
var ErrImplUnavailable = ieval.ErrImplUnavailable

// Impl selects the execution engine.
type Impl = ieval.Impl

// Execution engines.
const (
	ImplAuto        Impl = ieval.ImplAuto
	ImplReference   Impl = ieval.ImplReference
	ImplAccelerated Impl = ieval.ImplAccelerated
)

// Options configures an evaluation.
type Options = ieval.Options

// Config controls how batch rows are split across workers.
type Config = parallel.Config

// DefaultConfig returns a worker configuration based on CPU count.
func DefaultConfig() Config {
	return parallel.DefaultConfig()
}

// Evaluate runs the polynomial on a single batch row.
func Evaluate(p *poly.SegmentedPolynomial, inputs [][]float64, opts Options) ([][]float64, error) {
	return ieval.Evaluate(p, inputs, opts)
}

// EvaluateBatch runs the polynomial over batch rows, sharing unbatched
// inputs across rows. See Options for gather and scatter indexing.
func EvaluateBatch(p *poly.SegmentedPolynomial, inputs [][]float64, batch int, opts Options) ([][]float64, error) {
	return ieval.EvaluateBatch(p, inputs, batch, opts)
}
