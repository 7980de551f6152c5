package poly

import (
	"fmt"

	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// RemapFunc translates caller-level buffer handles into the buffer order of
// a derived polynomial. Given the handles wired to the original inputs and
// outputs, it returns the handles to wire to the derived polynomial's
// inputs and outputs, in order. Handles are opaque small integers assigned
// by the caller; tangents and cotangents reuse the handle of the buffer
// they shadow.
type RemapFunc func(inputs, outputs []int) (newInputs, newOutputs []int)

// JVP derives the forward-mode directional derivative of the polynomial:
// for every input flagged with a tangent, each occurrence of that input in
// an operation yields one operation with that occurrence replaced by the
// tangent buffer, per the multilinear product rule. The derived polynomial
// reads the primal inputs followed by the tangent buffers of the flagged
// inputs, and writes the tangent of every output.
func (p *SegmentedPolynomial) JVP(hasTangent []bool) (*SegmentedPolynomial, RemapFunc, error) {
	if len(hasTangent) != len(p.inputs) {
		return nil, nil, &stp.ArityError{Expected: len(p.inputs), Actual: len(hasTangent), Details: "tangent flags"}
	}
	numIn := len(p.inputs)
	tangentIndex := make([]int, numIn)
	inputs := cloneOperands(p.inputs)
	for i, ok := range hasTangent {
		tangentIndex[i] = -1
		if ok {
			tangentIndex[i] = len(inputs)
			inputs = append(inputs, p.inputs[i].Clone())
		}
	}
	shift := len(inputs) - numIn

	var operations []TensorProduct
	for _, tp := range p.operations {
		slot, err := tp.Operation.destinationSlot(numIn)
		if err != nil {
			return nil, nil, err
		}
		for s, b := range tp.Operation {
			if s == slot || !hasTangent[b] {
				continue
			}
			op := tp.Operation.Clone()
			op[s] = tangentIndex[b]
			op[slot] += shift
			operations = append(operations, TensorProduct{Operation: op, STP: tp.STP})
		}
	}

	derived, err := New(inputs, p.outputs, operations)
	if err != nil {
		return nil, nil, err
	}
	remap := func(ins, outs []int) ([]int, []int) {
		newIns := append([]int(nil), ins...)
		for i, ok := range hasTangent {
			if ok {
				newIns = append(newIns, ins[i])
			}
		}
		return newIns, append([]int(nil), outs...)
	}
	return derived, remap, nil
}

// Transpose derives the adjoint of a polynomial that is linear in every
// input flagged as an undefined primal: the cotangent flowing into each
// operation's output becomes an input, and the gradient with respect to
// the undefined input becomes the output, with the remaining known inputs
// passed through unchanged. The contraction itself is reused as-is; only
// the slot-to-buffer routing is inverted.
//
// An operation where an undefined primal appears more than once is not
// linear and fails with ErrLinearityViolation.
func (p *SegmentedPolynomial) Transpose(isUndefinedPrimal, hasCotangent []bool) (*SegmentedPolynomial, RemapFunc, error) {
	if len(isUndefinedPrimal) != len(p.inputs) {
		return nil, nil, &stp.ArityError{Expected: len(p.inputs), Actual: len(isUndefinedPrimal), Details: "undefined-primal flags"}
	}
	if len(hasCotangent) != len(p.outputs) {
		return nil, nil, &stp.ArityError{Expected: len(p.outputs), Actual: len(hasCotangent), Details: "cotangent flags"}
	}
	numIn := len(p.inputs)

	keptIndex := make([]int, numIn)
	var inputs []*stp.Operand
	for i, undef := range isUndefinedPrimal {
		keptIndex[i] = -1
		if !undef {
			keptIndex[i] = len(inputs)
			inputs = append(inputs, p.inputs[i].Clone())
		}
	}
	cotIndex := make([]int, len(p.outputs))
	for o, ok := range hasCotangent {
		cotIndex[o] = -1
		if ok {
			cotIndex[o] = len(inputs)
			inputs = append(inputs, p.outputs[o].Clone())
		}
	}
	gradIndex := make([]int, numIn)
	var outputs []*stp.Operand
	for i, undef := range isUndefinedPrimal {
		gradIndex[i] = -1
		if undef {
			gradIndex[i] = len(inputs) + len(outputs)
			outputs = append(outputs, p.inputs[i].Clone())
		}
	}

	var operations []TensorProduct
	for k, tp := range p.operations {
		slot, err := tp.Operation.destinationSlot(numIn)
		if err != nil {
			return nil, nil, err
		}
		undefSlot := -1
		for s, b := range tp.Operation {
			if s == slot || !isUndefinedPrimal[b] {
				continue
			}
			if undefSlot >= 0 {
				return nil, nil, fmt.Errorf("%w: operation %d uses input buffer %d more than once",
					ErrLinearityViolation, k, b)
			}
			undefSlot = s
		}
		if undefSlot < 0 {
			continue // Independent of the undefined primals.
		}
		if cotIndex[tp.Operation[slot]-numIn] < 0 {
			continue // No cotangent flows into this output.
		}
		op := tp.Operation.Clone()
		for s, b := range tp.Operation {
			switch s {
			case undefSlot:
				op[s] = gradIndex[b]
			case slot:
				op[s] = cotIndex[b-numIn]
			default:
				op[s] = keptIndex[b]
			}
		}
		operations = append(operations, TensorProduct{Operation: op, STP: tp.STP})
	}

	derived, err := New(inputs, outputs, operations)
	if err != nil {
		return nil, nil, err
	}
	remap := func(ins, outs []int) ([]int, []int) {
		var newIns, newOuts []int
		for i, undef := range isUndefinedPrimal {
			if !undef {
				newIns = append(newIns, ins[i])
			}
		}
		for o, ok := range hasCotangent {
			if ok {
				newIns = append(newIns, outs[o])
			}
		}
		for i, undef := range isUndefinedPrimal {
			if undef {
				newOuts = append(newOuts, ins[i])
			}
		}
		return newIns, newOuts
	}
	return derived, remap, nil
}

// Backward derives the reverse-mode gradient polynomial: every
// gradient-requiring input becomes an output and every cotangent-supplying
// output becomes an input, with all primal inputs passed through as known
// auxiliary operands. Each occurrence of a gradient-requiring input
// contributes one transposed term, so repeated (non-linear) uses follow the
// product rule without requiring prior symmetrization.
func (p *SegmentedPolynomial) Backward(requiresGradient, hasCotangent []bool) (*SegmentedPolynomial, RemapFunc, error) {
	if len(requiresGradient) != len(p.inputs) {
		return nil, nil, &stp.ArityError{Expected: len(p.inputs), Actual: len(requiresGradient), Details: "gradient flags"}
	}
	if len(hasCotangent) != len(p.outputs) {
		return nil, nil, &stp.ArityError{Expected: len(p.outputs), Actual: len(hasCotangent), Details: "cotangent flags"}
	}
	numIn := len(p.inputs)

	inputs := cloneOperands(p.inputs)
	cotIndex := make([]int, len(p.outputs))
	for o, ok := range hasCotangent {
		cotIndex[o] = -1
		if ok {
			cotIndex[o] = len(inputs)
			inputs = append(inputs, p.outputs[o].Clone())
		}
	}
	gradIndex := make([]int, numIn)
	var outputs []*stp.Operand
	for i, ok := range requiresGradient {
		gradIndex[i] = -1
		if ok {
			gradIndex[i] = len(inputs) + len(outputs)
			outputs = append(outputs, p.inputs[i].Clone())
		}
	}

	var operations []TensorProduct
	for _, tp := range p.operations {
		slot, err := tp.Operation.destinationSlot(numIn)
		if err != nil {
			return nil, nil, err
		}
		if cotIndex[tp.Operation[slot]-numIn] < 0 {
			continue
		}
		for s, b := range tp.Operation {
			if s == slot || !requiresGradient[b] {
				continue
			}
			op := tp.Operation.Clone()
			op[s] = gradIndex[b]
			op[slot] = cotIndex[tp.Operation[slot]-numIn]
			operations = append(operations, TensorProduct{Operation: op, STP: tp.STP})
		}
	}

	derived, err := New(inputs, outputs, operations)
	if err != nil {
		return nil, nil, err
	}
	remap := func(ins, outs []int) ([]int, []int) {
		newIns := append([]int(nil), ins...)
		for o, ok := range hasCotangent {
			if ok {
				newIns = append(newIns, outs[o])
			}
		}
		var newOuts []int
		for i, ok := range requiresGradient {
			if ok {
				newOuts = append(newOuts, ins[i])
			}
		}
		return newIns, newOuts
	}
	return derived, remap, nil
}
