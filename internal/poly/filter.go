package poly

import (
	"fmt"

	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// SelectBuffers keeps the buffers where keep is true, renumbering every
// operation. It fails if an operation references a dropped buffer.
func (p *SegmentedPolynomial) SelectBuffers(keep []bool) (*SegmentedPolynomial, error) {
	if len(keep) != p.NumOperands() {
		return nil, &stp.ArityError{Expected: p.NumOperands(), Actual: len(keep), Details: "buffer mask"}
	}
	remap := make([]int, p.NumOperands())
	var inputs, outputs []*stp.Operand
	for i := range keep {
		remap[i] = -1
		if !keep[i] {
			continue
		}
		if i < len(p.inputs) {
			remap[i] = len(inputs)
			inputs = append(inputs, p.inputs[i].Clone())
		} else {
			outputs = append(outputs, p.outputs[i-len(p.inputs)].Clone())
		}
	}
	nextOut := len(inputs)
	for i := len(p.inputs); i < len(keep); i++ {
		if keep[i] {
			remap[i] = nextOut
			nextOut++
		}
	}
	operations := make([]TensorProduct, len(p.operations))
	for k, tp := range p.operations {
		op := tp.Operation.Clone()
		for s, b := range op {
			if remap[b] < 0 {
				return nil, fmt.Errorf("operation %d references dropped buffer %d", k, b)
			}
			op[s] = remap[b]
		}
		operations[k] = TensorProduct{Operation: op, STP: tp.STP}
	}
	return New(inputs, outputs, operations)
}

// FilterDropUnusedOperands removes every buffer no operation references.
func (p *SegmentedPolynomial) FilterDropUnusedOperands() (*SegmentedPolynomial, error) {
	return p.SelectBuffers(p.UsedOperands())
}

// FilterKeepOutputs physically removes the unselected outputs, changing the
// output arity, and drops the operations feeding them. Inputs are kept even
// if they become unused.
func (p *SegmentedPolynomial) FilterKeepOutputs(keep []bool) (*SegmentedPolynomial, error) {
	trimmed, err := p.ComputeOnly(keep)
	if err != nil {
		return nil, err
	}
	mask := make([]bool, p.NumOperands())
	for i := range p.inputs {
		mask[i] = true
	}
	copy(mask[len(p.inputs):], keep)
	return trimmed.SelectBuffers(mask)
}

// ComputeOnly keeps the buffer layout intact but drops the operations that
// feed unselected outputs, leaving those outputs all-zero on evaluation.
// Callers that need a stable arity across selection masks use this instead
// of FilterKeepOutputs.
func (p *SegmentedPolynomial) ComputeOnly(keep []bool) (*SegmentedPolynomial, error) {
	if len(keep) != len(p.outputs) {
		return nil, &stp.ArityError{Expected: len(p.outputs), Actual: len(keep), Details: "output mask"}
	}
	var operations []TensorProduct
	for _, tp := range p.operations {
		slot, err := tp.Operation.destinationSlot(len(p.inputs))
		if err != nil {
			return nil, err
		}
		if keep[tp.Operation[slot]-len(p.inputs)] {
			operations = append(operations, tp)
		}
	}
	return New(p.inputs, p.outputs, operations)
}
