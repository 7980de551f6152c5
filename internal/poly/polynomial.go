package poly

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// TensorProduct pairs an operation with the segmented contraction it
// dispatches: the operation routes the polynomial's buffers into the
// contraction's operand slots.
type TensorProduct struct {
	Operation Operation
	STP       *stp.SegmentedTensorProduct
}

// SegmentedPolynomial is a bipartite DAG over a fixed pool of segmented
// input and output buffers: a list of (operation, contraction) pairs, each
// reading input buffers and accumulating into one output buffer.
//
// Polynomials are immutable value objects: every pass returns a new
// instance and instances can be shared freely across goroutines. Equality
// is defined over the consolidated form.
type SegmentedPolynomial struct {
	inputs     []*stp.Operand
	outputs    []*stp.Operand
	operations []TensorProduct
}

// New creates a polynomial and validates every operation against the buffer
// pool: slot arity, buffer ranges, a single destination per operation, and
// buffer sizes matching the contraction operand sizes.
func New(inputs, outputs []*stp.Operand, operations []TensorProduct) (*SegmentedPolynomial, error) {
	p := &SegmentedPolynomial{
		inputs:     cloneOperands(inputs),
		outputs:    cloneOperands(outputs),
		operations: cloneOperations(operations),
	}
	for k, tp := range p.operations {
		if len(tp.Operation) != tp.STP.NumOperands() {
			return nil, &stp.ArityError{Expected: tp.STP.NumOperands(), Actual: len(tp.Operation),
				Details: fmt.Sprintf("operation %d buffer tuple", k)}
		}
		if _, err := tp.Operation.destinationSlot(len(p.inputs)); err != nil {
			return nil, err
		}
		for s, b := range tp.Operation {
			if b < 0 || b >= p.NumOperands() {
				return nil, fmt.Errorf("operation %d: buffer index %d out of range [0, %d)", k, b, p.NumOperands())
			}
			buffer := p.Operand(b)
			operand := tp.STP.Operand(s)
			if buffer.Size() != operand.Size() {
				return nil, &stp.ShapeError{Operand: s,
					Expected: stp.Shape{buffer.Size()}, Actual: stp.Shape{operand.Size()},
					Details: fmt.Sprintf("operation %d: buffer %d size", k, b)}
			}
		}
	}
	return p, nil
}

// EvalLastOperand promotes a single contraction into a polynomial whose
// inputs are all but the last operand and whose single output is the last.
func EvalLastOperand(d *stp.SegmentedTensorProduct) (*SegmentedPolynomial, error) {
	n := d.NumOperands()
	if n == 0 {
		return nil, &stp.ArityError{Expected: 1, Actual: 0, Details: "contraction operands"}
	}
	operands := d.Operands()
	op := make(Operation, n)
	for i := range op {
		op[i] = i
	}
	return New(operands[:n-1], operands[n-1:], []TensorProduct{{Operation: op, STP: d}})
}

// Clone returns a deep copy.
func (p *SegmentedPolynomial) Clone() *SegmentedPolynomial {
	return &SegmentedPolynomial{
		inputs:     cloneOperands(p.inputs),
		outputs:    cloneOperands(p.outputs),
		operations: cloneOperations(p.operations),
	}
}

// NumInputs returns the number of input buffers.
func (p *SegmentedPolynomial) NumInputs() int { return len(p.inputs) }

// NumOutputs returns the number of output buffers.
func (p *SegmentedPolynomial) NumOutputs() int { return len(p.outputs) }

// NumOperands returns the total number of buffers.
func (p *SegmentedPolynomial) NumOperands() int { return len(p.inputs) + len(p.outputs) }

// NumOperations returns the number of (operation, contraction) pairs.
func (p *SegmentedPolynomial) NumOperations() int { return len(p.operations) }

// Inputs returns copies of the input buffers.
func (p *SegmentedPolynomial) Inputs() []*stp.Operand { return cloneOperands(p.inputs) }

// Outputs returns copies of the output buffers.
func (p *SegmentedPolynomial) Outputs() []*stp.Operand { return cloneOperands(p.outputs) }

// Operand returns a copy of global buffer i (inputs first, then outputs).
func (p *SegmentedPolynomial) Operand(i int) *stp.Operand {
	if i < len(p.inputs) {
		return p.inputs[i].Clone()
	}
	return p.outputs[i-len(p.inputs)].Clone()
}

// Operands returns copies of all buffers, inputs first.
func (p *SegmentedPolynomial) Operands() []*stp.Operand {
	return append(cloneOperands(p.inputs), cloneOperands(p.outputs)...)
}

// Operations returns a copy of the operation list.
func (p *SegmentedPolynomial) Operations() []TensorProduct { return cloneOperations(p.operations) }

// UsedOperands returns, per buffer, whether any operation references it.
func (p *SegmentedPolynomial) UsedOperands() []bool {
	used := make([]bool, p.NumOperands())
	for _, tp := range p.operations {
		for _, b := range tp.Operation {
			used[b] = true
		}
	}
	return used
}

// UsedInputs returns the input slice of UsedOperands.
func (p *SegmentedPolynomial) UsedInputs() []bool {
	return p.UsedOperands()[:len(p.inputs)]
}

// UsedOutputs returns the output slice of UsedOperands.
func (p *SegmentedPolynomial) UsedOutputs() []bool {
	return p.UsedOperands()[len(p.inputs):]
}

// Equal reports semantic equality: both polynomials consolidate to the same
// structure.
func (p *SegmentedPolynomial) Equal(other *SegmentedPolynomial) bool {
	return p.Consolidate().structuralEqual(other.Consolidate())
}

func (p *SegmentedPolynomial) structuralEqual(other *SegmentedPolynomial) bool {
	if len(p.inputs) != len(other.inputs) || len(p.outputs) != len(other.outputs) ||
		len(p.operations) != len(other.operations) {
		return false
	}
	for i := range p.inputs {
		if !p.inputs[i].Equal(other.inputs[i]) {
			return false
		}
	}
	for i := range p.outputs {
		if !p.outputs[i].Equal(other.outputs[i]) {
			return false
		}
	}
	for i := range p.operations {
		if !p.operations[i].Operation.Equal(other.operations[i].Operation) ||
			!p.operations[i].STP.Equal(other.operations[i].STP) {
			return false
		}
	}
	return true
}

// Compare defines a deterministic total order over consolidated forms.
func (p *SegmentedPolynomial) Compare(other *SegmentedPolynomial) int {
	return strings.Compare(p.Consolidate().String(), other.Consolidate().String())
}

// String returns a human-readable summary.
func (p *SegmentedPolynomial) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SegmentedPolynomial(%d inputs, %d outputs)", len(p.inputs), len(p.outputs))
	for _, tp := range p.operations {
		fmt.Fprintf(&b, "\n  %s %s", tp.Operation, tp.STP)
	}
	return b.String()
}

// Hash returns a content hash of the consolidated form, suitable as a
// memoization key: semantically equal polynomials hash identically.
func (p *SegmentedPolynomial) Hash() string {
	c := p.Consolidate()
	var b strings.Builder
	for _, op := range c.inputs {
		b.WriteString(op.String())
	}
	b.WriteString("->")
	for _, op := range c.outputs {
		b.WriteString(op.String())
	}
	for _, tp := range c.operations {
		b.WriteString(tp.Operation.String())
		b.WriteString(tp.STP.String())
	}
	h := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(h[:])
}

func cloneOperands(ops []*stp.Operand) []*stp.Operand {
	out := make([]*stp.Operand, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}

func cloneOperations(ops []TensorProduct) []TensorProduct {
	out := make([]TensorProduct, len(ops))
	for i, tp := range ops {
		out[i] = TensorProduct{Operation: tp.Operation.Clone(), STP: tp.STP}
	}
	return out
}
