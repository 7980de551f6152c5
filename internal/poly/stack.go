package poly

import (
	"fmt"

	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// Drop marks a source buffer that has no counterpart in the target
// polynomial of Concatenate. A dropped buffer must be unused.
const Drop = -1

// Stack combines polynomials of identical arity into one. Buffer positions
// flagged stacked get the segment-wise concatenation of the sources'
// buffers; the remaining positions must hold identical buffers across all
// sources and are shared. Operations are carried over with their segment
// selectors shifted onto the stacked buffers.
func Stack(polys []*SegmentedPolynomial, stacked []bool) (*SegmentedPolynomial, error) {
	if len(polys) == 0 {
		return nil, fmt.Errorf("cannot stack zero polynomials")
	}
	first := polys[0]
	if len(stacked) != first.NumOperands() {
		return nil, &stp.ArityError{Expected: first.NumOperands(), Actual: len(stacked), Details: "stacked-position flags"}
	}
	for _, q := range polys[1:] {
		if q.NumInputs() != first.NumInputs() || q.NumOutputs() != first.NumOutputs() {
			return nil, &stp.ArityError{Expected: first.NumOperands(), Actual: q.NumOperands(), Details: "stacked polynomial arity"}
		}
	}

	// Build the target buffer pool.
	operands := make([]*stp.Operand, first.NumOperands())
	for b := range operands {
		if !stacked[b] {
			for _, q := range polys[1:] {
				if !q.Operand(b).Equal(first.Operand(b)) {
					return nil, &stp.ShapeError{Operand: b, Expected: stp.Shape{first.Operand(b).Size()},
						Actual: stp.Shape{q.Operand(b).Size()}, Details: "shared buffer must be identical across stacked polynomials"}
				}
			}
			operands[b] = first.Operand(b)
			continue
		}
		parts := make([]*stp.Operand, len(polys))
		for j, q := range polys {
			parts[j] = q.Operand(b)
		}
		combined, err := stp.ConcatOperands(parts)
		if err != nil {
			return nil, fmt.Errorf("buffer %d: %w", b, err)
		}
		operands[b] = combined
	}

	var operations []TensorProduct
	for k, q := range polys {
		for _, tp := range q.Operations() {
			d := tp.STP
			for s, b := range tp.Operation {
				if !stacked[b] {
					continue
				}
				var before, after []stp.Shape
				for j, r := range polys {
					segs := r.Operand(b).Segments()
					if j < k {
						before = append(before, segs...)
					} else if j > k {
						after = append(after, segs...)
					}
				}
				var err error
				d, err = d.PadOperand(s, before, after)
				if err != nil {
					return nil, err
				}
			}
			operations = append(operations, TensorProduct{Operation: tp.Operation, STP: d})
		}
	}
	return New(operands[:first.NumInputs()], operands[first.NumInputs():], operations)
}

// ConcatItem is one source polynomial of Concatenate together with the map
// from its global buffer indices to the target's (Drop removes a buffer).
type ConcatItem struct {
	Poly      *SegmentedPolynomial
	BufferMap []int
}

// Concatenate merges polynomials that read from a shared input pool and
// contribute disjoint outputs into one polynomial over the given target
// buffers. Each item's map must preserve buffer roles and sizes; a dropped
// buffer must be unused by the source.
func Concatenate(inputs, outputs []*stp.Operand, items []ConcatItem) (*SegmentedPolynomial, error) {
	numIn := len(inputs)
	var operations []TensorProduct
	for k, item := range items {
		q := item.Poly
		if len(item.BufferMap) != q.NumOperands() {
			return nil, &stp.ArityError{Expected: q.NumOperands(), Actual: len(item.BufferMap),
				Details: fmt.Sprintf("item %d buffer map", k)}
		}
		used := q.UsedOperands()
		target := func(b int) *stp.Operand {
			if b < numIn {
				return inputs[b]
			}
			return outputs[b-numIn]
		}
		for sb, tb := range item.BufferMap {
			if tb == Drop {
				if used[sb] {
					return nil, fmt.Errorf("item %d: buffer %d is used and cannot be dropped", k, sb)
				}
				continue
			}
			if tb < 0 || tb >= numIn+len(outputs) {
				return nil, fmt.Errorf("item %d: target buffer %d out of range [0, %d)", k, tb, numIn+len(outputs))
			}
			if (sb < q.NumInputs()) != (tb < numIn) {
				return nil, fmt.Errorf("item %d: buffer %d maps an input to an output (or vice versa)", k, sb)
			}
			if target(tb).Size() != q.Operand(sb).Size() {
				return nil, &stp.ShapeError{Operand: tb, Expected: stp.Shape{target(tb).Size()},
					Actual: stp.Shape{q.Operand(sb).Size()}, Details: fmt.Sprintf("item %d buffer %d", k, sb)}
			}
		}
		for _, tp := range q.Operations() {
			op := tp.Operation.Clone()
			for s, b := range op {
				op[s] = item.BufferMap[b]
			}
			operations = append(operations, TensorProduct{Operation: op, STP: tp.STP})
		}
	}
	return New(inputs, outputs, operations)
}

// TensorProductItem is one contraction of StackTensorProducts together with
// the buffer tuple routing its operand slots.
type TensorProductItem struct {
	Buffers Operation
	STP     *stp.SegmentedTensorProduct
}

// StackTensorProducts assembles a polynomial directly from contractions.
// Output buffers passed as nil are inferred by concatenating, in item
// order, the contraction operands routed to them; the items' segment
// selectors are shifted onto the combined buffer and structurally identical
// operations are fused.
func StackTensorProducts(inputs, outputs []*stp.Operand, items []TensorProductItem) (*SegmentedPolynomial, error) {
	numIn := len(inputs)
	total := numIn + len(outputs)

	type placement struct {
		item, slot int
	}
	inferred := make([][]placement, len(outputs))
	for k, item := range items {
		if len(item.Buffers) != item.STP.NumOperands() {
			return nil, &stp.ArityError{Expected: item.STP.NumOperands(), Actual: len(item.Buffers),
				Details: fmt.Sprintf("item %d buffer tuple", k)}
		}
		for s, b := range item.Buffers {
			if b < 0 || b >= total {
				return nil, fmt.Errorf("item %d: buffer index %d out of range [0, %d)", k, b, total)
			}
			if b >= numIn && outputs[b-numIn] == nil {
				inferred[b-numIn] = append(inferred[b-numIn], placement{item: k, slot: s})
			}
		}
	}

	outs := make([]*stp.Operand, len(outputs))
	stps := make([]*stp.SegmentedTensorProduct, len(items))
	for k, item := range items {
		stps[k] = item.STP
	}
	for o, target := range outputs {
		if target != nil {
			outs[o] = target.Clone()
			continue
		}
		places := inferred[o]
		if len(places) == 0 {
			return nil, fmt.Errorf("output %d: cannot infer an operand no item writes to", o)
		}
		combined := stp.NewOperand(stps[places[0].item].Operand(places[0].slot).NDim())
		offsets := make([]int, len(places))
		for i, pl := range places {
			offsets[i] = combined.NumSegments()
			for _, seg := range stps[pl.item].Operand(pl.slot).Segments() {
				if _, err := combined.AddSegment(seg); err != nil {
					return nil, fmt.Errorf("output %d: %w", o, err)
				}
			}
		}
		for i, pl := range places {
			var before, after []stp.Shape
			segs := combined.Segments()
			n := stps[pl.item].Operand(pl.slot).NumSegments()
			before = segs[:offsets[i]]
			after = segs[offsets[i]+n:]
			padded, err := stps[pl.item].PadOperand(pl.slot, before, after)
			if err != nil {
				return nil, err
			}
			stps[pl.item] = padded
		}
		outs[o] = combined
	}

	operations := make([]TensorProduct, len(items))
	for k, item := range items {
		operations[k] = TensorProduct{Operation: item.Buffers.Clone(), STP: stps[k]}
	}
	p, err := New(inputs, outs, operations)
	if err != nil {
		return nil, err
	}
	return p.FuseSTPs()
}
