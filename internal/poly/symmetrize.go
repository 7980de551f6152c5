package poly

import (
	"fmt"
	"sort"

	"github.com/LiamZhang100/cuEquivariance/internal/cache"
)

var symmetrizeMemo cache.Memo

// SymmetrizeForIdenticalOperands rewrites every operation so that its paths
// are invariant under permutations of input slots bound to the same buffer.
// Operations that read each buffer at most once are unchanged. Results are
// memoized by content hash since the rewrite enumerates a permutation group
// per repeated buffer.
func (p *SegmentedPolynomial) SymmetrizeForIdenticalOperands() (*SegmentedPolynomial, error) {
	key := "sym:" + p.Hash()
	v, err := symmetrizeMemo.Do(key, func() (any, error) {
		return p.symmetrizeForIdenticalOperands()
	})
	if err != nil {
		return nil, err
	}
	return v.(*SegmentedPolynomial), nil
}

func (p *SegmentedPolynomial) symmetrizeForIdenticalOperands() (*SegmentedPolynomial, error) {
	operations := make([]TensorProduct, 0, len(p.operations))
	for _, tp := range p.operations {
		product := tp.STP
		for _, group := range repeatedSlotGroups(tp.Operation) {
			var err error
			product, err = product.SymmetrizeOperands(group)
			if err != nil {
				return nil, fmt.Errorf("symmetrize operation %v: %w", tp.Operation, err)
			}
		}
		operations = append(operations, TensorProduct{Operation: tp.Operation, STP: product})
	}
	return New(p.inputs, p.outputs, operations)
}

// UnsymmetrizeForIdenticalOperands is the inverse rewrite: for every
// operation it reduces the paths over slots bound to the same buffer to a
// single representative per permutation orbit. It fails with
// ErrNotSymmetrizable when an operation's coefficients are not symmetric
// under the slot permutations, in which case the reduction would change the
// polynomial's value.
func (p *SegmentedPolynomial) UnsymmetrizeForIdenticalOperands(tol float64) (*SegmentedPolynomial, error) {
	operations := make([]TensorProduct, 0, len(p.operations))
	for _, tp := range p.operations {
		product := tp.STP
		for _, group := range repeatedSlotGroups(tp.Operation) {
			var err error
			product, err = product.UnsymmetrizeOperands(group, tol)
			if err != nil {
				return nil, fmt.Errorf("unsymmetrize operation %v: %w", tp.Operation, err)
			}
		}
		operations = append(operations, TensorProduct{Operation: tp.Operation, STP: product})
	}
	return New(p.inputs, p.outputs, operations)
}

// repeatedSlotGroups returns, for each buffer referenced by two or more
// slots, the sorted slot indices bound to it. Groups are ordered by buffer
// index so the rewrite is deterministic.
func repeatedSlotGroups(op Operation) [][]int {
	bySlot := make(map[int][]int)
	for s, b := range op {
		bySlot[b] = append(bySlot[b], s)
	}
	buffers := make([]int, 0, len(bySlot))
	for b, slots := range bySlot {
		if len(slots) > 1 {
			buffers = append(buffers, b)
		}
	}
	sort.Ints(buffers)
	groups := make([][]int, 0, len(buffers))
	for _, b := range buffers {
		slots := bySlot[b]
		sort.Ints(slots)
		groups = append(groups, slots)
	}
	return groups
}
