package poly

import "sort"

// FuseSTPs merges operations that share the same buffer-index tuple and a
// structurally identical contraction layout into a single contraction whose
// path list is the union. Contraction is linear in paths, so fusing changes
// the work schedule but not the result.
func (p *SegmentedPolynomial) FuseSTPs() (*SegmentedPolynomial, error) {
	var fused []TensorProduct
	for _, tp := range p.operations {
		merged := false
		for i := range fused {
			if fused[i].Operation.Equal(tp.Operation) && fused[i].STP.StructureEqual(tp.STP) {
				combined, err := fused[i].STP.Fuse(tp.STP)
				if err != nil {
					return nil, err
				}
				fused[i].STP = combined
				merged = true
				break
			}
		}
		if !merged {
			fused = append(fused, TensorProduct{Operation: tp.Operation.Clone(), STP: tp.STP})
		}
	}
	return New(p.inputs, p.outputs, fused)
}

// Consolidate returns the canonical form of the polynomial: operations
// fused, duplicate paths merged by coefficient addition, all-zero paths and
// zero-size segments dropped, paths and operations sorted deterministically.
// Two polynomials are equal iff their consolidated forms are structurally
// identical; Consolidate is idempotent.
func (p *SegmentedPolynomial) Consolidate() *SegmentedPolynomial {
	fused, err := p.FuseSTPs()
	if err != nil {
		panic(err) // unreachable: p was validated at construction
	}
	operations := make([]TensorProduct, 0, len(fused.operations))
	for _, tp := range fused.operations {
		d := tp.STP.ConsolidatePaths().RemoveZeroPaths().RemoveEmptySegments().SortPaths()
		if d.NumPaths() == 0 {
			continue
		}
		operations = append(operations, TensorProduct{Operation: tp.Operation, STP: d})
	}
	sort.SliceStable(operations, func(i, j int) bool {
		if c := operations[i].Operation.compare(operations[j].Operation); c != 0 {
			return c < 0
		}
		return operations[i].STP.Compare(operations[j].STP) < 0
	})
	out, err := New(fused.inputs, fused.outputs, operations)
	if err != nil {
		panic(err) // unreachable: sizes are preserved by path cleanup
	}
	return out
}
