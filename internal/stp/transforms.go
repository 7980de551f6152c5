package stp

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat/combin"
)

// SortPaths returns the product with paths in deterministic order: by
// segment indices, then by coefficient shape and values.
func (d *SegmentedTensorProduct) SortPaths() *SegmentedTensorProduct {
	paths := d.Paths()
	sort.SliceStable(paths, func(i, j int) bool { return paths[i].compare(paths[j]) < 0 })
	return fromParts(d.subscripts, d.Operands(), paths)
}

// ConsolidatePaths returns the product with duplicate paths (same segment
// indices) merged by coefficient addition, in first-occurrence order.
func (d *SegmentedTensorProduct) ConsolidatePaths() *SegmentedTensorProduct {
	var paths []Path
	where := make(map[string]int)
	for _, p := range d.paths {
		key := fmt.Sprint(p.indices)
		if at, ok := where[key]; ok {
			// Same segment indices imply the same subscript-derived
			// coefficient shape, so Add cannot fail on a valid product.
			sum, err := paths[at].coefficients.Add(p.coefficients)
			if err != nil {
				panic(err)
			}
			paths[at] = NewPath(paths[at].indices, sum)
			continue
		}
		where[key] = len(paths)
		paths = append(paths, NewPath(p.indices, p.coefficients.Clone()))
	}
	return fromParts(d.subscripts, d.Operands(), paths)
}

// Fuse merges the paths of two structurally identical products into one,
// merging duplicate paths by coefficient addition. Contraction is linear in
// paths, so the fused product computes the sum of the two.
func (d *SegmentedTensorProduct) Fuse(other *SegmentedTensorProduct) (*SegmentedTensorProduct, error) {
	if !d.StructureEqual(other) {
		return nil, &ShapeError{Operand: -1, Details: "fused products must have identical subscripts and segments"}
	}
	merged := fromParts(d.subscripts, d.Operands(), append(d.Paths(), other.Paths()...))
	return merged.ConsolidatePaths(), nil
}

// RemoveZeroPaths returns the product without paths whose coefficients are
// all exactly zero.
func (d *SegmentedTensorProduct) RemoveZeroPaths() *SegmentedTensorProduct {
	var paths []Path
	for _, p := range d.paths {
		if !p.coefficients.IsZero() {
			paths = append(paths, p)
		}
	}
	return fromParts(d.subscripts, d.Operands(), paths)
}

// RemoveEmptySegments returns the product without zero-size segments.
// Paths referencing a removed segment contribute nothing and are dropped.
func (d *SegmentedTensorProduct) RemoveEmptySegments() *SegmentedTensorProduct {
	remaps := make([][]int, len(d.operands))
	operands := make([]*Operand, len(d.operands))
	for j, op := range d.operands {
		remap := make([]int, op.NumSegments())
		kept := NewOperand(op.NDim())
		for s := 0; s < op.NumSegments(); s++ {
			seg := op.Segment(s)
			if seg.Size() == 0 {
				remap[s] = -1
				continue
			}
			idx, _ := kept.AddSegment(seg)
			remap[s] = idx
		}
		remaps[j] = remap
		operands[j] = kept
	}
	var paths []Path
pathLoop:
	for _, p := range d.paths {
		indices := p.Indices()
		for j, idx := range indices {
			if remaps[j][idx] < 0 {
				continue pathLoop
			}
			indices[j] = remaps[j][idx]
		}
		paths = append(paths, NewPath(indices, p.coefficients))
	}
	return fromParts(d.subscripts, operands, paths)
}

// NormalizePathsForOperand rescales coefficients so that for every segment
// of the chosen operand the total squared coefficient mass of the paths
// selecting it is one, then sorts paths by that operand's segment index.
// Products equal up to per-segment scaling of the chosen operand normalize
// to the same descriptor. Negative indices count from the end.
func (d *SegmentedTensorProduct) NormalizePathsForOperand(operand int) *SegmentedTensorProduct {
	i := d.operandIndex(operand)
	mass := make([]float64, d.operands[i].NumSegments())
	for _, p := range d.paths {
		mass[p.indices[i]] += p.coefficients.Norm2()
	}
	paths := make([]Path, len(d.paths))
	for k, p := range d.paths {
		m := mass[p.indices[i]]
		if m > 0 {
			paths[k] = NewPath(p.indices, p.coefficients.Scale(1/math.Sqrt(m)))
		} else {
			paths[k] = NewPath(p.indices, p.coefficients.Clone())
		}
	}
	out := fromParts(d.subscripts, d.Operands(), paths)
	sorted := out.Paths()
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].indices[i] != sorted[b].indices[i] {
			return sorted[a].indices[i] < sorted[b].indices[i]
		}
		return sorted[a].compare(sorted[b]) < 0
	})
	return fromParts(d.subscripts, out.Operands(), sorted)
}

// PermuteSegments reorders the segments of one operand: segment k of the
// result is segment perm[k] of the input. Every path's selector for that
// operand is rewritten accordingly.
func (d *SegmentedTensorProduct) PermuteSegments(operand int, perm []int) (*SegmentedTensorProduct, error) {
	i := d.operandIndex(operand)
	op := d.operands[i]
	if len(perm) != op.NumSegments() {
		return nil, &ArityError{Expected: op.NumSegments(), Actual: len(perm), Details: "segment permutation"}
	}
	if !isPermutation(perm) {
		return nil, fmt.Errorf("operand %d: invalid segment permutation %v", i, perm)
	}
	permuted := NewOperand(op.NDim())
	inv := make([]int, len(perm))
	for k, p := range perm {
		if _, err := permuted.AddSegment(op.Segment(p)); err != nil {
			return nil, err
		}
		inv[p] = k
	}
	operands := d.Operands()
	operands[i] = permuted
	paths := make([]Path, len(d.paths))
	for k, p := range d.paths {
		indices := p.Indices()
		indices[i] = inv[indices[i]]
		paths[k] = NewPath(indices, p.coefficients)
	}
	return fromParts(d.subscripts, operands, paths), nil
}

// PadOperand returns the product with one operand's segment list embedded
// into a larger list: segmentsBefore, then the existing segments, then
// segmentsAfter. Path selectors for that operand shift accordingly. Used to
// align independently built products onto a stacked buffer.
func (d *SegmentedTensorProduct) PadOperand(operand int, segmentsBefore, segmentsAfter []Shape) (*SegmentedTensorProduct, error) {
	i := d.operandIndex(operand)
	op := d.operands[i]
	padded := NewOperand(op.NDim())
	for _, seg := range segmentsBefore {
		if _, err := padded.AddSegment(seg); err != nil {
			return nil, fmt.Errorf("operand %d: %w", i, err)
		}
	}
	offset := padded.NumSegments()
	for _, seg := range op.Segments() {
		if _, err := padded.AddSegment(seg); err != nil {
			return nil, err
		}
	}
	for _, seg := range segmentsAfter {
		if _, err := padded.AddSegment(seg); err != nil {
			return nil, fmt.Errorf("operand %d: %w", i, err)
		}
	}
	operands := d.Operands()
	operands[i] = padded
	paths := make([]Path, len(d.paths))
	for k, p := range d.paths {
		indices := p.Indices()
		indices[i] += offset
		paths[k] = NewPath(indices, p.coefficients)
	}
	return fromParts(d.subscripts, operands, paths), nil
}

// SymmetrizeOperands expands every path into one path per permutation of
// the given operand group, dividing coefficients by the group order. The
// grouped operands must be interchangeable: identical segment lists and
// positionally compatible subscripts. Evaluated on distinct values the
// result equals the original evaluated with the group's slots merged, which
// is what makes single-variable differentiation of a repeated input valid.
func (d *SegmentedTensorProduct) SymmetrizeOperands(operands []int) (*SegmentedTensorProduct, error) {
	group := append([]int(nil), operands...)
	for k, g := range group {
		group[k] = d.operandIndex(g)
	}
	sort.Ints(group)
	for k := 1; k < len(group); k++ {
		if group[k] == group[k-1] {
			return nil, fmt.Errorf("repeated operand %d in symmetrization group", group[k])
		}
	}
	if len(group) < 2 {
		return d.Clone(), nil
	}

	ownedAxes, err := d.symmetryOwnedAxes(group)
	if err != nil {
		return nil, err
	}

	perms := combin.Permutations(len(group), len(group))
	inv := 1.0 / float64(len(perms))

	var paths []Path
	for _, p := range d.paths {
		for _, sigma := range perms {
			indices := p.Indices()
			for t, g := range group {
				indices[g] = p.indices[group[sigma[t]]]
			}
			coeff := p.coefficients
			if len(ownedAxes[0]) > 0 {
				axisPerm := identityPerm(coeff.Rank())
				for t := range group {
					for r, a := range ownedAxes[t] {
						axisPerm[a] = ownedAxes[sigma[t]][r]
					}
				}
				coeff, err = coeff.Transpose(axisPerm)
				if err != nil {
					return nil, err
				}
			}
			paths = append(paths, NewPath(indices, coeff.Scale(inv)))
		}
	}
	out := fromParts(d.subscripts, d.Operands(), paths)
	return out.ConsolidatePaths(), nil
}

// symmetryOwnedAxes validates that the grouped operands are interchangeable
// and returns, per group member, the coefficient axes owned by it.
func (d *SegmentedTensorProduct) symmetryOwnedAxes(group []int) ([][]int, error) {
	cs := d.subscripts.Coefficients()
	first := group[0]
	for _, g := range group[1:] {
		if !d.operands[g].Equal(d.operands[first]) {
			return nil, &ShapeError{Operand: g, Details: "symmetrized operands must have identical segments"}
		}
		if len(d.subscripts.Operand(g)) != len(d.subscripts.Operand(first)) {
			return nil, &ArityError{Expected: len(d.subscripts.Operand(first)), Actual: len(d.subscripts.Operand(g)),
				Details: "symmetrized operand subscripts"}
		}
	}
	inGroup := make(map[int]bool, len(group))
	for _, g := range group {
		inGroup[g] = true
	}

	ownedAxes := make([][]int, len(group))
	for t, g := range group {
		modes := d.subscripts.Operand(g)
		refModes := d.subscripts.Operand(first)
		for k := 0; k < len(modes); k++ {
			inCoeff := strings.IndexByte(cs, modes[k]) >= 0
			refInCoeff := strings.IndexByte(cs, refModes[k]) >= 0
			if inCoeff != refInCoeff {
				return nil, fmt.Errorf("operand %d: mode %q breaks the symmetry pattern of the group", g, modes[k])
			}
			if inCoeff {
				// An owned mode must be exclusive to its operand; a mode
				// shared with a non-group operand cannot be exchanged.
				for j := range d.operands {
					if j == g {
						continue
					}
					if strings.IndexByte(d.subscripts.Operand(j), modes[k]) >= 0 && !inGroup[j] {
						return nil, fmt.Errorf("mode %q is shared with operand %d outside the symmetrization group", modes[k], j)
					}
				}
				ownedAxes[t] = append(ownedAxes[t], strings.IndexByte(cs, modes[k]))
			} else if modes[k] != refModes[k] {
				return nil, fmt.Errorf("operand %d: elementwise mode %q differs across the group", g, modes[k])
			}
		}
	}
	for _, axes := range ownedAxes[1:] {
		if len(axes) != len(ownedAxes[0]) {
			return nil, fmt.Errorf("symmetrized operands own different numbers of coefficient axes")
		}
	}
	return ownedAxes, nil
}

// UnsymmetrizeOperands is the inverse of SymmetrizeOperands: it collapses a
// path list that is symmetric under permutations of the given operand group
// back to one canonical path per orbit. Coefficients of corresponding paths
// must agree within tol; otherwise the product is genuinely asymmetric and
// the call fails with ErrNotSymmetrizable.
func (d *SegmentedTensorProduct) UnsymmetrizeOperands(operands []int, tol float64) (*SegmentedTensorProduct, error) {
	group := append([]int(nil), operands...)
	for k, g := range group {
		group[k] = d.operandIndex(g)
	}
	sort.Ints(group)
	if len(group) < 2 {
		return d.Clone(), nil
	}
	ownedAxes, err := d.symmetryOwnedAxes(group)
	if err != nil {
		return nil, err
	}
	perms := combin.Permutations(len(group), len(group))

	permuteIndices := func(indices []int, sigma []int) []int {
		out := append([]int(nil), indices...)
		for t, g := range group {
			out[g] = indices[group[sigma[t]]]
		}
		return out
	}
	axisPerm := func(sigma []int, rank int) []int {
		perm := identityPerm(rank)
		for t := range group {
			for r, a := range ownedAxes[t] {
				perm[a] = ownedAxes[sigma[t]][r]
			}
		}
		return perm
	}

	c := d.ConsolidatePaths()
	lookup := make(map[string]int, len(c.paths))
	for i, p := range c.paths {
		lookup[fmt.Sprint(p.indices)] = i
	}

	var reps []Path
	for _, p := range c.paths {
		// Only the lexicographically smallest member represents its orbit.
		minimal := true
		for _, sigma := range perms {
			if lessIntSlice(permuteIndices(p.indices, sigma), p.indices) {
				minimal = false
				break
			}
		}
		if !minimal {
			continue
		}
		stabilizer := 0
		var sum Coefficients
		haveSum := false
		for _, sigma := range perms {
			member := permuteIndices(p.indices, sigma)
			if equalIntSlice(member, p.indices) {
				stabilizer++
			}
			at, ok := lookup[fmt.Sprint(member)]
			if !ok {
				return nil, fmt.Errorf("%w: no counterpart for path %v under permutation %v", ErrNotSymmetrizable, p.indices, sigma)
			}
			back, err := c.paths[at].coefficients.Transpose(inversePerm(axisPerm(sigma, p.coefficients.Rank())))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrNotSymmetrizable, err)
			}
			if !haveSum {
				sum, haveSum = back, true
				continue
			}
			sum, err = sum.Add(back)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrNotSymmetrizable, err)
			}
		}
		reps = append(reps, NewPath(p.indices, sum.Scale(1/float64(stabilizer))))
	}

	out := fromParts(d.subscripts, d.Operands(), reps)

	// The reduction is valid only if re-symmetrizing reproduces the input.
	check, err := out.SymmetrizeOperands(group)
	if err != nil {
		return nil, err
	}
	want := c.SortPaths()
	got := check.SortPaths()
	if len(want.paths) != len(got.paths) {
		return nil, fmt.Errorf("%w: asymmetric coefficients survive symmetrization", ErrNotSymmetrizable)
	}
	for i := range want.paths {
		if !equalIntSlice(want.paths[i].indices, got.paths[i].indices) ||
			!want.paths[i].coefficients.AllClose(got.paths[i].coefficients, tol) {
			return nil, fmt.Errorf("%w: asymmetric coefficients survive symmetrization at path %v", ErrNotSymmetrizable, want.paths[i].indices)
		}
	}
	return out, nil
}

// AppendModesToAllOperands appends a fresh elementwise mode of the given
// extent to every operand: subscripts gain the mode, every segment gains a
// trailing axis, coefficients are untouched. Used to broadcast a shared
// multiplicity across an assembled product.
func (d *SegmentedTensorProduct) AppendModesToAllOperands(mode byte, extent int) (*SegmentedTensorProduct, error) {
	if mode < 'a' || mode > 'z' {
		return nil, fmt.Errorf("invalid mode %q: modes must be lowercase letters", mode)
	}
	if d.subscripts.HasMode(mode) {
		return nil, fmt.Errorf("mode %q is already in use", mode)
	}
	if extent <= 0 {
		return nil, fmt.Errorf("mode %q: extent must be positive, got %d", mode, extent)
	}
	sub := d.subscripts
	operands := make([]*Operand, len(d.operands))
	for j, op := range d.operands {
		sub = sub.withOperand(j, sub.Operand(j)+string(mode))
		grown := NewOperand(op.NDim() + 1)
		for _, seg := range op.Segments() {
			if _, err := grown.AddSegment(append(seg.Clone(), extent)); err != nil {
				return nil, err
			}
		}
		operands[j] = grown
	}
	return fromParts(sub, operands, d.Paths()), nil
}

// SqueezeModes removes every mode whose extent is one in all segments and
// coefficients where it appears, dropping the corresponding axes.
func (d *SegmentedTensorProduct) SqueezeModes() *SegmentedTensorProduct {
	squeeze := make(map[byte]bool)
	for _, m := range d.subscripts.Modes() {
		squeeze[m] = true
	}
	for j, op := range d.operands {
		modes := d.subscripts.Operand(j)
		for _, seg := range op.Segments() {
			for k := 0; k < len(modes); k++ {
				if seg[k] != 1 {
					squeeze[modes[k]] = false
				}
			}
		}
	}
	cs := d.subscripts.Coefficients()
	for _, p := range d.paths {
		shape := p.coefficients.Shape()
		for k := 0; k < len(cs); k++ {
			if shape[k] != 1 {
				squeeze[cs[k]] = false
			}
		}
	}

	sub := d.subscripts
	operands := make([]*Operand, len(d.operands))
	for j, op := range d.operands {
		modes := d.subscripts.Operand(j)
		kept := ""
		for k := 0; k < len(modes); k++ {
			if !squeeze[modes[k]] {
				kept += string(modes[k])
			}
		}
		sub = sub.withOperand(j, kept)
		slim := NewOperand(len(kept))
		for _, seg := range op.Segments() {
			newSeg := make(Shape, 0, len(kept))
			for k := 0; k < len(modes); k++ {
				if !squeeze[modes[k]] {
					newSeg = append(newSeg, seg[k])
				}
			}
			if _, err := slim.AddSegment(newSeg); err != nil {
				panic(err) // unreachable: rank is consistent by construction
			}
		}
		operands[j] = slim
	}
	keptCS := ""
	for k := 0; k < len(cs); k++ {
		if !squeeze[cs[k]] {
			keptCS += string(cs[k])
		}
	}
	sub = sub.withCoefficients(keptCS)
	paths := make([]Path, len(d.paths))
	for i, p := range d.paths {
		shape := p.coefficients.Shape()
		newShape := make(Shape, 0, len(keptCS))
		for k := 0; k < len(cs); k++ {
			if !squeeze[cs[k]] {
				newShape = append(newShape, shape[k])
			}
		}
		// Dropping extent-1 axes keeps row-major layout intact.
		coeff, err := p.coefficients.Reshape(newShape)
		if err != nil {
			panic(err) // unreachable: size is unchanged
		}
		paths[i] = NewPath(p.indices, coeff)
	}
	return fromParts(sub, operands, paths)
}

// FlattenCoefficientModes folds every mode shared between the coefficient
// subscripts and an operand into that operand's segment structure: each
// affected segment splits into one segment per index of its flattened
// modes, and each path expands into sliced-coefficient paths. Flattened
// modes must be leading modes of their operands so the flat buffer layout
// is preserved.
func (d *SegmentedTensorProduct) FlattenCoefficientModes() (*SegmentedTensorProduct, error) {
	cs := d.subscripts.Coefficients()
	flat := make(map[byte]bool)
	var flatOrder []byte
	for k := 0; k < len(cs); k++ {
		m := cs[k]
		for j := 0; j < len(d.operands); j++ {
			if strings.IndexByte(d.subscripts.Operand(j), m) >= 0 {
				if !flat[m] {
					flat[m] = true
					flatOrder = append(flatOrder, m)
				}
				break
			}
		}
	}
	if len(flatOrder) == 0 {
		return d.Clone(), nil
	}

	// Per operand: the flattened modes must form a prefix of its subscripts.
	prefixLen := make([]int, len(d.operands))
	for j := range d.operands {
		modes := d.subscripts.Operand(j)
		n := 0
		for k := 0; k < len(modes); k++ {
			if flat[modes[k]] {
				if k != n {
					return nil, fmt.Errorf("operand %d: flattened mode %q must be a leading mode (subscripts %q)", j, modes[k], modes)
				}
				n++
			}
		}
		prefixLen[j] = n
	}

	// Split segments and record, per operand, each old segment's base index
	// in the split operand.
	sub := d.subscripts
	operands := make([]*Operand, len(d.operands))
	bases := make([][]int, len(d.operands))
	for j, op := range d.operands {
		modes := d.subscripts.Operand(j)
		sub = sub.withOperand(j, modes[prefixLen[j]:])
		split := NewOperand(op.NDim() - prefixLen[j])
		bases[j] = make([]int, op.NumSegments())
		for s := 0; s < op.NumSegments(); s++ {
			seg := op.Segment(s)
			bases[j][s] = split.NumSegments()
			count := Shape(seg[:prefixLen[j]]).Size()
			rest := seg[prefixLen[j]:]
			for c := 0; c < count; c++ {
				if _, err := split.AddSegment(rest); err != nil {
					return nil, err
				}
			}
		}
		operands[j] = split
	}

	keptCS := ""
	for k := 0; k < len(cs); k++ {
		if !flat[cs[k]] {
			keptCS += string(cs[k])
		}
	}
	sub = sub.withCoefficients(keptCS)

	// Expand each path over every assignment of its flattened modes.
	var paths []Path
	for _, p := range d.paths {
		extents, err := d.ModeExtents(p)
		if err != nil {
			return nil, err
		}
		assignment := make(map[byte]int, len(flatOrder))
		var expand func(k int) error
		expand = func(k int) error {
			if k == len(flatOrder) {
				coeff := p.coefficients
				// Slice flattened axes from last to first so the remaining
				// axis positions stay valid.
				for a := len(cs) - 1; a >= 0; a-- {
					if flat[cs[a]] {
						coeff, err = coeff.SliceAxis(a, assignment[cs[a]])
						if err != nil {
							return err
						}
					}
				}
				indices := make([]int, len(d.operands))
				for j := range d.operands {
					modes := d.subscripts.Operand(j)
					idx := 0
					for t := 0; t < prefixLen[j]; t++ {
						idx = idx*extents[modes[t]] + assignment[modes[t]]
					}
					indices[j] = bases[j][p.indices[j]] + idx
				}
				paths = append(paths, NewPath(indices, coeff))
				return nil
			}
			for v := 0; v < extents[flatOrder[k]]; v++ {
				assignment[flatOrder[k]] = v
				if err := expand(k + 1); err != nil {
					return err
				}
			}
			return nil
		}
		if err := expand(0); err != nil {
			return nil, err
		}
	}
	return fromParts(sub, operands, paths), nil
}

func identityPerm(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return perm
}

func inversePerm(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

func equalIntSlice(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lessIntSlice(a, b []int) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
