package stp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// NewSegment is the segment selector that asks AddPath to create a fresh
// segment whose shape is inferred from the path's resolved mode extents.
const NewSegment = -1

// SegmentedTensorProduct describes one generalized einsum node over
// segmented operands: a subscript expression, one segmented operand per
// subscript slot, and a list of weighted paths.
//
// Construction is incremental (AddSegment / AddPath); every transformation
// pass returns a new value and never mutates the receiver, so a fully
// assembled product can be shared freely across goroutines.
type SegmentedTensorProduct struct {
	subscripts Subscripts
	operands   []*Operand
	paths      []Path
}

// FromSubscripts creates an empty product from a subscript expression like
// "uvw,iu,jv,kw+ijk".
func FromSubscripts(s string) (*SegmentedTensorProduct, error) {
	sub, err := ParseSubscripts(s)
	if err != nil {
		return nil, err
	}
	operands := make([]*Operand, sub.NumOperands())
	for i := range operands {
		operands[i] = NewOperand(len(sub.Operand(i)))
	}
	return &SegmentedTensorProduct{subscripts: sub, operands: operands}, nil
}

// MustFromSubscripts is FromSubscripts that panics on invalid input.
func MustFromSubscripts(s string) *SegmentedTensorProduct {
	d, err := FromSubscripts(s)
	if err != nil {
		panic(err)
	}
	return d
}

// EmptySegments creates a product of scalar segments: operand i holds
// numSegments[i] rank-0 segments and the subscripts carry no modes.
func EmptySegments(numSegments []int) *SegmentedTensorProduct {
	operands := make([]*Operand, len(numSegments))
	for i, n := range numSegments {
		operands[i] = EmptySegmentsOperand(n)
	}
	return &SegmentedTensorProduct{subscripts: scalarSubscripts(len(numSegments)), operands: operands}
}

// fromParts assembles a product without validation; internal use only.
func fromParts(sub Subscripts, operands []*Operand, paths []Path) *SegmentedTensorProduct {
	return &SegmentedTensorProduct{subscripts: sub, operands: operands, paths: paths}
}

// Subscripts returns the subscript expression.
func (d *SegmentedTensorProduct) Subscripts() Subscripts { return d.subscripts }

// NumOperands returns the number of operands.
func (d *SegmentedTensorProduct) NumOperands() int { return len(d.operands) }

// NumPaths returns the number of paths.
func (d *SegmentedTensorProduct) NumPaths() int { return len(d.paths) }

// Operand returns a copy of operand i. Negative indices count from the end.
func (d *SegmentedTensorProduct) Operand(i int) *Operand {
	return d.operands[d.operandIndex(i)].Clone()
}

// Operands returns copies of all operands.
func (d *SegmentedTensorProduct) Operands() []*Operand {
	out := make([]*Operand, len(d.operands))
	for i, op := range d.operands {
		out[i] = op.Clone()
	}
	return out
}

// Path returns path i.
func (d *SegmentedTensorProduct) Path(i int) Path { return d.paths[i] }

// Paths returns a copy of the path list.
func (d *SegmentedTensorProduct) Paths() []Path {
	out := make([]Path, len(d.paths))
	copy(out, d.paths)
	return out
}

func (d *SegmentedTensorProduct) operandIndex(i int) int {
	if i < 0 {
		i += len(d.operands)
	}
	if i < 0 || i >= len(d.operands) {
		panic(fmt.Sprintf("operand index %d out of range for %d operands", i, len(d.operands)))
	}
	return i
}

// AddSegment appends a segment to operand i and returns its index.
func (d *SegmentedTensorProduct) AddSegment(operand int, shape Shape) (int, error) {
	i := d.operandIndex(operand)
	idx, err := d.operands[i].AddSegment(shape)
	if err != nil {
		return 0, fmt.Errorf("operand %d: %w", i, err)
	}
	return idx, nil
}

// AddPath validates and appends a path. indices holds one segment selector
// per operand; a NewSegment selector creates a segment whose shape is
// inferred from the other selectors and the coefficient tensor.
func (d *SegmentedTensorProduct) AddPath(indices []int, coefficients Coefficients) error {
	return d.AddPathDims(indices, coefficients, nil)
}

// AddPathDims is AddPath with explicit extents for modes that neither the
// selected segments nor the coefficient tensor determine.
func (d *SegmentedTensorProduct) AddPathDims(indices []int, coefficients Coefficients, dims map[byte]int) error {
	if len(indices) != len(d.operands) {
		return &ArityError{Expected: len(d.operands), Actual: len(indices), Details: "path segment selectors"}
	}
	for j, idx := range indices {
		if idx == NewSegment {
			continue
		}
		if idx < 0 || idx >= d.operands[j].NumSegments() {
			return fmt.Errorf("operand %d: segment selector %d out of range [0, %d)", j, idx, d.operands[j].NumSegments())
		}
	}

	extents, err := d.resolveExtents(indices, coefficients, dims)
	if err != nil {
		return err
	}

	// The coefficient shape must match the subscript-implied shape exactly.
	cs := d.subscripts.Coefficients()
	expected := make(Shape, len(cs))
	for k := 0; k < len(cs); k++ {
		e, ok := extents[cs[k]]
		if !ok {
			return fmt.Errorf("mode %q of the coefficients cannot be resolved", cs[k])
		}
		expected[k] = e
	}
	if !expected.Equal(coefficients.Shape()) {
		return &ShapeError{Operand: -1, Expected: expected, Actual: coefficients.Shape(),
			Details: fmt.Sprintf("coefficient subscripts %q", cs)}
	}

	// Create segments for NewSegment selectors.
	resolved := make([]int, len(indices))
	copy(resolved, indices)
	for j, idx := range indices {
		if idx != NewSegment {
			continue
		}
		modes := d.subscripts.Operand(j)
		shape := make(Shape, len(modes))
		for k := 0; k < len(modes); k++ {
			e, ok := extents[modes[k]]
			if !ok {
				return fmt.Errorf("operand %d: mode %q of the new segment cannot be resolved", j, modes[k])
			}
			shape[k] = e
		}
		newIdx, err := d.AddSegment(j, shape)
		if err != nil {
			return err
		}
		resolved[j] = newIdx
	}

	d.paths = append(d.paths, NewPath(resolved, coefficients))
	return nil
}

// resolveExtents gathers mode extents from the selected segments, the
// caller-supplied dims and finally the coefficient tensor, reporting any
// disagreement as a shape error.
func (d *SegmentedTensorProduct) resolveExtents(indices []int, coefficients Coefficients, dims map[byte]int) (map[byte]int, error) {
	extents := make(map[byte]int)
	set := func(m byte, e int, operand int) error {
		if prev, ok := extents[m]; ok && prev != e {
			return &ShapeError{Operand: operand, Expected: Shape{prev}, Actual: Shape{e},
				Details: fmt.Sprintf("conflicting extents for mode %q", m)}
		}
		extents[m] = e
		return nil
	}
	for j, idx := range indices {
		if idx == NewSegment {
			continue
		}
		modes := d.subscripts.Operand(j)
		seg := d.operands[j].Segment(idx)
		for k := 0; k < len(modes); k++ {
			if err := set(modes[k], seg[k], j); err != nil {
				return nil, err
			}
		}
	}
	for m, e := range dims {
		if err := set(m, e, -1); err != nil {
			return nil, err
		}
	}
	cs := d.subscripts.Coefficients()
	cShape := coefficients.Shape()
	if len(cShape) == len(cs) {
		for k := 0; k < len(cs); k++ {
			if _, ok := extents[cs[k]]; !ok {
				extents[cs[k]] = cShape[k]
			}
		}
	}
	return extents, nil
}

// ModeExtents resolves every mode's extent for one path from the selected
// segments and the coefficient shape.
func (d *SegmentedTensorProduct) ModeExtents(p Path) (map[byte]int, error) {
	if len(p.indices) != len(d.operands) {
		return nil, &ArityError{Expected: len(d.operands), Actual: len(p.indices), Details: "path segment selectors"}
	}
	extents := make(map[byte]int)
	for j, idx := range p.indices {
		modes := d.subscripts.Operand(j)
		seg := d.operands[j].Segment(idx)
		for k := 0; k < len(modes); k++ {
			if prev, ok := extents[modes[k]]; ok && prev != seg[k] {
				return nil, &ShapeError{Operand: j, Expected: Shape{prev}, Actual: Shape{seg[k]},
					Details: fmt.Sprintf("conflicting extents for mode %q", modes[k])}
			}
			extents[modes[k]] = seg[k]
		}
	}
	cs := d.subscripts.Coefficients()
	cShape := p.coefficients.Shape()
	for k := 0; k < len(cs); k++ {
		if prev, ok := extents[cs[k]]; ok && prev != cShape[k] {
			return nil, &ShapeError{Operand: -1, Expected: Shape{prev}, Actual: Shape{cShape[k]},
				Details: fmt.Sprintf("conflicting extents for mode %q", cs[k])}
		}
		extents[cs[k]] = cShape[k]
	}
	return extents, nil
}

// Scale returns the product with every path coefficient multiplied by f.
func (d *SegmentedTensorProduct) Scale(f float64) *SegmentedTensorProduct {
	paths := make([]Path, len(d.paths))
	for i, p := range d.paths {
		paths[i] = NewPath(p.indices, p.coefficients.Scale(f))
	}
	return fromParts(d.subscripts, d.Operands(), paths)
}

// Flop estimates the multiply-add work of one evaluation: per path, two
// operations per non-zero coefficient per elementwise lane, times the batch
// size. Lanes are the modes that appear in operands but not in the
// coefficient subscripts.
func (d *SegmentedTensorProduct) Flop(batchSize int) (int, error) {
	total := 0
	cs := d.subscripts.Coefficients()
	for _, p := range d.paths {
		extents, err := d.ModeExtents(p)
		if err != nil {
			return 0, err
		}
		lanes := 1
		for m, e := range extents {
			if strings.IndexByte(cs, m) < 0 {
				lanes *= e
			}
		}
		total += 2 * p.coefficients.NonZeroCount() * lanes
	}
	return total * batchSize, nil
}

// Memory returns the total number of scalars held by all operand buffers
// for one evaluation at the given per-operand batch sizes.
func (d *SegmentedTensorProduct) Memory(batchSizes []int) (int, error) {
	if len(batchSizes) != len(d.operands) {
		return 0, &ArityError{Expected: len(d.operands), Actual: len(batchSizes), Details: "batch sizes"}
	}
	total := 0
	for i, op := range d.operands {
		total += batchSizes[i] * op.Size()
	}
	return total, nil
}

// StructureEqual reports whether two products have identical subscripts and
// operand segment lists, ignoring paths.
func (d *SegmentedTensorProduct) StructureEqual(other *SegmentedTensorProduct) bool {
	if !d.subscripts.Equal(other.subscripts) || len(d.operands) != len(other.operands) {
		return false
	}
	for i := range d.operands {
		if !d.operands[i].Equal(other.operands[i]) {
			return false
		}
	}
	return true
}

// Equal reports structural equality of subscripts, operands and paths.
func (d *SegmentedTensorProduct) Equal(other *SegmentedTensorProduct) bool {
	if !d.StructureEqual(other) || len(d.paths) != len(other.paths) {
		return false
	}
	for i := range d.paths {
		if !d.paths[i].Equal(other.paths[i]) {
			return false
		}
	}
	return true
}

// Compare defines a deterministic total order over products.
func (d *SegmentedTensorProduct) Compare(other *SegmentedTensorProduct) int {
	if c := strings.Compare(d.subscripts.String(), other.subscripts.String()); c != 0 {
		return c
	}
	if c := strings.Compare(d.operandsString(), other.operandsString()); c != 0 {
		return c
	}
	for i := range d.paths {
		if i >= len(other.paths) {
			return 1
		}
		if c := d.paths[i].compare(other.paths[i]); c != 0 {
			return c
		}
	}
	return len(d.paths) - len(other.paths)
}

func (d *SegmentedTensorProduct) operandsString() string {
	parts := make([]string, len(d.operands))
	for i, op := range d.operands {
		parts[i] = op.String()
	}
	return strings.Join(parts, " ")
}

// String returns a human-readable summary.
func (d *SegmentedTensorProduct) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "STP[%s] operands=%s paths=[", d.subscripts, d.operandsString())
	for i, p := range d.paths {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(p.String())
	}
	b.WriteString("]")
	return b.String()
}

// Hash returns a content hash of the product's structure, suitable as a
// memoization key. Value-identical products hash identically.
func (d *SegmentedTensorProduct) Hash() string {
	h := sha256.Sum256([]byte(d.String()))
	return hex.EncodeToString(h[:])
}

// Clone returns a deep copy.
func (d *SegmentedTensorProduct) Clone() *SegmentedTensorProduct {
	return fromParts(d.subscripts, d.Operands(), d.Paths())
}
