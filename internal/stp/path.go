package stp

import "fmt"

// Path is one weighted contraction term: it selects exactly one segment per
// operand and carries the dense coefficient tensor for that combination.
type Path struct {
	indices      []int
	coefficients Coefficients
}

// NewPath creates a path from segment indices and a coefficient tensor.
func NewPath(indices []int, coefficients Coefficients) Path {
	idx := make([]int, len(indices))
	copy(idx, indices)
	return Path{indices: idx, coefficients: coefficients}
}

// Indices returns a copy of the per-operand segment indices.
func (p Path) Indices() []int {
	out := make([]int, len(p.indices))
	copy(out, p.indices)
	return out
}

// Index returns the selected segment of operand i.
func (p Path) Index(i int) int { return p.indices[i] }

// Coefficients returns the coefficient tensor.
func (p Path) Coefficients() Coefficients { return p.coefficients }

// Equal reports structural equality.
func (p Path) Equal(other Path) bool {
	if len(p.indices) != len(other.indices) {
		return false
	}
	for i := range p.indices {
		if p.indices[i] != other.indices[i] {
			return false
		}
	}
	return p.coefficients.Equal(other.coefficients)
}

// compare orders paths by indices, then by coefficient shape and data.
func (p Path) compare(other Path) int {
	for i := range p.indices {
		if i >= len(other.indices) {
			return 1
		}
		if d := p.indices[i] - other.indices[i]; d != 0 {
			return d
		}
	}
	if d := len(other.indices) - len(p.indices); d != 0 {
		return -d
	}
	a, b := p.coefficients, other.coefficients
	if d := len(a.shape) - len(b.shape); d != 0 {
		return d
	}
	for i := range a.shape {
		if d := a.shape[i] - b.shape[i]; d != 0 {
			return d
		}
	}
	for i := range a.data {
		if a.data[i] < b.data[i] {
			return -1
		}
		if a.data[i] > b.data[i] {
			return 1
		}
	}
	return 0
}

// String returns a compact form like "(0,1,0)*0.5".
func (p Path) String() string {
	return fmt.Sprintf("%v*%s", p.indices, p.coefficients)
}
