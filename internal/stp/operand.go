package stp

import (
	"fmt"
	"strings"
)

// Operand is an ordered sequence of segments partitioning one flat buffer.
// Segment order is semantically significant: it defines each segment's
// offset into the buffer. All segments share the same rank.
type Operand struct {
	ndim     int
	segments []Shape
}

// NewOperand creates an operand whose segments all have the given rank.
func NewOperand(ndim int) *Operand {
	return &Operand{ndim: ndim}
}

// EmptySegmentsOperand creates an operand of n scalar (rank-0) segments.
func EmptySegmentsOperand(n int) *Operand {
	op := &Operand{ndim: 0, segments: make([]Shape, n)}
	for i := range op.segments {
		op.segments[i] = Shape{}
	}
	return op
}

// OperandFromSegments creates an operand from an explicit segment list.
func OperandFromSegments(ndim int, segments []Shape) (*Operand, error) {
	op := NewOperand(ndim)
	for _, seg := range segments {
		if _, err := op.AddSegment(seg); err != nil {
			return nil, err
		}
	}
	return op, nil
}

// AddSegment appends a segment and returns its index.
//
// This is the only mutating operation on an operand and is reserved for
// descriptor assembly; every transformation pass builds fresh operands.
func (o *Operand) AddSegment(shape Shape) (int, error) {
	if len(shape) != o.ndim {
		return 0, &ShapeError{Operand: -1, Expected: make(Shape, o.ndim), Actual: shape,
			Details: fmt.Sprintf("segment rank must be %d", o.ndim)}
	}
	if err := shape.Validate(); err != nil {
		return 0, err
	}
	o.segments = append(o.segments, shape.Clone())
	return len(o.segments) - 1, nil
}

// NumSegments returns the number of segments.
func (o *Operand) NumSegments() int { return len(o.segments) }

// NDim returns the rank shared by every segment.
func (o *Operand) NDim() int { return o.ndim }

// Segment returns the shape of segment i.
func (o *Operand) Segment(i int) Shape { return o.segments[i].Clone() }

// Segments returns a copy of the segment list.
func (o *Operand) Segments() []Shape {
	out := make([]Shape, len(o.segments))
	for i, s := range o.segments {
		out[i] = s.Clone()
	}
	return out
}

// Size returns the total flattened element count.
func (o *Operand) Size() int {
	n := 0
	for _, s := range o.segments {
		n += s.Size()
	}
	return n
}

// SegmentOffset returns the offset of segment i into the flat buffer.
func (o *Operand) SegmentOffset(i int) int {
	n := 0
	for _, s := range o.segments[:i] {
		n += s.Size()
	}
	return n
}

// Equal reports structural equality.
func (o *Operand) Equal(other *Operand) bool {
	if o.ndim != other.ndim || len(o.segments) != len(other.segments) {
		return false
	}
	for i := range o.segments {
		if !o.segments[i].Equal(other.segments[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (o *Operand) Clone() *Operand {
	return &Operand{ndim: o.ndim, segments: o.Segments()}
}

// String returns a compact form like "{(3),(3),(1)}".
func (o *Operand) String() string {
	parts := make([]string, len(o.segments))
	for i, s := range o.segments {
		elems := make([]string, len(s))
		for j, d := range s {
			elems[j] = fmt.Sprint(d)
		}
		parts[i] = "(" + strings.Join(elems, ",") + ")"
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// ConcatOperands concatenates the segment lists of several operands of
// equal rank into one operand.
func ConcatOperands(ops []*Operand) (*Operand, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("cannot concatenate zero operands")
	}
	out := NewOperand(ops[0].ndim)
	for _, op := range ops {
		if op.ndim != out.ndim {
			return nil, &ArityError{Expected: out.ndim, Actual: op.ndim, Details: "operand rank in concatenation"}
		}
		out.segments = append(out.segments, op.Segments()...)
	}
	return out, nil
}
