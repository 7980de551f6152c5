package poly

import "fmt"

// Operation maps a contraction's local operand slots to the polynomial's
// global buffer indices: element s is the buffer read or written by slot s.
// Buffers below the polynomial's input count are inputs, the rest outputs.
// A buffer index may repeat across slots (self-contraction, e.g. squaring
// an input); exactly one slot must reference an output buffer.
type Operation []int

// NewOperation creates an operation from global buffer indices.
func NewOperation(buffers ...int) Operation {
	op := make(Operation, len(buffers))
	copy(op, buffers)
	return op
}

// Clone returns a copy.
func (o Operation) Clone() Operation {
	out := make(Operation, len(o))
	copy(out, o)
	return out
}

// Equal reports elementwise equality.
func (o Operation) Equal(other Operation) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// compare orders operations lexicographically.
func (o Operation) compare(other Operation) int {
	for i := range o {
		if i >= len(other) {
			return 1
		}
		if d := o[i] - other[i]; d != 0 {
			return d
		}
	}
	return len(o) - len(other)
}

// destinationSlot returns the unique slot referencing an output buffer,
// given the polynomial's input count.
func (o Operation) destinationSlot(numInputs int) (int, error) {
	slot := -1
	for s, b := range o {
		if b >= numInputs {
			if slot >= 0 {
				return 0, fmt.Errorf("%w: operation %v references more than one output buffer", ErrArityMismatch, []int(o))
			}
			slot = s
		}
	}
	if slot < 0 {
		return 0, fmt.Errorf("%w: operation %v references no output buffer", ErrArityMismatch, []int(o))
	}
	return slot, nil
}

// String returns a compact form like "(0, 1, 2)".
func (o Operation) String() string {
	return fmt.Sprint([]int(o))
}
