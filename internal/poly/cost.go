package poly

import "github.com/LiamZhang100/cuEquivariance/internal/stp"

// Flop estimates the multiply-add work of one evaluation over the given
// batch size: two operations per non-zero coefficient per elementwise lane,
// summed over every path of every operation.
func (p *SegmentedPolynomial) Flop(batchSize int) (int, error) {
	total := 0
	for _, tp := range p.operations {
		f, err := tp.STP.Flop(batchSize)
		if err != nil {
			return 0, err
		}
		total += f
	}
	return total, nil
}

// Memory estimates the element traffic of one evaluation: each buffer
// contributes its flattened size times its caller-supplied batch size.
func (p *SegmentedPolynomial) Memory(batchSizes []int) (int, error) {
	if len(batchSizes) != p.NumOperands() {
		return 0, &stp.ArityError{Expected: p.NumOperands(), Actual: len(batchSizes), Details: "per-buffer batch sizes"}
	}
	total := 0
	for i, n := range batchSizes {
		total += n * p.Operand(i).Size()
	}
	return total, nil
}
