// Package eval executes segmented polynomials on flat float64 buffers. It
// provides a straightforward reference interpreter meant for testing
// descriptors and for small workloads; large batches are split across CPUs.
package eval

import (
	"errors"
	"fmt"
	"sort"

	"github.com/LiamZhang100/cuEquivariance/internal/parallel"
	"github.com/LiamZhang100/cuEquivariance/internal/poly"
	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// ErrImplUnavailable reports that the requested implementation is not built
// into this binary.
var ErrImplUnavailable = errors.New("requested implementation is unavailable")

// Impl selects the execution engine.
type Impl int

const (
	// ImplAuto picks the best available engine.
	ImplAuto Impl = iota
	// ImplReference forces the portable interpreter.
	ImplReference
	// ImplAccelerated requests a fused GPU engine. None ships with this
	// module, so selecting it explicitly fails with ErrImplUnavailable.
	ImplAccelerated
)

// Options configures an evaluation.
type Options struct {
	Impl Impl

	// Parallel controls how batch rows are split across workers. The zero
	// value runs single-threaded; use parallel.DefaultConfig to enable.
	Parallel parallel.Config

	// Indices optionally maps a buffer index to a per-row gather (for
	// inputs) or scatter-add (for outputs) index list. Each list must have
	// one entry per batch row, selecting the buffer row to read or
	// accumulate into.
	Indices map[int][]int
}

// Evaluate runs the polynomial on a single batch row.
func Evaluate(p *poly.SegmentedPolynomial, inputs [][]float64, opts Options) ([][]float64, error) {
	return EvaluateBatch(p, inputs, 1, opts)
}

// EvaluateBatch runs the polynomial over batch rows. Each input slice holds
// either size values, shared by every row, or rows*size values laid out
// row-major; buffers addressed through opts.Indices may hold any number of
// rows. Outputs are always allocated with batch rows unless scattered.
func EvaluateBatch(p *poly.SegmentedPolynomial, inputs [][]float64, batch int, opts Options) ([][]float64, error) {
	if opts.Impl == ImplAccelerated {
		return nil, fmt.Errorf("%w: no accelerated engine built in", ErrImplUnavailable)
	}
	if batch < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batch)
	}
	if len(inputs) != p.NumInputs() {
		return nil, &stp.ArityError{Expected: p.NumInputs(), Actual: len(inputs), Details: "input buffers"}
	}

	numIn := p.NumInputs()
	sizes := make([]int, p.NumOperands())
	batched := make([]bool, numIn)
	for i := 0; i < p.NumOperands(); i++ {
		sizes[i] = p.Operand(i).Size()
	}
	for i, in := range inputs {
		size := sizes[i]
		if size == 0 {
			continue
		}
		switch {
		case opts.Indices[i] != nil:
			if len(opts.Indices[i]) != batch {
				return nil, fmt.Errorf("gather indices for buffer %d: want %d rows, got %d", i, batch, len(opts.Indices[i]))
			}
			if len(in)%size != 0 {
				return nil, &stp.ShapeError{Operand: i, Expected: stp.Shape{size}, Actual: stp.Shape{len(in)},
					Details: "gathered buffer length must be a multiple of the operand size"}
			}
			batched[i] = true
		case len(in) == size:
			batched[i] = false
		case len(in) == batch*size:
			batched[i] = true
		default:
			return nil, &stp.ShapeError{Operand: i, Expected: stp.Shape{batch * size}, Actual: stp.Shape{len(in)},
				Details: "input buffer length"}
		}
	}

	outputs := make([][]float64, p.NumOutputs())
	outRows := make([]int, p.NumOutputs())
	for o := range outputs {
		rows := batch
		if idx := opts.Indices[numIn+o]; idx != nil {
			if len(idx) != batch {
				return nil, fmt.Errorf("scatter indices for buffer %d: want %d rows, got %d", numIn+o, batch, len(idx))
			}
			rows = 0
			for _, r := range idx {
				if r < 0 {
					return nil, fmt.Errorf("scatter indices for buffer %d: negative row %d", numIn+o, r)
				}
				rows = max(rows, r+1)
			}
		}
		outRows[o] = rows
		outputs[o] = make([]float64, rows*sizes[numIn+o])
	}

	programs, err := compile(p)
	if err != nil {
		return nil, err
	}

	row := func(r int) {
		for _, pg := range programs {
			pg.run(r, inputs, outputs, numIn, sizes, batched, opts.Indices)
		}
	}

	scatter := false
	for o := range outputs {
		if opts.Indices[numIn+o] != nil {
			scatter = true
		}
	}
	cfg := opts.Parallel
	if scatter {
		cfg.Enabled = false // Scatter-add rows may collide.
	}
	parallel.For(batch, row, cfg)
	return outputs, nil
}

// program is one operation lowered to a list of path kernels.
type program struct {
	buffers []int
	dest    int // Slot writing the output buffer.
	paths   []pathKernel
}

// pathKernel precomputes the iteration space of one path: the distinct
// modes in order, their extents, and for every slot the segment offset plus
// per-mode strides into the segment (0 for modes the slot does not carry).
type pathKernel struct {
	extents     []int
	offsets     []int     // Per slot, flat offset of the selected segment.
	strides     [][]int   // Per slot, stride per mode into the segment.
	coeff       []float64 // Row-major coefficient data.
	coeffStride []int     // Stride per mode into the coefficient tensor.
}

func compile(p *poly.SegmentedPolynomial) ([]program, error) {
	numIn := p.NumInputs()
	programs := make([]program, 0, p.NumOperations())
	for _, tp := range p.Operations() {
		pg := program{buffers: tp.Operation, dest: -1}
		for s, b := range tp.Operation {
			if b >= numIn {
				pg.dest = s
			}
		}
		if pg.dest < 0 {
			return nil, &stp.ArityError{Expected: 1, Actual: 0, Details: "output slots in operation"}
		}
		sub := tp.STP.Subscripts()
		for _, path := range tp.STP.Paths() {
			extents, err := tp.STP.ModeExtents(path)
			if err != nil {
				return nil, err
			}
			modes := make([]byte, 0, len(extents))
			for m := range extents {
				modes = append(modes, m)
			}
			sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
			pos := make(map[byte]int, len(modes))
			for k, m := range modes {
				pos[m] = k
			}

			k := pathKernel{
				extents:     make([]int, len(modes)),
				offsets:     make([]int, tp.STP.NumOperands()),
				strides:     make([][]int, tp.STP.NumOperands()),
				coeffStride: make([]int, len(modes)),
			}
			for i, m := range modes {
				k.extents[i] = extents[m]
			}
			for s := 0; s < tp.STP.NumOperands(); s++ {
				operand := tp.STP.Operand(s)
				idx := path.Index(s)
				seg := operand.Segment(idx)
				segStrides := seg.Strides()
				k.offsets[s] = operand.SegmentOffset(idx)
				k.strides[s] = make([]int, len(modes))
				opModes := sub.Operand(s)
				for a := 0; a < len(opModes); a++ {
					k.strides[s][pos[opModes[a]]] = segStrides[a]
				}
			}
			empty := false
			for _, e := range k.extents {
				if e == 0 {
					empty = true
				}
			}
			if empty {
				continue // Nothing to accumulate.
			}
			coeff := path.Coefficients()
			k.coeff = coeff.Data()
			cStrides := coeff.Shape().Strides()
			for a, m := range []byte(sub.Coefficients()) {
				k.coeffStride[pos[m]] = cStrides[a]
			}
			pg.paths = append(pg.paths, k)
		}
		programs = append(programs, pg)
	}
	return programs, nil
}

func (pg *program) run(row int, inputs, outputs [][]float64, numIn int, sizes []int, batched []bool, indices map[int][]int) {
	base := make([]int, len(pg.buffers))
	views := make([][]float64, len(pg.buffers))
	for s, b := range pg.buffers {
		if b < numIn {
			views[s] = inputs[b]
			if batched[b] {
				r := row
				if idx := indices[b]; idx != nil {
					r = idx[row]
				}
				base[s] = r * sizes[b]
			}
		} else {
			views[s] = outputs[b-numIn]
			r := row
			if idx := indices[b]; idx != nil {
				r = idx[row]
			}
			base[s] = r * sizes[b]
		}
	}

	for _, k := range pg.paths {
		iter := make([]int, len(k.extents))
		for {
			cOff := 0
			for a, i := range iter {
				cOff += i * k.coeffStride[a]
			}
			v := k.coeff[cOff]
			if v != 0 {
				dOff := 0
				for s := range pg.buffers {
					off := k.offsets[s]
					for a, i := range iter {
						off += i * k.strides[s][a]
					}
					if s == pg.dest {
						dOff = base[s] + off
						continue
					}
					v *= views[s][base[s]+off]
				}
				views[pg.dest][dOff] += v
			}
			// Odometer increment over the mode extents.
			a := len(iter) - 1
			for ; a >= 0; a-- {
				iter[a]++
				if iter[a] < k.extents[a] {
					break
				}
				iter[a] = 0
			}
			if a < 0 {
				break
			}
		}
	}
}
