// Package serialization persists segmented polynomials in the .cueq
// container: a fixed binary header carrying magic bytes, a format version
// and a SHA-256 payload checksum, followed by a JSON payload describing
// buffers, contractions and paths. Decoding rebuilds the polynomial through
// the regular constructors, so a tampered file fails validation rather than
// producing a malformed descriptor.
package serialization

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/LiamZhang100/cuEquivariance/internal/poly"
	"github.com/LiamZhang100/cuEquivariance/internal/stp"
)

// Format constants.
const (
	MagicBytes      = "CUEQ"
	FormatVersion   = 1
	FixedHeaderSize = 4 + 4 + 8 + 32 // magic, version, payload length, checksum
)

// Header is the JSON payload of a .cueq file.
type Header struct {
	FormatVersion int             `json:"format_version"`
	Inputs        []operandMeta   `json:"inputs"`
	Outputs       []operandMeta   `json:"outputs"`
	Operations    []operationMeta `json:"operations"`
}

type operandMeta struct {
	NDim     int     `json:"ndim"`
	Segments [][]int `json:"segments"`
}

type operationMeta struct {
	Buffers    []int         `json:"buffers"`
	Subscripts string        `json:"subscripts"`
	Operands   []operandMeta `json:"operands"`
	Paths      []pathMeta    `json:"paths"`
}

type pathMeta struct {
	Indices      []int     `json:"indices"`
	CoeffShape   []int     `json:"coeff_shape"`
	Coefficients []float64 `json:"coefficients"`
}

// Encode renders the polynomial into the .cueq container bytes.
func Encode(p *poly.SegmentedPolynomial) ([]byte, error) {
	h := Header{
		FormatVersion: FormatVersion,
		Inputs:        operandsMeta(p.Inputs()),
		Outputs:       operandsMeta(p.Outputs()),
	}
	for _, tp := range p.Operations() {
		om := operationMeta{
			Buffers:    tp.Operation,
			Subscripts: tp.STP.Subscripts().String(),
			Operands:   operandsMeta(tp.STP.Operands()),
		}
		for _, path := range tp.STP.Paths() {
			coeff := path.Coefficients()
			om.Paths = append(om.Paths, pathMeta{
				Indices:      path.Indices(),
				CoeffShape:   coeff.Shape(),
				Coefficients: coeff.Data(),
			})
		}
		h.Operations = append(h.Operations, om)
	}
	payload, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(MagicBytes)
	var fixed [FixedHeaderSize - 4]byte
	binary.LittleEndian.PutUint32(fixed[0:4], FormatVersion)
	binary.LittleEndian.PutUint64(fixed[4:12], uint64(len(payload)))
	sum := sha256.Sum256(payload)
	copy(fixed[12:44], sum[:])
	buf.Write(fixed[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Decode parses .cueq container bytes back into a polynomial.
func Decode(data []byte) (*poly.SegmentedPolynomial, error) {
	if len(data) < FixedHeaderSize {
		return nil, ErrTruncated
	}
	if string(data[:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	length := binary.LittleEndian.Uint64(data[8:16])
	payload := data[FixedHeaderSize:]
	if uint64(len(payload)) != length {
		return nil, ErrTruncated
	}
	sum := sha256.Sum256(payload)
	if !bytes.Equal(sum[:], data[16:48]) {
		return nil, ErrChecksumMismatch
	}

	var h Header
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, err
	}
	inputs, err := metaOperands(h.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := metaOperands(h.Outputs)
	if err != nil {
		return nil, err
	}
	var operations []poly.TensorProduct
	for k, om := range h.Operations {
		d, err := stp.FromSubscripts(om.Subscripts)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", k, err)
		}
		for j, meta := range om.Operands {
			for _, seg := range meta.Segments {
				if _, err := d.AddSegment(j, seg); err != nil {
					return nil, fmt.Errorf("operation %d: %w", k, err)
				}
			}
		}
		for _, pm := range om.Paths {
			coeff, err := stp.NewCoefficients(pm.CoeffShape, pm.Coefficients)
			if err != nil {
				return nil, fmt.Errorf("operation %d: %w", k, err)
			}
			if err := d.AddPath(pm.Indices, coeff); err != nil {
				return nil, fmt.Errorf("operation %d: %w", k, err)
			}
		}
		operations = append(operations, poly.TensorProduct{
			Operation: poly.NewOperation(om.Buffers...),
			STP:       d,
		})
	}
	return poly.New(inputs, outputs, operations)
}

// Save writes the polynomial to path atomically via a temp file rename.
func Save(path string, p *poly.SegmentedPolynomial) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Load reads a polynomial from a .cueq file.
func Load(path string) (*poly.SegmentedPolynomial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func operandsMeta(ops []*stp.Operand) []operandMeta {
	out := make([]operandMeta, len(ops))
	for i, op := range ops {
		meta := operandMeta{NDim: op.NDim(), Segments: make([][]int, op.NumSegments())}
		for s := 0; s < op.NumSegments(); s++ {
			meta.Segments[s] = op.Segment(s)
		}
		out[i] = meta
	}
	return out
}

func metaOperands(metas []operandMeta) ([]*stp.Operand, error) {
	out := make([]*stp.Operand, len(metas))
	for i, meta := range metas {
		segments := make([]stp.Shape, len(meta.Segments))
		for s, seg := range meta.Segments {
			segments[s] = seg
		}
		op, err := stp.OperandFromSegments(meta.NDim, segments)
		if err != nil {
			return nil, fmt.Errorf("buffer %d: %w", i, err)
		}
		out[i] = op
	}
	return out, nil
}
