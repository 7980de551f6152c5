package stp

import (
	"fmt"
	"strings"
)

// Subscripts declares, per operand, which modes (axis labels) a segmented
// contraction carries, plus the modes indexed by the path coefficients.
//
// The textual form lists one mode string per operand, separated by ',' (or
// equivalently '_'), optionally followed by '+' and the coefficient modes:
//
//	"uvw,iu,jv,kw+ijk"
//
// Modes are single lowercase letters. A mode shared between operands is
// contracted or broadcast elementwise depending on whether it also appears
// in the coefficient modes.
type Subscripts struct {
	operands     []string
	coefficients string
}

// ParseSubscripts parses the textual subscript form.
func ParseSubscripts(s string) (Subscripts, error) {
	coeff := ""
	if i := strings.IndexByte(s, '+'); i >= 0 {
		coeff = s[i+1:]
		s = s[:i]
		if strings.IndexByte(coeff, '+') >= 0 {
			return Subscripts{}, fmt.Errorf("invalid subscripts %q: multiple '+'", s)
		}
	}
	s = strings.ReplaceAll(s, "_", ",")
	operands := strings.Split(s, ",")
	sub := Subscripts{operands: operands, coefficients: coeff}
	if err := sub.validate(); err != nil {
		return Subscripts{}, err
	}
	return sub, nil
}

// MustParseSubscripts is ParseSubscripts that panics on invalid input.
// Intended for compile-time-constant subscript literals.
func MustParseSubscripts(s string) Subscripts {
	sub, err := ParseSubscripts(s)
	if err != nil {
		panic(err)
	}
	return sub
}

// scalarSubscripts returns subscripts for n operands with no modes at all
// (every segment is a scalar).
func scalarSubscripts(n int) Subscripts {
	return Subscripts{operands: make([]string, n)}
}

func (s Subscripts) validate() error {
	check := func(modes string, where string) error {
		seen := [26]bool{}
		for i := 0; i < len(modes); i++ {
			m := modes[i]
			if m < 'a' || m > 'z' {
				return fmt.Errorf("invalid mode %q in %s: modes must be lowercase letters", m, where)
			}
			if seen[m-'a'] {
				return fmt.Errorf("repeated mode %q in %s", m, where)
			}
			seen[m-'a'] = true
		}
		return nil
	}
	for i, modes := range s.operands {
		if err := check(modes, fmt.Sprintf("operand %d", i)); err != nil {
			return err
		}
	}
	if err := check(s.coefficients, "coefficients"); err != nil {
		return err
	}
	for i := 0; i < len(s.coefficients); i++ {
		m := s.coefficients[i]
		found := false
		for _, modes := range s.operands {
			if strings.IndexByte(modes, m) >= 0 {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("coefficient mode %q does not appear in any operand", m)
		}
	}
	return nil
}

// NumOperands returns the number of operand mode strings.
func (s Subscripts) NumOperands() int { return len(s.operands) }

// Operand returns the mode string of operand i.
func (s Subscripts) Operand(i int) string { return s.operands[i] }

// Coefficients returns the coefficient mode string.
func (s Subscripts) Coefficients() string { return s.coefficients }

// Modes returns every distinct mode in order of first appearance.
func (s Subscripts) Modes() []byte {
	var modes []byte
	seen := [26]bool{}
	add := func(str string) {
		for i := 0; i < len(str); i++ {
			if !seen[str[i]-'a'] {
				seen[str[i]-'a'] = true
				modes = append(modes, str[i])
			}
		}
	}
	for _, op := range s.operands {
		add(op)
	}
	add(s.coefficients)
	return modes
}

// HasMode reports whether the mode appears anywhere in the subscripts.
func (s Subscripts) HasMode(m byte) bool {
	for _, op := range s.operands {
		if strings.IndexByte(op, m) >= 0 {
			return true
		}
	}
	return strings.IndexByte(s.coefficients, m) >= 0
}

// Equal reports structural equality.
func (s Subscripts) Equal(other Subscripts) bool {
	if len(s.operands) != len(other.operands) || s.coefficients != other.coefficients {
		return false
	}
	for i := range s.operands {
		if s.operands[i] != other.operands[i] {
			return false
		}
	}
	return true
}

// String returns the canonical textual form.
func (s Subscripts) String() string {
	out := strings.Join(s.operands, ",")
	if s.coefficients != "" {
		out += "+" + s.coefficients
	}
	return out
}

// withOperand returns a copy with operand i's mode string replaced.
func (s Subscripts) withOperand(i int, modes string) Subscripts {
	ops := make([]string, len(s.operands))
	copy(ops, s.operands)
	ops[i] = modes
	return Subscripts{operands: ops, coefficients: s.coefficients}
}

// withCoefficients returns a copy with the coefficient mode string replaced.
func (s Subscripts) withCoefficients(modes string) Subscripts {
	ops := make([]string, len(s.operands))
	copy(ops, s.operands)
	return Subscripts{operands: ops, coefficients: modes}
}
