// CLAUDE:SUMMARY Parses cell text (decimals and "p/q" fractions) into float64 and converts whole matrices.
// Package numparse converts user-entered cell text into numbers.
//
// Accepted forms are plain decimals ("3", "-1.5", "2e3") and two-part
// fractions ("3/4"), split on the first slash. Units, thousands separators
// and nested fractions are rejected.
package numparse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hazyhaar/matrixcalc/matrix"
)

// ErrInvalidNumber is matched by every parse failure.
var ErrInvalidNumber = errors.New("numparse: invalid number")

// NumberError reports the literal text of the offending cell.
type NumberError struct {
	Text string
}

func (e *NumberError) Error() string {
	return fmt.Sprintf("Invalid input '%s' found. Please use valid numbers.", e.Text)
}

// Is reports whether target is ErrInvalidNumber.
func (e *NumberError) Is(target error) bool { return target == ErrInvalidNumber }

// Cell is one matrix entry as entered. It unmarshals from a JSON string or a
// JSON number; numbers keep their literal text.
type Cell string

// UnmarshalJSON implements json.Unmarshaler.
func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Cell(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("numparse: cell must be a string or a number: %w", err)
	}
	*c = Cell(n.String())
	return nil
}

// Matrix is a grid of cells, rows then columns. It marshals as [] when empty.
type Matrix [][]Cell

// MarshalJSON implements json.Marshaler.
func (m Matrix) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([][]Cell(m))
}

// Empty reports whether m has no rows.
func (m Matrix) Empty() bool { return len(m) == 0 }

// Parse converts one cell to a finite float64.
func Parse(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	var v float64
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := parseFloat(num)
		if err != nil {
			return 0, &NumberError{Text: cell}
		}
		d, err := parseFloat(den)
		if err != nil || d == 0 {
			return 0, &NumberError{Text: cell}
		}
		v = n / d
	} else {
		f, err := parseFloat(s)
		if err != nil {
			return 0, &NumberError{Text: cell}
		}
		v = f
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, &NumberError{Text: cell}
	}
	return v, nil
}

// decimal is the only accepted number syntax: optional sign, digits with an
// optional fraction, optional exponent. This keeps strconv's hex, underscore,
// inf and nan forms out.
var decimal = regexp.MustCompile(`^[+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?$`)

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !decimal.MatchString(s) {
		return 0, ErrInvalidNumber
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, ErrInvalidNumber
	}
	return f, nil
}

// ParseMatrix converts every cell of m. The first failing cell aborts the
// conversion and its error is returned unchanged.
func ParseMatrix(m Matrix) (matrix.Grid, error) {
	out := make(matrix.Grid, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		for j, cell := range row {
			v, err := Parse(string(cell))
			if err != nil {
				return nil, err
			}
			out[i][j] = v
		}
	}
	return out, nil
}
