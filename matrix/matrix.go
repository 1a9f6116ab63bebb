// CLAUDE:SUMMARY Dense float64 grid kernels (add, sub, mul, square, transpose, determinant) with shape checks.
// Package matrix implements the arithmetic kernels of the calculator over
// small dense grids. Every kernel validates its operands first and returns a
// freshly allocated result; inputs are never mutated.
//
// Shape violations are reported as *ShapeError, which matches
// ErrShapeMismatch through errors.Is.
package matrix

import (
	"errors"
	"fmt"
	"math"
)

// Grid is a rectangular numeric matrix stored row-major. A nil or zero-length
// Grid is the empty 0×0 matrix.
type Grid [][]float64

// ErrShapeMismatch marks operand dimensions that are incompatible with the
// requested operation.
var ErrShapeMismatch = errors.New("matrix: shape mismatch")

// ShapeError carries the human-readable relation that was violated.
type ShapeError struct {
	Msg string
}

func (e *ShapeError) Error() string { return e.Msg }

// Is reports whether target is ErrShapeMismatch.
func (e *ShapeError) Is(target error) bool { return target == ErrShapeMismatch }

// ShapeErrorf builds a *ShapeError with a formatted message.
func ShapeErrorf(format string, args ...any) error {
	return &ShapeError{Msg: fmt.Sprintf(format, args...)}
}

// Shape returns the row and column counts of g. Column count is taken from
// the first row; use Validate to check rectangularity.
func Shape(g Grid) (rows, cols int) {
	if len(g) == 0 {
		return 0, 0
	}
	return len(g), len(g[0])
}

// Validate checks that every row of g has the same length.
func Validate(g Grid) error {
	_, cols := Shape(g)
	for i, row := range g {
		if len(row) != cols {
			return ShapeErrorf("row %d has %d columns, want %d", i, len(row), cols)
		}
	}
	return nil
}

// IsSquare reports whether g is rectangular with rows == cols.
func IsSquare(g Grid) bool {
	r, c := Shape(g)
	return r == c && Validate(g) == nil
}

func alloc(rows, cols int) Grid {
	out := make(Grid, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}

// Identity returns the n×n identity grid.
func Identity(n int) Grid {
	out := alloc(n, n)
	for i := range n {
		out[i][i] = 1
	}
	return out
}

// Clone returns a deep copy of g.
func Clone(g Grid) Grid {
	out := make(Grid, len(g))
	for i, row := range g {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func sameShape(a, b Grid) error {
	if err := Validate(a); err != nil {
		return err
	}
	if err := Validate(b); err != nil {
		return err
	}
	ar, ac := Shape(a)
	br, bc := Shape(b)
	if ar != br || ac != bc {
		return ShapeErrorf("shape %dx%d does not match %dx%d", ar, ac, br, bc)
	}
	return nil
}

func addSub(a, b Grid, sign float64) (Grid, error) {
	if err := sameShape(a, b); err != nil {
		return nil, err
	}
	rows, cols := Shape(a)
	out := alloc(rows, cols)
	for i := range rows {
		for j := range cols {
			out[i][j] = a[i][j] + sign*b[i][j]
		}
	}
	return out, nil
}

// Add returns the elementwise sum a + b. Shapes must match.
func Add(a, b Grid) (Grid, error) { return addSub(a, b, 1) }

// Sub returns the elementwise difference a - b. Shapes must match.
func Sub(a, b Grid) (Grid, error) { return addSub(a, b, -1) }

// Mul returns the matrix product a × b. Requires cols(a) == rows(b).
func Mul(a, b Grid) (Grid, error) {
	if err := Validate(a); err != nil {
		return nil, err
	}
	if err := Validate(b); err != nil {
		return nil, err
	}
	ar, ac := Shape(a)
	br, bc := Shape(b)
	if ac != br {
		return nil, ShapeErrorf("cols(A)=%d must equal rows(B)=%d", ac, br)
	}
	out := alloc(ar, bc)
	for i := range ar {
		for k := range ac {
			aik := a[i][k]
			if aik == 0 {
				continue
			}
			for j := range bc {
				out[i][j] += aik * b[k][j]
			}
		}
	}
	return out, nil
}

// Square returns g × g. g must be square.
func Square(g Grid) (Grid, error) {
	if !IsSquare(g) {
		r, c := Shape(g)
		return nil, ShapeErrorf("matrix must be square, got %dx%d", r, c)
	}
	return Mul(g, g)
}

// Transpose returns gᵀ.
func Transpose(g Grid) (Grid, error) {
	if err := Validate(g); err != nil {
		return nil, err
	}
	rows, cols := Shape(g)
	out := alloc(cols, rows)
	for i := range rows {
		for j := range cols {
			out[j][i] = g[i][j]
		}
	}
	return out, nil
}

// Det returns the determinant of a square grid using Gaussian elimination
// with partial pivoting. The determinant of the empty grid is 1.
func Det(g Grid) (float64, error) {
	if !IsSquare(g) {
		r, c := Shape(g)
		return 0, ShapeErrorf("matrix must be square, got %dx%d", r, c)
	}
	n := len(g)
	lu := Clone(g)
	det := 1.0
	for k := range n {
		// Pivot on the largest magnitude in column k.
		p := k
		for i := k + 1; i < n; i++ {
			if math.Abs(lu[i][k]) > math.Abs(lu[p][k]) {
				p = i
			}
		}
		if lu[p][k] == 0 {
			return 0, nil
		}
		if p != k {
			lu[p], lu[k] = lu[k], lu[p]
			det = -det
		}
		pivot := lu[k][k]
		det *= pivot
		for i := k + 1; i < n; i++ {
			f := lu[i][k] / pivot
			if f == 0 {
				continue
			}
			for j := k; j < n; j++ {
				lu[i][j] -= f * lu[k][j]
			}
		}
	}
	return det, nil
}

// Equal reports whether a and b have the same shape and every pair of
// elements differs by at most tol.
func Equal(a, b Grid, tol float64) bool {
	if sameShape(a, b) != nil {
		return false
	}
	for i := range a {
		for j := range a[i] {
			if math.Abs(a[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}
