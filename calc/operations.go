// CLAUDE:SUMMARY Operation descriptor table mapping each calculator operation to its label, consumed operands and compute func.
package calc

import (
	"errors"
	"math"

	"github.com/hazyhaar/matrixcalc/history"
	"github.com/hazyhaar/matrixcalc/matrix"
)

// ErrInvalidOperation is returned for operation names outside the table.
var ErrInvalidOperation = errors.New("Invalid operation")

// ErrResultOutOfRange is returned when a computation overflows to ±Inf or NaN.
var ErrResultOutOfRange = errors.New("Result is out of range")

// Operation describes one calculator operation. Compute receives parsed grids
// only for the operands the operation consumes; the others are nil.
type Operation struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	NeedsA  bool   `json:"needs_a"`
	NeedsB  bool   `json:"needs_b"`
	compute func(a, b matrix.Grid) (history.Result, error)
}

// shaped replaces a kernel shape failure with the operation's own message.
func shaped(msg string, g matrix.Grid, err error) (history.Result, error) {
	if err != nil {
		return history.Result{}, &matrix.ShapeError{Msg: msg}
	}
	return history.GridResult(g), nil
}

var operations = []Operation{
	{Name: "add", Label: "Addition", NeedsA: true, NeedsB: true,
		compute: func(a, b matrix.Grid) (history.Result, error) {
			g, err := matrix.Add(a, b)
			return shaped("Matrix sizes must match for addition", g, err)
		}},
	{Name: "sub", Label: "Subtraction", NeedsA: true, NeedsB: true,
		compute: func(a, b matrix.Grid) (history.Result, error) {
			g, err := matrix.Sub(a, b)
			return shaped("Matrix sizes must match for subtraction", g, err)
		}},
	{Name: "mul", Label: "Multiplication", NeedsA: true, NeedsB: true,
		compute: func(a, b matrix.Grid) (history.Result, error) {
			g, err := matrix.Mul(a, b)
			return shaped("For multiplication: cols(A) must equal rows(B)", g, err)
		}},
	{Name: "a2", Label: "A^2", NeedsA: true,
		compute: func(a, _ matrix.Grid) (history.Result, error) {
			g, err := matrix.Square(a)
			return shaped("Matrix A must be square for A^2", g, err)
		}},
	{Name: "b2", Label: "B^2", NeedsB: true,
		compute: func(_, b matrix.Grid) (history.Result, error) {
			g, err := matrix.Square(b)
			return shaped("Matrix B must be square for B^2", g, err)
		}},
	{Name: "ta", Label: "T(A)", NeedsA: true,
		compute: func(a, _ matrix.Grid) (history.Result, error) {
			g, err := matrix.Transpose(a)
			return shaped("Matrix A must be rectangular to transpose", g, err)
		}},
	{Name: "tb", Label: "T(B)", NeedsB: true,
		compute: func(_, b matrix.Grid) (history.Result, error) {
			g, err := matrix.Transpose(b)
			return shaped("Matrix B must be rectangular to transpose", g, err)
		}},
	{Name: "det-a", Label: "|A|", NeedsA: true,
		compute: func(a, _ matrix.Grid) (history.Result, error) {
			d, err := matrix.Det(a)
			if err != nil {
				return history.Result{}, &matrix.ShapeError{Msg: "Matrix A must be square to calculate the determinant"}
			}
			return history.ScalarResult(d), nil
		}},
	{Name: "det-b", Label: "|B|", NeedsB: true,
		compute: func(_, b matrix.Grid) (history.Result, error) {
			d, err := matrix.Det(b)
			if err != nil {
				return history.Result{}, &matrix.ShapeError{Msg: "Matrix B must be square to calculate the determinant"}
			}
			return history.ScalarResult(d), nil
		}},
}

var byName = func() map[string]*Operation {
	m := make(map[string]*Operation, len(operations))
	for i := range operations {
		m[operations[i].Name] = &operations[i]
	}
	return m
}()

// Lookup returns the descriptor for name.
func Lookup(name string) (*Operation, error) {
	op, ok := byName[name]
	if !ok {
		return nil, ErrInvalidOperation
	}
	return op, nil
}

// Operations returns the descriptor table in display order.
func Operations() []Operation {
	return append([]Operation(nil), operations...)
}

// Label returns the display label of name, or name itself when unknown.
func Label(name string) string {
	if op, ok := byName[name]; ok {
		return op.Label
	}
	return name
}

func finite(r history.Result) bool {
	if r.IsScalar {
		return !math.IsInf(r.Scalar, 0) && !math.IsNaN(r.Scalar)
	}
	for _, row := range r.Grid {
		for _, v := range row {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				return false
			}
		}
	}
	return true
}
