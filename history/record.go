package history

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/matrixcalc/matrix"
	"github.com/hazyhaar/matrixcalc/numparse"
)

// TimeLayout is the second-precision UTC layout of Record.Time.
const TimeLayout = "2006-01-02 15:04:05"

// Record is one persisted computation.
type Record struct {
	ID        int64           `json:"id"`
	Operation string          `json:"operation"`
	A         numparse.Matrix `json:"A"`
	B         numparse.Matrix `json:"B"`
	Result    Result          `json:"result"`
	Time      string          `json:"time"`
}

// Result is the outcome of an operation: a grid, or a single scalar for
// determinants. It marshals as a JSON array of arrays or a bare number.
type Result struct {
	Grid     matrix.Grid
	Scalar   float64
	IsScalar bool
}

// GridResult wraps a grid.
func GridResult(g matrix.Grid) Result { return Result{Grid: g} }

// ScalarResult wraps a scalar.
func ScalarResult(v float64) Result { return Result{Scalar: v, IsScalar: true} }

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.IsScalar {
		return json.Marshal(r.Scalar)
	}
	if r.Grid == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([][]float64(r.Grid))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Result) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var g [][]float64
		if err := json.Unmarshal(data, &g); err != nil {
			return fmt.Errorf("history: decode result grid: %w", err)
		}
		*r = GridResult(g)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("history: decode result scalar: %w", err)
	}
	*r = ScalarResult(v)
	return nil
}
