package calc

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/matrixcalc/dbopen"
	"github.com/hazyhaar/matrixcalc/history"
	"github.com/hazyhaar/matrixcalc/matrix"
	"github.com/hazyhaar/matrixcalc/numparse"
	"github.com/hazyhaar/matrixcalc/snapshot"
)

var fixedNow = time.Date(2026, 10, 14, 9, 30, 15, 0, time.UTC)

const fixedStamp = "2026-10-14 09:30:15"

func testService(t *testing.T) *Service {
	t.Helper()
	store, err := history.New(dbopen.OpenMemory(t), history.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	renderer, err := snapshot.New(filepath.Join(t.TempDir(), "saved_pages"), snapshot.WithLabeler(Label))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	svc, err := NewService(store, renderer)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

var (
	matA = numparse.Matrix{{"1", "2"}, {"3", "4"}}
	matB = numparse.Matrix{{"5", "6"}, {"7", "8"}}
)

func TestOperations_Table(t *testing.T) {
	ops := Operations()
	if len(ops) != 9 {
		t.Fatalf("expected 9 operations, got %d", len(ops))
	}
	for _, op := range ops {
		if !op.NeedsA && !op.NeedsB {
			t.Errorf("%s consumes no operand", op.Name)
		}
		if got, err := Lookup(op.Name); err != nil || got.Label != op.Label {
			t.Errorf("Lookup(%s) = %v, %v", op.Name, got, err)
		}
	}
	if _, err := Lookup("inverse"); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
	if Label("det-a") != "|A|" || Label("nope") != "nope" {
		t.Fatal("unexpected labels")
	}
}

func TestCalculate_AllOperations(t *testing.T) {
	tests := []struct {
		op     string
		grid   matrix.Grid
		scalar float64
		det    bool
	}{
		{op: "add", grid: matrix.Grid{{6, 8}, {10, 12}}},
		{op: "sub", grid: matrix.Grid{{-4, -4}, {-4, -4}}},
		{op: "mul", grid: matrix.Grid{{19, 22}, {43, 50}}},
		{op: "a2", grid: matrix.Grid{{7, 10}, {15, 22}}},
		{op: "b2", grid: matrix.Grid{{67, 78}, {91, 106}}},
		{op: "ta", grid: matrix.Grid{{1, 3}, {2, 4}}},
		{op: "tb", grid: matrix.Grid{{5, 7}, {6, 8}}},
		{op: "det-a", scalar: -2, det: true},
		{op: "det-b", scalar: -2, det: true},
	}
	svc := testService(t)
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			out, err := svc.Calculate(ctx, Request{A: matA, B: matB, Operation: tt.op})
			if err != nil {
				t.Fatal(err)
			}
			if out.Time != fixedStamp {
				t.Errorf("time = %q", out.Time)
			}
			if tt.det {
				if !out.Result.IsScalar || math.Abs(out.Result.Scalar-tt.scalar) > 1e-9 {
					t.Fatalf("result = %+v, want %v", out.Result, tt.scalar)
				}
				return
			}
			if !matrix.Equal(out.Result.Grid, tt.grid, 1e-9) {
				t.Fatalf("result = %v, want %v", out.Result.Grid, tt.grid)
			}
		})
	}
}

func TestCalculate_NullsOutUnusedOperand(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	out, err := svc.Calculate(ctx, Request{A: matA, B: numparse.Matrix{{"junk"}}, Operation: "ta"})
	if err != nil {
		t.Fatalf("unused operand must not be parsed: %v", err)
	}
	rec, err := svc.Entry(ctx, out.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.B.Empty() || rec.A.Empty() {
		t.Fatalf("stored A=%v B=%v", rec.A, rec.B)
	}

	out, err = svc.Calculate(ctx, Request{A: matA, B: matB, Operation: "det-b"})
	if err != nil {
		t.Fatal(err)
	}
	rec, err = svc.Entry(ctx, out.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.A.Empty() || rec.B.Empty() {
		t.Fatalf("stored A=%v B=%v", rec.A, rec.B)
	}
}

func TestCalculate_BinaryKeepsRawOperands(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	a := numparse.Matrix{{"1/2", " 2 "}, {"3", "4"}}
	out, err := svc.Calculate(ctx, Request{A: a, B: matB, Operation: "add"})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := svc.Entry(ctx, out.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.A[0][0] != "1/2" || rec.A[0][1] != " 2 " {
		t.Fatalf("raw text not kept: %v", rec.A)
	}
	if out.Result.Grid[0][0] != 5.5 {
		t.Fatalf("result = %v", out.Result.Grid)
	}
}

func TestCalculate_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
		msg  string
	}{
		{"invalid number", Request{A: numparse.Matrix{{"1", "abc"}}, B: matB, Operation: "add"},
			numparse.ErrInvalidNumber, "Invalid input 'abc' found. Please use valid numbers."},
		{"zero denominator", Request{A: numparse.Matrix{{"1/0"}}, Operation: "ta"},
			numparse.ErrInvalidNumber, "Invalid input '1/0' found. Please use valid numbers."},
		{"hex float", Request{A: numparse.Matrix{{"0x1p-2"}}, Operation: "det-a"},
			numparse.ErrInvalidNumber, "Invalid input '0x1p-2' found. Please use valid numbers."},
		{"digit separator", Request{A: numparse.Matrix{{"1_000"}}, Operation: "ta"},
			numparse.ErrInvalidNumber, "Invalid input '1_000' found. Please use valid numbers."},
		{"add shape", Request{A: matA, B: numparse.Matrix{{"1"}}, Operation: "add"},
			matrix.ErrShapeMismatch, "Matrix sizes must match for addition"},
		{"sub shape", Request{A: matA, B: numparse.Matrix{{"1"}}, Operation: "sub"},
			matrix.ErrShapeMismatch, "Matrix sizes must match for subtraction"},
		{"mul shape", Request{A: numparse.Matrix{{"1", "2", "3"}}, B: matB, Operation: "mul"},
			matrix.ErrShapeMismatch, "For multiplication: cols(A) must equal rows(B)"},
		{"a2 square", Request{A: numparse.Matrix{{"1", "2"}}, Operation: "a2"},
			matrix.ErrShapeMismatch, "Matrix A must be square for A^2"},
		{"b2 square", Request{B: numparse.Matrix{{"1", "2"}}, Operation: "b2"},
			matrix.ErrShapeMismatch, "Matrix B must be square for B^2"},
		{"det-a square", Request{A: numparse.Matrix{{"1", "2"}}, Operation: "det-a"},
			matrix.ErrShapeMismatch, "Matrix A must be square to calculate the determinant"},
		{"det-b square", Request{B: numparse.Matrix{{"1", "2"}}, Operation: "det-b"},
			matrix.ErrShapeMismatch, "Matrix B must be square to calculate the determinant"},
		{"empty operand", Request{A: matA, Operation: "add"},
			matrix.ErrShapeMismatch, "Matrix B must not be empty"},
		{"ragged operand", Request{A: numparse.Matrix{{"1", "2"}, {"3"}}, Operation: "ta"},
			matrix.ErrShapeMismatch, "Matrix A must be rectangular"},
		{"unknown op", Request{A: matA, B: matB, Operation: "inv"},
			ErrInvalidOperation, "Invalid operation"},
		{"overflow", Request{A: numparse.Matrix{{"1e308"}}, B: numparse.Matrix{{"1e308"}}, Operation: "add"},
			ErrResultOutOfRange, "Result is out of range"},
	}

	svc := testService(t)
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Calculate(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if err.Error() != tt.msg {
				t.Fatalf("message = %q, want %q", err.Error(), tt.msg)
			}
			if !IsClientError(err) {
				t.Fatal("expected a client error")
			}
		})
	}

	n, err := svc.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("failed calculations were persisted: %d", n)
	}
}

func TestCalculate_WritesSnapshot(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	out, err := svc.Calculate(ctx, Request{A: matA, B: matB, Operation: "add"})
	if err != nil {
		t.Fatal(err)
	}
	f, err := svc.Renderer().Open(snapshot.FileName(out.ID, out.Time))
	if err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	f.Close()
}

func TestCalculate_SnapshotFailureIsSoft(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	dir := svc.Renderer().Dir()
	// Replace the pages directory with a file so writes fail.
	if err := removeAndTouch(dir); err != nil {
		t.Fatal(err)
	}
	out, err := svc.Calculate(ctx, Request{A: matA, B: matB, Operation: "add"})
	if err != nil {
		t.Fatalf("render failure leaked: %v", err)
	}
	if _, err := svc.Entry(ctx, out.ID); err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
}

func TestHistory_Limits(t *testing.T) {
	store, err := history.New(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	renderer, err := snapshot.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc, err := NewService(store, renderer, WithHistoryLimits(2, 3))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for range 5 {
		if _, err := svc.Calculate(ctx, Request{A: matA, Operation: "ta"}); err != nil {
			t.Fatal(err)
		}
	}

	for _, tc := range []struct{ limit, want int }{{0, 2}, {-1, 2}, {1, 1}, {3, 3}, {100, 3}} {
		recs, err := svc.History(ctx, tc.limit)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != tc.want {
			t.Errorf("History(%d): %d records, want %d", tc.limit, len(recs), tc.want)
		}
		for i := 1; i < len(recs); i++ {
			if recs[i].ID <= recs[i-1].ID {
				t.Errorf("History(%d) not ascending", tc.limit)
			}
		}
	}
}

func TestDeleteEntry(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	out, err := svc.Calculate(ctx, Request{A: matA, B: matB, Operation: "mul"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteEntry(ctx, out.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Entry(ctx, out.ID); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Renderer().Open(snapshot.FileName(out.ID, out.Time)); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("snapshot survived delete: %v", err)
	}
	if err := svc.DeleteEntry(ctx, 999); err != nil {
		t.Fatalf("deleting an unknown id: %v", err)
	}
}

func TestClearHistory(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	var last int64
	for _, op := range []string{"add", "det-a", "tb"} {
		out, err := svc.Calculate(ctx, Request{A: matA, B: matB, Operation: op})
		if err != nil {
			t.Fatal(err)
		}
		last = out.ID
	}
	if err := svc.ClearHistory(ctx); err != nil {
		t.Fatal(err)
	}
	recs, err := svc.History(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Fatalf("history not empty: %d", len(recs))
	}
	pages, err := svc.Renderer().List()
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 0 {
		t.Fatalf("pages left: %v", pages)
	}

	out, err := svc.Calculate(ctx, Request{A: matA, Operation: "ta"})
	if err != nil {
		t.Fatal(err)
	}
	if out.ID <= last {
		t.Fatalf("id reused after clear: %d <= %d", out.ID, last)
	}
}

func TestEntryMarkdown(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	out, err := svc.Calculate(ctx, Request{A: matA, B: matB, Operation: "add"})
	if err != nil {
		t.Fatal(err)
	}
	md, err := svc.EntryMarkdown(ctx, out.ID)
	if err != nil {
		t.Fatal(err)
	}
	if md == "" {
		t.Fatal("empty markdown")
	}
	if _, err := svc.EntryMarkdown(ctx, 404); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewService_Required(t *testing.T) {
	if _, err := NewService(nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func removeAndTouch(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}
