package history

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/matrixcalc/dbopen"
	"github.com/hazyhaar/matrixcalc/matrix"
	"github.com/hazyhaar/matrixcalc/numparse"
)

var fixedNow = time.Date(2026, 10, 14, 9, 30, 15, 750_000_000, time.UTC)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	s, err := New(db, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestNew_NilDB(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil DB")
	}
}

func TestAppendAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := numparse.Matrix{{"1", "2"}, {"3", "4"}}
	b := numparse.Matrix{{"5", "6"}, {"7", "8"}}
	res := GridResult(matrix.Grid{{6, 8}, {10, 12}})

	id, ts, err := s.Append(ctx, "add", a, b, res)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d", id)
	}
	if ts != "2026-10-14 09:30:15" {
		t.Fatalf("time = %q, want second precision UTC", ts)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Operation != "add" || got.Time != ts {
		t.Errorf("unexpected record %+v", got)
	}
	if got.A[1][0] != "3" || got.B[0][1] != "6" {
		t.Errorf("operands not preserved: A=%v B=%v", got.A, got.B)
	}
	if got.Result.IsScalar || !matrix.Equal(got.Result.Grid, res.Grid, 0) {
		t.Errorf("result: got %+v", got.Result)
	}
}

func TestAppend_ScalarAndEmptyOperand(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, _, err := s.Append(ctx, "det-a", numparse.Matrix{{"5"}}, nil, ScalarResult(5))
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Result.IsScalar || got.Result.Scalar != 5 {
		t.Fatalf("scalar result lost: %+v", got.Result)
	}
	if len(got.B) != 0 {
		t.Fatalf("B should be empty, got %v", got.B)
	}

	data, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	json.Unmarshal(data, &raw)
	if string(raw["B"]) != "[]" {
		t.Errorf("B JSON = %s, want []", raw["B"])
	}
	if string(raw["result"]) != "5" {
		t.Errorf("result JSON = %s, want 5", raw["result"])
	}
}

func TestGet_NotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList_AscendingAndLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		id, _, err := s.Append(ctx, "ta", numparse.Matrix{{"1"}}, nil, GridResult(matrix.Grid{{1}}))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	all, err := s.List(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
	for i := range all {
		if all[i].ID != ids[i] {
			t.Fatalf("list[%d].ID = %d, want %d", i, all[i].ID, ids[i])
		}
	}
	if all[len(all)-1].ID != ids[len(ids)-1] {
		t.Fatal("newest record must be last")
	}

	first2, err := s.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(first2) != 2 || first2[0].ID != ids[0] || first2[1].ID != ids[1] {
		t.Fatalf("limit 2 must return the earliest records, got %v", first2)
	}

	none, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("limit 0: got %v", none)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, _, _ := s.Append(ctx, "ta", numparse.Matrix{{"1"}}, nil, GridResult(matrix.Grid{{1}}))
	if err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: %v", err)
	}
	// Idempotent.
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestClear_IDsNotReused(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, _, _ := s.Append(ctx, "ta", numparse.Matrix{{"1"}}, nil, GridResult(matrix.Grid{{1}}))
	s.Append(ctx, "ta", numparse.Matrix{{"2"}}, nil, GridResult(matrix.Grid{{2}}))
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("after clear: %d records", len(list))
	}
	n, _ := s.Count(ctx)
	if n != 0 {
		t.Fatalf("count = %d", n)
	}

	next, _, _ := s.Append(ctx, "ta", numparse.Matrix{{"3"}}, nil, GridResult(matrix.Grid{{3}}))
	if next <= first+1 {
		t.Fatalf("id %d reused after clear (first=%d)", next, first)
	}
}

func TestAppend_ConcurrentUniqueIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	const n = 20
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _, err := s.Append(context.Background(), "ta", numparse.Matrix{{"1"}}, nil, GridResult(matrix.Grid{{1}}))
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	count, err := s.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != n {
		t.Fatalf("count = %d, want %d", count, n)
	}
}

func TestResult_UnmarshalJSON(t *testing.T) {
	var r Result
	if err := json.Unmarshal([]byte(" [[1,2],[3,4]]"), &r); err != nil {
		t.Fatal(err)
	}
	if r.IsScalar || r.Grid[1][1] != 4 {
		t.Fatalf("grid: %+v", r)
	}
	if err := json.Unmarshal([]byte("-2.5"), &r); err != nil {
		t.Fatal(err)
	}
	if !r.IsScalar || r.Scalar != -2.5 {
		t.Fatalf("scalar: %+v", r)
	}
	if err := json.Unmarshal([]byte(`"x"`), &r); err == nil {
		t.Fatal("expected error for string result")
	}
}
