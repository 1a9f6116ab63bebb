// CLAUDE:SUMMARY SQLite-backed append-only computation log: append, list ascending, get, delete, clear.
// Package history persists every successful calculation on SQLite.
//
// Listing is ascending by id: List(n) returns the n earliest records, not the
// n most recent. Callers that want recent entries ask for a larger limit.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/matrixcalc/dbopen"
	"github.com/hazyhaar/matrixcalc/numparse"
)

// ErrNotFound is returned by Get when no record has the requested id.
var ErrNotFound = errors.New("history: record not found")

// Store is the history database handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

type options struct {
	now    func() time.Time
	dbOpts []dbopen.Option
}

// Option configures a Store.
type Option func(*options)

// WithClock overrides the clock used to stamp records.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithDBOptions forwards options to dbopen.Open. Ignored by New.
func WithDBOptions(opts ...dbopen.Option) Option {
	return func(o *options) { o.dbOpts = append(o.dbOpts, opts...) }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Open opens (or creates) the history database at path and applies Schema.
func Open(path string, opts ...Option) (*Store, error) {
	o := buildOptions(opts)
	dbOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, o.dbOpts...)

	db, err := dbopen.Open(path, dbOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, now: o.now}, nil
}

// New wraps an already open database and applies Schema.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("history: DB is required")
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("history schema: %w", err)
	}
	o := buildOptions(opts)
	return &Store{db: db, now: o.now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a new record and returns its id and creation time. The
// insert is committed before Append returns.
func (s *Store) Append(ctx context.Context, operation string, a, b numparse.Matrix, result Result) (int64, string, error) {
	aJSON, err := json.Marshal(a)
	if err != nil {
		return 0, "", fmt.Errorf("history: encode A: %w", err)
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return 0, "", fmt.Errorf("history: encode B: %w", err)
	}
	resJSON, err := json.Marshal(result)
	if err != nil {
		return 0, "", fmt.Errorf("history: encode result: %w", err)
	}
	createdAt := s.now().UTC().Truncate(time.Second).Format(TimeLayout)

	var id int64
	err = dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO history (operation, matrix_a, matrix_b, result, created_at) VALUES (?, ?, ?, ?, ?)`,
			operation, string(aJSON), string(bJSON), string(resJSON), createdAt)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, "", fmt.Errorf("history: append: %w", err)
	}
	return id, createdAt, nil
}

const selectCols = `SELECT id, operation, matrix_a, matrix_b, result, created_at FROM history`

// List returns up to limit records in ascending id order. A non-positive
// limit yields an empty slice.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		return []*Record{}, nil
	}
	rows, err := s.db.QueryContext(ctx, selectCols+` ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	out := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return out, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// Delete removes a record. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id); err != nil {
		return fmt.Errorf("history: delete %d: %w", id, err)
	}
	return nil
}

// Clear removes every record. Ids keep increasing afterwards.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var rec Record
	var aJSON, bJSON, resJSON string
	if err := sc.Scan(&rec.ID, &rec.Operation, &aJSON, &bJSON, &resJSON, &rec.Time); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("history: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(aJSON), &rec.A); err != nil {
		return nil, fmt.Errorf("history: decode A of %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(bJSON), &rec.B); err != nil {
		return nil, fmt.Errorf("history: decode B of %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(resJSON), &rec.Result); err != nil {
		return nil, fmt.Errorf("history: decode result of %d: %w", rec.ID, err)
	}
	return &rec, nil
}
