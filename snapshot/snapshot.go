// CLAUDE:SUMMARY Static HTML snapshot pages per history record with atomic writes, prefix deletion, safe serving and markdown export.
// Package snapshot renders one self-contained HTML page per history record
// into a pages directory.
//
// File names are derived from (id, createdAt) as entry_{id}_{YYYYMMDD_HHMMSS}.html,
// so re-rendering a record overwrites its page and deletion finds every page
// of a record by the "entry_{id}_" prefix. Pages are written to a temp file
// and renamed into place; readers never observe a partial page.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/matrixcalc/history"
	"github.com/hazyhaar/matrixcalc/matrix"
	"github.com/hazyhaar/matrixcalc/numparse"
)

// ErrNotFound is returned by Open when the requested page does not exist.
var ErrNotFound = errors.New("snapshot: page not found")

// ErrInvalidName is returned by Open for names that are not a plain file
// name inside the pages directory.
var ErrInvalidName = errors.New("snapshot: invalid page name")

const (
	filePrefix = "entry_"
	fileSuffix = ".html"
	tmpPattern = ".entry_*.tmp"
	nameLayout = "20060102_150405"
)

// Labeler maps an operation name to its display label.
type Labeler func(operation string) string

// Renderer writes and removes snapshot pages under a single directory.
type Renderer struct {
	dir    string
	label  Labeler
	logger *slog.Logger
	md     *converter.Converter
	text   *bluemonday.Policy
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLabeler sets the operation label function. Default: the raw name.
func WithLabeler(fn Labeler) Option { return func(r *Renderer) { r.label = fn } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(r *Renderer) { r.logger = l } }

// New creates the pages directory if needed and returns a Renderer for it.
func New(dir string, opts ...Option) (*Renderer, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot: pages directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}
	r := &Renderer{
		dir:    dir,
		label:  func(op string) string { return op },
		logger: slog.Default(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		text: bluemonday.StrictPolicy(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Dir returns the pages directory.
func (r *Renderer) Dir() string { return r.dir }

// FileName returns the page name for a record id and its creation time in
// history.TimeLayout. Unparseable times fall back to replacing separators.
func FileName(id int64, createdAt string) string {
	var stamp string
	if t, err := time.Parse(history.TimeLayout, createdAt); err == nil {
		stamp = t.Format(nameLayout)
	} else {
		stamp = strings.NewReplacer(" ", "_", ":", "", "-", "").Replace(createdAt)
	}
	return filePrefix + strconv.FormatInt(id, 10) + "_" + stamp + fileSuffix
}

func idPrefix(id int64) string {
	return filePrefix + strconv.FormatInt(id, 10) + "_"
}

// Render writes the page for rec and returns its file name.
func (r *Renderer) Render(rec *history.Record) (string, error) {
	var buf bytes.Buffer
	if err := r.execute(&buf, rec); err != nil {
		return "", err
	}
	name := FileName(rec.ID, rec.Time)
	if err := r.writeAtomic(name, buf.Bytes()); err != nil {
		return "", err
	}
	r.logger.Debug("snapshot rendered", "id", rec.ID, "file", name)
	return name, nil
}

// Markdown renders rec in memory and converts the page to Markdown.
func (r *Renderer) Markdown(rec *history.Record) (string, error) {
	var buf bytes.Buffer
	if err := r.execute(&buf, rec); err != nil {
		return "", err
	}
	md, err := r.md.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("snapshot: markdown %d: %w", rec.ID, err)
	}
	return md, nil
}

func (r *Renderer) execute(buf *bytes.Buffer, rec *history.Record) error {
	if rec == nil {
		return fmt.Errorf("snapshot: nil record")
	}
	data := pageData{
		ID:        rec.ID,
		Operation: rec.Operation,
		Label:     r.label(rec.Operation),
		Time:      rec.Time,
		A:         r.cellsTable(rec.A),
		B:         r.cellsTable(rec.B),
		Result:    r.resultTable(rec.Result),
	}
	if err := pageTmpl.Execute(buf, data); err != nil {
		return fmt.Errorf("snapshot: render %d: %w", rec.ID, err)
	}
	return nil
}

func (r *Renderer) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(r.dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("snapshot: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("snapshot: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(r.dir, name)); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: rename %s: %w", name, err)
	}
	return nil
}

// RemoveFor deletes every page of record id, including stale pages left by
// renders with a different timestamp.
func (r *Renderer) RemoveFor(id int64) error {
	prefix := idPrefix(id)
	return r.removeMatching(func(name string) bool {
		return strings.HasPrefix(name, prefix)
	})
}

// RemoveAll deletes every page and abandoned temp file in the directory.
func (r *Renderer) RemoveAll() error {
	return r.removeMatching(func(name string) bool {
		return isPage(name) || (strings.HasPrefix(name, ".entry_") && strings.HasSuffix(name, ".tmp"))
	})
}

func isPage(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}

func (r *Renderer) removeMatching(match func(string) bool) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("snapshot: read dir: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !match(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("snapshot: remove: %w", errors.Join(errs...))
	}
	return nil
}

// List returns the names of all pages in the directory.
func (r *Renderer) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read dir: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && isPage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Open opens a page by file name for serving.
func (r *Renderer) Open(name string) (*os.File, error) {
	if name == "" || strings.Contains(name, "..") || filepath.Base(name) != name ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, ErrInvalidName
	}
	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("snapshot: open %s: %w", name, err)
	}
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

type pageData struct {
	ID        int64
	Operation string
	Label     string
	Time      string
	A         tableData
	B         tableData
	Result    tableData
}

// tableData is either Rows or, when the value cannot be tabulated, Text.
type tableData struct {
	Rows [][]string
	Text template.HTML
}

func (r *Renderer) cellsTable(m numparse.Matrix) tableData {
	rows := make([][]string, len(m))
	for i, row := range m {
		rows[i] = make([]string, len(row))
		for j, c := range row {
			rows[i][j] = string(c)
		}
	}
	if !rectangular(rows) {
		return r.literal(rows)
	}
	return tableData{Rows: rows}
}

func (r *Renderer) resultTable(res history.Result) tableData {
	if res.IsScalar {
		return tableData{Rows: [][]string{{formatFloat(res.Scalar)}}}
	}
	if matrix.Validate(res.Grid) != nil {
		return r.literal(res.Grid)
	}
	rows := make([][]string, len(res.Grid))
	for i, row := range res.Grid {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = formatFloat(v)
		}
	}
	return tableData{Rows: rows}
}

// literal renders v as plain text; the strict policy strips any markup.
func (r *Renderer) literal(v any) tableData {
	return tableData{Text: template.HTML(r.text.Sanitize(fmt.Sprint(v)))}
}

func rectangular(rows [][]string) bool {
	for _, row := range rows {
		if len(row) != len(rows[0]) {
			return false
		}
	}
	return true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
