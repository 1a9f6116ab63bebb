// CLAUDE:SUMMARY Calculator service that parses, dispatches, persists and snapshots; shared by HTTP and MCP.
package calc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/matrixcalc/history"
	"github.com/hazyhaar/matrixcalc/matrix"
	"github.com/hazyhaar/matrixcalc/numparse"
	"github.com/hazyhaar/matrixcalc/snapshot"
)

// Request is one calculation as submitted by a client.
type Request struct {
	A         numparse.Matrix `json:"A"`
	B         numparse.Matrix `json:"B"`
	Operation string          `json:"operation"`
}

// Outcome is the answer to a successful calculation.
type Outcome struct {
	Result history.Result `json:"result"`
	ID     int64          `json:"id"`
	Time   string         `json:"time"`
}

// Service ties the history store and the snapshot renderer together.
type Service struct {
	store    *history.Store
	renderer *snapshot.Renderer
	logger   *slog.Logger
	limits   HistoryLimits
}

// HistoryLimits bounds GET /history.
type HistoryLimits struct {
	Default int
	Max     int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHistoryLimits overrides the default and maximum history page size.
func WithHistoryLimits(def, maxLimit int) ServiceOption {
	return func(s *Service) {
		if def > 0 {
			s.limits.Default = def
		}
		if maxLimit > 0 {
			s.limits.Max = maxLimit
		}
	}
}

// NewService builds a Service. Both store and renderer are required.
func NewService(store *history.Store, renderer *snapshot.Renderer, opts ...ServiceOption) (*Service, error) {
	if store == nil || renderer == nil {
		return nil, errors.New("calc: store and renderer are required")
	}
	s := &Service{
		store:    store,
		renderer: renderer,
		logger:   slog.Default(),
		limits:   HistoryLimits{Default: 5, Max: 500},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Calculate parses the operands the operation consumes, computes, persists
// the record with unused operands emptied, and renders its snapshot.
// Snapshot failures are logged and never returned.
func (s *Service) Calculate(ctx context.Context, req Request) (*Outcome, error) {
	op, err := Lookup(req.Operation)
	if err != nil {
		calculations.WithLabelValues("unknown", "invalid_operation").Inc()
		return nil, err
	}

	start := time.Now()
	result, err := s.compute(op, req)
	computeDuration.WithLabelValues(op.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		calculations.WithLabelValues(op.Name, errorKind(err)).Inc()
		return nil, err
	}

	a, b := req.A, req.B
	if !op.NeedsA {
		a = numparse.Matrix{}
	}
	if !op.NeedsB {
		b = numparse.Matrix{}
	}

	id, created, err := s.store.Append(ctx, op.Name, a, b, result)
	if err != nil {
		calculations.WithLabelValues(op.Name, "error").Inc()
		return nil, fmt.Errorf("calc: persist: %w", err)
	}
	calculations.WithLabelValues(op.Name, "ok").Inc()

	rec := &history.Record{ID: id, Operation: op.Name, A: a, B: b, Result: result, Time: created}
	if _, err := s.renderer.Render(rec); err != nil {
		snapshotFailures.Inc()
		s.logger.WarnContext(ctx, "snapshot render failed", "id", id, "error", err)
	}

	return &Outcome{Result: result, ID: id, Time: created}, nil
}

func (s *Service) compute(op *Operation, req Request) (history.Result, error) {
	var a, b matrix.Grid
	var err error
	if op.NeedsA {
		if a, err = operand("A", req.A); err != nil {
			return history.Result{}, err
		}
	}
	if op.NeedsB {
		if b, err = operand("B", req.B); err != nil {
			return history.Result{}, err
		}
	}
	result, err := op.compute(a, b)
	if err != nil {
		return history.Result{}, err
	}
	if !finite(result) {
		return history.Result{}, ErrResultOutOfRange
	}
	return result, nil
}

func operand(name string, m numparse.Matrix) (matrix.Grid, error) {
	if m.Empty() {
		return nil, &matrix.ShapeError{Msg: "Matrix " + name + " must not be empty"}
	}
	g, err := numparse.ParseMatrix(m)
	if err != nil {
		return nil, err
	}
	if matrix.Validate(g) != nil {
		return nil, &matrix.ShapeError{Msg: "Matrix " + name + " must be rectangular"}
	}
	return g, nil
}

// History returns up to limit records in ascending id order. Zero and
// negative limits select the default page size rather than meaning "none"
// or "all"; limits above the maximum are capped.
func (s *Service) History(ctx context.Context, limit int) ([]*history.Record, error) {
	if limit <= 0 {
		limit = s.limits.Default
	}
	if limit > s.limits.Max {
		limit = s.limits.Max
	}
	return s.store.List(ctx, limit)
}

// Entry returns one record.
func (s *Service) Entry(ctx context.Context, id int64) (*history.Record, error) {
	return s.store.Get(ctx, id)
}

// EntryMarkdown returns the record rendered as Markdown.
func (s *Service) EntryMarkdown(ctx context.Context, id int64) (string, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.renderer.Markdown(rec)
}

// DeleteEntry removes the record and then its snapshot pages. Deleting an
// unknown id succeeds.
func (s *Service) DeleteEntry(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("calc: delete %d: %w", id, err)
	}
	if err := s.renderer.RemoveFor(id); err != nil {
		return fmt.Errorf("calc: delete %d pages: %w", id, err)
	}
	return nil
}

// ClearHistory removes every record and then every snapshot page.
func (s *Service) ClearHistory(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("calc: clear: %w", err)
	}
	if err := s.renderer.RemoveAll(); err != nil {
		return fmt.Errorf("calc: clear pages: %w", err)
	}
	s.logger.InfoContext(ctx, "history cleared")
	return nil
}

// Count returns the number of stored records.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// Operations returns the descriptor table.
func (s *Service) Operations() []Operation {
	return Operations()
}

// Renderer returns the snapshot renderer serving saved pages.
func (s *Service) Renderer() *snapshot.Renderer {
	return s.renderer
}

// IsClientError reports whether err is caused by the request content.
func IsClientError(err error) bool {
	return errors.Is(err, numparse.ErrInvalidNumber) ||
		errors.Is(err, matrix.ErrShapeMismatch) ||
		errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrResultOutOfRange)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, numparse.ErrInvalidNumber):
		return "invalid_number"
	case errors.Is(err, matrix.ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, ErrResultOutOfRange):
		return "out_of_range"
	default:
		return "error"
	}
}
