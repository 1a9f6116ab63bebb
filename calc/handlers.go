// CLAUDE:SUMMARY Chi HTTP routes for calculate, history, export, delete, clear, saved pages, operations, health and metrics.
package calc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/matrixcalc/history"
	"github.com/hazyhaar/matrixcalc/shield"
	"github.com/hazyhaar/matrixcalc/snapshot"
)

var errInternal = errors.New("internal error")

// Mount registers every calculator route on r.
func Mount(r chi.Router, svc *Service) {
	h := &handlers{svc: svc}
	r.Post("/calculate", h.calculate)
	r.Get("/history", h.history)
	r.Get("/export-entry/{id}", h.exportEntry)
	r.Post("/delete-entry/{id}", h.deleteEntry)
	r.Post("/clear-history", h.clearHistory)
	r.Get("/saved_pages/{filename}", h.savedPage)
	r.Get("/operations", h.operations)
	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())
}

type handlers struct {
	svc *Service
}

func (h *handlers) calculate(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	out, err := h.svc.Calculate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// history serves GET /history?limit=N. A missing, non-numeric, zero or
// negative limit returns the default page (5 records), not an empty list or
// every row; larger limits are capped at the configured maximum (500).
func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.History(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handlers) exportEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == "md" {
		md, err := h.svc.EntryMarkdown(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, md)
		return
	}
	rec, err := h.svc.Entry(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteEntry(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearHistory(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handlers) savedPage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	f, err := h.svc.Renderer().Open(name)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) || errors.Is(err, snapshot.ErrInvalidName) {
			http.NotFound(w, r)
			return
		}
		h.fail(w, r, err)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, name, st.ModTime(), f)
}

func (h *handlers) operations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Operations())
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Count(r.Context())
	if err != nil {
		shield.GetLogger(r.Context()).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	pages, err := h.svc.Renderer().List()
	if err != nil {
		shield.GetLogger(r.Context()).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "entries": n, "pages": len(pages)})
}

// fail maps service errors to status codes. Client errors carry their own
// message; anything else is logged and reported as an internal error.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsClientError(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, history.ErrNotFound):
		writeError(w, http.StatusNotFound, errors.New("Entry not found"))
	default:
		shield.GetLogger(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("Entry not found"))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
