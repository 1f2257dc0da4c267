// Package web serves stored evaluation runs: JSON endpoints, HTML reports
// rendered with templ and a live stream of run events.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/ricesearch/covereval/internal/bus"
	"github.com/ricesearch/covereval/internal/pkg/errors"
	"github.com/ricesearch/covereval/internal/pkg/hash"
	"github.com/ricesearch/covereval/internal/pkg/logger"
	"github.com/ricesearch/covereval/internal/ranking"
	"github.com/ricesearch/covereval/internal/store"
)

// Handler handles run and report requests.
type Handler struct {
	store   *store.ResultStore
	journal string
	hub     *hub
	log     *logger.Logger
}

// NewHandler creates a new web handler.
func NewHandler(results *store.ResultStore, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		store: results,
		hub:   newHub(),
		log:   log,
	}
}

// WithJournal serves the events recorded in the journal at path.
func (h *Handler) WithJournal(path string) *Handler {
	h.journal = path
	return h
}

// RegisterRoutes registers all web routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Pages
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /v1/runs/{id}/report", h.handleReport)

	// Runs API
	mux.HandleFunc("GET /v1/runs", h.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", h.handleGetRun)
	mux.HandleFunc("DELETE /v1/runs/{id}", h.handleDeleteRun)
	mux.HandleFunc("GET /v1/runs/{id}/queries/{query}", h.handleQuery)

	// Events
	mux.HandleFunc("GET /v1/events", h.handleEvents)
	mux.HandleFunc("GET /v1/events/stream", h.handleEventStream)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	// Headers are already sent, nothing left to report.
	_ = json.NewEncoder(w).Encode(v)
}

// etag identifies a stored run rendering. Stored runs never change, so
// the id and creation time pin the content.
func etag(run *store.Run, variant string) string {
	return `"` + hash.Fingerprint(run.ID, run.CreatedAt.Format(time.RFC3339Nano), string(run.Status), variant) + `"`
}

// notModified sets the ETag header and reports whether the client copy is
// current.
func notModified(w http.ResponseWriter, r *http.Request, tag string) bool {
	w.Header().Set("ETag", tag)
	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		h.log.Error("Failed to list runs", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	templ.Handler(Page("Evaluation runs", RunList(runs))).ServeHTTP(w, r)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.IsNotFound(err) || errors.IsValidation(err) {
			status = http.StatusNotFound
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	if notModified(w, r, etag(run, "report")) {
		return
	}
	templ.Handler(Page(run.Label(), RunReport(run.Summary()))).ServeHTTP(w, r)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, map[string]any{"runs": runs, "total": len(runs)})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	full := r.URL.Query().Get("results") == "true"
	if notModified(w, r, etag(run, strconv.FormatBool(full))) {
		return
	}
	if !full {
		run = run.Summary()
	}
	writeJSON(w, run)
}

func (h *Handler) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
		errors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQuery renders one stored response in the out_mode requested.
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	mode, err := ranking.ParseOutputMode(r.URL.Query().Get("out_mode"))
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	run, err := h.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	query := r.PathValue("query")
	rec, ok := run.Results[query]
	if !ok {
		errors.WriteError(w, errors.NotFoundError("query "+query))
		return
	}
	if rec == nil {
		writeJSON(w, map[string]any{"query": query, "absent": true})
		return
	}

	resp, err := ranking.FromRecord(query, rec)
	if err != nil {
		errors.WriteError(w, errors.InternalError("decode stored response", err))
		return
	}
	out, err := ranking.Render(resp, mode)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, out)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.journal == "" {
		errors.WriteError(w, errors.UnavailableError("event journal"))
		return
	}

	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errors.WriteError(w, errors.ValidationError("since must be unix milliseconds"))
			return
		}
		since = parsed
	}

	events, err := bus.ReadJournal(h.journal, since)
	if err != nil {
		errors.WriteError(w, errors.InternalError("read event journal", err))
		return
	}
	if events == nil {
		events = []bus.Event{}
	}
	writeJSON(w, map[string]any{"events": events, "total": len(events)})
}
