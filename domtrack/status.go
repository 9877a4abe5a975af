package domtrack

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// StatusSource is what the status API reads. Watcher implements it.
type StatusSource interface {
	Pages(ctx context.Context) []PageStatus
	Page(ctx context.Context, pageID string) (PageStatus, bool)
}

// StatusHandler serves a read-only JSON view of the running sessions:
//
//	GET /healthz
//	GET /pages
//	GET /pages/{id}
//	GET /pages/{id}/nodes
//	GET /pages/{id}/messages?limit=N   (journal sink only)
//
// journal may be nil.
func StatusHandler(src StatusSource, journal *Journal, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &statusHandler{src: src, journal: journal, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/pages", h.handlePages)
	r.Route("/pages/{id}", func(r chi.Router) {
		r.Get("/", h.handlePage)
		r.Get("/nodes", h.handleNodes)
		r.Get("/messages", h.handleMessages)
	})
	return r
}

type statusHandler struct {
	src     StatusSource
	journal *Journal
	logger  *slog.Logger
}

func (h *statusHandler) handlePages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.src.Pages(r.Context()))
}

func (h *statusHandler) handlePage(w http.ResponseWriter, r *http.Request) {
	st, ok := h.src.Page(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "page not found"})
		return
	}
	st.Nodes = nil
	writeJSON(w, http.StatusOK, st)
}

func (h *statusHandler) handleNodes(w http.ResponseWriter, r *http.Request) {
	st, ok := h.src.Page(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "page not found"})
		return
	}
	nodes := st.Nodes
	if nodes == nil {
		nodes = []NodeStatus{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

type messageView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

func (h *statusHandler) handleMessages(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no journal configured"})
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := h.journal.Recent(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.logger.Error("domtrack: read journal", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal read failed"})
		return
	}
	out := make([]messageView, 0, len(entries))
	for _, e := range entries {
		out = append(out, messageView{ID: e.ID, Kind: e.Kind, Body: e.Body, CreatedAt: e.CreatedAt.UnixMilli()})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
