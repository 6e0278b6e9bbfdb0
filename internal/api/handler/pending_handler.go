package handler

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/milkbook/ledger/internal/api/middleware"
	"github.com/milkbook/ledger/internal/domain"
	"github.com/milkbook/ledger/internal/queue"
)

// clearConfirmation must be typed by the operator to empty the queue.
const clearConfirmation = "CLEAR"

// PendingHandler serves the pending-changes panel.
type PendingHandler struct {
	q      *queue.Queue
	logger *zap.Logger
}

func NewPendingHandler(q *queue.Queue, logger *zap.Logger) *PendingHandler {
	return &PendingHandler{q: q, logger: logger}
}

// pendingItem is a queue item with its display label.
type pendingItem struct {
	domain.QueueItem
	Label string `json:"label"`
}

func labelled(items []domain.QueueItem) []pendingItem {
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	out := make([]pendingItem, len(items))
	for i, it := range items {
		out[i] = pendingItem{QueueItem: it, Label: it.Type.Label()}
	}
	return out
}

// List handles GET /api/v1/pending
func (h *PendingHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.q.GetAll(r.Context())
	if err != nil {
		h.fail(w, r, "list pending", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": labelled(items)})
}

// Summary handles GET /api/v1/pending/summary
func (h *PendingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.q.GetSummary(r.Context())
	if err != nil {
		h.fail(w, r, "pending summary", err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// Process handles POST /api/v1/pending/process
func (h *PendingHandler) Process(w http.ResponseWriter, r *http.Request) {
	if err := h.q.ProcessNow(r.Context()); err != nil {
		h.fail(w, r, "process pending", err)
		return
	}
	h.Summary(w, r)
}

// Retry handles POST /api/v1/pending/{id}/retry
func (h *PendingHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.q.Retry(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "retry pending item", err)
		return
	}
	h.Summary(w, r)
}

// Discard handles DELETE /api/v1/pending/{id}
func (h *PendingHandler) Discard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.q.Discard(r.Context(), id); err != nil {
		h.fail(w, r, "discard pending item", err)
		return
	}
	apimw.Logger(r.Context(), h.logger).Info("pending item discarded", zap.String("queue_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles POST /api/v1/pending/clear
//
// The body must be {"confirm":"CLEAR"}.
func (h *PendingHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Confirm != clearConfirmation {
		mapError(w, domain.ErrConfirmationMismatch)
		return
	}
	if err := h.q.ClearAll(r.Context()); err != nil {
		h.fail(w, r, "clear pending", err)
		return
	}
	apimw.Logger(r.Context(), h.logger).Warn("pending queue cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *PendingHandler) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
	apimw.Logger(r.Context(), h.logger).Warn(what+" failed", zap.Error(err))
	mapError(w, err)
}
