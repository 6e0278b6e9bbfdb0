package handler

import (
	"net/http"

	"github.com/milkbook/ledger/internal/domain"
	"github.com/milkbook/ledger/internal/queue"
)

// MetricsHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics are available at /metrics via promhttp.
type MetricsHandler struct {
	q *queue.Queue
}

func NewMetricsHandler(q *queue.Queue) *MetricsHandler {
	return &MetricsHandler{q: q}
}

// GetMetrics handles GET /api/v1/metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	items, err := h.q.GetAll(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	byStatus := map[domain.Status]int{}
	byType := map[domain.OpType]int{}
	for _, it := range items {
		byStatus[it.Status]++
		byType[it.Type]++
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"queue_depth": map[string]int{
			"pending": byStatus[domain.StatusPending],
			"sending": byStatus[domain.StatusSending],
			"failed":  byStatus[domain.StatusFailed],
			"total":   len(items),
		},
		"by_type": byType,
	})
}
