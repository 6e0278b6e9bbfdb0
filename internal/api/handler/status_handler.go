package handler

import (
	"encoding/json"
	"net/http"

	"github.com/milkbook/ledger/internal/connectivity"
	"github.com/milkbook/ledger/internal/optimistic"
)

// StatusHandler exposes the optimistic pending state and the
// connectivity flag.
type StatusHandler struct {
	tracker *optimistic.Tracker
	conn    *connectivity.Monitor
}

func NewStatusHandler(tracker *optimistic.Tracker, conn *connectivity.Monitor) *StatusHandler {
	return &StatusHandler{tracker: tracker, conn: conn}
}

type keyStatus struct {
	Key     string `json:"key"`
	Pending bool   `json:"pending"`
	Failed  bool   `json:"failed"`
	Error   string `json:"error,omitempty"`
}

// Status handles GET /api/v1/status
//
// With ?key=sale:s1 it returns that key; without it, every pending key.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if key := r.URL.Query().Get("key"); key != "" {
		e, ok := h.tracker.Status(key)
		respondJSON(w, http.StatusOK, keyStatus{Key: key, Pending: ok, Failed: e.Failed, Error: e.Error})
		return
	}

	snap := h.tracker.Snapshot()
	out := make([]keyStatus, 0, len(snap))
	for k, e := range snap {
		out = append(out, keyStatus{Key: k, Pending: true, Failed: e.Failed, Error: e.Error})
	}
	respondJSON(w, http.StatusOK, map[string]any{"keys": out})
}

// GetConnectivity handles GET /api/v1/connectivity
func (h *StatusHandler) GetConnectivity(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{
		"online":     h.conn.IsOnline(),
		"overridden": h.conn.Overridden(),
	})
}

// PutConnectivity handles PUT /api/v1/connectivity
//
// {"online": false} pins the service offline; {"online": null} hands
// control back to the datastore probe.
func (h *StatusHandler) PutConnectivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.conn.Override(body.Online)
	h.GetConnectivity(w, r)
}
