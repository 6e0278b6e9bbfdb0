package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/milkbook/ledger/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnknownCollection):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConfirmationMismatch):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrIDMismatch),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidClientRef),
		errors.Is(err, domain.ErrInvalidCowRef),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidLiters),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidCalfSex):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrOffline):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondWrite reports a façade write. A queued write is accepted but not
// yet durable remotely; an unsaved write was lost.
func respondWrite(w http.ResponseWriter, res domain.WriteResult) {
	status := http.StatusOK
	switch res.Outcome {
	case domain.OutcomeQueued:
		status = http.StatusAccepted
	case domain.OutcomeUnsaved:
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, res)
}
