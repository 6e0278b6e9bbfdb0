package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/milkbook/ledger/internal/api/middleware"
	"github.com/milkbook/ledger/internal/domain"
	"github.com/milkbook/ledger/internal/service"
)

// WriteHandler exposes the offline write service per entity kind.
// Bodies are validated here; the service accepts anything well-formed.
type WriteHandler struct {
	svc    *service.WriteService
	logger *zap.Logger
}

func NewWriteHandler(svc *service.WriteService, logger *zap.Logger) *WriteHandler {
	return &WriteHandler{svc: svc, logger: logger}
}

type validator interface {
	Validate() error
}

// bind decodes the body into v, takes the entity id from the path and
// validates. It writes the error response itself and reports success.
func (h *WriteHandler) bind(w http.ResponseWriter, r *http.Request, v validator, id *string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if id != nil {
		pathID := chi.URLParam(r, "id")
		if *id != "" && *id != pathID {
			mapError(w, domain.ErrIDMismatch)
			return false
		}
		*id = pathID
	}
	if err := v.Validate(); err != nil {
		mapError(w, err)
		return false
	}
	return true
}

func (h *WriteHandler) respond(w http.ResponseWriter, r *http.Request, res domain.WriteResult) {
	if res.Outcome == domain.OutcomeUnsaved {
		apimw.Logger(r.Context(), h.logger).Error("write not saved",
			zap.String("key", res.Key),
			zap.Error(res.Err),
		)
	}
	respondWrite(w, res)
}

// PutClient handles PUT /api/v1/clients/{id}
//
// createdAt is sent by the device on first save; edits may omit it.
func (h *WriteHandler) PutClient(w http.ResponseWriter, r *http.Request) {
	var c domain.Client
	if !h.bind(w, r, &c, &c.ID) {
		return
	}
	h.respond(w, r, h.svc.SaveClient(r.Context(), c))
}

// DeleteClient handles DELETE /api/v1/clients/{id}
func (h *WriteHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.DeleteClient(r.Context(), chi.URLParam(r, "id")))
}

// PutSale handles PUT /api/v1/sales/{id}
func (h *WriteHandler) PutSale(w http.ResponseWriter, r *http.Request) {
	var s domain.Sale
	if !h.bind(w, r, &s, &s.ID) {
		return
	}
	h.respond(w, r, h.svc.SaveSale(r.Context(), s))
}

// DeleteSale handles DELETE /api/v1/sales/{id}
func (h *WriteHandler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.DeleteSale(r.Context(), chi.URLParam(r, "id")))
}

// PutPayment handles PUT /api/v1/payments/{id}
//
// Body: {"payment": {...}, "settledSaleIds": ["s1", ...]}
func (h *WriteHandler) PutPayment(w http.ResponseWriter, r *http.Request) {
	var pw domain.PaymentWrite
	if !h.bind(w, r, &pw, &pw.Payment.ID) {
		return
	}
	h.respond(w, r, h.svc.SavePayment(r.Context(), pw.Payment, pw.SettledSaleIDs))
}

// DeletePayment handles DELETE /api/v1/payments/{id}
func (h *WriteHandler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.DeletePayment(r.Context(), chi.URLParam(r, "id")))
}

// PutPriceSettings handles PUT /api/v1/settings/price
func (h *WriteHandler) PutPriceSettings(w http.ResponseWriter, r *http.Request) {
	var p domain.PriceSettings
	if !h.bind(w, r, &p, nil) {
		return
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	h.respond(w, r, h.svc.SavePriceSettings(r.Context(), p))
}

// PutCow handles PUT /api/v1/cows/{id}
func (h *WriteHandler) PutCow(w http.ResponseWriter, r *http.Request) {
	var c domain.Cow
	if !h.bind(w, r, &c, &c.ID) {
		return
	}
	h.respond(w, r, h.svc.SaveCow(r.Context(), c))
}

// DeleteCow handles DELETE /api/v1/cows/{id}
func (h *WriteHandler) DeleteCow(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.DeleteCow(r.Context(), chi.URLParam(r, "id")))
}

// PutCalving handles PUT /api/v1/calvings/{id}
func (h *WriteHandler) PutCalving(w http.ResponseWriter, r *http.Request) {
	var e domain.CalvingEvent
	if !h.bind(w, r, &e, &e.ID) {
		return
	}
	h.respond(w, r, h.svc.SaveCalvingEvent(r.Context(), e))
}

// DeleteCalving handles DELETE /api/v1/calvings/{id}
func (h *WriteHandler) DeleteCalving(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.DeleteCalvingEvent(r.Context(), chi.URLParam(r, "id")))
}
