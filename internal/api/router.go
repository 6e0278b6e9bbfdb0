package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/api/handler"
	apimw "github.com/milkbook/ledger/internal/api/middleware"
	"github.com/milkbook/ledger/internal/connectivity"
	"github.com/milkbook/ledger/internal/optimistic"
	"github.com/milkbook/ledger/internal/queue"
	"github.com/milkbook/ledger/internal/service"
)

// Deps are the components the HTTP surface talks to.
type Deps struct {
	Writes   *service.WriteService
	Queue    *queue.Queue
	Tracker  *optimistic.Tracker
	Conn     *connectivity.Monitor
	Listener handler.CollectionListener
	Gatherer prometheus.Gatherer
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(d Deps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	wh := handler.NewWriteHandler(d.Writes, logger)
	ph := handler.NewPendingHandler(d.Queue, logger)
	sh := handler.NewStatusHandler(d.Tracker, d.Conn)
	st := handler.NewStreamHandler(d.Queue, d.Tracker, d.Listener, logger)
	mh := handler.NewMetricsHandler(d.Queue)
	hh := handler.NewHealthHandler(d.Conn.IsOnline)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Pending-changes panel. Literal segments are registered before
		// /{id} so "summary" and "clear" are not taken as ids.
		r.Get("/pending", ph.List)
		r.Get("/pending/summary", ph.Summary)
		r.Post("/pending/process", ph.Process)
		r.Post("/pending/clear", ph.Clear)
		r.Post("/pending/{id}/retry", ph.Retry)
		r.Delete("/pending/{id}", ph.Discard)

		r.Get("/status", sh.Status)
		r.Get("/connectivity", sh.GetConnectivity)
		r.Put("/connectivity", sh.PutConnectivity)

		r.Get("/stream", st.Stream)
		r.Get("/collections/{name}/live", st.CollectionLive)

		r.Put("/clients/{id}", wh.PutClient)
		r.Delete("/clients/{id}", wh.DeleteClient)
		r.Put("/sales/{id}", wh.PutSale)
		r.Delete("/sales/{id}", wh.DeleteSale)
		r.Put("/payments/{id}", wh.PutPayment)
		r.Delete("/payments/{id}", wh.DeletePayment)
		r.Put("/settings/price", wh.PutPriceSettings)
		r.Put("/cows/{id}", wh.PutCow)
		r.Delete("/cows/{id}", wh.DeleteCow)
		r.Put("/calvings/{id}", wh.PutCalving)
		r.Delete("/calvings/{id}", wh.DeleteCalving)

		// JSON metrics snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
