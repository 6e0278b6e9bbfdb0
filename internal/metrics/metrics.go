package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/milkbook/ledger/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	QueueItems    *prometheus.GaugeVec
	Replays       *prometheus.CounterVec
	ReplayLatency *prometheus.HistogramVec
	Writes        *prometheus.CounterVec
	Online        prometheus.Gauge
}

// New registers all instruments with the given registerer.
// Tests pass a fresh prometheus.NewRegistry() to stay isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_queue_items",
			Help: "Items on the durable pending queue by status.",
		}, []string{"status"}),

		Replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_replays_total",
			Help: "Queue replays against the remote datastore by operation type and outcome.",
		}, []string{"type", "outcome"}),

		ReplayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_replay_seconds",
			Help:    "Remote call latency of a single queue replay.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_writes_total",
			Help: "Writes submitted through the offline write service by type and outcome.",
		}, []string{"type", "outcome"}),

		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_online",
			Help: "1 when the remote datastore is reachable, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		m.QueueItems,
		m.Replays,
		m.ReplayLatency,
		m.Writes,
		m.Online,
	)

	return m
}

// QueueHooks returns the callbacks expected by queue.Hooks.
// Keeps the queue package free of prometheus imports.
func (m *Metrics) QueueHooks() (
	onReplay func(domain.OpType, string, time.Duration),
	onSnapshot func(domain.Summary, int),
) {
	onReplay = func(t domain.OpType, outcome string, latency time.Duration) {
		m.Replays.WithLabelValues(string(t), outcome).Inc()
		m.ReplayLatency.WithLabelValues(string(t)).Observe(latency.Seconds())
	}
	onSnapshot = func(s domain.Summary, sending int) {
		m.QueueItems.WithLabelValues(string(domain.StatusPending)).Set(float64(s.Pending))
		m.QueueItems.WithLabelValues(string(domain.StatusFailed)).Set(float64(s.Failed))
		m.QueueItems.WithLabelValues(string(domain.StatusSending)).Set(float64(sending))
	}
	return
}

// OnWrite records one façade write.
func (m *Metrics) OnWrite(t domain.OpType, outcome domain.Outcome) {
	m.Writes.WithLabelValues(string(t), string(outcome)).Inc()
}

// SetOnline mirrors the connectivity state.
func (m *Metrics) SetOnline(online bool) {
	if online {
		m.Online.Set(1)
		return
	}
	m.Online.Set(0)
}
