package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger checks that the remote datastore answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OnlineSetter receives probe results; implemented by connectivity.Monitor.
type OnlineSetter interface {
	SetOnline(online bool)
}

// ProbeWorker pings the remote datastore on an interval and feeds the
// result to the connectivity monitor. A failed ping means offline.
type ProbeWorker struct {
	pinger   Pinger
	conn     OnlineSetter
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func NewProbeWorker(pinger Pinger, conn OnlineSetter, interval, timeout time.Duration, logger *zap.Logger) *ProbeWorker {
	return &ProbeWorker{pinger: pinger, conn: conn, interval: interval, timeout: timeout, logger: logger}
}

// Run probes once immediately, then every interval, until ctx is cancelled.
func (pw *ProbeWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	pw.logger.Info("connectivity probe started", zap.Duration("interval", pw.interval))
	pw.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			pw.logger.Info("connectivity probe stopping")
			return
		case <-ticker.C:
			pw.poll(ctx)
		}
	}
}

func (pw *ProbeWorker) poll(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, pw.timeout)
	defer cancel()

	err := pw.pinger.Ping(pctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		pw.logger.Debug("datastore ping failed", zap.Error(err))
	}
	pw.conn.SetOnline(err == nil)
}
