package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/domain"
)

// Processor is the sweep the auto processor drives; implemented by queue.Queue.
type Processor interface {
	ProcessNow(ctx context.Context) error
}

// OnlineSource is the connectivity signal; implemented by connectivity.Monitor.
type OnlineSource interface {
	IsOnline() bool
	OnOnline(fn func()) func()
}

// AutoProcessor sweeps the pending queue on a fixed interval and right
// after the datastore becomes reachable again. It is the only component
// that starts background replays.
type AutoProcessor struct {
	proc     Processor
	conn     OnlineSource
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

func NewAutoProcessor(proc Processor, conn OnlineSource, interval time.Duration, logger *zap.Logger) *AutoProcessor {
	return &AutoProcessor{proc: proc, conn: conn, interval: interval, logger: logger}
}

// Start installs the ticker and the reconnect hook and returns the cleanup
// that removes both and waits for an in-progress sweep to finish.
// A second Start before cleanup returns ErrAutoProcessorRunning.
func (ap *AutoProcessor) Start(ctx context.Context) (func(), error) {
	ap.mu.Lock()
	if ap.running {
		ap.mu.Unlock()
		return nil, domain.ErrAutoProcessorRunning
	}
	ap.running = true
	ap.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	kick := make(chan struct{}, 1)
	removeHook := ap.conn.OnOnline(func() {
		select {
		case kick <- struct{}{}:
		default: // a sweep is already requested
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		ap.run(ctx, kick)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			removeHook()
			cancel()
			<-done
			ap.mu.Lock()
			ap.running = false
			ap.mu.Unlock()
		})
	}, nil
}

func (ap *AutoProcessor) run(ctx context.Context, kick <-chan struct{}) {
	ticker := time.NewTicker(ap.interval)
	defer ticker.Stop()

	ap.logger.Info("auto processor started", zap.Duration("interval", ap.interval))

	for {
		select {
		case <-ctx.Done():
			ap.logger.Info("auto processor stopping")
			return
		case <-ticker.C:
			ap.sweep(ctx, "tick")
		case <-kick:
			ap.sweep(ctx, "reconnect")
		}
	}
}

func (ap *AutoProcessor) sweep(ctx context.Context, trigger string) {
	if !ap.conn.IsOnline() {
		return
	}
	if err := ap.proc.ProcessNow(ctx); err != nil && ctx.Err() == nil {
		ap.logger.Error("queue sweep failed", zap.String("trigger", trigger), zap.Error(err))
	}
}
