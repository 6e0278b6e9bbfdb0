package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/domain"
)

// Replayer performs a remote write; implemented by remote.Writer.
type Replayer interface {
	Apply(ctx context.Context, op domain.Operation) error
}

// Enqueuer durably records a write for later replay; implemented by queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, op domain.Operation) (domain.QueueItem, error)
}

// Tracker is the optimistic pending-state surface; implemented by optimistic.Tracker.
type Tracker interface {
	Apply(action domain.Action)
	Confirm(key string)
	Fail(key, msg string)
}

type OnlineChecker interface {
	IsOnline() bool
}

type Option func(*WriteService)

// WithWriteHook observes the outcome of every write.
func WithWriteHook(fn func(domain.OpType, domain.Outcome)) Option {
	return func(s *WriteService) { s.onWrite = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *WriteService) { s.now = now }
}

// WriteService is the single entry point for entity writes. Each write is
// marked pending in the tracker, tried directly against the remote
// datastore when online, and queued for replay otherwise. Failures never
// reach the caller as errors; the WriteResult says what happened.
type WriteService struct {
	remote  Replayer
	queue   Enqueuer
	tracker Tracker
	conn    OnlineChecker
	logger  *zap.Logger

	now     func() time.Time
	onWrite func(domain.OpType, domain.Outcome)
}

func NewWriteService(
	remote Replayer,
	queue Enqueuer,
	tracker Tracker,
	conn OnlineChecker,
	logger *zap.Logger,
	opts ...Option,
) *WriteService {
	s := &WriteService{
		remote:  remote,
		queue:   queue,
		tracker: tracker,
		conn:    conn,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WriteService) SaveClient(ctx context.Context, c domain.Client) domain.WriteResult {
	return s.Write(ctx, domain.UpsertClient{Client: c})
}

func (s *WriteService) DeleteClient(ctx context.Context, id string) domain.WriteResult {
	return s.Write(ctx, domain.DeleteClient{ID: id})
}

func (s *WriteService) SaveSale(ctx context.Context, sale domain.Sale) domain.WriteResult {
	return s.Write(ctx, domain.UpsertSale{Sale: sale})
}

func (s *WriteService) DeleteSale(ctx context.Context, id string) domain.WriteResult {
	return s.Write(ctx, domain.DeleteSale{ID: id})
}

// SavePayment records p and settles the given sales in one remote batch.
func (s *WriteService) SavePayment(ctx context.Context, p domain.Payment, settledSaleIDs []string) domain.WriteResult {
	return s.Write(ctx, domain.UpsertPayment{Write: domain.PaymentWrite{Payment: p, SettledSaleIDs: settledSaleIDs}})
}

func (s *WriteService) DeletePayment(ctx context.Context, id string) domain.WriteResult {
	return s.Write(ctx, domain.DeletePayment{ID: id})
}

func (s *WriteService) SavePriceSettings(ctx context.Context, p domain.PriceSettings) domain.WriteResult {
	return s.Write(ctx, domain.SavePriceSettings{Settings: p})
}

func (s *WriteService) SaveCow(ctx context.Context, c domain.Cow) domain.WriteResult {
	return s.Write(ctx, domain.UpsertCow{Cow: c})
}

func (s *WriteService) DeleteCow(ctx context.Context, id string) domain.WriteResult {
	return s.Write(ctx, domain.DeleteCow{ID: id})
}

func (s *WriteService) SaveCalvingEvent(ctx context.Context, e domain.CalvingEvent) domain.WriteResult {
	return s.Write(ctx, domain.UpsertCalving{Event: e})
}

func (s *WriteService) DeleteCalvingEvent(ctx context.Context, id string) domain.WriteResult {
	return s.Write(ctx, domain.DeleteCalving{ID: id})
}

// Write runs op through the optimistic, direct-then-queue path.
func (s *WriteService) Write(ctx context.Context, op domain.Operation) domain.WriteResult {
	res := s.write(ctx, op)
	if s.onWrite != nil {
		s.onWrite(res.Type, res.Outcome)
	}
	return res
}

func (s *WriteService) write(ctx context.Context, op domain.Operation) domain.WriteResult {
	res := domain.WriteResult{Key: op.Key(), Type: op.Type()}
	log := s.logger.With(zap.String("key", res.Key), zap.String("type", string(res.Type)))

	action, err := domain.NewAction(op, s.now)
	if err != nil {
		log.Error("could not encode write", zap.Error(err))
		res.Outcome, res.Err, res.Message = domain.OutcomeUnsaved, err, err.Error()
		return res
	}
	s.tracker.Apply(action)

	var writeErr error
	if !s.conn.IsOnline() {
		writeErr = domain.ErrOffline
	} else {
		writeErr = s.remote.Apply(ctx, op)
	}

	if writeErr == nil {
		s.tracker.Confirm(res.Key)
		res.Outcome = domain.OutcomeConfirmed
		return res
	}

	// Mark the key failed before the item becomes visible to a sweep; a
	// replay that lands right after Enqueue must get the last word.
	s.tracker.Fail(res.Key, writeErr.Error())

	// The caller may hang up after a failed direct write; the mutation
	// still has to reach durable storage.
	item, err := s.queue.Enqueue(context.WithoutCancel(ctx), op)
	if err != nil {
		log.Error("write lost: pending queue could not persist it",
			zap.NamedError("write_error", writeErr),
			zap.Error(err),
		)
		s.tracker.Fail(res.Key, err.Error())
		res.Outcome, res.Err, res.Message = domain.OutcomeUnsaved, err, err.Error()
		return res
	}

	log.Info("write queued", zap.String("queue_id", item.ID), zap.Error(writeErr))
	res.Outcome = domain.OutcomeQueued
	res.QueueID = item.ID
	res.Message = writeErr.Error()
	return res
}
