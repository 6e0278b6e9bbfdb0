package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/domain"
	"github.com/milkbook/ledger/internal/kvstore"
)

// DefaultStorageKey is where the serialized queue lives in the KV store.
const DefaultStorageKey = "offline_queue_v1"

// Replay outcomes reported to Hooks.OnReplay.
const (
	ReplaySuccess = "success"
	ReplayFailure = "failure"
)

const maxErrorLen = 200

// Replayer performs the remote write for one operation.
type Replayer interface {
	Apply(ctx context.Context, op domain.Operation) error
}

// Confirmer receives replay outcomes; implemented by optimistic.Tracker.
type Confirmer interface {
	Confirm(key string)
	Fail(key, msg string)
}

// OnlineChecker reports whether the remote datastore is reachable.
type OnlineChecker interface {
	IsOnline() bool
}

// Limiter throttles replays per entity kind.
type Limiter interface {
	Wait(ctx context.Context, kind domain.Kind) error
}

// Hooks are optional observation callbacks; nil fields are skipped.
type Hooks struct {
	OnReplay   func(t domain.OpType, outcome string, latency time.Duration)
	OnSnapshot func(s domain.Summary, sending int)
}

type Option func(*Queue)

func WithStorageKey(key string) Option { return func(q *Queue) { q.key = key } }
func WithLimiter(l Limiter) Option     { return func(q *Queue) { q.limiter = l } }
func WithHooks(h Hooks) Option         { return func(q *Queue) { q.hooks = h } }

// WithClock replaces time.Now for createdAt stamps.
func WithClock(now func() time.Time) Option { return func(q *Queue) { q.now = now } }

// Queue is the durable list of operations waiting to reach the remote
// datastore. The whole list is stored as one JSON blob; every mutation
// loads the cached list, computes the next one, persists it and only then
// replaces the cache.
type Queue struct {
	store   kvstore.Store
	remote  Replayer
	tracker Confirmer
	conn    OnlineChecker
	logger  *zap.Logger

	key     string
	limiter Limiter
	hooks   Hooks
	now     func() time.Time

	mu     sync.Mutex
	items  []domain.QueueItem
	loaded bool

	subMu   sync.Mutex
	subs    map[int]func([]domain.QueueItem)
	nextSub int
}

func New(store kvstore.Store, remote Replayer, tracker Confirmer, conn OnlineChecker, logger *zap.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:   store,
		remote:  remote,
		tracker: tracker,
		conn:    conn,
		logger:  logger,
		key:     DefaultStorageKey,
		now:     time.Now,
		subs:    make(map[int]func([]domain.QueueItem)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// GetAll returns a copy of every item in unspecified order.
func (q *Queue) GetAll(ctx context.Context) ([]domain.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(ctx); err != nil {
		return nil, err
	}
	return cloneItems(q.items), nil
}

func (q *Queue) GetSummary(ctx context.Context) (domain.Summary, error) {
	items, err := q.GetAll(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	s, _ := summarize(items)
	return s, nil
}

// Enqueue records op as PENDING after dropping the items it supersedes.
func (q *Queue) Enqueue(ctx context.Context, op domain.Operation) (domain.QueueItem, error) {
	payload, err := domain.EncodePayload(op)
	if err != nil {
		return domain.QueueItem{}, err
	}
	item := domain.QueueItem{
		ID:        uuid.NewString(),
		Type:      op.Type(),
		Key:       op.Key(),
		Payload:   payload,
		CreatedAt: q.now().UTC(),
		Status:    domain.StatusPending,
	}

	err = q.mutate(ctx, func(items []domain.QueueItem) ([]domain.QueueItem, error) {
		next := compact(items, item)
		if dropped := len(items) - len(next); dropped > 0 {
			q.logger.Debug("compacted queue",
				zap.String("key", item.Key),
				zap.String("type", string(item.Type)),
				zap.Int("dropped", dropped),
			)
		}
		return append(next, item), nil
	})
	if err != nil {
		return domain.QueueItem{}, err
	}
	return item, nil
}

// ProcessNow replays every non-SENDING item oldest first. A failed replay
// marks its item FAILED and the sweep moves on; only storage errors and
// context cancellation stop it. Offline, it only notifies subscribers.
func (q *Queue) ProcessNow(ctx context.Context) error {
	q.mu.Lock()
	if err := q.loadLocked(ctx); err != nil {
		q.mu.Unlock()
		return err
	}
	snapshot := cloneItems(q.items)
	q.mu.Unlock()

	if !q.conn.IsOnline() {
		q.notify(snapshot)
		return nil
	}

	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
	})

	for _, candidate := range snapshot {
		if candidate.Status == domain.StatusSending {
			continue
		}
		if q.limiter != nil {
			if err := q.limiter.Wait(ctx, candidate.Type.Kind()); err != nil {
				return err
			}
		}
		if err := q.replay(ctx, candidate.ID); err != nil {
			return err
		}
	}
	return nil
}

// replay claims one item, sends it and records the outcome.
func (q *Queue) replay(ctx context.Context, id string) error {
	var item domain.QueueItem
	claimed := false
	err := q.mutate(ctx, func(items []domain.QueueItem) ([]domain.QueueItem, error) {
		i := indexOf(items, id)
		if i < 0 || items[i].Status == domain.StatusSending {
			return nil, errUnchanged
		}
		items[i].Status = domain.StatusSending
		items[i].Attempts++
		item = items[i]
		claimed = true
		return items, nil
	})
	if err != nil || !claimed {
		return err
	}

	start := time.Now()
	op, err := item.Operation()
	if err == nil {
		err = q.remote.Apply(ctx, op)
	}
	latency := time.Since(start)

	// The remote call may have landed; record the outcome even if the
	// caller's context is gone so the item is not stranded in SENDING.
	bctx := context.WithoutCancel(ctx)
	log := q.logger.With(
		zap.String("queue_id", item.ID),
		zap.String("key", item.Key),
		zap.String("type", string(item.Type)),
		zap.Int("attempts", item.Attempts),
	)

	if err == nil {
		q.observeReplay(item.Type, ReplaySuccess, latency)
		if err := q.mutate(bctx, func(items []domain.QueueItem) ([]domain.QueueItem, error) {
			i := indexOf(items, id)
			if i < 0 {
				return nil, errUnchanged
			}
			return append(items[:i], items[i+1:]...), nil
		}); err != nil {
			return err
		}
		log.Info("replayed queued write", zap.Duration("latency", latency))
		q.tracker.Confirm(item.Key)
		return nil
	}

	q.observeReplay(item.Type, ReplayFailure, latency)
	msg := shortMessage(err)
	found := false
	if err := q.mutate(bctx, func(items []domain.QueueItem) ([]domain.QueueItem, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, errUnchanged
		}
		items[i].Status = domain.StatusFailed
		items[i].LastError = msg
		found = true
		return items, nil
	}); err != nil {
		return err
	}
	log.Warn("replay failed", zap.Error(err))
	if found {
		q.tracker.Fail(item.Key, msg)
	}
	return nil
}

// Retry resets the item to PENDING and runs a sweep.
// An item that is SENDING is left alone; the sweep skips it.
func (q *Queue) Retry(ctx context.Context, id string) error {
	err := q.mutate(ctx, func(items []domain.QueueItem) ([]domain.QueueItem, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, domain.ErrNotFound
		}
		if items[i].Status == domain.StatusSending {
			return nil, errUnchanged
		}
		items[i].Status = domain.StatusPending
		items[i].LastError = ""
		return items, nil
	})
	if err != nil {
		return err
	}
	return q.ProcessNow(ctx)
}

// Discard removes the item whatever its status.
func (q *Queue) Discard(ctx context.Context, id string) error {
	return q.mutate(ctx, func(items []domain.QueueItem) ([]domain.QueueItem, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, domain.ErrNotFound
		}
		return append(items[:i], items[i+1:]...), nil
	})
}

func (q *Queue) ClearAll(ctx context.Context) error {
	return q.mutate(ctx, func([]domain.QueueItem) ([]domain.QueueItem, error) {
		return []domain.QueueItem{}, nil
	})
}

// Subscribe registers fn for the full item list after every mutation.
// If the queue is already loaded fn is called once right away.
func (q *Queue) Subscribe(fn func([]domain.QueueItem)) func() {
	q.subMu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	q.subMu.Unlock()

	q.mu.Lock()
	loaded := q.loaded
	snapshot := cloneItems(q.items)
	q.mu.Unlock()
	if loaded {
		q.deliver(fn, snapshot)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			q.subMu.Lock()
			delete(q.subs, id)
			q.subMu.Unlock()
		})
	}
}

// ---- internals ----

// errUnchanged lets a mutation bail out without persisting or failing.
var errUnchanged = errors.New("queue unchanged")

// mutate runs fn on a copy of the current list, persists the result and
// swaps it into the cache. The cache is untouched if persisting fails.
func (q *Queue) mutate(ctx context.Context, fn func([]domain.QueueItem) ([]domain.QueueItem, error)) error {
	q.mu.Lock()
	if err := q.loadLocked(ctx); err != nil {
		q.mu.Unlock()
		return err
	}

	next, err := fn(cloneItems(q.items))
	if errors.Is(err, errUnchanged) {
		q.mu.Unlock()
		return nil
	}
	if err != nil {
		q.mu.Unlock()
		return err
	}

	if err := q.persistLocked(ctx, next); err != nil {
		q.mu.Unlock()
		return err
	}
	q.items = next
	snapshot := cloneItems(next)
	q.mu.Unlock()

	q.notify(snapshot)
	return nil
}

func (q *Queue) loadLocked(ctx context.Context) error {
	if q.loaded {
		return nil
	}
	raw, ok, err := q.store.Get(ctx, q.key)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	items := []domain.QueueItem{}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return fmt.Errorf("decode queue: %w", err)
		}
	}

	// Nothing is in flight at load time, so a SENDING item was cut off by
	// a previous shutdown. Make it eligible for replay again.
	for i := range items {
		if items[i].Status == domain.StatusSending {
			items[i].Status = domain.StatusPending
			q.logger.Info("recovered interrupted replay",
				zap.String("queue_id", items[i].ID),
				zap.String("key", items[i].Key),
			)
		}
	}

	q.items = items
	q.loaded = true
	return nil
}

func (q *Queue) persistLocked(ctx context.Context, items []domain.QueueItem) error {
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := q.store.Set(ctx, q.key, string(b)); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}

func (q *Queue) notify(items []domain.QueueItem) {
	if q.hooks.OnSnapshot != nil {
		s, sending := summarize(items)
		q.hooks.OnSnapshot(s, sending)
	}

	q.subMu.Lock()
	subs := make([]func([]domain.QueueItem), 0, len(q.subs))
	for _, fn := range q.subs {
		subs = append(subs, fn)
	}
	q.subMu.Unlock()

	for _, fn := range subs {
		q.deliver(fn, cloneItems(items))
	}
}

func (q *Queue) deliver(fn func([]domain.QueueItem), items []domain.QueueItem) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(items)
}

func (q *Queue) observeReplay(t domain.OpType, outcome string, latency time.Duration) {
	if q.hooks.OnReplay != nil {
		q.hooks.OnReplay(t, outcome, latency)
	}
}

func summarize(items []domain.QueueItem) (s domain.Summary, sending int) {
	for _, it := range items {
		switch it.Status {
		case domain.StatusPending:
			s.Pending++
		case domain.StatusFailed:
			s.Failed++
		case domain.StatusSending:
			sending++
		}
	}
	return s, sending
}

func indexOf(items []domain.QueueItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneItems(items []domain.QueueItem) []domain.QueueItem {
	out := make([]domain.QueueItem, len(items))
	copy(out, items)
	return out
}

func shortMessage(err error) string {
	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}
	r := []rune(msg)
	return string(r[:maxErrorLen-1]) + "…"
}
