// Package optimistic tracks which entity keys have a mutation that the
// remote datastore has not yet confirmed, so the UI can show "saving…"
// and "failed" markers without waiting for a round-trip.
//
// The tracker is in-memory only; it is rebuilt as writes happen after
// each process start.
package optimistic

import (
	"sync"

	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/domain"
)

// EventKind is the type of a tracker notification.
type EventKind string

const (
	EventApply   EventKind = "APPLY"
	EventConfirm EventKind = "CONFIRM"
	EventFail    EventKind = "FAIL"
)

// Event is delivered to every subscriber on each state change.
// Action is set for APPLY; Error is set for FAIL.
type Event struct {
	Kind   EventKind      `json:"kind"`
	Key    string         `json:"key"`
	Action *domain.Action `json:"action,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Entry is the latest known state of a pending key.
type Entry struct {
	Failed bool   `json:"failed"`
	Error  string `json:"error,omitempty"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	pending map[string]Entry

	subMu  sync.RWMutex
	subs   map[int]func(Event)
	nextID int

	logger *zap.Logger
}

func New(logger *zap.Logger) *Tracker {
	return &Tracker{
		pending: make(map[string]Entry),
		subs:    make(map[int]func(Event)),
		logger:  logger,
	}
}

// Apply marks action.Key pending and notifies subscribers.
func (t *Tracker) Apply(action domain.Action) {
	t.mu.Lock()
	t.pending[action.Key] = Entry{}
	t.mu.Unlock()

	a := action
	t.emit(Event{Kind: EventApply, Key: action.Key, Action: &a})
}

// Confirm removes key from the pending set. Confirming an absent key
// still notifies.
func (t *Tracker) Confirm(key string) {
	t.mu.Lock()
	delete(t.pending, key)
	t.mu.Unlock()

	t.emit(Event{Kind: EventConfirm, Key: key})
}

// Fail (re-)adds key with the failure message.
func (t *Tracker) Fail(key, msg string) {
	t.mu.Lock()
	t.pending[key] = Entry{Failed: true, Error: msg}
	t.mu.Unlock()

	t.emit(Event{Kind: EventFail, Key: key, Error: msg})
}

func (t *Tracker) IsPending(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pending[key]
	return ok
}

// Status returns the entry for key, if pending.
func (t *Tracker) Status(key string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.pending[key]
	return e, ok
}

// Snapshot returns a copy of every pending key.
func (t *Tracker) Snapshot() map[string]Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Entry, len(t.pending))
	for k, v := range t.pending {
		out[k] = v
	}
	return out
}

// Subscribe registers fn for all future events and returns a function
// that removes it. Calling the returned function more than once is safe.
func (t *Tracker) Subscribe(fn func(Event)) func() {
	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subs, id)
			t.subMu.Unlock()
		})
	}
}

// emit delivers ev synchronously. A panicking subscriber is logged and
// does not prevent delivery to the others.
func (t *Tracker) emit(ev Event) {
	t.subMu.RLock()
	fns := make([]func(Event), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.subMu.RUnlock()

	for _, fn := range fns {
		t.deliver(fn, ev)
	}
}

func (t *Tracker) deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tracker subscriber panicked",
				zap.String("event", string(ev.Kind)),
				zap.String("key", ev.Key),
				zap.Any("panic", r),
			)
		}
	}()
	fn(ev)
}
