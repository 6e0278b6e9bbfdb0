package connectivity

import (
	"sync"

	"go.uber.org/zap"
)

// Monitor holds the process-wide online/offline flag.
// Listeners fire only on an offline to online transition.
//
// The flag is fed by SetOnline (the probe). An operator override, when
// set, takes precedence until cleared.
type Monitor struct {
	mu       sync.RWMutex
	observed bool
	override *bool
	subs     map[int]func()
	nextID   int

	onChange func(online bool)
	logger   *zap.Logger
}

type Option func(*Monitor)

// WithChangeHook is called on every transition in either direction.
func WithChangeHook(fn func(online bool)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

func New(initial bool, logger *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{observed: initial, subs: make(map[int]func()), logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.effectiveLocked()
}

// Overridden reports whether an operator override is active.
func (m *Monitor) Overridden() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.override != nil
}

// SetOnline records the observed state. Repeating the same state is a no-op.
func (m *Monitor) SetOnline(online bool) {
	m.update(func() { m.observed = online })
}

// Override pins the state regardless of probes; nil returns control to them.
func (m *Monitor) Override(online *bool) {
	m.update(func() {
		if online == nil {
			m.override = nil
			return
		}
		v := *online
		m.override = &v
	})
}

func (m *Monitor) effectiveLocked() bool {
	if m.override != nil {
		return *m.override
	}
	return m.observed
}

func (m *Monitor) update(change func()) {
	m.mu.Lock()
	before := m.effectiveLocked()
	change()
	online := m.effectiveLocked()
	if before == online {
		m.mu.Unlock()
		return
	}
	var subs []func()
	if online {
		subs = make([]func(), 0, len(m.subs))
		for _, fn := range m.subs {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", zap.Bool("online", online))
	if m.onChange != nil {
		m.onChange(online)
	}
	for _, fn := range subs {
		m.deliver(fn)
	}
}

// OnOnline registers fn for reconnect events and returns its remover.
func (m *Monitor) OnOnline(fn func()) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Monitor) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("online listener panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
