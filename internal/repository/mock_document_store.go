package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/milkbook/ledger/internal/domain"
)

// MockDocumentStore is an in-memory DocumentStore for unit tests.
// Save merges top-level fields the same way the JSONB upsert does.
type MockDocumentStore struct {
	mu        sync.Mutex
	docs      map[string]map[string]Document
	listeners map[string]map[int]func([]Document)
	nextID    int
	writes    int

	// Optional error overrides; set in tests to simulate failure paths.
	SaveErr   error
	DeleteErr error
	BatchErr  error
	ListErr   error
	PingErr   error

	// FailFunc, when set, is consulted before every write; a non-nil error
	// fails that write only.
	FailFunc func(ref DocRef) error

	// BeforeWrite, when set, runs before every write outside the lock.
	// Tests use it to hold a replay in flight.
	BeforeWrite func(ref DocRef)
}

func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		docs:      make(map[string]map[string]Document),
		listeners: make(map[string]map[int]func([]Document)),
	}
}

func (m *MockDocumentStore) Save(_ context.Context, collection, id string, data any) error {
	ref := DocRef{Collection: collection, ID: id}
	if err := m.precheck(ref, m.SaveErr); err != nil {
		return err
	}
	m.mu.Lock()
	err := m.saveLocked(ref, data)
	snap := m.snapshotLocked(collection)
	subs := m.listenersLocked(collection)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	notify(subs, snap)
	return nil
}

func (m *MockDocumentStore) Delete(_ context.Context, collection, id string) error {
	ref := DocRef{Collection: collection, ID: id}
	if err := m.precheck(ref, m.DeleteErr); err != nil {
		return err
	}
	m.mu.Lock()
	m.writes++
	delete(m.docs[collection], id)
	snap := m.snapshotLocked(collection)
	subs := m.listenersLocked(collection)
	m.mu.Unlock()
	notify(subs, snap)
	return nil
}

func (m *MockDocumentStore) Batch(_ context.Context, b Batch) error {
	if err := m.precheck(b.Save, m.BatchErr); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.saveLocked(b.Save, b.Data); err != nil {
		m.mu.Unlock()
		return err
	}
	touched := map[string]bool{b.Save.Collection: true}
	for _, ref := range b.Deletes {
		delete(m.docs[ref.Collection], ref.ID)
		touched[ref.Collection] = true
	}
	type pending struct {
		subs []func([]Document)
		snap []Document
	}
	var out []pending
	for c := range touched {
		out = append(out, pending{subs: m.listenersLocked(c), snap: m.snapshotLocked(c)})
	}
	m.mu.Unlock()

	for _, p := range out {
		notify(p.subs, p.snap)
	}
	return nil
}

func (m *MockDocumentStore) List(_ context.Context, collection string) ([]Document, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(collection), nil
}

func (m *MockDocumentStore) Get(_ context.Context, collection, id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (m *MockDocumentStore) Listen(_ context.Context, collection string, onSnapshot func([]Document)) (func(), error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	if m.listeners[collection] == nil {
		m.listeners[collection] = make(map[int]func([]Document))
	}
	id := m.nextID
	m.nextID++
	m.listeners[collection][id] = onSnapshot
	snap := m.snapshotLocked(collection)
	m.mu.Unlock()

	onSnapshot(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners[collection], id)
			m.mu.Unlock()
		})
	}, nil
}

func (m *MockDocumentStore) Ping(context.Context) error {
	return m.PingErr
}

// Writes returns how many writes reached the store.
func (m *MockDocumentStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Data decodes the stored document into a generic map, or returns nil.
func (m *MockDocumentStore) Data(collection, id string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return nil
	}
	var out map[string]any
	_ = json.Unmarshal(d.Data, &out)
	return out
}

func (m *MockDocumentStore) precheck(ref DocRef, override error) error {
	if override != nil {
		return override
	}
	if m.BeforeWrite != nil {
		m.BeforeWrite(ref)
	}
	if m.FailFunc != nil {
		if err := m.FailFunc(ref); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockDocumentStore) saveLocked(ref DocRef, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &incoming); err != nil {
		return err
	}

	if m.docs[ref.Collection] == nil {
		m.docs[ref.Collection] = make(map[string]Document)
	}
	merged := map[string]json.RawMessage{}
	if existing, ok := m.docs[ref.Collection][ref.ID]; ok {
		_ = json.Unmarshal(existing.Data, &merged)
	}
	for k, v := range incoming {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	m.writes++
	m.docs[ref.Collection][ref.ID] = Document{ID: ref.ID, Data: out, UpdatedAt: time.Now().UTC()}
	return nil
}

func (m *MockDocumentStore) snapshotLocked(collection string) []Document {
	docs := make([]Document, 0, len(m.docs[collection]))
	for _, d := range m.docs[collection] {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (m *MockDocumentStore) listenersLocked(collection string) []func([]Document) {
	subs := make([]func([]Document), 0, len(m.listeners[collection]))
	for _, fn := range m.listeners[collection] {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func([]Document), snap []Document) {
	for _, fn := range subs {
		fn(snap)
	}
}
