package repository

import (
	"context"
	"encoding/json"
	"time"
)

// Document is one stored entity, keyed by its own id within a collection.
type Document struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// DocRef addresses a document.
type DocRef struct {
	Collection string
	ID         string
}

// Batch is one merge-save plus any number of deletes applied all-or-nothing.
type Batch struct {
	Save    DocRef
	Data    any
	Deletes []DocRef
}

// DocumentStore is the remote datastore boundary.
// The pgx implementation is in pg_document_store.go.
// Tests use a hand-written mock (mock_document_store.go).
//
// Save has merge semantics: fields present in data overwrite stored
// fields, other stored fields are kept. Delete of a missing document is
// not an error, so both writes are safe to replay.
type DocumentStore interface {
	Save(ctx context.Context, collection, id string, data any) error
	Delete(ctx context.Context, collection, id string) error
	Batch(ctx context.Context, b Batch) error
	List(ctx context.Context, collection string) ([]Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Listen calls onSnapshot with the full collection once immediately and
	// again after every change to it, until the returned function is called
	// or ctx is cancelled.
	Listen(ctx context.Context, collection string, onSnapshot func([]Document)) (func(), error)

	Ping(ctx context.Context) error
}
