// Package kvstore provides the durable key-value storage the pending queue
// persists itself to. A Store only has to hold string blobs under string
// keys and survive process restarts.
package kvstore

import "context"

// Store is a durable string key-value store.
// Get reports ok=false, with a nil error, when the key has never been set.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
