package queue

import "github.com/milkbook/ledger/internal/domain"

// compact returns the items that survive the arrival of incoming.
// SENDING items are never removed; they resolve on their own.
func compact(items []domain.QueueItem, incoming domain.QueueItem) []domain.QueueItem {
	out := make([]domain.QueueItem, 0, len(items)+1)
	for _, it := range items {
		if supersedes(incoming, it) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// supersedes reports whether a newly enqueued item makes old redundant.
//
// An upsert only replaces an older upsert of the same type and key, so an
// upsert enqueued after a delete of the same entity leaves the delete in
// place. A delete replaces anything on its key.
func supersedes(incoming, old domain.QueueItem) bool {
	if old.Status == domain.StatusSending {
		return false
	}
	switch {
	case incoming.Type.IsSingleton():
		return old.Type == incoming.Type
	case incoming.Type.IsUpsert():
		return old.Type == incoming.Type && old.Key == incoming.Key
	case incoming.Type.IsDelete():
		return old.Key == incoming.Key
	}
	return false
}
