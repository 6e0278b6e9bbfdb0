package domain

import (
	"encoding/json"
	"time"
)

// Status tracks a queue item between enqueue and removal.
// A successfully replayed item is removed, so there is no "done" status.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSending Status = "SENDING"
	StatusFailed  Status = "FAILED"
)

// QueueItem is the durable record of one mutation that has not yet been
// confirmed by the remote datastore.
type QueueItem struct {
	ID        string          `json:"id"`
	Type      OpType          `json:"type"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	Status    Status          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
}

// Operation decodes the item's payload back into a replayable operation.
func (i *QueueItem) Operation() (Operation, error) {
	return DecodeOperation(i.Type, i.Payload)
}

// Summary counts queue items for the "N pending / M failed" indicator.
// Items currently SENDING are transient and counted in neither.
type Summary struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// Action is what the optimistic tracker records when a write is attempted:
// a queue item without id, status, and attempts.
type Action struct {
	Type      OpType          `json:"type"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Outcome says what happened to a write submitted through the façade.
type Outcome string

const (
	// OutcomeConfirmed means the remote datastore accepted the write directly.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeQueued means the write failed or the device was offline and the
	// operation now sits on the durable queue for replay.
	OutcomeQueued Outcome = "queued"
	// OutcomeUnsaved means the durable queue could not persist the operation.
	OutcomeUnsaved Outcome = "unsaved"
)

// WriteResult is returned by every façade write instead of an error.
type WriteResult struct {
	Key     string  `json:"key"`
	Type    OpType  `json:"type"`
	Outcome Outcome `json:"outcome"`
	QueueID string  `json:"queueId,omitempty"`
	Err     error   `json:"-"`
	Message string  `json:"message,omitempty"`
}

// Accepted reports whether the write is either confirmed or durably queued.
func (r WriteResult) Accepted() bool {
	return r.Outcome == OutcomeConfirmed || r.Outcome == OutcomeQueued
}
