package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OpType names one kind of mutation that can sit on the pending queue.
type OpType string

const (
	OpUpsertClient      OpType = "UPSERT_CLIENT"
	OpDeleteClient      OpType = "DELETE_CLIENT"
	OpUpsertSale        OpType = "UPSERT_SALE"
	OpDeleteSale        OpType = "DELETE_SALE"
	OpUpsertPayment     OpType = "UPSERT_PAYMENT"
	OpDeletePayment     OpType = "DELETE_PAYMENT"
	OpSavePriceSettings OpType = "SAVE_PRICE_SETTINGS"
	OpUpsertCow         OpType = "UPSERT_COW"
	OpDeleteCow         OpType = "DELETE_COW"
	OpUpsertCalving     OpType = "UPSERT_CALVING"
	OpDeleteCalving     OpType = "DELETE_CALVING"
)

// AllOpTypes lists every operation type in display order.
var AllOpTypes = []OpType{
	OpUpsertClient, OpDeleteClient,
	OpUpsertSale, OpDeleteSale,
	OpUpsertPayment, OpDeletePayment,
	OpSavePriceSettings,
	OpUpsertCow, OpDeleteCow,
	OpUpsertCalving, OpDeleteCalving,
}

func (t OpType) Valid() bool {
	_, ok := opLabels[t]
	return ok
}

// IsUpsert reports whether t writes an entity with merge semantics.
// The singleton settings write is not an upsert for compaction purposes.
func (t OpType) IsUpsert() bool {
	switch t {
	case OpUpsertClient, OpUpsertSale, OpUpsertPayment, OpUpsertCow, OpUpsertCalving:
		return true
	}
	return false
}

func (t OpType) IsDelete() bool {
	switch t {
	case OpDeleteClient, OpDeleteSale, OpDeletePayment, OpDeleteCow, OpDeleteCalving:
		return true
	}
	return false
}

// IsSingleton reports whether at most one pending write of this type may exist.
func (t OpType) IsSingleton() bool {
	return t == OpSavePriceSettings
}

// Kind returns the entity kind the operation targets.
func (t OpType) Kind() Kind {
	switch t {
	case OpUpsertClient, OpDeleteClient:
		return KindClient
	case OpUpsertSale, OpDeleteSale:
		return KindSale
	case OpUpsertPayment, OpDeletePayment:
		return KindPayment
	case OpSavePriceSettings:
		return KindSettings
	case OpUpsertCow, OpDeleteCow:
		return KindCow
	case OpUpsertCalving, OpDeleteCalving:
		return KindCalving
	}
	return ""
}

// Label is the human-readable name shown in the pending-changes panel.
func (t OpType) Label() string {
	if l, ok := opLabels[t]; ok {
		return l
	}
	return string(t)
}

var opLabels = map[OpType]string{
	OpUpsertClient:      "Save client",
	OpDeleteClient:      "Delete client",
	OpUpsertSale:        "Save sale",
	OpDeleteSale:        "Delete sale",
	OpUpsertPayment:     "Record payment",
	OpDeletePayment:     "Delete payment",
	OpSavePriceSettings: "Update milk price",
	OpUpsertCow:         "Save cow",
	OpDeleteCow:         "Delete cow",
	OpUpsertCalving:     "Save calving",
	OpDeleteCalving:     "Delete calving",
}

// Kind identifies an entity family. It doubles as the key prefix.
type Kind string

const (
	KindClient   Kind = "client"
	KindSale     Kind = "sale"
	KindPayment  Kind = "payment"
	KindSettings Kind = "settings"
	KindCow      Kind = "cow"
	KindCalving  Kind = "calving"
)

// AllKinds lists every entity kind.
var AllKinds = []Kind{KindClient, KindSale, KindPayment, KindSettings, KindCow, KindCalving}

// Remote document collections.
const (
	CollectionClients  = "clients"
	CollectionSales    = "sales"
	CollectionPayments = "payments"
	CollectionSettings = "settings"
	CollectionCows     = "cows"
	CollectionCalvings = "calvings"

	PriceSettingsDocID = "price"
)

// Collections lists the collections a client may listen to.
var Collections = []string{
	CollectionClients, CollectionSales, CollectionPayments,
	CollectionSettings, CollectionCows, CollectionCalvings,
}

// PriceSettingsKey is the fixed key of the singleton settings write.
const PriceSettingsKey = "settings:price"

// EntityKey builds the "<kind>:<id>" key used for compaction and the
// optimistic tracker.
func EntityKey(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// Operation is one replayable mutation. The set of implementations is
// closed: only the types in this file satisfy it.
type Operation interface {
	Type() OpType
	Key() string
	payload() any
}

type (
	UpsertClient      struct{ Client Client }
	DeleteClient      struct{ ID string }
	UpsertSale        struct{ Sale Sale }
	DeleteSale        struct{ ID string }
	UpsertPayment     struct{ Write PaymentWrite }
	DeletePayment     struct{ ID string }
	SavePriceSettings struct{ Settings PriceSettings }
	UpsertCow         struct{ Cow Cow }
	DeleteCow         struct{ ID string }
	UpsertCalving     struct{ Event CalvingEvent }
	DeleteCalving     struct{ ID string }
)

// idPayload is what delete operations persist.
type idPayload struct {
	ID string `json:"id"`
}

func (UpsertClient) Type() OpType        { return OpUpsertClient }
func (o UpsertClient) Key() string       { return EntityKey(KindClient, o.Client.ID) }
func (o UpsertClient) payload() any      { return o.Client }
func (DeleteClient) Type() OpType        { return OpDeleteClient }
func (o DeleteClient) Key() string       { return EntityKey(KindClient, o.ID) }
func (o DeleteClient) payload() any      { return idPayload{ID: o.ID} }
func (UpsertSale) Type() OpType          { return OpUpsertSale }
func (o UpsertSale) Key() string         { return EntityKey(KindSale, o.Sale.ID) }
func (o UpsertSale) payload() any        { return o.Sale }
func (DeleteSale) Type() OpType          { return OpDeleteSale }
func (o DeleteSale) Key() string         { return EntityKey(KindSale, o.ID) }
func (o DeleteSale) payload() any        { return idPayload{ID: o.ID} }
func (UpsertPayment) Type() OpType       { return OpUpsertPayment }
func (o UpsertPayment) Key() string      { return EntityKey(KindPayment, o.Write.Payment.ID) }
func (o UpsertPayment) payload() any     { return o.Write }
func (DeletePayment) Type() OpType       { return OpDeletePayment }
func (o DeletePayment) Key() string      { return EntityKey(KindPayment, o.ID) }
func (o DeletePayment) payload() any     { return idPayload{ID: o.ID} }
func (SavePriceSettings) Type() OpType   { return OpSavePriceSettings }
func (SavePriceSettings) Key() string    { return PriceSettingsKey }
func (o SavePriceSettings) payload() any { return o.Settings }
func (UpsertCow) Type() OpType           { return OpUpsertCow }
func (o UpsertCow) Key() string          { return EntityKey(KindCow, o.Cow.ID) }
func (o UpsertCow) payload() any         { return o.Cow }
func (DeleteCow) Type() OpType           { return OpDeleteCow }
func (o DeleteCow) Key() string          { return EntityKey(KindCow, o.ID) }
func (o DeleteCow) payload() any         { return idPayload{ID: o.ID} }
func (UpsertCalving) Type() OpType       { return OpUpsertCalving }
func (o UpsertCalving) Key() string      { return EntityKey(KindCalving, o.Event.ID) }
func (o UpsertCalving) payload() any     { return o.Event }
func (DeleteCalving) Type() OpType       { return OpDeleteCalving }
func (o DeleteCalving) Key() string      { return EntityKey(KindCalving, o.ID) }
func (o DeleteCalving) payload() any     { return idPayload{ID: o.ID} }

// EncodePayload serialises the data needed to replay op later.
func EncodePayload(op Operation) (json.RawMessage, error) {
	b, err := json.Marshal(op.payload())
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", op.Type(), err)
	}
	return b, nil
}

// NewAction builds the optimistic-tracker record for op.
func NewAction(op Operation, now func() time.Time) (Action, error) {
	payload, err := EncodePayload(op)
	if err != nil {
		return Action{}, err
	}
	return Action{Type: op.Type(), Key: op.Key(), Payload: payload, CreatedAt: now().UTC()}, nil
}

// DecodeOperation rebuilds an operation from a persisted queue item.
func DecodeOperation(t OpType, payload json.RawMessage) (Operation, error) {
	switch t {
	case OpUpsertClient:
		var c Client
		if err := decode(payload, &c); err != nil {
			return nil, err
		}
		return UpsertClient{Client: c}, nil
	case OpUpsertSale:
		var s Sale
		if err := decode(payload, &s); err != nil {
			return nil, err
		}
		return UpsertSale{Sale: s}, nil
	case OpUpsertPayment:
		var w PaymentWrite
		if err := decode(payload, &w); err != nil {
			return nil, err
		}
		return UpsertPayment{Write: w}, nil
	case OpSavePriceSettings:
		var p PriceSettings
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		return SavePriceSettings{Settings: p}, nil
	case OpUpsertCow:
		var c Cow
		if err := decode(payload, &c); err != nil {
			return nil, err
		}
		return UpsertCow{Cow: c}, nil
	case OpUpsertCalving:
		var e CalvingEvent
		if err := decode(payload, &e); err != nil {
			return nil, err
		}
		return UpsertCalving{Event: e}, nil
	case OpDeleteClient, OpDeleteSale, OpDeletePayment, OpDeleteCow, OpDeleteCalving:
		var p idPayload
		if err := decode(payload, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("decode %s payload: %w", t, ErrInvalidID)
		}
		switch t {
		case OpDeleteClient:
			return DeleteClient{ID: p.ID}, nil
		case OpDeleteSale:
			return DeleteSale{ID: p.ID}, nil
		case OpDeletePayment:
			return DeletePayment{ID: p.ID}, nil
		case OpDeleteCow:
			return DeleteCow{ID: p.ID}, nil
		default:
			return DeleteCalving{ID: p.ID}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOpType, t)
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
