package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/milkbook/ledger/internal/domain"
)

func TestOpType_Classification(t *testing.T) {
	for _, op := range domain.AllOpTypes {
		if !op.Valid() {
			t.Fatalf("%s: expected Valid", op)
		}
		if op.Kind() == "" {
			t.Fatalf("%s: expected a kind", op)
		}
		if op.Label() == string(op) {
			t.Fatalf("%s: expected a human label", op)
		}

		n := 0
		for _, b := range []bool{op.IsUpsert(), op.IsDelete(), op.IsSingleton()} {
			if b {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("%s: expected exactly one of upsert/delete/singleton, got %d", op, n)
		}
	}

	if domain.OpType("UPSERT_TRACTOR").Valid() {
		t.Fatal("expected unknown op type to be invalid")
	}
}

func TestDecodeOperation_RoundTrip(t *testing.T) {
	price := 4.2
	ops := []domain.Operation{
		domain.UpsertClient{Client: domain.Client{ID: "c1", Name: "Dona Maria", PricePerLiter: &price}},
		domain.DeleteClient{ID: "c1"},
		domain.UpsertSale{Sale: domain.Sale{ID: "s1", ClientID: "c1", Date: "2024-01-05", Liters: 10, TotalValue: 35}},
		domain.DeleteSale{ID: "s1"},
		domain.UpsertPayment{Write: domain.PaymentWrite{
			Payment:        domain.Payment{ID: "p1", ClientID: "c1", Date: "2024-01-31", Amount: 35},
			SettledSaleIDs: []string{"s1"},
		}},
		domain.DeletePayment{ID: "p1"},
		domain.SavePriceSettings{Settings: domain.PriceSettings{PricePerLiter: 3.5}},
		domain.UpsertCow{Cow: domain.Cow{ID: "cow1", Name: "Mimosa"}},
		domain.DeleteCow{ID: "cow1"},
		domain.UpsertCalving{Event: domain.CalvingEvent{ID: "cv1", CowID: "cow1", Date: "2024-03-10", CalfSex: domain.CalfMale}},
		domain.DeleteCalving{ID: "cv1"},
	}

	for _, op := range ops {
		t.Run(string(op.Type()), func(t *testing.T) {
			payload, err := domain.EncodePayload(op)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := domain.DecodeOperation(op.Type(), payload)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Type() != op.Type() || got.Key() != op.Key() {
				t.Fatalf("expected %s/%s, got %s/%s", op.Type(), op.Key(), got.Type(), got.Key())
			}
		})
	}
}

func TestDecodeOperation_Errors(t *testing.T) {
	_, err := domain.DecodeOperation("UPSERT_TRACTOR", json.RawMessage(`{}`))
	if !errors.Is(err, domain.ErrUnknownOpType) {
		t.Fatalf("expected ErrUnknownOpType, got %v", err)
	}

	_, err = domain.DecodeOperation(domain.OpDeleteSale, json.RawMessage(`{}`))
	if !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for delete without id, got %v", err)
	}

	_, err = domain.DecodeOperation(domain.OpUpsertSale, json.RawMessage(`not json`))
	if err == nil {
		t.Fatal("expected an error for malformed payload")
	}
}

func TestKeys(t *testing.T) {
	if k := (domain.UpsertSale{Sale: domain.Sale{ID: "s1"}}).Key(); k != "sale:s1" {
		t.Fatalf("expected sale:s1, got %q", k)
	}
	if k := (domain.SavePriceSettings{}).Key(); k != "settings:price" {
		t.Fatalf("expected settings:price, got %q", k)
	}
	if k := (domain.DeleteCalving{ID: "cv1"}).Key(); k != "calving:cv1" {
		t.Fatalf("expected calving:cv1, got %q", k)
	}
}

func TestNewAction(t *testing.T) {
	now := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	a, err := domain.NewAction(domain.DeleteClient{ID: "c9"}, func() time.Time { return now })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Type != domain.OpDeleteClient || a.Key != "client:c9" || !a.CreatedAt.Equal(now) {
		t.Fatalf("unexpected action: %+v", a)
	}
	if string(a.Payload) != `{"id":"c9"}` {
		t.Fatalf("unexpected payload %s", a.Payload)
	}
}
