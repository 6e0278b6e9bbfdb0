package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/milkbook/ledger/internal/domain"
	"github.com/milkbook/ledger/internal/remote"
	"github.com/milkbook/ledger/internal/repository"
)

func TestWriter_ApplyDispatch(t *testing.T) {
	tests := []struct {
		name       string
		op         domain.Operation
		collection string
		id         string
		wantDoc    bool
	}{
		{"upsert client", domain.UpsertClient{Client: domain.Client{ID: "c1", Name: "Ana"}}, domain.CollectionClients, "c1", true},
		{"upsert sale", domain.UpsertSale{Sale: domain.Sale{ID: "s9", ClientID: "c1", Date: "2024-01-05", Liters: 2}}, domain.CollectionSales, "s9", true},
		{"price settings", domain.SavePriceSettings{Settings: domain.PriceSettings{PricePerLiter: 3.5}}, domain.CollectionSettings, domain.PriceSettingsDocID, true},
		{"upsert cow", domain.UpsertCow{Cow: domain.Cow{ID: "cow1", Name: "Mimosa"}}, domain.CollectionCows, "cow1", true},
		{"upsert calving", domain.UpsertCalving{Event: domain.CalvingEvent{ID: "cv1", CowID: "cow1"}}, domain.CollectionCalvings, "cv1", true},
		{"delete client", domain.DeleteClient{ID: "c0"}, domain.CollectionClients, "c0", false},
		{"delete sale", domain.DeleteSale{ID: "s0"}, domain.CollectionSales, "s0", false},
		{"delete payment", domain.DeletePayment{ID: "p0"}, domain.CollectionPayments, "p0", false},
		{"delete cow", domain.DeleteCow{ID: "cow0"}, domain.CollectionCows, "cow0", false},
		{"delete calving", domain.DeleteCalving{ID: "cv0"}, domain.CollectionCalvings, "cv0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMockDocumentStore()
			ctx := context.Background()
			// Seed the target so deletes have something to remove.
			if err := store.Save(ctx, tt.collection, tt.id, map[string]any{"seed": true}); err != nil {
				t.Fatalf("seed: %v", err)
			}

			if err := remote.NewWriter(store).Apply(ctx, tt.op); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := store.Data(tt.collection, tt.id) != nil
			if got != tt.wantDoc {
				t.Fatalf("document present = %v, want %v", got, tt.wantDoc)
			}
		})
	}
}

func TestWriter_PaymentSettlesSales(t *testing.T) {
	store := repository.NewMockDocumentStore()
	ctx := context.Background()
	_ = store.Save(ctx, domain.CollectionSales, "s1", map[string]any{"liters": 10})
	_ = store.Save(ctx, domain.CollectionSales, "s2", map[string]any{"liters": 5})
	_ = store.Save(ctx, domain.CollectionSales, "s3", map[string]any{"liters": 1})

	op := domain.UpsertPayment{Write: domain.PaymentWrite{
		Payment:        domain.Payment{ID: "p1", ClientID: "c1", Date: "2024-01-31", Amount: 52.5},
		SettledSaleIDs: []string{"s1", "s2"},
	}}
	if err := remote.NewWriter(store).Apply(ctx, op); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.Data(domain.CollectionPayments, "p1") == nil {
		t.Fatal("expected payment document")
	}
	if store.Data(domain.CollectionSales, "s1") != nil || store.Data(domain.CollectionSales, "s2") != nil {
		t.Fatal("expected settled sales to be deleted")
	}
	if store.Data(domain.CollectionSales, "s3") == nil {
		t.Fatal("expected unrelated sale to remain")
	}
}

func TestWriter_SaveMergesFields(t *testing.T) {
	store := repository.NewMockDocumentStore()
	ctx := context.Background()
	_ = store.Save(ctx, domain.CollectionClients, "c1", map[string]any{"legacyNote": "keep me"})

	if err := remote.NewWriter(store).SaveClient(ctx, domain.Client{ID: "c1", Name: "Ana"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := store.Data(domain.CollectionClients, "c1")
	if doc["legacyNote"] != "keep me" || doc["name"] != "Ana" {
		t.Fatalf("expected merged document, got %v", doc)
	}
}

func TestWriter_ErrorsPropagate(t *testing.T) {
	store := repository.NewMockDocumentStore()
	boom := errors.New("permission denied")
	store.BatchErr = boom

	err := remote.NewWriter(store).SavePayment(context.Background(), domain.PaymentWrite{
		Payment: domain.Payment{ID: "p1"},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected batch error, got %v", err)
	}
}

func TestWriter_SaveClearsFields(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

	t.Run("client", func(t *testing.T) {
		store := repository.NewMockDocumentStore()
		w := remote.NewWriter(store)
		price := 4.0

		first := domain.Client{ID: "c1", Name: "Ana", Phone: "555", Address: "Rua 1", PricePerLiter: &price, CreatedAt: created}
		if err := w.SaveClient(ctx, first); err != nil {
			t.Fatalf("first save: %v", err)
		}
		if err := w.SaveClient(ctx, domain.Client{ID: "c1", Name: "Ana"}); err != nil {
			t.Fatalf("second save: %v", err)
		}

		doc := store.Data(domain.CollectionClients, "c1")
		if doc["phone"] != "" || doc["address"] != "" {
			t.Fatalf("expected contact fields cleared, got %v", doc)
		}
		if v, ok := doc["pricePerLiter"]; !ok || v != nil {
			t.Fatalf("expected pricePerLiter written as null, got %v (present=%v)", v, ok)
		}
		if doc["createdAt"] != "2024-01-02T09:00:00Z" {
			t.Fatalf("expected createdAt preserved, got %v", doc["createdAt"])
		}
	})

	t.Run("cow", func(t *testing.T) {
		store := repository.NewMockDocumentStore()
		w := remote.NewWriter(store)

		if err := w.SaveCow(ctx, domain.Cow{ID: "cow1", Name: "Mimosa", Tag: "A12", Breed: "Gir", Status: "pregnant"}); err != nil {
			t.Fatalf("first save: %v", err)
		}
		if err := w.SaveCow(ctx, domain.Cow{ID: "cow1", Name: "Mimosa"}); err != nil {
			t.Fatalf("second save: %v", err)
		}

		doc := store.Data(domain.CollectionCows, "cow1")
		for _, k := range []string{"tag", "breed", "status", "birthDate"} {
			if doc[k] != "" {
				t.Fatalf("expected %s cleared, got %v", k, doc)
			}
		}
	})

	t.Run("payment note and calving notes", func(t *testing.T) {
		store := repository.NewMockDocumentStore()
		w := remote.NewWriter(store)

		p := domain.Payment{ID: "p1", ClientID: "c1", Date: "2024-01-31", Amount: 10, Note: "cash"}
		_ = w.SavePayment(ctx, domain.PaymentWrite{Payment: p})
		p.Note = ""
		_ = w.SavePayment(ctx, domain.PaymentWrite{Payment: p})
		if doc := store.Data(domain.CollectionPayments, "p1"); doc["note"] != "" {
			t.Fatalf("expected note cleared, got %v", doc)
		}

		e := domain.CalvingEvent{ID: "cv1", CowID: "cow1", Date: "2024-03-10", CalfSex: domain.CalfMale, Notes: "easy"}
		_ = w.SaveCalvingEvent(ctx, e)
		e.Notes = ""
		_ = w.SaveCalvingEvent(ctx, e)
		if doc := store.Data(domain.CollectionCalvings, "cv1"); doc["notes"] != "" {
			t.Fatalf("expected notes cleared, got %v", doc)
		}
	})
}
