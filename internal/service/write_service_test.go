package service_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/connectivity"
	"github.com/milkbook/ledger/internal/domain"
	"github.com/milkbook/ledger/internal/kvstore"
	"github.com/milkbook/ledger/internal/optimistic"
	"github.com/milkbook/ledger/internal/queue"
	"github.com/milkbook/ledger/internal/remote"
	"github.com/milkbook/ledger/internal/repository"
	"github.com/milkbook/ledger/internal/service"
)

type harness struct {
	svc     *service.WriteService
	q       *queue.Queue
	tracker *optimistic.Tracker
	docs    *repository.MockDocumentStore
	kv      *kvstore.MemoryStore
	conn    *connectivity.Monitor
	writes  []domain.Outcome
}

func newHarness(online bool) *harness {
	h := &harness{
		tracker: optimistic.New(zap.NewNop()),
		docs:    repository.NewMockDocumentStore(),
		kv:      kvstore.NewMemoryStore(),
		conn:    connectivity.New(online, zap.NewNop()),
	}
	writer := remote.NewWriter(h.docs)
	h.q = queue.New(h.kv, writer, h.tracker, h.conn, zap.NewNop())
	h.svc = service.NewWriteService(writer, h.q, h.tracker, h.conn, zap.NewNop(),
		service.WithWriteHook(func(_ domain.OpType, o domain.Outcome) { h.writes = append(h.writes, o) }))
	return h
}

func (h *harness) items(t *testing.T) []domain.QueueItem {
	t.Helper()
	items, err := h.q.GetAll(context.Background())
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	return items
}

var sampleSale = domain.Sale{ID: "s1", ClientID: "c1", Date: "2024-01-05", Liters: 10, TotalValue: 35}

func TestWriteService_OnlineConfirms(t *testing.T) {
	h := newHarness(true)

	var events []optimistic.EventKind
	h.tracker.Subscribe(func(e optimistic.Event) { events = append(events, e.Kind) })

	res := h.svc.SaveSale(context.Background(), sampleSale)
	if res.Outcome != domain.OutcomeConfirmed || !res.Accepted() {
		t.Fatalf("expected confirmed, got %+v", res)
	}
	if h.docs.Data(domain.CollectionSales, "s1") == nil {
		t.Fatal("expected sale written to the datastore")
	}
	if h.tracker.IsPending("sale:s1") {
		t.Fatal("expected sale:s1 confirmed")
	}
	if len(h.items(t)) != 0 {
		t.Fatal("expected nothing queued")
	}
	if len(events) != 2 || events[0] != optimistic.EventApply || events[1] != optimistic.EventConfirm {
		t.Fatalf("expected APPLY then CONFIRM, got %v", events)
	}
}

func TestWriteService_OfflineShortCircuit(t *testing.T) {
	h := newHarness(false)

	res := h.svc.SaveClient(context.Background(), domain.Client{ID: "c1", Name: "Ana"})
	if res.Outcome != domain.OutcomeQueued || res.QueueID == "" {
		t.Fatalf("expected queued, got %+v", res)
	}
	if !h.tracker.IsPending("client:c1") {
		t.Fatal("expected client:c1 pending")
	}
	if h.docs.Writes() != 0 {
		t.Fatal("expected no remote call while offline")
	}

	items := h.items(t)
	if len(items) != 1 || items[0].Type != domain.OpUpsertClient || items[0].Key != "client:c1" {
		t.Fatalf("expected one UPSERT_CLIENT item, got %+v", items)
	}
}

func TestWriteService_RemoteFailureQueues(t *testing.T) {
	h := newHarness(true)
	h.docs.BatchErr = errors.New("deadline exceeded")

	res := h.svc.SavePayment(context.Background(),
		domain.Payment{ID: "p1", ClientID: "c1", Date: "2024-01-31", Amount: 35}, []string{"s1"})
	if res.Outcome != domain.OutcomeQueued || res.Message != "deadline exceeded" {
		t.Fatalf("expected queued with message, got %+v", res)
	}
	e, ok := h.tracker.Status("payment:p1")
	if !ok || !e.Failed || e.Error != "deadline exceeded" {
		t.Fatalf("expected failed tracker entry, got %+v", e)
	}

	items := h.items(t)
	if len(items) != 1 || items[0].Type != domain.OpUpsertPayment {
		t.Fatalf("expected one UPSERT_PAYMENT item, got %+v", items)
	}
	op, err := items[0].Operation()
	if err != nil {
		t.Fatal(err)
	}
	if ids := op.(domain.UpsertPayment).Write.SettledSaleIDs; len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("expected settled sale ids to survive the queue, got %v", ids)
	}
}

func TestWriteService_StorageFailureIsUnsaved(t *testing.T) {
	h := newHarness(false)
	boom := errors.New("disk full")
	h.kv.FailWrites(boom)

	res := h.svc.DeleteCow(context.Background(), "cow1")
	if res.Outcome != domain.OutcomeUnsaved || !errors.Is(res.Err, boom) || res.Accepted() {
		t.Fatalf("expected unsaved with storage error, got %+v", res)
	}
	if e, _ := h.tracker.Status("cow:cow1"); !e.Failed || !strings.Contains(e.Error, "disk full") {
		t.Fatalf("expected tracker to show the storage error, got %+v", e)
	}
}

func TestWriteService_SweepDuringEnqueueLeavesKeyConfirmed(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()

	// Only the direct write fails; the replay goes through.
	var failed atomic.Bool
	h.docs.FailFunc = func(repository.DocRef) error {
		if failed.CompareAndSwap(false, true) {
			return errors.New("deadline exceeded")
		}
		return nil
	}

	// A sweep runs as soon as the item is persisted, the way an auto
	// processor tick can land between Enqueue and the façade returning.
	var swept atomic.Bool
	h.q.Subscribe(func(items []domain.QueueItem) {
		if len(items) == 1 && swept.CompareAndSwap(false, true) {
			if err := h.q.ProcessNow(ctx); err != nil {
				t.Errorf("sweep: %v", err)
			}
		}
	})

	res := h.svc.SaveSale(ctx, sampleSale)
	if res.Outcome != domain.OutcomeQueued {
		t.Fatalf("expected queued, got %+v", res)
	}
	if !swept.Load() {
		t.Fatal("expected a sweep inside Enqueue")
	}
	if n := len(h.items(t)); n != 0 {
		t.Fatalf("expected the sweep to deliver the item, got %d left", n)
	}
	if h.docs.Data(domain.CollectionSales, "s1") == nil {
		t.Fatal("expected sale written by the replay")
	}
	if h.tracker.IsPending("sale:s1") {
		t.Fatal("expected sale:s1 confirmed after the replay")
	}
}

func TestWriteService_AllKinds(t *testing.T) {
	h := newHarness(false)
	ctx := context.Background()

	results := []domain.WriteResult{
		h.svc.SaveClient(ctx, domain.Client{ID: "c1", Name: "Ana"}),
		h.svc.DeleteClient(ctx, "c2"),
		h.svc.SaveSale(ctx, sampleSale),
		h.svc.DeleteSale(ctx, "s2"),
		h.svc.SavePayment(ctx, domain.Payment{ID: "p1"}, nil),
		h.svc.DeletePayment(ctx, "p2"),
		h.svc.SavePriceSettings(ctx, domain.PriceSettings{PricePerLiter: 3.5}),
		h.svc.SaveCow(ctx, domain.Cow{ID: "cow1", Name: "Mimosa"}),
		h.svc.DeleteCow(ctx, "cow2"),
		h.svc.SaveCalvingEvent(ctx, domain.CalvingEvent{ID: "cv1", CowID: "cow1"}),
		h.svc.DeleteCalvingEvent(ctx, "cv2"),
	}

	seen := map[domain.OpType]bool{}
	for _, r := range results {
		if r.Outcome != domain.OutcomeQueued {
			t.Fatalf("%s: expected queued, got %s", r.Type, r.Outcome)
		}
		seen[r.Type] = true
	}
	for _, op := range domain.AllOpTypes {
		if !seen[op] {
			t.Fatalf("no façade write produced %s", op)
		}
	}
	if len(h.items(t)) != len(domain.AllOpTypes) {
		t.Fatalf("expected one queued item per op type, got %d", len(h.items(t)))
	}
	if len(h.writes) != len(results) {
		t.Fatalf("expected write hook per call, got %d", len(h.writes))
	}
}

func TestOfflineSaleEndToEnd(t *testing.T) {
	h := newHarness(true)
	ctx := context.Background()

	h.conn.SetOnline(false)
	h.svc.SaveSale(ctx, sampleSale)

	items := h.items(t)
	if len(items) != 1 || items[0].Type != domain.OpUpsertSale || items[0].Key != "sale:s1" {
		t.Fatalf("expected one UPSERT_SALE for sale:s1, got %+v", items)
	}
	if !h.tracker.IsPending("sale:s1") {
		t.Fatal("expected sale:s1 pending while offline")
	}

	h.conn.SetOnline(true)
	if err := h.q.ProcessNow(ctx); err != nil {
		t.Fatal(err)
	}

	if n := len(h.items(t)); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
	if h.tracker.IsPending("sale:s1") {
		t.Fatal("expected sale:s1 no longer pending")
	}
	if got := h.docs.Data(domain.CollectionSales, "s1"); got == nil || got["liters"] != float64(10) {
		t.Fatalf("expected replayed sale in datastore, got %v", got)
	}
}
