package remote

import (
	"context"
	"fmt"

	"github.com/milkbook/ledger/internal/domain"
	"github.com/milkbook/ledger/internal/repository"
)

// Writer performs entity writes against the remote document datastore.
// Its entity methods are the direct path: errors propagate unchanged and
// nothing is tracked or queued. Apply replays a decoded queue operation
// through the same calls.
type Writer struct {
	store repository.DocumentStore
}

func NewWriter(store repository.DocumentStore) *Writer {
	return &Writer{store: store}
}

func (w *Writer) SaveClient(ctx context.Context, c domain.Client) error {
	return w.store.Save(ctx, domain.CollectionClients, c.ID, c)
}

func (w *Writer) DeleteClient(ctx context.Context, id string) error {
	return w.store.Delete(ctx, domain.CollectionClients, id)
}

func (w *Writer) SaveSale(ctx context.Context, s domain.Sale) error {
	return w.store.Save(ctx, domain.CollectionSales, s.ID, s)
}

func (w *Writer) DeleteSale(ctx context.Context, id string) error {
	return w.store.Delete(ctx, domain.CollectionSales, id)
}

// SavePayment stores the payment and deletes the sales it settles in one
// all-or-nothing batch.
func (w *Writer) SavePayment(ctx context.Context, pw domain.PaymentWrite) error {
	deletes := make([]repository.DocRef, 0, len(pw.SettledSaleIDs))
	for _, id := range pw.SettledSaleIDs {
		deletes = append(deletes, repository.DocRef{Collection: domain.CollectionSales, ID: id})
	}
	return w.store.Batch(ctx, repository.Batch{
		Save:    repository.DocRef{Collection: domain.CollectionPayments, ID: pw.Payment.ID},
		Data:    pw.Payment,
		Deletes: deletes,
	})
}

func (w *Writer) DeletePayment(ctx context.Context, id string) error {
	return w.store.Delete(ctx, domain.CollectionPayments, id)
}

func (w *Writer) SavePriceSettings(ctx context.Context, p domain.PriceSettings) error {
	return w.store.Save(ctx, domain.CollectionSettings, domain.PriceSettingsDocID, p)
}

func (w *Writer) SaveCow(ctx context.Context, c domain.Cow) error {
	return w.store.Save(ctx, domain.CollectionCows, c.ID, c)
}

func (w *Writer) DeleteCow(ctx context.Context, id string) error {
	return w.store.Delete(ctx, domain.CollectionCows, id)
}

func (w *Writer) SaveCalvingEvent(ctx context.Context, e domain.CalvingEvent) error {
	return w.store.Save(ctx, domain.CollectionCalvings, e.ID, e)
}

func (w *Writer) DeleteCalvingEvent(ctx context.Context, id string) error {
	return w.store.Delete(ctx, domain.CollectionCalvings, id)
}

// Apply dispatches op to the matching entity call.
func (w *Writer) Apply(ctx context.Context, op domain.Operation) error {
	switch o := op.(type) {
	case domain.UpsertClient:
		return w.SaveClient(ctx, o.Client)
	case domain.DeleteClient:
		return w.DeleteClient(ctx, o.ID)
	case domain.UpsertSale:
		return w.SaveSale(ctx, o.Sale)
	case domain.DeleteSale:
		return w.DeleteSale(ctx, o.ID)
	case domain.UpsertPayment:
		return w.SavePayment(ctx, o.Write)
	case domain.DeletePayment:
		return w.DeletePayment(ctx, o.ID)
	case domain.SavePriceSettings:
		return w.SavePriceSettings(ctx, o.Settings)
	case domain.UpsertCow:
		return w.SaveCow(ctx, o.Cow)
	case domain.DeleteCow:
		return w.DeleteCow(ctx, o.ID)
	case domain.UpsertCalving:
		return w.SaveCalvingEvent(ctx, o.Event)
	case domain.DeleteCalving:
		return w.DeleteCalvingEvent(ctx, o.ID)
	}
	return fmt.Errorf("%w: %T", domain.ErrUnknownOpType, op)
}

// Listen exposes the datastore's live collection feed.
func (w *Writer) Listen(ctx context.Context, collection string, fn func([]repository.Document)) (func(), error) {
	return w.store.Listen(ctx, collection, fn)
}
