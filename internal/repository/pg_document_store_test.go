//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/config"
	"github.com/milkbook/ledger/internal/db"
	"github.com/milkbook/ledger/internal/domain"
	"github.com/milkbook/ledger/internal/repository"
)

func setupStore(t *testing.T) repository.DocumentStore {
	t.Helper()
	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("ledger_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, db.Migrate(dsn))

	pool, err := db.Connect(ctx, &config.Config{DatabaseURL: dsn, DBMaxConns: 5, DBMinConns: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return repository.NewPgDocumentStore(pool, zap.NewNop())
}

func TestPgDocumentStore_SaveMerges(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.CollectionClients, "c1",
		map[string]any{"name": "Dona Maria", "phone": "555-0101"}))
	require.NoError(t, store.Save(ctx, domain.CollectionClients, "c1",
		map[string]any{"name": "Maria"}))

	doc, err := store.Get(ctx, domain.CollectionClients, "c1")
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Maria","phone":"555-0101"}`, string(doc.Data))
}

func TestPgDocumentStore_DeleteIsIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.CollectionSales, "s1", map[string]any{"liters": 10}))
	require.NoError(t, store.Delete(ctx, domain.CollectionSales, "s1"))
	require.NoError(t, store.Delete(ctx, domain.CollectionSales, "s1"))

	_, err := store.Get(ctx, domain.CollectionSales, "s1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPgDocumentStore_BatchSettlesSales(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.CollectionSales, "s1", map[string]any{"liters": 10}))
	require.NoError(t, store.Save(ctx, domain.CollectionSales, "s2", map[string]any{"liters": 5}))

	err := store.Batch(ctx, repository.Batch{
		Save: repository.DocRef{Collection: domain.CollectionPayments, ID: "p1"},
		Data: map[string]any{"amount": 52.5},
		Deletes: []repository.DocRef{
			{Collection: domain.CollectionSales, ID: "s1"},
			{Collection: domain.CollectionSales, ID: "s2"},
		},
	})
	require.NoError(t, err)

	sales, err := store.List(ctx, domain.CollectionSales)
	require.NoError(t, err)
	require.Empty(t, sales)

	payments, err := store.List(ctx, domain.CollectionPayments)
	require.NoError(t, err)
	require.Len(t, payments, 1)
}

func TestPgDocumentStore_Listen(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	snaps := make(chan []repository.Document, 8)
	stop, err := store.Listen(ctx, domain.CollectionCows, func(docs []repository.Document) {
		snaps <- docs
	})
	require.NoError(t, err)
	defer stop()

	select {
	case docs := <-snaps:
		require.Empty(t, docs)
	case <-time.After(5 * time.Second):
		t.Fatal("expected an initial snapshot")
	}

	// A change in another collection must not wake this listener.
	require.NoError(t, store.Save(ctx, domain.CollectionClients, "c1", map[string]any{"name": "x"}))
	require.NoError(t, store.Save(ctx, domain.CollectionCows, "cow1", map[string]any{"name": "Mimosa"}))

	select {
	case docs := <-snaps:
		require.Len(t, docs, 1)
		require.Equal(t, "cow1", docs[0].ID)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a snapshot after the change")
	}
}
