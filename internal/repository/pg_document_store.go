package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/domain"
)

// changeChannel is the NOTIFY channel fired by the documents trigger;
// the payload is the collection name.
const changeChannel = "documents_changed"

type pgDocumentStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgDocumentStore returns a DocumentStore backed by PostgreSQL JSONB rows.
func NewPgDocumentStore(pool *pgxpool.Pool, logger *zap.Logger) DocumentStore {
	return &pgDocumentStore{pool: pool, logger: logger}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *pgDocumentStore) Save(ctx context.Context, collection, id string, data any) error {
	return saveDocument(ctx, s.pool, collection, id, data)
}

func (s *pgDocumentStore) Delete(ctx context.Context, collection, id string) error {
	return deleteDocument(ctx, s.pool, collection, id)
}

func (s *pgDocumentStore) Batch(ctx context.Context, b Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := saveDocument(ctx, tx, b.Save.Collection, b.Save.ID, b.Data); err != nil {
		return err
	}
	for _, ref := range b.Deletes {
		if err := deleteDocument(ctx, tx, ref.Collection, ref.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *pgDocumentStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, data, updated_at
		FROM documents
		WHERE collection = $1
		ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *pgDocumentStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, data, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2`, collection, id)

	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return d, err
}

// Listen holds one pooled connection for the lifetime of the subscription.
func (s *pgDocumentStore) Listen(ctx context.Context, collection string, onSnapshot func([]Document)) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	log := s.logger.With(zap.String("collection", collection))

	go func() {
		defer close(done)
		defer func() {
			// The connection is still registered for notifications;
			// take it out of the pool and close it.
			_ = conn.Hijack().Close(context.Background())
		}()

		s.emitSnapshot(listenCtx, collection, onSnapshot, log)
		for {
			n, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					log.Error("listen connection lost", zap.Error(err))
				}
				return
			}
			if n.Payload != collection {
				continue
			}
			s.emitSnapshot(listenCtx, collection, onSnapshot, log)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func (s *pgDocumentStore) emitSnapshot(ctx context.Context, collection string, fn func([]Document), log *zap.Logger) {
	docs, err := s.List(ctx, collection)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("snapshot query failed", zap.Error(err))
		}
		return
	}
	fn(docs)
}

func (s *pgDocumentStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ---- helpers ----

// saveDocument upserts with a shallow JSONB merge so replays and
// concurrent partial writes never drop fields the caller did not send.
func saveDocument(ctx context.Context, q querier, collection, id string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (collection, id) DO UPDATE
		SET data = documents.data || EXCLUDED.data, updated_at = NOW()`,
		collection, id, body)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", collection, id, err)
	}
	return nil
}

func deleteDocument(ctx context.Context, q querier, collection, id string) error {
	_, err := q.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var data []byte
	if err := row.Scan(&d.ID, &data, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Data = data
	return &d, nil
}
