package store

import (
	"context"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxStore persists events pending publication. The dedupe id is unique
// per kind so a retried sweep cannot enqueue the same outcome twice.
type OutboxStore struct {
	db *pgxpool.Pool
}

func NewOutboxStore(db *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{db: db}
}

func (s *OutboxStore) Enqueue(ctx context.Context, e *domain.OutboxEvent) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO outbox_events (id, kind, dedupe_id, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (kind, dedupe_id) DO NOTHING`,
		e.ID, e.Kind, e.DedupeID, e.Payload, e.CreatedAt,
	)
	return wrapConn(err)
}

func (s *OutboxStore) ListUnpublished(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, kind, dedupe_id, payload, created_at
		 FROM outbox_events
		 WHERE published_at IS NULL
		 ORDER BY created_at, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, wrapConn(err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.DedupeID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, wrapConn(err)
		}
		events = append(events, e)
	}
	return events, wrapConn(rows.Err())
}

// MarkPublished is idempotent: marking an already-published event is a no-op
// so concurrent dispatchers cannot trip each other.
func (s *OutboxStore) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE outbox_events SET published_at = NOW() WHERE id = $1 AND published_at IS NULL`,
		id,
	)
	return wrapConn(err)
}
