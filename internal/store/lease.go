package store

import (
	"context"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LeaseStore implements the per-tier sweep lease on a plain table. The upsert
// takes the lease only when it is free, expired, or already ours, so at most
// one holder owns a tier at a time no matter which process asked.
type LeaseStore struct {
	db *pgxpool.Pool
}

func NewLeaseStore(db *pgxpool.Pool) *LeaseStore {
	return &LeaseStore{db: db}
}

func (s *LeaseStore) Acquire(ctx context.Context, tier domain.Tier, holder string, ttl time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO sweep_leases (tier, holder, expires_at)
		 VALUES ($1, $2, NOW() + $3)
		 ON CONFLICT (tier) DO UPDATE
		 SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		 WHERE sweep_leases.expires_at < NOW() OR sweep_leases.holder = EXCLUDED.holder`,
		tier, holder, ttl,
	)
	if err != nil {
		return false, wrapConn(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *LeaseStore) Release(ctx context.Context, tier domain.Tier, holder string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM sweep_leases WHERE tier = $1 AND holder = $2`,
		tier, holder,
	)
	return wrapConn(err)
}
