package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// Store bundles the concrete pgx-backed store implementations over one pool.
type Store struct {
	Graph     *GraphStore
	Decisions *DecisionStore
	Leases    *LeaseStore
	Outbox    *OutboxStore
}

func New(db *pgxpool.Pool) *Store {
	return &Store{
		Graph:     NewGraphStore(db),
		Decisions: NewDecisionStore(db),
		Leases:    NewLeaseStore(db),
		Outbox:    NewOutboxStore(db),
	}
}

// wrapConn maps connectivity failures onto domain.ErrStoreUnavailable so the
// sweep can distinguish "the store is down" from a per-row problem. Query
// errors the server actually evaluated pass through unchanged.
func wrapConn(err error) error {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}
