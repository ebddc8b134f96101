package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GraphStore is the store collaborator: the primitive graph operations this
// subsystem consumes. All write operations use merge-by-id semantics so a
// crash-and-retry of a partially applied sweep is safe to re-run.
type GraphStore interface {
	UpsertEntity(ctx context.Context, e *Entity) error
	GetEntity(ctx context.Context, id string) (*Entity, error)
	// QueryCandidates returns up to limit entities at the given tier that are
	// eligible for promotion evaluation, oldest observation first.
	QueryCandidates(ctx context.Context, tier Tier, limit int) ([]Entity, error)
	SetTier(ctx context.Context, id string, tier Tier) error
	// AbsorbEntities folds the absorbed ids into the canonical record: the
	// canonical entity is upserted and the absorbed rows are tombstoned with a
	// pointer to the canonical id. Idempotent.
	AbsorbEntities(ctx context.Context, canonical *Entity, absorbedIDs []string) error
	MarkContradicted(ctx context.Context, id string, at time.Time) error

	UpsertRelationship(ctx context.Context, r *Relationship) error
	RelationshipExists(ctx context.Context, sourceID, targetID, relType string) (bool, error)
	RelationshipsFrom(ctx context.Context, sourceID, relType string) ([]Relationship, error)
	RelationshipsTouching(ctx context.Context, entityID string, relType string) ([]Relationship, error)

	// FindByNormalizedName returns entities whose case-folded name matches, at
	// or above the given tier. Used for contradiction and linking lookups.
	FindByNormalizedName(ctx context.Context, name string, minTier Tier) ([]Entity, error)
	// FindByEmbedding returns entities whose stored embedding is within the
	// similarity threshold, best match first. Entities without embeddings are
	// not returned.
	FindByEmbedding(ctx context.Context, embedding []float32, minTier Tier, threshold float64, limit int) ([]EntityMatch, error)
	// FindByNameLike returns entities at or above minTier whose name contains
	// the given fragment, case-insensitively.
	FindByNameLike(ctx context.Context, fragment string, minTier Tier, limit int) ([]Entity, error)
	// FindAssertions returns higher-tier entities in the assertion category
	// whose subject property matches. Used by the contradiction check.
	FindAssertions(ctx context.Context, subject string, minTier Tier) ([]Entity, error)
}

// EntityMatch pairs an entity with its similarity to a probe embedding.
type EntityMatch struct {
	Entity
	Similarity float64 `json:"similarity"`
}

// DecisionStore persists immutable promotion decisions.
type DecisionStore interface {
	// Create is idempotent on the decision id; re-creating an existing
	// decision is a no-op.
	Create(ctx context.Context, d *PromotionDecision) error
	GetByID(ctx context.Context, id uuid.UUID) (*PromotionDecision, error)
	ListByEntity(ctx context.Context, entityID string, limit int) ([]PromotionDecision, error)
	ListPending(ctx context.Context, limit int) ([]PromotionDecision, error)
	// MarkReviewed resolves a pending decision. Fails if the decision is not
	// pending.
	MarkReviewed(ctx context.Context, id uuid.UUID, status DecisionStatus, reviewer string, at time.Time) error
}

// LeaseStore provides the per-tier sweep lease. A lease, not an in-process
// mutex, because manual triggers may arrive from a different entry point.
type LeaseStore interface {
	// Acquire takes the lease for a tier if it is free or expired. Returns
	// false when another holder owns it.
	Acquire(ctx context.Context, tier Tier, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, tier Tier, holder string) error
}

// EventKind tags outbox events for consumers.
type EventKind string

const (
	EventPromotionDecision EventKind = "promotion_decision"
	EventReasoningResult   EventKind = "reasoning_result"
)

// OutboxEvent is one at-least-once event for audit/observability consumers.
// Consumers deduplicate by DedupeID (the decision id for decision events).
type OutboxEvent struct {
	ID        uuid.UUID `json:"id"`
	Kind      EventKind `json:"kind"`
	DedupeID  string    `json:"dedupe_id"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// EventOutbox stores events pending publication.
type EventOutbox interface {
	Enqueue(ctx context.Context, e *OutboxEvent) error
	ListUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
}

// EventPublisher delivers events to the external bus. Delivery is
// at-least-once; a publish error leaves the event queued.
type EventPublisher interface {
	Publish(ctx context.Context, e OutboxEvent) error
}
