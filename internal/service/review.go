package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrDecisionNotPending is returned when a review targets a decision that
	// was already resolved.
	ErrDecisionNotPending = errors.New("decision is not pending review")
	// ErrReviewerRequired is returned for approve/reject without a reviewer.
	ErrReviewerRequired = errors.New("reviewer is required")
)

// ReviewService applies human verdicts to pending promotion decisions. An
// approval performs the held tier bump; a rejection leaves the entity where
// it is; a deferral keeps the decision pending.
type ReviewService struct {
	decisions domain.DecisionStore
	store     domain.GraphStore
	outbox    domain.EventOutbox
	logger    *zap.Logger
}

func NewReviewService(decisions domain.DecisionStore, store domain.GraphStore, outbox domain.EventOutbox, logger *zap.Logger) *ReviewService {
	return &ReviewService{decisions: decisions, store: store, outbox: outbox, logger: logger}
}

// ListPending returns decisions awaiting a human verdict, oldest first.
func (s *ReviewService) ListPending(ctx context.Context, limit int) ([]domain.PromotionDecision, error) {
	return s.decisions.ListPending(ctx, limit)
}

// Get returns one decision by id.
func (s *ReviewService) Get(ctx context.Context, id uuid.UUID) (*domain.PromotionDecision, error) {
	return s.decisions.GetByID(ctx, id)
}

// ListByEntity returns the decision history for one entity, newest first.
func (s *ReviewService) ListByEntity(ctx context.Context, entityID string, limit int) ([]domain.PromotionDecision, error) {
	return s.decisions.ListByEntity(ctx, entityID, limit)
}

// Apply resolves a pending decision with the given action. The tier bump
// happens before the decision is marked reviewed, so a crash between the two
// leaves a retryable pending decision rather than a silently lost promotion.
func (s *ReviewService) Apply(ctx context.Context, id uuid.UUID, action domain.ReviewAction, reviewer string) (*domain.PromotionDecision, error) {
	decision, err := s.decisions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if decision.Status != domain.DecisionPendingReview {
		return nil, ErrDecisionNotPending
	}

	now := time.Now()

	switch action {
	case domain.ReviewDefer:
		s.logger.Info("promotion review deferred",
			zap.String("decision_id", id.String()),
			zap.String("entity_id", decision.EntityID))
		return decision, nil

	case domain.ReviewApprove:
		if reviewer == "" {
			return nil, ErrReviewerRequired
		}
		entity, err := s.store.GetEntity(ctx, decision.EntityID)
		if err != nil {
			return nil, fmt.Errorf("load entity for review: %w", err)
		}
		if entity.Tier != decision.FromTier {
			// A later sweep already moved the entity past this decision.
			// Applying the bump now would set the tier backward, so the
			// stale decision is resolved without touching the entity.
			if err := s.decisions.MarkReviewed(ctx, id, domain.DecisionRejected, reviewer, now); err != nil {
				return nil, err
			}
			decision.Status = domain.DecisionRejected
			decision.Reason = fmt.Sprintf("superseded: entity is at tier %s, decision expected %s", entity.Tier, decision.FromTier)
			s.logger.Info("stale promotion review resolved without tier change",
				zap.String("decision_id", id.String()),
				zap.String("entity_id", decision.EntityID),
				zap.String("entity_tier", string(entity.Tier)),
				zap.String("decision_from_tier", string(decision.FromTier)))
			break
		}
		if err := s.store.SetTier(ctx, decision.EntityID, decision.ToTier); err != nil {
			return nil, fmt.Errorf("apply reviewed tier bump: %w", err)
		}
		if err := s.decisions.MarkReviewed(ctx, id, domain.DecisionApproved, reviewer, now); err != nil {
			return nil, err
		}
		decision.Status = domain.DecisionApproved

	case domain.ReviewReject:
		if reviewer == "" {
			return nil, ErrReviewerRequired
		}
		if err := s.decisions.MarkReviewed(ctx, id, domain.DecisionRejected, reviewer, now); err != nil {
			return nil, err
		}
		decision.Status = domain.DecisionRejected

	default:
		return nil, &domain.ValidationError{Field: "action", Reason: "unknown review action"}
	}

	decision.Reviewer = &reviewer
	decision.ReviewedAt = &now

	s.logger.Info("promotion review resolved",
		zap.String("decision_id", id.String()),
		zap.String("entity_id", decision.EntityID),
		zap.String("status", string(decision.Status)),
		zap.String("reviewer", reviewer))

	if err := s.enqueueResolution(ctx, decision); err != nil {
		s.logger.Warn("failed to enqueue review event",
			zap.String("decision_id", id.String()), zap.Error(err))
	}

	return decision, nil
}

func (s *ReviewService) enqueueResolution(ctx context.Context, d *domain.PromotionDecision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	createdAt := time.Now()
	if d.ReviewedAt != nil {
		createdAt = *d.ReviewedAt
	}
	return s.outbox.Enqueue(ctx, &domain.OutboxEvent{
		ID:        uuid.New(),
		Kind:      domain.EventPromotionDecision,
		DedupeID:  d.ID.String() + ":reviewed",
		Payload:   payload,
		CreatedAt: createdAt,
	})
}
