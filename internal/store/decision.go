package store

import (
	"context"
	"errors"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DecisionStore persists promotion decisions as the immutable audit trail of
// the gate.
type DecisionStore struct {
	db *pgxpool.Pool
}

func NewDecisionStore(db *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{db: db}
}

// Create writes a decision. Idempotent on the decision id so a retried sweep
// cannot duplicate the record.
func (s *DecisionStore) Create(ctx context.Context, d *domain.PromotionDecision) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO promotion_decisions
		   (id, entity_id, from_tier, to_tier, status, risk_level, criteria_results, reason, evaluated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		d.ID, d.EntityID, d.FromTier, d.ToTier, d.Status, d.RiskLevel,
		d.CriteriaResults, d.Reason, d.EvaluatedAt,
	)
	return wrapConn(err)
}

const decisionColumns = `id, entity_id, from_tier, to_tier, status, risk_level,
	       criteria_results, reason, evaluated_at, reviewer, reviewed_at`

func (s *DecisionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.PromotionDecision, error) {
	d := &domain.PromotionDecision{}
	err := s.db.QueryRow(ctx,
		`SELECT `+decisionColumns+`
		 FROM promotion_decisions WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.EntityID, &d.FromTier, &d.ToTier, &d.Status, &d.RiskLevel,
		&d.CriteriaResults, &d.Reason, &d.EvaluatedAt, &d.Reviewer, &d.ReviewedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapConn(err)
	}
	return d, nil
}

func (s *DecisionStore) ListByEntity(ctx context.Context, entityID string, limit int) ([]domain.PromotionDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+decisionColumns+`
		 FROM promotion_decisions
		 WHERE entity_id = $1
		 ORDER BY evaluated_at DESC
		 LIMIT $2`,
		entityID, limit,
	)
	if err != nil {
		return nil, wrapConn(err)
	}
	defer rows.Close()
	return collectDecisions(rows)
}

func (s *DecisionStore) ListPending(ctx context.Context, limit int) ([]domain.PromotionDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+decisionColumns+`
		 FROM promotion_decisions
		 WHERE status = $1
		 ORDER BY evaluated_at
		 LIMIT $2`,
		domain.DecisionPendingReview, limit,
	)
	if err != nil {
		return nil, wrapConn(err)
	}
	defer rows.Close()
	return collectDecisions(rows)
}

// MarkReviewed resolves a pending decision. The status guard makes a double
// review a no-op failure instead of an overwrite.
func (s *DecisionStore) MarkReviewed(ctx context.Context, id uuid.UUID, status domain.DecisionStatus, reviewer string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE promotion_decisions
		 SET status = $2, reviewer = $3, reviewed_at = $4
		 WHERE id = $1 AND status = $5`,
		id, status, reviewer, at, domain.DecisionPendingReview,
	)
	if err != nil {
		return wrapConn(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectDecisions(rows pgx.Rows) ([]domain.PromotionDecision, error) {
	var decisions []domain.PromotionDecision
	for rows.Next() {
		var d domain.PromotionDecision
		if err := rows.Scan(&d.ID, &d.EntityID, &d.FromTier, &d.ToTier, &d.Status, &d.RiskLevel,
			&d.CriteriaResults, &d.Reason, &d.EvaluatedAt, &d.Reviewer, &d.ReviewedAt); err != nil {
			return nil, wrapConn(err)
		}
		decisions = append(decisions, d)
	}
	return decisions, wrapConn(rows.Err())
}
