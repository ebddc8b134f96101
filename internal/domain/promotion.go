package domain

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel classifies how safety-sensitive an entity's semantic category is.
// The classification is a static lookup, not learned.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// DefaultCategoryRisk is the built-in risk table. Deployments override it via
// the tuning file. Categories absent from the table default to Medium: an
// unknown category is never treated as safe.
var DefaultCategoryRisk = map[string]RiskLevel{
	"demographic": RiskLow,
	"lifestyle":   RiskLow,
	"contact":     RiskLow,
	"preference":  RiskLow,
	"symptom":     RiskMedium,
	"drug":        RiskMedium,
	"observation": RiskMedium,
	"diagnosis":   RiskHigh,
	"medication":  RiskHigh,
	"allergy":     RiskHigh,
	"procedure":   RiskHigh,
	"treatment":   RiskHigh,
}

// RiskTable maps semantic categories to risk levels.
type RiskTable map[string]RiskLevel

func (t RiskTable) For(category string) RiskLevel {
	if t != nil {
		if level, ok := t[category]; ok {
			return level
		}
	}
	if level, ok := DefaultCategoryRisk[category]; ok {
		return level
	}
	return RiskMedium
}

// PromotionCriteria are the per-risk-level thresholds an entity must clear to
// move one tier forward. Configuration, not persisted state.
type PromotionCriteria struct {
	MinConfidence        float64       `json:"min_confidence"`
	MinObservations      int           `json:"min_observations"`
	MinStabilityDuration time.Duration `json:"min_stability_duration"`
	RequireMultiSource   bool          `json:"require_multi_source"`
	RequireOntologyMatch bool          `json:"require_ontology_match"`
}

// DecisionStatus is the terminal state of one gate evaluation within a sweep.
type DecisionStatus string

const (
	DecisionApproved      DecisionStatus = "approved"
	DecisionPendingReview DecisionStatus = "pending_review"
	DecisionRejected      DecisionStatus = "rejected"
)

// CriterionResult records one criterion check so a decision is explainable
// after the fact.
type CriterionResult struct {
	Criterion string `json:"criterion"`
	Passed    bool   `json:"passed"`
	Actual    string `json:"actual"`
	Required  string `json:"required"`
}

// PromotionDecision is the immutable audit record of one gate evaluation.
type PromotionDecision struct {
	ID              uuid.UUID         `json:"id"`
	EntityID        string            `json:"entity_id"`
	FromTier        Tier              `json:"from_tier"`
	ToTier          Tier              `json:"to_tier"`
	Status          DecisionStatus    `json:"status"`
	RiskLevel       RiskLevel         `json:"risk_level"`
	CriteriaResults []CriterionResult `json:"criteria_results"`
	Reason          string            `json:"reason"`
	EvaluatedAt     time.Time         `json:"evaluated_at"`
	Reviewer        *string           `json:"reviewer,omitempty"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
}

// ReviewAction is a human verdict on a pending decision.
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
	ReviewDefer   ReviewAction = "defer"
)

func ValidReviewAction(a string) bool {
	switch ReviewAction(a) {
	case ReviewApprove, ReviewReject, ReviewDefer:
		return true
	}
	return false
}
