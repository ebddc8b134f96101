package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Criterion names, in the fixed order the gate evaluates them. The order is
// part of the contract: criteriaResults must be reproducible and explainable.
const (
	CriterionConfidence    = "confidence"
	CriterionObservations  = "observations"
	CriterionStability     = "stability"
	CriterionMultiSource   = "multi_source"
	CriterionOntologyMatch = "ontology_match"
	CriterionFreshness     = "freshness"
)

// PromotionGate evaluates one resolved candidate against the tier promotion
// criteria and the risk model. Pure: all inputs are passed in, no store
// access, so every decision is reproducible from its inputs.
type PromotionGate struct {
	criteria  map[domain.RiskLevel]domain.PromotionCriteria
	risk      domain.RiskTable
	temporal  *TemporalScoringService
	freshness float64
	logger    *zap.Logger
}

func NewPromotionGate(
	criteria map[domain.RiskLevel]domain.PromotionCriteria,
	risk domain.RiskTable,
	temporal *TemporalScoringService,
	freshnessThreshold float64,
	logger *zap.Logger,
) *PromotionGate {
	return &PromotionGate{
		criteria:  criteria,
		risk:      risk,
		temporal:  temporal,
		freshness: freshnessThreshold,
		logger:    logger,
	}
}

// Evaluate produces the promotion decision for one candidate. High-risk
// entities are never approved directly: when every criterion passes they go
// to PendingReview for a human verdict.
func (g *PromotionGate) Evaluate(mr *MergeResult, rr *domain.ReasoningResult, now time.Time) *domain.PromotionDecision {
	entity := &mr.Canonical
	riskLevel := g.risk.For(entity.Category)

	toTier, promotable := entity.Tier.Next()
	decision := &domain.PromotionDecision{
		ID:          uuid.New(),
		EntityID:    entity.ID,
		FromTier:    entity.Tier,
		ToTier:      toTier,
		RiskLevel:   riskLevel,
		EvaluatedAt: now,
	}

	if !promotable {
		decision.Status = domain.DecisionRejected
		decision.Reason = "tier is terminal"
		return decision
	}

	criteria := g.criteria[riskLevel]
	adjusted := AdjustConfidence(entity.Confidence, rr.ConfidenceAdjustment)
	results, failed := g.evaluateCriteria(entity, mr, criteria, adjusted, riskLevel, now)
	decision.CriteriaResults = results

	// Blocking warnings veto everything else: a contradicted or
	// uncorroborated high-risk fact is rejected outright.
	if warning := rr.BlockingWarning(); warning != nil {
		decision.Status = domain.DecisionRejected
		decision.Reason = fmt.Sprintf("%s: %s", warning.Code, warning.Message)
		g.log(decision)
		return decision
	}

	if mr.Ambiguous {
		decision.Status = domain.DecisionPendingReview
		decision.Reason = "ambiguous merge: " + mr.Reason
		g.log(decision)
		return decision
	}

	switch {
	case len(failed) == 0 && riskLevel == domain.RiskHigh:
		// Automated criteria never silently elevate trust in safety-critical
		// facts; a human approves high-risk promotions.
		decision.Status = domain.DecisionPendingReview
		decision.Reason = "high-risk promotion requires human approval"
	case len(failed) == 1 && failed[0] == CriterionFreshness:
		// Stale but otherwise qualified: hold for re-confirmation instead of
		// rejecting.
		decision.Status = domain.DecisionPendingReview
		decision.Reason = "stale observation held for re-confirmation"
	case len(failed) == 0:
		decision.Status = domain.DecisionApproved
		decision.Reason = "all promotion criteria satisfied"
	default:
		decision.Status = domain.DecisionRejected
		decision.Reason = "criteria not met: " + strings.Join(failed, ", ")
	}

	g.log(decision)
	return decision
}

// evaluateCriteria checks each criterion in the documented order and returns
// the full result list plus the names of the failed criteria.
func (g *PromotionGate) evaluateCriteria(
	entity *domain.Entity,
	mr *MergeResult,
	criteria domain.PromotionCriteria,
	adjustedConfidence float64,
	riskLevel domain.RiskLevel,
	now time.Time,
) ([]domain.CriterionResult, []string) {
	var results []domain.CriterionResult
	var failed []string

	record := func(name string, passed bool, actual, required string) {
		results = append(results, domain.CriterionResult{
			Criterion: name,
			Passed:    passed,
			Actual:    actual,
			Required:  required,
		})
		if !passed {
			failed = append(failed, name)
		}
	}

	record(CriterionConfidence,
		adjustedConfidence >= criteria.MinConfidence,
		fmt.Sprintf("%.3f", adjustedConfidence),
		fmt.Sprintf(">= %.3f", criteria.MinConfidence))

	record(CriterionObservations,
		entity.ObservationCount >= criteria.MinObservations,
		fmt.Sprintf("%d", entity.ObservationCount),
		fmt.Sprintf(">= %d", criteria.MinObservations))

	// Stability: time since the last contradiction. Never-contradicted
	// entities pass trivially.
	stable := true
	actualStability := "never contradicted"
	if entity.LastContradictedAt != nil {
		sinceContradiction := now.Sub(*entity.LastContradictedAt)
		stable = sinceContradiction >= criteria.MinStabilityDuration
		actualStability = sinceContradiction.Round(time.Minute).String()
	}
	record(CriterionStability, stable, actualStability,
		fmt.Sprintf(">= %s", criteria.MinStabilityDuration))

	if criteria.RequireMultiSource {
		record(CriterionMultiSource,
			mr.MultiSource(),
			fmt.Sprintf("%d distinct sources", len(entity.DistinctSources())),
			">= 2 distinct sources")
	}

	if criteria.RequireOntologyMatch {
		actual := "absent"
		if entity.OntologyMatch != nil {
			actual = entity.OntologyMatch.Code
		}
		record(CriterionOntologyMatch, entity.OntologyMatch != nil, actual, "present")
	}

	// Risk-sensitive categories additionally need a fresh-enough observation;
	// a stale entity is held for re-confirmation rather than promoted.
	if riskLevel != domain.RiskLow && g.temporal != nil {
		score := g.temporal.Score(entity, now)
		record(CriterionFreshness,
			score.Final >= g.freshness,
			fmt.Sprintf("%.3f", score.Final),
			fmt.Sprintf(">= %.3f", g.freshness))
	}

	return results, failed
}

func (g *PromotionGate) log(d *domain.PromotionDecision) {
	if g.logger == nil {
		return
	}
	g.logger.Info("promotion decision",
		zap.String("entity_id", d.EntityID),
		zap.String("from_tier", string(d.FromTier)),
		zap.String("to_tier", string(d.ToTier)),
		zap.String("status", string(d.Status)),
		zap.String("risk", string(d.RiskLevel)),
		zap.String("reason", d.Reason))
}
