package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/config"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"go.uber.org/zap"
)

const (
	// RelationRepresents links a Perception-tier extraction to the canonical
	// concept it names; RelationContradicts records a detected conflict.
	RelationRepresents  = "represents"
	RelationContradicts = "contradicts"

	// AssertionCategory marks entities that assert the absence of a class of
	// facts about a subject, e.g. "no known drug allergies".
	AssertionCategory = "assertion"

	// PropSubject and PropNegatesCategory are the well-known property keys
	// the contradiction check reads.
	PropSubject         = "subject"
	PropNegatesCategory = "negates_category"

	contradictionAdjustment = -0.2
	mergeConflictAdjustment = -0.05

	semanticLinkLimit = 3
)

// ReasoningEngine applies the symbolic rules to a graph mutation event:
// transitive closure over whitelisted relation types, semantic-linking
// suggestions, the contradiction check against higher-tier facts, and the
// corroboration safety rule for high-risk categories. Stateless between
// invocations; safe to re-run on the same event.
type ReasoningEngine struct {
	store  domain.GraphStore
	tuning config.ReasoningTuning
	risk   domain.RiskTable
	logger *zap.Logger
}

func NewReasoningEngine(store domain.GraphStore, tuning config.ReasoningTuning, risk domain.RiskTable, logger *zap.Logger) *ReasoningEngine {
	return &ReasoningEngine{store: store, tuning: tuning, risk: risk, logger: logger}
}

// Evaluate runs every rule independently and unions the results. Store reads
// are the only suspension points; a store failure aborts the evaluation so
// the caller can abort the sweep.
func (e *ReasoningEngine) Evaluate(ctx context.Context, mr *MergeResult) (*domain.ReasoningResult, error) {
	entity := &mr.Canonical
	result := &domain.ReasoningResult{EntityID: entity.ID}

	if err := e.applyTransitiveClosure(ctx, entity, result); err != nil {
		return nil, fmt.Errorf("transitive closure: %w", err)
	}

	if entity.Tier == domain.TierPerception {
		if err := e.suggestSemanticLinks(ctx, entity, result); err != nil {
			return nil, fmt.Errorf("semantic linking: %w", err)
		}
	}

	if err := e.checkContradictions(ctx, entity, result); err != nil {
		return nil, fmt.Errorf("contradiction check: %w", err)
	}

	e.applySafetyRule(entity, mr, result)

	if entity.HasConflicts() {
		result.Warnings = append(result.Warnings, domain.Warning{
			Code:    domain.WarnMergeConflict,
			Message: "merge surfaced conflicting property values",
		})
		result.ConfidenceAdjustment += mergeConflictAdjustment
	}

	return result, nil
}

// applyTransitiveClosure suggests A→C for every A→B→C chain of a whitelisted
// type through the entity. Chain confidence is the weaker link discounted by
// the decay factor. Already-materialized edges are skipped, which keeps
// re-runs idempotent.
func (e *ReasoningEngine) applyTransitiveClosure(ctx context.Context, entity *domain.Entity, result *domain.ReasoningResult) error {
	for _, relType := range e.tuning.TransitiveTypes {
		outgoing, err := e.store.RelationshipsFrom(ctx, entity.ID, relType)
		if err != nil {
			return err
		}

		// entity→B→C
		for _, ab := range outgoing {
			downstream, err := e.store.RelationshipsFrom(ctx, ab.TargetID, relType)
			if err != nil {
				return err
			}
			for _, bc := range downstream {
				if bc.TargetID == entity.ID {
					continue
				}
				if err := e.suggestChain(ctx, result, entity.ID, bc.TargetID, relType, ab.Confidence, bc.Confidence); err != nil {
					return err
				}
			}
		}

		// A→entity→C
		touching, err := e.store.RelationshipsTouching(ctx, entity.ID, relType)
		if err != nil {
			return err
		}
		for _, xa := range touching {
			if xa.TargetID != entity.ID {
				continue
			}
			for _, ec := range outgoing {
				if ec.TargetID == xa.SourceID {
					continue
				}
				if err := e.suggestChain(ctx, result, xa.SourceID, ec.TargetID, relType, xa.Confidence, ec.Confidence); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (e *ReasoningEngine) suggestChain(ctx context.Context, result *domain.ReasoningResult, sourceID, targetID, relType string, ab, bc float64) error {
	if sourceID == targetID {
		return nil
	}

	exists, err := e.store.RelationshipExists(ctx, sourceID, targetID, relType)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	for _, s := range result.Suggestions {
		if s.SourceID == sourceID && s.TargetID == targetID && s.Type == relType {
			return nil
		}
	}

	result.Suggestions = append(result.Suggestions, domain.SuggestedEdge{
		Rule:       domain.RuleTransitiveClosure,
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       relType,
		Confidence: DecayedChainConfidence(ab, bc, e.tuning.DecayFactor),
		Reason:     fmt.Sprintf("%s chain through intermediate node", relType),
	})
	return nil
}

// suggestSemanticLinks proposes edges from a new Perception-tier entity to
// canonical concepts it appears to name. Embedding similarity is preferred
// when the extraction supplied a vector; otherwise substring/fuzzy name
// matching applies.
func (e *ReasoningEngine) suggestSemanticLinks(ctx context.Context, entity *domain.Entity, result *domain.ReasoningResult) error {
	if len(entity.Embedding) > 0 {
		matches, err := e.store.FindByEmbedding(ctx, entity.Embedding, domain.TierSemantic, e.tuning.SemanticLinkThreshold, semanticLinkLimit)
		if err != nil {
			return err
		}
		for _, m := range matches {
			if m.ID == entity.ID {
				continue
			}
			e.suggestLink(result, entity.ID, m.ID, m.Similarity)
		}
		return nil
	}

	name := entity.NormalizedName()
	if name == "" {
		return nil
	}

	concepts, err := e.store.FindByNameLike(ctx, name, domain.TierSemantic, semanticLinkLimit)
	if err != nil {
		return err
	}
	for _, c := range concepts {
		if c.ID == entity.ID {
			continue
		}
		conceptName := c.NormalizedName()
		sim := levenshteinRatio(name, conceptName)
		if strings.Contains(conceptName, name) || strings.Contains(name, conceptName) {
			if sim < e.tuning.FuzzyNameThreshold {
				sim = e.tuning.FuzzyNameThreshold
			}
		}
		if sim < e.tuning.FuzzyNameThreshold {
			continue
		}
		e.suggestLink(result, entity.ID, c.ID, sim)
	}

	return nil
}

func (e *ReasoningEngine) suggestLink(result *domain.ReasoningResult, sourceID, targetID string, confidence float64) {
	for _, s := range result.Suggestions {
		if s.SourceID == sourceID && s.TargetID == targetID && s.Type == RelationRepresents {
			return
		}
	}
	result.Suggestions = append(result.Suggestions, domain.SuggestedEdge{
		Rule:       domain.RuleSemanticLink,
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       RelationRepresents,
		Confidence: confidence,
		Reason:     "name matches canonical concept",
	})
}

// checkContradictions looks for higher-tier facts the candidate conflicts
// with: recorded contradicts edges, and absence assertions about the same
// subject that negate the candidate's category. A hit is a blocking warning.
func (e *ReasoningEngine) checkContradictions(ctx context.Context, entity *domain.Entity, result *domain.ReasoningResult) error {
	edges, err := e.store.RelationshipsTouching(ctx, entity.ID, RelationContradicts)
	if err != nil {
		return err
	}
	for _, edge := range edges {
		other := edge.SourceID
		if other == entity.ID {
			other = edge.TargetID
		}
		e.addContradiction(result, other, "recorded contradiction edge")
	}

	subject := ""
	if v, ok := entity.Properties[PropSubject]; ok {
		subject = v.Text()
	}
	if subject == "" {
		return nil
	}

	assertions, err := e.store.FindAssertions(ctx, subject, domain.TierSemantic)
	if err != nil {
		return err
	}
	for _, a := range assertions {
		if !entity.Tier.Before(a.Tier) {
			continue
		}
		negates, ok := a.Properties[PropNegatesCategory]
		if !ok || negates.Text() != entity.Category {
			continue
		}
		e.addContradiction(result, a.ID,
			fmt.Sprintf("conflicts with %s-tier assertion %q", a.Tier, a.Name))
	}

	return nil
}

func (e *ReasoningEngine) addContradiction(result *domain.ReasoningResult, relatedID, message string) {
	for _, w := range result.Warnings {
		if w.Code == domain.WarnContradiction && w.RelatedID == relatedID {
			return
		}
	}
	result.Warnings = append(result.Warnings, domain.Warning{
		Code:      domain.WarnContradiction,
		Message:   message,
		Blocking:  true,
		RelatedID: relatedID,
	})
	result.ConfidenceAdjustment += contradictionAdjustment

	if e.logger != nil {
		e.logger.Warn("contradiction detected",
			zap.String("entity_id", result.EntityID),
			zap.String("related_id", relatedID))
	}
}

// applySafetyRule enforces the corroboration requirement: a high-risk fact
// may not leave the Perception tier on a single uncorroborated observation.
func (e *ReasoningEngine) applySafetyRule(entity *domain.Entity, mr *MergeResult, result *domain.ReasoningResult) {
	if e.risk.For(entity.Category) != domain.RiskHigh {
		return
	}
	if entity.Tier != domain.TierPerception {
		return
	}
	if mr.MultiSource() || entity.OntologyMatch != nil {
		return
	}

	result.Warnings = append(result.Warnings, domain.Warning{
		Code:     domain.WarnMissingCorroboration,
		Message:  "high-risk fact lacks a corroborating source and an ontology match",
		Blocking: true,
	})
}
