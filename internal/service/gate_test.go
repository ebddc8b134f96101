package service

import (
	"strings"
	"testing"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/config"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"go.uber.org/zap"
)

func newTestGate() *PromotionGate {
	tuning := config.DefaultTuning()
	temporal := NewTemporalScoringService(tuning.Temporal)
	return NewPromotionGate(tuning.Criteria, tuning.Risk, temporal, tuning.Reasoning.FreshnessThreshold, zap.NewNop())
}

func TestGate_ApprovesCorroboratedMediumRisk(t *testing.T) {
	gate := newTestGate()
	now := time.Now()

	// Two corroborating observations of a drug, merged: 0.88 combined
	// confidence clears the 0.85 medium-risk bar.
	entity := candidate("e1", "metformin", "drug", "doctor_notes", CombineConfidence(0.6, 0.7))
	entity.ObservationCount = 2
	entity.Sources = []string{"doctor_notes", "pharmacy_records"}

	mr := &MergeResult{Canonical: entity, MergedIDs: []string{"e2"}}
	rr := &domain.ReasoningResult{EntityID: entity.ID}

	d := gate.Evaluate(mr, rr, now)
	if d.Status != domain.DecisionApproved {
		t.Fatalf("status = %s (%s), want approved", d.Status, d.Reason)
	}
	if d.FromTier != domain.TierPerception || d.ToTier != domain.TierSemantic {
		t.Errorf("tier transition = %s -> %s, want perception -> semantic", d.FromTier, d.ToTier)
	}
	if d.RiskLevel != domain.RiskMedium {
		t.Errorf("risk = %s, want medium", d.RiskLevel)
	}
	if len(d.CriteriaResults) == 0 {
		t.Error("decision carries no criteria results")
	}
}

func TestGate_HighRiskNeverAutoApproves(t *testing.T) {
	gate := newTestGate()
	now := time.Now()

	// Every criterion passes, yet a diagnosis still needs a human.
	entity := candidate("e1", "type 2 diabetes", "diagnosis", "doctor_notes", 0.95)
	entity.ObservationCount = 3
	entity.Sources = []string{"doctor_notes", "lab_results"}
	entity.OntologyMatch = &domain.OntologyMatch{Code: "44054006", System: "snomed", Confidence: 0.97}

	mr := &MergeResult{Canonical: entity}
	rr := &domain.ReasoningResult{EntityID: entity.ID}

	d := gate.Evaluate(mr, rr, now)
	if d.Status != domain.DecisionPendingReview {
		t.Fatalf("status = %s (%s), want pending_review", d.Status, d.Reason)
	}
	for _, cr := range d.CriteriaResults {
		if !cr.Passed {
			t.Errorf("criterion %s failed: %s vs %s", cr.Criterion, cr.Actual, cr.Required)
		}
	}
}

func TestGate_BlockingWarningRejects(t *testing.T) {
	gate := newTestGate()
	now := time.Now()

	entity := candidate("e1", "penicillin allergy", "allergy", "doctor_notes", 0.95)
	entity.ObservationCount = 3
	entity.Sources = []string{"doctor_notes", "intake_form"}
	entity.OntologyMatch = &domain.OntologyMatch{Code: "91936005", System: "snomed", Confidence: 0.9}

	mr := &MergeResult{Canonical: entity}
	rr := &domain.ReasoningResult{
		EntityID: entity.ID,
		Warnings: []domain.Warning{{
			Code:      domain.WarnContradiction,
			Message:   "conflicts with semantic-tier assertion",
			Blocking:  true,
			RelatedID: "assert1",
		}},
		ConfidenceAdjustment: -0.2,
	}

	d := gate.Evaluate(mr, rr, now)
	if d.Status != domain.DecisionRejected {
		t.Fatalf("status = %s, want rejected", d.Status)
	}
	if !strings.Contains(d.Reason, "contradiction") {
		t.Errorf("reason %q does not name the contradiction", d.Reason)
	}
}

func TestGate_ConfidenceAdjustmentApplied(t *testing.T) {
	gate := newTestGate()
	now := time.Now()

	// 0.88 raw, but a non-blocking merge-conflict penalty pulls it to 0.83,
	// below the 0.85 medium-risk bar.
	entity := candidate("e1", "metformin", "drug", "doctor_notes", 0.88)
	entity.ObservationCount = 2
	entity.Sources = []string{"doctor_notes", "pharmacy_records"}

	mr := &MergeResult{Canonical: entity}
	rr := &domain.ReasoningResult{EntityID: entity.ID, ConfidenceAdjustment: -0.05}

	d := gate.Evaluate(mr, rr, now)
	if d.Status != domain.DecisionRejected {
		t.Fatalf("status = %s (%s), want rejected", d.Status, d.Reason)
	}
	if !strings.Contains(d.Reason, CriterionConfidence) {
		t.Errorf("reason %q does not name the confidence criterion", d.Reason)
	}
}

func TestGate_AmbiguousMergeHeld(t *testing.T) {
	gate := newTestGate()
	now := time.Now()

	entity := candidate("e1", "metformin", "drug", "doctor_notes", 0.9)
	entity.ObservationCount = 2
	entity.Sources = []string{"doctor_notes", "pharmacy_records"}

	mr := &MergeResult{Canonical: entity, Ambiguous: true, Reason: "cluster carries 2 distinct ontology codes"}
	rr := &domain.ReasoningResult{EntityID: entity.ID}

	d := gate.Evaluate(mr, rr, now)
	if d.Status != domain.DecisionPendingReview {
		t.Fatalf("status = %s, want pending_review for ambiguous merge", d.Status)
	}
}

func TestGate_StaleObservationHeld(t *testing.T) {
	gate := newTestGate()
	now := time.Now()

	// Everything passes except freshness: a symptom last seen months ago
	// with a near-zero temporal score is held, not rejected.
	entity := candidate("e1", "headache", "symptom", "doctor_notes", 0.9)
	entity.ObservationCount = 2
	entity.Sources = []string{"doctor_notes", "nurse_notes"}
	entity.LastObservedAt = now.Add(-90 * 24 * time.Hour)

	mr := &MergeResult{Canonical: entity}
	rr := &domain.ReasoningResult{EntityID: entity.ID}

	d := gate.Evaluate(mr, rr, now)
	if d.Status != domain.DecisionPendingReview {
		t.Fatalf("status = %s (%s), want pending_review for stale observation", d.Status, d.Reason)
	}
	if !strings.Contains(d.Reason, "stale") {
		t.Errorf("reason %q does not mention staleness", d.Reason)
	}
}

func TestGate_RecentContradictionFailsStability(t *testing.T) {
	gate := newTestGate()
	now := time.Now()

	entity := candidate("e1", "metformin", "drug", "doctor_notes", 0.9)
	entity.ObservationCount = 2
	entity.Sources = []string{"doctor_notes", "pharmacy_records"}
	contradicted := now.Add(-1 * time.Hour)
	entity.LastContradictedAt = &contradicted

	mr := &MergeResult{Canonical: entity}
	rr := &domain.ReasoningResult{EntityID: entity.ID}

	d := gate.Evaluate(mr, rr, now)
	if d.Status != domain.DecisionRejected {
		t.Fatalf("status = %s (%s), want rejected", d.Status, d.Reason)
	}
	if !strings.Contains(d.Reason, CriterionStability) {
		t.Errorf("reason %q does not name the stability criterion", d.Reason)
	}
}

func TestGate_TerminalTierRejected(t *testing.T) {
	gate := newTestGate()
	now := time.Now()

	entity := candidate("e1", "metformin", "drug", "doctor_notes", 0.99)
	entity.Tier = domain.TierApplication

	d := gate.Evaluate(&MergeResult{Canonical: entity}, &domain.ReasoningResult{EntityID: entity.ID}, now)
	if d.Status != domain.DecisionRejected {
		t.Fatalf("status = %s, want rejected for terminal tier", d.Status)
	}
}

func TestGate_UnknownCategoryDefaultsToMedium(t *testing.T) {
	gate := newTestGate()
	now := time.Now()

	entity := candidate("e1", "mystery fact", "never_seen_category", "s1", 0.95)
	entity.ObservationCount = 2
	entity.Sources = []string{"s1", "s2"}

	d := gate.Evaluate(&MergeResult{Canonical: entity}, &domain.ReasoningResult{EntityID: entity.ID}, now)
	if d.RiskLevel != domain.RiskMedium {
		t.Errorf("risk = %s, want medium for unknown category", d.RiskLevel)
	}
}
