package service

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/config"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"go.uber.org/zap"
)

// mockGraphStore is an in-memory GraphStore for reasoning tests.
type mockGraphStore struct {
	entities      map[string]*domain.Entity
	relationships []domain.Relationship
	failWith      error
}

func newMockGraphStore() *mockGraphStore {
	return &mockGraphStore{entities: make(map[string]*domain.Entity)}
}

func (m *mockGraphStore) addRelationship(sourceID, targetID, relType string, confidence float64) {
	m.relationships = append(m.relationships, domain.Relationship{
		ID:         RelationshipID(sourceID, relType, targetID),
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       relType,
		Confidence: confidence,
	})
}

func (m *mockGraphStore) UpsertEntity(ctx context.Context, e *domain.Entity) error {
	if m.failWith != nil {
		return m.failWith
	}
	cp := *e
	m.entities[e.ID] = &cp
	return nil
}

func (m *mockGraphStore) GetEntity(ctx context.Context, id string) (*domain.Entity, error) {
	if e, ok := m.entities[id]; ok {
		return e, nil
	}
	return nil, domain.ErrStoreUnavailable
}

func (m *mockGraphStore) QueryCandidates(ctx context.Context, tier domain.Tier, limit int) ([]domain.Entity, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []domain.Entity
	for _, e := range m.entities {
		if e.Tier == tier {
			out = append(out, *e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockGraphStore) SetTier(ctx context.Context, id string, tier domain.Tier) error {
	if m.failWith != nil {
		return m.failWith
	}
	if e, ok := m.entities[id]; ok {
		e.Tier = tier
	}
	return nil
}

func (m *mockGraphStore) AbsorbEntities(ctx context.Context, canonical *domain.Entity, absorbedIDs []string) error {
	if m.failWith != nil {
		return m.failWith
	}
	cp := *canonical
	m.entities[canonical.ID] = &cp
	for _, id := range absorbedIDs {
		delete(m.entities, id)
	}
	return nil
}

func (m *mockGraphStore) MarkContradicted(ctx context.Context, id string, at time.Time) error {
	if e, ok := m.entities[id]; ok {
		e.LastContradictedAt = &at
	}
	return nil
}

func (m *mockGraphStore) UpsertRelationship(ctx context.Context, r *domain.Relationship) error {
	if m.failWith != nil {
		return m.failWith
	}
	for i := range m.relationships {
		if m.relationships[i].ID == r.ID {
			m.relationships[i] = *r
			return nil
		}
	}
	m.relationships = append(m.relationships, *r)
	return nil
}

func (m *mockGraphStore) RelationshipExists(ctx context.Context, sourceID, targetID, relType string) (bool, error) {
	for _, r := range m.relationships {
		if r.SourceID == sourceID && r.TargetID == targetID && r.Type == relType {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockGraphStore) RelationshipsFrom(ctx context.Context, sourceID, relType string) ([]domain.Relationship, error) {
	var out []domain.Relationship
	for _, r := range m.relationships {
		if r.SourceID == sourceID && r.Type == relType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockGraphStore) RelationshipsTouching(ctx context.Context, entityID string, relType string) ([]domain.Relationship, error) {
	var out []domain.Relationship
	for _, r := range m.relationships {
		if (r.SourceID == entityID || r.TargetID == entityID) && r.Type == relType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockGraphStore) FindByNormalizedName(ctx context.Context, name string, minTier domain.Tier) ([]domain.Entity, error) {
	var out []domain.Entity
	for _, e := range m.entities {
		if e.NormalizedName() == domain.NormalizeName(name) && !e.Tier.Before(minTier) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockGraphStore) FindByEmbedding(ctx context.Context, embedding []float32, minTier domain.Tier, threshold float64, limit int) ([]domain.EntityMatch, error) {
	return nil, nil
}

func (m *mockGraphStore) FindByNameLike(ctx context.Context, fragment string, minTier domain.Tier, limit int) ([]domain.Entity, error) {
	var out []domain.Entity
	frag := domain.NormalizeName(fragment)
	for _, e := range m.entities {
		name := e.NormalizedName()
		if e.Tier.Before(minTier) {
			continue
		}
		if strings.Contains(name, frag) || strings.Contains(frag, name) {
			out = append(out, *e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockGraphStore) FindAssertions(ctx context.Context, subject string, minTier domain.Tier) ([]domain.Entity, error) {
	var out []domain.Entity
	for _, e := range m.entities {
		if e.Category != AssertionCategory || e.Tier.Before(minTier) {
			continue
		}
		if v, ok := e.Properties[PropSubject]; ok && v.Text() == subject {
			out = append(out, *e)
		}
	}
	return out, nil
}

func newTestReasoning(store domain.GraphStore) *ReasoningEngine {
	return NewReasoningEngine(store, config.DefaultTuning().Reasoning, nil, zap.NewNop())
}

func TestReasoning_TransitiveClosure(t *testing.T) {
	store := newMockGraphStore()
	// entity -> B -> C via is_a
	store.addRelationship("entity", "b", "is_a", 0.9)
	store.addRelationship("b", "c", "is_a", 0.8)

	engine := newTestReasoning(store)
	mr := &MergeResult{Canonical: candidate("entity", "thing", "observation", "s1", 0.9)}

	result, err := engine.Evaluate(context.Background(), mr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(result.Suggestions))
	}
	s := result.Suggestions[0]
	if s.SourceID != "entity" || s.TargetID != "c" || s.Type != "is_a" {
		t.Errorf("suggested edge = %+v, want entity->c is_a", s)
	}
	// min(0.9, 0.8) * 0.9 decay
	if math.Abs(s.Confidence-0.72) > 1e-9 {
		t.Errorf("chain confidence = %f, want 0.72", s.Confidence)
	}
}

func TestReasoning_TransitiveClosureIdempotent(t *testing.T) {
	store := newMockGraphStore()
	store.addRelationship("entity", "b", "is_a", 0.9)
	store.addRelationship("b", "c", "is_a", 0.8)
	// The inferred edge already exists: no re-suggestion.
	store.addRelationship("entity", "c", "is_a", 0.72)

	engine := newTestReasoning(store)
	mr := &MergeResult{Canonical: candidate("entity", "thing", "observation", "s1", 0.9)}

	result, err := engine.Evaluate(context.Background(), mr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Suggestions) != 0 {
		t.Errorf("re-suggested existing edge: %+v", result.Suggestions)
	}
}

func TestReasoning_UpstreamChainThroughEntity(t *testing.T) {
	store := newMockGraphStore()
	// A -> entity -> C: the mutation event sits in the middle of the chain.
	store.addRelationship("a", "entity", "part_of", 0.9)
	store.addRelationship("entity", "c", "part_of", 0.7)

	engine := newTestReasoning(store)
	mr := &MergeResult{Canonical: candidate("entity", "thing", "observation", "s1", 0.9)}

	result, err := engine.Evaluate(context.Background(), mr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(result.Suggestions))
	}
	s := result.Suggestions[0]
	if s.SourceID != "a" || s.TargetID != "c" {
		t.Errorf("suggested edge = %+v, want a->c", s)
	}
}

func TestReasoning_ContradictionFromAssertion(t *testing.T) {
	store := newMockGraphStore()

	assertion := candidate("assert1", "no known drug allergies", AssertionCategory, "intake_form", 0.95)
	assertion.Tier = domain.TierSemantic
	assertion.Properties = map[string]domain.PropertyValue{
		PropSubject:         domain.StringValue("patient:42"),
		PropNegatesCategory: domain.StringValue("allergy"),
	}
	_ = store.UpsertEntity(context.Background(), &assertion)

	entity := candidate("e1", "penicillin allergy", "allergy", "doctor_notes", 0.8)
	entity.Properties = map[string]domain.PropertyValue{
		PropSubject: domain.StringValue("patient:42"),
	}
	mr := &MergeResult{Canonical: entity}

	engine := newTestReasoning(store)
	result, err := engine.Evaluate(context.Background(), mr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := result.BlockingWarning()
	if w == nil || w.Code != domain.WarnContradiction {
		t.Fatalf("expected blocking contradiction warning, got %+v", result.Warnings)
	}
	if w.RelatedID != "assert1" {
		t.Errorf("related id = %s, want assert1", w.RelatedID)
	}
	if math.Abs(result.ConfidenceAdjustment-contradictionAdjustment) > 1e-9 {
		t.Errorf("adjustment = %f, want %f", result.ConfidenceAdjustment, contradictionAdjustment)
	}
}

func TestReasoning_AssertionDoesNotContradictHigherTier(t *testing.T) {
	store := newMockGraphStore()

	assertion := candidate("assert1", "no known drug allergies", AssertionCategory, "intake_form", 0.95)
	assertion.Tier = domain.TierSemantic
	assertion.Properties = map[string]domain.PropertyValue{
		PropSubject:         domain.StringValue("patient:42"),
		PropNegatesCategory: domain.StringValue("allergy"),
	}
	_ = store.UpsertEntity(context.Background(), &assertion)

	// Same tier as the assertion: the assertion does not outrank it.
	entity := candidate("e1", "penicillin allergy", "allergy", "doctor_notes", 0.8)
	entity.Tier = domain.TierSemantic
	entity.Properties = map[string]domain.PropertyValue{
		PropSubject: domain.StringValue("patient:42"),
	}

	engine := newTestReasoning(store)
	result, err := engine.Evaluate(context.Background(), &MergeResult{Canonical: entity})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, w := range result.Warnings {
		if w.Code == domain.WarnContradiction {
			t.Errorf("same-tier assertion raised contradiction: %+v", w)
		}
	}
}

func TestReasoning_SafetyRuleBlocksUncorroboratedHighRisk(t *testing.T) {
	store := newMockGraphStore()
	engine := newTestReasoning(store)

	entity := candidate("e1", "penicillin allergy", "allergy", "doctor_notes", 0.95)
	result, err := engine.Evaluate(context.Background(), &MergeResult{Canonical: entity})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := result.BlockingWarning()
	if w == nil || w.Code != domain.WarnMissingCorroboration {
		t.Fatalf("expected missing_corroboration warning, got %+v", result.Warnings)
	}
}

func TestReasoning_SafetyRulePassesWithOntologyMatch(t *testing.T) {
	store := newMockGraphStore()
	engine := newTestReasoning(store)

	entity := candidate("e1", "penicillin allergy", "allergy", "doctor_notes", 0.95)
	entity.OntologyMatch = &domain.OntologyMatch{Code: "91936005", System: "snomed", Confidence: 0.9}

	result, err := engine.Evaluate(context.Background(), &MergeResult{Canonical: entity})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.HasBlockingWarning() {
		t.Errorf("ontology-matched fact blocked: %+v", result.Warnings)
	}
}

func TestReasoning_SemanticLinkByName(t *testing.T) {
	store := newMockGraphStore()

	concept := candidate("concept1", "metformin", "drug", "ontology_import", 0.99)
	concept.Tier = domain.TierSemantic
	_ = store.UpsertEntity(context.Background(), &concept)

	entity := candidate("e1", "metformin 500mg", "drug", "doctor_notes", 0.8)
	engine := newTestReasoning(store)

	result, err := engine.Evaluate(context.Background(), &MergeResult{Canonical: entity})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, s := range result.Suggestions {
		if s.Rule == domain.RuleSemanticLink && s.TargetID == "concept1" && s.Type == RelationRepresents {
			found = true
		}
	}
	if !found {
		t.Errorf("no semantic link suggested, got %+v", result.Suggestions)
	}
}

func TestReasoning_MergeConflictWarningIsNonBlocking(t *testing.T) {
	store := newMockGraphStore()
	engine := newTestReasoning(store)

	entity := candidate("e1", "metformin", "drug", "s1", 0.8)
	entity.Properties = map[string]domain.PropertyValue{
		domain.ConflictsKey: domain.ListValue(),
	}

	result, err := engine.Evaluate(context.Background(), &MergeResult{Canonical: entity})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.HasBlockingWarning() {
		t.Error("merge conflict warning must not block")
	}
	found := false
	for _, w := range result.Warnings {
		if w.Code == domain.WarnMergeConflict {
			found = true
		}
	}
	if !found {
		t.Errorf("expected merge_conflict warning, got %+v", result.Warnings)
	}
	if math.Abs(result.ConfidenceAdjustment-mergeConflictAdjustment) > 1e-9 {
		t.Errorf("adjustment = %f, want %f", result.ConfidenceAdjustment, mergeConflictAdjustment)
	}
}
