package service

import (
	"context"
	"testing"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"go.uber.org/zap"
)

func TestIngest_EntityObservation(t *testing.T) {
	store := newMockGraphStore()
	svc := NewIngestService(store, zap.NewNop())

	result, err := svc.Ingest(context.Background(), []domain.Observation{{
		Kind:       domain.ObservationEntity,
		Name:       "Metformin",
		Category:   "drug",
		Confidence: 0.6,
		Source:     "doctor_notes",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted != 1 || result.Skipped != 0 {
		t.Fatalf("accepted=%d skipped=%d, want 1/0", result.Accepted, result.Skipped)
	}
	if len(result.EntityIDs) != 1 {
		t.Fatalf("entity ids = %v, want one generated id", result.EntityIDs)
	}

	e, err := store.GetEntity(context.Background(), result.EntityIDs[0])
	if err != nil {
		t.Fatalf("stored entity missing: %v", err)
	}
	if e.Tier != domain.TierPerception {
		t.Errorf("tier = %s, want perception for new observations", e.Tier)
	}
	if e.ObservationCount != 1 {
		t.Errorf("observation count = %d, want 1", e.ObservationCount)
	}
	if len(e.Sources) != 1 || e.Sources[0] != "doctor_notes" {
		t.Errorf("sources = %v, want provenance preserved", e.Sources)
	}
	if e.FirstObservedAt.IsZero() || e.LastObservedAt.IsZero() {
		t.Error("observed window not stamped")
	}
}

func TestIngest_EmptyKindTreatedAsEntity(t *testing.T) {
	store := newMockGraphStore()
	svc := NewIngestService(store, zap.NewNop())

	result, err := svc.Ingest(context.Background(), []domain.Observation{{
		Name:       "headache",
		Category:   "symptom",
		Confidence: 0.7,
		Source:     "intake_form",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted != 1 {
		t.Errorf("accepted = %d, want 1", result.Accepted)
	}
}

func TestIngest_RelationshipObservation(t *testing.T) {
	store := newMockGraphStore()
	svc := NewIngestService(store, zap.NewNop())

	result, err := svc.Ingest(context.Background(), []domain.Observation{{
		Kind:         domain.ObservationRelationship,
		SourceID:     "e1",
		TargetID:     "e2",
		RelationType: "treats",
		Confidence:   0.8,
		Source:       "doctor_notes",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accepted != 1 {
		t.Fatalf("accepted = %d, want 1", result.Accepted)
	}

	// Deterministic id: re-ingesting the same edge merges instead of duplicating.
	exists, _ := store.RelationshipExists(context.Background(), "e1", "e2", "treats")
	if !exists {
		t.Fatal("relationship not stored")
	}
	if _, err := svc.Ingest(context.Background(), []domain.Observation{{
		Kind:         domain.ObservationRelationship,
		SourceID:     "e1",
		TargetID:     "e2",
		RelationType: "treats",
		Confidence:   0.9,
		Source:       "pharmacy_records",
	}}); err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if len(store.relationships) != 1 {
		t.Errorf("relationships = %d, want 1 after re-ingest", len(store.relationships))
	}
}

func TestIngest_MalformedObservationsSkipped(t *testing.T) {
	store := newMockGraphStore()
	svc := NewIngestService(store, zap.NewNop())

	result, err := svc.Ingest(context.Background(), []domain.Observation{
		{Kind: domain.ObservationEntity, Name: "", Category: "drug", Confidence: 0.5, Source: "s1"},
		{Kind: domain.ObservationEntity, Name: "metformin", Category: "", Confidence: 0.5, Source: "s1"},
		{Kind: domain.ObservationEntity, Name: "metformin", Category: "drug", Confidence: 1.5, Source: "s1"},
		{Kind: domain.ObservationEntity, Name: "metformin", Category: "drug", Confidence: 0.5, Source: ""},
		{Kind: domain.ObservationRelationship, SourceID: "e1", TargetID: "", RelationType: "treats", Confidence: 0.5, Source: "s1"},
		{Kind: domain.ObservationKind("bogus"), Name: "metformin", Category: "drug", Confidence: 0.5, Source: "s1"},
		{Kind: domain.ObservationEntity, Name: "lisinopril", Category: "drug", Confidence: 0.5, Source: "s1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped != 6 {
		t.Errorf("skipped = %d, want 6", result.Skipped)
	}
	if result.Accepted != 1 {
		t.Errorf("accepted = %d, want 1; malformed records must not abort the batch", result.Accepted)
	}
}

func TestIngest_StoreFailureAborts(t *testing.T) {
	store := newMockGraphStore()
	store.failWith = domain.ErrStoreUnavailable
	svc := NewIngestService(store, zap.NewNop())

	_, err := svc.Ingest(context.Background(), []domain.Observation{{
		Kind:       domain.ObservationEntity,
		Name:       "metformin",
		Category:   "drug",
		Confidence: 0.6,
		Source:     "doctor_notes",
	}})
	if err == nil {
		t.Fatal("expected store failure to abort the batch")
	}
}
