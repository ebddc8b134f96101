package service

import (
	"context"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestResult summarizes one ingestion batch. Malformed observations are
// skipped and logged; they never abort the batch.
type IngestResult struct {
	Accepted  int      `json:"accepted"`
	Skipped   int      `json:"skipped"`
	EntityIDs []string `json:"entity_ids,omitempty"`
}

// IngestService accepts (candidate, confidence, provenance, category) tuples
// from extraction collaborators and writes them into the Perception tier.
type IngestService struct {
	store  domain.GraphStore
	logger *zap.Logger
}

func NewIngestService(store domain.GraphStore, logger *zap.Logger) *IngestService {
	return &IngestService{store: store, logger: logger}
}

func (s *IngestService) Ingest(ctx context.Context, observations []domain.Observation) (*IngestResult, error) {
	result := &IngestResult{}
	now := time.Now()

	for i := range observations {
		obs := &observations[i]
		if verr := validateObservation(obs); verr != nil {
			result.Skipped++
			s.logger.Warn("skipping malformed observation",
				zap.Int("index", i),
				zap.String("kind", string(obs.Kind)),
				zap.Error(verr))
			continue
		}

		observedAt := obs.ObservedAt
		if observedAt.IsZero() {
			observedAt = now
		}

		switch obs.Kind {
		case domain.ObservationRelationship:
			rel := &domain.Relationship{
				ID:         RelationshipID(obs.SourceID, obs.RelationType, obs.TargetID),
				SourceID:   obs.SourceID,
				TargetID:   obs.TargetID,
				Type:       obs.RelationType,
				Tier:       domain.TierPerception,
				Confidence: obs.Confidence,
				Properties: obs.Properties,
			}
			if err := s.store.UpsertRelationship(ctx, rel); err != nil {
				return nil, err
			}
		default:
			entity := &domain.Entity{
				ID:               uuid.NewString(),
				Name:             obs.Name,
				Type:             obs.Type,
				Category:         obs.Category,
				Tier:             domain.TierPerception,
				Confidence:       obs.Confidence,
				ObservationCount: 1,
				Properties:       obs.Properties,
				Sources:          []string{obs.Source},
				OntologyMatch:    obs.OntologyMatch,
				Embedding:        obs.Embedding,
				FirstObservedAt:  observedAt,
				LastObservedAt:   observedAt,
			}
			if err := s.store.UpsertEntity(ctx, entity); err != nil {
				return nil, err
			}
			result.EntityIDs = append(result.EntityIDs, entity.ID)
		}

		result.Accepted++
	}

	return result, nil
}

func validateObservation(obs *domain.Observation) *domain.ValidationError {
	if obs.Confidence < 0 || obs.Confidence > 1 {
		return &domain.ValidationError{Field: "confidence", Reason: "outside [0,1]"}
	}
	if obs.Source == "" {
		return &domain.ValidationError{Field: "source", Reason: "empty"}
	}

	switch obs.Kind {
	case domain.ObservationRelationship:
		if obs.SourceID == "" || obs.TargetID == "" {
			return &domain.ValidationError{Field: "source_id/target_id", Reason: "empty"}
		}
		if obs.RelationType == "" {
			return &domain.ValidationError{Field: "relation_type", Reason: "empty"}
		}
	case domain.ObservationEntity, "":
		if domain.NormalizeName(obs.Name) == "" {
			return &domain.ValidationError{Field: "name", Reason: "empty"}
		}
		if obs.Category == "" {
			return &domain.ValidationError{Field: "category", Reason: "empty"}
		}
	default:
		return &domain.ValidationError{Field: "kind", Reason: "unknown observation kind"}
	}

	return nil
}
