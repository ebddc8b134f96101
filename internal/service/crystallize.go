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

const (
	// DefaultSweepBatchSize bounds how many candidates one sweep evaluates,
	// which also bounds how long a cancellation has to wait.
	DefaultSweepBatchSize = 100
	DefaultSweepLeaseTTL  = 10 * time.Minute

	leaseReleaseTimeout = 5 * time.Second
)

// SweepSummary reports the outcome of one tier sweep.
type SweepSummary struct {
	Tier              domain.Tier                `json:"tier"`
	Candidates        int                        `json:"candidates"`
	Skipped           int                        `json:"skipped"`
	Merged            int                        `json:"merged"`
	Evaluated         int                        `json:"evaluated"`
	Approved          int                        `json:"approved"`
	Held              int                        `json:"held"`
	Rejected          int                        `json:"rejected"`
	EdgesMaterialized int                        `json:"edges_materialized"`
	Duration          time.Duration              `json:"duration"`
	Decisions         []domain.PromotionDecision `json:"decisions"`
}

// CrystallizationService orchestrates one sweep of one tier: pull candidates,
// resolve duplicates, reason, gate, and apply approved decisions as
// idempotent upserts. A per-tier store lease guarantees at most one
// concurrent sweep per tier system-wide, whichever entry point triggered it.
type CrystallizationService struct {
	store     domain.GraphStore
	decisions domain.DecisionStore
	leases    domain.LeaseStore
	outbox    domain.EventOutbox
	resolver  *EntityResolver
	reasoning *ReasoningEngine
	gate      *PromotionGate
	logger    *zap.Logger

	holder            string
	batchSize         int
	leaseTTL          time.Duration
	minEdgeConfidence float64
}

func NewCrystallizationService(
	store domain.GraphStore,
	decisions domain.DecisionStore,
	leases domain.LeaseStore,
	outbox domain.EventOutbox,
	resolver *EntityResolver,
	reasoning *ReasoningEngine,
	gate *PromotionGate,
	minEdgeConfidence float64,
	logger *zap.Logger,
) *CrystallizationService {
	return &CrystallizationService{
		store:             store,
		decisions:         decisions,
		leases:            leases,
		outbox:            outbox,
		resolver:          resolver,
		reasoning:         reasoning,
		gate:              gate,
		logger:            logger,
		holder:            uuid.NewString(),
		batchSize:         DefaultSweepBatchSize,
		leaseTTL:          DefaultSweepLeaseTTL,
		minEdgeConfidence: minEdgeConfidence,
	}
}

func (s *CrystallizationService) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

func (s *CrystallizationService) SetLeaseTTL(d time.Duration) {
	if d > 0 {
		s.leaseTTL = d
	}
}

type evaluated struct {
	merge     MergeResult
	reasoning *domain.ReasoningResult
	decision  *domain.PromotionDecision
}

// SweepTier runs one sweep of one tier. Returns domain.ErrSweepInProgress
// when another sweep holds the tier lease. Per-entity failures are logged
// and skipped; only store connectivity failures abort the sweep.
func (s *CrystallizationService) SweepTier(ctx context.Context, tier domain.Tier) (*SweepSummary, error) {
	if _, ok := tier.Next(); !ok {
		return nil, fmt.Errorf("tier %q is not promotable", tier)
	}

	acquired, err := s.leases.Acquire(ctx, tier, s.holder, s.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !acquired {
		return nil, domain.ErrSweepInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), leaseReleaseTimeout)
		defer cancel()
		if err := s.leases.Release(releaseCtx, tier, s.holder); err != nil {
			s.logger.Warn("failed to release sweep lease",
				zap.String("tier", string(tier)), zap.Error(err))
		}
	}()

	start := time.Now()
	summary := &SweepSummary{Tier: tier}

	candidates, err := s.store.QueryCandidates(ctx, tier, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("query candidates for %s: %w", tier, err)
	}
	summary.Candidates = len(candidates)

	valid := make([]domain.Entity, 0, len(candidates))
	for _, c := range candidates {
		if verr := validateCandidate(&c); verr != nil {
			summary.Skipped++
			s.logger.Warn("skipping malformed candidate",
				zap.String("entity_id", c.ID),
				zap.String("tier", string(tier)),
				zap.Error(verr))
			continue
		}
		valid = append(valid, c)
	}

	merged := s.resolver.Resolve(valid)
	now := time.Now()

	var outcomes []evaluated
	for i := range merged {
		mr := &merged[i]
		summary.Merged += len(mr.MergedIDs)

		if len(mr.MergedIDs) > 0 {
			if err := s.store.AbsorbEntities(ctx, &mr.Canonical, mr.MergedIDs); err != nil {
				if abortSweep(err) {
					return nil, fmt.Errorf("absorb cluster %s: %w", mr.Canonical.ID, err)
				}
				s.logger.Warn("failed to absorb cluster, skipping",
					zap.String("canonical_id", mr.Canonical.ID), zap.Error(err))
				continue
			}
		}

		rr, err := s.reasoning.Evaluate(ctx, mr)
		if err != nil {
			if abortSweep(err) {
				return nil, fmt.Errorf("reasoning for %s: %w", mr.Canonical.ID, err)
			}
			s.logger.Warn("reasoning failed for entity, skipping",
				zap.String("entity_id", mr.Canonical.ID), zap.Error(err))
			continue
		}

		if w := rr.BlockingWarning(); w != nil && w.Code == domain.WarnContradiction {
			if err := s.store.MarkContradicted(ctx, mr.Canonical.ID, now); err != nil && abortSweep(err) {
				return nil, fmt.Errorf("mark contradicted %s: %w", mr.Canonical.ID, err)
			}
		}

		outcomes = append(outcomes, evaluated{
			merge:     *mr,
			reasoning: rr,
			decision:  s.gate.Evaluate(mr, rr, now),
		})
	}

	// Apply phase. Decisions are applied in evaluation order; every write is
	// an idempotent merge-by-id so a crash-and-retry cannot double-apply.
	for _, o := range outcomes {
		summary.Evaluated++
		d := o.decision

		if err := s.decisions.Create(ctx, d); err != nil {
			if abortSweep(err) {
				return nil, fmt.Errorf("record decision for %s: %w", d.EntityID, err)
			}
			s.logger.Error("failed to record decision",
				zap.String("entity_id", d.EntityID), zap.Error(err))
			continue
		}

		switch d.Status {
		case domain.DecisionApproved:
			if err := s.store.SetTier(ctx, d.EntityID, d.ToTier); err != nil {
				if abortSweep(err) {
					return nil, fmt.Errorf("set tier for %s: %w", d.EntityID, err)
				}
				s.logger.Error("failed to apply tier bump",
					zap.String("entity_id", d.EntityID), zap.Error(err))
				continue
			}
			summary.Approved++

			materialized, err := s.materializeSuggestions(ctx, o.merge.Canonical.Tier, o.reasoning)
			if err != nil {
				return nil, err
			}
			summary.EdgesMaterialized += materialized
		case domain.DecisionPendingReview:
			summary.Held++
		default:
			summary.Rejected++
		}

		if err := s.publishOutcome(ctx, d, o.reasoning); err != nil {
			if abortSweep(err) {
				return nil, fmt.Errorf("enqueue events for %s: %w", d.EntityID, err)
			}
			s.logger.Warn("failed to enqueue audit events",
				zap.String("entity_id", d.EntityID), zap.Error(err))
		}

		summary.Decisions = append(summary.Decisions, *d)
	}

	summary.Duration = time.Since(start)
	s.logger.Info("tier sweep complete",
		zap.String("tier", string(tier)),
		zap.Int("candidates", summary.Candidates),
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("approved", summary.Approved),
		zap.Int("held", summary.Held),
		zap.Int("rejected", summary.Rejected),
		zap.Int("merged", summary.Merged),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// materializeSuggestions writes the suggested edges that clear the confidence
// floor. Deterministic relationship ids keep the upserts idempotent.
func (s *CrystallizationService) materializeSuggestions(ctx context.Context, tier domain.Tier, rr *domain.ReasoningResult) (int, error) {
	count := 0
	for _, sug := range rr.Suggestions {
		if sug.Confidence < s.minEdgeConfidence {
			continue
		}
		rel := &domain.Relationship{
			ID:         RelationshipID(sug.SourceID, sug.Type, sug.TargetID),
			SourceID:   sug.SourceID,
			TargetID:   sug.TargetID,
			Type:       sug.Type,
			Tier:       tier,
			Confidence: sug.Confidence,
			Inferred:   true,
		}
		if err := s.store.UpsertRelationship(ctx, rel); err != nil {
			if abortSweep(err) {
				return count, fmt.Errorf("materialize edge %s: %w", rel.ID, err)
			}
			s.logger.Warn("failed to materialize suggested edge",
				zap.String("relationship_id", rel.ID), zap.Error(err))
			continue
		}
		count++
	}
	return count, nil
}

func (s *CrystallizationService) publishOutcome(ctx context.Context, d *domain.PromotionDecision, rr *domain.ReasoningResult) error {
	decisionPayload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := s.outbox.Enqueue(ctx, &domain.OutboxEvent{
		ID:        uuid.New(),
		Kind:      domain.EventPromotionDecision,
		DedupeID:  d.ID.String(),
		Payload:   decisionPayload,
		CreatedAt: d.EvaluatedAt,
	}); err != nil {
		return err
	}

	reasoningPayload, err := json.Marshal(rr)
	if err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, &domain.OutboxEvent{
		ID:        uuid.New(),
		Kind:      domain.EventReasoningResult,
		DedupeID:  d.ID.String(),
		Payload:   reasoningPayload,
		CreatedAt: d.EvaluatedAt,
	})
}

// RelationshipID derives the deterministic id for a (source, type, target)
// edge so repeated materialization merges instead of duplicating.
func RelationshipID(sourceID, relType, targetID string) string {
	return fmt.Sprintf("rel:%s:%s:%s", sourceID, relType, targetID)
}

// validateCandidate rejects records the pipeline cannot score safely.
func validateCandidate(e *domain.Entity) *domain.ValidationError {
	if e.ID == "" {
		return &domain.ValidationError{Field: "id", Reason: "empty"}
	}
	if e.NormalizedName() == "" {
		return &domain.ValidationError{Field: "name", Reason: "empty"}
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return &domain.ValidationError{Field: "confidence", Reason: "outside [0,1]"}
	}
	if e.ObservationCount < 1 {
		return &domain.ValidationError{Field: "observation_count", Reason: "must be >= 1"}
	}
	return nil
}

// abortSweep reports whether an error is a store connectivity failure that
// invalidates the whole sweep rather than a single entity.
func abortSweep(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable)
}
