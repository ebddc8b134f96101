package service

import (
	"math"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/config"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
)

const (
	// frequencyBoostFactor scales the logarithmic repeat-observation reward.
	frequencyBoostFactor = 0.08
	maxFrequencyBoost    = 0.25
)

// TemporalScore breaks a relevance score into its components for audit.
type TemporalScore struct {
	Category       string  `json:"category"`
	Base           float64 `json:"base"`
	FrequencyBoost float64 `json:"frequency_boost"`
	Final          float64 `json:"final"`
}

// TemporalScoringService computes time-decayed relevance per entity category.
// Purely a function of (entity, now, config); no I/O.
type TemporalScoringService struct {
	categories map[string]config.TemporalCategory
}

func NewTemporalScoringService(categories map[string]config.TemporalCategory) *TemporalScoringService {
	return &TemporalScoringService{categories: categories}
}

func (s *TemporalScoringService) categoryConfig(category string) config.TemporalCategory {
	if tc, ok := s.categories[category]; ok {
		return tc
	}
	if tc, ok := s.categories["default"]; ok {
		return tc
	}
	return config.TemporalCategory{HalfLifeHours: 24 * 7, MinScore: 0.1}
}

// Score computes the decayed relevance of an entity at the given instant.
// base = max(minScore, exp(-ln2/halfLife * hoursSinceLastObservation)),
// final = min(1, base + frequencyBoost(observationCount)).
func (s *TemporalScoringService) Score(e *domain.Entity, now time.Time) TemporalScore {
	tc := s.categoryConfig(e.Category)

	hours := now.Sub(e.LastObservedAt).Hours()
	if hours < 0 {
		hours = 0
	}

	lambda := math.Ln2 / tc.HalfLifeHours
	base := math.Exp(-lambda * hours)
	if base < tc.MinScore {
		base = tc.MinScore
	}

	boost := FrequencyBoost(e.ObservationCount)

	final := base + boost
	if final > 1 {
		final = 1
	}

	return TemporalScore{
		Category:       e.Category,
		Base:           base,
		FrequencyBoost: boost,
		Final:          final,
	}
}

// FrequencyBoost rewards repeated observation logarithmically: a single
// observation earns nothing, each doubling of the count adds a fixed step,
// capped so frequency alone cannot saturate the score.
func FrequencyBoost(observationCount int) float64 {
	if observationCount <= 1 {
		return 0
	}
	boost := frequencyBoostFactor * math.Log2(float64(observationCount))
	if boost > maxFrequencyBoost {
		boost = maxFrequencyBoost
	}
	return boost
}
