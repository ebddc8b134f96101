package config

import (
	"fmt"
	"os"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"gopkg.in/yaml.v3"
)

// Tuning holds the structured tables the promotion pipeline treats as
// configuration rather than algorithmic contract: the risk table, per-risk
// promotion criteria, temporal decay parameters, and the reasoning knobs.
// Sample values are defaults, not clinically validated constants.
type Tuning struct {
	MergeThreshold float64
	Risk           domain.RiskTable
	Criteria       map[domain.RiskLevel]domain.PromotionCriteria
	Temporal       map[string]TemporalCategory
	Reasoning      ReasoningTuning
}

// TemporalCategory configures time decay for one entity category.
type TemporalCategory struct {
	HalfLifeHours float64 `yaml:"half_life_hours"`
	MinScore      float64 `yaml:"min_score"`
}

// ReasoningTuning configures the symbolic rule engine.
type ReasoningTuning struct {
	TransitiveTypes       []string `yaml:"transitive_types"`
	DecayFactor           float64  `yaml:"decay_factor"`
	SemanticLinkThreshold float64  `yaml:"semantic_link_threshold"`
	FuzzyNameThreshold    float64  `yaml:"fuzzy_name_threshold"`
	MinEdgeConfidence     float64  `yaml:"min_edge_confidence"`
	FreshnessThreshold    float64  `yaml:"freshness_threshold"`
}

// DefaultTuning returns the built-in tables.
func DefaultTuning() *Tuning {
	return &Tuning{
		MergeThreshold: 0.82,
		Risk:           nil, // domain.DefaultCategoryRisk applies
		Criteria: map[domain.RiskLevel]domain.PromotionCriteria{
			domain.RiskLow: {
				MinConfidence:   0.70,
				MinObservations: 1,
			},
			domain.RiskMedium: {
				MinConfidence:        0.85,
				MinObservations:      2,
				MinStabilityDuration: 24 * time.Hour,
				RequireMultiSource:   true,
			},
			domain.RiskHigh: {
				MinConfidence:        0.90,
				MinObservations:      2,
				MinStabilityDuration: 72 * time.Hour,
				RequireMultiSource:   true,
				RequireOntologyMatch: true,
			},
		},
		Temporal: map[string]TemporalCategory{
			"symptom":    {HalfLifeHours: 24, MinScore: 0.05},
			"allergy":    {HalfLifeHours: 24 * 365, MinScore: 0.5},
			"medication": {HalfLifeHours: 24 * 30, MinScore: 0.3},
			"diagnosis":  {HalfLifeHours: 24 * 90, MinScore: 0.4},
			"default":    {HalfLifeHours: 24 * 7, MinScore: 0.1},
		},
		Reasoning: ReasoningTuning{
			TransitiveTypes:       []string{"is_a", "part_of"},
			DecayFactor:           0.9,
			SemanticLinkThreshold: 0.85,
			FuzzyNameThreshold:    0.82,
			MinEdgeConfidence:     0.5,
			FreshnessThreshold:    0.2,
		},
	}
}

// tuningFile is the YAML shape. Durations are Go duration strings.
type tuningFile struct {
	MergeThreshold *float64                    `yaml:"merge_threshold"`
	Risk           map[string]string           `yaml:"risk"`
	Criteria       map[string]criteriaFile     `yaml:"criteria"`
	Temporal       map[string]TemporalCategory `yaml:"temporal"`
	Reasoning      *ReasoningTuning            `yaml:"reasoning"`
}

type criteriaFile struct {
	MinConfidence        *float64 `yaml:"min_confidence"`
	MinObservations      *int     `yaml:"min_observations"`
	MinStabilityDuration string   `yaml:"min_stability_duration"`
	RequireMultiSource   *bool    `yaml:"require_multi_source"`
	RequireOntologyMatch *bool    `yaml:"require_ontology_match"`
}

// LoadTuning reads the YAML tuning file at path and overlays it on the
// defaults. An empty path returns the defaults unchanged.
func LoadTuning(path string) (*Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tuning file: %w", err)
	}

	var file tuningFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse tuning file: %w", err)
	}

	if file.MergeThreshold != nil {
		t.MergeThreshold = *file.MergeThreshold
	}

	if len(file.Risk) > 0 {
		t.Risk = make(domain.RiskTable, len(file.Risk))
		for category, level := range file.Risk {
			switch domain.RiskLevel(level) {
			case domain.RiskLow, domain.RiskMedium, domain.RiskHigh:
				t.Risk[category] = domain.RiskLevel(level)
			default:
				return nil, fmt.Errorf("tuning: unknown risk level %q for category %q", level, category)
			}
		}
	}

	for level, cf := range file.Criteria {
		risk := domain.RiskLevel(level)
		base, ok := t.Criteria[risk]
		if !ok {
			return nil, fmt.Errorf("tuning: unknown risk level %q in criteria", level)
		}
		if cf.MinConfidence != nil {
			base.MinConfidence = *cf.MinConfidence
		}
		if cf.MinObservations != nil {
			base.MinObservations = *cf.MinObservations
		}
		if cf.MinStabilityDuration != "" {
			d, err := time.ParseDuration(cf.MinStabilityDuration)
			if err != nil {
				return nil, fmt.Errorf("tuning: bad stability duration for %q: %w", level, err)
			}
			base.MinStabilityDuration = d
		}
		if cf.RequireMultiSource != nil {
			base.RequireMultiSource = *cf.RequireMultiSource
		}
		if cf.RequireOntologyMatch != nil {
			base.RequireOntologyMatch = *cf.RequireOntologyMatch
		}
		t.Criteria[risk] = base
	}

	for category, tc := range file.Temporal {
		if tc.HalfLifeHours <= 0 {
			return nil, fmt.Errorf("tuning: non-positive half-life for category %q", category)
		}
		t.Temporal[category] = tc
	}

	if file.Reasoning != nil {
		r := &t.Reasoning
		if len(file.Reasoning.TransitiveTypes) > 0 {
			r.TransitiveTypes = file.Reasoning.TransitiveTypes
		}
		if file.Reasoning.DecayFactor > 0 {
			r.DecayFactor = file.Reasoning.DecayFactor
		}
		if file.Reasoning.SemanticLinkThreshold > 0 {
			r.SemanticLinkThreshold = file.Reasoning.SemanticLinkThreshold
		}
		if file.Reasoning.FuzzyNameThreshold > 0 {
			r.FuzzyNameThreshold = file.Reasoning.FuzzyNameThreshold
		}
		if file.Reasoning.MinEdgeConfidence > 0 {
			r.MinEdgeConfidence = file.Reasoning.MinEdgeConfidence
		}
		if file.Reasoning.FreshnessThreshold > 0 {
			r.FreshnessThreshold = file.Reasoning.FreshnessThreshold
		}
	}

	return t, nil
}
