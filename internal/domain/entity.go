package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// PropertyKind enumerates the closed set of scalar kinds a property value may
// take. Values extracted from free text that fit none of the scalar kinds are
// carried as KindOther rather than coerced.
type PropertyKind string

const (
	KindString PropertyKind = "string"
	KindNumber PropertyKind = "number"
	KindBool   PropertyKind = "bool"
	KindList   PropertyKind = "list"
	KindOther  PropertyKind = "other"
)

// PropertyValue is a tagged scalar. KindList is used when merging surfaces
// conflicting scalar values for the same key; the conflicting values are kept
// as a list instead of being silently overwritten.
type PropertyValue struct {
	Kind   PropertyKind    `json:"kind"`
	String string          `json:"string,omitempty"`
	Number float64         `json:"number,omitempty"`
	Bool   bool            `json:"bool,omitempty"`
	List   []PropertyValue `json:"list,omitempty"`
}

func StringValue(s string) PropertyValue {
	return PropertyValue{Kind: KindString, String: s}
}

func NumberValue(n float64) PropertyValue {
	return PropertyValue{Kind: KindNumber, Number: n}
}

func BoolValue(b bool) PropertyValue {
	return PropertyValue{Kind: KindBool, Bool: b}
}

func ListValue(vs ...PropertyValue) PropertyValue {
	return PropertyValue{Kind: KindList, List: vs}
}

// Equal compares two property values structurally.
func (v PropertyValue) Equal(other PropertyValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString, KindOther:
		return v.String == other.String
	case KindNumber:
		return v.Number == other.Number
	case KindBool:
		return v.Bool == other.Bool
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Text renders the value for similarity comparison and audit output.
func (v PropertyValue) Text() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		parts := make([]string, 0, len(v.List))
		for _, item := range v.List {
			parts = append(parts, item.Text())
		}
		return strings.Join(parts, ",")
	default:
		return v.String
	}
}

// ConflictsKey is the reserved property key under which the resolver records
// merge conflicts so the reasoning engine can see them.
const ConflictsKey = "_conflicts"

// OntologyMatch links an entity to a code in an external vocabulary.
type OntologyMatch struct {
	Code       string  `json:"code"`
	System     string  `json:"system,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Entity is a node in the tiered knowledge graph.
type Entity struct {
	ID                 string                   `json:"id"`
	Name               string                   `json:"name"`
	Type               string                   `json:"type"`
	Category           string                   `json:"category"`
	Tier               Tier                     `json:"tier"`
	Confidence         float64                  `json:"confidence"`
	ObservationCount   int                      `json:"observation_count"`
	Properties         map[string]PropertyValue `json:"properties,omitempty"`
	Sources            []string                 `json:"sources,omitempty"`
	OntologyMatch      *OntologyMatch           `json:"ontology_match,omitempty"`
	Embedding          []float32                `json:"embedding,omitempty"`
	Ambiguous          bool                     `json:"ambiguous,omitempty"`
	FirstObservedAt    time.Time                `json:"first_observed_at"`
	LastObservedAt     time.Time                `json:"last_observed_at"`
	LastContradictedAt *time.Time               `json:"last_contradicted_at,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// NormalizedName case-folds and collapses whitespace, the canonical blocking
// key used by the resolver.
func (e *Entity) NormalizedName() string {
	return NormalizeName(e.Name)
}

func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// DistinctSources returns the deduplicated provenance source list, sorted.
func (e *Entity) DistinctSources() []string {
	seen := make(map[string]struct{}, len(e.Sources))
	var out []string
	for _, s := range e.Sources {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// HasConflicts reports whether merging surfaced unresolved property conflicts.
func (e *Entity) HasConflicts() bool {
	_, ok := e.Properties[ConflictsKey]
	return ok
}

// Relationship is a typed, directed edge between two entities. It carries the
// same tier and confidence semantics as Entity.
type Relationship struct {
	ID         string                   `json:"id"`
	SourceID   string                   `json:"source_id"`
	TargetID   string                   `json:"target_id"`
	Type       string                   `json:"type"`
	Tier       Tier                     `json:"tier"`
	Confidence float64                  `json:"confidence"`
	Properties map[string]PropertyValue `json:"properties,omitempty"`
	Inferred   bool                     `json:"inferred,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// ObservationKind distinguishes the two shapes of extraction output.
type ObservationKind string

const (
	ObservationEntity       ObservationKind = "entity"
	ObservationRelationship ObservationKind = "relationship"
)

// Observation is one (candidate, confidence, provenance, category) tuple
// supplied by an extraction collaborator. Entity observations land in the
// Perception tier; relationship observations reference entity ids.
type Observation struct {
	Kind          ObservationKind          `json:"kind"`
	Name          string                   `json:"name,omitempty"`
	Type          string                   `json:"type,omitempty"`
	Category      string                   `json:"category"`
	Confidence    float64                  `json:"confidence"`
	Source        string                   `json:"source"`
	Properties    map[string]PropertyValue `json:"properties,omitempty"`
	OntologyMatch *OntologyMatch           `json:"ontology_match,omitempty"`
	Embedding     []float32                `json:"embedding,omitempty"`
	SourceID      string                   `json:"source_id,omitempty"`
	TargetID      string                   `json:"target_id,omitempty"`
	RelationType  string                   `json:"relation_type,omitempty"`
	ObservedAt    time.Time                `json:"observed_at"`
}
