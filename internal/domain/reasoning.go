package domain

// SuggestionRule names the symbolic rule that produced a suggested edge.
type SuggestionRule string

const (
	RuleTransitiveClosure SuggestionRule = "transitive_closure"
	RuleSemanticLink      SuggestionRule = "semantic_link"
)

// SuggestedEdge is a relationship the reasoning engine proposes but does not
// write. The crystallization step decides whether to materialize it.
type SuggestedEdge struct {
	Rule       SuggestionRule `json:"rule"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       string         `json:"type"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason,omitempty"`
}

// WarningCode enumerates the reasoning warnings the gate understands.
type WarningCode string

const (
	WarnContradiction        WarningCode = "contradiction"
	WarnMissingCorroboration WarningCode = "missing_corroboration"
	WarnMergeConflict        WarningCode = "merge_conflict"
)

// Warning flags a problem with a candidate. Blocking warnings force the gate
// to reject regardless of the other criteria.
type Warning struct {
	Code      WarningCode `json:"code"`
	Message   string      `json:"message"`
	Blocking  bool        `json:"blocking"`
	RelatedID string      `json:"related_id,omitempty"`
}

// ReasoningResult is the full output of one reasoning pass over a graph
// mutation event. Re-running the engine on the same event yields the same
// result and never duplicates already-materialized edges.
type ReasoningResult struct {
	EntityID             string          `json:"entity_id"`
	Suggestions          []SuggestedEdge `json:"suggestions,omitempty"`
	Warnings             []Warning       `json:"warnings,omitempty"`
	ConfidenceAdjustment float64         `json:"confidence_adjustment"`
}

// HasBlockingWarning reports whether any warning forces rejection.
func (r *ReasoningResult) HasBlockingWarning() bool {
	for _, w := range r.Warnings {
		if w.Blocking {
			return true
		}
	}
	return false
}

// BlockingWarning returns the first blocking warning, if any.
func (r *ReasoningResult) BlockingWarning() *Warning {
	for i := range r.Warnings {
		if r.Warnings[i].Blocking {
			return &r.Warnings[i]
		}
	}
	return nil
}
