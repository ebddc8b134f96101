package domain

// Tier is one of the four ordered trust levels a fact occupies in the graph.
// Facts enter at Perception and are promoted one tier at a time.
type Tier string

const (
	TierPerception  Tier = "perception"
	TierSemantic    Tier = "semantic"
	TierReasoning   Tier = "reasoning"
	TierApplication Tier = "application"
)

var tierRanks = map[Tier]int{
	TierPerception:  0,
	TierSemantic:    1,
	TierReasoning:   2,
	TierApplication: 3,
}

// Rank returns the position of the tier in the trust order, -1 for unknown tiers.
func (t Tier) Rank() int {
	if r, ok := tierRanks[t]; ok {
		return r
	}
	return -1
}

// Next returns the tier one step up. ok is false for Application (terminal)
// and for unknown tiers.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierPerception:
		return TierSemantic, true
	case TierSemantic:
		return TierReasoning, true
	case TierReasoning:
		return TierApplication, true
	}
	return t, false
}

func (t Tier) Before(other Tier) bool {
	return t.Rank() >= 0 && other.Rank() >= 0 && t.Rank() < other.Rank()
}

func ValidTier(t string) bool {
	_, ok := tierRanks[Tier(t)]
	return ok
}

func AllTiers() []Tier {
	return []Tier{TierPerception, TierSemantic, TierReasoning, TierApplication}
}

// PromotableTiers returns the tiers that can still move forward, in sweep
// order. Highest tier first, so one scan cycle moves a fact at most one tier.
func PromotableTiers() []Tier {
	return []Tier{TierReasoning, TierSemantic, TierPerception}
}
