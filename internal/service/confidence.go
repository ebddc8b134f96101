package service

import "math"

// Confidence combination uses noisy-OR: independent corroborating
// observations increase combined belief and never decrease it below the best
// single input. The rule is order-independent and satisfies
// CombineConfidence(c) == c for a single input.

const (
	confidenceFloor = 0.0
	confidenceCeil  = 1.0
)

func clampConfidence(c float64) float64 {
	if c < confidenceFloor {
		return confidenceFloor
	}
	if c > confidenceCeil {
		return confidenceCeil
	}
	return c
}

// CombineConfidence folds independent source confidences via noisy-OR:
// combined = 1 - Π(1 - ci). Returns 0 for no inputs.
func CombineConfidence(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	product := 1.0
	for _, c := range values {
		product *= 1 - clampConfidence(c)
	}
	return clampConfidence(1 - product)
}

// AdjustConfidence applies a reasoning adjustment (positive or negative) and
// clamps the result to [0, 1].
func AdjustConfidence(confidence, adjustment float64) float64 {
	return clampConfidence(confidence + adjustment)
}

// DecayedChainConfidence is the confidence assigned to an inferred A→C edge
// from A→B and B→C: the weaker link discounted by the chain decay factor so
// long chains cannot inflate belief.
func DecayedChainConfidence(ab, bc, decayFactor float64) float64 {
	return clampConfidence(math.Min(ab, bc) * decayFactor)
}
