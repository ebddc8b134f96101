package service

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCombineConfidence_NoisyOR(t *testing.T) {
	got := CombineConfidence(0.6, 0.7)
	if !almostEqual(got, 0.88) {
		t.Errorf("CombineConfidence(0.6, 0.7) = %f, want 0.88", got)
	}
}

func TestCombineConfidence_SingleInputIdentity(t *testing.T) {
	for _, c := range []float64{0, 0.25, 0.5, 0.99, 1} {
		if got := CombineConfidence(c); !almostEqual(got, c) {
			t.Errorf("CombineConfidence(%f) = %f, want %f", c, got, c)
		}
	}
}

func TestCombineConfidence_OrderIndependent(t *testing.T) {
	a := CombineConfidence(0.3, 0.8, 0.5)
	b := CombineConfidence(0.5, 0.3, 0.8)
	if !almostEqual(a, b) {
		t.Errorf("order changed result: %f vs %f", a, b)
	}
}

func TestCombineConfidence_NeverBelowBestInput(t *testing.T) {
	inputs := []float64{0.4, 0.9, 0.2}
	got := CombineConfidence(inputs...)
	for _, c := range inputs {
		if got < c {
			t.Errorf("combined %f fell below input %f", got, c)
		}
	}
}

func TestCombineConfidence_EmptyAndClamping(t *testing.T) {
	if got := CombineConfidence(); got != 0 {
		t.Errorf("CombineConfidence() = %f, want 0", got)
	}
	if got := CombineConfidence(1.5, -0.3); !almostEqual(got, 1) {
		t.Errorf("CombineConfidence(1.5, -0.3) = %f, want 1", got)
	}
}

func TestAdjustConfidence_Clamps(t *testing.T) {
	tests := []struct {
		confidence, adjustment, want float64
	}{
		{0.9, -0.2, 0.7},
		{0.1, -0.2, 0},
		{0.95, 0.2, 1},
		{0.5, 0, 0.5},
	}
	for _, tt := range tests {
		if got := AdjustConfidence(tt.confidence, tt.adjustment); !almostEqual(got, tt.want) {
			t.Errorf("AdjustConfidence(%f, %f) = %f, want %f", tt.confidence, tt.adjustment, got, tt.want)
		}
	}
}

func TestDecayedChainConfidence(t *testing.T) {
	got := DecayedChainConfidence(0.9, 0.6, 0.9)
	if !almostEqual(got, 0.54) {
		t.Errorf("DecayedChainConfidence(0.9, 0.6, 0.9) = %f, want 0.54", got)
	}

	// Weaker link dominates regardless of argument order.
	if a, b := DecayedChainConfidence(0.6, 0.9, 0.9), DecayedChainConfidence(0.9, 0.6, 0.9); !almostEqual(a, b) {
		t.Errorf("chain confidence depends on argument order: %f vs %f", a, b)
	}
}
