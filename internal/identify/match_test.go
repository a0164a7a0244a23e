// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package identify

import (
	"math"
	"testing"
)

func unitVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func TestDotIdenticalUnitVectors(t *testing.T) {
	v := unitVector(EmbeddingDim, 3)
	if got := dot(v, v); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("dot(v, v) = %v, want 1.0", got)
	}
}

func TestDotOrthogonalVectors(t *testing.T) {
	a := unitVector(EmbeddingDim, 0)
	b := unitVector(EmbeddingDim, 1)
	if got := dot(a, b); got != 0 {
		t.Errorf("dot(a, b) = %v, want 0", got)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	n := normalize(v)
	if math.Abs(float64(n[0])-0.6) > 1e-6 || math.Abs(float64(n[1])-0.8) > 1e-6 {
		t.Errorf("normalize([3 4]) = %v", n)
	}

	zero := []float32{0, 0, 0}
	if got := normalize(zero); got[0] != 0 || got[1] != 0 || got[2] != 0 {
		t.Errorf("normalize(zero) = %v", got)
	}
}

func TestBestMatchFirstMaximalWinsTies(t *testing.T) {
	query := unitVector(4, 0)
	relatives := []Relative{
		{Name: "alice", Embeddings: [][]float32{unitVector(4, 0)}},
		{Name: "bob", Embeddings: [][]float32{unitVector(4, 0)}},
	}

	best, score := bestMatch(query, relatives)
	if best == nil {
		t.Fatal("expected a match")
	}
	if best.Name != "alice" {
		t.Errorf("tie broken to %q, want first maximal", best.Name)
	}
	if math.Abs(score-1.0) > 1e-9 {
		t.Errorf("score = %v", score)
	}
}

func TestBestMatchSkipsMismatchedDimensions(t *testing.T) {
	query := unitVector(4, 0)
	relatives := []Relative{
		{Name: "short", Embeddings: [][]float32{{1, 0}}},
	}
	if best, _ := bestMatch(query, relatives); best != nil {
		t.Errorf("expected no match, got %q", best.Name)
	}
}

func TestBestMatchEmptySet(t *testing.T) {
	if best, score := bestMatch(unitVector(4, 0), nil); best != nil || score != 0 {
		t.Errorf("empty set gave %v/%v", best, score)
	}
}

func TestRoundConfidence(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0.40049, 0.4},
		{0.9995, 1.0},
		{0.12345, 0.123},
		{0.0, 0.0},
	}
	for _, c := range cases {
		if got := roundConfidence(c.in); got != c.want {
			t.Errorf("roundConfidence(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
