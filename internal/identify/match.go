// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package identify

import "math"

// UnknownIdentity is the label for a face that matched no relative.
const UnknownIdentity = "unknown"

// normalize returns v scaled to unit length. A zero vector is returned
// unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// dot computes the inner product of two equal-length vectors. For unit
// vectors this is the cosine similarity.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// bestMatch scores an embedding against every relative's stored embeddings
// and returns the relative with the highest similarity, ties broken by the
// first maximal score encountered in iteration order. A nil relative is
// returned when the candidate set is empty.
func bestMatch(embedding []float32, relatives []Relative) (best *Relative, score float64) {
	for i := range relatives {
		for _, stored := range relatives[i].Embeddings {
			if len(stored) != len(embedding) {
				continue
			}
			if s := dot(embedding, stored); best == nil || s > score {
				best = &relatives[i]
				score = s
			}
		}
	}
	return best, score
}

// roundConfidence rounds a similarity score to 3 decimal places.
func roundConfidence(s float64) float64 {
	return math.Round(s*1000) / 1000
}
