// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relevance implements the shared scoring core of the assistant:
// sparse TF-IDF vectors over word and character-trigram spaces, Okapi BM25,
// cosine and Jaccard similarity, and the hybrid scorer that fuses them.
//
// Deliberately lexical: "semantic" similarity here means token and trigram
// overlap, not embeddings. Route thresholds are calibrated against this
// score distribution; swapping in an embedding model would invalidate every
// persisted threshold.
package relevance

import "math"

// =============================================================================
// Sparse Vectors
// =============================================================================

// Vector is a sparse term→weight mapping. The zero value (nil) behaves as
// the empty vector for all operations in this package.
type Vector map[string]float64

// TermFreq counts token occurrences into a sparse vector.
//
// # Description
//
// Raw term frequency; IDF weighting is applied by the Model, which owns the
// corpus-wide document frequency tables.
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
func TermFreq(tokens []string) Vector {
	if len(tokens) == 0 {
		return Vector{}
	}
	v := make(Vector, len(tokens))
	for _, tok := range tokens {
		v[tok]++
	}
	return v
}

// Cosine computes the cosine similarity between two sparse vectors.
//
// # Description
//
// Normalized dot product. Either vector being empty (or having zero norm)
// yields 0. For vectors with non-negative weights — the only kind this
// package produces — the result lies in [0,1].
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Iterate the smaller map.
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, wa := range a {
		if wb, ok := b[term]; ok {
			dot += wa * wb
		}
	}
	if dot == 0 {
		return 0
	}
	na := norm(a)
	nb := norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (na * nb)
	// Guard against floating-point drift pushing slightly past 1.
	if sim > 1 {
		sim = 1
	}
	return sim
}

// norm computes the L2 norm of a sparse vector.
func norm(v Vector) float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// =============================================================================
// Sets and Jaccard
// =============================================================================

// Set is a string set used for token and trigram overlap.
type Set map[string]struct{}

// NewSet builds a Set from a slice, deduplicating.
func NewSet(items []string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// Jaccard computes |a∩b| / |a∪b|.
//
// # Description
//
// Two empty sets are defined as identical (similarity 1): in the recall
// engine this makes two empty snippets dedup against each other rather
// than both surviving with undefined similarity.
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
func Jaccard(a, b Set) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	inter := 0
	for item := range a {
		if _, ok := b[item]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Clamp01 clamps a score into [0,1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
