// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relevance

import "math"

// =============================================================================
// Okapi BM25
// =============================================================================

// BM25 tuning constants. Standard values recommended by Robertson et al.
const (
	// bm25K1 controls term frequency saturation. Higher = slower saturation.
	// Range [1.2, 1.4] here; 1.3 is the middle of the calibrated band.
	bm25K1 = 1.3

	// bm25B controls document length normalization.
	// 0 = no normalization, 1 = full normalization. 0.75 is the standard default.
	bm25B = 0.75

	// bm25SaturationDivisor maps the unbounded raw BM25 score into [0,1)
	// via 1 - e^(-raw/divisor). At raw=6 the saturated score is ~0.63;
	// raw scores above ~18 are effectively 1.
	bm25SaturationDivisor = 6.0
)

// bm25MaxOverDocs scores the query term set against each individual training
// document of a route and returns the maximum saturated score.
//
// # Description
//
// BM25 runs per-document, not against the centroid: a route with one
// strongly matching utterance should win even when its other utterances
// dilute the centroid. The raw maximum is saturated into [0,1] so it can be
// blended with cosine scores.
//
// # Thread Safety
//
// Stateless over immutable model data. Safe for concurrent use.
func bm25MaxOverDocs(queryTerms Set, docs []document, idf Vector, avgDocLen float64) float64 {
	if len(queryTerms) == 0 || len(docs) == 0 || avgDocLen == 0 {
		return 0
	}

	var best float64
	for _, doc := range docs {
		raw := bm25Score(queryTerms, doc, idf, avgDocLen)
		if raw > best {
			best = raw
		}
	}
	return SaturateBM25(best)
}

// bm25Score computes the raw BM25 score for a single (query, doc) pair.
//
// score = Σ_t idf(t) × (tf(t,doc) × (k1+1)) / (tf(t,doc) + k1 × (1 − b + b × dl/avgdl))
func bm25Score(queryTerms Set, doc document, idf Vector, avgDocLen float64) float64 {
	dl := float64(doc.length)
	var score float64

	for term := range queryTerms {
		tf, inDoc := doc.wordTF[term]
		if !inDoc {
			continue
		}
		termIDF, knownTerm := idf[term]
		if !knownTerm {
			continue
		}

		numerator := tf * (bm25K1 + 1)
		lengthNorm := bm25K1 * (1.0 - bm25B + bm25B*dl/avgDocLen)
		score += termIDF * (numerator / (tf + lengthNorm))
	}

	return score
}

// SaturateBM25 maps a raw (unbounded) BM25 score into [0,1).
//
// Exported because the recall engine's hybrid backend saturates its own raw
// BM25 sums with the identical curve; the two subsystems must stay on the
// same scale.
func SaturateBM25(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return 1 - math.Exp(-raw/bm25SaturationDivisor)
}
