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

// =============================================================================
// Hybrid Scorer
// =============================================================================

// Scorer blend and adaptation constants.
const (
	// defaultHybridAlpha is the word-space weight when no route override or
	// global config applies. 0.72 favors exact word matching but keeps a
	// meaningful trigram channel for typos and short queries.
	defaultHybridAlpha = 0.72

	// bm25Lambda blends BM25 into the lexical channel:
	// lexical = (1-λ)·wordCosine + λ·bm25.
	bm25Lambda = 0.35

	// negativePenaltyWeight scales the negative-centroid penalty.
	negativePenaltyWeight = 0.18

	// Alpha adaptation deltas and triggers.
	shortQueryTokens   = 4
	shortQueryBonus    = 0.08
	longQueryTokens    = 16
	longQueryPenalty   = 0.05
	signalKeywordBonus = 0.03
	noiseRatioFloor    = 0.22
	noisePenalty       = 0.06

	// Alpha domain bounds.
	alphaMin = 0.05
	alphaMax = 0.95
)

// Scorer fuses the four per-route signals into one bounded hybrid score.
//
// # Description
//
// Signals, each in [0,1]:
//
//   - word cosine: query word vector vs route positive word centroid
//   - BM25: max over route documents, saturated
//   - char cosine: query trigram vector vs route positive char centroid
//   - negative cosine: query vs route negative centroids (penalty)
//
// Combined as:
//
//	lexical = (1-λ)·wordCos + λ·bm25
//	hybrid  = α·lexical + (1-α)·charCos + boost − β·(α·negWord + (1-α)·negChar)
//
// clamped to [0,1]. α is adaptive per call (see adaptAlpha).
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type Scorer struct {
	model *Model

	// globalAlpha is the configured hybrid alpha, pre-adaptation.
	globalAlpha float64

	// signalKeywords shift alpha upward when present in the query.
	signalKeywords map[string]bool
}

// RouteScore is the per-route scoring breakdown, kept for decision reasons
// and observability.
type RouteScore struct {
	Route      string
	Hybrid     float64
	WordCosine float64
	BM25       float64
	CharCosine float64
	NegWord    float64
	NegChar    float64
	Alpha      float64
	Boost      float64
}

// NewScorer creates a Scorer over a trained model.
//
// # Inputs
//
//   - model: Trained model. Must not be nil.
//   - globalAlpha: Configured hybrid alpha. Values outside [alphaMin, alphaMax]
//     are clamped; 0 selects the package default (0.72).
//   - signalKeywords: Domain-signal keywords (normalized). May be empty.
//
// # Outputs
//
//   - *Scorer: The constructed scorer. Never nil.
//
// # Thread Safety
//
// The returned Scorer is safe for concurrent use.
func NewScorer(model *Model, globalAlpha float64, signalKeywords []string) *Scorer {
	if globalAlpha == 0 {
		globalAlpha = defaultHybridAlpha
	}
	kw := make(map[string]bool, len(signalKeywords))
	for _, k := range signalKeywords {
		kw[k] = true
	}
	return &Scorer{
		model:          model,
		globalAlpha:    clampAlpha(globalAlpha),
		signalKeywords: kw,
	}
}

// Score computes the hybrid score of a query against one route.
//
// # Description
//
// alphaOverride, when non-nil, replaces the global alpha BEFORE adaptation —
// a route that performs best at a specific blend still benefits from the
// short-query and noise heuristics. boost is an external contextual additive
// term supplied by the caller (e.g. "last turn was a gmail interaction").
//
// # Inputs
//
//   - q: Precomputed query features (Model.Features).
//   - route: Route name. Unknown routes score 0 across the board.
//   - alphaOverride: Optional per-route alpha. May be nil.
//   - boost: Additive contextual boost. May be negative.
//
// # Outputs
//
//   - RouteScore: Full signal breakdown; Hybrid lies in [0,1].
//
// # Thread Safety
//
// Safe for concurrent use.
func (s *Scorer) Score(q QueryFeatures, route string, alphaOverride *float64, boost float64) RouteScore {
	rs := RouteScore{Route: route, Boost: boost}

	rv, ok := s.model.routes[route]
	if !ok {
		rs.Alpha = s.globalAlpha
		return rs
	}

	rs.WordCosine = Cosine(q.Word, rv.word)
	rs.BM25 = bm25MaxOverDocs(q.TermSet, rv.docs, s.model.wordIDF, s.model.avgDocLen)
	rs.CharCosine = Cosine(q.Char, rv.char)
	rs.NegWord = Cosine(q.Word, rv.negWord)
	rs.NegChar = Cosine(q.Char, rv.negChar)

	alpha := s.globalAlpha
	if alphaOverride != nil {
		alpha = clampAlpha(*alphaOverride)
	}
	alpha = s.adaptAlpha(alpha, q)
	rs.Alpha = alpha

	lexical := (1-bm25Lambda)*rs.WordCosine + bm25Lambda*rs.BM25
	penalty := negativePenaltyWeight * (alpha*rs.NegWord + (1-alpha)*rs.NegChar)
	rs.Hybrid = Clamp01(alpha*lexical + (1-alpha)*rs.CharCosine + boost - penalty)

	return rs
}

// adaptAlpha applies the per-call alpha heuristics.
//
// Short queries and domain-signal keywords push toward word space; long or
// noisy queries push toward trigram space. The result is reclamped to the
// alpha domain.
func (s *Scorer) adaptAlpha(alpha float64, q QueryFeatures) float64 {
	if q.TokenCount > 0 && q.TokenCount <= shortQueryTokens {
		alpha += shortQueryBonus
	}
	if q.TokenCount >= longQueryTokens {
		alpha -= longQueryPenalty
	}
	if s.hasSignalKeyword(q) {
		alpha += signalKeywordBonus
	}
	if q.NoiseRatio >= noiseRatioFloor {
		alpha -= noisePenalty
	}
	return clampAlpha(alpha)
}

// hasSignalKeyword reports whether any query token is a domain-signal keyword.
func (s *Scorer) hasSignalKeyword(q QueryFeatures) bool {
	if len(s.signalKeywords) == 0 {
		return false
	}
	for _, tok := range q.Tokens {
		if s.signalKeywords[tok] {
			return true
		}
	}
	return false
}

// Features delegates to the underlying model, so callers holding a Scorer
// do not also need the Model.
func (s *Scorer) Features(text string) QueryFeatures {
	return s.model.Features(text)
}

// Model returns the underlying trained model.
func (s *Scorer) Model() *Model {
	return s.model
}

// clampAlpha clamps alpha into its [alphaMin, alphaMax] domain.
func clampAlpha(a float64) float64 {
	if a < alphaMin {
		return alphaMin
	}
	if a > alphaMax {
		return alphaMax
	}
	return a
}
