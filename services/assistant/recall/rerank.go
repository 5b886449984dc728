// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recall

import (
	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
)

// =============================================================================
// MMR Diversity Reranking
// =============================================================================

// mmrRerank reorders score-sorted candidates for relevance/diversity balance.
//
// # Description
//
// Maximal Marginal Relevance over a bounded pool: take the top limit×4
// candidates, min-max normalize their scores, then iteratively select up to
// limit×2 of them by maximizing
//
//	λ·normalizedRelevance − (1−λ)·maxTokenJaccardToSelected
//
// with λ = 0.72. Pool members not selected by MMR, and candidates beyond the
// pool, are appended in their original score order — MMR reorders the head
// of the list, it never discards anything.
//
// # Inputs
//
//   - candidates: Deduplicated candidates, sorted by score descending.
//   - limit: The caller's result limit, already clamped.
//
// # Outputs
//
//   - []Candidate: The reordered list, same length and members as the input.
func mmrRerank(candidates []Candidate, limit int) []Candidate {
	if len(candidates) <= 1 {
		return candidates
	}

	poolSize := limit * mmrPoolFactor
	if poolSize > len(candidates) {
		poolSize = len(candidates)
	}
	selectCount := limit * mmrSelectFactor
	if selectCount > poolSize {
		selectCount = poolSize
	}

	relevanceScores := normalizeScores(candidates[:poolSize])

	selected := make([]Candidate, 0, len(candidates))
	used := make([]bool, poolSize)

	for len(selected) < selectCount {
		bestIdx := -1
		bestMarginal := 0.0
		for i := 0; i < poolSize; i++ {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, s := range selected {
				if sim := relevance.Jaccard(candidates[i].simSet, s.simSet); sim > maxSim {
					maxSim = sim
				}
			}
			marginal := mmrLambda*relevanceScores[i] - (1-mmrLambda)*maxSim
			// Strict > keeps the earlier (higher raw score) candidate on ties.
			if bestIdx == -1 || marginal > bestMarginal {
				bestIdx = i
				bestMarginal = marginal
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		selected = append(selected, candidates[bestIdx])
	}

	// Remainder: unselected pool members, then everything past the pool,
	// both in raw score order.
	for i := 0; i < poolSize; i++ {
		if !used[i] {
			selected = append(selected, candidates[i])
		}
	}
	selected = append(selected, candidates[poolSize:]...)
	return selected
}

// normalizeScores min-max normalizes pool scores into [0,1]. A constant-score
// pool normalizes to all-1s, letting the diversity term decide alone.
func normalizeScores(pool []Candidate) []float64 {
	minScore, maxScore := pool[0].Score, pool[0].Score
	for _, c := range pool[1:] {
		if c.Score < minScore {
			minScore = c.Score
		}
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}

	out := make([]float64, len(pool))
	span := maxScore - minScore
	for i, c := range pool {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = (c.Score - minScore) / span
	}
	return out
}
