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
	"errors"
	"math"

	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
)

// =============================================================================
// Hybrid Backend
// =============================================================================
//
// The hybrid backend layers two corpus-statistical signals on top of the
// scan heuristic:
//
//	score = scan + saturatedBM25 + semanticOverlap (gated above the floor)
//	semanticOverlap = 0.65·tokenJaccard + 0.35·charTrigramJaccard
//
// "Semantic" is a lexical-overlap proxy, not an embedding — thresholds and
// downstream tuning assume this score distribution, so the proxy must not
// be silently upgraded to real embeddings.

// BM25 parameters for the per-query line corpus. Same shape as the routing
// model's, tuned independently because line corpora are larger and noisier
// than route utterance sets.
const (
	hybridBM25K1 = 1.3
	hybridBM25B  = 0.75
)

// errNoLexicalFeatures signals a query the hybrid backend cannot score:
// no tokens survived the stopword filter and no trigrams exist. The scan
// backend still handles these via raw substring matching.
var errNoLexicalFeatures = errors.New("hybrid backend: query has no lexical features")

// hybridBackend scores every corpus line with scan + BM25 + gated overlap.
//
// # Description
//
// Corpus statistics (document frequency, average line length) are computed
// fresh over the candidate lines — the corpus is per-query, so there is
// nothing to cache. Scan's temporal decay applies to the heuristic component
// only; BM25 and overlap measure content relevance independent of age.
//
// # Outputs
//
//   - []Candidate: Scored candidates, unsorted.
//   - error: errNoLexicalFeatures for unscorable queries.
func hybridBackend(e *Engine, q queryContext, lines []MemoryLine) ([]Candidate, error) {
	if len(q.TermSet) == 0 && len(q.TrigramSet) == 0 {
		return nil, errNoLexicalFeatures
	}

	idf, avgLen := corpusStats(lines)

	out := make([]Candidate, 0, len(lines))
	for _, line := range lines {
		score := scanScore(q, line)
		score += relevance.SaturateBM25(lineBM25(q.TermSet, line, idf, avgLen))

		overlap := tokenJaccardWeight*relevance.Jaccard(q.TermSet, line.TokenSet) +
			charJaccardWeight*relevance.Jaccard(q.TrigramSet, e.lineTrigrams(line))
		if overlap >= semanticFloor {
			score += overlap
		}

		if score <= 0 {
			continue
		}
		out = append(out, newCandidate(line, score))
	}
	return out, nil
}

// corpusStats computes smoothed IDF per term and the average token length
// over the candidate lines.
func corpusStats(lines []MemoryLine) (relevance.Vector, float64) {
	df := make(map[string]int)
	totalLen := 0
	docs := 0
	for _, line := range lines {
		if len(line.Tokens) == 0 {
			continue
		}
		docs++
		totalLen += len(line.Tokens)
		for term := range line.TokenSet {
			df[term]++
		}
	}

	idf := make(relevance.Vector, len(df))
	for term, n := range df {
		idf[term] = math.Log(float64(1+docs)/float64(1+n)) + 1
	}

	avgLen := 0.0
	if docs > 0 {
		avgLen = float64(totalLen) / float64(docs)
	}
	return idf, avgLen
}

// lineBM25 computes the raw Okapi BM25 score of one line against the query
// term set.
func lineBM25(queryTerms relevance.Set, line MemoryLine, idf relevance.Vector, avgLen float64) float64 {
	if len(line.Tokens) == 0 || avgLen == 0 {
		return 0
	}
	lengthNorm := hybridBM25K1 * (1 - hybridBM25B + hybridBM25B*float64(len(line.Tokens))/avgLen)

	score := 0.0
	for term := range queryTerms {
		tf := line.TokenFreq[term]
		if tf == 0 {
			continue
		}
		score += idf[term] * tf * (hybridBM25K1 + 1) / (tf + lengthNorm)
	}
	return score
}

// lineTrigrams returns the char-trigram set of a line's raw text.
func (e *Engine) lineTrigrams(line MemoryLine) relevance.Set {
	return relevance.NewSet(e.tok.CharTrigrams(line.Raw))
}
