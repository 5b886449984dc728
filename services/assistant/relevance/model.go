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

import (
	"math"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianAssist/services/assistant/textproc"
)

// =============================================================================
// Training Corpus Types
// =============================================================================

// RouteExamples is the training input for one route.
type RouteExamples struct {
	// Name is the route's enum tag.
	Name string

	// Utterances are positive training examples. Must be non-empty for the
	// route to produce non-zero scores.
	Utterances []string

	// NegativeUtterances are counter-examples; their centroids penalize
	// queries that resemble what this route should NOT handle.
	NegativeUtterances []string
}

// document is one tokenized training utterance.
type document struct {
	// wordTF is raw term frequency over word tokens (surface + stems + bigrams).
	wordTF Vector

	// length is the raw word token count, used by BM25 length normalization.
	length int
}

// routeVectors holds the trained state for one route: the four IDF-weighted
// centroids plus the individual positive documents (BM25 scores against the
// max over documents, not the centroid).
type routeVectors struct {
	name    string
	docs    []document
	word    Vector
	char    Vector
	negWord Vector
	negChar Vector
}

// =============================================================================
// Model
// =============================================================================

// Model is the trained vector space shared by the router's scorer.
//
// # Description
//
// Holds corpus-wide IDF tables (word space and char-trigram space) and one
// routeVectors per route. Rebuilt wholesale by Train on any route-set
// mutation — load, calibration, negative augmentation. There is no
// incremental update: full retrain bounds correctness risk at the cost of
// O(corpus) rebuild time, acceptable for a few hundred utterances.
//
// # Thread Safety
//
// Immutable after Train. Safe for concurrent use.
type Model struct {
	tok       *textproc.Tokenizer
	wordIDF   Vector
	charIDF   Vector
	avgDocLen float64
	routes    map[string]*routeVectors

	// routeNames is the sorted route list, for deterministic iteration.
	routeNames []string
}

// Train builds a Model from a full training corpus.
//
// # Description
//
// Computes document frequency per term across ALL example utterances
// (positive and negative, both routes' spaces share one IDF table), applies
// smoothed IDF ln((1+N)/(1+df)) + 1, and averages member document vectors
// into per-route centroids: positive word, positive char, negative word,
// negative char.
//
// # Inputs
//
//   - tok: Tokenizer carrying the locale tables. Must not be nil.
//   - examples: Training corpus, one entry per route. Routes with zero
//     utterances are kept but score 0 against everything.
//
// # Outputs
//
//   - *Model: The trained model. Never nil.
//
// # Thread Safety
//
// Train itself is pure; the returned Model is immutable.
func Train(tok *textproc.Tokenizer, examples []RouteExamples) *Model {
	m := &Model{
		tok:    tok,
		routes: make(map[string]*routeVectors, len(examples)),
	}

	type rawDoc struct {
		route    string
		negative bool
		wordTF   Vector
		charTF   Vector
		length   int
	}

	var docs []rawDoc
	wordDF := make(map[string]int)
	charDF := make(map[string]int)

	addDoc := func(route, text string, negative bool) {
		tokens := tok.Tokenize(text)
		words := tok.WithBigrams(tokens)
		grams := tok.CharTrigrams(text)
		d := rawDoc{
			route:    route,
			negative: negative,
			wordTF:   TermFreq(words),
			charTF:   TermFreq(grams),
			length:   len(tokens),
		}
		docs = append(docs, d)
		for term := range d.wordTF {
			wordDF[term]++
		}
		for gram := range d.charTF {
			charDF[gram]++
		}
	}

	for _, ex := range examples {
		m.routes[ex.Name] = &routeVectors{name: ex.Name}
		m.routeNames = append(m.routeNames, ex.Name)
		for _, u := range ex.Utterances {
			addDoc(ex.Name, u, false)
		}
		for _, u := range ex.NegativeUtterances {
			addDoc(ex.Name, u, true)
		}
	}
	sort.Strings(m.routeNames)

	n := len(docs)
	m.wordIDF = smoothedIDF(wordDF, n)
	m.charIDF = smoothedIDF(charDF, n)

	// Weight each document by IDF, accumulate centroids, and keep positive
	// documents for BM25.
	type centroidAcc struct {
		sum   Vector
		count int
	}
	accumulate := func(acc *centroidAcc, v Vector) {
		if acc.sum == nil {
			acc.sum = Vector{}
		}
		for term, w := range v {
			acc.sum[term] += w
		}
		acc.count++
	}
	mean := func(acc centroidAcc) Vector {
		if acc.count == 0 {
			return Vector{}
		}
		out := make(Vector, len(acc.sum))
		for term, w := range acc.sum {
			out[term] = w / float64(acc.count)
		}
		return out
	}

	accs := make(map[string]*[4]centroidAcc, len(examples))
	var totalLen, posDocs int

	for _, d := range docs {
		rv := m.routes[d.route]
		weightedWord := applyIDF(d.wordTF, m.wordIDF)
		weightedChar := applyIDF(d.charTF, m.charIDF)

		acc, ok := accs[d.route]
		if !ok {
			acc = &[4]centroidAcc{}
			accs[d.route] = acc
		}
		if d.negative {
			accumulate(&acc[2], weightedWord)
			accumulate(&acc[3], weightedChar)
			continue
		}
		accumulate(&acc[0], weightedWord)
		accumulate(&acc[1], weightedChar)
		rv.docs = append(rv.docs, document{wordTF: d.wordTF, length: d.length})
		totalLen += d.length
		posDocs++
	}

	for name, acc := range accs {
		rv := m.routes[name]
		rv.word = mean(acc[0])
		rv.char = mean(acc[1])
		rv.negWord = mean(acc[2])
		rv.negChar = mean(acc[3])
	}

	if posDocs > 0 {
		m.avgDocLen = float64(totalLen) / float64(posDocs)
	}

	return m
}

// smoothedIDF computes ln((1+N)/(1+df)) + 1 per term.
func smoothedIDF(df map[string]int, n int) Vector {
	idf := make(Vector, len(df))
	for term, freq := range df {
		idf[term] = math.Log(float64(1+n)/float64(1+freq)) + 1.0
	}
	return idf
}

// applyIDF multiplies raw term frequencies by IDF weights. Terms missing
// from the IDF table (impossible for training docs, possible for queries)
// fall back to the maximum-rarity weight ln(1+N)+1 implied by df=0 — but
// since queries use queryVector below, this branch only needs the table.
func applyIDF(tf Vector, idf Vector) Vector {
	out := make(Vector, len(tf))
	for term, freq := range tf {
		if w, ok := idf[term]; ok {
			out[term] = freq * w
		}
	}
	return out
}

// =============================================================================
// Query Features
// =============================================================================

// QueryFeatures is the per-query precomputation shared across all route
// scorings of a single call.
type QueryFeatures struct {
	// Normalized is the normalized text.
	Normalized string

	// Tokens is the surface+stem token stream (no bigrams).
	Tokens []string

	// TokenCount counts whitespace-delimited words of the normalized text,
	// for the alpha adaptation length heuristics.
	TokenCount int

	// Word is the IDF-weighted word vector (tokens + bigrams).
	Word Vector

	// Char is the IDF-weighted char-trigram vector.
	Char Vector

	// TermSet is the unique word-token set used by BM25.
	TermSet Set

	// NoiseRatio is the non-alphanumeric rune ratio of the normalized text.
	NoiseRatio float64
}

// Features tokenizes and vectorizes a query against the trained IDF tables.
//
// # Thread Safety
//
// Safe for concurrent use.
func (m *Model) Features(text string) QueryFeatures {
	normalized := textproc.Normalize(text)
	tokens := m.tok.Tokenize(text)
	words := m.tok.WithBigrams(tokens)
	grams := m.tok.CharTrigrams(text)

	return QueryFeatures{
		Normalized: normalized,
		Tokens:     tokens,
		TokenCount: len(strings.Fields(normalized)),
		Word:       applyIDF(TermFreq(words), m.wordIDF),
		Char:       applyIDF(TermFreq(grams), m.charIDF),
		TermSet:    NewSet(tokens),
		NoiseRatio: textproc.NonAlnumRatio(normalized),
	}
}

// RouteNames returns the sorted route names in the model.
func (m *Model) RouteNames() []string {
	out := make([]string, len(m.routeNames))
	copy(out, m.routeNames)
	return out
}

// HasRoute reports whether the model was trained with the given route.
func (m *Model) HasRoute(name string) bool {
	_, ok := m.routes[name]
	return ok
}

// Centroids exposes the four trained centroids for a route, primarily for
// persistence (centroid store) and inspection tooling.
//
// Returns zero-length vectors for an unknown route.
func (m *Model) Centroids(name string) (word, char, negWord, negChar Vector) {
	rv, ok := m.routes[name]
	if !ok {
		return Vector{}, Vector{}, Vector{}, Vector{}
	}
	return rv.word, rv.char, rv.negWord, rv.negChar
}
