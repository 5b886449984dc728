// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package textproc

import (
	"strings"
	"unicode"
)

// =============================================================================
// Tokenizer
// =============================================================================

// minTokenLen is the minimum rune length for an extracted token.
// Single characters carry no routing signal and inflate the vocabulary.
const minTokenLen = 2

// minStemLen is the minimum rune length a stem must retain after suffix
// stripping. Stripping below this produces degenerate stems ("com" from
// "comiendo" is useful; "c" is not).
const minStemLen = 3

// allowedSymbols are non-alphanumeric runes kept inside a token run.
// Chosen so emails (x@y.com), handles (@user) and hyphenated/underscored
// identifiers survive tokenization as single terms.
var allowedSymbols = map[rune]bool{
	'@': true, '.': true, '_': true, '-': true, '#': true,
}

// Tokenizer extracts search terms from free-form conversational text.
//
// # Description
//
// Tokenization runs over Normalize output and emits, per surface token, the
// token itself plus a heuristic Spanish stem (longest matching suffix from
// an ordered table, stripped only when the remainder keeps minStemLen runes).
// Both forms are emitted so that "reuniones" matches "reunion" without
// losing exact-form signal.
//
// The stopword set and suffix table are injected as data, not hard-coded,
// so they are independently testable and swappable per locale.
//
// # Thread Safety
//
// Immutable after construction via NewTokenizer. Safe for concurrent use.
type Tokenizer struct {
	// stopwords maps normalized stopwords to be dropped from token streams.
	stopwords map[string]bool

	// suffixes is the ordered suffix table, longest-first. Only the first
	// matching suffix is stripped.
	suffixes []string
}

// NewTokenizer creates a Tokenizer from locale rule tables.
//
// # Description
//
// Stopwords are normalized through Normalize so callers may supply accented
// forms. The suffix table is sorted longest-first internally, so callers do
// not need to maintain ordering.
//
// # Inputs
//
//   - stopwords: Words to drop from token streams. May be empty.
//   - suffixes: Suffixes for heuristic stemming. May be empty (disables stemming).
//
// # Outputs
//
//   - *Tokenizer: The constructed tokenizer. Never nil.
//
// # Thread Safety
//
// The returned Tokenizer is safe for concurrent use.
func NewTokenizer(stopwords []string, suffixes []string) *Tokenizer {
	stop := make(map[string]bool, len(stopwords))
	for _, w := range stopwords {
		if n := Normalize(w); n != "" {
			stop[n] = true
		}
	}

	ordered := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		if n := Normalize(s); n != "" {
			ordered = append(ordered, n)
		}
	}
	// Longest-first: "ciones" must win over "es" over "s".
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && len(ordered[j]) > len(ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	return &Tokenizer{stopwords: stop, suffixes: ordered}
}

// Tokenize extracts tokens and stems from raw text.
//
// # Description
//
// Normalizes, splits into runs of letters/digits/allowedSymbols, drops runs
// shorter than minTokenLen and stopwords, and appends the stem of each
// surviving token when it differs from the surface form. Output order is
// deterministic: surface tokens in text order, each immediately followed by
// its stem (if any).
//
// # Inputs
//
//   - text: Raw input text. May be empty.
//
// # Outputs
//
//   - []string: Token stream. Empty slice when nothing survives filtering.
//
// # Thread Safety
//
// Safe for concurrent use.
func (t *Tokenizer) Tokenize(text string) []string {
	runs := splitRuns(Normalize(text))

	tokens := make([]string, 0, len(runs)*2)
	for _, run := range runs {
		// Trim allowed symbols from the edges: "hola." → "hola", but keep
		// interior occurrences so "x@y.com" stays whole.
		run = strings.Trim(run, "@._-#")
		if len([]rune(run)) < minTokenLen {
			continue
		}
		if t.stopwords[run] {
			continue
		}
		tokens = append(tokens, run)
		if stem := t.Stem(run); stem != run {
			tokens = append(tokens, stem)
		}
	}
	return tokens
}

// Stem strips the longest matching suffix from the ordered table.
//
// # Description
//
// At most one suffix is stripped, and only when the remaining stem retains
// at least minStemLen runes. Tokens that match no suffix are returned
// unchanged.
//
// # Inputs
//
//   - token: A normalized token.
//
// # Outputs
//
//   - string: The stem, or the token itself when no suffix applies.
//
// # Thread Safety
//
// Safe for concurrent use.
func (t *Tokenizer) Stem(token string) string {
	for _, suffix := range t.suffixes {
		if !strings.HasSuffix(token, suffix) {
			continue
		}
		rest := token[:len(token)-len(suffix)]
		if len([]rune(rest)) >= minStemLen {
			return rest
		}
	}
	return token
}

// WithBigrams appends adjacent-pair tokens to a token stream.
//
// # Description
//
// For tokens [a b c] the output is [a b c a_b b_c]. Bigrams capture short
// phrases ("enviar correo") that carry more routing signal than either word
// alone. The input slice is not modified.
//
// # Inputs
//
//   - tokens: A token stream, typically Tokenize output.
//
// # Outputs
//
//   - []string: Tokens plus bigrams. Input with <2 tokens is returned as a copy.
//
// # Thread Safety
//
// Safe for concurrent use.
func (t *Tokenizer) WithBigrams(tokens []string) []string {
	out := make([]string, len(tokens), len(tokens)*2)
	copy(out, tokens)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+"_"+tokens[i+1])
	}
	return out
}

// CharTrigrams emits all overlapping 3-rune windows of the text.
//
// # Description
//
// The text is normalized and whitespace runs are collapsed to a single
// underscore before windowing, so "enviar correo" yields trigrams spanning
// the word boundary ("r_c"). Trigram matching is the typo-tolerance channel:
// "coreo" and "correo" share most trigrams despite the misspelling.
//
// # Inputs
//
//   - text: Raw input text.
//
// # Outputs
//
//   - []string: Overlapping trigrams in order. Texts shorter than 3 runes
//     yield an empty slice.
//
// # Thread Safety
//
// Safe for concurrent use.
func (t *Tokenizer) CharTrigrams(text string) []string {
	joined := strings.Join(strings.Fields(Normalize(text)), "_")
	runes := []rune(joined)
	if len(runes) < 3 {
		return nil
	}
	grams := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+3]))
	}
	return grams
}

// =============================================================================
// Helpers
// =============================================================================

// splitRuns splits normalized text into maximal runs of letters, digits,
// and allowed symbols.
func splitRuns(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !allowedSymbols[r]
	})
}
