// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package textproc provides the text normalization and tokenization
// primitives shared by the intent router and the memory recall engine.
//
// All functions in this package are pure: the same input always produces
// the same output, with no hidden state. This property is load-bearing —
// both the router's decision cache and the recall engine's dedup step key
// off normalized text, so normalization must be deterministic.
package textproc

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticStripper decomposes to NFD, removes combining marks (Mn), and
// recomposes. "café" → "cafe", "años" → "anos". Built once; transform
// chains are stateless and safe for concurrent use via transform.String.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize strips diacritics and lowercases the input.
//
// # Description
//
// Unicode NFD decomposition followed by combining-mark removal, then
// lowercasing and whitespace trimming. This is the canonical text form used
// everywhere downstream: cache keys, dedup keys, and all token extraction
// start from Normalize output.
//
// # Inputs
//
//   - text: Raw input text. May be empty.
//
// # Outputs
//
//   - string: The normalized form. Empty input yields "".
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
func Normalize(text string) string {
	stripped, _, err := transform.String(diacriticStripper, text)
	if err != nil {
		// A malformed UTF-8 sequence should not reject the whole input;
		// fall back to the raw text and let tokenization drop the bad runes.
		stripped = text
	}
	return strings.ToLower(strings.TrimSpace(stripped))
}

// NonAlnumRatio reports the fraction of non-whitespace runes that are
// neither letters nor digits.
//
// # Description
//
// Used by the hybrid scorer's adaptive alpha: noisy inputs (emoji runs,
// markup, code fragments) shift weight away from exact word matching and
// toward character-trigram matching.
//
// # Inputs
//
//   - text: Any text, typically already normalized.
//
// # Outputs
//
//   - float64: Ratio in [0,1]. Empty or all-whitespace input yields 0.
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
func NonAlnumRatio(text string) float64 {
	total := 0
	noisy := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			noisy++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(noisy) / float64(total)
}
