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
	"math"
	"strings"

	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
)

// =============================================================================
// Scan Backend
// =============================================================================
//
// The scan backend is the always-works floor: pure lexical heuristics over
// the line's token set and path, no corpus statistics required. It is both a
// selectable backend and the fallback target when the hybrid backend fails.

// Scan heuristic weights. Term bonuses scale with term length — longer terms
// are rarer and more discriminative in short conversational lines.
const (
	scanSubstringBonus     = 2.0
	scanTermBonusBase      = 0.2
	scanTermBonusPerRune   = 0.04
	scanTermBonusCap       = 0.6
	scanFullCoverageBonus  = 1.0
	scanContinuityBonus    = 0.75
	scanLongTermFileBonus  = 0.5
	scanChatMatchBonus     = 0.6
	scanSubstringMinLength = 3
)

// queryContext carries one query's precomputed lexical features through the
// scoring backends.
type queryContext struct {
	Normalized string
	Terms      []string
	TermSet    relevance.Set
	TrigramSet relevance.Set
	ChatID     string
}

// scanScore computes the heuristic relevance of one line, temporal decay
// included.
func scanScore(q queryContext, line MemoryLine) float64 {
	score := 0.0

	if len([]rune(q.Normalized)) >= scanSubstringMinLength &&
		strings.Contains(line.Normalized, q.Normalized) {
		score += scanSubstringBonus
	}

	matched := 0
	for term := range q.TermSet {
		if _, ok := line.TokenSet[term]; !ok {
			continue
		}
		matched++
		bonus := scanTermBonusBase + scanTermBonusPerRune*float64(len([]rune(term)))
		if bonus > scanTermBonusCap {
			bonus = scanTermBonusCap
		}
		score += bonus
	}
	if matched > 0 && matched == len(q.TermSet) {
		score += scanFullCoverageBonus
	}

	score += pathBonus(line.Path)
	if chatMatches(q.ChatID, line) {
		score += scanChatMatchBonus
	}

	return score * decayMultiplier(line.AgeDays)
}

// pathBonus favors curated sources: continuity snapshots summarize a whole
// chat, the long-term file holds durable facts.
func pathBonus(path string) float64 {
	switch {
	case strings.HasSuffix(path, continuityFileName):
		return scanContinuityBonus
	case path == longTermFileName:
		return scanLongTermFileBonus
	default:
		return 0
	}
}

// chatMatches reports whether a line belongs to the query's chat, via the
// line's chatId metadata or its chat directory path.
func chatMatches(chatID string, line MemoryLine) bool {
	if chatID == "" {
		return false
	}
	if v, ok := line.Metadata["chatId"]; ok {
		if s, ok := v.(string); ok && s == chatID {
			return true
		}
	}
	return strings.Contains(line.Path, chatsDirName+"/"+chatDirPrefix+chatID+"/")
}

// decayMultiplier implements half-life temporal decay:
//
//	multiplier = 0.65 + 0.35·e^(−ln2·ageDays/21)
//
// Today's content scores ×1.0, 21-day-old content ×0.825, and the floor
// of 0.65 keeps arbitrarily old durable facts recallable.
func decayMultiplier(ageDays float64) float64 {
	if ageDays <= 0 {
		return 1.0
	}
	return decayFloor + decaySpan*math.Exp(-math.Ln2*ageDays/halfLifeDays)
}

// scanBackend scores every corpus line with the heuristic scorer.
func scanBackend(q queryContext, lines []MemoryLine) []Candidate {
	out := make([]Candidate, 0, len(lines))
	for _, line := range lines {
		score := scanScore(q, line)
		if score <= 0 {
			continue
		}
		out = append(out, newCandidate(line, score))
	}
	return out
}
