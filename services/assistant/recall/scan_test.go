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
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
	"github.com/AleutianAI/AleutianAssist/services/assistant/textproc"
)

// =============================================================================
// Fixtures
// =============================================================================

func testRecallTokenizer() *textproc.Tokenizer {
	return textproc.NewTokenizer(
		[]string{"el", "la", "un", "de", "en", "es", "mi"},
		[]string{"ciones", "cion", "es", "s"},
	)
}

func testQuery(text, chatID string) queryContext {
	tok := testRecallTokenizer()
	terms := tok.Tokenize(text)
	return queryContext{
		Normalized: textproc.Normalize(text),
		Terms:      terms,
		TermSet:    relevance.NewSet(terms),
		TrigramSet: relevance.NewSet(tok.CharTrigrams(text)),
		ChatID:     chatID,
	}
}

func testLine(path, text string, ageDays float64) MemoryLine {
	tok := testRecallTokenizer()
	tokens := tok.Tokenize(text)
	return MemoryLine{
		Path:       path,
		LineNumber: 1,
		Raw:        text,
		Normalized: textproc.Normalize(text),
		AgeDays:    ageDays,
		Tokens:     tokens,
		TokenSet:   relevance.NewSet(tokens),
		TokenFreq:  relevance.TermFreq(tokens),
	}
}

// =============================================================================
// Temporal Decay Tests
// =============================================================================

func TestDecayMultiplier(t *testing.T) {
	if got := decayMultiplier(0); got != 1.0 {
		t.Errorf("fresh content: got %v, want 1.0", got)
	}
	if got := decayMultiplier(-3); got != 1.0 {
		t.Errorf("future-dated content: got %v, want 1.0", got)
	}
	// At exactly one half-life: floor + span/2.
	if got, want := decayMultiplier(halfLifeDays), decayFloor+decaySpan/2; math.Abs(got-want) > 1e-9 {
		t.Errorf("half-life: got %v, want %v", got, want)
	}
	// Very old content approaches the floor but never drops below it.
	if got := decayMultiplier(10000); got < decayFloor || got > decayFloor+1e-6 {
		t.Errorf("ancient content: got %v, want ~%v", got, decayFloor)
	}
}

func TestDecayMultiplier_MonotoneNonIncreasing(t *testing.T) {
	prev := decayMultiplier(0)
	for _, age := range []float64{1, 7, 21, 60, 365} {
		got := decayMultiplier(age)
		if got > prev {
			t.Errorf("decay increased at age %v: %v > %v", age, got, prev)
		}
		prev = got
	}
}

// =============================================================================
// Heuristic Component Tests
// =============================================================================

func TestPathBonus(t *testing.T) {
	if got := pathBonus("chats/chat-7/CONTINUITY.md"); got != scanContinuityBonus {
		t.Errorf("continuity: got %v, want %v", got, scanContinuityBonus)
	}
	if got := pathBonus("MEMORY.md"); got != scanLongTermFileBonus {
		t.Errorf("long-term file: got %v, want %v", got, scanLongTermFileBonus)
	}
	if got := pathBonus("2026-08-19.md"); got != 0 {
		t.Errorf("dated file: got %v, want 0", got)
	}
}

func TestChatMatches(t *testing.T) {
	line := testLine("chats/chat-42/2026-08-19.md", "hola mundo", 1)
	if !chatMatches("42", line) {
		t.Error("expected a path-based chat match")
	}
	if chatMatches("7", line) {
		t.Error("matched the wrong chat via path")
	}
	if chatMatches("", line) {
		t.Error("empty chat scope must never match")
	}

	tagged := testLine("MEMORY.md", "hola mundo", 0)
	tagged.Metadata = map[string]any{"chatId": "42"}
	if !chatMatches("42", tagged) {
		t.Error("expected a metadata-based chat match")
	}
	if chatMatches("43", tagged) {
		t.Error("matched the wrong chat via metadata")
	}
}

func TestScanScore_SubstringOutweighsTermMatches(t *testing.T) {
	q := testQuery("equipo favorito", "")
	exact := testLine("2026-08-19.md", "mi equipo favorito es boca juniors", 0)
	partial := testLine("2026-08-19.md", "el equipo necesita otro favorito distinto claramente", 0)

	se, sp := scanScore(q, exact), scanScore(q, partial)
	if se <= sp {
		t.Errorf("expected the substring match to outscore scattered terms: exact=%v partial=%v", se, sp)
	}
}

func TestScanScore_FullCoverageBonus(t *testing.T) {
	q := testQuery("equipo boca", "")
	full := testLine("2026-08-19.md", "equipo boca gano ayer", 0)
	half := testLine("2026-08-19.md", "equipo argentino gano ayer", 0)

	if sf, sh := scanScore(q, full), scanScore(q, half); sf-sh < scanFullCoverageBonus {
		t.Errorf("full term coverage not rewarded: full=%v half=%v", sf, sh)
	}
}

func TestScanScore_DecayDampsOldContent(t *testing.T) {
	q := testQuery("proyecto atlas", "")
	fresh := testLine("2026-08-19.md", "avance del proyecto atlas", 0)
	old := testLine("2026-01-02.md", "avance del proyecto atlas", 200)

	sf, so := scanScore(q, fresh), scanScore(q, old)
	if so >= sf {
		t.Errorf("old content not damped: fresh=%v old=%v", sf, so)
	}
	// The floor keeps old durable facts recallable.
	if so < sf*decayFloor-1e-9 {
		t.Errorf("decay dropped below the floor: fresh=%v old=%v", sf, so)
	}
}

func TestScanScore_ChatBonusIsScoped(t *testing.T) {
	q := testQuery("resumen pendiente", "42")
	inChat := testLine("chats/chat-42/2026-08-19.md", "resumen pendiente de revision", 0)
	outChat := testLine("2026-08-19.md", "resumen pendiente de revision", 0)

	if si, so := scanScore(q, inChat), scanScore(q, outChat); si-so < scanChatMatchBonus-1e-9 {
		t.Errorf("chat-scoped line not favored: in=%v out=%v", si, so)
	}
}

// =============================================================================
// Scan Backend Tests
// =============================================================================

func TestScanBackend_SkipsIrrelevantLines(t *testing.T) {
	q := testQuery("proyecto atlas", "")
	lines := []MemoryLine{
		testLine("2026-08-19.md", "avance del proyecto atlas", 0),
		testLine("2026-08-19.md", "sin relacion alguna aqui", 0),
	}
	out := scanBackend(q, lines)
	if len(out) != 1 {
		t.Fatalf("got %d candidates, want 1", len(out))
	}
	if out[0].Line.Raw != "avance del proyecto atlas" {
		t.Errorf("kept the wrong line: %q", out[0].Line.Raw)
	}
	if out[0].Score <= 0 {
		t.Errorf("candidate score = %v, want > 0", out[0].Score)
	}
}

func TestScanBackend_HandlesFeaturelessQueries(t *testing.T) {
	// Queries with no tokens and no trigrams are exactly what the hybrid
	// backend rejects; scan must still run them without panicking. "z!"
	// normalizes to two runes: too short for a trigram, and the single-letter
	// run is below the token minimum.
	q := testQuery("z!", "")
	lines := []MemoryLine{
		testLine("MEMORY.md", "el usuario prefiere respuestas breves", 0),
		testLine("2026-08-19.md", "avance del proyecto atlas", 0),
	}
	out := scanBackend(q, lines)
	// Only the curated long-term line carries a positive (path bonus) score.
	for _, c := range out {
		if c.Line.Path != longTermFileName {
			t.Errorf("unexpected candidate from %s for a featureless query", c.Line.Path)
		}
	}
}
