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
	"strings"
	"testing"
)

func testScorer() *Scorer {
	return NewScorer(Train(testTokenizer(), testExamples()), 0, []string{"correo", "email", "busca"})
}

// =============================================================================
// Hybrid Score Tests
// =============================================================================

func TestScore_BoundsAcrossInputs(t *testing.T) {
	s := testScorer()
	inputs := []string{
		"enviame un correo a x@y.com",
		"busca en internet el clima",
		"asdkj qpwoe",
		"",
		strings.Repeat("correo ", 40),
	}
	for _, in := range inputs {
		q := s.Features(in)
		for _, route := range s.Model().RouteNames() {
			rs := s.Score(q, route, nil, 0)
			if rs.Hybrid < 0 || rs.Hybrid > 1 {
				t.Errorf("hybrid score out of [0,1] for %q/%s: %v", in, route, rs.Hybrid)
			}
			if rs.BM25 < 0 || rs.BM25 >= 1 {
				t.Errorf("saturated BM25 out of [0,1) for %q/%s: %v", in, route, rs.BM25)
			}
		}
	}
}

func TestScore_MatchingRouteWins(t *testing.T) {
	s := testScorer()
	q := s.Features("enviame un correo")
	gmail := s.Score(q, "gmail", nil, 0)
	web := s.Score(q, "web", nil, 0)
	if gmail.Hybrid <= web.Hybrid {
		t.Errorf("expected gmail to outscore web: gmail=%v web=%v", gmail.Hybrid, web.Hybrid)
	}
}

func TestScore_UnknownRouteScoresZero(t *testing.T) {
	s := testScorer()
	q := s.Features("enviame un correo")
	rs := s.Score(q, "nonexistent", nil, 0)
	if rs.Hybrid != 0 {
		t.Errorf("unknown route hybrid = %v, want 0", rs.Hybrid)
	}
}

func TestScore_BoostIsAdditive(t *testing.T) {
	s := testScorer()
	q := s.Features("busca en internet")
	plain := s.Score(q, "web", nil, 0)
	boosted := s.Score(q, "web", nil, 0.1)
	if boosted.Hybrid <= plain.Hybrid {
		t.Errorf("expected boost to raise score: plain=%v boosted=%v", plain.Hybrid, boosted.Hybrid)
	}
}

func TestScore_NegativeExamplesPenalize(t *testing.T) {
	// gmail carries "busca correo en la web" as a negative: a query shaped
	// like it should score lower against gmail than the same query with the
	// negatives absent.
	tok := testTokenizer()
	withNeg := NewScorer(Train(tok, testExamples()), 0, nil)

	noNegExamples := testExamples()
	noNegExamples[0].NegativeUtterances = nil
	withoutNeg := NewScorer(Train(tok, noNegExamples), 0, nil)

	query := "busca correo en la web"
	a := withNeg.Score(withNeg.Features(query), "gmail", nil, 0)
	b := withoutNeg.Score(withoutNeg.Features(query), "gmail", nil, 0)
	if a.Hybrid >= b.Hybrid {
		t.Errorf("expected negative centroid to lower the score: with=%v without=%v", a.Hybrid, b.Hybrid)
	}
}

// =============================================================================
// Adaptive Alpha Tests
// =============================================================================

func TestAdaptAlpha_ShortQueryRaises(t *testing.T) {
	s := testScorer()
	// "internet ahora" — two words, no signal keyword.
	q := s.Features("internet ahora")
	rs := s.Score(q, "web", nil, 0)
	want := defaultHybridAlpha + shortQueryBonus
	if rs.Alpha != want {
		t.Errorf("alpha = %v, want %v", rs.Alpha, want)
	}
}

func TestAdaptAlpha_SignalKeywordRaises(t *testing.T) {
	s := testScorer()
	// Five words (not short), contains the signal keyword "correo".
	q := s.Features("quiero revisar todo mi correo")
	rs := s.Score(q, "gmail", nil, 0)
	want := defaultHybridAlpha + signalKeywordBonus
	if rs.Alpha != want {
		t.Errorf("alpha = %v, want %v", rs.Alpha, want)
	}
}

func TestAdaptAlpha_LongQueryLowers(t *testing.T) {
	s := testScorer()
	q := s.Features(strings.Repeat("palabra ", longQueryTokens))
	rs := s.Score(q, "web", nil, 0)
	want := defaultHybridAlpha - longQueryPenalty
	if rs.Alpha != want {
		t.Errorf("alpha = %v, want %v", rs.Alpha, want)
	}
}

func TestAdaptAlpha_AlwaysInDomain(t *testing.T) {
	s := testScorer()
	high := 0.94
	q := s.Features("correo ya") // short + signal keyword, both bonuses
	rs := s.Score(q, "gmail", &high, 0)
	if rs.Alpha < alphaMin || rs.Alpha > alphaMax {
		t.Errorf("alpha out of domain: %v", rs.Alpha)
	}
}

func TestScore_AlphaOverridePrecedesAdaptation(t *testing.T) {
	s := testScorer()
	low := 0.2
	q := s.Features("internet ahora") // short query: +0.08 adaptation
	rs := s.Score(q, "web", &low, 0)
	want := low + shortQueryBonus
	if rs.Alpha != want {
		t.Errorf("alpha = %v, want override %v + short bonus", rs.Alpha, want)
	}
}
