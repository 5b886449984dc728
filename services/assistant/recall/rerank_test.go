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
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
)

// mmrCand builds a minimal candidate for rerank tests: the path doubles as
// its identity, the token set drives pairwise similarity.
func mmrCand(path string, score float64, tokens ...string) Candidate {
	set := relevance.NewSet(tokens)
	return Candidate{
		Line:    MemoryLine{Path: path, TokenSet: set},
		Score:   score,
		Snippet: path,
		simSet:  set,
	}
}

func paths(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Line.Path
	}
	return out
}

// =============================================================================
// MMR Rerank Tests
// =============================================================================

func TestMMRRerank_PreservesMembers(t *testing.T) {
	in := []Candidate{
		mmrCand("a.md", 1.0, "uno", "dos"),
		mmrCand("b.md", 0.9, "uno", "dos"),
		mmrCand("c.md", 0.8, "tres"),
		mmrCand("d.md", 0.7, "cuatro"),
		mmrCand("e.md", 0.6, "cinco"),
	}
	out := mmrRerank(in, 1)
	if len(out) != len(in) {
		t.Fatalf("length changed: got %d, want %d", len(out), len(in))
	}
	seen := make(map[string]bool, len(out))
	for _, c := range out {
		seen[c.Line.Path] = true
	}
	for _, c := range in {
		if !seen[c.Line.Path] {
			t.Errorf("candidate %s lost in rerank", c.Line.Path)
		}
	}
}

func TestMMRRerank_TopCandidateStaysFirst(t *testing.T) {
	in := []Candidate{
		mmrCand("a.md", 1.0, "uno"),
		mmrCand("b.md", 0.9, "dos"),
		mmrCand("c.md", 0.8, "tres"),
	}
	out := mmrRerank(in, 2)
	if out[0].Line.Path != "a.md" {
		t.Errorf("top candidate displaced: first is %s", out[0].Line.Path)
	}
}

func TestMMRRerank_DiversityDemotesNearDuplicate(t *testing.T) {
	// b duplicates a's token set; c is distinct with slightly lower raw
	// score. Diversity must pull c ahead of b.
	in := []Candidate{
		mmrCand("a.md", 1.00, "equipo", "boca", "futbol"),
		mmrCand("b.md", 0.90, "equipo", "boca", "futbol"),
		mmrCand("c.md", 0.88, "proyecto", "atlas", "plazo"),
		mmrCand("d.md", 0.50, "clima", "lluvia"),
	}
	out := mmrRerank(in, 2)
	want := []string{"a.md", "c.md", "b.md", "d.md"}
	got := paths(out)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestMMRRerank_ShortInputsPassThrough(t *testing.T) {
	if out := mmrRerank(nil, 5); len(out) != 0 {
		t.Errorf("nil input produced %d candidates", len(out))
	}
	single := []Candidate{mmrCand("a.md", 1.0, "uno")}
	out := mmrRerank(single, 5)
	if len(out) != 1 || out[0].Line.Path != "a.md" {
		t.Errorf("single-candidate input altered: %v", paths(out))
	}
}

func TestMMRRerank_BeyondPoolKeepsRawOrder(t *testing.T) {
	// Pool is limit×4 = 4; e and f sit beyond it and must trail in their
	// original order.
	in := []Candidate{
		mmrCand("a.md", 1.0, "uno"),
		mmrCand("b.md", 0.9, "dos"),
		mmrCand("c.md", 0.8, "tres"),
		mmrCand("d.md", 0.7, "cuatro"),
		mmrCand("e.md", 0.6, "cinco"),
		mmrCand("f.md", 0.5, "seis"),
	}
	out := mmrRerank(in, 1)
	got := paths(out)
	if got[len(got)-2] != "e.md" || got[len(got)-1] != "f.md" {
		t.Errorf("beyond-pool tail reordered: %v", got)
	}
}

// =============================================================================
// Score Normalization Tests
// =============================================================================

func TestNormalizeScores_MinMax(t *testing.T) {
	pool := []Candidate{
		mmrCand("a.md", 3.0, "uno"),
		mmrCand("b.md", 2.0, "dos"),
		mmrCand("c.md", 1.0, "tres"),
	}
	got := normalizeScores(pool)
	want := []float64{1.0, 0.5, 0.0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("normalized[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNormalizeScores_ConstantPool(t *testing.T) {
	pool := []Candidate{
		mmrCand("a.md", 0.5, "uno"),
		mmrCand("b.md", 0.5, "dos"),
	}
	for i, v := range normalizeScores(pool) {
		if v != 1 {
			t.Errorf("normalized[%d] = %v, want 1 for a constant pool", i, v)
		}
	}
}
