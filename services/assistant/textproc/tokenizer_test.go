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
	"reflect"
	"testing"
)

// =============================================================================
// Normalize Tests
// =============================================================================

func TestNormalize_StripsDiacriticsAndLowercases(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Café", "cafe"},
		{"AÑOS", "anos"},
		{"  Reunión Mañana  ", "reunion manana"},
		{"ya normalizado", "ya normalizado"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	in := "Envíame un Correo Ágil"
	first := Normalize(in)
	for i := 0; i < 10; i++ {
		if got := Normalize(in); got != first {
			t.Fatalf("Normalize not deterministic: %q vs %q", got, first)
		}
	}
}

func TestNonAlnumRatio(t *testing.T) {
	if got := NonAlnumRatio(""); got != 0 {
		t.Errorf("empty input: got %v, want 0", got)
	}
	if got := NonAlnumRatio("hola mundo"); got != 0 {
		t.Errorf("clean text: got %v, want 0", got)
	}
	// "!!!!" — every non-space rune is noisy.
	if got := NonAlnumRatio("!!!!"); got != 1 {
		t.Errorf("all-symbol text: got %v, want 1", got)
	}
	// "ab!!" — 2 of 4 runes noisy.
	if got := NonAlnumRatio("ab!!"); got != 0.5 {
		t.Errorf("half-noisy text: got %v, want 0.5", got)
	}
}

// =============================================================================
// Tokenize Tests
// =============================================================================

func newTestTokenizer() *Tokenizer {
	return NewTokenizer(
		[]string{"el", "la", "un", "de", "a"},
		[]string{"ciones", "cion", "mente", "ado", "ido", "es", "s"},
	)
}

func TestTokenize_DropsStopwordsAndShortRuns(t *testing.T) {
	tok := newTestTokenizer()
	got := tok.Tokenize("el perro y la casa")
	// "el", "la" are stopwords; "y" is below minTokenLen.
	want := []string{"perro", "casa"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenize_EmitsSurfaceFormAndStem(t *testing.T) {
	tok := newTestTokenizer()
	got := tok.Tokenize("reuniones")
	// Surface form first, then the stem ("es" stripped).
	want := []string{"reuniones", "reunion"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenize_KeepsEmailsWhole(t *testing.T) {
	tok := newTestTokenizer()
	got := tok.Tokenize("escribe a x@y.com ahora")
	found := false
	for _, tk := range got {
		if tk == "x@y.com" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected x@y.com to survive tokenization, got %v", got)
	}
}

func TestTokenize_TrimsEdgeSymbols(t *testing.T) {
	tok := newTestTokenizer()
	got := tok.Tokenize("hola. mundo-")
	want := []string{"hola", "mundo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	tok := newTestTokenizer()
	in := "enviame un correo con las reuniones de manana"
	first := tok.Tokenize(in)
	for i := 0; i < 10; i++ {
		if got := tok.Tokenize(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("Tokenize not deterministic: %v vs %v", got, first)
		}
	}
}

// =============================================================================
// Stem Tests
// =============================================================================

func TestStem_LongestSuffixWins(t *testing.T) {
	tok := newTestTokenizer()
	// "ciones" must be stripped before "es" gets a chance.
	if got := tok.Stem("canciones"); got != "can" {
		t.Errorf("Stem(canciones) = %q, want %q", got, "can")
	}
}

func TestStem_RequiresMinRemainder(t *testing.T) {
	tok := newTestTokenizer()
	// Stripping "es" from "mes" would leave one rune; the suffix "s" leaves
	// two. Neither meets minStemLen, so the token is unchanged.
	if got := tok.Stem("mes"); got != "mes" {
		t.Errorf("Stem(mes) = %q, want unchanged", got)
	}
}

func TestStem_NoMatchingSuffix(t *testing.T) {
	tok := newTestTokenizer()
	if got := tok.Stem("boca"); got != "boca" {
		t.Errorf("Stem(boca) = %q, want unchanged", got)
	}
}

// =============================================================================
// Bigram / Trigram Tests
// =============================================================================

func TestWithBigrams(t *testing.T) {
	tok := newTestTokenizer()
	got := tok.WithBigrams([]string{"enviar", "correo", "urgente"})
	want := []string{"enviar", "correo", "urgente", "enviar_correo", "correo_urgente"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWithBigrams_SingleToken(t *testing.T) {
	tok := newTestTokenizer()
	got := tok.WithBigrams([]string{"hola"})
	if !reflect.DeepEqual(got, []string{"hola"}) {
		t.Errorf("got %v, want [hola]", got)
	}
}

func TestCharTrigrams_SpansWordBoundaries(t *testing.T) {
	tok := newTestTokenizer()
	got := tok.CharTrigrams("ab cd")
	// Space collapses to underscore: "ab_cd" → ab_, b_c, _cd.
	want := []string{"ab_", "b_c", "_cd"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCharTrigrams_ShortInput(t *testing.T) {
	tok := newTestTokenizer()
	if got := tok.CharTrigrams("ab"); len(got) != 0 {
		t.Errorf("expected no trigrams for 2-rune input, got %v", got)
	}
}

func TestCharTrigrams_TypoOverlap(t *testing.T) {
	tok := newTestTokenizer()
	correct := tok.CharTrigrams("correo")
	typo := tok.CharTrigrams("coreo")

	set := make(map[string]bool, len(correct))
	for _, g := range correct {
		set[g] = true
	}
	shared := 0
	for _, g := range typo {
		if set[g] {
			shared++
		}
	}
	if shared == 0 {
		t.Error("expected a misspelling to share trigrams with the correct form")
	}
}
