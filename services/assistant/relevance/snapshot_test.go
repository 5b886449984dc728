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
	"bytes"
	"encoding/gob"
	"math"
	"testing"
)

// =============================================================================
// Snapshot Roundtrip Tests
// =============================================================================

func TestSnapshot_RestoredModelScoresIdentically(t *testing.T) {
	tok := testTokenizer()
	trained := Train(tok, testExamples())
	restored := FromSnapshot(tok, trained.Snapshot())

	a := NewScorer(trained, 0, nil)
	b := NewScorer(restored, 0, nil)

	queries := []string{
		"enviame un correo a x@y.com",
		"busca en internet",
		"asdkj qpwoe",
	}
	for _, query := range queries {
		qa, qb := a.Features(query), b.Features(query)
		for _, route := range trained.RouteNames() {
			sa := a.Score(qa, route, nil, 0)
			sb := b.Score(qb, route, nil, 0)
			if math.Abs(sa.Hybrid-sb.Hybrid) > 1e-12 {
				t.Errorf("%q/%s: trained=%v restored=%v", query, route, sa.Hybrid, sb.Hybrid)
			}
		}
	}
}

func TestSnapshot_SurvivesGobEncoding(t *testing.T) {
	tok := testTokenizer()
	trained := Train(tok, testExamples())
	snap := trained.Snapshot()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded := &ModelSnapshot{}
	if err := gob.NewDecoder(bytes.NewReader(buf.Bytes())).Decode(decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(decoded.Routes) != len(snap.Routes) {
		t.Fatalf("routes: got %d, want %d", len(decoded.Routes), len(snap.Routes))
	}
	if decoded.AvgDocLen != snap.AvgDocLen {
		t.Errorf("avgDocLen: got %v, want %v", decoded.AvgDocLen, snap.AvgDocLen)
	}
	if len(decoded.WordIDF) != len(snap.WordIDF) {
		t.Errorf("wordIDF size: got %d, want %d", len(decoded.WordIDF), len(snap.WordIDF))
	}

	restored := FromSnapshot(tok, decoded)
	s := NewScorer(restored, 0, nil)
	rs := s.Score(s.Features("enviame un correo"), "gmail", nil, 0)
	if rs.Hybrid <= 0 {
		t.Error("expected a positive score from the gob-roundtripped model")
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	trained := Train(testTokenizer(), testExamples())
	snap := trained.Snapshot()

	// Mutating the snapshot must not reach into the live model.
	for term := range snap.WordIDF {
		snap.WordIDF[term] = -99
		break
	}
	for _, idf := range trained.wordIDF {
		if idf == -99 {
			t.Fatal("snapshot shares IDF storage with the model")
		}
	}
}
