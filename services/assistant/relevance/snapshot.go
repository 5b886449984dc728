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
	"sort"

	"github.com/AleutianAI/AleutianAssist/services/assistant/textproc"
)

// =============================================================================
// Model Snapshot (persistence form)
// =============================================================================

// DocumentSnapshot is the gob-friendly form of one training document.
type DocumentSnapshot struct {
	WordTF Vector
	Length int
}

// RouteSnapshot is the gob-friendly form of one route's trained vectors.
type RouteSnapshot struct {
	Name    string
	Docs    []DocumentSnapshot
	Word    Vector
	Char    Vector
	NegWord Vector
	NegChar Vector
}

// ModelSnapshot is the full trained state of a Model in exported,
// gob-encodable form. Used by the routing model store to skip retraining
// across restarts when the corpus hash matches.
type ModelSnapshot struct {
	WordIDF   Vector
	CharIDF   Vector
	AvgDocLen float64
	Routes    []RouteSnapshot
}

// Snapshot exports the model's trained state.
//
// # Thread Safety
//
// Safe for concurrent use; the snapshot shares no mutable state with the
// model (vectors are copied).
func (m *Model) Snapshot() *ModelSnapshot {
	snap := &ModelSnapshot{
		WordIDF:   m.wordIDF.clone(),
		CharIDF:   m.charIDF.clone(),
		AvgDocLen: m.avgDocLen,
	}
	for _, name := range m.routeNames {
		rv := m.routes[name]
		rs := RouteSnapshot{
			Name:    rv.name,
			Word:    rv.word.clone(),
			Char:    rv.char.clone(),
			NegWord: rv.negWord.clone(),
			NegChar: rv.negChar.clone(),
		}
		for _, d := range rv.docs {
			rs.Docs = append(rs.Docs, DocumentSnapshot{WordTF: d.wordTF.clone(), Length: d.length})
		}
		snap.Routes = append(snap.Routes, rs)
	}
	return snap
}

// FromSnapshot reconstructs a Model from a persisted snapshot.
//
// # Description
//
// The tokenizer is supplied fresh — it is rule-table state, not trained
// state, and the corpus hash guarding the snapshot covers the rule tables,
// so a snapshot is only restored against the tables it was trained with.
//
// # Thread Safety
//
// The returned Model is immutable and safe for concurrent use.
func FromSnapshot(tok *textproc.Tokenizer, snap *ModelSnapshot) *Model {
	m := &Model{
		tok:       tok,
		wordIDF:   snap.WordIDF.clone(),
		charIDF:   snap.CharIDF.clone(),
		avgDocLen: snap.AvgDocLen,
		routes:    make(map[string]*routeVectors, len(snap.Routes)),
	}
	for _, rs := range snap.Routes {
		rv := &routeVectors{
			name:    rs.Name,
			word:    rs.Word.clone(),
			char:    rs.Char.clone(),
			negWord: rs.NegWord.clone(),
			negChar: rs.NegChar.clone(),
		}
		for _, d := range rs.Docs {
			rv.docs = append(rv.docs, document{wordTF: d.WordTF.clone(), length: d.Length})
		}
		m.routes[rs.Name] = rv
		m.routeNames = append(m.routeNames, rs.Name)
	}
	sort.Strings(m.routeNames)
	return m
}

// clone copies a vector; nil stays an empty (non-nil) vector for gob safety.
func (v Vector) clone() Vector {
	out := make(Vector, len(v))
	for term, w := range v {
		out[term] = w
	}
	return out
}
