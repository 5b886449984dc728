// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recall implements the hybrid memory-recall engine: per-query corpus
// assembly from the plaintext memory archive, heuristic and hybrid line
// scoring with temporal decay, MMR diversity reranking, and an injected
// character budget.
package recall

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	recallSearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assist",
		Subsystem: "recall",
		Name:      "searches_total",
		Help:      "Recall searches by serving backend: hybrid, scan, none",
	}, []string{"backend"})

	recallFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "assist",
		Subsystem: "recall",
		Name:      "backend_fallbacks_total",
		Help:      "Hybrid-backend failures that fell back to the scan backend",
	})

	recallCorpusLines = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "assist",
		Subsystem: "recall",
		Name:      "corpus_lines",
		Help:      "Candidate corpus size per search, after injection filtering",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500},
	})

	recallExcludedLinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "assist",
		Subsystem: "recall",
		Name:      "excluded_lines_total",
		Help:      "Memory lines excluded by the prompt-injection pattern filter",
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var recallTracer = otel.Tracer("aleutian.assistant.recall")

// =============================================================================
// Core Types
// =============================================================================

// MemoryLine is one non-empty line of the memory archive, parsed and
// tokenized for the duration of a single query.
//
// Description:
//
//	Built fresh per query from current file contents — files are
//	authoritative, there is no persistent index. Lines matching a
//	prompt-injection pattern never become MemoryLines at all.
type MemoryLine struct {
	// Path is the source file path relative to the memory root.
	Path string

	// LineNumber is the 1-based line number within the file.
	LineNumber int

	// Raw is the line text with any trailing `| meta=...` suffix removed.
	Raw string

	// Normalized is the diacritic-stripped, lowercased form of Raw.
	Normalized string

	// Metadata holds the parsed `| meta=<json>` object, nil when absent or
	// malformed. Recognized keys: chatId, role.
	Metadata map[string]any

	// AgeDays is the content age, from the filename date when the file is
	// named YYYY-MM-DD.md, else from file modification time.
	AgeDays float64

	// Tokens, TokenSet, and TokenFreq are the tokenizer output over Raw,
	// shared by both scoring backends.
	Tokens    []string
	TokenSet  relevance.Set
	TokenFreq relevance.Vector
}

// Candidate is a scored MemoryLine flowing through the post-scoring pipeline.
type Candidate struct {
	Line MemoryLine

	// Score is the backend score after temporal decay.
	Score float64

	// Snippet is the display text, truncated to the snippet cap.
	Snippet string

	// NormalizedSnippet participates in the dedup key.
	NormalizedSnippet string

	// simSet is the token set used for MMR pairwise similarity.
	simSet relevance.Set
}

// Result is one recalled snippet returned to the caller.
type Result struct {
	Path    string  `json:"path"`
	Line    int     `json:"line"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// SearchOptions tunes a single Search call.
type SearchOptions struct {
	// Limit bounds the result count. 0 selects the default (8); values are
	// clamped into [1, 50].
	Limit int

	// ChatID scopes the corpus to include the chat's continuity snapshot and
	// recent dated files. Empty means global-only corpus.
	ChatID string

	// MaxInjectedChars bounds the total snippet characters returned.
	// 0 disables the budget.
	MaxInjectedChars int
}

// =============================================================================
// Tuning Constants
// =============================================================================

const (
	defaultResultLimit = 8
	maxResultLimit     = 50

	// snippetMaxLen caps each snippet; truncation appends the marker.
	snippetMaxLen    = 240
	truncationMarker = "…"

	// Corpus assembly bounds: most recent dated files consulted per scope.
	maxGlobalDatedFiles = 7
	maxChatDatedFiles   = 5

	// Temporal decay: multiplier = decayFloor + decaySpan·e^(−ln2·age/halfLife).
	// Old content is damped, never zeroed.
	decayFloor   = 0.65
	decaySpan    = 0.35
	halfLifeDays = 21.0

	// Hybrid backend: semantic overlap = 0.65·tokenJaccard + 0.35·charJaccard,
	// contributing only above the floor.
	tokenJaccardWeight = 0.65
	charJaccardWeight  = 0.35
	semanticFloor      = 0.28

	// MMR reranking: pool/select expansion factors and the relevance-vs-
	// diversity trade-off weight.
	mmrPoolFactor   = 4
	mmrSelectFactor = 2
	mmrLambda       = 0.72
)
