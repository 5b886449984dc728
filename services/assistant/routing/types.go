// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routing implements the semantic intent router: thresholded
// single-label classification of conversational text against a small fixed
// set of named routes, plus offline threshold calibration and negative
// example mining.
package routing

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	routerDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assist",
		Subsystem: "router",
		Name:      "decisions_total",
		Help:      "Routing outcomes: accepted, rejected_threshold, rejected_gap, rejected_short, no_candidates",
	}, []string{"outcome"})

	routerTopScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "assist",
		Subsystem: "router",
		Name:      "top_score",
		Help:      "Hybrid score of the best-scoring route per call",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
	})

	routerCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assist",
		Subsystem: "router",
		Name:      "decision_cache_total",
		Help:      "Decision cache lookups by result: hit, miss, expired",
	}, []string{"result"})

	calibrationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assist",
		Subsystem: "calibration",
		Name:      "runs_total",
		Help:      "Calibration runs by outcome: improved, unchanged, rejected",
	}, []string{"outcome"})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var routingTracer = otel.Tracer("aleutian.assistant.routing")

// =============================================================================
// Core Types
// =============================================================================

// Route is a named intent with its training examples and acceptance threshold.
//
// Description:
//
//	Thresholds live in [0.01, 0.99] and AlphaOverride in [0.05, 0.95]; both
//	are clamped on construction. Routes are never deleted at runtime — the
//	set is only replaced wholesale on config reload.
type Route struct {
	// Name is the route's enum tag ("gmail", "web", ...).
	Name string

	// Utterances are the positive training examples. Every trained route
	// has at least one.
	Utterances []string

	// NegativeUtterances are counter-examples, hand-written or mined.
	NegativeUtterances []string

	// Threshold is the minimum hybrid score for this route to be accepted.
	Threshold float64

	// AlphaOverride optionally replaces the global hybrid alpha for this
	// route, before per-call adaptation.
	AlphaOverride *float64
}

// Alternative is a runner-up route kept on a Decision for observability.
type Alternative struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Decision is the router's accepted classification of one input.
//
// Description:
//
//	Produced per call and possibly served from the decision cache. A nil
//	*Decision means "no route qualifies" — the caller falls through to its
//	default conversational handling.
type Decision struct {
	// ID correlates this decision across logs, traces, and the orchestrator.
	ID string `json:"id"`

	// Handler is the winning route name.
	Handler string `json:"handler"`

	// Score is the winning hybrid score in [0,1].
	Score float64 `json:"score"`

	// Reason is a human-readable explanation of the acceptance.
	Reason string `json:"reason"`

	// Alternatives are the next-best routes, up to the call's topK.
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Options narrows and tunes a single Route call.
type Options struct {
	// Allowed restricts candidates to these route names. Empty means all.
	Allowed []string

	// Boosts are additive contextual score adjustments per route.
	Boosts map[string]float64

	// AlphaOverrides replace the hybrid alpha per route for this call only.
	// A per-call override takes precedence over the route's own override.
	AlphaOverrides map[string]float64

	// TopK bounds the number of alternatives on the decision.
	// 0 selects the default (3); values above the max (10) are capped.
	TopK int

	// MinGap overrides the configured winner-vs-runner-up margin.
	// Nil selects the configured default.
	MinGap *float64
}

// LabeledSample is one historical interaction with its ground-truth route.
type LabeledSample struct {
	Text     string `json:"text"`
	Expected string `json:"expected"`
}

// CalibrationReport summarizes one offline threshold calibration run.
type CalibrationReport struct {
	TotalLabeled     int                `json:"totalLabeled"`
	BeforeAccuracy   float64            `json:"beforeAccuracy"`
	AfterAccuracy    float64            `json:"afterAccuracy"`
	Improved         bool               `json:"improved"`
	BeforeThresholds map[string]float64 `json:"beforeThresholds"`
	AfterThresholds  map[string]float64 `json:"afterThresholds"`
}

// =============================================================================
// Errors
// =============================================================================

// ErrInsufficientSamples is returned by Calibrate when fewer labeled samples
// are supplied than the minimum required for a statistically meaningful fit.
var ErrInsufficientSamples = errors.New("calibration: insufficient labeled samples")

// =============================================================================
// Defaults and Domains
// =============================================================================

const (
	// minNormalizedInput is the minimum normalized rune length the router
	// accepts; anything shorter is rejected without scoring.
	minNormalizedInput = 3

	// defaultMinGap is the default winner-vs-runner-up margin.
	defaultMinGap = 0.03

	// defaultTopK and maxTopK bound the alternatives on a decision.
	defaultTopK = 3
	maxTopK     = 10

	// thresholdMin/Max is the route threshold domain.
	thresholdMin = 0.01
	thresholdMax = 0.99
)

// clampThreshold clamps a threshold into its domain.
func clampThreshold(t float64) float64 {
	if t < thresholdMin {
		return thresholdMin
	}
	if t > thresholdMax {
		return thresholdMax
	}
	return t
}

// truncateForLog shortens text for log and span attributes.
func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
