// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAssist/services/assistant/textproc"
)

// =============================================================================
// Negative-Example Mining
// =============================================================================

// Negative mining bounds. Degenerate texts carry no counter-signal; very
// long ones dominate the negative centroid.
const (
	negativeMinLen     = 6
	negativeMaxLen     = 220
	defaultNegativeCap = 40
)

// MineNegatives harvests misrouting counter-examples from labeled samples.
//
// # Description
//
// For each sample where the current model's top-scoring route differs from
// the expected route, the sample's normalized text becomes a negative
// example for the PREDICTED (wrong) route — teaching that route what it
// keeps wrongly claiming. Samples with unknown expected routes or with
// normalized length outside [6, 220] are skipped, and each route's negative
// list is capped.
//
// Ends with a full retrain when anything was added.
//
// # Inputs
//
//   - ctx: Context for tracing. Must not be nil.
//   - samples: Labeled historical interactions.
//   - capPerRoute: Maximum negatives per route. 0 selects the default (40).
//
// # Outputs
//
//   - int: Number of negatives appended across all routes.
//
// # Thread Safety
//
// Takes the router write lock. Must not run concurrently with Calibrate.
func (r *Router) MineNegatives(ctx context.Context, samples []LabeledSample, capPerRoute int) int {
	_, span := routingTracer.Start(ctx, "routing.Router.MineNegatives")
	defer span.End()

	if capPerRoute <= 0 {
		capPerRoute = defaultNegativeCap
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, s := range samples {
		if _, known := r.routes[s.Expected]; !known {
			continue
		}
		normalized := textproc.Normalize(s.Text)
		if n := len([]rune(normalized)); n < negativeMinLen || n > negativeMaxLen {
			continue
		}

		predicted := r.topRouteLocked(s.Text)
		if predicted == "" || predicted == s.Expected {
			continue
		}

		route := r.routes[predicted]
		if len(route.NegativeUtterances) >= capPerRoute {
			continue
		}
		if containsString(route.NegativeUtterances, normalized) {
			continue
		}
		route.NegativeUtterances = append(route.NegativeUtterances, normalized)
		added++
	}

	if added > 0 {
		r.retrainLocked()
		r.logger.Info("negative mining complete",
			slog.Int("samples", len(samples)),
			slog.Int("negatives_added", added),
		)
	}
	span.SetAttributes(
		attribute.Int("samples", len(samples)),
		attribute.Int("negatives_added", added),
	)
	return added
}

// topRouteLocked returns the top-scoring route name for a text, ignoring
// thresholds and gap — mining wants the model's raw tendency, not the gated
// decision.
func (r *Router) topRouteLocked(text string) string {
	features := r.scorer.Features(text)
	bestName := ""
	bestScore := -1.0
	for _, name := range r.routeNames {
		route := r.routes[name]
		rs := r.scorer.Score(features, name, route.AlphaOverride, 0)
		if rs.Hybrid > bestScore || (rs.Hybrid == bestScore && name < bestName) {
			bestName = name
			bestScore = rs.Hybrid
		}
	}
	return bestName
}

// containsString reports whether list contains s.
func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
