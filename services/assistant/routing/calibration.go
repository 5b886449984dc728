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
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
)

// =============================================================================
// Threshold Calibration
// =============================================================================

// Calibration tuning constants.
const (
	// calibrationMinSamples is the minimum labeled dataset size. Below this
	// the fitted thresholds overfit individual samples.
	calibrationMinSamples = 25

	// coordinateDescentRounds bounds the outer optimization loop. Each round
	// sweeps every route once; a round with zero improvements ends the sweep
	// early.
	coordinateDescentRounds = 4

	// thresholdSearchRange seeds candidates around the current threshold.
	thresholdSearchRange = 0.10

	// jitterTrials is the number of random-perturbation refinement trials.
	jitterTrials = 300

	// jitterDelta bounds each per-route random perturbation.
	jitterDelta = 0.03

	// calibrationSeed makes calibration runs reproducible. The objective is
	// deterministic, so a fixed seed trades nothing for repeatability.
	calibrationSeed = 1
)

// thresholdObjective maps a threshold assignment to whole-dataset accuracy.
// Pure: implementations must not mutate shared state.
type thresholdObjective func(thresholds map[string]float64) float64

// Calibrate fits per-route thresholds against a labeled dataset.
//
// # Description
//
// Scores are threshold-independent, so every sample is scored against every
// route exactly once up front; the optimizer then searches threshold space
// against a pure accuracy objective:
//
//  1. Candidate seeding: quantiles {0.1..0.5} of each route's own-score
//     distribution over its true-positive samples, plus the current
//     threshold and current ± search range.
//  2. Coordinate descent: per route, try each candidate holding the others
//     fixed; keep only strict accuracy improvements; stop a round early when
//     no route improved.
//  3. Random jitter refinement: bounded simultaneous perturbation of all
//     thresholds, again keeping only strict improvements.
//
// Only strict improvements are ever kept, so afterAccuracy >= beforeAccuracy
// holds unconditionally. On completion the fitted thresholds are installed
// and the decision cache cleared.
//
// # Inputs
//
//   - ctx: Context for tracing. Must not be nil.
//   - samples: Labeled historical interactions. Minimum 25.
//
// # Outputs
//
//   - *CalibrationReport: Before/after accuracy and thresholds.
//   - error: ErrInsufficientSamples below the minimum dataset size.
//
// # Thread Safety
//
// Takes the router write lock. Must not run concurrently with itself.
func (r *Router) Calibrate(ctx context.Context, samples []LabeledSample) (*CalibrationReport, error) {
	_, span := routingTracer.Start(ctx, "routing.Router.Calibrate")
	defer span.End()

	if len(samples) < calibrationMinSamples {
		calibrationRunsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientSamples, len(samples), calibrationMinSamples)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	scored := r.scoreDatasetLocked(samples)
	before := r.thresholdsLocked()
	objective := func(thresholds map[string]float64) float64 {
		return datasetAccuracy(scored, samples, thresholds, r.minGap)
	}

	candidates := r.seedCandidatesLocked(scored, samples, before)
	rng := rand.New(rand.NewSource(calibrationSeed))
	fitted, afterAcc := optimizeThresholds(before, candidates, objective, rng)
	beforeAcc := objective(before)

	report := &CalibrationReport{
		TotalLabeled:     len(samples),
		BeforeAccuracy:   beforeAcc,
		AfterAccuracy:    afterAcc,
		Improved:         afterAcc > beforeAcc,
		BeforeThresholds: before,
		AfterThresholds:  fitted,
	}

	for name, t := range fitted {
		r.routes[name].Threshold = clampThreshold(t)
	}
	r.cache.clear()

	outcome := "unchanged"
	if report.Improved {
		outcome = "improved"
	}
	calibrationRunsTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.Int("samples", len(samples)),
		attribute.Float64("before_accuracy", beforeAcc),
		attribute.Float64("after_accuracy", afterAcc),
	)
	r.logger.Info("threshold calibration complete",
		slog.Int("samples", len(samples)),
		slog.Float64("before_accuracy", beforeAcc),
		slog.Float64("after_accuracy", afterAcc),
		slog.Bool("improved", report.Improved),
	)

	return report, nil
}

// scoredSample holds one sample's hybrid score per route, sorted descending.
type scoredSample []relevance.RouteScore

// scoreDatasetLocked scores every sample against every route once.
func (r *Router) scoreDatasetLocked(samples []LabeledSample) []scoredSample {
	out := make([]scoredSample, len(samples))
	for i, s := range samples {
		features := r.scorer.Features(s.Text)
		scores := make(scoredSample, 0, len(r.routeNames))
		for _, name := range r.routeNames {
			route := r.routes[name]
			scores = append(scores, r.scorer.Score(features, name, route.AlphaOverride, 0))
		}
		sort.Slice(scores, func(a, b int) bool {
			if scores[a].Hybrid != scores[b].Hybrid {
				return scores[a].Hybrid > scores[b].Hybrid
			}
			return scores[a].Route < scores[b].Route
		})
		out[i] = scores
	}
	return out
}

// datasetAccuracy evaluates classification accuracy under a threshold
// assignment. Pure over its inputs.
//
// Prediction mirrors Route's gate: the top-scoring route wins only if it
// clears its threshold and the min-gap margin; otherwise the prediction is
// null, which never matches a labeled expectation.
func datasetAccuracy(scored []scoredSample, samples []LabeledSample, thresholds map[string]float64, minGap float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	correct := 0
	for i, scores := range scored {
		if len(scores) == 0 {
			continue
		}
		top := scores[0]
		var second float64
		if len(scores) > 1 {
			second = scores[1].Hybrid
		}
		if top.Hybrid < thresholds[top.Route] {
			continue
		}
		if top.Hybrid-second < minGap {
			continue
		}
		if top.Route == samples[i].Expected {
			correct++
		}
	}
	return float64(correct) / float64(len(samples))
}

// seedCandidatesLocked builds the per-route candidate threshold lists.
func (r *Router) seedCandidatesLocked(scored []scoredSample, samples []LabeledSample, current map[string]float64) map[string][]float64 {
	// Own-route score distribution over true positives.
	ownScores := make(map[string][]float64, len(r.routeNames))
	for i, s := range samples {
		for _, rs := range scored[i] {
			if rs.Route == s.Expected {
				ownScores[s.Expected] = append(ownScores[s.Expected], rs.Hybrid)
				break
			}
		}
	}

	candidates := make(map[string][]float64, len(r.routeNames))
	for _, name := range r.routeNames {
		set := map[float64]bool{}
		add := func(t float64) { set[clampThreshold(t)] = true }

		dist := ownScores[name]
		sort.Float64s(dist)
		for _, q := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
			if v, ok := quantile(dist, q); ok {
				add(v)
			}
		}
		cur := current[name]
		add(cur)
		add(cur - thresholdSearchRange)
		add(cur - thresholdSearchRange/2)
		add(cur + thresholdSearchRange/2)
		add(cur + thresholdSearchRange)

		list := make([]float64, 0, len(set))
		for t := range set {
			list = append(list, t)
		}
		sort.Float64s(list)
		candidates[name] = list
	}
	return candidates
}

// quantile returns the q-quantile of a sorted slice via nearest-rank.
func quantile(sorted []float64, q float64) (float64, bool) {
	if len(sorted) == 0 {
		return 0, false
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx], true
}

// =============================================================================
// Pure Optimizer
// =============================================================================

// optimizeThresholds searches threshold space against a pure objective.
//
// # Description
//
// Coordinate descent over the candidate lists followed by bounded random
// jitter. Every acceptance requires a STRICT objective improvement, which
// is what guarantees the calibration monotonicity property: the returned
// assignment never scores below the starting one.
//
// # Inputs
//
//   - current: Starting thresholds. Not mutated.
//   - candidates: Per-route candidate lists from seeding.
//   - objective: Pure thresholds → accuracy function.
//   - rng: Random source for the jitter phase. Must not be nil.
//
// # Outputs
//
//   - map[string]float64: The fitted thresholds (a fresh map).
//   - float64: The objective value at the fitted thresholds.
//
// # Thread Safety
//
// Pure given a pure objective; safe for concurrent use with distinct rngs.
func optimizeThresholds(current map[string]float64, candidates map[string][]float64, objective thresholdObjective, rng *rand.Rand) (map[string]float64, float64) {
	best := make(map[string]float64, len(current))
	for name, t := range current {
		best[name] = t
	}
	bestAcc := objective(best)

	// Deterministic route order.
	names := make([]string, 0, len(best))
	for name := range best {
		names = append(names, name)
	}
	sort.Strings(names)

	// Phase 1: coordinate descent.
	for round := 0; round < coordinateDescentRounds; round++ {
		improvedAny := false
		for _, name := range names {
			orig := best[name]
			for _, cand := range candidates[name] {
				if cand == orig {
					continue
				}
				best[name] = cand
				if acc := objective(best); acc > bestAcc {
					bestAcc = acc
					orig = cand
					improvedAny = true
				} else {
					best[name] = orig
				}
			}
			best[name] = orig
		}
		if !improvedAny {
			break
		}
	}

	// Phase 2: bounded random jitter over all thresholds simultaneously.
	trial := make(map[string]float64, len(best))
	for i := 0; i < jitterTrials; i++ {
		for _, name := range names {
			delta := (rng.Float64()*2 - 1) * jitterDelta
			trial[name] = clampThreshold(best[name] + delta)
		}
		if acc := objective(trial); acc > bestAcc {
			bestAcc = acc
			for name, t := range trial {
				best[name] = t
			}
		}
	}

	return best, bestAcc
}
