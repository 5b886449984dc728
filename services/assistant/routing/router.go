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
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAssist/services/assistant/config"
	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
	"github.com/AleutianAI/AleutianAssist/services/assistant/textproc"
)

// =============================================================================
// Router
// =============================================================================

// Router classifies free-form conversational text into one of a small fixed
// set of named routes.
//
// # Description
//
// Scores every allowed route with the hybrid lexical scorer, sorts
// descending, and accepts the top route only when it clears both gates:
// its own threshold AND a minimum margin over the runner-up. Everything
// else returns a null decision — the orchestrator's default conversational
// path handles unrouted text.
//
// All decisions, including null ones, are memoized in a TTL-bounded cache.
// Any route-set mutation (reload, calibration, negative mining) triggers a
// full retrain and a cache clear.
//
// # Thread Safety
//
// Safe for concurrent use. Route takes a read lock; retraining paths
// (Reload, Calibrate, MineNegatives) take the write lock and are expected
// to run exclusively of each other.
type Router struct {
	mu sync.RWMutex

	routes     map[string]*Route
	routeNames []string // sorted, for deterministic iteration
	scorer     *relevance.Scorer

	tok         *textproc.Tokenizer
	rules       *config.EngineRules
	globalAlpha float64
	minGap      float64

	cache  *decisionCache
	store  ModelStore // nil = no persistence
	logger *slog.Logger
}

// NewRouter builds a Router from a validated config and rule tables.
//
// # Description
//
// Trains the vector model synchronously — corpus sizes are a few hundred
// utterances, so construction cost is milliseconds. Call Warm afterward to
// consult the model store: on a corpus-hash hit the freshly trained model
// is replaced by the persisted snapshot (identical by construction, but
// Warm also persists on miss so the next restart hits).
//
// # Inputs
//
//   - cfg: Validated router config. Must have at least one route.
//   - rules: Engine rule tables. Must not be nil.
//   - store: Optional model persistence. Nil disables persistence.
//   - logger: Logger instance. May be nil.
//
// # Outputs
//
//   - *Router: The constructed router. Never nil on success.
//   - error: Non-nil when the config carries no usable routes.
//
// # Thread Safety
//
// The returned Router is safe for concurrent use.
func NewRouter(cfg *config.RouterConfig, rules *config.EngineRules, store ModelStore, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Routes) == 0 {
		return nil, config.ErrNoValidRoutes
	}

	r := &Router{
		tok:         textproc.NewTokenizer(rules.Stopwords, rules.StemSuffixes),
		rules:       rules,
		globalAlpha: cfg.HybridAlpha,
		minGap:      cfg.MinScoreGap,
		cache:       newDecisionCache(),
		store:       store,
		logger:      logger,
	}
	if r.minGap == 0 {
		r.minGap = defaultMinGap
	}

	routes := make([]*Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		route := &Route{
			Name:               rc.Name,
			Utterances:         append([]string(nil), rc.Utterances...),
			NegativeUtterances: append([]string(nil), rc.NegativeUtterances...),
			Threshold:          clampThreshold(rc.Threshold),
		}
		if rc.Alpha != nil {
			a := *rc.Alpha
			route.AlphaOverride = &a
		}
		routes = append(routes, route)
	}

	r.mu.Lock()
	r.installRoutes(routes)
	r.mu.Unlock()
	return r, nil
}

// installRoutes replaces the route set and retrains. Caller holds the write lock.
func (r *Router) installRoutes(routes []*Route) {
	r.routes = make(map[string]*Route, len(routes))
	r.routeNames = r.routeNames[:0]
	for _, route := range routes {
		r.routes[route.Name] = route
		r.routeNames = append(r.routeNames, route.Name)
	}
	sort.Strings(r.routeNames)
	r.retrainLocked()
}

// retrainLocked rebuilds the model and scorer from the current route set
// and clears the decision cache. Caller holds the write lock.
func (r *Router) retrainLocked() {
	examples := make([]relevance.RouteExamples, 0, len(r.routeNames))
	for _, name := range r.routeNames {
		route := r.routes[name]
		examples = append(examples, relevance.RouteExamples{
			Name:               route.Name,
			Utterances:         route.Utterances,
			NegativeUtterances: route.NegativeUtterances,
		})
	}
	model := relevance.Train(r.tok, examples)
	r.scorer = relevance.NewScorer(model, r.globalAlpha, r.rules.DomainSignalKeywords)
	r.cache.clear()

	r.logger.Debug("router retrained",
		slog.Int("routes", len(r.routeNames)),
	)
}

// Route classifies one input.
//
// # Description
//
// Returns nil when no route qualifies:
//
//   - the input normalizes to fewer than 3 runes,
//   - no allowed route clears its threshold, or
//   - the winner's margin over the runner-up is below minGap.
//
// The accepted decision carries up to topK runner-up scores for
// observability. Every outcome after scoring (accepted or null) is cached
// for 5 minutes under the (text, options) tuple.
//
// # Inputs
//
//   - ctx: Context for tracing. Must not be nil.
//   - text: Raw utterance text.
//   - opts: Per-call restrictions and tuning. Zero value means defaults.
//
// # Outputs
//
//   - *Decision: The accepted classification, or nil.
//
// # Thread Safety
//
// Safe for concurrent use.
func (r *Router) Route(ctx context.Context, text string, opts Options) *Decision {
	_, span := routingTracer.Start(ctx, "routing.Router.Route")
	defer span.End()

	normalized := textproc.Normalize(text)
	span.SetAttributes(
		attribute.String("query_preview", truncateForLog(normalized, 80)),
		attribute.Int("allowed_count", len(opts.Allowed)),
	)

	if len([]rune(normalized)) < minNormalizedInput {
		routerDecisionsTotal.WithLabelValues("rejected_short").Inc()
		span.SetAttributes(attribute.String("outcome", "rejected_short"))
		return nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	minGap := r.minGap
	if opts.MinGap != nil {
		minGap = *opts.MinGap
	}

	key := decisionCacheKey(normalized, opts, minGap, topK)
	if cached, ok := r.cache.get(key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached
	}

	candidates := r.allowedRoutesLocked(opts.Allowed)
	if len(candidates) == 0 {
		routerDecisionsTotal.WithLabelValues("no_candidates").Inc()
		span.SetAttributes(attribute.String("outcome", "no_candidates"))
		r.cache.put(key, nil)
		return nil
	}

	features := r.scorer.Features(text)

	scored := make([]relevance.RouteScore, 0, len(candidates))
	for _, route := range candidates {
		alphaOverride := route.AlphaOverride
		if opts.AlphaOverrides != nil {
			if a, ok := opts.AlphaOverrides[route.Name]; ok {
				alphaOverride = &a
			}
		}
		scored = append(scored, r.scorer.Score(features, route.Name, alphaOverride, opts.Boosts[route.Name]))
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Hybrid != scored[j].Hybrid {
			return scored[i].Hybrid > scored[j].Hybrid
		}
		return scored[i].Route < scored[j].Route
	})

	top := scored[0]
	routerTopScore.Observe(top.Hybrid)
	span.SetAttributes(
		attribute.String("top_route", top.Route),
		attribute.Float64("top_score", top.Hybrid),
	)

	var second float64
	if len(scored) > 1 {
		second = scored[1].Hybrid
	}

	decision := r.gateLocked(top, second, minGap, scored, topK)
	r.cache.put(key, decision)

	if decision != nil {
		r.logger.Info("route accepted",
			slog.String("decision_id", decision.ID),
			slog.String("handler", decision.Handler),
			slog.Float64("score", decision.Score),
			slog.String("query_preview", truncateForLog(normalized, 80)),
		)
	}
	return decision
}

// gateLocked applies the threshold and min-gap gates and builds the decision.
func (r *Router) gateLocked(top relevance.RouteScore, second, minGap float64, scored []relevance.RouteScore, topK int) *Decision {
	route := r.routes[top.Route]

	if top.Hybrid < route.Threshold {
		routerDecisionsTotal.WithLabelValues("rejected_threshold").Inc()
		return nil
	}
	if top.Hybrid-second < minGap {
		routerDecisionsTotal.WithLabelValues("rejected_gap").Inc()
		return nil
	}
	routerDecisionsTotal.WithLabelValues("accepted").Inc()

	alternatives := make([]Alternative, 0, topK)
	for _, rs := range scored[1:] {
		if len(alternatives) >= topK {
			break
		}
		alternatives = append(alternatives, Alternative{Name: rs.Route, Score: rs.Hybrid})
	}

	return &Decision{
		ID:      uuid.NewString(),
		Handler: top.Route,
		Score:   top.Hybrid,
		Reason: fmt.Sprintf("score %.3f >= threshold %.3f, gap %.3f >= %.3f (alpha %.2f, bm25 %.3f, word %.3f, char %.3f)",
			top.Hybrid, route.Threshold, top.Hybrid-second, minGap, top.Alpha, top.BM25, top.WordCosine, top.CharCosine),
		Alternatives: alternatives,
	}
}

// allowedRoutesLocked resolves the candidate set. Unknown names in allowed
// are ignored; an empty allowed set means every route.
func (r *Router) allowedRoutesLocked(allowed []string) []*Route {
	if len(allowed) == 0 {
		out := make([]*Route, 0, len(r.routeNames))
		for _, name := range r.routeNames {
			out = append(out, r.routes[name])
		}
		return out
	}
	names := make([]string, len(allowed))
	copy(names, allowed)
	sort.Strings(names)
	out := make([]*Route, 0, len(names))
	for _, name := range names {
		if route, ok := r.routes[name]; ok {
			out = append(out, route)
		}
	}
	return out
}

// =============================================================================
// Lifecycle
// =============================================================================

// Warm consults the model store.
//
// # Description
//
// On a corpus-hash hit the persisted snapshot replaces the trained model
// (skipping nothing on this process, but validating the persistence path);
// on a miss the current model is persisted so the next restart restores
// without retraining. Nil-store routers are a no-op. Persistence failures
// are non-fatal: the in-memory model is already correct.
//
// # Thread Safety
//
// Call once at startup, before serving traffic.
func (r *Router) Warm(ctx context.Context) {
	if r.store == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	hash := r.corpusHashLocked()
	snap, err := r.store.LoadModel(ctx, hash)
	if err != nil {
		r.logger.Warn("model store load failed, using freshly trained model",
			slog.String("error", err.Error()),
		)
		return
	}
	if snap != nil {
		model := relevance.FromSnapshot(r.tok, snap)
		r.scorer = relevance.NewScorer(model, r.globalAlpha, r.rules.DomainSignalKeywords)
		r.cache.clear()
		r.logger.Info("model restored from store",
			slog.String("corpus_hash", shortHash(hash)),
		)
		return
	}

	if err := r.store.SaveModel(ctx, hash, r.scorer.Model().Snapshot()); err != nil {
		r.logger.Warn("model store save failed",
			slog.String("error", err.Error()),
			slog.String("corpus_hash", shortHash(hash)),
		)
	}
}

// Reload replaces the route set wholesale from a validated config.
//
// # Thread Safety
//
// Exclusive with Route; safe to call while serving (Route blocks briefly).
func (r *Router) Reload(cfg *config.RouterConfig) error {
	if len(cfg.Routes) == 0 {
		return config.ErrNoValidRoutes
	}
	routes := make([]*Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		route := &Route{
			Name:               rc.Name,
			Utterances:         append([]string(nil), rc.Utterances...),
			NegativeUtterances: append([]string(nil), rc.NegativeUtterances...),
			Threshold:          clampThreshold(rc.Threshold),
		}
		if rc.Alpha != nil {
			a := *rc.Alpha
			route.AlphaOverride = &a
		}
		routes = append(routes, route)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.HybridAlpha != 0 {
		r.globalAlpha = cfg.HybridAlpha
	}
	if cfg.MinScoreGap != 0 {
		r.minGap = cfg.MinScoreGap
	}
	r.installRoutes(routes)
	r.logger.Info("router reloaded", slog.Int("routes", len(routes)))
	return nil
}

// ExportConfig serializes the current in-memory route set — always the full
// set, never a partial view.
func (r *Router) ExportConfig() *config.RouterConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg := &config.RouterConfig{
		Version:     config.RouterConfigVersion,
		HybridAlpha: r.globalAlpha,
		MinScoreGap: r.minGap,
	}
	for _, name := range r.routeNames {
		route := r.routes[name]
		rc := config.RouteConfig{
			Name:               route.Name,
			Threshold:          route.Threshold,
			Utterances:         append([]string(nil), route.Utterances...),
			NegativeUtterances: append([]string(nil), route.NegativeUtterances...),
		}
		if route.AlphaOverride != nil {
			a := *route.AlphaOverride
			rc.Alpha = &a
		}
		cfg.Routes = append(cfg.Routes, rc)
	}
	return cfg
}

// ClearCache drops all memoized decisions. Correctness-neutral.
func (r *Router) ClearCache() {
	r.cache.clear()
}

// RouteNames returns the sorted route names.
func (r *Router) RouteNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.routeNames))
	copy(out, r.routeNames)
	return out
}

// Thresholds returns a copy of the current per-route thresholds.
func (r *Router) Thresholds() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.thresholdsLocked()
}

func (r *Router) thresholdsLocked() map[string]float64 {
	out := make(map[string]float64, len(r.routes))
	for name, route := range r.routes {
		out[name] = route.Threshold
	}
	return out
}
