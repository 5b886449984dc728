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
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAssist/services/assistant/config"
	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
	"github.com/AleutianAI/AleutianAssist/services/assistant/textproc"
)

// =============================================================================
// Recall Engine
// =============================================================================

// Engine answers memory-recall queries over a plaintext archive rooted at a
// single directory.
//
// # Description
//
// Stateless between calls: every Search rebuilds its candidate corpus from
// current file contents, scores it with the hybrid backend (falling back to
// scan on failure), and runs the dedup → sort → MMR → budget → limit
// pipeline. The only construction-time state is the tokenizer and the
// compiled injection-pattern list.
//
// # Thread Safety
//
// Safe for concurrent use; Search shares no mutable state across calls.
type Engine struct {
	root              string
	tok               *textproc.Tokenizer
	injectionPatterns []*regexp.Regexp
	logger            *slog.Logger

	// now is injectable for decay tests.
	now func() time.Time
}

// NewEngine builds a recall engine over a memory root directory.
//
// # Inputs
//
//   - root: The memory archive root (the directory holding MEMORY.md).
//     Need not exist yet; missing files contribute zero lines.
//   - rules: Engine rule tables supplying stopwords, suffixes, and the
//     injection pattern list. Must not be nil.
//   - logger: Logger instance. May be nil.
//
// # Outputs
//
//   - *Engine: Ready-to-serve engine. Never nil on success.
//   - error: Non-nil when an injection pattern fails to compile.
func NewEngine(root string, rules *config.EngineRules, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	patterns := make([]*regexp.Regexp, 0, len(rules.InjectionPatterns))
	for _, raw := range rules.InjectionPatterns {
		// Patterns run against normalized (lowercased) text; (?i) still
		// guards raw-case table entries.
		compiled, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			return nil, fmt.Errorf("compile injection pattern %q: %w", raw, err)
		}
		patterns = append(patterns, compiled)
	}

	return &Engine{
		root:              root,
		tok:               textproc.NewTokenizer(rules.Stopwords, rules.StemSuffixes),
		injectionPatterns: patterns,
		logger:            logger,
		now:               time.Now,
	}, nil
}

// Search retrieves the most relevant memory snippets for a query.
//
// # Description
//
// Never returns an error: input errors yield an empty list, per-file read
// errors contribute zero lines, and a hybrid-backend failure falls back to
// the scan backend with telemetry. Results are deterministic for fixed file
// contents and a fixed clock.
//
// # Inputs
//
//   - ctx: Context for tracing. Must not be nil.
//   - query: Free-form query text.
//   - opts: Scope, limit, and budget. Zero value means defaults.
//
// # Outputs
//
//   - []Result: Ranked snippets, best first. Nil or empty when nothing
//     relevant exists.
//
// # Thread Safety
//
// Safe for concurrent use.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) []Result {
	_, span := recallTracer.Start(ctx, "recall.Engine.Search")
	defer span.End()

	limit := clampLimit(opts.Limit)
	normalized := textproc.Normalize(query)
	span.SetAttributes(
		attribute.String("query_preview", preview(normalized, 80)),
		attribute.String("chat_id", opts.ChatID),
		attribute.Int("limit", limit),
	)

	if strings.TrimSpace(normalized) == "" {
		recallSearchesTotal.WithLabelValues("none").Inc()
		return nil
	}

	terms := e.tok.Tokenize(query)
	q := queryContext{
		Normalized: normalized,
		Terms:      terms,
		TermSet:    relevance.NewSet(terms),
		TrigramSet: relevance.NewSet(e.tok.CharTrigrams(query)),
		ChatID:     opts.ChatID,
	}

	lines := e.buildCorpus(opts.ChatID)
	if len(lines) == 0 {
		recallSearchesTotal.WithLabelValues("none").Inc()
		return nil
	}

	candidates, backend := e.score(q, lines)
	recallSearchesTotal.WithLabelValues(backend).Inc()
	span.SetAttributes(
		attribute.String("backend", backend),
		attribute.Int("corpus_lines", len(lines)),
		attribute.Int("candidates", len(candidates)),
	)
	if len(candidates) == 0 {
		return nil
	}

	candidates = dedup(candidates)
	sortCandidates(candidates)
	candidates = mmrRerank(candidates, limit)
	if opts.MaxInjectedChars > 0 {
		candidates = applyCharBudget(candidates, opts.MaxInjectedChars)
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{
			Path:    c.Line.Path,
			Line:    c.Line.LineNumber,
			Snippet: c.Snippet,
			Score:   c.Score,
		}
	}
	return results
}

// score runs the hybrid backend with scan fallback.
func (e *Engine) score(q queryContext, lines []MemoryLine) ([]Candidate, string) {
	candidates, err := hybridBackend(e, q, lines)
	if err == nil {
		return candidates, "hybrid"
	}

	recallFallbacksTotal.Inc()
	e.logger.Warn("hybrid recall backend failed, falling back to scan",
		slog.String("error", err.Error()),
	)
	return scanBackend(q, lines), "scan"
}

// =============================================================================
// Post-Scoring Pipeline
// =============================================================================

// linePrefixPattern matches the conversational line scaffolding — the
// leading bullet, `[HH:MM:SS]` timestamp, and optional `ROLE:` marker. The
// dedup key is computed over the content behind it, so the same statement
// logged at two different times still collapses to one result.
var linePrefixPattern = regexp.MustCompile(`^-?\s*\[\d{1,2}:\d{2}(?::\d{2})?\]\s*(?:[A-Za-z]+:\s*)?`)

// newCandidate wraps a scored line, truncating its snippet to the cap.
func newCandidate(line MemoryLine, score float64) Candidate {
	snippet := truncateRunes(line.Raw, snippetMaxLen)
	content := linePrefixPattern.ReplaceAllString(snippet, "")
	return Candidate{
		Line:              line,
		Score:             score,
		Snippet:           snippet,
		NormalizedSnippet: textproc.Normalize(content),
		simSet:            line.TokenSet,
	}
}

// dedup collapses candidates sharing (path, normalizedSnippet), keeping the
// highest score. The normalized snippet excludes the timestamp/role prefix,
// so repeated statements collapse even when logged on different lines at
// different times.
func dedup(candidates []Candidate) []Candidate {
	type dedupKey struct {
		path    string
		snippet string
	}
	best := make(map[dedupKey]int, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := dedupKey{c.Line.Path, c.NormalizedSnippet}
		if idx, ok := best[key]; ok {
			if c.Score > out[idx].Score {
				out[idx] = c
			}
			continue
		}
		best[key] = len(out)
		out = append(out, c)
	}
	return out
}

// sortCandidates orders by score descending, then path, then line, so equal
// scores cannot reorder across runs.
func sortCandidates(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Line.Path != b.Line.Path {
			return a.Line.Path < b.Line.Path
		}
		return a.Line.LineNumber < b.Line.LineNumber
	})
}

// applyCharBudget greedily keeps whole snippets until the budget runs out,
// truncating the snippet that would overflow and dropping everything after.
// Budget accounting is in runes.
func applyCharBudget(candidates []Candidate, budget int) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	used := 0
	for _, c := range candidates {
		n := len([]rune(c.Snippet))
		if used+n <= budget {
			out = append(out, c)
			used += n
			continue
		}
		remaining := budget - used
		if remaining > len([]rune(truncationMarker)) {
			c.Snippet = truncateRunes(c.Snippet, remaining)
			out = append(out, c)
		}
		break
	}
	return out
}

// truncateRunes caps s at max runes, marker included in the cap.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	keep := max - len([]rune(truncationMarker))
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + truncationMarker
}

// clampLimit resolves the effective result limit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultResultLimit
	}
	if limit > maxResultLimit {
		return maxResultLimit
	}
	return limit
}

// preview shortens text for span attributes.
func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
