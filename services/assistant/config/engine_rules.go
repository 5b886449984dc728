// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the assistant's rule tables and persisted router
// configuration. Rule tables (stopwords, stem suffixes, injection patterns,
// domain-signal keywords) are data, not control flow: they ship as an
// embedded YAML document and can be overridden per locale from disk.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Engine Rules
// =============================================================================

//go:embed engine_rules.yaml
var defaultEngineRulesYAML []byte

// =============================================================================
// Engine Rule Types
// =============================================================================

// EngineRules bundles the locale/data tables consumed by the tokenizer,
// the hybrid scorer, and the recall corpus filter.
//
// Description:
//
//	Every list here is pure data. The tokenizer receives Stopwords and
//	StemSuffixes, the scorer receives DomainSignalKeywords, and the recall
//	corpus builder receives InjectionPatterns. None of the consumers hard-code
//	their tables, so swapping locales is a config change, not a code change.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type EngineRules struct {
	// Stopwords are dropped from every token stream.
	Stopwords []string `yaml:"stopwords"`

	// StemSuffixes is the ordered suffix table for heuristic stemming.
	// Order in the file is advisory; the tokenizer re-sorts longest-first.
	StemSuffixes []string `yaml:"stem_suffixes"`

	// DomainSignalKeywords nudge the hybrid alpha upward when present in a
	// query: these words strongly indicate a concrete assistant domain
	// (mail, agenda, notes), where exact word matching outperforms trigrams.
	DomainSignalKeywords []string `yaml:"domain_signal_keywords"`

	// InjectionPatterns are regex patterns (case-insensitive) matched against
	// memory lines. A matching line is excluded from the recall corpus
	// entirely — recalled memory must never be executable instruction.
	InjectionPatterns []string `yaml:"injection_patterns"`
}

// =============================================================================
// Loading
// =============================================================================

var (
	defaultRulesOnce sync.Once
	defaultRules     *EngineRules
	defaultRulesErr  error
)

// DefaultEngineRules returns the embedded rule tables.
//
// Description:
//
//	Parses the embedded YAML exactly once (sync.Once) and returns the shared
//	immutable instance afterward. A parse failure of the embedded document is
//	a build defect, surfaced as an error rather than a panic so callers can
//	log it with context.
//
// Outputs:
//
//	*EngineRules - The embedded defaults. Shared; callers must not mutate.
//	error        - Non-nil only if the embedded YAML is malformed.
//
// Thread Safety: Safe for concurrent use.
func DefaultEngineRules() (*EngineRules, error) {
	defaultRulesOnce.Do(func() {
		rules := &EngineRules{}
		if err := yaml.Unmarshal(defaultEngineRulesYAML, rules); err != nil {
			defaultRulesErr = fmt.Errorf("parse embedded engine rules: %w", err)
			return
		}
		defaultRules = rules
	})
	return defaultRules, defaultRulesErr
}

// LoadEngineRules loads rule tables from a YAML file, falling back to the
// embedded defaults when path is empty.
//
// Description:
//
//	A per-locale override file replaces the tables wholesale — there is no
//	merging. A missing or unreadable file is an error; deployments that want
//	the defaults pass an empty path.
//
// Inputs:
//
//	path   - YAML file path, or "" for embedded defaults.
//	logger - Logger for diagnostics. May be nil.
//
// Outputs:
//
//	*EngineRules - The loaded tables.
//	error        - Non-nil on read or parse failure.
//
// Thread Safety: Safe for concurrent use.
func LoadEngineRules(path string, logger *slog.Logger) (*EngineRules, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return DefaultEngineRules()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engine rules %s: %w", path, err)
	}
	rules := &EngineRules{}
	if err := yaml.Unmarshal(raw, rules); err != nil {
		return nil, fmt.Errorf("parse engine rules %s: %w", path, err)
	}

	logger.Info("engine rules loaded from file",
		slog.String("path", path),
		slog.Int("stopwords", len(rules.Stopwords)),
		slog.Int("stem_suffixes", len(rules.StemSuffixes)),
		slog.Int("injection_patterns", len(rules.InjectionPatterns)),
	)
	return rules, nil
}
