// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Persisted Router Configuration
// =============================================================================

// RouterConfigVersion is the current on-disk schema version.
const RouterConfigVersion = 1

// ErrNoValidRoutes is returned when a loaded config contains zero routes
// after dropping unknown names. A router cannot operate without routes, so
// this is a hard configuration error (recoverable via createIfMissing).
var ErrNoValidRoutes = errors.New("router config: no valid routes")

// routerConfigValidator validates struct tags on load and save.
// validator.Validate is safe for concurrent use and caches struct metadata,
// so a single package-level instance is the intended usage.
var routerConfigValidator = validator.New()

// RouteConfig is the persisted form of a single route (named intent).
//
// Description:
//
//	Thresholds and alpha are validated against their domains on load; values
//	outside the domain reject the file rather than being silently clamped —
//	a hand-edited config with threshold 1.5 is a mistake worth surfacing.
//
// Thread Safety: Plain data; copy freely.
type RouteConfig struct {
	// Name is the route's enum tag ("gmail", "web", ...).
	Name string `json:"name" validate:"required"`

	// Threshold is the minimum hybrid score for this route to win.
	Threshold float64 `json:"threshold" validate:"gte=0.01,lte=0.99"`

	// Utterances are the positive training examples.
	Utterances []string `json:"utterances" validate:"min=1,dive,required"`

	// NegativeUtterances are mined or hand-written counter-examples.
	NegativeUtterances []string `json:"negativeUtterances,omitempty"`

	// Alpha optionally overrides the global hybrid alpha for this route.
	Alpha *float64 `json:"alpha,omitempty" validate:"omitempty,gte=0.05,lte=0.95"`
}

// RouterConfig is the persisted router configuration file schema.
//
// Description:
//
//	Serialized as JSON. Saving always writes the full in-memory route set;
//	loading drops routes whose names are not in the caller-supplied known
//	set and rejects files that end up with zero routes.
//
// Thread Safety: Plain data; copy freely.
type RouterConfig struct {
	// Version is the schema version. Unknown future versions are rejected.
	Version int `json:"version" validate:"required,gte=1"`

	// UpdatedAt records the last save time (RFC 3339).
	UpdatedAt time.Time `json:"updatedAt"`

	// HybridAlpha is the global word/char blend weight.
	HybridAlpha float64 `json:"hybridAlpha" validate:"gte=0.05,lte=0.95"`

	// MinScoreGap is the default winner-vs-runner-up margin.
	MinScoreGap float64 `json:"minScoreGap" validate:"gte=0,lte=0.5"`

	// Routes is the full route set.
	Routes []RouteConfig `json:"routes" validate:"min=1,dive"`
}

// =============================================================================
// Load / Save
// =============================================================================

// LoadRouterConfig reads and validates a persisted router config.
//
// Description:
//
//	Routes whose names are absent from knownRoutes are dropped silently
//	(logged at debug) — they belong to a newer or older build of the bot.
//	A file reducing to zero valid routes yields ErrNoValidRoutes. When the
//	file does not exist and createIfMissing is true, defaults is written to
//	disk and returned; with createIfMissing false the os.IsNotExist error is
//	surfaced to the caller.
//
// Inputs:
//
//	path            - Config file path. Must not be empty.
//	knownRoutes     - Route names this build understands. Must not be empty.
//	defaults        - Config to write when the file is missing. Used only
//	                  when createIfMissing is true.
//	createIfMissing - Whether a missing file is bootstrapped from defaults.
//	logger          - Logger for diagnostics. May be nil.
//
// Outputs:
//
//	*RouterConfig - The validated config.
//	error         - Non-nil on read, parse, or validation failure.
//
// Thread Safety: Safe for concurrent use (no shared mutable state).
func LoadRouterConfig(path string, knownRoutes []string, defaults *RouterConfig, createIfMissing bool, logger *slog.Logger) (*RouterConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) && createIfMissing && defaults != nil {
		logger.Info("router config missing, writing defaults",
			slog.String("path", path),
			slog.Int("routes", len(defaults.Routes)),
		)
		if saveErr := SaveRouterConfig(path, defaults); saveErr != nil {
			return nil, fmt.Errorf("bootstrap router config: %w", saveErr)
		}
		cloned := *defaults
		return &cloned, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read router config %s: %w", path, err)
	}

	cfg := &RouterConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse router config %s: %w", path, err)
	}
	if cfg.Version > RouterConfigVersion {
		return nil, fmt.Errorf("router config %s: unsupported version %d (max %d)", path, cfg.Version, RouterConfigVersion)
	}

	// Drop routes this build does not understand.
	known := make(map[string]bool, len(knownRoutes))
	for _, name := range knownRoutes {
		known[name] = true
	}
	kept := cfg.Routes[:0]
	for _, rc := range cfg.Routes {
		if !known[rc.Name] {
			logger.Debug("router config: dropping unknown route",
				slog.String("route", rc.Name),
			)
			continue
		}
		kept = append(kept, rc)
	}
	cfg.Routes = kept

	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("%w (path=%s)", ErrNoValidRoutes, path)
	}

	if err := routerConfigValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate router config %s: %w", path, err)
	}

	logger.Info("router config loaded",
		slog.String("path", path),
		slog.Int("routes", len(cfg.Routes)),
		slog.Float64("hybrid_alpha", cfg.HybridAlpha),
	)
	return cfg, nil
}

// SaveRouterConfig atomically writes the full config to disk.
//
// Description:
//
//	Validates, stamps UpdatedAt, marshals with indentation (the file is
//	hand-editable), writes to a temp file in the same directory, and renames
//	into place so readers never observe a torn write.
//
// Inputs:
//
//	path - Destination file path. Parent directories are created.
//	cfg  - Config to persist. Must not be nil.
//
// Outputs:
//
//	error - Non-nil on validation, marshal, or I/O failure.
//
// Thread Safety: Callers must serialize saves to the same path.
func SaveRouterConfig(path string, cfg *RouterConfig) error {
	if cfg.Version == 0 {
		cfg.Version = RouterConfigVersion
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := routerConfigValidator.Struct(cfg); err != nil {
		return fmt.Errorf("validate router config: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal router config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".router-config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename config into place: %w", err)
	}
	return nil
}
