// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant wires the intent router and the memory-recall engine
// into one service with a persisted config, optional trained-state cache,
// config hot reload, and an HTTP surface.
package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianAssist/services/assistant/config"
	"github.com/AleutianAI/AleutianAssist/services/assistant/recall"
	"github.com/AleutianAI/AleutianAssist/services/assistant/routing"
	badgerstore "github.com/AleutianAI/AleutianAssist/services/assistant/storage/badger"
)

// =============================================================================
// Service
// =============================================================================

// ServiceConfig configures service construction.
type ServiceConfig struct {
	// ConfigPath is the persisted router config JSON file. Bootstrapped
	// from defaults when missing.
	ConfigPath string

	// MemoryRoot is the memory archive root directory.
	MemoryRoot string

	// CacheDir is the BadgerDB directory for trained-state persistence.
	// Empty disables persistence (in-memory training only).
	CacheDir string

	// WatchConfig enables fsnotify hot reload of the router config file.
	WatchConfig bool

	// Logger is the service logger. May be nil.
	Logger *slog.Logger
}

// DefaultServiceConfig returns the conventional workspace-relative layout.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ConfigPath: "router-config.json",
		MemoryRoot: "memory",
	}
}

// Service owns the router and recall engine plus their shared lifecycle.
//
// # Thread Safety
//
// Safe for concurrent use after construction; Router and Recall carry their
// own synchronization.
type Service struct {
	Router *routing.Router
	Recall *recall.Engine

	cfg    ServiceConfig
	db     *badgerstore.DB
	logger *slog.Logger
}

// NewService constructs and warms the full assistant core.
//
// # Description
//
// Loads (or bootstraps) the router config, opens the optional trained-state
// cache, trains the router, warms it from the cache, and builds the recall
// engine over the memory root. With WatchConfig set, a background goroutine
// reloads the router on config file changes until ctx is canceled.
//
// # Inputs
//
//   - ctx: Governs the optional config watcher's lifetime. Must not be nil.
//   - cfg: Service configuration. Zero-value fields select defaults.
//
// # Outputs
//
//   - *Service: Ready-to-serve service. Call Close on shutdown.
//   - error: Non-nil on config or storage failure.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = DefaultServiceConfig().ConfigPath
	}
	if cfg.MemoryRoot == "" {
		cfg.MemoryRoot = DefaultServiceConfig().MemoryRoot
	}

	rules, err := config.DefaultEngineRules()
	if err != nil {
		return nil, fmt.Errorf("load engine rules: %w", err)
	}

	routerCfg, err := config.LoadRouterConfig(cfg.ConfigPath, DefaultRouteNames(), DefaultRouterConfig(), true, logger)
	if err != nil {
		return nil, fmt.Errorf("load router config: %w", err)
	}

	s := &Service{cfg: cfg, logger: logger}

	var store routing.ModelStore
	if cfg.CacheDir != "" {
		db, err := badgerstore.Open(cfg.CacheDir, logger)
		if err != nil {
			return nil, fmt.Errorf("open trained-state cache: %w", err)
		}
		s.db = db
		store = routing.NewBadgerModelStore(db, 0, logger)
	}

	router, err := routing.NewRouter(routerCfg, rules, store, logger)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("build router: %w", err)
	}
	router.Warm(ctx)
	s.Router = router

	engine, err := recall.NewEngine(cfg.MemoryRoot, rules, logger)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("build recall engine: %w", err)
	}
	s.Recall = engine

	if cfg.WatchConfig {
		go func() {
			err := config.WatchRouterConfig(ctx, cfg.ConfigPath, s.reloadRouterConfig, logger)
			if err != nil && ctx.Err() == nil {
				logger.Error("router config watcher stopped",
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	return s, nil
}

// reloadRouterConfig re-reads the config file and swaps the route set.
func (s *Service) reloadRouterConfig() error {
	cfg, err := config.LoadRouterConfig(s.cfg.ConfigPath, DefaultRouteNames(), nil, false, s.logger)
	if err != nil {
		return fmt.Errorf("reload router config: %w", err)
	}
	return s.Router.Reload(cfg)
}

// SaveConfig persists the current in-memory route set — always the full set,
// including calibrated thresholds and mined negatives.
func (s *Service) SaveConfig() error {
	return config.SaveRouterConfig(s.cfg.ConfigPath, s.Router.ExportConfig())
}

// Close releases the trained-state cache. Idempotent.
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.Close()
}
