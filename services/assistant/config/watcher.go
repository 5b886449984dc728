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
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// Router Config Watcher
// =============================================================================

// watchDebounce collapses bursts of filesystem events (editors typically
// emit several writes plus a rename per save) into a single reload.
const watchDebounce = 250 * time.Millisecond

// WatchRouterConfig watches a router config file and invokes onChange after
// each modification.
//
// Description:
//
//	Watches the parent directory rather than the file itself: SaveRouterConfig
//	replaces the file via rename, which would silently detach a file-level
//	watch. Events are debounced, then onChange runs on the watcher goroutine;
//	a slow or failing onChange delays further reloads but never crashes the
//	watcher. The watch ends when ctx is cancelled.
//
// Inputs:
//
//	ctx      - Controls the watcher lifetime. Must not be nil.
//	path     - Router config file path. The parent directory must exist.
//	onChange - Callback invoked after each settled modification. Errors are
//	           logged, not propagated. Must not be nil.
//	logger   - Logger for diagnostics. May be nil.
//
// Outputs:
//
//	error - Non-nil only if the watch could not be established.
//
// Thread Safety: onChange is never invoked concurrently with itself.
func WatchRouterConfig(ctx context.Context, path string, onChange func() error, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", dir, err)
	}

	target := filepath.Clean(path)

	go func() {
		defer func() { _ = watcher.Close() }()

		var debounce *time.Timer
		var debounceC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(watchDebounce)
					debounceC = debounce.C
				} else {
					debounce.Reset(watchDebounce)
				}

			case <-debounceC:
				debounce = nil
				debounceC = nil
				logger.Info("router config changed on disk, reloading",
					slog.String("path", path),
				)
				if err := onChange(); err != nil {
					logger.Warn("router config reload failed, keeping previous config",
						slog.String("path", path),
						slog.String("error", err.Error()),
					)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error",
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	return nil
}
