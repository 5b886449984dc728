// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command assistbot runs the assistant relevance core: the intent router and
// the memory-recall engine, as an HTTP service or as one-shot CLI calls.
//
// Usage:
//
//	assistbot serve --port 8080
//	assistbot route "enviame un correo a x@y.com"
//	assistbot recall "equipo de futbol" --chat-id 12345 --limit 5
//	assistbot calibrate --samples samples.json --persist
//
// Example requests against the server:
//
//	curl http://localhost:8080/v1/assistant/health
//
//	curl -X POST http://localhost:8080/v1/assistant/route \
//	  -H "Content-Type: application/json" \
//	  -d '{"text": "enviame un correo a x@y.com"}'
//
//	curl -X POST http://localhost:8080/v1/assistant/recall \
//	  -H "Content-Type: application/json" \
//	  -d '{"query": "equipo de futbol", "chatId": "12345", "limit": 5}'
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssist/services/assistant"
)

// Persistent flag values shared by every subcommand.
var (
	flagConfigPath string
	flagMemoryRoot string
	flagCacheDir   string
	flagDebug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "assistbot",
		Short: "Assistant relevance core: intent routing and memory recall",
	}

	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Router config JSON path (default ~/.assistbot/router-config.json)")
	rootCmd.PersistentFlags().StringVar(&flagMemoryRoot, "memory-root", "", "Memory archive root (default ~/.assistbot/memory)")
	rootCmd.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "Trained-state BadgerDB directory (empty disables persistence)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRouteCommand())
	rootCmd.AddCommand(newRecallCommand())
	rootCmd.AddCommand(newCalibrateCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogger installs the process-wide slog handler.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// serviceConfig resolves the effective service config from flags and the
// conventional ~/.assistbot workspace layout.
func serviceConfig(logger *slog.Logger) assistant.ServiceConfig {
	cfg := assistant.ServiceConfig{
		ConfigPath: flagConfigPath,
		MemoryRoot: flagMemoryRoot,
		CacheDir:   flagCacheDir,
		Logger:     logger,
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	workspace := filepath.Join(home, ".assistbot")
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(workspace, "router-config.json")
	}
	if cfg.MemoryRoot == "" {
		cfg.MemoryRoot = filepath.Join(workspace, "memory")
	}
	return cfg
}
