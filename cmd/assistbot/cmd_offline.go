// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssist/services/assistant"
	"github.com/AleutianAI/AleutianAssist/services/assistant/recall"
	"github.com/AleutianAI/AleutianAssist/services/assistant/routing"
)

// =============================================================================
// One-Shot Commands
// =============================================================================
//
// route / recall / calibrate run the same engine the server exposes, without
// a server — handy for smoke-testing a workspace and for cron-driven
// calibration.

func newRouteCommand() *cobra.Command {
	var allowed []string
	var topK int

	cmd := &cobra.Command{
		Use:   "route <text>",
		Short: "Classify text into a handling route",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			service, err := offlineService()
			if err != nil {
				return err
			}
			defer service.Close()

			decision := service.Router.Route(context.Background(), strings.Join(args, " "), routing.Options{
				Allowed: allowed,
				TopK:    topK,
			})
			if decision == nil {
				fmt.Println("No route qualified.")
				return nil
			}
			return printJSON(decision)
		},
	}
	cmd.Flags().StringSliceVar(&allowed, "allowed", nil, "Restrict candidates to these route names")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Alternatives to include (default 3, max 10)")
	return cmd
}

func newRecallCommand() *cobra.Command {
	var chatID string
	var limit int
	var maxChars int

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Retrieve relevant memory snippets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			service, err := offlineService()
			if err != nil {
				return err
			}
			defer service.Close()

			results := service.Recall.Search(context.Background(), strings.Join(args, " "), recall.SearchOptions{
				ChatID:           chatID,
				Limit:            limit,
				MaxInjectedChars: maxChars,
			})
			if len(results) == 0 {
				fmt.Println("No relevant memories found.")
				return nil
			}
			for i, r := range results {
				fmt.Printf("%d. [%.3f] %s:%d\n   %s\n", i+1, r.Score, r.Path, r.Line, r.Snippet)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "", "Scope the corpus to one chat")
	cmd.Flags().IntVar(&limit, "limit", 0, "Result limit (default 8, max 50)")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Total snippet character budget (0 disables)")
	return cmd
}

func newCalibrateCommand() *cobra.Command {
	var samplesPath string
	var mineNegatives bool
	var persist bool

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Fit route thresholds from a labeled sample file",
		Long: `Fit route thresholds from a labeled sample file.

The samples file is a JSON array of {"text": ..., "expected": ...} objects,
minimum 25 entries. With --persist the fitted thresholds (and any mined
negatives) are written back to the router config file.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(samplesPath)
			if err != nil {
				return fmt.Errorf("read samples: %w", err)
			}
			var samples []routing.LabeledSample
			if err := json.Unmarshal(raw, &samples); err != nil {
				return fmt.Errorf("parse samples: %w", err)
			}

			service, err := offlineService()
			if err != nil {
				return err
			}
			defer service.Close()

			ctx := context.Background()
			if mineNegatives {
				added := service.Router.MineNegatives(ctx, samples, 0)
				fmt.Printf("Mined %d negative examples.\n", added)
			}

			report, err := service.Router.Calibrate(ctx, samples)
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}

			if persist {
				if err := service.SaveConfig(); err != nil {
					return fmt.Errorf("persist config: %w", err)
				}
				fmt.Println("Config persisted.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&samplesPath, "samples", "", "Path to the labeled samples JSON file")
	cmd.Flags().BoolVar(&mineNegatives, "mine-negatives", false, "Also mine negative examples before fitting")
	cmd.Flags().BoolVar(&persist, "persist", false, "Write the fitted config back to disk")
	_ = cmd.MarkFlagRequired("samples")
	return cmd
}

// offlineService builds a service for one-shot commands: no config watcher,
// no server.
func offlineService() (*assistant.Service, error) {
	logger := setupLogger()
	cfg := serviceConfig(logger)
	service, err := assistant.NewService(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("start service: %w", err)
	}
	return service, nil
}

// printJSON renders a value as indented JSON on stdout.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
