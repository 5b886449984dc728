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
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// Fixtures
// =============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleConfig() *RouterConfig {
	alpha := 0.8
	return &RouterConfig{
		Version:     RouterConfigVersion,
		HybridAlpha: 0.72,
		MinScoreGap: 0.03,
		Routes: []RouteConfig{
			{
				Name:       "gmail",
				Threshold:  0.35,
				Utterances: []string{"enviar correo", "revisa mi correo"},
				Alpha:      &alpha,
			},
			{
				Name:               "web",
				Threshold:          0.3,
				Utterances:         []string{"busca en internet"},
				NegativeUtterances: []string{"busca mi correo"},
			},
		},
	}
}

var knownRoutes = []string{"gmail", "web", "agenda", "notas"}

// =============================================================================
// Save / Load Tests
// =============================================================================

func TestSaveLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router-config.json")
	if err := SaveRouterConfig(path, sampleConfig()); err != nil {
		t.Fatalf("SaveRouterConfig: %v", err)
	}

	loaded, err := LoadRouterConfig(path, knownRoutes, nil, false, discardLogger())
	if err != nil {
		t.Fatalf("LoadRouterConfig: %v", err)
	}
	if loaded.HybridAlpha != 0.72 || loaded.MinScoreGap != 0.03 {
		t.Errorf("globals lost: alpha=%v gap=%v", loaded.HybridAlpha, loaded.MinScoreGap)
	}
	if len(loaded.Routes) != 2 {
		t.Fatalf("got %d routes, want 2", len(loaded.Routes))
	}
	gmail := loaded.Routes[0]
	if gmail.Name != "gmail" || gmail.Threshold != 0.35 || len(gmail.Utterances) != 2 {
		t.Errorf("gmail route mangled: %+v", gmail)
	}
	if gmail.Alpha == nil || *gmail.Alpha != 0.8 {
		t.Errorf("gmail alpha override lost: %v", gmail.Alpha)
	}
	if web := loaded.Routes[1]; len(web.NegativeUtterances) != 1 {
		t.Errorf("web negatives lost: %+v", web)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped on save")
	}
}

func TestSave_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "router-config.json")
	if err := SaveRouterConfig(path, sampleConfig()); err != nil {
		t.Fatalf("SaveRouterConfig: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not written: %v", err)
	}
}

func TestSave_RejectsInvalidConfig(t *testing.T) {
	cfg := sampleConfig()
	cfg.Routes[0].Threshold = 1.5 // outside [0.01, 0.99]
	path := filepath.Join(t.TempDir(), "router-config.json")
	if err := SaveRouterConfig(path, cfg); err == nil {
		t.Fatal("expected a validation error for an out-of-domain threshold")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid config still reached disk")
	}
}

// =============================================================================
// Load Edge Cases
// =============================================================================

func TestLoad_BootstrapsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router-config.json")
	defaults := sampleConfig()

	loaded, err := LoadRouterConfig(path, knownRoutes, defaults, true, discardLogger())
	if err != nil {
		t.Fatalf("LoadRouterConfig with bootstrap: %v", err)
	}
	if len(loaded.Routes) != len(defaults.Routes) {
		t.Errorf("bootstrap returned %d routes, want %d", len(loaded.Routes), len(defaults.Routes))
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("defaults were not persisted: %v", err)
	}

	// A second load must read the persisted file, not bootstrap again.
	again, err := LoadRouterConfig(path, knownRoutes, nil, false, discardLogger())
	if err != nil {
		t.Fatalf("reload after bootstrap: %v", err)
	}
	if len(again.Routes) != len(defaults.Routes) {
		t.Errorf("persisted defaults reload mismatch: %d routes", len(again.Routes))
	}
}

func TestLoad_MissingFileWithoutBootstrap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	if _, err := LoadRouterConfig(path, knownRoutes, nil, false, discardLogger()); err == nil {
		t.Fatal("expected an error for a missing file without bootstrap")
	}
}

func TestLoad_DropsUnknownRoutes(t *testing.T) {
	cfg := sampleConfig()
	cfg.Routes = append(cfg.Routes, RouteConfig{
		Name:       "telegram",
		Threshold:  0.3,
		Utterances: []string{"manda un mensaje"},
	})
	path := filepath.Join(t.TempDir(), "router-config.json")
	if err := SaveRouterConfig(path, cfg); err != nil {
		t.Fatalf("SaveRouterConfig: %v", err)
	}

	loaded, err := LoadRouterConfig(path, knownRoutes, nil, false, discardLogger())
	if err != nil {
		t.Fatalf("LoadRouterConfig: %v", err)
	}
	for _, rc := range loaded.Routes {
		if rc.Name == "telegram" {
			t.Error("unknown route survived loading")
		}
	}
	if len(loaded.Routes) != 2 {
		t.Errorf("got %d routes after dropping, want 2", len(loaded.Routes))
	}
}

func TestLoad_AllRoutesUnknown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router-config.json")
	if err := SaveRouterConfig(path, sampleConfig()); err != nil {
		t.Fatalf("SaveRouterConfig: %v", err)
	}

	_, err := LoadRouterConfig(path, []string{"calendar"}, nil, false, discardLogger())
	if !errors.Is(err, ErrNoValidRoutes) {
		t.Fatalf("got %v, want ErrNoValidRoutes", err)
	}
}

func TestLoad_RejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router-config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRouterConfig(path, knownRoutes, nil, false, discardLogger()); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoad_RejectsFutureVersion(t *testing.T) {
	raw := `{"version": 99, "hybridAlpha": 0.72, "minScoreGap": 0.03,
		"routes": [{"name": "gmail", "threshold": 0.3, "utterances": ["enviar correo"]}]}`
	path := filepath.Join(t.TempDir(), "router-config.json")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRouterConfig(path, knownRoutes, nil, false, discardLogger()); err == nil {
		t.Fatal("expected an unsupported-version error")
	}
}

func TestLoad_RejectsOutOfDomainValues(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{
			"threshold above max",
			`{"version": 1, "hybridAlpha": 0.72, "minScoreGap": 0.03,
				"routes": [{"name": "gmail", "threshold": 1.5, "utterances": ["enviar correo"]}]}`,
		},
		{
			"alpha below min",
			`{"version": 1, "hybridAlpha": 0.01, "minScoreGap": 0.03,
				"routes": [{"name": "gmail", "threshold": 0.3, "utterances": ["enviar correo"]}]}`,
		},
		{
			"route without utterances",
			`{"version": 1, "hybridAlpha": 0.72, "minScoreGap": 0.03,
				"routes": [{"name": "gmail", "threshold": 0.3, "utterances": []}]}`,
		},
	}
	for _, tc := range cases {
		path := filepath.Join(t.TempDir(), "router-config.json")
		if err := os.WriteFile(path, []byte(tc.raw), 0o644); err != nil {
			t.Fatalf("%s: write: %v", tc.name, err)
		}
		if _, err := LoadRouterConfig(path, knownRoutes, nil, false, discardLogger()); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}
