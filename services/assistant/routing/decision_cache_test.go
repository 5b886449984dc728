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
	"fmt"
	"testing"
	"time"
)

// =============================================================================
// Decision Cache Tests
// =============================================================================

func TestDecisionCache_HitAndMiss(t *testing.T) {
	c := newDecisionCache()
	d := &Decision{ID: "d1", Handler: "gmail", Score: 0.8}

	if _, ok := c.get("k1"); ok {
		t.Fatal("expected a miss on an empty cache")
	}
	c.put("k1", d)
	got, ok := c.get("k1")
	if !ok || got != d {
		t.Fatalf("get after put: got (%v, %v), want the stored decision", got, ok)
	}
	if _, ok := c.get("k2"); ok {
		t.Error("expected a miss for an unknown key")
	}
}

func TestDecisionCache_NullDecisionsAreEntries(t *testing.T) {
	c := newDecisionCache()
	c.put("null-key", nil)
	got, ok := c.get("null-key")
	if !ok {
		t.Fatal("expected a cached null decision to count as a hit")
	}
	if got != nil {
		t.Errorf("cached null decision = %+v, want nil", got)
	}
}

func TestDecisionCache_TTLExpiry(t *testing.T) {
	c := newDecisionCache()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	c.put("k", &Decision{ID: "d1"})

	now = base.Add(decisionCacheTTL - time.Second)
	if _, ok := c.get("k"); !ok {
		t.Error("entry expired before its TTL elapsed")
	}

	now = base.Add(decisionCacheTTL + time.Second)
	if _, ok := c.get("k"); ok {
		t.Error("entry survived past its TTL")
	}
	if c.size() != 0 {
		t.Errorf("expired entry not removed: size = %d", c.size())
	}
}

func TestDecisionCache_CapEvictsOldestInserted(t *testing.T) {
	c := newDecisionCache()
	c.maxSize = 3

	for i := 0; i < 4; i++ {
		c.put(fmt.Sprintf("k%d", i), &Decision{ID: fmt.Sprintf("d%d", i)})
	}
	if c.size() != 3 {
		t.Fatalf("size = %d, want 3", c.size())
	}
	if _, ok := c.get("k0"); ok {
		t.Error("oldest-inserted entry survived the cap")
	}
	for _, key := range []string{"k1", "k2", "k3"} {
		if _, ok := c.get(key); !ok {
			t.Errorf("expected %s to survive eviction", key)
		}
	}
}

func TestDecisionCache_RefreshKeepsInsertionOrder(t *testing.T) {
	c := newDecisionCache()
	c.maxSize = 2

	c.put("old", &Decision{ID: "d-old"})
	c.put("mid", &Decision{ID: "d-mid"})
	// Refreshing "old" must not move it to the back of the eviction order.
	c.put("old", &Decision{ID: "d-old-2"})
	c.put("new", &Decision{ID: "d-new"})

	if _, ok := c.get("old"); ok {
		t.Error("refreshed entry dodged eviction; refresh must keep insertion position")
	}
	if _, ok := c.get("mid"); !ok {
		t.Error("expected mid to survive")
	}
	if _, ok := c.get("new"); !ok {
		t.Error("expected new to survive")
	}
}

func TestDecisionCache_Clear(t *testing.T) {
	c := newDecisionCache()
	c.put("k1", nil)
	c.put("k2", &Decision{ID: "d2"})
	c.clear()
	if c.size() != 0 {
		t.Errorf("size after clear = %d, want 0", c.size())
	}
	if _, ok := c.get("k2"); ok {
		t.Error("entry survived clear")
	}
}

// =============================================================================
// Cache Key Tests
// =============================================================================

func TestDecisionCacheKey_MapOrderIndependent(t *testing.T) {
	// Build the same option maps with different insertion orders; the key
	// must not depend on Go's map iteration order.
	a := Options{
		Allowed:        []string{"web", "gmail"},
		Boosts:         map[string]float64{"gmail": 0.1, "web": 0.2, "agenda": 0.3},
		AlphaOverrides: map[string]float64{"web": 0.5, "gmail": 0.6},
	}
	b := Options{
		Allowed:        []string{"gmail", "web"},
		Boosts:         map[string]float64{"agenda": 0.3, "web": 0.2, "gmail": 0.1},
		AlphaOverrides: map[string]float64{"gmail": 0.6, "web": 0.5},
	}
	for i := 0; i < 20; i++ {
		ka := decisionCacheKey("enviame un correo", a, 0.03, 3)
		kb := decisionCacheKey("enviame un correo", b, 0.03, 3)
		if ka != kb {
			t.Fatalf("equivalent options produced different keys:\n%s\n%s", ka, kb)
		}
	}
}

func TestDecisionCacheKey_SensitiveToEveryInput(t *testing.T) {
	base := decisionCacheKey("enviame un correo", Options{}, 0.03, 3)
	variants := []string{
		decisionCacheKey("busca en internet", Options{}, 0.03, 3),
		decisionCacheKey("enviame un correo", Options{Allowed: []string{"gmail"}}, 0.03, 3),
		decisionCacheKey("enviame un correo", Options{Boosts: map[string]float64{"gmail": 0.1}}, 0.03, 3),
		decisionCacheKey("enviame un correo", Options{AlphaOverrides: map[string]float64{"gmail": 0.5}}, 0.03, 3),
		decisionCacheKey("enviame un correo", Options{}, 0.05, 3),
		decisionCacheKey("enviame un correo", Options{}, 0.03, 5),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d produced the same key as the base call", i)
		}
	}
}
