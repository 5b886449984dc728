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
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Decision Cache
// =============================================================================

// Decision cache sizing. The cache is a pure memoization layer over a
// deterministic function — safe to clear at any time without correctness
// loss, so both bounds are deliberately tight.
const (
	decisionCacheTTL     = 5 * time.Minute
	decisionCacheMaxSize = 512
)

// cacheEntry is one cached routing outcome. decision is nil for cached
// "no route qualifies" results — null decisions are cached too, otherwise
// the most common outcome would always pay full scoring cost.
type cacheEntry struct {
	key      string
	cachedAt time.Time
	decision *Decision
}

// decisionCache memoizes routing decisions under a tuple key of the
// normalized text and every option that can change the outcome.
//
// # Description
//
// TTL-based with a hard entry cap; when the cap is exceeded the
// oldest-inserted entry is evicted first (insertion-ordered list, not LRU —
// a hot entry does not get to outlive its TTL window through sheer
// popularity).
//
// # Thread Safety
//
// Safe for concurrent use.
type decisionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front = oldest inserted

	// now is injectable for TTL tests.
	now func() time.Time
}

// newDecisionCache creates an empty cache with the package defaults.
func newDecisionCache() *decisionCache {
	return &decisionCache{
		ttl:     decisionCacheTTL,
		maxSize: decisionCacheMaxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// get returns the cached decision for key. The second return reports whether
// a live entry existed; the decision itself may be nil (cached null).
func (c *decisionCache) get(key string) (*Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		routerCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.cachedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		routerCacheTotal.WithLabelValues("expired").Inc()
		return nil, false
	}
	routerCacheTotal.WithLabelValues("hit").Inc()
	return entry.decision, true
}

// put stores a decision (possibly nil) under key, evicting oldest-inserted
// entries past the cap.
func (c *decisionCache) put(key string, decision *Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		// Refresh in place; keep original insertion position.
		entry := el.Value.(*cacheEntry)
		entry.cachedAt = c.now()
		entry.decision = decision
		return
	}

	el := c.order.PushBack(&cacheEntry{key: key, cachedAt: c.now(), decision: decision})
	c.entries[key] = el

	for len(c.entries) > c.maxSize {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// clear drops every entry. Called on retrain — cached decisions reflect the
// previous model.
func (c *decisionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// size returns the current entry count.
func (c *decisionCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// =============================================================================
// Cache Key
// =============================================================================

// decisionCacheKey builds a deterministic digest of the normalized text and
// all outcome-affecting options.
//
// Follows the corpus-hash pattern: tab-delimited fields written through
// SHA-256, maps serialized in sorted key order so Go's map iteration order
// cannot perturb the key.
func decisionCacheKey(normalized string, opts Options, effectiveMinGap float64, effectiveTopK int) string {
	h := sha256.New()
	fmt.Fprintf(h, "text=%s\n", normalized)

	allowed := make([]string, len(opts.Allowed))
	copy(allowed, opts.Allowed)
	sort.Strings(allowed)
	fmt.Fprintf(h, "allowed=%v\n", allowed)

	fmt.Fprintf(h, "boosts=%s\n", sortedMapString(opts.Boosts))
	fmt.Fprintf(h, "alpha=%s\n", sortedMapString(opts.AlphaOverrides))
	fmt.Fprintf(h, "topk=%d\tmingap=%.6f\n", effectiveTopK, effectiveMinGap)

	return hex.EncodeToString(h.Sum(nil))
}

// sortedMapString renders a map deterministically as k=v;k=v in key order.
func sortedMapString(m map[string]float64) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%s=%.6f;", k, m[k])
	}
	return out
}
