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

// =============================================================================
// Model Store — Trained-State Persistence
// =============================================================================
//
// Trained route vectors change only when the route corpus or rule tables
// change. This store persists the full model snapshot (IDF tables, per-route
// centroids, BM25 documents) in BadgerDB between restarts.
//
// Design choices, mirrored from the routing-vector cache this grew out of:
//
//	1. Corpus hash as cache key: SHA256(sorted routes' utterances + rule
//	   table fingerprint). Any change to utterances, negatives, stopwords,
//	   or suffixes produces a different hash, automatically invalidating
//	   the cached snapshot. No explicit invalidation API is needed.
//
//	2. BadgerDB native TTL: 7-day expiry is enforced by BadgerDB's GC.
//	   Expired keys return ErrKeyNotFound, treated as a cache miss.
//
//	3. The decision cache is NOT persisted: it is a 5-minute memoization
//	   layer over a deterministic function and rebuilds itself for free.
//
// Storage layout:
//
//	assist/routes/v1/{corpusHash}  →  gob-encoded relevance.ModelSnapshot
//	                                  TTL: 7 days

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
	badgerstore "github.com/AleutianAI/AleutianAssist/services/assistant/storage/badger"
)

// modelStoreDefaultTTL is the default lifetime of a persisted snapshot.
const modelStoreDefaultTTL = 7 * 24 * time.Hour

// modelStoreKeyPrefix is prepended to the corpus hash to form the key.
// Versioned (v1) to allow future format changes without collision.
const modelStoreKeyPrefix = "assist/routes/v1/"

// errStoreMiss distinguishes "key not found" from genuine storage errors.
var errStoreMiss = errors.New("model store miss")

// ModelStore persists trained model snapshots across restarts.
//
// # Description
//
// Nil-safe by convention: the Router checks for a nil ModelStore and skips
// persistence, operating in in-memory-only mode — correct for tests and for
// deployments without a cache directory configured.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ModelStore interface {
	// LoadModel retrieves the snapshot for a corpus hash.
	// Returns (nil, nil) on miss (absent or TTL expired).
	LoadModel(ctx context.Context, corpusHash string) (*relevance.ModelSnapshot, error)

	// SaveModel persists a snapshot under a corpus hash with the store TTL.
	SaveModel(ctx context.Context, corpusHash string, snap *relevance.ModelSnapshot) error
}

// =============================================================================
// BadgerModelStore
// =============================================================================

// BadgerModelStore implements ModelStore over a BadgerDB instance.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type BadgerModelStore struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerModelStore creates a store backed by an opened DB.
//
// # Inputs
//
//   - db: Opened BadgerDB wrapper. Must not be nil; the caller owns its
//     lifecycle.
//   - ttl: Snapshot lifetime. 0 selects the default (7 days).
//   - logger: Logger for hit/miss diagnostics. May be nil.
//
// # Outputs
//
//   - *BadgerModelStore: Ready-to-use store. Never nil.
func NewBadgerModelStore(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *BadgerModelStore {
	if db == nil {
		panic("NewBadgerModelStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = modelStoreDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerModelStore{db: db, ttl: ttl, logger: logger}
}

// LoadModel retrieves a persisted snapshot.
//
// Returns (nil, nil) on miss, (nil, error) on storage or decode failure.
func (s *BadgerModelStore) LoadModel(ctx context.Context, corpusHash string) (*relevance.ModelSnapshot, error) {
	key := []byte(modelStoreKeyPrefix + corpusHash)

	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errStoreMiss
		}
		if err != nil {
			return fmt.Errorf("get snapshot key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errStoreMiss) {
		s.logger.Debug("model store: miss", slog.String("hash", shortHash(corpusHash)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("model store load: %w", err)
	}

	snap := &relevance.ModelSnapshot{}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(snap); err != nil {
		return nil, fmt.Errorf("model store decode: %w", err)
	}

	s.logger.Debug("model store: hit",
		slog.String("hash", shortHash(corpusHash)),
		slog.Int("routes", len(snap.Routes)),
	)
	return snap, nil
}

// SaveModel persists a snapshot with the store TTL.
func (s *BadgerModelStore) SaveModel(ctx context.Context, corpusHash string, snap *relevance.ModelSnapshot) error {
	if snap == nil || len(snap.Routes) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("model store encode: %w", err)
	}

	key := []byte(modelStoreKeyPrefix + corpusHash)
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, buf.Bytes()).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("model store save: %w", err)
	}

	s.logger.Debug("model store: saved",
		slog.String("hash", shortHash(corpusHash)),
		slog.Int("routes", len(snap.Routes)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// =============================================================================
// Corpus Hash
// =============================================================================

// corpusHashLocked digests everything that determines trained vector shape:
// route names, sorted utterances and negatives, and the rule tables the
// tokenizer was built from. Thresholds and alpha are deliberately excluded —
// they gate scores but do not shape vectors, and calibration must not
// invalidate the snapshot. Caller holds at least the read lock.
func (r *Router) corpusHashLocked() string {
	h := sha256.New()
	for _, name := range r.routeNames {
		route := r.routes[name]

		utterances := make([]string, len(route.Utterances))
		copy(utterances, route.Utterances)
		sort.Strings(utterances)

		negatives := make([]string, len(route.NegativeUtterances))
		copy(negatives, route.NegativeUtterances)
		sort.Strings(negatives)

		// Tab-delimited fields; newline terminates each route entry.
		fmt.Fprintf(h, "%s\t%s\t%s\n", name, strings.Join(utterances, ","), strings.Join(negatives, ","))
	}
	fmt.Fprintf(h, "rules=%s\n", rulesFingerprint(r.rules.Stopwords, r.rules.StemSuffixes))
	return hex.EncodeToString(h.Sum(nil))
}

// rulesFingerprint digests the tokenizer rule tables.
func rulesFingerprint(stopwords, suffixes []string) string {
	h := sha256.New()
	sortedStop := make([]string, len(stopwords))
	copy(sortedStop, stopwords)
	sort.Strings(sortedStop)
	fmt.Fprintf(h, "stop=%s\n", strings.Join(sortedStop, ","))
	fmt.Fprintf(h, "suffix=%s\n", strings.Join(suffixes, ","))
	return hex.EncodeToString(h.Sum(nil))
}

// shortHash returns the first 8 characters of a hash for log display.
func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}

var _ ModelStore = (*BadgerModelStore)(nil)
