// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// model_cache_dump inspects the assistant's trained-model cache.
//
// The model store persists trained routing snapshots (IDF tables, route
// centroids, BM25 documents) in BadgerDB between service restarts, keyed by
// corpus hash. This tool opens the cache read-only and prints a
// human-readable summary: keys, corpus hashes, TTL remaining, vocabulary
// sizes, and per-route centroid stats with each route's top-weighted terms.
//
// Usage:
//
//	model_cache_dump [--path /path/to/cache]
//
// If --path is not given, reads ASSIST_CACHE_DIR from the environment,
// falling back to ~/.assistbot/cache/.
//
// Exit codes:
//
//	0 — success (including "empty cache" which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"bytes"
	"encoding/gob"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianAssist/services/assistant/relevance"
)

// modelStoreKeyPrefix must match model_store.go exactly.
const modelStoreKeyPrefix = "assist/routes/v1/"

func main() {
	pathFlag := flag.String("path", "", "Path to the cache BadgerDB directory (overrides ASSIST_CACHE_DIR env var)")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("ASSIST_CACHE_DIR")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".assistbot", "cache")
	}

	fmt.Printf("Model cache path: %s\n", dbPath)

	// Check existence before trying to open — gives a cleaner error message
	// than BadgerDB's "no such file or directory" buried in a long error.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Cache directory does not exist. The service has not yet persisted a trained model.")
		fmt.Println("Run 'assistbot serve --cache-dir <path>' to populate the cache.")
		os.Exit(0)
	}

	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil). // suppress BadgerDB internal logs
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	type entry struct {
		key        string
		corpusHash string
		expiresAt  time.Time
		hasExpiry  bool
		snap       *relevance.ModelSnapshot
		rawSize    int
		decodeErr  error
	}

	var entries []entry

	err = db.View(func(txn *dgbadger.Txn) error {
		iterOpts := dgbadger.DefaultIteratorOptions
		iterOpts.PrefetchValues = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		prefix := []byte(modelStoreKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			var e entry
			e.key = key
			e.corpusHash = strings.TrimPrefix(key, modelStoreKeyPrefix)

			// TTL: item.ExpiresAt() returns Unix seconds, 0 = no expiry.
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)

			snap := &relevance.ModelSnapshot{}
			if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(snap); err != nil {
				e.decodeErr = fmt.Errorf("gob decode: %w", err)
			} else {
				e.snap = snap
			}

			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("\nNo model cache entries found.")
		fmt.Println("The service has opened the cache but has not completed a warm cycle yet.")
		os.Exit(0)
	}

	fmt.Printf("\nFound %d model cache entr%s:\n", len(entries), plural(len(entries), "y", "ies"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Printf("\n[%d] Key:         %s\n", i+1, e.key)
		fmt.Printf("    Corpus hash: %s\n", e.corpusHash)

		if e.hasExpiry {
			remaining := time.Until(e.expiresAt)
			if remaining < 0 {
				fmt.Printf("    TTL:         EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
			} else {
				fmt.Printf("    TTL:         %s remaining (expires %s)\n",
					remaining.Round(time.Second),
					e.expiresAt.Format("2006-01-02 15:04:05 MST"),
				)
			}
		} else {
			fmt.Printf("    TTL:         no expiry set\n")
		}

		fmt.Printf("    Raw size:    %s\n", formatBytes(e.rawSize))

		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		fmt.Printf("    Vocabulary:  %d word terms, %d char trigrams, avg doc len %.2f\n",
			len(e.snap.WordIDF), len(e.snap.CharIDF), e.snap.AvgDocLen)
		fmt.Printf("    Routes:      %d\n", len(e.snap.Routes))

		// Column width from the longest route name.
		maxNameLen := 0
		for _, rs := range e.snap.Routes {
			if len(rs.Name) > maxNameLen {
				maxNameLen = len(rs.Name)
			}
		}
		colWidth := maxNameLen + 2

		fmt.Printf("\n    %-*s  %4s  %6s  %6s  %7s  %s\n", colWidth, "Route", "Docs", "Word", "Char", "NegWord", "Top terms")
		fmt.Printf("    %s  %s  %s  %s  %s  %s\n",
			strings.Repeat("─", colWidth),
			strings.Repeat("─", 4),
			strings.Repeat("─", 6),
			strings.Repeat("─", 6),
			strings.Repeat("─", 7),
			strings.Repeat("─", 32),
		)

		for _, rs := range e.snap.Routes {
			fmt.Printf("    %-*s  %4d  %6d  %6d  %7d  %s\n",
				colWidth, rs.Name, len(rs.Docs), len(rs.Word), len(rs.Char), len(rs.NegWord),
				topTerms(rs.Word, 4),
			)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d entr%s, cache path: %s\n",
		len(entries), plural(len(entries), "y", "ies"), dbPath)
}

// topTerms renders a centroid's n highest-weighted terms for inspection.
func topTerms(v relevance.Vector, n int) string {
	if len(v) == 0 {
		return "[]"
	}
	type tw struct {
		term   string
		weight float64
	}
	terms := make([]tw, 0, len(v))
	for term, w := range v {
		terms = append(terms, tw{term, w})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].weight != terms[j].weight {
			return terms[i].weight > terms[j].weight
		}
		return terms[i].term < terms[j].term
	})
	if n > len(terms) {
		n = len(terms)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%s:%.3f", terms[i].term, terms[i].weight)
	}
	suffix := ""
	if len(terms) > n {
		suffix = " ..."
	}
	return "[" + strings.Join(parts, ", ") + suffix + "]"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "model_cache_dump: "+format+"\n", args...)
	os.Exit(1)
}
