// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore wraps BadgerDB behind a small transactional API.
// Derived routing state (trained model snapshots) lives here; user data
// never does — memory files on disk remain the source of truth.
package badgerstore

import (
	"context"
	"fmt"
	"log/slog"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// DB is a thin wrapper over a BadgerDB instance.
//
// # Description
//
// Adds context checks around transactions and silences BadgerDB's internal
// logger in favor of slog. The DB is expected to be a process-global
// singleton opened at startup; callers own the lifecycle.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type DB struct {
	inner  *dgbadger.DB
	logger *slog.Logger
}

// Open opens (or creates) a BadgerDB at the given directory.
//
// # Inputs
//
//   - path: Directory for the database files. Created if absent.
//   - logger: Logger for diagnostics. May be nil.
//
// # Outputs
//
//   - *DB: The opened database.
//   - error: Non-nil if BadgerDB cannot open the directory.
//
// # Thread Safety
//
// Call once at startup.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := dgbadger.DefaultOptions(path).WithLogger(nil)
	inner, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	logger.Debug("badger store opened", slog.String("path", path))
	return &DB{inner: inner, logger: logger}, nil
}

// WithTxn runs fn inside a read-write transaction.
func (db *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.inner.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (db *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.inner.View(fn)
}

// Close releases the underlying database.
func (db *DB) Close() error {
	return db.inner.Close()
}
