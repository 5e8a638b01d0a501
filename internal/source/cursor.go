// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package source

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/icewatch/icewatch/internal/logging"
)

// CursorStore persists per-source pagination cursors in an embedded
// BadgerDB so adapters resume where they left off after a restart
// instead of re-fetching history.
type CursorStore struct {
	db *badger.DB
}

// OpenCursorStore opens (or creates) the cursor database at path.
func OpenCursorStore(path string) (*CursorStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithCompactL0OnClose(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cursor store at %s: %w", path, err)
	}
	return &CursorStore{db: db}, nil
}

// Close flushes and closes the database.
func (cs *CursorStore) Close() error {
	return cs.db.Close()
}

// Get returns the stored cursor for a source, or "" when none exists.
func (cs *CursorStore) Get(source string) (string, error) {
	var cursor string
	err := cs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("cursor/" + source))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			cursor = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading cursor for %s: %w", source, err)
	}
	return cursor, nil
}

// Set stores the cursor for a source. A failed cursor write is logged
// and non-fatal: the dedup index absorbs any re-fetch on restart.
func (cs *CursorStore) Set(source, cursor string) error {
	err := cs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("cursor/"+source), []byte(cursor))
	})
	if err != nil {
		logging.Warn().Err(err).Str("source", source).Msg("cursor write failed")
		return fmt.Errorf("writing cursor for %s: %w", source, err)
	}
	return nil
}
