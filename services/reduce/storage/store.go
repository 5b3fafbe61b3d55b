// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const recordPrefix = "run/"

// BadgerStore keeps records in BadgerDB under "run/<id>/<pass>", with the
// pass zero-padded so keys sort in pass order.
//
// Thread Safety: safe for concurrent use.
type BadgerStore struct {
	db *DB
}

// NewBadgerStore wraps an open database. Close closes it.
func NewBadgerStore(db *DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens a database with cfg and wraps it.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	return NewBadgerStore(db), nil
}

func recordKey(runID string, pass int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", recordPrefix, runID, pass))
}

// Write stores rec, replacing any record with the same run and pass.
func (s *BadgerStore) Write(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.RunID, rec.Pass), data)
	})
}

// Get returns the record of runID at pass, or ErrNotFound.
func (s *BadgerStore) Get(ctx context.Context, runID string, pass int) (Record, error) {
	var rec Record
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(runID, pass))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: run %s pass %d", ErrNotFound, runID, pass)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// List returns every record of runID in pass order.
func (s *BadgerStore) List(ctx context.Context, runID string) ([]Record, error) {
	var out []Record
	prefix := []byte(recordPrefix + runID + "/")
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Runs returns the distinct run ids in the store, sorted.
func (s *BadgerStore) Runs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	prefix := []byte(recordPrefix)
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), recordPrefix)
			if id, _, ok := strings.Cut(rest, "/"); ok {
				seen[id] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	runs := make([]string, 0, len(seen))
	for id := range seen {
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
