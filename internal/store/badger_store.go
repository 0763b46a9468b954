// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps history under key "hist:<processID>:<seq big-endian>"
// so a prefix scan yields records in Seq order.
type BadgerStore struct {
	db *badger.DB
	// ttl expires records this long after they are written; 0 disables.
	ttl time.Duration
}

func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func historyPrefix(processID string) []byte {
	return []byte("hist:" + processID + ":")
}

func historyKey(processID string, seq uint64) []byte {
	p := historyPrefix(processID)
	key := make([]byte, len(p)+8)
	copy(key, p)
	binary.BigEndian.PutUint64(key[len(p):], seq)
	return key
}

func (s *BadgerStore) Append(_ context.Context, rec Record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	e := badger.NewEntry(historyKey(rec.ProcessID, rec.Seq), buf)
	if s.ttl > 0 {
		e = e.WithTTL(s.ttl)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) List(_ context.Context, processID string) ([]Record, error) {
	var out []Record
	prefix := historyPrefix(processID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Delete(_ context.Context, processID string) error {
	return s.db.DropPrefix(historyPrefix(processID))
}
