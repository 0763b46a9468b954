// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists process status history so a failed or cancelled
// run stays diagnosable after the registry forgets it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Record is one status transition of a process run.
type Record struct {
	ProcessID string    `json:"process_id"`
	Category  string    `json:"category"`
	Seq       uint64    `json:"seq"`
	Run       int       `json:"run"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// HistoryStore is an append-only log of Records keyed by process id.
// List returns records ordered by Seq.
type HistoryStore interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, processID string) ([]Record, error)
	Delete(ctx context.Context, processID string) error
	Close() error
}

// OpenHistoryStore creates a HistoryStore based on the backend configuration.
// Records older than retention are dropped; 0 keeps them forever.
func OpenHistoryStore(backend, path string, retention time.Duration) (HistoryStore, error) {
	switch backend {
	case "", "memory":
		m := NewMemoryStore()
		m.retention = retention
		return m, nil
	case "badger":
		s, err := OpenBadgerStore(path)
		if err != nil {
			return nil, err
		}
		s.ttl = retention
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
