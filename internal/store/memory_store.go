// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory HistoryStore. Not durable.
type MemoryStore struct {
	mu     sync.RWMutex
	recs   map[string][]Record
	closed bool
	// retention drops processes whose newest record is older; 0 disables.
	retention time.Duration
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string][]Record), now: time.Now}
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.recs[rec.ProcessID] = append(m.recs[rec.ProcessID], rec)
	m.pruneLocked()
	return nil
}

func (m *MemoryStore) pruneLocked() {
	if m.retention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.retention)
	for id, recs := range m.recs {
		newest := recs[0].At
		for _, r := range recs[1:] {
			if r.At.After(newest) {
				newest = r.At
			}
		}
		if newest.Before(cutoff) {
			delete(m.recs, id)
		}
	}
}

func (m *MemoryStore) List(_ context.Context, processID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := append([]Record(nil), m.recs[processID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, processID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.recs, processID)
	return nil
}
