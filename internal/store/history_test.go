// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]HistoryStore {
	t.Helper()
	bs, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	stores := map[string]HistoryStore{
		"memory": NewMemoryStore(),
		"badger": bs,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestHistoryStore_AppendListOrdered(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			// Appended out of order on purpose: Seq defines the order.
			in := []Record{
				{ProcessID: "p1", Category: "capture", Seq: 3, Run: 1, From: "RUNNING", To: "FINISHED", At: at},
				{ProcessID: "p1", Category: "capture", Seq: 1, Run: 1, From: "", To: "IDLE", At: at},
				{ProcessID: "p1", Category: "capture", Seq: 2, Run: 1, From: "IDLE", To: "RUNNING", At: at},
				{ProcessID: "p2", Category: "camera.cool", Seq: 4, From: "", To: "IDLE", At: at},
			}
			for _, rec := range in {
				require.NoError(t, s.Append(ctx, rec))
			}

			got, err := s.List(ctx, "p1")
			require.NoError(t, err)
			want := []Record{in[1], in[2], in[0]}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("history mismatch (-want +got):\n%s", diff)
			}

			require.NoError(t, s.Delete(ctx, "p1"))
			got, err = s.List(ctx, "p1")
			require.NoError(t, err)
			require.Empty(t, got)

			other, err := s.List(ctx, "p2")
			require.NoError(t, err)
			require.Len(t, other, 1)
		})
	}
}

func TestOpenHistoryStore(t *testing.T) {
	s, err := OpenHistoryStore("", "", 0)
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
	require.NoError(t, s.Close())

	_, err = OpenHistoryStore("etcd", "", 0)
	require.Error(t, err)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Append(context.Background(), Record{ProcessID: "x"}), ErrClosed)
}

func TestMemoryStore_RetentionDropsStaleProcesses(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 2, 4, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.retention = time.Hour
	s.now = func() time.Time { return now }

	require.NoError(t, s.Append(ctx, Record{ProcessID: "old", Seq: 1, To: "FINISHED", At: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.Append(ctx, Record{ProcessID: "new", Seq: 2, To: "IDLE", At: now}))

	old, err := s.List(ctx, "old")
	require.NoError(t, err)
	require.Empty(t, old)
	fresh, err := s.List(ctx, "new")
	require.NoError(t, err)
	require.Len(t, fresh, 1)
}

func TestBadgerStore_RetentionExpiresRecords(t *testing.T) {
	ctx := context.Background()
	s, err := OpenHistoryStore("badger", t.TempDir(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Append(ctx, Record{ProcessID: "p1", Seq: 1, To: "IDLE", At: time.Now()}))
	got, err := s.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.Eventually(t, func() bool {
		got, err := s.List(ctx, "p1")
		return err == nil && len(got) == 0
	}, 5*time.Second, 100*time.Millisecond)
}
