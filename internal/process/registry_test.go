// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package process

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ManuGH/astrogate/internal/bus"
	"github.com/ManuGH/astrogate/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.New(io.Discard))}, opts...)
	r := NewRegistry(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, r.Close(ctx))
	})
	return r
}

// blockingWork runs until release is closed or ctx is cancelled.
func blockingWork(release <-chan struct{}) Work {
	return func(ctx context.Context) (any, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func waitStatus(t *testing.T, r *Registry, id string) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := r.Wait(ctx, id)
	require.NoError(t, err)
	return s
}

func TestRegistry_AddProcessIsIdle(t *testing.T) {
	r := newTestRegistry(t)
	id := r.AddProcess(blockingWork(nil), CategoryCapture)
	require.NotEmpty(t, id)

	s, ok := r.GetProcess(id)
	require.True(t, ok)
	assert.Equal(t, StatusIdle, s.Status)
	assert.Equal(t, CategoryCapture, s.Category)
	assert.Zero(t, s.Runs)

	other := r.AddProcess(blockingWork(nil), CategoryCapture)
	assert.NotEqual(t, id, other)
}

func TestRegistry_StartTwiceConflicts(t *testing.T) {
	r := newTestRegistry(t)
	release := make(chan struct{})
	id := r.AddProcess(blockingWork(release), CategoryPlateSolve)

	require.NoError(t, r.Start(id))
	err := r.Start(id)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, Conflict, Outcome(err))
	assert.Equal(t, []string{id}, Conflicts(err))

	s, _ := r.GetProcess(id)
	assert.Equal(t, StatusRunning, s.Status)
	assert.Equal(t, 1, s.Runs, "second Start must not launch another run")

	close(release)
	s = waitStatus(t, r, id)
	assert.Equal(t, StatusFinished, s.Status)
	assert.Equal(t, "done", s.Result)
}

func TestRegistry_ConflictingCategories(t *testing.T) {
	r := newTestRegistry(t)
	release := make(chan struct{})
	warm := r.AddProcess(blockingWork(release), CategoryCameraWarm)
	cool := r.AddProcess(blockingWork(nil), CategoryCameraCool)

	require.NoError(t, r.Start(warm))

	err := r.Start(cool)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cool, ce.ID)
	assert.Contains(t, ce.Conflicts, warm)

	s, _ := r.GetProcess(cool)
	assert.Equal(t, StatusIdle, s.Status, "rejected start must not change state")

	close(release)
	waitStatus(t, r, warm)

	require.NoError(t, r.Start(cool))
	require.True(t, r.Stop(cool))
	assert.Equal(t, StatusCancelled, waitStatus(t, r, cool).Status)
}

func TestRegistry_ConflictClearsAfterEachTerminalStatus(t *testing.T) {
	cases := map[Status]func(r *Registry, id string, release chan struct{}){
		StatusFinished:  func(_ *Registry, _ string, release chan struct{}) { close(release) },
		StatusCancelled: func(r *Registry, id string, _ chan struct{}) { r.Stop(id) },
	}
	for want, finish := range cases {
		t.Run(string(want), func(t *testing.T) {
			r := newTestRegistry(t)
			release := make(chan struct{})
			a := r.AddProcess(blockingWork(release), CategoryCapture)
			b := r.AddProcess(func(ctx context.Context) (any, error) { return nil, nil }, CategoryCapture)

			require.NoError(t, r.Start(a))
			require.ErrorIs(t, r.Start(b), ErrConflict)

			finish(r, a, release)
			assert.Equal(t, want, waitStatus(t, r, a).Status)
			require.NoError(t, r.Start(b))
			waitStatus(t, r, b)
		})
	}

	t.Run(string(StatusFailed), func(t *testing.T) {
		r := newTestRegistry(t)
		fail := make(chan struct{})
		a := r.AddProcess(func(ctx context.Context) (any, error) {
			<-fail
			return nil, errors.New("boom")
		}, CategoryCapture)
		b := r.AddProcess(func(ctx context.Context) (any, error) { return nil, nil }, CategoryCapture)

		require.NoError(t, r.Start(a))
		require.ErrorIs(t, r.Start(b), ErrConflict)
		close(fail)
		assert.Equal(t, StatusFailed, waitStatus(t, r, a).Status)
		require.NoError(t, r.Start(b))
		waitStatus(t, r, b)
	})
}

func TestRegistry_UngroupedCategoriesRunConcurrently(t *testing.T) {
	r := newTestRegistry(t)
	release := make(chan struct{})
	a := r.AddProcess(blockingWork(release), CategoryCaptureFinalize)
	b := r.AddProcess(blockingWork(release), CategoryCaptureFinalize)
	c := r.AddProcess(blockingWork(release), CategoryCapture)

	require.NoError(t, r.Start(a))
	require.NoError(t, r.Start(b))
	require.NoError(t, r.Start(c))
	assert.Equal(t, 3, r.Running())
	close(release)
	for _, id := range []string{a, b, c} {
		assert.Equal(t, StatusFinished, waitStatus(t, r, id).Status)
	}
}

func TestRegistry_Stop(t *testing.T) {
	r := newTestRegistry(t)
	id := r.AddProcess(blockingWork(nil), CategoryCameraCool)

	assert.False(t, r.Stop(id), "idle process cannot be stopped")
	s, _ := r.GetProcess(id)
	assert.Equal(t, StatusIdle, s.Status)

	require.NoError(t, r.Start(id))
	assert.True(t, r.Stop(id))

	s = waitStatus(t, r, id)
	assert.Equal(t, StatusCancelled, s.Status)
	assert.ErrorIs(t, s.Err, context.Canceled)
	assert.False(t, r.Stop(id), "cancelled process cannot be stopped again")
	assert.False(t, r.Stop("missing"))
}

func TestRegistry_StopIgnoredByWorkFinishes(t *testing.T) {
	r := newTestRegistry(t)
	release := make(chan struct{})
	id := r.AddProcess(func(ctx context.Context) (any, error) {
		<-release
		return 42, nil
	}, CategoryPlateSolve)

	require.NoError(t, r.Start(id))
	require.True(t, r.Stop(id))
	close(release)

	s := waitStatus(t, r, id)
	assert.Equal(t, StatusFinished, s.Status)
	assert.Equal(t, 42, s.Result)
}

func TestRegistry_FailureIsRecorded(t *testing.T) {
	r := newTestRegistry(t)
	boom := errors.New("sensor fault")
	id := r.AddProcess(func(ctx context.Context) (any, error) { return nil, boom }, CategoryCapture)

	require.NoError(t, r.Start(id), "background failure never surfaces through Start")
	s := waitStatus(t, r, id)
	assert.Equal(t, StatusFailed, s.Status)
	assert.ErrorIs(t, s.Err, boom)
	assert.Equal(t, "sensor fault", s.Error)
	assert.False(t, s.EndedAt.IsZero())
}

func TestRegistry_PanicIsFailure(t *testing.T) {
	r := newTestRegistry(t)
	id := r.AddProcess(func(ctx context.Context) (any, error) { panic("driver crashed") }, CategoryCapture)

	require.NoError(t, r.Start(id))
	s := waitStatus(t, r, id)
	assert.Equal(t, StatusFailed, s.Status)
	var pe *PanicError
	require.ErrorAs(t, s.Err, &pe)
	assert.Equal(t, "driver crashed", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestRegistry_Restart(t *testing.T) {
	r := newTestRegistry(t)
	calls := 0
	id := r.AddProcess(func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}, CategoryCapture)

	require.NoError(t, r.Start(id))
	waitStatus(t, r, id)
	require.NoError(t, r.Start(id))
	s := waitStatus(t, r, id)

	assert.Equal(t, StatusFinished, s.Status)
	assert.Equal(t, 2, s.Runs)
	assert.Equal(t, 2, s.Result)
}

func TestRegistry_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Start("nope")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, NotFound, Outcome(err))
	assert.Equal(t, Started, Outcome(nil))

	_, ok := r.GetProcess("nope")
	assert.False(t, ok)

	_, err = r.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RemoveDoesNotCancel(t *testing.T) {
	r := newTestRegistry(t)
	release := make(chan struct{})
	cancelled := make(chan bool, 1)
	id := r.AddProcess(func(ctx context.Context) (any, error) {
		select {
		case <-release:
			cancelled <- false
		case <-ctx.Done():
			cancelled <- true
		}
		return nil, nil
	}, CategoryCapture)

	require.NoError(t, r.Start(id))
	r.RemoveProcess(id)

	_, ok := r.GetProcess(id)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Running())

	close(release)
	assert.False(t, <-cancelled)
	r.RemoveProcess(id) // idempotent
}

func TestRegistry_EventsAndHistory(t *testing.T) {
	eventBus := bus.NewMemoryBus()
	hist := store.NewMemoryStore()
	r := newTestRegistry(t, WithBus(eventBus), WithHistory(hist))

	sub, err := eventBus.Subscribe(context.Background(), TopicStatus)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	id := r.AddProcess(func(ctx context.Context) (any, error) { return nil, nil }, CategoryCameraWarm)
	require.NoError(t, r.Start(id))
	waitStatus(t, r, id)

	var got []Status
	var lastSeq uint64
	for len(got) < 3 {
		select {
		case msg := <-sub.C():
			ev, ok := msg.(Event)
			require.True(t, ok)
			assert.Equal(t, id, ev.ProcessID)
			got = append(got, ev.To)
			lastSeq = ev.Seq
		case <-time.After(2 * time.Second):
			t.Fatalf("missing events, got %v", got)
		}
	}
	assert.ElementsMatch(t, []Status{StatusIdle, StatusRunning, StatusFinished}, got)
	assert.NotZero(t, lastSeq)

	var recs []store.Record
	require.Eventually(t, func() bool {
		recs, err = r.History(context.Background(), id)
		return err == nil && len(recs) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "IDLE", recs[0].To)
	assert.Equal(t, "RUNNING", recs[1].To)
	assert.Equal(t, "FINISHED", recs[2].To)
	assert.Equal(t, "RUNNING", recs[2].From)
}

func TestRegistry_WaitRespectsContext(t *testing.T) {
	r := newTestRegistry(t)
	id := r.AddProcess(blockingWork(nil), CategoryCapture)
	require.NoError(t, r.Start(id))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Wait(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry_CloseCancelsRunning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRegistry(WithLogger(zerolog.New(io.Discard)))
	ids := []string{
		r.AddProcess(blockingWork(nil), CategoryCameraCool),
		r.AddProcess(blockingWork(nil), CategoryCapture),
	}
	for _, id := range ids {
		require.NoError(t, r.Start(id))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))

	for _, id := range ids {
		s, _ := r.GetProcess(id)
		assert.Equal(t, StatusCancelled, s.Status)
	}
	assert.ErrorIs(t, r.Start(ids[0]), ErrClosed)
}

func TestRegistry_List(t *testing.T) {
	r := newTestRegistry(t)
	a := r.AddProcess(blockingWork(nil), CategoryCapture)
	b := r.AddProcess(blockingWork(nil), CategoryCameraCool)

	list := r.List()
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{a, b}, ids)
}

func TestConflictRules(t *testing.T) {
	rules := DefaultConflictRules()
	assert.True(t, rules.Conflicts(CategoryCameraCool, CategoryCameraWarm))
	assert.True(t, rules.Conflicts(CategoryCameraWarm, CategoryCameraWarm))
	assert.True(t, rules.Conflicts(CategoryCapture, CategoryCapture))
	assert.False(t, rules.Conflicts(CategoryCapture, CategoryCaptureFinalize))
	assert.False(t, rules.Conflicts(CategoryCaptureFinalize, CategoryCaptureFinalize))
	assert.False(t, rules.Conflicts(CategoryCameraCool, CategoryCapture))
	assert.Equal(t, GroupCameraThermal, rules.Group(CategoryCameraCool))
	assert.Empty(t, rules.Group(CategoryPlateSolve))
}
