// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package process is the registry of long-running, cancelable hardware
// operations. Processes are addressed by opaque ids, started at most once at
// a time, checked for conflicts against other running processes and observed
// by polling (GetProcess) or awaiting (Wait).
package process

import (
	"context"
	"errors"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/astrogate/internal/bus"
	"github.com/ManuGH/astrogate/internal/log"
	"github.com/ManuGH/astrogate/internal/metrics"
	"github.com/ManuGH/astrogate/internal/store"
	"github.com/ManuGH/astrogate/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type entry struct {
	id       string
	category Category
	work     Work

	status Status
	result any
	err    error
	runs   int
	gen    uint64

	cancel context.CancelFunc
	done   chan struct{}

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
}

func (e *entry) snapshot() Snapshot {
	s := Snapshot{
		ID:        e.id,
		Category:  e.category,
		Status:    e.status,
		Runs:      e.runs,
		CreatedAt: e.createdAt,
		StartedAt: e.startedAt,
		EndedAt:   e.endedAt,
		Result:    e.result,
		Err:       e.err,
	}
	if e.err != nil {
		s.Error = e.err.Error()
	}
	return s
}

// Registry owns all processes. A single mutex guards every read-modify-write
// of process status; the conflict check at Start is a linear scan, which is
// fine for the handful of concurrent operations a rig runs.
type Registry struct {
	mu     sync.Mutex
	procs  map[string]*entry
	seq    uint64
	closed bool
	wg     sync.WaitGroup

	rules   ConflictRules
	bus     bus.Bus
	history store.HistoryStore
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithConflictRules replaces DefaultConflictRules.
func WithConflictRules(r ConflictRules) Option {
	return func(reg *Registry) { reg.rules = r }
}

// WithBus publishes every status transition on TopicStatus.
func WithBus(b bus.Bus) Option {
	return func(reg *Registry) { reg.bus = b }
}

// WithHistory records every status transition.
func WithHistory(h store.HistoryStore) Option {
	return func(reg *Registry) { reg.history = h }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(reg *Registry) { reg.logger = l }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		procs:  make(map[string]*entry),
		rules:  DefaultConflictRules(),
		logger: log.WithComponent("process"),
		tracer: telemetry.Tracer("astrogate/process"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddProcess registers work in Idle status and returns its id.
func (r *Registry) AddProcess(work Work, category Category) string {
	id := uuid.New().String()
	now := r.now()

	r.mu.Lock()
	r.procs[id] = &entry{
		id:        id,
		category:  category,
		work:      work,
		status:    StatusIdle,
		createdAt: now,
	}
	n := len(r.procs)
	ev := r.nextEventLocked(id, category, 0, "", StatusIdle, nil)
	r.mu.Unlock()

	metrics.SetProcessesRegistered(n)
	r.logger.Debug().
		Str(log.FieldEvent, "process.added").
		Str(log.FieldProcessID, id).
		Str(log.FieldCategory, string(category)).
		Msg("process registered")
	r.emit(ev)
	return id
}

// Start launches a run of the process unless it, or a process in a
// conflicting category, is already running. It returns immediately; the
// outcome of the run is observed through GetProcess or Wait.
//
// Errors: ErrNotFound, *ConflictError (errors.Is ErrConflict), ErrClosed.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		metrics.RecordProcessStart("unknown", "closed")
		return ErrClosed
	}
	e, ok := r.procs[id]
	if !ok {
		r.mu.Unlock()
		metrics.RecordProcessStart("unknown", NotFound.String())
		return ErrNotFound
	}

	var conflicts []string
	if e.status == StatusRunning {
		conflicts = append(conflicts, e.id)
	}
	for _, other := range r.procs {
		if other == e || other.status != StatusRunning {
			continue
		}
		if r.rules.Conflicts(e.category, other.category) {
			conflicts = append(conflicts, other.id)
		}
	}
	if len(conflicts) > 0 {
		r.mu.Unlock()
		sort.Strings(conflicts)
		metrics.RecordProcessStart(string(e.category), Conflict.String())
		r.logger.Info().
			Str(log.FieldEvent, "process.conflict").
			Str(log.FieldProcessID, id).
			Str(log.FieldCategory, string(e.category)).
			Strs("conflicts", conflicts).
			Msg("start rejected")
		return &ConflictError{ID: id, Category: e.category, Conflicts: conflicts}
	}

	ctx, cancel := context.WithCancel(log.ContextWithProcessID(context.Background(), id))
	from := e.status
	e.gen++
	e.runs++
	e.status = StatusRunning
	e.result = nil
	e.err = nil
	e.cancel = cancel
	e.done = make(chan struct{})
	e.startedAt = r.now()
	e.endedAt = time.Time{}
	gen, run, work, done, startedAt := e.gen, e.runs, e.work, e.done, e.startedAt
	ev := r.nextEventLocked(id, e.category, run, from, StatusRunning, nil)
	r.wg.Add(1)
	r.mu.Unlock()

	metrics.RecordProcessStart(string(e.category), Started.String())
	r.logger.Info().
		Str(log.FieldEvent, "process.started").
		Str(log.FieldProcessID, id).
		Str(log.FieldCategory, string(e.category)).
		Int(log.FieldRun, run).
		Msg("process started")
	r.emit(ev)

	go r.run(ctx, cancel, e, gen, run, work, done, startedAt)
	return nil
}

func (r *Registry) run(ctx context.Context, cancel context.CancelFunc, e *entry, gen uint64, run int, work Work, done chan struct{}, startedAt time.Time) {
	defer r.wg.Done()
	defer close(done)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "process.run",
		trace.WithAttributes(telemetry.ProcessAttributes(e.id, string(e.category), run)...))
	defer span.End()

	result, err := invoke(ctx, work)

	var pe *PanicError
	status := StatusFinished
	switch {
	case err == nil:
	case errors.As(err, &pe):
		status = StatusFailed
	case ctx.Err() != nil:
		status = StatusCancelled
	default:
		status = StatusFailed
	}
	span.SetAttributes(attribute.String(telemetry.ProcessStatusKey, string(status)))
	if status == StatusFailed {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	now := r.now()
	r.mu.Lock()
	if e.gen != gen {
		// a newer run owns the entry
		r.mu.Unlock()
		return
	}
	e.status = status
	e.result = result
	e.err = err
	e.cancel = nil
	e.endedAt = now
	_, registered := r.procs[e.id]
	ev := r.nextEventLocked(e.id, e.category, run, StatusRunning, status, err)
	r.mu.Unlock()

	metrics.RecordProcessEnd(string(e.category), string(status), now.Sub(startedAt))

	l := r.logger.With().
		Str(log.FieldProcessID, e.id).
		Str(log.FieldCategory, string(e.category)).
		Int(log.FieldRun, run).
		Str(log.FieldNewState, string(status)).
		Dur("duration", now.Sub(startedAt)).
		Logger()
	switch status {
	case StatusFailed:
		evt := l.Warn().Err(err).Str(log.FieldEvent, "process.failed")
		if pe != nil {
			evt = evt.Bytes("stack", pe.Stack)
		}
		evt.Msg("process failed")
	case StatusCancelled:
		l.Info().Str(log.FieldEvent, "process.cancelled").Msg("process cancelled")
	default:
		l.Info().Str(log.FieldEvent, "process.finished").Msg("process finished")
	}

	if registered {
		r.emit(ev)
	}
}

func invoke(ctx context.Context, work Work) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return work(ctx)
}

// Stop signals cancellation to a running process and returns whether one was
// found. It does not wait; poll GetProcess or use Wait for termination.
func (r *Registry) Stop(id string) bool {
	r.mu.Lock()
	e, ok := r.procs[id]
	if !ok || e.status != StatusRunning || e.cancel == nil {
		r.mu.Unlock()
		return false
	}
	cancel := e.cancel
	category := e.category
	r.mu.Unlock()

	cancel()
	r.logger.Info().
		Str(log.FieldEvent, "process.stop_requested").
		Str(log.FieldProcessID, id).
		Str(log.FieldCategory, string(category)).
		Msg("cancellation signalled")
	return true
}

// GetProcess returns a snapshot of the process.
func (r *Registry) GetProcess(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.procs[id]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// List returns snapshots of all processes ordered by creation time.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	out := make([]Snapshot, 0, len(r.procs))
	for _, e := range r.procs {
		out = append(out, e.snapshot())
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// RemoveProcess forgets the process. A running process is NOT cancelled;
// callers that need that must Stop it first. Its goroutine keeps running
// until the work returns and its outcome is discarded.
func (r *Registry) RemoveProcess(id string) {
	r.mu.Lock()
	_, ok := r.procs[id]
	delete(r.procs, id)
	n := len(r.procs)
	r.mu.Unlock()
	if !ok {
		return
	}
	metrics.SetProcessesRegistered(n)
	r.logger.Debug().
		Str(log.FieldEvent, "process.removed").
		Str(log.FieldProcessID, id).
		Msg("process removed")
}

// Wait blocks until the process is not running, or ctx is done.
func (r *Registry) Wait(ctx context.Context, id string) (Snapshot, error) {
	for {
		r.mu.Lock()
		e, ok := r.procs[id]
		if !ok {
			r.mu.Unlock()
			return Snapshot{}, ErrNotFound
		}
		if e.status != StatusRunning {
			s := e.snapshot()
			r.mu.Unlock()
			return s, nil
		}
		done := e.done
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-done:
			// loop: the process may have been restarted in between
		}
	}
}

// History returns the recorded transitions of a process. It returns an
// empty slice when no history store is configured.
func (r *Registry) History(ctx context.Context, id string) ([]store.Record, error) {
	if r.history == nil {
		return nil, nil
	}
	return r.history.List(ctx, id)
}

// Close rejects further starts, cancels every running process and waits for
// their work to return or ctx to expire.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	var cancels []context.CancelFunc
	for _, e := range r.procs {
		if e.status == StatusRunning && e.cancel != nil {
			cancels = append(cancels, e.cancel)
		}
	}
	r.mu.Unlock()

	for _, c := range cancels {
		c()
	}

	waited := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Running reports how many processes are currently running.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.procs {
		if e.status == StatusRunning {
			n++
		}
	}
	return n
}

func (r *Registry) nextEventLocked(id string, category Category, run int, from, to Status, err error) Event {
	r.seq++
	ev := Event{
		Seq:       r.seq,
		ProcessID: id,
		Category:  category,
		Run:       run,
		From:      from,
		To:        to,
		At:        r.now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// emit fans an event out to the bus and the history store. Both are
// best-effort; a failing sink never affects process state.
func (r *Registry) emit(ev Event) {
	ctx := context.Background()
	if r.bus != nil {
		if err := r.bus.Publish(ctx, TopicStatus, ev); err != nil {
			r.logger.Warn().Err(err).Str(log.FieldProcessID, ev.ProcessID).Msg("status publish failed")
		}
	}
	if r.history != nil {
		rec := store.Record{
			ProcessID: ev.ProcessID,
			Category:  string(ev.Category),
			Seq:       ev.Seq,
			Run:       ev.Run,
			From:      string(ev.From),
			To:        string(ev.To),
			Error:     ev.Error,
			At:        ev.At,
		}
		if err := r.history.Append(ctx, rec); err != nil {
			r.logger.Warn().Err(err).Str(log.FieldProcessID, ev.ProcessID).Msg("history append failed")
		}
	}
}
