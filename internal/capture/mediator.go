// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ManuGH/astrogate/internal/log"
	"github.com/ManuGH/astrogate/internal/metrics"
	"github.com/ManuGH/astrogate/internal/process"
	"github.com/rs/zerolog"
)

// Mediator creates captures over a shared registry and tracks them by id.
type Mediator struct {
	reg    *process.Registry
	deps   Deps
	logger zerolog.Logger

	mu       sync.RWMutex
	captures map[string]*Capture
}

func NewMediator(reg *process.Registry, deps Deps) *Mediator {
	return &Mediator{
		reg:      reg,
		deps:     deps.withDefaults(),
		logger:   log.WithComponent("capture"),
		captures: make(map[string]*Capture),
	}
}

// AddCapture registers the acquisition and finalize processes of a new
// capture. Nothing is started.
func (m *Mediator) AddCapture() *Capture {
	c := newCapture(m.reg, m.deps)

	m.mu.Lock()
	m.captures[c.id] = c
	n := len(m.captures)
	m.mu.Unlock()

	metrics.SetCapturesActive(n)
	m.logger.Debug().
		Str(log.FieldCaptureID, c.id).
		Str(log.FieldProcessID, c.finalizeID).
		Msg("capture added")
	return c
}

func (m *Mediator) GetCapture(id string) (*Capture, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.captures[id]
	return c, ok
}

// List returns captures oldest first.
func (m *Mediator) List() []*Capture {
	m.mu.RLock()
	out := make([]*Capture, 0, len(m.captures))
	for _, c := range m.captures {
		out = append(out, c)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Capture) int {
		if d := a.created.Compare(b.created); d != 0 {
			return d
		}
		return strings.Compare(a.id, b.id)
	})
	return out
}

// RemoveCapture forgets the capture, stops its phases, deletes its artifact
// and unregisters both processes.
func (m *Mediator) RemoveCapture(id string) error {
	m.mu.Lock()
	c, ok := m.captures[id]
	if ok {
		delete(m.captures, id)
	}
	n := len(m.captures)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	metrics.SetCapturesActive(n)

	err := c.close()
	m.reg.RemoveProcess(c.id)
	m.reg.RemoveProcess(c.finalizeID)
	if err != nil {
		m.logger.Warn().Err(err).Str(log.FieldCaptureID, id).Msg("capture cleanup failed")
		return err
	}
	m.logger.Debug().Str(log.FieldCaptureID, id).Msg("capture removed")
	return nil
}

// Close removes every capture.
func (m *Mediator) Close() error {
	var errs []error
	for _, c := range m.List() {
		if err := m.RemoveCapture(c.id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
